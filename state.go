package x86

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// Save-state wire format (spec.md §6): a magic tag, a version, then a fixed
// field order covering every piece of architectural state, followed by a
// variable-length MSR (index, value) list. Adapted from the teacher's
// debug_snapshot.go magic+version+binary.Write convention.
const (
	stateMagic   = "X86S"
	stateVersion = 1
)

// SaveState appends this Processor's architectural state to buf and
// returns the extended slice, in the exact field order LoadState expects.
func (p *Processor) SaveState(buf []byte) []byte {
	var w bytes.Buffer
	w.WriteString(stateMagic)
	binary.Write(&w, binary.LittleEndian, uint32(stateVersion))

	binary.Write(&w, binary.LittleEndian, uint32(p.mode))
	binary.Write(&w, binary.LittleEndian, uint32(p.life))
	binary.Write(&w, binary.LittleEndian, p.eip)

	for i := 0; i < 8; i++ {
		binary.Write(&w, binary.LittleEndian, p.Regs.Get32(i))
	}
	binary.Write(&w, binary.LittleEndian, p.flags.EFlags())

	for _, seg := range []*Segment{p.cs, p.ss, p.ds, p.es, p.fs, p.gs, p.tr} {
		writeSegment(&w, seg)
	}
	writeSegment(&w, p.tables.gdt)
	writeSegment(&w, p.tables.idt)
	writeSegment(&w, p.tables.ldt)

	binary.Write(&w, binary.LittleEndian, p.control.cr0)
	binary.Write(&w, binary.LittleEndian, p.control.cr2)
	binary.Write(&w, binary.LittleEndian, p.control.cr3)
	binary.Write(&w, binary.LittleEndian, p.control.cr4)
	for i := 0; i < 8; i++ {
		binary.Write(&w, binary.LittleEndian, p.control.dr[i])
	}
	w.WriteByte(p.control.cpl)
	w.WriteByte(boolByte(p.control.halted))

	keys := p.control.MSRKeys()
	binary.Write(&w, binary.LittleEndian, uint32(len(keys)))
	for _, k := range keys {
		binary.Write(&w, binary.LittleEndian, k)
		binary.Write(&w, binary.LittleEndian, p.control.GetMSR(k))
	}

	binary.Write(&w, binary.LittleEndian, p.instructionsExecuted)

	if p.fpu != nil {
		fpuBytes := p.fpu.SaveState(nil)
		binary.Write(&w, binary.LittleEndian, uint32(len(fpuBytes)))
		w.Write(fpuBytes)
	} else {
		binary.Write(&w, binary.LittleEndian, uint32(0))
	}

	return append(buf, w.Bytes()...)
}

// writeSegment encodes a Segment's full field set — enough to reconstruct
// it without re-resolving a selector against the descriptor tables, which
// matters for the rollback snapshot and for segments derived from gates
// that no longer exist by restore time.
func writeSegment(w *bytes.Buffer, s *Segment) {
	binary.Write(w, binary.LittleEndian, uint32(s.kind))
	binary.Write(w, binary.LittleEndian, s.selector)
	binary.Write(w, binary.LittleEndian, s.base)
	binary.Write(w, binary.LittleEndian, s.limit)
	w.WriteByte(s.access)
	w.WriteByte(boolByte(s.granularity))
	w.WriteByte(boolByte(s.defaultSize))
	binary.Write(w, binary.LittleEndian, s.gateTargetSelector)
	binary.Write(w, binary.LittleEndian, s.gateTargetOffset)
	w.WriteByte(s.gateParamCount)
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}

// LoadState decodes a buffer produced by SaveState and returns the
// remaining, unconsumed bytes (the convention the FPU collaborator's
// LoadState also follows, so callers can chain multiple LoadState calls
// over one combined buffer).
func (p *Processor) LoadState(in []byte) ([]byte, error) {
	r := bytes.NewReader(in)

	magic := make([]byte, len(stateMagic))
	if _, err := r.Read(magic); err != nil || string(magic) != stateMagic {
		return in, fmt.Errorf("x86: bad save-state magic")
	}
	var version uint32
	binary.Read(r, binary.LittleEndian, &version)
	if version != stateVersion {
		return in, fmt.Errorf("x86: unsupported save-state version %d", version)
	}

	var mode, life uint32
	binary.Read(r, binary.LittleEndian, &mode)
	binary.Read(r, binary.LittleEndian, &life)
	p.mode = ExecutionMode(mode)
	p.life = lifecycle(life)
	binary.Read(r, binary.LittleEndian, &p.eip)

	for i := 0; i < 8; i++ {
		var v uint32
		binary.Read(r, binary.LittleEndian, &v)
		p.Regs.Set32(i, v)
	}
	var ef uint32
	binary.Read(r, binary.LittleEndian, &ef)
	p.flags.SetEFlags(ef, 0xFFFFFFFF)

	mem := p.currentMemFor(p.mode)
	segs := make([]*Segment, 7)
	for i := range segs {
		segs[i] = readSegment(r, mem)
	}
	p.cs, p.ss, p.ds, p.es, p.fs, p.gs, p.tr = segs[0], segs[1], segs[2], segs[3], segs[4], segs[5], segs[6]
	p.tables.gdt = readSegment(r, mem)
	p.tables.idt = readSegment(r, mem)
	p.tables.ldt = readSegment(r, mem)

	binary.Read(r, binary.LittleEndian, &p.control.cr0)
	binary.Read(r, binary.LittleEndian, &p.control.cr2)
	binary.Read(r, binary.LittleEndian, &p.control.cr3)
	binary.Read(r, binary.LittleEndian, &p.control.cr4)
	for i := 0; i < 8; i++ {
		binary.Read(r, binary.LittleEndian, &p.control.dr[i])
	}
	cpl, _ := r.ReadByte()
	halted, _ := r.ReadByte()
	p.control.cpl = cpl
	p.control.halted = halted != 0

	var msrCount uint32
	binary.Read(r, binary.LittleEndian, &msrCount)
	p.control.msr = make(map[uint32]uint64, msrCount)
	for i := uint32(0); i < msrCount; i++ {
		var k uint32
		var v uint64
		binary.Read(r, binary.LittleEndian, &k)
		binary.Read(r, binary.LittleEndian, &v)
		p.control.msr[k] = v
	}

	binary.Read(r, binary.LittleEndian, &p.instructionsExecuted)

	var fpuLen uint32
	binary.Read(r, binary.LittleEndian, &fpuLen)
	fpuBytes := make([]byte, fpuLen)
	r.Read(fpuBytes)
	if p.fpu != nil && fpuLen > 0 {
		if _, err := p.fpu.LoadState(fpuBytes); err != nil {
			return nil, fmt.Errorf("x86: fpu load-state: %w", err)
		}
	}

	remaining := make([]byte, r.Len())
	r.Read(remaining)
	return remaining, nil
}

func readSegment(r *bytes.Reader, mem AddressSpace) *Segment {
	s := &Segment{mem: mem}
	var kind uint32
	binary.Read(r, binary.LittleEndian, &kind)
	s.kind = SegmentKind(kind)
	binary.Read(r, binary.LittleEndian, &s.selector)
	binary.Read(r, binary.LittleEndian, &s.base)
	binary.Read(r, binary.LittleEndian, &s.limit)
	s.access, _ = r.ReadByte()
	gran, _ := r.ReadByte()
	db, _ := r.ReadByte()
	s.granularity = gran != 0
	s.defaultSize = db != 0
	binary.Read(r, binary.LittleEndian, &s.gateTargetSelector)
	binary.Read(r, binary.LittleEndian, &s.gateTargetOffset)
	s.gateParamCount, _ = r.ReadByte()
	s.rpl = uint8(s.selector & 3)
	return s
}
