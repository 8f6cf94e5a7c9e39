package x86

// SegmentKind is the tagged-variant discriminant spec.md §9 calls for in
// place of the source's class hierarchy: a single enum over every shape a
// segment register, descriptor-table pointer, or gate descriptor can take.
type SegmentKind int

const (
	SegNull SegmentKind = iota
	SegReal
	SegVM86
	SegDescTable // GDTR/LDTR/IDTR: base+limit only, no selector
	SegData
	SegCodeNonConforming
	SegCodeConforming
	SegLDT
	SegTSS16
	SegTSS32
	SegInterruptGate16
	SegInterruptGate32
	SegTrapGate16
	SegTrapGate32
	SegCallGate16
	SegCallGate32
	SegTaskGate
)

// Access-byte bit layout of an 8-byte protected-mode descriptor (standard
// IA-32 layout; cross-checked against the descriptor shape gokvm builds in
// other_examples/fdceebca_bobuhiro11-gokvm__machine-machine.go.go).
const (
	accessAccessed  byte = 1 << 0
	accessRW        byte = 1 << 1 // data: writable: code: readable
	accessDirConf   byte = 1 << 2 // data: expand-down; code: conforming
	accessExecute   byte = 1 << 3
	accessS         byte = 1 << 4 // 1 = code/data, 0 = system
	accessDPLShift       = 5
	accessDPLMask   byte = 3 << accessDPLShift
	accessPresent   byte = 1 << 7
)

// Segment is the single concrete type every segment register, descriptor-
// table pointer, and gate descriptor is represented as. Which fields are
// meaningful is determined by Kind; see spec.md §4.3 and §9.
type Segment struct {
	kind SegmentKind

	selector uint16
	rpl      uint8

	base  uint32
	limit uint32 // already scaled by granularity

	access      byte
	granularity bool
	defaultSize bool // D/B bit

	// Gate/system payload (CallGate*, InterruptGate*, TrapGate*, TaskGate,
	// TSS16/32): target selector/offset and, for call gates, the
	// parameter count to copy (spec.md §4.5 step 3c-d).
	gateTargetSelector uint16
	gateTargetOffset   uint32
	gateParamCount     byte

	mem AddressSpace // backend this segment currently addresses (C4)
}

// NewNullSegment returns the NULL segment: it reports not present, and
// every access through it is a #GP (spec.md §3's "DS/ES/FS/GS may hold NULL" invariant).
func NewNullSegment() *Segment { return &Segment{kind: SegNull} }

// NewRealModeSegment builds a real-mode segment: base = selector<<4,
// limit 0xFFFF (spec.md §4.1, and the round-trip invariant of §8).
func NewRealModeSegment(selector uint16, mem AddressSpace) *Segment {
	return &Segment{kind: SegReal, selector: selector, base: uint32(selector) << 4, limit: 0xFFFF, mem: mem}
}

// NewVM86Segment builds a virtual-8086 segment: same base/limit layout as
// real mode but DPL is fixed at 3 and accesses are checked against linear
// (possibly paged) memory rather than physical memory directly.
func NewVM86Segment(selector uint16, mem AddressSpace) *Segment {
	return &Segment{kind: SegVM86, selector: selector, base: uint32(selector) << 4, limit: 0xFFFF,
		access: accessPresent | (3 << accessDPLShift), mem: mem}
}

// NewDescriptorTableSegment builds the base+limit-only variant used for
// GDTR/LDTR/IDTR (spec.md §3).
func NewDescriptorTableSegment(base uint32, limit uint32) *Segment {
	return &Segment{kind: SegDescTable, base: base, limit: limit}
}

func (s *Segment) Kind() SegmentKind { return s.kind }

// GetSelector reads the 16-bit selector last loaded into this segment.
func (s *Segment) GetSelector() uint16 { return s.selector }

// SetSelector is the minimal "assign a raw selector value" used by variants
// that don't go through full descriptor reload (real mode, VM86 data
// loads). It reports false when the variant doesn't support a bare
// selector write (e.g. a descriptor-table pointer).
func (s *Segment) SetSelector(sel uint16) bool {
	switch s.kind {
	case SegDescTable:
		return false
	default:
		s.selector = sel
		s.rpl = uint8(sel & 3)
		return true
	}
}

func (s *Segment) GetBase() uint32  { return s.base }
func (s *Segment) GetLimit() uint32 { return s.limit }
func (s *Segment) GetAccess() byte  { return s.access }

// GetType returns the descriptor type: the low 5 bits of the access byte
// for protected-mode variants (spec.md §4.5's target-descriptor taxonomy),
// or a kind-derived synthetic value for real/VM86/descriptor-table
// segments which carry no real access byte.
func (s *Segment) GetType() byte {
	switch s.kind {
	case SegReal, SegVM86:
		return accessS | accessRW // "data, read/write" for uniformity
	default:
		return s.access & 0x1F
	}
}

func (s *Segment) GetRPL() uint8 { return uint8(s.selector & 3) }

// GetDPL returns the descriptor privilege level from the access byte.
func (s *Segment) GetDPL() uint8 {
	switch s.kind {
	case SegVM86:
		return 3
	default:
		return (s.access & accessDPLMask) >> accessDPLShift
	}
}

func (s *Segment) IsPresent() bool {
	switch s.kind {
	case SegReal, SegVM86, SegDescTable:
		return true
	case SegNull:
		return false
	default:
		return s.access&accessPresent != 0
	}
}

// IsSystem reports whether the descriptor's S bit is clear (a system
// descriptor: gate, TSS, or LDT) rather than code/data.
func (s *Segment) IsSystem() bool {
	switch s.kind {
	case SegLDT, SegTSS16, SegTSS32, SegInterruptGate16, SegInterruptGate32,
		SegTrapGate16, SegTrapGate32, SegCallGate16, SegCallGate32, SegTaskGate:
		return true
	default:
		return false
	}
}

// IsConforming reports whether a code segment is conforming.
func (s *Segment) IsConforming() bool { return s.kind == SegCodeConforming }

// IsExpandDown reports whether a data segment is an expand-down segment
// (spec.md §4.3's checkAddress rule for "down" segments).
func (s *Segment) IsExpandDown() bool {
	return s.kind == SegData && s.access&accessDirConf != 0
}

// IsWritable reports whether a data segment's access byte grants writes,
// or a code segment's grants reads (the RW bit means different things
// depending on accessExecute).
func (s *Segment) IsWritable() bool {
	return s.access&accessExecute == 0 && s.access&accessRW != 0
}

func (s *Segment) IsReadable() bool {
	if s.access&accessExecute == 0 {
		return true // data segments are always readable
	}
	return s.access&accessRW != 0
}

// CheckAddress enforces spec.md §4.3: offset <= limit for up segments
// (including code, which is never expand-down), offset > limit for
// expand-down data segments.
func (s *Segment) CheckAddress(offset uint32) *ProcessorException {
	switch s.kind {
	case SegNull:
		return NewFault(VectorGP, 0, true)
	case SegReal, SegVM86, SegDescTable:
		return nil // no limit enforcement outside protected mode (spec.md §4.1)
	}
	if s.IsExpandDown() {
		upper := uint32(0xFFFF)
		if s.defaultSize {
			upper = 0xFFFFFFFF
		}
		if offset <= s.limit || offset > upper {
			return NewFault(VectorGP, 0, true)
		}
		return nil
	}
	if offset > s.limit {
		return NewFault(VectorGP, 0, true)
	}
	return nil
}

// TranslateReadAddr / TranslateWriteAddr turn a segment-relative offset
// into a linear address, after the CheckAddress bounds check. The
// Processor is responsible for raising #GP vs #SS depending on whether
// the faulting segment is SS (spec.md §4.4/§4.5).
func (s *Segment) TranslateReadAddr(offset uint32) (uint32, *ProcessorException) {
	if err := s.CheckAddress(offset); err != nil {
		return 0, err
	}
	return s.base + offset, nil
}

func (s *Segment) TranslateWriteAddr(offset uint32) (uint32, *ProcessorException) {
	return s.TranslateReadAddr(offset)
}

// GetByte/GetWord/GetDWord/GetQWord and the Set* writers below are the
// checked convenience surface onto a segment: like every other accessor in
// this file, an out-of-bounds offset raises rather than silently reading or
// writing past the segment (spec.md §4.3's CheckAddress contract applies
// here exactly as it does to stack.go's and interrupt.go's direct
// TranslateReadAddr/WriteAddr callers).
func (s *Segment) GetByte(offset uint32) byte {
	addr, ex := s.TranslateReadAddr(offset)
	if ex != nil {
		raise(ex)
	}
	return s.mem.GetByte(addr)
}
func (s *Segment) GetWord(offset uint32) uint16 {
	addr, ex := s.TranslateReadAddr(offset)
	if ex != nil {
		raise(ex)
	}
	return s.mem.GetWord(addr)
}
func (s *Segment) GetDWord(offset uint32) uint32 {
	addr, ex := s.TranslateReadAddr(offset)
	if ex != nil {
		raise(ex)
	}
	return s.mem.GetDoubleWord(addr)
}
func (s *Segment) GetQWord(offset uint32) uint64 {
	addr, ex := s.TranslateReadAddr(offset)
	if ex != nil {
		raise(ex)
	}
	return s.mem.GetQuadWord(addr)
}

func (s *Segment) SetByte(offset uint32, v byte) {
	addr, ex := s.TranslateWriteAddr(offset)
	if ex != nil {
		raise(ex)
	}
	s.mem.SetByte(addr, v)
}
func (s *Segment) SetWord(offset uint32, v uint16) {
	addr, ex := s.TranslateWriteAddr(offset)
	if ex != nil {
		raise(ex)
	}
	s.mem.SetWord(addr, v)
}
func (s *Segment) SetDWord(offset uint32, v uint32) {
	addr, ex := s.TranslateWriteAddr(offset)
	if ex != nil {
		raise(ex)
	}
	s.mem.SetDoubleWord(addr, v)
}
func (s *Segment) SetQWord(offset uint32, v uint64) {
	addr, ex := s.TranslateWriteAddr(offset)
	if ex != nil {
		raise(ex)
	}
	s.mem.SetQuadWord(addr, v)
}

// Rebind switches which memory backend this segment addresses — called on
// mode transitions and on EFLAGS.AC edge changes (spec.md §4.3).
func (s *Segment) Rebind(mem AddressSpace) { s.mem = mem }

// clone produces a detached copy suitable for a saved rollback snapshot
// (spec.md §4.8's "save a rollback snapshot" before interrupt delivery).
func (s *Segment) clone() *Segment {
	cp := *s
	return &cp
}
