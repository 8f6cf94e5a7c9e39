package x86

// decodeDescriptor unpacks an 8-byte protected-mode descriptor (GDT/LDT
// entry or IDT gate) read as two little-endian dwords, the layout spec.md
// §4.3 describes and the one other_examples/gokvm's kvm.Segment mirrors in
// its bit-packed form.
//
//	lo: [ limit 15:0 | base 15:0 ]
//	hi: [ base 31:24 | G D/B AVL limit 19:16 | P DPL S type | base 23:16 ]
func decodeDescriptor(lo, hi uint32) (access byte, base, limit uint32, granularity, defaultSize bool) {
	base = (lo >> 16) | ((hi & 0xFF) << 16) | (hi & 0xFF000000)
	limit = (lo & 0xFFFF) | ((hi >> 16) & 0xF << 16)
	access = byte((hi >> 8) & 0xFF)
	granularity = hi&(1<<23) != 0
	defaultSize = hi&(1<<22) != 0
	if granularity {
		limit = (limit << 12) | 0xFFF
	}
	return
}

// kindFromAccess classifies a descriptor's access byte into a SegmentKind,
// covering both code/data (S=1) and system descriptors (S=0): LDT, TSS,
// call/interrupt/trap/task gates (spec.md §4.5's target-descriptor
// taxonomy).
func kindFromAccess(access byte) SegmentKind {
	if access&accessS != 0 {
		if access&accessExecute != 0 {
			if access&accessDirConf != 0 {
				return SegCodeConforming
			}
			return SegCodeNonConforming
		}
		return SegData
	}
	switch access & 0x1F {
	case 0x02:
		return SegLDT
	case 0x09, 0x0B: // 32-bit TSS: available, busy
		return SegTSS32
	case 0x01, 0x03: // 16-bit TSS: available, busy
		return SegTSS16
	case 0x04:
		return SegCallGate16
	case 0x0C:
		return SegCallGate32
	case 0x05:
		return SegTaskGate
	case 0x06:
		return SegInterruptGate16
	case 0x0E:
		return SegInterruptGate32
	case 0x07:
		return SegTrapGate16
	case 0x0F:
		return SegTrapGate32
	default:
		return SegData // reserved/unknown type; caller's #GP check catches it
	}
}

// newDescriptorSegment builds a Segment of the appropriate kind from a
// decoded 8-byte descriptor. For gate types the "base/limit" fields instead
// carry the gate's target selector:offset and, for call gates, the
// parameter count (spec.md §4.5 step 3c-d).
func newDescriptorSegment(selector uint16, lo, hi uint32, mem AddressSpace) *Segment {
	access, base, limit, gran, db := decodeDescriptor(lo, hi)
	kind := kindFromAccess(access)

	seg := &Segment{kind: kind, selector: selector, rpl: uint8(selector & 3),
		access: access, granularity: gran, defaultSize: db, mem: mem}

	switch kind {
	case SegCallGate16, SegCallGate32, SegInterruptGate16, SegInterruptGate32,
		SegTrapGate16, SegTrapGate32, SegTaskGate:
		seg.gateTargetSelector = uint16(lo >> 16)
		switch kind {
		case SegCallGate16, SegInterruptGate16, SegTrapGate16:
			seg.gateTargetOffset = lo & 0xFFFF
		case SegCallGate32, SegInterruptGate32, SegTrapGate32:
			seg.gateTargetOffset = (lo & 0xFFFF) | (hi & 0xFFFF0000)
		}
		if kind == SegCallGate16 || kind == SegCallGate32 {
			seg.gateParamCount = byte(hi & 0x1F)
		}
	default:
		seg.base = base
		seg.limit = limit
	}
	return seg
}

// GateTargetSelector / GateTargetOffset / GateParamCount expose the gate
// payload of a call/interrupt/trap/task-gate Segment.
func (s *Segment) GateTargetSelector() uint16 { return s.gateTargetSelector }
func (s *Segment) GateTargetOffset() uint32   { return s.gateTargetOffset }
func (s *Segment) GateParamCount() byte       { return s.gateParamCount }

// IsBusy reports whether a TSS descriptor's busy bit (type 0x0B/0x03) is set.
func (s *Segment) IsBusy() bool {
	t := s.access & 0x1F
	return t == 0x0B || t == 0x03
}

// SetBusy flips a TSS descriptor's busy bit in its cached access byte; the
// caller is responsible for writing the updated access byte back to the
// owning GDT entry (spec.md §4.7 step 2/10).
func (s *Segment) SetBusy(busy bool) {
	if s.kind != SegTSS16 && s.kind != SegTSS32 {
		return
	}
	if busy {
		s.access |= 0x02
	} else {
		s.access &^= 0x02
	}
}

// descriptorTables groups the three table-pointer segments Processor holds
// (spec.md §3): GDTR, IDTR, and the current LDTR (itself reloaded by
// loadLDT). All three are read through the physical/linear backend with
// supervisor access forced on for the duration of the read.
type descriptorTables struct {
	gdt *Segment
	idt *Segment
	ldt *Segment // nil until an LDT is loaded; selector 0 = "no LDT"
}

// rawDescriptor reads the 8-byte entry at `index` (already shifted: a
// selector's table index, not the selector itself) out of a table segment,
// forcing supervisor access around the read per the scoped-supervisor
// pattern (spec.md §5/§9).
func (p *Processor) rawDescriptor(table *Segment, index uint16) (lo, hi uint32, ok bool) {
	off := uint32(index) * 8
	if off+7 > table.limit {
		return 0, 0, false
	}
	mem := p.currentMemFor(p.mode)
	restore := p.withSupervisor(mem)
	defer restore()
	lo = mem.GetDoubleWord(table.base + off)
	hi = mem.GetDoubleWord(table.base + off + 4)
	return lo, hi, true
}

// withSupervisor toggles supervisor mode on mem if it supports the
// LinearAddressSpace contract, returning a restore func; a no-op restore
// is returned for backends that don't (physical memory in real mode has no
// notion of supervisor access).
func (p *Processor) withSupervisor(mem AddressSpace) func() {
	if lin, ok := mem.(LinearAddressSpace); ok {
		prior := lin.SetSupervisor(true)
		return func() { lin.SetSupervisor(prior) }
	}
	return func() {}
}

// getSegment resolves a selector against GDT or LDT (per the selector's TI
// bit) and returns the decoded descriptor as a Segment, or a fault: #GP if
// the selector is outside the table's limit (spec.md §4.3's getSegment
// operation), #NP if the descriptor's Present bit is clear. It does not
// perform privilege checks; callers apply those for the context they're
// resolving in (data load, control transfer, gate, ...).
func (p *Processor) getSegment(selector uint16) (*Segment, *ProcessorException) {
	if selector&0xFFFC == 0 {
		return NewNullSegment(), nil
	}
	table := p.tables.gdt
	if selector&4 != 0 {
		if p.tables.ldt == nil || p.tables.ldt.selector&0xFFFC == 0 {
			return nil, gpFault(selector)
		}
		table = p.tables.ldt
	}
	lo, hi, ok := p.rawDescriptor(table, selector>>3)
	if !ok {
		return nil, gpFault(selector)
	}
	seg := newDescriptorSegment(selector, lo, hi, p.mem)
	if !seg.IsPresent() {
		return nil, npFault(selector)
	}
	return seg, nil
}

// getIDTEntry resolves interrupt vector `vec` against the IDT, returning
// its gate Segment. A vector past IDT limit is #GP(vec*8+2) per spec.md §8.
func (p *Processor) getIDTEntry(vec Vector) (*Segment, *ProcessorException) {
	lo, hi, ok := p.rawDescriptor(p.tables.idt, uint16(vec))
	if !ok {
		return nil, gpFault(uint16(vec)*8 + 2)
	}
	gate := newDescriptorSegment(uint16(vec)*8, lo, hi, p.mem)
	switch gate.kind {
	case SegInterruptGate16, SegInterruptGate32, SegTrapGate16, SegTrapGate32, SegTaskGate:
	default:
		return nil, gpFault(uint16(vec)*8 + 2)
	}
	return gate, nil
}

// writeDescriptorAccessByte patches the access byte of the descriptor at
// `index` in `table` in place — used to flip a TSS's busy bit (spec.md §4.7
// steps 2 and 10).
func (p *Processor) writeDescriptorAccessByte(table *Segment, index uint16, access byte) {
	off := table.base + uint32(index)*8 + 5
	mem := p.currentMemFor(p.mode)
	restore := p.withSupervisor(mem)
	defer restore()
	mem.SetByte(off, access)
}
