package x86

// addressSpaces groups the backends a Processor can be bound to (spec.md
// §4.3/C4): physical memory for real mode and as paging's frame store, and
// the paging-aware linear view used once protected mode (and optionally
// paging) is live. Exactly one of these is "current" at a time, selected
// by convertSegmentsTo{Real,Protected}Mode.
type addressSpaces struct {
	physical PhysicalAddressSpace
	linear   LinearAddressSpace
}

// currentMemFor returns the backend a newly (re)loaded segment in the
// given mode should bind to: physical memory in real mode, the linear
// (paging-aware) view in protected and virtual-8086 mode. VM86 still goes
// through the linear backend because paging applies to it exactly as to
// protected-mode code (spec.md §4.1).
func (p *Processor) currentMemFor(mode ExecutionMode) AddressSpace {
	if mode == ModeReal {
		return p.spaces.physical
	}
	if p.spaces.linear != nil {
		return p.spaces.linear
	}
	return p.spaces.physical
}

// convertSegmentsToRealMode rebuilds CS/SS/DS/ES/FS/GS as real-mode
// segments from their current selector values and rebinds the descriptor
// tables' address space, per spec.md §4.3. Called when CR0.PE transitions
// 1->0 or via triple-fault-driven reset.
func (p *Processor) convertSegmentsToRealMode() {
	mem := p.currentMemFor(ModeReal)
	for _, reg := range p.dataSegmentRegs() {
		sel := (*reg).GetSelector()
		*reg = NewRealModeSegment(sel, mem)
	}
	p.cs = NewRealModeSegment(p.cs.GetSelector(), mem)
	p.ss = NewRealModeSegment(p.ss.GetSelector(), mem)
	p.mode = ModeReal
	p.control.setCPL(0)
}

// convertSegmentsToProtectedMode re-resolves every segment register's
// current selector against GDT/LDT, replacing the real-mode Segment with
// the protected-mode descriptor it names. Invalid selectors fault with #GP
// per the normal data-load rules (spec.md §4.3).
func (p *Processor) convertSegmentsToProtectedMode() *ProcessorException {
	mem := p.currentMemFor(ModeProtected)
	for _, reg := range p.dataOrCodeSegmentRegs() {
		sel := (*reg).GetSelector()
		if sel&0xFFFC == 0 {
			*reg = NewNullSegment()
			continue
		}
		seg, ex := p.getSegment(sel)
		if ex != nil {
			return ex
		}
		seg.Rebind(mem)
		*reg = seg
	}
	p.mode = ModeProtected
	return nil
}

// convertSegmentsToVM86Mode rebuilds every segment register as a VM86
// segment from its current selector, matching convertSegmentsToRealMode's
// shape but with VM86's fixed DPL=3 (spec.md §4.1/§4.8 VM86 entry path).
func (p *Processor) convertSegmentsToVM86Mode() {
	mem := p.currentMemFor(ModeVM86)
	for _, reg := range p.dataSegmentRegs() {
		sel := (*reg).GetSelector()
		*reg = NewVM86Segment(sel, mem)
	}
	p.cs = NewVM86Segment(p.cs.GetSelector(), mem)
	p.ss = NewVM86Segment(p.ss.GetSelector(), mem)
	p.mode = ModeVM86
	p.control.setCPL(3)
}

// dataSegmentRegs returns pointers to DS/ES/FS/GS for the bulk-rebind loops
// above; CS/SS are handled separately since they carry CPL/stack semantics.
func (p *Processor) dataSegmentRegs() []**Segment {
	return []**Segment{&p.ds, &p.es, &p.fs, &p.gs}
}

func (p *Processor) dataOrCodeSegmentRegs() []**Segment {
	return []**Segment{&p.es, &p.cs, &p.ss, &p.ds, &p.fs, &p.gs}
}

// updateAlignmentCheckingInDataSegments is invoked whenever CR0.AM, EFLAGS.AC,
// or CPL changes: alignment checking is live only when all three conditions
// hold (CR0.AM=1, EFLAGS.AC=1, CPL==3). The actual per-access #AC check is
// applied by an external AlignmentCheckedAddressSpace wrapper (spec.md §6,
// out of this package's scope); this just keeps the cached flag current so
// a host can query it when deciding whether to install that wrapper.
func (p *Processor) updateAlignmentCheckingInDataSegments() {
	p.alignmentCheckLive = p.control.cr0&CR0AM != 0 && p.flags.AC() && p.control.CPL() == 3
}

// AlignmentCheckingLive reports whether #AC delivery is currently armed.
func (p *Processor) AlignmentCheckingLive() bool { return p.alignmentCheckLive }

// AttachMemory binds the processor's physical and (optionally nil) linear
// backends. Called once at construction; Reset does not rebind.
func (p *Processor) AttachMemory(physical PhysicalAddressSpace, linear LinearAddressSpace) {
	p.spaces.physical = physical
	p.spaces.linear = linear
	p.mem = physical
}
