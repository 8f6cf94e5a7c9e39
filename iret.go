package x86

// Iret implements IRET/IRETD across every mode this core supports (spec.md
// §4.5/§4.8): real mode, VM86 (where IRET always returns within VM86; the
// popped EFLAGS.VM bit is ignored), and protected mode
// (same-privilege, outer-privilege, NT-chained task return).
func (p *Processor) Iret(is32 bool) {
	if p.mode == ModeReal {
		p.iretReal(is32)
		return
	}
	if p.mode == ModeVM86 {
		p.iretVM86(is32)
		return
	}

	if p.flags.NT() {
		p.iretFromTask()
		return
	}

	var offset, eflagsRaw uint32
	var selector uint16
	if is32 {
		offset = p.Pop32()
		selector = uint16(p.Pop32())
		eflagsRaw = p.Pop32()
	} else {
		offset = uint32(p.Pop16())
		selector = p.Pop16()
		eflagsRaw = uint32(p.Pop16())
	}

	// Returning to VM86 mode: only valid from CPL 0, signaled by
	// EFLAGS.VM being set in the popped image (spec.md §4.8).
	if eflagsRaw&EFlagVM != 0 && p.control.CPL() == 0 {
		p.iretToVM86(selector, offset, eflagsRaw)
		return
	}

	target, ex := p.getSegment(selector)
	if ex != nil {
		raise(ex)
	}
	if target.GetRPL() < p.control.CPL() {
		raise(gpFault(selector))
	}

	mask := eflagsUserMask(p.control.CPL(), p.flags.IOPL())
	if target.GetRPL() == p.control.CPL() {
		p.loadCS(target, offset, p.control.CPL())
		p.SetEFlagsWithSideEffects(eflagsRaw, mask)
		return
	}

	outerESP, outerSel := p.Pop32(), uint16(p.Pop32())
	newCPL := target.GetRPL()
	outerSS := p.validateOuterStack(outerSel, newCPL)

	p.loadCS(target, offset, newCPL)
	p.SetEFlagsWithSideEffects(eflagsRaw, mask)
	p.ss = outerSS
	p.Regs.SetESP(outerESP)
	p.invalidateStaleSegments(newCPL)
}

// eflagsUserMask returns the bits IRET is allowed to change: never VM (that
// path is handled separately above) or RF (spec.md §4.8); IF only when
// CPL <= IOPL; IOPL, VIF and VIP only at CPL 0.
func eflagsUserMask(cpl, iopl uint8) uint32 {
	mask := uint32(0xFFFFFFFF) &^ uint32(EFlagVM|EFlagRF)
	if cpl > iopl {
		mask &^= EFlagIF
	}
	if cpl != 0 {
		mask &^= EFlagIOPL | EFlagVIF | EFlagVIP
	}
	return mask
}

func (p *Processor) iretReal(is32 bool) {
	var offset, eflagsRaw uint32
	var selector uint16
	if is32 {
		offset = p.Pop32()
		selector = uint16(p.Pop32())
		eflagsRaw = p.Pop32()
	} else {
		offset = uint32(p.Pop16())
		selector = p.Pop16()
		eflagsRaw = uint32(p.Pop16())
	}
	p.cs = NewRealModeSegment(selector, p.currentMemFor(ModeReal))
	p.eip = offset
	p.SetEFlagsWithSideEffects(eflagsRaw, 0xFFFFFFFF)
}

// iretVM86 handles IRET executed while already in virtual-8086 mode: a
// plain 16-bit-style return within VM86 (spec.md §4.8); VM86 code cannot
// pop a VM-set EFLAGS image to enter a nested VM86 session.
func (p *Processor) iretVM86(is32 bool) {
	var offset, eflagsRaw uint32
	var selector uint16
	if is32 {
		offset = p.Pop32()
		selector = uint16(p.Pop32())
		eflagsRaw = p.Pop32()
	} else {
		offset = uint32(p.Pop16())
		selector = p.Pop16()
		eflagsRaw = uint32(p.Pop16())
	}
	p.cs = NewVM86Segment(selector, p.currentMemFor(ModeVM86))
	p.eip = offset
	p.SetEFlagsWithSideEffects(eflagsRaw, 0xFFFFFFFF&^EFlagVM)
}

// iretToVM86 restores the VM86 return frame (spec.md §4.8's VM86
// entry-frame layout: ES, DS, FS, GS above SS:ESP in addition to the
// standard EIP:CS:EFLAGS:ESP:SS). Iret has already popped EIP, CS and
// EFLAGS and passes them in; this function pops ESP, SS and the four extra
// segment selectors.
func (p *Processor) iretToVM86(csSelector uint16, offset, eflagsRaw uint32) {
	esp := p.Pop32()
	ss := uint16(p.Pop32())
	es := uint16(p.Pop32())
	ds := uint16(p.Pop32())
	fs := uint16(p.Pop32())
	gs := uint16(p.Pop32())

	mem := p.currentMemFor(ModeVM86)
	p.cs = NewVM86Segment(csSelector, mem)
	p.eip = offset
	p.ss = NewVM86Segment(ss, mem)
	p.Regs.SetESP(esp)
	p.es = NewVM86Segment(es, mem)
	p.ds = NewVM86Segment(ds, mem)
	p.fs = NewVM86Segment(fs, mem)
	p.gs = NewVM86Segment(gs, mem)

	p.mode = ModeVM86
	p.control.setCPL(3)
	p.flags.SetEFlags(eflagsRaw, 0xFFFFFFFF)
	panic(&ModeSwitch{Target: ModeVM86})
}

// iretFromTask implements the NT-chained task return (spec.md §4.7/§4.8):
// IRET with EFLAGS.NT set switches back to the task named by the current
// TSS's back link, rather than popping a return frame off the stack.
func (p *Processor) iretFromTask() {
	var backLink uint16
	if p.tr.kind == SegTSS32 {
		backLink = uint16(p.tssRead32(tss32Link))
	} else {
		backLink = p.tssRead16(tss16Link)
	}
	target, ex := p.getSegment(backLink)
	if ex != nil {
		raise(tsFault(backLink))
	}
	p.setTSSBusy(p.tr.GetSelector(), false)
	p.switchTask(target, backLink, false)
}

// Sysenter/Sysexit implement the fast system-call pair (SPEC_FULL.md §5):
// sysenter loads CS, EIP and ESP from the three MSRs and SS from the
// selector after CS (CS+8), forcing CPL to 0;
// sysexit returns to CPL 3 using CS+16/SS+24 selector offsets from the
// sysenter CS MSR, per the documented convention those MSRs assume.
func (p *Processor) Sysenter() {
	csSel := uint16(p.control.GetMSR(MSRSysenterCS))
	if csSel == 0 {
		raise(gpFault(0))
	}
	eip := uint32(p.control.GetMSR(MSRSysenterEIP))
	esp := uint32(p.control.GetMSR(MSRSysenterESP))

	mem := p.currentMemFor(p.mode)
	codeSeg, ex := p.getSegment(csSel)
	if ex != nil {
		raise(gpFault(csSel))
	}
	codeSeg.Rebind(mem)
	stackSeg, ex := p.getSegment(csSel + 8)
	if ex != nil {
		raise(gpFault(csSel + 8))
	}
	stackSeg.Rebind(mem)

	p.loadCS(codeSeg, eip, 0)
	p.ss = stackSeg
	p.Regs.SetESP(esp)
	p.flags.SetIF(false)
	p.flags.SetVMRaw(false)
}

func (p *Processor) Sysexit() {
	csSel := uint16(p.control.GetMSR(MSRSysenterCS))
	eip := p.Regs.EDX()
	esp := p.Regs.ECX()

	mem := p.currentMemFor(p.mode)
	codeSel := csSel + 16 + 3
	stackSel := csSel + 24 + 3
	codeSeg, ex := p.getSegment(codeSel)
	if ex != nil {
		raise(gpFault(codeSel))
	}
	codeSeg.Rebind(mem)
	stackSeg, ex := p.getSegment(stackSel)
	if ex != nil {
		raise(gpFault(stackSel))
	}
	stackSeg.Rebind(mem)

	p.loadCS(codeSeg, eip, 3)
	p.ss = stackSeg
	p.Regs.SetESP(esp)
}
