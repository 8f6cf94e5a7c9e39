package x86

// switchTaskViaGate resolves a task gate's target TSS selector and defers
// to switchTask; isCall distinguishes jmp (no back link recorded) from
// call/int (switchTask writes the outgoing TSS selector into the incoming
// TSS's back-link field and sets NT, spec.md §4.7 step 1).
func (p *Processor) switchTaskViaGate(gate *Segment, isCall bool) {
	if gate.GetDPL() < p.control.CPL() && gate.GetRPL() > p.control.CPL() {
		raise(gpFault(gate.GetSelector()))
	}
	target, ex := p.getSegment(gate.GateTargetSelector())
	if ex != nil {
		raise(ex)
	}
	p.switchTask(target, gate.GateTargetSelector(), isCall)
}

// switchTask implements the 11-step TSS-based task switch of spec.md §4.7:
// save the outgoing context into the outgoing TSS, validate and load the
// incoming TSS's context, flip busy bits, clear breakpoints, and commit.
// The new task's EFLAGS.NT is set only on the nested (call/int) form.
func (p *Processor) switchTask(targetTSS *Segment, tssSelector uint16, nested bool) {
	if targetTSS.kind != SegTSS32 && targetTSS.kind != SegTSS16 {
		raise(gpFault(tssSelector))
	}
	if targetTSS.IsBusy() && !nested {
		// A jmp/call into an already-busy TSS is only valid for the
		// IRET-back-out path (handled by IretToTask), never here.
		raise(gpFault(tssSelector))
	}

	outgoingSel := p.tr.GetSelector()

	// Step 1-3: save outgoing context into the CURRENT TSS.
	if p.tr.kind == SegTSS32 {
		out := p.readTSS32()
		out.eip, out.eflags = p.eip, p.flags.EFlags()
		out.eax, out.ecx, out.edx, out.ebx = p.Regs.EAX(), p.Regs.ECX(), p.Regs.EDX(), p.Regs.EBX()
		out.esp, out.ebp, out.esi, out.edi = p.Regs.ESP(), p.Regs.EBP(), p.Regs.ESI(), p.Regs.EDI()
		out.es, out.cs, out.ss = p.es.GetSelector(), p.cs.GetSelector(), p.ss.GetSelector()
		out.ds, out.fs, out.gs = p.ds.GetSelector(), p.fs.GetSelector(), p.gs.GetSelector()
		p.writeTSS32(out)
	} else {
		p.tssWrite16(tss16IP, uint16(p.eip))
		p.tssWrite16(tss16FLAGS, uint16(p.flags.EFlags()))
		p.tssWrite16(tss16AX, uint16(p.Regs.EAX()))
		p.tssWrite16(tss16CX, uint16(p.Regs.ECX()))
		p.tssWrite16(tss16DX, uint16(p.Regs.EDX()))
		p.tssWrite16(tss16BX, uint16(p.Regs.EBX()))
		p.tssWrite16(tss16SP, uint16(p.Regs.ESP()))
		p.tssWrite16(tss16BP, uint16(p.Regs.EBP()))
		p.tssWrite16(tss16SI, uint16(p.Regs.ESI()))
		p.tssWrite16(tss16DI, uint16(p.Regs.EDI()))
		p.tssWrite16(tss16ES, p.es.GetSelector())
		p.tssWrite16(tss16CS, p.cs.GetSelector())
		p.tssWrite16(tss16SS, p.ss.GetSelector())
		p.tssWrite16(tss16DS, p.ds.GetSelector())
	}

	// Step 2 & 10: clear outgoing busy bit only for a jmp (not nested);
	// set the incoming busy bit unconditionally.
	if !nested {
		p.setTSSBusy(outgoingSel, false)
	}
	p.setTSSBusy(tssSelector, true)

	p.tr = targetTSS
	p.tr.selector = tssSelector

	// Step 4-8: load the incoming context. A 32-bit incoming TSS into an
	// outgoing 32-bit context is the common path; mixed 16/32 switches
	// zero-extend narrower fields, matching how real hardware treats a
	// 16-bit TSS's word-sized registers.
	if targetTSS.kind == SegTSS32 {
		in := p.readTSS32()
		if nested {
			p.tssWrite32(tss32Link, uint32(outgoingSel))
		}
		p.SetCR3(in.cr3)
		p.eip = in.eip
		p.flags.SetEFlags(in.eflags, 0xFFFFFFFF)
		if nested {
			p.flags.SetNT(true)
		}
		p.Regs.SetEAX(in.eax)
		p.Regs.SetECX(in.ecx)
		p.Regs.SetEDX(in.edx)
		p.Regs.SetEBX(in.ebx)
		p.Regs.SetESP(in.esp)
		p.Regs.SetEBP(in.ebp)
		p.Regs.SetESI(in.esi)
		p.Regs.SetEDI(in.edi)
		p.loadLDT(in.ldt)
		p.loadTaskSegment(&p.es, in.es)
		p.loadTaskSegment(&p.ds, in.ds)
		p.loadTaskSegment(&p.fs, in.fs)
		p.loadTaskSegment(&p.gs, in.gs)
		p.loadTaskStackSegment(in.ss)
		p.loadTaskCodeSegment(in.cs)
	} else {
		if nested {
			p.tssWrite16(tss16Link, outgoingSel)
		}
		p.eip = uint32(p.tssRead16(tss16IP))
		p.flags.SetEFlags(uint32(p.tssRead16(tss16FLAGS)), 0xFFFF)
		if nested {
			p.flags.SetNT(true)
		}
		p.Regs.Set(RegAX, uint32(p.tssRead16(tss16AX)))
		p.Regs.Set(RegCX, uint32(p.tssRead16(tss16CX)))
		p.Regs.Set(RegDX, uint32(p.tssRead16(tss16DX)))
		p.Regs.Set(RegBX, uint32(p.tssRead16(tss16BX)))
		p.Regs.Set(RegSP, uint32(p.tssRead16(tss16SP)))
		p.Regs.Set(RegBP, uint32(p.tssRead16(tss16BP)))
		p.Regs.Set(RegSI, uint32(p.tssRead16(tss16SI)))
		p.Regs.Set(RegDI, uint32(p.tssRead16(tss16DI)))
		p.loadLDT(p.tssRead16(tss16LDT))
		p.loadTaskSegment(&p.es, p.tssRead16(tss16ES))
		p.loadTaskSegment(&p.ds, p.tssRead16(tss16DS))
		p.loadTaskStackSegment(p.tssRead16(tss16SS))
		p.loadTaskCodeSegment(p.tssRead16(tss16CS))
	}

	// Step 9: clear DR7 breakpoint enables on the new task.
	p.control.ClearBreakpoints()
	p.control.setCPL(p.cs.GetRPL())
}

// setTSSBusy flips the busy bit of the GDT descriptor named by `selector`.
// Task-switch busy bits only ever live in the GDT (spec.md §4.7 step 2/10).
func (p *Processor) setTSSBusy(selector uint16, busy bool) {
	index := selector >> 3
	_, hi, ok := p.rawDescriptor(p.tables.gdt, index)
	if !ok {
		return
	}
	access := byte(hi>>8) & 0xFF
	if busy {
		access |= 0x02
	} else {
		access &^= 0x02
	}
	p.writeDescriptorAccessByte(p.tables.gdt, index, access)
}

// loadLDT reloads LDTR from a selector pulled out of a TSS, raising #TS
// (not #GP) on an invalid selector per spec.md §4.7 step 6's "faults
// during task-switch context load are reported against the new task".
func (p *Processor) loadLDT(selector uint16) {
	if selector&0xFFFC == 0 {
		p.tables.ldt = NewNullSegment()
		return
	}
	seg, ex := p.getSegment(selector)
	if ex != nil || seg.kind != SegLDT {
		raise(tsFault(selector))
	}
	p.tables.ldt = seg
}

// loadTaskSegment loads a data segment register from a TSS-sourced
// selector, faulting #TS on an invalid or non-data descriptor (a system
// descriptor or an execute-only code segment).
func (p *Processor) loadTaskSegment(reg **Segment, selector uint16) {
	if selector&0xFFFC == 0 {
		*reg = NewNullSegment()
		return
	}
	seg, ex := p.getSegment(selector)
	if ex != nil || seg.IsSystem() || !seg.IsReadable() {
		raise(tsFault(selector))
	}
	seg.Rebind(p.currentMemFor(p.mode))
	*reg = seg
}

func (p *Processor) loadTaskStackSegment(selector uint16) {
	seg, ex := p.getSegment(selector)
	if ex != nil || seg.kind != SegData {
		raise(tsFault(selector))
	}
	seg.Rebind(p.currentMemFor(p.mode))
	p.ss = seg
}

func (p *Processor) loadTaskCodeSegment(selector uint16) {
	seg, ex := p.getSegment(selector)
	if ex != nil || (seg.kind != SegCodeNonConforming && seg.kind != SegCodeConforming) {
		raise(tsFault(selector))
	}
	seg.Rebind(p.currentMemFor(p.mode))
	p.cs = seg
}
