package x86

// Interrupt/exception delivery (C8, spec.md §4.8). DeliverInterrupt is the
// single entry point RunBlock's recover() calls with a caught
// *ProcessorException, and that Processor's own hardware-IRQ poll calls
// directly for external vectors; both paths converge here so the double/
// triple-fault escalation logic only has to live in one place.

// DeliverInterrupt dispatches vector `v` (with optional error code) against
// the current mode: real-mode IVT, VM86 (which may bounce the interrupt
// out to a protected-mode monitor), or protected-mode IDT gates. It takes
// and releases the rollback snapshot itself, so callers never see the
// escalation machinery.
func (p *Processor) DeliverInterrupt(ex *ProcessorException) {
	if p.rollback != nil {
		p.handleFaultDuringDelivery(ex)
		return
	}

	p.rollback = &snapshot{eip: p.eip, cs: p.cs.clone(), ss: p.ss.clone(), esp: p.Regs.ESP(), vector: ex.Vector}
	defer func() { p.rollback = nil }()

	p.deliverOnce(ex)
}

// deliverOnce performs exactly one delivery attempt without re-entrant
// double-fault bookkeeping; handleFaultDuringDelivery re-enters it once
// escalated to #DF.
func (p *Processor) deliverOnce(ex *ProcessorException) {
	switch p.mode {
	case ModeReal:
		p.deliverReal(ex)
	case ModeVM86:
		p.deliverVM86(ex)
	default:
		p.deliverProtected(ex)
	}
}

// handleFaultDuringDelivery implements spec.md §4.8's escalation table: a
// second fault raised while delivering the first either combines into #DF
// (if the combination table says so), or — if the first fault WAS already
// #DF — escalates straight to a triple fault (processor reset).
func (p *Processor) handleFaultDuringDelivery(second *ProcessorException) {
	first := p.rollback.vector

	if first == VectorDF {
		p.tripleFault()
		return
	}

	if !combinesToDoubleFault(first, second.Vector) {
		// Not a combining pair: the second fault simply replaces the
		// first and delivery is retried once (spec.md §4.8).
		p.restoreRollback()
		p.rollback.vector = second.Vector
		p.deliverOnce(second)
		return
	}

	p.restoreRollback()
	p.rollback.vector = VectorDF
	df := NewFaultWithCode(VectorDF, 0)
	p.deliverOnce(df)
}

// restoreRollback undoes any partial stack/segment writes the failed
// delivery attempt made, putting the processor back at the state captured
// just before delivery began (spec.md §4.8).
func (p *Processor) restoreRollback() {
	p.eip = p.rollback.eip
	p.cs = p.rollback.cs
	p.ss = p.rollback.ss
	p.Regs.SetESP(p.rollback.esp)
}

// tripleFault is unrecoverable within this core: spec.md §4.8 says it
// resets the processor. It reports the event through the configured
// Logger, then runs Reset and Start, so the Processor resumes in real mode
// at F000:FFF0 in the started state.
func (p *Processor) tripleFault() {
	p.cfg.Logger.Printf("x86: triple fault, resetting processor")
	p.rollback = nil
	p.Reset()
	p.Start()
}

// deliverReal implements real-mode interrupt dispatch through the IVT at
// physical address 0: each entry is a 4-byte CS:IP far pointer (spec.md
// §4.8). No error code is ever pushed in real mode.
func (p *Processor) deliverReal(ex *ProcessorException) {
	entry := uint32(ex.Vector) * 4
	ip := p.spaces.physical.GetWord(entry)
	cs := p.spaces.physical.GetWord(entry + 2)

	p.Push16(uint16(p.flags.EFlags()))
	p.Push16(p.cs.GetSelector())
	p.Push16(p.eip16ForPush(ex))

	p.flags.SetIF(false)
	p.flags.SetTF(false)
	p.cs = NewRealModeSegment(cs, p.spaces.physical)
	p.eip = uint32(ip)
}

// eip16ForPush returns the 16-bit return address to push for a real-mode
// delivery: the low 16 bits of the current EIP. ex is not consulted; for a
// fault inside a block, RunBlock's fixupEIPAfterFault has already placed
// EIP on the faulting or the next instruction before delivery starts.
func (p *Processor) eip16ForPush(ex *ProcessorException) uint16 {
	return uint16(p.eip)
}

// deliverVM86 implements the VM86-monitor bounce: by default, interrupts
// raised while in virtual-8086 mode are redirected to the protected-mode
// monitor via a mode switch rather than serviced in place (spec.md §4.8);
// this core signals that by raising a ModeSwitch to protected mode after
// pushing the nine-dword VM86 frame, leaving actual vector
// dispatch to the monitor's own IDT-driven handler on its next block.
func (p *Processor) deliverVM86(ex *ProcessorException) {
	p.pushVM86Frame()
	p.convertSegmentsToProtectedMode()
	panic(&ModeSwitch{Target: ModeProtected})
}

// pushVM86Frame pushes the nine-dword frame a VM86 exit leaves, in this
// order: GS, FS, DS, ES, SS, ESP, EFLAGS, CS, EIP (spec.md §4.8). The
// dwords go onto the current SS:ESP; no stack switch happens here.
func (p *Processor) pushVM86Frame() {
	p.Push32(uint32(p.gs.GetSelector()))
	p.Push32(uint32(p.fs.GetSelector()))
	p.Push32(uint32(p.ds.GetSelector()))
	p.Push32(uint32(p.es.GetSelector()))
	p.Push32(uint32(p.ss.GetSelector()))
	p.Push32(p.Regs.ESP())
	p.Push32(p.flags.EFlags())
	p.Push32(uint32(p.cs.GetSelector()))
	p.Push32(p.eip)
}

// deliverProtected implements protected-mode IDT gate dispatch: interrupt
// gates clear IF, trap gates don't; both push EFLAGS:CS:EIP (plus an error
// code for the vectors that carry one) and may switch stacks exactly like
// an inner-privilege call-gate transfer (spec.md §4.8).
func (p *Processor) deliverProtected(ex *ProcessorException) {
	gate, gex := p.getIDTEntry(ex.Vector)
	if gex != nil {
		p.handleFaultDuringDelivery(gex)
		return
	}

	if gate.kind == SegTaskGate {
		target, tex := p.getSegment(gate.GateTargetSelector())
		if tex != nil {
			p.handleFaultDuringDelivery(tex)
			return
		}
		p.switchTask(target, gate.GateTargetSelector(), true)
		if ex.HasErrorCode {
			p.Push32(uint32(ex.ErrorCode))
		}
		return
	}

	// A software INT n through a too-low-DPL gate is #GP; that check is
	// the caller's responsibility (spec.md §4.8) since hardware and
	// exception deliveries must bypass it entirely.

	target, tex := p.getSegment(gate.GateTargetSelector())
	if tex != nil {
		p.handleFaultDuringDelivery(tex)
		return
	}

	is32 := gate.kind == SegInterruptGate32 || gate.kind == SegTrapGate32
	newDPL := target.GetDPL()
	cpl := p.control.CPL()

	oldSS, oldESP, oldCS, oldEIP, oldFlags := p.ss, p.Regs.ESP(), p.cs, p.eip, p.flags.EFlags()

	if newDPL < cpl {
		newSS, newESP := p.loadStackFromTSS(newDPL)
		p.ss = newSS
		p.Regs.SetESP(newESP)
		p.pushInterruptFrame(is32, oldSS.GetSelector(), oldESP, oldFlags, oldCS.GetSelector(), oldEIP, ex)
	} else {
		p.pushInterruptFrame(is32, 0, 0, oldFlags, oldCS.GetSelector(), oldEIP, ex)
	}

	target.Rebind(p.currentMemFor(p.mode))
	p.loadCS(target, gate.GateTargetOffset(), newDPL)

	if gate.kind == SegInterruptGate16 || gate.kind == SegInterruptGate32 {
		p.flags.SetIF(false)
	}
	p.flags.SetTF(false)
	p.flags.SetNT(false)
	p.flags.SetVMRaw(false)
}

// pushInterruptFrame pushes the return frame for a protected-mode gate
// delivery: optionally SS:ESP (outer-privilege only), then
// EFLAGS:CS:EIP, then the error code if the vector carries one.
func (p *Processor) pushInterruptFrame(is32 bool, outerSS uint16, outerESP uint32, eflags uint32, cs uint16, eip uint32, ex *ProcessorException) {
	if outerSS != 0 {
		if is32 {
			p.Push32(uint32(outerSS))
			p.Push32(outerESP)
		} else {
			p.Push16(outerSS)
			p.Push16(uint16(outerESP))
		}
	}
	if is32 {
		p.Push32(eflags)
		p.Push32(uint32(cs))
		p.Push32(eip)
		if ex.HasErrorCode {
			p.Push32(uint32(ex.ErrorCode))
		}
	} else {
		p.Push16(uint16(eflags))
		p.Push16(cs)
		p.Push16(uint16(eip))
		if ex.HasErrorCode {
			p.Push16(ex.ErrorCode)
		}
	}
}

// PageFault raises #PF with CR2 populated from the linear backend's last
// walked address, and the standard error-code bit layout (P/W/U).
func (p *Processor) PageFault(present, write, user bool) {
	if lin, ok := p.spaces.linear.(LinearAddressSpace); ok && lin != nil {
		p.control.SetCR2(lin.GetLastWalkedAddress())
	}
	var code uint16
	if present {
		code |= 1
	}
	if write {
		code |= 2
	}
	if user {
		code |= 4
	}
	raise(NewFaultWithCode(VectorPF, code))
}
