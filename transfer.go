package x86

// Control-transfer engine (C7, spec.md §4.5). Each entry point here is
// named after the instruction it implements; all of them may panic with a
// *ProcessorException (a privilege/limit/type fault) or a *ModeSwitch (VM86
// entry/exit via a task/TSS gate — not expected on the call/jmp paths, only
// on iret).

// JmpNear / CallNear / RetNear operate entirely within the current code
// segment and never touch the descriptor machinery; they're simple enough
// that the decoder-level Instruction implementations can inline them
// directly against Processor's EIP/stack helpers; this file only holds
// the far forms, which is where the real taxonomy dispatch lives.

// JmpFar implements JMP ptr16:16 / ptr16:32 (spec.md §4.5). is32 selects
// the operand size used to read the immediate offset (not relevant here,
// since offset is already decoded by the caller).
func (p *Processor) JmpFar(selector uint16, offset uint32, is32 bool) {
	target, ex := p.getSegment(selector)
	if ex != nil {
		raise(ex)
	}

	switch target.kind {
	case SegCodeNonConforming:
		p.checkCodeSegmentAccess(target, false)
		p.loadCS(target, offset, target.GetRPL())
	case SegCodeConforming:
		if target.GetDPL() > p.control.CPL() {
			raise(gpFault(selector))
		}
		p.loadCS(target, offset, p.control.CPL())
	case SegCallGate16, SegCallGate32:
		p.jmpThroughCallGate(target, selector)
	case SegTaskGate:
		p.switchTaskViaGate(target, false)
	case SegTSS16, SegTSS32:
		p.switchTask(target, selector, false)
	default:
		raise(gpFault(selector))
	}
}

// checkCodeSegmentAccess applies the non-conforming jmp/call privilege
// check of spec.md §4.5: DPL must equal CPL, and (for call, not jmp) RPL
// must not exceed CPL.
func (p *Processor) checkCodeSegmentAccess(target *Segment, isCall bool) {
	cpl := p.control.CPL()
	if target.GetDPL() != cpl {
		raise(gpFault(target.GetSelector()))
	}
	if isCall && target.GetRPL() > cpl {
		raise(gpFault(target.GetSelector()))
	}
}

// loadCS commits a new CS:EIP pair, updating CPL to match the (possibly
// adjusted) RPL the caller computed.
func (p *Processor) loadCS(target *Segment, offset uint32, cpl uint8) {
	target.Rebind(p.currentMemFor(p.mode))
	target.rpl = cpl
	target.selector = (target.selector &^ 3) | uint16(cpl)
	p.cs = target
	p.eip = offset
	p.control.setCPL(cpl)
}

// jmpThroughCallGate resolves a call-gate's target descriptor and jumps to
// it without a privilege-level change (jmp through a gate never switches
// stacks, spec.md §4.5 step 3's "jmp never changes CPL").
func (p *Processor) jmpThroughCallGate(gate *Segment, gateSelector uint16) {
	if gate.GetDPL() < p.control.CPL() {
		raise(gpFault(gateSelector))
	}
	target, ex := p.getSegment(gate.GateTargetSelector())
	if ex != nil {
		raise(ex)
	}
	if target.GetDPL() > p.control.CPL() {
		raise(gpFault(gate.GateTargetSelector()))
	}
	p.loadCS(target, gate.GateTargetOffset(), p.control.CPL())
}

// CallFar implements CALL ptr16:16 / ptr16:32 through every target-
// descriptor shape spec.md §4.5 enumerates.
func (p *Processor) CallFar(selector uint16, offset uint32, is32 bool) {
	target, ex := p.getSegment(selector)
	if ex != nil {
		raise(ex)
	}

	switch target.kind {
	case SegCodeNonConforming:
		p.checkCodeSegmentAccess(target, true)
		p.pushReturnAddress(is32)
		p.loadCS(target, offset, target.GetRPL())
	case SegCodeConforming:
		if target.GetDPL() > p.control.CPL() {
			raise(gpFault(selector))
		}
		p.pushReturnAddress(is32)
		p.loadCS(target, offset, p.control.CPL())
	case SegCallGate16, SegCallGate32:
		p.callThroughGate(target, selector, is32)
	case SegTaskGate:
		p.switchTaskViaGate(target, true)
	case SegTSS16, SegTSS32:
		p.switchTask(target, selector, true)
	default:
		raise(gpFault(selector))
	}
}

func (p *Processor) pushReturnAddress(is32 bool) {
	if is32 {
		p.Push32(uint32(p.cs.GetSelector()))
		p.Push32(p.eip)
	} else {
		p.Push16(p.cs.GetSelector())
		p.Push16(uint16(p.eip))
	}
}

// callThroughGate implements the call-gate algorithm of spec.md §4.5 step
// 3: same-privilege call-gate transfer is a plain far call to the gate's
// target; more-privileged (numerically lower DPL) transfer switches stacks
// via the current TSS and copies gateParamCount stack parameters across.
// A conforming target is handled on the same-privilege path whatever its
// DPL, so a conforming target never causes a stack switch here (see the
// open items in DESIGN.md).
func (p *Processor) callThroughGate(gate *Segment, gateSelector uint16, callerIs32 bool) {
	if gate.GetDPL() < p.control.CPL() {
		raise(gpFault(gateSelector))
	}
	target, ex := p.getSegment(gate.GateTargetSelector())
	if ex != nil {
		raise(ex)
	}
	targetDPL := target.GetDPL()
	cpl := p.control.CPL()
	is32 := gate.kind == SegCallGate32

	if targetDPL == cpl || target.IsConforming() {
		p.pushReturnAddress(callerIs32)
		p.loadCS(target, gate.GateTargetOffset(), cpl)
		return
	}
	if targetDPL > cpl {
		raise(gpFault(gateSelector))
	}

	// More-privileged: switch to the new CPL's stack from the TSS, copy
	// params, then push the OUTER ss:esp and cs:eip (spec.md §4.5 step 3d).
	newSS, newESP := p.loadStackFromTSS(targetDPL)
	oldSS, oldESP := p.ss, p.Regs.ESP()

	p.ss = newSS
	p.Regs.SetESP(newESP)

	params := make([]uint32, gate.GateParamCount())
	for i := range params {
		if is32 {
			addr, ex := oldSS.TranslateReadAddr(oldESP + uint32(i)*4)
			if ex != nil {
				raise(ssFault(oldSS.GetSelector()))
			}
			params[i] = oldSS.mem.GetDoubleWord(addr)
		} else {
			addr, ex := oldSS.TranslateReadAddr(oldESP + uint32(i)*2)
			if ex != nil {
				raise(ssFault(oldSS.GetSelector()))
			}
			params[i] = uint32(oldSS.mem.GetWord(addr))
		}
	}

	if is32 {
		p.Push32(uint32(oldSS.GetSelector()))
		p.Push32(oldESP)
	} else {
		p.Push16(oldSS.GetSelector())
		p.Push16(uint16(oldESP))
	}
	for i := len(params) - 1; i >= 0; i-- {
		if is32 {
			p.Push32(params[i])
		} else {
			p.Push16(uint16(params[i]))
		}
	}
	p.pushReturnAddress(is32)
	p.loadCS(target, gate.GateTargetOffset(), targetDPL)
}

// loadStackFromTSS reads the SS:ESP pair for privilege level `level` out of
// the current TSS (spec.md §4.5/§4.7), resolving the selector to a Segment.
func (p *Processor) loadStackFromTSS(level uint8) (*Segment, uint32) {
	if p.tr.kind != SegTSS32 && p.tr.kind != SegTSS16 {
		raise(tsFault(p.tr.GetSelector()))
	}
	sel, esp := p.readTSSStackPointer(level)
	seg, ex := p.getSegment(sel)
	if ex != nil {
		raise(tsFault(p.tr.GetSelector()))
	}
	seg.Rebind(p.currentMemFor(p.mode))
	return seg, esp
}

// RetFar implements RET far (same-privilege and outer-privilege forms,
// spec.md §4.5). The conforming-target outer-privilege variant is an open
// item; see DESIGN.md.
func (p *Processor) RetFar(is32 bool, stackAdjust uint16) {
	var offset uint32
	var selector uint16
	if is32 {
		offset = p.Pop32()
		selector = uint16(p.Pop32())
	} else {
		offset = uint32(p.Pop16())
		selector = p.Pop16()
	}

	target, ex := p.getSegment(selector)
	if ex != nil {
		raise(ex)
	}
	if target.GetRPL() < p.control.CPL() {
		raise(gpFault(selector))
	}

	if target.GetRPL() == p.control.CPL() {
		p.loadCS(target, offset, p.control.CPL())
		p.adjustESP(int32(stackAdjust))
		return
	}

	// Outer-privilege return: pop the outer SS:ESP after discarding the
	// adjust bytes, then switch to the less-privileged stack.
	p.adjustESP(int32(stackAdjust))
	var outerESP uint32
	var outerSel uint16
	if is32 {
		outerESP = p.Pop32()
		outerSel = uint16(p.Pop32())
	} else {
		outerESP = uint32(p.Pop16())
		outerSel = p.Pop16()
	}
	newCPL := target.GetRPL()
	outerSS := p.validateOuterStack(outerSel, newCPL)

	p.loadCS(target, offset, newCPL)
	p.ss = outerSS
	p.Regs.SetESP(outerESP)
	p.adjustESP(int32(stackAdjust))
	p.invalidateStaleSegments(newCPL)
}

// validateOuterStack re-validates a just-popped outer-privilege SS:ESP
// selector before switching to it (spec.md §4.5 step 4 / §4.8's outer-
// privilege IRET path): its RPL and the descriptor's DPL must both equal
// newCPL, and it must resolve to a writable data segment. getSegment already
// raises #NP for a not-present descriptor; RetFar and Iret both pop this
// pair straight off the caller's stack, so nothing else about it has been
// checked yet.
func (p *Processor) validateOuterStack(sel uint16, newCPL uint8) *Segment {
	if sel&0xFFFC == 0 || uint8(sel&3) != newCPL {
		raise(gpFault(sel))
	}
	seg, ex := p.getSegment(sel)
	if ex != nil {
		raise(ex)
	}
	if seg.kind != SegData || !seg.IsWritable() || seg.GetDPL() != newCPL {
		raise(gpFault(sel))
	}
	seg.Rebind(p.currentMemFor(p.mode))
	return seg
}

// invalidateStaleSegments nulls out any of DS/ES/FS/GS that reference a
// data or non-conforming code segment whose DPL is now below newCPL (spec.md
// §4.5 step 4 / §4.8): code at the new, less-privileged level could not
// have loaded that selector itself, so hardware forces a reload before the
// next use rather than leaving a selector loaded that violates the DPL>=CPL
// data-access rule.
func (p *Processor) invalidateStaleSegments(newCPL uint8) {
	for _, reg := range p.dataSegmentRegs() {
		seg := *reg
		if seg.kind != SegData && seg.kind != SegCodeNonConforming {
			continue
		}
		if seg.GetDPL() < newCPL {
			*reg = NewNullSegment()
		}
	}
}
