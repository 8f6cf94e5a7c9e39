package x86

// Stack operations (C6, spec.md §4.4). SS.B (the default-size bit on the
// stack segment) selects whether ESP or just SP is the address-size half
// updated by push/pop in protected mode; real mode and VM86 always behave
// as 16-bit stacks (the same rule the teacher's push/pop helpers apply via
// a precomputed "stack32" flag).

// stackAddressSize32 reports whether the current SS uses 32-bit stack
// addressing (SS.B), consulting the live segment rather than a cached flag
// so it stays correct across mode switches and stack-segment reloads.
func (p *Processor) stackAddressSize32() bool {
	switch p.ss.kind {
	case SegReal, SegVM86:
		return false
	default:
		return p.ss.defaultSize
	}
}

// adjustESP adds delta (may be negative, passed as uint32 two's complement)
// to the stack pointer, wrapping within 16 or 32 bits per stackAddressSize32,
// and returns the pre-adjustment pointer value used to address the pushed/
// popped cell (so callers push at the new top, pop from the old top).
func (p *Processor) adjustESP(delta int32) (before uint32) {
	if p.stackAddressSize32() {
		before = p.Regs.ESP()
		p.Regs.SetESP(uint32(int64(before) + int64(delta)))
		return before
	}
	sp := uint16(p.Regs.ESP())
	before = uint32(sp)
	p.Regs.Set(RegSP, uint32(uint16(int32(sp)+delta)))
	return before
}

// Push32 decrements ESP/SP by 4 and stores v; a bounds violation raises
// #SS(0) (spec.md §4.4's stack-segment fault rule) rather than #GP, since
// the faulting segment is always SS here.
func (p *Processor) Push32(v uint32) {
	p.adjustESP(-4)
	addr, ex := p.ss.TranslateWriteAddr(p.stackTop())
	if ex != nil {
		raise(ssFault(0))
	}
	p.ss.mem.SetDoubleWord(addr, v)
}

// Push16 decrements ESP/SP by 2 and stores v.
func (p *Processor) Push16(v uint16) {
	p.adjustESP(-2)
	addr, ex := p.ss.TranslateWriteAddr(p.stackTop())
	if ex != nil {
		raise(ssFault(p.ss.GetSelector()))
	}
	p.ss.mem.SetWord(addr, v)
}

// Pop32 reads a dword from [SS:ESP] then increments ESP/SP by 4.
func (p *Processor) Pop32() uint32 {
	top := p.stackTop()
	addr, ex := p.ss.TranslateReadAddr(top)
	if ex != nil {
		raise(ssFault(p.ss.GetSelector()))
	}
	v := p.ss.mem.GetDoubleWord(addr)
	p.adjustESP(4)
	return v
}

// Pop16 reads a word from [SS:ESP] then increments ESP/SP by 2.
func (p *Processor) Pop16() uint16 {
	top := p.stackTop()
	addr, ex := p.ss.TranslateReadAddr(top)
	if ex != nil {
		raise(ssFault(p.ss.GetSelector()))
	}
	v := p.ss.mem.GetWord(addr)
	p.adjustESP(2)
	return v
}

// stackTop returns the current top-of-stack offset within SS, in whichever
// width (16/32) the stack segment uses.
func (p *Processor) stackTop() uint32 {
	if p.stackAddressSize32() {
		return p.Regs.ESP()
	}
	return uint32(uint16(p.Regs.ESP()))
}

// Pushad pushes EAX, ECX, EDX, EBX, the pre-push ESP, EBP, ESI, EDI, in
// that architectural order (spec.md §4.4).
func (p *Processor) Pushad() {
	temp := p.Regs.ESP()
	p.Push32(p.Regs.EAX())
	p.Push32(p.Regs.ECX())
	p.Push32(p.Regs.EDX())
	p.Push32(p.Regs.EBX())
	p.Push32(temp)
	p.Push32(p.Regs.EBP())
	p.Push32(p.Regs.ESI())
	p.Push32(p.Regs.EDI())
}

// Popad pops EDI, ESI, EBP, (skips the saved ESP slot), EBX, EDX, ECX, EAX.
func (p *Processor) Popad() {
	p.Regs.SetEDI(p.Pop32())
	p.Regs.SetESI(p.Pop32())
	p.Regs.SetEBP(p.Pop32())
	p.adjustESP(4) // discard saved ESP
	p.Regs.SetEBX(p.Pop32())
	p.Regs.SetEDX(p.Pop32())
	p.Regs.SetECX(p.Pop32())
	p.Regs.SetEAX(p.Pop32())
}

// Pusha / Popa are the 16-bit forms, saving/restoring only the low 16 bits
// of each GPR.
func (p *Processor) Pusha() {
	temp := uint16(p.Regs.ESP())
	// spec.md §4.4/§8: an odd SP below 16 can't hold all 8 pushed words
	// without wrapping the low 16-bit stack through zero, so hardware
	// raises #GP(0) before touching memory rather than pushing a
	// corrupted, wrapped-around frame.
	if temp < 16 && temp%2 != 0 {
		raise(gpFault(0))
	}
	p.Push16(uint16(p.Regs.EAX()))
	p.Push16(uint16(p.Regs.ECX()))
	p.Push16(uint16(p.Regs.EDX()))
	p.Push16(uint16(p.Regs.EBX()))
	p.Push16(temp)
	p.Push16(uint16(p.Regs.EBP()))
	p.Push16(uint16(p.Regs.ESI()))
	p.Push16(uint16(p.Regs.EDI()))
}

func (p *Processor) Popa() {
	p.Regs.Set(RegDI, uint32(p.Pop16()))
	p.Regs.Set(RegSI, uint32(p.Pop16()))
	p.Regs.Set(RegBP, uint32(p.Pop16()))
	p.adjustESP(2)
	p.Regs.Set(RegBX, uint32(p.Pop16()))
	p.Regs.Set(RegDX, uint32(p.Pop16()))
	p.Regs.Set(RegCX, uint32(p.Pop16()))
	p.Regs.Set(RegAX, uint32(p.Pop16()))
}

// Enter implements the ENTER frameSize, nestingLevel instruction (spec.md
// §4.4): push EBP; when `nestingLevel & 0x1F` is L > 0, copy L-1 frame
// pointers from the enclosing procedures' stack frames and push the new
// frame pointer; then
// reserve frameSize bytes of locals. is32 selects whether EBP/ESP or
// BP/SP are the operand width used throughout.
func (p *Processor) Enter(frameSize uint16, nestingLevel uint8, is32 bool) {
	level := nestingLevel & 0x1F

	if is32 {
		p.Push32(p.Regs.EBP())
	} else {
		p.Push16(uint16(p.Regs.EBP()))
	}
	frameTemp := p.Regs.ESP()

	if level > 0 {
		ebp := p.Regs.EBP()
		for i := uint8(1); i < level; i++ {
			if is32 {
				ebp -= 4
				p.Push32(p.readStackDWord(ebp))
			} else {
				ebp -= 2
				p.Push16(p.readStackWord(uint32(uint16(ebp))))
			}
		}
		if is32 {
			p.Push32(frameTemp)
		} else {
			p.Push16(uint16(frameTemp))
		}
	}

	if is32 {
		p.Regs.SetEBP(frameTemp)
		p.Regs.SetESP(p.Regs.ESP() - uint32(frameSize))
	} else {
		p.Regs.Set(RegBP, uint32(uint16(frameTemp)))
		p.Regs.Set(RegSP, uint32(uint16(p.Regs.ESP())-frameSize))
	}
}

func (p *Processor) readStackDWord(off uint32) uint32 {
	addr, ex := p.ss.TranslateReadAddr(off)
	if ex != nil {
		raise(ssFault(p.ss.GetSelector()))
	}
	return p.ss.mem.GetDoubleWord(addr)
}

func (p *Processor) readStackWord(off uint32) uint16 {
	addr, ex := p.ss.TranslateReadAddr(off)
	if ex != nil {
		raise(ssFault(p.ss.GetSelector()))
	}
	return p.ss.mem.GetWord(addr)
}

// Leave implements LEAVE: ESP <- EBP, then pop EBP (spec.md §4.4).
func (p *Processor) Leave(is32 bool) {
	if is32 {
		p.Regs.SetESP(p.Regs.EBP())
		p.Regs.SetEBP(p.Pop32())
	} else {
		p.Regs.Set(RegSP, uint32(uint16(p.Regs.EBP())))
		p.Regs.Set(RegBP, uint32(p.Pop16()))
	}
}
