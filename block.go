package x86

// RunBlock is the interpreter loop (C10, spec.md §4.9): it walks the
// decoded instruction chain of a BasicBlock, executing each one against
// the Processor, and recovers both architectural faults
// (*ProcessorException) and mode-switch events (*ModeSwitch) to restore a
// correct architectural EIP before returning control to the host's block
// cache.
//
// The host is expected to call RunBlock repeatedly (once per decoded
// block), looking up or decoding the next block at the EIP RunBlock
// leaves behind.
func (p *Processor) RunBlock(block BasicBlock) (branch Branch) {
	if p.life != lifecycleStarted {
		panic(newInternalError("RunBlock called in lifecycle state %d", p.life))
	}

	block.PreBlock(p)
	defer block.PostBlock(p)

	blockStartEIP := p.eip
	executed := uint32(0)
	max := p.cfg.maxInstructions()

	// deltaBeforeCurrent is the block-relative offset of the instruction
	// about to execute; current is that instruction itself. Both are
	// captured by the recover closure below so a panic mid-Execute can
	// still identify which instruction faulted (spec.md §4.9).
	var deltaBeforeCurrent uint32
	var current Instruction

	defer func() {
		r := recover()
		if r == nil {
			return
		}
		switch e := r.(type) {
		case *ProcessorException:
			p.fixupEIPAfterFault(blockStartEIP, deltaBeforeCurrent, current, e)
			p.DeliverInterrupt(e)
			branch = BranchException
		case *ModeSwitch:
			e.SetX86Count(int(executed))
			branch = BranchModeSwitch
		case *InternalError:
			panic(e) // never swallow a programmer error
		default:
			panic(r)
		}
	}()

	ins := block.Start()
	for ins != nil {
		if executed >= max {
			branch = BranchNone
			return
		}

		current = ins
		b := ins.Execute(p)
		executed++
		p.instructionsExecuted++

		block.PostInstruction(p, ins)

		if b != BranchNone {
			branch = b
			return
		}
		deltaBeforeCurrent = ins.Delta()
		ins = ins.Next()
	}

	branch = BranchNone
	return
}

// fixupEIPAfterFault restores EIP to point at the instruction that raised
// the exception, per spec.md §4.9's unwind rule: a self-pointing exception
// (PointsToSelf true) on an instruction that had NOT already committed a
// branch means EIP must be recomputed as the block's start address plus
// the offset of the faulting instruction's first byte; an instruction that
// IsBranch() already moved EIP to its (possibly faulting) target, so EIP is
// left untouched. A non-self-pointing exception (a trap) always leaves EIP
// alone, since traps fire with EIP already naming the next instruction.
func (p *Processor) fixupEIPAfterFault(blockStartEIP, deltaBeforeCurrent uint32, current Instruction, ex *ProcessorException) {
	if !ex.PointsToSelf() {
		return
	}
	if current != nil && current.IsBranch() {
		return
	}
	p.eip = blockStartEIP + deltaBeforeCurrent
}
