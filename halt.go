package x86

// HLT implements the suspension point of spec.md §5/§8 scenario 6: it
// blocks the host thread, advancing the virtual clock, until an external
// source sets a bit of interruptFlags, then resumes through the normal
// delivery path. This is the only place Clock and InterruptController are
// ever read; every other Processor method runs synchronously against
// host-supplied memory and never touches them.
func (p *Processor) HLT() {
	if p.life != lifecycleStarted {
		panic(newInternalError("HLT called in lifecycle state %d", p.life))
	}

	p.life = lifecycleHalted
	p.control.SetHalted(true)
	defer func() {
		p.control.SetHalted(false)
		p.life = lifecycleStarted
	}()

	p.waitForInterrupt()
}

// waitForInterrupt is the busy loop itself, split out so tests can drive it
// without going through the lifecycle check HLT adds.
func (p *Processor) waitForInterrupt() {
	skip := p.cfg.skipSleeps()

	for {
		if p.control.HasResetRequest() {
			p.control.ClearReset()
			p.Reset()
			p.Start()
			return
		}
		if p.control.HasNMI() {
			p.control.ClearNMI()
			p.DeliverInterrupt(NewFault(VectorNMI, 0, true))
			return
		}
		if p.flags.IF() && p.control.HasHardware() {
			p.control.ClearHardware()
			var vector uint8
			if p.intc != nil {
				vector = p.intc.CPUGetInterrupt()
			}
			p.DeliverInterrupt(NewFault(Vector(vector), 0, true))
			return
		}

		if p.clock != nil {
			p.clock.UpdateNowAndProcess(!skip)
			p.clock.UpdateAndProcess(p.instructionsExecuted)
		}
	}
}
