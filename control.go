package x86

// CR0 bit positions (spec.md §3).
const (
	CR0PE uint32 = 1 << 0  // Protection Enable
	CR0MP uint32 = 1 << 1  // Monitor Coprocessor
	CR0EM uint32 = 1 << 2  // Emulation
	CR0TS uint32 = 1 << 3  // Task Switched
	CR0ET uint32 = 1 << 4  // Extension Type
	CR0NE uint32 = 1 << 5  // Numeric Error
	CR0WP uint32 = 1 << 16 // Write Protect
	CR0AM uint32 = 1 << 18 // Alignment Mask
	CR0NW uint32 = 1 << 29 // Not Write-through
	CR0CD uint32 = 1 << 30 // Cache Disable
	CR0PG uint32 = 1 << 31 // Paging
)

// CR4 bit positions used by this core.
const (
	CR4VME uint32 = 1 << 0
	CR4PVI uint32 = 1 << 1
	CR4TSD uint32 = 1 << 2
	CR4DE  uint32 = 1 << 3
	CR4PSE uint32 = 1 << 4
	CR4PAE uint32 = 1 << 5
	CR4PGE uint32 = 1 << 7
)

// ControlState holds CR0..CR4, DR0..DR7, the MSR map, CPL, the
// hardware-interrupt shadow, and the reset/halt bits (spec.md §3).
type ControlState struct {
	cr0, cr2, cr3, cr4 uint32
	dr                 [8]uint32

	msr map[uint32]uint64

	cpl uint8

	halted bool

	// interruptFlags is the single atomically-updated word external IRQ
	// sources and HLT communicate through (spec.md §5). It lives here,
	// not on Processor, because it's the one piece of control state a
	// non-owning thread touches concurrently.
	interruptFlags atomicFlags
}

// Interrupt-flag bit assignments (spec.md §5).
const (
	intFlagHardware uint32 = 1 << 0
	intFlagReset    uint32 = 1 << 1
	intFlagNMI      uint32 = 1 << 2
)

func newControlState() *ControlState {
	return &ControlState{msr: make(map[uint32]uint64)}
}

func (c *ControlState) reset() {
	c.cr0 = CR0ET
	c.cr2 = 0
	c.cr3 = 0
	c.cr4 = 0
	for i := range c.dr {
		c.dr[i] = 0
	}
	for k := range c.msr {
		delete(c.msr, k)
	}
	c.cpl = 0
	c.halted = false
	c.interruptFlags.store(0)
}

func (c *ControlState) CR0() uint32     { return c.cr0 }
func (c *ControlState) CR2() uint32     { return c.cr2 }
func (c *ControlState) CR3() uint32     { return c.cr3 }
func (c *ControlState) CR4() uint32     { return c.cr4 }
func (c *ControlState) DR(i int) uint32 { return c.dr[i] }

func (c *ControlState) SetCR2(v uint32) { c.cr2 = v }
func (c *ControlState) SetCR3(v uint32) { c.cr3 = v }
func (c *ControlState) SetCR4(v uint32) { c.cr4 = v }
func (c *ControlState) SetDR(i int, v uint32) { c.dr[i] = v }

// ClearBreakpoints clears DR7's LE/L3..L0 enable bits, as task switch does
// (spec.md §4.7 step 9).
func (c *ControlState) ClearBreakpoints() {
	c.dr[7] &^= 0xFF | (1 << 8)
}

// ProtectedModeEnabled reports CR0.PE.
func (c *ControlState) ProtectedModeEnabled() bool { return c.cr0&CR0PE != 0 }

// PagingEnabled reports CR0.PG.
func (c *ControlState) PagingEnabled() bool { return c.cr0&CR0PG != 0 }

// CPL returns the current privilege level.
func (c *ControlState) CPL() uint8 { return c.cpl }

// setCPL is unexported: spec.md §3's invariant "CPL == CS.RPL at all times"
// means callers must always pair a CPL change with the matching CS.RPL
// write, which only Processor's segment-load paths can guarantee.
func (c *ControlState) setCPL(v uint8) { c.cpl = v & 3 }

func (c *ControlState) Halted() bool  { return c.halted }
func (c *ControlState) SetHalted(v bool) { c.halted = v }

// GetMSR reads an MSR by 32-bit index. Unknown indices return 0 (spec.md §6).
func (c *ControlState) GetMSR(index uint32) uint64 {
	return c.msr[index]
}

// SetMSR writes an MSR by 32-bit index. Writes always succeed (spec.md §6).
func (c *ControlState) SetMSR(index uint32, value uint64) {
	c.msr[index] = value
}

// MSRKeys returns the set of MSR indices with a stored value, for
// SaveState's ordered (key, value) pair walk.
func (c *ControlState) MSRKeys() []uint32 {
	keys := make([]uint32, 0, len(c.msr))
	for k := range c.msr {
		keys = append(keys, k)
	}
	return keys
}

// sysenter MSR indices (spec.md §4/SPEC_FULL.md §5's sysenter supplement).
const (
	MSRSysenterCS  uint32 = 0x174
	MSRSysenterESP uint32 = 0x175
	MSRSysenterEIP uint32 = 0x176
)

// setCR0 applies a new CR0, updating the host-visible paging/protection
// bits without changing CPL or segment bindings directly — callers
// (Processor.SetCR0) are responsible for the mode-transition side effects
// in spec.md §4.3 (convertSegmentsTo{Real,Protected}Mode,
// updateAlignmentCheckingInDataSegments).
func (c *ControlState) setCR0(v uint32) { c.cr0 = v | CR0ET }
func (c *ControlState) setCR3(v uint32) { c.cr3 = v }

// RaiseHardware sets the hardware-interrupt bit of interruptFlags
// atomically (spec.md §5); safe to call from any goroutine.
func (c *ControlState) RaiseHardware() { c.interruptFlags.or(intFlagHardware) }

// ClearHardware atomically clears the hardware-interrupt bit; this is the
// "single atomic AND" spec.md §5 requires of the consumer once the pending
// IRQ has been delivered.
func (c *ControlState) ClearHardware() { c.interruptFlags.and(^intFlagHardware) }

// HasHardware reports whether the hardware-interrupt bit is currently set.
func (c *ControlState) HasHardware() bool { return c.interruptFlags.load()&intFlagHardware != 0 }

// RequestReset atomically sets the reset-request bit; ClearReset clears it.
func (c *ControlState) RequestReset()    { c.interruptFlags.or(intFlagReset) }
func (c *ControlState) ClearReset()      { c.interruptFlags.and(^intFlagReset) }
func (c *ControlState) HasResetRequest() bool { return c.interruptFlags.load()&intFlagReset != 0 }

func (c *ControlState) RaiseNMI()    { c.interruptFlags.or(intFlagNMI) }
func (c *ControlState) ClearNMI()    { c.interruptFlags.and(^intFlagNMI) }
func (c *ControlState) HasNMI() bool { return c.interruptFlags.load()&intFlagNMI != 0 }
