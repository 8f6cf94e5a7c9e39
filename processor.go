package x86

import "log"

// lifecycle mirrors the teacher's uninitialised/initialised/started/running
// state machine, generalized to the IA-32 mode set this core tracks.
type lifecycle int

const (
	lifecycleUninitialised lifecycle = iota
	lifecycleInitialised
	lifecycleStarted
	lifecycleHalted
)

// Processor is the composition root: every piece of architectural state
// spec.md §3 enumerates, plus the external collaborators of §6. It is the
// single type this package exports as the unit of emulation.
type Processor struct {
	Regs  RegisterFile
	flags LazyFlags
	control *ControlState

	mode ExecutionMode
	life lifecycle

	eip uint32

	cs, ss, ds, es, fs, gs *Segment
	tr                     *Segment // task register (TSS selector + cached descriptor)

	tables descriptorTables

	spaces addressSpaces
	mem    AddressSpace // backend currently bound for data/code fetch (mirrors CS/DS... but kept for convenience helpers)

	intc  InterruptController
	clock Clock
	fpu   FPU

	cfg ProcessorConfig

	// rollback is the pre-delivery snapshot spec.md §4.8 takes before
	// attempting to deliver a fault, so a fault-during-delivery can be
	// classified against the ORIGINAL vector for the double/triple-fault
	// combination table.
	rollback *snapshot

	instructionsExecuted uint64

	alignmentCheckLive bool
}

// snapshot is the minimal state spec.md §4.8's double-fault escalation
// needs to roll back to: EIP, CS, SS:ESP, and the vector being delivered
// when the re-entrant fault occurred.
type snapshot struct {
	eip           uint32
	cs, ss        *Segment
	esp           uint32
	vector        Vector
}

// NewProcessor constructs a Processor in the uninitialised lifecycle state.
// Call AttachMemory and any Attach{InterruptController,Clock,FPU} before
// Reset.
func NewProcessor(cfg ProcessorConfig) *Processor {
	p := &Processor{
		control: newControlState(),
		cfg:     cfg,
		life:    lifecycleUninitialised,
	}
	if p.cfg.Logger == nil {
		p.cfg.Logger = log.Default()
	}
	return p
}

// AttachInterruptController / AttachClock / AttachFPU wire the external
// collaborators of spec.md §6. All three may be nil; the Processor treats
// a nil collaborator as "feature unavailable" (no pending hardware IRQs,
// no sleep skipping, no FPU exceptions).
func (p *Processor) AttachInterruptController(c InterruptController) { p.intc = c }
func (p *Processor) AttachClock(c Clock)                              { p.clock = c }
func (p *Processor) AttachFPU(f FPU)                                  { p.fpu = f }

// Reset restores architectural state to the power-up/RESET# values (spec.md
// §3's reset vector: CS = F000:FFF0 in real mode, every other segment
// NULL-based-at-0, EFLAGS = 0x2, CR0 = ET only).
func (p *Processor) Reset() {
	p.Regs.Reset()
	p.flags.Reset()
	p.control.reset()

	mem := p.currentMemFor(ModeReal)
	p.mode = ModeReal
	p.eip = 0xFFF0
	p.cs = NewRealModeSegment(0xF000, mem)
	p.ss = NewRealModeSegment(0, mem)
	p.ds = NewRealModeSegment(0, mem)
	p.es = NewRealModeSegment(0, mem)
	p.fs = NewRealModeSegment(0, mem)
	p.gs = NewRealModeSegment(0, mem)
	p.tr = NewNullSegment()

	p.tables.gdt = NewDescriptorTableSegment(0, 0xFFFF)
	p.tables.idt = NewDescriptorTableSegment(0, 0x3FF)
	p.tables.ldt = NewNullSegment()

	p.mem = mem
	p.rollback = nil
	p.instructionsExecuted = 0
	p.life = lifecycleInitialised
}

// Start transitions from initialised to started; RunBlock refuses to run
// in any other lifecycle state.
func (p *Processor) Start() {
	if p.life == lifecycleUninitialised {
		p.Reset()
	}
	p.life = lifecycleStarted
}

func (p *Processor) Mode() ExecutionMode { return p.mode }
func (p *Processor) CPL() uint8          { return p.control.CPL() }

func (p *Processor) EIP() uint32     { return p.eip }
func (p *Processor) SetEIP(v uint32) { p.eip = v }

func (p *Processor) CS() *Segment { return p.cs }
func (p *Processor) SS() *Segment { return p.ss }
func (p *Processor) DS() *Segment { return p.ds }
func (p *Processor) ES() *Segment { return p.es }
func (p *Processor) FS() *Segment { return p.fs }
func (p *Processor) GS() *Segment { return p.gs }
func (p *Processor) TR() *Segment { return p.tr }

func (p *Processor) Flags() *LazyFlags     { return &p.flags }
func (p *Processor) Control() *ControlState { return p.control }

func (p *Processor) Logger() Logger { return p.cfg.Logger }

// SetCR0 applies a new CR0 value, handling the PE (and, incidentally, PG)
// transition side effects spec.md §4.3 requires: converting every segment
// register between real-mode and descriptor-resolved protected-mode form,
// and re-evaluating alignment checking. CR0.ET is always forced on by the
// underlying ControlState.setCR0.
func (p *Processor) SetCR0(v uint32) *ProcessorException {
	was := p.control.ProtectedModeEnabled()
	p.control.setCR0(v)
	now := p.control.ProtectedModeEnabled()

	if !was && now {
		if ex := p.convertSegmentsToProtectedMode(); ex != nil {
			return ex
		}
	} else if was && !now {
		p.convertSegmentsToRealMode()
	}

	if lin, ok := p.spaces.linear.(LinearAddressSpace); ok && lin != nil {
		lin.SetPagingEnabled(p.control.PagingEnabled())
		lin.SetWriteProtectUserPages(v&CR0WP != 0)
	}
	p.updateAlignmentCheckingInDataSegments()
	return nil
}

// SetCR3 loads a new page directory base, informing the linear backend.
func (p *Processor) SetCR3(v uint32) {
	p.control.setCR3(v)
	if lin, ok := p.spaces.linear.(LinearAddressSpace); ok && lin != nil {
		lin.SetPageDirectoryBaseAddress(v & 0xFFFFF000)
	}
}

// SetCR4 applies CR4, propagating PSE/PGE to the linear backend.
func (p *Processor) SetCR4(v uint32) {
	p.control.SetCR4(v)
	if lin, ok := p.spaces.linear.(LinearAddressSpace); ok && lin != nil {
		lin.SetPageSizeExtensionsEnabled(v&CR4PSE != 0)
		lin.SetGlobalPagesEnabled(v&CR4PGE != 0)
	}
}

// SetEFlagsWithSideEffects writes EFLAGS through the normal mask but also
// handles the two bits with processor-wide consequences beyond the flags
// word itself: AC (alignment-check re-evaluation) and VM (mode switch,
// panic'd as *ModeSwitch so it unwinds to RunBlock exactly like a far jump
// would — spec.md §4.2/§9).
func (p *Processor) SetEFlagsWithSideEffects(value, mask uint32) {
	priorVM := p.flags.VM()
	p.flags.SetEFlags(value, mask)
	p.updateAlignmentCheckingInDataSegments()

	if mask&EFlagVM != 0 {
		nowVM := p.flags.VM()
		if !priorVM && nowVM {
			p.convertSegmentsToVM86Mode()
			panic(&ModeSwitch{Target: ModeVM86})
		}
		if priorVM && !nowVM {
			p.convertSegmentsToProtectedMode()
			panic(&ModeSwitch{Target: ModeProtected})
		}
	}
}

// raise is the single entry point every fault-detection site in this
// package uses: it panics with the given ProcessorException so control
// unwinds to RunBlock's recover, exactly like the teacher's exception-
// driven far control transfer.
func raise(ex *ProcessorException) { panic(ex) }
