package x86

// This file holds every inbound collaborator contract named in spec.md §6.
// The Processor never constructs these itself; a host wires concrete
// implementations in at construction time (NewProcessor) or via Attach*.

// Branch is the result of executing one decoded instruction or an entire
// basic block.
type Branch int

const (
	// BranchNone means control falls through to the next instruction.
	BranchNone Branch = iota
	// BranchTaken means control transferred within the block (a near
	// jump/call/loop the block cache already knows about).
	BranchTaken
	// BranchException means a ProcessorException was raised and delivered.
	BranchException
	// BranchModeSwitch means execution must resume in a different mode
	// (e.g. real -> protected, protected -> VM86); see ModeSwitch.
	BranchModeSwitch
)

func (b Branch) String() string {
	switch b {
	case BranchNone:
		return "None"
	case BranchTaken:
		return "Taken"
	case BranchException:
		return "Exception"
	case BranchModeSwitch:
		return "ModeSwitch"
	default:
		return "Unknown"
	}
}

// Instruction is a single decoded op, externally produced. Execute mutates
// the Processor and returns how control should continue. Decoder-owned
// fields (Delta, IsBranch, Next) are used by the block interpreter to
// reconstruct an architectural EIP after a fault.
type Instruction interface {
	// Execute runs the instruction's semantics against cpu and returns the
	// resulting Branch. It may panic with *ProcessorException or
	// *ModeSwitch; RunBlock recovers both.
	Execute(cpu *Processor) Branch

	// IsBranch reports whether this instruction already updated EIP as
	// part of a successful transfer (so EIP must not be re-derived from
	// block-relative deltas on a following fault).
	IsBranch() bool

	// Delta is the byte offset from the start of the block to the first
	// byte after this instruction.
	Delta() uint32

	// Next is the following instruction in the block, or nil if this is
	// the last one.
	Next() Instruction
}

// BasicBlock is a contiguous run of decoded instructions sharing one entry
// point, as produced by the (external) decoder / block cache.
type BasicBlock interface {
	Start() Instruction
	X86Length() uint32 // total byte length of the decoded x86 stream
	X86Count() uint32  // number of x86 instructions in the block

	// PreBlock/PostInstruction/PostBlock are optional hooks invoked by the
	// block interpreter; implementations may no-op.
	PreBlock(cpu *Processor)
	PostInstruction(cpu *Processor, ins Instruction)
	PostBlock(cpu *Processor)
}

// AddressSpace is the memory-backend contract shared by physical, linear
// (paged), and alignment-checked overlays (spec.md §6).
type AddressSpace interface {
	GetByte(addr uint32) byte
	GetWord(addr uint32) uint16
	GetDoubleWord(addr uint32) uint32
	GetQuadWord(addr uint32) uint64

	SetByte(addr uint32, v byte)
	SetWord(addr uint32, v uint16)
	SetDoubleWord(addr uint32, v uint32)
	SetQuadWord(addr uint32, v uint64)

	Reset()
}

// LinearAddressSpace is the paging-aware backend. setSupervisor toggles
// whether page-table walks treat the access as privileged (used around
// every descriptor-table fetch and TSS busy-bit update); it returns the
// prior value so callers can restore it (the "scoped supervisor" pattern
// of spec.md §5/§9).
type LinearAddressSpace interface {
	AddressSpace

	SetSupervisor(v bool) (prior bool)
	IsSupervisor() bool

	SetPagingEnabled(v bool)
	SetWriteProtectUserPages(v bool)
	SetPageDirectoryBaseAddress(addr uint32)
	SetPageSizeExtensionsEnabled(v bool)
	SetGlobalPagesEnabled(v bool)

	// GetLastWalkedAddress returns the linear address of the most recent
	// page-table walk; the Processor copies it into CR2 on #PF.
	GetLastWalkedAddress() uint32
}

// PhysicalAddressSpace is the non-paged backend used directly by real mode
// and by linear-mode paging as its page-frame store.
type PhysicalAddressSpace interface {
	AddressSpace
}

// AlignmentCheckedAddressSpace forwards to a LinearAddressSpace but raises
// #AC on misaligned accesses when alignment checking is live (CR0.AM=1,
// EFLAGS.AC=1, CPL==3); spec.md §4.3.
type AlignmentCheckedAddressSpace interface {
	AddressSpace
}

// InterruptController is the external PIC/APIC collaborator.
type InterruptController interface {
	CPUGetInterrupt() uint8
	SetIRQ(line int, level bool)
}

// Clock is the external timekeeping collaborator driving HLT and rdtsc-style
// queries.
type Clock interface {
	UpdateAndProcess(instructionsExecuted uint64)
	UpdateNowAndProcess(shouldSleep bool)
	GetTicks() uint64
	GetEmulatedNanos() int64
}

// FPU is the external x87 collaborator; the Processor never touches its
// internals, only these lifecycle/error-reporting hooks (spec.md §6).
type FPU interface {
	Init()
	SaveState(out []byte) []byte
	LoadState(in []byte) ([]byte, error)

	// ReportFPUException is called by the Processor when the x87
	// collaborator signals a pending numeric error; the Processor decides
	// (via CR0.NE) whether to deliver IRQ 13 or vector #MF.
	ReportFPUException()
}

// Logger is satisfied by *log.Logger; NewProcessor defaults to log.Default()
// when none is supplied.
type Logger interface {
	Printf(format string, args ...any)
}
