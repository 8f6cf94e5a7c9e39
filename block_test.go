package x86

import "testing"

// fakeIns is a minimal Instruction used to drive RunBlock without a real
// decoder: it runs an arbitrary closure and reports a fixed delta/next.
type fakeIns struct {
	run      func(p *Processor) Branch
	isBranch bool
	delta    uint32
	next     Instruction
}

func (f *fakeIns) Execute(p *Processor) Branch { return f.run(p) }
func (f *fakeIns) IsBranch() bool              { return f.isBranch }
func (f *fakeIns) Delta() uint32               { return f.delta }
func (f *fakeIns) Next() Instruction           { return f.next }

// fakeBlock chains a slice of instructions and records hook invocations.
type fakeBlock struct {
	ins                             []*fakeIns
	preCalled, postCalled           bool
	postInstructionCount            int
}

func (b *fakeBlock) Start() Instruction {
	if len(b.ins) == 0 {
		return nil
	}
	for i := 0; i < len(b.ins)-1; i++ {
		b.ins[i].next = b.ins[i+1]
	}
	return b.ins[0]
}
func (b *fakeBlock) X86Length() uint32 { return uint32(len(b.ins)) }
func (b *fakeBlock) X86Count() uint32  { return uint32(len(b.ins)) }
func (b *fakeBlock) PreBlock(cpu *Processor)                    { b.preCalled = true }
func (b *fakeBlock) PostInstruction(cpu *Processor, ins Instruction) { b.postInstructionCount++ }
func (b *fakeBlock) PostBlock(cpu *Processor)                   { b.postCalled = true }

func newStartedProcessor() (*Processor, *fakeMem) {
	p, mem := newTestProcessor()
	p.Start()
	return p, mem
}

func TestRunBlockFallsThroughToCompletion(t *testing.T) {
	p, _ := newStartedProcessor()
	p.eip = 0x1000

	block := &fakeBlock{ins: []*fakeIns{
		{run: func(p *Processor) Branch { p.eip += 1; return BranchNone }, delta: 1},
		{run: func(p *Processor) Branch { p.eip += 2; return BranchNone }, delta: 3},
	}}

	branch := p.RunBlock(block)

	if branch != BranchNone {
		t.Fatalf("branch = %v, want BranchNone", branch)
	}
	if p.eip != 0x1003 {
		t.Fatalf("EIP = %#x, want 0x1003", p.eip)
	}
	if !block.preCalled || !block.postCalled {
		t.Fatal("expected PreBlock/PostBlock to be invoked")
	}
	if block.postInstructionCount != 2 {
		t.Fatalf("PostInstruction called %d times, want 2", block.postInstructionCount)
	}
	if p.instructionsExecuted != 2 {
		t.Fatalf("instructionsExecuted = %d, want 2", p.instructionsExecuted)
	}
}

func TestRunBlockStopsAtTakenBranch(t *testing.T) {
	p, _ := newStartedProcessor()
	p.eip = 0x2000

	block := &fakeBlock{ins: []*fakeIns{
		{run: func(p *Processor) Branch { p.eip = 0x3000; return BranchTaken }, isBranch: true, delta: 2},
		{run: func(p *Processor) Branch { t.Fatal("second instruction must not run"); return BranchNone }, delta: 4},
	}}

	branch := p.RunBlock(block)

	if branch != BranchTaken {
		t.Fatalf("branch = %v, want BranchTaken", branch)
	}
	if p.eip != 0x3000 {
		t.Fatalf("EIP = %#x, want 0x3000", p.eip)
	}
}

func TestRunBlockStopsAtMaxInstructions(t *testing.T) {
	p, _ := newTestProcessor()
	p.cfg = ProcessorConfig{MaxInstructionsPerBlock: 1}
	p.Start()
	p.eip = 0x4000

	block := &fakeBlock{ins: []*fakeIns{
		{run: func(p *Processor) Branch { p.eip += 1; return BranchNone }, delta: 1},
		{run: func(p *Processor) Branch { t.Fatal("must not run past the instruction cap"); return BranchNone }, delta: 2},
	}}

	branch := p.RunBlock(block)
	if branch != BranchNone {
		t.Fatalf("branch = %v, want BranchNone (yield at cap)", branch)
	}
}

func TestRunBlockFaultingNonBranchInstructionRewindsEIP(t *testing.T) {
	p, _ := newStartedProcessor()
	p.Regs.SetESP(0x1000)
	blockStart := uint32(0x5000)
	p.eip = blockStart

	block := &fakeBlock{ins: []*fakeIns{
		// First instruction commits 2 bytes and succeeds.
		{run: func(p *Processor) Branch { p.eip = blockStart + 2; return BranchNone }, delta: 2},
		// Second instruction is 3 bytes long and raises a self-pointing fault
		// (e.g. #UD) without having moved EIP itself.
		{run: func(p *Processor) Branch {
			raise(NewFault(VectorUD, 0, true))
			return BranchNone
		}, delta: 5},
	}}

	branch := p.RunBlock(block)

	if branch != BranchException {
		t.Fatalf("branch = %v, want BranchException", branch)
	}
	// fixupEIPAfterFault must rewind EIP to the start of the faulting
	// instruction before delivery pushes it as the return address: the
	// block's start plus the delta recorded *before* that instruction ran,
	// i.e. 2 (the byte offset of the faulting instruction's first byte).
	// The real-mode #UD delivery that follows then overwrites EIP with the
	// IVT handler address, so check the pushed return IP instead.
	if got := p.ss.GetWord(0x1000 - 6); got != uint16(blockStart+2) {
		t.Fatalf("pushed return IP = %#x, want %#x", got, blockStart+2)
	}
}

func TestRunBlockFaultingBranchInstructionLeavesEIP(t *testing.T) {
	p, _ := newStartedProcessor()
	p.Regs.SetESP(0x1000)
	p.eip = 0x6000

	block := &fakeBlock{ins: []*fakeIns{
		{run: func(p *Processor) Branch {
			p.eip = 0x9999 // already committed its target before faulting
			raise(NewFault(VectorGP, 0, true))
			return BranchNone
		}, isBranch: true, delta: 5},
	}}

	branch := p.RunBlock(block)

	if branch != BranchException {
		t.Fatalf("branch = %v, want BranchException", branch)
	}
	// fixupEIPAfterFault must leave EIP untouched (the branch already
	// committed it) before delivery pushes it as the return address.
	if got := p.ss.GetWord(0x1000 - 6); got != 0x9999 {
		t.Fatalf("pushed return IP = %#x, want untouched 0x9999", got)
	}
}

func TestRunBlockModeSwitchReportsX86Count(t *testing.T) {
	p, _ := newStartedProcessor()
	p.eip = 0x7000

	block := &fakeBlock{ins: []*fakeIns{
		{run: func(p *Processor) Branch { return BranchNone }, delta: 1},
		{run: func(p *Processor) Branch { panic(&ModeSwitch{Target: ModeProtected}) }, delta: 2},
	}}

	branch := p.RunBlock(block)

	if branch != BranchModeSwitch {
		t.Fatalf("branch = %v, want BranchModeSwitch", branch)
	}
}

func TestRunBlockPanicsOnWrongLifecycle(t *testing.T) {
	p, _ := newTestProcessor() // Reset leaves lifecycleInitialised, not Started
	defer func() {
		if recover() == nil {
			t.Fatal("expected RunBlock to panic when the processor has not been Started")
		}
	}()
	p.RunBlock(&fakeBlock{})
}
