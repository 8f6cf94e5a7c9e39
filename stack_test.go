package x86

import "testing"

func TestPushPop32RealMode(t *testing.T) {
	p, _ := newTestProcessor()
	p.Regs.SetESP(0x1000)

	p.Push32(0xDEADBEEF)
	if got := p.Pop32(); got != 0xDEADBEEF {
		t.Fatalf("Pop32 = %#x, want 0xdeadbeef", got)
	}
	if p.Regs.ESP() != 0x1000 {
		t.Fatalf("ESP after matched push/pop = %#x, want 0x1000", p.Regs.ESP())
	}
}

func TestPushPop16WrapsWithin16Bits(t *testing.T) {
	p, _ := newTestProcessor()
	p.Regs.SetESP(0x0002) // real mode: 16-bit stack addressing

	p.Push16(0xAAAA)
	if sp := uint16(p.Regs.ESP()); sp != 0x0000 {
		t.Fatalf("SP after Push16 = %#x, want 0x0000", sp)
	}
	if got := p.Pop16(); got != 0xAAAA {
		t.Fatalf("Pop16 = %#x, want 0xaaaa", got)
	}
}

func TestPush16WrapsAtZero(t *testing.T) {
	p, _ := newTestProcessor()
	p.Regs.SetESP(0x0000)
	p.Push16(0x1234)
	if sp := uint16(p.Regs.ESP()); sp != 0xFFFE {
		t.Fatalf("SP after underflow push = %#x, want 0xfffe", sp)
	}
}

func TestPushadPopadOrder(t *testing.T) {
	p, _ := newTestProcessor()
	p.Regs.SetESP(0x2000)
	p.Regs.SetEAX(1)
	p.Regs.SetECX(2)
	p.Regs.SetEDX(3)
	p.Regs.SetEBX(4)
	p.Regs.SetEBP(5)
	p.Regs.SetESI(6)
	p.Regs.SetEDI(7)

	p.Pushad()
	// Corrupt the registers so Popad must actually restore them.
	p.Regs.SetEAX(0)
	p.Regs.SetECX(0)
	p.Regs.SetEDX(0)
	p.Regs.SetEBX(0)
	p.Regs.SetEBP(0)
	p.Regs.SetESI(0)
	p.Regs.SetEDI(0)

	p.Popad()

	if p.Regs.EAX() != 1 || p.Regs.ECX() != 2 || p.Regs.EDX() != 3 || p.Regs.EBX() != 4 ||
		p.Regs.EBP() != 5 || p.Regs.ESI() != 6 || p.Regs.EDI() != 7 {
		t.Fatal("Popad did not restore the registers Pushad saved")
	}
	if p.Regs.ESP() != 0x2000 {
		t.Fatalf("ESP after Pushad/Popad = %#x, want 0x2000", p.Regs.ESP())
	}
}

func TestPopadDiscardsSavedESP(t *testing.T) {
	p, _ := newTestProcessor()
	p.Regs.SetESP(0x2000)
	p.Regs.SetEBX(0x55)
	p.Pushad()
	// Corrupt the saved-ESP slot in memory directly; if Popad read it back
	// instead of discarding it, ESP would end up wrong.
	p.ss.SetDWord(0x2000-20, 0xBADF00D)
	p.Regs.SetEBX(0)
	p.Popad()
	if p.Regs.ESP() != 0x2000 {
		t.Fatalf("ESP after Popad = %#x, want 0x2000 (saved-ESP slot discarded)", p.Regs.ESP())
	}
	if p.Regs.EBX() != 0x55 {
		t.Fatalf("EBX after Popad = %#x, want 0x55", p.Regs.EBX())
	}
}

func TestPushaPopa16Bit(t *testing.T) {
	p, _ := newTestProcessor()
	p.Regs.SetESP(0x1000)
	p.Regs.Set(RegAX, 0x1111)
	p.Regs.Set(RegBX, 0x2222)

	p.Pusha()
	p.Regs.Set(RegAX, 0)
	p.Regs.Set(RegBX, 0)
	p.Popa()

	if p.Regs.Get(RegAX) != 0x1111 || p.Regs.Get(RegBX) != 0x2222 {
		t.Fatal("Pusha/Popa did not round-trip AX/BX")
	}
}

func TestPushaOddLowSPRaisesGP(t *testing.T) {
	p, _ := newTestProcessor()
	p.Regs.SetESP(0x000F) // odd and below 16

	mustFault(t, VectorGP, func() {
		p.Pusha()
	})
}

func TestPushaOddHighSPIsFine(t *testing.T) {
	p, _ := newTestProcessor()
	p.Regs.SetESP(0x1001) // odd but not below 16: no fault

	p.Pusha()

	if uint16(p.Regs.ESP()) != 0x1001-16 {
		t.Fatalf("SP after Pusha = %#x, want %#x", uint16(p.Regs.ESP()), 0x1001-16)
	}
}

func TestPushaEvenLowSPIsFine(t *testing.T) {
	p, _ := newTestProcessor()
	p.Regs.SetESP(0x0010) // even, not below 16: no fault either way

	p.Pusha()

	if uint16(p.Regs.ESP()) != 0 {
		t.Fatalf("SP after Pusha = %#x, want 0", uint16(p.Regs.ESP()))
	}
}

func TestEnterLeaveNoNesting(t *testing.T) {
	p, _ := newTestProcessor()
	p.Regs.SetESP(0x1000)
	p.Regs.SetEBP(0xAAAA)

	p.Enter(0x10, 0, true)
	if p.Regs.EBP() != 0x1000-4 {
		t.Fatalf("EBP after Enter = %#x, want %#x", p.Regs.EBP(), 0x1000-4)
	}
	if p.Regs.ESP() != 0x1000-4-0x10 {
		t.Fatalf("ESP after Enter = %#x, want %#x", p.Regs.ESP(), 0x1000-4-0x10)
	}

	p.Leave(true)
	if p.Regs.ESP() != 0x1000 {
		t.Fatalf("ESP after Leave = %#x, want %#x", p.Regs.ESP(), 0x1000)
	}
	if p.Regs.EBP() != 0xAAAA {
		t.Fatalf("EBP after Leave = %#x, want restored 0xaaaa", p.Regs.EBP())
	}
}

func TestEnterWithNesting(t *testing.T) {
	p, _ := newTestProcessor()
	p.Regs.SetESP(0x2000)
	p.Regs.SetEBP(0x1000)
	// Pretend there is a valid frame pointer chain below EBP: write a
	// known value at [EBP-4] for Enter's single frame-pointer copy
	// (level=2 copies exactly one pointer).
	p.ss.SetDWord(0x1000-4, 0x7777)

	p.Enter(0, 2, true)

	copiedAt := p.Regs.EBP() - 4 // the copied pointer sits just below the new frame pointer
	if got := p.ss.GetDWord(copiedAt); got != 0x7777 {
		t.Fatalf("copied frame pointer = %#x, want 0x7777", got)
	}
}
