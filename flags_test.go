package x86

import "testing"

func TestLazyFlagsAdd8Overflow(t *testing.T) {
	var f LazyFlags
	// 0x7F + 0x01 = 0x80: signed overflow, no carry.
	f.Record(KindAdd8, 0x7F, 0x01, 0x7F+0x01)

	if !f.OF() {
		t.Error("expected OF set on signed 8-bit add overflow")
	}
	if f.CF() {
		t.Error("did not expect CF set (no unsigned carry out of 8 bits)")
	}
	if !f.SF() {
		t.Error("expected SF set, result 0x80 has bit 7 set")
	}
	if f.ZF() {
		t.Error("did not expect ZF set")
	}
}

func TestLazyFlagsAdd8Carry(t *testing.T) {
	var f LazyFlags
	// 0xFF + 0x01 = 0x100: carry out, result wraps to zero.
	f.Record(KindAdd8, 0xFF, 0x01, 0xFF+0x01)

	if !f.CF() {
		t.Error("expected CF set on carry out of 8 bits")
	}
	if !f.ZF() {
		t.Error("expected ZF set, masked result is zero")
	}
	if f.OF() {
		t.Error("did not expect OF: adding a positive to a negative never overflows")
	}
}

func TestLazyFlagsSub32Borrow(t *testing.T) {
	var f LazyFlags
	a, b := uint32(0), uint32(1)
	f.Record(KindSub32, a, b, uint64(a)-uint64(b))

	if !f.CF() {
		t.Error("expected CF (borrow) for 0-1")
	}
	if !f.SF() {
		t.Error("expected SF: result is -1, top bit set")
	}
	if f.ZF() {
		t.Error("did not expect ZF")
	}
}

func TestLazyFlagsIncDecLeavesCFAlone(t *testing.T) {
	var f LazyFlags
	f.SetCF(true)
	f.Record(KindInc32, 5, 1, 6)
	if !f.CF() {
		t.Error("INC must not clear a previously-set CF")
	}

	f.SetCF(false)
	f.Record(KindDec32, 5, 1, 4)
	if f.CF() {
		t.Error("DEC must not set CF")
	}
}

func TestLazyFlagsIncOverflow(t *testing.T) {
	var f LazyFlags
	// INC 0x7FFFFFFF -> 0x80000000: signed overflow.
	f.Record(KindInc32, 0x7FFFFFFF, 1, 0x80000000)
	if !f.OF() {
		t.Error("expected OF set on INC overflow")
	}
}

func TestLazyFlagsLogicClearsCFAndOF(t *testing.T) {
	var f LazyFlags
	f.SetCF(true)
	f.SetOF(true)
	f.Record(KindLogic32, 0xFF, 0x0F, 0x0F)
	if f.CF() {
		t.Error("logical ops must clear CF")
	}
	if f.OF() {
		t.Error("logical ops must clear OF")
	}
}

func TestLazyFlagsParity(t *testing.T) {
	var f LazyFlags
	f.Record(KindLogic8, 0, 0b00000011, 0b00000011) // two set bits: even parity
	if !f.PF() {
		t.Error("expected PF set for a result with even popcount")
	}
	f.Record(KindLogic8, 0, 0b00000111, 0b00000111) // three set bits: odd parity
	if f.PF() {
		t.Error("expected PF clear for a result with odd popcount")
	}
}

func TestLazyFlagsSetOverridesComputed(t *testing.T) {
	var f LazyFlags
	f.Record(KindAdd8, 0xFF, 0x01, 0x100)
	if !f.CF() {
		t.Fatal("sanity: expected computed CF true")
	}
	f.SetCF(false)
	if f.CF() {
		t.Error("explicit Set must override the lazily-computed value")
	}
	// A subsequent Record should mark CF dirty again.
	f.Record(KindAdd8, 0xFF, 0x01, 0x100)
	if !f.CF() {
		t.Error("Record should re-dirty CF so it recomputes")
	}
}

func TestLazyFlagsEFlagsReservedBit(t *testing.T) {
	var f LazyFlags
	if f.EFlags()&eflagR1 == 0 {
		t.Error("EFlags must always report reserved bit 1 as set")
	}
}

func TestLazyFlagsSetEFlagsRoundTrip(t *testing.T) {
	var f LazyFlags
	f.SetEFlags(EFlagCF|EFlagZF|EFlagIF|(2<<12), 0xFFFFFFFF)

	if !f.CF() || !f.ZF() {
		t.Error("expected CF and ZF set after SetEFlags")
	}
	if !f.IF() {
		t.Error("expected IF set after SetEFlags")
	}
	if f.IOPL() != 2 {
		t.Errorf("IOPL = %d, want 2", f.IOPL())
	}
	if f.OF() || f.SF() || f.AF() || f.PF() {
		t.Error("unset flags must read false after SetEFlags")
	}
}

func TestLazyFlagsSetEFlagsMasked(t *testing.T) {
	var f LazyFlags
	f.SetEFlags(0xFFFFFFFF, 0xFFFFFFFF)
	if !f.CF() {
		t.Fatal("sanity: expected CF set")
	}
	// Clear only CF via a masked update; ZF (also set) must survive.
	f.SetEFlags(0, EFlagCF)
	if f.CF() {
		t.Error("masked SetEFlags should have cleared CF")
	}
	if !f.ZF() {
		t.Error("masked SetEFlags must not disturb bits outside the mask")
	}
}

func TestLazyFlagsReset(t *testing.T) {
	var f LazyFlags
	f.SetEFlags(0xFFFFFFFF, 0xFFFFFFFF)
	f.Reset()
	if f.IF() || f.TF() || f.DF() || f.NT() || f.VM() {
		t.Error("Reset must clear every control bit")
	}
	if f.CF() || f.ZF() || f.SF() || f.OF() || f.AF() || f.PF() {
		t.Error("Reset must clear every lazy arithmetic flag")
	}
}

func TestLazyFlagsImulFitsClearsCFOF(t *testing.T) {
	var f LazyFlags
	// A small positive product: high half is the sign extension of low (0).
	f.Record(KindImul32, 5, 0, uint64(5))
	if f.CF() || f.OF() {
		t.Error("expected CF/OF clear when the product fits in the low half")
	}
}

func TestLazyFlagsImulOverflowSetsCFOF(t *testing.T) {
	var f LazyFlags
	// High half nonzero and not the sign extension of a positive low half.
	f.Record(KindImul32, 0x7FFFFFFF, 1, uint64(0x7FFFFFFF))
	if !f.CF() || !f.OF() {
		t.Error("expected CF/OF set when the product overflows the low half")
	}
}

func TestLazyFlagsShiftCarryConvention(t *testing.T) {
	var f LazyFlags
	// A 1-bit left shift of 0x80 (8-bit) carries the shifted-out bit into
	// bit 8 of result, per the documented convention in computeCF.
	f.Record(KindShl8, 0x80, 1, 0x180)
	if !f.CF() {
		t.Error("expected CF set from the bit shifted past bit 7")
	}
}
