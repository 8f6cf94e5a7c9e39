package x86

import "testing"

func TestRegisterFileAliasing(t *testing.T) {
	var f RegisterFile
	f.Set(RegEAX, 0x11223344)

	if got := f.Get(RegAX); got != 0x3344 {
		t.Fatalf("AX = %#x, want 0x3344", got)
	}
	if got := f.Get(RegAL); got != 0x44 {
		t.Fatalf("AL = %#x, want 0x44", got)
	}
	if got := f.Get(RegAH); got != 0x33 {
		t.Fatalf("AH = %#x, want 0x33", got)
	}
}

func TestRegisterFileNarrowWritePreservesUpperBits(t *testing.T) {
	var f RegisterFile
	f.Set(RegEAX, 0xAABBCCDD)

	f.Set(RegAL, 0xFF)
	if got := f.Get32(int(RegEAX)); got != 0xAABBCCFF {
		t.Fatalf("EAX after AL write = %#x, want 0xAABBCCFF", got)
	}

	f.Set(RegAH, 0x00)
	if got := f.Get32(int(RegEAX)); got != 0xAABB00FF {
		t.Fatalf("EAX after AH write = %#x, want 0xAABB00FF", got)
	}

	f.Set(RegAX, 0x1234)
	if got := f.Get32(int(RegEAX)); got != 0xAABB1234 {
		t.Fatalf("EAX after AX write = %#x, want 0xAABB1234", got)
	}
}

func TestRegisterFileHighByteSiblings(t *testing.T) {
	var f RegisterFile
	for _, cell := range []RegIndex{RegEAX, RegEBX, RegECX, RegEDX} {
		f.Set(cell, 0)
	}
	f.Set(RegBH, 0x7A)
	if got := f.Get(RegBH); got != 0x7A {
		t.Fatalf("BH = %#x, want 0x7a", got)
	}
	if got := f.Get(RegBL); got != 0 {
		t.Fatalf("BL should be untouched by BH write, got %#x", got)
	}
}

func TestRegisterFileNoHighByteView(t *testing.T) {
	if RegSP >= RegAH && RegSP <= RegBH {
		t.Fatalf("RegSP must not fall in the high-byte range")
	}
}

func TestLookupRegIndex(t *testing.T) {
	tests := map[string]RegIndex{
		"eax": RegEAX, "ax": RegAX, "al": RegAL, "ah": RegAH,
		"esp": RegESP, "sp": RegSP, "edi": RegEDI,
	}
	for name, want := range tests {
		got, ok := LookupRegIndex(name)
		if !ok {
			t.Errorf("LookupRegIndex(%q) not found", name)
			continue
		}
		if got != want {
			t.Errorf("LookupRegIndex(%q) = %v, want %v", name, got, want)
		}
	}

	if _, ok := LookupRegIndex("not-a-register"); ok {
		t.Error("expected LookupRegIndex to fail on an unknown name")
	}
}

func TestRegIndexString(t *testing.T) {
	if got := RegEAX.String(); got != "eax" {
		t.Fatalf("RegEAX.String() = %q, want eax", got)
	}
	if got := RegIndex(999).String(); got == "" {
		t.Fatalf("out-of-range RegIndex.String() must not be empty")
	}
}

func TestRegisterFileReset(t *testing.T) {
	var f RegisterFile
	f.Set(RegEAX, 0xDEADBEEF)
	f.Set(RegEDI, 1)
	f.Reset()
	for i := 0; i < 8; i++ {
		if f.Get32(i) != 0 {
			t.Fatalf("cell %d not cleared by Reset: %#x", i, f.Get32(i))
		}
	}
}

func TestRegisterFileNamedAccessors(t *testing.T) {
	var f RegisterFile
	f.SetEAX(1)
	f.SetEBX(2)
	f.SetECX(3)
	f.SetEDX(4)
	f.SetESP(5)
	f.SetEBP(6)
	f.SetESI(7)
	f.SetEDI(8)

	if f.EAX() != 1 || f.EBX() != 2 || f.ECX() != 3 || f.EDX() != 4 ||
		f.ESP() != 5 || f.EBP() != 6 || f.ESI() != 7 || f.EDI() != 8 {
		t.Fatal("named accessors disagree with Set/Get32")
	}
}
