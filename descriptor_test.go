package x86

import "testing"

func TestDecodeDescriptorBaseLimitUnpack(t *testing.T) {
	lo, hi := encodeDescriptor(0x12345678, 0xFFFFF, dataDesc(0), true, true)
	access, base, limit, gran, db := decodeDescriptor(lo, hi)

	if base != 0x12345678 {
		t.Errorf("base = %#x, want 0x12345678", base)
	}
	if !gran {
		t.Error("expected granularity bit set")
	}
	if !db {
		t.Error("expected default-size bit set")
	}
	if limit != 0xFFFFF000|0xFFF {
		t.Errorf("limit = %#x, want scaled-by-4k value", limit)
	}
	if access != dataDesc(0) {
		t.Errorf("access = %#x, want %#x", access, dataDesc(0))
	}
}

func TestDecodeDescriptorNoGranularity(t *testing.T) {
	lo, hi := encodeDescriptor(0, 0xFFFF, dataDesc(3), false, false)
	_, _, limit, gran, _ := decodeDescriptor(lo, hi)
	if gran {
		t.Fatal("granularity bit must be clear")
	}
	if limit != 0xFFFF {
		t.Fatalf("limit = %#x, want 0xffff unscaled", limit)
	}
}

func TestKindFromAccessCodeData(t *testing.T) {
	if got := kindFromAccess(dataDesc(0)); got != SegData {
		t.Errorf("data descriptor classified as %v", got)
	}
	if got := kindFromAccess(codeDesc(0)); got != SegCodeNonConforming {
		t.Errorf("non-conforming code descriptor classified as %v", got)
	}
	if got := kindFromAccess(codeDesc(0) | accessDirConf); got != SegCodeConforming {
		t.Errorf("conforming code descriptor classified as %v", got)
	}
}

func TestKindFromAccessSystemTypes(t *testing.T) {
	cases := map[byte]SegmentKind{
		0x02: SegLDT,
		0x09: SegTSS32, 0x0B: SegTSS32,
		0x01: SegTSS16, 0x03: SegTSS16,
		0x04: SegCallGate16, 0x0C: SegCallGate32,
		0x05: SegTaskGate,
		0x06: SegInterruptGate16, 0x0E: SegInterruptGate32,
		0x07: SegTrapGate16, 0x0F: SegTrapGate32,
	}
	for access, want := range cases {
		if got := kindFromAccess(access); got != want {
			t.Errorf("kindFromAccess(%#x) = %v, want %v", access, got, want)
		}
	}
}

func TestNewDescriptorSegmentGatePayload(t *testing.T) {
	mem := &fakeMem{}
	lo, hi := encodeGate(0x0008, 0x12345678, accessPresent|0x0E, 0)
	seg := newDescriptorSegment(0x30, lo, hi, mem)

	if seg.Kind() != SegInterruptGate32 {
		t.Fatalf("kind = %v, want SegInterruptGate32", seg.Kind())
	}
	if seg.GateTargetSelector() != 0x0008 {
		t.Errorf("gate target selector = %#x, want 0x0008", seg.GateTargetSelector())
	}
	if seg.GateTargetOffset() != 0x12345678 {
		t.Errorf("gate target offset = %#x, want 0x12345678", seg.GateTargetOffset())
	}
}

func TestNewDescriptorSegmentCallGateParamCount(t *testing.T) {
	mem := &fakeMem{}
	lo, hi := encodeGate(0x0018, 0xABCD, accessPresent|0x0C|(3<<accessDPLShift), 4)
	seg := newDescriptorSegment(0x40, lo, hi, mem)
	if seg.Kind() != SegCallGate32 {
		t.Fatalf("kind = %v, want SegCallGate32", seg.Kind())
	}
	if seg.GateParamCount() != 4 {
		t.Errorf("param count = %d, want 4", seg.GateParamCount())
	}
	if seg.GetDPL() != 3 {
		t.Errorf("DPL = %d, want 3", seg.GetDPL())
	}
}

func TestSegmentBusyBit(t *testing.T) {
	mem := &fakeMem{}
	lo, hi := encodeDescriptor(0, 0x67, 0x89, false, false) // type 0x09: available 32-bit TSS
	seg := newDescriptorSegment(0x18, lo, hi, mem)
	if seg.IsBusy() {
		t.Fatal("expected available TSS to report not busy")
	}
	seg.SetBusy(true)
	if !seg.IsBusy() {
		t.Fatal("expected SetBusy(true) to mark the TSS busy")
	}
	seg.SetBusy(false)
	if seg.IsBusy() {
		t.Fatal("expected SetBusy(false) to clear busy")
	}
}

func TestGetSegmentNullSelector(t *testing.T) {
	p, _ := newTestProcessor()
	seg, ex := p.getSegment(0)
	if ex != nil {
		t.Fatalf("unexpected fault resolving a null selector: %v", ex)
	}
	if seg.Kind() != SegNull {
		t.Fatalf("expected SegNull, got %v", seg.Kind())
	}
}

func TestGetSegmentGDTLookup(t *testing.T) {
	p, mem := newTestProcessor()
	setGDT(p, 0x1000, 0xFF)
	lo, hi := encodeDescriptor(0x20000, 0xFFFF, dataDesc(0), false, true)
	writeDescriptor(mem, p.tables.gdt, 1, lo, hi)

	seg, ex := p.getSegment(0x08) // index 1, TI=0 (GDT), RPL=0
	if ex != nil {
		t.Fatalf("unexpected fault: %v", ex)
	}
	if seg.GetBase() != 0x20000 {
		t.Errorf("base = %#x, want 0x20000", seg.GetBase())
	}
}

func TestGetSegmentOutOfGDTLimitFaults(t *testing.T) {
	p, _ := newTestProcessor()
	setGDT(p, 0x1000, 0x07) // room for exactly one 8-byte entry (index 0)
	_, ex := p.getSegment(0x10) // index 2, beyond the 1-entry table
	if ex == nil {
		t.Fatal("expected #GP for a selector beyond the GDT limit")
	}
	if ex.Vector != VectorGP {
		t.Fatalf("vector = %v, want #GP", ex.Vector)
	}
}

func TestGetSegmentNotPresentFaults(t *testing.T) {
	p, mem := newTestProcessor()
	setGDT(p, 0x1000, 0xFF)
	lo, hi := encodeDescriptor(0, 0xFFFF, accessS|accessRW /* Present clear */, false, true)
	writeDescriptor(mem, p.tables.gdt, 1, lo, hi)

	_, ex := p.getSegment(0x08)
	if ex == nil || ex.Vector != VectorNP {
		t.Fatalf("expected #NP, got %v", ex)
	}
}

func TestGetSegmentLDTWithNoLDTLoadedFaults(t *testing.T) {
	p, _ := newTestProcessor()
	_, ex := p.getSegment(0x0C) // TI=1 (LDT) but no LDT loaded
	if ex == nil || ex.Vector != VectorGP {
		t.Fatalf("expected #GP referencing the LDT, got %v", ex)
	}
}

func TestGetIDTEntryRejectsNonGateDescriptor(t *testing.T) {
	p, mem := newTestProcessor()
	setIDT(p, 0x2000, 0x7FF)
	lo, hi := encodeDescriptor(0, 0xFFFF, dataDesc(0), false, true)
	writeDescriptor(mem, p.tables.idt, uint16(VectorDE), lo, hi)

	_, ex := p.getIDTEntry(VectorDE)
	if ex == nil || ex.Vector != VectorGP {
		t.Fatalf("expected #GP for a data descriptor in the IDT, got %v", ex)
	}
}

func TestGetIDTEntryResolvesInterruptGate(t *testing.T) {
	p, mem := newTestProcessor()
	setIDT(p, 0x2000, 0x7FF)
	lo, hi := encodeGate(0x08, 0x1000, accessPresent|0x0E, 0)
	writeDescriptor(mem, p.tables.idt, uint16(VectorGP), lo, hi)

	gate, ex := p.getIDTEntry(VectorGP)
	if ex != nil {
		t.Fatalf("unexpected fault: %v", ex)
	}
	if gate.GateTargetOffset() != 0x1000 {
		t.Errorf("gate target offset = %#x, want 0x1000", gate.GateTargetOffset())
	}
}

func TestWriteDescriptorAccessByteRoundTrip(t *testing.T) {
	p, mem := newTestProcessor()
	setGDT(p, 0x1000, 0xFF)
	lo, hi := encodeDescriptor(0, 0xFFFF, 0x89 /* present, available 32-bit TSS */, false, false)
	writeDescriptor(mem, p.tables.gdt, 1, lo, hi)

	p.writeDescriptorAccessByte(p.tables.gdt, 1, 0x8B) // mark busy, keep present
	seg, ex := p.getSegment(0x08)
	if ex != nil {
		t.Fatalf("unexpected fault: %v", ex)
	}
	if !seg.IsBusy() {
		t.Fatal("expected the rewritten descriptor to read back busy")
	}
}
