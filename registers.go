package x86

import "fmt"

// RegIndex is a stable integer index (0..23) naming one of the 24 views a
// decoded operand can address: eight 32-bit, eight 16-bit, eight 8-bit
// views over the eight general-purpose cells (spec.md §3, §4.1). The
// ordering within each group matches the x86 ModR/M reg encoding, the same
// convention the teacher's regs32 lookup table (cpu_x86.go) already used
// for the 32-bit group.
type RegIndex int

const (
	RegEAX RegIndex = iota
	RegECX
	RegEDX
	RegEBX
	RegESP
	RegEBP
	RegESI
	RegEDI

	RegAX
	RegCX
	RegDX
	RegBX
	RegSP
	RegBP
	RegSI
	RegDI

	RegAL
	RegCL
	RegDL
	RegBL
	RegAH
	RegCH
	RegDH
	RegBH

	regIndexCount
)

var regIndexNames = [regIndexCount]string{
	RegEAX: "eax", RegECX: "ecx", RegEDX: "edx", RegEBX: "ebx",
	RegESP: "esp", RegEBP: "ebp", RegESI: "esi", RegEDI: "edi",
	RegAX: "ax", RegCX: "cx", RegDX: "dx", RegBX: "bx",
	RegSP: "sp", RegBP: "bp", RegSI: "si", RegDI: "di",
	RegAL: "al", RegCL: "cl", RegDL: "dl", RegBL: "bl",
	RegAH: "ah", RegCH: "ch", RegDH: "dh", RegBH: "bh",
}

// regIndexByName is built once at init time from regIndexNames, matching
// spec.md §4.1's "strings are parsed once, not per instruction".
var regIndexByName = func() map[string]RegIndex {
	m := make(map[string]RegIndex, regIndexCount)
	for i, n := range regIndexNames {
		m[n] = RegIndex(i)
	}
	return m
}()

// LookupRegIndex resolves a decoded-operand register name ("eax", "ah", ...)
// to its stable index. It is meant to be called once at decode time, not
// per instruction execution.
func LookupRegIndex(name string) (RegIndex, bool) {
	idx, ok := regIndexByName[name]
	return idx, ok
}

func (r RegIndex) String() string {
	if r < 0 || r >= regIndexCount {
		return fmt.Sprintf("RegIndex(%d)", int(r))
	}
	return regIndexNames[r]
}

// cellOf maps any RegIndex to the parent 32-bit cell it aliases.
func (r RegIndex) cellOf() int {
	if r.isHigh8() {
		return int(r - RegAH)
	}
	return int(r) & 7
}

// isHigh8 reports whether r is one of the four AH/BH/CH/DH high-byte views.
// SI/DI/SP/BP (cell indices 4-7 in the low-8 group) have no high-byte view,
// which is reflected simply by those RegIndex values never existing: only
// RegAH..RegBH (cells 0-3) are in the 16..23 range that carries the "high"
// flag.
func (r RegIndex) isHigh8() bool {
	return r >= RegAH && r <= RegBH
}

// RegisterFile holds the eight 32-bit general-purpose cells and exposes the
// four overlapping views spec.md §3/§4.1 describes. A write to a narrower
// view preserves the untouched bits of the enclosing 32-bit value; AH/BH/
// CH/DH writes splice bits 8..15 only.
type RegisterFile struct {
	cells [8]uint32
}

// Get32 returns the full 32-bit value of cell i (i in 0..7).
func (f *RegisterFile) Get32(i int) uint32 { return f.cells[i] }

// Set32 overwrites the full 32-bit value of cell i.
func (f *RegisterFile) Set32(i int, v uint32) { f.cells[i] = v }

// Get reads the view named by idx.
func (f *RegisterFile) Get(idx RegIndex) uint32 {
	switch {
	case idx < RegAX:
		return f.cells[idx.cellOf()]
	case idx < RegAL:
		return uint32(uint16(f.cells[idx.cellOf()]))
	case idx.isHigh8():
		return uint32(byte(f.cells[idx.cellOf()] >> 8))
	default:
		return uint32(byte(f.cells[idx.cellOf()]))
	}
}

// Set writes the view named by idx, merging into the surrounding bits of
// the parent cell for any view narrower than 32 bits.
func (f *RegisterFile) Set(idx RegIndex, v uint32) {
	cell := idx.cellOf()
	switch {
	case idx < RegAX:
		f.cells[cell] = v
	case idx < RegAL:
		f.cells[cell] = (f.cells[cell] &^ 0xFFFF) | uint32(uint16(v))
	case idx.isHigh8():
		f.cells[cell] = (f.cells[cell] &^ 0xFF00) | (uint32(byte(v)) << 8)
	default:
		f.cells[cell] = (f.cells[cell] &^ 0xFF) | uint32(byte(v))
	}
}

// Reset zeroes all eight general-purpose cells.
func (f *RegisterFile) Reset() {
	for i := range f.cells {
		f.cells[i] = 0
	}
}

// Convenience 32-bit accessors, named the way the teacher's CPU_X86 struct
// field names read (EAX, EBX, ...), for callers that already know they want
// the full-width view and would rather not round-trip through RegIndex.
func (f *RegisterFile) EAX() uint32     { return f.cells[RegEAX] }
func (f *RegisterFile) SetEAX(v uint32) { f.cells[RegEAX] = v }
func (f *RegisterFile) ECX() uint32     { return f.cells[RegECX] }
func (f *RegisterFile) SetECX(v uint32) { f.cells[RegECX] = v }
func (f *RegisterFile) EDX() uint32     { return f.cells[RegEDX] }
func (f *RegisterFile) SetEDX(v uint32) { f.cells[RegEDX] = v }
func (f *RegisterFile) EBX() uint32     { return f.cells[RegEBX] }
func (f *RegisterFile) SetEBX(v uint32) { f.cells[RegEBX] = v }
func (f *RegisterFile) ESP() uint32     { return f.cells[RegESP] }
func (f *RegisterFile) SetESP(v uint32) { f.cells[RegESP] = v }
func (f *RegisterFile) EBP() uint32     { return f.cells[RegEBP] }
func (f *RegisterFile) SetEBP(v uint32) { f.cells[RegEBP] = v }
func (f *RegisterFile) ESI() uint32     { return f.cells[RegESI] }
func (f *RegisterFile) SetESI(v uint32) { f.cells[RegESI] = v }
func (f *RegisterFile) EDI() uint32     { return f.cells[RegEDI] }
func (f *RegisterFile) SetEDI(v uint32) { f.cells[RegEDI] = v }
