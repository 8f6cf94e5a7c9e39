package x86

import "fmt"

// Vector identifies one of the architectural fault/trap vectors spec.md §7
// enumerates.
type Vector byte

const (
	VectorDE Vector = 0  // Divide Error
	VectorDB Vector = 1  // Debug
	VectorNMI Vector = 2 // Non-Maskable Interrupt
	VectorBP Vector = 3  // Breakpoint
	VectorOF Vector = 4  // Overflow
	VectorBR Vector = 5  // BOUND Range Exceeded
	VectorUD Vector = 6  // Invalid Opcode
	VectorNM Vector = 7  // Device Not Available
	VectorDF Vector = 8  // Double Fault
	VectorCSO Vector = 9 // Coprocessor Segment Overrun
	VectorTS Vector = 10 // Invalid TSS
	VectorNP Vector = 11 // Segment Not Present
	VectorSS Vector = 12 // Stack-Segment Fault
	VectorGP Vector = 13 // General Protection
	VectorPF Vector = 14 // Page Fault
	VectorMF Vector = 16 // x87 Floating-Point Error
	VectorAC Vector = 17 // Alignment Check
)

var vectorNames = map[Vector]string{
	VectorDE: "#DE", VectorDB: "#DB", VectorNMI: "NMI", VectorBP: "#BP",
	VectorOF: "#OF", VectorBR: "#BR", VectorUD: "#UD", VectorNM: "#NM",
	VectorDF: "#DF", VectorCSO: "#CSO", VectorTS: "#TS", VectorNP: "#NP",
	VectorSS: "#SS", VectorGP: "#GP", VectorPF: "#PF", VectorMF: "#MF",
	VectorAC: "#AC",
}

func (v Vector) String() string {
	if n, ok := vectorNames[v]; ok {
		return n
	}
	return fmt.Sprintf("vector(%d)", v)
}

// pointsToSelfByVector records, per spec.md §7, whether EIP should name the
// faulting instruction (true) or the instruction after it (false — traps).
var pointsToSelfByVector = map[Vector]bool{
	VectorDE: true, VectorDB: false, VectorNMI: true, VectorBP: false,
	VectorOF: false, VectorBR: true, VectorUD: true, VectorNM: true,
	VectorDF: true, VectorCSO: true, VectorTS: true, VectorNP: true,
	VectorSS: true, VectorGP: true, VectorPF: true, VectorMF: true,
	VectorAC: true,
}

// faultClass groups vectors for the double-fault combination table
// (spec.md §4.8, "the classic x86 combination table"): benign exceptions
// never combine into #DF, contributory exceptions combine with each other
// and with a following page fault, and a page fault combines with a
// following contributory exception or page fault.
type faultClass int

const (
	faultBenign faultClass = iota
	faultContributory
	faultPageFault
)

func classOf(v Vector) faultClass {
	switch v {
	case VectorPF:
		return faultPageFault
	case VectorDE, VectorTS, VectorNP, VectorSS, VectorGP:
		return faultContributory
	default:
		return faultBenign
	}
}

// combinesToDoubleFault reports whether raising `second` while delivering
// `first` escalates to #DF, per the standard IA-32 table: contributory-on-
// contributory, contributory-on-page-fault, and page-fault-on-page-fault
// all combine; anything involving a benign exception does not.
func combinesToDoubleFault(first, second Vector) bool {
	fc, sc := classOf(first), classOf(second)
	if fc == faultBenign || sc == faultBenign {
		return false
	}
	if fc == faultContributory && (sc == faultContributory || sc == faultPageFault) {
		return true
	}
	if fc == faultPageFault && (sc == faultContributory || sc == faultPageFault) {
		return true
	}
	return false
}

// ProcessorException is the typed architectural fault spec.md §3/§7
// describes: a vector, an optional error code, and whether EIP should name
// the faulting instruction.
type ProcessorException struct {
	Vector       Vector
	ErrorCode    uint16
	HasErrorCode bool
	SelfPointing bool
}

func (e *ProcessorException) Error() string {
	if e.HasErrorCode {
		return fmt.Sprintf("%s (error code 0x%04X)", e.Vector, e.ErrorCode)
	}
	return e.Vector.String()
}

func (e *ProcessorException) PointsToSelf() bool { return e.SelfPointing }

// NewFault builds a ProcessorException without an error code, using the
// vector's standard pointsToSelf value.
func NewFault(v Vector, _ uint16, _ bool) *ProcessorException {
	return &ProcessorException{Vector: v, SelfPointing: pointsToSelfByVector[v]}
}

// NewFaultWithCode builds a ProcessorException carrying a 16-bit error
// code (selector-indexed faults: #TS, #NP, #SS, #GP, #PF's page-fault
// error word).
func NewFaultWithCode(v Vector, code uint16) *ProcessorException {
	return &ProcessorException{Vector: v, ErrorCode: code, HasErrorCode: true, SelfPointing: pointsToSelfByVector[v]}
}

// selectorErrorCode builds the error-code encoding used by selector-
// indexed faults: bit 0 = EXT (raised while delivering an external event),
// bit 1 = IDT (the selector names an IDT gate rather than GDT/LDT entry),
// bit 2 = TI (the selector's own table-indicator bit), bits 3.. = index.
func selectorErrorCode(selector uint16, ext bool) uint16 {
	code := selector &^ 3
	if ext {
		code |= 1
	}
	return code
}

// gpFault raises #GP(selector) with RPL bits cleared, per spec.md §8's
// boundary behavior ("through a bad selector raises #GP(selector & ~3)").
func gpFault(selector uint16) *ProcessorException {
	return NewFaultWithCode(VectorGP, selector&^3)
}

func npFault(selector uint16) *ProcessorException {
	return NewFaultWithCode(VectorNP, selector&^3)
}

func ssFault(selector uint16) *ProcessorException {
	return NewFaultWithCode(VectorSS, selector&^3)
}

func tsFault(selector uint16) *ProcessorException {
	return NewFaultWithCode(VectorTS, selector&^3)
}

// ModeSwitch is the non-fault control-flow event of spec.md §4.2/§4.8/§9:
// a mode transition (e.g. entering or leaving virtual-8086 mode) signaled
// by panicking up to the block interpreter rather than returned as a
// value, the same way the teacher's exception-based control transfer
// unwinds several call frames at once for far control transfers.
type ModeSwitch struct {
	Target   ExecutionMode
	x86Count int // set by RunBlock: instructions executed in this block before the switch
}

func (m *ModeSwitch) Error() string { return "mode switch to " + m.Target.String() }

func (m *ModeSwitch) SetX86Count(n int) { m.x86Count = n }
func (m *ModeSwitch) X86Count() int     { return m.x86count() }
func (m *ModeSwitch) x86count() int     { return m.x86Count }

// ExecutionMode is the Processor's current addressing/privilege mode.
type ExecutionMode int

const (
	ModeReal ExecutionMode = iota
	ModeProtected
	ModeVM86
)

func (m ExecutionMode) String() string {
	switch m {
	case ModeReal:
		return "real"
	case ModeProtected:
		return "protected"
	case ModeVM86:
		return "vm86"
	default:
		return "unknown"
	}
}

// InternalError is the non-architectural failure class of spec.md §7: a
// malformed decoded block, an out-of-range save-state tag, or any other
// programmer error that is not recoverable and must halt the VM rather
// than be delivered as a guest-visible fault.
type InternalError struct {
	msg string
}

func (e *InternalError) Error() string { return "x86: internal error: " + e.msg }

func newInternalError(format string, args ...any) *InternalError {
	return &InternalError{msg: fmt.Sprintf(format, args...)}
}
