// Package x86 implements the execution core of an IA-32 (Pentium-class)
// software emulator: the architectural register/flag/segment/control state,
// the fault and interrupt delivery machinery, task switching, and the
// basic-block interpreter loop that drives externally-decoded instructions
// against that state.
//
// The decoder, individual instruction semantics, the backing memory
// subsystem, the FPU, the interrupt controller/clock, and host integration
// (disk, display, save-state transport) are not part of this package; they
// are reached only through the collaborator interfaces in interfaces.go.
package x86
