package x86

import "strings"

// RegisterInfo describes one register for a debug monitor's register pane,
// adapted from the teacher's debug_cpu_x86.go RegisterInfo shape.
type RegisterInfo struct {
	Name     string
	BitWidth int
	Value    uint64
	Group    string
}

// GetRegisters returns a snapshot of every architectural register this
// core exposes for introspection, grouped the way the teacher's debug
// adapter groups them (general/flags/segment/control).
func (p *Processor) GetRegisters() []RegisterInfo {
	return []RegisterInfo{
		{Name: "EAX", BitWidth: 32, Value: uint64(p.Regs.EAX()), Group: "general"},
		{Name: "EBX", BitWidth: 32, Value: uint64(p.Regs.EBX()), Group: "general"},
		{Name: "ECX", BitWidth: 32, Value: uint64(p.Regs.ECX()), Group: "general"},
		{Name: "EDX", BitWidth: 32, Value: uint64(p.Regs.EDX()), Group: "general"},
		{Name: "ESI", BitWidth: 32, Value: uint64(p.Regs.ESI()), Group: "general"},
		{Name: "EDI", BitWidth: 32, Value: uint64(p.Regs.EDI()), Group: "general"},
		{Name: "EBP", BitWidth: 32, Value: uint64(p.Regs.EBP()), Group: "general"},
		{Name: "ESP", BitWidth: 32, Value: uint64(p.Regs.ESP()), Group: "general"},
		{Name: "EIP", BitWidth: 32, Value: uint64(p.eip), Group: "general"},
		{Name: "EFLAGS", BitWidth: 32, Value: uint64(p.flags.EFlags()), Group: "flags"},
		{Name: "CS", BitWidth: 16, Value: uint64(p.cs.GetSelector()), Group: "segment"},
		{Name: "DS", BitWidth: 16, Value: uint64(p.ds.GetSelector()), Group: "segment"},
		{Name: "ES", BitWidth: 16, Value: uint64(p.es.GetSelector()), Group: "segment"},
		{Name: "SS", BitWidth: 16, Value: uint64(p.ss.GetSelector()), Group: "segment"},
		{Name: "FS", BitWidth: 16, Value: uint64(p.fs.GetSelector()), Group: "segment"},
		{Name: "GS", BitWidth: 16, Value: uint64(p.gs.GetSelector()), Group: "segment"},
		{Name: "CR0", BitWidth: 32, Value: uint64(p.control.CR0()), Group: "control"},
		{Name: "CR2", BitWidth: 32, Value: uint64(p.control.CR2()), Group: "control"},
		{Name: "CR3", BitWidth: 32, Value: uint64(p.control.CR3()), Group: "control"},
		{Name: "CR4", BitWidth: 32, Value: uint64(p.control.CR4()), Group: "control"},
		{Name: "CPL", BitWidth: 8, Value: uint64(p.control.CPL()), Group: "control"},
	}
}

// GetRegister resolves a register by name (case-insensitive), for a debug
// monitor's ":print reg" style command.
func (p *Processor) GetRegister(name string) (uint64, bool) {
	switch strings.ToUpper(name) {
	case "EAX":
		return uint64(p.Regs.EAX()), true
	case "EBX":
		return uint64(p.Regs.EBX()), true
	case "ECX":
		return uint64(p.Regs.ECX()), true
	case "EDX":
		return uint64(p.Regs.EDX()), true
	case "ESI":
		return uint64(p.Regs.ESI()), true
	case "EDI":
		return uint64(p.Regs.EDI()), true
	case "EBP":
		return uint64(p.Regs.EBP()), true
	case "ESP":
		return uint64(p.Regs.ESP()), true
	case "EIP":
		return uint64(p.eip), true
	case "FLAGS", "EFLAGS":
		return uint64(p.flags.EFlags()), true
	case "CS":
		return uint64(p.cs.GetSelector()), true
	case "DS":
		return uint64(p.ds.GetSelector()), true
	case "ES":
		return uint64(p.es.GetSelector()), true
	case "SS":
		return uint64(p.ss.GetSelector()), true
	case "FS":
		return uint64(p.fs.GetSelector()), true
	case "GS":
		return uint64(p.gs.GetSelector()), true
	case "CR0":
		return uint64(p.control.CR0()), true
	case "CR2":
		return uint64(p.control.CR2()), true
	case "CR3":
		return uint64(p.control.CR3()), true
	case "CR4":
		return uint64(p.control.CR4()), true
	case "CPL":
		return uint64(p.control.CPL()), true
	}
	return 0, false
}

// SetRegister writes a register by name for a debug monitor's "set"
// command. Only the eight 32-bit general-purpose registers, EIP and
// EFLAGS are writable; any other name, including segment and control
// registers, is rejected (false).
func (p *Processor) SetRegister(name string, value uint64) bool {
	switch strings.ToUpper(name) {
	case "EAX":
		p.Regs.SetEAX(uint32(value))
	case "EBX":
		p.Regs.SetEBX(uint32(value))
	case "ECX":
		p.Regs.SetECX(uint32(value))
	case "EDX":
		p.Regs.SetEDX(uint32(value))
	case "ESI":
		p.Regs.SetESI(uint32(value))
	case "EDI":
		p.Regs.SetEDI(uint32(value))
	case "EBP":
		p.Regs.SetEBP(uint32(value))
	case "ESP":
		p.Regs.SetESP(uint32(value))
	case "EIP":
		p.eip = uint32(value)
	case "FLAGS", "EFLAGS":
		p.flags.SetEFlags(uint32(value), 0xFFFFFFFF)
	default:
		return false
	}
	return true
}

// PrintState writes a human-readable dump of the full architectural state
// to the configured Logger, in the order a host's crash/fault report would
// want to read it.
func (p *Processor) PrintState() {
	l := p.cfg.Logger
	l.Printf("[x86] mode=%s cpl=%d halted=%v", p.mode, p.control.CPL(), p.control.Halted())
	l.Printf("[x86] eax=%08x ebx=%08x ecx=%08x edx=%08x", p.Regs.EAX(), p.Regs.EBX(), p.Regs.ECX(), p.Regs.EDX())
	l.Printf("[x86] esi=%08x edi=%08x ebp=%08x esp=%08x", p.Regs.ESI(), p.Regs.EDI(), p.Regs.EBP(), p.Regs.ESP())
	l.Printf("[x86] eip=%08x eflags=%08x", p.eip, p.flags.EFlags())
	l.Printf("[x86] cs=%04x ss=%04x ds=%04x es=%04x fs=%04x gs=%04x",
		p.cs.GetSelector(), p.ss.GetSelector(), p.ds.GetSelector(), p.es.GetSelector(), p.fs.GetSelector(), p.gs.GetSelector())
	l.Printf("[x86] cr0=%08x cr2=%08x cr3=%08x cr4=%08x", p.control.CR0(), p.control.CR2(), p.control.CR3(), p.control.CR4())
}
