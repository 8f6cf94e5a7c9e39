package x86

// TSS field byte offsets (spec.md §4.7). The 32-bit TSS layout; the 16-bit
// layout is a distinct, narrower struct handled by its own read/write pair.
const (
	tss32Link  = 0x00
	tss32ESP0  = 0x04
	tss32SS0   = 0x08
	tss32ESP1  = 0x0C
	tss32SS1   = 0x10
	tss32ESP2  = 0x14
	tss32SS2   = 0x18
	tss32CR3   = 0x1C
	tss32EIP   = 0x20
	tss32EFLAGS = 0x24
	tss32EAX   = 0x28
	tss32ECX   = 0x2C
	tss32EDX   = 0x30
	tss32EBX   = 0x34
	tss32ESP   = 0x38
	tss32EBP   = 0x3C
	tss32ESI   = 0x40
	tss32EDI   = 0x44
	tss32ES    = 0x48
	tss32CS    = 0x4C
	tss32SS    = 0x50
	tss32DS    = 0x54
	tss32FS    = 0x58
	tss32GS    = 0x5C
	tss32LDT   = 0x60
	tss32IOMap = 0x64 // T bit (bit16) + I/O map base, low word only used here
)

const (
	tss16Link = 0x00
	tss16SP0  = 0x02
	tss16SS0  = 0x04
	tss16SP1  = 0x06
	tss16SS1  = 0x08
	tss16SP2  = 0x0A
	tss16SS2  = 0x0C
	tss16IP   = 0x0E
	tss16FLAGS = 0x10
	tss16AX   = 0x12
	tss16CX   = 0x14
	tss16DX   = 0x16
	tss16BX   = 0x18
	tss16SP   = 0x1A
	tss16BP   = 0x1C
	tss16SI   = 0x1E
	tss16DI   = 0x20
	tss16ES   = 0x22
	tss16CS   = 0x24
	tss16SS   = 0x26
	tss16DS   = 0x28
	tss16LDT  = 0x2A
)

// tssRead32/tssWrite32/tssRead16/tssWrite16 are the scoped-supervisor
// accessors every TSS field read/write goes through, matching the
// descriptor-table access pattern.
func (p *Processor) tssRead32(off uint32) uint32 {
	restore := p.withSupervisor(p.tr.mem)
	defer restore()
	return p.tr.mem.GetDoubleWord(p.tr.base + off)
}
func (p *Processor) tssWrite32(off uint32, v uint32) {
	restore := p.withSupervisor(p.tr.mem)
	defer restore()
	p.tr.mem.SetDoubleWord(p.tr.base+off, v)
}
func (p *Processor) tssRead16(off uint32) uint16 {
	restore := p.withSupervisor(p.tr.mem)
	defer restore()
	return p.tr.mem.GetWord(p.tr.base + off)
}
func (p *Processor) tssWrite16(off uint32, v uint16) {
	restore := p.withSupervisor(p.tr.mem)
	defer restore()
	p.tr.mem.SetWord(p.tr.base+off, v)
}

// readTSSStackPointer returns the SS:ESP (or SS:SP, 16-bit TSS) pair for
// privilege level `level` (0, 1, or 2; level 3 has no stored stack —
// spec.md §4.5/§4.7).
func (p *Processor) readTSSStackPointer(level uint8) (selector uint16, esp uint32) {
	if p.tr.kind == SegTSS32 {
		switch level {
		case 0:
			return uint16(p.tssRead32(tss32SS0)), p.tssRead32(tss32ESP0)
		case 1:
			return uint16(p.tssRead32(tss32SS1)), p.tssRead32(tss32ESP1)
		default:
			return uint16(p.tssRead32(tss32SS2)), p.tssRead32(tss32ESP2)
		}
	}
	switch level {
	case 0:
		return p.tssRead16(tss16SS0), uint32(p.tssRead16(tss16SP0))
	case 1:
		return p.tssRead16(tss16SS1), uint32(p.tssRead16(tss16SP1))
	default:
		return p.tssRead16(tss16SS2), uint32(p.tssRead16(tss16SP2))
	}
}

// tss32Snapshot holds a decoded 32-bit TSS image for the duration of a
// task switch (spec.md §4.7 steps 4-8): saved out of the outgoing
// task, then used to validate and load the incoming one.
type tss32Snapshot struct {
	eip, eflags                   uint32
	eax, ecx, edx, ebx             uint32
	esp, ebp, esi, edi             uint32
	es, cs, ss, ds, fs, gs, ldt    uint16
	cr3                            uint32
}

func (p *Processor) readTSS32() tss32Snapshot {
	return tss32Snapshot{
		eip: p.tssRead32(tss32EIP), eflags: p.tssRead32(tss32EFLAGS),
		eax: p.tssRead32(tss32EAX), ecx: p.tssRead32(tss32ECX),
		edx: p.tssRead32(tss32EDX), ebx: p.tssRead32(tss32EBX),
		esp: p.tssRead32(tss32ESP), ebp: p.tssRead32(tss32EBP),
		esi: p.tssRead32(tss32ESI), edi: p.tssRead32(tss32EDI),
		es: p.tssRead16(tss32ES), cs: p.tssRead16(tss32CS), ss: p.tssRead16(tss32SS),
		ds: p.tssRead16(tss32DS), fs: p.tssRead16(tss32FS), gs: p.tssRead16(tss32GS),
		ldt: p.tssRead16(tss32LDT), cr3: p.tssRead32(tss32CR3),
	}
}

func (p *Processor) writeTSS32(s tss32Snapshot) {
	p.tssWrite32(tss32EIP, s.eip)
	p.tssWrite32(tss32EFLAGS, s.eflags)
	p.tssWrite32(tss32EAX, s.eax)
	p.tssWrite32(tss32ECX, s.ecx)
	p.tssWrite32(tss32EDX, s.edx)
	p.tssWrite32(tss32EBX, s.ebx)
	p.tssWrite32(tss32ESP, s.esp)
	p.tssWrite32(tss32EBP, s.ebp)
	p.tssWrite32(tss32ESI, s.esi)
	p.tssWrite32(tss32EDI, s.edi)
	p.tssWrite16(tss32ES, s.es)
	p.tssWrite16(tss32CS, s.cs)
	p.tssWrite16(tss32SS, s.ss)
	p.tssWrite16(tss32DS, s.ds)
	p.tssWrite16(tss32FS, s.fs)
	p.tssWrite16(tss32GS, s.gs)
}
