package x86

// ProcessorConfig holds the options spec.md §6 recognizes for this core.
// Unlike the teacher's CPUX86Config (which also carries hardware-routing
// fields for VGA/Voodoo port I/O — host integration, out of scope here),
// this struct only carries knobs the Processor itself consults.
type ProcessorConfig struct {
	// MaxInstructionsPerBlock bounds how many instructions the block
	// interpreter will run before yielding back to the host, independent
	// of how long the decoder's block actually is. Default 1000.
	MaxInstructionsPerBlock uint32

	// Logger receives diagnostic output (internal errors, triple faults).
	// Defaults to log.Default() when nil.
	Logger Logger
}

// DefaultMaxInstructionsPerBlock matches spec.md §6's documented default.
const DefaultMaxInstructionsPerBlock = 1000

// skipSleepsThreshold is the MaxInstructionsPerBlock value that enables the
// SKIP_SLEEPS fast path in HLT (spec.md §6): when the host caps blocks to a
// single instruction it is almost always stepping for a debugger, and
// busy-waiting through waitForInterrupt's real-time sleep would stall it.
const skipSleepsThreshold = 1

func (cfg ProcessorConfig) skipSleeps() bool {
	return cfg.MaxInstructionsPerBlock == skipSleepsThreshold
}

func (cfg ProcessorConfig) maxInstructions() uint32 {
	if cfg.MaxInstructionsPerBlock == 0 {
		return DefaultMaxInstructionsPerBlock
	}
	return cfg.MaxInstructionsPerBlock
}
