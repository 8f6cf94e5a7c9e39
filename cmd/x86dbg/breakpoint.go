package main

import (
	"fmt"

	lua "github.com/yuin/gopher-lua"

	x86 "github.com/intuitionamiga/x86core"
)

// conditionalBreakpoint pairs an address with a Lua expression evaluated
// against the processor's registers every time execution reaches that
// address; the breakpoint fires only when the expression is truthy. This
// mirrors the teacher's ConditionalBreakpoint concept (debug_cpu_x86.go /
// debug_commands.go) but scripts the condition instead of hard-coding a
// fixed comparison set.
type conditionalBreakpoint struct {
	addr      uint64
	condition string
}

// breakpointTable holds every armed breakpoint, keyed by address.
type breakpointTable struct {
	entries map[uint64]*conditionalBreakpoint
}

func newBreakpointTable() *breakpointTable {
	return &breakpointTable{entries: make(map[uint64]*conditionalBreakpoint)}
}

func (t *breakpointTable) set(addr uint64, condition string) {
	t.entries[addr] = &conditionalBreakpoint{addr: addr, condition: condition}
}

func (t *breakpointTable) clear(addr uint64) {
	delete(t.entries, addr)
}

// shouldStop evaluates the breakpoint armed at EIP (if any) against the
// processor's current register state, returning whether execution should
// actually halt there.
func (t *breakpointTable) shouldStop(cpu *x86.Processor) bool {
	bp, ok := t.entries[uint64(cpu.EIP())]
	if !ok {
		return false
	}
	if bp.condition == "" {
		return true
	}
	hit, err := evalCondition(bp.condition, cpu)
	if err != nil {
		fmt.Printf("x86dbg: breakpoint condition error at %#x: %v\n", bp.addr, err)
		return true // fail open: stop rather than silently skip
	}
	return hit
}

// evalCondition runs a Lua expression with every general register bound as
// a global number, returning the truthiness of the expression's result.
// A fresh lua.LState per evaluation keeps this simple at the cost of some
// overhead, acceptable for an interactive monitor (not the hot path).
func evalCondition(condition string, cpu *x86.Processor) (bool, error) {
	L := lua.NewState()
	defer L.Close()

	for _, r := range cpu.GetRegisters() {
		L.SetGlobal(r.Name, lua.LNumber(r.Value))
	}

	if err := L.DoString("__result = (" + condition + ")"); err != nil {
		return false, err
	}
	result := L.GetGlobal("__result")
	return lua.LVAsBool(result), nil
}
