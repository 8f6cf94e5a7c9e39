// Command x86dbg is an interactive register/breakpoint monitor for the
// x86 execution core. It does not decode or execute guest code itself —
// that's the host's job, wiring a real Instruction/BasicBlock decoder and
// memory backend (spec.md §6) — it only demonstrates driving a Processor's
// introspection surface (GetRegisters/SetRegister) and a Lua-scriptable
// breakpoint table from an interactive terminal session.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"golang.org/x/sync/errgroup"

	x86 "github.com/intuitionamiga/x86core"
)

func main() {
	cpu := x86.NewProcessor(x86.ProcessorConfig{})
	cpu.Start()

	bps := newBreakpointTable()
	termSession := newTerminalSession()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	lines := make(chan string)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return scanner.Err()
	})

	g.Go(func() error {
		printBanner()
		for {
			fmt.Print("x86dbg> ")
			select {
			case line, ok := <-lines:
				if !ok {
					return nil
				}
				if dispatch(cpu, bps, termSession, line) {
					return nil
				}
			case <-gctx.Done():
				return gctx.Err()
			}
		}
	})

	if err := g.Wait(); err != nil && err != context.Canceled {
		fmt.Fprintf(os.Stderr, "x86dbg: %v\n", err)
		os.Exit(1)
	}
}

func printBanner() {
	cols, _ := windowSize()
	fmt.Println(strings.Repeat("-", min(cols, 60)))
	fmt.Println("x86dbg - execution core debug monitor")
	fmt.Println(strings.Repeat("-", min(cols, 60)))
}

// dispatch executes one parsed monitor command; it returns true when the
// session should end.
func dispatch(cpu *x86.Processor, bps *breakpointTable, term *terminalSession, line string) bool {
	cmd := parseCommand(line)
	switch cmd.name {
	case "":
		return false
	case "quit", "exit", "q":
		return true
	case "regs", "r":
		printRegisters(cpu)
	case "set":
		cmdSet(cpu, cmd.args)
	case "break", "b":
		cmdBreak(bps, cmd.args)
	case "clear":
		cmdClear(bps, cmd.args)
	case "step", "s":
		cmdStep(cpu, term)
	case "copy":
		copyToClipboard(formatRegisters(cpu))
		fmt.Println("registers copied to clipboard")
	case "help", "?":
		printHelp()
	default:
		fmt.Printf("unknown command %q (try 'help')\n", cmd.name)
	}
	return false
}

func printRegisters(cpu *x86.Processor) {
	fmt.Print(formatRegisters(cpu))
}

func formatRegisters(cpu *x86.Processor) string {
	var b strings.Builder
	for _, r := range cpu.GetRegisters() {
		fmt.Fprintf(&b, "%-8s %0*x\n", r.Name, r.BitWidth/4, r.Value)
	}
	return b.String()
}

func cmdSet(cpu *x86.Processor, args []string) {
	if len(args) != 2 {
		fmt.Println("usage: set <reg> <value>")
		return
	}
	v, ok := parseAddress(args[1])
	if !ok {
		fmt.Printf("bad value %q\n", args[1])
		return
	}
	if !cpu.SetRegister(args[0], v) {
		fmt.Printf("unknown register %q\n", args[0])
	}
}

func cmdBreak(bps *breakpointTable, args []string) {
	if len(args) == 0 {
		fmt.Println("usage: break <addr> [lua-condition]")
		return
	}
	addr, ok := parseAddress(args[0])
	if !ok {
		fmt.Printf("bad address %q\n", args[0])
		return
	}
	cond := strings.Join(args[1:], " ")
	bps.set(addr, cond)
	fmt.Printf("breakpoint set at %#x\n", addr)
}

func cmdClear(bps *breakpointTable, args []string) {
	if len(args) != 1 {
		fmt.Println("usage: clear <addr>")
		return
	}
	addr, ok := parseAddress(args[0])
	if !ok {
		fmt.Printf("bad address %q\n", args[0])
		return
	}
	bps.clear(addr)
}

func cmdStep(cpu *x86.Processor, term *terminalSession) {
	fmt.Println("press any key to step...")
	if _, err := term.ReadKey(); err != nil {
		fmt.Printf("step: %v\n", err)
		return
	}
	fmt.Printf("eip=%08x (no decoder attached; nothing executed)\n", cpu.EIP())
}

func printHelp() {
	fmt.Println(`commands:
  regs, r                  print all registers
  set <reg> <value>        write a register
  break <addr> [cond]      arm a breakpoint, optionally with a Lua condition
  clear <addr>             disarm a breakpoint
  step, s                  single-step (press any key)
  copy                     copy the register dump to the clipboard
  quit, exit, q            leave the monitor`)
}

