package main

import (
	"fmt"
	"os"
	"syscall"

	"golang.org/x/sys/unix"
	"golang.org/x/term"
)

// terminalSession puts stdin into raw mode for the duration of a single
// keypress read — used by the monitor's "step" command so a user can
// single-step by pressing any key without needing Enter, the same
// MakeRaw/Restore-around-a-read pairing the teacher's terminal_host.go
// uses for its guest-facing terminal device.
type terminalSession struct {
	fd int
}

func newTerminalSession() *terminalSession {
	return &terminalSession{fd: int(os.Stdin.Fd())}
}

// ReadKey reads one raw byte from stdin, restoring cooked mode before
// returning so the next command-line prompt behaves normally.
func (t *terminalSession) ReadKey() (byte, error) {
	if !term.IsTerminal(t.fd) {
		buf := make([]byte, 1)
		if _, err := os.Stdin.Read(buf); err != nil {
			return 0, err
		}
		return buf[0], nil
	}

	state, err := term.MakeRaw(t.fd)
	if err != nil {
		return 0, fmt.Errorf("x86dbg: raw mode: %w", err)
	}
	defer term.Restore(t.fd, state)

	buf := make([]byte, 1)
	n, err := syscall.Read(t.fd, buf)
	if err != nil || n == 0 {
		return 0, err
	}
	return buf[0], nil
}

// windowSize reports the host terminal's column/row count, used to size
// the banner's rule line; falls back to 80x24 when the ioctl fails
// (piped stdin, a non-terminal CI runner).
func windowSize() (cols, rows int) {
	ws, err := unix.IoctlGetWinsize(int(os.Stdout.Fd()), unix.TIOCGWINSZ)
	if err != nil {
		return 80, 24
	}
	return int(ws.Col), int(ws.Row)
}
