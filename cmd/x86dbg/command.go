package main

import (
	"strconv"
	"strings"
)

// monitorCommand is a parsed command line: a name plus its raw arguments,
// the same shape the teacher's debug monitor parses commands into.
type monitorCommand struct {
	name string
	args []string
}

func parseCommand(input string) monitorCommand {
	input = strings.TrimSpace(input)
	if input == "" {
		return monitorCommand{}
	}
	parts := strings.Fields(input)
	return monitorCommand{name: strings.ToLower(parts[0]), args: parts[1:]}
}

// parseAddress parses a monitor address in $hex, 0xhex, #decimal, or bare
// hex form.
func parseAddress(s string) (uint64, bool) {
	s = strings.TrimSpace(s)
	switch {
	case strings.HasPrefix(s, "#"):
		v, err := strconv.ParseUint(s[1:], 10, 64)
		return v, err == nil
	case strings.HasPrefix(s, "$"):
		v, err := strconv.ParseUint(s[1:], 16, 64)
		return v, err == nil
	case strings.HasPrefix(s, "0x"), strings.HasPrefix(s, "0X"):
		v, err := strconv.ParseUint(s[2:], 16, 64)
		return v, err == nil
	default:
		v, err := strconv.ParseUint(s, 16, 64)
		return v, err == nil
	}
}
