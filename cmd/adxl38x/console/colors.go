package console

import "github.com/fatih/color"

// Available ANSI colors
var (
	Yellow = color.New(color.FgYellow).SprintFunc()
	Red    = color.New(color.FgRed).SprintFunc()
	Green  = color.New(color.FgGreen).SprintFunc()
	White  = color.New(color.FgHiWhite).SprintFunc()
	Bold   = color.New(color.Bold).SprintFunc()
)

// Flag renders a boolean status, yellow when raised.
func Flag(v bool) string {
	if v {
		return Yellow(v)
	}
	return Green(v)
}

// Hex renders a register value.
func Hex(b byte) string {
	return White(fmtHex(b))
}
