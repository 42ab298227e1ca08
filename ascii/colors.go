// Package ascii groups the engine's terminal color theme under
// semantic names so the CLI's error/trace output and the REPL share
// one palette instead of each picking its own ANSI codes.
package ascii

import "github.com/fatih/color"

// SprintFunc formats a value the way color.Color.SprintFunc does:
// wrap it in the color's escape codes (or pass it through untouched
// when color.NoColor is set, e.g. output isn't a TTY).
type SprintFunc func(a ...interface{}) string

// Theme maps each semantic role the CLI cares about to a formatting
// function, built on fatih/color so NO_COLOR / non-TTY detection and
// Windows console handling come for free instead of being
// reimplemented on top of raw escape sequences.
type Theme struct {
	// Diagnostic levels
	Error   SprintFunc
	Warning SprintFunc
	Info    SprintFunc
	Hint    SprintFunc

	// UI elements
	Muted   SprintFunc
	Accent  SprintFunc
	Success SprintFunc

	// Syntax highlighting (traceback frames, bytecode dumps, etc.)
	Operator SprintFunc
	Operand  SprintFunc
	Literal  SprintFunc
	Span     SprintFunc
	Comment  SprintFunc
	Label    SprintFunc
}

func sprint(attrs ...color.Attribute) SprintFunc {
	return color.New(attrs...).SprintFunc()
}

// DefaultTheme is the engine's default color mapping, one
// attribute set per semantic role.
var DefaultTheme = Theme{
	Error:   sprint(color.FgRed, color.Bold),
	Warning: sprint(color.FgYellow, color.Bold),
	Info:    sprint(color.FgCyan),
	Hint:    sprint(color.FgHiBlack),

	Muted:   sprint(color.FgHiBlack),
	Accent:  sprint(color.FgCyan, color.Bold),
	Success: sprint(color.FgGreen, color.Bold),

	Operator: sprint(color.FgMagenta, color.Bold),
	Operand:  sprint(color.FgMagenta),
	Literal:  sprint(color.FgGreen),
	Span:     sprint(color.FgYellow),
	Comment:  sprint(color.FgHiBlack),
	Label:    sprint(color.FgRed),
}
