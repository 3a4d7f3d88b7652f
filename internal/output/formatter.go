// Package output renders explain reports and bundle plans for terminals,
// machines and editor agents.
package output

import (
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// Format selects a renderer.
type Format string

const (
	FormatText   Format = "text"
	FormatJSON   Format = "json"
	FormatPrompt Format = "prompt" // plan only
)

// ParseFormat validates a --format value. Empty means text.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FormatText, nil
	case FormatText, FormatJSON, FormatPrompt:
		return f, nil
	}
	return "", fmt.Errorf("unknown output format %q (want text, json or prompt)", s)
}

// Formatter writes an explain report.
type Formatter interface {
	Format(r *Report, w io.Writer) error
}

// NewFormatter creates the explain formatter for f.
func NewFormatter(f Format, color bool) (Formatter, error) {
	switch f {
	case FormatText, "":
		return &TextFormatter{Color: color}, nil
	case FormatJSON:
		return &JSONFormatter{}, nil
	}
	return nil, fmt.Errorf("format %q is not available for explain", f)
}

// GetDefaultFormat honours JTRIAGE_OUTPUT, then falls back to text.
func GetDefaultFormat() Format {
	if f, err := ParseFormat(os.Getenv("JTRIAGE_OUTPUT")); err == nil {
		return f
	}
	return FormatText
}

// DetectColor reports whether w is an interactive terminal that accepts
// ANSI colour. NO_COLOR disables colour everywhere.
func DetectColor(w io.Writer) bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}

// TerminalWidth returns the width of w when it is a terminal, else def.
func TerminalWidth(w io.Writer, def int) int {
	f, ok := w.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return def
	}
	width, _, err := term.GetSize(int(f.Fd()))
	if err != nil || width <= 0 {
		return def
	}
	return width
}

const (
	ansiBold   = "\033[1m"
	ansiCyan   = "\033[36m"
	ansiYellow = "\033[33m"
	ansiRed    = "\033[31m"
	ansiReset  = "\033[0m"
)

type painter bool

func (p painter) paint(code, s string) string {
	if !p || s == "" {
		return s
	}
	return code + s + ansiReset
}

func (p painter) header(s string) string { return p.paint(ansiBold+ansiCyan, s) }
func (p painter) warn(s string) string   { return p.paint(ansiYellow, s) }
func (p painter) alert(s string) string  { return p.paint(ansiRed, s) }

// truncate cuts s to max runes and marks the cut with "...".
func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max]) + "..."
}
