package output

import (
	"time"

	"github.com/fatih/color"
)

// ColorScheme defines the colors used for different elements of a report
type ColorScheme struct {
	Title    *color.Color
	Thread   *color.Color
	Region   *color.Color
	Fast     *color.Color
	Slow     *color.Color
	Critical *color.Color
	Pending  *color.Color
	Variable *color.Color
	Dim      *color.Color
	Error    *color.Color
}

// DefaultColorScheme returns the default color scheme
func DefaultColorScheme() *ColorScheme {
	return &ColorScheme{
		Title:    color.New(color.FgCyan, color.Bold),
		Thread:   color.New(color.FgMagenta, color.Bold),
		Region:   color.New(color.FgWhite),
		Fast:     color.New(color.FgGreen),
		Slow:     color.New(color.FgYellow),
		Critical: color.New(color.FgRed, color.Bold),
		Pending:  color.New(color.FgBlue, color.Italic),
		Variable: color.New(color.FgYellow),
		Dim:      color.New(color.Faint),
		Error:    color.New(color.FgRed),
	}
}

func (s *ColorScheme) all() []*color.Color {
	return []*color.Color{s.Title, s.Thread, s.Region, s.Fast, s.Slow, s.Critical, s.Pending, s.Variable, s.Dim, s.Error}
}

// NoColorScheme returns a color scheme with all colors disabled
func NoColorScheme() *ColorScheme {
	scheme := DefaultColorScheme()
	for _, c := range scheme.all() {
		c.DisableColor()
	}
	return scheme
}

// ForcedColorScheme returns the default scheme with colors enabled even
// when stdout is not a terminal.
func ForcedColorScheme() *ColorScheme {
	scheme := DefaultColorScheme()
	for _, c := range scheme.all() {
		c.EnableColor()
	}
	return scheme
}

// Thresholds of a region's share of its frame budget.
const (
	slowShare     = 0.5
	criticalShare = 1.0
)

// DurationColor picks the color for d measured against a frame budget.
// A zero budget colors every duration as fast.
func (s *ColorScheme) DurationColor(d, budget time.Duration) *color.Color {
	if budget <= 0 {
		return s.Fast
	}
	share := float64(d) / float64(budget)
	switch {
	case share >= criticalShare:
		return s.Critical
	case share >= slowShare:
		return s.Slow
	default:
		return s.Fast
	}
}
