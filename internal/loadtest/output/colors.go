package output

import (
	"github.com/fatih/color"
)

// ColorScheme defines the colors used for the parts of the summary.
type ColorScheme struct {
	Title     *color.Color
	Metric    *color.Color
	Value     *color.Color
	Dim       *color.Color
	Pass      *color.Color
	Warn      *color.Color
	Fail      *color.Color
	Highlight *color.Color
}

// DefaultColorScheme returns the default color scheme
func DefaultColorScheme() *ColorScheme {
	return &ColorScheme{
		Title:     color.New(color.FgCyan, color.Bold),
		Metric:    color.New(color.FgWhite),
		Value:     color.New(color.FgCyan),
		Dim:       color.New(color.Faint),
		Pass:      color.New(color.FgGreen),
		Warn:      color.New(color.FgYellow),
		Fail:      color.New(color.FgRed),
		Highlight: color.New(color.FgMagenta, color.Bold),
	}
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

func (s *ColorScheme) all() []*color.Color {
	return []*color.Color{s.Title, s.Metric, s.Value, s.Dim, s.Pass, s.Warn, s.Fail, s.Highlight}
}

// rateColor picks pass, warn or fail for a success ratio.
func (s *ColorScheme) rateColor(rate float64) *color.Color {
	switch {
	case rate >= 0.99:
		return s.Pass
	case rate >= 0.95:
		return s.Warn
	default:
		return s.Fail
	}
}

// PassIcon returns a checkmark with the scheme's pass color.
func (s *ColorScheme) PassIcon() string {
	return s.Pass.Sprint("✓")
}

// FailIcon returns a cross with the scheme's fail color.
func (s *ColorScheme) FailIcon() string {
	return s.Fail.Sprint("✗")
}
