package output

import (
	"testing"
	"time"
)

func TestColorSchemes(t *testing.T) {
	for name, scheme := range map[string]*ColorScheme{
		"default": DefaultColorScheme(),
		"none":    NoColorScheme(),
		"forced":  ForcedColorScheme(),
	} {
		for i, c := range scheme.all() {
			if c == nil {
				t.Errorf("%s scheme: color %d is nil", name, i)
			}
		}
	}

	if got := NoColorScheme().Region.Sprint("update"); got != "update" {
		t.Errorf("NoColorScheme rendered %q, want plain text", got)
	}
	if got := ForcedColorScheme().Region.Sprint("update"); got == "update" {
		t.Error("ForcedColorScheme rendered plain text, want escape codes")
	}
}

func TestDurationColor(t *testing.T) {
	s := DefaultColorScheme()
	budget := 10 * time.Millisecond

	tests := []struct {
		name   string
		d      time.Duration
		budget time.Duration
		want   any
	}{
		{"fast", time.Millisecond, budget, s.Fast},
		{"slow", 6 * time.Millisecond, budget, s.Slow},
		{"critical", 12 * time.Millisecond, budget, s.Critical},
		{"no budget", time.Hour, 0, s.Fast},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := s.DurationColor(tt.d, tt.budget); got != tt.want {
				t.Errorf("DurationColor(%v, %v) picked the wrong color", tt.d, tt.budget)
			}
		})
	}
}
