package stats

import (
	"testing"

	"github.com/wesleyorama2/tinyprof/prof"
)

func frame(i uint64) prof.FrameReport {
	return prof.FrameReport{FrameIndex: i}
}

func TestHistory_RingBuffer(t *testing.T) {
	h := NewHistory(3)

	for i := uint64(0); i < 5; i++ {
		h.Add(frame(i))
	}

	if h.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", h.Len())
	}

	reports := h.Reports()
	for i, want := range []uint64{2, 3, 4} {
		if reports[i].FrameIndex != want {
			t.Errorf("Reports()[%d].FrameIndex = %d, want %d", i, reports[i].FrameIndex, want)
		}
	}

	latest, ok := h.Latest()
	if !ok || latest.FrameIndex != 4 {
		t.Errorf("Latest() = %d, %v, want 4, true", latest.FrameIndex, ok)
	}
}

func TestHistory_Empty(t *testing.T) {
	h := NewHistory(0)

	if _, ok := h.Latest(); ok {
		t.Error("Latest() on empty history returned ok")
	}
	if got := h.Reports(); len(got) != 0 {
		t.Errorf("Reports() = %d reports, want 0", len(got))
	}
	if h.max != DefaultHistoryFrames {
		t.Errorf("max = %d, want %d", h.max, DefaultHistoryFrames)
	}
}

func TestHistory_Resolve(t *testing.T) {
	h := NewHistory(4)
	h.Add(prof.FrameReport{FrameIndex: 1, Roots: []prof.Node{{Name: "gpu", ID: "gpu", Pending: true}}})

	tests := []struct {
		name string
		res  prof.Resolution
		want bool
	}{
		{"wrong frame", prof.Resolution{Frame: 2, Path: []int{0}, ID: "gpu"}, false},
		{"wrong id", prof.Resolution{Frame: 1, Path: []int{0}, ID: "cpu"}, false},
		{"bad path", prof.Resolution{Frame: 1, Path: []int{3}, ID: "gpu"}, false},
		{"match", prof.Resolution{Frame: 1, Path: []int{0}, ID: "gpu", Duration: 42}, true},
		{"already resolved", prof.Resolution{Frame: 1, Path: []int{0}, ID: "gpu"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := h.Resolve(tt.res); got != tt.want {
				t.Errorf("Resolve() = %v, want %v", got, tt.want)
			}
		})
	}

	latest, _ := h.Latest()
	if latest.Roots[0].Duration != 42 || latest.Roots[0].Pending {
		t.Errorf("resolved node = %+v", latest.Roots[0])
	}
}

func TestHistory_Reset(t *testing.T) {
	h := NewHistory(2)
	h.Add(frame(1))
	h.Reset()

	if h.Len() != 0 {
		t.Errorf("Len() after Reset = %d, want 0", h.Len())
	}
}
