package ui

import (
	"errors"
	"strings"
	"testing"

	"github.com/mkaleva/chunkcast/internal/engine"
	"github.com/mkaleva/chunkcast/internal/timing"
)

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		seconds  float64
		expected string
	}{
		{0, "0:00"},
		{5.4, "0:05"},
		{65, "1:05"},
		{600, "10:00"},
		{3661, "1:01:01"},
		{-3, "0:00"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			if got := formatDuration(tt.seconds); got != tt.expected {
				t.Errorf("formatDuration(%v) = %q, want %q", tt.seconds, got, tt.expected)
			}
		})
	}
}

func TestRenderProgress(t *testing.T) {
	regions, err := timing.Regions(100, 10, 15)
	if err != nil {
		t.Fatal(err)
	}

	t.Run("empty at start", func(t *testing.T) {
		bar := renderProgress(20, 0, 100, regions)
		if runeCount(bar) != 20 {
			t.Fatalf("bar width = %d, want 20", runeCount(bar))
		}
		if strings.ContainsRune(bar, barPlayed) {
			t.Errorf("bar %q contains played cells at position 0", bar)
		}
	})

	t.Run("half played", func(t *testing.T) {
		bar := []rune(renderProgress(20, 50, 100, regions))
		for i := 0; i < 10; i++ {
			if bar[i] != barPlayed {
				t.Errorf("cell %d = %q, want played", i, bar[i])
			}
		}
		if bar[15] == barPlayed {
			t.Errorf("cell 15 marked played at position 50")
		}
	})

	t.Run("crossfade regions marked", func(t *testing.T) {
		bar := renderProgress(20, 0, 100, regions)
		if !strings.ContainsRune(bar, barCrossfade) {
			t.Errorf("bar %q has no crossfade cells", bar)
		}
	})

	t.Run("no regions", func(t *testing.T) {
		bar := renderProgress(10, 0, 100, nil)
		if strings.ContainsRune(bar, barCrossfade) {
			t.Errorf("bar %q has crossfade cells without regions", bar)
		}
	})

	t.Run("degenerate sizes", func(t *testing.T) {
		if got := renderProgress(0, 0, 100, nil); got != "" {
			t.Errorf("renderProgress(0, ...) = %q, want empty", got)
		}
		if got := renderProgress(10, 0, 0, nil); got != "" {
			t.Errorf("renderProgress with zero duration = %q, want empty", got)
		}
	})
}

func TestStatusLine(t *testing.T) {
	got := statusLine(engine.StatePlaying, 70, false)
	if !strings.Contains(got, "PLAYING") || !strings.Contains(got, "70%") {
		t.Errorf("statusLine = %q, want playing with volume", got)
	}

	got = statusLine(engine.StatePaused, 70, true)
	if !strings.Contains(got, "MUTED") {
		t.Errorf("statusLine muted = %q, want MUTED", got)
	}
	if strings.Contains(got, "70%") {
		t.Errorf("statusLine muted = %q, should not show volume", got)
	}
}

func TestStateLabel(t *testing.T) {
	states := []engine.State{
		engine.StateIdle, engine.StateLoading, engine.StateReady,
		engine.StatePlaying, engine.StatePaused, engine.StateSeeking,
		engine.StateSwitchingPreset, engine.StateError,
	}
	seen := make(map[string]bool)
	for _, s := range states {
		label := stateLabel(s)
		if label == "" {
			t.Errorf("stateLabel(%v) is empty", s)
		}
		if seen[label] {
			t.Errorf("stateLabel(%v) = %q is not unique", s, label)
		}
		seen[label] = true
	}
}

func TestPresetLine(t *testing.T) {
	got := presetLine(engine.Settings{Enabled: true, Preset: "warm"})
	if !strings.Contains(got, "[yellow]1 warm[-]") {
		t.Errorf("presetLine = %q, want warm highlighted", got)
	}

	got = presetLine(engine.Settings{Enabled: false, Preset: "warm"})
	if !strings.Contains(got, "[yellow]0 off[-]") {
		t.Errorf("presetLine disabled = %q, want off highlighted", got)
	}
	if strings.Contains(got, "[yellow]1 warm[-]") {
		t.Errorf("presetLine disabled = %q, warm should not be highlighted", got)
	}
}

func TestPresetLabel(t *testing.T) {
	if got := presetLabel(""); got != "off" {
		t.Errorf("presetLabel(\"\") = %q, want off", got)
	}
	if got := presetLabel("bright"); got != "bright" {
		t.Errorf("presetLabel(bright) = %q", got)
	}
}

func TestJoinParts(t *testing.T) {
	tests := []struct {
		name     string
		parts    []string
		expected string
	}{
		{"nil", nil, ""},
		{"single", []string{"PLAYING"}, "PLAYING"},
		{"two", []string{"PLAYING", "vol 70%"}, "PLAYING │ vol 70%"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := joinParts(tt.parts); got != tt.expected {
				t.Errorf("joinParts(%v) = %q, want %q", tt.parts, got, tt.expected)
			}
		})
	}
}

func TestExtractErrorReason(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		contains string
	}{
		{"nil", nil, "unknown"},
		{"no such host", errors.New("dial tcp: lookup example.com: no such host"), "host not found"},
		{"refused", errors.New("dial tcp 127.0.0.1:80: connection refused"), "refused"},
		{"timeout", errors.New("context deadline exceeded"), "timed out"},
		{"unreachable", errors.New("dial tcp: network is unreachable"), "unreachable"},
		{"wrapped", errors.New("failed to fetch chunk: backend returned status 500"), "backend returned status 500"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := extractErrorReason(tt.err)
			if !strings.Contains(got, tt.contains) {
				t.Errorf("extractErrorReason(%v) = %q, want substring %q", tt.err, got, tt.contains)
			}
		})
	}
}

func TestExtractErrorReasonTruncation(t *testing.T) {
	long := errors.New(strings.Repeat("x", 200))
	if got := extractErrorReason(long); len(got) > 80 {
		t.Errorf("long error not truncated, length %d", len(got))
	}
}

func runeCount(s string) int {
	n := 0
	for range s {
		n++
	}
	return n
}
