package ui

import (
	"fmt"
	"strings"

	"github.com/mkaleva/chunkcast/internal/engine"
	"github.com/mkaleva/chunkcast/internal/timing"
)

const (
	barPlayed    = '█'
	barCrossfade = '▒'
	barEmpty     = '░'
)

// formatDuration renders seconds as M:SS (or H:MM:SS past an hour).
func formatDuration(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	total := int(seconds)
	h := total / 3600
	m := (total % 3600) / 60
	s := total % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

// renderProgress draws the playhead bar with the crossfade regions marked, so
// the overlap windows are visible at a glance.
func renderProgress(width int, position, duration float64, regions []timing.Region) string {
	if width <= 0 || duration <= 0 {
		return ""
	}

	cells := make([]rune, width)
	perCell := duration / float64(width)
	playedCells := int(position / perCell)

	for i := range cells {
		switch {
		case i < playedCells:
			cells[i] = barPlayed
		case cellInRegion(float64(i)*perCell, perCell, regions):
			cells[i] = barCrossfade
		default:
			cells[i] = barEmpty
		}
	}
	return string(cells)
}

// cellInRegion reports whether the cell covering [start, start+width) touches
// any crossfade region.
func cellInRegion(start, width float64, regions []timing.Region) bool {
	for _, r := range regions {
		if start < r.End && start+width > r.Start {
			return true
		}
	}
	return false
}

// statusLine renders the one-line transport status.
func statusLine(state engine.State, volume int, muted bool) string {
	parts := []string{stateLabel(state)}
	if muted {
		parts = append(parts, "MUTED")
	} else {
		parts = append(parts, fmt.Sprintf("vol %d%%", volume))
	}
	return joinParts(parts)
}

func stateLabel(state engine.State) string {
	switch state {
	case engine.StatePlaying:
		return "▶ PLAYING"
	case engine.StatePaused:
		return "⏸ PAUSED"
	case engine.StateLoading:
		return "◌ BUFFERING"
	case engine.StateSeeking:
		return "↔ SEEKING"
	case engine.StateSwitchingPreset:
		return "≈ SWITCHING"
	case engine.StateError:
		return "✕ ERROR"
	default:
		return state.String()
	}
}

// presetLine renders the hotkey row with the active preset highlighted.
func presetLine(settings engine.Settings) string {
	parts := []string{"0 off"}
	if !settings.Enabled {
		parts[0] = "[yellow]0 off[-]"
	}
	for i, preset := range presetHotkeys {
		label := fmt.Sprintf("%d %s", i+1, preset)
		if settings.Enabled && settings.Preset == preset {
			label = "[yellow]" + label + "[-]"
		}
		parts = append(parts, label)
	}
	return joinParts(parts)
}

func presetLabel(preset string) string {
	if preset == "" {
		return "off"
	}
	return preset
}

func joinParts(parts []string) string {
	return strings.Join(parts, " │ ")
}

// extractErrorReason distills an error chain into something short enough for
// the toast line.
func extractErrorReason(err error) string {
	if err == nil {
		return "unknown error"
	}
	msg := err.Error()

	switch {
	case strings.Contains(msg, "no such host"):
		return "Unable to connect: host not found"
	case strings.Contains(msg, "connection refused"):
		return "Connection refused"
	case strings.Contains(msg, "deadline exceeded"), strings.Contains(msg, "Timeout"):
		return "Request timed out"
	case strings.Contains(msg, "network is unreachable"):
		return "Network is unreachable"
	}

	// Keep only the innermost segment of a wrapped chain.
	if idx := strings.LastIndex(msg, ": "); idx >= 0 && idx+2 < len(msg) {
		msg = msg[idx+2:]
	}
	if len(msg) > 80 {
		msg = msg[:77] + "..."
	}
	return msg
}
