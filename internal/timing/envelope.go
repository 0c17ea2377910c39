package timing

import (
	"fmt"
	"math"
	"strings"
)

// Envelope selects the gain curve applied across a crossfade window. The
// engine defaults to equal-power, which keeps perceived loudness flat while
// two chunks are blended; linear and smoothstep are available for callers
// that prefer a cheaper or softer curve.
type Envelope int

const (
	EnvelopeEqualPower Envelope = iota
	EnvelopeLinear
	EnvelopeSmoothstep
)

func (e Envelope) String() string {
	switch e {
	case EnvelopeEqualPower:
		return "equal-power"
	case EnvelopeLinear:
		return "linear"
	case EnvelopeSmoothstep:
		return "smoothstep"
	default:
		return "unknown"
	}
}

// ParseEnvelope converts a config string into an Envelope.
func ParseEnvelope(s string) (Envelope, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "equal-power", "equalpower":
		return EnvelopeEqualPower, nil
	case "linear":
		return EnvelopeLinear, nil
	case "smoothstep":
		return EnvelopeSmoothstep, nil
	default:
		return EnvelopeEqualPower, fmt.Errorf("unknown crossfade envelope %q", s)
	}
}

// Gains returns the outgoing and incoming gain factors at progress p through
// a crossfade, with p clamped to [0, 1]. At p=0 only the outgoing chunk is
// audible, at p=1 only the incoming one.
func (e Envelope) Gains(p float64) (out, in float64) {
	if p < 0 {
		p = 0
	}
	if p > 1 {
		p = 1
	}

	switch e {
	case EnvelopeLinear:
		return 1 - p, p
	case EnvelopeSmoothstep:
		g := smoothstep(p)
		return 1 - g, g
	default:
		return math.Cos(p * math.Pi / 2), math.Sin(p * math.Pi / 2)
	}
}

// smoothstep is the 3t^2 - 2t^3 interpolation for t in [0, 1].
func smoothstep(t float64) float64 {
	if t <= 0 {
		return 0
	}
	if t >= 1 {
		return 1
	}
	return t * t * (3 - 2*t)
}
