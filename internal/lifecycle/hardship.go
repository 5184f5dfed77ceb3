package lifecycle

import (
	opensimplex "github.com/ojrac/opensimplex-go"

	"github.com/talgya/dynasty/internal/theme"
)

// Hardship is a smooth per-year mortality multiplier. Bad stretches (famine,
// plague) and good ones come and go over a span of years instead of being
// drawn independently each turn.
type Hardship struct {
	noise     opensimplex.Noise
	amplitude float64
	frequency float64
}

// NewHardship returns the hardship curve for a seed. A zero amplitude gives a
// flat curve.
func NewHardship(cfg theme.Hardship, seed int64) *Hardship {
	return &Hardship{
		noise:     opensimplex.NewNormalized(seed),
		amplitude: cfg.Amplitude,
		frequency: cfg.Frequency,
	}
}

// Multiplier returns the factor applied to every death chance in year, in
// [1-amplitude, 1+amplitude]. A nil Hardship is neutral.
func (h *Hardship) Multiplier(year int) float64 {
	if h == nil || h.amplitude == 0 {
		return 1
	}
	n := octaveNoise(h.noise, float64(year)*h.frequency, 2, 0.5)
	return 1 + h.amplitude*(2*n-1)
}

// Severe reports whether year is in the worst quarter of the curve.
func (h *Hardship) Severe(year int) bool {
	if h == nil || h.amplitude == 0 {
		return false
	}
	return h.Multiplier(year) >= 1+h.amplitude/2
}

// octaveNoise layers two or more frequencies of normalized noise along one
// axis. The result stays in [0, 1].
func octaveNoise(noise opensimplex.Noise, x float64, octaves int, persistence float64) float64 {
	total := 0.0
	amplitude := 1.0
	maxVal := 0.0
	frequency := 1.0

	for i := 0; i < octaves; i++ {
		total += noise.Eval2(x*frequency, float64(i)) * amplitude
		maxVal += amplitude
		amplitude *= persistence
		frequency *= 2
	}

	return total / maxVal
}
