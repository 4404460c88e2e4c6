// Wall layout generation using layered simplex noise.
// Produces clustered wall runs rather than salt-and-pepper noise.
package grid

import (
	"math"
	"math/rand"
	"sort"

	opensimplex "github.com/ojrac/opensimplex-go"
)

// LayoutConfig holds wall layout generation parameters.
type LayoutConfig struct {
	Width       int
	Height      int
	Seed        int64   // 0 = random
	WallDensity float64 // Target fraction of wall cells (0.0–0.5)
	ClearRadius int     // Manhattan radius around the centre kept open
}

// DefaultLayoutConfig returns a medium map with light walling.
func DefaultLayoutConfig() LayoutConfig {
	return LayoutConfig{
		Width:       48,
		Height:      48,
		Seed:        0,
		WallDensity: 0.12,
		ClearRadius: 3,
	}
}

// GenerateLayout creates an occlusion map whose walls block both sight and movement.
func GenerateLayout(cfg LayoutConfig) *OcclusionMap {
	seed := cfg.Seed
	if seed == 0 {
		seed = rand.Int63()
	}
	density := cfg.WallDensity
	if density < 0 {
		density = 0
	}
	if density > 0.5 {
		density = 0.5
	}

	m := NewOcclusionMap(cfg.Width, cfg.Height)
	if density == 0 {
		return m
	}

	wallNoise := opensimplex.NewNormalized(seed)
	centre := Cell{X: m.Width / 2, Y: m.Height / 2}

	// Sample every cell, then pick the threshold that yields the target density.
	samples := make([]float64, m.Width*m.Height)
	for y := 0; y < m.Height; y++ {
		for x := 0; x < m.Width; x++ {
			samples[y*m.Width+x] = octaveNoise(wallNoise, float64(x), float64(y), 3, 0.11, 0.5)
		}
	}
	threshold := quantile(samples, 1-density)

	for y := 0; y < m.Height; y++ {
		for x := 0; x < m.Width; x++ {
			c := Cell{X: x, Y: y}
			if Manhattan(c, centre) <= cfg.ClearRadius {
				continue
			}
			if samples[y*m.Width+x] >= threshold {
				m.Set(c, OccluderCell{BlocksVision: true, BlocksMovement: true, VisionCost: 1})
			}
		}
	}
	return m
}

// octaveNoise sums multiple octaves of simplex noise, normalized to 0–1.
func octaveNoise(noise opensimplex.Noise, x, y float64, octaves int, frequency, persistence float64) float64 {
	total := 0.0
	amplitude := 1.0
	maxAmp := 0.0
	freq := frequency
	for i := 0; i < octaves; i++ {
		total += noise.Eval2(x*freq, y*freq) * amplitude
		maxAmp += amplitude
		amplitude *= persistence
		freq *= 2
	}
	return math.Max(0, math.Min(1, total/maxAmp))
}

// quantile returns the value below which fraction q of samples fall.
func quantile(samples []float64, q float64) float64 {
	sorted := make([]float64, len(samples))
	copy(sorted, samples)
	sort.Float64s(sorted)
	idx := int(q * float64(len(sorted)-1))
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
