package target

import (
	"math"
	"math/rand"

	"github.com/Kikketer/EyeBox/internal/hw/tracker"
	"github.com/Kikketer/EyeBox/internal/logic/directory"
	"github.com/Kikketer/EyeBox/internal/logic/position"
)

// maxIdleRetries bounds the rejection-sampling loop. With any sane
// min-distance (< 1) the loop terminates almost immediately; the cap only
// guarantees termination, falling back to the last candidate drawn.
const maxIdleRetries = 1000

// Generator decides the next (horizontal, vertical) position for an eye
// or for the whole wall. It holds no reference to the bus; it only
// computes targets.
type Generator struct {
	r           position.Range
	minDistance float64
	zoneBias    int
	rng         *rand.Rand

	lastH int
	lastV int
}

// NewGenerator creates a generator starting from the centered position.
func NewGenerator(r position.Range, minDistance float64, zoneBias int, rng *rand.Rand) *Generator {
	return &Generator{
		r:           r,
		minDistance: minDistance,
		zoneBias:    zoneBias,
		rng:         rng,
		lastH:       r.Midpoint,
		lastV:       r.Midpoint,
	}
}

// NextIdle draws a pseudo-random position within the extremes whose
// normalized distance from the previous position is at least the
// configured minimum, so idle motion stays visually perceptible.
func (g *Generator) NextIdle() (h, v int) {
	hSpan := g.r.HorizontalSpan()
	vSpan := g.r.VerticalSpan()

	for i := 0; i < maxIdleRetries; i++ {
		h = g.rng.Intn(hSpan+1) + g.r.Midpoint - g.r.RightExtreme
		v = g.rng.Intn(vSpan+1) + g.r.Midpoint - g.r.DownExtreme
		if g.distance(h, v) >= g.minDistance {
			break
		}
	}
	// Cap exhausted: the last candidate is accepted anyway.
	g.lastH, g.lastV = h, v
	return h, v
}

// distance is the per-axis-normalized Euclidean distance from the last
// position, scaled back into [0,1] by sqrt(2).
func (g *Generator) distance(h, v int) float64 {
	var hd, vd float64
	if span := g.r.HorizontalSpan(); span > 0 {
		hd = math.Abs(float64(h-g.lastH)) / float64(span)
	}
	if span := g.r.VerticalSpan(); span > 0 {
		vd = math.Abs(float64(v-g.lastV)) / float64(span)
	}
	return math.Sqrt(hd*hd+vd*vd) / math.Sqrt2
}

// FromSample maps a tracking sample to a position for an eye in the
// given zone. Returns ok=false when the sample is invalid (no decision;
// the caller falls back to the idle policy after its silence threshold).
//
// X=0 looks full right, X=1 full left; Y=0 full down, Y=1 full up.
// Zoned eyes get their horizontal target nudged toward their side of the
// wall by the configured bias, clamped to the extremes.
func (g *Generator) FromSample(s tracker.Sample, zone directory.Zone) (h, v int, ok bool) {
	if !s.Valid {
		return 0, 0, false
	}

	h = position.MapNormalized(s.X, g.r.RightExtreme, g.r.LeftExtreme, g.r.Midpoint)
	v = position.MapNormalized(s.Y, g.r.DownExtreme, g.r.UpExtreme, g.r.Midpoint)
	g.lastH, g.lastV = h, v

	switch zone {
	case directory.ZoneLeft:
		h += g.zoneBias
	case directory.ZoneRight:
		h -= g.zoneBias
	}
	if min := g.r.Midpoint - g.r.RightExtreme; h < min {
		h = min
	}
	if max := g.r.Midpoint + g.r.LeftExtreme; h > max {
		h = max
	}
	return h, v, true
}

// Last returns the most recent target, used when an eye should hold its
// position.
func (g *Generator) Last() (h, v int) {
	return g.lastH, g.lastV
}
