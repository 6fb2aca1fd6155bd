package target

import (
	"math"
	"math/rand"
	"testing"

	"github.com/Kikketer/EyeBox/internal/hw/tracker"
	"github.com/Kikketer/EyeBox/internal/logic/directory"
	"github.com/Kikketer/EyeBox/internal/logic/position"
)

var wallRange = position.Range{
	Midpoint:     352,
	LeftExtreme:  80,
	RightExtreme: 80,
	UpExtreme:    10,
	DownExtreme:  50,
}

func normDistance(r position.Range, h1, v1, h2, v2 int) float64 {
	hd := math.Abs(float64(h1-h2)) / float64(r.HorizontalSpan())
	vd := math.Abs(float64(v1-v2)) / float64(r.VerticalSpan())
	return math.Sqrt(hd*hd+vd*vd) / math.Sqrt2
}

func TestNextIdle_StaysWithinExtremes(t *testing.T) {
	g := NewGenerator(wallRange, 0.3, 0, rand.New(rand.NewSource(1)))
	for i := 0; i < 1000; i++ {
		h, v := g.NextIdle()
		if h < 272 || h > 432 {
			t.Fatalf("horizontal target %d out of [272, 432]", h)
		}
		if v < 302 || v > 362 {
			t.Fatalf("vertical target %d out of [302, 362]", v)
		}
	}
}

func TestNextIdle_MinDistance(t *testing.T) {
	for seed := int64(0); seed < 20; seed++ {
		g := NewGenerator(wallRange, 0.3, 0, rand.New(rand.NewSource(seed)))
		prevH, prevV := g.Last()
		for i := 0; i < 200; i++ {
			h, v := g.NextIdle()
			if d := normDistance(wallRange, h, v, prevH, prevV); d < 0.3 {
				t.Fatalf("seed %d step %d: distance %.3f < 0.3 from (%d,%d) to (%d,%d)",
					seed, i, d, prevH, prevV, h, v)
			}
			prevH, prevV = h, v
		}
	}
}

func TestNextIdle_ZeroMinDistanceAcceptsFirstDraw(t *testing.T) {
	g := NewGenerator(wallRange, 0, 0, rand.New(rand.NewSource(7)))
	h, v := g.NextIdle()
	lastH, lastV := g.Last()
	if h != lastH || v != lastV {
		t.Errorf("Last() = (%d,%d), want the drawn target (%d,%d)", lastH, lastV, h, v)
	}
}

func TestNextIdle_ImpossibleDistanceFallsBack(t *testing.T) {
	// No candidate can ever be 2.0 apart in normalized space; the retry
	// cap must still terminate and accept something inside the extremes.
	g := NewGenerator(wallRange, 2.0, 0, rand.New(rand.NewSource(3)))
	h, v := g.NextIdle()
	if h < 272 || h > 432 || v < 302 || v > 362 {
		t.Fatalf("fallback target (%d,%d) out of extremes", h, v)
	}
}

func TestFromSample_Mapping(t *testing.T) {
	g := NewGenerator(wallRange, 0.3, 0, rand.New(rand.NewSource(1)))

	h, v, ok := g.FromSample(tracker.Sample{Valid: true, X: 0, Y: 0}, directory.ZoneCenter)
	if !ok {
		t.Fatal("valid sample rejected")
	}
	if h != 272 || v != 302 {
		t.Errorf("sample (0,0) mapped to (%d,%d), want (272,302)", h, v)
	}

	h, v, ok = g.FromSample(tracker.Sample{Valid: true, X: 1, Y: 1}, directory.ZoneCenter)
	if !ok {
		t.Fatal("valid sample rejected")
	}
	if h != 432 || v != 362 {
		t.Errorf("sample (1,1) mapped to (%d,%d), want (432,362)", h, v)
	}

	h, v, ok = g.FromSample(tracker.Sample{Valid: true, X: 0.5, Y: 0.5}, directory.ZoneCenter)
	if !ok {
		t.Fatal("valid sample rejected")
	}
	if h != 352 || v != 332 {
		t.Errorf("sample (0.5,0.5) mapped to (%d,%d), want (352,332)", h, v)
	}
}

func TestFromSample_InvalidSample(t *testing.T) {
	g := NewGenerator(wallRange, 0.3, 0, rand.New(rand.NewSource(1)))
	if _, _, ok := g.FromSample(tracker.Sample{Valid: false}, directory.ZoneCenter); ok {
		t.Error("invalid sample produced a target")
	}
}

func TestFromSample_ZoneBias(t *testing.T) {
	g := NewGenerator(wallRange, 0.3, 20, rand.New(rand.NewSource(1)))

	h, _, _ := g.FromSample(tracker.Sample{Valid: true, X: 0.5, Y: 0.5}, directory.ZoneLeft)
	if h != 372 {
		t.Errorf("left-zone target %d, want 372", h)
	}
	h, _, _ = g.FromSample(tracker.Sample{Valid: true, X: 0.5, Y: 0.5}, directory.ZoneRight)
	if h != 332 {
		t.Errorf("right-zone target %d, want 332", h)
	}

	// Bias never pushes past the extremes.
	h, _, _ = g.FromSample(tracker.Sample{Valid: true, X: 1, Y: 0.5}, directory.ZoneLeft)
	if h != 432 {
		t.Errorf("biased target %d exceeded left extreme 432", h)
	}
	h, _, _ = g.FromSample(tracker.Sample{Valid: true, X: 0, Y: 0.5}, directory.ZoneRight)
	if h != 272 {
		t.Errorf("biased target %d exceeded right extreme 272", h)
	}
}
