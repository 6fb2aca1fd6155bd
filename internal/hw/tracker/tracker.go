package tracker

import "time"

// Sample is one normalized focus point from the depth sensor.
// X and Y are within [0,1]: X=0 is the right edge of the wall's view,
// X=1 the left edge (mirrored, the wall faces the viewer), Y=0 is down
// and Y=1 is up. Valid is false when no point was found in range.
type Sample struct {
	Valid   bool
	X       float64
	Y       float64
	DepthMM int
	Time    time.Time
}

// Source is the boundary to the depth-sensor adapter. Poll is called once
// per scheduler evaluation; implementations must not block on frame
// acquisition (return the latest known sample, or an invalid one).
type Source interface {
	Poll() Sample
}

// None is a Source that never has a target. Used when tracking is
// disabled; the wall runs on idle motion alone.
type None struct{}

func (None) Poll() Sample { return Sample{} }

// Func adapts a plain function into a Source.
type Func func() Sample

func (f Func) Poll() Sample { return f() }
