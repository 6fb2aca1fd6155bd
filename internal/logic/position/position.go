package position

import (
	"errors"
	"fmt"
	"math"
)

// ErrOutOfRange is returned when a position falls outside the hardware
// safety bounds. Reaching it means a caller skipped the upstream clamp.
var ErrOutOfRange = errors.New("position out of hardware safety bounds")

// Limits are the hardware safety bounds for a servo, in 12-bit ticks.
// The wall's servos bottom out around 125 and top out around 499.
type Limits struct {
	Min int
	Max int
}

// Range describes the logical travel of one eye: a midpoint plus the
// four extremes, each an offset from the midpoint. Left and up are
// positive offsets, right and down negative.
type Range struct {
	Midpoint     int
	LeftExtreme  int
	RightExtreme int
	UpExtreme    int
	DownExtreme  int
}

// HorizontalSpan returns the total horizontal travel in ticks.
func (r Range) HorizontalSpan() int {
	return r.LeftExtreme + r.RightExtreme
}

// VerticalSpan returns the total vertical travel in ticks.
func (r Range) VerticalSpan() int {
	return r.UpExtreme + r.DownExtreme
}

// ToDutyCycle converts a logical position to the 16-bit PCA9685 duty
// cycle (position ticks shifted into the top 12 bits). It is the single
// point of defense against an out-of-range command reaching the bus:
// positions outside lim are rejected with ErrOutOfRange.
func ToDutyCycle(pos int, lim Limits) (uint16, error) {
	if pos < lim.Min || pos > lim.Max {
		return 0, fmt.Errorf("%w: %d not in [%d, %d]", ErrOutOfRange, pos, lim.Min, lim.Max)
	}
	return uint16(pos) << 4, nil
}

// MapNormalized linearly maps a normalized coordinate to a position.
// norm=0 maps to midpoint-lowExtreme, norm=1 to midpoint+highExtreme.
// Inputs outside [0,1] are clamped, never extrapolated.
func MapNormalized(norm float64, lowExtreme, highExtreme, midpoint int) int {
	if norm < 0 || math.IsNaN(norm) {
		norm = 0
	}
	if norm > 1 {
		norm = 1
	}
	span := float64(lowExtreme + highExtreme)
	return int(math.Round(norm*span)) + midpoint - lowExtreme
}

// Clamp bounds a position to the hardware safety limits.
func Clamp(pos int, lim Limits) int {
	if pos < lim.Min {
		return lim.Min
	}
	if pos > lim.Max {
		return lim.Max
	}
	return pos
}
