package dispatch

import (
	"fmt"
	"sync"
	"time"

	"github.com/Kikketer/EyeBox/internal/debug"
	"github.com/Kikketer/EyeBox/internal/hw/pca9685"
	"github.com/Kikketer/EyeBox/internal/logic/directory"
	"github.com/Kikketer/EyeBox/internal/logic/position"
	"github.com/Kikketer/EyeBox/internal/metrics"
)

// Dispatcher is the single choke point for servo writes. The I2C bus
// cannot sustain back-to-back commands, so every write waits until at
// least the configured gap has passed since the previous one. No other
// component talks to the PWM driver directly.
type Dispatcher struct {
	drv    pca9685.Driver
	limits position.Limits
	minGap time.Duration

	// lastCmd is the only cross-actuator shared state. The mutex covers
	// the gap wait, the transport write (the transport is not assumed
	// thread-safe) and the timestamp update as one critical section, so
	// writes from the tick loop and from deferred power-downs cannot
	// interleave or reorder.
	mu      sync.Mutex
	lastCmd time.Time

	sleep func(time.Duration) // swappable in tests
}

// New creates a dispatcher over the given driver. A zero minGap defaults
// to 10ms, the slowest gap the wall's boards have needed.
func New(drv pca9685.Driver, limits position.Limits, minGap time.Duration) *Dispatcher {
	if minGap == 0 {
		minGap = 10 * time.Millisecond
	}
	return &Dispatcher{
		drv:    drv,
		limits: limits,
		minGap: minGap,
		sleep:  time.Sleep,
	}
}

// WritePosition commands one servo to a logical position. Positions
// outside the hardware safety bounds are clamped and logged rather than
// rejected; transport errors are logged, counted and returned without
// retrying (the caller decides whether to retry or skip).
func (d *Dispatcher) WritePosition(board, channel, pos int) error {
	clamped := position.Clamp(pos, d.limits)
	if clamped != pos {
		metrics.RangeClamps.Inc()
		debug.Error(fmt.Errorf("position %d clamped to %d (board %d channel %d)", pos, clamped, board, channel))
	}
	duty, err := position.ToDutyCycle(clamped, d.limits)
	if err != nil {
		// Unreachable after the clamp; kept as the last line of defense.
		return err
	}
	return d.write(board, channel, duty)
}

// WritePair commands the vertical then the horizontal servo of one eye.
// The two writes are sequential with no atomicity: a failure on the
// second leaves the first applied. Both are attempted regardless.
func (d *Dispatcher) WritePair(board, vChannel, vPos, hChannel, hPos int) error {
	vErr := d.WritePosition(board, vChannel, vPos)
	hErr := d.WritePosition(board, hChannel, hPos)
	if vErr != nil {
		return vErr
	}
	return hErr
}

// PowerOff stops the pulse train on one channel, releasing the servo.
func (d *Dispatcher) PowerOff(board, channel int) error {
	return d.write(board, channel, 0)
}

// CenterAll sweeps every eye to the midpoint, respecting the rate limit.
// Failures are logged and the sweep continues; the first error is returned.
func (d *Dispatcher) CenterAll(dir *directory.Directory, midpoint int) error {
	var first error
	for _, eye := range dir.Eyes() {
		if err := d.WritePair(eye.Board, eye.VerticalChannel(), midpoint, eye.HorizontalChannel(), midpoint); err != nil {
			debug.Error(fmt.Errorf("center eye %s: %w", eye, err))
			if first == nil {
				first = err
			}
		}
	}
	return first
}

// PowerOffAll releases every servo on the wall.
func (d *Dispatcher) PowerOffAll(dir *directory.Directory) error {
	var first error
	for _, eye := range dir.Eyes() {
		for _, ch := range []int{eye.VerticalChannel(), eye.HorizontalChannel()} {
			if err := d.PowerOff(eye.Board, ch); err != nil {
				debug.Error(fmt.Errorf("power off eye %s channel %d: %w", eye, ch, err))
				if first == nil {
					first = err
				}
			}
		}
	}
	return first
}

func (d *Dispatcher) write(board, channel int, duty uint16) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if wait := d.minGap - time.Since(d.lastCmd); wait > 0 {
		d.sleep(wait)
	}

	err := d.drv.SetDutyCycle(board, channel, duty)
	d.lastCmd = time.Now()

	metrics.BusWrites.Inc()
	if err != nil {
		metrics.BusWriteErrors.Inc()
		debug.Error(fmt.Errorf("bus write board %d channel %d: %w", board, channel, err))
	}
	return err
}
