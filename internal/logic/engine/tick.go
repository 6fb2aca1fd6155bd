package engine

import (
	"fmt"
	"time"

	"github.com/Kikketer/EyeBox/internal/debug"
	"github.com/Kikketer/EyeBox/internal/logic/directory"
	"github.com/Kikketer/EyeBox/internal/metrics"
)

// Tick runs one scheduler evaluation at the given instant. Exported so
// tests can drive the engine with a deterministic clock; Run calls it
// from the ticker.
func (e *Engine) Tick(now time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.pollGateLocked(now)
	if e.paused {
		return
	}
	if now.Before(e.resumeAt) {
		return
	}

	e.drainTasksLocked(now)
	e.pollTrackerLocked(now)

	if e.cfg.Synced {
		e.tickSyncedLocked(now)
	} else {
		e.tickIndependentLocked(now)
	}
}

// pollTrackerLocked asks the tracking adapter for the latest focus point,
// once per tick. A valid sample also redraws the silence threshold, so
// the next fall back to idle happens at an unpredictable delay.
func (e *Engine) pollTrackerLocked(now time.Time) {
	e.sampleFresh = false
	if !e.cfg.TrackingEnabled {
		return
	}
	s := e.trk.Poll()
	if !s.Valid {
		return
	}
	e.sampleFresh = true
	e.lastSample = s
	e.lastSampleAt = now
	e.silence = e.randSilence()
	debug.Verbose("Focus point: x=%.2f y=%.2f depth=%dmm", s.X, s.Y, s.DepthMM)
}

// policy names, used for logging and the moves counter.
const (
	policyTracking = "tracking"
	policyIdle     = "idle"
)

// evaluateLocked picks the policy and computes the next target for an
// eye in the given zone. ok=false means hold: tracking has gone quiet
// but the silence threshold has not elapsed yet.
func (e *Engine) evaluateLocked(now time.Time, zone directory.Zone) (h, v int, policy string, ok bool) {
	if e.cfg.TrackingEnabled && e.sampleFresh {
		h, v, ok = e.gen.FromSample(e.lastSample, zone)
		if ok {
			return h, v, policyTracking, true
		}
	}
	if e.cfg.TrackingEnabled && now.Sub(e.lastSampleAt) < e.silence && !e.lastSampleAt.IsZero() {
		return 0, 0, "", false
	}
	h, v = e.gen.NextIdle()
	return h, v, policyIdle, true
}

// tickIndependentLocked fires every eye whose time has arrived, in the
// directory's stable order. A failing eye is logged and rescheduled like
// any other; it never blocks the rest of the wall.
func (e *Engine) tickIndependentLocked(now time.Time) {
	for _, eye := range e.order {
		if now.Before(e.nextFire[eye]) {
			continue
		}

		h, v, policy, ok := e.evaluateLocked(now, e.dir.Zone(eye))
		if !ok {
			// Holding: tracking just went quiet. Check again soon.
			e.nextFire[eye] = now.Add(e.cfg.Tick)
			continue
		}

		if err := e.disp.WritePair(eye.Board, eye.VerticalChannel(), v, eye.HorizontalChannel(), h); err != nil {
			debug.Error(fmt.Errorf("dispatch eye %s: %w", eye, err))
		} else {
			debug.Move(eye.String(), h, v)
			metrics.Moves.WithLabelValues(policy).Inc()
		}
		if e.cfg.PowerDownAfterMove {
			e.deferPowerDownLocked(now.Add(e.cfg.Settle), eye)
		}

		e.nextFire[eye] = now.Add(e.randInterval())
		debug.Verbose("Eye %s rescheduled for %s", eye, e.nextFire[eye].Format("15:04:05.000"))
	}
}

// tickSyncedLocked computes one target and broadcasts it to every eye
// when the single global entry fires.
func (e *Engine) tickSyncedLocked(now time.Time) {
	if now.Before(e.globalFire) {
		return
	}

	h, v, policy, ok := e.evaluateLocked(now, directory.ZoneCenter)
	if !ok {
		e.globalFire = now.Add(e.cfg.Tick)
		return
	}

	debug.Live("Moving all eyes to H=%d V=%d (%s)", h, v, policy)
	for _, eye := range e.order {
		if err := e.disp.WritePair(eye.Board, eye.VerticalChannel(), v, eye.HorizontalChannel(), h); err != nil {
			debug.Error(fmt.Errorf("dispatch eye %s: %w", eye, err))
			continue
		}
		metrics.Moves.WithLabelValues(policy).Inc()
	}
	if e.cfg.PowerDownAfterMove {
		at := now.Add(e.cfg.Settle)
		for _, eye := range e.order {
			e.deferPowerDownLocked(at, eye)
		}
	}

	e.globalFire = now.Add(e.randInterval())
	debug.Verbose("Next synced move at %s", e.globalFire.Format("15:04:05.000"))
}
