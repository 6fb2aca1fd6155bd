package engine

import (
	"fmt"
	"time"

	"github.com/Kikketer/EyeBox/internal/debug"
	"github.com/Kikketer/EyeBox/internal/metrics"
)

// pollGateLocked reads the external enable signal on its own cadence,
// which is deliberately coarser than the scheduler tick so the gate
// never starves real movement commands. A read error is logged and the
// last known state kept. Call with e.mu held.
func (e *Engine) pollGateLocked(now time.Time) {
	if now.Before(e.nextGateCheck) {
		return
	}
	e.nextGateCheck = now.Add(e.cfg.GatePoll)

	enabled, err := e.gate.Enabled()
	if err != nil {
		debug.Error(fmt.Errorf("read enable signal: %w", err))
		return
	}
	if enabled == e.gateEnabled {
		return
	}
	e.gateEnabled = enabled

	if enabled {
		e.resumeLocked(now)
	} else {
		e.pauseLocked()
	}
}

// pauseLocked centers then releases every servo and stops scheduling.
// Pending deferred releases are dropped; the sweep below covers them.
func (e *Engine) pauseLocked() {
	debug.Gate(false)
	metrics.Paused.Set(1)

	e.tasks = nil
	if err := e.disp.CenterAll(e.dir, e.cfg.Midpoint); err != nil {
		debug.Error(err)
	}
	if err := e.disp.PowerOffAll(e.dir); err != nil {
		debug.Error(err)
	}
	e.paused = true
}

// resumeLocked centers the wall, waits out the settle time and redraws
// every schedule entry so nothing fires in a burst the moment movement
// is allowed again.
func (e *Engine) resumeLocked(now time.Time) {
	debug.Gate(true)
	metrics.Paused.Set(0)

	if err := e.disp.CenterAll(e.dir, e.cfg.Midpoint); err != nil {
		debug.Error(err)
	}
	e.resumeAt = now.Add(e.cfg.ResumeSettle)
	e.rescheduleAllLocked(e.resumeAt)
	e.paused = false
}
