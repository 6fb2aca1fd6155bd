package engine

import (
	"time"

	"github.com/Kikketer/EyeBox/internal/logic/directory"
)

// powerDownTask releases one eye's servos at a fixed instant. Tasks are
// drained by the tick loop itself, so these writes share the dispatcher's
// rate limit with everything else, and Stop/pause can drop the whole
// queue instead of chasing stray timers.
type powerDownTask struct {
	at  time.Time
	eye directory.EyeID
}

// deferPowerDownLocked queues a release of the eye's two channels.
// Call with e.mu held.
func (e *Engine) deferPowerDownLocked(at time.Time, eye directory.EyeID) {
	e.tasks = append(e.tasks, powerDownTask{at: at, eye: eye})
}

// drainTasksLocked runs every task whose time has arrived, keeping the
// rest. Insertion order is preserved for tasks due on the same tick.
// Call with e.mu held.
func (e *Engine) drainTasksLocked(now time.Time) {
	if len(e.tasks) == 0 {
		return
	}
	remaining := e.tasks[:0]
	for _, t := range e.tasks {
		if now.Before(t.at) {
			remaining = append(remaining, t)
			continue
		}
		_ = e.disp.PowerOff(t.eye.Board, t.eye.VerticalChannel())
		_ = e.disp.PowerOff(t.eye.Board, t.eye.HorizontalChannel())
	}
	e.tasks = remaining
}
