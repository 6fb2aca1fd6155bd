package engine

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/Kikketer/EyeBox/internal/debug"
	"github.com/Kikketer/EyeBox/internal/hw/enable"
	"github.com/Kikketer/EyeBox/internal/hw/tracker"
	"github.com/Kikketer/EyeBox/internal/logic/directory"
	"github.com/Kikketer/EyeBox/internal/logic/dispatch"
	"github.com/Kikketer/EyeBox/internal/logic/target"
)

// Config holds the engine's timing parameters.
type Config struct {
	Synced bool // one global schedule instead of per-eye timers

	Tick        time.Duration // scheduler polling interval
	MinInterval time.Duration // random re-fire delay bounds
	MaxInterval time.Duration

	TrackingEnabled bool
	SilenceMin      time.Duration // idle fallback after tracking goes quiet,
	SilenceMax      time.Duration // re-randomized between these bounds

	PowerDownAfterMove bool          // release servos shortly after each move
	Settle             time.Duration // hold time before release

	GatePoll     time.Duration // enable-switch polling cadence
	ResumeSettle time.Duration // wait after centering before moving again

	Midpoint int // centering target
}

// Engine owns the wall: the schedule for every detected eye, the
// deferred power-down queue and the pause state. All movement decisions
// happen on its tick; all writes go through the dispatcher.
type Engine struct {
	cfg  Config
	dir  *directory.Directory
	disp *dispatch.Dispatcher
	gen  *target.Generator
	trk  tracker.Source
	gate enable.Source
	rng  *rand.Rand

	// mu guards everything below. The tick loop is the only writer in
	// steady state; Status reads from the web goroutine.
	mu       sync.Mutex
	running  bool
	paused   bool
	resumeAt time.Time // movement holds off until this instant

	order      []directory.EyeID
	nextFire   map[directory.EyeID]time.Time
	globalFire time.Time // synced mode uses this single entry

	sampleFresh  bool      // a valid sample arrived on the current tick
	lastSample   tracker.Sample
	lastSampleAt time.Time
	silence      time.Duration // current randomized idle-fallback threshold

	tasks []powerDownTask

	nextGateCheck time.Time
	gateEnabled   bool

	stopCh   chan struct{}
	stopOnce sync.Once
}

// New creates an engine for the detected wall. The rng drives both the
// idle targets and the interval draws; pass a seeded source for
// reproducible runs.
func New(cfg Config, dir *directory.Directory, disp *dispatch.Dispatcher, gen *target.Generator, trk tracker.Source, gate enable.Source, rng *rand.Rand) *Engine {
	if trk == nil {
		trk = tracker.None{}
	}
	if gate == nil {
		gate = enable.Always(true)
	}
	return &Engine{
		cfg:         cfg,
		dir:         dir,
		disp:        disp,
		gen:         gen,
		trk:         trk,
		gate:        gate,
		rng:         rng,
		order:       dir.Eyes(),
		nextFire:    make(map[directory.EyeID]time.Time),
		gateEnabled: true,
		stopCh:      make(chan struct{}),
	}
}

// Run centers the wall, then drives the tick loop until the context is
// cancelled or Stop is called. On the way out every servo is released.
func (e *Engine) Run(ctx context.Context) error {
	debug.Section("Engine starting")
	debug.Wall(e.dir.NumBoards(), e.dir.Len())

	now := time.Now()
	e.mu.Lock()
	e.running = true
	e.startLocked(now)
	e.mu.Unlock()

	ticker := time.NewTicker(e.cfg.Tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.shutdown()
			return ctx.Err()
		case <-e.stopCh:
			e.shutdown()
			return nil
		case t := <-ticker.C:
			e.Tick(t)
		}
	}
}

// Stop ends the tick loop. Safe to call more than once.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() { close(e.stopCh) })
}

// startLocked performs the startup sweep and the initial scheduling.
// Call with e.mu held.
func (e *Engine) startLocked(now time.Time) {
	debug.Info("Centering all eyes before scheduling starts")
	if err := e.disp.CenterAll(e.dir, e.cfg.Midpoint); err != nil {
		debug.Error(err)
	}
	e.resumeAt = now.Add(e.cfg.ResumeSettle)
	e.silence = e.randSilence()
	e.rescheduleAllLocked(e.resumeAt)
}

// shutdown cancels all pending deferred tasks and releases every servo.
func (e *Engine) shutdown() {
	e.mu.Lock()
	e.running = false
	e.tasks = nil
	e.mu.Unlock()

	debug.Info("Shutting down: releasing all servos")
	if err := e.disp.PowerOffAll(e.dir); err != nil {
		debug.Error(err)
	}
	debug.Summary("Engine stopped")
}

// Status is a point-in-time snapshot for the web layer.
type Status struct {
	Running  bool   `json:"running"`
	Paused   bool   `json:"paused"`
	Mode     string `json:"mode"`
	Boards   int    `json:"boards"`
	Eyes     int    `json:"eyes"`
	Tracking bool   `json:"tracking"`
}

// CurrentStatus reports the engine state for the status endpoint.
func (e *Engine) CurrentStatus() Status {
	e.mu.Lock()
	defer e.mu.Unlock()

	mode := "independent"
	if e.cfg.Synced {
		mode = "synced"
	}
	return Status{
		Running:  e.running,
		Paused:   e.paused,
		Mode:     mode,
		Boards:   e.dir.NumBoards(),
		Eyes:     e.dir.Len(),
		Tracking: e.cfg.TrackingEnabled,
	}
}

// randInterval draws the next re-fire delay from [MinInterval, MaxInterval].
func (e *Engine) randInterval() time.Duration {
	span := e.cfg.MaxInterval - e.cfg.MinInterval
	if span <= 0 {
		return e.cfg.MinInterval
	}
	return e.cfg.MinInterval + time.Duration(e.rng.Int63n(int64(span)+1))
}

// randSilence draws a fresh idle-fallback threshold. Re-randomizing it
// keeps independent walls from falling into idle motion in lockstep.
func (e *Engine) randSilence() time.Duration {
	span := e.cfg.SilenceMax - e.cfg.SilenceMin
	if span <= 0 {
		return e.cfg.SilenceMin
	}
	return e.cfg.SilenceMin + time.Duration(e.rng.Int63n(int64(span)+1))
}

// rescheduleAllLocked draws fresh fire times for every entry starting
// from the given instant. Call with e.mu held.
func (e *Engine) rescheduleAllLocked(from time.Time) {
	if e.cfg.Synced {
		e.globalFire = from.Add(e.randInterval())
		return
	}
	for _, eye := range e.order {
		e.nextFire[eye] = from.Add(e.randInterval())
	}
}
