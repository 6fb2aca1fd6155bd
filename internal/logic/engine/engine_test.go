package engine

import (
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/Kikketer/EyeBox/internal/hw/pca9685"
	"github.com/Kikketer/EyeBox/internal/hw/tracker"
	"github.com/Kikketer/EyeBox/internal/logic/directory"
	"github.com/Kikketer/EyeBox/internal/logic/dispatch"
	"github.com/Kikketer/EyeBox/internal/logic/position"
	"github.com/Kikketer/EyeBox/internal/logic/target"
)

// gateFunc adapts a closure into an enable source.
type gateFunc func() (bool, error)

func (g gateFunc) Enabled() (bool, error) { return g() }

var testRange = position.Range{
	Midpoint:     352,
	LeftExtreme:  80,
	RightExtreme: 80,
	UpExtreme:    10,
	DownExtreme:  50,
}

// testConfig uses equal interval bounds so every reschedule lands at a
// predictable instant.
func testConfig() Config {
	return Config{
		Tick:         100 * time.Millisecond,
		MinInterval:  time.Second,
		MaxInterval:  time.Second,
		SilenceMin:   500 * time.Millisecond,
		SilenceMax:   500 * time.Millisecond,
		Settle:       50 * time.Millisecond,
		GatePoll:     250 * time.Millisecond,
		ResumeSettle: 2 * time.Second,
		Midpoint:     352,
	}
}

func newTestEngine(cfg Config, boards, pairs int, trk tracker.Source, gate gateFunc) (*Engine, *pca9685.MockDriver) {
	mock := pca9685.NewMockDriver(boards)
	disp := dispatch.New(mock, position.Limits{Min: 125, Max: 499}, time.Nanosecond)
	dir := directory.New(boards, pairs)
	rng := rand.New(rand.NewSource(1))
	gen := target.NewGenerator(testRange, 0.3, 0, rng)

	if gate == nil {
		gate = func() (bool, error) { return true, nil }
	}
	return New(cfg, dir, disp, gen, trk, gate, rng), mock
}

func movesFor(writes []pca9685.Write, board int) int {
	n := 0
	for _, w := range writes {
		if w.Board == board && w.Duty != 0 {
			n++
		}
	}
	return n
}

func zeroWrites(writes []pca9685.Write) int {
	n := 0
	for _, w := range writes {
		if w.Duty == 0 {
			n++
		}
	}
	return n
}

func TestTick_FiresDueEyes(t *testing.T) {
	e, mock := newTestEngine(testConfig(), 2, 1, nil, nil)
	t0 := time.Now()

	e.Tick(t0)
	if got := len(mock.Writes()); got != 4 {
		t.Fatalf("first tick produced %d writes, want 4 (2 eyes x 2 servos)", got)
	}

	mock.Reset()
	e.Tick(t0.Add(500 * time.Millisecond))
	if got := len(mock.Writes()); got != 0 {
		t.Fatalf("tick before the interval produced %d writes", got)
	}

	e.Tick(t0.Add(time.Second))
	if got := len(mock.Writes()); got != 4 {
		t.Fatalf("tick at the interval produced %d writes, want 4", got)
	}
}

func TestTick_SchedulesAreIndependent(t *testing.T) {
	e, mock := newTestEngine(testConfig(), 2, 1, nil, nil)
	a := directory.EyeID{Board: 0, Pair: 0}
	b := directory.EyeID{Board: 1, Pair: 0}

	t0 := time.Now()
	e.nextFire[a] = t0
	e.nextFire[b] = t0.Add(10 * time.Second)

	e.Tick(t0)

	if got := movesFor(mock.Writes(), 0); got != 2 {
		t.Errorf("eye %s got %d writes, want 2", a, got)
	}
	if got := movesFor(mock.Writes(), 1); got != 0 {
		t.Errorf("eye %s got %d writes, want none", b, got)
	}
	if !e.nextFire[b].Equal(t0.Add(10 * time.Second)) {
		t.Errorf("eye %s schedule moved to %v when only %s fired", b, e.nextFire[b], a)
	}
	if !e.nextFire[a].Equal(t0.Add(time.Second)) {
		t.Errorf("eye %s rescheduled for %v, want t0+1s", a, e.nextFire[a])
	}
}

func TestTick_FailingEyeDoesNotBlockOthers(t *testing.T) {
	e, mock := newTestEngine(testConfig(), 2, 1, nil, nil)
	mock.FailFunc = func(board, channel int) error {
		if board == 0 {
			return errors.New("board 0 unplugged")
		}
		return nil
	}

	t0 := time.Now()
	e.Tick(t0)

	if got := movesFor(mock.Writes(), 1); got != 2 {
		t.Errorf("healthy eye got %d writes, want 2", got)
	}
	a := directory.EyeID{Board: 0, Pair: 0}
	if !e.nextFire[a].Equal(t0.Add(time.Second)) {
		t.Errorf("failing eye rescheduled for %v, want the normal interval", e.nextFire[a])
	}
}

func TestTick_GatePauseSweepsOnce(t *testing.T) {
	enabled := true
	cfg := testConfig()
	cfg.PowerDownAfterMove = true
	e, mock := newTestEngine(cfg, 2, 1, nil, func() (bool, error) { return enabled, nil })

	t0 := time.Now()
	e.Tick(t0)
	if len(e.tasks) != 2 {
		t.Fatalf("expected 2 deferred releases after the first move, got %d", len(e.tasks))
	}
	mock.Reset()

	enabled = false
	e.Tick(t0.Add(250 * time.Millisecond))

	// One full sweep: every servo centered, then released.
	writes := mock.Writes()
	if got := len(writes) - zeroWrites(writes); got != 4 {
		t.Errorf("pause centered with %d writes, want 4", got)
	}
	if got := zeroWrites(writes); got != 4 {
		t.Errorf("pause released with %d writes, want 4", got)
	}
	if !e.paused {
		t.Error("engine not paused after gate went low")
	}
	if len(e.tasks) != 0 {
		t.Errorf("%d deferred releases survived the pause", len(e.tasks))
	}

	// While paused nothing else reaches the bus.
	before := len(mock.Writes())
	e.Tick(t0.Add(500 * time.Millisecond))
	e.Tick(t0.Add(750 * time.Millisecond))
	if got := len(mock.Writes()); got != before {
		t.Errorf("%d writes while paused", got-before)
	}
}

func TestTick_GateResume(t *testing.T) {
	enabled := false
	e, mock := newTestEngine(testConfig(), 1, 1, nil, func() (bool, error) { return enabled, nil })

	t0 := time.Now()
	e.Tick(t0) // transition to paused, sweep
	mock.Reset()

	enabled = true
	t1 := t0.Add(time.Second)
	e.Tick(t1)

	if e.paused {
		t.Fatal("engine still paused after gate went high")
	}
	// Resume centers but must not start moving before the settle window.
	if got := len(mock.Writes()); got != 2 {
		t.Fatalf("resume produced %d writes, want 2 centering writes", got)
	}
	mock.Reset()

	e.Tick(t1.Add(time.Second)) // inside the 2s settle window
	if got := len(mock.Writes()); got != 0 {
		t.Fatalf("%d writes during the resume settle window", got)
	}

	// Schedule restarts from the end of the window.
	e.Tick(t1.Add(2*time.Second + time.Second))
	if got := len(mock.Writes()); got != 2 {
		t.Fatalf("first move after resume produced %d writes, want 2", got)
	}
}

func TestTick_GateReadErrorKeepsLastState(t *testing.T) {
	e, mock := newTestEngine(testConfig(), 1, 1, nil, func() (bool, error) {
		return false, errors.New("gpio read failed")
	})

	e.Tick(time.Now())
	if e.paused {
		t.Error("gate read error paused the wall")
	}
	if got := len(mock.Writes()); got != 2 {
		t.Errorf("eye did not move after gate read error: %d writes", got)
	}
}

func TestTickSynced_Broadcast(t *testing.T) {
	cfg := testConfig()
	cfg.Synced = true
	e, mock := newTestEngine(cfg, 2, 2, nil, nil)

	t0 := time.Now()
	e.Tick(t0)

	writes := mock.Writes()
	if len(writes) != 8 {
		t.Fatalf("synced tick produced %d writes, want 8", len(writes))
	}
	// Every eye receives the same target: vertical duty on even channels,
	// horizontal on odd, identical across the wall.
	var vDuty, hDuty uint16
	for _, w := range writes {
		if w.Channel%2 == 0 {
			if vDuty == 0 {
				vDuty = w.Duty
			} else if w.Duty != vDuty {
				t.Errorf("vertical duty differs across eyes: %d vs %d", w.Duty, vDuty)
			}
		} else {
			if hDuty == 0 {
				hDuty = w.Duty
			} else if w.Duty != hDuty {
				t.Errorf("horizontal duty differs across eyes: %d vs %d", w.Duty, hDuty)
			}
		}
	}

	if !e.globalFire.Equal(t0.Add(time.Second)) {
		t.Errorf("globalFire = %v, want t0+1s", e.globalFire)
	}
	mock.Reset()
	e.Tick(t0.Add(500 * time.Millisecond))
	if got := len(mock.Writes()); got != 0 {
		t.Errorf("synced tick fired early: %d writes", got)
	}
}

func TestTickSynced_ErrorContinuesBroadcast(t *testing.T) {
	cfg := testConfig()
	cfg.Synced = true
	e, mock := newTestEngine(cfg, 2, 1, nil, nil)
	mock.FailFunc = func(board, channel int) error {
		if board == 0 {
			return errors.New("board 0 unplugged")
		}
		return nil
	}

	e.Tick(time.Now())
	if got := movesFor(mock.Writes(), 1); got != 2 {
		t.Errorf("healthy eye got %d writes in failing broadcast, want 2", got)
	}
}

func TestTick_DeferredPowerDown(t *testing.T) {
	cfg := testConfig()
	cfg.PowerDownAfterMove = true
	e, mock := newTestEngine(cfg, 1, 1, nil, nil)

	t0 := time.Now()
	e.Tick(t0)
	if got := zeroWrites(mock.Writes()); got != 0 {
		t.Fatalf("%d releases on the move tick itself", got)
	}
	if len(e.tasks) != 1 {
		t.Fatalf("%d deferred releases queued, want 1", len(e.tasks))
	}

	e.Tick(t0.Add(20 * time.Millisecond)) // before the 50ms settle
	if got := zeroWrites(mock.Writes()); got != 0 {
		t.Fatalf("released %d channels before the settle elapsed", got)
	}

	e.Tick(t0.Add(60 * time.Millisecond))
	if got := zeroWrites(mock.Writes()); got != 2 {
		t.Fatalf("released %d channels after the settle, want 2", got)
	}
	if len(e.tasks) != 0 {
		t.Errorf("%d tasks left after the drain", len(e.tasks))
	}
}

func TestTick_TrackingFollowsSample(t *testing.T) {
	cfg := testConfig()
	cfg.TrackingEnabled = true
	sample := tracker.Sample{Valid: true, X: 1, Y: 1}
	e, mock := newTestEngine(cfg, 1, 1, tracker.Func(func() tracker.Sample { return sample }), nil)

	e.Tick(time.Now())
	writes := mock.Writes()
	if len(writes) != 2 {
		t.Fatalf("tracked move produced %d writes, want 2", len(writes))
	}
	// X=1 Y=1 is full left, full up.
	if writes[0].Duty != 362<<4 {
		t.Errorf("vertical duty = %d, want %d", writes[0].Duty, 362<<4)
	}
	if writes[1].Duty != 432<<4 {
		t.Errorf("horizontal duty = %d, want %d", writes[1].Duty, 432<<4)
	}
}

func TestTick_SilenceHoldThenIdle(t *testing.T) {
	cfg := testConfig()
	cfg.TrackingEnabled = true
	sample := tracker.Sample{Valid: true, X: 0.5, Y: 0.5}
	e, mock := newTestEngine(cfg, 1, 1, tracker.Func(func() tracker.Sample { return sample }), nil)
	eye := directory.EyeID{Board: 0, Pair: 0}

	t0 := time.Now()
	e.Tick(t0) // tracked move, records lastSampleAt=t0
	mock.Reset()

	// Tracking goes quiet. Inside the 500ms silence window the eye holds.
	sample = tracker.Sample{}
	e.nextFire[eye] = t0.Add(100 * time.Millisecond)
	e.Tick(t0.Add(100 * time.Millisecond))
	if got := len(mock.Writes()); got != 0 {
		t.Fatalf("eye moved %d times while holding for tracking", got)
	}
	if !e.nextFire[eye].Equal(t0.Add(200 * time.Millisecond)) {
		t.Errorf("held eye rescheduled for %v, want one tick later", e.nextFire[eye])
	}

	// Past the silence threshold it falls back to idle motion.
	e.Tick(t0.Add(600 * time.Millisecond))
	if got := len(mock.Writes()); got != 2 {
		t.Errorf("idle fallback produced %d writes, want 2", got)
	}
}

func TestRandInterval_EqualBounds(t *testing.T) {
	e, _ := newTestEngine(testConfig(), 1, 1, nil, nil)
	for i := 0; i < 10; i++ {
		if got := e.randInterval(); got != time.Second {
			t.Fatalf("randInterval = %v with equal bounds, want 1s", got)
		}
	}
}

func TestRandInterval_WithinBounds(t *testing.T) {
	cfg := testConfig()
	cfg.MinInterval = 200 * time.Millisecond
	cfg.MaxInterval = 3 * time.Second
	e, _ := newTestEngine(cfg, 1, 1, nil, nil)
	for i := 0; i < 1000; i++ {
		d := e.randInterval()
		if d < cfg.MinInterval || d > cfg.MaxInterval {
			t.Fatalf("randInterval = %v out of [%v, %v]", d, cfg.MinInterval, cfg.MaxInterval)
		}
	}
}

func TestCurrentStatus(t *testing.T) {
	cfg := testConfig()
	cfg.Synced = true
	cfg.TrackingEnabled = true
	e, _ := newTestEngine(cfg, 2, 8, nil, nil)

	s := e.CurrentStatus()
	if s.Mode != "synced" || !s.Tracking || s.Boards != 2 || s.Eyes != 16 {
		t.Errorf("status = %+v", s)
	}
	if s.Running {
		t.Error("status reports running before Run")
	}
}
