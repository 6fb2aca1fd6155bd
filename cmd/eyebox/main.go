package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/Kikketer/EyeBox/internal/config"
	"github.com/Kikketer/EyeBox/internal/debug"
	"github.com/Kikketer/EyeBox/internal/hw/enable"
	"github.com/Kikketer/EyeBox/internal/hw/gpio"
	"github.com/Kikketer/EyeBox/internal/hw/pca9685"
	"github.com/Kikketer/EyeBox/internal/hw/tracker"
	"github.com/Kikketer/EyeBox/internal/logic/directory"
	"github.com/Kikketer/EyeBox/internal/logic/dispatch"
	"github.com/Kikketer/EyeBox/internal/logic/engine"
	"github.com/Kikketer/EyeBox/internal/logic/position"
	"github.com/Kikketer/EyeBox/internal/logic/target"
	"github.com/Kikketer/EyeBox/internal/web"
)

func main() {
	// CLI flags
	webPort := &webPortFlag{defaultPort: 8080}
	flag.Var(webPort, "web", "start web server on port; -web= for default 8080, -web 8980 for custom port")
	cfgPath := flag.String("config", filepath.Join("configs", "default.yaml"), "path to config file")
	mode := flag.String("mode", "", "override movement mode: independent or synced")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Load configuration
	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("load config failed: %v", err)
	}
	if *mode != "" {
		if *mode != "independent" && *mode != "synced" {
			log.Fatalf("invalid -mode %q: want independent or synced", *mode)
		}
		cfg.Movement.Mode = *mode
	}

	// Initialize debug system
	debug.Init(cfg.Defaults.DebugLevel)
	debug.Section("Initialization")
	debug.Value("Config path", *cfgPath)
	debug.Value("Debug level", cfg.Defaults.DebugLevel)
	debug.Value("Movement mode", cfg.Movement.Mode)

	// Initialize the servo bus
	debug.Value("Mock bus", cfg.Bus.Mock)
	debug.Step(1, "Initializing PCA9685 boards")
	busDriver, err := pca9685.NewDriver(cfg.Bus.Mock, cfg.Bus.Addresses, cfg.Bus.FrequencyHz)
	if err != nil {
		log.Fatalf("init servo bus failed: %v", err)
	}
	defer func() {
		if err := busDriver.Close(); err != nil {
			log.Printf("closing servo bus failed: %v", err)
		}
	}()

	// Build the wall directory from whatever boards answered
	debug.Step(2, "Building eye directory")
	dir := directory.New(busDriver.NumBoards(), cfg.Bus.PairsPerBoard)
	if err := dir.AssignZones(cfg.Tracking.LeftZone, cfg.Tracking.RightZone); err != nil {
		log.Fatalf("assign zones failed: %v", err)
	}
	debug.Wall(dir.NumBoards(), dir.Len())

	// Dispatcher and target generator
	debug.Step(3, "Creating dispatcher and target generator")
	limits := position.Limits{Min: cfg.Servo.MinTicks, Max: cfg.Servo.MaxTicks}
	disp := dispatch.New(busDriver, limits, cfg.MinCommandGap())

	seed := cfg.Defaults.RandomSeed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))
	servoRange := position.Range{
		Midpoint:     cfg.Servo.Midpoint,
		LeftExtreme:  cfg.Servo.LeftExtreme,
		RightExtreme: cfg.Servo.RightExtreme,
		UpExtreme:    cfg.Servo.UpExtreme,
		DownExtreme:  cfg.Servo.DownExtreme,
	}
	gen := target.NewGenerator(servoRange, cfg.Movement.MinDistance, cfg.Tracking.ZoneBias, rng)

	// Tracking input
	// TODO: plug in the freenect depth adapter once its Go bindings are usable;
	// until then the wall runs on idle motion alone.
	var trk tracker.Source = tracker.None{}
	if cfg.Tracking.Enabled {
		debug.Info("Tracking enabled but no depth adapter is built in; idle policy only")
	}

	// Gate switch
	debug.Step(4, "Initializing gate")
	var gate enable.Source = enable.Always(true)
	if cfg.Gate.Pin > 0 {
		gpioDriver, err := gpio.NewDriver(cfg.Defaults.MockGPIO)
		if err != nil {
			log.Fatalf("init GPIO failed: %v", err)
		}
		defer func() {
			if err := gpioDriver.Close(); err != nil {
				log.Printf("closing GPIO driver failed: %v", err)
			}
		}()
		gate, err = enable.NewSwitch(gpioDriver, cfg.Gate.Pin, cfg.Gate.ActiveLow)
		if err != nil {
			log.Fatalf("init enable switch failed: %v", err)
		}
	}

	// Engine
	debug.Step(5, "Creating engine")
	eng := engine.New(engine.Config{
		Synced:             cfg.Synced(),
		Tick:               cfg.Tick(),
		MinInterval:        cfg.MinInterval(),
		MaxInterval:        cfg.MaxInterval(),
		TrackingEnabled:    cfg.Tracking.Enabled,
		SilenceMin:         cfg.SilenceMin(),
		SilenceMax:         cfg.SilenceMax(),
		PowerDownAfterMove: cfg.Movement.PowerDownAfterMove,
		Settle:             cfg.Settle(),
		GatePoll:           cfg.GatePoll(),
		ResumeSettle:       cfg.ResumeSettle(),
		Midpoint:           cfg.Servo.Midpoint,
	}, dir, disp, gen, trk, gate, rng)

	// Optional web status server
	if port := webPort.port(); port > 0 {
		broadcaster := web.NewStatusBroadcaster()
		debug.SetOutput(io.MultiWriter(os.Stdout, web.BroadcastWriter(broadcaster)))

		srv := web.NewServer(fmt.Sprintf(":%d", port), broadcaster, eng.CurrentStatus)
		go func() {
			if err := srv.Run(ctx); err != nil {
				log.Printf("web server: %v", err)
			}
		}()
	}

	if err := eng.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("engine failed: %v", err)
	}
}

// webPortFlag implements flag.Value for -web: 0 = disabled, -web= or -web 8080 → 8080, -web 8980 → 8980.
type webPortFlag struct {
	val         int
	defaultPort int
}

func (w *webPortFlag) String() string {
	if w.val == 0 {
		return "0"
	}
	return strconv.Itoa(w.val)
}

func (w *webPortFlag) Set(s string) error {
	if s == "" {
		w.val = w.defaultPort
		return nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return err
	}
	if v <= 0 || v > 65535 {
		return fmt.Errorf("port must be 1-65535, got %d", v)
	}
	w.val = v
	return nil
}

func (w *webPortFlag) port() int { return w.val }
