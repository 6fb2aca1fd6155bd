package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// BusConfig describes the I2C bus and the PCA9685 boards attached to it.
type BusConfig struct {
	Addresses       []int `yaml:"addresses"`          // 7-bit I2C addresses, e.g. [0x40 .. 0x47]
	FrequencyHz     int   `yaml:"frequency_hz"`       // PWM frequency (50Hz for analog servos)
	MinCommandGapMs int   `yaml:"min_command_gap_ms"` // minimum delay between two bus writes
	PairsPerBoard   int   `yaml:"pairs_per_board"`    // eyes per board (2 channels each, max 8)
	Mock            bool  `yaml:"mock"`               // use mock bus driver (dev/test off the Pi)
}

// ServoConfig holds the logical position range shared by every servo on the wall.
// Positions are 12-bit PCA9685 tick counts. Extremes are offsets from the midpoint:
// left and up are positive, right and down are negative.
type ServoConfig struct {
	Midpoint     int `yaml:"midpoint"`
	LeftExtreme  int `yaml:"left_extreme"`
	RightExtreme int `yaml:"right_extreme"`
	UpExtreme    int `yaml:"up_extreme"`
	DownExtreme  int `yaml:"down_extreme"`
	MinTicks     int `yaml:"min_ticks"` // hardware safety bound (servo physical limit)
	MaxTicks     int `yaml:"max_ticks"`
}

// MovementConfig controls the scheduler.
type MovementConfig struct {
	Mode               string  `yaml:"mode"`            // "independent" or "synced"
	TickMs             int     `yaml:"tick_ms"`         // scheduler polling tick
	MinIntervalMs      int     `yaml:"min_interval_ms"` // lower bound for the random re-fire delay
	MaxIntervalMs      int     `yaml:"max_interval_ms"`
	MinDistance        float64 `yaml:"min_distance"`          // min normalized distance between idle targets
	PowerDownAfterMove bool    `yaml:"power_down_after_move"` // release servos shortly after each move
	SettleMs           int     `yaml:"settle_ms"`             // hold time before release
}

// TrackingConfig controls the depth-sensor tracking branch.
type TrackingConfig struct {
	Enabled      bool     `yaml:"enabled"`
	SilenceMinMs int      `yaml:"silence_min_ms"` // idle fallback threshold, re-randomized
	SilenceMaxMs int      `yaml:"silence_max_ms"` // between these bounds each time it fires
	ZoneBias     int      `yaml:"zone_bias"`      // horizontal bias in ticks for zoned eyes (0 = uniform)
	LeftZone     []string `yaml:"left_zone"`      // "board.pair" labels, 1-based
	RightZone    []string `yaml:"right_zone"`
}

// GateConfig describes the external enable switch.
type GateConfig struct {
	Pin            int  `yaml:"pin"`              // BCM pin of the switch. 0 = no gate, always enabled.
	ActiveLow      bool `yaml:"active_low"`       // switch pulls the pin LOW when enabled
	PollMs         int  `yaml:"poll_ms"`          // switch polling cadence
	ResumeSettleMs int  `yaml:"resume_settle_ms"` // wait after centering before scheduling resumes
}

// DefaultsConfig contains generic parameters.
type DefaultsConfig struct {
	DebugLevel int   `yaml:"debug_level"` // debug level 0-4 (0=off, 1=info, 2=live, 3=verbose, 4=trace)
	MockGPIO   bool  `yaml:"mock_gpio"`   // use mock GPIO (true=dev/test, false=real Raspberry Pi)
	RandomSeed int64 `yaml:"random_seed"` // 0 = seed from time (set for reproducible runs)
}

// Config aggregates all application configuration.
type Config struct {
	Bus      BusConfig      `yaml:"bus"`
	Servo    ServoConfig    `yaml:"servo"`
	Movement MovementConfig `yaml:"movement"`
	Tracking TrackingConfig `yaml:"tracking"`
	Gate     GateConfig     `yaml:"gate"`
	Defaults DefaultsConfig `yaml:"defaults"`
}

// Load reads a YAML file and returns the configuration.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal yaml: %w", err)
	}

	// Bus defaults
	if len(cfg.Bus.Addresses) == 0 {
		// The wall runs eight boards, 0x40 through 0x47
		for a := 0x40; a <= 0x47; a++ {
			cfg.Bus.Addresses = append(cfg.Bus.Addresses, a)
		}
	}
	for _, a := range cfg.Bus.Addresses {
		if a < 0x03 || a > 0x77 {
			return nil, fmt.Errorf("bus address 0x%02X is not a valid 7-bit I2C address", a)
		}
	}
	if cfg.Bus.FrequencyHz == 0 {
		cfg.Bus.FrequencyHz = 50
	}
	if cfg.Bus.FrequencyHz < 24 || cfg.Bus.FrequencyHz > 1526 {
		return nil, fmt.Errorf("bus frequency_hz must be within the PCA9685 range 24-1526, got %d", cfg.Bus.FrequencyHz)
	}
	if cfg.Bus.MinCommandGapMs <= 0 {
		cfg.Bus.MinCommandGapMs = 10
	}
	if cfg.Bus.PairsPerBoard == 0 {
		cfg.Bus.PairsPerBoard = 8
	}
	if cfg.Bus.PairsPerBoard < 1 || cfg.Bus.PairsPerBoard > 8 {
		return nil, fmt.Errorf("pairs_per_board must be 1-8, got %d", cfg.Bus.PairsPerBoard)
	}

	// Servo range defaults (measured on the wall hardware)
	if cfg.Servo.Midpoint == 0 {
		cfg.Servo.Midpoint = 352
	}
	if cfg.Servo.LeftExtreme == 0 {
		cfg.Servo.LeftExtreme = 80
	}
	if cfg.Servo.RightExtreme == 0 {
		cfg.Servo.RightExtreme = 80
	}
	if cfg.Servo.UpExtreme == 0 {
		cfg.Servo.UpExtreme = 10
	}
	if cfg.Servo.DownExtreme == 0 {
		cfg.Servo.DownExtreme = 50
	}
	if cfg.Servo.MinTicks == 0 {
		cfg.Servo.MinTicks = 125
	}
	if cfg.Servo.MaxTicks == 0 {
		cfg.Servo.MaxTicks = 499
	}
	if cfg.Servo.MinTicks < 0 || cfg.Servo.MaxTicks > 4095 || cfg.Servo.MinTicks >= cfg.Servo.MaxTicks {
		return nil, fmt.Errorf("servo min_ticks/max_ticks must satisfy 0 <= min < max <= 4095, got %d/%d",
			cfg.Servo.MinTicks, cfg.Servo.MaxTicks)
	}
	if cfg.Servo.LeftExtreme < 0 || cfg.Servo.RightExtreme < 0 || cfg.Servo.UpExtreme < 0 || cfg.Servo.DownExtreme < 0 {
		return nil, fmt.Errorf("servo extremes must be >= 0")
	}
	// Checked once here so the dispatcher only has to clamp at runtime.
	if cfg.Servo.Midpoint-cfg.Servo.RightExtreme < cfg.Servo.MinTicks {
		return nil, fmt.Errorf("midpoint-right_extreme (%d) is below min_ticks (%d)",
			cfg.Servo.Midpoint-cfg.Servo.RightExtreme, cfg.Servo.MinTicks)
	}
	if cfg.Servo.Midpoint+cfg.Servo.LeftExtreme > cfg.Servo.MaxTicks {
		return nil, fmt.Errorf("midpoint+left_extreme (%d) is above max_ticks (%d)",
			cfg.Servo.Midpoint+cfg.Servo.LeftExtreme, cfg.Servo.MaxTicks)
	}
	if cfg.Servo.Midpoint-cfg.Servo.DownExtreme < cfg.Servo.MinTicks {
		return nil, fmt.Errorf("midpoint-down_extreme (%d) is below min_ticks (%d)",
			cfg.Servo.Midpoint-cfg.Servo.DownExtreme, cfg.Servo.MinTicks)
	}
	if cfg.Servo.Midpoint+cfg.Servo.UpExtreme > cfg.Servo.MaxTicks {
		return nil, fmt.Errorf("midpoint+up_extreme (%d) is above max_ticks (%d)",
			cfg.Servo.Midpoint+cfg.Servo.UpExtreme, cfg.Servo.MaxTicks)
	}

	// Movement defaults
	if cfg.Movement.Mode == "" {
		cfg.Movement.Mode = "independent"
	}
	if cfg.Movement.Mode != "independent" && cfg.Movement.Mode != "synced" {
		return nil, fmt.Errorf("movement.mode must be \"independent\" or \"synced\", got %q", cfg.Movement.Mode)
	}
	if cfg.Movement.TickMs <= 0 {
		cfg.Movement.TickMs = 100
	}
	if cfg.Movement.MinIntervalMs <= 0 {
		if cfg.Movement.Mode == "synced" {
			cfg.Movement.MinIntervalMs = 750
		} else {
			cfg.Movement.MinIntervalMs = 200
		}
	}
	if cfg.Movement.MaxIntervalMs <= 0 {
		cfg.Movement.MaxIntervalMs = 3000
	}
	if cfg.Movement.MaxIntervalMs < cfg.Movement.MinIntervalMs {
		return nil, fmt.Errorf("max_interval_ms (%d) must be >= min_interval_ms (%d)",
			cfg.Movement.MaxIntervalMs, cfg.Movement.MinIntervalMs)
	}
	if cfg.Movement.MinDistance == 0 {
		cfg.Movement.MinDistance = 0.3
	}
	if cfg.Movement.MinDistance < 0 || cfg.Movement.MinDistance >= 1 {
		return nil, fmt.Errorf("min_distance must be within [0, 1), got %.2f", cfg.Movement.MinDistance)
	}
	if cfg.Movement.SettleMs <= 0 {
		cfg.Movement.SettleMs = 50
	}

	// Tracking defaults
	if cfg.Tracking.SilenceMinMs <= 0 {
		cfg.Tracking.SilenceMinMs = 500
	}
	if cfg.Tracking.SilenceMaxMs <= 0 {
		cfg.Tracking.SilenceMaxMs = 3000
	}
	if cfg.Tracking.SilenceMaxMs < cfg.Tracking.SilenceMinMs {
		return nil, fmt.Errorf("silence_max_ms (%d) must be >= silence_min_ms (%d)",
			cfg.Tracking.SilenceMaxMs, cfg.Tracking.SilenceMinMs)
	}
	if cfg.Tracking.ZoneBias < 0 {
		return nil, fmt.Errorf("zone_bias must be >= 0, got %d", cfg.Tracking.ZoneBias)
	}

	// Gate defaults
	if cfg.Gate.PollMs <= 0 {
		cfg.Gate.PollMs = 250
	}
	if cfg.Gate.PollMs < cfg.Bus.MinCommandGapMs {
		return nil, fmt.Errorf("gate poll_ms (%d) must not be tighter than bus min_command_gap_ms (%d)",
			cfg.Gate.PollMs, cfg.Bus.MinCommandGapMs)
	}
	if cfg.Gate.ResumeSettleMs <= 0 {
		cfg.Gate.ResumeSettleMs = 2000
	}

	return &cfg, nil
}

// MinCommandGap returns the minimum delay between two bus writes.
func (c *Config) MinCommandGap() time.Duration {
	return time.Duration(c.Bus.MinCommandGapMs) * time.Millisecond
}

// Tick returns the scheduler polling interval.
func (c *Config) Tick() time.Duration {
	return time.Duration(c.Movement.TickMs) * time.Millisecond
}

// MinInterval returns the lower bound of the random re-fire delay.
func (c *Config) MinInterval() time.Duration {
	return time.Duration(c.Movement.MinIntervalMs) * time.Millisecond
}

// MaxInterval returns the upper bound of the random re-fire delay.
func (c *Config) MaxInterval() time.Duration {
	return time.Duration(c.Movement.MaxIntervalMs) * time.Millisecond
}

// Settle returns the hold time before a moved servo is released.
func (c *Config) Settle() time.Duration {
	return time.Duration(c.Movement.SettleMs) * time.Millisecond
}

// SilenceMin returns the lower bound of the tracking silence threshold.
func (c *Config) SilenceMin() time.Duration {
	return time.Duration(c.Tracking.SilenceMinMs) * time.Millisecond
}

// SilenceMax returns the upper bound of the tracking silence threshold.
func (c *Config) SilenceMax() time.Duration {
	return time.Duration(c.Tracking.SilenceMaxMs) * time.Millisecond
}

// GatePoll returns the enable-switch polling cadence.
func (c *Config) GatePoll() time.Duration {
	return time.Duration(c.Gate.PollMs) * time.Millisecond
}

// ResumeSettle returns the wait between centering and resuming after the gate opens.
func (c *Config) ResumeSettle() time.Duration {
	return time.Duration(c.Gate.ResumeSettleMs) * time.Millisecond
}

// Synced reports whether the scheduler runs in synchronized mode.
func (c *Config) Synced() bool {
	return c.Movement.Mode == "synced"
}
