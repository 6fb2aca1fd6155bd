package enable

import (
	"github.com/Kikketer/EyeBox/internal/debug"
	"github.com/Kikketer/EyeBox/internal/hw/gpio"
)

// Source reports the external enable signal. The engine polls it on its
// own cadence; implementations should be cheap and non-blocking.
type Source interface {
	Enabled() (bool, error)
}

// Always is a Source pinned to a fixed value, for installations without
// a physical switch.
type Always bool

func (a Always) Enabled() (bool, error) { return bool(a), nil }

// Switch reads a toggle switch wired to a GPIO pin.
// With activeLow the switch connects the pin to ground and the internal
// pull-up holds it HIGH while open, so LOW means enabled.
type Switch struct {
	gpio      gpio.Driver
	pin       int
	activeLow bool
}

// NewSwitch configures the pin as an input and returns the switch.
func NewSwitch(g gpio.Driver, pin int, activeLow bool) (*Switch, error) {
	if err := g.SetupInput(pin, activeLow); err != nil {
		return nil, err
	}
	debug.Info("Enable switch on pin %d (active %s)", pin, levelName(activeLow))
	return &Switch{gpio: g, pin: pin, activeLow: activeLow}, nil
}

func (s *Switch) Enabled() (bool, error) {
	level, err := s.gpio.ReadPin(s.pin)
	if err != nil {
		return false, err
	}
	if s.activeLow {
		return level == gpio.Low, nil
	}
	return level == gpio.High, nil
}

func levelName(activeLow bool) string {
	if activeLow {
		return "LOW"
	}
	return "HIGH"
}
