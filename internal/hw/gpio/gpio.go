package gpio

import (
	"github.com/Kikketer/EyeBox/internal/debug"
)

// Level represents the logical state of a GPIO pin.
type Level bool

const (
	Low  Level = false
	High Level = true
)

// Driver defines the abstract interface for reading GPIOs.
// This allows plugging in a real Raspberry Pi implementation
// or a mock for development on PC. The eye wall only consumes
// inputs (the enable switch); outputs go through the PWM boards.
type Driver interface {
	SetupInput(pin int, pullUp bool) error
	ReadPin(pin int) (Level, error)
	Close() error
}

// NewDriver creates a GPIO driver based on the chosen mode.
// If mock is true, returns a MockDriver (for dev/test).
// If mock is false, returns a real RPiDriver (for Raspberry Pi).
func NewDriver(mock bool) (Driver, error) {
	if mock {
		debug.Info("Using MOCK GPIO driver (development mode)")
		return &MockDriver{}, nil
	}
	return NewRPiRealDriver()
}

// MockDriver is a test implementation with settable pin levels.
// Used for development on PC or testing.
type MockDriver struct {
	Levels map[int]Level
}

func (m *MockDriver) SetupInput(pin int, pullUp bool) error {
	debug.GPIO("SetupInput", pin, pullUp)
	return nil
}

func (m *MockDriver) ReadPin(pin int) (Level, error) {
	debug.GPIO("ReadPin", pin, nil)
	return m.Levels[pin], nil
}

// SetLevel sets the level a subsequent ReadPin will return.
func (m *MockDriver) SetLevel(pin int, level Level) {
	if m.Levels == nil {
		m.Levels = make(map[int]Level)
	}
	m.Levels[pin] = level
}

func (m *MockDriver) Close() error {
	debug.Trace("GPIO Close (mock)")
	return nil
}
