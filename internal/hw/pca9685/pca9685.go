package pca9685

import (
	"fmt"
	"sync"

	"github.com/Kikketer/EyeBox/internal/debug"
)

// Driver is the abstract interface for the PCA9685 servo boards on the wall.
// Boards are indexed 0..NumBoards()-1 in I2C address order; only boards that
// answered at startup are present. Channels are 0-15 per board.
//
// SetDutyCycle takes a 16-bit duty cycle (the top 12 bits land in the chip's
// OFF register). Duty 0 stops the pulse train entirely, releasing the servo.
type Driver interface {
	NumBoards() int
	SetDutyCycle(board, channel int, duty uint16) error
	Close() error
}

// NewDriver creates a PWM driver based on the chosen mode.
// If mock is true, returns a MockDriver pretending every configured
// address answered. Otherwise opens the real I2C bus.
func NewDriver(mock bool, addresses []int, freqHz int) (Driver, error) {
	if mock {
		debug.Info("Using MOCK PCA9685 driver (development mode)")
		return NewMockDriver(len(addresses)), nil
	}
	return NewPeriphDriver(addresses, freqHz)
}

func validateChannel(channel int) error {
	if channel < 0 || channel > 15 {
		return fmt.Errorf("channel %d out of range 0-15", channel)
	}
	return nil
}

// Write records a single duty-cycle write on the mock driver.
type Write struct {
	Board   int
	Channel int
	Duty    uint16
}

// MockDriver is a test implementation that records writes.
type MockDriver struct {
	mu     sync.Mutex
	boards int
	writes []Write

	// FailFunc, when set, is consulted before each write; a non-nil
	// return is reported as a transport error.
	FailFunc func(board, channel int) error
}

// NewMockDriver creates a mock with the given number of boards present.
func NewMockDriver(boards int) *MockDriver {
	return &MockDriver{boards: boards}
}

func (m *MockDriver) NumBoards() int {
	return m.boards
}

func (m *MockDriver) SetDutyCycle(board, channel int, duty uint16) error {
	if board < 0 || board >= m.boards {
		return fmt.Errorf("board %d out of range 0-%d", board, m.boards-1)
	}
	if err := validateChannel(channel); err != nil {
		return err
	}
	if m.FailFunc != nil {
		if err := m.FailFunc(board, channel); err != nil {
			return err
		}
	}
	debug.Bus(board, channel, duty)
	m.mu.Lock()
	m.writes = append(m.writes, Write{Board: board, Channel: channel, Duty: duty})
	m.mu.Unlock()
	return nil
}

// Writes returns a copy of all recorded writes.
func (m *MockDriver) Writes() []Write {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Write, len(m.writes))
	copy(out, m.writes)
	return out
}

// Reset clears the recorded writes.
func (m *MockDriver) Reset() {
	m.mu.Lock()
	m.writes = nil
	m.mu.Unlock()
}

func (m *MockDriver) Close() error {
	debug.Trace("PCA9685 Close (mock)")
	return nil
}
