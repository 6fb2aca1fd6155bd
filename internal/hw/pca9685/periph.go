package pca9685

import (
	"fmt"
	"math"
	"time"

	"github.com/Kikketer/EyeBox/internal/debug"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"
)

// PCA9685 register map (NXP datasheet §7.3).
const (
	regMode1    = 0x00
	regPrescale = 0xFE
	regLed0OnL  = 0x06 // each channel uses 4 registers starting here
)

// MODE1 bits.
const (
	mode1Sleep   = 0x10
	mode1AutoInc = 0x20
	mode1Restart = 0x80
)

const oscClockHz = 25000000

// PeriphDriver drives real PCA9685 boards over the Linux I2C bus via periph.io.
type PeriphDriver struct {
	bus  i2c.BusCloser
	devs []*i2c.Dev
}

// NewPeriphDriver opens the default I2C bus and probes each configured
// address. Boards that do not answer are logged and skipped; the wall
// keeps working with whatever subset is present.
func NewPeriphDriver(addresses []int, freqHz int) (*PeriphDriver, error) {
	debug.Info("Initializing real PCA9685 driver (periph.io)")

	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("periph host init: %w", err)
	}

	bus, err := i2creg.Open("")
	if err != nil {
		return nil, fmt.Errorf("open I2C bus: %w (is I2C enabled in raspi-config?)", err)
	}

	d := &PeriphDriver{bus: bus}
	for _, addr := range addresses {
		dev := &i2c.Dev{Bus: bus, Addr: uint16(addr)}
		if err := initBoard(dev, freqHz); err != nil {
			debug.Info("Warning: no board at 0x%02X: %v", addr, err)
			continue
		}
		debug.Info("Board %d (0x%02X) initialized", len(d.devs)+1, addr)
		d.devs = append(d.devs, dev)
	}

	if len(d.devs) == 0 {
		bus.Close()
		return nil, fmt.Errorf("no PCA9685 boards found at %d configured address(es)", len(addresses))
	}
	return d, nil
}

// initBoard resets the chip, programs the PWM frequency and enables
// register auto-increment. Probing and bring-up in one step: a board
// that is absent fails on the first register access.
func initBoard(dev *i2c.Dev, freqHz int) error {
	// Reset MODE1, which also proves the board is present.
	if err := dev.Tx([]byte{regMode1, 0x00}, nil); err != nil {
		return err
	}

	// prescale = round(osc / (4096 * freq)) - 1
	prescale := int(math.Round(float64(oscClockHz)/(4096.0*float64(freqHz)))) - 1
	if prescale < 3 {
		prescale = 3
	}
	if prescale > 255 {
		prescale = 255
	}

	// The prescaler can only be written while the oscillator sleeps.
	var mode [1]byte
	if err := dev.Tx([]byte{regMode1}, mode[:]); err != nil {
		return err
	}
	old := mode[0]
	if err := dev.Tx([]byte{regMode1, (old &^ mode1Restart) | mode1Sleep}, nil); err != nil {
		return err
	}
	if err := dev.Tx([]byte{regPrescale, byte(prescale)}, nil); err != nil {
		return err
	}
	if err := dev.Tx([]byte{regMode1, old}, nil); err != nil {
		return err
	}
	time.Sleep(5 * time.Millisecond) // oscillator wake-up time
	return dev.Tx([]byte{regMode1, old | mode1Restart | mode1AutoInc}, nil)
}

func (d *PeriphDriver) NumBoards() int {
	return len(d.devs)
}

func (d *PeriphDriver) SetDutyCycle(board, channel int, duty uint16) error {
	if board < 0 || board >= len(d.devs) {
		return fmt.Errorf("board %d out of range 0-%d", board, len(d.devs)-1)
	}
	if err := validateChannel(channel); err != nil {
		return err
	}
	debug.Bus(board, channel, duty)

	regs := channelRegValues(duty)
	buf := []byte{byte(regLed0OnL + 4*channel), regs[0], regs[1], regs[2], regs[3]}
	if err := d.devs[board].Tx(buf, nil); err != nil {
		return fmt.Errorf("write board %d channel %d: %w", board, channel, err)
	}
	return nil
}

// channelRegValues converts a 16-bit duty cycle to the four ON/OFF register
// bytes. Duty 0 sets the FULL_OFF bit so the output truly stops; anything
// else starts the pulse at tick 0 and ends it at duty>>4.
func channelRegValues(duty uint16) [4]byte {
	switch {
	case duty == 0:
		return [4]byte{0x00, 0x00, 0x00, 0x10} // FULL_OFF
	case duty == 0xFFFF:
		return [4]byte{0x00, 0x10, 0x00, 0x00} // FULL_ON
	default:
		off := duty >> 4
		return [4]byte{0x00, 0x00, byte(off & 0xFF), byte(off >> 8)}
	}
}

func (d *PeriphDriver) Close() error {
	debug.Trace("PCA9685 Close (real driver)")

	// Stop all pulses before releasing the bus.
	for b := range d.devs {
		for ch := 0; ch < 16; ch++ {
			_ = d.SetDutyCycle(b, ch, 0)
		}
	}
	return d.bus.Close()
}
