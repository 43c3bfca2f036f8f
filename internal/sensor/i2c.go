package sensor

import (
	"fmt"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"
)

// I2CBus talks to a PCF8591 through periph.io.
type I2CBus struct {
	bus i2c.BusCloser
	dev *i2c.Dev
}

// OpenI2C opens the named I2C bus ("" selects the first one) and addresses
// the ADC at addr.
func OpenI2C(name string, addr uint16) (*I2CBus, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("init periph host: %w", err)
	}
	bus, err := i2creg.Open(name)
	if err != nil {
		return nil, fmt.Errorf("open i2c bus %q: %w", name, err)
	}
	return &I2CBus{bus: bus, dev: &i2c.Dev{Bus: bus, Addr: addr}}, nil
}

// ReadChannel selects the input channel and returns a fresh conversion.
// The PCF8591 returns the previous conversion first, so two bytes are read
// and the second is used.
func (b *I2CBus) ReadChannel(control byte) (int, error) {
	var r [2]byte
	if err := b.dev.Tx([]byte{control}, r[:]); err != nil {
		return 0, fmt.Errorf("read adc channel %#x: %w", control, err)
	}
	return int(r[1]), nil
}

// Close releases the bus.
func (b *I2CBus) Close() error {
	return b.bus.Close()
}
