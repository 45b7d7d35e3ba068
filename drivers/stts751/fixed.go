package stts751

import "tinygo.org/x/drivers"

// StubCelsius is the reading reported by the stub driver.
const StubCelsius = 30.0

// Configure is the stub driver entry point: it accepts any bus and address
// and never touches hardware.
func Configure(bus drivers.I2C, addr uint16) error {
	_, _ = bus, addr
	return nil
}

// ReadTemperature is the stub driver entry point: it always succeeds and
// returns StubCelsius.
func ReadTemperature(bus drivers.I2C, addr uint16) (float32, error) {
	_, _ = bus, addr
	return StubCelsius, nil
}

// Fixed is a Sensor bound to the stub driver.
type Fixed struct {
	Bus     drivers.I2C
	Address uint16
}

func (f Fixed) Configure() error { return Configure(f.Bus, f.Address) }

func (f Fixed) ReadTemperature() (float32, error) { return ReadTemperature(f.Bus, f.Address) }
