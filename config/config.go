// Package config loads the board description used to bring up a
// concentrator: where the bridge lives, how to log, and which temperature
// sensor driver to bind.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"loragw-go/drivers/stts751"
	"loragw-go/errcode"
	"loragw-go/x/mathx"
)

// Sensor drivers.
const (
	DriverFixed   = "fixed"   // stub: always 30 °C
	DriverSTTS751 = "stts751" // real register protocol over I2C
)

// BoardConfig is the top-level YAML document.
type BoardConfig struct {
	ComPath   string       `yaml:"com_path"`
	LogLevel  string       `yaml:"log_level"`
	TraceFile string       `yaml:"trace_file,omitempty"`
	Sensor    SensorConfig `yaml:"sensor"`
}

// SensorConfig selects and parameterises the board temperature sensor.
type SensorConfig struct {
	Driver         string `yaml:"driver"`
	I2CBus         string `yaml:"i2c_bus"` // periph bus name, e.g. "/dev/i2c-1" or "1"
	Address        uint16 `yaml:"address"`
	ResolutionBits uint8  `yaml:"resolution_bits"`
}

// Default returns the configuration used when no file is given.
func Default() BoardConfig {
	return BoardConfig{
		ComPath:  "/dev/ttyACM0",
		LogLevel: "info",
		Sensor: SensorConfig{
			Driver:         DriverFixed,
			I2CBus:         "/dev/i2c-1",
			Address:        stts751.AddressDefault,
			ResolutionBits: 11,
		},
	}
}

// Parse decodes a YAML document over Default and validates the result.
// Unknown keys are rejected.
func Parse(b []byte) (BoardConfig, error) {
	c := Default()
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(&c); err != nil && !errors.Is(err, io.EOF) {
		return BoardConfig{}, errcode.Wrap(errcode.InvalidParams, "config.parse", err)
	}
	if err := c.Validate(); err != nil {
		return BoardConfig{}, err
	}
	return c, nil
}

// Load reads and parses path.
func Load(path string) (BoardConfig, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return BoardConfig{}, errcode.Wrap(errcode.IoFailure, "config.load", err)
	}
	return Parse(b)
}

// Validate checks field values.
func (c BoardConfig) Validate() error {
	if c.ComPath == "" {
		return errcode.New(errcode.InvalidParams, "config", "com_path is required")
	}
	if _, err := c.SlogLevel(); err != nil {
		return errcode.New(errcode.InvalidParams, "config", fmt.Sprintf("log_level %q", c.LogLevel))
	}
	switch c.Sensor.Driver {
	case DriverFixed:
	case DriverSTTS751:
		if c.Sensor.Address == 0 || c.Sensor.Address > 0x7F {
			return errcode.New(errcode.InvalidParams, "config", fmt.Sprintf("sensor.address %#x is not a 7-bit address", c.Sensor.Address))
		}
		if !mathx.Between(c.Sensor.ResolutionBits, 9, 12) {
			return errcode.New(errcode.InvalidParams, "config", fmt.Sprintf("sensor.resolution_bits %d not in 9..12", c.Sensor.ResolutionBits))
		}
	default:
		return errcode.New(errcode.InvalidParams, "config", fmt.Sprintf("sensor.driver %q", c.Sensor.Driver))
	}
	return nil
}

// SlogLevel maps LogLevel to a slog level.
func (c BoardConfig) SlogLevel() (slog.Level, error) {
	var l slog.Level
	err := l.UnmarshalText([]byte(c.LogLevel))
	return l, err
}
