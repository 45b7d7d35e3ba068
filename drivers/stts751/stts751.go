package stts751

import (
	"errors"
	"math"

	"loragw-go/x/mathx"

	"tinygo.org/x/drivers"
)

// Errors returned by the driver.
var (
	ErrUnknownDevice = errors.New("stts751: unknown device")
	ErrBadResolution = errors.New("stts751: resolution must be 9..12 bits")
	ErrBadRate       = errors.New("stts751: conversion rate out of range")
	ErrTornSample    = errors.New("stts751: temperature changed during read")
	ErrNotInStandby  = errors.New("stts751: one-shot needs standby mode")
)

// Sensor is the read side shared by Device and Fixed.
type Sensor interface {
	ReadTemperature() (float32, error)
}

// Config controls how Configure programs the device. All fields are optional.
type Config struct {
	// Address defaults to AddressDefault if zero.
	Address uint16
	// ResolutionBits is 9..12. Default 11 (0.125 °C).
	ResolutionBits uint8
	// Rate is the conversion-rate code 0..9 (1/16 Hz .. 32 Hz). Default 4 (1 Hz).
	Rate byte
	// Standby stops continuous conversion; use OneShot to sample.
	Standby bool
	// MaskEvent disables the EVENT pin.
	MaskEvent bool
}

// ID holds the identification registers.
type ID struct {
	Product      byte
	Manufacturer byte
	Revision     byte
}

// Status is the decoded STATUS register.
type Status struct {
	Busy      bool
	HighTrip  bool
	LowTrip   bool
	ThermTrip bool
}

// Device wraps an I2C connection to an STTS751.
type Device struct {
	bus     drivers.I2C
	Address uint16

	cfg Config
	w   [2]byte
	r   [1]byte
}

// New creates a new STTS751 connection. The I2C bus must already be configured.
// This function only creates the Device object; it does not touch the device.
func New(bus drivers.I2C) Device {
	return Device{
		bus:     bus,
		Address: AddressDefault,
	}
}

// Configure checks the identification registers and programs resolution,
// conversion rate and run mode.
func (d *Device) Configure(cfgs ...Config) error {
	var c Config
	if len(cfgs) > 0 {
		c = cfgs[0]
	}
	if c.Address != 0 {
		d.Address = c.Address
	}
	if c.ResolutionBits == 0 {
		c.ResolutionBits = 11
	}
	if c.Rate == 0 && !c.Standby {
		c.Rate = 0x04
	}
	res, ok := resBits[c.ResolutionBits]
	if !ok {
		return ErrBadResolution
	}
	if c.Rate > rateMax {
		return ErrBadRate
	}

	id, err := d.Identify()
	if err != nil {
		return err
	}
	if id.Manufacturer != ManufacturerST || (id.Product != ProductID0 && id.Product != ProductID1) {
		return ErrUnknownDevice
	}

	conf, err := d.readReg(regConfig)
	if err != nil {
		return err
	}
	conf &^= confResMask | confStop | confEventDis
	conf |= res << confResShift
	if c.Standby {
		conf |= confStop
	}
	if c.MaskEvent {
		conf |= confEventDis
	}
	if err := d.writeReg(regConfig, conf); err != nil {
		return err
	}
	if err := d.writeReg(regRate, c.Rate); err != nil {
		return err
	}
	d.cfg = c
	return nil
}

// Identify reads product, manufacturer and revision IDs.
func (d *Device) Identify() (ID, error) {
	var id ID
	var err error
	if id.Product, err = d.readReg(regProductID); err != nil {
		return ID{}, err
	}
	if id.Manufacturer, err = d.readReg(regManufacturerID); err != nil {
		return ID{}, err
	}
	if id.Revision, err = d.readReg(regRevisionID); err != nil {
		return ID{}, err
	}
	return id, nil
}

// ReadTemperature returns the last conversion in °C. The high byte is read
// twice; if it changed the pair is re-read once.
func (d *Device) ReadTemperature() (float32, error) {
	for attempt := 0; attempt < 2; attempt++ {
		hi, err := d.readReg(regTempHigh)
		if err != nil {
			return 0, err
		}
		lo, err := d.readReg(regTempLow)
		if err != nil {
			return 0, err
		}
		again, err := d.readReg(regTempHigh)
		if err != nil {
			return 0, err
		}
		if again == hi {
			return decodeTemp(hi, lo), nil
		}
	}
	return 0, ErrTornSample
}

// Status reads and decodes the STATUS register.
func (d *Device) Status() (Status, error) {
	v, err := d.readReg(regStatus)
	if err != nil {
		return Status{}, err
	}
	return Status{
		Busy:      v&statusBusy != 0,
		HighTrip:  v&statusHighTrip != 0,
		LowTrip:   v&statusLowTrip != 0,
		ThermTrip: v&statusThermTrip != 0,
	}, nil
}

// OneShot starts a single conversion. Only valid in standby.
func (d *Device) OneShot() error {
	if !d.cfg.Standby {
		return ErrNotInStandby
	}
	return d.writeReg(regOneShot, 0)
}

// SetLimits programs the EVENT high/low limits in °C (1/16 °C steps,
// clamped to the register range).
func (d *Device) SetLimits(high, low float32) error {
	hh, hl := encodeLimit(high)
	lh, ll := encodeLimit(low)
	for _, w := range [...][2]byte{
		{regHighLimitH, hh}, {regHighLimitL, hl},
		{regLowLimitH, lh}, {regLowLimitL, ll},
	} {
		if err := d.writeReg(w[0], w[1]); err != nil {
			return err
		}
	}
	return nil
}

// SetTherm programs the THERM limit and hysteresis in whole °C.
func (d *Device) SetTherm(limit int8, hysteresis uint8) error {
	if err := d.writeReg(regThermLimit, byte(limit)); err != nil {
		return err
	}
	return d.writeReg(regThermHyst, hysteresis)
}

func (d *Device) readReg(reg byte) (byte, error) {
	d.w[0] = reg
	if err := d.bus.Tx(d.Address, d.w[:1], d.r[:1]); err != nil {
		return 0, err
	}
	return d.r[0], nil
}

func (d *Device) writeReg(reg, val byte) error {
	d.w[0] = reg
	d.w[1] = val
	return d.bus.Tx(d.Address, d.w[:2], nil)
}

// decodeTemp converts the TEMP_H/TEMP_L pair (8.8 fixed point) to °C.
func decodeTemp(hi, lo byte) float32 {
	raw := int16(uint16(hi)<<8 | uint16(lo&0xF0))
	return float32(raw) / 256
}

// encodeLimit converts °C to a limit register pair.
func encodeLimit(c float32) (hi, lo byte) {
	c = mathx.Clamp(c, limitMin, limitMax)
	sixteenths := int16(math.Round(float64(c) * 16))
	raw := uint16(sixteenths << 4)
	return byte(raw >> 8), byte(raw) & 0xF0
}
