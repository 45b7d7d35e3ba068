// Package usb reaches the SX1302 concentrator registers through the USB
// bridge MCU. A Handle owns the serial port for the whole session:
//
//	h, err := usb.Open("/dev/ttyACM0")
//	if err != nil { ... }
//	defer h.Close()
//	v, err := h.ReadRegister(usb.MuxSX1302, 0x5600)
//
// Handles are not safe for concurrent use.
package usb

import (
	"fmt"
	"log/slog"

	"loragw-go/errcode"
	"loragw-go/hal/mcu"
	"loragw-go/hal/serialport"
	"loragw-go/hal/trace"
)

// SPI mux targets behind the bridge.
const (
	MuxSX1302  = 0x00
	MuxSX1250A = 0x01
	MuxSX1250B = 0x02
)

// Reset lines driven on GPIO port A during Open.
const (
	gpioPortA  = 0
	pinPowerEn = 1
	pinReset   = 2
)

var resetSequence = [...]struct{ port, pin, value byte }{
	{gpioPortA, pinPowerEn, 1}, // POWER_EN
	{gpioPortA, pinReset, 1},   // SX1302_RESET active
	{gpioPortA, pinReset, 0},   // SX1302_RESET inactive
}

// Bridge is the set of MCU primitives the transport needs.
type Bridge interface {
	Ping() (mcu.PingInfo, error)
	WriteGPIO(port, pin, value byte) error
	SPIAccess(out, in []byte) error
}

// Handle is an open session with the bridge.
type Handle struct {
	path   string
	port   serialport.Port
	bridge Bridge
	log    *slog.Logger
	in     []byte
	closed bool
}

type options struct {
	openPort func(path string) (serialport.Port, error)
	ids      mcu.IDSource
	tracer   trace.Tracer
	log      *slog.Logger
}

type Option func(*options)

// WithPortOpener replaces serialport.Open.
func WithPortOpener(open func(path string) (serialport.Port, error)) Option {
	return func(o *options) { o.openPort = open }
}

// WithIDSource sets the MCU request ID source. Default: mcu.NewSeededIDs(0).
func WithIDSource(ids mcu.IDSource) Option {
	return func(o *options) { o.ids = ids }
}

// WithTracer records every MCU frame.
func WithTracer(t trace.Tracer) Option {
	return func(o *options) { o.tracer = t }
}

func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.log = l }
}

// Open opens and configures the serial line at path, checks the MCU
// firmware version and resets the SX1302. A firmware mismatch is fatal. On
// any error the port is closed before returning.
func Open(path string, opts ...Option) (_ *Handle, err error) {
	o := options{
		openPort: serialport.Open,
		tracer:   trace.Nop{},
		log:      slog.Default(),
	}
	for _, fn := range opts {
		fn(&o)
	}
	if o.ids == nil {
		o.ids = mcu.NewSeededIDs(0)
	}
	if o.log == nil {
		o.log = slog.Default()
	}
	log := o.log.With(slog.String("com_path", path))

	port, err := o.openPort(path)
	if err != nil {
		log.Error("failed to open COM port", slog.Any("err", err))
		return nil, errcode.Wrap(errcode.IoFailure, "usb.open", err)
	}
	defer func() {
		if err != nil {
			_ = port.Close()
		}
	}()

	client := mcu.New(port, mcu.WithIDSource(o.ids), mcu.WithTracer(o.tracer))

	info, err := client.Ping()
	if err != nil {
		log.Error("failed to ping the concentrator MCU", slog.Any("err", err))
		return nil, fmt.Errorf("usb: ping MCU: %w", err)
	}
	if !info.Compatible(mcu.ExpectedVersion) {
		log.Error("MCU version mismatch",
			slog.String("expected", mcu.ExpectedVersion),
			slog.String("got", info.Version))
		return nil, errcode.New(errcode.ProtocolMismatch, "usb.open",
			fmt.Sprintf("MCU version mismatch (expected %s, got %s)", mcu.ExpectedVersion, info.Version))
	}
	log.Info("concentrator MCU version", slog.String("version", info.Version))

	for _, g := range resetSequence {
		if err = client.WriteGPIO(g.port, g.pin, g.value); err != nil {
			log.Error("failed to reset SX1302", slog.Any("err", err))
			return nil, fmt.Errorf("usb: reset SX1302: %w", err)
		}
	}

	return &Handle{
		path:   path,
		port:   port,
		bridge: client,
		log:    log,
	}, nil
}

// Close releases the port. The handle is invalid afterwards even when the
// underlying close fails.
func (h *Handle) Close() error {
	if err := h.check("usb.close"); err != nil {
		return err
	}
	err := h.port.Close()
	h.closed = true
	h.port = nil
	h.bridge = nil
	h.in = nil
	if err != nil {
		h.log.Error("USB port failed to close", slog.Any("err", err))
		return errcode.Wrap(errcode.IoFailure, "usb.close", err)
	}
	h.log.Debug("USB port closed")
	return nil
}

// Path returns the device path the handle was opened on.
func (h *Handle) Path() string {
	if h == nil {
		return ""
	}
	return h.path
}

// WriteRegister writes one byte at addr.
func (h *Handle) WriteRegister(mux byte, addr uint16, data byte) error {
	if err := h.check("usb.w"); err != nil {
		return err
	}
	_, err := h.exchange("usb.w", WriteFrame(mux, addr, data))
	return err
}

// ReadRegister reads one byte at addr.
func (h *Handle) ReadRegister(mux byte, addr uint16) (byte, error) {
	if err := h.check("usb.r"); err != nil {
		return 0, err
	}
	in, err := h.exchange("usb.r", ReadFrame(mux, addr))
	if err != nil {
		return 0, err
	}
	return in[len(in)-1], nil
}

// WriteBurst writes data to consecutive registers starting at addr.
func (h *Handle) WriteBurst(mux byte, addr uint16, data []byte) error {
	if err := h.check("usb.wb"); err != nil {
		return err
	}
	if data == nil {
		return errcode.New(errcode.NullArgument, "usb.wb", "nil data")
	}
	if len(data) > MaxBurstWrite {
		return errcode.New(errcode.InvalidParams, "usb.wb", fmt.Sprintf("burst of %d bytes exceeds %d", len(data), MaxBurstWrite))
	}
	_, err := h.exchange("usb.wb", BurstWriteFrame(mux, addr, data))
	return err
}

// ReadBurst fills out from consecutive registers starting at addr.
func (h *Handle) ReadBurst(mux byte, addr uint16, out []byte) error {
	if err := h.check("usb.rb"); err != nil {
		return err
	}
	if out == nil {
		return errcode.New(errcode.NullArgument, "usb.rb", "nil data")
	}
	if len(out) > MaxBurstRead {
		return errcode.New(errcode.InvalidParams, "usb.rb", fmt.Sprintf("burst of %d bytes exceeds %d", len(out), MaxBurstRead))
	}
	in, err := h.exchange("usb.rb", BurstReadFrame(mux, addr, len(out)))
	if err != nil {
		return err
	}
	copy(out, in[readHeaderSize:])
	return nil
}

func (h *Handle) check(op string) error {
	if h == nil || h.closed || h.port == nil {
		return errcode.New(errcode.NullArgument, op, "handle is not open")
	}
	return nil
}

// exchange performs one SPI access. The response aliases h.in.
func (h *Handle) exchange(op string, out []byte) ([]byte, error) {
	if cap(h.in) < len(out) {
		h.in = make([]byte, len(out))
	}
	in := h.in[:len(out)]
	if err := h.bridge.SPIAccess(out, in); err != nil {
		h.log.Debug("USB register access failure", slog.String("op", op), slog.Any("err", err))
		return nil, errcode.Wrap(errcode.TransactionFailure, op, err)
	}
	return in, nil
}
