// cmd/lgw-probe/main.go
//
// lgw-probe brings up a USB concentrator and pokes at it:
//
//	lgw-probe ping
//	lgw-probe read  MUX ADDR
//	lgw-probe write MUX ADDR VALUE
//	lgw-probe dump  MUX ADDR COUNT
//	lgw-probe temp
//
// Numbers accept 0x/0o/0b prefixes.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"

	"loragw-go/config"
	"loragw-go/drivers/stts751"
	"loragw-go/hal/trace"
	"loragw-go/hal/usb"
)

var errUsage = errors.New("usage")

type app struct {
	stdout, stderr io.Writer

	// Test seams.
	usbOpts []usb.Option
	openI2C func(name string) (i2c.BusCloser, error)
}

func main() {
	a := &app{stdout: os.Stdout, stderr: os.Stderr, openI2C: openPeriphI2C}
	os.Exit(a.run(os.Args[1:]))
}

func openPeriphI2C(name string) (i2c.BusCloser, error) {
	if _, err := host.Init(); err != nil {
		return nil, err
	}
	return i2creg.Open(name)
}

func (a *app) run(args []string) int {
	fs := flag.NewFlagSet("lgw-probe", flag.ContinueOnError)
	fs.SetOutput(a.stderr)
	cfgPath := fs.String("config", "", "board YAML file")
	comPath := fs.String("com", "", "serial device (overrides com_path)")
	logLevel := fs.String("log-level", "", "debug|info|warn|error (overrides log_level)")
	traceFile := fs.String("trace", "", "append MCU frames to this CBOR file (overrides trace_file)")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg := config.Default()
	if *cfgPath != "" {
		var err error
		if cfg, err = config.Load(*cfgPath); err != nil {
			fmt.Fprintln(a.stderr, "config:", err)
			return 1
		}
	}
	if *comPath != "" {
		cfg.ComPath = *comPath
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	if *traceFile != "" {
		cfg.TraceFile = *traceFile
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(a.stderr, "config:", err)
		return 1
	}
	lvl, _ := cfg.SlogLevel()
	log := slog.New(slog.NewTextHandler(a.stderr, &slog.HandlerOptions{Level: lvl}))

	err := a.dispatch(cfg, log, fs.Args())
	switch {
	case err == nil:
		return 0
	case errors.Is(err, errUsage):
		fmt.Fprintln(a.stderr, "usage: lgw-probe [flags] ping|read MUX ADDR|write MUX ADDR VALUE|dump MUX ADDR COUNT|temp")
		fs.PrintDefaults()
		return 2
	default:
		log.Error("lgw-probe failed", slog.Any("err", err))
		return 1
	}
}

func (a *app) dispatch(cfg config.BoardConfig, log *slog.Logger, args []string) error {
	if len(args) == 0 {
		return errUsage
	}
	cmd, rest := args[0], args[1:]
	switch cmd {
	case "temp":
		if len(rest) != 0 {
			return errUsage
		}
		return a.temp(cfg, log)
	case "ping", "read", "write", "dump":
	default:
		return errUsage
	}

	nums, err := parseArgs(cmd, rest)
	if err != nil {
		return err
	}

	h, closeTrace, err := a.openUSB(cfg, log)
	if err != nil {
		return err
	}
	defer closeTrace()
	defer func() {
		if cerr := h.Close(); cerr != nil {
			log.Warn("close", slog.Any("err", cerr))
		}
	}()

	switch cmd {
	case "ping":
		fmt.Fprintf(a.stdout, "%s: concentrator ready\n", h.Path())
	case "read":
		v, err := h.ReadRegister(byte(nums[0]), uint16(nums[1]))
		if err != nil {
			return err
		}
		fmt.Fprintf(a.stdout, "%02x:%04x = 0x%02x\n", nums[0], nums[1], v)
	case "write":
		if err := h.WriteRegister(byte(nums[0]), uint16(nums[1]), byte(nums[2])); err != nil {
			return err
		}
		fmt.Fprintf(a.stdout, "%02x:%04x <- 0x%02x\n", nums[0], nums[1], nums[2])
	case "dump":
		buf := make([]byte, nums[2])
		if err := h.ReadBurst(byte(nums[0]), uint16(nums[1]), buf); err != nil {
			return err
		}
		writeDump(a.stdout, uint16(nums[1]), buf)
	}
	return nil
}

// openUSB opens the bridge. The returned func closes the trace file, if any,
// and must run after the handle is closed.
func (a *app) openUSB(cfg config.BoardConfig, log *slog.Logger) (*usb.Handle, func(), error) {
	tracer := trace.Tracer(trace.Slog{Logger: log})
	closeTrace := func() {}
	if cfg.TraceFile != "" {
		f, err := trace.Create(cfg.TraceFile)
		if err != nil {
			return nil, nil, err
		}
		tracer = trace.Multi(tracer, f)
		closeTrace = func() {
			if err := f.Err(); err != nil {
				log.Warn("trace file", slog.Any("err", err))
			}
			_ = f.Close()
		}
	}
	opts := append([]usb.Option{usb.WithLogger(log), usb.WithTracer(tracer)}, a.usbOpts...)
	h, err := usb.Open(cfg.ComPath, opts...)
	if err != nil {
		closeTrace()
		return nil, nil, err
	}
	return h, closeTrace, nil
}

func (a *app) temp(cfg config.BoardConfig, log *slog.Logger) error {
	var sensor stts751.Sensor
	switch cfg.Sensor.Driver {
	case config.DriverFixed:
		f := stts751.Fixed{Address: cfg.Sensor.Address}
		if err := f.Configure(); err != nil {
			return err
		}
		sensor = f
	case config.DriverSTTS751:
		bus, err := a.openI2C(cfg.Sensor.I2CBus)
		if err != nil {
			return fmt.Errorf("open i2c %q: %w", cfg.Sensor.I2CBus, err)
		}
		defer bus.Close()
		d := stts751.New(bus)
		if err := d.Configure(stts751.Config{
			Address:        cfg.Sensor.Address,
			ResolutionBits: cfg.Sensor.ResolutionBits,
		}); err != nil {
			return err
		}
		sensor = &d
	default:
		return fmt.Errorf("unknown sensor driver %q", cfg.Sensor.Driver)
	}
	c, err := sensor.ReadTemperature()
	if err != nil {
		return err
	}
	log.Debug("temperature", slog.String("driver", cfg.Sensor.Driver), slog.Float64("celsius", float64(c)))
	fmt.Fprintf(a.stdout, "%.2f C\n", c)
	return nil
}

// parseArgs validates the numeric operands of cmd.
func parseArgs(cmd string, rest []string) ([]uint64, error) {
	type operand struct {
		bits int
		name string
	}
	var want []operand
	switch cmd {
	case "read":
		want = []operand{{8, "MUX"}, {15, "ADDR"}}
	case "write":
		want = []operand{{8, "MUX"}, {15, "ADDR"}, {8, "VALUE"}}
	case "dump":
		want = []operand{{8, "MUX"}, {15, "ADDR"}, {16, "COUNT"}}
	}
	if len(rest) != len(want) {
		return nil, errUsage
	}
	out := make([]uint64, len(want))
	for i, s := range want {
		v, err := strconv.ParseUint(rest[i], 0, 64)
		if err != nil || v >= 1<<s.bits {
			return nil, fmt.Errorf("%s %q: want an unsigned %d-bit value", s.name, rest[i], s.bits)
		}
		out[i] = v
	}
	if cmd == "dump" && out[2] > usb.MaxBurstRead {
		return nil, fmt.Errorf("COUNT %d exceeds %d", out[2], usb.MaxBurstRead)
	}
	return out, nil
}

// writeDump prints 16 bytes per line prefixed by the register address.
func writeDump(w io.Writer, addr uint16, b []byte) {
	for off := 0; off < len(b); off += 16 {
		end := min(off+16, len(b))
		fmt.Fprintf(w, "%04x:", int(addr)+off)
		for _, v := range b[off:end] {
			fmt.Fprintf(w, " %02x", v)
		}
		fmt.Fprintln(w)
	}
}
