package usb_test

import (
	"errors"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loragw-go/errcode"
	"loragw-go/hal/mcu"
	"loragw-go/hal/mcu/mcutest"
	"loragw-go/hal/serialport"
	"loragw-go/hal/trace"
	"loragw-go/hal/usb"
)

var quiet = slog.New(slog.DiscardHandler)

func opener(f *mcutest.Fake) usb.Option {
	return usb.WithPortOpener(func(string) (serialport.Port, error) { return f, nil })
}

func openFake(t *testing.T, f *mcutest.Fake, opts ...usb.Option) *usb.Handle {
	t.Helper()
	opts = append([]usb.Option{opener(f), usb.WithLogger(quiet)}, opts...)
	h, err := usb.Open("/dev/ttyACM-fake", opts...)
	require.NoError(t, err)
	require.NotNil(t, h)
	return h
}

func TestOpenResetsConcentrator(t *testing.T) {
	f := mcutest.New()
	h := openFake(t, f)
	defer h.Close()

	assert.Equal(t, "/dev/ttyACM-fake", h.Path())
	assert.Equal(t, []mcutest.GPIOWrite{
		{Port: 0, Pin: 1, Value: 1},
		{Port: 0, Pin: 2, Value: 1},
		{Port: 0, Pin: 2, Value: 0},
	}, f.GPIOWrites())

	reqs := f.Requests()
	require.Len(t, reqs, 4)
	assert.Equal(t, byte(mcu.CmdPing), reqs[0].Cmd)
	assert.Zero(t, f.Closes())
}

func TestRegisterRoundTrip(t *testing.T) {
	f := mcutest.New()
	h := openFake(t, f)
	defer h.Close()

	require.NoError(t, h.WriteRegister(usb.MuxSX1302, 0x1234, 0xA5))
	require.NoError(t, h.WriteRegister(usb.MuxSX1250A, 0x1234, 0x3C))

	v, err := h.ReadRegister(usb.MuxSX1302, 0x1234)
	require.NoError(t, err)
	assert.Equal(t, byte(0xA5), v)

	v, err = h.ReadRegister(usb.MuxSX1250A, 0x1234)
	require.NoError(t, err)
	assert.Equal(t, byte(0x3C), v)

	frames := f.SPIFrames()
	require.Len(t, frames, 4)
	assert.Equal(t, []byte{0x00, usb.MuxSX1302, 0x92, 0x34, 0xA5}, frames[0])
	assert.Equal(t, []byte{0x00, usb.MuxSX1302, 0x12, 0x34, 0x00, 0x00}, frames[2])
}

func TestBurstRoundTrip(t *testing.T) {
	f := mcutest.New()
	h := openFake(t, f)
	defer h.Close()

	data := make([]byte, 300)
	for i := range data {
		data[i] = byte(i*7 + 3)
	}
	require.NoError(t, h.WriteBurst(usb.MuxSX1302, 0x0200, data))

	out := make([]byte, len(data))
	require.NoError(t, h.ReadBurst(usb.MuxSX1302, 0x0200, out))
	assert.Equal(t, data, out)

	frames := f.SPIFrames()
	require.Len(t, frames, 2)
	assert.Len(t, frames[0], len(data)+4)
	assert.Len(t, frames[1], len(data)+5)

	// A shorter read at an offset sees the matching slice.
	part := make([]byte, 4)
	require.NoError(t, h.ReadBurst(usb.MuxSX1302, 0x0200+10, part))
	assert.Equal(t, data[10:14], part)
	assert.Equal(t, data[299], f.RegValue(usb.MuxSX1302, 0x0200+299))
}

func TestReadBurstUsesOffsetFive(t *testing.T) {
	f := mcutest.New()
	for i := 0; i < 3; i++ {
		f.SetReg(usb.MuxSX1302, 0x0010+uint16(i), byte(0xC0+i))
	}
	h := openFake(t, f)
	defer h.Close()

	out := make([]byte, 3)
	require.NoError(t, h.ReadBurst(usb.MuxSX1302, 0x0010, out))
	assert.Equal(t, []byte{0xC0, 0xC1, 0xC2}, out)

	empty := []byte{}
	require.NoError(t, h.ReadBurst(usb.MuxSX1302, 0x0010, empty))
}

func TestOpenUnreachablePath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ttyACM-missing")
	h, err := usb.Open(path, usb.WithLogger(quiet))
	assert.Nil(t, h)
	assert.ErrorIs(t, err, errcode.IoFailure)
}

func TestOpenerErrorNothingToClose(t *testing.T) {
	boom := errors.New("permission denied")
	h, err := usb.Open("/dev/x", usb.WithLogger(quiet),
		usb.WithPortOpener(func(string) (serialport.Port, error) { return nil, boom }))
	assert.Nil(t, h)
	assert.ErrorIs(t, err, errcode.IoFailure)
	assert.ErrorIs(t, err, boom)
}

func TestOpenFailuresClosePort(t *testing.T) {
	cases := []struct {
		name  string
		setup func(f *mcutest.Fake)
		want  errcode.Code
	}{
		{"ping rejected", func(f *mcutest.Fake) { f.RejectPing = true }, errcode.ProtocolMismatch},
		{"ping io", func(f *mcutest.Fake) { f.WriteErr = errors.New("EIO") }, errcode.IoFailure},
		{"version mismatch", func(f *mcutest.Fake) { f.Version = "V00.02.06" }, errcode.ProtocolMismatch},
		{"version without flag", func(f *mcutest.Fake) { f.Version = mcu.ExpectedVersion }, errcode.ProtocolMismatch},
		{"gpio status", func(f *mcutest.Fake) { f.GPIOStatus = 0x01 }, errcode.ProtocolMismatch},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := mcutest.New()
			tc.setup(f)
			h, err := usb.Open("/dev/x", opener(f), usb.WithLogger(quiet))
			assert.Nil(t, h)
			require.Error(t, err)
			assert.Equal(t, tc.want, errcode.Of(err))
			assert.Equal(t, 1, f.Closes(), "port must be released")
		})
	}
}

func TestCloseFailureStillInvalidates(t *testing.T) {
	f := mcutest.New()
	h := openFake(t, f)
	f.CloseErr = errors.New("EBADF")

	err := h.Close()
	assert.ErrorIs(t, err, errcode.IoFailure)
	assert.Equal(t, 1, f.Closes())

	_, err = h.ReadRegister(usb.MuxSX1302, 0)
	assert.ErrorIs(t, err, errcode.NullArgument)
	assert.ErrorIs(t, h.Close(), errcode.NullArgument)
	assert.Equal(t, 1, f.Closes())
}

func TestCloseSuccess(t *testing.T) {
	f := mcutest.New()
	h := openFake(t, f)
	require.NoError(t, h.Close())
	assert.Equal(t, 1, f.Closes())
	assert.ErrorIs(t, h.WriteRegister(usb.MuxSX1302, 0, 0), errcode.NullArgument)
}

func TestNilArguments(t *testing.T) {
	var h *usb.Handle
	assert.ErrorIs(t, h.WriteRegister(0, 0, 0), errcode.NullArgument)
	_, err := h.ReadRegister(0, 0)
	assert.ErrorIs(t, err, errcode.NullArgument)
	assert.ErrorIs(t, h.WriteBurst(0, 0, []byte{1}), errcode.NullArgument)
	assert.ErrorIs(t, h.ReadBurst(0, 0, make([]byte, 1)), errcode.NullArgument)
	assert.ErrorIs(t, h.Close(), errcode.NullArgument)
	assert.Empty(t, h.Path())

	f := mcutest.New()
	h = openFake(t, f)
	defer h.Close()
	assert.ErrorIs(t, h.WriteBurst(0, 0, nil), errcode.NullArgument)
	assert.ErrorIs(t, h.ReadBurst(0, 0, nil), errcode.NullArgument)
	assert.Empty(t, f.SPIFrames(), "no I/O on argument errors")
}

func TestOversizeBurst(t *testing.T) {
	f := mcutest.New()
	h := openFake(t, f)
	defer h.Close()

	assert.ErrorIs(t, h.WriteBurst(0, 0, make([]byte, usb.MaxBurstWrite+1)), errcode.InvalidParams)
	assert.ErrorIs(t, h.ReadBurst(0, 0, make([]byte, usb.MaxBurstRead+1)), errcode.InvalidParams)
	assert.Empty(t, f.SPIFrames())
}

func TestTransactionFailure(t *testing.T) {
	f := mcutest.New()
	h := openFake(t, f)
	defer h.Close()
	f.DropSPI = true

	_, err := h.ReadRegister(usb.MuxSX1302, 0x0001)
	assert.Equal(t, errcode.TransactionFailure, errcode.Of(err))
	assert.ErrorIs(t, err, errcode.IoFailure)

	assert.ErrorIs(t, h.WriteRegister(usb.MuxSX1302, 0x0001, 1), errcode.TransactionFailure)
	assert.ErrorIs(t, h.WriteBurst(usb.MuxSX1302, 0x0001, []byte{1, 2}), errcode.TransactionFailure)
	assert.ErrorIs(t, h.ReadBurst(usb.MuxSX1302, 0x0001, make([]byte, 2)), errcode.TransactionFailure)
}

func TestRequestIDsDeterministicPerHandle(t *testing.T) {
	ids := func() []byte {
		f := mcutest.New()
		h := openFake(t, f)
		defer h.Close()
		require.NoError(t, h.WriteRegister(0, 1, 2))
		var out []byte
		for _, r := range f.Requests() {
			out = append(out, r.ID)
		}
		return out
	}
	assert.Equal(t, ids(), ids())

	f := mcutest.New()
	h := openFake(t, f, usb.WithIDSource(&mcu.Counter{}))
	defer h.Close()
	var got []byte
	for _, r := range f.Requests() {
		got = append(got, r.ID)
	}
	assert.Equal(t, []byte{0, 1, 2, 3}, got)
}

type countingTracer struct{ tx, rx int }

func (c *countingTracer) Trace(e trace.Event) {
	switch e.Dir {
	case trace.TX:
		c.tx++
	case trace.RX:
		c.rx++
	}
}

func TestTracerSeesSession(t *testing.T) {
	f := mcutest.New()
	tr := &countingTracer{}
	h := openFake(t, f, usb.WithTracer(tr))
	require.NoError(t, h.WriteRegister(0, 0, 0))
	require.NoError(t, h.Close())

	// ping + 3 GPIO + 1 SPI
	assert.Equal(t, 5, tr.tx)
	assert.Equal(t, 5, tr.rx)
}
