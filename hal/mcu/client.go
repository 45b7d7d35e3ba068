package mcu

import (
	"fmt"
	"io"
	"time"

	"loragw-go/errcode"
	"loragw-go/hal/trace"
)

// Client issues commands over a byte stream. It is not safe for concurrent use.
type Client struct {
	rw     io.ReadWriter
	ids    IDSource
	tracer trace.Tracer

	out []byte
	hdr [HeaderSize]byte
	in  []byte
}

type Option func(*Client)

// WithIDSource replaces the default SeededIDs(0).
func WithIDSource(ids IDSource) Option {
	return func(c *Client) {
		if ids != nil {
			c.ids = ids
		}
	}
}

// WithTracer records every request and ack.
func WithTracer(t trace.Tracer) Option {
	return func(c *Client) {
		if t != nil {
			c.tracer = t
		}
	}
}

func New(rw io.ReadWriter, opts ...Option) *Client {
	c := &Client{
		rw:     rw,
		ids:    NewSeededIDs(0),
		tracer: trace.Nop{},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Ping asks the MCU for its unique ID and firmware version.
func (c *Client) Ping() (PingInfo, error) {
	ack, err := c.exchange("mcu.ping", CmdPing, nil)
	if err != nil {
		return PingInfo{}, err
	}
	if len(ack) != PingAckSize {
		return PingInfo{}, errcode.New(errcode.ProtocolMismatch, "mcu.ping",
			fmt.Sprintf("ack size %d, want %d", len(ack), PingAckSize))
	}
	return decodePing(ack), nil
}

// WriteGPIO drives pin of port to value (0 or 1).
func (c *Client) WriteGPIO(port, pin, value byte) error {
	ack, err := c.exchange("mcu.gpio", CmdWriteGPIO, []byte{port, pin, value})
	if err != nil {
		return err
	}
	if len(ack) != 1 {
		return errcode.New(errcode.ProtocolMismatch, "mcu.gpio", fmt.Sprintf("ack size %d, want 1", len(ack)))
	}
	if ack[0] != GPIOStatusOK {
		return errcode.New(errcode.ProtocolMismatch, "mcu.gpio", fmt.Sprintf("status %#02x", ack[0]))
	}
	return nil
}

// SPIAccess sends one register-access frame and copies the MCU's response,
// which has the same length, into in.
func (c *Client) SPIAccess(out, in []byte) error {
	if len(in) < len(out) {
		return errcode.New(errcode.InvalidParams, "mcu.spi", "response buffer shorter than request")
	}
	ack, err := c.exchange("mcu.spi", CmdSPI, out)
	if err != nil {
		return err
	}
	if len(ack) != len(out) {
		return errcode.New(errcode.ProtocolMismatch, "mcu.spi",
			fmt.Sprintf("ack size %d, want %d", len(ack), len(out)))
	}
	copy(in, ack)
	return nil
}

// exchange writes one request and reads its ack. The returned payload
// aliases an internal buffer valid until the next call.
func (c *Client) exchange(op string, cmd byte, payload []byte) ([]byte, error) {
	if len(payload) > MaxPayload {
		return nil, errcode.New(errcode.InvalidParams, op, fmt.Sprintf("payload %d bytes exceeds %d", len(payload), MaxPayload))
	}
	id := c.ids.NextID()

	n := HeaderSize + len(payload)
	if cap(c.out) < n {
		c.out = make([]byte, n)
	}
	req := c.out[:n]
	EncodeHeader(req, id, len(payload), cmd)
	copy(req[HeaderSize:], payload)

	c.tracer.Trace(trace.Event{Time: time.Now(), Dir: trace.TX, Cmd: cmd, ID: id, Data: req})
	if _, err := c.rw.Write(req); err != nil {
		return nil, errcode.Wrap(errcode.IoFailure, op, err)
	}

	if _, err := io.ReadFull(c.rw, c.hdr[:]); err != nil {
		return nil, errcode.Wrap(errcode.IoFailure, op, err)
	}
	ackID, size, ackCmd := DecodeHeader(c.hdr[:])

	if cap(c.in) < HeaderSize+size {
		c.in = make([]byte, HeaderSize+size)
	}
	frame := c.in[:HeaderSize+size]
	copy(frame, c.hdr[:])
	if _, err := io.ReadFull(c.rw, frame[HeaderSize:]); err != nil {
		return nil, errcode.Wrap(errcode.IoFailure, op, err)
	}
	c.tracer.Trace(trace.Event{Time: time.Now(), Dir: trace.RX, Cmd: ackCmd, ID: ackID, Data: frame})

	switch {
	case ackCmd == CmdUnknown:
		return nil, errcode.New(errcode.ProtocolMismatch, op, fmt.Sprintf("MCU rejected command %#02x", cmd))
	case ackCmd != cmd|AckBit:
		return nil, errcode.New(errcode.ProtocolMismatch, op, fmt.Sprintf("ack command %#02x, want %#02x", ackCmd, cmd|AckBit))
	case ackID != id:
		return nil, errcode.New(errcode.ProtocolMismatch, op, fmt.Sprintf("ack id %d, want %d", ackID, id))
	}
	return frame[HeaderSize:], nil
}
