// Package trace records raw MCU frames exchanged over the USB bridge.
package trace

import (
	"context"
	"log/slog"
	"time"
)

// Direction of a frame relative to the host.
type Direction uint8

const (
	TX Direction = iota + 1 // host -> MCU
	RX                      // MCU -> host
)

func (d Direction) String() string {
	switch d {
	case TX:
		return "tx"
	case RX:
		return "rx"
	default:
		return "unknown"
	}
}

// Event is one frame on the wire, header included.
type Event struct {
	Time time.Time `cbor:"1,keyasint"`
	Dir  Direction `cbor:"2,keyasint"`
	Cmd  byte      `cbor:"3,keyasint"`
	ID   byte      `cbor:"4,keyasint"`
	Data []byte    `cbor:"5,keyasint"`
}

// Tracer receives frames. Event.Data is only valid during the call.
type Tracer interface {
	Trace(Event)
}

// Nop discards events.
type Nop struct{}

func (Nop) Trace(Event) {}

// Slog writes events to a logger at debug level.
type Slog struct {
	Logger *slog.Logger
}

func (s Slog) Trace(e Event) {
	l := s.Logger
	if l == nil {
		l = slog.Default()
	}
	if !l.Enabled(context.Background(), slog.LevelDebug) {
		return
	}
	l.Debug("mcu frame",
		slog.String("dir", e.Dir.String()),
		slog.Int("cmd", int(e.Cmd)),
		slog.Int("id", int(e.ID)),
		slog.Int("len", len(e.Data)),
		slog.String("data", hexBytes(e.Data)),
	)
}

// Multi fans events out to every non-nil tracer.
func Multi(ts ...Tracer) Tracer {
	out := make(multi, 0, len(ts))
	for _, t := range ts {
		if t != nil {
			out = append(out, t)
		}
	}
	return out
}

type multi []Tracer

func (m multi) Trace(e Event) {
	for _, t := range m {
		t.Trace(e)
	}
}

func hexBytes(b []byte) string {
	const hexd = "0123456789ABCDEF"
	if len(b) == 0 {
		return ""
	}
	out := make([]byte, 0, len(b)*3-1)
	for i, v := range b {
		if i > 0 {
			out = append(out, ' ')
		}
		out = append(out, hexd[v>>4], hexd[v&0xF])
	}
	return string(out)
}
