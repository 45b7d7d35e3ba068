// Package serialport opens the concentrator's USB CDC serial node in raw,
// blocking mode.
//
// The line is configured in two passes, matching the bridge MCU firmware's
// expectations:
//
//	SessionLine   115200 8N1, raw, VMIN=0 VTIME=50 (5 s)
//	BlockingLine  VMIN=1 VTIME=1 (0.1 s inter-byte)
//
// On Linux the termios structure is programmed directly; other platforms go
// through go.bug.st/serial with the closest equivalent timeout.
package serialport

import (
	"io"
	"time"
)

// Port is an open serial line.
type Port interface {
	io.ReadWriteCloser
}

// Line holds the parameters of one configuration pass.
type Line struct {
	Baud int
	// MinBytes is the minimum count a read waits for (VMIN).
	MinBytes uint8
	// Timeout is the read timeout, 0.1 s granularity (VTIME).
	Timeout time.Duration
}

var (
	// SessionLine is applied first, with the full line settings.
	SessionLine = Line{Baud: 115200, MinBytes: 0, Timeout: 5 * time.Second}
	// BlockingLine is applied second and only touches the read mode.
	BlockingLine = Line{Baud: 115200, MinBytes: 1, Timeout: 100 * time.Millisecond}
)

// deciseconds converts Timeout to VTIME units, saturating at 255.
func (l Line) deciseconds() uint8 {
	ds := l.Timeout / (100 * time.Millisecond)
	if ds > 255 {
		ds = 255
	}
	if ds < 0 {
		ds = 0
	}
	return uint8(ds)
}
