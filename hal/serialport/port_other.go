//go:build !linux

package serialport

import (
	"fmt"

	"go.bug.st/serial"
)

// Open opens path at 115200 8N1 through go.bug.st/serial. The library always
// configures raw mode; the read timeout stands in for VMIN=1/VTIME=1.
func Open(path string) (Port, error) {
	p, err := serial.Open(path, &serial.Mode{
		BaudRate: BlockingLine.Baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("serialport: open %s: %w", path, err)
	}
	if err := p.SetReadTimeout(BlockingLine.Timeout); err != nil {
		_ = p.Close()
		return nil, fmt.Errorf("serialport: read timeout %s: %w", path, err)
	}
	return p, nil
}
