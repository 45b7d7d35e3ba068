//go:build linux

package serialport

import (
	"fmt"
	"io/fs"
	"os"

	"golang.org/x/sys/unix"
)

var baudRates = map[int]uint32{
	9600:   unix.B9600,
	19200:  unix.B19200,
	38400:  unix.B38400,
	57600:  unix.B57600,
	115200: unix.B115200,
	230400: unix.B230400,
	460800: unix.B460800,
	921600: unix.B921600,
}

// Open opens path read/write without becoming its controlling terminal,
// takes exclusive access and applies SessionLine then BlockingLine. The
// descriptor is closed on every failure path.
func Open(path string) (_ Port, err error) {
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_NOCTTY|unix.O_SYNC|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, &fs.PathError{Op: "open", Path: path, Err: err}
	}
	defer func() {
		if err != nil {
			_ = unix.Close(fd)
		}
	}()

	if err = unix.IoctlSetInt(fd, unix.TIOCEXCL, 0); err != nil {
		return nil, fmt.Errorf("serialport: TIOCEXCL %s: %w", path, err)
	}

	t, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		return nil, fmt.Errorf("serialport: tcgetattr %s: %w", path, err)
	}
	if err = ApplyLine(t, SessionLine); err != nil {
		return nil, err
	}
	if err = unix.IoctlSetTermios(fd, unix.TCSETS, t); err != nil {
		return nil, fmt.Errorf("serialport: tcsetattr %s: %w", path, err)
	}

	t, err = unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		return nil, fmt.Errorf("serialport: tcgetattr %s: %w", path, err)
	}
	ApplyReadMode(t, BlockingLine)
	if err = unix.IoctlSetTermios(fd, unix.TCSETS, t); err != nil {
		return nil, fmt.Errorf("serialport: tcsetattr %s: %w", path, err)
	}

	return os.NewFile(uintptr(fd), path), nil
}

// ApplyLine programs t for a raw 8N1 line at l.Baud with l's read mode.
func ApplyLine(t *unix.Termios, l Line) error {
	speed, ok := baudRates[l.Baud]
	if !ok {
		return fmt.Errorf("serialport: unsupported baud rate %d", l.Baud)
	}

	// Control modes: 8 bits, no modem control, receiver on, no parity, 1 stop bit.
	t.Cflag &^= unix.CBAUD | unix.CSIZE | unix.PARENB | unix.CSTOPB
	t.Cflag |= speed | unix.CS8 | unix.CLOCAL | unix.CREAD
	t.Ispeed = speed
	t.Ospeed = speed

	// Input modes: no software flow control, no CR->NL.
	t.Iflag &^= unix.IGNBRK | unix.IXON | unix.IXOFF | unix.IXANY | unix.ICRNL
	// Output modes: raw.
	t.Oflag &^= unix.OPOST
	// Local modes: non-canonical, no echo, no signals.
	t.Lflag = 0

	ApplyReadMode(t, l)
	return nil
}

// ApplyReadMode sets only VMIN/VTIME.
func ApplyReadMode(t *unix.Termios, l Line) {
	t.Cc[unix.VMIN] = l.MinBytes
	t.Cc[unix.VTIME] = l.deciseconds()
}
