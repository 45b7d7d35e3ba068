//go:build linux

package serialport

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestApplyLineSessionPass(t *testing.T) {
	// Start from a cooked-mode terminal.
	tio := &unix.Termios{
		Iflag: unix.ICRNL | unix.IXON | unix.IGNBRK,
		Oflag: unix.OPOST,
		Cflag: unix.CS7 | unix.PARENB | unix.CSTOPB | unix.B9600,
		Lflag: unix.ICANON | unix.ECHO | unix.ISIG,
	}
	require.NoError(t, ApplyLine(tio, SessionLine))

	assert.Equal(t, uint32(unix.CS8), tio.Cflag&unix.CSIZE)
	assert.NotZero(t, tio.Cflag&unix.CLOCAL)
	assert.NotZero(t, tio.Cflag&unix.CREAD)
	assert.Zero(t, tio.Cflag&unix.PARENB)
	assert.Zero(t, tio.Cflag&unix.CSTOPB)
	assert.Equal(t, uint32(unix.B115200), tio.Cflag&unix.CBAUD)
	assert.Equal(t, uint32(unix.B115200), tio.Ispeed)
	assert.Equal(t, uint32(unix.B115200), tio.Ospeed)

	assert.Zero(t, tio.Iflag&(unix.IXON|unix.IXOFF|unix.IXANY|unix.ICRNL|unix.IGNBRK))
	assert.Zero(t, tio.Oflag&unix.OPOST)
	assert.Zero(t, tio.Lflag)

	assert.Equal(t, uint8(0), tio.Cc[unix.VMIN])
	assert.Equal(t, uint8(50), tio.Cc[unix.VTIME])
}

func TestApplyReadModeBlockingPass(t *testing.T) {
	tio := &unix.Termios{}
	require.NoError(t, ApplyLine(tio, SessionLine))
	cflag := tio.Cflag

	ApplyReadMode(tio, BlockingLine)
	assert.Equal(t, uint8(1), tio.Cc[unix.VMIN])
	assert.Equal(t, uint8(1), tio.Cc[unix.VTIME])
	assert.Equal(t, cflag, tio.Cflag, "second pass only touches the read mode")
}

func TestApplyLineRejectsUnknownBaud(t *testing.T) {
	assert.Error(t, ApplyLine(&unix.Termios{}, Line{Baud: 12345}))
}

func TestOpenNonTerminal(t *testing.T) {
	// A regular file opens but cannot take termios settings.
	path := filepath.Join(t.TempDir(), "not-a-tty")
	require.NoError(t, os.WriteFile(path, nil, 0o600))

	p, err := Open(path)
	assert.Error(t, err)
	assert.Nil(t, p)
}
