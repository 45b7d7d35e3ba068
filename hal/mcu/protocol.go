// Package mcu speaks the command protocol of the concentrator's USB bridge
// MCU: a 4-byte header followed by a payload, answered by an ack with the
// same request ID and the command code with bit 6 set.
//
//	request  [id, size_msb, size_lsb, cmd]      + payload
//	ack      [id, size_msb, size_lsb, cmd|0x40] + payload
package mcu

// ExpectedVersion is the firmware version this HAL is built against. The
// MCU reports it prefixed with a release/debug flag character.
const ExpectedVersion = "01.00.00"

const (
	HeaderSize = 4
	MaxPayload = 0xFFFF

	CmdPing       = 0x00
	CmdGetStatus  = 0x01
	CmdBootloader = 0x02
	CmdReset      = 0x03
	CmdWriteGPIO  = 0x04
	CmdSPI        = 0x05

	AckBit     = 0x40
	CmdUnknown = 0xFF

	UniqueIDSize = 12
	VersionSize  = 9
	PingAckSize  = UniqueIDSize + VersionSize

	GPIOStatusOK = 0x00
)

// PingInfo is the payload of a ping ack.
type PingInfo struct {
	UniqueID [UniqueIDSize]byte
	// Version includes the leading release/debug flag, e.g. "V01.00.00".
	Version string
}

// Compatible reports whether the reported version, minus its flag
// character, equals expected.
func (p PingInfo) Compatible(expected string) bool {
	return len(p.Version) > 1 && p.Version[1:] == expected
}

func decodePing(b []byte) PingInfo {
	var p PingInfo
	copy(p.UniqueID[:], b[:UniqueIDSize])
	v := b[UniqueIDSize : UniqueIDSize+VersionSize]
	n := len(v)
	for n > 0 && v[n-1] == 0 {
		n--
	}
	p.Version = string(v[:n])
	return p
}

// EncodeHeader writes a request or ack header into dst[:HeaderSize].
func EncodeHeader(dst []byte, id byte, size int, cmd byte) {
	dst[0] = id
	dst[1] = byte(size >> 8)
	dst[2] = byte(size)
	dst[3] = cmd
}

// DecodeHeader splits a header.
func DecodeHeader(h []byte) (id byte, size int, cmd byte) {
	return h[0], int(h[1])<<8 | int(h[2]), h[3]
}
