package usb

// Register-access frame layout shared with the bridge MCU.
const (
	// MaxFrameSize is bounded by the 16-bit size field of MCU requests.
	MaxFrameSize = 0xFFFF

	writeHeaderSize = 4 // reserved, mux, addr hi | 0x80, addr lo
	readHeaderSize  = 5 // reserved, mux, addr hi, addr lo, reserved

	// MaxBurstWrite and MaxBurstRead are the largest payloads a frame can hold.
	MaxBurstWrite = MaxFrameSize - writeHeaderSize
	MaxBurstRead  = MaxFrameSize - readHeaderSize

	writeFlag = 0x80
)

// AddrHigh returns the address-high frame byte: bit 7 selects write,
// bits 6..0 are address bits 14..8.
func AddrHigh(addr uint16, write bool) byte {
	b := byte(addr>>8) & 0x7F
	if write {
		b |= writeFlag
	}
	return b
}

// WriteFrame builds the 5-byte single-register write request.
func WriteFrame(mux byte, addr uint16, data byte) []byte {
	return []byte{0, mux, AddrHigh(addr, true), byte(addr), data}
}

// ReadFrame builds the 6-byte single-register read request; the value comes
// back in the last byte.
func ReadFrame(mux byte, addr uint16) []byte {
	return []byte{0, mux, AddrHigh(addr, false), byte(addr), 0, 0}
}

// BurstWriteFrame builds a len(data)+4 byte request.
func BurstWriteFrame(mux byte, addr uint16, data []byte) []byte {
	f := make([]byte, writeHeaderSize+len(data))
	f[1] = mux
	f[2] = AddrHigh(addr, true)
	f[3] = byte(addr)
	copy(f[writeHeaderSize:], data)
	return f
}

// BurstReadFrame builds an n+5 byte request; the data comes back at offset 5.
func BurstReadFrame(mux byte, addr uint16, n int) []byte {
	f := make([]byte, readHeaderSize+n)
	f[1] = mux
	f[2] = AddrHigh(addr, false)
	f[3] = byte(addr)
	return f
}
