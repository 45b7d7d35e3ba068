// Package mcutest provides an in-memory bridge MCU for tests.
package mcutest

import (
	"bytes"
	"errors"
	"io"
	"sync"

	"loragw-go/hal/mcu"
)

// Reg identifies one register behind the SPI mux.
type Reg struct {
	Mux  byte
	Addr uint16
}

// GPIOWrite is one accepted write-GPIO command.
type GPIOWrite struct {
	Port, Pin, Value byte
}

// Request is one decoded host request.
type Request struct {
	ID      byte
	Cmd     byte
	Payload []byte
}

// Fake answers the bridge protocol from a register file. The zero value is
// not usable; call New.
type Fake struct {
	mu sync.Mutex

	// Version is returned by ping, flag character included.
	Version  string
	UniqueID [mcu.UniqueIDSize]byte

	// Fault injection.
	RejectPing bool  // answer ping with the unknown-command code
	GPIOStatus byte  // status byte for GPIO acks
	DropSPI    bool  // never answer SPI access (reads see EOF)
	FlipAckID  bool  // corrupt the ack ID
	ShortPing  bool  // truncate the ping payload
	CloseErr   error // returned by Close
	WriteErr   error // returned by Write

	regs     map[Reg]byte
	rx       []byte
	tx       bytes.Buffer
	requests []Request
	frames   [][]byte
	gpio     []GPIOWrite
	closes   int
}

// New returns a fake reporting a compatible firmware version.
func New() *Fake {
	return &Fake{
		Version:  "V" + mcu.ExpectedVersion,
		UniqueID: [mcu.UniqueIDSize]byte{0xDE, 0xAD, 0xBE, 0xEF, 1, 2, 3, 4, 5, 6, 7, 8},
		regs:     make(map[Reg]byte),
	}
}

// Write accepts request bytes and queues acks for every complete request.
func (f *Fake) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closes > 0 {
		return 0, errors.New("mcutest: write on closed port")
	}
	if f.WriteErr != nil {
		return 0, f.WriteErr
	}
	f.rx = append(f.rx, p...)
	for len(f.rx) >= mcu.HeaderSize {
		id, size, cmd := mcu.DecodeHeader(f.rx)
		if len(f.rx) < mcu.HeaderSize+size {
			break
		}
		payload := append([]byte(nil), f.rx[mcu.HeaderSize:mcu.HeaderSize+size]...)
		f.rx = f.rx[mcu.HeaderSize+size:]
		f.requests = append(f.requests, Request{ID: id, Cmd: cmd, Payload: payload})
		f.handle(id, cmd, payload)
	}
	return len(p), nil
}

// Read drains queued acks; with nothing queued it reports io.EOF.
func (f *Fake) Read(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.tx.Len() == 0 {
		return 0, io.EOF
	}
	return f.tx.Read(p)
}

// Close counts calls and returns CloseErr.
func (f *Fake) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closes++
	return f.CloseErr
}

func (f *Fake) handle(id, cmd byte, payload []byte) {
	switch cmd {
	case mcu.CmdPing:
		if f.RejectPing {
			f.ack(id, mcu.CmdUnknown, nil)
			return
		}
		b := make([]byte, mcu.PingAckSize)
		copy(b, f.UniqueID[:])
		copy(b[mcu.UniqueIDSize:], f.Version)
		if f.ShortPing {
			b = b[:mcu.UniqueIDSize]
		}
		f.ack(id, cmd|mcu.AckBit, b)
	case mcu.CmdWriteGPIO:
		if len(payload) != 3 {
			f.ack(id, mcu.CmdUnknown, nil)
			return
		}
		if f.GPIOStatus == mcu.GPIOStatusOK {
			f.gpio = append(f.gpio, GPIOWrite{Port: payload[0], Pin: payload[1], Value: payload[2]})
		}
		f.ack(id, cmd|mcu.AckBit, []byte{f.GPIOStatus})
	case mcu.CmdSPI:
		f.frames = append(f.frames, payload)
		if f.DropSPI {
			return
		}
		f.ack(id, cmd|mcu.AckBit, f.spi(payload))
	default:
		f.ack(id, mcu.CmdUnknown, nil)
	}
}

// spi applies a register-access frame and builds the response: writes echo
// the frame, reads return register contents from offset 5.
func (f *Fake) spi(frame []byte) []byte {
	resp := make([]byte, len(frame))
	copy(resp, frame)
	if len(frame) < 4 {
		return resp
	}
	mux := frame[1]
	write := frame[2]&0x80 != 0
	addr := uint16(frame[2]&0x7F)<<8 | uint16(frame[3])
	if write {
		for i, b := range frame[4:] {
			f.regs[Reg{Mux: mux, Addr: (addr + uint16(i)) & 0x7FFF}] = b
		}
		return resp
	}
	for i := 5; i < len(resp); i++ {
		resp[i] = f.regs[Reg{Mux: mux, Addr: (addr + uint16(i-5)) & 0x7FFF}]
	}
	return resp
}

func (f *Fake) ack(id, cmd byte, payload []byte) {
	if f.FlipAckID {
		id ^= 0xFF
	}
	var h [mcu.HeaderSize]byte
	mcu.EncodeHeader(h[:], id, len(payload), cmd)
	f.tx.Write(h[:])
	f.tx.Write(payload)
}

// SetReg presets a register.
func (f *Fake) SetReg(mux byte, addr uint16, v byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.regs[Reg{Mux: mux, Addr: addr}] = v
}

// RegValue returns a register's current content.
func (f *Fake) RegValue(mux byte, addr uint16) byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.regs[Reg{Mux: mux, Addr: addr}]
}

// Requests returns every request seen so far.
func (f *Fake) Requests() []Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Request(nil), f.requests...)
}

// SPIFrames returns the register-access frames seen so far.
func (f *Fake) SPIFrames() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]byte(nil), f.frames...)
}

// GPIOWrites returns accepted GPIO writes in order.
func (f *Fake) GPIOWrites() []GPIOWrite {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]GPIOWrite(nil), f.gpio...)
}

// Closes reports how many times Close was called.
func (f *Fake) Closes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closes
}
