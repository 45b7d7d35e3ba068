package trace

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/fxamacker/cbor/v2"
)

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.EncOptions{
		Sort:        cbor.SortCanonical,
		IndefLength: cbor.IndefLengthForbidden,
		Time:        cbor.TimeRFC3339Nano,
	}.EncMode()
	if err != nil {
		panic(fmt.Sprintf("trace: cbor encoder mode: %v", err))
	}
	decMode, err = cbor.DecOptions{
		DupMapKey: cbor.DupMapKeyQuiet,
	}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("trace: cbor decoder mode: %v", err))
	}
}

// File appends events to a CBOR sequence file.
type File struct {
	mu     sync.Mutex
	w      io.WriteCloser
	enc    *cbor.Encoder
	err    error
	closed bool
}

// Create opens path for appending, creating it if needed.
func Create(path string) (*File, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	return NewFile(f), nil
}

// NewFile writes events to w; Close closes w.
func NewFile(w io.WriteCloser) *File {
	return &File{w: w, enc: encMode.NewEncoder(w)}
}

// Trace encodes e. The first encoding error is kept and reported by Err;
// later events are dropped.
func (f *File) Trace(e Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed || f.err != nil {
		return
	}
	f.err = f.enc.Encode(e)
}

// Err returns the first write error, if any.
func (f *File) Err() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

// Close closes the underlying writer. Safe to call more than once.
func (f *File) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil
	}
	f.closed = true
	return f.w.Close()
}

// ReadAll decodes every event from a CBOR sequence.
func ReadAll(r io.Reader) ([]Event, error) {
	dec := decMode.NewDecoder(r)
	var out []Event
	for {
		var e Event
		err := dec.Decode(&e)
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, e)
	}
}

var _ Tracer = (*File)(nil)
