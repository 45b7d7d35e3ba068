package errcode

import "errors"

// Code is a stable error class for HAL operations.
// It is a string newtype, comparable, allocation-free, and implements error.
type Code string

func (c Code) Error() string { return string(c) }

// Closed set of HAL error classes.
const (
	OK Code = "ok"

	NullArgument       Code = "null_argument"       // nil handle or buffer; programming error
	IoFailure          Code = "io_failure"          // open/configure/read/write/close syscalls
	ProtocolMismatch   Code = "protocol_mismatch"   // bad ping, version, ack or GPIO status
	TransactionFailure Code = "transaction_failure" // SPI access exchange failed
	InvalidParams      Code = "invalid_params"      // out-of-range sizes, bad config

	Error Code = "error" // generic fallback
)

// E keeps the operation and cause alongside a Code.
type E struct {
	C   Code
	Op  string
	Msg string
	Err error
}

func (e *E) Error() string {
	s := string(e.C)
	if e.Op != "" {
		s = e.Op + ": " + s
	}
	if e.Msg != "" {
		s += ": " + e.Msg
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *E) Unwrap() error { return e.Err }
func (e *E) Code() Code    { return e.C }

// Is makes errors.Is(err, errcode.X) match on the class.
func (e *E) Is(target error) bool {
	c, ok := target.(Code)
	return ok && c == e.C
}

// New returns an *E for op with an optional message.
func New(c Code, op, msg string) error {
	return &E{C: c, Op: op, Msg: msg}
}

// Wrap classifies err under c. A nil err yields nil.
func Wrap(c Code, op string, err error) error {
	if err == nil {
		return nil
	}
	return &E{C: c, Op: op, Err: err}
}

// Of extracts a Code from an error, defaulting to Error.
func Of(err error) Code {
	if err == nil {
		return OK
	}
	if c, ok := err.(Code); ok {
		return c
	}
	type coder interface{ Code() Code }
	var x coder
	if errors.As(err, &x) {
		return x.Code()
	}
	return Error
}
