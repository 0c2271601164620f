package plc

import "fmt"

// Error codes for facade operations.
const (
	CodeNotConnected = "not_connected"
	CodeConnect      = "connect_failed"
	CodeTimeout      = "timeout"
	CodeRead         = "read_failed"
	CodeWrite        = "write_failed"
	CodeBadAddress   = "bad_address"
	CodeProtocol     = "protocol_error"
)

// Error is the structured outcome of a failed facade operation. Every
// fallible facade call returns either nil or an *Error, so callers can
// always recover a (success, message, code) triple.
type Error struct {
	Code    string
	Op      string
	Address string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Address != "" {
		return fmt.Sprintf("plc %s %s: %s", e.Op, e.Address, e.Message)
	}
	return fmt.Sprintf("plc %s: %s", e.Op, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func opError(code, op, address string, err error) *Error {
	msg := code
	if err != nil {
		msg = err.Error()
	}
	return &Error{Code: code, Op: op, Address: address, Message: msg, Err: err}
}

// Result is the wire-friendly form of an operation outcome, used by the
// API surface and persisted error details.
type Result struct {
	Success bool   `json:"success"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// ResultOf converts an operation error (nil or *Error) into a Result.
func ResultOf(err error) Result {
	if err == nil {
		return Result{Success: true}
	}
	if pe, ok := err.(*Error); ok {
		return Result{Success: false, Code: pe.Code, Message: pe.Message}
	}
	return Result{Success: false, Code: CodeProtocol, Message: err.Error()}
}
