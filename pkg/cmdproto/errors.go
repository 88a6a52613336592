package cmdproto

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformed indicates a dropped command sequence.
	ErrMalformed = errors.New("malformed command")
	// ErrNoReply indicates no reply received from the device in time.
	ErrNoReply = errors.New("no reply")
	// ErrUnmapped indicates the register address is not mapped.
	ErrUnmapped = errors.New("unmapped register")
	// ErrReadOnly indicates a write to a read-only register.
	ErrReadOnly = errors.New("read-only register")
)

// RegisterError wraps failures of register access.
type RegisterError struct {
	Op   Op
	Addr uint8
	Err  error
}

// Error implements error.
func (e *RegisterError) Error() string {
	return fmt.Sprintf("%c %02X: %v", byte(e.Op), e.Addr, e.Err)
}

// Unwrap returns the cause.
func (e *RegisterError) Unwrap() error {
	return e.Err
}
