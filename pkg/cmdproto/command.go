package cmdproto

import (
	"fmt"
	"io"
)

// Op is the operation letter of a command.
type Op byte

// Operations.
const (
	OpRead  Op = 'R'
	OpWrite Op = 'W'
)

// Terminator ends commands and replies.
const Terminator byte = '\r'

const hexDigits = "0123456789ABCDEF"

// Command is a parsed register access.
type Command struct {
	Op   Op
	Addr uint8
	Data uint16
}

// ReadCmd creates a read command.
func ReadCmd(addr uint8) *Command {
	return &Command{Op: OpRead, Addr: addr}
}

// WriteCmd creates a write command.
func WriteCmd(addr uint8, data uint16) *Command {
	return &Command{Op: OpWrite, Addr: addr, Data: data}
}

// Bytes returns encoded bytes for sending.
func (c *Command) Bytes() []byte {
	b := make([]byte, 0, 8)
	b = append(b, byte(c.Op))
	b = appendHex(b, uint16(c.Addr), 2)
	if c.Op == OpWrite {
		b = appendHex(b, c.Data, 4)
	}
	return append(b, Terminator)
}

// WriteTo implements io.WriterTo.
func (c *Command) WriteTo(w io.Writer) (int64, error) {
	n, err := w.Write(c.Bytes())
	return int64(n), err
}

// String implements fmt.Stringer.
func (c *Command) String() string {
	if c.Op == OpWrite {
		return fmt.Sprintf("W %02X %04X", c.Addr, c.Data)
	}
	return fmt.Sprintf("R %02X", c.Addr)
}

// Reply is the device answer to a read.
type Reply struct {
	Data uint16
}

// Bytes returns encoded bytes for sending.
func (r *Reply) Bytes() []byte {
	return append(appendHex(make([]byte, 0, 5), r.Data, 4), Terminator)
}

func appendHex(b []byte, v uint16, digits int) []byte {
	for n := digits - 1; n >= 0; n-- {
		b = append(b, hexDigits[(v>>(uint(n)*4))&0xf])
	}
	return b
}

func hexValue(b byte) (uint16, bool) {
	switch {
	case b >= '0' && b <= '9':
		return uint16(b - '0'), true
	case b >= 'A' && b <= 'F':
		return uint16(b-'A') + 10, true
	case b >= 'a' && b <= 'f':
		return uint16(b-'a') + 10, true
	}
	return 0, false
}
