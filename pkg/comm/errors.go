package comm

import (
	"errors"
	"io"
)

var (
	// ErrClosed indicates the packet source is closed.
	ErrClosed = io.EOF
	// ErrPacketTooLarge indicates a length prefix beyond MaxPacketSize.
	ErrPacketTooLarge = errors.New("packet too large")
)

// MaxPacketSize limits the size of a single packet read from a stream.
const MaxPacketSize = 1 << 20
