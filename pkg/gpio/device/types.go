package device

import (
	"errors"
	"io"

	"github.com/robotalks/serline/pkg/line"
)

// ErrNotSupported is returned by Open on systems without the GPIO
// character device.
var ErrNotSupported = errors.New("gpio character device not supported")

// InputPin is a line read by the host.
type InputPin interface {
	io.Closer
	// Offset returns the line offset on the chip.
	Offset() int
	// Level reads the current level.
	Level() (line.Level, error)
}

// OutputPin is a line driven by the host.
type OutputPin interface {
	io.Closer
	Offset() int
	// Set drives the level.
	Set(line.Level) error
}

// Chip represents an opened GPIO chip.
type Chip interface {
	io.Closer
	// Name returns the name of the chip on the system.
	Name() string
	// Lines returns the number of lines on the chip.
	Lines() int
	// Input requests a line as input.
	Input(offset int) (InputPin, error)
	// Output requests a line as output driving initial.
	Output(offset int, initial line.Level) (OutputPin, error)
}
