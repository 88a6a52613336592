//go:build !linux

package device

// Open opens the chip by name.
func Open(name string) (Chip, error) {
	return nil, ErrNotSupported
}
