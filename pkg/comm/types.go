// Package comm carries encoded packets (monitor events, traces) between
// a running bench and its observers.
package comm

// PacketReader reads packets in bytes.
type PacketReader interface {
	ReadPacket() ([]byte, error)
}

// PacketWriter writes packets in bytes.
type PacketWriter interface {
	WritePacket([]byte) error
}

// PacketReadWriter reads/writes packets in bytes.
type PacketReadWriter interface {
	PacketReader
	PacketWriter
}

// PacketWriterFunc is the func form of PacketWriter.
type PacketWriterFunc func([]byte) error

// WritePacket implements PacketWriter.
func (f PacketWriterFunc) WritePacket(pkt []byte) error {
	return f(pkt)
}

// Chan is an in-process PacketReadWriter backed by a buffered channel.
type Chan chan []byte

// NewChan creates a Chan buffering up to size packets.
func NewChan(size int) Chan {
	return make(Chan, size)
}

// ReadPacket implements PacketReader. It returns ErrClosed once the
// channel is closed by the writer and drained.
func (c Chan) ReadPacket() ([]byte, error) {
	pkt, ok := <-c
	if !ok {
		return nil, ErrClosed
	}
	return pkt, nil
}

// WritePacket implements PacketWriter. The packet is copied.
func (c Chan) WritePacket(pkt []byte) error {
	c <- append([]byte(nil), pkt...)
	return nil
}
