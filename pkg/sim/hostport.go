package sim

import (
	"io"
	"sync"

	"github.com/golang/glog"

	fx "github.com/robotalks/serline/pkg/framework"
)

// HostPortBufferSize is the number of received bytes buffered for the
// host before dropping.
const HostPortBufferSize = 4096

// HostPort is the host end of the board UART as an io.ReadWriteCloser.
// Written bytes are serialized onto the line by the host transmitter,
// bytes decoded by the host receiver are read back.
type HostPort struct {
	board     *Board
	rxCh      chan byte
	closeCh   chan struct{}
	closeOnce sync.Once
}

func newHostPort(b *Board) *HostPort {
	return &HostPort{
		board:   b,
		rxCh:    make(chan byte, HostPortBufferSize),
		closeCh: make(chan struct{}),
	}
}

// Write implements io.Writer.
func (p *HostPort) Write(data []byte) (int, error) {
	select {
	case <-p.closeCh:
		return 0, io.ErrClosedPipe
	default:
	}
	p.board.Post(&HostWrite{Data: append([]byte(nil), data...)})
	return len(data), nil
}

// Read implements io.Reader. It blocks until at least one byte is
// received.
func (p *HostPort) Read(buf []byte) (int, error) {
	if len(buf) == 0 {
		return 0, nil
	}
	select {
	case <-p.closeCh:
		return 0, io.EOF
	case b := <-p.rxCh:
		buf[0] = b
	}
	n := 1
	for ; n < len(buf); n++ {
		select {
		case b := <-p.rxCh:
			buf[n] = b
		default:
			return n, nil
		}
	}
	return n, nil
}

// Buffered returns the number of bytes available to Read.
func (p *HostPort) Buffered() int {
	return len(p.rxCh)
}

// Close implements io.Closer. Pending reads return io.EOF.
func (p *HostPort) Close() error {
	p.closeOnce.Do(func() { close(p.closeCh) })
	return nil
}

func (p *HostPort) deliver(_ fx.ControlContext, b byte) {
	select {
	case p.rxCh <- b:
	default:
		glog.Warningf("host port full, %02x dropped", b)
	}
}
