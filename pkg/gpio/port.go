package gpio

import (
	"io"
	"sync"

	"github.com/golang/glog"

	fx "github.com/robotalks/serline/pkg/framework"
)

// PortBufferSize is the number of received bytes buffered before
// dropping.
const PortBufferSize = 4096

// Port is the UART of a Driver as an io.ReadWriteCloser. It takes
// over the OnReceive callback of the driver.
type Port struct {
	loop      fx.LoopControl
	rxCh      chan byte
	closeCh   chan struct{}
	closeOnce sync.Once
}

// NewPort creates a Port for a driver running on loop.
func NewPort(d *Driver, loop fx.LoopControl) *Port {
	p := &Port{
		loop:    loop,
		rxCh:    make(chan byte, PortBufferSize),
		closeCh: make(chan struct{}),
	}
	d.OnReceive = p.deliver
	return p
}

// Write implements io.Writer.
func (p *Port) Write(data []byte) (int, error) {
	select {
	case <-p.closeCh:
		return 0, io.ErrClosedPipe
	default:
	}
	p.loop.PostMessage(&Send{Data: append([]byte(nil), data...)})
	return len(data), nil
}

// Read implements io.Reader. It blocks until at least one byte is
// received.
func (p *Port) Read(buf []byte) (int, error) {
	if len(buf) == 0 {
		return 0, nil
	}
	select {
	case <-p.closeCh:
		return 0, io.EOF
	case buf[0] = <-p.rxCh:
	}
	n := 1
	for ; n < len(buf); n++ {
		select {
		case buf[n] = <-p.rxCh:
		default:
			return n, nil
		}
	}
	return n, nil
}

// Close implements io.Closer.
func (p *Port) Close() error {
	p.closeOnce.Do(func() { close(p.closeCh) })
	return nil
}

func (p *Port) deliver(_ fx.ControlContext, b byte) {
	select {
	case p.rxCh <- b:
	default:
		glog.Warningf("gpio port full, %02x dropped", b)
	}
}
