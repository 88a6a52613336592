// Package bridge connects a byte stream, typically a serial port, to
// the host end of a bench.
package bridge

import (
	"context"
	"io"
	"os"
	"sync/atomic"
	"time"

	"github.com/golang/glog"
)

// DefaultTimeout flushes a partial line after this idle time.
const DefaultTimeout = 100 * time.Millisecond

// Stats counts bytes passed in each direction.
type Stats struct {
	// Downstream is from Port to Target.
	Downstream uint64
	// Upstream is from Target to Port.
	Upstream uint64
	// Flushes counts partial lines flushed by timeout.
	Flushes uint64
}

// Bridge copies bytes both ways between Port and Target.
//
// Downstream bytes are grouped into lines ending with Terminator, a
// partial line is flushed when no byte arrives for Timeout. A zero
// Terminator forwards every read as is.
type Bridge struct {
	Port        io.ReadWriter
	Target      io.ReadWriter
	Terminator  byte
	Timeout     time.Duration
	ReadTimeout bool // set to true if Port already supports timeout with Read
	// DownstreamOnly leaves reading Target to the caller.
	DownstreamOnly bool

	stats Stats
	line  []byte
	timer <-chan time.Time
}

// New creates a Bridge forwarding command lines.
func New(port, target io.ReadWriter) *Bridge {
	return &Bridge{
		Port:       port,
		Target:     target,
		Terminator: '\r',
		Timeout:    DefaultTimeout,
	}
}

// Stats returns a snapshot of the counters.
func (b *Bridge) Stats() Stats {
	return Stats{
		Downstream: atomic.LoadUint64(&b.stats.Downstream),
		Upstream:   atomic.LoadUint64(&b.stats.Upstream),
		Flushes:    atomic.LoadUint64(&b.stats.Flushes),
	}
}

// Run processes the Bridge in the background. Port and Target are
// not closed, close them to release the pending reads.
func (b *Bridge) Run(ctx context.Context) error {
	subCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	upErrCh := make(chan error, 1)
	if !b.DownstreamOnly {
		go func() {
			upErrCh <- b.upstream(subCtx)
		}()
	}

	buf := make([]byte, 256)
	if b.ReadTimeout {
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case err := <-upErrCh:
				return err
			case <-b.timer:
				if err := b.flush(true); err != nil {
					return err
				}
			default:
				n, err := b.Port.Read(buf)
				if err != nil && !os.IsTimeout(err) {
					return err
				}
				if err = b.downstream(buf[:n]); err != nil {
					return err
				}
			}
		}
	}

	dataCh, errCh := make(chan []byte), make(chan error, 1)
	go readLoop(subCtx, b.Port, dataCh, errCh)
	for {
		select {
		case data := <-dataCh:
			if err := b.downstream(data); err != nil {
				return err
			}
		case err := <-errCh:
			return err
		case err := <-upErrCh:
			return err
		case <-ctx.Done():
			return ctx.Err()
		case <-b.timer:
			if err := b.flush(true); err != nil {
				return err
			}
		}
	}
}

func (b *Bridge) downstream(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	if b.Terminator == 0 {
		b.line = append(b.line, data...)
		return b.flush(false)
	}
	for _, c := range data {
		b.line = append(b.line, c)
		if c == b.Terminator {
			if err := b.flush(false); err != nil {
				return err
			}
		}
	}
	if len(b.line) > 0 && b.Timeout > 0 {
		b.timer = time.After(b.Timeout)
	}
	return nil
}

func (b *Bridge) flush(timeout bool) error {
	b.timer = nil
	if len(b.line) == 0 {
		return nil
	}
	if timeout {
		atomic.AddUint64(&b.stats.Flushes, 1)
		glog.V(2).Infof("bridge: flush partial line %q", b.line)
	}
	n, err := b.Target.Write(b.line)
	atomic.AddUint64(&b.stats.Downstream, uint64(n))
	b.line = b.line[:0]
	return err
}

func (b *Bridge) upstream(ctx context.Context) error {
	buf := make([]byte, 256)
	for {
		n, err := b.Target.Read(buf)
		if n > 0 {
			if _, werr := b.Port.Write(buf[:n]); werr != nil {
				return werr
			}
			atomic.AddUint64(&b.stats.Upstream, uint64(n))
		}
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

func readLoop(ctx context.Context, r io.Reader, dataCh chan []byte, errCh chan error) {
	for {
		buf := make([]byte, 256)
		n, err := r.Read(buf)
		if n > 0 {
			select {
			case dataCh <- buf[:n]:
			case <-ctx.Done():
				return
			}
		}
		if err != nil {
			errCh <- err
			return
		}
	}
}
