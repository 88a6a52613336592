package cmdproto

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/golang/glog"
)

// DefaultTimeout is the default time to wait for a read reply.
const DefaultTimeout = 500 * time.Millisecond

// Client provides host side register access over a byte stream.
// Commands are issued one at a time.
type Client struct {
	ReadWriter io.ReadWriter
	Timeout    time.Duration

	replyCh chan *Reply
	cmdLock sync.Mutex
	// abandoned is set when a read gave up waiting. A reply may still
	// be on its way and must not be taken for the next read's.
	abandoned bool
}

// NewClient creates a Client.
func NewClient(rw io.ReadWriter) *Client {
	return &Client{
		ReadWriter: rw,
		Timeout:    DefaultTimeout,
		replyCh:    make(chan *Reply, 1),
	}
}

// Run reads replies in the background until ctx is done or the
// stream fails.
func (c *Client) Run(ctx context.Context) error {
	byteCh, errCh := make(chan byte), make(chan error, 1)
	subCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go c.readLoop(subCtx, byteCh, errCh)
	var parser ReplyParser
	for {
		select {
		case b := <-byteCh:
			reply, err := parser.Parse(b)
			if err != nil {
				glog.Warningf("dropped reply: %v", err)
			}
			if reply != nil {
				select {
				case c.replyCh <- reply:
				default:
					glog.Warningf("unexpected reply %04X", reply.Data)
				}
			}
		case err := <-errCh:
			return err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (c *Client) readLoop(ctx context.Context, byteCh chan byte, errCh chan error) {
	buf := make([]byte, 1)
	for {
		n, err := c.ReadWriter.Read(buf)
		if err != nil {
			errCh <- err
			return
		}
		if n == 0 {
			continue
		}
		select {
		case byteCh <- buf[0]:
		case <-ctx.Done():
			return
		}
	}
}

// Read reads a register. After a read gives up, the next command first
// waits until the line has been quiet for Timeout, dropping the late
// reply if one shows up.
func (c *Client) Read(ctx context.Context, addr uint8) (uint16, error) {
	c.cmdLock.Lock()
	defer c.cmdLock.Unlock()
	if err := c.settle(ctx); err != nil {
		return 0, err
	}
	if _, err := ReadCmd(addr).WriteTo(c.ReadWriter); err != nil {
		return 0, err
	}
	select {
	case reply := <-c.replyCh:
		return reply.Data, nil
	case <-time.After(c.timeout()):
		c.abandoned = true
		return 0, ErrNoReply
	case <-ctx.Done():
		c.abandoned = true
		return 0, ctx.Err()
	}
}

// Write writes a register. Writes are not acknowledged.
func (c *Client) Write(ctx context.Context, addr uint8, data uint16) error {
	c.cmdLock.Lock()
	defer c.cmdLock.Unlock()
	if err := c.settle(ctx); err != nil {
		return err
	}
	_, err := WriteCmd(addr, data).WriteTo(c.ReadWriter)
	return err
}

func (c *Client) timeout() time.Duration {
	if c.Timeout == 0 {
		return DefaultTimeout
	}
	return c.Timeout
}

// settle drops stale replies. It returns at once unless a read was
// abandoned, then it waits for a quiet period of Timeout.
func (c *Client) settle(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	for {
		if !c.abandoned {
			select {
			case reply := <-c.replyCh:
				glog.Warningf("stale reply %04X", reply.Data)
				continue
			default:
				return nil
			}
		}
		select {
		case reply := <-c.replyCh:
			glog.Warningf("late reply %04X dropped", reply.Data)
		case <-time.After(c.timeout()):
			c.abandoned = false
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
