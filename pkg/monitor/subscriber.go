package monitor

import (
	"context"
	"io"

	"github.com/golang/glog"

	"github.com/robotalks/serline/pkg/comm"
	fx "github.com/robotalks/serline/pkg/framework"
)

// Subscriber decodes events from a packet stream.
type Subscriber struct {
	Reader  comm.PacketReader
	Handler EventHandler
}

// NewSubscriber creates a Subscriber.
func NewSubscriber(r comm.PacketReader, h EventHandler) *Subscriber {
	return &Subscriber{Reader: r, Handler: h}
}

// Run implements Runnable. Undecodable packets are skipped. It returns
// nil when the stream ends.
func (s *Subscriber) Run(ctx context.Context) error {
	if closer, ok := s.Reader.(io.Closer); ok {
		return fx.RunWithContextCloser(ctx, closer, s.receive)
	}
	return fx.RunWithContext(ctx, s.receive)
}

func (s *Subscriber) receive() error {
	for {
		pkt, err := s.Reader.ReadPacket()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		ev, err := Decode(pkt)
		if err != nil {
			glog.Warningf("skip packet: %v", err)
			continue
		}
		if s.Handler != nil {
			s.Handler(ev)
		}
	}
}
