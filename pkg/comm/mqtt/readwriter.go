package mqtt

import (
	"context"
	"io"
)

// Topic conventions relative to the queue prefix.
const (
	// EventsTopic carries encoded monitor events of a source.
	EventsTopic = "events"
)

// EventsTopicOf is the topic a source publishes its events to.
// Use "+" as source to subscribe to all sources.
func EventsTopicOf(source string) string {
	return source + "/" + EventsTopic
}

// ReadWriter implements PacketReadWriter.
type ReadWriter struct {
	Queue    *Queue
	SubTopic string
	PubTopic string

	packetCh chan []byte
}

// NewPacketReadWriter creates the ReadWriter.
func NewPacketReadWriter(q *Queue) *ReadWriter {
	return &ReadWriter{Queue: q, packetCh: make(chan []byte, 64)}
}

// WithTopics specifies the topics.
func (p *ReadWriter) WithTopics(sub, pub string) *ReadWriter {
	p.SubTopic, p.PubTopic = sub, pub
	return p
}

// ForPublisher sets topics for a bench publishing its events:
// PubTopic = source/events
func (p *ReadWriter) ForPublisher(source string) *ReadWriter {
	return p.WithTopics("", EventsTopicOf(source))
}

// ForMonitor sets topics for a monitor of the events of a source,
// or all sources if source is "+":
// SubTopic = source/events
func (p *ReadWriter) ForMonitor(source string) *ReadWriter {
	return p.WithTopics(EventsTopicOf(source), "")
}

// ReadPacket implements PacketReader.
func (p *ReadWriter) ReadPacket() ([]byte, error) {
	pkt, ok := <-p.packetCh
	if !ok {
		return nil, io.EOF
	}
	return pkt, nil
}

// WritePacket implements PacketWriter.
func (p *ReadWriter) WritePacket(pkt []byte) error {
	token := p.Queue.Pub(p.PubTopic, pkt)
	token.Wait()
	return token.Error()
}

// Run implements Runnable. It only subscribes when SubTopic is set.
func (p *ReadWriter) Run(ctx context.Context) error {
	defer close(p.packetCh)
	if p.SubTopic != "" {
		sub := p.Queue.Sub(p.SubTopic, Handler(p.handleMsg))
		defer sub.Close()
	}
	<-ctx.Done()
	return ctx.Err()
}

func (p *ReadWriter) handleMsg(_ string, payload []byte) {
	p.packetCh <- payload
}
