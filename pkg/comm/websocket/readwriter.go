package websocket

import (
	"net/http"

	"golang.org/x/net/websocket"

	"github.com/robotalks/serline/pkg/comm"
)

// ReadWriter implements PacketReadWriter. Each packet is one binary
// websocket message.
type ReadWriter websocket.Conn

// New wraps websocket.Conn.
func New(conn *websocket.Conn) *ReadWriter {
	return (*ReadWriter)(conn)
}

// Dial connects to a websocket endpoint, e.g. ws://host:8080/events.
func Dial(url string) (*ReadWriter, error) {
	conn, err := websocket.Dial(url, "", "http://localhost/")
	if err != nil {
		return nil, err
	}
	return New(conn), nil
}

// ReadPacket implements PacketReader.
func (p *ReadWriter) ReadPacket() (pkt []byte, err error) {
	err = websocket.Message.Receive((*websocket.Conn)(p), &pkt)
	return
}

// WritePacket implements PacketWriter.
func (p *ReadWriter) WritePacket(pkt []byte) error {
	return websocket.Message.Send((*websocket.Conn)(p), pkt)
}

// Close implements io.Closer.
func (p *ReadWriter) Close() error {
	return (*websocket.Conn)(p).Close()
}

// Attacher receives a PacketWriter for each connected peer and returns
// the func detaching it.
type Attacher interface {
	Attach(comm.PacketWriter) (detach func())
}

// Handler serves each connection as a write-only packet stream fed by
// attacher, until the peer disconnects.
func Handler(attacher Attacher) http.Handler {
	return websocket.Handler(func(conn *websocket.Conn) {
		rw := New(conn)
		detach := attacher.Attach(rw)
		defer detach()
		// Anything the peer sends is discarded, a read error means the
		// peer is gone.
		for {
			if _, err := rw.ReadPacket(); err != nil {
				return
			}
		}
	})
}
