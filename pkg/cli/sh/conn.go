package sh

import (
	"context"
	"io"
	"net"
	"strings"

	"go.bug.st/serial"

	"github.com/robotalks/serline/pkg/cmdproto"
	"github.com/robotalks/serline/pkg/config"
	fx "github.com/robotalks/serline/pkg/framework"
	"github.com/robotalks/serline/pkg/sim"
)

// Target names.
const (
	// SimTarget runs a simulated board in process.
	SimTarget = "sim"
	// TCPPrefix prefixes the address of a bridged board.
	TCPPrefix = "tcp://"
)

// Conn is an open connection to a board.
type Conn struct {
	Target string
	Client *cmdproto.Client
	// Board is set for SimTarget.
	Board *sim.Board

	rwc    io.ReadWriteCloser
	cancel func()
	runner *fx.Runner
}

// Dial opens a target: SimTarget, tcp://HOST:PORT or a serial port
// device.
func Dial(target string, conf *config.Config, trace bool) (*Conn, error) {
	c := &Conn{Target: target}
	var runners []fx.Runnable
	switch {
	case target == SimTarget:
		board, err := sim.NewBoard(conf.BoardConfig())
		if err != nil {
			return nil, err
		}
		if trace {
			board.EnableTrace()
		}
		c.Board, c.rwc = board, board.Port()
		runners = append(runners, fx.NamedRun("board", board))
	case strings.HasPrefix(target, TCPPrefix):
		conn, err := net.Dial("tcp", strings.TrimPrefix(target, TCPPrefix))
		if err != nil {
			return nil, err
		}
		c.rwc = conn
	default:
		port, err := serial.Open(target, &serial.Mode{
			BaudRate: int(conf.Baud),
			DataBits: conf.Uart.DataBits,
			Parity:   serial.NoParity,
			StopBits: serial.OneStopBit,
		})
		if err != nil {
			return nil, err
		}
		c.rwc = port
	}
	c.Client = cmdproto.NewClient(c.rwc)
	runners = append(runners, fx.NamedRun("client", c.Client))

	var ctx context.Context
	ctx, c.cancel = context.WithCancel(context.Background())
	c.runner = fx.NewRunnerWith(ctx).Go(runners...)
	return c, nil
}

// Write sends raw bytes to the board.
func (c *Conn) Write(data []byte) (int, error) {
	return c.rwc.Write(data)
}

// Close stops the background work and closes the stream.
func (c *Conn) Close() error {
	c.cancel()
	c.rwc.Close()
	return c.runner.Wait()
}
