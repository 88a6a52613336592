package main

//go-build: CGO_ENABLED=0

import (
	"context"
	"flag"
	"net"
	"net/http"
	"os"
	"sync"

	"github.com/golang/glog"
	"go.bug.st/serial"

	"github.com/robotalks/serline/pkg/bridge"
	"github.com/robotalks/serline/pkg/comm/mqtt"
	"github.com/robotalks/serline/pkg/comm/stream"
	"github.com/robotalks/serline/pkg/comm/websocket"
	"github.com/robotalks/serline/pkg/config"
	fx "github.com/robotalks/serline/pkg/framework"
	"github.com/robotalks/serline/pkg/monitor"
	"github.com/robotalks/serline/pkg/sim"
)

var (
	listenAddr string
	serialPort string
)

func init() {
	config.SetupFlags()
	flag.StringVar(&listenAddr, "listen", listenAddr, "TCP address serving the host end of the board UART, e.g. :7700.")
	flag.StringVar(&serialPort, "serial", serialPort, "Serial port bridged to the host end of the board UART.")
}

func main() {
	flag.Parse()

	conf, err := config.FromFlags()
	if err != nil {
		glog.Exit(err)
	}
	bc := conf.BoardConfig()
	if bc.Source == "" {
		bc.Source = monitor.DefaultSource()
	}
	board, err := sim.NewBoard(bc)
	if err != nil {
		glog.Exit(err)
	}
	if conf.Monitor.TraceFile != "" {
		board.EnableTrace()
	}

	runner := fx.NewRunner().HandleSignals()
	runner.Go(fx.NamedRun("board", board))

	if url := conf.Monitor.MQTT; url != "" {
		q, err := mqtt.NewQueueFromURL(url)
		if err != nil {
			glog.Exit(err)
		}
		if err = q.ConnectAndWait(); err != nil {
			glog.Exitf("connect %s: %v", url, err)
		}
		defer q.Close()
		board.Reporter.AddSink(mqtt.NewPacketReadWriter(q).ForPublisher(bc.Source))
	}
	if addr := conf.Monitor.Websocket; addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/events", websocket.Handler(board.Reporter))
		go func() {
			glog.Infof("serving events on ws://%s/events", addr)
			glog.Error(http.ListenAndServe(addr, mux))
		}()
	}
	if path := conf.Monitor.EventsFile; path != "" {
		f, err := os.Create(path)
		if err != nil {
			glog.Exit(err)
		}
		defer f.Close()
		board.Reporter.AddSink(stream.NewWriter(f))
	}

	if serialPort != "" {
		port, err := serial.Open(serialPort, &serial.Mode{
			BaudRate: int(conf.Baud),
			DataBits: conf.Uart.DataBits,
			Parity:   serial.NoParity,
			StopBits: serial.OneStopBit,
		})
		if err != nil {
			glog.Exitf("open %s: %v", serialPort, err)
		}
		defer port.Close()
		runner.Go(fx.NamedRun("serial", bridge.New(port, board.Port())))
	}
	if listenAddr != "" {
		ln, err := net.Listen("tcp", listenAddr)
		if err != nil {
			glog.Exit(err)
		}
		runner.Go(fx.NamedRun("listener", &listener{ln: ln, board: board}))
	}

	err = runner.Wait()
	board.Port().Close()
	if path := conf.Monitor.TraceFile; path != "" {
		if tr := board.Trace(); tr != nil {
			tr.TickHz = conf.TickHz()
			if werr := tr.WriteFile(path); werr != nil {
				glog.Errorf("write trace: %v", werr)
			}
		}
	}
	glog.Info(board.Reporter.Stats.String())
	if err != nil {
		glog.Exit(err)
	}
}

// listener bridges one TCP connection at a time to the board. Replies
// arriving while no peer is connected are dropped.
type listener struct {
	ln    net.Listener
	board *sim.Board

	conn net.Conn
	lock sync.Mutex
}

func (l *listener) Run(ctx context.Context) error {
	go l.upstream()
	return fx.RunWithContextCloser(ctx, l.ln, func() error {
		for {
			conn, err := l.ln.Accept()
			if err != nil {
				return err
			}
			glog.Infof("%s connected", conn.RemoteAddr())
			l.setConn(conn)
			b := bridge.New(conn, l.board.Port())
			b.DownstreamOnly = true
			err = fx.RunWithContextCloser(ctx, conn, func() error { return b.Run(ctx) })
			l.setConn(nil)
			glog.Infof("%s disconnected: %v", conn.RemoteAddr(), err)
			if ctx.Err() != nil {
				return ctx.Err()
			}
		}
	})
}

func (l *listener) setConn(conn net.Conn) {
	l.lock.Lock()
	l.conn = conn
	l.lock.Unlock()
}

// upstream ends when the board port is closed.
func (l *listener) upstream() {
	buf := make([]byte, 256)
	for {
		n, err := l.board.Port().Read(buf)
		if err != nil {
			return
		}
		l.lock.Lock()
		if l.conn != nil {
			if _, err := l.conn.Write(buf[:n]); err != nil {
				glog.Warningf("%s: %v", l.conn.RemoteAddr(), err)
			}
		}
		l.lock.Unlock()
	}
}
