package sim

import (
	"github.com/golang/glog"

	fx "github.com/robotalks/serline/pkg/framework"
	"github.com/robotalks/serline/pkg/line"
	"github.com/robotalks/serline/pkg/monitor"
	"github.com/robotalks/serline/pkg/uart"
)

// ByteHandler receives decoded bytes in the loop.
type ByteHandler func(cc fx.ControlContext, b byte)

// UartLink is a transmitter driving a wire observed by a receiver.
// Bytes queued with Send are transmitted back to back.
type UartLink struct {
	Name string
	Tx   *uart.Transmitter
	Rx   *uart.Receiver
	Wire *Wire

	// OnReceive is called for each received byte. Without it, bytes
	// are collected and retrieved with TakeReceived.
	OnReceive ByteHandler
	// ReportSend emits uart.tx events for completed frames.
	ReportSend bool
	// ReportReceive emits uart.rx and framing error events.
	ReportReceive bool

	queue    []byte
	current  byte
	received []byte
}

// NewUartLink creates a UartLink.
func NewUartLink(name string, conf *uart.Config) (*UartLink, error) {
	tx, err := uart.NewTransmitter(conf)
	if err != nil {
		return nil, err
	}
	rx, err := uart.NewReceiver(conf)
	if err != nil {
		return nil, err
	}
	return &UartLink{
		Name: name,
		Tx:   tx,
		Rx:   rx,
		Wire: NewWire(name, line.High),
	}, nil
}

// Send queues bytes for transmission.
func (u *UartLink) Send(data ...byte) {
	u.queue = append(u.queue, data...)
}

// Pending returns the number of bytes not yet started.
func (u *UartLink) Pending() int {
	return len(u.queue)
}

// TakeReceived returns and clears the collected bytes.
func (u *UartLink) TakeReceived() []byte {
	data := u.received
	u.received = nil
	return data
}

// Idle tells whether nothing is queued, in flight or being decoded.
func (u *UartLink) Idle() bool {
	return len(u.queue) == 0 &&
		u.Tx.State() == uart.TxIdle &&
		u.Rx.State() == uart.RxIdle &&
		u.Rx.Filtered() == line.High &&
		u.Wire.Level() == line.High
}

// AddToLoop implements LoopAdder.
func (u *UartLink) AddToLoop(l *fx.Loop) {
	l.Add(u.Wire)
	l.AddController(fx.PrLvControl, u)
}

// Control implements Controller.
func (u *UartLink) Control(cc fx.ControlContext) error {
	var in uart.TxInput
	if len(u.queue) > 0 && u.Tx.Ready() {
		in.Data, in.Valid = u.queue[0], true
	}
	out := u.Tx.Tick(in)
	if in.Valid && out.State == uart.TxSending {
		u.current, u.queue = in.Data, u.queue[1:]
	}
	u.Wire.Drive(out.Line)
	if out.Done && u.ReportSend {
		monitor.Emit(cc, &monitor.Event{Kind: monitor.KindUartTx, Data: uint16(u.current)})
	}

	rx := u.Rx.Tick(u.Wire.Level())
	switch {
	case rx.Valid:
		glog.V(4).Infof("%s: rx %02x", u.Name, rx.Data)
		if u.ReportReceive {
			monitor.Emit(cc, &monitor.Event{Kind: monitor.KindUartRx, Data: uint16(rx.Data)})
		}
		if u.OnReceive != nil {
			u.OnReceive(cc, rx.Data)
		} else {
			u.received = append(u.received, rx.Data)
		}
	case rx.StartBitError:
		glog.Warningf("%s: start bit error at %d", u.Name, cc.Tick())
		if u.ReportReceive {
			monitor.Emit(cc, &monitor.Event{Kind: monitor.KindUartStartBitError})
		}
	case rx.StopBitError:
		glog.Warningf("%s: stop bit error at %d", u.Name, cc.Tick())
		if u.ReportReceive {
			monitor.Emit(cc, &monitor.Event{Kind: monitor.KindUartStopBitError})
		}
	}
	return nil
}
