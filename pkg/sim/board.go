package sim

import (
	"context"
	"errors"

	"github.com/golang/glog"

	"github.com/robotalks/serline/pkg/cmdproto"
	fx "github.com/robotalks/serline/pkg/framework"
	"github.com/robotalks/serline/pkg/monitor"
	"github.com/robotalks/serline/pkg/spi"
	"github.com/robotalks/serline/pkg/uart"
)

// Register map of the board.
const (
	RegID            uint8 = 0x00
	RegScratch       uint8 = 0x01
	RegSpiTx         uint8 = 0x10
	RegSpiRx         uint8 = 0x11
	RegSpiStatus     uint8 = 0x12
	RegRxFrames      uint8 = 0x20
	RegRxStartErrors uint8 = 0x21
	RegRxStopErrors  uint8 = 0x22
	RegMalformed     uint8 = 0x23
)

// BoardID is the value of RegID.
const BoardID uint16 = 0x5E11

// SPI status bits.
const (
	SpiStatusBusy uint16 = 1 << 0
)

// ErrSpiBusy is returned writing RegSpiTx during a transfer.
var ErrSpiBusy = errors.New("spi busy")

// BoardConfig configures a Board.
type BoardConfig struct {
	Uart *uart.Config
	Spi  *spi.Config
	// SpiLoopback connects MOSI to MISO instead of a peripheral.
	SpiLoopback bool
	// SpiResponder decides the replies of the peripheral, defaults to
	// spi.Echo.
	SpiResponder spi.Responder
	// Source names the board in events.
	Source string
}

// DefaultBoardConfig builds a BoardConfig from the package defaults.
func DefaultBoardConfig() *BoardConfig {
	return &BoardConfig{Uart: uart.Default(), Spi: spi.Default()}
}

// Board simulates a device controlled by register commands over UART,
// with an SPI master behind the registers:
//
//	host tx -> Downlink -> board rx -> cmdproto -> registers -> SPI
//	host rx <- Uplink   <- board tx <- replies
type Board struct {
	Loop      *fx.Loop
	Reporter  *monitor.Reporter
	Registers *cmdproto.Registers
	Executor  *cmdproto.Executor
	Downlink  *UartLink
	Uplink    *UartLink
	Spi       *SpiLink

	port   *HostPort
	wakeCh chan struct{}
	extra  uint64
	probes []*Probe
}

// NewBoard creates a Board.
func NewBoard(conf *BoardConfig) (*Board, error) {
	b := &Board{
		Loop:      fx.NewLoop(),
		Reporter:  monitor.NewReporter(conf.Source),
		Registers: cmdproto.NewRegisters(),
		wakeCh:    make(chan struct{}, 1),
	}
	b.port = newHostPort(b)
	b.Executor = cmdproto.NewExecutor(b.Registers)

	var err error
	if b.Downlink, err = NewUartLink("rx", conf.Uart); err != nil {
		return nil, err
	}
	if b.Uplink, err = NewUartLink("tx", conf.Uart); err != nil {
		return nil, err
	}
	b.Downlink.ReportReceive, b.Downlink.OnReceive = true, b.consume
	b.Uplink.ReportSend, b.Uplink.OnReceive = true, b.port.deliver

	var slave *spi.Slave
	if !conf.SpiLoopback {
		if slave, err = spi.NewSlave(conf.Spi, 0); err != nil {
			return nil, err
		}
		slave.Responder = conf.SpiResponder
		if slave.Responder == nil {
			slave.Responder = spi.Echo
		}
	}
	if b.Spi, err = NewSpiLink(conf.Spi, slave); err != nil {
		return nil, err
	}
	b.Spi.Report = true

	b.defineRegisters()
	b.Loop.AddController(fx.PrLvControl, fx.ControlFunc(b.control))
	b.Loop.Add(b.Downlink, b.Uplink, b.Spi, b.Reporter)
	return b, nil
}

func (b *Board) defineRegisters() {
	b.Registers.
		DefineReadOnly(RegID, func() uint16 { return BoardID }).
		Define(RegScratch, 0).
		Define(RegSpiTx, 0).
		OnWrite(RegSpiTx, func(data uint16) error {
			if b.Spi.Busy() {
				return ErrSpiBusy
			}
			b.Spi.Transfer(byte(data))
			return nil
		}).
		DefineReadOnly(RegSpiRx, func() uint16 { return uint16(b.Spi.Last()) }).
		DefineReadOnly(RegSpiStatus, func() uint16 {
			if b.Spi.Busy() {
				return SpiStatusBusy
			}
			return 0
		}).
		DefineReadOnly(RegRxFrames, func() uint16 { return uint16(b.Downlink.Rx.Stats().Frames) }).
		DefineReadOnly(RegRxStartErrors, func() uint16 { return uint16(b.Downlink.Rx.Stats().StartBitErrors) }).
		DefineReadOnly(RegRxStopErrors, func() uint16 { return uint16(b.Downlink.Rx.Stats().StopBitErrors) }).
		DefineReadOnly(RegMalformed, func() uint16 { return uint16(b.Executor.Stats().Malformed) })
}

// Port returns the host end of the UART.
func (b *Board) Port() *HostPort {
	return b.port
}

// Post sends a message to the board loop and wakes it up.
func (b *Board) Post(msg fx.Message) {
	b.Loop.PostMessage(msg)
	select {
	case b.wakeCh <- struct{}{}:
	default:
	}
	b.Loop.TriggerNext()
}

// Idle tells whether there is nothing left to simulate. Only call it
// from the goroutine driving the loop.
func (b *Board) Idle() bool {
	return b.extra == 0 && b.Downlink.Idle() && b.Uplink.Idle() && b.Spi.Idle()
}

// EnableTrace attaches probes to all lines. It must be called before
// the board runs.
func (b *Board) EnableTrace() {
	for _, w := range append([]*Wire{b.Downlink.Wire, b.Uplink.Wire}, b.Spi.Wires()...) {
		b.probes = append(b.probes, NewProbe(w))
	}
}

// Trace returns the captured probes, nil unless EnableTrace was called.
func (b *Board) Trace() *Trace {
	if b.probes == nil {
		return nil
	}
	t := NewTrace(b.probes...)
	t.Ticks = b.Loop.Tick()
	return t
}

func (b *Board) copyTrace() *Trace {
	t := b.Trace()
	if t == nil {
		return nil
	}
	probes := make([]*Probe, len(t.Probes))
	for n, p := range t.Probes {
		probes[n] = &Probe{
			Name:    p.Name,
			Initial: p.Initial,
			Edges:   append([]Sample(nil), p.Edges...),
		}
	}
	t.Probes = probes
	return t
}

// Run simulates as fast as possible while there is activity and
// sleeps while idle until a message is posted.
func (b *Board) Run(ctx context.Context) error {
	defer b.Loop.Go(ctx).Wait()
	for {
		if b.Idle() {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-b.wakeCh:
			}
		} else if err := ctx.Err(); err != nil {
			return err
		}
		b.Loop.Step(ctx)
	}
}

// RunUntilIdle steps at least once and then until the board is idle,
// at most limit ticks. It returns false if the limit is reached.
func (b *Board) RunUntilIdle(ctx context.Context, limit uint64) bool {
	b.Loop.Step(ctx)
	return b.Loop.RunUntil(ctx, limit, b.Idle)
}

// control applies posted messages. Registering b itself would add
// Board.Run to the loop's Runnables.
func (b *Board) control(cc fx.ControlContext) error {
	if b.extra > 0 {
		b.extra--
	}
	cc.Messages().ProcessMessages(fx.ProcessMessageFunc(func(mc fx.MessageProcessingContext) {
		switch msg := mc.CurrentMessage().(type) {
		case *HostWrite:
			b.Downlink.Send(msg.Data...)
		case *RunTicks:
			b.extra += msg.N
		case *SetGlitcher:
			b.Downlink.Wire.Glitcher = msg.Glitcher
		case *TakeTrace:
			msg.Reply <- b.copyTrace()
		default:
			return
		}
		mc.MessageTaken()
	}))
	return nil
}

func (b *Board) consume(cc fx.ControlContext, c byte) {
	res := b.Executor.Consume(c)
	if res.Err != nil {
		monitor.Emit(cc, &monitor.Event{Kind: monitor.KindCmdMalformed, Data: uint16(c)})
	}
	if res.Command == nil {
		return
	}
	ev := &monitor.Event{Kind: monitor.KindCmdExec, Addr: res.Command.Addr, Data: res.Command.Data}
	if res.Reply != nil {
		ev.Data = res.Reply.Data
		b.Uplink.Send(res.Reply.Bytes()...)
	}
	if res.ExecErr != nil {
		ev.Err = res.ExecErr.Error()
		glog.V(2).Infof("%s: %v", res.Command, res.ExecErr)
	}
	monitor.Emit(cc, ev)
}
