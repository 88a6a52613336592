package gpio

import (
	"sync/atomic"

	"github.com/golang/glog"

	fx "github.com/robotalks/serline/pkg/framework"
	"github.com/robotalks/serline/pkg/line"
	"github.com/robotalks/serline/pkg/monitor"
	"github.com/robotalks/serline/pkg/spi"
	"github.com/robotalks/serline/pkg/uart"
)

// Send queues bytes for the UART transmitter.
type Send struct {
	Data []byte
}

// NewMessage implements Message.
func (m *Send) NewMessage() fx.Message { return &Send{} }

// Transfer queues bytes for SPI transactions, one byte each.
type Transfer struct {
	Data []byte
}

// NewMessage implements Message.
func (m *Transfer) NewMessage() fx.Message { return &Transfer{} }

// Driver samples input pins, advances the engines and drives output
// pins once per tick:
//
//	PrLvSense:   read UART RX and MISO, take queued Send and Transfer
//	PrLvControl: tick the UART receiver, transmitter and SPI master
//	PrLvAcuate:  write UART TX, SCLK, MOSI and CSn when changed
type Driver struct {
	Pins *Pins
	Tx   *uart.Transmitter
	Rx   *uart.Receiver
	Spi  *spi.Master

	// OnReceive is called in the loop for each byte received.
	OnReceive func(cc fx.ControlContext, b byte)
	// OnTransfer is called in the loop for each SPI transaction.
	OnTransfer func(cc fx.ControlContext, tx, rx byte)

	rx, miso line.Level

	txQueue  []byte
	txData   byte
	spiQueue []byte
	spiData  byte

	outputs [4]output

	pinErrors uint64
}

type output struct {
	pin    interface{ Set(line.Level) error }
	level  line.Level
	driven bool
}

const (
	outUartTx = iota
	outSCLK
	outMOSI
	outCSn
)

// NewDriver creates a Driver. The UART engines are created when the
// UART pins are present, the SPI master when the SPI pins are.
func NewDriver(pins *Pins, uartConf *uart.Config, spiConf *spi.Config) (*Driver, error) {
	d := &Driver{Pins: pins, rx: line.High}
	var err error
	if pins.UartTx != nil && pins.UartRx != nil {
		if d.Tx, err = uart.NewTransmitter(uartConf); err != nil {
			return nil, err
		}
		if d.Rx, err = uart.NewReceiver(uartConf); err != nil {
			return nil, err
		}
		d.outputs[outUartTx] = output{pin: pins.UartTx, level: line.High, driven: true}
	}
	if pins.SCLK != nil && pins.MOSI != nil && pins.CSn != nil && pins.MISO != nil {
		if d.Spi, err = spi.NewMaster(spiConf); err != nil {
			return nil, err
		}
		d.outputs[outSCLK] = output{pin: pins.SCLK, level: spiConf.Mode.Polarity(), driven: true}
		d.outputs[outMOSI] = output{pin: pins.MOSI, level: line.Low, driven: true}
		d.outputs[outCSn] = output{pin: pins.CSn, level: line.High, driven: true}
	}
	return d, nil
}

// PinErrors returns the number of failed pin reads and writes.
func (d *Driver) PinErrors() uint64 {
	return atomic.LoadUint64(&d.pinErrors)
}

// Idle tells whether nothing is queued or in flight.
func (d *Driver) Idle() bool {
	if len(d.txQueue) > 0 || len(d.spiQueue) > 0 {
		return false
	}
	if d.Tx != nil && (d.Tx.State() != uart.TxIdle || d.Rx.State() != uart.RxIdle) {
		return false
	}
	return d.Spi == nil || d.Spi.State() == spi.Idle
}

// AddToLoop implements LoopAdder.
func (d *Driver) AddToLoop(l *fx.Loop) {
	l.AddController(fx.PrLvSense, fx.ControlFunc(d.sense))
	l.AddController(fx.PrLvControl, d)
	l.AddController(fx.PrLvAcuate, fx.ControlFunc(d.actuate))
}

func (d *Driver) sense(cc fx.ControlContext) error {
	cc.Messages().ProcessMessages(fx.ProcessMessageFunc(func(mc fx.MessageProcessingContext) {
		switch msg := mc.CurrentMessage().(type) {
		case *Send:
			mc.MessageTaken()
			if d.Tx == nil {
				glog.Warningf("uart not mapped, %d bytes dropped", len(msg.Data))
				return
			}
			d.txQueue = append(d.txQueue, msg.Data...)
		case *Transfer:
			mc.MessageTaken()
			if d.Spi == nil {
				glog.Warningf("spi not mapped, %d bytes dropped", len(msg.Data))
				return
			}
			d.spiQueue = append(d.spiQueue, msg.Data...)
		}
	}))
	if d.Pins.UartRx != nil {
		d.rx = d.read(d.Pins.UartRx, d.rx)
	}
	if d.Pins.MISO != nil {
		d.miso = d.read(d.Pins.MISO, d.miso)
	}
	return nil
}

// Control implements Controller.
func (d *Driver) Control(cc fx.ControlContext) error {
	if d.Tx != nil {
		d.controlUart(cc)
	}
	if d.Spi != nil {
		d.controlSpi(cc)
	}
	return nil
}

func (d *Driver) controlUart(cc fx.ControlContext) {
	var in uart.TxInput
	if len(d.txQueue) > 0 && d.Tx.Ready() {
		in.Data, in.Valid = d.txQueue[0], true
	}
	out := d.Tx.Tick(in)
	if in.Valid && out.State == uart.TxSending {
		d.txData, d.txQueue = in.Data, d.txQueue[1:]
	}
	d.outputs[outUartTx].set(out.Line)
	if out.Done {
		monitor.Emit(cc, &monitor.Event{Kind: monitor.KindUartTx, Data: uint16(d.txData)})
	}

	rx := d.Rx.Tick(d.rx)
	switch {
	case rx.Valid:
		monitor.Emit(cc, &monitor.Event{Kind: monitor.KindUartRx, Data: uint16(rx.Data)})
		if d.OnReceive != nil {
			d.OnReceive(cc, rx.Data)
		}
	case rx.StartBitError:
		monitor.Emit(cc, &monitor.Event{Kind: monitor.KindUartStartBitError})
	case rx.StopBitError:
		monitor.Emit(cc, &monitor.Event{Kind: monitor.KindUartStopBitError})
	}
}

func (d *Driver) controlSpi(cc fx.ControlContext) {
	in := spi.Input{MISO: d.miso}
	if len(d.spiQueue) > 0 && d.Spi.Ready() {
		in.TxData, in.TxValid = d.spiQueue[0], true
	}
	out := d.Spi.Tick(in)
	if in.TxValid && out.Busy {
		d.spiData, d.spiQueue = in.TxData, d.spiQueue[1:]
	}
	d.outputs[outSCLK].set(out.SCLK)
	d.outputs[outMOSI].set(out.MOSI)
	d.outputs[outCSn].set(out.CSn())
	if out.RxValid {
		monitor.Emit(cc, &monitor.Event{
			Kind: monitor.KindSpiTransfer,
			Data: monitor.SpiData(d.spiData, out.RxData),
		})
		if d.OnTransfer != nil {
			d.OnTransfer(cc, d.spiData, out.RxData)
		}
	}
}

func (d *Driver) actuate(cc fx.ControlContext) error {
	for n := range d.outputs {
		o := &d.outputs[n]
		if o.pin == nil || o.driven {
			continue
		}
		if err := o.pin.Set(o.level); err != nil {
			atomic.AddUint64(&d.pinErrors, 1)
			glog.V(2).Infof("tick %d: set pin: %v", cc.Tick(), err)
			continue
		}
		o.driven = true
	}
	return nil
}

// read keeps the last level on error.
func (d *Driver) read(pin interface{ Level() (line.Level, error) }, last line.Level) line.Level {
	l, err := pin.Level()
	if err != nil {
		atomic.AddUint64(&d.pinErrors, 1)
		glog.V(2).Infof("read pin: %v", err)
		return last
	}
	return l
}

func (o *output) set(l line.Level) {
	if l != o.level {
		o.level, o.driven = l, false
	}
}
