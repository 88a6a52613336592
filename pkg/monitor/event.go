// Package monitor reports what happens on the lines of a bench: bytes
// received and sent, framing errors, SPI transfers and executed
// commands.
//
// Events are posted as loop messages by the components during a tick
// and drained by a Reporter at the post-processing priority level of
// the same tick.
package monitor

import (
	"fmt"

	fx "github.com/robotalks/serline/pkg/framework"
)

// Kind classifies an Event.
type Kind string

// Event kinds.
const (
	KindUartRx            Kind = "uart.rx"
	KindUartTx            Kind = "uart.tx"
	KindUartStartBitError Kind = "uart.start_bit_error"
	KindUartStopBitError  Kind = "uart.stop_bit_error"
	KindSpiTransfer       Kind = "spi.transfer"
	KindCmdExec           Kind = "cmd.exec"
	KindCmdMalformed      Kind = "cmd.malformed"
)

// Kinds lists all known kinds in reporting order.
var Kinds = []Kind{
	KindUartRx,
	KindUartTx,
	KindUartStartBitError,
	KindUartStopBitError,
	KindSpiTransfer,
	KindCmdExec,
	KindCmdMalformed,
}

// IsError tells whether the kind reports a failure.
func (k Kind) IsError() bool {
	switch k {
	case KindUartStartBitError, KindUartStopBitError, KindCmdMalformed:
		return true
	}
	return false
}

// Event is a single observation.
type Event struct {
	Tick   uint64
	Source string
	Kind   Kind
	// Data is the byte for UART events, the received byte (high) and
	// sent byte (low) for SPI transfers, and the register value for
	// commands.
	Data uint16
	// Addr is the register address of command events.
	Addr uint8
	// Err describes a failed command.
	Err string
}

// NewMessage implements fx.Message.
func (e *Event) NewMessage() fx.Message { return &Event{} }

// String implements fmt.Stringer.
func (e *Event) String() string {
	var s string
	switch e.Kind {
	case KindUartRx, KindUartTx:
		s = fmt.Sprintf("%d %s %02X %q", e.Tick, e.Kind, e.Data, rune(e.Data))
	case KindSpiTransfer:
		s = fmt.Sprintf("%d %s tx=%02X rx=%02X", e.Tick, e.Kind, e.Data&0xff, e.Data>>8)
	case KindCmdExec:
		s = fmt.Sprintf("%d %s %02X=%04X", e.Tick, e.Kind, e.Addr, e.Data)
	default:
		s = fmt.Sprintf("%d %s", e.Tick, e.Kind)
	}
	if e.Source != "" {
		s = e.Source + " " + s
	}
	if e.Err != "" {
		s += ": " + e.Err
	}
	return s
}

// SpiData packs a transfer into Event.Data.
func SpiData(tx, rx byte) uint16 {
	return uint16(rx)<<8 | uint16(tx)
}

// Emit posts an event to the current iteration, stamped with its tick.
func Emit(cc fx.ControlContext, ev *Event) {
	ev.Tick = cc.Tick()
	cc.Messages().AddMessages(ev)
}
