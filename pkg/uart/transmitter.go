package uart

import (
	"github.com/golang/glog"

	"github.com/robotalks/serline/pkg/line"
)

// TxState is the state of Transmitter.
type TxState int

// Transmitter states.
const (
	TxIdle TxState = iota
	TxSending
	TxDone
)

// String implements fmt.Stringer.
func (s TxState) String() string {
	switch s {
	case TxIdle:
		return "Idle"
	case TxSending:
		return "Sending"
	case TxDone:
		return "Done"
	}
	return "Unknown"
}

// TxInput is the byte submission of one tick.
type TxInput struct {
	Data  byte
	Valid bool
}

// TxOutput is what Transmitter drives in one tick.
type TxOutput struct {
	State TxState
	Line  line.Level
	// Done pulses for one tick after the stop bit.
	Done bool
	// Busy is set while a submission in the next tick would be ignored.
	Busy bool
}

// Transmitter encodes bytes into frames: start bit, data bits LSB
// first, stop bit. The line idles high.
type Transmitter struct {
	config Config
	state  txState
	sent   uint64
}

type txState struct {
	state TxState
	frame uint16
	bit   int
	count int
}

// NewTransmitter creates a Transmitter.
func NewTransmitter(conf *Config) (*Transmitter, error) {
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	return &Transmitter{config: *conf}, nil
}

// Config returns the configuration.
func (t *Transmitter) Config() Config {
	return t.config
}

// State returns the current state.
func (t *Transmitter) State() TxState {
	return t.state.state
}

// Ready tells if a submission in the next tick is accepted.
func (t *Transmitter) Ready() bool {
	return t.state.state != TxSending
}

// Sent returns the number of completed frames.
func (t *Transmitter) Sent() uint64 {
	return t.sent
}

// Tick advances one tick. A valid input is latched only when not
// sending.
func (t *Transmitter) Tick(in TxInput) TxOutput {
	if in.Valid && t.state.state == TxSending {
		glog.V(2).Infof("uart tx: busy, %02x dropped", in.Data)
	}
	var out TxOutput
	t.state, out = t.state.next(&t.config, in)
	if out.Done {
		t.sent++
	}
	return out
}

// Frame builds the line bits of a frame, bit 0 first on the line.
func Frame(c *Config, data byte) uint16 {
	payload := uint16(data) & uint16(c.dataMask())
	// start bit 0, data, stop bit 1.
	return (payload << 1) | (1 << uint(c.DataBits+1))
}

func (s txState) next(c *Config, in TxInput) (txState, TxOutput) {
	switch s.state {
	case TxIdle, TxDone:
		s.state = TxIdle
		if in.Valid {
			s = txState{state: TxSending, frame: Frame(c, in.Data)}
		}
	case TxSending:
		if s.count++; s.count >= c.TicksPerBit {
			s.count = 0
			if s.bit++; s.bit >= c.FrameBits() {
				s.state = TxDone
			}
		}
	}
	return s, s.output()
}

func (s txState) output() TxOutput {
	out := TxOutput{State: s.state, Line: line.High}
	switch s.state {
	case TxSending:
		out.Busy = true
		out.Line = line.Bit(uint(s.frame), uint(s.bit))
	case TxDone:
		out.Done = true
	}
	return out
}
