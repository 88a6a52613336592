package uart

import (
	"github.com/golang/glog"

	"github.com/robotalks/serline/pkg/line"
)

// RxState is the state of Receiver.
type RxState int

// Receiver states.
const (
	RxIdle RxState = iota
	RxStartBit
	RxDataBits
	RxStopBit
	RxValid
	RxStartBitError
	RxStopBitError
	RxErrorRecovery
)

var rxStateNames = [...]string{
	RxIdle:          "Idle",
	RxStartBit:      "StartBit",
	RxDataBits:      "DataBits",
	RxStopBit:       "StopBit",
	RxValid:         "Valid",
	RxStartBitError: "StartBitError",
	RxStopBitError:  "StopBitError",
	RxErrorRecovery: "ErrorRecovery",
}

// String implements fmt.Stringer.
func (s RxState) String() string {
	if s >= 0 && int(s) < len(rxStateNames) {
		return rxStateNames[s]
	}
	return "Unknown"
}

// RxOutput is what Receiver produces in one tick.
// Valid, StartBitError and StopBitError are single-tick pulses.
type RxOutput struct {
	State         RxState
	Data          byte
	Valid         bool
	StartBitError bool
	StopBitError  bool
}

// RxStats counts decoded frames and framing errors.
type RxStats struct {
	Frames         uint64
	StartBitErrors uint64
	StopBitErrors  uint64
}

// Receiver decodes frames from a raw, unclocked line.
// The raw line passes through a line.Filter first, no decision is
// ever made on a raw sample.
type Receiver struct {
	config Config
	filter *line.Filter
	state  rxState
	stats  RxStats
}

type rxState struct {
	state RxState
	prev  line.Level
	// last 3 filtered samples, bit 0 is the newest.
	samples uint8
	// intra-bit tick counter, 0 at the top of a bit period.
	count int
	// ticks elapsed since the start edge.
	elapsed int
	vote    line.Level
	bits    int
	shift   uint8
	data    uint8
	// remaining lockout ticks.
	lockout int
}

// NewReceiver creates a Receiver.
func NewReceiver(conf *Config) (*Receiver, error) {
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	r := &Receiver{config: *conf}
	r.Reset()
	return r, nil
}

// Config returns the configuration.
func (r *Receiver) Config() Config {
	return r.config
}

// Reset returns the receiver to Idle with an idle-high line.
func (r *Receiver) Reset() {
	r.filter = line.NewFilter(line.High)
	r.state = rxState{prev: line.High, samples: 7}
}

// State returns the current state.
func (r *Receiver) State() RxState {
	return r.state.state
}

// Filtered returns the current filtered line level.
func (r *Receiver) Filtered() line.Level {
	return r.filter.Output()
}

// Stats returns the counters.
func (r *Receiver) Stats() RxStats {
	return r.stats
}

// Tick consumes one raw line sample.
func (r *Receiver) Tick(raw line.Level) RxOutput {
	var out RxOutput
	r.state, out = r.state.next(&r.config, r.filter.Advance(raw))
	switch {
	case out.Valid:
		r.stats.Frames++
		glog.V(4).Infof("uart rx: %02x", out.Data)
	case out.StartBitError:
		r.stats.StartBitErrors++
		glog.V(2).Info("uart rx: start bit error")
	case out.StopBitError:
		r.stats.StopBitErrors++
		glog.V(2).Info("uart rx: stop bit error")
	}
	return out
}

func (s rxState) next(c *Config, in line.Level) (rxState, RxOutput) {
	s.samples = ((s.samples << 1) | uint8(in&1)) & 7
	edge := line.EdgeOf(s.prev, in)
	s.prev = in

	switch s.state {
	case RxIdle, RxValid, RxStopBitError:
		s = s.idle(edge)
	case RxStartBitError:
		s.state, s.lockout = RxErrorRecovery, c.RecoveryTicks()-1
	case RxErrorRecovery:
		if s.lockout > 0 {
			s.lockout--
		} else {
			s = s.idle(edge)
		}
	default:
		s = s.receive(c)
	}
	return s, s.output()
}

func (s rxState) idle(edge line.Edge) rxState {
	s.state = RxIdle
	if edge == line.Falling {
		s.state = RxStartBit
		s.count, s.elapsed, s.bits, s.shift = 0, 0, 0, 0
	}
	return s
}

func (s rxState) receive(c *Config) rxState {
	s.count++
	s.elapsed++
	if s.count == c.sampleTick() {
		s.vote = majority(s.samples)
		switch s.state {
		case RxStartBit:
			if s.vote != line.Low {
				s.state = RxStartBitError
				return s
			}
		case RxStopBit:
			if s.vote == line.High {
				s.state, s.data = RxValid, s.shift
			} else {
				s.state = RxStopBitError
			}
			return s
		}
	}
	if s.count < c.TicksPerBit {
		return s
	}
	s.count = 0
	switch s.state {
	case RxStartBit:
		s.state = RxDataBits
	case RxDataBits:
		s.shift = (s.shift >> 1) | (uint8(s.vote) << uint(c.DataBits-1))
		if s.bits++; s.bits >= c.DataBits {
			s.shift &= c.dataMask()
			s.state = RxStopBit
		}
	}
	return s
}

func (s rxState) output() RxOutput {
	out := RxOutput{State: s.state}
	switch s.state {
	case RxValid:
		out.Valid, out.Data = true, s.data
	case RxStartBitError:
		out.StartBitError = true
	case RxStopBitError:
		out.StopBitError = true
	}
	return out
}

func majority(samples uint8) line.Level {
	n := samples&1 + (samples>>1)&1 + (samples>>2)&1
	return line.LevelOf(n >= 2)
}
