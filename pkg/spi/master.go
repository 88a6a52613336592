package spi

import (
	"github.com/golang/glog"

	"github.com/robotalks/serline/pkg/line"
)

// State is the state of Master.
type State int

// Master states.
const (
	Idle State = iota
	DeadTimeBefore
	WaitLeadingEdge
	SendBits
	DeadTimeAfter
	Done
)

var stateNames = [...]string{
	Idle:            "Idle",
	DeadTimeBefore:  "DeadTimeBefore",
	WaitLeadingEdge: "WaitLeadingEdge",
	SendBits:        "SendBits",
	DeadTimeAfter:   "DeadTimeAfter",
	Done:            "Done",
}

// String implements fmt.Stringer.
func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "Unknown"
}

// Input is what Master consumes in one tick.
type Input struct {
	TxData  byte
	TxValid bool
	MISO    line.Level
}

// Output is what Master drives in one tick.
type Output struct {
	State      State
	SCLK       line.Level
	MOSI       line.Level
	ChipSelect bool
	RxData     byte
	// RxValid pulses for one tick when a transaction completes.
	RxValid bool
	Busy    bool
}

// CSn returns the active-low chip select level.
func (o Output) CSn() line.Level {
	return line.LevelOf(!o.ChipSelect)
}

// Master runs full-duplex transactions, MSB first.
type Master struct {
	config Config
	miso   *line.Synchronizer
	state  masterState
	count  uint64
}

type masterState struct {
	state State
	// half period divider and clkA, both restart with a transaction.
	div    int
	clk    line.Level
	tx     uint8
	rx     uint8
	mosi   line.Level
	shifts int
	rxData uint8
}

// NewMaster creates a Master.
func NewMaster(conf *Config) (*Master, error) {
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	return &Master{
		config: *conf,
		miso:   line.NewSynchronizer(line.Low),
	}, nil
}

// Config returns the configuration.
func (m *Master) Config() Config {
	return m.config
}

// State returns the current state.
func (m *Master) State() State {
	return m.state.state
}

// Ready tells if a valid pulse in the next tick starts a transaction.
func (m *Master) Ready() bool {
	return m.state.state == Idle || m.state.state == Done
}

// Transactions returns the number of completed transactions.
func (m *Master) Transactions() uint64 {
	return m.count
}

// Tick advances one tick.
func (m *Master) Tick(in Input) Output {
	if in.TxValid && !m.Ready() {
		glog.V(2).Infof("spi: busy, %02x dropped", in.TxData)
	}
	var out Output
	m.state, out = m.state.next(&m.config, in, m.miso.Advance(in.MISO))
	if out.RxValid {
		m.count++
		glog.V(4).Infof("spi: tx %02x rx %02x", m.state.tx, out.RxData)
	}
	return out
}

func (s masterState) next(c *Config, in Input, miso line.Level) (masterState, Output) {
	var rising [2]bool
	if s.state != Idle && s.state != Done {
		if s.div++; s.div >= c.HalfPeriod {
			s.div, s.clk = 0, s.clk.Invert()
			if s.clk.IsHigh() {
				rising[clkA] = true
			} else {
				rising[clkB] = true
			}
		}
	}
	conv := c.Mode.convention()
	sample, shift := rising[conv.sample], rising[conv.shift]

	switch s.state {
	case Idle, Done:
		s.state = Idle
		if in.TxValid {
			s = masterState{state: DeadTimeBefore, tx: in.TxData & c.dataMask()}
		}
	case DeadTimeBefore:
		if sample {
			s.state = WaitLeadingEdge
		}
	case WaitLeadingEdge:
		if shift {
			s.state, s.shifts = SendBits, 0
			s.mosi = s.txBit(c)
		}
	case SendBits:
		if sample {
			s.rx = ((s.rx << 1) | uint8(miso&1)) & c.dataMask()
		}
		if shift {
			if s.shifts++; s.shifts >= c.DataBits {
				s.state = DeadTimeAfter
			} else {
				s.mosi = s.txBit(c)
			}
		}
	case DeadTimeAfter:
		if sample {
			s.state, s.rxData = Done, s.rx
		}
	}
	return s, s.output(c)
}

func (s masterState) txBit(c *Config) line.Level {
	return line.Bit(uint(s.tx), uint(c.DataBits-1-s.shifts))
}

func (s masterState) output(c *Config) Output {
	out := Output{State: s.state, SCLK: c.Mode.Polarity()}
	switch s.state {
	case DeadTimeBefore:
		out.Busy = true
	case WaitLeadingEdge, DeadTimeAfter:
		out.Busy, out.ChipSelect = true, true
		out.MOSI = s.mosi
	case SendBits:
		out.Busy, out.ChipSelect = true, true
		out.MOSI = s.mosi
		out.SCLK = pairOf(s.clk)[c.Mode.convention().sclk]
	case Done:
		out.RxValid, out.RxData = true, s.rxData
	}
	return out
}
