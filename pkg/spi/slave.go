package spi

import (
	"github.com/robotalks/serline/pkg/line"
)

// Responder decides the byte a Slave shifts out in the next
// transaction after receiving rx.
type Responder interface {
	Respond(rx byte) byte
}

// RespondFunc is the func form of Responder.
type RespondFunc func(rx byte) byte

// Respond implements Responder.
func (f RespondFunc) Respond(rx byte) byte {
	return f(rx)
}

// Echo responds with the last received byte.
var Echo = RespondFunc(func(rx byte) byte { return rx })

// SlaveInput is what a Slave observes on the bus in one tick.
type SlaveInput struct {
	SCLK       line.Level
	MOSI       line.Level
	ChipSelect bool
}

// SlaveOutput is what a Slave drives in one tick.
type SlaveOutput struct {
	MISO    line.Level
	RxData  byte
	RxValid bool
}

// Slave is a peripheral model following the same clock conventions
// as Master. It is used to verify the master against an independent
// implementation of the bus, and by simulated boards.
type Slave struct {
	Responder Responder

	config   Config
	reply    uint8
	selected bool
	sclk     line.Level
	tx       uint8
	rx       uint8
	sampled  int
	shifted  int
	miso     line.Level
}

// NewSlave creates a Slave which shifts out reply in its first
// transaction.
func NewSlave(conf *Config, reply byte) (*Slave, error) {
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	return &Slave{
		config: *conf,
		reply:  reply & conf.dataMask(),
		sclk:   conf.Mode.Polarity(),
	}, nil
}

// Tick advances one tick.
func (s *Slave) Tick(in SlaveInput) (out SlaveOutput) {
	c := &s.config
	edge := line.EdgeOf(s.sclk, in.SCLK)
	s.sclk = in.SCLK
	switch {
	case in.ChipSelect && !s.selected:
		s.selected = true
		s.tx, s.rx, s.sampled, s.shifted = s.reply, 0, 0, 0
		if c.Mode.Phase() == 0 {
			s.shiftOut()
		}
	case !in.ChipSelect && s.selected:
		s.selected = false
	case s.selected && edge != line.NoEdge:
		leading := line.EdgeOf(c.Mode.Polarity(), in.SCLK) != line.NoEdge
		if leading == (c.Mode.Phase() == 0) {
			if s.sampled < c.DataBits {
				s.rx = (s.rx << 1) | uint8(in.MOSI&1)
				if s.sampled++; s.sampled == c.DataBits {
					out.RxValid, out.RxData = true, s.rx&c.dataMask()
					if s.Responder != nil {
						s.reply = s.Responder.Respond(out.RxData) & c.dataMask()
					}
				}
			}
		} else {
			s.shiftOut()
		}
	}
	out.MISO = s.miso
	return
}

func (s *Slave) shiftOut() {
	if s.shifted >= s.config.DataBits {
		return
	}
	s.miso = line.Bit(uint(s.tx), uint(s.config.DataBits-1-s.shifted))
	s.shifted++
}
