package sim

import (
	fx "github.com/robotalks/serline/pkg/framework"
	"github.com/robotalks/serline/pkg/line"
	"github.com/robotalks/serline/pkg/monitor"
	"github.com/robotalks/serline/pkg/spi"
)

// TransferHandler receives completed SPI transfers in the loop.
type TransferHandler func(cc fx.ControlContext, tx, rx byte)

// SpiLink connects a Master to a Slave through wires, or loops MOSI
// back to MISO when there is no Slave.
type SpiLink struct {
	Master *spi.Master
	Slave  *spi.Slave

	SCLK *Wire
	MOSI *Wire
	CSn  *Wire
	MISO *Wire

	OnTransfer TransferHandler
	// Report emits spi.transfer events.
	Report bool

	queue   []byte
	current byte
	last    byte
}

// NewSpiLink creates a SpiLink. slave may be nil for loopback.
func NewSpiLink(conf *spi.Config, slave *spi.Slave) (*SpiLink, error) {
	m, err := spi.NewMaster(conf)
	if err != nil {
		return nil, err
	}
	return &SpiLink{
		Master: m,
		Slave:  slave,
		SCLK:   NewWire("sclk", conf.Mode.Polarity()),
		MOSI:   NewWire("mosi", line.Low),
		CSn:    NewWire("cs_n", line.High),
		MISO:   NewWire("miso", line.Low),
	}, nil
}

// Transfer queues bytes to be exchanged one transaction each.
func (s *SpiLink) Transfer(data ...byte) {
	s.queue = append(s.queue, data...)
}

// Busy tells whether a transaction is queued or in progress.
func (s *SpiLink) Busy() bool {
	return len(s.queue) > 0 || !s.Master.Ready()
}

// Last returns the byte received in the last transaction.
func (s *SpiLink) Last() byte {
	return s.last
}

// Idle tells whether the bus is at rest.
func (s *SpiLink) Idle() bool {
	return len(s.queue) == 0 && s.Master.State() == spi.Idle
}

// Wires lists the bus lines.
func (s *SpiLink) Wires() []*Wire {
	return []*Wire{s.SCLK, s.MOSI, s.CSn, s.MISO}
}

// AddToLoop implements LoopAdder.
func (s *SpiLink) AddToLoop(l *fx.Loop) {
	for _, w := range s.Wires() {
		l.Add(w)
	}
	l.AddController(fx.PrLvControl, s)
}

// Control implements Controller.
func (s *SpiLink) Control(cc fx.ControlContext) error {
	in := spi.Input{MISO: s.MISO.Level()}
	if s.Slave == nil {
		in.MISO = s.MOSI.Level()
	}
	if len(s.queue) > 0 && s.Master.Ready() {
		in.TxData, in.TxValid = s.queue[0], true
	}
	out := s.Master.Tick(in)
	if in.TxValid && out.Busy {
		s.current, s.queue = in.TxData, s.queue[1:]
	}
	s.SCLK.Drive(out.SCLK)
	s.MOSI.Drive(out.MOSI)
	s.CSn.Drive(out.CSn())

	if s.Slave != nil {
		sout := s.Slave.Tick(spi.SlaveInput{
			SCLK:       s.SCLK.Level(),
			MOSI:       s.MOSI.Level(),
			ChipSelect: s.CSn.Level() == line.Low,
		})
		s.MISO.Drive(sout.MISO)
	} else {
		s.MISO.Drive(s.MOSI.Level())
	}

	if out.RxValid {
		s.last = out.RxData
		if s.Report {
			monitor.Emit(cc, &monitor.Event{
				Kind: monitor.KindSpiTransfer,
				Data: monitor.SpiData(s.current, out.RxData),
			})
		}
		if s.OnTransfer != nil {
			s.OnTransfer(cc, s.current, out.RxData)
		}
	}
	return nil
}
