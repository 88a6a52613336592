package sim

import (
	fx "github.com/robotalks/serline/pkg/framework"
)

// HostWrite queues bytes sent by the host to the board.
type HostWrite struct {
	Data []byte
}

// NewMessage implements Message.
func (m *HostWrite) NewMessage() fx.Message { return &HostWrite{} }

// RunTicks keeps the board running for N ticks even when idle.
type RunTicks struct {
	N uint64
}

// NewMessage implements Message.
func (m *RunTicks) NewMessage() fx.Message { return &RunTicks{} }

// SetGlitcher installs a Glitcher on the host to board line, nil
// removes it.
type SetGlitcher struct {
	Glitcher Glitcher
}

// NewMessage implements Message.
func (m *SetGlitcher) NewMessage() fx.Message { return &SetGlitcher{} }

// TakeTrace requests a copy of the trace captured so far. The copy,
// nil when tracing is disabled, is sent to Reply which must be
// buffered.
type TakeTrace struct {
	Reply chan<- *Trace
}

// NewMessage implements Message.
func (m *TakeTrace) NewMessage() fx.Message { return &TakeTrace{} }
