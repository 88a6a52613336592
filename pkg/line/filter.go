package line

const (
	// FilterTaps is the length of raw sample history kept by Filter.
	FilterTaps = 5
	// SettleTaps is the number of newest taps which are only settling
	// and never take part in a decision.
	SettleTaps = 2
	// VoteTaps is the number of settled taps deciding the output.
	VoteTaps = FilterTaps - SettleTaps

	voteMask = ((1 << VoteTaps) - 1) << SettleTaps
	tapsMask = (1 << FilterTaps) - 1
)

// Filter resynchronizes an unclocked line into the tick domain and
// removes single-sample glitches.
//
// Raw samples enter tap 0. Taps 0 and 1 are settling, taps 2..4 vote:
// all 0 commits Low, all 1 commits High, anything else keeps the last
// committed level.
type Filter struct {
	state filterState
}

type filterState struct {
	taps uint8
	out  Level
}

// NewFilter creates a Filter whose history and output start at idle.
func NewFilter(idle Level) *Filter {
	f := &Filter{}
	f.Reset(idle)
	return f
}

// Reset fills the history with the idle level.
func (f *Filter) Reset(idle Level) {
	f.state = filterState{out: idle}
	if idle.IsHigh() {
		f.state.taps = tapsMask
	}
}

// Advance consumes one raw sample and returns the filtered level.
func (f *Filter) Advance(raw Level) Level {
	f.state = f.state.next(raw)
	return f.state.out
}

// Output returns the last committed level.
func (f *Filter) Output() Level {
	return f.state.out
}

func (s filterState) next(raw Level) filterState {
	s.taps = (s.taps << 1) & tapsMask
	if raw.IsHigh() {
		s.taps |= 1
	}
	switch s.taps & voteMask {
	case 0:
		s.out = Low
	case voteMask:
		s.out = High
	}
	return s
}

// Synchronizer is a 2-stage settle buffer without voting.
type Synchronizer struct {
	stages [SettleTaps]Level
}

// NewSynchronizer creates a Synchronizer holding the initial level.
func NewSynchronizer(initial Level) *Synchronizer {
	s := &Synchronizer{}
	for n := range s.stages {
		s.stages[n] = initial
	}
	return s
}

// Advance shifts in a raw sample and returns the settled one.
func (s *Synchronizer) Advance(raw Level) Level {
	out := s.stages[SettleTaps-1]
	copy(s.stages[1:], s.stages[:SettleTaps-1])
	s.stages[0] = LevelOf(raw.IsHigh())
	return out
}

// Output returns the settled sample without advancing.
func (s *Synchronizer) Output() Level {
	return s.stages[SettleTaps-1]
}
