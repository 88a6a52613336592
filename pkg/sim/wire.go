package sim

import (
	fx "github.com/robotalks/serline/pkg/framework"
	"github.com/robotalks/serline/pkg/line"
)

// Wire is a line with a single driver. The level driven in one tick
// is observed by readers in the next tick, regardless of the order
// controllers run in.
type Wire struct {
	Name     string
	Glitcher Glitcher

	EdgeCaster

	driven   line.Level
	level    line.Level
	glitches uint64
}

// NewWire creates a Wire resting at idle.
func NewWire(name string, idle line.Level) *Wire {
	return &Wire{Name: name, driven: idle, level: idle}
}

// Drive sets the level seen from the next tick.
func (w *Wire) Drive(l line.Level) {
	w.driven = l
}

// Driven returns the level being driven in the current tick.
func (w *Wire) Driven() line.Level {
	return w.driven
}

// Level returns the level observed in the current tick.
func (w *Wire) Level() line.Level {
	return w.level
}

// Glitches returns the number of injected inversions.
func (w *Wire) Glitches() uint64 {
	return w.glitches
}

// Latch makes the driven level observable. It runs first in every tick.
func (w *Wire) Latch(cc fx.ControlContext) error {
	prev := w.level
	w.level = w.driven
	if w.Glitcher != nil && w.Glitcher.Glitch(cc.Tick()) {
		w.level = w.level.Invert()
		w.glitches++
	}
	if w.level != prev {
		w.EdgeObserved(cc, w.Name, w.level)
	}
	return nil
}

// AddToLoop implements LoopAdder.
func (w *Wire) AddToLoop(l *fx.Loop) {
	l.AddController(fx.PrLvTop, fx.ControlFunc(w.Latch))
}
