package sim

import (
	"sort"

	fx "github.com/robotalks/serline/pkg/framework"
	"github.com/robotalks/serline/pkg/line"
)

// Sample is a level change at a tick.
type Sample struct {
	Tick  uint64     `json:"t" cbor:"t"`
	Level line.Level `json:"l" cbor:"l"`
}

// Probe records the edges of a line.
type Probe struct {
	Name    string     `json:"name" cbor:"name"`
	Initial line.Level `json:"initial" cbor:"initial"`
	Edges   []Sample   `json:"edges" cbor:"edges"`
}

// NewProbe attaches a probe to a wire.
func NewProbe(w *Wire) *Probe {
	p := &Probe{Name: w.Name, Initial: w.Level()}
	w.SubscribeEdges(p)
	return p
}

// EdgeObserved implements EdgeListener.
func (p *Probe) EdgeObserved(cc fx.ControlContext, _ string, level line.Level) {
	p.Edges = append(p.Edges, Sample{Tick: cc.Tick(), Level: level})
}

// LevelAt returns the level of the line at tick.
func (p *Probe) LevelAt(tick uint64) line.Level {
	n := sort.Search(len(p.Edges), func(i int) bool { return p.Edges[i].Tick > tick })
	if n == 0 {
		return p.Initial
	}
	return p.Edges[n-1].Level
}

// EdgesBetween returns the edges in [from, to).
func (p *Probe) EdgesBetween(from, to uint64) []Sample {
	start := sort.Search(len(p.Edges), func(i int) bool { return p.Edges[i].Tick >= from })
	end := sort.Search(len(p.Edges), func(i int) bool { return p.Edges[i].Tick >= to })
	return p.Edges[start:end]
}

// Reset drops the recorded edges, the current level becomes the
// initial level.
func (p *Probe) Reset(current line.Level) {
	p.Initial, p.Edges = current, nil
}
