// Package line models single binary signal lines sampled once per tick.
package line

// Level is the value of a line observed in one tick. Any non-zero
// value reads as High; filters and synchronizers output Low or High only.
type Level uint8

// Line levels.
const (
	Low  Level = 0
	High Level = 1
)

// LevelOf converts a bool to a Level.
func LevelOf(b bool) Level {
	if b {
		return High
	}
	return Low
}

// Bit extracts bit n of v as a Level.
func Bit(v uint, n uint) Level {
	return Level((v >> n) & 1)
}

// IsHigh tells if the level is High.
func (l Level) IsHigh() bool {
	return l != Low
}

// Invert returns the opposite level.
func (l Level) Invert() Level {
	if l.IsHigh() {
		return Low
	}
	return High
}

// String implements fmt.Stringer.
func (l Level) String() string {
	if l.IsHigh() {
		return "1"
	}
	return "0"
}

// Edge classifies the change between two consecutive samples.
type Edge int

// Edges.
const (
	NoEdge Edge = iota
	Rising
	Falling
)

// EdgeOf computes the edge from prev to curr.
func EdgeOf(prev, curr Level) Edge {
	switch {
	case !prev.IsHigh() && curr.IsHigh():
		return Rising
	case prev.IsHigh() && !curr.IsHigh():
		return Falling
	}
	return NoEdge
}

// EdgeDetector remembers the previous sample of a line.
type EdgeDetector struct {
	prev Level
}

// NewEdgeDetector creates an EdgeDetector with initial level.
func NewEdgeDetector(initial Level) EdgeDetector {
	return EdgeDetector{prev: initial}
}

// Advance consumes a sample and reports the edge against the previous one.
func (d *EdgeDetector) Advance(l Level) Edge {
	e := EdgeOf(d.prev, l)
	d.prev = l
	return e
}

// Prev returns the previously consumed sample.
func (d *EdgeDetector) Prev() Level {
	return d.prev
}
