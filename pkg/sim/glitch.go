package sim

import (
	"math/rand"
)

// Glitcher decides whether a line is inverted for a single tick.
type Glitcher interface {
	Glitch(tick uint64) bool
}

// GlitchFunc is the func form of Glitcher.
type GlitchFunc func(tick uint64) bool

// Glitch implements Glitcher.
func (f GlitchFunc) Glitch(tick uint64) bool {
	return f(tick)
}

// GlitchAt inverts the line at the listed ticks.
type GlitchAt map[uint64]bool

// GlitchAtTicks creates GlitchAt.
func GlitchAtTicks(ticks ...uint64) GlitchAt {
	g := make(GlitchAt, len(ticks))
	for _, tick := range ticks {
		g[tick] = true
	}
	return g
}

// Glitch implements Glitcher.
func (g GlitchAt) Glitch(tick uint64) bool {
	return g[tick]
}

// RandomGlitcher inverts the line at random ticks with probability
// Rate, keeping at least MinGap ticks between two glitches.
type RandomGlitcher struct {
	Rate   float64
	MinGap uint64

	rnd      *rand.Rand
	last     uint64
	glitched bool
}

// NewRandomGlitcher creates a RandomGlitcher with a fixed seed so runs
// are reproducible.
func NewRandomGlitcher(seed int64, rate float64, minGap uint64) *RandomGlitcher {
	return &RandomGlitcher{
		Rate:   rate,
		MinGap: minGap,
		rnd:    rand.New(rand.NewSource(seed)),
	}
}

// Glitch implements Glitcher.
func (g *RandomGlitcher) Glitch(tick uint64) bool {
	if g.glitched && tick < g.last+g.MinGap {
		return false
	}
	if g.rnd.Float64() >= g.Rate {
		return false
	}
	g.last, g.glitched = tick, true
	return true
}
