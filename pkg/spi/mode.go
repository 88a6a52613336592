// Package spi provides a tick-driven SPI master engine and a
// peripheral model sharing the same clock conventions.
package spi

import (
	"fmt"

	pspi "periph.io/x/conn/v3/spi"

	"github.com/robotalks/serline/pkg/line"
)

// Mode is the clock convention: bit 1 is the clock polarity and
// bit 0 is the clock phase, numbered as the standard SPI modes.
type Mode uint8

// Clock conventions.
const (
	Mode0 Mode = 0 // idle low, sample on leading edge
	Mode1 Mode = 1 // idle low, sample on trailing edge
	Mode2 Mode = 2 // idle high, sample on leading edge
	Mode3 Mode = 3 // idle high, sample on trailing edge
)

// ModeOf composes a Mode from polarity and phase.
func ModeOf(polarity line.Level, phase int) Mode {
	return Mode(polarity&1)<<1 | Mode(phase&1)
}

// ModeFromPeriph converts a periph.io SPI mode, ignoring the flags
// like HalfDuplex, NoCS and LSBFirst.
func ModeFromPeriph(m pspi.Mode) Mode {
	return Mode(m & pspi.Mode3)
}

// Periph converts to periph.io SPI mode.
func (m Mode) Periph() pspi.Mode {
	return pspi.Mode(m & 3)
}

// Polarity is the idle level of the serial clock.
func (m Mode) Polarity() line.Level {
	return line.Level((m >> 1) & 1)
}

// Phase is 0 when data is staged half a period before the first
// clock edge and 1 when data changes on the leading edge.
func (m Mode) Phase() int {
	return int(m & 1)
}

// IsValid tells if the mode is one of the 4 conventions.
func (m Mode) IsValid() bool {
	return m <= Mode3
}

// String implements fmt.Stringer.
func (m Mode) String() string {
	return fmt.Sprintf("Mode%d(CPOL=%d,CPHA=%d)", uint8(m), m.Polarity(), m.Phase())
}

// clockSel selects one of the two complementary half-rate clocks.
type clockSel int

const (
	// clkA is low when a transaction starts and rises first.
	clkA clockSel = iota
	// clkB is the complement of clkA.
	clkB
)

// convention tells which clock of the pair is exposed as SCLK and
// which clock's rising edges sample and shift.
type convention struct {
	sclk   clockSel
	sample clockSel
	shift  clockSel
}

var conventions = [...]convention{
	Mode0: {sclk: clkA, sample: clkA, shift: clkB},
	Mode1: {sclk: clkA, sample: clkB, shift: clkA},
	Mode2: {sclk: clkB, sample: clkA, shift: clkB},
	Mode3: {sclk: clkB, sample: clkB, shift: clkA},
}

func (m Mode) convention() convention {
	return conventions[m&3]
}

// clockPair holds the levels of both clocks.
type clockPair [2]line.Level

func pairOf(a line.Level) clockPair {
	return clockPair{a, a.Invert()}
}
