//go:build linux

package device

import (
	"github.com/warthog618/gpiod"

	"github.com/robotalks/serline/pkg/line"
)

type chip struct {
	chip *gpiod.Chip
}

type pin struct {
	line   *gpiod.Line
	offset int
}

// Open opens the chip by name, e.g. gpiochip0.
func Open(name string) (Chip, error) {
	c, err := gpiod.NewChip(name)
	if err != nil {
		return nil, err
	}
	return &chip{chip: c}, nil
}

func (c *chip) Name() string {
	return c.chip.Name
}

func (c *chip) Lines() int {
	return c.chip.Lines()
}

func (c *chip) Close() error {
	return c.chip.Close()
}

func (c *chip) Input(offset int) (InputPin, error) {
	l, err := c.chip.RequestLine(offset, gpiod.AsInput)
	if err != nil {
		return nil, err
	}
	return &pin{line: l, offset: offset}, nil
}

func (c *chip) Output(offset int, initial line.Level) (OutputPin, error) {
	l, err := c.chip.RequestLine(offset, gpiod.AsOutput(int(initial)))
	if err != nil {
		return nil, err
	}
	return &pin{line: l, offset: offset}, nil
}

func (p *pin) Offset() int {
	return p.offset
}

func (p *pin) Level() (line.Level, error) {
	v, err := p.line.Value()
	if err != nil {
		return line.Low, err
	}
	return line.LevelOf(v != 0), nil
}

func (p *pin) Set(l line.Level) error {
	return p.line.SetValue(int(l))
}

func (p *pin) Close() error {
	return p.line.Close()
}
