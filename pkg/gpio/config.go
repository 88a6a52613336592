// Package gpio runs the line engines against real pins, one tick per
// loop iteration.
package gpio

import (
	"flag"
	"fmt"

	"github.com/robotalks/serline/pkg/gpio/device"
	"github.com/robotalks/serline/pkg/line"
)

// NoLine disables a pin.
const NoLine = -1

// Config maps the engine signals to line offsets of a chip.
type Config struct {
	Chip   string
	UartTx int
	UartRx int
	SCLK   int
	MOSI   int
	MISO   int
	CSn    int
}

// Raspberry Pi header, UART0 and SPI0.
var defaultConfig = Config{
	Chip:   "gpiochip0",
	UartTx: 14,
	UartRx: 15,
	SCLK:   11,
	MOSI:   10,
	MISO:   9,
	CSn:    8,
}

// SetupFlags sets command line flags.
func SetupFlags() {
	flag.StringVar(&defaultConfig.Chip, "gpio-chip", defaultConfig.Chip, "GPIO chip name, "+device.MemoryChipName+" for an in-memory loopback chip.")
	flag.IntVar(&defaultConfig.UartTx, "gpio-uart-tx", defaultConfig.UartTx, "Line offset of UART TX, -1 to disable.")
	flag.IntVar(&defaultConfig.UartRx, "gpio-uart-rx", defaultConfig.UartRx, "Line offset of UART RX, -1 to disable.")
	flag.IntVar(&defaultConfig.SCLK, "gpio-sclk", defaultConfig.SCLK, "Line offset of SPI SCLK, -1 to disable SPI.")
	flag.IntVar(&defaultConfig.MOSI, "gpio-mosi", defaultConfig.MOSI, "Line offset of SPI MOSI.")
	flag.IntVar(&defaultConfig.MISO, "gpio-miso", defaultConfig.MISO, "Line offset of SPI MISO.")
	flag.IntVar(&defaultConfig.CSn, "gpio-cs", defaultConfig.CSn, "Line offset of SPI chip select (active low).")
}

// Default gets default config.
func Default() *Config {
	return &defaultConfig
}

// NewConfig creates a config with defaults.
func NewConfig() *Config {
	conf := defaultConfig
	return &conf
}

// HasUart tells whether both UART lines are mapped.
func (c *Config) HasUart() bool {
	return c.UartTx != NoLine && c.UartRx != NoLine
}

// HasSpi tells whether all SPI lines are mapped.
func (c *Config) HasSpi() bool {
	return c.SCLK != NoLine && c.MOSI != NoLine && c.MISO != NoLine && c.CSn != NoLine
}

// OpenChip opens the configured chip. The memory chip has the UART
// and SPI lines jumpered back to back.
func (c *Config) OpenChip() (device.Chip, error) {
	if c.Chip != device.MemoryChipName {
		return device.Open(c.Chip)
	}
	n := 0
	for _, offset := range []int{c.UartTx, c.UartRx, c.SCLK, c.MOSI, c.MISO, c.CSn} {
		if offset >= n {
			n = offset + 1
		}
	}
	mem := device.NewMemory(n)
	if c.HasUart() {
		mem.Jumper(c.UartTx, c.UartRx)
	}
	if c.HasSpi() {
		mem.Jumper(c.MOSI, c.MISO)
	}
	return mem, nil
}

// Pins are the lines requested for the engines. Unmapped pins are nil.
type Pins struct {
	UartTx device.OutputPin
	UartRx device.InputPin
	SCLK   device.OutputPin
	MOSI   device.OutputPin
	CSn    device.OutputPin
	MISO   device.InputPin
}

// RequestPins requests the mapped lines from chip. The idle levels are
// driven immediately: UART TX high, CSn high and SCLK at polarity.
func (c *Config) RequestPins(chip device.Chip, polarity line.Level) (pins *Pins, err error) {
	pins = &Pins{}
	defer func() {
		if err != nil {
			pins.Close()
			pins = nil
		}
	}()
	if c.HasUart() {
		if pins.UartTx, err = chip.Output(c.UartTx, line.High); err != nil {
			return pins, fmt.Errorf("uart tx line %d: %w", c.UartTx, err)
		}
		if pins.UartRx, err = chip.Input(c.UartRx); err != nil {
			return pins, fmt.Errorf("uart rx line %d: %w", c.UartRx, err)
		}
	}
	if c.HasSpi() {
		if pins.CSn, err = chip.Output(c.CSn, line.High); err != nil {
			return pins, fmt.Errorf("cs line %d: %w", c.CSn, err)
		}
		if pins.SCLK, err = chip.Output(c.SCLK, polarity); err != nil {
			return pins, fmt.Errorf("sclk line %d: %w", c.SCLK, err)
		}
		if pins.MOSI, err = chip.Output(c.MOSI, line.Low); err != nil {
			return pins, fmt.Errorf("mosi line %d: %w", c.MOSI, err)
		}
		if pins.MISO, err = chip.Input(c.MISO); err != nil {
			return pins, fmt.Errorf("miso line %d: %w", c.MISO, err)
		}
	}
	return pins, nil
}

// Close releases all requested lines.
func (p *Pins) Close() error {
	var err error
	for _, pin := range []interface{ Close() error }{p.UartTx, p.UartRx, p.SCLK, p.MOSI, p.CSn, p.MISO} {
		if pin == nil {
			continue
		}
		if e := pin.Close(); e != nil && err == nil {
			err = e
		}
	}
	return err
}
