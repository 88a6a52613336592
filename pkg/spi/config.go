package spi

import (
	"errors"
	"flag"
	"fmt"

	"periph.io/x/conn/v3/physic"
)

// Defaults
const (
	DefaultDataBits = 8
	// MinHalfPeriod leaves room for the 2-stage MISO synchronizer and
	// one tick of wire delay between a shift edge and the sample edge.
	MinHalfPeriod = 4
)

var (
	// ErrHalfPeriod indicates the SCLK half period is too short.
	ErrHalfPeriod = errors.New("sclk half period too short")
	// ErrDataBits indicates an unsupported data width.
	ErrDataBits = errors.New("unsupported data bits")
	// ErrMode indicates an invalid clock convention.
	ErrMode = errors.New("invalid mode")
)

// Config defines the immutable parameters of the engine.
type Config struct {
	// HalfPeriod is half of the SCLK period in ticks.
	HalfPeriod int
	Mode       Mode
	// DataBits is the transaction width, 1 to 8, MSB first.
	DataBits int
}

var defaultConfig = Config{
	HalfPeriod: 25,
	DataBits:   DefaultDataBits,
}

var defaultMode = 0

// SetupFlags sets command line flags.
func SetupFlags() {
	flag.IntVar(&defaultConfig.HalfPeriod, "spi-half-period", defaultConfig.HalfPeriod, "SPI clock half period in ticks.")
	flag.IntVar(&defaultMode, "spi-mode", defaultMode, "SPI mode 0-3.")
	flag.IntVar(&defaultConfig.DataBits, "spi-data-bits", defaultConfig.DataBits, "SPI bits per transaction.")
}

// Default gets default config.
func Default() *Config {
	defaultConfig.Mode = Mode(defaultMode)
	return &defaultConfig
}

// NewConfig creates a config deriving the half period from the tick
// rate and the SCLK rate.
func NewConfig(clock, sclk physic.Frequency, mode Mode) *Config {
	conf := *Default()
	conf.HalfPeriod = HalfPeriod(clock, sclk)
	conf.Mode = mode
	return &conf
}

// HalfPeriod computes round(clock / sclk / 2).
func HalfPeriod(clock, sclk physic.Frequency) int {
	if sclk <= 0 {
		return 0
	}
	return int((clock + sclk) / (2 * sclk))
}

// WithDataBits sets the data width.
func (c *Config) WithDataBits(n int) *Config {
	c.DataBits = n
	return c
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.HalfPeriod < MinHalfPeriod {
		return fmt.Errorf("%w: %d ticks", ErrHalfPeriod, c.HalfPeriod)
	}
	if c.DataBits < 1 || c.DataBits > 8 {
		return fmt.Errorf("%w: %d", ErrDataBits, c.DataBits)
	}
	if !c.Mode.IsValid() {
		return fmt.Errorf("%w: %d", ErrMode, c.Mode)
	}
	return nil
}

// TransactionTicks is the duration from the valid pulse to the
// rx_valid pulse.
func (c *Config) TransactionTicks() int {
	// dead time before, wait leading edge, N shift edges and dead time
	// after, in half periods. Phase 1 aligns one half period later.
	return (2*c.DataBits + 3 + c.Mode.Phase()) * c.HalfPeriod
}

func (c *Config) dataMask() uint8 {
	return uint8((1 << uint(c.DataBits)) - 1)
}
