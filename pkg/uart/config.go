// Package uart provides tick-driven UART frame encoding and decoding.
package uart

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
)

// Defaults
const (
	DefaultOversampling = 16
	DefaultDataBits     = 8
	DefaultBaudRate     = 115200

	// MinTicksPerBit is the shortest bit period able to hold a
	// 3-sample vote centered at mid-bit.
	MinTicksPerBit = 4
)

var (
	// ErrBitPeriod indicates the bit period is too short.
	ErrBitPeriod = errors.New("bit period too short")
	// ErrDataBits indicates an unsupported data width.
	ErrDataBits = errors.New("unsupported data bits")
	// ErrRecoveryBits indicates a negative recovery window.
	ErrRecoveryBits = errors.New("invalid recovery window")
)

// Config defines the immutable parameters of UART components.
type Config struct {
	// TicksPerBit is the bit period in ticks.
	TicksPerBit int
	// DataBits is the data width of a frame, 5 to 8.
	DataBits int
	// RecoveryBits is the lockout window after a start-bit error,
	// in bit periods. 0 selects DataBits+1.
	RecoveryBits int
}

var defaultConfig = Config{
	TicksPerBit: DefaultOversampling,
	DataBits:    DefaultDataBits,
}

func init() {
	if val, err := strconv.Atoi(os.Getenv("SERLINE_UART_RECOVERY_BITS")); err == nil {
		defaultConfig.RecoveryBits = val
	}
}

// SetupFlags sets command line flags.
func SetupFlags() {
	flag.IntVar(&defaultConfig.TicksPerBit, "uart-ticks-per-bit", defaultConfig.TicksPerBit, "UART bit period in ticks (oversampling factor).")
	flag.IntVar(&defaultConfig.DataBits, "uart-data-bits", defaultConfig.DataBits, "UART data bits per frame.")
	flag.IntVar(&defaultConfig.RecoveryBits, "uart-recovery-bits", defaultConfig.RecoveryBits, "Bit periods to ignore new frames after a start-bit error, 0 means data bits + 1.")
}

// Default gets default config.
func Default() *Config {
	return &defaultConfig
}

// Oversampled creates a config with the bit period set to the
// oversampling factor.
func Oversampled(ticksPerBit int) *Config {
	conf := defaultConfig
	conf.TicksPerBit = ticksPerBit
	return &conf
}

// NewConfig creates a config with the bit period derived from the
// tick rate and baud rate, rounded to the nearest tick.
func NewConfig(clockHz, baudRate int64) *Config {
	conf := defaultConfig
	conf.TicksPerBit = BitPeriod(clockHz, baudRate)
	return &conf
}

// BitPeriod computes round(clockHz/baudRate).
func BitPeriod(clockHz, baudRate int64) int {
	if baudRate <= 0 {
		return 0
	}
	return int((clockHz + baudRate/2) / baudRate)
}

// WithDataBits sets the data width.
func (c *Config) WithDataBits(n int) *Config {
	c.DataBits = n
	return c
}

// WithRecoveryBits sets the lockout window.
func (c *Config) WithRecoveryBits(n int) *Config {
	c.RecoveryBits = n
	return c
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.TicksPerBit < MinTicksPerBit {
		return fmt.Errorf("%w: %d ticks", ErrBitPeriod, c.TicksPerBit)
	}
	if c.DataBits < 5 || c.DataBits > 8 {
		return fmt.Errorf("%w: %d", ErrDataBits, c.DataBits)
	}
	if c.RecoveryBits < 0 {
		return fmt.Errorf("%w: %d", ErrRecoveryBits, c.RecoveryBits)
	}
	return nil
}

// FrameBits is the number of bit periods in a frame.
func (c *Config) FrameBits() int {
	return c.DataBits + 2
}

// FrameTicks is the duration of a frame in ticks.
func (c *Config) FrameTicks() int {
	return c.FrameBits() * c.TicksPerBit
}

// RecoveryTicks is the lockout window in ticks.
func (c *Config) RecoveryTicks() int {
	bits := c.RecoveryBits
	if bits == 0 {
		bits = c.DataBits + 1
	}
	return bits * c.TicksPerBit
}

// sampleTick is the intra-bit offset where the vote is taken, the
// last of the three samples centered at mid-bit.
func (c *Config) sampleTick() int {
	return c.TicksPerBit/2 + 1
}

func (c *Config) dataMask() uint8 {
	return uint8((1 << uint(c.DataBits)) - 1)
}
