// Package config loads bench settings from a YAML file and command
// line flags. Flags explicitly set on the command line override the
// file.
//
// Example:
//
//	clock: 50MHz
//	uart:
//	  baud: 115200
//	spi:
//	  sclk: 1MHz
//	  mode: 0
//	board:
//	  source: bench1
//	monitor:
//	  mqtt: mqtt://localhost:1883/serline
package config

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"gopkg.in/yaml.v2"
	"periph.io/x/conn/v3/physic"

	"github.com/robotalks/serline/pkg/sim"
	"github.com/robotalks/serline/pkg/spi"
	"github.com/robotalks/serline/pkg/uart"
)

// ErrNoClock indicates rates are given without the tick clock.
var ErrNoClock = errors.New("clock is required to derive periods from rates")

// File is the structure of the configuration file.
type File struct {
	// Clock is the tick rate, e.g. "50MHz".
	Clock   string         `yaml:"clock"`
	Uart    UartSection    `yaml:"uart"`
	Spi     SpiSection     `yaml:"spi"`
	Board   BoardSection   `yaml:"board"`
	Monitor MonitorSection `yaml:"monitor"`
}

// UartSection configures the UART. Baud takes precedence over
// TicksPerBit.
type UartSection struct {
	Baud         int64 `yaml:"baud"`
	TicksPerBit  int   `yaml:"ticks_per_bit"`
	DataBits     int   `yaml:"data_bits"`
	RecoveryBits int   `yaml:"recovery_bits"`
}

// SpiSection configures the SPI master. SCLK takes precedence over
// HalfPeriod.
type SpiSection struct {
	SCLK       string `yaml:"sclk"`
	HalfPeriod int    `yaml:"half_period"`
	Mode       *int   `yaml:"mode"`
	DataBits   int    `yaml:"data_bits"`
}

// BoardSection configures the simulated board.
type BoardSection struct {
	Source      string `yaml:"source"`
	SpiLoopback bool   `yaml:"spi_loopback"`
}

// MonitorSection configures event publishing.
type MonitorSection struct {
	MQTT       string `yaml:"mqtt"`
	Websocket  string `yaml:"websocket"`
	EventsFile string `yaml:"events_file"`
	TraceFile  string `yaml:"trace_file"`
}

// Config is the resolved configuration.
type Config struct {
	Clock   physic.Frequency
	// Baud is the line rate of real serial ports.
	Baud    int64
	Uart    *uart.Config
	Spi     *spi.Config
	Board   BoardSection
	Monitor MonitorSection
}

var (
	configFile = os.Getenv("SERLINE_CONFIG")
	clock      physic.Frequency
)

func init() {
	if val := os.Getenv("SERLINE_CLOCK"); val != "" {
		if clock.Set(val) != nil {
			clock = 0
		}
	}
}

// SetupFlags sets command line flags, including those of the uart and
// spi packages.
func SetupFlags() {
	flag.StringVar(&configFile, "config", configFile, "Configuration file (YAML).")
	flag.Var(&clock, "clock", "Tick rate, e.g. 50MHz.")
	uart.SetupFlags()
	spi.SetupFlags()
}

// Parse decodes a configuration file.
func Parse(data []byte) (*File, error) {
	var f File
	if err := yaml.UnmarshalStrict(data, &f); err != nil {
		return nil, err
	}
	return &f, nil
}

// Load reads a configuration file.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	f, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}

// Build resolves the file on top of the package defaults.
func (f *File) Build() (*Config, error) {
	c := &Config{Board: f.Board, Monitor: f.Monitor}
	if f.Clock != "" {
		if err := c.Clock.Set(f.Clock); err != nil {
			return nil, fmt.Errorf("clock: %w", err)
		}
	}

	c.Baud = f.Uart.Baud
	if c.Baud <= 0 {
		c.Baud = uart.DefaultBaudRate
	}
	u := *uart.Default()
	switch {
	case f.Uart.Baud > 0:
		if c.Clock == 0 {
			return nil, fmt.Errorf("uart baud: %w", ErrNoClock)
		}
		u.TicksPerBit = uart.BitPeriod(int64(c.Clock/physic.Hertz), f.Uart.Baud)
	case f.Uart.TicksPerBit > 0:
		u.TicksPerBit = f.Uart.TicksPerBit
	}
	if f.Uart.DataBits > 0 {
		u.DataBits = f.Uart.DataBits
	}
	if f.Uart.RecoveryBits > 0 {
		u.RecoveryBits = f.Uart.RecoveryBits
	}
	c.Uart = &u

	s := *spi.Default()
	if f.Spi.Mode != nil {
		s.Mode = spi.Mode(*f.Spi.Mode)
	}
	switch {
	case f.Spi.SCLK != "":
		if c.Clock == 0 {
			return nil, fmt.Errorf("spi sclk: %w", ErrNoClock)
		}
		var sclk physic.Frequency
		if err := sclk.Set(f.Spi.SCLK); err != nil {
			return nil, fmt.Errorf("spi sclk: %w", err)
		}
		s.HalfPeriod = spi.HalfPeriod(c.Clock, sclk)
	case f.Spi.HalfPeriod > 0:
		s.HalfPeriod = f.Spi.HalfPeriod
	}
	if f.Spi.DataBits > 0 {
		s.DataBits = f.Spi.DataBits
	}
	c.Spi = &s
	return c, c.Validate()
}

// Validate checks the resolved configuration.
func (c *Config) Validate() error {
	var errs []string
	if err := c.Uart.Validate(); err != nil {
		errs = append(errs, "uart: "+err.Error())
	}
	if err := c.Spi.Validate(); err != nil {
		errs = append(errs, "spi: "+err.Error())
	}
	if len(errs) > 0 {
		return &Error{Problems: errs}
	}
	return nil
}

// Error lists the problems of an invalid configuration.
type Error struct {
	Problems []string
}

// Error implements error.
func (e *Error) Error() string {
	msg := "invalid configuration"
	for _, p := range e.Problems {
		msg += "\n  " + p
	}
	return msg
}

// FromFlags loads the file given by -config (or SERLINE_CONFIG) if
// any, then applies the flags set on the command line.
func FromFlags() (*Config, error) {
	f := &File{}
	if configFile != "" {
		var err error
		if f, err = Load(configFile); err != nil {
			return nil, err
		}
	}
	if clock != 0 {
		f.Clock = clock.String()
	}
	c, err := f.Build()
	if err != nil {
		return nil, err
	}
	flag.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "uart-ticks-per-bit":
			c.Uart.TicksPerBit = uart.Default().TicksPerBit
		case "uart-data-bits":
			c.Uart.DataBits = uart.Default().DataBits
		case "uart-recovery-bits":
			c.Uart.RecoveryBits = uart.Default().RecoveryBits
		case "spi-half-period":
			c.Spi.HalfPeriod = spi.Default().HalfPeriod
		case "spi-mode":
			c.Spi.Mode = spi.Default().Mode
		case "spi-data-bits":
			c.Spi.DataBits = spi.Default().DataBits
		}
	})
	return c, c.Validate()
}

// BoardConfig creates the configuration of a simulated board.
func (c *Config) BoardConfig() *sim.BoardConfig {
	return &sim.BoardConfig{
		Uart:        c.Uart,
		Spi:         c.Spi,
		SpiLoopback: c.Board.SpiLoopback,
		Source:      c.Board.Source,
	}
}

// TickHz returns the clock in Hz, 0 if unknown.
func (c *Config) TickHz() int64 {
	return int64(c.Clock / physic.Hertz)
}
