package reg

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/abiosoft/ishell"

	"github.com/robotalks/serline/pkg/cli/sh"
	"github.com/robotalks/serline/pkg/cmdproto"
	"github.com/robotalks/serline/pkg/sim"
)

// SpiPollInterval is the interval of status reads waiting for a
// transfer.
const SpiPollInterval = 5 * time.Millisecond

// Value is the JSON output of a register.
type Value struct {
	Addr uint8  `json:"addr"`
	Data uint16 `json:"data"`
}

// Transfer is the JSON output of an SPI transfer.
type Transfer struct {
	Tx uint8 `json:"tx"`
	Rx uint8 `json:"rx"`
}

var (
	// ReadCmd reads a register.
	ReadCmd = ishell.Cmd{
		Name:    "reg.read",
		Aliases: []string{"r"},
		Help:    "ADDR(hex)",
		Func: sh.MustBeConnected(func(c *ishell.Context) {
			if len(c.Args) < 1 {
				c.Err(fmt.Errorf("ADDR required"))
				return
			}
			addr, err := sh.ParseHex("ADDR", c.Args[0], 8)
			if err != nil {
				c.Err(err)
				return
			}
			sh.Do(c, func(ctx context.Context, client *cmdproto.Client) error {
				data, err := client.Read(ctx, uint8(addr))
				if err != nil {
					return err
				}
				v := Value{Addr: uint8(addr), Data: data}
				sh.Output(c, v, fmt.Sprintf("%02X=%04X", v.Addr, v.Data))
				return nil
			})
		}),
	}

	// WriteCmd writes a register.
	WriteCmd = ishell.Cmd{
		Name:    "reg.write",
		Aliases: []string{"w"},
		Help:    "ADDR(hex) DATA(hex)",
		Func: sh.MustBeConnected(func(c *ishell.Context) {
			if len(c.Args) < 2 {
				c.Err(fmt.Errorf("ADDR and DATA required"))
				return
			}
			addr, err := sh.ParseHex("ADDR", c.Args[0], 8)
			if err != nil {
				c.Err(err)
				return
			}
			data, err := sh.ParseHex("DATA", c.Args[1], 16)
			if err != nil {
				c.Err(err)
				return
			}
			sh.Do(c, func(ctx context.Context, client *cmdproto.Client) error {
				if err := client.Write(ctx, uint8(addr), uint16(data)); err != nil {
					return err
				}
				sh.Output(c, Value{Addr: uint8(addr), Data: uint16(data)}, "OK")
				return nil
			})
		}),
	}

	// IDCmd checks the board identity.
	IDCmd = ishell.Cmd{
		Name: "id",
		Help: "",
		Func: sh.MustBeConnected(func(c *ishell.Context) {
			sh.Do(c, func(ctx context.Context, client *cmdproto.Client) error {
				id, err := client.Read(ctx, sim.RegID)
				if err != nil {
					return err
				}
				if id != sim.BoardID {
					return fmt.Errorf("unexpected id %04X", id)
				}
				sh.Output(c, Value{Addr: sim.RegID, Data: id}, fmt.Sprintf("%04X", id))
				return nil
			})
		}),
	}

	// SpiXferCmd exchanges bytes through the SPI registers.
	SpiXferCmd = ishell.Cmd{
		Name:    "spi.xfer",
		Aliases: []string{"x"},
		Help:    "BYTE(hex)...",
		Func: sh.MustBeConnected(func(c *ishell.Context) {
			if len(c.Args) < 1 {
				c.Err(fmt.Errorf("BYTE required"))
				return
			}
			tx := make([]uint8, len(c.Args))
			for n, arg := range c.Args {
				val, err := sh.ParseHex("BYTE", arg, 8)
				if err != nil {
					c.Err(err)
					return
				}
				tx[n] = uint8(val)
			}
			sh.Do(c, func(ctx context.Context, client *cmdproto.Client) error {
				xfers := make([]Transfer, 0, len(tx))
				hex := make([]string, 0, len(tx))
				for _, b := range tx {
					rx, err := SpiTransfer(ctx, client, b)
					if err != nil {
						return err
					}
					xfers = append(xfers, Transfer{Tx: b, Rx: rx})
					hex = append(hex, fmt.Sprintf("%02X", rx))
				}
				sh.Output(c, xfers, strings.Join(hex, " "))
				return nil
			})
		}),
	}

	// StatsCmd reads the error counters of the board.
	StatsCmd = ishell.Cmd{
		Name: "stats",
		Help: "",
		Func: sh.MustBeConnected(func(c *ishell.Context) {
			sh.Do(c, func(ctx context.Context, client *cmdproto.Client) error {
				stats, err := ReadStats(ctx, client)
				if err != nil {
					return err
				}
				text := fmt.Sprintf("frames=%d start_errors=%d stop_errors=%d malformed=%d",
					stats.Frames, stats.StartErrors, stats.StopErrors, stats.Malformed)
				if b := sh.ShellFrom(c).Conn.Board; b != nil {
					text += "\n" + b.Reporter.Stats.String()
				}
				sh.Output(c, stats, text)
				return nil
			})
		}),
	}
)

// Stats are the counters of the board.
type Stats struct {
	Frames      uint16 `json:"frames"`
	StartErrors uint16 `json:"start_errors"`
	StopErrors  uint16 `json:"stop_errors"`
	Malformed   uint16 `json:"malformed"`
}

// ReadStats reads the counter registers.
func ReadStats(ctx context.Context, client *cmdproto.Client) (*Stats, error) {
	var stats Stats
	for _, reg := range []struct {
		addr uint8
		val  *uint16
	}{
		{sim.RegRxFrames, &stats.Frames},
		{sim.RegRxStartErrors, &stats.StartErrors},
		{sim.RegRxStopErrors, &stats.StopErrors},
		{sim.RegMalformed, &stats.Malformed},
	} {
		val, err := client.Read(ctx, reg.addr)
		if err != nil {
			return nil, fmt.Errorf("read %02X: %w", reg.addr, err)
		}
		*reg.val = val
	}
	return &stats, nil
}

// SpiTransfer writes the transmit register, waits for the transfer to
// complete and reads the byte received.
func SpiTransfer(ctx context.Context, client *cmdproto.Client, tx uint8) (uint8, error) {
	if err := client.Write(ctx, sim.RegSpiTx, uint16(tx)); err != nil {
		return 0, err
	}
	for {
		status, err := client.Read(ctx, sim.RegSpiStatus)
		if err != nil {
			return 0, err
		}
		if status&sim.SpiStatusBusy == 0 {
			break
		}
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-time.After(SpiPollInterval):
		}
	}
	rx, err := client.Read(ctx, sim.RegSpiRx)
	return uint8(rx), err
}

func init() {
	sh.AddCmds(
		&ReadCmd,
		&WriteCmd,
		&IDCmd,
		&SpiXferCmd,
		&StatsCmd,
	)
}
