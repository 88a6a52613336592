package board

import (
	"fmt"
	"strconv"
	"time"

	"github.com/abiosoft/ishell"

	"github.com/robotalks/serline/pkg/cli/sh"
	"github.com/robotalks/serline/pkg/sim"
)

// Glitch defaults.
const (
	DefaultGlitchMinGap = 32
	DefaultGlitchSeed   = 1
)

// UnquoteArgs joins arguments with spaces and expands Go escapes,
// e.g. `R00\r`.
func UnquoteArgs(args []string) ([]byte, error) {
	var text string
	for n, arg := range args {
		if n > 0 {
			text += " "
		}
		text += arg
	}
	s, err := strconv.Unquote(`"` + text + `"`)
	if err != nil {
		return nil, fmt.Errorf("invalid TEXT: %v", err)
	}
	return []byte(s), nil
}

var (
	// UartSendCmd sends raw bytes on the UART.
	UartSendCmd = ishell.Cmd{
		Name:    "uart.send",
		Aliases: []string{"send"},
		Help:    `TEXT, Go escapes allowed, e.g. R00\r`,
		Func: sh.MustBeConnected(func(c *ishell.Context) {
			if len(c.Args) < 1 {
				c.Err(fmt.Errorf("TEXT required"))
				return
			}
			data, err := UnquoteArgs(c.Args)
			if err != nil {
				c.Err(err)
				return
			}
			if _, err := sh.ShellFrom(c).Conn.Write(data); err != nil {
				c.Err(err)
				return
			}
			sh.Output(c, map[string]int{"sent": len(data)}, "OK")
		}),
	}

	// RunCmd keeps the simulated board running.
	RunCmd = ishell.Cmd{
		Name: "run",
		Help: "TICKS",
		Func: sh.MustBeSim(func(c *ishell.Context) {
			if len(c.Args) < 1 {
				c.Err(fmt.Errorf("TICKS required"))
				return
			}
			n, err := strconv.ParseUint(c.Args[0], 10, 64)
			if err != nil {
				c.Err(fmt.Errorf("invalid TICKS: %v", err))
				return
			}
			sh.ShellFrom(c).Conn.Board.Post(&sim.RunTicks{N: n})
			sh.Output(c, map[string]uint64{"ticks": n}, "OK")
		}),
	}

	// GlitchCmd injects random glitches on the host to board line.
	GlitchCmd = ishell.Cmd{
		Name: "glitch",
		Help: "RATE [MIN-GAP(ticks)] [SEED] | off",
		Func: sh.MustBeSim(func(c *ishell.Context) {
			if len(c.Args) < 1 {
				c.Err(fmt.Errorf("RATE required"))
				return
			}
			board := sh.ShellFrom(c).Conn.Board
			if c.Args[0] == "off" {
				board.Post(&sim.SetGlitcher{})
				sh.Output(c, map[string]float64{"rate": 0}, "OK")
				return
			}
			rate, err := strconv.ParseFloat(c.Args[0], 64)
			if err != nil || rate < 0 || rate > 1 {
				c.Err(fmt.Errorf("invalid RATE %q", c.Args[0]))
				return
			}
			minGap, seed := uint64(DefaultGlitchMinGap), int64(DefaultGlitchSeed)
			if len(c.Args) > 1 {
				if minGap, err = strconv.ParseUint(c.Args[1], 10, 64); err != nil {
					c.Err(fmt.Errorf("invalid MIN-GAP: %v", err))
					return
				}
			}
			if len(c.Args) > 2 {
				if seed, err = strconv.ParseInt(c.Args[2], 10, 64); err != nil {
					c.Err(fmt.Errorf("invalid SEED: %v", err))
					return
				}
			}
			board.Post(&sim.SetGlitcher{Glitcher: sim.NewRandomGlitcher(seed, rate, minGap)})
			sh.Output(c, map[string]float64{"rate": rate}, "OK")
		}),
	}

	// TraceCmd saves the lines captured so far.
	TraceCmd = ishell.Cmd{
		Name: "trace",
		Help: "FILE(.cbor|.jsonl|.json)",
		Func: sh.MustBeSim(func(c *ishell.Context) {
			if len(c.Args) < 1 {
				c.Err(fmt.Errorf("FILE required"))
				return
			}
			s := sh.ShellFrom(c)
			ch := make(chan *sim.Trace, 1)
			s.Conn.Board.Post(&sim.TakeTrace{Reply: ch})
			var tr *sim.Trace
			select {
			case tr = <-ch:
			case <-time.After(sh.CommandTimeout):
				c.Err(fmt.Errorf("board not responding"))
				return
			}
			if tr == nil {
				c.Err(fmt.Errorf("tracing disabled, restart with -sim-trace"))
				return
			}
			tr.TickHz = s.Config.TickHz()
			if err := tr.WriteFile(c.Args[0]); err != nil {
				c.Err(err)
				return
			}
			sh.Output(c, map[string]uint64{"ticks": tr.Ticks}, fmt.Sprintf("%d ticks saved", tr.Ticks))
		}),
	}
)

func init() {
	sh.AddCmds(
		&UartSendCmd,
		&RunCmd,
		&GlitchCmd,
		&TraceCmd,
	)
}
