package sh

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"strconv"
	"time"

	"github.com/abiosoft/ishell"
	"github.com/golang/glog"

	"github.com/robotalks/serline/pkg/cmdproto"
	"github.com/robotalks/serline/pkg/config"
)

// Shell provides ishell backed interactive shell.
type Shell struct {
	Interactive bool
	OutputJSON  bool
	AutoConnect bool
	Target      string
	Trace       bool

	Shell  *ishell.Shell
	Config *config.Config
	Conn   *Conn
}

const (
	shellKey          = "$shell"
	unconnectedPrompt = "[none] > "

	// CommandTimeout bounds a command including its retries.
	CommandTimeout = 5 * time.Second
)

var (
	// flags

	evalOnly   bool
	outputJSON bool
	target     = SimTarget
	simTrace   bool

	// commands
	commands = []*ishell.Cmd{
		&ConnectCmd,
		&DisconnectCmd,
	}
)

func init() {
	flag.BoolVar(&evalOnly, "e", evalOnly, "Evaluation only, no interactive shell.")
	flag.BoolVar(&outputJSON, "json", outputJSON, "Print output in JSON.")
	flag.StringVar(&target, "target", target, "Board to connect: sim, tcp://HOST:PORT or a serial port.")
	flag.BoolVar(&simTrace, "sim-trace", simTrace, "Capture line traces of the simulated board.")
}

// AddCmds is used by other commands providers during init func.
func AddCmds(cmds ...*ishell.Cmd) {
	commands = append(commands, cmds...)
}

// New creates a new shell.
func New(conf *config.Config) *Shell {
	s := &Shell{
		Interactive: !evalOnly,
		OutputJSON:  outputJSON,
		Target:      target,
		Trace:       simTrace,

		Shell:  ishell.New(),
		Config: conf,
	}
	s.Shell.Set(shellKey, s)
	s.Shell.SetPrompt(unconnectedPrompt)
	for _, cmd := range commands {
		s.Shell.AddCmd(cmd)
	}
	return s
}

// ShellFrom gets Shell from ishell context.
func ShellFrom(c *ishell.Context) *Shell {
	return c.Get(shellKey).(*Shell)
}

// MustBeConnected wraps command func requires a connection.
func MustBeConnected(fn func(c *ishell.Context)) func(c *ishell.Context) {
	return func(c *ishell.Context) {
		if ShellFrom(c).Conn == nil {
			c.Err(fmt.Errorf("not connected"))
			return
		}
		fn(c)
	}
}

// MustBeSim wraps command func requires a simulated board.
func MustBeSim(fn func(c *ishell.Context)) func(c *ishell.Context) {
	return MustBeConnected(func(c *ishell.Context) {
		if ShellFrom(c).Conn.Board == nil {
			c.Err(fmt.Errorf("target %q is not simulated", ShellFrom(c).Conn.Target))
			return
		}
		fn(c)
	})
}

// Do runs fn with the register client of the connection.
func Do(c *ishell.Context, fn func(ctx context.Context, client *cmdproto.Client) error) error {
	s := ShellFrom(c)
	if s.Conn == nil {
		err := fmt.Errorf("not connected")
		c.Err(err)
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), CommandTimeout)
	defer cancel()
	if err := fn(ctx, s.Conn.Client); err != nil {
		c.Err(err)
		return err
	}
	return nil
}

// Output prints v as JSON or text.
func Output(c *ishell.Context, v interface{}, text string) {
	if !ShellFrom(c).OutputJSON {
		c.Println(text)
		return
	}
	out, err := json.Marshal(v)
	if err != nil {
		c.Err(err)
		return
	}
	c.Println(string(out))
}

// ParseHex parses an argument as a hex number of at most bits.
func ParseHex(name, arg string, bits int) (uint64, error) {
	val, err := strconv.ParseUint(arg, 16, bits)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %v", name, err)
	}
	return val, nil
}

// WithAutoConnect sets AutoConnect.
func (s *Shell) WithAutoConnect(en bool) *Shell {
	s.AutoConnect = en
	return s
}

// Connect connects a target.
func (s *Shell) Connect(target string) error {
	conn, err := Dial(target, s.Config, s.Trace)
	if err != nil {
		return err
	}
	s.Disconnect()
	s.Conn = conn
	s.Shell.SetPrompt(fmt.Sprintf("%s > ", target))
	return nil
}

// Disconnect disconnects current target.
func (s *Shell) Disconnect() {
	if s.Conn != nil {
		if err := s.Conn.Close(); err != nil {
			glog.V(2).Infof("disconnect %s: %v", s.Conn.Target, err)
		}
		s.Conn = nil
		s.Shell.SetPrompt(unconnectedPrompt)
	}
}

// Run runs the shell.
func (s *Shell) Run(args ...string) {
	defer s.Disconnect()
	if s.AutoConnect && s.Target != "" {
		if s.Interactive {
			s.Shell.Printf("Connecting %s ...\n", s.Target)
		}
		if err := s.Connect(s.Target); err != nil {
			glog.Exitf("connect %q failed: %v", s.Target, err)
		}
	}

	if len(args) > 0 {
		if err := s.Shell.Process(args...); err != nil {
			glog.Exit(err)
		}
		return
	}
	if s.Interactive {
		s.Shell.Run()
		return
	}
	glog.Exit("command expected")
}

var (
	// ConnectCmd connects a target.
	ConnectCmd = ishell.Cmd{
		Name:    "connect",
		Aliases: []string{"c"},
		Help:    "sim | tcp://HOST:PORT | SERIAL-PORT",
		Func: func(c *ishell.Context) {
			s := ShellFrom(c)
			target := s.Target
			if len(c.Args) > 0 {
				target = c.Args[0]
			}
			if err := s.Connect(target); err != nil {
				c.Err(err)
			}
		},
	}

	// DisconnectCmd disconnects current target.
	DisconnectCmd = ishell.Cmd{
		Name:    "disconnect",
		Aliases: []string{"d"},
		Help:    "",
		Func: func(c *ishell.Context) {
			ShellFrom(c).Disconnect()
		},
	}
)

// Main is a helper to provide a single call in main.
func Main() {
	flag.Parse()
	conf, err := config.FromFlags()
	if err != nil {
		glog.Exit(err)
	}
	New(conf).WithAutoConnect(true).Run(flag.Args()...)
}
