package cmdproto

import (
	"github.com/golang/glog"
)

// ExecStats counts executed commands.
type ExecStats struct {
	Reads     uint64
	Writes    uint64
	Failures  uint64
	Malformed uint64
}

// Executor consumes the byte stream of a device: it parses commands
// and applies them to a RegisterFile.
type Executor struct {
	Registers RegisterFile

	parser Parser
	stats  ExecStats
}

// Result is the outcome of consuming one byte.
type Result struct {
	ParseResult
	// Reply is set for reads. Reads of unmapped registers reply 0 so
	// the host is never left waiting.
	Reply *Reply
	// ExecErr is the register access failure, if any.
	ExecErr error
}

// NewExecutor creates an Executor.
func NewExecutor(regs RegisterFile) *Executor {
	return &Executor{Registers: regs}
}

// Stats returns the counters.
func (e *Executor) Stats() ExecStats {
	return e.stats
}

// Consume feeds one received byte.
func (e *Executor) Consume(b byte) (res Result) {
	res.ParseResult = e.parser.Parse(b)
	if res.Err != nil {
		e.stats.Malformed++
		glog.Warningf("dropped command at %q: %v", b, res.Err)
	}
	if res.Command != nil {
		res.Reply, res.ExecErr = e.Execute(res.Command)
	}
	return
}

// Execute applies a command.
func (e *Executor) Execute(cmd *Command) (*Reply, error) {
	switch cmd.Op {
	case OpRead:
		e.stats.Reads++
		data, err := e.Registers.ReadReg(cmd.Addr)
		if err != nil {
			e.stats.Failures++
			glog.Warningf("exec %s: %v", cmd, err)
		} else {
			glog.V(2).Infof("exec %s = %04X", cmd, data)
		}
		return &Reply{Data: data}, err
	case OpWrite:
		e.stats.Writes++
		err := e.Registers.WriteReg(cmd.Addr, cmd.Data)
		if err != nil {
			e.stats.Failures++
			glog.Warningf("exec %s: %v", cmd, err)
		} else {
			glog.V(2).Infof("exec %s", cmd)
		}
		return nil, err
	}
	return nil, ErrMalformed
}
