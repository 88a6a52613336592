package cmdproto

// Parser parses command bytes received.
type Parser struct {
	state  parseState
	cmd    Command
	digits int
}

// ParseState indicates where the parser is in a command.
type ParseState int

const (
	// StateIdle means waiting for an operation letter.
	StateIdle ParseState = 0
	// StateReceiving means in the middle of a command.
	StateReceiving ParseState = 1
)

// IsReceiving indicates if it's in the middle of a command.
func (s ParseState) IsReceiving() bool {
	return s == StateReceiving
}

// ParseResult indicates the result after one parsing step.
type ParseResult struct {
	State   ParseState
	Command *Command
	// Err is ErrMalformed when the step dropped a partial command.
	Err error
}

type parseState int

const (
	stateOp   parseState = iota // waiting for 'R' or 'W'
	stateAddr                   // waiting for address digits
	stateData                   // waiting for data digits
	stateTerm                   // waiting for terminator
)

const (
	addrDigits = 2
	dataDigits = 4
)

// State gets the current state.
func (p *Parser) State() ParseState {
	if p.state == stateOp {
		return StateIdle
	}
	return StateReceiving
}

// Reset drops any partial command.
func (p *Parser) Reset() (pr ParseResult) {
	if p.state != stateOp {
		pr.Err = ErrMalformed
	}
	p.state = stateOp
	pr.State = p.State()
	return
}

// Parse consumes one byte.
func (p *Parser) Parse(b byte) (pr ParseResult) {
	pr.Command, pr.Err = p.parseByte(b)
	pr.State = p.State()
	return
}

func (p *Parser) parseByte(b byte) (*Command, error) {
	switch p.state {
	case stateOp:
		p.start(b)
	case stateAddr:
		v, ok := hexValue(b)
		if !ok {
			return p.drop(b)
		}
		p.cmd.Addr = (p.cmd.Addr << 4) | uint8(v)
		if p.digits++; p.digits < addrDigits {
			break
		}
		p.digits = 0
		if p.cmd.Op == OpWrite {
			p.state = stateData
		} else {
			p.state = stateTerm
		}
	case stateData:
		v, ok := hexValue(b)
		if !ok {
			return p.drop(b)
		}
		p.cmd.Data = (p.cmd.Data << 4) | v
		if p.digits++; p.digits >= dataDigits {
			p.state = stateTerm
		}
	case stateTerm:
		if b != Terminator {
			return p.drop(b)
		}
		p.state = stateOp
		cmd := p.cmd
		return &cmd, nil
	}
	return nil, nil
}

// start begins a command if b is an operation letter, anything else
// between commands is ignored.
func (p *Parser) start(b byte) bool {
	switch op := Op(b); op {
	case OpRead, OpWrite:
		p.cmd, p.digits = Command{Op: op}, 0
		p.state = stateAddr
		return true
	}
	p.state = stateOp
	return false
}

// drop discards the partial command. The offending byte may itself
// begin the next command.
func (p *Parser) drop(b byte) (*Command, error) {
	p.start(b)
	return nil, ErrMalformed
}

// ReplyParser parses read replies on the host side.
type ReplyParser struct {
	data   uint16
	digits int
}

// Parse consumes one byte, and returns a reply when complete.
// Malformed replies are dropped with ErrMalformed.
func (p *ReplyParser) Parse(b byte) (*Reply, error) {
	if b == Terminator {
		digits := p.digits
		r := &Reply{Data: p.data}
		p.data, p.digits = 0, 0
		if digits != dataDigits {
			return nil, ErrMalformed
		}
		return r, nil
	}
	v, ok := hexValue(b)
	if !ok || p.digits >= dataDigits {
		p.data, p.digits = 0, dataDigits+1
		return nil, nil
	}
	p.data = (p.data << 4) | v
	p.digits++
	return nil, nil
}
