package cmdproto

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type parserTestSequence struct {
	in     string
	expect ParseResult
	final  ParseResult
}

type parserTestSequenceBuilder struct {
	seq []parserTestSequence
}

func parserTestSequences() *parserTestSequenceBuilder {
	return &parserTestSequenceBuilder{}
}

func (b *parserTestSequenceBuilder) on(in string) *parserTestSequenceBuilder {
	s := parserTestSequence{in: in, expect: ParseResult{State: StateReceiving}}
	s.final = s.expect
	b.seq = append(b.seq, s)
	return b
}

func (b *parserTestSequenceBuilder) ignored(in string) *parserTestSequenceBuilder {
	s := parserTestSequence{in: in, expect: ParseResult{State: StateIdle}}
	s.final = s.expect
	b.seq = append(b.seq, s)
	return b
}

func (b *parserTestSequenceBuilder) final(pr ParseResult) *parserTestSequenceBuilder {
	b.seq[len(b.seq)-1].final = pr
	return b
}

func (b *parserTestSequenceBuilder) read(addr uint8) *parserTestSequenceBuilder {
	return b.final(ParseResult{State: StateIdle, Command: ReadCmd(addr)})
}

func (b *parserTestSequenceBuilder) write(addr uint8, data uint16) *parserTestSequenceBuilder {
	return b.final(ParseResult{State: StateIdle, Command: WriteCmd(addr, data)})
}

func (b *parserTestSequenceBuilder) dropped() *parserTestSequenceBuilder {
	return b.final(ParseResult{State: StateIdle, Err: ErrMalformed})
}

func (b *parserTestSequenceBuilder) droppedAndRestarted() *parserTestSequenceBuilder {
	return b.final(ParseResult{State: StateReceiving, Err: ErrMalformed})
}

func (b *parserTestSequenceBuilder) build() []parserTestSequence {
	return b.seq
}

func TestParser(t *testing.T) {
	testCases := []struct {
		name string
		seq  []parserTestSequence
	}{
		{
			name: "read and write",
			seq: parserTestSequences().
				on("R0A\r").read(0x0a).
				on("W0A1234\r").write(0x0a, 0x1234).
				on("Wff00fF\r").write(0xff, 0x00ff).
				build(),
		},
		{
			name: "ignore bytes between commands",
			seq: parserTestSequences().
				ignored("\n 12xr").
				on("R10\r").read(0x10).
				ignored("\n").
				build(),
		},
		{
			name: "missing terminator",
			seq: parserTestSequences().
				on("R0A1").dropped().
				on("R0B\r").read(0x0b).
				build(),
		},
		{
			name: "short address",
			seq: parserTestSequences().
				on("R1\r").dropped().
				build(),
		},
		{
			name: "short data",
			seq: parserTestSequences().
				on("W01123\r").dropped().
				on("W01ABCD\r").write(0x01, 0xabcd).
				build(),
		},
		{
			name: "long data",
			seq: parserTestSequences().
				on("W0112345").dropped().
				ignored("\r").
				build(),
		},
		{
			name: "non hex digit",
			seq: parserTestSequences().
				on("W0G").dropped().
				on("R0\x00").dropped().
				build(),
		},
		{
			name: "operation letter restarts",
			seq: parserTestSequences().
				on("W01R").droppedAndRestarted().
				on("02\r").read(0x02).
				on("R0W").droppedAndRestarted().
				on("030001\r").write(0x03, 1).
				build(),
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var parser Parser
			for n, s := range tc.seq {
				var pr ParseResult
				for i := 0; i < len(s.in); i++ {
					pr = parser.Parse(s.in[i])
					if i+1 < len(s.in) {
						require.Equalf(t, s.expect, pr, "seq[%d][%d] expect mismatch", n, i)
					}
				}
				require.Equalf(t, s.final, pr, "seq[%d] final mismatch", n)
			}
		})
	}
}

func TestParserReset(t *testing.T) {
	var parser Parser
	pr := parser.Reset()
	require.NoError(t, pr.Err)
	require.Equal(t, StateIdle, pr.State)

	parser.Parse('W')
	require.True(t, parser.State().IsReceiving())
	pr = parser.Reset()
	require.Equal(t, ErrMalformed, pr.Err)
	require.False(t, pr.State.IsReceiving())
}

func TestReplyParser(t *testing.T) {
	testCases := []struct {
		name    string
		in      string
		replies []uint16
		errs    int
	}{
		{"single", "00FF\r", []uint16{0xff}, 0},
		{"lower case", "abcd\r", []uint16{0xabcd}, 0},
		{"several", "0001\r0002\r", []uint16{1, 2}, 0},
		{"short", "001\r0002\r", []uint16{2}, 1},
		{"long", "00012\r", nil, 1},
		{"bad digit", "0x01\r1234\r", []uint16{0x1234}, 1},
		{"empty", "\r", nil, 1},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var parser ReplyParser
			var replies []uint16
			errs := 0
			for i := 0; i < len(tc.in); i++ {
				r, err := parser.Parse(tc.in[i])
				if err != nil {
					require.Equal(t, ErrMalformed, err)
					errs++
				}
				if r != nil {
					replies = append(replies, r.Data)
				}
			}
			require.Equal(t, tc.replies, replies)
			require.Equal(t, tc.errs, errs)
		})
	}
}
