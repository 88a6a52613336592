package cmdproto

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRegisters(t *testing.T) {
	var written []uint16
	counter := uint16(0)
	regs := NewRegisters().
		Define(0x01, 0x1111).
		DefineReadOnly(0x02, func() uint16 { counter++; return counter }).
		OnWrite(0x01, func(data uint16) error {
			written = append(written, data)
			if data == 0xdead {
				return errors.New("rejected")
			}
			return nil
		})
	require.Equal(t, []uint8{0x01, 0x02}, regs.Addrs())

	v, err := regs.ReadReg(0x01)
	require.NoError(t, err)
	require.Equal(t, uint16(0x1111), v)

	require.NoError(t, regs.WriteReg(0x01, 0x2222))
	v, _ = regs.ReadReg(0x01)
	require.Equal(t, uint16(0x2222), v)
	require.Equal(t, []uint16{0x2222}, written)

	err = regs.WriteReg(0x01, 0xdead)
	require.Error(t, err)
	require.Equal(t, []uint16{0x2222, 0xdead}, written)

	v, _ = regs.ReadReg(0x02)
	require.Equal(t, uint16(1), v)
	v, _ = regs.ReadReg(0x02)
	require.Equal(t, uint16(2), v)

	err = regs.WriteReg(0x02, 0)
	require.ErrorIs(t, err, ErrReadOnly)
	var regErr *RegisterError
	require.ErrorAs(t, err, &regErr)
	require.Equal(t, OpWrite, regErr.Op)
	require.Equal(t, uint8(0x02), regErr.Addr)
	require.Equal(t, "W 02: read-only register", err.Error())

	_, err = regs.ReadReg(0x7f)
	require.ErrorIs(t, err, ErrUnmapped)
	require.ErrorIs(t, regs.WriteReg(0x7f, 0), ErrUnmapped)
}

func consumeAll(e *Executor, s string) (replies []uint16, results []Result) {
	for i := 0; i < len(s); i++ {
		res := e.Consume(s[i])
		results = append(results, res)
		if res.Reply != nil {
			replies = append(replies, res.Reply.Data)
		}
	}
	return
}

func TestExecutor(t *testing.T) {
	regs := NewRegisters().Define(0x0a, 0x00ff).DefineReadOnly(0x00, func() uint16 { return 0x5e1f })
	e := NewExecutor(regs)

	replies, _ := consumeAll(e, "R0A\rW0ABEEF\rR0A\rR00\r")
	require.Equal(t, []uint16{0x00ff, 0xbeef, 0x5e1f}, replies)

	// unmapped reads still reply.
	replies, results := consumeAll(e, "R55\r")
	require.Equal(t, []uint16{0}, replies)
	require.ErrorIs(t, results[len(results)-1].ExecErr, ErrUnmapped)

	replies, results = consumeAll(e, "W001234\r")
	require.Empty(t, replies)
	require.ErrorIs(t, results[len(results)-1].ExecErr, ErrReadOnly)

	replies, _ = consumeAll(e, "R0\rW0A12\rR0A\r")
	require.Equal(t, []uint16{0xbeef}, replies)

	require.Equal(t, ExecStats{Reads: 5, Writes: 2, Failures: 2, Malformed: 2}, e.Stats())
}
