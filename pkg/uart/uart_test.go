package uart

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/serline/pkg/line"
)

type wave []line.Level

func idleWave(n int) wave {
	w := make(wave, n)
	for i := range w {
		w[i] = line.High
	}
	return w
}

func hold(l line.Level, n int) wave {
	w := make(wave, n)
	for i := range w {
		w[i] = l
	}
	return w
}

// frameWave builds a frame by hand so the stop bit can be forced.
func frameWave(c *Config, data byte, stop line.Level) wave {
	w := hold(line.Low, c.TicksPerBit)
	for n := 0; n < c.DataBits; n++ {
		w = append(w, hold(line.Bit(uint(data), uint(n)), c.TicksPerBit)...)
	}
	return append(w, hold(stop, c.TicksPerBit)...)
}

type rxResult struct {
	bytes          []byte
	startBitErrors int
	stopBitErrors  int
	states         []RxState
}

func feed(r *Receiver, w wave) (res rxResult) {
	for _, l := range w {
		out := r.Tick(l)
		res.states = append(res.states, out.State)
		if out.Valid {
			res.bytes = append(res.bytes, out.Data)
		}
		if out.StartBitError {
			res.startBitErrors++
		}
		if out.StopBitError {
			res.stopBitErrors++
		}
	}
	return
}

// transmit runs the transmitter for one byte and returns the line.
func transmit(t *testing.T, tx *Transmitter, data byte) wave {
	var w wave
	out := tx.Tick(TxInput{Data: data, Valid: true})
	w = append(w, out.Line)
	for !out.Done {
		out = tx.Tick(TxInput{})
		w = append(w, out.Line)
		require.True(t, len(w) < 100000, "transmitter never completes")
	}
	return w
}

func mustReceiver(t *testing.T, c *Config) *Receiver {
	r, err := NewReceiver(c)
	require.NoError(t, err)
	return r
}

func mustTransmitter(t *testing.T, c *Config) *Transmitter {
	tx, err := NewTransmitter(c)
	require.NoError(t, err)
	return tx
}

func TestConfig(t *testing.T) {
	require.Equal(t, 434, BitPeriod(50000000, 115200))
	require.Equal(t, 16, Oversampled(16).TicksPerBit)
	require.Equal(t, 434, NewConfig(50000000, 115200).TicksPerBit)
	require.Equal(t, 0, BitPeriod(1, 0))

	c := Oversampled(16)
	require.Equal(t, 10, c.FrameBits())
	require.Equal(t, 160, c.FrameTicks())
	require.Equal(t, 9*16, c.RecoveryTicks())
	require.Equal(t, 3*16, Oversampled(16).WithRecoveryBits(3).RecoveryTicks())

	testCases := []struct {
		name string
		conf *Config
		err  error
	}{
		{"valid", Oversampled(16), nil},
		{"short bit", Oversampled(3), ErrBitPeriod},
		{"too many data bits", Oversampled(16).WithDataBits(9), ErrDataBits},
		{"too few data bits", Oversampled(16).WithDataBits(4), ErrDataBits},
		{"negative recovery", Oversampled(16).WithRecoveryBits(-1), ErrRecoveryBits},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.conf.Validate()
			if tc.err == nil {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, tc.err)
			_, err = NewReceiver(tc.conf)
			require.ErrorIs(t, err, tc.err)
			_, err = NewTransmitter(tc.conf)
			require.ErrorIs(t, err, tc.err)
		})
	}
}

func TestTransmitterFrame(t *testing.T) {
	c := Oversampled(16)
	tx := mustTransmitter(t, c)
	require.True(t, tx.Ready())
	require.Equal(t, line.High, tx.Tick(TxInput{}).Line)

	w := transmit(t, tx, 0xA5)
	require.Len(t, w, c.FrameTicks()+1)
	require.Equal(t, frameWave(c, 0xA5, line.High), w[:c.FrameTicks()])
	// done tick keeps the line idle.
	require.Equal(t, line.High, w[c.FrameTicks()])
	require.Equal(t, uint64(1), tx.Sent())
	require.True(t, tx.Ready())

	out := tx.Tick(TxInput{})
	require.Equal(t, TxIdle, out.State)
	require.False(t, out.Done)
	require.Equal(t, line.High, out.Line)
}

func TestTransmitterIgnoresSubmitWhileSending(t *testing.T) {
	c := Oversampled(16)
	tx := mustTransmitter(t, c)
	var w wave
	out := tx.Tick(TxInput{Data: 0x0F, Valid: true})
	w = append(w, out.Line)
	dones := 0
	for i := 0; i < c.FrameTicks()+20; i++ {
		// keep submitting another byte while busy.
		out = tx.Tick(TxInput{Data: 0xF0, Valid: out.Busy})
		w = append(w, out.Line)
		if out.Done {
			dones++
		}
	}
	require.Equal(t, 1, dones)
	require.Equal(t, frameWave(c, 0x0F, line.High), w[:c.FrameTicks()])
	require.Equal(t, idleWave(20), w[c.FrameTicks()+1:])
}

func TestTransmitterDataBits(t *testing.T) {
	c := Oversampled(8).WithDataBits(7)
	tx := mustTransmitter(t, c)
	w := transmit(t, tx, 0xFF)
	require.Len(t, w, 9*8+1)
	// bit 7 is dropped, stop bit follows bit 6.
	require.Equal(t, frameWave(c, 0x7F, line.High), w[:9*8])
}

func edgesOf(w wave) []int {
	var edges []int
	for n := 1; n < len(w); n++ {
		if w[n] != w[n-1] {
			edges = append(edges, n)
		}
	}
	return edges
}

func TestTransmitterTiming0x55(t *testing.T) {
	c := NewConfig(50000000, 115200)
	require.Equal(t, 434, c.TicksPerBit)
	tx := mustTransmitter(t, c)
	w := append(idleWave(10), transmit(t, tx, 0x55)...)
	w = append(w, idleWave(10)...)

	edges := edgesOf(w)
	// idle->start, start->d0, 7 between data bits, d7->stop.
	require.Len(t, edges, 10)
	for n := 1; n < len(edges); n++ {
		require.InDelta(t, 434, edges[n]-edges[n-1], 434*0.01)
	}
	dataStart := edges[0] + c.TicksPerBit
	dataEnd := edges[0] + (c.DataBits+1)*c.TicksPerBit
	inData := 0
	for _, e := range edges {
		if e > dataStart && e < dataEnd {
			inData++
		}
	}
	require.Equal(t, 7, inData)
}

func TestRoundTrip(t *testing.T) {
	configs := []*Config{
		Oversampled(16),
		Oversampled(8),
		NewConfig(50000000, 115200),
	}
	for _, c := range configs {
		t.Run(fmt.Sprintf("%d ticks/bit", c.TicksPerBit), func(t *testing.T) {
			tx, rx := mustTransmitter(t, c), mustReceiver(t, c)
			var w wave
			for b := 0; b < 256; b++ {
				w = append(w, transmit(t, tx, byte(b))...)
			}
			w = append(w, idleWave(c.TicksPerBit)...)
			res := feed(rx, w)
			require.Zero(t, res.startBitErrors)
			require.Zero(t, res.stopBitErrors)
			require.Len(t, res.bytes, 256)
			for b := 0; b < 256; b++ {
				require.Equal(t, byte(b), res.bytes[b])
			}
			require.Equal(t, uint64(256), rx.Stats().Frames)
		})
	}
}

func TestBackToBackFrames(t *testing.T) {
	c := Oversampled(16)
	tx, rx := mustTransmitter(t, c), mustReceiver(t, c)
	data := []byte("R0A\r")
	var got []byte
	pending := data
	in := TxInput{Data: pending[0], Valid: true}
	pending = pending[1:]
	for i := 0; i < len(data)*(c.FrameTicks()+1)+c.FrameTicks(); i++ {
		out := tx.Tick(in)
		in = TxInput{}
		if out.Done && len(pending) > 0 {
			in = TxInput{Data: pending[0], Valid: true}
			pending = pending[1:]
		}
		if rxOut := rx.Tick(out.Line); rxOut.Valid {
			got = append(got, rxOut.Data)
		}
	}
	require.Equal(t, data, got)
}

func TestGlitchImmunity(t *testing.T) {
	c := Oversampled(16)
	clean := append(idleWave(32), frameWave(c, 0x5A, line.High)...)
	clean = append(clean, idleWave(32)...)
	for pos := range clean {
		t.Run(fmt.Sprintf("glitch@%d", pos), func(t *testing.T) {
			w := append(wave(nil), clean...)
			w[pos] = w[pos].Invert()
			res := feed(mustReceiver(t, c), w)
			require.Equal(t, []byte{0x5A}, res.bytes)
			require.Zero(t, res.startBitErrors)
			require.Zero(t, res.stopBitErrors)
		})
	}
}

func TestStartBitRejection(t *testing.T) {
	c := Oversampled(16)
	rx := mustReceiver(t, c)

	// line returns high well before the start bit sample point.
	w := append(idleWave(20), hold(line.Low, 5)...)
	w = append(w, idleWave(40)...)
	res := feed(rx, w)
	require.Equal(t, 1, res.startBitErrors)
	require.Empty(t, res.bytes)
	require.Equal(t, RxErrorRecovery, rx.State())

	// falling edges during the lockout are ignored.
	res = feed(rx, append(hold(line.Low, 20), idleWave(20)...))
	require.Zero(t, res.startBitErrors)
	require.Empty(t, res.bytes)
	require.Equal(t, RxErrorRecovery, rx.State())

	res = feed(rx, idleWave(c.RecoveryTicks()))
	require.Equal(t, RxIdle, rx.State())

	res = feed(rx, append(frameWave(c, 0xC3, line.High), idleWave(16)...))
	require.Equal(t, []byte{0xC3}, res.bytes)
	require.Zero(t, res.startBitErrors)
	require.Equal(t, RxStats{Frames: 1, StartBitErrors: 1}, rx.Stats())
}

func TestRecoveryWindow(t *testing.T) {
	testCases := []struct {
		name string
		conf *Config
	}{
		{"default", Oversampled(16)},
		{"short", Oversampled(16).WithRecoveryBits(2)},
		{"seven data bits", Oversampled(8).WithDataBits(7)},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			rx := mustReceiver(t, tc.conf)
			w := append(idleWave(10), hold(line.Low, 3)...)
			w = append(w, idleWave(tc.conf.RecoveryTicks()+tc.conf.FrameTicks())...)
			res := feed(rx, w)
			require.Equal(t, 1, res.startBitErrors)
			recovery := 0
			for _, s := range res.states {
				if s == RxErrorRecovery {
					recovery++
				}
			}
			require.Equal(t, tc.conf.RecoveryTicks(), recovery)
		})
	}
}

func TestStopBitRejection(t *testing.T) {
	c := Oversampled(16)
	rx := mustReceiver(t, c)
	w := append(idleWave(16), frameWave(c, 0x81, line.Low)...)
	w = append(w, idleWave(2*c.TicksPerBit)...)
	res := feed(rx, w)
	require.Equal(t, 1, res.stopBitErrors)
	require.Empty(t, res.bytes)
	// no lockout after a stop bit error.
	require.Equal(t, RxIdle, rx.State())

	res = feed(rx, append(frameWave(c, 0x3C, line.High), idleWave(16)...))
	require.Equal(t, []byte{0x3C}, res.bytes)
	require.Zero(t, res.stopBitErrors)
	require.Zero(t, res.startBitErrors)
}

func TestReceiverStates(t *testing.T) {
	c := Oversampled(16)
	rx := mustReceiver(t, c)
	res := feed(rx, append(idleWave(8), frameWave(c, 0x00, line.High)...))
	seen := make(map[RxState]bool)
	for _, s := range res.states {
		seen[s] = true
	}
	for _, s := range []RxState{RxIdle, RxStartBit, RxDataBits, RxStopBit, RxValid} {
		require.True(t, seen[s], s.String())
	}
	require.Equal(t, []byte{0}, res.bytes)
	require.Equal(t, "ErrorRecovery", RxErrorRecovery.String())
	require.Equal(t, "Unknown", RxState(99).String())
}

func TestMajority(t *testing.T) {
	for samples := uint8(0); samples < 8; samples++ {
		ones := 0
		for n := uint(0); n < 3; n++ {
			ones += int((samples >> n) & 1)
		}
		require.Equal(t, line.LevelOf(ones >= 2), majority(samples))
	}
}
