package sim

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	fx "github.com/robotalks/serline/pkg/framework"
	"github.com/robotalks/serline/pkg/monitor"
	"github.com/robotalks/serline/pkg/spi"
	"github.com/robotalks/serline/pkg/uart"
)

func allBytes() []byte {
	data := make([]byte, 256)
	for n := range data {
		data[n] = byte(n)
	}
	return data
}

func runUart(t *testing.T, link *UartLink, data []byte) (*monitor.Reporter, []byte) {
	r := monitor.NewReporter("test")
	l := fx.NewLoop().Add(link, r)
	link.Send(data...)
	txCfg := link.Tx.Config()
	limit := uint64(len(data)+2) * uint64(txCfg.FrameTicks()+1)
	l.Step(context.Background())
	require.True(t, l.RunUntil(context.Background(), limit, link.Idle), "link never idles")
	return r, link.TakeReceived()
}

func TestUartLink(t *testing.T) {
	for _, ticks := range []int{8, 16, 434} {
		t.Run(fmt.Sprintf("T=%d", ticks), func(t *testing.T) {
			link, err := NewUartLink("rx", uart.Oversampled(ticks))
			require.NoError(t, err)
			link.ReportSend, link.ReportReceive = true, true
			r, got := runUart(t, link, allBytes())
			assert.Equal(t, allBytes(), got)
			assert.EqualValues(t, 256, r.Stats.Count(monitor.KindUartTx))
			assert.EqualValues(t, 256, r.Stats.Count(monitor.KindUartRx))
			assert.Zero(t, r.Stats.Errors())
			assert.EqualValues(t, 256, link.Tx.Sent())
		})
	}
}

func TestUartLinkGlitches(t *testing.T) {
	link, err := NewUartLink("rx", uart.Oversampled(16))
	require.NoError(t, err)
	link.Wire.Glitcher = NewRandomGlitcher(42, 0.02, 32)
	link.ReportReceive = true
	r, got := runUart(t, link, allBytes())
	assert.Equal(t, allBytes(), got)
	assert.Zero(t, r.Stats.Errors())
	assert.True(t, link.Wire.Glitches() > 100)
}

func TestUartLinkOnReceive(t *testing.T) {
	link, err := NewUartLink("rx", uart.Oversampled(8))
	require.NoError(t, err)
	var ticks []uint64
	var got []byte
	link.OnReceive = func(cc fx.ControlContext, b byte) {
		ticks = append(ticks, cc.Tick())
		got = append(got, b)
	}
	_, rest := runUart(t, link, []byte("R0A\r"))
	assert.Empty(t, rest)
	assert.Equal(t, []byte("R0A\r"), got)
	require.Len(t, ticks, 4)
	// back to back frames are one frame plus the done tick apart.
	for n := 1; n < len(ticks); n++ {
		assert.EqualValues(t, 10*8+1, ticks[n]-ticks[n-1])
	}
}

func runSpi(t *testing.T, link *SpiLink, data []byte) (tx, rx []byte) {
	l := fx.NewLoop().Add(link)
	link.OnTransfer = func(_ fx.ControlContext, sent, received byte) {
		tx, rx = append(tx, sent), append(rx, received)
	}
	link.Transfer(data...)
	masterCfg := link.Master.Config()
	limit := uint64(len(data)+1) * uint64(masterCfg.TransactionTicks()+4)
	l.Step(context.Background())
	require.True(t, l.RunUntil(context.Background(), limit, link.Idle), "bus never idles")
	return
}

func TestSpiLinkLoopback(t *testing.T) {
	for _, mode := range []spi.Mode{spi.Mode0, spi.Mode1, spi.Mode2, spi.Mode3} {
		t.Run(mode.String(), func(t *testing.T) {
			link, err := NewSpiLink(&spi.Config{HalfPeriod: 4, Mode: mode, DataBits: 8}, nil)
			require.NoError(t, err)
			tx, rx := runSpi(t, link, allBytes())
			assert.Equal(t, allBytes(), tx)
			assert.Equal(t, allBytes(), rx)
			assert.Equal(t, byte(0xff), link.Last())
			assert.False(t, link.Busy())
		})
	}
}

func TestSpiLinkSlave(t *testing.T) {
	for _, mode := range []spi.Mode{spi.Mode0, spi.Mode1, spi.Mode2, spi.Mode3} {
		t.Run(mode.String(), func(t *testing.T) {
			conf := &spi.Config{HalfPeriod: 7, Mode: mode, DataBits: 8}
			slave, err := spi.NewSlave(conf, 0x42)
			require.NoError(t, err)
			slave.Responder = spi.Echo
			link, err := NewSpiLink(conf, slave)
			require.NoError(t, err)
			_, rx := runSpi(t, link, []byte{0xAB, 0x3C, 0x00})
			assert.Equal(t, []byte{0x42, 0xAB, 0x3C}, rx)
		})
	}
}

func TestSpiLinkIdleLines(t *testing.T) {
	link, err := NewSpiLink(&spi.Config{HalfPeriod: 4, Mode: spi.Mode3, DataBits: 8}, nil)
	require.NoError(t, err)
	probes := make(map[string]*Probe)
	for _, w := range link.Wires() {
		probes[w.Name] = NewProbe(w)
	}
	runSpi(t, link, []byte{0x96})
	sclk := probes["sclk"]
	assert.True(t, sclk.Initial.IsHigh())
	assert.Len(t, sclk.Edges, 16)
	cs := probes["cs_n"]
	require.Len(t, cs.Edges, 2)
	assert.False(t, cs.Edges[0].Level.IsHigh())
	assert.True(t, cs.Edges[0].Tick < sclk.Edges[0].Tick)
	assert.True(t, cs.Edges[1].Tick > sclk.Edges[15].Tick)
}
