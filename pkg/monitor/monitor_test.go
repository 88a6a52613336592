package monitor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang/protobuf/proto"
	structpb "github.com/golang/protobuf/ptypes/struct"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robotalks/serline/pkg/comm"
	fx "github.com/robotalks/serline/pkg/framework"
)

func TestEncodeDecode(t *testing.T) {
	events := []*Event{
		{Tick: 4321, Source: "bench", Kind: KindUartRx, Data: 'R'},
		{Tick: 1 << 40, Kind: KindSpiTransfer, Data: SpiData(0xAB, 0x3C)},
		{Tick: 7, Kind: KindCmdExec, Addr: 0x10, Data: 0xBEEF},
		{Tick: 9, Kind: KindCmdExec, Addr: 0x7F, Err: "unmapped register"},
		{Kind: KindUartStopBitError},
	}
	for _, ev := range events {
		pkt, err := Encode(ev)
		require.NoError(t, err)
		decoded, err := Decode(pkt)
		require.NoError(t, err)
		assert.Equal(t, ev, decoded)
	}
}

func TestDecodeRejects(t *testing.T) {
	pkt, err := proto.Marshal(&structpb.Struct{Fields: map[string]*structpb.Value{
		"tick": numberValue(1),
	}})
	require.NoError(t, err)
	_, err = Decode(pkt)
	assert.True(t, errors.Is(err, ErrBadEvent))

	_, err = Decode([]byte{0xff, 0xff})
	assert.Error(t, err)
}

func TestEventString(t *testing.T) {
	assert.Equal(t, "5 uart.rx 41 'A'", (&Event{Tick: 5, Kind: KindUartRx, Data: 'A'}).String())
	assert.Equal(t, "b 6 spi.transfer tx=AB rx=3C",
		(&Event{Tick: 6, Source: "b", Kind: KindSpiTransfer, Data: SpiData(0xAB, 0x3C)}).String())
	assert.Equal(t, "1 cmd.exec 7F=0000: unmapped register",
		(&Event{Tick: 1, Kind: KindCmdExec, Addr: 0x7F, Err: "unmapped register"}).String())
	assert.Equal(t, "2 uart.stop_bit_error", (&Event{Tick: 2, Kind: KindUartStopBitError}).String())
}

func TestStats(t *testing.T) {
	s := NewStats()
	s.Add(&Event{Kind: KindUartRx})
	s.Add(&Event{Kind: KindUartRx})
	s.Add(&Event{Kind: KindUartStartBitError})
	s.Add(&Event{Kind: KindCmdMalformed})
	assert.EqualValues(t, 2, s.Count(KindUartRx))
	assert.EqualValues(t, 0, s.Count(KindSpiTransfer))
	assert.EqualValues(t, 2, s.Errors())
	assert.Contains(t, s.String(), "uart.rx                2")
	s.Reset()
	assert.Empty(t, s.Snapshot())
}

func TestReporterInLoop(t *testing.T) {
	r := NewReporter("bench")
	var seen []*Event
	r.Observe(func(ev *Event) { seen = append(seen, ev) })

	l := fx.NewLoop()
	l.AddController(fx.PrLvControl, fx.ControlFunc(func(cc fx.ControlContext) error {
		if cc.Tick()%2 == 1 {
			Emit(cc, &Event{Kind: KindUartRx, Data: uint16(cc.Tick())})
		}
		return nil
	}))
	l.Add(r)
	require.NoError(t, l.RunTicks(context.Background(), 6))

	require.Len(t, seen, 3)
	for n, ev := range seen {
		assert.EqualValues(t, 2*n+1, ev.Tick)
		assert.EqualValues(t, ev.Tick, ev.Data)
		assert.Equal(t, "bench", ev.Source)
	}
	assert.EqualValues(t, 3, r.Stats.Count(KindUartRx))
	assert.Zero(t, r.Dropped())
}

func TestReporterSinks(t *testing.T) {
	r := NewReporter("bench")
	ch := comm.NewChan(4)
	detach := r.Attach(ch)
	failing := comm.PacketWriterFunc(func([]byte) error { return errors.New("offline") })
	r.AddSink(failing)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	r.Report(&Event{Tick: 3, Kind: KindUartTx, Data: 'W'})
	select {
	case pkt := <-ch:
		ev, err := Decode(pkt)
		require.NoError(t, err)
		assert.Equal(t, &Event{Tick: 3, Source: "bench", Kind: KindUartTx, Data: 'W'}, ev)
	case <-time.After(time.Second):
		t.Fatal("event not published")
	}

	detach()
	cancel()
	assert.Equal(t, context.Canceled, <-done)
}

func TestReporterDropsWhenFull(t *testing.T) {
	r := NewReporter("")
	r.AddSink(comm.NewChan(1))
	for n := 0; n < DefaultQueueSize+5; n++ {
		r.Report(&Event{Kind: KindUartRx})
	}
	assert.EqualValues(t, 5, r.Dropped())
	assert.EqualValues(t, DefaultQueueSize+5, r.Stats.Count(KindUartRx))
}

func TestSubscriber(t *testing.T) {
	ch := comm.NewChan(8)
	for _, ev := range []*Event{
		{Tick: 1, Kind: KindUartRx, Data: 'R'},
		{Tick: 2, Kind: KindCmdMalformed},
	} {
		pkt, err := Encode(ev)
		require.NoError(t, err)
		require.NoError(t, ch.WritePacket(pkt))
	}
	require.NoError(t, ch.WritePacket([]byte{0xff, 0xff}))
	close(ch)

	var got []Kind
	s := NewSubscriber(ch, func(ev *Event) { got = append(got, ev.Kind) })
	require.NoError(t, s.Run(context.Background()))
	assert.Equal(t, []Kind{KindUartRx, KindCmdMalformed}, got)
}

func TestDefaultSource(t *testing.T) {
	assert.NotEmpty(t, DefaultSource())
}
