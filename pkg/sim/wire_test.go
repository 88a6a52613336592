package sim

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	fx "github.com/robotalks/serline/pkg/framework"
	"github.com/robotalks/serline/pkg/line"
)

// drive runs a loop where a controller drives the wire with levels[tick]
// and another one reads it, returning what was read.
func drive(t *testing.T, w *Wire, levels string, readFirst bool) string {
	l := fx.NewLoop()
	var got strings.Builder
	writer := fx.ControlFunc(func(cc fx.ControlContext) error {
		w.Drive(line.LevelOf(levels[cc.Tick()] == '1'))
		return nil
	})
	reader := fx.ControlFunc(func(cc fx.ControlContext) error {
		got.WriteString(w.Level().String())
		return nil
	})
	l.Add(w)
	if readFirst {
		l.AddController(fx.PrLvControl, reader, writer)
	} else {
		l.AddController(fx.PrLvControl, writer, reader)
	}
	require.NoError(t, l.RunTicks(context.Background(), uint64(len(levels))))
	return got.String()
}

func TestWireDelay(t *testing.T) {
	for _, readFirst := range []bool{true, false} {
		w := NewWire("rx", line.High)
		assert.Equal(t, "11001101", drive(t, w, "10011010", readFirst))
	}
}

func TestWireGlitch(t *testing.T) {
	w := NewWire("rx", line.High)
	w.Glitcher = GlitchAtTicks(2, 5)
	assert.Equal(t, "11011011", drive(t, w, "11111111", true))
	assert.EqualValues(t, 2, w.Glitches())
}

func TestRandomGlitcher(t *testing.T) {
	g := NewRandomGlitcher(1, 0.5, 10)
	var last uint64
	var count int
	for tick := uint64(0); tick < 10000; tick++ {
		if g.Glitch(tick) {
			if count > 0 {
				assert.True(t, tick-last >= 10, "glitches at %d and %d", last, tick)
			}
			last = tick
			count++
		}
	}
	assert.True(t, count > 500)

	again := NewRandomGlitcher(1, 0.5, 10)
	g = NewRandomGlitcher(1, 0.5, 10)
	for tick := uint64(0); tick < 1000; tick++ {
		require.Equal(t, g.Glitch(tick), again.Glitch(tick))
	}
}

func TestProbe(t *testing.T) {
	w := NewWire("rx", line.High)
	p := NewProbe(w)
	drive(t, w, "10011010", true)
	assert.Equal(t, []Sample{
		{Tick: 2, Level: line.Low},
		{Tick: 4, Level: line.High},
		{Tick: 6, Level: line.Low},
		{Tick: 7, Level: line.High},
	}, p.Edges)
	for tick, c := range "11001101" {
		assert.Equal(t, line.LevelOf(c == '1'), p.LevelAt(uint64(tick)), "tick %d", tick)
	}
	assert.Len(t, p.EdgesBetween(3, 7), 2)
	p.Reset(line.Low)
	assert.Empty(t, p.Edges)
	assert.Equal(t, line.Low, p.LevelAt(100))
}

func sampleTrace() *Trace {
	tr := NewTrace(
		&Probe{Name: "rx", Initial: line.High, Edges: []Sample{{3, line.Low}, {19, line.High}}},
		&Probe{Name: "sclk", Initial: line.Low, Edges: []Sample{{5, line.High}}},
	)
	tr.Ticks, tr.TickHz = 40, 50000000
	return tr
}

func TestTraceCBOR(t *testing.T) {
	tr := sampleTrace()
	var buf bytes.Buffer
	require.NoError(t, tr.WriteCBOR(&buf))
	decoded, err := ReadCBOR(&buf)
	require.NoError(t, err)
	assert.Equal(t, tr, decoded)
	assert.Equal(t, line.High, decoded.Probe("sclk").LevelAt(5))
	assert.Nil(t, decoded.Probe("miso"))
}

func TestTraceJSONLines(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, sampleTrace().WriteJSONLines(&buf))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 4)
	var header map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &header))
	assert.EqualValues(t, 40, header["ticks"])
	assert.Equal(t, `{"probe":"rx","t":3,"l":0}`, lines[1])
	assert.Equal(t, `{"probe":"sclk","t":5,"l":1}`, lines[2])
	assert.Equal(t, `{"probe":"rx","t":19,"l":1}`, lines[3])
}

func TestTraceFile(t *testing.T) {
	dir := t.TempDir()
	tr := sampleTrace()
	fn := filepath.Join(dir, "run.cbor")
	require.NoError(t, tr.WriteFile(fn))
	loaded, err := ReadFile(fn)
	require.NoError(t, err)
	assert.Equal(t, tr, loaded)

	require.NoError(t, tr.WriteFile(filepath.Join(dir, "run.jsonl")))
	assert.ErrorIs(t, tr.WriteFile(filepath.Join(dir, "run.txt")), ErrTraceFormat)
}
