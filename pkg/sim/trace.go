package sim

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/fxamacker/cbor/v2"
)

// ErrTraceFormat indicates an unknown trace file extension.
var ErrTraceFormat = errors.New("unknown trace format")

// Trace is a set of probes captured from a run.
type Trace struct {
	// Ticks is the length of the run.
	Ticks uint64 `json:"ticks" cbor:"ticks"`
	// TickHz is the rate of the tick if known.
	TickHz int64    `json:"tick_hz,omitempty" cbor:"tick_hz,omitempty"`
	Probes []*Probe `json:"probes" cbor:"probes"`
}

// NewTrace creates a Trace.
func NewTrace(probes ...*Probe) *Trace {
	return &Trace{Probes: probes}
}

// Probe finds a probe by name.
func (t *Trace) Probe(name string) *Probe {
	for _, p := range t.Probes {
		if p.Name == name {
			return p
		}
	}
	return nil
}

// WriteCBOR encodes the trace.
func (t *Trace) WriteCBOR(w io.Writer) error {
	return cbor.NewEncoder(w).Encode(t)
}

// ReadCBOR decodes a trace.
func ReadCBOR(r io.Reader) (*Trace, error) {
	var t Trace
	if err := cbor.NewDecoder(r).Decode(&t); err != nil {
		return nil, err
	}
	return &t, nil
}

type jsonEdge struct {
	Probe string `json:"probe"`
	Sample
}

// WriteJSONLines writes a header line followed by one line per edge
// of all probes in tick order.
func (t *Trace) WriteJSONLines(w io.Writer) error {
	enc := json.NewEncoder(w)
	header := struct {
		Ticks   uint64           `json:"ticks"`
		TickHz  int64            `json:"tick_hz,omitempty"`
		Initial map[string]uint8 `json:"initial"`
	}{Ticks: t.Ticks, TickHz: t.TickHz, Initial: make(map[string]uint8)}
	var edges []jsonEdge
	for _, p := range t.Probes {
		header.Initial[p.Name] = uint8(p.Initial)
		for _, s := range p.Edges {
			edges = append(edges, jsonEdge{Probe: p.Name, Sample: s})
		}
	}
	if err := enc.Encode(&header); err != nil {
		return err
	}
	sort.SliceStable(edges, func(i, j int) bool { return edges[i].Tick < edges[j].Tick })
	for n := range edges {
		if err := enc.Encode(&edges[n]); err != nil {
			return err
		}
	}
	return nil
}

// WriteFile saves the trace, the format is chosen from the extension:
// .cbor or .jsonl.
func (t *Trace) WriteFile(path string) error {
	var write func(io.Writer) error
	switch filepath.Ext(path) {
	case ".cbor":
		write = t.WriteCBOR
	case ".jsonl", ".json":
		write = t.WriteJSONLines
	default:
		return fmt.Errorf("%w: %s", ErrTraceFormat, path)
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	if err = write(w); err == nil {
		err = w.Flush()
	}
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	return err
}

// ReadFile loads a CBOR trace.
func ReadFile(path string) (*Trace, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadCBOR(bufio.NewReader(f))
}
