package device

import (
	"errors"
	"fmt"
	"sync"

	"github.com/robotalks/serline/pkg/line"
)

// MemoryChipName is the chip name selecting a Memory chip.
const MemoryChipName = "mem"

// ErrLineBusy is returned requesting a line twice.
var ErrLineBusy = errors.New("line already requested")

// Memory is a chip without hardware. Outputs store their level, an
// input reads the level of the line it is jumpered to, or its own
// stored level.
type Memory struct {
	lock      sync.Mutex
	levels    []line.Level
	jumpers   map[int]int
	requested map[int]bool
}

type memoryPin struct {
	chip   *Memory
	offset int
}

// NewMemory creates a Memory chip with n lines, all low.
func NewMemory(n int) *Memory {
	return &Memory{
		levels:    make([]line.Level, n),
		jumpers:   make(map[int]int),
		requested: make(map[int]bool),
	}
}

// Jumper connects input line in to output line out.
func (m *Memory) Jumper(out, in int) *Memory {
	m.lock.Lock()
	m.jumpers[in] = out
	m.lock.Unlock()
	return m
}

// Poke sets the level of a line directly.
func (m *Memory) Poke(offset int, l line.Level) {
	m.lock.Lock()
	m.levels[offset] = l
	m.lock.Unlock()
}

// Peek reads the stored level of a line.
func (m *Memory) Peek(offset int) line.Level {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.levels[offset]
}

// Name implements Chip.
func (m *Memory) Name() string {
	return MemoryChipName
}

// Lines implements Chip.
func (m *Memory) Lines() int {
	return len(m.levels)
}

// Close implements Chip.
func (m *Memory) Close() error {
	return nil
}

// Input implements Chip.
func (m *Memory) Input(offset int) (InputPin, error) {
	p, err := m.request(offset)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Output implements Chip.
func (m *Memory) Output(offset int, initial line.Level) (OutputPin, error) {
	p, err := m.request(offset)
	if err != nil {
		return nil, err
	}
	m.Poke(offset, initial)
	return p, nil
}

func (m *Memory) request(offset int) (*memoryPin, error) {
	m.lock.Lock()
	defer m.lock.Unlock()
	if offset < 0 || offset >= len(m.levels) {
		return nil, fmt.Errorf("line %d out of range", offset)
	}
	if m.requested[offset] {
		return nil, ErrLineBusy
	}
	m.requested[offset] = true
	return &memoryPin{chip: m, offset: offset}, nil
}

func (p *memoryPin) Offset() int {
	return p.offset
}

func (p *memoryPin) Level() (line.Level, error) {
	p.chip.lock.Lock()
	defer p.chip.lock.Unlock()
	if src, ok := p.chip.jumpers[p.offset]; ok {
		return p.chip.levels[src], nil
	}
	return p.chip.levels[p.offset], nil
}

func (p *memoryPin) Set(l line.Level) error {
	p.chip.Poke(p.offset, l)
	return nil
}

func (p *memoryPin) Close() error {
	p.chip.lock.Lock()
	delete(p.chip.requested, p.offset)
	p.chip.lock.Unlock()
	return nil
}
