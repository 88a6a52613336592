package monitor

import (
	"fmt"
	"strings"
	"sync"
)

// Stats counts events per kind. It is safe for concurrent use.
type Stats struct {
	counts map[Kind]uint64
	lock   sync.RWMutex
}

// NewStats creates an empty Stats.
func NewStats() *Stats {
	return &Stats{counts: make(map[Kind]uint64)}
}

// Add counts an event.
func (s *Stats) Add(ev *Event) {
	s.lock.Lock()
	s.counts[ev.Kind]++
	s.lock.Unlock()
}

// Count returns the number of events of kind.
func (s *Stats) Count(kind Kind) uint64 {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.counts[kind]
}

// Errors returns the number of failure events.
func (s *Stats) Errors() (n uint64) {
	s.lock.RLock()
	defer s.lock.RUnlock()
	for kind, count := range s.counts {
		if kind.IsError() {
			n += count
		}
	}
	return
}

// Snapshot copies the counters.
func (s *Stats) Snapshot() map[Kind]uint64 {
	s.lock.RLock()
	defer s.lock.RUnlock()
	m := make(map[Kind]uint64, len(s.counts))
	for kind, count := range s.counts {
		m[kind] = count
	}
	return m
}

// Reset clears the counters.
func (s *Stats) Reset() {
	s.lock.Lock()
	s.counts = make(map[Kind]uint64)
	s.lock.Unlock()
}

// String lists the known kinds one per line.
func (s *Stats) String() string {
	snapshot := s.Snapshot()
	lines := make([]string, 0, len(Kinds))
	for _, kind := range Kinds {
		lines = append(lines, fmt.Sprintf("%-22s %d", kind, snapshot[kind]))
	}
	return strings.Join(lines, "\n")
}
