package stats

import (
	"context"
	"sync"
)

// Memory keeps counters in process memory.
type Memory struct {
	mu   sync.Mutex
	snap *Snapshot
}

// NewMemory creates an empty in-memory recorder
func NewMemory() *Memory {
	return &Memory{snap: newSnapshot("memory")}
}

func (m *Memory) Record(_ context.Context, run Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.snap.Documents++
	if run.Source != "" {
		m.snap.Sources[run.Source]++
	}
	for c, n := range run.Counts {
		m.snap.Categories[string(c)] += int64(n)
	}
	for _, s := range run.Sections {
		m.snap.Sections[string(s)]++
	}
	return nil
}

func (m *Memory) Snapshot(_ context.Context) (*Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := newSnapshot(m.snap.Backend)
	out.Documents = m.snap.Documents
	for k, v := range m.snap.Sources {
		out.Sources[k] = v
	}
	for k, v := range m.snap.Categories {
		out.Categories[k] = v
	}
	for k, v := range m.snap.Sections {
		out.Sections[k] = v
	}
	return out, nil
}

func (m *Memory) Reset(_ context.Context) error {
	m.mu.Lock()
	m.snap = newSnapshot("memory")
	m.mu.Unlock()
	return nil
}

func (m *Memory) Close() error { return nil }
