// Package stats aggregates per-category redaction counters across documents.
// Only counts are recorded; document text never reaches a recorder.
package stats

import (
	"context"
	"fmt"

	"github.com/raaihank/cv-anonymizer/internal/config"
	"github.com/raaihank/cv-anonymizer/internal/logger"
	"github.com/raaihank/cv-anonymizer/internal/redact"
	"github.com/raaihank/cv-anonymizer/internal/sections"
)

// Run is the countable outcome of one redaction.
type Run struct {
	Source   string                  `json:"source"`
	Counts   map[redact.Category]int `json:"counts"`
	Sections []sections.Section      `json:"sections"`
}

// Snapshot is the aggregated view of every recorded run.
type Snapshot struct {
	Backend    string           `json:"backend"`
	Documents  int64            `json:"documents"`
	Sources    map[string]int64 `json:"sources"`
	Categories map[string]int64 `json:"categories"`
	Sections   map[string]int64 `json:"sections"`
}

// Recorder stores aggregated counters.
type Recorder interface {
	Record(ctx context.Context, run Run) error
	Snapshot(ctx context.Context) (*Snapshot, error)
	Reset(ctx context.Context) error
	Close() error
}

// New returns the recorder selected by cfg.Backend.
func New(cfg config.StatsConfig, log *logger.Logger) (Recorder, error) {
	switch cfg.Backend {
	case "", "memory":
		return NewMemory(), nil
	case "redis":
		return NewRedis(cfg, log)
	default:
		return nil, fmt.Errorf("unknown stats backend: %s", cfg.Backend)
	}
}

func newSnapshot(backend string) *Snapshot {
	snap := &Snapshot{
		Backend:    backend,
		Sources:    make(map[string]int64),
		Categories: make(map[string]int64, len(redact.Categories)),
		Sections:   make(map[string]int64, len(sections.All)),
	}
	for _, c := range redact.Categories {
		snap.Categories[string(c)] = 0
	}
	for _, s := range sections.All {
		snap.Sections[string(s)] = 0
	}
	return snap
}
