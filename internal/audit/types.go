// Package audit keeps an optional PostgreSQL trail of redaction runs. Entries
// carry metadata and counts only; document text is never persisted.
package audit

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Entry is one audited redaction run.
type Entry struct {
	ID          int64      `db:"id" json:"id"`
	RequestID   string     `db:"request_id" json:"request_id"`
	SourceKind  string     `db:"source_kind" json:"source_kind"`
	InputBytes  int        `db:"input_bytes" json:"input_bytes"`
	Counts      Counts     `db:"counts" json:"counts"`
	Sections    SectionSet `db:"sections" json:"sections"`
	DurationMs  int64      `db:"duration_ms" json:"duration_ms"`
	ProcessedAt time.Time  `db:"processed_at" json:"processed_at"`
}

// Counts maps a category name to the number of tokens inserted.
type Counts map[string]int

// Value implements driver.Valuer
func (c Counts) Value() (driver.Value, error) {
	if c == nil {
		return "{}", nil
	}
	return marshalJSON(c)
}

// Scan implements sql.Scanner
func (c *Counts) Scan(src interface{}) error {
	return scanJSON(src, c)
}

// SectionSet lists the section keys detected in a document.
type SectionSet []string

// Value implements driver.Valuer
func (s SectionSet) Value() (driver.Value, error) {
	if s == nil {
		return "[]", nil
	}
	return marshalJSON(s)
}

// Scan implements sql.Scanner
func (s *SectionSet) Scan(src interface{}) error {
	return scanJSON(src, s)
}

// marshalJSON returns a string so lib/pq sends text rather than bytea.
func marshalJSON(v interface{}) (driver.Value, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func scanJSON(src interface{}, dst interface{}) error {
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		return json.Unmarshal(v, dst)
	case string:
		return json.Unmarshal([]byte(v), dst)
	default:
		return fmt.Errorf("unsupported JSON column type %T", src)
	}
}

// BatchInsertResult represents the result of a batch insert operation
type BatchInsertResult struct {
	Inserted int64         `json:"inserted"`
	Duration time.Duration `json:"duration"`
}
