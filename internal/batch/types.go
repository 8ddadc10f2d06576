// Package batch redacts résumé datasets stored as CSV, JSON Lines or Parquet.
// Every record is an independent redaction; output order matches input order.
package batch

import (
	"errors"
	"path/filepath"
	"strings"
	"time"
)

// ErrUnsupportedFormat is returned for a dataset extension the pipeline cannot read or write.
var ErrUnsupportedFormat = errors.New("unsupported dataset format")

// InputRecord is one résumé row of the input dataset
type InputRecord struct {
	ID        string `parquet:"id" json:"id"`
	Text      string `parquet:"text" json:"text"`
	FirstName string `parquet:"first_name" json:"first_name,omitempty"`
	LastName  string `parquet:"last_name" json:"last_name,omitempty"`
}

// OutputRecord is one redacted row. Error is set, and RedactedText left
// empty, when the record could not be redacted.
type OutputRecord struct {
	ID           string         `json:"id"`
	RedactedText string         `json:"redacted_text"`
	Counts       map[string]int `json:"counts"`
	Sections     []string       `json:"sections"`
	Error        string         `json:"error,omitempty"`
}

// ProcessingResult represents the result of processing a dataset
type ProcessingResult struct {
	TotalRecords    int64            `json:"total_records"`
	ProcessedOK     int64            `json:"processed_ok"`
	ProcessedFailed int64            `json:"processed_failed"`
	Skipped         int64            `json:"skipped"` // malformed rows, counted as failed but not written
	Masked          map[string]int64 `json:"masked"`
	Duration        time.Duration    `json:"duration"`
	RedactionTime   time.Duration    `json:"redaction_time"`
	AuditTime       time.Duration    `json:"audit_time"`
	Errors          []string         `json:"errors,omitempty"`
}

// ProcessingStats tracks real-time processing statistics
type ProcessingStats struct {
	StartTime      time.Time `json:"start_time"`
	RecordsRead    int64     `json:"records_read"`
	RecordsWritten int64     `json:"records_written"`
	RecordsFailed  int64     `json:"records_failed"`
	CurrentBatch   int64     `json:"current_batch"`
	ProcessingRate float64   `json:"processing_rate"` // records per second
}

// FileFormat represents supported file formats
type FileFormat string

const (
	FormatCSV     FileFormat = "csv"
	FormatParquet FileFormat = "parquet"
	FormatJSONL   FileFormat = "jsonl"
)

// DetectFileFormat detects file format from extension
func DetectFileFormat(filename string) (FileFormat, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv":
		return FormatCSV, nil
	case ".parquet":
		return FormatParquet, nil
	case ".jsonl", ".ndjson", ".json":
		return FormatJSONL, nil
	default:
		return "", ErrUnsupportedFormat
	}
}

// maxErrors bounds ProcessingResult.Errors.
const maxErrors = 100

func (r *ProcessingResult) addError(msg string) {
	if len(r.Errors) < maxErrors {
		r.Errors = append(r.Errors, msg)
	}
}
