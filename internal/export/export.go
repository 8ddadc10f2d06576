// Package export renders a redacted résumé as plain text, a delimited record,
// a structured JSON record or a paginated PDF.
package export

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dlclark/regexp2"
	"github.com/raaihank/cv-anonymizer/internal/config"
	"github.com/raaihank/cv-anonymizer/internal/redact"
	"github.com/raaihank/cv-anonymizer/internal/sections"
)

// ErrUnknownFormat is returned for a format name Exporter does not render.
var ErrUnknownFormat = errors.New("unknown export format")

// ErrRender is returned when the document renderer fails.
var ErrRender = errors.New("document generation failed")

// Format names an output representation.
type Format string

const (
	FormatText   Format = "txt"
	FormatRecord Format = "csv"
	FormatJSON   Format = "json"
	FormatPDF    Format = "pdf"
)

// Formats lists every supported format.
var Formats = []Format{FormatText, FormatRecord, FormatJSON, FormatPDF}

// ParseFormat validates a format name.
func ParseFormat(name string) (Format, error) {
	f := Format(strings.ToLower(strings.TrimPrefix(name, ".")))
	for _, known := range Formats {
		if f == known {
			return f, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFormat, name)
}

// ContentType returns the MIME type served for the format.
func (f Format) ContentType() string {
	switch f {
	case FormatRecord:
		return "text/csv; charset=utf-8"
	case FormatJSON:
		return "application/json"
	case FormatPDF:
		return "application/pdf"
	default:
		return "text/plain; charset=utf-8"
	}
}

// Context is the per-call information that travels with a document into an export.
type Context struct {
	ProcessedAt time.Time
	Source      string
	RequestID   string
}

// Record is the structured JSON representation.
type Record struct {
	Text       string                  `json:"text"`
	Metadata   Metadata                `json:"metadata"`
	Sections   sections.PresenceMap    `json:"sections"`
	Statistics map[redact.Category]int `json:"statistics"`
}

// Metadata describes the processing run behind a Record.
type Metadata struct {
	ProcessedAt time.Time `json:"processed_at"`
	Source      string    `json:"source,omitempty"`
	RequestID   string    `json:"request_id,omitempty"`
	Characters  int       `json:"characters"`
	Lines       int       `json:"lines"`
}

// Exporter renders redaction results.
type Exporter struct {
	config config.ExportConfig
}

// New creates an exporter
func New(cfg config.ExportConfig) *Exporter {
	if cfg.RecordDelimiter == "" {
		cfg.RecordDelimiter = " | "
	}
	return &Exporter{config: cfg}
}

// Write renders res in format to w.
func (e *Exporter) Write(w io.Writer, format Format, res *redact.Result, ctx Context) error {
	if ctx.ProcessedAt.IsZero() {
		ctx.ProcessedAt = time.Now().UTC()
	}

	switch format {
	case FormatText:
		_, err := io.WriteString(w, res.Redacted)
		return err
	case FormatRecord:
		return e.writeRecord(w, res, ctx)
	case FormatJSON:
		return e.writeJSON(w, res, ctx)
	case FormatPDF:
		return e.writePDF(w, res, ctx)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}

// SingleLine joins the lines of text with the configured delimiter.
func (e *Exporter) SingleLine(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	return strings.ReplaceAll(text, "\n", e.config.RecordDelimiter)
}

func (e *Exporter) writeRecord(w io.Writer, res *redact.Result, ctx Context) error {
	cw := csv.NewWriter(w)
	header := []string{"processed_at", "source", "text"}
	row := []string{ctx.ProcessedAt.Format(time.RFC3339), ctx.Source, e.SingleLine(res.Redacted)}
	for _, c := range redact.Categories {
		header = append(header, string(c))
		row = append(row, fmt.Sprint(res.Statistics[c]))
	}

	if err := cw.Write(header); err != nil {
		return err
	}
	if err := cw.Write(row); err != nil {
		return err
	}
	cw.Flush()
	return cw.Error()
}

// BuildRecord assembles the structured representation of res.
func BuildRecord(res *redact.Result, ctx Context) Record {
	lines := 0
	if res.Redacted != "" {
		lines = strings.Count(res.Redacted, "\n") + 1
	}
	return Record{
		Text: res.Redacted,
		Metadata: Metadata{
			ProcessedAt: ctx.ProcessedAt,
			Source:      ctx.Source,
			RequestID:   ctx.RequestID,
			Characters:  len([]rune(res.Redacted)),
			Lines:       lines,
		},
		Sections:   sections.Detect(res.Redacted),
		Statistics: res.Statistics,
	}
}

func (e *Exporter) writeJSON(w io.Writer, res *redact.Result, ctx Context) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(BuildRecord(res, ctx))
}

var unsafeName = regexp2.MustCompile(`[^A-Za-z0-9._-]+`, regexp2.None)

// Filename turns a caller-chosen base name into a safe download name with the
// format's extension. Names are limited to fifty characters.
func Filename(base string, format Format) string {
	safe, err := unsafeName.Replace(strings.TrimSpace(base), "_", -1, -1)
	if err != nil {
		// only a match timeout fails, and unsafeName has none
		safe = ""
	}
	base = strings.Trim(safe, "._")
	if len(base) > 50 {
		base = base[:50]
	}
	if base == "" {
		base = "cv_anonymise"
	}
	return base + "." + string(format)
}
