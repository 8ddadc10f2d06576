package batch

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/segmentio/parquet-go"
)

// errSkip marks an input row that could not be decoded. Reading continues after it.
var errSkip = errors.New("malformed record")

// Source yields input records until io.EOF.
type Source interface {
	Next() (*InputRecord, error)
	Close() error
}

// Sink receives output records in input order.
type Sink interface {
	Write(rec *OutputRecord) error
	Close() error
}

// OpenSource opens path as a dataset in the format implied by its extension.
func OpenSource(path string) (Source, error) {
	format, err := DetectFileFormat(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", err, path)
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open dataset: %w", err)
	}

	var src Source
	switch format {
	case FormatCSV:
		src, err = newCSVSource(file)
	case FormatJSONL:
		src = newJSONLSource(file)
	case FormatParquet:
		src = newParquetSource(file)
	}
	if err != nil {
		file.Close()
		return nil, err
	}
	return src, nil
}

// CreateSink creates path as a dataset in the format implied by its extension.
func CreateSink(path string) (Sink, error) {
	format, err := DetectFileFormat(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", err, path)
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return nil, fmt.Errorf("failed to create output: %w", err)
	}
	sink, err := NewSink(file, format)
	if err != nil {
		file.Close()
		return nil, err
	}
	return sink, nil
}

// NewSink writes format to w, closing w on Close when it is an io.Closer.
func NewSink(w io.Writer, format FileFormat) (Sink, error) {
	switch format {
	case FormatCSV:
		return newCSVSink(w)
	case FormatJSONL:
		return newJSONLSink(w), nil
	case FormatParquet:
		return newParquetSink(w), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
}

func closeIfCloser(v interface{}) error {
	if c, ok := v.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// csvSource reads a headered CSV. Only the text column is required.
type csvSource struct {
	file    io.ReadCloser
	reader  *csv.Reader
	columns map[string]int
	row     int
}

func newCSVSource(r io.ReadCloser) (*csvSource, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}

	columns := make(map[string]int, len(header))
	for i, name := range header {
		columns[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))] = i
	}
	if _, ok := columns["text"]; !ok {
		return nil, fmt.Errorf("CSV header has no text column: %v", header)
	}

	return &csvSource{file: r, reader: reader, columns: columns}, nil
}

func (s *csvSource) Next() (*InputRecord, error) {
	record, err := s.reader.Read()
	if err == io.EOF {
		return nil, io.EOF
	}
	s.row++
	if err != nil {
		return nil, fmt.Errorf("%w: row %d: %v", errSkip, s.row, err)
	}

	field := func(name string) string {
		if i, ok := s.columns[name]; ok && i < len(record) {
			return record[i]
		}
		return ""
	}

	if s.columns["text"] >= len(record) {
		return nil, fmt.Errorf("%w: row %d: missing text field", errSkip, s.row)
	}

	return &InputRecord{
		ID:        strings.TrimSpace(field("id")),
		Text:      field("text"),
		FirstName: strings.TrimSpace(field("first_name")),
		LastName:  strings.TrimSpace(field("last_name")),
	}, nil
}

func (s *csvSource) Close() error { return s.file.Close() }

// jsonlSource reads one JSON object per line.
type jsonlSource struct {
	file    io.ReadCloser
	scanner *bufio.Scanner
	line    int
}

func newJSONLSource(r io.ReadCloser) *jsonlSource {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 32<<20)
	return &jsonlSource{file: r, scanner: scanner}
}

func (s *jsonlSource) Next() (*InputRecord, error) {
	for s.scanner.Scan() {
		s.line++
		line := strings.TrimSpace(s.scanner.Text())
		if line == "" {
			continue
		}

		var rec InputRecord
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", errSkip, s.line, err)
		}
		return &rec, nil
	}
	if err := s.scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read JSON lines: %w", err)
	}
	return nil, io.EOF
}

func (s *jsonlSource) Close() error { return s.file.Close() }

// parquetSource reads rows into InputRecord by column name.
type parquetSource struct {
	file   *os.File
	reader *parquet.Reader
}

func newParquetSource(f *os.File) *parquetSource {
	return &parquetSource{file: f, reader: parquet.NewReader(f)}
}

func (s *parquetSource) Next() (*InputRecord, error) {
	var rec InputRecord
	if err := s.reader.Read(&rec); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("failed to read Parquet row: %w", err)
	}
	return &rec, nil
}

func (s *parquetSource) Close() error {
	rerr := s.reader.Close()
	if err := s.file.Close(); err != nil {
		return err
	}
	return rerr
}

var outputHeader = []string{"id", "redacted_text", "counts", "sections", "error"}

type csvSink struct {
	out    io.Writer
	writer *csv.Writer
}

func newCSVSink(w io.Writer) (*csvSink, error) {
	writer := csv.NewWriter(w)
	if err := writer.Write(outputHeader); err != nil {
		return nil, err
	}
	return &csvSink{out: w, writer: writer}, nil
}

func (s *csvSink) Write(rec *OutputRecord) error {
	counts, err := json.Marshal(rec.Counts)
	if err != nil {
		return err
	}
	return s.writer.Write([]string{rec.ID, rec.RedactedText, string(counts), strings.Join(rec.Sections, ";"), rec.Error})
}

func (s *csvSink) Close() error {
	s.writer.Flush()
	if err := s.writer.Error(); err != nil {
		return err
	}
	return closeIfCloser(s.out)
}

type jsonlSink struct {
	out     io.Writer
	buf     *bufio.Writer
	encoder *json.Encoder
}

func newJSONLSink(w io.Writer) *jsonlSink {
	buf := bufio.NewWriter(w)
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	return &jsonlSink{out: w, buf: buf, encoder: enc}
}

func (s *jsonlSink) Write(rec *OutputRecord) error {
	return s.encoder.Encode(rec)
}

func (s *jsonlSink) Close() error {
	if err := s.buf.Flush(); err != nil {
		return err
	}
	return closeIfCloser(s.out)
}

// parquetRow flattens OutputRecord; counts are stored as a JSON object.
type parquetRow struct {
	ID           string `parquet:"id"`
	RedactedText string `parquet:"redacted_text"`
	Counts       string `parquet:"counts"`
	Sections     string `parquet:"sections"`
	Error        string `parquet:"error"`
}

type parquetSink struct {
	out    io.Writer
	writer *parquet.Writer
}

func newParquetSink(w io.Writer) *parquetSink {
	return &parquetSink{out: w, writer: parquet.NewWriter(w, parquet.SchemaOf(new(parquetRow)))}
}

func (s *parquetSink) Write(rec *OutputRecord) error {
	counts, err := json.Marshal(rec.Counts)
	if err != nil {
		return err
	}
	return s.writer.Write(&parquetRow{
		ID:           rec.ID,
		RedactedText: rec.RedactedText,
		Counts:       string(counts),
		Sections:     strings.Join(rec.Sections, ";"),
		Error:        rec.Error,
	})
}

func (s *parquetSink) Close() error {
	if err := s.writer.Close(); err != nil {
		return fmt.Errorf("failed to finalize Parquet output: %w", err)
	}
	return closeIfCloser(s.out)
}

func rowID(id string, n int64) string {
	if id != "" {
		return id
	}
	return strconv.FormatInt(n, 10)
}
