package batch

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/raaihank/cv-anonymizer/internal/audit"
	"github.com/raaihank/cv-anonymizer/internal/config"
	"github.com/raaihank/cv-anonymizer/internal/logger"
	"github.com/raaihank/cv-anonymizer/internal/redact"
	"github.com/raaihank/cv-anonymizer/internal/stats"
	"github.com/segmentio/parquet-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEngine(t *testing.T, cfg config.RedactionConfig) *redact.Engine {
	t.Helper()
	if cfg.Detectors == nil {
		cfg.Detectors = []string{"all"}
	}
	engine, err := redact.New(cfg, logger.NewNop())
	require.NoError(t, err)
	return engine
}

func newTestPipeline(t *testing.T, batchSize, workers int) *Pipeline {
	t.Helper()
	return NewPipeline(newEngine(t, config.RedactionConfig{}), config.BatchConfig{BatchSize: batchSize, Workers: workers}, logger.NewNop())
}

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func readJSONL(t *testing.T, path string) []OutputRecord {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var out []OutputRecord
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var rec OutputRecord
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &rec))
		out = append(out, rec)
	}
	require.NoError(t, scanner.Err())
	return out
}

// memorySource replays records for Process.
type memorySource struct {
	records []*InputRecord
	i       int
}

func (m *memorySource) Next() (*InputRecord, error) {
	if m.i >= len(m.records) {
		return nil, io.EOF
	}
	m.i++
	return m.records[m.i-1], nil
}

func (m *memorySource) Close() error { return nil }

type memorySink struct{ records []*OutputRecord }

func (m *memorySink) Write(rec *OutputRecord) error {
	m.records = append(m.records, rec)
	return nil
}

func (m *memorySink) Close() error { return nil }

func TestProcessFileCSVToJSONL(t *testing.T) {
	input := writeFile(t, "cvs.csv", "id,text,first_name,last_name\n"+
		"a,\"M. Jean DUPONT\nEmail: jean.dupont@mail.com\",,\n"+
		"b,Contact : Zoé Lefèvre,Zoé,Lefèvre\n"+
		",Rien à masquer,,\n")
	output := filepath.Join(t.TempDir(), "out.jsonl")

	result, err := newTestPipeline(t, 2, 2).ProcessFile(context.Background(), input, output)
	require.NoError(t, err)

	assert.Equal(t, int64(3), result.TotalRecords)
	assert.Equal(t, int64(3), result.ProcessedOK)
	assert.Equal(t, int64(0), result.ProcessedFailed)
	assert.Equal(t, int64(2), result.Masked["first_name"])
	assert.Equal(t, int64(1), result.Masked["email"])

	out := readJSONL(t, output)
	require.Len(t, out, 3)
	assert.Equal(t, "a", out[0].ID)
	assert.Equal(t, "M. [PRÉNOM_MASQUÉ] [NOM_MASQUÉ]\nEmail: [EMAIL_MASQUÉ]", out[0].RedactedText)
	assert.Equal(t, "Contact : [PRÉNOM_MASQUÉ] [NOM_MASQUÉ]", out[1].RedactedText)
	assert.Equal(t, "3", out[2].ID, "missing ids fall back to the row number")
	assert.Equal(t, "Rien à masquer", out[2].RedactedText)
	assert.Equal(t, 0, out[2].Counts["email"])
}

func TestProcessFileJSONLToCSV(t *testing.T) {
	input := writeFile(t, "cvs.jsonl", `{"id":"1","text":"Tel: 06 12 34 56 78"}
{not json}

{"id":"2","text":"EXPERIENCE\nChef d'équipe"}
`)
	output := filepath.Join(t.TempDir(), "out.csv")

	result, err := newTestPipeline(t, 10, 4).ProcessFile(context.Background(), input, output)
	require.NoError(t, err)
	assert.Equal(t, int64(3), result.TotalRecords)
	assert.Equal(t, int64(2), result.ProcessedOK)
	assert.Equal(t, int64(1), result.Skipped)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "line 2")

	f, err := os.Open(output)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)

	require.Len(t, rows, 3)
	assert.Equal(t, outputHeader, rows[0])
	assert.Equal(t, []string{"1", "Tel: [TÉLÉPHONE_MASQUÉ]"}, rows[1][:2])
	assert.Contains(t, rows[1][2], `"phone":1`)
	assert.Equal(t, "experience", rows[2][3])
}

func TestProcessFileParquet(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "cvs.parquet")
	output := filepath.Join(dir, "out.parquet")

	f, err := os.Create(input)
	require.NoError(t, err)
	w := parquet.NewWriter(f, parquet.SchemaOf(new(InputRecord)))
	require.NoError(t, w.Write(&InputRecord{ID: "p1", Text: "Email: jean.dupont@mail.com"}))
	require.NoError(t, w.Write(&InputRecord{ID: "p2", Text: "Mme Claire Martin", FirstName: "", LastName: ""}))
	require.NoError(t, w.Close())
	require.NoError(t, f.Close())

	result, err := newTestPipeline(t, 1, 2).ProcessFile(context.Background(), input, output)
	require.NoError(t, err)
	assert.Equal(t, int64(2), result.ProcessedOK)

	rf, err := os.Open(output)
	require.NoError(t, err)
	defer rf.Close()
	reader := parquet.NewReader(rf)
	defer reader.Close()

	var rows []parquetRow
	for {
		var row parquetRow
		err := reader.Read(&row)
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		rows = append(rows, row)
	}

	require.Len(t, rows, 2)
	assert.Equal(t, "p1", rows[0].ID)
	assert.Equal(t, "Email: [EMAIL_MASQUÉ]", rows[0].RedactedText)
	assert.Equal(t, "Mme [PRÉNOM_MASQUÉ] [NOM_MASQUÉ]", rows[1].RedactedText)

	var counts map[string]int
	require.NoError(t, json.Unmarshal([]byte(rows[0].Counts), &counts))
	assert.Equal(t, 1, counts["email"])
}

func TestProcessPreservesOrder(t *testing.T) {
	src := &memorySource{}
	for i := 0; i < 50; i++ {
		src.records = append(src.records, &InputRecord{ID: fmt.Sprint(i), Text: fmt.Sprintf("ligne %d: contact%d@mail.com", i, i)})
	}
	sink := &memorySink{}

	result, err := newTestPipeline(t, 7, 8).Process(context.Background(), src, sink, "test")
	require.NoError(t, err)
	assert.Equal(t, int64(50), result.ProcessedOK)

	require.Len(t, sink.records, 50)
	for i, rec := range sink.records {
		assert.Equal(t, fmt.Sprint(i), rec.ID)
		assert.Equal(t, fmt.Sprintf("ligne %d: [EMAIL_MASQUÉ]", i), rec.RedactedText)
	}
}

func TestProcessFailsClosed(t *testing.T) {
	engine := newEngine(t, config.RedactionConfig{MaxDocumentBytes: 20})
	p := NewPipeline(engine, config.BatchConfig{BatchSize: 10, Workers: 2}, logger.NewNop())

	src := &memorySource{records: []*InputRecord{
		{ID: "short", Text: "a@b.fr"},
		{ID: "long", Text: "M. Jean DUPONT, jean.dupont@mail.com"},
	}}
	sink := &memorySink{}

	result, err := p.Process(context.Background(), src, sink, "test")
	require.NoError(t, err)
	assert.Equal(t, int64(1), result.ProcessedOK)
	assert.Equal(t, int64(1), result.ProcessedFailed)

	require.Len(t, sink.records, 2)
	assert.Equal(t, "[EMAIL_MASQUÉ]", sink.records[0].RedactedText)
	assert.Empty(t, sink.records[1].RedactedText)
	assert.NotEmpty(t, sink.records[1].Error)
	assert.NotContains(t, strings.Join(result.Errors, " "), "DUPONT")
}

func TestProcessCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	src := &memorySource{records: []*InputRecord{{ID: "1", Text: "x"}}}
	_, err := newTestPipeline(t, 1, 1).Process(ctx, src, &memorySink{}, "test")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestProcessSinks(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	store := audit.NewWithDB(sqlx.NewDb(db, "postgres"), logger.NewNop())
	recorder := stats.NewMemory()

	mock.ExpectExec("INSERT INTO redaction_audit").WillReturnResult(sqlmock.NewResult(0, 2))

	p := newTestPipeline(t, 10, 2).WithAudit(store).WithRecorder(recorder)
	src := &memorySource{records: []*InputRecord{
		{ID: "1", Text: "EXPERIENCE\na@b.fr"},
		{ID: "2", Text: "Tel: 06 12 34 56 78"},
	}}

	_, err = p.Process(context.Background(), src, &memorySink{}, "batch:csv")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())

	snap, err := recorder.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), snap.Documents)
	assert.Equal(t, int64(2), snap.Sources["batch:csv"])
	assert.Equal(t, int64(1), snap.Categories["email"])
	assert.Equal(t, int64(1), snap.Sections["experience"])

	progress := p.GetStats()
	assert.Equal(t, int64(2), progress.RecordsRead)
	assert.Equal(t, int64(2), progress.RecordsWritten)
}

func TestDetectFileFormat(t *testing.T) {
	tests := map[string]FileFormat{
		"a.csv":      FormatCSV,
		"b.PARQUET":  FormatParquet,
		"c.jsonl":    FormatJSONL,
		"d.ndjson":   FormatJSONL,
		"dir/e.json": FormatJSONL,
	}
	for name, want := range tests {
		got, err := DetectFileFormat(name)
		require.NoError(t, err, name)
		assert.Equal(t, want, got, name)
	}

	_, err := DetectFileFormat("cv.xlsx")
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestCSVSourceRequiresText(t *testing.T) {
	_, err := newCSVSource(io.NopCloser(bytes.NewBufferString("id,body\n1,x\n")))
	assert.Error(t, err)
}
