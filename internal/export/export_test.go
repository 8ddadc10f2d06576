package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"testing"
	"time"

	"github.com/raaihank/cv-anonymizer/internal/config"
	"github.com/raaihank/cv-anonymizer/internal/redact"
	"github.com/raaihank/cv-anonymizer/internal/sections"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var processedAt = time.Date(2024, 5, 17, 9, 30, 0, 0, time.UTC)

func testResult() *redact.Result {
	text := "M. [PRÉNOM_MASQUÉ] [NOM_MASQUÉ]\nEXPÉRIENCE PROFESSIONNELLE\nChef de projet 🚀 — Lyon"
	return &redact.Result{Redacted: text, Statistics: redact.Statistics(text)}
}

func newExporter() *Exporter {
	return New(config.GetDefaults().Export)
}

func TestWriteText(t *testing.T) {
	var buf bytes.Buffer
	res := testResult()
	require.NoError(t, newExporter().Write(&buf, FormatText, res, Context{}))
	assert.Equal(t, res.Redacted, buf.String())
}

func TestWriteRecord(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, newExporter().Write(&buf, FormatRecord, testResult(), Context{ProcessedAt: processedAt, Source: "cv.pdf"}))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)

	header, row := rows[0], rows[1]
	assert.Equal(t, []string{"processed_at", "source", "text"}, header[:3])
	assert.Equal(t, "2024-05-17T09:30:00Z", row[0])
	assert.Equal(t, "cv.pdf", row[1])
	assert.Equal(t, "M. [PRÉNOM_MASQUÉ] [NOM_MASQUÉ] | EXPÉRIENCE PROFESSIONNELLE | Chef de projet 🚀 — Lyon", row[2])
	assert.NotContains(t, row[2], "\n")

	assert.Len(t, header, 3+len(redact.Categories))
	assert.Equal(t, "first_name", header[3])
	assert.Equal(t, "1", row[3])
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	res := testResult()
	require.NoError(t, newExporter().Write(&buf, FormatJSON, res, Context{ProcessedAt: processedAt, RequestID: "req-1"}))

	var rec Record
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, res.Redacted, rec.Text)
	assert.True(t, processedAt.Equal(rec.Metadata.ProcessedAt))
	assert.Equal(t, "req-1", rec.Metadata.RequestID)
	assert.Equal(t, 3, rec.Metadata.Lines)
	assert.True(t, rec.Sections[sections.Experience])
	assert.False(t, rec.Sections[sections.Education])
	assert.Equal(t, 1, rec.Statistics[redact.CategoryLastName])
}

func TestWritePDF(t *testing.T) {
	t.Run("renders normalized text", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, newExporter().Write(&buf, FormatPDF, testResult(), Context{ProcessedAt: processedAt}))
		assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("%PDF-")))
	})

	t.Run("unknown page size fails", func(t *testing.T) {
		cfg := config.GetDefaults().Export
		cfg.PDF.PageSize = "B17"
		var buf bytes.Buffer
		err := New(cfg).Write(&buf, FormatPDF, testResult(), Context{ProcessedAt: processedAt})
		assert.ErrorIs(t, err, ErrRender)
	})

	t.Run("canonical text is untouched", func(t *testing.T) {
		res := testResult()
		before := res.Redacted
		var buf bytes.Buffer
		require.NoError(t, newExporter().Write(&buf, FormatPDF, res, Context{}))
		assert.Equal(t, before, res.Redacted)
	})
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat(".PDF")
	require.NoError(t, err)
	assert.Equal(t, FormatPDF, f)

	_, err = ParseFormat("docx")
	assert.ErrorIs(t, err, ErrUnknownFormat)

	var buf bytes.Buffer
	err = newExporter().Write(&buf, Format("xml"), testResult(), Context{})
	assert.ErrorIs(t, err, ErrUnknownFormat)
}

func TestFilename(t *testing.T) {
	assert.Equal(t, "cv_anonymise.txt", Filename("", FormatText))
	assert.Equal(t, "mon_cv.pdf", Filename("  mon cv ", FormatPDF))
	assert.Equal(t, "etc_passwd.json", Filename("../etc/passwd", FormatJSON))
	assert.Equal(t, "CV_Zo.txt", Filename("CV Zoé", FormatText))
	assert.Equal(t, "a_b.csv", Filename("a$b", FormatRecord))
	assert.Len(t, Filename(string(bytes.Repeat([]byte("a"), 80)), FormatRecord), 54)
}
