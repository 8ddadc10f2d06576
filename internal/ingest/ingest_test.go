package ingest

import (
	"archive/zip"
	"bytes"
	"strings"
	"testing"

	"github.com/go-pdf/fpdf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildDOCX(t *testing.T, body string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	w, err := zw.Create("[Content_Types].xml")
	require.NoError(t, err)
	_, err = w.Write([]byte(`<?xml version="1.0" encoding="UTF-8"?><Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types"></Types>`))
	require.NoError(t, err)

	w, err = zw.Create(docxBody)
	require.NoError(t, err)
	_, err = w.Write([]byte(`<?xml version="1.0" encoding="UTF-8"?>` +
		`<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>` + body + `</w:body></w:document>`))
	require.NoError(t, err)

	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func buildPDF(t *testing.T, lines ...string) []byte {
	t.Helper()
	doc := fpdf.New("P", "mm", "A4", "")
	doc.SetCompression(false)
	doc.AddPage()
	doc.SetFont("Helvetica", "", 12)
	for _, line := range lines {
		doc.Cell(0, 10, line)
		doc.Ln(10)
	}
	var buf bytes.Buffer
	require.NoError(t, doc.Output(&buf))
	return buf.Bytes()
}

func TestDecodeText(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		want     string
		encoding string
	}{
		{"utf-8", []byte("Jean Dupont\r\nDéveloppeur"), "Jean Dupont\nDéveloppeur", "utf-8"},
		{"utf-8 with bom", append([]byte{0xEF, 0xBB, 0xBF}, "Été"...), "Été", "utf-8"},
		{"windows-1252", []byte("Caf\xe9 cr\xe8me"), "Café crème", "windows-1252"},
		{"utf-16le with bom", []byte{0xFF, 0xFE, 'O', 0, 'k', 0}, "Ok", "utf-16"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := Decode(tt.data, "cv.txt")
			require.NoError(t, err)
			assert.Equal(t, FormatText, doc.Format)
			assert.Equal(t, tt.want, doc.Text)
			assert.Equal(t, tt.encoding, doc.Encoding)
		})
	}
}

func TestDecodeDOCX(t *testing.T) {
	data := buildDOCX(t,
		`<w:p><w:r><w:t>Jean</w:t></w:r><w:r><w:t xml:space="preserve"> DUPONT</w:t></w:r></w:p>`+
			`<w:p><w:r><w:t>Compétences</w:t><w:tab/><w:t>Go</w:t></w:r></w:p>`)

	doc, err := Decode(data, "cv.docx")
	require.NoError(t, err)
	assert.Equal(t, FormatDOCX, doc.Format)
	assert.Equal(t, "Jean DUPONT\nCompétences\tGo", doc.Text)
}

func TestDecodePDF(t *testing.T) {
	data := buildPDF(t, "Jean DUPONT", "jean.dupont@mail.com")

	doc, err := Decode(data, "cv.pdf")
	require.NoError(t, err)
	assert.Equal(t, FormatPDF, doc.Format)
	assert.Equal(t, 1, doc.Pages)
	assert.Contains(t, doc.Text, "DUPONT")
}

func TestDecodeErrors(t *testing.T) {
	t.Run("empty input", func(t *testing.T) {
		_, err := Decode(nil, "cv.txt")
		assert.ErrorIs(t, err, ErrEmptyDocument)
	})

	t.Run("whitespace only", func(t *testing.T) {
		_, err := Decode([]byte(" \n\t "), "cv.txt")
		assert.ErrorIs(t, err, ErrEmptyDocument)
	})

	t.Run("image", func(t *testing.T) {
		png := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x06\x00\x00\x00")
		_, err := Decode(png, "photo.png")
		assert.ErrorIs(t, err, ErrUnsupportedFormat)
	})

	t.Run("broken pdf", func(t *testing.T) {
		_, err := Decode([]byte("%PDF-1.4\nnot really a pdf"), "cv.pdf")
		assert.ErrorIs(t, err, ErrUnreadable)
	})

	t.Run("docx without body", func(t *testing.T) {
		var buf bytes.Buffer
		zw := zip.NewWriter(&buf)
		w, err := zw.Create("readme.txt")
		require.NoError(t, err)
		_, _ = w.Write([]byte("hello"))
		require.NoError(t, zw.Close())

		_, err = Decode(buf.Bytes(), "cv.docx")
		assert.ErrorIs(t, err, ErrUnreadable)
	})

	t.Run("read limit", func(t *testing.T) {
		_, err := ReadAll(strings.NewReader(strings.Repeat("a", 64)), "cv.txt", 16)
		assert.ErrorIs(t, err, ErrTooLarge)
	})
}
