// Package ingest decodes uploaded résumés (PDF, DOCX, plain text) into one Unicode string.
package ingest

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/gabriel-vasile/mimetype"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
)

var (
	// ErrUnsupportedFormat is returned for content that is neither PDF, DOCX nor text.
	ErrUnsupportedFormat = errors.New("unsupported document format")
	// ErrUnreadable is returned when a recognized format cannot be parsed.
	ErrUnreadable = errors.New("unreadable document")
	// ErrEmptyDocument is returned when decoding yields no text.
	ErrEmptyDocument = errors.New("document contains no text")
	// ErrTooLarge is returned when the input exceeds the read limit.
	ErrTooLarge = errors.New("document too large")
)

// Format is the detected source format.
type Format string

const (
	FormatPDF  Format = "pdf"
	FormatDOCX Format = "docx"
	FormatText Format = "text"
)

const docxMIME = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"

// Document is decoded résumé text plus what was learned about its source.
type Document struct {
	Text     string `json:"-"`
	Format   Format `json:"format"`
	MIME     string `json:"mime"`
	Encoding string `json:"encoding,omitempty"`
	Pages    int    `json:"pages,omitempty"`
	Bytes    int    `json:"bytes"`
}

// ReadAll reads at most limit bytes from r and decodes them. A limit of zero disables the check.
func ReadAll(r io.Reader, filename string, limit int64) (*Document, error) {
	if limit > 0 {
		r = io.LimitReader(r, limit+1)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadable, err)
	}
	if limit > 0 && int64(len(data)) > limit {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrTooLarge, limit)
	}
	return Decode(data, filename)
}

// Decode sniffs data and extracts its text. The filename extension is only
// consulted when content sniffing is inconclusive.
func Decode(data []byte, filename string) (*Document, error) {
	if len(data) == 0 {
		return nil, ErrEmptyDocument
	}

	mtype := mimetype.Detect(data)
	format, err := formatOf(mtype, strings.ToLower(filepath.Ext(filename)))
	if err != nil {
		return nil, err
	}

	doc := &Document{Format: format, MIME: mtype.String(), Bytes: len(data)}

	switch format {
	case FormatPDF:
		doc.Text, doc.Pages, err = readPDF(data)
	case FormatDOCX:
		doc.Text, err = readDOCX(data)
	default:
		doc.Text, doc.Encoding, err = decodeText(data)
	}
	if err != nil {
		return nil, err
	}

	doc.Text = strings.ReplaceAll(doc.Text, "\r\n", "\n")
	if strings.TrimSpace(doc.Text) == "" {
		return nil, ErrEmptyDocument
	}

	return doc, nil
}

func formatOf(mtype *mimetype.MIME, ext string) (Format, error) {
	switch {
	case mtype.Is("application/pdf"):
		return FormatPDF, nil
	case mtype.Is(docxMIME):
		return FormatDOCX, nil
	case mtype.Is("application/zip") && ext == ".docx":
		return FormatDOCX, nil
	}

	for m := mtype; m != nil; m = m.Parent() {
		if m.Is("text/plain") {
			return FormatText, nil
		}
	}

	if mtype.Is("application/octet-stream") && (ext == ".txt" || ext == ".text") {
		return FormatText, nil
	}

	return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, mtype.String())
}

// decodeText honours a UTF-8 or UTF-16 byte order mark, accepts valid UTF-8,
// and falls back to Windows-1252 for legacy exports.
func decodeText(data []byte) (string, string, error) {
	switch {
	case bytes.HasPrefix(data, []byte{0xEF, 0xBB, 0xBF}):
		data = data[3:]
	case bytes.HasPrefix(data, []byte{0xFF, 0xFE}), bytes.HasPrefix(data, []byte{0xFE, 0xFF}):
		dec := unicode.UTF16(unicode.LittleEndian, unicode.UseBOM).NewDecoder()
		out, err := dec.Bytes(data)
		if err != nil {
			return "", "", fmt.Errorf("%w: invalid UTF-16: %v", ErrUnreadable, err)
		}
		return string(out), "utf-16", nil
	}

	if utf8.Valid(data) {
		return string(data), "utf-8", nil
	}

	out, err := charmap.Windows1252.NewDecoder().Bytes(data)
	if err != nil {
		return "", "", fmt.Errorf("%w: unknown text encoding: %v", ErrUnreadable, err)
	}
	return string(out), "windows-1252", nil
}
