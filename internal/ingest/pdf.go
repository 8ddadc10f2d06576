package ingest

import (
	"bytes"
	"fmt"
	"io"

	"github.com/ledongthuc/pdf"
)

// readPDF extracts the plain text layer. The parser panics on some malformed
// inputs, so panics are reported as ErrUnreadable.
func readPDF(data []byte) (text string, pages int, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: malformed PDF: %v", ErrUnreadable, r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", 0, fmt.Errorf("%w: %v", ErrUnreadable, err)
	}

	plain, err := reader.GetPlainText()
	if err != nil {
		return "", 0, fmt.Errorf("%w: %v", ErrUnreadable, err)
	}

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, plain); err != nil {
		return "", 0, fmt.Errorf("%w: %v", ErrUnreadable, err)
	}

	return buf.String(), reader.NumPage(), nil
}
