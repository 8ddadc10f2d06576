package export

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"
	"github.com/raaihank/cv-anonymizer/internal/normalize"
	"github.com/raaihank/cv-anonymizer/internal/redact"
)

// writePDF flows the normalized text into paragraphs. Core fonts only cover a
// single-byte charset, so the canonical text is never handed to the renderer.
func (e *Exporter) writePDF(w io.Writer, res *redact.Result, ctx Context) error {
	cfg := e.config.PDF
	pageSize := cfg.PageSize
	if pageSize == "" {
		pageSize = "A4"
	}
	fontSize := cfg.FontSize
	if fontSize <= 0 {
		fontSize = 10
	}
	lineHeight := fontSize * 0.5

	doc := fpdf.New("P", "mm", pageSize, "")
	doc.SetMargins(20, 20, 20)
	doc.SetAutoPageBreak(true, 20)
	doc.SetCreator("cv-anonymizer", false)
	doc.SetTitle(normalize.ForLimitedCharset(cfg.Title), false)
	doc.AliasNbPages("")
	doc.SetFooterFunc(func() {
		doc.SetY(-15)
		doc.SetFont("Helvetica", "I", 8)
		footer := fmt.Sprintf("Page %d/{nb} - %s", doc.PageNo(), ctx.ProcessedAt.Format(time.DateTime))
		doc.CellFormat(0, 10, footer, "", 0, "C", false, 0, "")
	})

	doc.AddPage()
	if cfg.Title != "" {
		doc.SetFont("Helvetica", "B", fontSize+4)
		doc.MultiCell(0, lineHeight+2, normalize.ForLimitedCharset(cfg.Title), "", "L", false)
		doc.Ln(lineHeight)
	}

	doc.SetFont("Helvetica", "", fontSize)
	text := normalize.ForLimitedCharset(res.Redacted)
	for _, paragraph := range strings.Split(text, "\n") {
		if strings.TrimSpace(paragraph) == "" {
			doc.Ln(lineHeight)
			continue
		}
		doc.MultiCell(0, lineHeight, strings.ReplaceAll(paragraph, "\t", "    "), "", "L", false)
	}

	if doc.Err() {
		return fmt.Errorf("%w: %v", ErrRender, doc.Error())
	}
	if err := doc.Output(w); err != nil {
		return fmt.Errorf("%w: %v", ErrRender, err)
	}
	return nil
}
