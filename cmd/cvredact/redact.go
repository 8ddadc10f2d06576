package main

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/raaihank/cv-anonymizer/internal/export"
	"github.com/raaihank/cv-anonymizer/internal/ingest"
	"github.com/raaihank/cv-anonymizer/internal/redact"
)

var redactCmd = &cobra.Command{
	Use:   "redact [file]",
	Short: "Redact one résumé",
	Long:  "Redact one résumé read from a PDF, DOCX or text file, or from stdin when no file is given, and write it as text, a delimited record, JSON or PDF.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runRedact,
}

var (
	redactFirstName string
	redactLastName  string
	redactFormat    string
	redactOutput    string
)

func init() {
	redactCmd.Flags().StringVar(&redactFirstName, "first-name", "", "Known first name, masked before any other rule")
	redactCmd.Flags().StringVar(&redactLastName, "last-name", "", "Known last name, masked before any other rule")
	redactCmd.Flags().StringVarP(&redactFormat, "format", "f", "txt", "Output format: txt, csv, json or pdf")
	redactCmd.Flags().StringVarP(&redactOutput, "output", "o", "", "Output file (default stdout)")

	rootCmd.AddCommand(redactCmd)
}

func runRedact(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	defer log.Sync()

	format, err := export.ParseFormat(redactFormat)
	if err != nil {
		return err
	}

	doc, source, err := readDocument(cmd.InOrStdin(), args, cfg.Server.MaxUploadBytes)
	if err != nil {
		return err
	}

	engine, err := redact.New(cfg.Redaction, log)
	if err != nil {
		return err
	}

	res, err := engine.Redact(doc.Text, redact.OverrideNames{FirstName: redactFirstName, LastName: redactLastName})
	if err != nil {
		return fmt.Errorf("redaction failed: %w", err)
	}
	log.LogRedaction(source, len(doc.Text), countsOf(res))

	var buf bytes.Buffer
	err = export.New(cfg.Export).Write(&buf, format, res, export.Context{
		Source:    source,
		RequestID: uuid.NewString(),
	})
	if err != nil {
		return err
	}

	if redactOutput == "" {
		_, err = cmd.OutOrStdout().Write(buf.Bytes())
		return err
	}
	if err := os.WriteFile(redactOutput, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	log.Info("Redacted document written",
		zap.String("output", redactOutput),
		zap.String("format", string(format)),
		zap.Int("bytes", buf.Len()),
	)
	return nil
}

// readDocument decodes the file named by args, or stdin when args is empty.
func readDocument(stdin io.Reader, args []string, limit int64) (*ingest.Document, string, error) {
	if len(args) == 0 {
		doc, err := ingest.ReadAll(stdin, "", limit)
		return doc, "stdin", err
	}

	f, err := os.Open(args[0])
	if err != nil {
		return nil, "", fmt.Errorf("failed to open input: %w", err)
	}
	defer f.Close()

	doc, err := ingest.ReadAll(f, args[0], limit)
	return doc, filepath.Base(args[0]), err
}

func countsOf(res *redact.Result) map[string]int {
	counts := make(map[string]int, len(res.Statistics))
	for category, n := range res.Statistics {
		counts[string(category)] = n
	}
	return counts
}
