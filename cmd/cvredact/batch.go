package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/raaihank/cv-anonymizer/internal/audit"
	"github.com/raaihank/cv-anonymizer/internal/batch"
	"github.com/raaihank/cv-anonymizer/internal/redact"
	"github.com/raaihank/cv-anonymizer/internal/stats"
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Redact a dataset of résumés",
	Long: `Redact every record of a CSV, JSON Lines or Parquet dataset. Input records carry
an id, a text and optional first_name and last_name overrides. Formats follow the
file extensions.`,
	Example: `  cvredact batch --input cvs.csv --output redacted.jsonl
  cvredact batch --input cvs.parquet --output redacted.parquet --workers 8 --audit`,
	RunE: runBatch,
}

var (
	batchInput    string
	batchOutput   string
	batchSize     int
	batchWorkers  int
	batchAudit    bool
	batchNoRecord bool
)

func init() {
	batchCmd.Flags().StringVarP(&batchInput, "input", "i", "", "Input dataset (.csv, .jsonl, .parquet)")
	batchCmd.Flags().StringVarP(&batchOutput, "output", "o", "", "Output dataset (.csv, .jsonl, .parquet)")
	batchCmd.Flags().IntVar(&batchSize, "batch-size", 0, "Records per batch (default from config)")
	batchCmd.Flags().IntVar(&batchWorkers, "workers", 0, "Concurrent redactions (default from config)")
	batchCmd.Flags().BoolVar(&batchAudit, "audit", false, "Write one audit entry per record to PostgreSQL")
	batchCmd.Flags().BoolVar(&batchNoRecord, "no-stats", false, "Do not add records to the aggregated counters")
	_ = batchCmd.MarkFlagRequired("input")
	_ = batchCmd.MarkFlagRequired("output")

	rootCmd.AddCommand(batchCmd)
}

func runBatch(cmd *cobra.Command, _ []string) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	defer log.Sync()

	if _, err := os.Stat(batchInput); err != nil {
		return fmt.Errorf("input file does not exist: %s", batchInput)
	}

	if batchSize > 0 {
		cfg.Batch.BatchSize = batchSize
	}
	if batchWorkers > 0 {
		cfg.Batch.Workers = batchWorkers
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	engine, err := redact.New(cfg.Redaction, log)
	if err != nil {
		return err
	}
	pipeline := batch.NewPipeline(engine, cfg.Batch, log)

	if batchAudit || cfg.Audit.Enabled {
		store, err := audit.NewStore(cfg.Audit, log)
		if err != nil {
			return err
		}
		defer store.Close()
		pipeline.WithAudit(store)
	}

	if !batchNoRecord {
		recorder, err := stats.New(cfg.Stats, log)
		if err != nil {
			return err
		}
		defer recorder.Close()
		pipeline.WithRecorder(recorder)
	}

	result, err := pipeline.ProcessFile(ctx, batchInput, batchOutput)
	if err != nil {
		if result != nil && ctx.Err() != nil {
			log.Warn("Batch interrupted", zap.Int64("records_written", result.TotalRecords-result.Skipped))
		}
		return fmt.Errorf("batch processing failed: %w", err)
	}

	if len(result.Errors) > 0 {
		log.Warn("Processing completed with errors", zap.Strings("errors", result.Errors))
	}

	printResult(cmd, result)
	return nil
}

func printResult(cmd *cobra.Command, result *batch.ProcessingResult) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Records:   %d\n", result.TotalRecords)
	fmt.Fprintf(out, "Redacted:  %d\n", result.ProcessedOK)
	fmt.Fprintf(out, "Failed:    %d (skipped %d)\n", result.ProcessedFailed, result.Skipped)
	fmt.Fprintf(out, "Duration:  %v\n", result.Duration)
	for _, category := range redact.Categories {
		if n := result.Masked[string(category)]; n > 0 {
			fmt.Fprintf(out, "  %-12s %d\n", category, n)
		}
	}
}

// statsContext bounds calls to the stats and audit backends.
func statsContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), statsTimeout)
}
