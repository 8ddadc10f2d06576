package batch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/raaihank/cv-anonymizer/internal/audit"
	"github.com/raaihank/cv-anonymizer/internal/config"
	"github.com/raaihank/cv-anonymizer/internal/logger"
	"github.com/raaihank/cv-anonymizer/internal/redact"
	"github.com/raaihank/cv-anonymizer/internal/sections"
	"github.com/raaihank/cv-anonymizer/internal/stats"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Auditor stores one audit entry per redacted record
type Auditor interface {
	BatchInsert(ctx context.Context, entries []*audit.Entry) (*audit.BatchInsertResult, error)
}

// Pipeline redacts datasets in batches with a bounded worker pool
type Pipeline struct {
	engine   *redact.Engine
	config   config.BatchConfig
	logger   *logger.Logger
	auditor  Auditor
	recorder stats.Recorder
	stats    *ProcessingStats
	mu       sync.RWMutex
}

// NewPipeline creates a new batch pipeline
func NewPipeline(engine *redact.Engine, cfg config.BatchConfig, log *logger.Logger) *Pipeline {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 200
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	return &Pipeline{
		engine: engine,
		config: cfg,
		logger: log.WithComponent("batch"),
		stats:  &ProcessingStats{StartTime: time.Now()},
	}
}

// WithAudit writes an audit entry for every record
func (p *Pipeline) WithAudit(a Auditor) *Pipeline {
	p.auditor = a
	return p
}

// WithRecorder adds every record to the aggregated counters
func (p *Pipeline) WithRecorder(r stats.Recorder) *Pipeline {
	p.recorder = r
	return p
}

// ProcessFile redacts inputPath into outputPath. Formats follow the file extensions.
func (p *Pipeline) ProcessFile(ctx context.Context, inputPath, outputPath string) (*ProcessingResult, error) {
	src, err := OpenSource(inputPath)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	sink, err := CreateSink(outputPath)
	if err != nil {
		return nil, err
	}

	format, _ := DetectFileFormat(inputPath)
	p.logger.Info("Starting batch redaction",
		zap.String("input", inputPath),
		zap.String("output", outputPath),
		zap.Int("batch_size", p.config.BatchSize),
		zap.Int("workers", p.config.Workers),
	)

	result, err := p.Process(ctx, src, sink, "batch:"+string(format))
	if cerr := sink.Close(); cerr != nil && err == nil {
		err = fmt.Errorf("failed to close output: %w", cerr)
	}
	return result, err
}

// Process drains src into sink. Records that fail redaction are written with
// their error and no text; a failing sink or a cancelled ctx stops the run.
func (p *Pipeline) Process(ctx context.Context, src Source, sink Sink, sourceKind string) (*ProcessingResult, error) {
	start := time.Now()
	runID := uuid.NewString()
	result := &ProcessingResult{Masked: make(map[string]int64)}
	p.resetStats()

	var n int64
	for {
		if err := ctx.Err(); err != nil {
			return p.finish(result, start), err
		}

		batch, eof, err := p.readBatch(src, result, &n)
		if err != nil {
			return p.finish(result, start), fmt.Errorf("failed to read batch: %w", err)
		}

		if len(batch) > 0 {
			if err := p.processBatch(ctx, runID, sourceKind, batch, sink, result); err != nil {
				return p.finish(result, start), err
			}
		}

		if eof {
			break
		}
	}

	p.finish(result, start)
	p.logger.Info("Batch redaction completed",
		zap.String("run_id", runID),
		zap.Int64("total_records", result.TotalRecords),
		zap.Int64("processed_ok", result.ProcessedOK),
		zap.Int64("processed_failed", result.ProcessedFailed),
		zap.Duration("total_duration", result.Duration),
		zap.Duration("redaction_time", result.RedactionTime),
		zap.Duration("audit_time", result.AuditTime),
	)
	return result, nil
}

type indexed struct {
	rec *InputRecord
	n   int64
}

// readBatch reads up to BatchSize records. Malformed rows are counted and skipped.
func (p *Pipeline) readBatch(src Source, result *ProcessingResult, n *int64) ([]indexed, bool, error) {
	batch := make([]indexed, 0, p.config.BatchSize)
	for len(batch) < p.config.BatchSize {
		rec, err := src.Next()
		if err == io.EOF {
			return batch, true, nil
		}
		*n++
		if errors.Is(err, errSkip) {
			p.logger.Warn("Skipping malformed record", zap.Error(err))
			result.TotalRecords++
			result.ProcessedFailed++
			result.Skipped++
			result.addError(err.Error())
			continue
		}
		if err != nil {
			return batch, false, err
		}
		batch = append(batch, indexed{rec: rec, n: *n})
	}
	return batch, false, nil
}

// processBatch redacts every record of batch concurrently, then writes the
// outputs in input order.
func (p *Pipeline) processBatch(ctx context.Context, runID, sourceKind string, batch []indexed, sink Sink, result *ProcessingResult) error {
	outputs := make([]*OutputRecord, len(batch))
	durations := make([]time.Duration, len(batch))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.config.Workers)

	redactStart := time.Now()
	for i, item := range batch {
		i, item := i, item
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			start := time.Now()
			outputs[i] = p.redactRecord(item)
			durations[i] = time.Since(start)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	result.RedactionTime += time.Since(redactStart)

	entries := make([]*audit.Entry, 0, len(outputs))
	for i, out := range outputs {
		if err := sink.Write(out); err != nil {
			return fmt.Errorf("failed to write record %s: %w", out.ID, err)
		}

		result.TotalRecords++
		if out.Error != "" {
			result.ProcessedFailed++
			result.addError(fmt.Sprintf("record %s: %s", out.ID, out.Error))
			continue
		}
		result.ProcessedOK++
		for category, count := range out.Counts {
			result.Masked[category] += int64(count)
		}

		if p.recorder != nil {
			if err := p.recorder.Record(ctx, toRun(sourceKind, out)); err != nil {
				p.logger.Warn("Failed to record stats", zap.Error(err))
			}
		}

		entries = append(entries, &audit.Entry{
			RequestID:  runID + "/" + out.ID,
			SourceKind: sourceKind,
			InputBytes: len(batch[i].rec.Text),
			Counts:     audit.Counts(out.Counts),
			Sections:   audit.SectionSet(out.Sections),
			DurationMs: durations[i].Milliseconds(),
		})
	}

	if p.auditor != nil && len(entries) > 0 {
		auditStart := time.Now()
		if _, err := p.auditor.BatchInsert(ctx, entries); err != nil {
			p.logger.Warn("Failed to write audit entries", zap.Int("entries", len(entries)), zap.Error(err))
		}
		result.AuditTime += time.Since(auditStart)
	}

	p.mu.Lock()
	p.stats.CurrentBatch++
	p.mu.Unlock()
	p.updateStats(result)

	if p.config.ProgressReport > 0 && result.TotalRecords/int64(p.config.ProgressReport) != (result.TotalRecords-int64(len(batch)))/int64(p.config.ProgressReport) {
		p.reportProgress(result)
	}
	return nil
}

// redactRecord is one independent redaction; it fails closed.
func (p *Pipeline) redactRecord(item indexed) *OutputRecord {
	out := &OutputRecord{ID: rowID(item.rec.ID, item.n)}

	res, err := p.engine.Redact(item.rec.Text, redact.OverrideNames{
		FirstName: item.rec.FirstName,
		LastName:  item.rec.LastName,
	})
	if err != nil {
		out.Error = err.Error()
		out.Counts = map[string]int{}
		out.Sections = []string{}
		return out
	}

	out.RedactedText = res.Redacted
	out.Counts = make(map[string]int, len(res.Statistics))
	for category, count := range res.Statistics {
		out.Counts[string(category)] = count
	}
	found := sections.Detect(res.Redacted).Found()
	out.Sections = make([]string, len(found))
	for i, s := range found {
		out.Sections[i] = string(s)
	}
	return out
}

func toRun(sourceKind string, out *OutputRecord) stats.Run {
	run := stats.Run{
		Source: sourceKind,
		Counts: make(map[redact.Category]int, len(out.Counts)),
	}
	for category, count := range out.Counts {
		run.Counts[redact.Category(category)] = count
	}
	for _, s := range out.Sections {
		run.Sections = append(run.Sections, sections.Section(s))
	}
	return run
}

func (p *Pipeline) finish(result *ProcessingResult, start time.Time) *ProcessingResult {
	result.Duration = time.Since(start)
	p.updateStats(result)
	return result
}

// reportProgress reports current processing progress
func (p *Pipeline) reportProgress(result *ProcessingResult) {
	snapshot := p.GetStats()
	p.logger.Info("Processing progress",
		zap.Int64("records_processed", result.TotalRecords),
		zap.Int64("records_ok", result.ProcessedOK),
		zap.Int64("records_failed", result.ProcessedFailed),
		zap.Float64("rate_per_sec", snapshot.ProcessingRate),
		zap.Duration("elapsed", time.Since(snapshot.StartTime)),
	)
}

func (p *Pipeline) updateStats(result *ProcessingResult) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stats.RecordsRead = result.TotalRecords
	p.stats.RecordsWritten = result.TotalRecords - result.Skipped
	p.stats.RecordsFailed = result.ProcessedFailed
	if elapsed := time.Since(p.stats.StartTime).Seconds(); elapsed > 0 {
		p.stats.ProcessingRate = float64(result.TotalRecords) / elapsed
	}
}

// resetStats resets processing statistics
func (p *Pipeline) resetStats() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stats = &ProcessingStats{StartTime: time.Now()}
}

// GetStats returns current processing statistics
func (p *Pipeline) GetStats() *ProcessingStats {
	p.mu.RLock()
	defer p.mu.RUnlock()

	stats := *p.stats
	return &stats
}
