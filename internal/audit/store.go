package audit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/raaihank/cv-anonymizer/internal/config"
	"github.com/raaihank/cv-anonymizer/internal/logger"
	"go.uber.org/zap"
)

const schema = `
CREATE TABLE IF NOT EXISTS redaction_audit (
	id           BIGSERIAL PRIMARY KEY,
	request_id   TEXT        NOT NULL,
	source_kind  TEXT        NOT NULL,
	input_bytes  INTEGER     NOT NULL,
	counts       JSONB       NOT NULL DEFAULT '{}',
	sections     JSONB       NOT NULL DEFAULT '[]',
	duration_ms  BIGINT      NOT NULL DEFAULT 0,
	processed_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

const entryColumns = "request_id, source_kind, input_bytes, counts, sections, duration_ms, processed_at"

// Store writes audit entries to PostgreSQL
type Store struct {
	db     *sqlx.DB
	logger *logger.Logger
}

// NewStore connects to the audit database and ensures the table exists
func NewStore(cfg config.AuditConfig, log *logger.Logger) (*Store, error) {
	db, err := sqlx.Connect("postgres", cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	store := NewWithDB(db, log)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := store.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize audit store: %w", err)
	}

	store.logger.Info("Audit store initialized",
		zap.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
		zap.Int("max_open_conns", cfg.MaxOpenConns),
	)

	return store, nil
}

// NewWithDB wraps an existing connection.
func NewWithDB(db *sqlx.DB, log *logger.Logger) *Store {
	return &Store{db: db, logger: log.WithComponent("audit")}
}

// EnsureSchema creates the audit table when missing
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create redaction_audit: %w", err)
	}
	return nil
}

// Insert adds one entry and fills in its ID.
func (s *Store) Insert(ctx context.Context, e *Entry) error {
	if e.ProcessedAt.IsZero() {
		e.ProcessedAt = time.Now().UTC()
	}

	query := `INSERT INTO redaction_audit (` + entryColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`

	err := s.db.QueryRowxContext(ctx, query,
		e.RequestID, e.SourceKind, e.InputBytes, e.Counts, e.Sections, e.DurationMs, e.ProcessedAt,
	).Scan(&e.ID)
	if err != nil {
		s.logger.Error("Failed to insert audit entry", zap.Error(err), zap.String("request_id", e.RequestID))
		return fmt.Errorf("failed to insert audit entry: %w", err)
	}

	s.logger.Debug("Audit entry inserted", zap.Int64("id", e.ID), zap.String("request_id", e.RequestID))
	return nil
}

// BatchInsert adds entries with a single multi-row statement
func (s *Store) BatchInsert(ctx context.Context, entries []*Entry) (*BatchInsertResult, error) {
	if len(entries) == 0 {
		return &BatchInsertResult{}, nil
	}

	start := time.Now()
	const cols = 7
	valueStrings := make([]string, 0, len(entries))
	valueArgs := make([]interface{}, 0, len(entries)*cols)

	for i, e := range entries {
		if e.ProcessedAt.IsZero() {
			e.ProcessedAt = time.Now().UTC()
		}
		n := i * cols
		valueStrings = append(valueStrings, fmt.Sprintf("($%d, $%d, $%d, $%d, $%d, $%d, $%d)", n+1, n+2, n+3, n+4, n+5, n+6, n+7))
		valueArgs = append(valueArgs, e.RequestID, e.SourceKind, e.InputBytes, e.Counts, e.Sections, e.DurationMs, e.ProcessedAt)
	}

	query := `INSERT INTO redaction_audit (` + entryColumns + `) VALUES ` + strings.Join(valueStrings, ", ")
	res, err := s.db.ExecContext(ctx, query, valueArgs...)
	if err != nil {
		s.logger.Error("Batch audit insert failed", zap.Error(err), zap.Int("entries", len(entries)))
		return nil, fmt.Errorf("batch insert failed: %w", err)
	}

	inserted, _ := res.RowsAffected()
	result := &BatchInsertResult{Inserted: inserted, Duration: time.Since(start)}

	s.logger.Debug("Batch audit insert completed",
		zap.Int64("inserted", result.Inserted),
		zap.Duration("duration", result.Duration))

	return result, nil
}

// Recent returns the latest entries, newest first
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}

	var entries []Entry
	query := `SELECT id, ` + entryColumns + ` FROM redaction_audit ORDER BY processed_at DESC, id DESC LIMIT $1`
	if err := s.db.SelectContext(ctx, &entries, query, limit); err != nil {
		return nil, fmt.Errorf("failed to list audit entries: %w", err)
	}
	return entries, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// maskDatabaseURL hides the password of a connection URL for logging
func maskDatabaseURL(url string) string {
	at := strings.LastIndex(url, "@")
	scheme := strings.Index(url, "://")
	if at < 0 || scheme < 0 || scheme > at {
		return url
	}
	userinfo := url[scheme+3 : at]
	if colon := strings.Index(userinfo, ":"); colon >= 0 {
		return url[:scheme+3] + userinfo[:colon+1] + "***" + url[at:]
	}
	return url
}
