package eventstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/loqalabs/loqa-accent/internal/config"
	_ "modernc.org/sqlite"
)

const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// ErrNotFound is returned when no analysis matches a request id.
var ErrNotFound = errors.New("analysis not found")

// Record is one analysis outcome. Scores and Features hold JSON documents.
type Record struct {
	ID          int64
	RequestID   string
	Source      string
	Status      string
	Label       string
	Confidence  float64
	Tier        string
	Explanation string
	Scores      []byte
	Features    []byte
	FailedStage string
	Error       string
	CreatedAt   time.Time
}

// Store wraps a SQLite-backed analysis log.
type Store struct {
	db    *sql.DB
	cfg   config.EventStoreConfig
	log   *slog.Logger
	clock func() time.Time
}

// Open initializes the store according to config. Ephemeral mode keeps
// nothing and never touches disk.
func Open(ctx context.Context, cfg config.EventStoreConfig, log *slog.Logger) (*Store, error) {
	if cfg.RetentionMode == "ephemeral" {
		return &Store{cfg: cfg, log: log, clock: time.Now}, nil
	}

	dir := filepath.Dir(cfg.Path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", cfg.Path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	s := &Store{db: db, cfg: cfg, log: log, clock: time.Now}

	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}

	if cfg.VacuumOnStart {
		if err := s.vacuum(ctx); err != nil {
			log.Warn("analysis store vacuum failed", slog.String("error", err.Error()))
		}
	}

	if err := s.Prune(ctx); err != nil {
		log.Warn("analysis store prune on start failed", slog.String("error", err.Error()))
	}

	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	ddl := `
CREATE TABLE IF NOT EXISTS analyses (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    request_id TEXT NOT NULL UNIQUE,
    source TEXT,
    status TEXT NOT NULL,
    label TEXT,
    confidence REAL,
    tier TEXT,
    explanation TEXT,
    scores BLOB,
    features BLOB,
    failed_stage TEXT,
    error TEXT,
    created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_analyses_created ON analyses(created_at);
`
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	return nil
}

func (s *Store) vacuum(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	_, err := s.db.ExecContext(ctx, "VACUUM")
	return err
}

// Close releases underlying resources.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) disabled() bool {
	return s.cfg.RetentionMode == "ephemeral" || s.db == nil
}

// Append writes an analysis outcome. Re-recording a request id replaces the
// previous outcome.
func (s *Store) Append(ctx context.Context, rec Record) error {
	if s.disabled() {
		return nil
	}
	if rec.RequestID == "" {
		return errors.New("record requires a request id")
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.clock().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO analyses(request_id, source, status, label, confidence, tier, explanation, scores, features, failed_stage, error, created_at)
		 VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(request_id) DO UPDATE SET
		   source=excluded.source, status=excluded.status, label=excluded.label,
		   confidence=excluded.confidence, tier=excluded.tier, explanation=excluded.explanation,
		   scores=excluded.scores, features=excluded.features, failed_stage=excluded.failed_stage,
		   error=excluded.error, created_at=excluded.created_at`,
		rec.RequestID, rec.Source, rec.Status, rec.Label, rec.Confidence, rec.Tier, rec.Explanation,
		rec.Scores, rec.Features, rec.FailedStage, rec.Error, rec.CreatedAt)
	return err
}

const selectColumns = `SELECT id, request_id, source, status, label, confidence, tier, explanation, scores, features, failed_stage, error, created_at FROM analyses`

// Get returns the analysis recorded for requestID.
func (s *Store) Get(ctx context.Context, requestID string) (Record, error) {
	if s.disabled() {
		return Record{}, ErrNotFound
	}
	row := s.db.QueryRowContext(ctx, selectColumns+` WHERE request_id = ?`, requestID)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	return rec, err
}

// List returns up to limit analyses, newest first.
func (s *Store) List(ctx context.Context, limit int) ([]Record, error) {
	if s.disabled() {
		return nil, nil
	}
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, selectColumns+` ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (Record, error) {
	var (
		r                                                 Record
		source, label, tier, explanation, stage, errorMsg sql.NullString
		confidence                                        sql.NullFloat64
		created                                           string
	)
	if err := row.Scan(&r.ID, &r.RequestID, &source, &r.Status, &label, &confidence, &tier, &explanation,
		&r.Scores, &r.Features, &stage, &errorMsg, &created); err != nil {
		return Record{}, err
	}
	r.Source, r.Label, r.Tier, r.Explanation = source.String, label.String, tier.String, explanation.String
	r.FailedStage, r.Error, r.Confidence = stage.String, errorMsg.String, confidence.Float64
	r.CreatedAt = parseTimestamp(created)
	return r, nil
}

func parseTimestamp(value string) time.Time {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02 15:04:05.999999999-07:00", "2006-01-02 15:04:05.999999999 -0700 MST"} {
		if ts, err := time.Parse(layout, value); err == nil {
			return ts
		}
	}
	return time.Time{}
}

// Prune applies configured retention (called on startup and can be scheduled).
func (s *Store) Prune(ctx context.Context) error {
	if s.disabled() {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if s.cfg.RetentionDays > 0 {
		cutoff := s.clock().Add(-time.Duration(s.cfg.RetentionDays) * 24 * time.Hour)
		if _, err = tx.ExecContext(ctx, `DELETE FROM analyses WHERE created_at < ?`, cutoff.UTC()); err != nil {
			return err
		}
	}
	if s.cfg.MaxRecords > 0 {
		_, err = tx.ExecContext(ctx, `DELETE FROM analyses WHERE id IN (
			SELECT id FROM analyses ORDER BY created_at DESC, id DESC LIMIT -1 OFFSET ?
		)`, s.cfg.MaxRecords)
		if err != nil {
			return err
		}
	}
	err = tx.Commit()
	return err
}

// Ensure verifies ephemeral stores carry no database handle.
func (s *Store) Ensure() error {
	if s.cfg.RetentionMode == "ephemeral" && s.db != nil {
		return errors.New("ephemeral store should not have database connection")
	}
	return nil
}
