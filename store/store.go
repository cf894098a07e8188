// Package store persists the archive hierarchy in SQLite.
//
// Every identity table carries a UNIQUE index on its natural key and rows are
// created with INSERT ... ON CONFLICT DO NOTHING followed by a SELECT, so two
// writers racing to create the same patient, study, series, issuer or code
// end up sharing one row. Write transactions begin IMMEDIATE, which
// serializes writers at BEGIN instead of failing on a lock upgrade.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/caio-sobreiro/dicomarchive/dicom"
)

// Option configures a Store.
type Option func(*Store)

// WithLogger overrides the logger used by the store.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// WithCodec overrides the dataset codec used for blobs.
func WithCodec(codec dicom.Codec) Option {
	return func(s *Store) {
		s.codec = codec
	}
}

// Store wraps a pooled sqlx.DB connection to the archive database.
type Store struct {
	db         *sqlx.DB
	codec      dicom.Codec
	logger     *slog.Logger
	maxRetries int
}

// Open constructs a Store backed by the SQLite database at path with default
// pool settings.
func Open(path string, opts ...Option) (*Store, error) {
	return OpenWithConfig(Config{Path: path}, opts...)
}

// OpenWithConfig constructs a Store using the provided configuration. The
// schema is created on first use.
func OpenWithConfig(cfg Config, opts ...Option) (*Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path required")
	}
	cfg.ApplyDefaults()
	abs, err := filepath.Abs(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("resolve sqlite path: %w", err)
	}
	dsn := fmt.Sprintf(
		"file:%s?_pragma=busy_timeout(%d)&_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=case_sensitive_like(1)&_txlock=immediate",
		abs, cfg.BusyTimeout.Milliseconds())
	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.BusyTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	s := &Store{db: db, maxRetries: cfg.MaxRetries}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.codec == nil {
		s.codec = dicom.ExplicitVRCodec{}
	}

	if err := s.migrate(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	s.logger.Debug("Opened archive database", "path", abs, "max_open_conns", cfg.MaxOpenConns)
	return s, nil
}

// Close releases the underlying database resources.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB exposes the underlying sqlx.DB for query sessions.
func (s *Store) DB() *sqlx.DB {
	return s.db
}

// Codec returns the codec used for attribute blobs.
func (s *Store) Codec() dicom.Codec {
	return s.codec
}

// Logger returns the store's logger.
func (s *Store) Logger() *slog.Logger {
	return s.logger
}

func (s *Store) migrate(ctx context.Context) error {
	return withTx(ctx, s.db, func(tx *sqlx.Tx) error {
		for i, stmt := range schemaStatements {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("execute schema statement %d: %w", i+1, err)
			}
		}
		return nil
	})
}

func now() time.Time {
	return time.Now().UTC()
}
