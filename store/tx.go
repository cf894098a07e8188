package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jmoiron/sqlx"

	archiveerrors "github.com/caio-sobreiro/dicomarchive/errors"
)

// SQLite result codes the store retries on. Extended codes keep the primary
// code in the low byte.
const (
	sqliteBusy             = 5
	sqliteLocked           = 6
	sqliteConstraintUnique = 2067
	sqliteConstraintPK     = 1555
)

func withTx(ctx context.Context, db *sqlx.DB, fn func(*sqlx.Tx) error) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// Tx is a write transaction on the archive. It remembers files moved into
// the storage area while it is open so a failure can be reported against
// them.
type Tx struct {
	*sqlx.Tx
	store *Store
	files []string
}

// TrackFile records that path now holds committed bytes whose registration
// depends on this transaction.
func (tx *Tx) TrackFile(path string) {
	tx.files = append(tx.files, path)
}

// Update runs fn in one IMMEDIATE transaction. Busy and uniqueness conflicts
// re-run the whole transaction with exponential backoff, up to the configured
// number of retries. Once fn has moved a file into place, a failure is no
// longer retried and is returned as an IntegrityError naming the file.
func (s *Store) Update(ctx context.Context, fn func(*Tx) error) error {
	attempt := 0
	op := func() error {
		attempt++
		err := s.runTx(ctx, fn)
		if err == nil {
			return nil
		}
		var ie *archiveerrors.IntegrityError
		if errors.As(err, &ie) || !retryable(err) {
			return backoff.Permanent(err)
		}
		s.logger.DebugContext(ctx, "Retrying conflicting transaction", "attempt", attempt, "error", err)
		return err
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 5 * time.Millisecond
	b.MaxInterval = 250 * time.Millisecond
	err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(b, uint64(s.maxRetries)), ctx))
	if err != nil && retryable(err) {
		return archiveerrors.NewResourceError("transaction", err)
	}
	return err
}

func (s *Store) runTx(ctx context.Context, fn func(*Tx) error) error {
	stx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return archiveerrors.NewResourceError("begin transaction", err)
	}
	tx := &Tx{Tx: stx, store: s}
	if err := fn(tx); err != nil {
		stx.Rollback()
		return tx.orphaned(err)
	}
	if err := stx.Commit(); err != nil {
		return tx.orphaned(fmt.Errorf("commit: %w", err))
	}
	return nil
}

func (tx *Tx) orphaned(err error) error {
	if len(tx.files) == 0 {
		return err
	}
	var ie *archiveerrors.IntegrityError
	if errors.As(err, &ie) {
		return err
	}
	return archiveerrors.NewIntegrityError(tx.files[len(tx.files)-1], err)
}

type coder interface {
	Code() int
}

func retryable(err error) bool {
	var re *archiveerrors.ResourceError
	if errors.As(err, &re) {
		err = re.Err
	}
	var c coder
	if !errors.As(err, &c) {
		return false
	}
	code := c.Code()
	switch {
	case code&0xff == sqliteBusy, code&0xff == sqliteLocked:
		return true
	case code == sqliteConstraintUnique, code == sqliteConstraintPK:
		return true
	}
	return false
}
