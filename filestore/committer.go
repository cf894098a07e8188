// Package filestore moves received objects into their final location on a
// storage file system.
package filestore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/caio-sobreiro/dicomarchive/dicom"
	archiveerrors "github.com/caio-sobreiro/dicomarchive/errors"
	"github.com/caio-sobreiro/dicomarchive/model"
)

// DefaultMaxCollisionRetries bounds how many suffixed names are tried when
// the formatted path is already taken.
const DefaultMaxCollisionRetries = 10

const incomingDir = "incoming"

// FileSystem is one storage root within a file system group.
type FileSystem struct {
	GroupID string `yaml:"group_id"`
	ID      string `yaml:"id"`
	Root    string `yaml:"root"`
}

// Abs resolves a stored relative path against the root.
func (fsys FileSystem) Abs(rel string) string {
	return filepath.Join(fsys.Root, filepath.FromSlash(rel))
}

// Option configures a Committer.
type Option func(*Committer)

// WithLogger overrides the committer's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Committer) {
		c.logger = logger
	}
}

// WithDigest selects the digest recorded for committed files.
func WithDigest(alg DigestAlgorithm) Option {
	return func(c *Committer) {
		c.digest = alg
	}
}

// WithMaxCollisionRetries overrides DefaultMaxCollisionRetries.
func WithMaxCollisionRetries(n int) Option {
	return func(c *Committer) {
		c.maxCollisionRetries = n
	}
}

// WithClock overrides the time used to format paths.
func WithClock(now func() time.Time) Option {
	return func(c *Committer) {
		c.now = now
	}
}

// Committer places staged files under a FileSystem.
type Committer struct {
	fs                  FileSystem
	format              *PathFormat
	digest              DigestAlgorithm
	maxCollisionRetries int
	now                 func() time.Time
	logger              *slog.Logger

	// mu serializes the free-name check with the rename that claims it. It
	// is shared by every view returned from For.
	mu *sync.Mutex
}

// NewCommitter returns a Committer writing to fsys with paths from format.
func NewCommitter(fsys FileSystem, format *PathFormat, opts ...Option) *Committer {
	c := &Committer{
		fs:                  fsys,
		format:              format,
		maxCollisionRetries: DefaultMaxCollisionRetries,
		now:                 time.Now,
		mu:                  new(sync.Mutex),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	if c.format == nil {
		c.format = MustParsePathFormat(DefaultPathFormat)
	}
	return c
}

// For returns a view of c that formats paths with format and records digest.
// A nil format keeps c's.
func (c *Committer) For(format *PathFormat, digest DigestAlgorithm) *Committer {
	view := *c
	if format != nil {
		view.format = format
	}
	view.digest = digest
	return &view
}

// FileSystem returns the target file system.
func (c *Committer) FileSystem() FileSystem {
	return c.fs
}

// Digest returns the configured digest of the file at path.
func (c *Committer) Digest(path string) (*string, error) {
	sum, err := c.digest.SumFile(path)
	if err != nil {
		return nil, archiveerrors.NewResourceError("digest file", err)
	}
	return sum, nil
}

// Commit moves tempPath to the path derived from ds and returns the file
// reference to register. The file is renamed, not copied, so tempPath must
// live on the same file system as the root. Once Commit returns successfully
// the file belongs to the archive; callers must not remove it if the
// registration fails.
func (c *Committer) Commit(ctx context.Context, tempPath string, ds *dicom.Dataset, transferSyntaxUID string) (*model.FileRef, error) {
	info, err := os.Stat(tempPath)
	if err != nil {
		return nil, archiveerrors.NewResourceError("stat temp file", err)
	}
	digest, err := c.Digest(tempPath)
	if err != nil {
		return nil, err
	}

	rel := c.format.Format(ds, c.now())

	c.mu.Lock()
	defer c.mu.Unlock()

	dst, err := c.reserve(rel)
	if err != nil {
		return nil, err
	}
	abs := c.fs.Abs(dst)
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return nil, archiveerrors.NewResourceError("create directory", err)
	}
	if err := os.Rename(tempPath, abs); err != nil {
		return nil, archiveerrors.NewResourceError("rename file", err)
	}

	c.logger.DebugContext(ctx, "Committed file",
		"fs_id", c.fs.ID,
		"path", dst,
		"size", humanize.Bytes(uint64(info.Size())))

	return &model.FileRef{
		FileSystemGroupID: c.fs.GroupID,
		FileSystemID:      c.fs.ID,
		Path:              dst,
		TransferSyntaxUID: transferSyntaxUID,
		Size:              info.Size(),
		Digest:            digest,
	}, nil
}

// reserve returns rel, or rel with a random suffix when rel is taken.
func (c *Committer) reserve(rel string) (string, error) {
	candidate := rel
	for attempt := 0; ; attempt++ {
		_, err := os.Lstat(c.fs.Abs(candidate))
		if errors.Is(err, fs.ErrNotExist) {
			return candidate, nil
		}
		if err != nil {
			return "", archiveerrors.NewResourceError("check path", err)
		}
		if attempt == c.maxCollisionRetries {
			return "", archiveerrors.NewResourceError("reserve path",
				fmt.Errorf("%s still taken after %d attempts", rel, attempt))
		}
		c.logger.Debug("Storage path taken, retrying with suffix", "path", candidate, "attempt", attempt+1)
		candidate = rel + "-" + strings.SplitN(uuid.NewString(), "-", 2)[0]
	}
}

// StageTemp copies r into a new file under the root's incoming directory and
// returns its path and size. The staged file is on the same file system as
// the committed ones, so Commit can rename it.
func (c *Committer) StageTemp(r io.Reader) (string, int64, error) {
	dir := filepath.Join(c.fs.Root, incomingDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", 0, archiveerrors.NewResourceError("create incoming directory", err)
	}
	path := filepath.Join(dir, uuid.NewString()+".part")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return "", 0, archiveerrors.NewResourceError("create temp file", err)
	}
	n, err := io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path)
		return "", 0, archiveerrors.NewResourceError("write temp file", err)
	}
	return path, n, nil
}

// Remove deletes the file of ref. A missing file is not an error.
func (c *Committer) Remove(ref model.FileRef) error {
	if ref.FileSystemID != c.fs.ID {
		return fmt.Errorf("file %s belongs to file system %s, not %s", ref.Path, ref.FileSystemID, c.fs.ID)
	}
	err := os.Remove(c.fs.Abs(ref.Path))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
