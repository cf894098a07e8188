package interfaces

import (
	"context"
	"io"

	"github.com/caio-sobreiro/dicomarchive/dicom"
	"github.com/caio-sobreiro/dicomarchive/ingest"
	"github.com/caio-sobreiro/dicomarchive/types"
)

// Ingester files a received object into the archive.
type Ingester interface {
	Ingest(ctx context.Context, req ingest.Request) (*ingest.Result, error)
}

// Stager writes received bytes to a temp file inside the storage file system.
type Stager interface {
	StageTemp(r io.Reader) (string, int64, error)
}

// QuerySession iterates the matches of one C-FIND identifier.
type QuerySession interface {
	Find(ctx context.Context, keys *dicom.Dataset) error
	HasNext() (bool, error)
	Next() (*dicom.Dataset, error)
	OptionalKeyNotSupported() bool
	Close() error
}

// QueryProvider opens query sessions on behalf of a called AE.
type QueryProvider interface {
	NewQuery(level types.QueryLevel, calledAET string, relational bool) (QuerySession, error)
}
