package query

import (
	"log/slog"

	"github.com/caio-sobreiro/dicomarchive/config"
	"github.com/caio-sobreiro/dicomarchive/interfaces"
	"github.com/caio-sobreiro/dicomarchive/store"
	"github.com/caio-sobreiro/dicomarchive/types"
)

// Provider opens sessions with the matching options of the called AE.
type Provider struct {
	store   *store.Store
	archive *config.Archive
	logger  *slog.Logger
}

// NewProvider returns a Provider over st. A nil logger means slog.Default().
func NewProvider(st *store.Store, archive *config.Archive, logger *slog.Logger) *Provider {
	if logger == nil {
		logger = slog.Default()
	}
	return &Provider{store: st, archive: archive, logger: logger}
}

// NewQuery implements interfaces.QueryProvider.
func (p *Provider) NewQuery(level types.QueryLevel, calledAET string, relational bool) (interfaces.QuerySession, error) {
	opts := OptionsFor(p.archive.AE(calledAET))
	opts.Relational = relational
	opts.Logger = p.logger.With("called_aet", calledAET)
	s, err := NewSession(p.store, level, opts)
	if err != nil {
		return nil, err
	}
	return s, nil
}
