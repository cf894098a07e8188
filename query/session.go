// Package query answers C-FIND identifiers against the archive store.
//
// A Session runs one query. Find translates the keys into a joined SQL query
// over the patient, study, series and instance tables; HasNext and Next then
// stream the matches, rebuilding each result from the stored attribute blobs
// of its levels and the computed aggregate attributes.
package query

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"runtime"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/caio-sobreiro/dicomarchive/attrfilter"
	"github.com/caio-sobreiro/dicomarchive/config"
	"github.com/caio-sobreiro/dicomarchive/dicom"
	archiveerrors "github.com/caio-sobreiro/dicomarchive/errors"
	"github.com/caio-sobreiro/dicomarchive/model"
	"github.com/caio-sobreiro/dicomarchive/store"
	"github.com/caio-sobreiro/dicomarchive/types"
)

const (
	depthPatient = iota
	depthStudy
	depthSeries
	depthInstance
)

// Options controls how keys are matched.
type Options struct {
	// MatchUnknown also accepts records whose attribute is empty.
	MatchUnknown bool
	// FuzzyMatching enables phonetic person name matching for FuzzyFields.
	FuzzyMatching bool
	FuzzyFields   []dicom.Tag
	// CaseInsensitivePN compares person names ignoring case.
	CaseInsensitivePN bool
	// Relational lifts the hierarchical requirement of unique keys for the
	// levels above the query level.
	Relational bool
	// Filters tells which attributes the stored blobs hold. Nil means the
	// built-in filters.
	Filters *attrfilter.Set
	Logger  *slog.Logger
}

// OptionsFor returns the matching options configured for ae.
func OptionsFor(ae *config.AE) Options {
	return Options{
		MatchUnknown:      ae.MatchUnknown,
		FuzzyMatching:     ae.FuzzyMatching,
		FuzzyFields:       ae.FuzzyFields,
		CaseInsensitivePN: ae.CaseInsensitivePN,
		Filters:           ae.Filters,
	}
}

func (o Options) fuzzy(tag dicom.Tag) bool {
	if !o.FuzzyMatching {
		return false
	}
	for _, t := range o.FuzzyFields {
		if t == tag {
			return true
		}
	}
	return false
}

func (o Options) filters() *attrfilter.Set {
	if o.Filters == nil {
		return attrfilter.Default()
	}
	return o.Filters
}

type state int

const (
	stateCreated state = iota
	stateExecuting
	stateDraining
	stateClosed
)

func (s state) String() string {
	switch s {
	case stateCreated:
		return "created"
	case stateExecuting:
		return "executing"
	case stateDraining:
		return "draining"
	}
	return "closed"
}

// cursor owns the open result set of a session. It is separate from the
// Session so an abandoned session can be collected while the cleanup still
// reaches the rows.
type cursor struct {
	rows   *sqlx.Rows
	cancel context.CancelFunc
}

func (c *cursor) close() {
	if c.rows != nil {
		c.rows.Close()
		c.rows = nil
	}
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
}

// seriesCache holds the merged patient, study and series attributes of the
// series the instance cursor is positioned in.
type seriesCache struct {
	pk    int64
	attrs *dicom.Dataset
}

// Session is one C-FIND query. It is not safe for concurrent use.
type Session struct {
	db     *sqlx.DB
	codec  dicom.Codec
	level  types.QueryLevel
	depth  int
	opts   Options
	logger *slog.Logger

	state       state
	ctx         context.Context
	keys        *dicom.Dataset
	cur         *cursor
	cleanup     runtime.Cleanup
	pending     *dicom.Dataset
	done        bool
	unsupported bool
	cache       seriesCache
	matches     int
}

// NewSession prepares a query at level against st.
func NewSession(st *store.Store, level types.QueryLevel, opts Options) (*Session, error) {
	depth := level.Depth()
	if depth < 0 {
		return nil, fmt.Errorf("%w: %q", archiveerrors.ErrUnknownLevel, string(level))
	}
	s := &Session{
		db:     st.DB(),
		codec:  st.Codec(),
		level:  level,
		depth:  depth,
		opts:   opts,
		logger: opts.Logger,
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s, nil
}

// Level returns the session's query level.
func (s *Session) Level() types.QueryLevel {
	return s.level
}

// OptionalKeyNotSupported reports whether the keys of Find carried a value
// for an attribute the archive cannot match on. Such keys are ignored.
func (s *Session) OptionalKeyNotSupported() bool {
	return s.unsupported
}

// Find starts the query. The result set stays bound to ctx: cancelling it
// ends the session's iteration with ctx's error.
func (s *Session) Find(ctx context.Context, keys *dicom.Dataset) error {
	switch s.state {
	case stateClosed:
		return archiveerrors.ErrSessionClosed
	case stateCreated:
	default:
		return archiveerrors.ErrSessionActive
	}
	if keys == nil {
		keys = dicom.NewDataset()
	}

	b := keyBuilder{keys: keys, depth: s.depth, opts: s.opts}
	where, err := b.build()
	if err != nil {
		return err
	}
	filters := s.opts.filters()
	for tag, el := range keys.Elements {
		if tag.Group == 0x0002 || known(tag, s.depth, filters) {
			continue
		}
		if hasValue(el) {
			s.unsupported = true
			break
		}
	}

	query := selectFor(s.depth)
	if !where.IsEmpty() {
		query += " AND " + where.SQL
	}
	query += orderFor(s.depth)

	ctx, cancel := context.WithCancel(ctx)
	rows, err := s.db.QueryxContext(ctx, s.db.Rebind(query), where.Args...)
	if err != nil {
		cancel()
		return archiveerrors.NewResourceError("query", err)
	}

	s.cur = &cursor{rows: rows, cancel: cancel}
	s.cleanup = runtime.AddCleanup(s, func(c *cursor) { c.close() }, s.cur)
	s.ctx = ctx
	s.keys = keys
	s.state = stateExecuting

	s.logger.DebugContext(ctx, "Started query",
		"level", string(s.level),
		"keys", len(keys.Elements),
		"optional_key_not_supported", s.unsupported)
	return nil
}

// HasNext reports whether Next will return another match.
func (s *Session) HasNext() (bool, error) {
	switch s.state {
	case stateCreated:
		return false, archiveerrors.ErrSessionNotStarted
	case stateClosed:
		return false, archiveerrors.ErrSessionClosed
	}
	if s.pending != nil {
		return true, nil
	}
	if s.done {
		return false, nil
	}
	s.state = stateDraining
	if err := s.fetch(); err != nil {
		s.release()
		return false, err
	}
	return s.pending != nil, nil
}

// Next returns the next match, restricted to the keys of Find. It returns
// io.EOF once the matches are exhausted.
func (s *Session) Next() (*dicom.Dataset, error) {
	ok, err := s.HasNext()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, io.EOF
	}
	out := s.pending
	s.pending = nil
	return out, nil
}

// Close releases the result set. Closing twice is a no-op.
func (s *Session) Close() error {
	if s.state == stateClosed {
		return nil
	}
	if s.state != stateCreated {
		s.logger.DebugContext(s.ctx, "Closed query", "level", string(s.level), "matches", s.matches)
	}
	s.release()
	s.state = stateClosed
	s.pending = nil
	s.cache = seriesCache{}
	return nil
}

func (s *Session) release() {
	s.done = true
	if s.cur != nil {
		s.cleanup.Stop()
		s.cur.close()
		s.cur = nil
	}
}

// fetch advances the cursor and builds the next result into pending.
func (s *Session) fetch() error {
	if err := s.ctx.Err(); err != nil {
		return err
	}
	rows := s.cur.rows
	if !rows.Next() {
		err := rows.Err()
		s.release()
		if err != nil {
			if ctxErr := s.ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			return archiveerrors.NewResourceError("read query results", err)
		}
		return nil
	}
	var row resultRow
	if err := rows.StructScan(&row); err != nil {
		return archiveerrors.NewResourceError("scan query result", err)
	}
	record, err := s.record(&row)
	if err != nil {
		return err
	}
	s.pending = project(record, s.keys, s.level)
	s.matches++
	return nil
}

// resultRow is the union of the columns the level queries select.
type resultRow struct {
	PatientAttrs  []byte `db:"p_attrs"`
	StudyAttrs    []byte `db:"st_attrs"`
	SeriesAttrs   []byte `db:"se_attrs"`
	InstanceAttrs []byte `db:"i_attrs"`
	SeriesPK      int64  `db:"series_pk"`

	PatientStudies   int `db:"pat_studies"`
	PatientSeries    int `db:"pat_series"`
	PatientInstances int `db:"pat_instances"`

	NumSeries    int       `db:"num_series"`
	NumInstances int       `db:"num_instances"`
	Modalities   model.Set `db:"mods"`
	SOPClasses   model.Set `db:"cuids"`

	RetrieveAETs        model.Set          `db:"retrieve_aets"`
	ExternalRetrieveAET *string            `db:"ext_retr_aet"`
	Availability        model.Availability `db:"availability"`
}

const fromPatient = ` FROM patient p LEFT JOIN issuer pi ON pi.pk = p.issuer_fk`

const joinStudy = ` JOIN patient p ON p.pk = st.patient_fk
	LEFT JOIN issuer pi ON pi.pk = p.issuer_fk
	LEFT JOIN issuer ai ON ai.pk = st.accno_issuer_fk`

func selectFor(depth int) string {
	var q string
	switch depth {
	case depthPatient:
		q = `SELECT p.attrs AS p_attrs,
			(SELECT COUNT(*) FROM study c WHERE c.patient_fk = p.pk) AS pat_studies,
			(SELECT COALESCE(SUM(c.num_series), 0) FROM study c WHERE c.patient_fk = p.pk) AS pat_series,
			(SELECT COALESCE(SUM(c.num_instances), 0) FROM study c WHERE c.patient_fk = p.pk) AS pat_instances` +
			fromPatient
	case depthStudy:
		q = `SELECT p.attrs AS p_attrs, st.attrs AS st_attrs,
			st.num_series, st.num_instances, st.mods_in_study AS mods, st.cuids_in_study AS cuids,
			st.retrieve_aets, st.ext_retr_aet, st.availability
			FROM study st` + joinStudy
	case depthSeries:
		q = `SELECT p.attrs AS p_attrs, st.attrs AS st_attrs, se.attrs AS se_attrs,
			se.num_instances, se.retrieve_aets, se.ext_retr_aet, se.availability
			FROM series se JOIN study st ON st.pk = se.study_fk` + joinStudy
	default:
		q = `SELECT i.series_fk AS series_pk, i.attrs AS i_attrs,
			i.retrieve_aets, i.ext_retr_aet, i.availability
			FROM instance i JOIN series se ON se.pk = i.series_fk JOIN study st ON st.pk = se.study_fk` + joinStudy
	}
	return q + " WHERE p.merge_fk IS NULL"
}

func orderFor(depth int) string {
	switch depth {
	case depthPatient:
		return " ORDER BY p.pk"
	case depthStudy:
		return " ORDER BY st.pk"
	case depthSeries:
		return " ORDER BY se.pk"
	}
	return " ORDER BY i.series_fk, i.pk"
}

// record merges the blobs of a row in level order and adds the computed
// attributes of the query level.
func (s *Session) record(row *resultRow) (*dicom.Dataset, error) {
	var ds *dicom.Dataset
	if s.depth == depthInstance {
		parent, err := s.seriesAttrs(row.SeriesPK)
		if err != nil {
			return nil, err
		}
		ds = parent.Clone()
		if err := s.decode(row.InstanceAttrs, ds); err != nil {
			return nil, err
		}
	} else {
		ds = dicom.NewDataset()
		for _, blob := range [][]byte{row.PatientAttrs, row.StudyAttrs, row.SeriesAttrs} {
			if err := s.decode(blob, ds); err != nil {
				return nil, err
			}
		}
	}

	switch s.depth {
	case depthPatient:
		setCount(ds, dicom.TagNumberOfPatientRelatedStudies, row.PatientStudies)
		setCount(ds, dicom.TagNumberOfPatientRelatedSeries, row.PatientSeries)
		setCount(ds, dicom.TagNumberOfPatientRelatedInstances, row.PatientInstances)
		return ds, nil
	case depthStudy:
		setCount(ds, dicom.TagNumberOfStudyRelatedSeries, row.NumSeries)
		setCount(ds, dicom.TagNumberOfStudyRelatedInstances, row.NumInstances)
		ds.AddElement(dicom.TagModalitiesInStudy, dicom.VR_CS, row.Modalities.String())
		ds.AddElement(dicom.TagSOPClassesInStudy, dicom.VR_UI, row.SOPClasses.String())
	case depthSeries:
		setCount(ds, dicom.TagNumberOfSeriesRelatedInstances, row.NumInstances)
	}
	if aet := retrieveAETitle(row.RetrieveAETs, row.ExternalRetrieveAET); aet != "" {
		ds.AddElement(dicom.TagRetrieveAETitle, dicom.VR_AE, aet)
	}
	ds.AddElement(dicom.TagInstanceAvailability, dicom.VR_CS, row.Availability.String())
	return ds, nil
}

// seriesAttrs returns the merged patient, study and series attributes of a
// series, loading them only when the cursor moved to another series.
func (s *Session) seriesAttrs(pk int64) (*dicom.Dataset, error) {
	if s.cache.attrs != nil && s.cache.pk == pk {
		return s.cache.attrs, nil
	}
	var row resultRow
	err := s.db.GetContext(s.ctx, &row, s.db.Rebind(`SELECT p.attrs AS p_attrs, st.attrs AS st_attrs, se.attrs AS se_attrs
		FROM series se JOIN study st ON st.pk = se.study_fk JOIN patient p ON p.pk = st.patient_fk
		WHERE se.pk = ?`), pk)
	if err != nil {
		return nil, archiveerrors.NewResourceError("load series attributes", err)
	}
	ds := dicom.NewDataset()
	for _, blob := range [][]byte{row.PatientAttrs, row.StudyAttrs, row.SeriesAttrs} {
		if err := s.decode(blob, ds); err != nil {
			return nil, err
		}
	}
	s.cache = seriesCache{pk: pk, attrs: ds}
	return ds, nil
}

func (s *Session) decode(blob []byte, into *dicom.Dataset) error {
	if len(blob) == 0 {
		return nil
	}
	if err := s.codec.DecodeInto(blob, into); err != nil {
		return archiveerrors.NewResourceError("decode stored attributes", err)
	}
	return nil
}

func setCount(ds *dicom.Dataset, tag dicom.Tag, n int) {
	ds.AddElement(tag, dicom.VR_IS, fmt.Sprint(n))
}

// retrieveAETitle lists the AEs an entity is retrievable from, falling back
// to the external retrieve AE.
func retrieveAETitle(aets model.Set, external *string) string {
	if len(aets) > 0 {
		return strings.Join(aets, `\`)
	}
	if external != nil {
		return *external
	}
	return ""
}

// project restricts record to the requested keys. Requested attributes the
// record lacks are returned empty.
func project(record, keys *dicom.Dataset, level types.QueryLevel) *dicom.Dataset {
	out := dicom.NewDataset()
	for tag, key := range keys.Elements {
		if tag.Group == 0x0002 {
			continue
		}
		if el, ok := record.GetElement(tag); ok {
			cp := *el
			out.Elements[tag] = &cp
			continue
		}
		if key.VR == dicom.VR_SQ {
			out.AddItems(tag)
		} else {
			out.AddElement(tag, key.VR, "")
		}
	}
	if el, ok := record.GetElement(dicom.TagSpecificCharacterSet); ok {
		cp := *el
		out.Elements[dicom.TagSpecificCharacterSet] = &cp
	}
	out.AddElement(dicom.TagQueryRetrieveLevel, dicom.VR_CS, string(level))
	return out
}
