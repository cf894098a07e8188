package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/caio-sobreiro/dicomarchive/aggregate"
	"github.com/caio-sobreiro/dicomarchive/model"
)

// AddInstance inserts inst under series and folds it into the aggregates of
// series and study, which must be the rows loaded in this transaction. Both
// are updated in place.
func (tx *Tx) AddInstance(ctx context.Context, inst *model.Instance, series *model.Series, study *model.Study) error {
	ts := now()
	inst.SeriesFK = series.PK
	inst.CreatedTime, inst.UpdatedTime = ts, ts
	inst.RetrieveAETs = model.NewSet(inst.RetrieveAETs...)

	res, err := tx.NamedExecContext(ctx, `INSERT INTO instance (
			series_fk, sop_iuid, sop_cuid, inst_no, content_date, content_time, srcode_fk,
			retrieve_aets, ext_retr_aet, availability, inst_custom1, inst_custom2, inst_custom3,
			attrs, created_time, updated_time)
		VALUES (
			:series_fk, :sop_iuid, :sop_cuid, :inst_no, :content_date, :content_time, :srcode_fk,
			:retrieve_aets, :ext_retr_aet, :availability, :inst_custom1, :inst_custom2, :inst_custom3,
			:attrs, :created_time, :updated_time)`, inst)
	if err != nil {
		return fmt.Errorf("insert instance: %w", err)
	}
	if inst.PK, err = res.LastInsertId(); err != nil {
		return err
	}

	leaf := aggregate.Of(inst.RetrieveAETs, inst.ExternalRetrieveAET, inst.Availability)
	firstInSeries := series.NumberOfInstances == 0

	ss := seriesSummary(series).Add(leaf)
	series.NumberOfInstances = ss.Count
	series.RetrieveAETs = ss.RetrieveAETs
	series.ExternalRetrieveAET = ss.ExternalRetrieveAET
	series.Availability = ss.Availability
	series.UpdatedTime = ts
	if err := tx.updateSeriesAggregates(ctx, series); err != nil {
		return err
	}

	st := studySummary(study).Add(leaf)
	study.NumberOfInstances = st.Count
	study.RetrieveAETs = st.RetrieveAETs
	study.ExternalRetrieveAET = st.ExternalRetrieveAET
	study.Availability = st.Availability
	if firstInSeries {
		study.NumberOfSeries++
		study.ModalitiesInStudy = study.ModalitiesInStudy.Union(model.NewSet(series.Modality))
	}
	study.SOPClassesInStudy = study.SOPClassesInStudy.Union(model.NewSet(inst.SOPClassUID))
	study.UpdatedTime = ts
	return tx.updateStudyAggregates(ctx, study)
}

func seriesSummary(se *model.Series) aggregate.Summary {
	return aggregate.Summary{
		Count:               se.NumberOfInstances,
		RetrieveAETs:        se.RetrieveAETs,
		ExternalRetrieveAET: se.ExternalRetrieveAET,
		Availability:        se.Availability,
	}
}

func studySummary(st *model.Study) aggregate.Summary {
	return aggregate.Summary{
		Count:               st.NumberOfInstances,
		RetrieveAETs:        st.RetrieveAETs,
		ExternalRetrieveAET: st.ExternalRetrieveAET,
		Availability:        st.Availability,
	}
}

func (tx *Tx) updateSeriesAggregates(ctx context.Context, se *model.Series) error {
	_, err := tx.NamedExecContext(ctx, `UPDATE series SET
			num_instances = :num_instances, retrieve_aets = :retrieve_aets,
			ext_retr_aet = :ext_retr_aet, availability = :availability, updated_time = :updated_time
		WHERE pk = :pk`, se)
	if err != nil {
		return fmt.Errorf("update series aggregates: %w", err)
	}
	return nil
}

func (tx *Tx) updateStudyAggregates(ctx context.Context, st *model.Study) error {
	_, err := tx.NamedExecContext(ctx, `UPDATE study SET
			num_series = :num_series, num_instances = :num_instances,
			mods_in_study = :mods_in_study, cuids_in_study = :cuids_in_study,
			retrieve_aets = :retrieve_aets, ext_retr_aet = :ext_retr_aet,
			availability = :availability, updated_time = :updated_time
		WHERE pk = :pk`, st)
	if err != nil {
		return fmt.Errorf("update study aggregates: %w", err)
	}
	return nil
}

// TouchInstance refreshes the update time of an instance that received a new
// file without changing its attributes.
func (tx *Tx) TouchInstance(ctx context.Context, pk int64) error {
	if _, err := tx.ExecContext(ctx, `UPDATE instance SET updated_time = ? WHERE pk = ?`, now(), pk); err != nil {
		return fmt.Errorf("touch instance: %w", err)
	}
	return nil
}

// AddFileRef registers a stored file against its instance.
func (tx *Tx) AddFileRef(ctx context.Context, ref *model.FileRef) error {
	ref.CreatedTime = now()
	res, err := tx.NamedExecContext(ctx, `INSERT INTO file_ref (
			instance_fk, fs_group_id, fs_id, filepath, transfer_syntax, file_size, file_digest, created_time)
		VALUES (
			:instance_fk, :fs_group_id, :fs_id, :filepath, :transfer_syntax, :file_size, :file_digest, :created_time)`, ref)
	if err != nil {
		return fmt.Errorf("insert file ref: %w", err)
	}
	ref.PK, err = res.LastInsertId()
	return err
}

// LatestFileRef returns the newest file of an instance, or nil when it has
// none.
func (tx *Tx) LatestFileRef(ctx context.Context, instancePK int64) (*model.FileRef, error) {
	return latestFileRef(ctx, tx, instancePK)
}

// LatestFileRef returns the newest file of an instance, or nil when it has
// none.
func (s *Store) LatestFileRef(ctx context.Context, instancePK int64) (*model.FileRef, error) {
	return latestFileRef(ctx, s.db, instancePK)
}

type getter interface {
	GetContext(ctx context.Context, dest any, query string, args ...any) error
	SelectContext(ctx context.Context, dest any, query string, args ...any) error
}

func latestFileRef(ctx context.Context, q getter, instancePK int64) (*model.FileRef, error) {
	var ref model.FileRef
	err := q.GetContext(ctx, &ref, `SELECT * FROM file_ref WHERE instance_fk = ?
		ORDER BY created_time DESC, pk DESC LIMIT 1`, instancePK)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select file ref: %w", err)
	}
	return &ref, nil
}

// FileRefs lists all files of an instance, newest first.
func (s *Store) FileRefs(ctx context.Context, instancePK int64) ([]model.FileRef, error) {
	var refs []model.FileRef
	err := s.db.SelectContext(ctx, &refs, `SELECT * FROM file_ref WHERE instance_fk = ?
		ORDER BY created_time DESC, pk DESC`, instancePK)
	return refs, err
}
