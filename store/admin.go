package store

import (
	"context"
	"fmt"

	"github.com/caio-sobreiro/dicomarchive/aggregate"
	archiveerrors "github.com/caio-sobreiro/dicomarchive/errors"
	"github.com/caio-sobreiro/dicomarchive/model"
)

// LookupPatient finds a patient by ID and issuer without following merges.
func (s *Store) LookupPatient(ctx context.Context, patientID string, issuer model.Issuer) (*model.Patient, error) {
	var p model.Patient
	err := s.db.GetContext(ctx, &p, `SELECT p.* FROM patient p
		LEFT JOIN issuer i ON i.pk = p.issuer_fk
		WHERE p.pat_id = ? AND COALESCE(i.entity_id, '') = ?
			AND COALESCE(i.entity_uid, '') = ? AND COALESCE(i.entity_uid_type, '') = ?`,
		patientID, issuer.EntityID, issuer.EntityUID, issuer.EntityUIDType)
	if err != nil {
		return nil, notFound(err, "patient %s", patientID)
	}
	return &p, nil
}

// MergePatients merges prior into survivor: prior's studies move to the
// survivor and prior is marked as merged. The prior row stays for audit.
func (s *Store) MergePatients(ctx context.Context, priorPK, survivorPK int64) error {
	if priorPK == survivorPK {
		return fmt.Errorf("cannot merge patient %d into itself", priorPK)
	}
	return s.Update(ctx, func(tx *Tx) error {
		prior, err := tx.GetPatient(ctx, priorPK)
		if err != nil {
			return err
		}
		if prior.Merged() {
			return fmt.Errorf("patient %d is already merged into %d", priorPK, *prior.MergedWith)
		}
		survivor, err := tx.GetPatient(ctx, survivorPK)
		if err != nil {
			return err
		}
		if survivor.Merged() {
			return fmt.Errorf("patient %d is merged and cannot receive studies", survivorPK)
		}

		res, err := tx.ExecContext(ctx, `UPDATE study SET patient_fk = ?, updated_time = ? WHERE patient_fk = ?`,
			survivorPK, now(), priorPK)
		if err != nil {
			return fmt.Errorf("move studies: %w", err)
		}
		moved, _ := res.RowsAffected()
		if _, err := tx.ExecContext(ctx, `UPDATE patient SET merge_fk = ?, updated_time = ? WHERE pk = ?`,
			survivorPK, now(), priorPK); err != nil {
			return fmt.Errorf("mark patient merged: %w", err)
		}
		s.logger.InfoContext(ctx, "Merged patient",
			"prior_pk", priorPK,
			"survivor_pk", survivorPK,
			"studies_moved", moved)
		return nil
	})
}

// DeletePatient removes a patient with all its studies. It returns the file
// references that were unregistered; the files themselves are left on disk.
func (s *Store) DeletePatient(ctx context.Context, pk int64) ([]model.FileRef, error) {
	var refs []model.FileRef
	err := s.Update(ctx, func(tx *Tx) error {
		refs = nil
		if err := tx.SelectContext(ctx, &refs, `SELECT f.* FROM file_ref f
			JOIN instance i ON i.pk = f.instance_fk
			JOIN series se ON se.pk = i.series_fk
			JOIN study st ON st.pk = se.study_fk
			WHERE st.patient_fk = ?`, pk); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `UPDATE patient SET merge_fk = NULL WHERE merge_fk = ?`, pk); err != nil {
			return err
		}
		return deleteRow(ctx, tx, "patient", pk)
	})
	return refs, err
}

// DeleteStudy removes a study with its series and instances.
func (s *Store) DeleteStudy(ctx context.Context, studyIUID string) ([]model.FileRef, error) {
	var refs []model.FileRef
	err := s.Update(ctx, func(tx *Tx) error {
		st, err := tx.FindStudy(ctx, studyIUID)
		if err != nil {
			return err
		}
		if st == nil {
			return fmt.Errorf("study %s: %w", studyIUID, archiveerrors.ErrNotFound)
		}
		refs = nil
		if err := tx.SelectContext(ctx, &refs, `SELECT f.* FROM file_ref f
			JOIN instance i ON i.pk = f.instance_fk
			JOIN series se ON se.pk = i.series_fk
			WHERE se.study_fk = ?`, st.PK); err != nil {
			return err
		}
		return deleteRow(ctx, tx, "study", st.PK)
	})
	return refs, err
}

// DeleteSeries removes a series with its instances and recomputes the
// aggregates of its study from the remaining series.
func (s *Store) DeleteSeries(ctx context.Context, seriesIUID string) ([]model.FileRef, error) {
	var refs []model.FileRef
	err := s.Update(ctx, func(tx *Tx) error {
		var se model.Series
		if err := tx.GetContext(ctx, &se, `SELECT * FROM series WHERE series_iuid = ?`, seriesIUID); err != nil {
			return notFound(err, "series %s", seriesIUID)
		}
		refs = nil
		if err := tx.SelectContext(ctx, &refs, `SELECT f.* FROM file_ref f
			JOIN instance i ON i.pk = f.instance_fk WHERE i.series_fk = ?`, se.PK); err != nil {
			return err
		}
		if err := deleteRow(ctx, tx, "series", se.PK); err != nil {
			return err
		}
		return tx.rescanStudy(ctx, se.StudyFK)
	})
	return refs, err
}

// DeleteInstance removes one instance and recomputes its series and study.
// A series left without instances is removed as well.
func (s *Store) DeleteInstance(ctx context.Context, sopIUID string) ([]model.FileRef, error) {
	var refs []model.FileRef
	err := s.Update(ctx, func(tx *Tx) error {
		inst, err := tx.FindInstance(ctx, sopIUID)
		if err != nil {
			return err
		}
		if inst == nil {
			return fmt.Errorf("instance %s: %w", sopIUID, archiveerrors.ErrNotFound)
		}
		refs = nil
		if err := tx.SelectContext(ctx, &refs, `SELECT * FROM file_ref WHERE instance_fk = ?`, inst.PK); err != nil {
			return err
		}
		if err := deleteRow(ctx, tx, "instance", inst.PK); err != nil {
			return err
		}
		var studyFK int64
		if err := tx.GetContext(ctx, &studyFK, `SELECT study_fk FROM series WHERE pk = ?`, inst.SeriesFK); err != nil {
			return err
		}
		if err := tx.rescanSeries(ctx, inst.SeriesFK); err != nil {
			return err
		}
		return tx.rescanStudy(ctx, studyFK)
	})
	return refs, err
}

func deleteRow(ctx context.Context, tx *Tx, table string, pk int64) error {
	res, err := tx.ExecContext(ctx, "DELETE FROM "+table+" WHERE pk = ?", pk)
	if err != nil {
		return fmt.Errorf("delete %s %d: %w", table, pk, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%s %d: %w", table, pk, archiveerrors.ErrNotFound)
	}
	return nil
}

type summaryRow struct {
	NumInstances        int                `db:"num_instances"`
	RetrieveAETs        model.Set          `db:"retrieve_aets"`
	ExternalRetrieveAET *string            `db:"ext_retr_aet"`
	Availability        model.Availability `db:"availability"`
}

func (r summaryRow) summary(count int) aggregate.Summary {
	return aggregate.Summary{
		Count:               count,
		RetrieveAETs:        r.RetrieveAETs,
		ExternalRetrieveAET: r.ExternalRetrieveAET,
		Availability:        r.Availability,
	}
}

func (tx *Tx) rescanSeries(ctx context.Context, seriesPK int64) error {
	var rows []summaryRow
	if err := tx.SelectContext(ctx, &rows, `SELECT 1 AS num_instances, retrieve_aets, ext_retr_aet, availability
		FROM instance WHERE series_fk = ?`, seriesPK); err != nil {
		return fmt.Errorf("rescan series: %w", err)
	}
	if len(rows) == 0 {
		return deleteRow(ctx, tx, "series", seriesPK)
	}
	children := make([]aggregate.Summary, len(rows))
	for i, r := range rows {
		children[i] = r.summary(1)
	}
	sum := aggregate.Rescan(children)
	se := &model.Series{
		PK:                  seriesPK,
		NumberOfInstances:   sum.Count,
		RetrieveAETs:        sum.RetrieveAETs,
		ExternalRetrieveAET: sum.ExternalRetrieveAET,
		Availability:        sum.Availability,
		UpdatedTime:         now(),
	}
	return tx.updateSeriesAggregates(ctx, se)
}

func (tx *Tx) rescanStudy(ctx context.Context, studyPK int64) error {
	var rows []summaryRow
	if err := tx.SelectContext(ctx, &rows, `SELECT num_instances, retrieve_aets, ext_retr_aet, availability
		FROM series WHERE study_fk = ? AND num_instances > 0`, studyPK); err != nil {
		return fmt.Errorf("rescan study: %w", err)
	}
	children := make([]aggregate.Summary, len(rows))
	for i, r := range rows {
		children[i] = r.summary(r.NumInstances)
	}
	sum := aggregate.Rescan(children)
	if sum.RetrieveAETs == nil {
		sum.RetrieveAETs = model.Set{}
	}

	var mods, cuids []string
	if err := tx.SelectContext(ctx, &mods, `SELECT DISTINCT modality FROM series
		WHERE study_fk = ? AND num_instances > 0`, studyPK); err != nil {
		return err
	}
	if err := tx.SelectContext(ctx, &cuids, `SELECT DISTINCT i.sop_cuid FROM instance i
		JOIN series se ON se.pk = i.series_fk WHERE se.study_fk = ?`, studyPK); err != nil {
		return err
	}

	st := &model.Study{
		PK:                  studyPK,
		NumberOfSeries:      len(rows),
		NumberOfInstances:   sum.Count,
		ModalitiesInStudy:   model.NewSet(mods...),
		SOPClassesInStudy:   model.NewSet(cuids...),
		RetrieveAETs:        sum.RetrieveAETs,
		ExternalRetrieveAET: sum.ExternalRetrieveAET,
		Availability:        sum.Availability,
		UpdatedTime:         now(),
	}
	return tx.updateStudyAggregates(ctx, st)
}
