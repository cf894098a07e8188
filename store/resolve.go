package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	archiveerrors "github.com/caio-sobreiro/dicomarchive/errors"
	"github.com/caio-sobreiro/dicomarchive/model"
)

// maxMergeDepth bounds merge-chain traversal.
const maxMergeDepth = 16

// FindOrCreateIssuer returns the primary key of the issuer, creating the row
// if needed. An empty issuer resolves to nil. Issuers are identified by the
// entity ID, by the (UID, UID type) pair, or by both: a known issuer seen
// with additional parts has them filled in, while parts that disagree with
// the registered issuer are rejected with a MalformedError.
func (tx *Tx) FindOrCreateIssuer(ctx context.Context, issuer model.Issuer) (*int64, error) {
	if issuer.IsEmpty() {
		return nil, nil
	}
	found, err := tx.matchingIssuers(ctx, issuer)
	if err != nil {
		return nil, err
	}
	if len(found) == 0 {
		if _, err := tx.NamedExecContext(ctx, `INSERT INTO issuer (entity_id, entity_uid, entity_uid_type)
			VALUES (:entity_id, :entity_uid, :entity_uid_type) ON CONFLICT DO NOTHING`, issuer); err != nil {
			return nil, fmt.Errorf("insert issuer: %w", err)
		}
		if found, err = tx.matchingIssuers(ctx, issuer); err != nil {
			return nil, err
		}
		if len(found) == 0 {
			return nil, fmt.Errorf("issuer %s vanished after insert", issuerString(issuer))
		}
	}
	if len(found) > 1 {
		return nil, archiveerrors.NewMalformedError(fmt.Sprintf("issuer %s matches both %s and %s",
			issuerString(issuer), issuerString(found[0]), issuerString(found[1])), nil)
	}

	known := found[0]
	merged, err := mergeIssuer(known, issuer)
	if err != nil {
		return nil, err
	}
	if merged != known {
		if _, err := tx.NamedExecContext(ctx, `UPDATE issuer SET
			entity_id = :entity_id, entity_uid = :entity_uid, entity_uid_type = :entity_uid_type
			WHERE pk = :pk`, merged); err != nil {
			return nil, fmt.Errorf("update issuer: %w", err)
		}
	}
	return &known.PK, nil
}

func (tx *Tx) matchingIssuers(ctx context.Context, issuer model.Issuer) ([]model.Issuer, error) {
	var conds []string
	var args []any
	if issuer.EntityID != "" {
		conds = append(conds, "entity_id = ?")
		args = append(args, issuer.EntityID)
	}
	if issuer.EntityUID != "" {
		conds = append(conds, "(entity_uid = ? AND entity_uid_type = ?)")
		args = append(args, issuer.EntityUID, issuer.EntityUIDType)
	}
	var found []model.Issuer
	err := tx.SelectContext(ctx, &found, `SELECT pk, entity_id, entity_uid, entity_uid_type FROM issuer
		WHERE `+strings.Join(conds, " OR ")+` ORDER BY pk`, args...)
	if err != nil {
		return nil, fmt.Errorf("select issuer: %w", err)
	}
	return found, nil
}

// mergeIssuer fills the parts known lacks from seen.
func mergeIssuer(known, seen model.Issuer) (model.Issuer, error) {
	merged := known
	if seen.EntityID != "" {
		if known.EntityID != "" && known.EntityID != seen.EntityID {
			return known, issuerConflict(known, seen)
		}
		merged.EntityID = seen.EntityID
	}
	if seen.EntityUID != "" {
		if known.EntityUID != "" && (known.EntityUID != seen.EntityUID || known.EntityUIDType != seen.EntityUIDType) {
			return known, issuerConflict(known, seen)
		}
		merged.EntityUID, merged.EntityUIDType = seen.EntityUID, seen.EntityUIDType
	}
	return merged, nil
}

func issuerConflict(known, seen model.Issuer) error {
	return archiveerrors.NewMalformedError(fmt.Sprintf("issuer %s conflicts with registered issuer %s",
		issuerString(seen), issuerString(known)), nil)
}

func issuerString(i model.Issuer) string {
	return i.EntityID + "&" + i.EntityUID + "&" + i.EntityUIDType
}

// FindOrCreateCode returns the primary key of the code, creating the row if
// needed. A code without value or designator resolves to nil.
func (tx *Tx) FindOrCreateCode(ctx context.Context, code model.Code) (*int64, error) {
	if code.CodeValue == "" || code.CodingSchemeDesignator == "" {
		return nil, nil
	}
	if _, err := tx.NamedExecContext(ctx, `INSERT INTO code (code_value, code_designator, code_version, code_meaning)
		VALUES (:code_value, :code_designator, :code_version, :code_meaning) ON CONFLICT DO NOTHING`, code); err != nil {
		return nil, fmt.Errorf("insert code: %w", err)
	}
	var pk int64
	err := tx.GetContext(ctx, &pk, `SELECT pk FROM code
		WHERE code_value = ? AND code_designator = ? AND code_version = ?`,
		code.CodeValue, code.CodingSchemeDesignator, code.CodingSchemeVersion)
	if err != nil {
		return nil, fmt.Errorf("select code: %w", err)
	}
	return &pk, nil
}

// FindOrCreatePatient resolves p by (PatientID, IssuerFK). A patient without
// an ID is always created. If the resolved patient was merged, the chain is
// followed to the survivor, which is returned instead.
func (tx *Tx) FindOrCreatePatient(ctx context.Context, p *model.Patient) (*model.Patient, bool, error) {
	ts := now()
	p.CreatedTime, p.UpdatedTime = ts, ts

	res, err := tx.NamedExecContext(ctx, `INSERT INTO patient (
			pat_id, issuer_fk, pat_name, pat_fn_sx, pat_gn_sx, pat_birthdate, pat_sex,
			pat_custom1, pat_custom2, pat_custom3, attrs, created_time, updated_time)
		VALUES (
			:pat_id, :issuer_fk, :pat_name, :pat_fn_sx, :pat_gn_sx, :pat_birthdate, :pat_sex,
			:pat_custom1, :pat_custom2, :pat_custom3, :attrs, :created_time, :updated_time)
		ON CONFLICT DO NOTHING`, p)
	if err != nil {
		return nil, false, fmt.Errorf("insert patient: %w", err)
	}
	created, err := res.RowsAffected()
	if err != nil {
		return nil, false, err
	}

	var found *model.Patient
	if created == 1 && p.PatientID == "" {
		pk, err := res.LastInsertId()
		if err != nil {
			return nil, false, err
		}
		found, err = tx.GetPatient(ctx, pk)
		if err != nil {
			return nil, false, err
		}
	} else {
		found = &model.Patient{}
		err = tx.GetContext(ctx, found, `SELECT * FROM patient
			WHERE pat_id = ? AND COALESCE(issuer_fk, 0) = ?`, p.PatientID, fkValue(p.IssuerFK))
		if err != nil {
			return nil, false, fmt.Errorf("select patient: %w", err)
		}
	}

	survivor, err := tx.followMerge(ctx, found)
	if err != nil {
		return nil, false, err
	}
	return survivor, created == 1, nil
}

func (tx *Tx) followMerge(ctx context.Context, p *model.Patient) (*model.Patient, error) {
	for depth := 0; p.MergedWith != nil; depth++ {
		if depth == maxMergeDepth {
			return nil, fmt.Errorf("merge chain of patient %d exceeds %d links", p.PK, maxMergeDepth)
		}
		next, err := tx.GetPatient(ctx, *p.MergedWith)
		if err != nil {
			return nil, fmt.Errorf("follow merge of patient %d: %w", p.PK, err)
		}
		p = next
	}
	return p, nil
}

// GetPatient loads a patient by primary key.
func (tx *Tx) GetPatient(ctx context.Context, pk int64) (*model.Patient, error) {
	var p model.Patient
	if err := tx.GetContext(ctx, &p, `SELECT * FROM patient WHERE pk = ?`, pk); err != nil {
		return nil, notFound(err, "patient %d", pk)
	}
	return &p, nil
}

// FindStudy loads a study by Study Instance UID. It returns nil when absent.
func (tx *Tx) FindStudy(ctx context.Context, studyIUID string) (*model.Study, error) {
	var st model.Study
	err := tx.GetContext(ctx, &st, `SELECT * FROM study WHERE study_iuid = ?`, studyIUID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select study: %w", err)
	}
	return &st, nil
}

// FindOrCreateStudy resolves st by Study Instance UID, creating it under
// st.PatientFK when absent. An existing study keeps its patient and blob.
func (tx *Tx) FindOrCreateStudy(ctx context.Context, st *model.Study) (*model.Study, bool, error) {
	ts := now()
	st.CreatedTime, st.UpdatedTime = ts, ts
	if st.ModalitiesInStudy == nil {
		st.ModalitiesInStudy = model.Set{}
	}
	if st.SOPClassesInStudy == nil {
		st.SOPClassesInStudy = model.Set{}
	}
	if st.RetrieveAETs == nil {
		st.RetrieveAETs = model.Set{}
	}

	res, err := tx.NamedExecContext(ctx, `INSERT INTO study (
			patient_fk, study_iuid, accession_no, accno_issuer_fk, study_id, study_date, study_time,
			ref_physician, ref_phys_fn_sx, ref_phys_gn_sx, study_desc,
			study_custom1, study_custom2, study_custom3,
			mods_in_study, cuids_in_study, retrieve_aets, availability, attrs, created_time, updated_time)
		VALUES (
			:patient_fk, :study_iuid, :accession_no, :accno_issuer_fk, :study_id, :study_date, :study_time,
			:ref_physician, :ref_phys_fn_sx, :ref_phys_gn_sx, :study_desc,
			:study_custom1, :study_custom2, :study_custom3,
			:mods_in_study, :cuids_in_study, :retrieve_aets, :availability, :attrs, :created_time, :updated_time)
		ON CONFLICT DO NOTHING`, st)
	if err != nil {
		return nil, false, fmt.Errorf("insert study: %w", err)
	}
	created, err := res.RowsAffected()
	if err != nil {
		return nil, false, err
	}
	found, err := tx.FindStudy(ctx, st.StudyInstanceUID)
	if err != nil {
		return nil, false, err
	}
	if found == nil {
		return nil, false, fmt.Errorf("study %s vanished after insert", st.StudyInstanceUID)
	}
	return found, created == 1, nil
}

// FindOrCreateSeries resolves se by Series Instance UID, creating it under
// se.StudyFK when absent.
func (tx *Tx) FindOrCreateSeries(ctx context.Context, se *model.Series) (*model.Series, bool, error) {
	ts := now()
	se.CreatedTime, se.UpdatedTime = ts, ts
	if se.RetrieveAETs == nil {
		se.RetrieveAETs = model.Set{}
	}

	res, err := tx.NamedExecContext(ctx, `INSERT INTO series (
			study_fk, series_iuid, series_no, modality, institution, department, station_name,
			inst_code_fk, perf_physician, perf_phys_fn_sx, perf_phys_gn_sx, pps_iuid, pps_cuid,
			body_part, laterality, series_desc, series_custom1, series_custom2, series_custom3,
			retrieve_aets, availability, attrs, created_time, updated_time)
		VALUES (
			:study_fk, :series_iuid, :series_no, :modality, :institution, :department, :station_name,
			:inst_code_fk, :perf_physician, :perf_phys_fn_sx, :perf_phys_gn_sx, :pps_iuid, :pps_cuid,
			:body_part, :laterality, :series_desc, :series_custom1, :series_custom2, :series_custom3,
			:retrieve_aets, :availability, :attrs, :created_time, :updated_time)
		ON CONFLICT DO NOTHING`, se)
	if err != nil {
		return nil, false, fmt.Errorf("insert series: %w", err)
	}
	created, err := res.RowsAffected()
	if err != nil {
		return nil, false, err
	}
	var found model.Series
	if err := tx.GetContext(ctx, &found, `SELECT * FROM series WHERE series_iuid = ?`, se.SeriesInstanceUID); err != nil {
		return nil, false, fmt.Errorf("select series: %w", err)
	}
	return &found, created == 1, nil
}

// FindInstance loads an instance by SOP Instance UID. It returns nil when
// absent.
func (tx *Tx) FindInstance(ctx context.Context, sopIUID string) (*model.Instance, error) {
	var inst model.Instance
	err := tx.GetContext(ctx, &inst, `SELECT * FROM instance WHERE sop_iuid = ?`, sopIUID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select instance: %w", err)
	}
	return &inst, nil
}

func fkValue(fk *int64) int64 {
	if fk == nil {
		return 0
	}
	return *fk
}

func notFound(err error, format string, args ...any) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), archiveerrors.ErrNotFound)
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}
