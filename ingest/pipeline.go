// Package ingest files received objects into the archive.
//
// One Ingest call resolves the patient, study and series the object belongs
// to, creates the instance, folds it into the series and study aggregates,
// moves its bytes into storage and registers the file, all inside a single
// store transaction. A failure before the file is moved rolls everything
// back and leaves the temp file with the caller.
package ingest

import (
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/dustin/go-humanize"

	"github.com/caio-sobreiro/dicomarchive/config"
	"github.com/caio-sobreiro/dicomarchive/dicom"
	archiveerrors "github.com/caio-sobreiro/dicomarchive/errors"
	"github.com/caio-sobreiro/dicomarchive/filestore"
	"github.com/caio-sobreiro/dicomarchive/match"
	"github.com/caio-sobreiro/dicomarchive/model"
	"github.com/caio-sobreiro/dicomarchive/store"
)

// Outcome tells what Ingest did with an object.
type Outcome int

const (
	// Stored means a new instance was created.
	Stored Outcome = iota
	// DuplicateStored means the instance existed and the file was kept as
	// an additional copy.
	DuplicateStored
	// DuplicateIgnored means the instance existed and nothing changed. The
	// temp file is left for the caller.
	DuplicateIgnored
)

func (o Outcome) String() string {
	switch o {
	case Stored:
		return "STORED"
	case DuplicateStored:
		return "DUPLICATE_STORED"
	case DuplicateIgnored:
		return "DUPLICATE_IGNORED"
	}
	return fmt.Sprintf("Outcome(%d)", int(o))
}

// Request is one object to file.
type Request struct {
	Dataset           *dicom.Dataset
	TempFile          string
	TransferSyntaxUID string
	CallingAET        string
	CalledAET         string

	// Optional overrides of the called AE's settings.
	RetrieveAETs        model.Set
	ExternalRetrieveAET *string
	Availability        *model.Availability
}

// Result describes a filed object.
type Result struct {
	Instance *model.Instance
	FileRef  *model.FileRef
	Outcome  Outcome
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger overrides the pipeline's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// Pipeline files objects into a store and a storage file system.
type Pipeline struct {
	store     *store.Store
	committer *filestore.Committer
	archive   *config.Archive
	logger    *slog.Logger
}

// New creates a pipeline.
func New(st *store.Store, committer *filestore.Committer, archive *config.Archive, opts ...Option) *Pipeline {
	p := &Pipeline{store: st, committer: committer, archive: archive}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	return p
}

// Ingest files req. Duplicates follow the called AE's duplicate policy;
// under REJECT a *errors.DuplicateError is returned and nothing changes.
func (p *Pipeline) Ingest(ctx context.Context, req Request) (*Result, error) {
	if req.Dataset == nil {
		return nil, archiveerrors.NewMalformedError("empty dataset", nil)
	}
	if missing := missingTags(req.Dataset); len(missing) > 0 {
		return nil, archiveerrors.NewMalformedError("missing required attributes", nil, missing...)
	}
	if req.TempFile == "" {
		return nil, fmt.Errorf("ingest %s: no temp file", req.Dataset.GetString(dicom.TagSOPInstanceUID))
	}

	ae := p.archive.AE(req.CalledAET)
	run := &ingestion{
		pipeline:  p,
		req:       req,
		ae:        ae,
		committer: p.committer.For(ae.PathFormat, ae.Digest),
		extract:   extractor{filters: ae.Filters, codec: p.store.Codec()},
	}

	var result *Result
	err := p.store.Update(ctx, func(tx *store.Tx) error {
		var err error
		result, err = run.apply(ctx, tx)
		return err
	})
	if err != nil {
		p.logger.WarnContext(ctx, "Failed to ingest instance",
			"sop_instance_uid", req.Dataset.GetString(dicom.TagSOPInstanceUID),
			"calling_aet", req.CallingAET,
			"error", err)
		return nil, err
	}

	attrs := []any{
		"sop_instance_uid", result.Instance.SOPInstanceUID,
		"study_instance_uid", req.Dataset.GetString(dicom.TagStudyInstanceUID),
		"calling_aet", req.CallingAET,
		"called_aet", req.CalledAET,
		"outcome", result.Outcome.String(),
	}
	if result.FileRef != nil {
		attrs = append(attrs, "path", result.FileRef.Path, "size", humanize.Bytes(uint64(result.FileRef.Size)))
	}
	p.logger.InfoContext(ctx, "Ingested instance", attrs...)
	return result, nil
}

// ingestion is the state of one Ingest call. apply may run more than once
// when the transaction is retried.
type ingestion struct {
	pipeline  *Pipeline
	req       Request
	ae        *config.AE
	committer *filestore.Committer
	extract   extractor
}

func (r *ingestion) apply(ctx context.Context, tx *store.Tx) (*Result, error) {
	ds := r.req.Dataset
	existing, err := tx.FindInstance(ctx, ds.GetString(dicom.TagSOPInstanceUID))
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return r.duplicate(ctx, tx, existing)
	}

	study, err := r.resolveStudy(ctx, tx)
	if err != nil {
		return nil, err
	}
	series, err := r.resolveSeries(ctx, tx, study)
	if err != nil {
		return nil, err
	}

	inst, err := r.extract.instance(ds)
	if err != nil {
		return nil, err
	}
	if inst.ConceptNameCodeFK, err = tx.FindOrCreateCode(ctx, codeItem(ds, dicom.TagConceptNameCodeSequence)); err != nil {
		return nil, err
	}
	inst.RetrieveAETs = r.ae.RetrieveAETs
	if r.req.RetrieveAETs != nil {
		inst.RetrieveAETs = r.req.RetrieveAETs
	}
	inst.ExternalRetrieveAET = r.ae.ExternalRetrieveAET
	if r.req.ExternalRetrieveAET != nil {
		inst.ExternalRetrieveAET = r.req.ExternalRetrieveAET
	}
	inst.Availability = r.ae.Availability
	if r.req.Availability != nil {
		inst.Availability = *r.req.Availability
	}
	if err := tx.AddInstance(ctx, inst, series, study); err != nil {
		return nil, err
	}

	ref, err := r.commit(ctx, tx, inst)
	if err != nil {
		return nil, err
	}
	return &Result{Instance: inst, FileRef: ref, Outcome: Stored}, nil
}

// resolveStudy returns the study the object belongs to. An existing study
// keeps its patient, so the patient is only resolved for a new study.
func (r *ingestion) resolveStudy(ctx context.Context, tx *store.Tx) (*model.Study, error) {
	ds := r.req.Dataset
	study, err := tx.FindStudy(ctx, ds.GetString(dicom.TagStudyInstanceUID))
	if err != nil || study != nil {
		return study, err
	}

	issuerFK, err := tx.FindOrCreateIssuer(ctx, match.PatientIDOf(ds).Issuer)
	if err != nil {
		return nil, err
	}
	p, err := r.extract.patient(ds)
	if err != nil {
		return nil, err
	}
	p.IssuerFK = issuerFK
	patient, created, err := tx.FindOrCreatePatient(ctx, p)
	if err != nil {
		return nil, err
	}
	if created {
		r.pipeline.logger.DebugContext(ctx, "Created patient", "patient_id", patient.PatientID, "patient_pk", patient.PK)
	}

	st, err := r.extract.study(ds)
	if err != nil {
		return nil, err
	}
	st.PatientFK = patient.PK
	if st.AccessionIssuerFK, err = tx.FindOrCreateIssuer(ctx, match.AccessionNumberOf(ds).Issuer); err != nil {
		return nil, err
	}
	study, _, err = tx.FindOrCreateStudy(ctx, st)
	return study, err
}

func (r *ingestion) resolveSeries(ctx context.Context, tx *store.Tx, study *model.Study) (*model.Series, error) {
	ds := r.req.Dataset
	se, err := r.extract.series(ds)
	if err != nil {
		return nil, err
	}
	se.StudyFK = study.PK
	if se.InstitutionCodeFK, err = tx.FindOrCreateCode(ctx, codeItem(ds, dicom.TagInstitutionCodeSequence)); err != nil {
		return nil, err
	}
	series, _, err := tx.FindOrCreateSeries(ctx, se)
	if err != nil {
		return nil, err
	}
	if series.StudyFK != study.PK {
		return nil, archiveerrors.NewMalformedError(
			fmt.Sprintf("series %s already belongs to another study", series.SeriesInstanceUID), nil,
			dicom.TagSeriesInstanceUID, dicom.TagStudyInstanceUID)
	}
	return series, nil
}

func (r *ingestion) duplicate(ctx context.Context, tx *store.Tx, inst *model.Instance) (*Result, error) {
	ignored := &Result{Instance: inst, Outcome: DuplicateIgnored}
	switch r.ae.StoreDuplicate {
	case config.RejectDuplicate:
		return nil, archiveerrors.NewDuplicateError(inst.SOPInstanceUID)
	case config.IgnoreDuplicate:
		return ignored, nil
	case config.StoreDuplicateIfDifferent:
		latest, err := tx.LatestFileRef(ctx, inst.PK)
		if err != nil {
			return nil, err
		}
		same, err := r.sameContent(latest)
		if err != nil {
			return nil, err
		}
		if same {
			return ignored, nil
		}
	}

	ref, err := r.commit(ctx, tx, inst)
	if err != nil {
		return nil, err
	}
	if err := tx.TouchInstance(ctx, inst.PK); err != nil {
		return nil, err
	}
	return &Result{Instance: inst, FileRef: ref, Outcome: DuplicateStored}, nil
}

// sameContent reports whether the temp file matches the stored copy latest.
// Recorded digests are compared when both sides have one of the same
// algorithm; otherwise a stored copy on this file system is hashed.
func (r *ingestion) sameContent(latest *model.FileRef) (bool, error) {
	if latest == nil {
		return false, nil
	}
	if latest.Digest != nil {
		sum, err := r.committer.Digest(r.req.TempFile)
		if err != nil {
			return false, err
		}
		if sum != nil && len(*sum) == len(*latest.Digest) {
			return *sum == *latest.Digest, nil
		}
	}
	fsys := r.committer.FileSystem()
	if latest.FileSystemID != fsys.ID {
		return false, nil
	}
	a, err := sha256File(r.req.TempFile)
	if err != nil {
		return false, archiveerrors.NewResourceError("digest temp file", err)
	}
	b, err := sha256File(fsys.Abs(latest.Path))
	if err != nil {
		return false, archiveerrors.NewResourceError("digest stored file", err)
	}
	return bytes.Equal(a, b), nil
}

func sha256File(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return nil, err
	}
	return h.Sum(nil), nil
}

// commit moves the temp file into storage and registers it. From here on a
// failure of the transaction orphans the file.
func (r *ingestion) commit(ctx context.Context, tx *store.Tx, inst *model.Instance) (*model.FileRef, error) {
	ref, err := r.committer.Commit(ctx, r.req.TempFile, r.req.Dataset, r.req.TransferSyntaxUID)
	if err != nil {
		return nil, err
	}
	tx.TrackFile(r.committer.FileSystem().Abs(ref.Path))
	ref.InstanceFK = inst.PK
	if err := tx.AddFileRef(ctx, ref); err != nil {
		return nil, err
	}
	return ref, nil
}
