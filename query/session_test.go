package query

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caio-sobreiro/dicomarchive/config"
	"github.com/caio-sobreiro/dicomarchive/dicom"
	archiveerrors "github.com/caio-sobreiro/dicomarchive/errors"
	"github.com/caio-sobreiro/dicomarchive/filestore"
	"github.com/caio-sobreiro/dicomarchive/ingest"
	"github.com/caio-sobreiro/dicomarchive/model"
	"github.com/caio-sobreiro/dicomarchive/store"
	"github.com/caio-sobreiro/dicomarchive/types"
)

const (
	ctImage = "1.2.840.10008.5.1.4.1.1.2"
	mrImage = "1.2.840.10008.5.1.4.1.1.4"
	usImage = "1.2.840.10008.5.1.4.1.1.6.1"
)

// countingCodec counts decoded blobs.
type countingCodec struct {
	dicom.ExplicitVRCodec
	decodes int
}

func (c *countingCodec) DecodeInto(data []byte, into *dicom.Dataset) error {
	c.decodes++
	return c.ExplicitVRCodec.DecodeInto(data, into)
}

type harness struct {
	t        *testing.T
	store    *store.Store
	codec    *countingCodec
	archive  *config.Archive
	pipeline *ingest.Pipeline
}

func newHarness(t *testing.T, configYAML string) *harness {
	t.Helper()
	dir := t.TempDir()
	codec := &countingCodec{}
	st, err := store.Open(filepath.Join(dir, "archive.db"), store.WithCodec(codec))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	archive, err := config.Parse([]byte(configYAML))
	require.NoError(t, err)
	committer := filestore.NewCommitter(filestore.FileSystem{GroupID: "G", ID: "fs1", Root: filepath.Join(dir, "storage")}, nil)
	return &harness{t: t, store: st, codec: codec, archive: archive, pipeline: ingest.New(st, committer, archive)}
}

type object struct {
	patientID, patientName, comments string
	study, studyDate, studyDesc      string
	series, modality                 string
	sop, cuid                        string
}

func (h *harness) add(o object) {
	h.t.Helper()
	ds := dicom.NewDataset()
	ds.AddElement(dicom.TagSpecificCharacterSet, dicom.VR_CS, "ISO_IR 100")
	ds.AddElement(dicom.TagPatientID, dicom.VR_LO, o.patientID)
	ds.AddElement(dicom.TagPatientName, dicom.VR_PN, o.patientName)
	if o.comments != "" {
		ds.AddElement(dicom.TagPatientComments, dicom.VR_LT, o.comments)
	}
	ds.AddElement(dicom.TagStudyInstanceUID, dicom.VR_UI, o.study)
	ds.AddElement(dicom.TagStudyDate, dicom.VR_DA, o.studyDate)
	ds.AddElement(dicom.TagStudyDescription, dicom.VR_LO, o.studyDesc)
	ds.AddElement(dicom.TagSeriesInstanceUID, dicom.VR_UI, o.series)
	ds.AddElement(dicom.TagModality, dicom.VR_CS, o.modality)
	ds.AddElement(dicom.TagSOPInstanceUID, dicom.VR_UI, o.sop)
	ds.AddElement(dicom.TagSOPClassUID, dicom.VR_UI, o.cuid)

	data, err := dicom.WritePart10(ds, dicom.TransferSyntaxExplicitVRLittleEndian)
	require.NoError(h.t, err)
	tmp, err := os.CreateTemp(h.t.TempDir(), "*.dcm")
	require.NoError(h.t, err)
	_, err = io.Copy(tmp, bytes.NewReader(data))
	require.NoError(h.t, err)
	require.NoError(h.t, tmp.Close())

	_, err = h.pipeline.Ingest(context.Background(), ingest.Request{
		Dataset:           ds,
		TempFile:          tmp.Name(),
		TransferSyntaxUID: dicom.TransferSyntaxExplicitVRLittleEndian,
		CallingAET:        "MODALITY",
	})
	require.NoError(h.t, err)
}

// seed files three patients. Roe is merged into Doe, taking study 3.1 along.
func (h *harness) seed() {
	h.t.Helper()
	smith := object{patientID: "P1", patientName: "Smith^John", study: "1.1", studyDate: "20240110", studyDesc: "Chest"}
	for _, o := range []struct{ series, modality, sop, cuid string }{
		{"1.1.1", "CT", "1.1.1.1", ctImage},
		{"1.1.1", "CT", "1.1.1.2", ctImage},
		{"1.1.2", "MR", "1.1.2.1", mrImage},
	} {
		obj := smith
		obj.series, obj.modality, obj.sop, obj.cuid = o.series, o.modality, o.sop, o.cuid
		h.add(obj)
	}
	h.add(object{patientID: "P2", patientName: "Doe^Jane", study: "2.1", studyDate: "20240305",
		series: "2.1.1", modality: "CT", sop: "2.1.1.1", cuid: ctImage})
	h.add(object{patientID: "P3", patientName: "Roe^Richard", study: "3.1", studyDate: "20240402", studyDesc: "Head",
		series: "3.1.1", modality: "US", sop: "3.1.1.1", cuid: usImage})

	ctx := context.Background()
	doe, err := h.store.LookupPatient(ctx, "P2", model.Issuer{})
	require.NoError(h.t, err)
	roe, err := h.store.LookupPatient(ctx, "P3", model.Issuer{})
	require.NoError(h.t, err)
	require.NoError(h.t, h.store.MergePatients(ctx, roe.PK, doe.PK))
}

func (h *harness) find(level types.QueryLevel, opts Options, keys *dicom.Dataset) []*dicom.Dataset {
	h.t.Helper()
	s, err := NewSession(h.store, level, opts)
	require.NoError(h.t, err)
	defer s.Close()
	require.NoError(h.t, s.Find(context.Background(), keys))
	return drain(h.t, s)
}

func drain(t *testing.T, s *Session) []*dicom.Dataset {
	t.Helper()
	var out []*dicom.Dataset
	for {
		ds, err := s.Next()
		if errors.Is(err, io.EOF) {
			return out
		}
		require.NoError(t, err)
		out = append(out, ds)
	}
}

func values(results []*dicom.Dataset, tag dicom.Tag) []string {
	out := []string{}
	for _, ds := range results {
		out = append(out, ds.GetString(tag))
	}
	return out
}

// keys builds an identifier from tag/value pairs.
func keys(pairs ...any) *dicom.Dataset {
	ds := dicom.NewDataset()
	for i := 0; i < len(pairs); i += 2 {
		tag := pairs[i].(dicom.Tag)
		ds.AddElement(tag, dicom.VROf(tag), pairs[i+1].(string))
	}
	return ds
}

func TestSession_PatientLevelSkipsMergedPatients(t *testing.T) {
	h := newHarness(t, "")
	h.seed()

	results := h.find(types.QueryLevelPatient, Options{}, keys(
		dicom.TagPatientID, "",
		dicom.TagPatientName, "",
		dicom.TagNumberOfPatientRelatedStudies, "",
		dicom.TagNumberOfPatientRelatedInstances, "",
	))
	require.Len(t, results, 2)
	assert.Equal(t, []string{"P1", "P2"}, values(results, dicom.TagPatientID))
	assert.Equal(t, []string{"1", "2"}, values(results, dicom.TagNumberOfPatientRelatedStudies))
	assert.Equal(t, []string{"3", "2"}, values(results, dicom.TagNumberOfPatientRelatedInstances))
	assert.Equal(t, "PATIENT", results[0].GetString(dicom.TagQueryRetrieveLevel))

	assert.Empty(t, h.find(types.QueryLevelPatient, Options{}, keys(dicom.TagPatientID, "P3")))
}

func TestSession_StudyLevelComputedAttributes(t *testing.T) {
	h := newHarness(t, "")
	h.seed()

	results := h.find(types.QueryLevelStudy, Options{}, keys(
		dicom.TagStudyInstanceUID, "1.1",
		dicom.TagPatientName, "",
		dicom.TagStudyDescription, "",
		dicom.TagModalitiesInStudy, "",
		dicom.TagSOPClassesInStudy, "",
		dicom.TagNumberOfStudyRelatedSeries, "",
		dicom.TagNumberOfStudyRelatedInstances, "",
		dicom.TagRetrieveAETitle, "",
		dicom.TagInstanceAvailability, "",
		dicom.TagAccessionNumber, "",
	))
	require.Len(t, results, 1)
	r := results[0]
	assert.Equal(t, "Smith^John", r.GetString(dicom.TagPatientName))
	assert.Equal(t, "Chest", r.GetString(dicom.TagStudyDescription))
	assert.Equal(t, []string{"CT", "MR"}, r.GetStrings(dicom.TagModalitiesInStudy))
	assert.Equal(t, []string{ctImage, mrImage}, r.GetStrings(dicom.TagSOPClassesInStudy))
	assert.Equal(t, "2", r.GetString(dicom.TagNumberOfStudyRelatedSeries))
	assert.Equal(t, "3", r.GetString(dicom.TagNumberOfStudyRelatedInstances))
	assert.Equal(t, "DICOMARCHIVE", r.GetString(dicom.TagRetrieveAETitle))
	assert.Equal(t, "ONLINE", r.GetString(dicom.TagInstanceAvailability))
	assert.Equal(t, "ISO_IR 100", r.GetString(dicom.TagSpecificCharacterSet))

	acc, ok := r.GetElement(dicom.TagAccessionNumber)
	require.True(t, ok, "requested keys are always returned")
	assert.Equal(t, "", acc.Value)
	assert.False(t, r.Has(dicom.TagStudyDate), "unrequested attributes are not returned")
}

func TestSession_StudyLevelMatching(t *testing.T) {
	h := newHarness(t, "")
	h.seed()

	fuzzy := Options{FuzzyMatching: true, FuzzyFields: []dicom.Tag{dicom.TagPatientName}}
	tests := []struct {
		name string
		opts Options
		keys *dicom.Dataset
		want []string
	}{
		{"universal", Options{}, keys(), []string{"1.1", "2.1", "3.1"}},
		{"wildcard is case sensitive", Options{}, keys(dicom.TagPatientName, "smith*"), []string{}},
		{"case insensitive names", Options{CaseInsensitivePN: true}, keys(dicom.TagPatientName, "smith*"), []string{"1.1"}},
		{"fuzzy name", fuzzy, keys(dicom.TagPatientName, "SMYTH^JON"), []string{"1.1"}},
		{"fuzzy disabled", Options{}, keys(dicom.TagPatientName, "SMYTH^JON"), []string{}},
		{"date range", Options{}, keys(dicom.TagStudyDate, "20240101-20240131"), []string{"1.1"}},
		{"open date range", Options{}, keys(dicom.TagStudyDate, "20240301-"), []string{"2.1", "3.1"}},
		{"modality in study", Options{}, keys(dicom.TagModalitiesInStudy, "MR"), []string{"1.1"}},
		{"modality list", Options{}, keys(dicom.TagModalitiesInStudy, `US\MR`), []string{"1.1", "3.1"}},
		{"modality wildcard", Options{}, keys(dicom.TagModalitiesInStudy, "C*"), []string{"1.1", "2.1"}},
		{"modality single character wildcard", Options{}, keys(dicom.TagModalitiesInStudy, "M?"), []string{"1.1"}},
		{"modality list with wildcard", Options{}, keys(dicom.TagModalitiesInStudy, `US\M*`), []string{"1.1", "3.1"}},
		{"modality universal", Options{}, keys(dicom.TagModalitiesInStudy, "*"), []string{"1.1", "2.1", "3.1"}},
		{"sop class wildcard", Options{}, keys(dicom.TagSOPClassesInStudy, "*.4"), []string{"1.1"}},
		{"sop class in study", Options{}, keys(dicom.TagSOPClassesInStudy, ctImage), []string{"1.1", "2.1"}},
		{"description", Options{}, keys(dicom.TagStudyDescription, "Chest"), []string{"1.1"}},
		{"match unknown", Options{MatchUnknown: true}, keys(dicom.TagStudyDescription, "Chest"), []string{"1.1", "2.1"}},
		{"uid list", Options{}, keys(dicom.TagStudyInstanceUID, `1.1\3.1`), []string{"1.1", "3.1"}},
		{"patient id follows merge", Options{}, keys(dicom.TagPatientID, "P2"), []string{"2.1", "3.1"}},
		{"merged patient id", Options{}, keys(dicom.TagPatientID, "P3"), []string{}},
		{"instance keys are ignored", Options{}, keys(dicom.TagSOPInstanceUID, "nope"), []string{"1.1", "2.1", "3.1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.keys.AddElement(dicom.TagStudyInstanceUID, dicom.VR_UI, tt.keys.GetString(dicom.TagStudyInstanceUID))
			results := h.find(types.QueryLevelStudy, tt.opts, tt.keys)
			assert.Equal(t, tt.want, values(results, dicom.TagStudyInstanceUID))
		})
	}
}

func TestSession_SeriesLevel(t *testing.T) {
	h := newHarness(t, "")
	h.seed()

	s, err := NewSession(h.store, types.QueryLevelSeries, Options{})
	require.NoError(t, err)
	err = s.Find(context.Background(), keys(dicom.TagSeriesInstanceUID, ""))
	assert.True(t, archiveerrors.IsMalformed(err), "hierarchical series query needs a study")
	require.NoError(t, s.Close())

	results := h.find(types.QueryLevelSeries, Options{}, keys(
		dicom.TagStudyInstanceUID, "1.1",
		dicom.TagSeriesInstanceUID, "",
		dicom.TagModality, "",
		dicom.TagNumberOfSeriesRelatedInstances, "",
	))
	assert.Equal(t, []string{"1.1.1", "1.1.2"}, values(results, dicom.TagSeriesInstanceUID))
	assert.Equal(t, []string{"CT", "MR"}, values(results, dicom.TagModality))
	assert.Equal(t, []string{"2", "1"}, values(results, dicom.TagNumberOfSeriesRelatedInstances))

	results = h.find(types.QueryLevelSeries, Options{Relational: true}, keys(
		dicom.TagSeriesInstanceUID, "",
		dicom.TagModality, "CT",
	))
	assert.Equal(t, []string{"1.1.1", "2.1.1"}, values(results, dicom.TagSeriesInstanceUID))
}

func TestSession_InstanceLevelDecodesParentsOncePerSeries(t *testing.T) {
	h := newHarness(t, "")
	h.seed()
	h.codec.decodes = 0

	results := h.find(types.QueryLevelImage, Options{Relational: true}, keys(
		dicom.TagStudyInstanceUID, "1.1",
		dicom.TagSOPInstanceUID, "",
		dicom.TagPatientName, "",
		dicom.TagModality, "",
		dicom.TagRetrieveAETitle, "",
	))
	require.Len(t, results, 3)
	assert.Equal(t, []string{"1.1.1.1", "1.1.1.2", "1.1.2.1"}, values(results, dicom.TagSOPInstanceUID))
	assert.Equal(t, []string{"CT", "CT", "MR"}, values(results, dicom.TagModality))
	assert.Equal(t, []string{"Smith^John", "Smith^John", "Smith^John"}, values(results, dicom.TagPatientName))
	assert.Equal(t, "IMAGE", results[0].GetString(dicom.TagQueryRetrieveLevel))

	// Two series with three parent blobs each, plus one blob per instance.
	assert.Equal(t, 2*3+3, h.codec.decodes)
}

func TestSession_InstanceLevelHierarchical(t *testing.T) {
	h := newHarness(t, "")
	h.seed()

	s, err := NewSession(h.store, types.QueryLevelImage, Options{})
	require.NoError(t, err)
	defer s.Close()
	err = s.Find(context.Background(), keys(dicom.TagStudyInstanceUID, "1.1", dicom.TagSeriesInstanceUID, `1.1.1\1.1.2`))
	assert.True(t, archiveerrors.IsMalformed(err))

	results := h.find(types.QueryLevelImage, Options{}, keys(
		dicom.TagStudyInstanceUID, "1.1",
		dicom.TagSeriesInstanceUID, "1.1.2",
		dicom.TagSOPInstanceUID, "",
	))
	assert.Equal(t, []string{"1.1.2.1"}, values(results, dicom.TagSOPInstanceUID))
}

func TestSession_StateMachine(t *testing.T) {
	h := newHarness(t, "")
	h.seed()
	ctx := context.Background()

	s, err := NewSession(h.store, types.QueryLevelPatient, Options{})
	require.NoError(t, err)

	_, err = s.HasNext()
	assert.ErrorIs(t, err, archiveerrors.ErrSessionNotStarted)
	_, err = s.Next()
	assert.ErrorIs(t, err, archiveerrors.ErrSessionNotStarted)

	require.NoError(t, s.Find(ctx, keys(dicom.TagPatientID, "")))
	assert.ErrorIs(t, s.Find(ctx, keys()), archiveerrors.ErrSessionActive)

	ok, err := s.HasNext()
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = s.HasNext()
	require.NoError(t, err)
	assert.True(t, ok, "HasNext does not consume")

	assert.Len(t, drain(t, s), 2)
	ok, err = s.HasNext()
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	_, err = s.Next()
	assert.ErrorIs(t, err, archiveerrors.ErrSessionClosed)
	assert.ErrorIs(t, s.Find(ctx, keys()), archiveerrors.ErrSessionClosed)
}

func TestSession_CloseBeforeDraining(t *testing.T) {
	h := newHarness(t, "")
	h.seed()

	s, err := NewSession(h.store, types.QueryLevelStudy, Options{})
	require.NoError(t, err)
	require.NoError(t, s.Find(context.Background(), keys()))
	_, err = s.Next()
	require.NoError(t, err)
	require.NoError(t, s.Close())

	// The released cursor must not hold the database.
	require.NoError(t, h.store.Grant(context.Background(), "1.1", "doctor", "QUERY"))
}

func TestSession_AbandonedSessionReleasesConnection(t *testing.T) {
	h := newHarness(t, "")
	h.seed()
	db := h.store.DB()

	func() {
		s, err := NewSession(h.store, types.QueryLevelImage, Options{})
		require.NoError(t, err)
		require.NoError(t, s.Find(context.Background(), keys()))
		_, err = s.Next()
		require.NoError(t, err)
		assert.Equal(t, 1, db.Stats().InUse, "an undrained session holds its connection")
	}()

	assert.Eventually(t, func() bool {
		runtime.GC()
		return db.Stats().InUse == 0
	}, 5*time.Second, 10*time.Millisecond)
}

func TestSession_ContextCancellation(t *testing.T) {
	h := newHarness(t, "")
	h.seed()

	ctx, cancel := context.WithCancel(context.Background())
	s, err := NewSession(h.store, types.QueryLevelStudy, Options{})
	require.NoError(t, err)
	defer s.Close()
	require.NoError(t, s.Find(ctx, keys()))
	cancel()

	_, err = s.Next()
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSession_OptionalKeyNotSupported(t *testing.T) {
	h := newHarness(t, "")
	h.seed()
	private := dicom.Tag{Group: 0x0009, Element: 0x1001}

	tests := []struct {
		name  string
		level types.QueryLevel
		keys  *dicom.Dataset
		want  bool
	}{
		{"supported keys", types.QueryLevelStudy, keys(dicom.TagStudyDescription, "Chest"), false},
		{"empty unknown key", types.QueryLevelStudy, keys(private, ""), false},
		{"unknown key with value", types.QueryLevelStudy, keys(private, "X"), true},
		{"lower level key with value", types.QueryLevelPatient, keys(dicom.TagModality, "CT"), true},
		{"stored return key", types.QueryLevelPatient, keys(dicom.TagPatientComments, "VIP"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := NewSession(h.store, tt.level, Options{})
			require.NoError(t, err)
			defer s.Close()
			require.NoError(t, s.Find(context.Background(), tt.keys))
			assert.Equal(t, tt.want, s.OptionalKeyNotSupported())
		})
	}
}

func TestSession_CustomAttributes(t *testing.T) {
	filters := filepath.Join(t.TempDir(), "filters.yaml")
	require.NoError(t, os.WriteFile(filters, []byte("filters:\n  Patient:\n    custom: [PatientComments]\n"), 0o644))
	h := newHarness(t, "defaults:\n  attribute_filters: "+filters+"\n")

	h.add(object{patientID: "P1", patientName: "A^B", comments: "VIP", study: "1.1", series: "1.1.1", sop: "1.1.1.1", cuid: ctImage})
	h.add(object{patientID: "P2", patientName: "C^D", study: "2.1", series: "2.1.1", sop: "2.1.1.1", cuid: ctImage})

	opts := OptionsFor(h.archive.Defaults())
	results := h.find(types.QueryLevelPatient, opts, keys(dicom.TagPatientID, "", dicom.TagPatientComments, "VIP"))
	assert.Equal(t, []string{"P1"}, values(results, dicom.TagPatientID))
	assert.Equal(t, []string{"VIP"}, values(results, dicom.TagPatientComments))

	opts.MatchUnknown = true
	results = h.find(types.QueryLevelPatient, opts, keys(dicom.TagPatientID, "", dicom.TagPatientComments, "VIP"))
	assert.Equal(t, []string{"P1", "P2"}, values(results, dicom.TagPatientID))
}

func TestNewSession_UnknownLevel(t *testing.T) {
	h := newHarness(t, "")
	_, err := NewSession(h.store, types.QueryLevel("WORKLIST"), Options{})
	assert.ErrorIs(t, err, archiveerrors.ErrUnknownLevel)
}

func TestProvider_UsesCalledAESettings(t *testing.T) {
	h := newHarness(t, "aes:\n  FUZZY:\n    fuzzy_matching: true\n    fuzzy_fields: [PatientName]\n")
	h.seed()
	p := NewProvider(h.store, h.archive, nil)

	run := func(calledAET string, relational bool, level types.QueryLevel, k *dicom.Dataset) []string {
		s, err := p.NewQuery(level, calledAET, relational)
		require.NoError(t, err)
		defer s.Close()
		require.NoError(t, s.Find(context.Background(), k))
		var out []string
		for {
			more, err := s.HasNext()
			require.NoError(t, err)
			if !more {
				return out
			}
			ds, err := s.Next()
			require.NoError(t, err)
			out = append(out, ds.GetString(dicom.TagStudyInstanceUID)+"/"+ds.GetString(dicom.TagSeriesInstanceUID))
		}
	}

	fuzzy := keys(dicom.TagPatientName, "SMYTH^JON", dicom.TagStudyInstanceUID, "")
	assert.Equal(t, []string{"1.1/"}, run("FUZZY", false, types.QueryLevelStudy, fuzzy))
	assert.Empty(t, run("OTHER", false, types.QueryLevelStudy, fuzzy))

	series := keys(dicom.TagModality, "MR", dicom.TagStudyInstanceUID, "", dicom.TagSeriesInstanceUID, "")
	assert.Equal(t, []string{"1.1/1.1.2"}, run("OTHER", true, types.QueryLevelSeries, series))

	_, err := p.NewQuery("WORKLIST", "OTHER", false)
	assert.ErrorIs(t, err, archiveerrors.ErrUnknownLevel)
}
