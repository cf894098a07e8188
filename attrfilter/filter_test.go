package attrfilter

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/caio-sobreiro/dicomarchive/dicom"
	"github.com/caio-sobreiro/dicomarchive/model"
)

func instanceDataset() *dicom.Dataset {
	issuer := dicom.NewDataset()
	issuer.AddElement(dicom.TagUniversalEntityID, dicom.VR_UT, "1.2.40.0.13")

	ds := dicom.NewDataset()
	ds.AddElement(dicom.TagPatientName, dicom.VR_PN, "DOE^JOHN")
	ds.AddElement(dicom.TagPatientID, dicom.VR_LO, "PID-1")
	ds.AddElement(dicom.TagOtherPatientIDs, dicom.VR_LO, "ALT-7")
	ds.AddItems(dicom.TagIssuerOfPatientIDQualifiersSequence, issuer)
	ds.AddElement(dicom.TagStudyInstanceUID, dicom.VR_UI, "1.2.3")
	ds.AddElement(dicom.TagStudyDescription, dicom.VR_LO, "CHEST")
	ds.AddElement(dicom.TagSeriesInstanceUID, dicom.VR_UI, "1.2.3.4")
	ds.AddElement(dicom.TagModality, dicom.VR_CS, "CT")
	ds.AddElement(dicom.TagSOPInstanceUID, dicom.VR_UI, "1.2.3.4.5")
	return ds
}

func TestDefaultCoversAllKinds(t *testing.T) {
	set := Default()
	for _, kind := range model.EntityKinds() {
		f := set.Get(kind)
		assert.Equal(t, kind, f.Kind)
		assert.NotEmpty(t, f.Tags, kind.String())
	}
}

func TestSubsetSplitsLevels(t *testing.T) {
	set := Default()
	ds := instanceDataset()

	patient := set.Subset(model.KindPatient, ds)
	assert.Equal(t, "DOE^JOHN", patient.GetString(dicom.TagPatientName))
	assert.False(t, patient.Has(dicom.TagStudyInstanceUID))

	study := set.Subset(model.KindStudy, ds)
	assert.Equal(t, "CHEST", study.GetString(dicom.TagStudyDescription))
	assert.False(t, study.Has(dicom.TagPatientName))

	series := set.Subset(model.KindSeries, ds)
	assert.Equal(t, "CT", series.GetString(dicom.TagModality))
	assert.False(t, series.Has(dicom.TagSOPInstanceUID))
}

func TestLoad(t *testing.T) {
	doc := `
filters:
  Patient:
    tags: [PatientName, "(0010,0020)", PatientSex]
    custom:
      - OtherPatientIDs
      - IssuerOfPatientIDQualifiersSequence.UniversalEntityID
`
	set, err := Load(strings.NewReader(doc))
	require.NoError(t, err)

	f := set.Get(model.KindPatient)
	assert.Equal(t, []dicom.Tag{dicom.TagPatientName, dicom.TagPatientID, dicom.TagPatientSex}, f.Tags)

	values := f.CustomValues(instanceDataset())
	assert.Equal(t, [CustomSlots]string{"ALT-7", "1.2.40.0.13", ""}, values)

	// Kinds not named in the document keep their defaults.
	assert.Equal(t, Default().Get(model.KindStudy).Tags, set.Get(model.KindStudy).Tags)
}

func TestLoadRejectsBadInput(t *testing.T) {
	cases := map[string]string{
		"unknown kind":    "filters:\n  Equipment:\n    tags: [Modality]\n",
		"unknown keyword": "filters:\n  Study:\n    tags: [NotAnAttribute]\n",
		"too many custom": "filters:\n  Study:\n    custom: [StudyID, StudyID, StudyID, StudyID]\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(strings.NewReader(doc))
			assert.Error(t, err)
		})
	}
}

func TestLoadEmptyDocument(t *testing.T) {
	set, err := Load(strings.NewReader(""))
	require.NoError(t, err)
	assert.Equal(t, Default().Get(model.KindSeries).Tags, set.Get(model.KindSeries).Tags)
}

func TestSetUnmarshalYAML(t *testing.T) {
	var cfg struct {
		Filters Set `yaml:"attribute_filters"`
	}
	doc := "attribute_filters:\n  Instance:\n    tags: [SOPInstanceUID]\n    custom: [InstanceNumber]\n"
	require.NoError(t, yaml.Unmarshal([]byte(doc), &cfg))

	f := cfg.Filters.Get(model.KindInstance)
	assert.Equal(t, []dicom.Tag{dicom.TagSOPInstanceUID}, f.Tags)
	assert.Equal(t, "InstanceNumber", f.Custom[0].String())
}

func TestSelectorMissingPath(t *testing.T) {
	sel, err := ParseSelector("InstitutionCodeSequence.CodeValue")
	require.NoError(t, err)
	assert.Equal(t, "", sel.Value(instanceDataset()))
}
