package ingest

import (
	"fmt"

	"github.com/caio-sobreiro/dicomarchive/attrfilter"
	"github.com/caio-sobreiro/dicomarchive/dicom"
	"github.com/caio-sobreiro/dicomarchive/match"
	"github.com/caio-sobreiro/dicomarchive/model"
)

// requiredTags must be present for an object to be filed.
var requiredTags = []dicom.Tag{
	dicom.TagStudyInstanceUID,
	dicom.TagSeriesInstanceUID,
	dicom.TagSOPInstanceUID,
	dicom.TagSOPClassUID,
}

func missingTags(ds *dicom.Dataset) []dicom.Tag {
	var missing []dicom.Tag
	for _, tag := range requiredTags {
		if ds.GetString(tag) == "" {
			missing = append(missing, tag)
		}
	}
	return missing
}

// extractor turns a dataset into entity rows using one AE's filters.
type extractor struct {
	filters *attrfilter.Set
	codec   dicom.Codec
}

func (x extractor) blob(kind model.EntityKind, ds *dicom.Dataset) ([]byte, error) {
	data, err := x.codec.Encode(x.filters.Subset(kind, ds))
	if err != nil {
		return nil, fmt.Errorf("encode %s attributes: %w", kind, err)
	}
	return data, nil
}

func codeItem(ds *dicom.Dataset, seq dicom.Tag) model.Code {
	item := ds.GetItem(seq)
	if item == nil {
		return model.Code{}
	}
	return model.Code{
		CodeValue:              item.GetString(dicom.TagCodeValue),
		CodingSchemeDesignator: item.GetString(dicom.TagCodingSchemeDesignator),
		CodingSchemeVersion:    item.GetString(dicom.TagCodingSchemeVersion),
		CodeMeaning:            item.GetString(dicom.TagCodeMeaning),
	}
}

func (x extractor) patient(ds *dicom.Dataset) (*model.Patient, error) {
	attrs, err := x.blob(model.KindPatient, ds)
	if err != nil {
		return nil, err
	}
	custom := x.filters.Get(model.KindPatient).CustomValues(ds)
	name := ds.GetString(dicom.TagPatientName)
	fn, gn := match.PhoneticCodes(name)
	return &model.Patient{
		PatientID:         ds.GetString(dicom.TagPatientID),
		PatientName:       name,
		FamilyNameSoundex: fn,
		GivenNameSoundex:  gn,
		BirthDate:         ds.GetString(dicom.TagPatientBirthDate),
		Sex:               ds.GetString(dicom.TagPatientSex),
		Custom1:           custom[0],
		Custom2:           custom[1],
		Custom3:           custom[2],
		Attrs:             attrs,
	}, nil
}

func (x extractor) study(ds *dicom.Dataset) (*model.Study, error) {
	attrs, err := x.blob(model.KindStudy, ds)
	if err != nil {
		return nil, err
	}
	custom := x.filters.Get(model.KindStudy).CustomValues(ds)
	ref := ds.GetString(dicom.TagReferringPhysicianName)
	fn, gn := match.PhoneticCodes(ref)
	return &model.Study{
		StudyInstanceUID:       ds.GetString(dicom.TagStudyInstanceUID),
		AccessionNumber:        ds.GetString(dicom.TagAccessionNumber),
		StudyID:                ds.GetString(dicom.TagStudyID),
		StudyDate:              ds.GetString(dicom.TagStudyDate),
		StudyTime:              ds.GetString(dicom.TagStudyTime),
		ReferringPhysicianName: ref,
		RefPhysFamilySoundex:   fn,
		RefPhysGivenSoundex:    gn,
		StudyDescription:       ds.GetString(dicom.TagStudyDescription),
		Custom1:                custom[0],
		Custom2:                custom[1],
		Custom3:                custom[2],
		Attrs:                  attrs,
	}, nil
}

func (x extractor) series(ds *dicom.Dataset) (*model.Series, error) {
	attrs, err := x.blob(model.KindSeries, ds)
	if err != nil {
		return nil, err
	}
	custom := x.filters.Get(model.KindSeries).CustomValues(ds)
	perf := ds.GetString(dicom.TagPerformingPhysicianName)
	fn, gn := match.PhoneticCodes(perf)
	se := &model.Series{
		SeriesInstanceUID:           ds.GetString(dicom.TagSeriesInstanceUID),
		SeriesNumber:                ds.GetString(dicom.TagSeriesNumber),
		Modality:                    ds.GetString(dicom.TagModality),
		InstitutionName:             ds.GetString(dicom.TagInstitutionName),
		InstitutionalDepartmentName: ds.GetString(dicom.TagInstitutionalDepartmentName),
		StationName:                 ds.GetString(dicom.TagStationName),
		PerformingPhysicianName:     perf,
		PerfPhysFamilySoundex:       fn,
		PerfPhysGivenSoundex:        gn,
		BodyPartExamined:            ds.GetString(dicom.TagBodyPartExamined),
		Laterality:                  ds.GetString(dicom.TagLaterality),
		SeriesDescription:           ds.GetString(dicom.TagSeriesDescription),
		Custom1:                     custom[0],
		Custom2:                     custom[1],
		Custom3:                     custom[2],
		Attrs:                       attrs,
	}
	if pps := ds.GetItem(dicom.TagReferencedPerformedProcedureStepSeq); pps != nil {
		se.PPSInstanceUID = pps.GetString(dicom.TagReferencedSOPInstanceUID)
		se.PPSClassUID = pps.GetString(dicom.TagReferencedSOPClassUID)
	}
	return se, nil
}

func (x extractor) instance(ds *dicom.Dataset) (*model.Instance, error) {
	attrs, err := x.blob(model.KindInstance, ds)
	if err != nil {
		return nil, err
	}
	custom := x.filters.Get(model.KindInstance).CustomValues(ds)
	return &model.Instance{
		SOPInstanceUID: ds.GetString(dicom.TagSOPInstanceUID),
		SOPClassUID:    ds.GetString(dicom.TagSOPClassUID),
		InstanceNumber: ds.GetString(dicom.TagInstanceNumber),
		ContentDate:    ds.GetString(dicom.TagContentDate),
		ContentTime:    ds.GetString(dicom.TagContentTime),
		Custom1:        custom[0],
		Custom2:        custom[1],
		Custom3:        custom[2],
		Attrs:          attrs,
	}, nil
}
