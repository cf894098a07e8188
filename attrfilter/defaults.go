package attrfilter

import (
	"github.com/caio-sobreiro/dicomarchive/dicom"
	"github.com/caio-sobreiro/dicomarchive/model"
)

var defaultTags = map[model.EntityKind][]dicom.Tag{
	model.KindPatient: {
		dicom.TagSpecificCharacterSet,
		dicom.TagPatientName,
		dicom.TagPatientID,
		dicom.TagIssuerOfPatientID,
		dicom.TagIssuerOfPatientIDQualifiersSequence,
		dicom.TagPatientBirthDate,
		dicom.TagPatientSex,
		dicom.TagOtherPatientIDs,
		dicom.TagPatientComments,
	},
	model.KindStudy: {
		dicom.TagSpecificCharacterSet,
		dicom.TagStudyDate,
		dicom.TagStudyTime,
		dicom.TagAccessionNumber,
		dicom.TagIssuerOfAccessionNumberSequence,
		dicom.TagReferringPhysicianName,
		dicom.TagStudyDescription,
		dicom.TagStudyInstanceUID,
		dicom.TagStudyID,
		dicom.TagPatientAge,
	},
	model.KindSeries: {
		dicom.TagSpecificCharacterSet,
		dicom.TagSeriesDate,
		dicom.TagSeriesTime,
		dicom.TagModality,
		dicom.TagInstitutionName,
		dicom.TagInstitutionCodeSequence,
		dicom.TagStationName,
		dicom.TagSeriesDescription,
		dicom.TagInstitutionalDepartmentName,
		dicom.TagPerformingPhysicianName,
		dicom.TagReferencedPerformedProcedureStepSeq,
		dicom.TagBodyPartExamined,
		dicom.TagSeriesInstanceUID,
		dicom.TagSeriesNumber,
		dicom.TagLaterality,
	},
	model.KindInstance: {
		dicom.TagSpecificCharacterSet,
		dicom.TagSOPClassUID,
		dicom.TagSOPInstanceUID,
		dicom.TagContentDate,
		dicom.TagContentTime,
		dicom.TagInstanceNumber,
		dicom.TagRows,
		dicom.TagColumns,
		dicom.TagConceptNameCodeSequence,
	},
	model.KindVisit: {
		dicom.TagSpecificCharacterSet,
		dicom.TagAdmissionID,
		dicom.TagCurrentPatientLocation,
	},
	model.KindServiceRequest: {
		dicom.TagSpecificCharacterSet,
		dicom.TagAccessionNumber,
		dicom.TagIssuerOfAccessionNumberSequence,
		dicom.TagRequestingPhysician,
	},
	model.KindRequestedProcedure: {
		dicom.TagSpecificCharacterSet,
		dicom.TagStudyInstanceUID,
		dicom.TagRequestedProcedureDescription,
		dicom.TagRequestedProcedureID,
	},
	model.KindScheduledProcedureStep: {
		dicom.TagSpecificCharacterSet,
		dicom.TagModality,
		dicom.TagScheduledStationAETitle,
		dicom.TagScheduledProcedureStepStartDate,
		dicom.TagScheduledProcedureStepID,
	},
	model.KindPerformedProcedureStep: {
		dicom.TagSpecificCharacterSet,
		dicom.TagModality,
		dicom.TagPerformedProcedureStepStartDate,
		dicom.TagPerformedProcedureStepStatus,
		dicom.TagPerformedProcedureStepID,
	},
}
