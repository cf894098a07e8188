package dicom

import (
	"fmt"
	"strconv"
	"strings"
)

// Attribute tags used by the archive.
var (
	TagFileMetaInformationGroupLength = Tag{0x0002, 0x0000}
	TagFileMetaInformationVersion     = Tag{0x0002, 0x0001}
	TagMediaStorageSOPClassUID        = Tag{0x0002, 0x0002}
	TagMediaStorageSOPInstanceUID     = Tag{0x0002, 0x0003}
	TagTransferSyntaxUID              = Tag{0x0002, 0x0010}
	TagImplementationClassUID         = Tag{0x0002, 0x0012}
	TagSourceApplicationEntityTitle   = Tag{0x0002, 0x0016}

	TagSpecificCharacterSet                = Tag{0x0008, 0x0005}
	TagSOPClassUID                         = Tag{0x0008, 0x0016}
	TagSOPInstanceUID                      = Tag{0x0008, 0x0018}
	TagStudyDate                           = Tag{0x0008, 0x0020}
	TagSeriesDate                          = Tag{0x0008, 0x0021}
	TagContentDate                         = Tag{0x0008, 0x0023}
	TagStudyTime                           = Tag{0x0008, 0x0030}
	TagSeriesTime                          = Tag{0x0008, 0x0031}
	TagContentTime                         = Tag{0x0008, 0x0033}
	TagAccessionNumber                     = Tag{0x0008, 0x0050}
	TagIssuerOfAccessionNumberSequence     = Tag{0x0008, 0x0051}
	TagQueryRetrieveLevel                  = Tag{0x0008, 0x0052}
	TagRetrieveAETitle                     = Tag{0x0008, 0x0054}
	TagInstanceAvailability                = Tag{0x0008, 0x0056}
	TagModality                            = Tag{0x0008, 0x0060}
	TagModalitiesInStudy                   = Tag{0x0008, 0x0061}
	TagSOPClassesInStudy                   = Tag{0x0008, 0x0062}
	TagInstitutionName                     = Tag{0x0008, 0x0080}
	TagInstitutionCodeSequence             = Tag{0x0008, 0x0082}
	TagReferringPhysicianName              = Tag{0x0008, 0x0090}
	TagCodeValue                           = Tag{0x0008, 0x0100}
	TagCodingSchemeDesignator              = Tag{0x0008, 0x0102}
	TagCodingSchemeVersion                 = Tag{0x0008, 0x0103}
	TagCodeMeaning                         = Tag{0x0008, 0x0104}
	TagStationName                         = Tag{0x0008, 0x1010}
	TagStudyDescription                    = Tag{0x0008, 0x1030}
	TagSeriesDescription                   = Tag{0x0008, 0x103E}
	TagInstitutionalDepartmentName         = Tag{0x0008, 0x1040}
	TagPerformingPhysicianName             = Tag{0x0008, 0x1050}
	TagReferencedPerformedProcedureStepSeq = Tag{0x0008, 0x1111}
	TagReferencedSOPClassUID               = Tag{0x0008, 0x1150}
	TagReferencedSOPInstanceUID            = Tag{0x0008, 0x1155}

	TagPatientName                         = Tag{0x0010, 0x0010}
	TagPatientID                           = Tag{0x0010, 0x0020}
	TagIssuerOfPatientID                   = Tag{0x0010, 0x0021}
	TagIssuerOfPatientIDQualifiersSequence = Tag{0x0010, 0x0024}
	TagPatientBirthDate                    = Tag{0x0010, 0x0030}
	TagPatientSex                          = Tag{0x0010, 0x0040}
	TagOtherPatientIDs                     = Tag{0x0010, 0x1000}
	TagPatientAge                          = Tag{0x0010, 0x1010}
	TagPatientComments                     = Tag{0x0010, 0x4000}

	TagBodyPartExamined = Tag{0x0018, 0x0015}

	TagStudyInstanceUID                = Tag{0x0020, 0x000D}
	TagSeriesInstanceUID               = Tag{0x0020, 0x000E}
	TagStudyID                         = Tag{0x0020, 0x0010}
	TagSeriesNumber                    = Tag{0x0020, 0x0011}
	TagInstanceNumber                  = Tag{0x0020, 0x0013}
	TagLaterality                      = Tag{0x0020, 0x0060}
	TagNumberOfPatientRelatedStudies   = Tag{0x0020, 0x1200}
	TagNumberOfPatientRelatedSeries    = Tag{0x0020, 0x1202}
	TagNumberOfPatientRelatedInstances = Tag{0x0020, 0x1204}
	TagNumberOfStudyRelatedSeries      = Tag{0x0020, 0x1206}
	TagNumberOfStudyRelatedInstances   = Tag{0x0020, 0x1208}
	TagNumberOfSeriesRelatedInstances  = Tag{0x0020, 0x1209}

	TagRows    = Tag{0x0028, 0x0010}
	TagColumns = Tag{0x0028, 0x0011}

	TagRequestingPhysician           = Tag{0x0032, 0x1032}
	TagRequestedProcedureDescription = Tag{0x0032, 0x1060}
	TagAdmissionID                   = Tag{0x0038, 0x0010}
	TagCurrentPatientLocation        = Tag{0x0038, 0x0300}

	TagScheduledStationAETitle          = Tag{0x0040, 0x0001}
	TagScheduledProcedureStepStartDate  = Tag{0x0040, 0x0002}
	TagScheduledProcedureStepID         = Tag{0x0040, 0x0009}
	TagLocalNamespaceEntityID           = Tag{0x0040, 0x0031}
	TagUniversalEntityID                = Tag{0x0040, 0x0032}
	TagUniversalEntityIDType            = Tag{0x0040, 0x0033}
	TagPerformedProcedureStepStartDate  = Tag{0x0040, 0x0244}
	TagPerformedProcedureStepStatus     = Tag{0x0040, 0x0252}
	TagPerformedProcedureStepID         = Tag{0x0040, 0x0253}
	TagRequestedProcedureID             = Tag{0x0040, 0x1001}
	TagConceptNameCodeSequence          = Tag{0x0040, 0xA043}

	TagPixelData = Tag{0x7FE0, 0x0010}
)

type dictEntry struct {
	Tag     Tag
	Keyword string
	VR      string
}

var dictionary = []dictEntry{
	{TagFileMetaInformationGroupLength, "FileMetaInformationGroupLength", VR_UL},
	{TagFileMetaInformationVersion, "FileMetaInformationVersion", VR_OB},
	{TagMediaStorageSOPClassUID, "MediaStorageSOPClassUID", VR_UI},
	{TagMediaStorageSOPInstanceUID, "MediaStorageSOPInstanceUID", VR_UI},
	{TagTransferSyntaxUID, "TransferSyntaxUID", VR_UI},
	{TagImplementationClassUID, "ImplementationClassUID", VR_UI},
	{TagSourceApplicationEntityTitle, "SourceApplicationEntityTitle", VR_AE},
	{TagSpecificCharacterSet, "SpecificCharacterSet", VR_CS},
	{TagSOPClassUID, "SOPClassUID", VR_UI},
	{TagSOPInstanceUID, "SOPInstanceUID", VR_UI},
	{TagStudyDate, "StudyDate", VR_DA},
	{TagSeriesDate, "SeriesDate", VR_DA},
	{TagContentDate, "ContentDate", VR_DA},
	{TagStudyTime, "StudyTime", VR_TM},
	{TagSeriesTime, "SeriesTime", VR_TM},
	{TagContentTime, "ContentTime", VR_TM},
	{TagAccessionNumber, "AccessionNumber", VR_SH},
	{TagIssuerOfAccessionNumberSequence, "IssuerOfAccessionNumberSequence", VR_SQ},
	{TagQueryRetrieveLevel, "QueryRetrieveLevel", VR_CS},
	{TagRetrieveAETitle, "RetrieveAETitle", VR_AE},
	{TagInstanceAvailability, "InstanceAvailability", VR_CS},
	{TagModality, "Modality", VR_CS},
	{TagModalitiesInStudy, "ModalitiesInStudy", VR_CS},
	{TagSOPClassesInStudy, "SOPClassesInStudy", VR_UI},
	{TagInstitutionName, "InstitutionName", VR_LO},
	{TagInstitutionCodeSequence, "InstitutionCodeSequence", VR_SQ},
	{TagReferringPhysicianName, "ReferringPhysicianName", VR_PN},
	{TagCodeValue, "CodeValue", VR_SH},
	{TagCodingSchemeDesignator, "CodingSchemeDesignator", VR_SH},
	{TagCodingSchemeVersion, "CodingSchemeVersion", VR_SH},
	{TagCodeMeaning, "CodeMeaning", VR_LO},
	{TagStationName, "StationName", VR_SH},
	{TagStudyDescription, "StudyDescription", VR_LO},
	{TagSeriesDescription, "SeriesDescription", VR_LO},
	{TagInstitutionalDepartmentName, "InstitutionalDepartmentName", VR_LO},
	{TagPerformingPhysicianName, "PerformingPhysicianName", VR_PN},
	{TagReferencedPerformedProcedureStepSeq, "ReferencedPerformedProcedureStepSequence", VR_SQ},
	{TagReferencedSOPClassUID, "ReferencedSOPClassUID", VR_UI},
	{TagReferencedSOPInstanceUID, "ReferencedSOPInstanceUID", VR_UI},
	{TagPatientName, "PatientName", VR_PN},
	{TagPatientID, "PatientID", VR_LO},
	{TagIssuerOfPatientID, "IssuerOfPatientID", VR_LO},
	{TagIssuerOfPatientIDQualifiersSequence, "IssuerOfPatientIDQualifiersSequence", VR_SQ},
	{TagPatientBirthDate, "PatientBirthDate", VR_DA},
	{TagPatientSex, "PatientSex", VR_CS},
	{TagOtherPatientIDs, "OtherPatientIDs", VR_LO},
	{TagPatientAge, "PatientAge", VR_AS},
	{TagPatientComments, "PatientComments", VR_LT},
	{TagBodyPartExamined, "BodyPartExamined", VR_CS},
	{TagStudyInstanceUID, "StudyInstanceUID", VR_UI},
	{TagSeriesInstanceUID, "SeriesInstanceUID", VR_UI},
	{TagStudyID, "StudyID", VR_SH},
	{TagSeriesNumber, "SeriesNumber", VR_IS},
	{TagInstanceNumber, "InstanceNumber", VR_IS},
	{TagLaterality, "Laterality", VR_CS},
	{TagNumberOfPatientRelatedStudies, "NumberOfPatientRelatedStudies", VR_IS},
	{TagNumberOfPatientRelatedSeries, "NumberOfPatientRelatedSeries", VR_IS},
	{TagNumberOfPatientRelatedInstances, "NumberOfPatientRelatedInstances", VR_IS},
	{TagNumberOfStudyRelatedSeries, "NumberOfStudyRelatedSeries", VR_IS},
	{TagNumberOfStudyRelatedInstances, "NumberOfStudyRelatedInstances", VR_IS},
	{TagNumberOfSeriesRelatedInstances, "NumberOfSeriesRelatedInstances", VR_IS},
	{TagRows, "Rows", VR_US},
	{TagColumns, "Columns", VR_US},
	{TagRequestingPhysician, "RequestingPhysician", VR_PN},
	{TagRequestedProcedureDescription, "RequestedProcedureDescription", VR_LO},
	{TagAdmissionID, "AdmissionID", VR_LO},
	{TagCurrentPatientLocation, "CurrentPatientLocation", VR_LO},
	{TagScheduledStationAETitle, "ScheduledStationAETitle", VR_AE},
	{TagScheduledProcedureStepStartDate, "ScheduledProcedureStepStartDate", VR_DA},
	{TagScheduledProcedureStepID, "ScheduledProcedureStepID", VR_SH},
	{TagLocalNamespaceEntityID, "LocalNamespaceEntityID", VR_UT},
	{TagUniversalEntityID, "UniversalEntityID", VR_UT},
	{TagUniversalEntityIDType, "UniversalEntityIDType", VR_CS},
	{TagPerformedProcedureStepStartDate, "PerformedProcedureStepStartDate", VR_DA},
	{TagPerformedProcedureStepStatus, "PerformedProcedureStepStatus", VR_CS},
	{TagPerformedProcedureStepID, "PerformedProcedureStepID", VR_SH},
	{TagRequestedProcedureID, "RequestedProcedureID", VR_SH},
	{TagConceptNameCodeSequence, "ConceptNameCodeSequence", VR_SQ},
	{TagPixelData, "PixelData", VR_OW},
}

var (
	dictionaryByTag     = make(map[Tag]dictEntry, len(dictionary))
	dictionaryByKeyword = make(map[string]dictEntry, len(dictionary))
)

func init() {
	for _, e := range dictionary {
		dictionaryByTag[e.Tag] = e
		dictionaryByKeyword[e.Keyword] = e
	}
}

// Keyword returns the dictionary keyword for tag, or its (gggg,eeee) form.
func Keyword(tag Tag) string {
	if e, ok := dictionaryByTag[tag]; ok {
		return e.Keyword
	}
	return tag.String()
}

// VROf returns the dictionary VR of tag, or UN when the tag is unknown.
func VROf(tag Tag) string {
	return determineVR(tag)
}

// ParseTag accepts a keyword ("PatientName"), "(0010,0010)", "0010,0010" or
// "00100010".
func ParseTag(s string) (Tag, error) {
	s = strings.TrimSpace(s)
	if e, ok := dictionaryByKeyword[s]; ok {
		return e.Tag, nil
	}
	hex := strings.NewReplacer("(", "", ")", "", ",", "").Replace(s)
	if len(hex) != 8 {
		return Tag{}, fmt.Errorf("unknown attribute %q", s)
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return Tag{}, fmt.Errorf("invalid tag %q: %w", s, err)
	}
	return Tag{Group: uint16(v >> 16), Element: uint16(v)}, nil
}
