package types

import "strings"

// Verification Service
const (
	VerificationSOPClass = "1.2.840.10008.1.1"
)

// Storage SOP Classes the archive commonly receives. Any class under the
// storage root is accepted; these are named for logging.
const (
	ComputedRadiographyImageStorage        = "1.2.840.10008.5.1.4.1.1.1"
	DigitalXRayImageStorageForPresentation = "1.2.840.10008.5.1.4.1.1.1.1"
	CTImageStorage                         = "1.2.840.10008.5.1.4.1.1.2"
	EnhancedCTImageStorage                 = "1.2.840.10008.5.1.4.1.1.2.1"
	MRImageStorage                         = "1.2.840.10008.5.1.4.1.1.4"
	EnhancedMRImageStorage                 = "1.2.840.10008.5.1.4.1.1.4.1"
	UltrasoundImageStorage                 = "1.2.840.10008.5.1.4.1.1.6.1"
	SecondaryCaptureImageStorage           = "1.2.840.10008.5.1.4.1.1.7"
	GrayscaleSoftcopyPresentationState     = "1.2.840.10008.5.1.4.1.1.11.1"
	NuclearMedicineImageStorage            = "1.2.840.10008.5.1.4.1.1.20"
	BasicTextSRStorage                     = "1.2.840.10008.5.1.4.1.1.88.11"
	EnhancedSRStorage                      = "1.2.840.10008.5.1.4.1.1.88.22"
	ComprehensiveSRStorage                 = "1.2.840.10008.5.1.4.1.1.88.33"
	KeyObjectSelectionDocumentStorage      = "1.2.840.10008.5.1.4.1.1.88.59"
	EncapsulatedPDFStorage                 = "1.2.840.10008.5.1.4.1.1.104.1"
	PositronEmissionTomographyImageStorage = "1.2.840.10008.5.1.4.1.1.128"
)

// storageRoot prefixes every image and document storage class.
const storageRoot = "1.2.840.10008.5.1.4.1.1."

// Query/Retrieve FIND SOP Classes
const (
	PatientRootQueryRetrieveInformationModelFind      = "1.2.840.10008.5.1.4.1.2.1.1"
	StudyRootQueryRetrieveInformationModelFind        = "1.2.840.10008.5.1.4.1.2.2.1"
	PatientStudyOnlyQueryRetrieveInformationModelFind = "1.2.840.10008.5.1.4.1.2.3.1" // Retired
)

// SOPClassInfo provides human-readable information about a SOP Class UID
type SOPClassInfo struct {
	UID      string
	Name     string
	Category string
}

// Categories of SOPClassInfo.
const (
	CategoryVerification  = "Verification"
	CategoryStorage       = "Storage"
	CategoryQueryRetrieve = "Query/Retrieve"
	CategoryUnknown       = "Unknown"
)

// GetSOPClassInfo returns information about a SOP Class UID. Unlisted
// classes under the storage root are reported as unnamed storage classes.
func GetSOPClassInfo(uid string) *SOPClassInfo {
	if info, ok := sopClassRegistry[uid]; ok {
		return &info
	}
	if strings.HasPrefix(uid, storageRoot) {
		return &SOPClassInfo{UID: uid, Name: "Storage", Category: CategoryStorage}
	}
	return &SOPClassInfo{UID: uid, Name: "Unknown", Category: CategoryUnknown}
}

// IsStorageSOPClass returns true if the UID is a storage SOP class
func IsStorageSOPClass(uid string) bool {
	return GetSOPClassInfo(uid).Category == CategoryStorage
}

// IsFindSOPClass returns true if the UID is a C-FIND information model the
// archive answers.
func IsFindSOPClass(uid string) bool {
	switch uid {
	case PatientRootQueryRetrieveInformationModelFind,
		StudyRootQueryRetrieveInformationModelFind,
		PatientStudyOnlyQueryRetrieveInformationModelFind:
		return true
	}
	return false
}

var sopClassRegistry = map[string]SOPClassInfo{
	VerificationSOPClass: {VerificationSOPClass, "Verification SOP Class", CategoryVerification},

	ComputedRadiographyImageStorage:        {ComputedRadiographyImageStorage, "Computed Radiography Image Storage", CategoryStorage},
	DigitalXRayImageStorageForPresentation: {DigitalXRayImageStorageForPresentation, "Digital X-Ray Image Storage - For Presentation", CategoryStorage},
	CTImageStorage:                         {CTImageStorage, "CT Image Storage", CategoryStorage},
	EnhancedCTImageStorage:                 {EnhancedCTImageStorage, "Enhanced CT Image Storage", CategoryStorage},
	MRImageStorage:                         {MRImageStorage, "MR Image Storage", CategoryStorage},
	EnhancedMRImageStorage:                 {EnhancedMRImageStorage, "Enhanced MR Image Storage", CategoryStorage},
	UltrasoundImageStorage:                 {UltrasoundImageStorage, "Ultrasound Image Storage", CategoryStorage},
	SecondaryCaptureImageStorage:           {SecondaryCaptureImageStorage, "Secondary Capture Image Storage", CategoryStorage},
	GrayscaleSoftcopyPresentationState:     {GrayscaleSoftcopyPresentationState, "Grayscale Softcopy Presentation State Storage", CategoryStorage},
	NuclearMedicineImageStorage:            {NuclearMedicineImageStorage, "Nuclear Medicine Image Storage", CategoryStorage},
	BasicTextSRStorage:                     {BasicTextSRStorage, "Basic Text SR Storage", CategoryStorage},
	EnhancedSRStorage:                      {EnhancedSRStorage, "Enhanced SR Storage", CategoryStorage},
	ComprehensiveSRStorage:                 {ComprehensiveSRStorage, "Comprehensive SR Storage", CategoryStorage},
	KeyObjectSelectionDocumentStorage:      {KeyObjectSelectionDocumentStorage, "Key Object Selection Document Storage", CategoryStorage},
	EncapsulatedPDFStorage:                 {EncapsulatedPDFStorage, "Encapsulated PDF Storage", CategoryStorage},
	PositronEmissionTomographyImageStorage: {PositronEmissionTomographyImageStorage, "Positron Emission Tomography Image Storage", CategoryStorage},

	PatientRootQueryRetrieveInformationModelFind:      {PatientRootQueryRetrieveInformationModelFind, "Patient Root Query/Retrieve - FIND", CategoryQueryRetrieve},
	StudyRootQueryRetrieveInformationModelFind:        {StudyRootQueryRetrieveInformationModelFind, "Study Root Query/Retrieve - FIND", CategoryQueryRetrieve},
	PatientStudyOnlyQueryRetrieveInformationModelFind: {PatientStudyOnlyQueryRetrieveInformationModelFind, "Patient/Study Only Query/Retrieve - FIND", CategoryQueryRetrieve},
}
