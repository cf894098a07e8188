package types

// DICOM Transfer Syntax UIDs as defined in DICOM Part 5, Section 8 and Part 6, Annex A.4
// https://dicom.nema.org/medical/dicom/current/output/chtml/part05/chapter_8.html
const (
	ImplicitVRLittleEndian         = "1.2.840.10008.1.2"
	ExplicitVRLittleEndian         = "1.2.840.10008.1.2.1"
	ExplicitVRBigEndian            = "1.2.840.10008.1.2.2" // Retired
	DeflatedExplicitVRLittleEndian = "1.2.840.10008.1.2.1.99"
	JPEGBaseline8Bit               = "1.2.840.10008.1.2.4.50"
	JPEGExtended12Bit              = "1.2.840.10008.1.2.4.51"
	JPEGLosslessSV1                = "1.2.840.10008.1.2.4.70"
	JPEGLSLossless                 = "1.2.840.10008.1.2.4.80"
	JPEGLSNearLossless             = "1.2.840.10008.1.2.4.81"
	JPEG2000Lossless               = "1.2.840.10008.1.2.4.90"
	JPEG2000                       = "1.2.840.10008.1.2.4.91"
	MPEG2MainProfile               = "1.2.840.10008.1.2.4.100"
	MPEG4HighProfile               = "1.2.840.10008.1.2.4.102"
	RLELossless                    = "1.2.840.10008.1.2.5"
)

// TransferSyntaxInfo provides metadata about a transfer syntax
type TransferSyntaxInfo struct {
	UID          string
	Name         string
	IsCompressed bool
	IsLossless   bool
	IsRetired    bool
	// Storable reports whether the archive can read received datasets in
	// this syntax: little endian with explicit or implicit VR, pixel data
	// possibly encapsulated.
	Storable bool
}

// GetTransferSyntaxInfo returns information about a transfer syntax UID.
// Unknown UIDs yield a record that is not storable.
func GetTransferSyntaxInfo(uid string) *TransferSyntaxInfo {
	info, ok := transferSyntaxRegistry[uid]
	if !ok {
		return &TransferSyntaxInfo{UID: uid, Name: "Unknown"}
	}
	return &info
}

// IsCompressed returns true if the transfer syntax uses compression
func IsCompressed(uid string) bool {
	return GetTransferSyntaxInfo(uid).IsCompressed
}

// IsStorable returns true if received datasets in uid can be archived.
func IsStorable(uid string) bool {
	return GetTransferSyntaxInfo(uid).Storable
}

var transferSyntaxRegistry = map[string]TransferSyntaxInfo{
	ImplicitVRLittleEndian:         {ImplicitVRLittleEndian, "Implicit VR Little Endian", false, true, false, true},
	ExplicitVRLittleEndian:         {ExplicitVRLittleEndian, "Explicit VR Little Endian", false, true, false, true},
	ExplicitVRBigEndian:            {ExplicitVRBigEndian, "Explicit VR Big Endian", false, true, true, false},
	DeflatedExplicitVRLittleEndian: {DeflatedExplicitVRLittleEndian, "Deflated Explicit VR Little Endian", true, true, false, false},
	JPEGBaseline8Bit:               {JPEGBaseline8Bit, "JPEG Baseline (Process 1)", true, false, false, true},
	JPEGExtended12Bit:              {JPEGExtended12Bit, "JPEG Extended (Process 2 & 4)", true, false, false, true},
	JPEGLosslessSV1:                {JPEGLosslessSV1, "JPEG Lossless, First-Order Prediction", true, true, false, true},
	JPEGLSLossless:                 {JPEGLSLossless, "JPEG-LS Lossless", true, true, false, true},
	JPEGLSNearLossless:             {JPEGLSNearLossless, "JPEG-LS Near-Lossless", true, false, false, true},
	JPEG2000Lossless:               {JPEG2000Lossless, "JPEG 2000 (Lossless Only)", true, true, false, true},
	JPEG2000:                       {JPEG2000, "JPEG 2000", true, false, false, true},
	MPEG2MainProfile:               {MPEG2MainProfile, "MPEG2 Main Profile / Main Level", true, false, false, true},
	MPEG4HighProfile:               {MPEG4HighProfile, "MPEG-4 AVC/H.264 High Profile", true, false, false, true},
	RLELossless:                    {RLELossless, "RLE Lossless", true, true, false, true},
}
