// Package model holds the archive's persistent entities.
//
// Patients own studies, studies own series and series own instances. Each
// hierarchy row carries a few indexed scalar columns plus an opaque Attrs blob
// produced by the dataset codec. Study and series rows also carry aggregates
// derived from their children.
package model

import (
	"time"
)

// Patient is identified by (PatientID, IssuerFK). A merged patient redirects
// to its survivor through MergedWith.
type Patient struct {
	PK                int64     `db:"pk"`
	PatientID         string    `db:"pat_id"`
	IssuerFK          *int64    `db:"issuer_fk"`
	PatientName       string    `db:"pat_name"`
	FamilyNameSoundex string    `db:"pat_fn_sx"`
	GivenNameSoundex  string    `db:"pat_gn_sx"`
	BirthDate         string    `db:"pat_birthdate"`
	Sex               string    `db:"pat_sex"`
	Custom1           string    `db:"pat_custom1"`
	Custom2           string    `db:"pat_custom2"`
	Custom3           string    `db:"pat_custom3"`
	MergedWith        *int64    `db:"merge_fk"`
	Attrs             []byte    `db:"attrs"`
	CreatedTime       time.Time `db:"created_time"`
	UpdatedTime       time.Time `db:"updated_time"`
}

// Merged reports whether the patient has been merged into another.
func (p *Patient) Merged() bool {
	return p.MergedWith != nil
}

// Study belongs to one patient and is identified by StudyInstanceUID.
type Study struct {
	PK                     int64        `db:"pk"`
	PatientFK              int64        `db:"patient_fk"`
	StudyInstanceUID       string       `db:"study_iuid"`
	AccessionNumber        string       `db:"accession_no"`
	AccessionIssuerFK      *int64       `db:"accno_issuer_fk"`
	StudyID                string       `db:"study_id"`
	StudyDate              string       `db:"study_date"`
	StudyTime              string       `db:"study_time"`
	ReferringPhysicianName string       `db:"ref_physician"`
	RefPhysFamilySoundex   string       `db:"ref_phys_fn_sx"`
	RefPhysGivenSoundex    string       `db:"ref_phys_gn_sx"`
	StudyDescription       string       `db:"study_desc"`
	Custom1                string       `db:"study_custom1"`
	Custom2                string       `db:"study_custom2"`
	Custom3                string       `db:"study_custom3"`
	NumberOfSeries         int          `db:"num_series"`
	NumberOfInstances      int          `db:"num_instances"`
	ModalitiesInStudy      Set          `db:"mods_in_study"`
	SOPClassesInStudy      Set          `db:"cuids_in_study"`
	RetrieveAETs           Set          `db:"retrieve_aets"`
	ExternalRetrieveAET    *string      `db:"ext_retr_aet"`
	Availability           Availability `db:"availability"`
	Attrs                  []byte       `db:"attrs"`
	CreatedTime            time.Time    `db:"created_time"`
	UpdatedTime            time.Time    `db:"updated_time"`
}

// Series belongs to one study and is identified by SeriesInstanceUID.
type Series struct {
	PK                          int64        `db:"pk"`
	StudyFK                     int64        `db:"study_fk"`
	SeriesInstanceUID           string       `db:"series_iuid"`
	SeriesNumber                string       `db:"series_no"`
	Modality                    string       `db:"modality"`
	InstitutionName             string       `db:"institution"`
	InstitutionalDepartmentName string       `db:"department"`
	StationName                 string       `db:"station_name"`
	InstitutionCodeFK           *int64       `db:"inst_code_fk"`
	PerformingPhysicianName     string       `db:"perf_physician"`
	PerfPhysFamilySoundex       string       `db:"perf_phys_fn_sx"`
	PerfPhysGivenSoundex        string       `db:"perf_phys_gn_sx"`
	PPSInstanceUID              string       `db:"pps_iuid"`
	PPSClassUID                 string       `db:"pps_cuid"`
	BodyPartExamined            string       `db:"body_part"`
	Laterality                  string       `db:"laterality"`
	SeriesDescription           string       `db:"series_desc"`
	Custom1                     string       `db:"series_custom1"`
	Custom2                     string       `db:"series_custom2"`
	Custom3                     string       `db:"series_custom3"`
	NumberOfInstances           int          `db:"num_instances"`
	RetrieveAETs                Set          `db:"retrieve_aets"`
	ExternalRetrieveAET         *string      `db:"ext_retr_aet"`
	Availability                Availability `db:"availability"`
	Attrs                       []byte       `db:"attrs"`
	CreatedTime                 time.Time    `db:"created_time"`
	UpdatedTime                 time.Time    `db:"updated_time"`
}

// Instance belongs to one series and is identified by SOPInstanceUID.
type Instance struct {
	PK                  int64        `db:"pk"`
	SeriesFK            int64        `db:"series_fk"`
	SOPInstanceUID      string       `db:"sop_iuid"`
	SOPClassUID         string       `db:"sop_cuid"`
	InstanceNumber      string       `db:"inst_no"`
	ContentDate         string       `db:"content_date"`
	ContentTime         string       `db:"content_time"`
	ConceptNameCodeFK   *int64       `db:"srcode_fk"`
	RetrieveAETs        Set          `db:"retrieve_aets"`
	ExternalRetrieveAET *string      `db:"ext_retr_aet"`
	Availability        Availability `db:"availability"`
	Custom1             string       `db:"inst_custom1"`
	Custom2             string       `db:"inst_custom2"`
	Custom3             string       `db:"inst_custom3"`
	Attrs               []byte       `db:"attrs"`
	CreatedTime         time.Time    `db:"created_time"`
	UpdatedTime         time.Time    `db:"updated_time"`
}

// Issuer names the authority that assigned a patient ID or accession number.
// Absent parts are stored as empty strings.
type Issuer struct {
	PK            int64  `db:"pk"`
	EntityID      string `db:"entity_id"`
	EntityUID     string `db:"entity_uid"`
	EntityUIDType string `db:"entity_uid_type"`
}

// IsEmpty reports whether the issuer carries no identifying value.
func (i Issuer) IsEmpty() bool {
	return i.EntityID == "" && i.EntityUID == ""
}

// Code is a coded concept identified by value, scheme and scheme version.
type Code struct {
	PK                     int64  `db:"pk"`
	CodeValue              string `db:"code_value"`
	CodingSchemeDesignator string `db:"code_designator"`
	CodingSchemeVersion    string `db:"code_version"`
	CodeMeaning            string `db:"code_meaning"`
}

// FileRef locates one stored copy of an instance. An instance may have
// several; the newest is used for retrieval.
type FileRef struct {
	PK                int64     `db:"pk"`
	InstanceFK        int64     `db:"instance_fk"`
	FileSystemGroupID string    `db:"fs_group_id"`
	FileSystemID      string    `db:"fs_id"`
	Path              string    `db:"filepath"`
	TransferSyntaxUID string    `db:"transfer_syntax"`
	Size              int64     `db:"file_size"`
	Digest            *string   `db:"file_digest"`
	CreatedTime       time.Time `db:"created_time"`
}

// StudyPermission grants a role an action on a study. Action is either a
// verb such as "QUERY" or a destination AE title.
type StudyPermission struct {
	StudyInstanceUID string `db:"study_iuid"`
	Role             string `db:"role"`
	Action           string `db:"action"`
}
