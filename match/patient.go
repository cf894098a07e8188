package match

import (
	"strings"

	"github.com/caio-sobreiro/dicomarchive/dicom"
	"github.com/caio-sobreiro/dicomarchive/model"
)

// IDWithIssuer is a patient ID qualified by its assigning authority. An empty
// issuer matches any.
type IDWithIssuer struct {
	ID     string
	Issuer model.Issuer
}

// PatientIDOf returns the patient ID of ds with its issuer, taken from
// IssuerOfPatientID and the qualifiers sequence.
func PatientIDOf(ds *dicom.Dataset) IDWithIssuer {
	out := IDWithIssuer{
		ID:     ds.GetString(dicom.TagPatientID),
		Issuer: model.Issuer{EntityID: ds.GetString(dicom.TagIssuerOfPatientID)},
	}
	if q := ds.GetItem(dicom.TagIssuerOfPatientIDQualifiersSequence); q != nil {
		out.Issuer.EntityUID = q.GetString(dicom.TagUniversalEntityID)
		out.Issuer.EntityUIDType = q.GetString(dicom.TagUniversalEntityIDType)
	}
	return out
}

// AccessionNumberOf returns the accession number of ds with its issuer.
func AccessionNumberOf(ds *dicom.Dataset) IDWithIssuer {
	out := IDWithIssuer{ID: ds.GetString(dicom.TagAccessionNumber)}
	if item := ds.GetItem(dicom.TagIssuerOfAccessionNumberSequence); item != nil {
		out.Issuer = model.Issuer{
			EntityID:      item.GetString(dicom.TagLocalNamespaceEntityID),
			EntityUID:     item.GetString(dicom.TagUniversalEntityID),
			EntityUIDType: item.GetString(dicom.TagUniversalEntityIDType),
		}
	}
	return out
}

// PatientIDColumns names the columns PatientIDAlternatives binds to. The
// issuer columns belong to a LEFT JOINed issuer row.
type PatientIDColumns struct {
	ID            string
	IssuerFK      string
	EntityID      string
	EntityUID     string
	EntityUIDType string
}

// PatientIDAlternatives ORs one predicate per (id, issuer) pair, for callers
// that must match several issuer-qualified identifiers of the same person.
func PatientIDAlternatives(cols PatientIDColumns, pairs []IDWithIssuer, matchUnknown bool) Predicate {
	preds := make([]Predicate, 0, len(pairs))
	for _, pair := range pairs {
		id := ExactOrWildcard(cols.ID, pair.ID, false, matchUnknown)
		preds = append(preds, And(id, issuerPredicate(cols, pair.Issuer, matchUnknown)))
	}
	if len(preds) == 0 {
		return Predicate{}
	}
	return Or(preds...)
}

func issuerPredicate(cols PatientIDColumns, issuer model.Issuer, matchUnknown bool) Predicate {
	if issuer.IsEmpty() {
		return Predicate{}
	}
	var parts []Predicate
	if issuer.EntityID != "" {
		parts = append(parts, Predicate{SQL: cols.EntityID + " = ?", Args: []any{issuer.EntityID}})
	}
	if issuer.EntityUID != "" {
		parts = append(parts,
			Predicate{SQL: cols.EntityUID + " = ?", Args: []any{issuer.EntityUID}},
			Predicate{SQL: cols.EntityUIDType + " = ?", Args: []any{issuer.EntityUIDType}},
		)
	}
	p := And(parts...)
	if matchUnknown {
		p = Predicate{SQL: "(" + p.SQL + " OR " + cols.IssuerFK + " IS NULL)", Args: p.Args}
	}
	return p
}

// PersonNameColumns names a person name column and its phonetic code columns.
type PersonNameColumns struct {
	Name          string
	FamilySoundex string
	GivenSoundex  string
}

// PersonName matches a PN key. With fuzzy set and a value free of wildcards
// it compares the phonetic codes of the family and given name instead of
// the literal name.
func PersonName(cols PersonNameColumns, value string, fuzzy, caseFold, matchUnknown bool) Predicate {
	value = strings.TrimSpace(value)
	if value == "" {
		return Predicate{}
	}
	if !fuzzy || ContainsWildcard(value) || cols.FamilySoundex == "" {
		return ExactOrWildcard(cols.Name, value, caseFold, matchUnknown)
	}

	family, given := PhoneticCodes(value)
	var parts []Predicate
	if family != "" {
		parts = append(parts, Predicate{SQL: cols.FamilySoundex + " = ?", Args: []any{family}})
	}
	if given != "" {
		parts = append(parts, Predicate{SQL: cols.GivenSoundex + " = ?", Args: []any{given}})
	}
	if len(parts) == 0 {
		return ExactOrWildcard(cols.Name, value, caseFold, matchUnknown)
	}
	return orUnknown(And(parts...), cols.FamilySoundex, matchUnknown)
}
