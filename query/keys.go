package query

import (
	"fmt"
	"strings"

	"github.com/caio-sobreiro/dicomarchive/attrfilter"
	"github.com/caio-sobreiro/dicomarchive/dicom"
	archiveerrors "github.com/caio-sobreiro/dicomarchive/errors"
	"github.com/caio-sobreiro/dicomarchive/match"
	"github.com/caio-sobreiro/dicomarchive/model"
)

// Table aliases used by every level's FROM clause.
const (
	aliasPatient  = "p"
	aliasStudy    = "st"
	aliasSeries   = "se"
	aliasInstance = "i"
)

var customColumns = map[model.EntityKind]string{
	model.KindPatient:  aliasPatient + ".pat_custom",
	model.KindStudy:    aliasStudy + ".study_custom",
	model.KindSeries:   aliasSeries + ".series_custom",
	model.KindInstance: aliasInstance + ".inst_custom",
}

type keyKind int

const (
	wildcardKey keyKind = iota
	uidKey
	rangeKey
)

// simpleKey is a matching key bound to a single indexed column.
type simpleKey struct {
	tag    dicom.Tag
	depth  int
	column string
	kind   keyKind
}

var simpleKeys = []simpleKey{
	{dicom.TagPatientBirthDate, depthPatient, "p.pat_birthdate", rangeKey},
	{dicom.TagPatientSex, depthPatient, "p.pat_sex", wildcardKey},
	{dicom.TagStudyInstanceUID, depthStudy, "st.study_iuid", uidKey},
	{dicom.TagStudyID, depthStudy, "st.study_id", wildcardKey},
	{dicom.TagStudyDescription, depthStudy, "st.study_desc", wildcardKey},
	{dicom.TagSeriesInstanceUID, depthSeries, "se.series_iuid", uidKey},
	{dicom.TagSeriesNumber, depthSeries, "se.series_no", wildcardKey},
	{dicom.TagModality, depthSeries, "se.modality", wildcardKey},
	{dicom.TagInstitutionName, depthSeries, "se.institution", wildcardKey},
	{dicom.TagInstitutionalDepartmentName, depthSeries, "se.department", wildcardKey},
	{dicom.TagStationName, depthSeries, "se.station_name", wildcardKey},
	{dicom.TagBodyPartExamined, depthSeries, "se.body_part", wildcardKey},
	{dicom.TagLaterality, depthSeries, "se.laterality", wildcardKey},
	{dicom.TagSeriesDescription, depthSeries, "se.series_desc", wildcardKey},
	{dicom.TagSOPInstanceUID, depthInstance, "i.sop_iuid", uidKey},
	{dicom.TagSOPClassUID, depthInstance, "i.sop_cuid", uidKey},
	{dicom.TagInstanceNumber, depthInstance, "i.inst_no", wildcardKey},
}

// specialKeys are matched by dedicated code below, grouped by the level
// they belong to.
var specialKeys = map[dicom.Tag]int{
	dicom.TagPatientID:                           depthPatient,
	dicom.TagIssuerOfPatientID:                   depthPatient,
	dicom.TagIssuerOfPatientIDQualifiersSequence: depthPatient,
	dicom.TagPatientName:                         depthPatient,
	dicom.TagStudyDate:                           depthStudy,
	dicom.TagStudyTime:                           depthStudy,
	dicom.TagAccessionNumber:                     depthStudy,
	dicom.TagIssuerOfAccessionNumberSequence:     depthStudy,
	dicom.TagReferringPhysicianName:              depthStudy,
	dicom.TagModalitiesInStudy:                   depthStudy,
	dicom.TagSOPClassesInStudy:                   depthStudy,
	dicom.TagPerformingPhysicianName:             depthSeries,
	dicom.TagReferencedPerformedProcedureStepSeq: depthSeries,
	dicom.TagContentDate:                         depthInstance,
	dicom.TagContentTime:                         depthInstance,
	dicom.TagConceptNameCodeSequence:             depthInstance,
}

// computedKeys are return keys filled in after the merge, per level.
var computedKeys = map[int][]dicom.Tag{
	depthPatient: {
		dicom.TagNumberOfPatientRelatedStudies,
		dicom.TagNumberOfPatientRelatedSeries,
		dicom.TagNumberOfPatientRelatedInstances,
	},
	depthStudy: {
		dicom.TagNumberOfStudyRelatedSeries,
		dicom.TagNumberOfStudyRelatedInstances,
		dicom.TagModalitiesInStudy,
		dicom.TagSOPClassesInStudy,
		dicom.TagRetrieveAETitle,
		dicom.TagInstanceAvailability,
	},
	depthSeries: {
		dicom.TagNumberOfSeriesRelatedInstances,
		dicom.TagRetrieveAETitle,
		dicom.TagInstanceAvailability,
	},
	depthInstance: {
		dicom.TagRetrieveAETitle,
		dicom.TagInstanceAvailability,
	},
}

var levelKinds = [...]model.EntityKind{model.KindPatient, model.KindStudy, model.KindSeries, model.KindInstance}

// keyBuilder turns the keys of one Find call into a WHERE predicate.
type keyBuilder struct {
	keys  *dicom.Dataset
	depth int
	opts  Options
	preds []match.Predicate
}

func (b *keyBuilder) add(p match.Predicate) {
	if !p.IsEmpty() {
		b.preds = append(b.preds, p)
	}
}

func (b *keyBuilder) value(tag dicom.Tag) string {
	return b.keys.GetString(tag)
}

func (b *keyBuilder) pn(tag dicom.Tag, cols match.PersonNameColumns) {
	b.add(match.PersonName(cols, b.value(tag), b.opts.fuzzy(tag), b.opts.CaseInsensitivePN, b.opts.MatchUnknown))
}

// build returns the conjunction of every matching key at or above the
// query level.
func (b *keyBuilder) build() (match.Predicate, error) {
	if err := b.checkUniqueKeys(); err != nil {
		return match.Predicate{}, err
	}
	mu := b.opts.MatchUnknown

	for _, k := range simpleKeys {
		if k.depth > b.depth {
			continue
		}
		v := b.value(k.tag)
		switch k.kind {
		case uidKey:
			b.add(match.UIDs(k.column, v))
		case rangeKey:
			b.add(match.Range(k.column, v, mu))
		default:
			b.add(match.ExactOrWildcard(k.column, v, false, mu))
		}
	}

	b.patientKeys()
	if b.depth >= depthStudy {
		b.studyKeys()
	}
	if b.depth >= depthSeries {
		b.seriesKeys()
	}
	if b.depth >= depthInstance {
		b.instanceKeys()
	}
	for depth := depthPatient; depth <= b.depth; depth++ {
		b.customKeys(levelKinds[depth])
	}
	return match.And(b.preds...), nil
}

// checkUniqueKeys enforces the hierarchical model: below the study level a
// single StudyInstanceUID is required, below the series level also a single
// SeriesInstanceUID.
func (b *keyBuilder) checkUniqueKeys() error {
	if b.opts.Relational {
		return nil
	}
	required := []struct {
		depth int
		tag   dicom.Tag
	}{
		{depthSeries, dicom.TagStudyInstanceUID},
		{depthInstance, dicom.TagSeriesInstanceUID},
	}
	for _, r := range required {
		if b.depth < r.depth {
			continue
		}
		v := b.value(r.tag)
		if v == "" || match.ContainsWildcard(v) || len(b.keys.GetStrings(r.tag)) > 1 {
			return archiveerrors.NewMalformedError(
				fmt.Sprintf("hierarchical query requires a single %s", dicom.Keyword(r.tag)), nil, r.tag)
		}
	}
	return nil
}

func (b *keyBuilder) patientKeys() {
	b.add(match.PatientIDAlternatives(match.PatientIDColumns{
		ID:            "p.pat_id",
		IssuerFK:      "p.issuer_fk",
		EntityID:      "pi.entity_id",
		EntityUID:     "pi.entity_uid",
		EntityUIDType: "pi.entity_uid_type",
	}, []match.IDWithIssuer{match.PatientIDOf(b.keys)}, b.opts.MatchUnknown))

	b.pn(dicom.TagPatientName, match.PersonNameColumns{
		Name:          "p.pat_name",
		FamilySoundex: "p.pat_fn_sx",
		GivenSoundex:  "p.pat_gn_sx",
	})
}

func (b *keyBuilder) studyKeys() {
	mu := b.opts.MatchUnknown
	b.add(match.DateTimeRange("st.study_date", "st.study_time",
		b.value(dicom.TagStudyDate), b.value(dicom.TagStudyTime), mu))

	b.add(match.PatientIDAlternatives(match.PatientIDColumns{
		ID:            "st.accession_no",
		IssuerFK:      "st.accno_issuer_fk",
		EntityID:      "ai.entity_id",
		EntityUID:     "ai.entity_uid",
		EntityUIDType: "ai.entity_uid_type",
	}, []match.IDWithIssuer{match.AccessionNumberOf(b.keys)}, mu))

	b.pn(dicom.TagReferringPhysicianName, match.PersonNameColumns{
		Name:          "st.ref_physician",
		FamilySoundex: "st.ref_phys_fn_sx",
		GivenSoundex:  "st.ref_phys_gn_sx",
	})

	if mods := anyOf("m.modality", b.keys.GetStrings(dicom.TagModalitiesInStudy)); !mods.IsEmpty() {
		b.add(match.Predicate{
			SQL:  "EXISTS (SELECT 1 FROM series m WHERE m.study_fk = st.pk AND " + mods.SQL + ")",
			Args: mods.Args,
		})
	}
	if cuids := anyOf("c.sop_cuid", b.keys.GetStrings(dicom.TagSOPClassesInStudy)); !cuids.IsEmpty() {
		b.add(match.Predicate{
			SQL:  "EXISTS (SELECT 1 FROM series cs JOIN instance c ON c.series_fk = cs.pk WHERE cs.study_fk = st.pk AND " + cuids.SQL + ")",
			Args: cuids.Args,
		})
	}
}

func (b *keyBuilder) seriesKeys() {
	b.pn(dicom.TagPerformingPhysicianName, match.PersonNameColumns{
		Name:          "se.perf_physician",
		FamilySoundex: "se.perf_phys_fn_sx",
		GivenSoundex:  "se.perf_phys_gn_sx",
	})
	if pps := b.keys.GetItem(dicom.TagReferencedPerformedProcedureStepSeq); pps != nil {
		b.add(match.UIDs("se.pps_iuid", pps.GetString(dicom.TagReferencedSOPInstanceUID)))
		b.add(match.UIDs("se.pps_cuid", pps.GetString(dicom.TagReferencedSOPClassUID)))
	}
}

func (b *keyBuilder) instanceKeys() {
	b.add(match.DateTimeRange("i.content_date", "i.content_time",
		b.value(dicom.TagContentDate), b.value(dicom.TagContentTime), b.opts.MatchUnknown))

	item := b.keys.GetItem(dicom.TagConceptNameCodeSequence)
	if item == nil {
		return
	}
	code := match.And(
		match.ExactOrWildcard("cn.code_value", item.GetString(dicom.TagCodeValue), false, false),
		match.ExactOrWildcard("cn.code_designator", item.GetString(dicom.TagCodingSchemeDesignator), false, false),
		match.ExactOrWildcard("cn.code_version", item.GetString(dicom.TagCodingSchemeVersion), false, false),
	)
	if code.IsEmpty() {
		return
	}
	p := match.Predicate{SQL: "i.srcode_fk IN (SELECT cn.pk FROM code cn WHERE " + code.SQL + ")", Args: code.Args}
	if b.opts.MatchUnknown {
		p.SQL = "(" + p.SQL + " OR i.srcode_fk IS NULL)"
	}
	b.add(p)
}

func (b *keyBuilder) customKeys(kind model.EntityKind) {
	filter := b.opts.filters().Get(kind)
	for i, sel := range filter.Custom {
		if len(sel) == 0 {
			continue
		}
		col := fmt.Sprintf("%s%d", customColumns[kind], i+1)
		b.add(match.Custom(col, sel.Value(b.keys), b.opts.MatchUnknown))
	}
}

// known reports whether tag is understood at depth: as a matching key, a
// computed return key, or an attribute kept in the blobs of the levels
// merged into a result.
func known(tag dicom.Tag, depth int, filters *attrfilter.Set) bool {
	if tag == dicom.TagQueryRetrieveLevel || tag == dicom.TagSpecificCharacterSet {
		return true
	}
	for _, k := range simpleKeys {
		if k.tag == tag {
			return k.depth <= depth
		}
	}
	if d, ok := specialKeys[tag]; ok && d <= depth {
		return true
	}
	for _, t := range computedKeys[depth] {
		if t == tag {
			return true
		}
	}
	for d := depthPatient; d <= depth; d++ {
		f := filters.Get(levelKinds[d])
		if f.Contains(tag) {
			return true
		}
		for _, sel := range f.Custom {
			if len(sel) > 0 && sel[0] == tag {
				return true
			}
		}
	}
	return false
}

// hasValue reports whether a key element carries a matching value rather
// than asking for the attribute to be returned.
func hasValue(el *dicom.Element) bool {
	switch v := el.Value.(type) {
	case string:
		return strings.Trim(v, " \x00") != ""
	case []*dicom.Dataset:
		for _, item := range v {
			for _, inner := range item.Elements {
				if hasValue(inner) {
					return true
				}
			}
		}
		return false
	case []byte:
		return len(v) > 0
	case nil:
		return false
	}
	return true
}

// anyOf matches col against any value of a multi-valued key. Values with
// wildcards compare by LIKE, the rest by set membership. A value matching
// everything makes the key universal.
func anyOf(col string, values []string) match.Predicate {
	var exact []string
	var alts []match.Predicate
	for _, v := range values {
		v = strings.TrimSpace(v)
		switch {
		case v == "":
		case match.ContainsWildcard(v):
			p := match.ExactOrWildcard(col, v, false, false)
			if p.IsEmpty() {
				return match.Predicate{}
			}
			alts = append(alts, p)
		default:
			exact = append(exact, v)
		}
	}
	if list := match.ListOfValues(col, exact); !list.IsEmpty() {
		alts = append(alts, list)
	}
	return match.Or(alts...)
}
