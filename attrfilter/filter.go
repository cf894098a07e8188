// Package attrfilter declares, per entity kind, which attributes of an inbound
// dataset are kept in the entity's blob and which fill its custom slots.
package attrfilter

import (
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/caio-sobreiro/dicomarchive/dicom"
	"github.com/caio-sobreiro/dicomarchive/model"
)

// CustomSlots is the number of deployment-defined indexed columns per entity.
const CustomSlots = 3

// Selector addresses an attribute, optionally nested inside sequences. Every
// tag but the last names a sequence whose first item is descended into.
type Selector []dicom.Tag

// ParseSelector parses a dot separated list of keywords or tags, for example
// "IssuerOfPatientIDQualifiersSequence.UniversalEntityID".
func ParseSelector(s string) (Selector, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	parts := strings.Split(s, ".")
	sel := make(Selector, len(parts))
	for i, p := range parts {
		tag, err := dicom.ParseTag(p)
		if err != nil {
			return nil, fmt.Errorf("selector %q: %w", s, err)
		}
		sel[i] = tag
	}
	return sel, nil
}

// Value resolves the selector against ds.
func (s Selector) Value(ds *dicom.Dataset) string {
	if len(s) == 0 {
		return ""
	}
	cur := ds
	for _, tag := range s[:len(s)-1] {
		cur = cur.GetItem(tag)
		if cur == nil {
			return ""
		}
	}
	return cur.GetString(s[len(s)-1])
}

func (s Selector) String() string {
	names := make([]string, len(s))
	for i, t := range s {
		names[i] = dicom.Keyword(t)
	}
	return strings.Join(names, ".")
}

// Filter is the attribute selection for one entity kind.
type Filter struct {
	Kind   model.EntityKind
	Tags   []dicom.Tag
	Custom [CustomSlots]Selector
}

// Subset extracts the filtered attributes of ds.
func (f *Filter) Subset(ds *dicom.Dataset) *dicom.Dataset {
	return ds.Subset(f.Tags)
}

// CustomValues resolves the custom slots against ds. Unconfigured slots
// yield empty strings.
func (f *Filter) CustomValues(ds *dicom.Dataset) [CustomSlots]string {
	var out [CustomSlots]string
	for i, sel := range f.Custom {
		out[i] = sel.Value(ds)
	}
	return out
}

// Contains reports whether tag is selected by the filter.
func (f *Filter) Contains(tag dicom.Tag) bool {
	for _, t := range f.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// Set holds one filter per entity kind.
type Set struct {
	filters map[model.EntityKind]*Filter
}

// Get returns the filter for kind. Every kind has one.
func (s *Set) Get(kind model.EntityKind) *Filter {
	if f, ok := s.filters[kind]; ok {
		return f
	}
	return &Filter{Kind: kind}
}

// Subset extracts the attributes selected for kind from ds.
func (s *Set) Subset(kind model.EntityKind, ds *dicom.Dataset) *dicom.Dataset {
	return s.Get(kind).Subset(ds)
}

// Default returns the built-in filters for all entity kinds.
func Default() *Set {
	s := &Set{filters: make(map[model.EntityKind]*Filter)}
	for kind, tags := range defaultTags {
		s.filters[kind] = &Filter{Kind: kind, Tags: append([]dicom.Tag(nil), tags...)}
	}
	return s
}

type fileFilter struct {
	Tags   []string `yaml:"tags"`
	Custom []string `yaml:"custom"`
}

type fileSet struct {
	Filters map[string]fileFilter `yaml:"filters"`
}

// Load reads filters from a YAML document. Kinds the document does not
// mention keep their defaults.
//
//	filters:
//	  Patient:
//	    tags: [PatientName, PatientID, "(0010,0030)"]
//	    custom: [OtherPatientIDs]
func Load(r io.Reader) (*Set, error) {
	var doc fileSet
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil && err != io.EOF {
		return nil, fmt.Errorf("decode attribute filters: %w", err)
	}
	return fromDoc(doc)
}

// LoadFile reads filters from path.
func LoadFile(path string) (*Set, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Load(f)
}

func fromDoc(doc fileSet) (*Set, error) {
	set := Default()
	for name, ff := range doc.Filters {
		kind, err := model.ParseEntityKind(name)
		if err != nil {
			return nil, err
		}
		if len(ff.Custom) > CustomSlots {
			return nil, fmt.Errorf("%s: at most %d custom attributes, got %d", kind, CustomSlots, len(ff.Custom))
		}
		filter := &Filter{Kind: kind}
		for _, kw := range ff.Tags {
			tag, err := dicom.ParseTag(kw)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", kind, err)
			}
			filter.Tags = append(filter.Tags, tag)
		}
		if len(filter.Tags) == 0 {
			filter.Tags = set.Get(kind).Tags
		}
		for i, expr := range ff.Custom {
			sel, err := ParseSelector(expr)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", kind, err)
			}
			filter.Custom[i] = sel
		}
		set.filters[kind] = filter
	}
	return set, nil
}

// UnmarshalYAML lets a Set be embedded in a larger configuration document.
func (s *Set) UnmarshalYAML(node *yaml.Node) error {
	var filters map[string]fileFilter
	if err := node.Decode(&filters); err != nil {
		return err
	}
	set, err := fromDoc(fileSet{Filters: filters})
	if err != nil {
		return err
	}
	*s = *set
	return nil
}
