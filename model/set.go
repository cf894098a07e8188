package model

import (
	"database/sql/driver"
	"fmt"
	"slices"
	"strings"
)

// Set is a sorted list of distinct strings persisted as one backslash
// separated column, the same way DICOM encodes multi-valued attributes.
type Set []string

// NewSet builds a Set from values, dropping blanks and duplicates.
func NewSet(values ...string) Set {
	out := make(Set, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v != "" {
			out = append(out, v)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// Contains reports whether v is in s.
func (s Set) Contains(v string) bool {
	_, ok := slices.BinarySearch(s, v)
	return ok
}

// Union returns the values present in either set.
func (s Set) Union(o Set) Set {
	return NewSet(append(append([]string(nil), s...), o...)...)
}

// Intersect returns the values present in both sets. Neither set needs to
// be normalized.
func (s Set) Intersect(o Set) Set {
	other := NewSet(o...)
	out := Set{}
	for _, v := range NewSet(s...) {
		if other.Contains(v) {
			out = append(out, v)
		}
	}
	return out
}

// Equal reports whether both sets hold the same values.
func (s Set) Equal(o Set) bool {
	return slices.Equal(s, o)
}

// String joins the values with a backslash.
func (s Set) String() string {
	return strings.Join(s, "\\")
}

// Value implements driver.Valuer.
func (s Set) Value() (driver.Value, error) {
	return s.String(), nil
}

// Scan implements sql.Scanner.
func (s *Set) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*s = Set{}
	case string:
		*s = NewSet(strings.Split(v, "\\")...)
	case []byte:
		*s = NewSet(strings.Split(string(v), "\\")...)
	default:
		return fmt.Errorf("cannot scan %T into Set", src)
	}
	return nil
}
