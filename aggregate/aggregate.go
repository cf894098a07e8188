// Package aggregate implements the rules that derive series and study
// summaries from their children.
//
// A parent is retrievable from an AE only if every child is, so retrieve AE
// sets intersect. An external retrieve AE survives only while all children
// agree on it. Availability is the worst of the children. The rules are
// commutative and associative, so folding children one at a time gives the
// same result as a rescan in any order. It also means a study can fold in a
// new instance directly: intersecting the study with the updated series is
// the same as intersecting it with the instance.
package aggregate

import (
	"github.com/caio-sobreiro/dicomarchive/model"
)

// Summary is the aggregate state of one hierarchy level.
type Summary struct {
	Count               int
	RetrieveAETs        model.Set
	ExternalRetrieveAET *string
	Availability        model.Availability
}

// Of returns the summary of a single leaf.
func Of(retrieveAETs model.Set, ext *string, avail model.Availability) Summary {
	return Summary{
		Count:               1,
		RetrieveAETs:        retrieveAETs,
		ExternalRetrieveAET: copyString(ext),
		Availability:        avail,
	}
}

// Add folds child into s. An empty s takes child's values and an empty
// child leaves s unchanged.
func (s Summary) Add(child Summary) Summary {
	if child.Count == 0 {
		return s
	}
	if s.Count == 0 {
		child.ExternalRetrieveAET = copyString(child.ExternalRetrieveAET)
		if child.RetrieveAETs == nil {
			child.RetrieveAETs = model.Set{}
		}
		return child
	}
	return Summary{
		Count:               s.Count + child.Count,
		RetrieveAETs:        s.RetrieveAETs.Intersect(child.RetrieveAETs),
		ExternalRetrieveAET: agree(s.ExternalRetrieveAET, child.ExternalRetrieveAET),
		Availability:        model.Worst(s.Availability, child.Availability),
	}
}

// Rescan folds children from scratch.
func Rescan(children []Summary) Summary {
	var s Summary
	for _, c := range children {
		s = s.Add(c)
	}
	return s
}

func agree(a, b *string) *string {
	if a == nil || b == nil || *a != *b {
		return nil
	}
	return copyString(a)
}

func copyString(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
