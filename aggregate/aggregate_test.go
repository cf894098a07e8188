package aggregate

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/caio-sobreiro/dicomarchive/model"
)

func str(s string) *string { return &s }

func leaves() []Summary {
	return []Summary{
		Of(model.NewSet("AET_1", "AET_2"), str("AET_3"), model.Online),
		Of(model.NewSet("AET_2"), str("AET_3"), model.Nearline),
		Of(model.NewSet("AET_2", "AET_4"), str("AET_3"), model.Online),
	}
}

func permutations(in []Summary) [][]Summary {
	if len(in) <= 1 {
		return [][]Summary{in}
	}
	var out [][]Summary
	for i := range in {
		rest := append(append([]Summary(nil), in[:i]...), in[i+1:]...)
		for _, p := range permutations(rest) {
			out = append(out, append([]Summary{in[i]}, p...))
		}
	}
	return out
}

func TestRescanOrderIndependent(t *testing.T) {
	want := Rescan(leaves())
	for _, p := range permutations(leaves()) {
		assert.Equal(t, want, Rescan(p))
	}
}

func TestIntersectionLaw(t *testing.T) {
	s := Rescan(leaves())
	assert.Equal(t, model.Set{"AET_2"}, s.RetrieveAETs)
	assert.Equal(t, 3, s.Count)

	disjoint := Rescan([]Summary{
		Of(model.NewSet("A"), nil, model.Online),
		Of(model.NewSet("B"), nil, model.Online),
	})
	assert.Empty(t, disjoint.RetrieveAETs)
}

func TestWorstOfLaw(t *testing.T) {
	s := Rescan(leaves())
	assert.Equal(t, model.Nearline, s.Availability)

	s = s.Add(Of(nil, nil, model.Offline))
	assert.Equal(t, model.Offline, s.Availability)
	s = s.Add(Of(nil, nil, model.Online))
	assert.Equal(t, model.Offline, s.Availability)
}

func TestExternalRetrieveAETAgreement(t *testing.T) {
	s := Rescan(leaves())
	if assert.NotNil(t, s.ExternalRetrieveAET) {
		assert.Equal(t, "AET_3", *s.ExternalRetrieveAET)
	}

	s = s.Add(Of(model.NewSet("AET_2"), str("AET_4"), model.Online))
	assert.Nil(t, s.ExternalRetrieveAET)

	// Once the children disagree, later agreement cannot restore a value.
	s = s.Add(Of(model.NewSet("AET_2"), str("AET_3"), model.Online))
	assert.Nil(t, s.ExternalRetrieveAET)

	s = Rescan([]Summary{Of(nil, str("AET_3"), model.Online), Of(nil, nil, model.Online)})
	assert.Nil(t, s.ExternalRetrieveAET)
}

func TestEmptyChildIgnored(t *testing.T) {
	s := Rescan(leaves())
	assert.Equal(t, s, s.Add(Summary{}))
	assert.Equal(t, Summary{}, Rescan(nil))
}

func TestFirstChildIsCopied(t *testing.T) {
	ext := str("AET_3")
	s := Summary{}.Add(Of(model.NewSet("A"), ext, model.Online))
	*ext = "CHANGED"
	assert.Equal(t, "AET_3", *s.ExternalRetrieveAET)
}

// Folding instances into a study directly must match folding the updated
// series summaries.
func TestStudyIncrementalMatchesSeriesRescan(t *testing.T) {
	ct1 := Of(model.NewSet("AET_1", "AET_2"), str("AET_3"), model.Online)
	ct2 := Of(model.NewSet("AET_2"), str("AET_3"), model.Nearline)
	pr1 := Of(model.NewSet("AET_1", "AET_2"), str("AET_4"), model.Online)

	ctSeries := Rescan([]Summary{ct1, ct2})
	prSeries := Rescan([]Summary{pr1})
	viaSeries := Rescan([]Summary{ctSeries, prSeries})

	var incremental Summary
	for _, inst := range []Summary{ct1, pr1, ct2} {
		incremental = incremental.Add(inst)
	}

	assert.Equal(t, viaSeries, incremental)

	assert.Equal(t, 2, ctSeries.Count)
	assert.Equal(t, 1, prSeries.Count)
	assert.Equal(t, model.Set{"AET_2"}, ctSeries.RetrieveAETs)
	assert.Equal(t, model.Set{"AET_1", "AET_2"}, prSeries.RetrieveAETs)
	assert.Equal(t, model.Set{"AET_2"}, viaSeries.RetrieveAETs)
	assert.Equal(t, "AET_3", *ctSeries.ExternalRetrieveAET)
	assert.Equal(t, "AET_4", *prSeries.ExternalRetrieveAET)
	assert.Nil(t, viaSeries.ExternalRetrieveAET)
	assert.Equal(t, model.Nearline, ctSeries.Availability)
	assert.Equal(t, model.Online, prSeries.Availability)
	assert.Equal(t, model.Nearline, viaSeries.Availability)
	assert.Equal(t, 3, viaSeries.Count)
}
