package fixtures

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aeval/internal/domain"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestEmbeddedCatalog(t *testing.T) {
	s := Embedded(quietLogger())

	require.Len(t, s.Datasets(), 8)
	require.Len(t, s.Metrics(), 21)
	require.Len(t, s.Scenarios(), 4)
	require.Len(t, s.Agents(), 3)

	assert.Equal(t, "ds-001", s.Datasets()[0].ID)
	assert.Equal(t, "met-001", s.Metrics()[0].ID)
	assert.Equal(t, "chatbot", s.Scenarios()[0].ID)

	ds, ok := s.Dataset("ds-002")
	require.True(t, ok)
	assert.Equal(t, "HumanEval", ds.Name)
	assert.True(t, ds.HasTag("CODE"))

	_, ok = s.Dataset("ds-999")
	assert.False(t, ok)
}

func TestEmbeddedScenarioReferencesResolve(t *testing.T) {
	s := Embedded(quietLogger())
	for _, sc := range s.Scenarios() {
		for _, mid := range sc.RecommendedMetrics {
			_, ok := s.Metric(mid)
			assert.True(t, ok, "scenario %s references %s", sc.ID, mid)
		}
	}
}

func TestMissingCategoryBecomesOther(t *testing.T) {
	s := Embedded(quietLogger())
	m, ok := s.Metric("met-021")
	require.True(t, ok)
	assert.Equal(t, domain.CategoryOther, m.Category)
}

func TestMalformedCollectionFallsBackToEmpty(t *testing.T) {
	fsys := fstest.MapFS{
		"datasets.json":  {Data: []byte(`[{"id":"a","name":"A","tags":[],"size":"1MB"},{"id":"a","name":"dup","tags":[],"size":"1MB"}]`)},
		"metrics.json":   {Data: []byte(`[{"id":"m1","name":"M1","category":"Safety","description":"","cost":"Low"}]`)},
		"scenarios.json": {Data: []byte(`[{"id":"s1","name":"S1","description":"","recommended_metrics":["m404"]}]`)},
		"agents.json":    {Data: []byte(`{not json`)},
	}
	s := Load(fsys, quietLogger())

	assert.Empty(t, s.Datasets(), "duplicate ids must reject the collection")
	assert.Len(t, s.Metrics(), 1)
	assert.Empty(t, s.Scenarios(), "dangling metric reference must reject the collection")
	assert.Empty(t, s.Agents())
}

func TestUnknownFieldsRejected(t *testing.T) {
	fsys := fstest.MapFS{
		"datasets.json":  {Data: []byte(`[]`)},
		"metrics.json":   {Data: []byte(`[{"id":"m1","name":"M1","category":"Safety","description":"","cost":"Cheap"}]`)},
		"scenarios.json": {Data: []byte(`[]`)},
		"agents.json":    {Data: []byte(`[{"id":"ag","name":"x","type":"t","description":"","capabilities":[],"extra":1}]`)},
	}
	s := Load(fsys, quietLogger())
	assert.Empty(t, s.Metrics(), "invalid cost tier")
	assert.Empty(t, s.Agents(), "unknown field")
}

func TestNewValidates(t *testing.T) {
	_, err := New(nil, []domain.Metric{{ID: "m1", Name: "M", Cost: domain.CostLow}},
		[]domain.Scenario{{ID: "s", RecommendedMetrics: []string{"m1", "m1"}}}, nil)
	require.Error(t, err)

	s, err := New([]domain.Dataset{{ID: "d", Name: "D"}}, []domain.Metric{{ID: "m1", Name: "M", Category: "safety", Cost: domain.CostLow}}, nil, nil)
	require.NoError(t, err)
	m, ok := s.Metric("m1")
	require.True(t, ok)
	assert.Equal(t, domain.CategorySafety, m.Category)
}

func TestMetricsByIDKeepsCatalogOrder(t *testing.T) {
	s := Embedded(quietLogger())
	got := s.MetricsByID([]string{"met-017", "met-004", "nope", "met-005"})
	ids := make([]string, 0, len(got))
	for _, m := range got {
		ids = append(ids, m.ID)
	}
	assert.Equal(t, []string{"met-004", "met-005", "met-017"}, ids)
}

func TestSearchDatasets(t *testing.T) {
	s := Embedded(quietLogger())

	assert.Len(t, s.SearchDatasets(""), 8)

	byTag := s.SearchDatasets("SAFETY")
	require.Len(t, byTag, 2)
	assert.Equal(t, "ds-003", byTag[0].ID)
	assert.Equal(t, "ds-005", byTag[1].ID)

	byName := s.SearchDatasets("humaneval")
	require.Len(t, byName, 1)
	assert.Equal(t, "ds-002", byName[0].ID)

	assert.Empty(t, s.SearchDatasets("no-such-dataset"))
}

func TestSearchMetricsMatchesDescription(t *testing.T) {
	s := Embedded(quietLogger())
	got := s.SearchMetrics("unit tests")
	require.Len(t, got, 1)
	assert.Equal(t, "met-007", got[0].ID)
}

func TestGroupMetricsOrder(t *testing.T) {
	s := Embedded(quietLogger())
	groups := GroupMetrics(s.Metrics())
	var cats []domain.MetricCategory
	for _, g := range groups {
		cats = append(cats, g.Category)
	}
	assert.Equal(t, domain.Categories, cats)
	assert.Equal(t, "met-021", groups[len(groups)-1].Metrics[0].ID)

	safetyOnly := GroupMetrics(s.SearchMetrics("toxic"))
	require.Len(t, safetyOnly, 1)
	assert.Equal(t, domain.CategorySafety, safetyOnly[0].Category)
}

func TestLoadDirOverlaysEmbedded(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "agents.json"), []byte(`[{"id":"ag-x","name":"X","type":"chat","description":"","capabilities":[]}]`), 0o644))
	s := LoadDir(dir, quietLogger())
	require.Len(t, s.Agents(), 1)
	assert.Equal(t, "ag-x", s.Agents()[0].ID)
	assert.Len(t, s.Datasets(), 8)
}

func TestAccessorsDoNotShareSlices(t *testing.T) {
	s := Embedded(quietLogger())

	ds, ok := s.Dataset("ds-003")
	require.True(t, ok)
	ds.Tags[0] = "mutated"
	again, _ := s.Dataset("ds-003")
	assert.Equal(t, []string{"safety", "adversarial", "red-teaming"}, again.Tags)

	all := s.Datasets()
	all[2].Tags[0] = "mutated"
	assert.Equal(t, "safety", s.Datasets()[2].Tags[0])

	found := s.SearchDatasets("adversarial")
	require.NotEmpty(t, found)
	found[0].Tags[0] = "mutated"
	assert.False(t, s.Datasets()[2].HasTag("mutated"))

	sc, ok := s.Scenario("chatbot")
	require.True(t, ok)
	want := append([]string(nil), sc.RecommendedMetrics...)
	sc.RecommendedMetrics[0] = "met-999"
	sc, _ = s.Scenario("chatbot")
	assert.Equal(t, want, sc.RecommendedMetrics)

	agents := s.Agents()
	require.NotEmpty(t, agents)
	if len(agents[0].Capabilities) > 0 {
		first := agents[0].Capabilities[0]
		agents[0].Capabilities[0] = "mutated"
		agent, _ := s.Agent(agents[0].ID)
		assert.Equal(t, first, agent.Capabilities[0])
	}
}
