package fixtures

import (
	"strings"

	"aeval/internal/domain"
)

// SearchDatasets returns datasets whose name or any tag contains q, ignoring
// case. An empty query matches everything.
func (s *Store) SearchDatasets(q string) []domain.Dataset {
	q = strings.ToLower(strings.TrimSpace(q))
	if q == "" {
		return s.Datasets()
	}
	var out []domain.Dataset
	for _, d := range s.datasets {
		if strings.Contains(strings.ToLower(d.Name), q) || anyContains(d.Tags, q) {
			out = append(out, d.Clone())
		}
	}
	return out
}

// SearchMetrics returns metrics whose name or description contains q.
func (s *Store) SearchMetrics(q string) []domain.Metric {
	q = strings.ToLower(strings.TrimSpace(q))
	if q == "" {
		return s.Metrics()
	}
	var out []domain.Metric
	for _, m := range s.metrics {
		if strings.Contains(strings.ToLower(m.Name), q) || strings.Contains(strings.ToLower(m.Description), q) {
			out = append(out, m)
		}
	}
	return out
}

type MetricGroup struct {
	Category domain.MetricCategory `json:"category"`
	Metrics  []domain.Metric       `json:"metrics"`
}

// GroupMetrics buckets metrics by category in display order, preserving the
// input order inside each bucket. Empty buckets are omitted.
func GroupMetrics(metrics []domain.Metric) []MetricGroup {
	buckets := make(map[domain.MetricCategory][]domain.Metric)
	for _, m := range metrics {
		c := domain.NormalizeCategory(string(m.Category))
		buckets[c] = append(buckets[c], m)
	}
	var out []MetricGroup
	for _, c := range domain.Categories {
		if len(buckets[c]) == 0 {
			continue
		}
		out = append(out, MetricGroup{Category: c, Metrics: buckets[c]})
	}
	return out
}

func anyContains(items []string, q string) bool {
	for _, it := range items {
		if strings.Contains(strings.ToLower(it), q) {
			return true
		}
	}
	return false
}
