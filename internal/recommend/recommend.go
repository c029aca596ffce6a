// Package recommend turns an intent label into a recommendation bundle drawn
// from the fixture catalog.
package recommend

import (
	"errors"
	"fmt"
	"strings"

	"aeval/internal/domain"
	"aeval/internal/fixtures"
)

// UnknownPolicy decides what the engine does with the unknown intent.
type UnknownPolicy string

const (
	// UnknownClarify yields no recommendation so the caller can ask a
	// clarifying question.
	UnknownClarify UnknownPolicy = "clarify"
	// UnknownFallback yields the generic first-in-catalog bundle.
	UnknownFallback UnknownPolicy = "fallback"
)

func ParseUnknownPolicy(s string) (UnknownPolicy, error) {
	switch UnknownPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", UnknownClarify:
		return UnknownClarify, nil
	case UnknownFallback:
		return UnknownFallback, nil
	default:
		return "", fmt.Errorf("unknown intent policy %q (want clarify or fallback)", s)
	}
}

var (
	ErrEmptyMetrics = errors.New("recommendation needs at least one metric")
	ErrEmptyCatalog = errors.New("catalog is empty")
)

// entry is one row of the mapping table. Fallback indices are used when the
// preferred id is missing from the catalog.
type entry struct {
	datasetID        string
	datasetFallback  int
	metricIDs        []string
	agentID          string
	agentFallback    int
	scenarioID       string
	scenarioFallback int
	reason           string
}

var table = map[domain.Intent]entry{
	domain.IntentRAGSafety: {
		datasetID:        "ds-001",
		metricIDs:        []string{"met-004", "met-005", "met-017"},
		agentID:          "ag-001",
		scenarioID:       "safety",
		scenarioFallback: 3,
		reason:           "For RAG safety testing, we recommend the 'Customer Support QA' dataset combined with Hallucination Rate, Toxicity Score, and Refusal Rate metrics.",
	},
	domain.IntentCodeEval: {
		datasetID:        "ds-002",
		datasetFallback:  1,
		metricIDs:        []string{"met-007", "met-016", "met-001"},
		agentID:          "ag-002",
		agentFallback:    1,
		scenarioID:       "code",
		scenarioFallback: 2,
		reason:           "To evaluate coding ability, 'HumanEval' is the industry standard. We've selected execution-based metrics to verify correctness.",
	},
	domain.IntentRAGAccuracy: {
		datasetID:        "ds-001",
		metricIDs:        []string{"met-010", "met-011", "met-004"},
		agentID:          "ag-001",
		scenarioID:       "rag",
		scenarioFallback: 1,
		reason:           "For RAG accuracy, we focus on Context Adherence and Relevance metrics using a standard QA dataset.",
	},
	domain.IntentGeneralChat: {
		datasetID:        "ds-007",
		datasetFallback:  6,
		metricIDs:        []string{"met-011", "met-012", "met-015"},
		agentID:          "ag-003",
		agentFallback:    2,
		scenarioID:       "chatbot",
		reason:           "For general conversation, we recommend evaluating Relevance, Coherence, and Tone Consistency.",
	},
}

const fallbackReason = "Based on your general request, we recommend a standard evaluation setup."

// Engine is a pure function of intent and catalog snapshot.
type Engine struct {
	Store   *fixtures.Store
	Unknown UnknownPolicy
}

func New(store *fixtures.Store, unknown UnknownPolicy) Engine {
	return Engine{Store: store, Unknown: unknown}
}

// Recommend returns the bundle for in. The boolean is false when no
// recommendation applies: unknown intent under the clarify policy, or a
// catalog missing one of the four collections.
func (e Engine) Recommend(in domain.Intent) (*domain.Recommendation, bool) {
	if e.Store == nil {
		return nil, false
	}
	row, ok := table[in]
	if !ok {
		if e.Unknown != UnknownFallback {
			return nil, false
		}
		return e.fallback()
	}

	ds, ok := pick(e.Store.Datasets(), row.datasetFallback, func(d domain.Dataset) bool { return d.ID == row.datasetID })
	if !ok {
		return nil, false
	}
	ag, ok := pick(e.Store.Agents(), row.agentFallback, func(a domain.Agent) bool { return a.ID == row.agentID })
	if !ok {
		return nil, false
	}
	sc, ok := pick(e.Store.Scenarios(), row.scenarioFallback, func(s domain.Scenario) bool { return s.ID == row.scenarioID })
	if !ok {
		return nil, false
	}
	metrics := e.resolveOrdered(row.metricIDs)
	if len(metrics) == 0 {
		metrics = firstN(e.Store.Metrics(), 2)
	}
	if len(metrics) == 0 {
		return nil, false
	}
	return &domain.Recommendation{
		Dataset:  ds,
		Metrics:  metrics,
		Agent:    ag,
		Scenario: sc,
		Reason:   row.reason,
	}, true
}

func (e Engine) fallback() (*domain.Recommendation, bool) {
	datasets, metrics := e.Store.Datasets(), e.Store.Metrics()
	agents, scenarios := e.Store.Agents(), e.Store.Scenarios()
	if len(datasets) == 0 || len(metrics) == 0 || len(agents) == 0 || len(scenarios) == 0 {
		return nil, false
	}
	return &domain.Recommendation{
		Dataset:  datasets[0],
		Metrics:  firstN(metrics, 2),
		Agent:    agents[0],
		Scenario: scenarios[0],
		Reason:   fallbackReason,
	}, true
}

// Modify returns a copy of rec whose metrics are replaced by metricIDs,
// resolved against the catalog in catalog order. Unknown ids are dropped. rec
// itself is never changed.
func (e Engine) Modify(rec domain.Recommendation, metricIDs []string) (domain.Recommendation, error) {
	if e.Store == nil {
		return domain.Recommendation{}, ErrEmptyCatalog
	}
	metrics := e.Store.MetricsByID(metricIDs)
	if len(metrics) == 0 {
		return domain.Recommendation{}, ErrEmptyMetrics
	}
	out := rec
	out.Metrics = metrics
	out.Dataset.Tags = append([]string(nil), rec.Dataset.Tags...)
	out.Agent.Capabilities = append([]string(nil), rec.Agent.Capabilities...)
	out.Scenario.RecommendedMetrics = append([]string(nil), rec.Scenario.RecommendedMetrics...)
	return out, nil
}

// Added returns the names of metrics present in next but not in prev, in the
// order they appear in next.
func Added(prev, next domain.Recommendation) []string {
	had := make(map[string]struct{}, len(prev.Metrics))
	for _, m := range prev.Metrics {
		had[m.ID] = struct{}{}
	}
	var names []string
	for _, m := range next.Metrics {
		if _, ok := had[m.ID]; !ok {
			names = append(names, m.Name)
		}
	}
	return names
}

func (e Engine) resolveOrdered(ids []string) []domain.Metric {
	out := make([]domain.Metric, 0, len(ids))
	for _, id := range ids {
		if m, ok := e.Store.Metric(id); ok {
			out = append(out, m)
		}
	}
	return out
}

func pick[T any](items []T, fallback int, match func(T) bool) (T, bool) {
	var zero T
	for _, it := range items {
		if match(it) {
			return it, true
		}
	}
	if len(items) == 0 {
		return zero, false
	}
	if fallback < 0 || fallback >= len(items) {
		fallback = 0
	}
	return items[fallback], true
}

func firstN[T any](items []T, n int) []T {
	if len(items) < n {
		n = len(items)
	}
	return append([]T(nil), items[:n]...)
}
