// Package compat classifies metrics and scenarios as compatible or not with a
// selected dataset. The result is advisory: it orders choices and never
// blocks a selection.
package compat

import (
	"aeval/internal/domain"
)

// MetricCompatible reports whether m suits ds. A nil or untagged dataset
// accepts everything.
func MetricCompatible(ds *domain.Dataset, m domain.Metric) bool {
	if untagged(ds) {
		return true
	}
	category := domain.NormalizeCategory(string(m.Category))
	if ds.HasTag("safety") {
		return category == domain.CategorySafety
	}
	switch category {
	case domain.CategoryCode:
		return ds.HasTag("code")
	case domain.CategoryRAG:
		return ds.HasTag("qa") || ds.HasTag("support")
	default:
		return true
	}
}

// ScenarioCompatible reports whether the scenario sc suits ds. Scenarios are
// matched by id; unrecognised ids are always compatible.
func ScenarioCompatible(ds *domain.Dataset, sc domain.Scenario) bool {
	if untagged(ds) {
		return true
	}
	switch sc.ID {
	case "safety":
		return ds.HasTag("safety") || ds.HasTag("adversarial")
	case "code":
		return ds.HasTag("code")
	case "rag":
		return ds.HasTag("qa") || ds.HasTag("support")
	case "chatbot":
		return !ds.HasTag("code") && !ds.HasTag("safety")
	default:
		return true
	}
}

func untagged(ds *domain.Dataset) bool {
	return ds == nil || len(ds.Tags) == 0
}

// Ranked pairs an item with its compatibility verdict.
type Ranked[T any] struct {
	Item       T    `json:"item"`
	Compatible bool `json:"compatible"`
}

// RankMetrics returns metrics with compatible ones first, keeping input
// order inside each partition.
func RankMetrics(ds *domain.Dataset, metrics []domain.Metric) []Ranked[domain.Metric] {
	return rank(metrics, func(m domain.Metric) bool { return MetricCompatible(ds, m) })
}

// RankScenarios is RankMetrics for scenarios.
func RankScenarios(ds *domain.Dataset, scenarios []domain.Scenario) []Ranked[domain.Scenario] {
	return rank(scenarios, func(sc domain.Scenario) bool { return ScenarioCompatible(ds, sc) })
}

func rank[T any](items []T, ok func(T) bool) []Ranked[T] {
	out := make([]Ranked[T], 0, len(items))
	var rest []Ranked[T]
	for _, it := range items {
		if ok(it) {
			out = append(out, Ranked[T]{Item: it, Compatible: true})
		} else {
			rest = append(rest, Ranked[T]{Item: it})
		}
	}
	return append(out, rest...)
}
