// Package fixtures holds the read-only catalog of datasets, metrics,
// scenarios and agents. Catalogs are decoded into typed records and validated
// once at load time; a collection that fails validation is logged and replaced
// by an empty one so malformed entries never reach callers.
package fixtures

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	"aeval/internal/domain"
)

//go:embed data/*.json
var embedded embed.FS

const (
	datasetsFile  = "datasets.json"
	metricsFile   = "metrics.json"
	scenariosFile = "scenarios.json"
	agentsFile    = "agents.json"
)

// ErrNotFound is returned by lookups for ids absent from the catalog.
var ErrNotFound = errors.New("not found")

// Store is an immutable snapshot of the catalog. Safe for concurrent use.
type Store struct {
	datasets  []domain.Dataset
	metrics   []domain.Metric
	scenarios []domain.Scenario
	agents    []domain.Agent

	datasetIdx  map[string]int
	metricIdx   map[string]int
	scenarioIdx map[string]int
	agentIdx    map[string]int
}

// Embedded loads the catalog compiled into the binary.
func Embedded(logger *slog.Logger) *Store {
	sub, err := fs.Sub(embedded, "data")
	if err != nil {
		// embed paths are fixed at compile time
		panic(err)
	}
	return Load(sub, logger)
}

// LoadDir loads catalog files from dir, falling back to the embedded copy for
// any file the directory does not provide.
func LoadDir(dir string, logger *slog.Logger) *Store {
	if dir == "" {
		return Embedded(logger)
	}
	sub, _ := fs.Sub(embedded, "data")
	return Load(overlayFS{primary: os.DirFS(dir), fallback: sub}, logger)
}

// Load decodes and validates every collection from fsys.
func Load(fsys fs.FS, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{}

	if err := decodeFile(fsys, datasetsFile, &s.datasets); err != nil {
		logger.Error("fixtures: datasets rejected", "error", err)
		s.datasets = nil
	} else if err := validateDatasets(s.datasets); err != nil {
		logger.Error("fixtures: datasets rejected", "error", err)
		s.datasets = nil
	}

	var rawMetrics []rawMetric
	if err := decodeFile(fsys, metricsFile, &rawMetrics); err != nil {
		logger.Error("fixtures: metrics rejected", "error", err)
	} else if metrics, err := convertMetrics(rawMetrics); err != nil {
		logger.Error("fixtures: metrics rejected", "error", err)
	} else {
		s.metrics = metrics
	}
	s.metricIdx = indexOf(s.metrics, func(m domain.Metric) string { return m.ID })

	if err := decodeFile(fsys, scenariosFile, &s.scenarios); err != nil {
		logger.Error("fixtures: scenarios rejected", "error", err)
		s.scenarios = nil
	} else if err := validateScenarios(s.scenarios, s.metricIdx); err != nil {
		logger.Error("fixtures: scenarios rejected", "error", err)
		s.scenarios = nil
	}

	if err := decodeFile(fsys, agentsFile, &s.agents); err != nil {
		logger.Error("fixtures: agents rejected", "error", err)
		s.agents = nil
	} else if err := validateAgents(s.agents); err != nil {
		logger.Error("fixtures: agents rejected", "error", err)
		s.agents = nil
	}

	s.datasetIdx = indexOf(s.datasets, func(d domain.Dataset) string { return d.ID })
	s.scenarioIdx = indexOf(s.scenarios, func(sc domain.Scenario) string { return sc.ID })
	s.agentIdx = indexOf(s.agents, func(a domain.Agent) string { return a.ID })

	logger.Debug("fixtures: catalog loaded",
		"datasets", len(s.datasets),
		"metrics", len(s.metrics),
		"scenarios", len(s.scenarios),
		"agents", len(s.agents))
	return s
}

// New builds a store from in-memory collections, applying the same validation
// as Load. Intended for tests and callers assembling a catalog in code.
func New(datasets []domain.Dataset, metrics []domain.Metric, scenarios []domain.Scenario, agents []domain.Agent) (*Store, error) {
	s := &Store{
		datasets:  cloneAll(datasets, domain.Dataset.Clone),
		metrics:   append([]domain.Metric(nil), metrics...),
		scenarios: cloneAll(scenarios, domain.Scenario.Clone),
		agents:    cloneAll(agents, domain.Agent.Clone),
	}
	for i := range s.metrics {
		s.metrics[i].Category = domain.NormalizeCategory(string(s.metrics[i].Category))
	}
	var errs []error
	errs = append(errs, validateDatasets(s.datasets))
	errs = append(errs, validateMetrics(s.metrics))
	s.metricIdx = indexOf(s.metrics, func(m domain.Metric) string { return m.ID })
	errs = append(errs, validateScenarios(s.scenarios, s.metricIdx))
	errs = append(errs, validateAgents(s.agents))
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	s.datasetIdx = indexOf(s.datasets, func(d domain.Dataset) string { return d.ID })
	s.scenarioIdx = indexOf(s.scenarios, func(sc domain.Scenario) string { return sc.ID })
	s.agentIdx = indexOf(s.agents, func(a domain.Agent) string { return a.ID })
	return s, nil
}

// Every accessor returns deep copies; callers cannot reach the snapshot.

func (s *Store) Datasets() []domain.Dataset   { return cloneAll(s.datasets, domain.Dataset.Clone) }
func (s *Store) Metrics() []domain.Metric     { return append([]domain.Metric(nil), s.metrics...) }
func (s *Store) Scenarios() []domain.Scenario { return cloneAll(s.scenarios, domain.Scenario.Clone) }
func (s *Store) Agents() []domain.Agent       { return cloneAll(s.agents, domain.Agent.Clone) }

func cloneAll[T any](items []T, clone func(T) T) []T {
	if items == nil {
		return nil
	}
	out := make([]T, len(items))
	for i, v := range items {
		out[i] = clone(v)
	}
	return out
}

func (s *Store) Dataset(id string) (domain.Dataset, bool) {
	i, ok := s.datasetIdx[id]
	if !ok {
		return domain.Dataset{}, false
	}
	return s.datasets[i].Clone(), true
}

func (s *Store) Metric(id string) (domain.Metric, bool) {
	i, ok := s.metricIdx[id]
	if !ok {
		return domain.Metric{}, false
	}
	return s.metrics[i], true
}

func (s *Store) Scenario(id string) (domain.Scenario, bool) {
	i, ok := s.scenarioIdx[id]
	if !ok {
		return domain.Scenario{}, false
	}
	return s.scenarios[i].Clone(), true
}

func (s *Store) Agent(id string) (domain.Agent, bool) {
	i, ok := s.agentIdx[id]
	if !ok {
		return domain.Agent{}, false
	}
	return s.agents[i].Clone(), true
}

// MetricsByID resolves ids against the catalog and returns the matches in
// catalog order. Unknown ids are skipped.
func (s *Store) MetricsByID(ids []string) []domain.Metric {
	want := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}
	var out []domain.Metric
	for _, m := range s.metrics {
		if _, ok := want[m.ID]; ok {
			out = append(out, m)
		}
	}
	return out
}

type rawMetric struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Category    string `json:"category"`
	Description string `json:"description"`
	Cost        string `json:"cost"`
}

func convertMetrics(raw []rawMetric) ([]domain.Metric, error) {
	out := make([]domain.Metric, 0, len(raw))
	for i, r := range raw {
		cost, ok := domain.NormalizeCost(r.Cost)
		if !ok {
			return nil, fmt.Errorf("metric %d (%s): invalid cost %q", i, r.ID, r.Cost)
		}
		out = append(out, domain.Metric{
			ID:          r.ID,
			Name:        r.Name,
			Category:    domain.NormalizeCategory(r.Category),
			Description: r.Description,
			Cost:        cost,
		})
	}
	if err := validateMetrics(out); err != nil {
		return nil, err
	}
	return out, nil
}

func decodeFile(fsys fs.FS, name string, target any) error {
	data, err := fs.ReadFile(fsys, name)
	if err != nil {
		return fmt.Errorf("read %s: %w", name, err)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(target); err != nil {
		return fmt.Errorf("decode %s: %w", name, err)
	}
	return nil
}

func validateDatasets(items []domain.Dataset) error {
	seen := make(map[string]struct{}, len(items))
	for i, d := range items {
		if strings.TrimSpace(d.ID) == "" {
			return fmt.Errorf("dataset %d: id is required", i)
		}
		if _, dup := seen[d.ID]; dup {
			return fmt.Errorf("dataset %s: duplicate id", d.ID)
		}
		seen[d.ID] = struct{}{}
		if strings.TrimSpace(d.Name) == "" {
			return fmt.Errorf("dataset %s: name is required", d.ID)
		}
		switch d.FileFormat {
		case "", "csv", "json", "jsonl", "txt", "tmx":
		default:
			return fmt.Errorf("dataset %s: invalid file_format %q", d.ID, d.FileFormat)
		}
		if d.QualityScore != nil && (*d.QualityScore < 0 || *d.QualityScore > 1) {
			return fmt.Errorf("dataset %s: metadata_quality_score out of range", d.ID)
		}
		if d.TotalRecords != nil && *d.TotalRecords < 0 {
			return fmt.Errorf("dataset %s: total_records must not be negative", d.ID)
		}
	}
	return nil
}

func validateMetrics(items []domain.Metric) error {
	seen := make(map[string]struct{}, len(items))
	for i, m := range items {
		if strings.TrimSpace(m.ID) == "" {
			return fmt.Errorf("metric %d: id is required", i)
		}
		if _, dup := seen[m.ID]; dup {
			return fmt.Errorf("metric %s: duplicate id", m.ID)
		}
		seen[m.ID] = struct{}{}
		if strings.TrimSpace(m.Name) == "" {
			return fmt.Errorf("metric %s: name is required", m.ID)
		}
		if _, ok := domain.NormalizeCost(string(m.Cost)); !ok {
			return fmt.Errorf("metric %s: invalid cost %q", m.ID, m.Cost)
		}
	}
	return nil
}

func validateScenarios(items []domain.Scenario, metricIdx map[string]int) error {
	seen := make(map[string]struct{}, len(items))
	for i, sc := range items {
		if strings.TrimSpace(sc.ID) == "" {
			return fmt.Errorf("scenario %d: id is required", i)
		}
		if _, dup := seen[sc.ID]; dup {
			return fmt.Errorf("scenario %s: duplicate id", sc.ID)
		}
		seen[sc.ID] = struct{}{}
		refs := make(map[string]struct{}, len(sc.RecommendedMetrics))
		for _, mid := range sc.RecommendedMetrics {
			if _, ok := metricIdx[mid]; !ok {
				return fmt.Errorf("scenario %s: unknown metric %s", sc.ID, mid)
			}
			if _, dup := refs[mid]; dup {
				return fmt.Errorf("scenario %s: duplicate metric %s", sc.ID, mid)
			}
			refs[mid] = struct{}{}
		}
	}
	return nil
}

func validateAgents(items []domain.Agent) error {
	seen := make(map[string]struct{}, len(items))
	for i, a := range items {
		if strings.TrimSpace(a.ID) == "" {
			return fmt.Errorf("agent %d: id is required", i)
		}
		if _, dup := seen[a.ID]; dup {
			return fmt.Errorf("agent %s: duplicate id", a.ID)
		}
		seen[a.ID] = struct{}{}
	}
	return nil
}

func indexOf[T any](items []T, key func(T) string) map[string]int {
	idx := make(map[string]int, len(items))
	for i, it := range items {
		idx[key(it)] = i
	}
	return idx
}

// overlayFS reads from primary and falls back to fallback when a file is
// missing there.
type overlayFS struct {
	primary  fs.FS
	fallback fs.FS
}

func (o overlayFS) Open(name string) (fs.File, error) {
	f, err := o.primary.Open(name)
	if err == nil {
		return f, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return o.fallback.Open(name)
	}
	return nil, err
}
