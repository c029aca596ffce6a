package domain

import (
	"slices"
	"strings"
)

type MetricCategory string

const (
	CategoryAccuracy    MetricCategory = "Accuracy"
	CategorySafety      MetricCategory = "Safety"
	CategoryQuality     MetricCategory = "Quality"
	CategoryCode        MetricCategory = "Code"
	CategoryPerformance MetricCategory = "Performance"
	CategoryRAG         MetricCategory = "RAG"
	CategoryOther       MetricCategory = "Other"
)

// Categories lists metric categories in display order.
var Categories = []MetricCategory{
	CategoryAccuracy,
	CategorySafety,
	CategoryQuality,
	CategoryCode,
	CategoryPerformance,
	CategoryRAG,
	CategoryOther,
}

// NormalizeCategory maps a raw category onto the fixed enumeration; anything
// unrecognised becomes Other.
func NormalizeCategory(s string) MetricCategory {
	s = strings.TrimSpace(s)
	for _, c := range Categories {
		if strings.EqualFold(s, string(c)) {
			return c
		}
	}
	return CategoryOther
}

type CostTier string

const (
	CostLow    CostTier = "Low"
	CostMedium CostTier = "Medium"
	CostHigh   CostTier = "High"
)

func NormalizeCost(s string) (CostTier, bool) {
	switch CostTier(strings.TrimSpace(s)) {
	case CostLow:
		return CostLow, true
	case CostMedium:
		return CostMedium, true
	case CostHigh:
		return CostHigh, true
	default:
		return "", false
	}
}

type Dataset struct {
	ID                 string   `json:"id"`
	Name               string   `json:"name"`
	Description        string   `json:"description"`
	Tags               []string `json:"tags"`
	Size               string   `json:"size"`
	FileFormat         string   `json:"file_format,omitempty" enum:"csv,json,jsonl,txt,tmx"`
	QualityScore       *float64 `json:"metadata_quality_score,omitempty"`
	TotalRecords       *int     `json:"total_records,omitempty"`
	ApplicationContext string   `json:"application_context,omitempty"`
	CreatedAt          string   `json:"created_at,omitempty"`
}

// Clone returns a deep copy of d.
func (d Dataset) Clone() Dataset {
	d.Tags = slices.Clone(d.Tags)
	if d.QualityScore != nil {
		v := *d.QualityScore
		d.QualityScore = &v
	}
	if d.TotalRecords != nil {
		v := *d.TotalRecords
		d.TotalRecords = &v
	}
	return d
}

// HasTag reports whether the dataset carries tag, ignoring case.
func (d Dataset) HasTag(tag string) bool {
	for _, t := range d.Tags {
		if strings.EqualFold(t, tag) {
			return true
		}
	}
	return false
}

type Metric struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Category    MetricCategory `json:"category" enum:"Accuracy,Safety,Quality,Code,Performance,RAG,Other"`
	Description string         `json:"description"`
	Cost        CostTier       `json:"cost" enum:"Low,Medium,High"`
}

type Scenario struct {
	ID                 string   `json:"id"`
	Name               string   `json:"name"`
	Description        string   `json:"description"`
	RecommendedMetrics []string `json:"recommended_metrics"`
}

func (s Scenario) Clone() Scenario {
	s.RecommendedMetrics = slices.Clone(s.RecommendedMetrics)
	return s
}

type Agent struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Type         string   `json:"type"`
	Description  string   `json:"description"`
	Capabilities []string `json:"capabilities"`
}

func (a Agent) Clone() Agent {
	a.Capabilities = slices.Clone(a.Capabilities)
	return a
}

type Intent string

const (
	IntentRAGSafety   Intent = "rag_safety"
	IntentRAGAccuracy Intent = "rag_accuracy"
	IntentCodeEval    Intent = "code_eval"
	IntentGeneralChat Intent = "general_chat"
	IntentUnknown     Intent = "unknown"
)

// Intents lists every label the classifier can produce.
var Intents = []Intent{IntentRAGSafety, IntentRAGAccuracy, IntentCodeEval, IntentGeneralChat, IntentUnknown}

func ParseIntent(s string) (Intent, bool) {
	for _, in := range Intents {
		if string(in) == strings.TrimSpace(s) {
			return in, true
		}
	}
	return "", false
}

type Recommendation struct {
	Dataset  Dataset  `json:"dataset"`
	Metrics  []Metric `json:"metrics"`
	Agent    Agent    `json:"agent"`
	Scenario Scenario `json:"scenario"`
	Reason   string   `json:"reason"`
}

// Clone returns a deep copy of r.
func (r Recommendation) Clone() Recommendation {
	r.Dataset = r.Dataset.Clone()
	r.Metrics = slices.Clone(r.Metrics)
	r.Agent = r.Agent.Clone()
	r.Scenario = r.Scenario.Clone()
	return r
}

// MetricIDs returns the ids of the recommended metrics in order.
func (r Recommendation) MetricIDs() []string {
	ids := make([]string, 0, len(r.Metrics))
	for _, m := range r.Metrics {
		ids = append(ids, m.ID)
	}
	return ids
}

type Role string

const (
	RoleUser   Role = "user"
	RoleSystem Role = "system"
)

type ChatMessage struct {
	ID             string          `json:"id"`
	Role           Role            `json:"role" enum:"user,system"`
	Content        string          `json:"content"`
	Timestamp      int64           `json:"timestamp"`
	Recommendation *Recommendation `json:"recommendation,omitempty"`
}

// Clone returns m with its recommendation deep-copied.
func (m ChatMessage) Clone() ChatMessage {
	if m.Recommendation != nil {
		rec := m.Recommendation.Clone()
		m.Recommendation = &rec
	}
	return m
}

type WizardDraft struct {
	Name              string   `json:"name"`
	Description       string   `json:"description,omitempty"`
	SelectedDatasetID *string  `json:"selected_dataset_id,omitempty"`
	SelectedMetricIDs []string `json:"selected_metric_ids"`
}

// Submittable reports whether the draft satisfies the submission guard.
func (d WizardDraft) Submittable() bool {
	return d.SelectedDatasetID != nil && *d.SelectedDatasetID != "" && len(d.SelectedMetricIDs) > 0
}

type Evaluation struct {
	ID               string   `json:"id"`
	Name             string   `json:"name"`
	Description      string   `json:"description,omitempty"`
	DatasetID        string   `json:"dataset_id"`
	MetricIDs        []string `json:"metric_ids"`
	EstimatedMinutes int      `json:"estimated_minutes"`
	EstimatedCostUSD float64  `json:"estimated_cost_usd"`
	SubmittedAt      string   `json:"submitted_at" format:"date-time"`
}

type OnboardingAnswers struct {
	Role      string `json:"role"`
	Goal      string `json:"goal"`
	AgentName string `json:"agentName"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	Payload    string `json:"payload_json"`
}
