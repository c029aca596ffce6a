package server

import (
	"aeval/internal/compat"
	"aeval/internal/domain"
	"aeval/internal/engine"
	"aeval/internal/fixtures"
	"aeval/internal/metadata"
	"aeval/internal/onboarding"
	"aeval/internal/wizard"
)

// Request payloads

type ClassifyRequest struct {
	Text string `json:"text"`
}

type RecommendRequest struct {
	Intent string `json:"intent,omitempty" enum:"rag_safety,rag_accuracy,code_eval,general_chat,unknown"`
	Text   string `json:"text,omitempty"`
}

type ChatRequest struct {
	Message string `json:"message"`
}

type UpdateMetricsRequest struct {
	MetricIDs []string `json:"metric_ids"`
}

type WizardInfoRequest struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

type WizardDatasetRequest struct {
	DatasetID string `json:"dataset_id"`
}

type WizardScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

type WizardModeRequest struct {
	Mode string `json:"mode" enum:"scenario,manual"`
}

type OnboardingRequest struct {
	Role      string `json:"role"`
	Goal      string `json:"goal"`
	AgentName string `json:"agentName"`
}

type RegenerateRequest struct {
	Field string `json:"field,omitempty" enum:"name,description,tags"`
}

type DetectRequest struct {
	Filename string `json:"filename"`
	// Content is the raw file body.
	Content string `json:"content"`
}

// Response payloads

type DatasetList struct {
	Items []domain.Dataset `json:"items"`
}

type MetricList struct {
	Items  []domain.Metric        `json:"items"`
	Groups []fixtures.MetricGroup `json:"groups,omitempty"`
}

type ScenarioList struct {
	Items []domain.Scenario `json:"items"`
}

type AgentList struct {
	Items []domain.Agent `json:"items"`
}

type ClassifyResponse struct {
	Intent domain.Intent `json:"intent"`
}

type RecommendResponse struct {
	Intent         domain.Intent          `json:"intent"`
	Recommendation *domain.Recommendation `json:"recommendation"`
}

type RankedMetric struct {
	Metric     domain.Metric `json:"metric"`
	Compatible bool          `json:"compatible"`
}

type RankedScenario struct {
	Scenario   domain.Scenario `json:"scenario"`
	Compatible bool            `json:"compatible"`
}

type CompatibilityResponse struct {
	Dataset   domain.Dataset   `json:"dataset"`
	Metrics   []RankedMetric   `json:"metrics"`
	Scenarios []RankedScenario `json:"scenarios"`
}

type ChatReplyResponse struct {
	Content        string                 `json:"content"`
	Recommendation *domain.Recommendation `json:"recommendation,omitempty"`
}

type ChatSessionResponse struct {
	ID       string               `json:"id"`
	State    string               `json:"state" enum:"idle,awaiting_response"`
	Messages []domain.ChatMessage `json:"messages"`
}

// ChatTurnResponse carries the message a turn produced and the session after it.
type ChatTurnResponse struct {
	Message domain.ChatMessage  `json:"message"`
	Session ChatSessionResponse `json:"session"`
}

type WizardSessionResponse struct {
	ID      string          `json:"id"`
	Wizard  wizard.Snapshot `json:"wizard"`
	Aborted bool            `json:"aborted,omitempty"`
}

type WizardChoicesResponse struct {
	Metrics   []RankedMetric   `json:"metrics"`
	Scenarios []RankedScenario `json:"scenarios"`
}

type OnboardingQuestion struct {
	Key         string `json:"key"`
	Prompt      string `json:"prompt"`
	Placeholder string `json:"placeholder"`
}

type OnboardingResponse struct {
	Onboarded bool                      `json:"onboarded"`
	Profile   *domain.OnboardingAnswers `json:"profile,omitempty"`
	Questions []OnboardingQuestion      `json:"questions"`
}

// SaveMetadataRequest edits a dataset's metadata. Omitted fields keep their
// catalog value.
type SaveMetadataRequest struct {
	Name        *string  `json:"name,omitempty" example:"Support Chat Logs"`
	Description *string  `json:"description,omitempty"`
	Tags        []string `json:"tags,omitempty" example:"[\"support\",\"english\"]"`
}

type SuggestionList struct {
	Items []metadata.Suggestion `json:"items"`
}

type EventResponse = domain.Event

type paginatedEvents struct {
	Items      []EventResponse `json:"items"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

type EvaluationList struct {
	Items []domain.Evaluation `json:"items"`
}

func rankedMetrics(items []compat.Ranked[domain.Metric]) []RankedMetric {
	out := make([]RankedMetric, 0, len(items))
	for _, r := range items {
		out = append(out, RankedMetric{Metric: r.Item, Compatible: r.Compatible})
	}
	return out
}

func rankedScenarios(items []compat.Ranked[domain.Scenario]) []RankedScenario {
	out := make([]RankedScenario, 0, len(items))
	for _, r := range items {
		out = append(out, RankedScenario{Scenario: r.Item, Compatible: r.Compatible})
	}
	return out
}

func compatibilityResponse(c engine.Compatibility) CompatibilityResponse {
	return CompatibilityResponse{
		Dataset:   c.Dataset,
		Metrics:   rankedMetrics(c.Metrics),
		Scenarios: rankedScenarios(c.Scenarios),
	}
}

var questionKeys = map[onboarding.Question]string{
	onboarding.QuestionRole:      "role",
	onboarding.QuestionGoal:      "goal",
	onboarding.QuestionAgentName: "agentName",
}

func onboardingQuestions() []OnboardingQuestion {
	qs := []onboarding.Question{onboarding.QuestionRole, onboarding.QuestionGoal, onboarding.QuestionAgentName}
	out := make([]OnboardingQuestion, 0, len(qs))
	for _, q := range qs {
		out = append(out, OnboardingQuestion{Key: questionKeys[q], Prompt: q.Prompt(), Placeholder: q.Placeholder()})
	}
	return out
}
