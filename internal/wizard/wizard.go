// Package wizard implements the four-step evaluation builder:
// basic info, dataset, metrics, review.
package wizard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"aeval/internal/compat"
	"aeval/internal/domain"
	"aeval/internal/fixtures"
	"aeval/internal/simulate"
	"aeval/internal/telemetry"
)

type Step int

const (
	StepBasicInfo Step = iota
	StepDataset
	StepMetrics
	StepReview
)

var stepTitles = [...]string{"Basic Info", "Select Dataset", "Choose Metrics", "Review"}

func (s Step) String() string {
	if s < StepBasicInfo || s > StepReview {
		return fmt.Sprintf("Step(%d)", int(s))
	}
	return stepTitles[s]
}

// Mode selects how metrics are chosen on the metrics step.
type Mode string

const (
	ModeScenario Mode = "scenario"
	ModeManual   Mode = "manual"
)

type Status string

const (
	StatusActive     Status = "active"
	StatusSubmitting Status = "submitting"
	StatusSubmitted  Status = "submitted"
	StatusCancelled  Status = "cancelled"
)

var (
	ErrNameRequired    = errors.New("evaluation name is required")
	ErrDatasetRequired = errors.New("a dataset must be selected")
	ErrCannotSubmit    = errors.New("draft needs a dataset and at least one metric")
	ErrNotAtReview     = errors.New("submit is only possible from the review step")
	ErrAtLastStep      = errors.New("already at the last step")
	ErrNotActive       = errors.New("wizard is no longer active")
	ErrUnknownDataset  = errors.New("unknown dataset")
	ErrUnknownMetric   = errors.New("unknown metric")
	ErrUnknownScenario = errors.New("unknown scenario")
	ErrInvalidMode     = errors.New("mode must be 'scenario' or 'manual'")
)

// Recorder persists a submitted evaluation.
type Recorder interface {
	RecordSubmission(ctx context.Context, ev domain.Evaluation) error
}

type Options struct {
	Store         *fixtures.Store
	SubmitLatency time.Duration
	Recorder      Recorder
	// OnComplete runs after a successful submission.
	OnComplete func(ctx context.Context, ev domain.Evaluation)
	Counters   *telemetry.Counters
	Logger     *slog.Logger
	Now        func() time.Time
	NewID      func() string
}

// Session is one run of the wizard. Safe for concurrent use.
type Session struct {
	opts Options

	mu     sync.Mutex
	step   Step
	mode   Mode
	status Status
	draft  domain.WizardDraft
}

func New(opts Options) *Session {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Session{opts: opts, mode: ModeScenario, status: StatusActive, draft: domain.WizardDraft{SelectedMetricIDs: []string{}}}
}

// Snapshot is a read-only view of the session.
type Snapshot struct {
	Step      Step               `json:"step"`
	StepTitle string             `json:"step_title"`
	Mode      Mode               `json:"mode"`
	Status    Status             `json:"status"`
	Draft     domain.WizardDraft `json:"draft"`
	CanSubmit bool               `json:"can_submit"`
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		Step:      s.step,
		StepTitle: s.step.String(),
		Mode:      s.mode,
		Status:    s.status,
		Draft:     s.draftCopy(),
		CanSubmit: s.draft.Submittable(),
	}
}

func (s *Session) Step() Step {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.step
}

func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *Session) Draft() domain.WizardDraft {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.draftCopy()
}

func (s *Session) SetBasicInfo(name, description string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != StatusActive {
		return ErrNotActive
	}
	s.draft.Name = strings.TrimSpace(name)
	s.draft.Description = strings.TrimSpace(description)
	return nil
}

func (s *Session) SelectDataset(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != StatusActive {
		return ErrNotActive
	}
	if _, ok := s.opts.Store.Dataset(id); !ok {
		return fmt.Errorf("%w: %s", ErrUnknownDataset, id)
	}
	s.draft.SelectedDatasetID = &id
	return nil
}

// ToggleMetric adds id to the selection, or removes it when present.
// Selection order is kept for display.
func (s *Session) ToggleMetric(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != StatusActive {
		return ErrNotActive
	}
	if _, ok := s.opts.Store.Metric(id); !ok {
		return fmt.Errorf("%w: %s", ErrUnknownMetric, id)
	}
	for i, cur := range s.draft.SelectedMetricIDs {
		if cur == id {
			s.draft.SelectedMetricIDs = append(s.draft.SelectedMetricIDs[:i:i], s.draft.SelectedMetricIDs[i+1:]...)
			return nil
		}
	}
	s.draft.SelectedMetricIDs = append(s.draft.SelectedMetricIDs, id)
	return nil
}

// ApplyScenario replaces the selection with the scenario's metrics.
func (s *Session) ApplyScenario(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != StatusActive {
		return ErrNotActive
	}
	sc, ok := s.opts.Store.Scenario(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownScenario, id)
	}
	s.draft.SelectedMetricIDs = append([]string{}, sc.RecommendedMetrics...)
	return nil
}

// ScenarioSelected reports whether the selection is exactly the scenario's
// metric set, in any order.
func (s *Session) ScenarioSelected(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	sc, ok := s.opts.Store.Scenario(id)
	if !ok || len(sc.RecommendedMetrics) != len(s.draft.SelectedMetricIDs) {
		return false
	}
	want := make(map[string]struct{}, len(sc.RecommendedMetrics))
	for _, m := range sc.RecommendedMetrics {
		want[m] = struct{}{}
	}
	for _, m := range s.draft.SelectedMetricIDs {
		if _, ok := want[m]; !ok {
			return false
		}
	}
	return true
}

func (s *Session) SetMode(m Mode) error {
	if m != ModeScenario && m != ModeManual {
		return ErrInvalidMode
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != StatusActive {
		return ErrNotActive
	}
	s.mode = m
	return nil
}

// Next advances one step. Leaving basic info needs a name; leaving the
// dataset step needs a dataset.
func (s *Session) Next() (Step, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != StatusActive {
		return s.step, ErrNotActive
	}
	switch s.step {
	case StepBasicInfo:
		if s.draft.Name == "" {
			return s.step, ErrNameRequired
		}
	case StepDataset:
		if s.draft.SelectedDatasetID == nil {
			return s.step, ErrDatasetRequired
		}
	case StepReview:
		return s.step, ErrAtLastStep
	}
	s.step++
	return s.step, nil
}

// Back moves one step backwards; it is a no-op on the first step.
func (s *Session) Back() (Step, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != StatusActive {
		return s.step, ErrNotActive
	}
	if s.step > StepBasicInfo {
		s.step--
	}
	return s.step, nil
}

// Cancel aborts the wizard on the first step and discards the draft. On any
// later step it behaves like Back so work is never silently lost. It reports
// whether the session was aborted.
func (s *Session) Cancel() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != StatusActive {
		return false, ErrNotActive
	}
	if s.step == StepBasicInfo {
		s.status = StatusCancelled
		s.draft = domain.WizardDraft{SelectedMetricIDs: []string{}}
		return true, nil
	}
	s.step--
	return false, nil
}

// CanSubmit is the submission guard: a dataset and at least one metric.
func (s *Session) CanSubmit() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.draft.Submittable()
}

// Review summarises the draft for the last step.
type Review struct {
	Name             string          `json:"name"`
	Description      string          `json:"description,omitempty"`
	Dataset          *domain.Dataset `json:"dataset,omitempty"`
	Metrics          []domain.Metric `json:"metrics"`
	EstimatedMinutes int             `json:"estimated_minutes"`
	EstimatedCostUSD float64         `json:"estimated_cost_usd"`
}

func (s *Session) Review() Review {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reviewLocked()
}

func (s *Session) reviewLocked() Review {
	r := Review{
		Name:        s.draft.Name,
		Description: s.draft.Description,
		Metrics:     s.opts.Store.MetricsByID(s.draft.SelectedMetricIDs),
	}
	if r.Metrics == nil {
		r.Metrics = []domain.Metric{}
	}
	if s.draft.SelectedDatasetID != nil {
		if ds, ok := s.opts.Store.Dataset(*s.draft.SelectedDatasetID); ok {
			r.Dataset = &ds
		}
	}
	r.EstimatedMinutes, r.EstimatedCostUSD = Estimate(len(s.draft.SelectedMetricIDs))
	return r
}

// Estimate returns the projected run time in minutes and cost in USD for n
// selected metrics.
func Estimate(n int) (minutes int, costUSD float64) {
	minutes = int(math.Round(float64(n) * 1.5))
	if minutes < 1 {
		minutes = 1
	}
	return minutes, math.Round(float64(n)*5) / 100
}

// MetricChoices ranks the catalog metrics against the selected dataset.
func (s *Session) MetricChoices() []compat.Ranked[domain.Metric] {
	return compat.RankMetrics(s.selectedDataset(), s.opts.Store.Metrics())
}

// ScenarioChoices ranks the catalog scenarios against the selected dataset.
func (s *Session) ScenarioChoices() []compat.Ranked[domain.Scenario] {
	return compat.RankScenarios(s.selectedDataset(), s.opts.Store.Scenarios())
}

func (s *Session) selectedDataset() *domain.Dataset {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.draft.SelectedDatasetID == nil {
		return nil
	}
	ds, ok := s.opts.Store.Dataset(*s.draft.SelectedDatasetID)
	if !ok {
		return nil
	}
	return &ds
}

// Submit turns the draft into an evaluation after the simulated latency. On
// failure the session stays on the review step and can be retried.
func (s *Session) Submit(ctx context.Context) (domain.Evaluation, error) {
	s.mu.Lock()
	if s.status != StatusActive {
		s.mu.Unlock()
		return domain.Evaluation{}, ErrNotActive
	}
	if s.step != StepReview {
		s.mu.Unlock()
		return domain.Evaluation{}, ErrNotAtReview
	}
	if !s.draft.Submittable() {
		s.mu.Unlock()
		return domain.Evaluation{}, ErrCannotSubmit
	}
	s.status = StatusSubmitting
	review := s.reviewLocked()
	draft := s.draftCopy()
	s.mu.Unlock()

	ev := domain.Evaluation{
		ID:               s.opts.NewID(),
		Name:             draft.Name,
		Description:      draft.Description,
		DatasetID:        *draft.SelectedDatasetID,
		MetricIDs:        draft.SelectedMetricIDs,
		EstimatedMinutes: review.EstimatedMinutes,
		EstimatedCostUSD: review.EstimatedCostUSD,
	}

	err := simulate.Sleep(ctx, s.opts.SubmitLatency)
	if err == nil && s.opts.Recorder != nil {
		ev.SubmittedAt = s.opts.Now().UTC().Format(time.RFC3339)
		err = s.opts.Recorder.RecordSubmission(ctx, ev)
	}
	s.mu.Lock()
	if err != nil {
		s.status = StatusActive
		s.mu.Unlock()
		return domain.Evaluation{}, fmt.Errorf("submit evaluation: %w", err)
	}
	if ev.SubmittedAt == "" {
		ev.SubmittedAt = s.opts.Now().UTC().Format(time.RFC3339)
	}
	s.status = StatusSubmitted
	s.mu.Unlock()

	s.opts.Counters.Submitted(ctx)
	s.opts.Logger.Info("wizard: evaluation submitted", "id", ev.ID, "dataset", ev.DatasetID, "metrics", len(ev.MetricIDs))
	if s.opts.OnComplete != nil {
		s.opts.OnComplete(ctx, ev)
	}
	return ev, nil
}

func (s *Session) draftCopy() domain.WizardDraft {
	d := s.draft
	d.SelectedMetricIDs = append([]string{}, s.draft.SelectedMetricIDs...)
	if s.draft.SelectedDatasetID != nil {
		id := *s.draft.SelectedDatasetID
		d.SelectedDatasetID = &id
	}
	return d
}
