// Package engine wires the catalog, the rule engines and the local state
// store into the operations the API, MCP server and CLI share.
package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"aeval/internal/chat"
	"aeval/internal/compat"
	"aeval/internal/config"
	"aeval/internal/domain"
	"aeval/internal/events"
	"aeval/internal/fixtures"
	"aeval/internal/intent"
	"aeval/internal/metadata"
	"aeval/internal/onboarding"
	"aeval/internal/recommend"
	"aeval/internal/repo"
	"aeval/internal/telemetry"
	"aeval/internal/wizard"
	aevalsdk "aeval/sdk/go"
)

type Engine struct {
	DB         *sql.DB
	Repo       repo.Repo
	Events     events.Writer
	Config     *config.Config
	Store      *fixtures.Store
	Classifier intent.Classifier
	Recommend  recommend.Engine
	Metadata   *metadata.Generator
	Counters   *telemetry.Counters
	Logger     *slog.Logger
	Now        func() time.Time
}

// New builds an engine over an open, migrated database. A nil store uses
// the embedded catalog.
func New(db *sql.DB, cfg *config.Config, store *fixtures.Store) (Engine, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	logger := slog.Default()
	if store == nil {
		store = fixtures.Embedded(logger)
	}
	policy, err := recommend.ParseUnknownPolicy(cfg.Recommend.UnknownIntent)
	if err != nil {
		return Engine{}, err
	}
	return Engine{
		DB:         db,
		Repo:       repo.Repo{DB: db},
		Events:     events.Writer{DB: db},
		Config:     cfg,
		Store:      store,
		Classifier: intent.New(nil),
		Recommend:  recommend.New(store, policy),
		Metadata: &metadata.Generator{
			Latency:     cfg.Simulation.Latency,
			ScanLatency: cfg.Simulation.ScanLatency,
			Logger:      logger,
		},
		Logger: logger,
		Now:    time.Now,
	}, nil
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) logger() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return slog.Default()
}

// WithClock returns a copy whose repo and event writer share now.
func (e Engine) WithClock(now func() time.Time) Engine {
	e.Now = now
	e.Repo.Now = now
	e.Events.Now = now
	return e
}

// Classify labels free text and counts the result.
func (e Engine) Classify(ctx context.Context, text string) domain.Intent {
	label := e.Classifier.Classify(text)
	e.Counters.Classified(ctx, string(label))
	return label
}

// Suggest classifies text and recommends a configuration for it.
func (e Engine) Suggest(ctx context.Context, text string) (domain.Intent, *domain.Recommendation, bool) {
	label := e.Classify(ctx, text)
	rec, ok := e.Recommend.Recommend(label)
	return label, rec, ok
}

// Compatibility is the ranked view of the catalog for one dataset.
type Compatibility struct {
	Dataset   domain.Dataset                   `json:"dataset"`
	Metrics   []compat.Ranked[domain.Metric]   `json:"metrics"`
	Scenarios []compat.Ranked[domain.Scenario] `json:"scenarios"`
}

func (e Engine) Compatibility(datasetID string) (Compatibility, error) {
	ds, ok := e.Store.Dataset(datasetID)
	if !ok {
		return Compatibility{}, fmt.Errorf("dataset %s: %w", datasetID, fixtures.ErrNotFound)
	}
	return Compatibility{
		Dataset:   ds,
		Metrics:   compat.RankMetrics(&ds, e.Store.Metrics()),
		Scenarios: compat.RankScenarios(&ds, e.Store.Scenarios()),
	}, nil
}

func (e Engine) Onboarding() onboarding.Store {
	return onboarding.Store{Repo: e.Repo, Events: e.Events}
}

// Profile returns the onboarding answers, nil when the workspace has not
// been onboarded.
func (e Engine) Profile(ctx context.Context) (*domain.OnboardingAnswers, error) {
	a, _, err := e.Onboarding().Load(ctx)
	return a, err
}

// LocalResponder answers chat turns in-process.
func (e Engine) LocalResponder() chat.LocalResponder {
	return chat.LocalResponder{
		Classifier: e.Classifier,
		Engine:     e.Recommend,
		Latency:    e.Config.Simulation.Latency,
		Counters:   e.Counters,
		Logger:     e.logger(),
	}
}

// Responder returns the remote responder when a chat endpoint is configured
// and the local one otherwise.
func (e Engine) Responder() chat.Responder {
	if e.Config.Chat.RemoteURL == "" {
		return e.LocalResponder()
	}
	client := aevalsdk.New(e.Config.Chat.RemoteURL)
	client.Timeout = e.Config.Chat.Timeout
	return chat.RemoteResponder{Client: client}
}

// NewChat starts a chat session. Accepted recommendations are recorded in
// the event log.
func (e Engine) NewChat(profile *domain.OnboardingAnswers, responder chat.Responder) *chat.Session {
	if responder == nil {
		responder = e.Responder()
	}
	return chat.NewSession(chat.Options{
		Responder: responder,
		Engine:    e.Recommend,
		Profile:   profile,
		Counters:  e.Counters,
		Logger:    e.logger(),
		OnAccept: func(ctx context.Context, rec domain.Recommendation) {
			if err := e.RecordAcceptance(ctx, rec); err != nil {
				e.logger().Warn("chat: record acceptance", "error", err)
			}
		},
		Now: e.now,
	})
}

// NewWizard starts a wizard session that records submissions through e.
func (e Engine) NewWizard(onComplete func(context.Context, domain.Evaluation)) *wizard.Session {
	return wizard.New(wizard.Options{
		Store:         e.Store,
		SubmitLatency: e.Config.Simulation.SubmitLatency,
		Recorder:      e,
		OnComplete:    onComplete,
		Counters:      e.Counters,
		Logger:        e.logger(),
		Now:           e.now,
		NewID:         uuid.NewString,
	})
}

// RecordSubmission stores a submitted evaluation and its event atomically.
func (e Engine) RecordSubmission(ctx context.Context, ev domain.Evaluation) error {
	if ev.ID == "" {
		return errors.New("evaluation id is required")
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertEvaluationTx(ctx, tx, ev); err != nil {
		return fmt.Errorf("insert evaluation: %w", err)
	}
	if err := e.Events.Append(ctx, tx, events.TypeEvaluationSubmitted, "evaluation", ev.ID, events.EventPayload{
		"name":       ev.Name,
		"dataset_id": ev.DatasetID,
		"metric_ids": ev.MetricIDs,
	}); err != nil {
		return err
	}
	return tx.Commit()
}

// RecordAcceptance logs an accepted chat recommendation.
func (e Engine) RecordAcceptance(ctx context.Context, rec domain.Recommendation) error {
	return e.Events.Record(ctx, events.TypeChatAccepted, "dataset", rec.Dataset.ID, events.EventPayload{
		"scenario_id": rec.Scenario.ID,
		"agent_id":    rec.Agent.ID,
		"metric_ids":  rec.MetricIDs(),
	})
}

func (e Engine) Evaluation(ctx context.Context, id string) (domain.Evaluation, error) {
	return e.Repo.GetEvaluation(ctx, id)
}

func (e Engine) Evaluations(ctx context.Context, limit int) ([]domain.Evaluation, error) {
	return e.Repo.ListEvaluations(ctx, limit)
}

func (e Engine) LatestEvents(ctx context.Context, limit int, f repo.EventFilters) ([]domain.Event, error) {
	return e.Repo.LatestEvents(ctx, limit, f)
}

// RegenerateMetadata proposes metadata for a catalog dataset. An empty field
// regenerates every field.
func (e Engine) RegenerateMetadata(ctx context.Context, datasetID, field string) ([]metadata.Suggestion, error) {
	ds, ok := e.Store.Dataset(datasetID)
	if !ok {
		return nil, fmt.Errorf("dataset %s: %w", datasetID, fixtures.ErrNotFound)
	}
	if field == "" {
		return e.Metadata.RegenerateAll(ctx, ds)
	}
	f, err := metadata.ParseField(field)
	if err != nil {
		return nil, err
	}
	s, err := e.Metadata.Regenerate(ctx, ds, f)
	if err != nil {
		return nil, err
	}
	return []metadata.Suggestion{s}, nil
}

// EditMetadata opens an editor seeded with a catalog dataset.
func (e Engine) EditMetadata(datasetID string) (*metadata.Editor, domain.Dataset, error) {
	ds, ok := e.Store.Dataset(datasetID)
	if !ok {
		return nil, domain.Dataset{}, fmt.Errorf("dataset %s: %w", datasetID, fixtures.ErrNotFound)
	}
	return metadata.NewEditor(ds), ds, nil
}

// SaveMetadata logs the edited metadata of ds and returns the edited dataset.
// The catalog itself is read-only; the event log is the record of the edit.
func (e Engine) SaveMetadata(ctx context.Context, ds domain.Dataset, ed *metadata.Editor) (domain.Dataset, error) {
	if err := ed.Validate(); err != nil {
		return domain.Dataset{}, err
	}
	edited := ed.Dataset(ds)
	if err := e.Events.Record(ctx, events.TypeMetadataSaved, "dataset", ds.ID, events.EventPayload{
		"name":        edited.Name,
		"description": edited.Description,
		"tags":        edited.Tags,
		"modified":    ed.Modified(),
	}); err != nil {
		return domain.Dataset{}, err
	}
	e.logger().Info("dataset metadata saved", "dataset_id", ds.ID, "modified", ed.Modified())
	return edited, nil
}
