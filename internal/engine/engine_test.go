package engine_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aeval/internal/chat"
	"aeval/internal/config"
	"aeval/internal/db"
	"aeval/internal/domain"
	"aeval/internal/engine"
	"aeval/internal/events"
	"aeval/internal/fixtures"
	"aeval/internal/metadata"
	"aeval/internal/migrate"
	"aeval/internal/repo"
	"aeval/internal/wizard"
)

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	ctx := context.Background()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, migrate.Migrate(ctx, conn))

	cfg := config.Default()
	cfg.Simulation.Latency = 0
	cfg.Simulation.SubmitLatency = 0
	cfg.Simulation.ScanLatency = 0
	eng, err := engine.New(conn, cfg, nil)
	require.NoError(t, err)
	eng = eng.WithClock(func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) })
	return testEnv{Engine: eng, Ctx: ctx}
}

func TestNewRejectsBadPolicy(t *testing.T) {
	cfg := config.Default()
	cfg.Recommend.UnknownIntent = "guess"
	_, err := engine.New(nil, cfg, nil)
	assert.Error(t, err)
}

func TestSuggest(t *testing.T) {
	env := newTestEnv(t)
	label, rec, ok := env.Engine.Suggest(env.Ctx, "review my python code")
	assert.Equal(t, domain.IntentCodeEval, label)
	require.True(t, ok)
	assert.Equal(t, "ds-002", rec.Dataset.ID)

	label, rec, ok = env.Engine.Suggest(env.Ctx, "good morning")
	assert.Equal(t, domain.IntentUnknown, label)
	assert.False(t, ok)
	assert.Nil(t, rec)
}

func TestCompatibility(t *testing.T) {
	env := newTestEnv(t)
	c, err := env.Engine.Compatibility("ds-002")
	require.NoError(t, err)
	var ids []string
	for _, r := range c.Scenarios {
		ids = append(ids, r.Item.ID)
	}
	assert.Equal(t, []string{"code", "chatbot", "rag", "safety"}, ids)
	assert.True(t, c.Scenarios[0].Compatible)

	_, err = env.Engine.Compatibility("ds-404")
	assert.ErrorIs(t, err, fixtures.ErrNotFound)
}

func TestWizardSubmissionIsRecorded(t *testing.T) {
	env := newTestEnv(t)
	var done []domain.Evaluation
	w := env.Engine.NewWizard(func(_ context.Context, ev domain.Evaluation) { done = append(done, ev) })
	require.NoError(t, w.SetBasicInfo("Code check", ""))
	_, err := w.Next()
	require.NoError(t, err)
	require.NoError(t, w.SelectDataset("ds-002"))
	_, err = w.Next()
	require.NoError(t, err)
	require.NoError(t, w.ApplyScenario("code"))
	_, err = w.Next()
	require.NoError(t, err)

	ev, err := w.Submit(env.Ctx)
	require.NoError(t, err)
	assert.Equal(t, wizard.StatusSubmitted, w.Status())
	require.Len(t, done, 1)

	stored, err := env.Engine.Evaluation(env.Ctx, ev.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"met-001", "met-007", "met-016"}, stored.MetricIDs)
	assert.Equal(t, 5, stored.EstimatedMinutes)
	assert.Equal(t, "2024-01-01T00:00:00Z", stored.SubmittedAt)

	evts, err := env.Engine.LatestEvents(env.Ctx, 10, repo.EventFilters{Type: events.TypeEvaluationSubmitted})
	require.NoError(t, err)
	require.Len(t, evts, 1)
	assert.Equal(t, ev.ID, evts[0].EntityID)

	list, err := env.Engine.Evaluations(env.Ctx, 10)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestDuplicateSubmissionRollsBack(t *testing.T) {
	env := newTestEnv(t)
	ev := domain.Evaluation{ID: "ev-1", Name: "n", DatasetID: "ds-001", MetricIDs: []string{"met-001"}, SubmittedAt: "2024-01-01T00:00:00Z"}
	require.NoError(t, env.Engine.RecordSubmission(env.Ctx, ev))
	require.Error(t, env.Engine.RecordSubmission(env.Ctx, ev))

	evts, err := env.Engine.LatestEvents(env.Ctx, 10, repo.EventFilters{Type: events.TypeEvaluationSubmitted})
	require.NoError(t, err)
	assert.Len(t, evts, 1, "failed insert must not leave an event behind")
}

func TestChatAcceptanceIsRecorded(t *testing.T) {
	env := newTestEnv(t)
	s := env.Engine.NewChat(nil, nil)
	reply, err := s.Send(env.Ctx, "rag accuracy please")
	require.NoError(t, err)
	require.NotNil(t, reply.Recommendation)
	_, err = s.Accept(env.Ctx, reply.ID)
	require.NoError(t, err)

	evts, err := env.Engine.LatestEvents(env.Ctx, 10, repo.EventFilters{Type: events.TypeChatAccepted})
	require.NoError(t, err)
	require.Len(t, evts, 1)
	assert.Equal(t, "ds-001", evts[0].EntityID)
}

func TestProfileDrivesGreeting(t *testing.T) {
	env := newTestEnv(t)
	p, err := env.Engine.Profile(env.Ctx)
	require.NoError(t, err)
	assert.Nil(t, p)

	require.NoError(t, env.Engine.Onboarding().Complete(env.Ctx, domain.OnboardingAnswers{Role: "QA", Goal: "safety", AgentName: "Orbit"}))
	p, err = env.Engine.Profile(env.Ctx)
	require.NoError(t, err)
	require.NotNil(t, p)
	s := env.Engine.NewChat(p, nil)
	assert.Contains(t, s.Messages()[0].Content, "**Orbit**")
}

func TestResponderSelection(t *testing.T) {
	env := newTestEnv(t)
	_, local := env.Engine.Responder().(chat.LocalResponder)
	assert.True(t, local)

	env.Engine.Config.Chat.RemoteURL = "http://127.0.0.1:1"
	r, remote := env.Engine.Responder().(chat.RemoteResponder)
	require.True(t, remote)
	assert.Equal(t, "http://127.0.0.1:1", r.Client.BaseURL)
}

func TestRegenerateMetadata(t *testing.T) {
	env := newTestEnv(t)
	all, err := env.Engine.RegenerateMetadata(env.Ctx, "ds-003", "")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	one, err := env.Engine.RegenerateMetadata(env.Ctx, "ds-003", "tags")
	require.NoError(t, err)
	require.Len(t, one, 1)
	assert.Contains(t, one[0].Tags, "safety")

	_, err = env.Engine.RegenerateMetadata(env.Ctx, "ds-404", "")
	assert.True(t, errors.Is(err, fixtures.ErrNotFound))
}

func TestSaveMetadata(t *testing.T) {
	env := newTestEnv(t)
	ed, ds, err := env.Engine.EditMetadata("ds-003")
	require.NoError(t, err)
	suggestions, err := env.Engine.RegenerateMetadata(env.Ctx, ds.ID, "description")
	require.NoError(t, err)
	ed.Apply(suggestions[0])
	ed.AddTag("jailbreak")
	ed.RemoveTag("red-teaming")

	edited, err := env.Engine.SaveMetadata(env.Ctx, ds, ed)
	require.NoError(t, err)
	assert.Equal(t, "ds-003", edited.ID)
	assert.Equal(t, suggestions[0].Value, edited.Description)
	assert.Equal(t, []string{"safety", "adversarial", "jailbreak"}, edited.Tags)

	again, ok := env.Engine.Store.Dataset("ds-003")
	require.True(t, ok)
	assert.Equal(t, []string{"safety", "adversarial", "red-teaming"}, again.Tags, "catalog is unchanged")

	evts, err := env.Engine.LatestEvents(env.Ctx, 10, repo.EventFilters{Type: events.TypeMetadataSaved})
	require.NoError(t, err)
	require.Len(t, evts, 1)
	assert.Equal(t, "ds-003", evts[0].EntityID)

	ed.SetName("")
	_, err = env.Engine.SaveMetadata(env.Ctx, ds, ed)
	assert.ErrorIs(t, err, metadata.ErrNameRequired)

	_, _, err = env.Engine.EditMetadata("ds-404")
	assert.ErrorIs(t, err, fixtures.ErrNotFound)
}
