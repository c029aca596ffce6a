package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aeval/internal/domain"
	"aeval/internal/fixtures"
	"aeval/internal/intent"
	"aeval/internal/recommend"
	aevalsdk "aeval/sdk/go"
)

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func localSession(t *testing.T, policy recommend.UnknownPolicy) (*Session, recommend.Engine) {
	t.Helper()
	eng := recommend.New(fixtures.Embedded(quiet()), policy)
	return NewSession(Options{
		Responder: LocalResponder{Classifier: intent.New(nil), Engine: eng},
		Engine:    eng,
		Logger:    quiet(),
	}), eng
}

type responderFunc func(ctx context.Context, text string) (Reply, error)

func (f responderFunc) Respond(ctx context.Context, text string) (Reply, error) { return f(ctx, text) }

func TestGreeting(t *testing.T) {
	s, _ := localSession(t, recommend.UnknownClarify)
	msgs := s.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, domain.RoleSystem, msgs[0].Role)
	assert.Contains(t, msgs[0].Content, "your AI system")
	assert.Equal(t, StateIdle, s.State())

	personal := NewSession(Options{Profile: &domain.OnboardingAnswers{AgentName: "SupportBot"}, Logger: quiet()})
	assert.Contains(t, personal.Messages()[0].Content, "**SupportBot**")
}

func TestSendProducesRecommendation(t *testing.T) {
	s, _ := localSession(t, recommend.UnknownClarify)
	reply, err := s.Send(context.Background(), "Test my RAG agent for safety")
	require.NoError(t, err)
	require.NotNil(t, reply.Recommendation)
	assert.ElementsMatch(t, []string{"met-004", "met-005", "met-017"}, reply.Recommendation.MetricIDs())
	assert.Equal(t, "safety", reply.Recommendation.Scenario.ID)
	assert.Contains(t, reply.Content, "Here’s a suggested evaluation configuration:")

	msgs := s.Messages()
	require.Len(t, msgs, 3)
	assert.Equal(t, domain.RoleUser, msgs[1].Role)
	assert.Equal(t, "Test my RAG agent for safety", msgs[1].Content)
	assert.Equal(t, reply.ID, msgs[2].ID)
	assert.Equal(t, StateIdle, s.State())
}

func TestUnknownIntentAsksForClarification(t *testing.T) {
	s, _ := localSession(t, recommend.UnknownClarify)
	reply, err := s.Send(context.Background(), "hello there")
	require.NoError(t, err)
	assert.Nil(t, reply.Recommendation)
	assert.Equal(t, ClarifyMessage, reply.Content)

	fb, _ := localSession(t, recommend.UnknownFallback)
	reply, err = fb.Send(context.Background(), "hello there")
	require.NoError(t, err)
	require.NotNil(t, reply.Recommendation)
	assert.Equal(t, []string{"met-001", "met-002"}, reply.Recommendation.MetricIDs())
}

func TestEmptyCatalogYieldsNoRecommendationMessage(t *testing.T) {
	store, err := fixtures.New(nil, nil, nil, nil)
	require.NoError(t, err)
	eng := recommend.New(store, recommend.UnknownClarify)
	s := NewSession(Options{Responder: LocalResponder{Classifier: intent.New(nil), Engine: eng}, Engine: eng, Logger: quiet()})
	reply, err := s.Send(context.Background(), "code review")
	require.NoError(t, err)
	assert.Equal(t, NoRecommendationMessage, reply.Content)
}

func TestEmptyMessageRejected(t *testing.T) {
	s, _ := localSession(t, recommend.UnknownClarify)
	_, err := s.Send(context.Background(), "   ")
	assert.ErrorIs(t, err, ErrEmptyMessage)
	assert.Len(t, s.Messages(), 1)
}

func TestFailureAppendsApologyAndReturnsToIdle(t *testing.T) {
	for name, r := range map[string]Responder{
		"error": responderFunc(func(context.Context, string) (Reply, error) { return Reply{}, errors.New("boom") }),
		"panic": responderFunc(func(context.Context, string) (Reply, error) { panic("kaboom") }),
		"nil":   nil,
	} {
		t.Run(name, func(t *testing.T) {
			s := NewSession(Options{Responder: r, Logger: quiet()})
			reply, err := s.Send(context.Background(), "rag")
			require.NoError(t, err)
			assert.Equal(t, ApologyMessage, reply.Content)
			assert.Equal(t, StateIdle, s.State())
			assert.Len(t, s.Messages(), 3)
		})
	}
}

func TestSingleTurnInFlight(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	s := NewSession(Options{
		Logger: quiet(),
		Responder: responderFunc(func(ctx context.Context, text string) (Reply, error) {
			close(started)
			<-release
			return Reply{Content: "done"}, nil
		}),
	})

	var wg sync.WaitGroup
	wg.Add(1)
	var first domain.ChatMessage
	var firstErr error
	go func() {
		defer wg.Done()
		first, firstErr = s.Send(context.Background(), "one")
	}()
	<-started

	assert.Equal(t, StateAwaiting, s.State())
	_, err := s.Send(context.Background(), "two")
	assert.ErrorIs(t, err, ErrTurnInFlight)
	assert.Len(t, s.Messages(), 2, "rejected send must not touch the log")

	close(release)
	wg.Wait()
	require.NoError(t, firstErr)
	assert.Equal(t, "done", first.Content)
	assert.Equal(t, StateIdle, s.State())

	_, err = s.Send(context.Background(), "three")
	assert.NoError(t, err)
}

func TestResetDropsStaleReply(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	s := NewSession(Options{
		Logger: quiet(),
		Responder: responderFunc(func(ctx context.Context, text string) (Reply, error) {
			close(started)
			<-release
			return Reply{Content: "late"}, nil
		}),
	})
	errCh := make(chan error, 1)
	go func() {
		_, err := s.Send(context.Background(), "slow")
		errCh <- err
	}()
	<-started
	s.Reset()
	close(release)

	assert.ErrorIs(t, <-errCh, ErrSessionReset)
	msgs := s.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, StateIdle, s.State())
}

func TestAcceptAndUpdateMetrics(t *testing.T) {
	var accepted []string
	eng := recommend.New(fixtures.Embedded(quiet()), recommend.UnknownClarify)
	s := NewSession(Options{
		Responder: LocalResponder{Classifier: intent.New(nil), Engine: eng},
		Engine:    eng,
		Logger:    quiet(),
		OnAccept:  func(_ context.Context, rec domain.Recommendation) { accepted = append(accepted, rec.Dataset.ID) },
	})
	ctx := context.Background()
	reply, err := s.Send(ctx, "Evaluate python coding ability")
	require.NoError(t, err)
	require.NotNil(t, reply.Recommendation)

	ack, err := s.Accept(ctx, reply.ID)
	require.NoError(t, err)
	assert.Equal(t, "Great! I've configured the evaluation with **HumanEval** and **3 metrics**. You're ready to run!", ack.Content)
	assert.Equal(t, []string{"ds-002"}, accepted)

	upd, err := s.UpdateMetrics(reply.ID, []string{"met-007", "met-008"})
	require.NoError(t, err)
	assert.Equal(t, "I've updated the configuration. Now using **2 metrics** (Added: Latency).", upd.Content)
	require.NotNil(t, upd.Recommendation)
	assert.Equal(t, []string{"met-007", "met-008"}, upd.Recommendation.MetricIDs())
	assert.Len(t, reply.Recommendation.Metrics, 3, "original recommendation unchanged")

	upd, err = s.UpdateMetrics(reply.ID, []string{"met-001"})
	require.NoError(t, err)
	assert.Contains(t, upd.Content, "(Added: None)")

	_, err = s.UpdateMetrics(reply.ID, nil)
	assert.ErrorIs(t, err, recommend.ErrEmptyMetrics)
	_, err = s.Accept(ctx, ack.ID)
	assert.ErrorIs(t, err, ErrNoRecommendation)
	_, err = s.Accept(ctx, "missing")
	assert.ErrorIs(t, err, ErrMessageNotFound)
}

func TestLogIsAppendOnly(t *testing.T) {
	s, _ := localSession(t, recommend.UnknownClarify)
	ctx := context.Background()
	var ids []string
	for _, in := range []string{"rag", "python", "chat", "???"} {
		_, err := s.Send(ctx, in)
		require.NoError(t, err)
		msgs := s.Messages()
		for i, id := range ids {
			assert.Equal(t, id, msgs[i].ID, "prefix must be stable")
		}
		ids = ids[:0]
		for _, m := range msgs {
			ids = append(ids, m.ID)
		}
	}
	assert.Len(t, ids, 9)
}

func TestAttachedRecommendationCannotBeMutated(t *testing.T) {
	s, _ := localSession(t, recommend.UnknownClarify)
	reply, err := s.Send(context.Background(), "Test my RAG agent for safety")
	require.NoError(t, err)
	require.NotNil(t, reply.Recommendation)
	want := reply.Recommendation.MetricIDs()
	wantTag := reply.Recommendation.Dataset.Tags[0]

	reply.Recommendation.Metrics = nil
	snap := s.Messages()
	snap[2].Recommendation.Metrics[0].ID = "met-999"
	snap[2].Recommendation.Dataset.Tags[0] = "mutated"

	again := s.Messages()[2].Recommendation
	assert.Equal(t, want, again.MetricIDs())
	assert.Equal(t, wantTag, again.Dataset.Tags[0])
}

func TestLocalResponderHonoursCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	eng := recommend.New(fixtures.Embedded(quiet()), recommend.UnknownClarify)
	_, err := LocalResponder{Classifier: intent.New(nil), Engine: eng, Latency: time.Hour}.Respond(ctx, "rag")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRemoteResponder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"content":"remote says hi","recommendation":{"dataset":{"id":"ds-001","name":"Customer Support QA","tags":["qa"]},"metrics":[{"id":"met-004","name":"Hallucination Rate","category":"safety","cost":"High"}],"agent":{"id":"ag-001"},"scenario":{"id":"safety"},"reason":"r"}}`)
	}))
	defer srv.Close()

	s := NewSession(Options{Responder: RemoteResponder{Client: aevalsdk.New(srv.URL)}, Logger: quiet()})
	reply, err := s.Send(context.Background(), "anything")
	require.NoError(t, err)
	assert.Equal(t, "remote says hi", reply.Content)
	require.NotNil(t, reply.Recommendation)
	assert.Equal(t, domain.CategorySafety, reply.Recommendation.Metrics[0].Category)
}

func TestRemoteFailureBecomesApology(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	s := NewSession(Options{Responder: RemoteResponder{Client: aevalsdk.New(srv.URL)}, Logger: quiet()})
	reply, err := s.Send(context.Background(), "anything")
	require.NoError(t, err)
	assert.Equal(t, ApologyMessage, reply.Content)

	_, err = RemoteResponder{}.Respond(context.Background(), "x")
	assert.Error(t, err)
}
