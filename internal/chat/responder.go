package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"aeval/internal/domain"
	"aeval/internal/intent"
	"aeval/internal/recommend"
	"aeval/internal/simulate"
	"aeval/internal/telemetry"
	aevalsdk "aeval/sdk/go"
)

const (
	ClarifyMessage = "I can help with a few demo evaluation setups. Which one best matches your goal?\n\n" +
		"- RAG safety (hallucination/toxicity/refusal)\n" +
		"- RAG accuracy (context adherence/relevance)\n" +
		"- Code evaluation (python/coding)\n" +
		"- General chat quality"
	NoRecommendationMessage = "I couldn't generate a recommendation for that request. Try something like “Test my RAG agent for safety” or “Evaluate python coding ability”."
	ApologyMessage          = "Sorry, I encountered an error while generating the prototype recommendation. Please try again."
	suggestionSuffix        = "\n\nHere’s a suggested evaluation configuration:"
)

// Reply is what a responder produces for one user turn.
type Reply struct {
	Content        string                 `json:"content"`
	Recommendation *domain.Recommendation `json:"recommendation,omitempty"`
}

// Responder answers one user message. An error makes the session append the
// apology message instead.
type Responder interface {
	Respond(ctx context.Context, text string) (Reply, error)
}

// LocalResponder runs the keyword classifier and recommendation engine
// in-process, after the simulated inference latency.
type LocalResponder struct {
	Classifier intent.Classifier
	Engine     recommend.Engine
	Latency    time.Duration
	Counters   *telemetry.Counters
	Logger     *slog.Logger
}

func (r LocalResponder) Respond(ctx context.Context, text string) (Reply, error) {
	if err := simulate.Sleep(ctx, r.Latency); err != nil {
		return Reply{}, err
	}
	label := r.Classifier.Classify(text)
	r.Counters.Classified(ctx, string(label))
	if r.Logger != nil {
		r.Logger.Debug("chat: classified", "intent", label)
	}

	if err := simulate.Sleep(ctx, r.Latency); err != nil {
		return Reply{}, err
	}
	rec, ok := r.Engine.Recommend(label)
	if !ok {
		if label == domain.IntentUnknown {
			return Reply{Content: ClarifyMessage}, nil
		}
		return Reply{Content: NoRecommendationMessage}, nil
	}
	return SuggestionReply(rec), nil
}

// SuggestionReply wraps rec in the standard suggestion wording.
func SuggestionReply(rec *domain.Recommendation) Reply {
	return Reply{Content: rec.Reason + suggestionSuffix, Recommendation: rec}
}

// RemoteResponder delegates the whole turn to a remote chat endpoint.
type RemoteResponder struct {
	Client *aevalsdk.Client
}

func (r RemoteResponder) Respond(ctx context.Context, text string) (Reply, error) {
	if r.Client == nil {
		return Reply{}, fmt.Errorf("remote chat endpoint not configured")
	}
	resp, err := r.Client.Chat(ctx, text)
	if err != nil {
		return Reply{}, fmt.Errorf("remote chat: %w", err)
	}
	out := Reply{Content: resp.Content}
	if resp.Recommendation != nil {
		rec, err := fromWire(resp.Recommendation)
		if err != nil {
			return Reply{}, fmt.Errorf("remote chat: %w", err)
		}
		if len(rec.Metrics) == 0 {
			return Reply{}, fmt.Errorf("remote chat: recommendation without metrics")
		}
		out.Recommendation = rec
	}
	return out, nil
}

// fromWire converts the client type into the domain type. Both share the
// same JSON shape.
func fromWire(in *aevalsdk.Recommendation) (*domain.Recommendation, error) {
	data, err := json.Marshal(in)
	if err != nil {
		return nil, err
	}
	var rec domain.Recommendation
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode recommendation: %w", err)
	}
	for i := range rec.Metrics {
		rec.Metrics[i].Category = domain.NormalizeCategory(string(rec.Metrics[i].Category))
	}
	return &rec, nil
}
