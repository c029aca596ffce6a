// Package chat implements the conversational wizard: an append-only message
// log driven by a two-state machine that allows one in-flight turn at a time.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"aeval/internal/domain"
	"aeval/internal/recommend"
	"aeval/internal/telemetry"
)

type State string

const (
	StateIdle     State = "idle"
	StateAwaiting State = "awaiting_response"
)

var (
	ErrEmptyMessage     = errors.New("message is empty")
	ErrTurnInFlight     = errors.New("a response is already pending")
	ErrMessageNotFound  = errors.New("message not found")
	ErrNoRecommendation = errors.New("message carries no recommendation")
	// ErrSessionReset is returned by Send when the session was reset while
	// the turn was in flight; the late reply is dropped.
	ErrSessionReset = errors.New("session was reset during the turn")
)

// Options configures a Session.
type Options struct {
	Responder Responder
	// Engine resolves metric ids for UpdateMetrics.
	Engine recommend.Engine
	// Profile personalises the greeting; nil means not onboarded.
	Profile  *domain.OnboardingAnswers
	Counters *telemetry.Counters
	Logger   *slog.Logger
	// OnAccept runs after a recommendation is accepted.
	OnAccept func(ctx context.Context, rec domain.Recommendation)
	Now      func() time.Time
	NewID    func() string
}

// Session is safe for concurrent use.
type Session struct {
	opts Options

	mu       sync.Mutex
	state    State
	epoch    uint64
	messages []domain.ChatMessage
}

func NewSession(opts Options) *Session {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	s := &Session{opts: opts, state: StateIdle}
	s.messages = []domain.ChatMessage{s.system(Greeting(opts.Profile), nil)}
	return s
}

// Greeting is the first system message of every session.
func Greeting(profile *domain.OnboardingAnswers) string {
	target := "your AI system"
	if profile != nil && strings.TrimSpace(profile.AgentName) != "" {
		target = "**" + strings.TrimSpace(profile.AgentName) + "**"
	}
	return "Hello! I can help you configure an evaluation for " + target +
		". What would you like to test today? (e.g., 'Test my RAG agent for safety' or 'Evaluate python coding ability')"
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Messages returns a deep copy of the log in append order.
func (s *Session) Messages() []domain.ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.ChatMessage, len(s.messages))
	for i, m := range s.messages {
		out[i] = m.Clone()
	}
	return out
}

// Send appends the user message, runs one turn and appends the system reply.
// It returns the reply message. A second Send while a turn is pending fails
// with ErrTurnInFlight and leaves the log untouched. Responder failures are
// turned into the apology message, never into an error.
func (s *Session) Send(ctx context.Context, text string) (domain.ChatMessage, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return domain.ChatMessage{}, ErrEmptyMessage
	}

	s.mu.Lock()
	if s.state == StateAwaiting {
		s.mu.Unlock()
		return domain.ChatMessage{}, ErrTurnInFlight
	}
	s.messages = append(s.messages, s.user(text))
	s.state = StateAwaiting
	epoch := s.epoch
	s.mu.Unlock()

	reply, err := s.respond(ctx, text)
	outcome := "ok"
	switch {
	case err != nil:
		s.opts.Logger.Warn("chat: turn failed", "error", err)
		reply = Reply{Content: ApologyMessage}
		outcome = "error"
	case reply.Recommendation == nil:
		outcome = "no_recommendation"
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.epoch != epoch {
		s.opts.Logger.Debug("chat: dropping reply for reset session")
		return domain.ChatMessage{}, ErrSessionReset
	}
	msg := s.system(reply.Content, reply.Recommendation)
	s.messages = append(s.messages, msg)
	s.state = StateIdle
	s.opts.Counters.ChatTurn(ctx, outcome)
	return msg.Clone(), nil
}

// respond shields the session from responder panics.
func (s *Session) respond(ctx context.Context, text string) (reply Reply, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("responder panic: %v", r)
		}
	}()
	if s.opts.Responder == nil {
		return Reply{}, errors.New("no responder configured")
	}
	return s.opts.Responder.Respond(ctx, text)
}

// Accept confirms the recommendation attached to messageID.
func (s *Session) Accept(ctx context.Context, messageID string) (domain.ChatMessage, error) {
	s.mu.Lock()
	rec, err := s.recommendationLocked(messageID)
	if err != nil {
		s.mu.Unlock()
		return domain.ChatMessage{}, err
	}
	content := fmt.Sprintf("Great! I've configured the evaluation with **%s** and **%d metrics**. You're ready to run!", rec.Dataset.Name, len(rec.Metrics))
	msg := s.system(content, nil)
	s.messages = append(s.messages, msg)
	accepted := rec.Clone()
	s.mu.Unlock()

	if s.opts.OnAccept != nil {
		s.opts.OnAccept(ctx, accepted)
	}
	return msg, nil
}

// UpdateMetrics replaces the metrics of the recommendation on messageID and
// appends a new message carrying the modified copy.
func (s *Session) UpdateMetrics(messageID string, metricIDs []string) (domain.ChatMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, err := s.recommendationLocked(messageID)
	if err != nil {
		return domain.ChatMessage{}, err
	}
	next, err := s.opts.Engine.Modify(*rec, metricIDs)
	if err != nil {
		return domain.ChatMessage{}, err
	}
	added := "None"
	if names := recommend.Added(*rec, next); len(names) > 0 {
		added = strings.Join(names, ", ")
	}
	content := fmt.Sprintf("I've updated the configuration. Now using **%d metrics** (Added: %s).", len(next.Metrics), added)
	msg := s.system(content, &next)
	s.messages = append(s.messages, msg)
	return msg.Clone(), nil
}

// Reset clears the log back to the greeting. A turn in flight completes but
// its reply is discarded.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.epoch++
	s.state = StateIdle
	s.messages = []domain.ChatMessage{s.system(Greeting(s.opts.Profile), nil)}
}

func (s *Session) recommendationLocked(messageID string) (*domain.Recommendation, error) {
	for i := range s.messages {
		if s.messages[i].ID != messageID {
			continue
		}
		if s.messages[i].Recommendation == nil {
			return nil, ErrNoRecommendation
		}
		return s.messages[i].Recommendation, nil
	}
	return nil, ErrMessageNotFound
}

func (s *Session) user(text string) domain.ChatMessage {
	return domain.ChatMessage{ID: s.opts.NewID(), Role: domain.RoleUser, Content: text, Timestamp: s.opts.Now().UnixMilli()}
}

// system builds a system message owning its own copy of rec.
func (s *Session) system(text string, rec *domain.Recommendation) domain.ChatMessage {
	msg := domain.ChatMessage{ID: s.opts.NewID(), Role: domain.RoleSystem, Content: text, Timestamp: s.opts.Now().UnixMilli(), Recommendation: rec}
	return msg.Clone()
}
