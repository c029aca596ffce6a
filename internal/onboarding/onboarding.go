// Package onboarding runs the first-run questionnaire and persists its
// answers in the local state store.
package onboarding

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"aeval/internal/domain"
	"aeval/internal/events"
	"aeval/internal/repo"
)

const (
	KeyOnboarded   = "aeval_onboarded"
	KeyUserContext = "aeval_user_context"
)

var (
	ErrAnswerRequired = errors.New("an answer is required to continue")
	ErrIncomplete     = errors.New("onboarding has unanswered questions")
)

// ErrSkipped is returned by a Prompt the user walked away from.
var ErrSkipped = errors.New("onboarding skipped")

type Question int

const (
	QuestionRole Question = iota
	QuestionGoal
	QuestionAgentName
	questionCount
)

var prompts = [...]string{
	"What is your role?",
	"What is your primary evaluation goal?",
	"What's the name of the agent you're testing?",
}

var placeholders = [...]string{
	"e.g. ML Engineer, Product Manager",
	"e.g. Reduce hallucinations, Improve code quality",
	"e.g. SupportBot v2",
}

func (q Question) Prompt() string {
	if q < 0 || q >= questionCount {
		return ""
	}
	return prompts[q]
}

func (q Question) Placeholder() string {
	if q < 0 || q >= questionCount {
		return ""
	}
	return placeholders[q]
}

// Flow collects the three answers in order. Each question needs a
// non-empty answer before the next one is asked.
type Flow struct {
	current Question
	answers domain.OnboardingAnswers
}

// Current returns the question being asked; Done reports whether all three
// were answered.
func (f *Flow) Current() Question { return f.current }

func (f *Flow) Done() bool { return f.current >= questionCount }

func (f *Flow) Answers() domain.OnboardingAnswers { return f.answers }

// Answer records the answer to the current question and advances.
func (f *Flow) Answer(value string) error {
	value = strings.TrimSpace(value)
	if f.Done() {
		return nil
	}
	if value == "" {
		return fmt.Errorf("%w: %s", ErrAnswerRequired, f.current.Prompt())
	}
	switch f.current {
	case QuestionRole:
		f.answers.Role = value
	case QuestionGoal:
		f.answers.Goal = value
	case QuestionAgentName:
		f.answers.AgentName = value
	}
	f.current++
	return nil
}

// Validate checks a complete set of answers, as posted in one request.
func Validate(a domain.OnboardingAnswers) error {
	var f Flow
	for _, v := range []string{a.Role, a.Goal, a.AgentName} {
		if err := f.Answer(v); err != nil {
			return err
		}
	}
	return nil
}

// Store reads and writes the onboarding keys.
type Store struct {
	Repo   repo.Repo
	Events events.Writer
}

// Complete persists the answers, marks the workspace as onboarded and
// records an event, all in one transaction.
func (s Store) Complete(ctx context.Context, a domain.OnboardingAnswers) error {
	a = trimmed(a)
	if err := Validate(a); err != nil {
		return err
	}
	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("marshal onboarding answers: %w", err)
	}
	tx, err := s.Repo.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := s.Repo.SetValueTx(ctx, tx, KeyOnboarded, "true"); err != nil {
		return fmt.Errorf("save onboarded flag: %w", err)
	}
	if err := s.Repo.SetValueTx(ctx, tx, KeyUserContext, string(data)); err != nil {
		return fmt.Errorf("save user context: %w", err)
	}
	if err := s.Events.Append(ctx, tx, events.TypeOnboardingCompleted, "workspace", "", events.EventPayload{
		"role":  a.Role,
		"goal":  a.Goal,
		"agent": a.AgentName,
	}); err != nil {
		return err
	}
	return tx.Commit()
}

// Load returns the stored answers and whether onboarding has completed. A
// flag without a readable context yields (nil, true, nil).
func (s Store) Load(ctx context.Context) (*domain.OnboardingAnswers, bool, error) {
	flag, err := s.Repo.GetValue(ctx, KeyOnboarded)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if flag != "true" {
		return nil, false, nil
	}
	raw, err := s.Repo.GetValue(ctx, KeyUserContext)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, true, nil
	}
	if err != nil {
		return nil, true, err
	}
	var a domain.OnboardingAnswers
	if err := json.Unmarshal([]byte(raw), &a); err != nil {
		return nil, true, nil
	}
	return &a, true, nil
}

// Prompt collects answers from the user.
type Prompt func() (domain.OnboardingAnswers, error)

// Ensure returns the saved profile. When the workspace has not been onboarded
// and prompt is non-nil, it asks prompt and completes onboarding with the
// answers. A prompt returning ErrSkipped leaves the workspace untouched.
func (s Store) Ensure(ctx context.Context, prompt Prompt) (*domain.OnboardingAnswers, error) {
	profile, done, err := s.Load(ctx)
	if err != nil {
		return nil, err
	}
	if done || prompt == nil {
		return profile, nil
	}
	answers, err := prompt()
	if errors.Is(err, ErrSkipped) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := s.Complete(ctx, answers); err != nil {
		return nil, err
	}
	answers = trimmed(answers)
	return &answers, nil
}

// Reset forgets the onboarding state so the questionnaire runs again.
func (s Store) Reset(ctx context.Context) error {
	for _, k := range []string{KeyOnboarded, KeyUserContext} {
		if err := s.Repo.DeleteValue(ctx, k); err != nil && !errors.Is(err, repo.ErrNotFound) {
			return err
		}
	}
	return nil
}

func trimmed(a domain.OnboardingAnswers) domain.OnboardingAnswers {
	return domain.OnboardingAnswers{
		Role:      strings.TrimSpace(a.Role),
		Goal:      strings.TrimSpace(a.Goal),
		AgentName: strings.TrimSpace(a.AgentName),
	}
}
