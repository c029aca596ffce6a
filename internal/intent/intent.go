// Package intent maps free-text evaluation goals onto a closed set of intent
// labels. It is a keyword stand-in for a real NLU component: rules are
// case-insensitive ASCII substring tests evaluated top-down, and the first
// matching rule wins. The rule order is part of the contract.
package intent

import (
	"strings"

	"aeval/internal/domain"
)

// Rule pairs a predicate over lower-cased input with the label it yields.
type Rule struct {
	Name  string
	Match func(lower string) bool
	Label domain.Intent
}

// DefaultRules is the ordered rule table. Safety-flavoured RAG requests are
// tested before plain RAG so "rag" + "safety" never falls through to accuracy.
var DefaultRules = []Rule{
	{
		Name:  "rag-safety",
		Match: func(s string) bool { return containsAny(s, "rag", "retrieval") && containsAny(s, "safety", "harmful") },
		Label: domain.IntentRAGSafety,
	},
	{
		Name:  "rag-accuracy",
		Match: func(s string) bool { return containsAny(s, "rag", "retrieval") },
		Label: domain.IntentRAGAccuracy,
	},
	{
		Name:  "code",
		Match: func(s string) bool { return containsAny(s, "code", "python", "coding") },
		Label: domain.IntentCodeEval,
	},
	{
		Name:  "chat",
		Match: func(s string) bool { return containsAny(s, "chat", "conversation") },
		Label: domain.IntentGeneralChat,
	},
}

type Classifier struct {
	rules []Rule
}

// New returns a classifier over rules; nil means DefaultRules.
func New(rules []Rule) Classifier {
	if rules == nil {
		rules = DefaultRules
	}
	return Classifier{rules: rules}
}

// Classify returns the label of the first matching rule, or unknown.
func (c Classifier) Classify(text string) domain.Intent {
	lower := strings.ToLower(text)
	rules := c.rules
	if rules == nil {
		rules = DefaultRules
	}
	for _, r := range rules {
		if r.Match(lower) {
			return r.Label
		}
	}
	return domain.IntentUnknown
}

func containsAny(s string, terms ...string) bool {
	for _, t := range terms {
		if strings.Contains(s, t) {
			return true
		}
	}
	return false
}
