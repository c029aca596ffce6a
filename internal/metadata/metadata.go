// Package metadata suggests dataset names, descriptions and tags. Suggestions
// are rule-based and arrive after a simulated latency.
package metadata

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"aeval/internal/domain"
	"aeval/internal/simulate"
)

type Field string

const (
	FieldName        Field = "name"
	FieldDescription Field = "description"
	FieldTags        Field = "tags"
)

var Fields = []Field{FieldName, FieldDescription, FieldTags}

var ErrUnknownField = errors.New("field must be one of name, description, tags")

func ParseField(s string) (Field, error) {
	for _, f := range Fields {
		if string(f) == strings.ToLower(strings.TrimSpace(s)) {
			return f, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownField, s)
}

// Confidence is the fixed score attached to each kind of suggestion.
func Confidence(f Field) float64 {
	switch f {
	case FieldName:
		return 0.92
	case FieldDescription:
		return 0.88
	case FieldTags:
		return 0.85
	}
	return 0
}

// Band buckets a confidence score for display.
func Band(confidence float64) string {
	switch {
	case confidence >= 0.9:
		return "high"
	case confidence >= 0.7:
		return "medium"
	default:
		return "low"
	}
}

// Percent renders a confidence as a whole percentage.
func Percent(confidence float64) int {
	return int(math.Round(confidence * 100))
}

// Suggestion is a proposed value for one field. Value is set for name and
// description, Tags for tags.
type Suggestion struct {
	Field      Field    `json:"field"`
	Value      string   `json:"value,omitempty"`
	Tags       []string `json:"tags,omitempty"`
	Confidence float64  `json:"confidence"`
}

type Generator struct {
	Latency     time.Duration
	ScanLatency time.Duration
	Logger      *slog.Logger

	group singleflight.Group
}

// Regenerate proposes a new value for field. Identical requests in flight
// share one result.
func (g *Generator) Regenerate(ctx context.Context, ds domain.Dataset, field Field) (Suggestion, error) {
	if _, err := ParseField(string(field)); err != nil {
		return Suggestion{}, err
	}
	key := ds.ID + "/" + string(field)
	// the shared call must outlive a cancelled first caller
	ch := g.group.DoChan(key, func() (any, error) {
		if err := simulate.Sleep(context.WithoutCancel(ctx), g.Latency); err != nil {
			return nil, err
		}
		return suggest(ds, field), nil
	})
	select {
	case <-ctx.Done():
		return Suggestion{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return Suggestion{}, res.Err
		}
		if res.Shared && g.Logger != nil {
			g.Logger.Debug("metadata: shared regeneration", "dataset", ds.ID, "field", field)
		}
		return res.Val.(Suggestion), nil
	}
}

// RegenerateAll regenerates every field concurrently. It fails as a whole if
// any field fails.
func (g *Generator) RegenerateAll(ctx context.Context, ds domain.Dataset) ([]Suggestion, error) {
	out := make([]Suggestion, len(Fields))
	eg, ctx := errgroup.WithContext(ctx)
	for i, f := range Fields {
		eg.Go(func() error {
			s, err := g.Regenerate(ctx, ds, f)
			if err != nil {
				return fmt.Errorf("regenerate %s: %w", f, err)
			}
			out[i] = s
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func suggest(ds domain.Dataset, field Field) Suggestion {
	s := Suggestion{Field: field, Confidence: Confidence(field)}
	switch field {
	case FieldName:
		s.Value = suggestName(ds)
	case FieldDescription:
		s.Value = suggestDescription(ds)
	case FieldTags:
		s.Tags = suggestTags(ds)
	}
	return s
}

var (
	title = cases.Title(language.English, cases.NoLower)
	lower = cases.Lower(language.Und)
)

// lowerFirst lowercases the first letter of s, whatever its width.
func lowerFirst(s string) string {
	_, size := utf8.DecodeRuneInString(s)
	return lower.String(s[:size]) + s[size:]
}

func suggestName(ds domain.Dataset) string {
	if name := strings.TrimSpace(ds.Name); name != "" {
		return title.String(name)
	}
	if len(ds.Tags) > 0 {
		return title.String(strings.Join(firstTags(ds.Tags, 2), " ")) + " Dataset"
	}
	return "Untitled Dataset"
}

func suggestDescription(ds domain.Dataset) string {
	var b strings.Builder
	if d := strings.TrimSpace(ds.Description); d != "" {
		b.WriteString(strings.TrimSuffix(d, "."))
		b.WriteString(".")
	} else {
		b.WriteString("Evaluation dataset")
		if ds.TotalRecords != nil {
			fmt.Fprintf(&b, " with %d records", *ds.TotalRecords)
		}
		if ds.FileFormat != "" {
			fmt.Fprintf(&b, " in %s format", strings.ToUpper(ds.FileFormat))
		}
		b.WriteString(".")
	}
	if c := strings.TrimSpace(ds.ApplicationContext); c != "" && !strings.Contains(strings.ToLower(b.String()), strings.ToLower(c)) {
		fmt.Fprintf(&b, " Suited to %s.", lowerFirst(c))
	}
	return b.String()
}

const maxTags = 5

func suggestTags(ds domain.Dataset) []string {
	tags := make([]string, 0, maxTags)
	seen := map[string]bool{}
	add := func(t string) {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" || seen[t] || len(tags) >= maxTags {
			return
		}
		seen[t] = true
		tags = append(tags, t)
	}
	for _, t := range ds.Tags {
		add(t)
	}
	for _, t := range keywordTags(ds.Name + " " + ds.Description + " " + ds.ApplicationContext) {
		add(t)
	}
	return tags
}

func firstTags(tags []string, n int) []string {
	if len(tags) < n {
		n = len(tags)
	}
	return tags[:n]
}

// keywordTable maps words found in free text to suggested tags, in the order
// tags are proposed.
var keywordTable = []struct {
	tag   string
	words []string
}{
	{"support", []string{"support", "ticket", "helpdesk", "customer"}},
	{"conversation", []string{"conversation", "dialogue", "dialog", "chat", "transcript"}},
	{"qa", []string{"question", "answer", "qa", "faq"}},
	{"rag", []string{"retrieval", "passage", "grounded", "knowledge base"}},
	{"code", []string{"code", "python", "programming", "function"}},
	{"sql", []string{"sql", "query", "schema"}},
	{"safety", []string{"safety", "harmful", "jailbreak", "injection", "red-team", "adversarial"}},
	{"toxicity", []string{"toxic", "insult", "abuse"}},
	{"finance", []string{"finance", "financial", "filing", "quarterly"}},
	{"translation", []string{"translation", "bilingual", "parallel"}},
	{"english", []string{"english"}},
}

func keywordTags(text string) []string {
	lower := strings.ToLower(text)
	var out []string
	for _, k := range keywordTable {
		for _, w := range k.words {
			if strings.Contains(lower, w) {
				out = append(out, k.tag)
				break
			}
		}
	}
	return out
}
