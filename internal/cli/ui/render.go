package ui

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"

	"aeval/internal/compat"
	"aeval/internal/domain"
	"aeval/internal/metadata"
	"aeval/internal/wizard"
)

func newTable(w io.Writer, header table.Row) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(header)
	return t
}

func RenderDatasets(w io.Writer, items []domain.Dataset) {
	t := newTable(w, table.Row{"ID", "Name", "Tags", "Size", "Format"})
	for _, d := range items {
		t.AppendRow(table.Row{d.ID, d.Name, strings.Join(d.Tags, ", "), d.Size, d.FileFormat})
	}
	t.Render()
}

func RenderMetrics(w io.Writer, items []domain.Metric) {
	t := newTable(w, table.Row{"ID", "Name", "Category", "Cost"})
	for _, m := range items {
		t.AppendRow(table.Row{m.ID, m.Name, m.Category, m.Cost})
	}
	t.Render()
}

func RenderScenarios(w io.Writer, items []domain.Scenario) {
	t := newTable(w, table.Row{"ID", "Name", "Metrics"})
	for _, s := range items {
		t.AppendRow(table.Row{s.ID, s.Name, strings.Join(s.RecommendedMetrics, ", ")})
	}
	t.Render()
}

func RenderAgents(w io.Writer, items []domain.Agent) {
	t := newTable(w, table.Row{"ID", "Name", "Type", "Capabilities"})
	for _, a := range items {
		t.AppendRow(table.Row{a.ID, a.Name, a.Type, strings.Join(a.Capabilities, ", ")})
	}
	t.Render()
}

// RenderRankedMetrics lists metrics with a compatibility mark, compatible
// rows first as ranked.
func RenderRankedMetrics(w io.Writer, items []compat.Ranked[domain.Metric]) {
	t := newTable(w, table.Row{"", "ID", "Name", "Category"})
	for _, r := range items {
		t.AppendRow(table.Row{mark(r.Compatible), r.Item.ID, r.Item.Name, r.Item.Category})
	}
	t.Render()
}

func RenderRankedScenarios(w io.Writer, items []compat.Ranked[domain.Scenario]) {
	t := newTable(w, table.Row{"", "ID", "Name"})
	for _, r := range items {
		t.AppendRow(table.Row{mark(r.Compatible), r.Item.ID, r.Item.Name})
	}
	t.Render()
}

func mark(ok bool) string {
	if ok {
		return "✓"
	}
	return "·"
}

// RenderEvents prints events with relative timestamps; now anchors them.
func RenderEvents(w io.Writer, items []domain.Event, now time.Time) {
	t := newTable(w, table.Row{"ID", "When", "Type", "Entity"})
	for _, e := range items {
		when := e.TS
		if ts, err := time.Parse(time.RFC3339, e.TS); err == nil {
			when = humanize.RelTime(ts, now, "ago", "from now")
		}
		entity := e.EntityKind
		if e.EntityID != "" {
			entity += "/" + e.EntityID
		}
		t.AppendRow(table.Row{e.ID, when, e.Type, entity})
	}
	t.Render()
}

func RenderEvaluations(w io.Writer, items []domain.Evaluation) {
	t := newTable(w, table.Row{"ID", "Name", "Dataset", "Metrics", "Est.", "Submitted"})
	for _, ev := range items {
		t.AppendRow(table.Row{
			ev.ID, ev.Name, ev.DatasetID, len(ev.MetricIDs),
			fmt.Sprintf("~%dm / $%.2f", ev.EstimatedMinutes, ev.EstimatedCostUSD),
			ev.SubmittedAt,
		})
	}
	t.Render()
}

// RenderEditor shows the fields under edit with the confidence of their last
// suggestion. Hand-edited fields are marked instead.
func RenderEditor(w io.Writer, ed *metadata.Editor) {
	t := newTable(w, table.Row{"Field", "Value", "Confidence"})
	row := func(f metadata.Field, value string, confidence float64, modified bool) {
		conf := fmt.Sprintf("%d%% (%s)", metadata.Percent(confidence), metadata.Band(confidence))
		if modified {
			conf = "edited"
		}
		t.AppendRow(table.Row{f, value, conf})
	}
	row(metadata.FieldName, ed.Name.Value, ed.Name.Confidence, ed.Name.Modified)
	row(metadata.FieldDescription, ed.Description.Value, ed.Description.Confidence, ed.Description.Modified)
	row(metadata.FieldTags, strings.Join(ed.Tags.Value, ", "), ed.Tags.Confidence, ed.Tags.Modified)
	t.Render()
}

// RecommendationText is the plain-text body of a suggestion card.
func RecommendationText(rec domain.Recommendation) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Dataset:  %s (%s)\n", rec.Dataset.Name, rec.Dataset.ID)
	fmt.Fprintf(&b, "Agent:    %s\n", rec.Agent.Name)
	fmt.Fprintf(&b, "Scenario: %s\n", rec.Scenario.Name)
	b.WriteString("Metrics:\n")
	for _, m := range rec.Metrics {
		fmt.Fprintf(&b, "  - %s [%s]\n", m.Name, m.Category)
	}
	return strings.TrimRight(b.String(), "\n")
}

// PrintRecommendation prints rec in a box.
func PrintRecommendation(rec domain.Recommendation) {
	fmt.Println(Styles.SuggestionBox.Render(RecommendationText(rec)))
}

// ReviewText is the plain-text summary of the wizard's review step.
func ReviewText(r wizard.Review) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Name:     %s\n", r.Name)
	if r.Description != "" {
		fmt.Fprintf(&b, "About:    %s\n", r.Description)
	}
	if r.Dataset != nil {
		fmt.Fprintf(&b, "Dataset:  %s\n", r.Dataset.Name)
	}
	fmt.Fprintf(&b, "Metrics:  %d\n", len(r.Metrics))
	for _, m := range r.Metrics {
		fmt.Fprintf(&b, "  - %s\n", m.Name)
	}
	fmt.Fprintf(&b, "Estimate: ~%d min, $%.2f", r.EstimatedMinutes, r.EstimatedCostUSD)
	return b.String()
}
