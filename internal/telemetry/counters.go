package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Counters holds the domain instruments. Instruments are resolved against the
// global provider when NewCounters runs, so call it after Init.
type Counters struct {
	classified  metric.Int64Counter
	chatTurns   metric.Int64Counter
	submissions metric.Int64Counter
}

func NewCounters() *Counters {
	meter := Meter("aeval")
	classified, _ := meter.Int64Counter("aeval.intent.classified",
		metric.WithDescription("Free-text inputs classified, by intent label"))
	chatTurns, _ := meter.Int64Counter("aeval.chat.turns",
		metric.WithDescription("Completed chat turns, by outcome"))
	submissions, _ := meter.Int64Counter("aeval.wizard.submissions",
		metric.WithDescription("Wizard drafts submitted"))
	return &Counters{classified: classified, chatTurns: chatTurns, submissions: submissions}
}

// Classified records one classification. Nil receivers are ignored.
func (c *Counters) Classified(ctx context.Context, intent string) {
	if c == nil || c.classified == nil {
		return
	}
	c.classified.Add(ctx, 1, metric.WithAttributes(attribute.String("intent", intent)))
}

func (c *Counters) ChatTurn(ctx context.Context, outcome string) {
	if c == nil || c.chatTurns == nil {
		return
	}
	c.chatTurns.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

func (c *Counters) Submitted(ctx context.Context) {
	if c == nil || c.submissions == nil {
		return
	}
	c.submissions.Add(ctx, 1)
}
