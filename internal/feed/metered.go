package feed

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/jaekwang-park/todo-sync/internal/model"
	"github.com/jaekwang-park/todo-sync/internal/telemetry"
)

// Metered counts events handed to the wrapped publisher, by type and
// outcome.
type Metered struct {
	next      Publisher
	published metric.Int64Counter
}

// NewMetered wraps next. With nil metrics it only forwards.
func NewMetered(next Publisher, m *telemetry.Metrics) *Metered {
	md := &Metered{next: next}
	if m != nil {
		md.published = m.FeedEventsPublished
	}
	return md
}

func (m *Metered) Publish(ctx context.Context, ev model.ChangeEvent) error {
	err := m.next.Publish(ctx, ev)
	if m.published != nil {
		result := "ok"
		if err != nil {
			result = "error"
		}
		m.published.Add(ctx, 1, metric.WithAttributes(
			attribute.String("event.type", string(ev.Type)),
			attribute.String("result", result),
		))
	}
	return err
}
