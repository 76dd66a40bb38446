package api

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// transitionMetrics counts workflow activity transitions by operation.
type transitionMetrics struct {
	transitions metric.Int64Counter
}

func newTransitionMetrics() *transitionMetrics {
	meter := otel.Meter("flowportal/api")
	transitions, err := meter.Int64Counter("flowportal.activity.transitions",
		metric.WithDescription("Workflow activity transitions by operation"),
	)
	if err != nil {
		// The no-op meter never errors; a failing SDK meter falls back to
		// counting nothing.
		return &transitionMetrics{}
	}
	return &transitionMetrics{transitions: transitions}
}

func (m *transitionMetrics) record(ctx context.Context, op, appName string) {
	if m == nil || m.transitions == nil {
		return
	}
	m.transitions.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("operation", op),
			attribute.String("app", appName),
		),
	)
}
