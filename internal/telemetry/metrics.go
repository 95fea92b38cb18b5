package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "reviews"

// Metrics holds the review metric instruments.
type Metrics struct {
	SubmissionsAccepted metric.Int64Counter
	SubmissionsRejected metric.Int64Counter
	PortalsCreated      metric.Int64Counter
}

// NewMetrics creates all metric instruments on meter. A nil meter uses the
// global provider.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	if meter == nil {
		meter = otel.Meter(meterName)
	}
	m := &Metrics{}
	var err error

	m.SubmissionsAccepted, err = meter.Int64Counter("reviews.submissions.accepted",
		metric.WithDescription("Number of reviews stored"))
	if err != nil {
		return nil, err
	}

	m.SubmissionsRejected, err = meter.Int64Counter("reviews.submissions.rejected",
		metric.WithDescription("Number of review submissions rejected"))
	if err != nil {
		return nil, err
	}

	m.PortalsCreated, err = meter.Int64Counter("reviews.portals.created",
		metric.WithDescription("Number of portals created"))
	if err != nil {
		return nil, err
	}

	return m, nil
}

// Accepted records a stored review.
func (m *Metrics) Accepted(ctx context.Context, source string, rating int) {
	m.SubmissionsAccepted.Add(ctx, 1, metric.WithAttributes(
		attribute.String("source", source),
		attribute.Int("rating", rating),
	))
}

// Rejected records a refused submission with a short reason code.
func (m *Metrics) Rejected(ctx context.Context, source, reason string) {
	m.SubmissionsRejected.Add(ctx, 1, metric.WithAttributes(
		attribute.String("source", source),
		attribute.String("reason", reason),
	))
}
