// Package events publishes review lifecycle events.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"
)

// ReviewSubmitted is published after a review has been stored.
type ReviewSubmitted struct {
	ReviewID   string    `json:"review_id"`
	PortalID   string    `json:"portal_id"`
	Rating     int       `json:"rating"`
	HasText    bool      `json:"has_text"`
	Source     string    `json:"source"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Sources of a submission.
const (
	SourceWidget     = "widget"
	SourceHostedForm = "hosted_form"
)

// Publisher delivers events to subscribers.
type Publisher interface {
	PublishReviewSubmitted(ctx context.Context, ev ReviewSubmitted) error
	Close() error
}

// Noop discards every event. It is used when no broker is configured.
type Noop struct{}

func (Noop) PublishReviewSubmitted(context.Context, ReviewSubmitted) error { return nil }
func (Noop) Close() error                                                  { return nil }

// Encode serializes an event for the wire.
func Encode(ev ReviewSubmitted) ([]byte, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("encode %T: %w", ev, err)
	}
	return data, nil
}

// Notify publishes ev and logs failures instead of returning them; a broker
// outage must never fail a submission.
func Notify(ctx context.Context, p Publisher, log *slog.Logger, ev ReviewSubmitted) {
	if err := p.PublishReviewSubmitted(ctx, ev); err != nil {
		log.Warn("failed to publish review event",
			"review_id", ev.ReviewID,
			"portal_id", ev.PortalID,
			"error", err,
		)
	}
}
