package events

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// NATS publishes events to a JetStream stream.
type NATS struct {
	nc      *nats.Conn
	js      jetstream.JetStream
	subject string
}

// ConnectNATS connects to url and ensures stream exists and captures subject.
func ConnectNATS(ctx context.Context, url, stream, subject string) (*NATS, error) {
	nc, err := nats.Connect(url, nats.Name("reviews"))
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream init: %w", err)
	}

	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     stream,
		Subjects: []string{streamSubjects(subject)},
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream stream create: %w", err)
	}

	slog.Info("nats connected", "url", url, "stream", stream, "subject", subject)
	return &NATS{nc: nc, js: js, subject: subject}, nil
}

// streamSubjects widens "review.submitted" to "review.>" so later event
// types land in the same stream.
func streamSubjects(subject string) string {
	prefix, _, found := strings.Cut(subject, ".")
	if !found {
		return subject
	}
	return prefix + ".>"
}

// PublishReviewSubmitted sends ev to the configured subject.
func (n *NATS) PublishReviewSubmitted(ctx context.Context, ev ReviewSubmitted) error {
	data, err := Encode(ev)
	if err != nil {
		return err
	}
	if _, err := n.js.Publish(ctx, n.subject, data, jetstream.WithMsgID(ev.ReviewID)); err != nil {
		return fmt.Errorf("nats publish %s: %w", n.subject, err)
	}
	return nil
}

// Close drains pending publishes and closes the connection.
func (n *NATS) Close() error {
	return n.nc.Drain()
}
