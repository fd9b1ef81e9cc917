package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/pubsub"

	"github.com/hcp-portal/api/internal/services"
)

// submissionMessage is the wire payload consumers decode. Field names are stable.
type submissionMessage struct {
	EventID     string    `json:"eventId"`
	Type        string    `json:"type"`
	Shop        string    `json:"shop"`
	ResourceID  string    `json:"resourceId"`
	OrderNumber string    `json:"orderNumber,omitempty"`
	Variant     string    `json:"variant,omitempty"`
	OccurredAt  time.Time `json:"occurredAt"`
}

// PubSubSubmissionPublisher publishes accepted HCP submissions to a Pub/Sub topic.
type PubSubSubmissionPublisher struct {
	topic   *pubsub.Topic
	marshal func(any) ([]byte, error)
}

var _ services.SubmissionPublisher = (*PubSubSubmissionPublisher)(nil)

// NewPubSubSubmissionPublisher constructs a Pub/Sub backed submission publisher.
func NewPubSubSubmissionPublisher(topic *pubsub.Topic) (*PubSubSubmissionPublisher, error) {
	if topic == nil {
		return nil, errors.New("pubsub submission publisher: topic is required")
	}
	return &PubSubSubmissionPublisher{
		topic:   topic,
		marshal: json.Marshal,
	}, nil
}

// PublishSubmission sends the event and waits for the server acknowledgement.
func (p *PubSubSubmissionPublisher) PublishSubmission(ctx context.Context, event services.SubmissionEvent) error {
	if p == nil || p.topic == nil {
		return errors.New("pubsub submission publisher: not initialised")
	}

	data, err := p.marshal(submissionMessage{
		EventID:     event.ID,
		Type:        event.Type,
		Shop:        event.Shop,
		ResourceID:  event.ResourceID,
		OrderNumber: event.OrderNumber,
		Variant:     event.Variant,
		OccurredAt:  event.OccurredAt.UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal submission event: %w", err)
	}

	attrs := make(map[string]string)
	setAttr(attrs, "eventId", event.ID)
	setAttr(attrs, "type", event.Type)
	setAttr(attrs, "shop", event.Shop)
	setAttr(attrs, "variant", event.Variant)

	msg := &pubsub.Message{Data: data, Attributes: attrs}
	if shop := strings.TrimSpace(event.Shop); shop != "" && p.topic.EnableMessageOrdering {
		msg.OrderingKey = shop
	}

	if _, err := p.topic.Publish(ctx, msg).Get(ctx); err != nil {
		return fmt.Errorf("publish submission event: %w", err)
	}
	return nil
}

func setAttr(attrs map[string]string, key string, value string) {
	if v := strings.TrimSpace(value); v != "" {
		attrs[key] = v
	}
}
