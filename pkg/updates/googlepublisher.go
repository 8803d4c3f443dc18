package updates

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/illmade-knight/go-openweather/pkg/weather"
	"github.com/rs/zerolog"
)

// GooglePublisher delivers updates straight to a Pub/Sub topic, one message
// per refreshed city.
type GooglePublisher struct {
	topic  *pubsub.Topic
	logger zerolog.Logger
}

// NewGooglePublisher creates a publisher for the given topic. It accepts a
// context to verify that the topic exists before returning.
func NewGooglePublisher(ctx context.Context, client *pubsub.Client, topicID string, logger zerolog.Logger) (*GooglePublisher, error) {
	if client == nil {
		return nil, fmt.Errorf("pubsub client cannot be nil")
	}
	topic := client.Topic(topicID)

	exists, err := topic.Exists(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to check for topic %s: %w", topicID, err)
	}
	if !exists {
		return nil, fmt.Errorf("pubsub topic %s does not exist", topicID)
	}

	return &GooglePublisher{
		topic:  topic,
		logger: logger.With().Str("component", "GooglePublisher").Str("topic_id", topicID).Logger(),
	}, nil
}

// Publish queues one update, tagged with its city so subscribers can filter
// without decoding the payload. It returns once the message is queued and
// logs the final publish result asynchronously.
func (p *GooglePublisher) Publish(ctx context.Context, update weather.Update) error {
	payload, err := json.Marshal(update)
	if err != nil {
		return fmt.Errorf("marshal update for %s: %w", update.City, err)
	}

	result := p.topic.Publish(ctx, &pubsub.Message{
		Data:       payload,
		Attributes: map[string]string{"city": update.City},
	})

	go func() {
		// A fresh context so the result check outlives a short-lived
		// publish context.
		getCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		msgID, err := result.Get(getCtx)
		if err != nil {
			p.logger.Error().Err(err).Str("city", update.City).Msg("Failed to publish update")
			return
		}
		p.logger.Debug().Str("published_msg_id", msgID).Str("city", update.City).Msg("Update published.")
	}()

	return nil
}

// Stop flushes any pending messages for the topic, respecting the context's
// timeout.
func (p *GooglePublisher) Stop(ctx context.Context) error {
	if p.topic == nil {
		return nil
	}

	// topic.Stop() blocks, so wrap it to respect the context deadline.
	stopDone := make(chan struct{})
	go func() {
		p.topic.Stop()
		close(stopDone)
	}()

	select {
	case <-stopDone:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
