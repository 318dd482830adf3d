// Package notify announces published podcasts on NATS JetStream.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/book-expert/events"
	"github.com/book-expert/podcast-studio/internal/core"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

// Defaults for the announcement stream.
const (
	DefaultSubject = "podcast.published"
	DefaultStream  = "PODCASTS"
)

// PodcastPublishedEvent is the message body sent on the published subject.
type PodcastPublishedEvent struct {
	Header   events.EventHeader `json:"Header"`
	RecordID string             `json:"RecordID"`
	Title    string             `json:"Title"`
	AudioURL string             `json:"AudioURL"`
	ImageURL string             `json:"ImageURL"`
}

// NatsNotifier publishes PodcastPublishedEvent messages to a JetStream stream.
type NatsNotifier struct {
	jetstreamContext nats.JetStreamContext
	subject          string
}

// NewNatsNotifier makes sure a stream captures subject and returns a notifier
// publishing to it.
func NewNatsNotifier(jetstreamContext nats.JetStreamContext, stream, subject string) (*NatsNotifier, error) {
	if stream == "" {
		stream = DefaultStream
	}

	if subject == "" {
		subject = DefaultSubject
	}

	_, err := jetstreamContext.StreamInfo(stream)
	if errors.Is(err, nats.ErrStreamNotFound) {
		_, err = jetstreamContext.AddStream(&nats.StreamConfig{
			Name:     stream,
			Subjects: []string{subject},
			Storage:  nats.FileStorage,
		})
		if errors.Is(err, nats.ErrStreamNameAlreadyInUse) {
			err = nil
		}
	}

	if err != nil {
		return nil, fmt.Errorf("failed to ensure stream '%s': %w", stream, err)
	}

	return &NatsNotifier{jetstreamContext: jetstreamContext, subject: subject}, nil
}

// PublishPodcast implements core.EventPublisher.
func (n *NatsNotifier) PublishPodcast(ctx context.Context, podcast core.PublishedPodcast) error {
	event := PodcastPublishedEvent{
		Header: events.EventHeader{
			Timestamp:  podcast.PublishedAt,
			WorkflowID: podcast.RecordID,
			UserID:     podcast.AuthorID,
			TenantID:   "",
			EventID:    uuid.NewString(),
		},
		RecordID: podcast.RecordID,
		Title:    podcast.Title,
		AudioURL: podcast.AudioURL,
		ImageURL: podcast.ImageURL,
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal published event: %w", err)
	}

	_, err = n.jetstreamContext.Publish(n.subject, data, nats.Context(ctx))
	if err != nil {
		return fmt.Errorf("failed to publish event to subject %s: %w", n.subject, err)
	}

	return nil
}
