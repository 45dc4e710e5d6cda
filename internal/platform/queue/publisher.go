package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub"
	"google.golang.org/api/option"
)

// Publisher pushes notification events onto a Pub/Sub topic consumed by the
// account mailer.
type Publisher struct {
	client *pubsub.Client
	topic  *pubsub.Topic
}

// New creates a publisher for one topic. An empty credentialsJSON falls back
// to application default credentials.
func New(ctx context.Context, projectID, topicName, credentialsJSON string) (*Publisher, error) {
	var opts []option.ClientOption
	if credentialsJSON != "" {
		opts = append(opts, option.WithCredentialsJSON([]byte(credentialsJSON)))
	}

	client, err := pubsub.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("platform/queue: new client: %w", err)
	}

	return &Publisher{client: client, topic: client.Topic(topicName)}, nil
}

// Close flushes pending publishes and releases the client.
func (p *Publisher) Close() error {
	p.topic.Stop()
	return p.client.Close()
}

// Publish marshals the payload as JSON and waits for the server-assigned
// message id so delivery failures surface to the caller.
func (p *Publisher) Publish(ctx context.Context, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("platform/queue: marshal: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	result := p.topic.Publish(ctx, &pubsub.Message{Data: data})
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("platform/queue: publish: %w", err)
	}
	return nil
}
