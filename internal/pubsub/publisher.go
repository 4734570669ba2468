package pubsub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"outreach/internal/clients"
	"outreach/internal/config"
	"outreach/internal/model"

	"cloud.google.com/go/pubsub"
	"google.golang.org/api/option"
)

// Publisher defines an interface for publishing messages.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte) (string, error)
}

// PubSubPublisher is an implementation of Publisher using Google Pub/Sub.
type PubSubPublisher struct {
	client *pubsub.Client
}

// NewPublisher creates a new PubSubPublisher using the GCP project from config.
// When PUBSUB_EMULATOR_HOST is set the client talks to the emulator without credentials.
func NewPublisher(ctx context.Context, cfg *config.Config) (*PubSubPublisher, error) {
	if cfg.GCPProjectID == "" {
		return nil, errors.New("GCP Project ID is not set for the current environment")
	}

	var opts []option.ClientOption
	if cfg.PubSubEmulatorHost != "" {
		opts = append(opts, option.WithEndpoint(cfg.PubSubEmulatorHost), option.WithoutAuthentication())
	}

	client, err := pubsub.NewClient(ctx, cfg.GCPProjectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Pub/Sub client: %w", err)
	}
	return &PubSubPublisher{client: client}, nil
}

// Publish sends the payload to the given Pub/Sub topic and returns the message ID.
func (p *PubSubPublisher) Publish(ctx context.Context, topic string, payload []byte) (string, error) {
	t := p.client.Topic(topic)
	result := t.Publish(ctx, &pubsub.Message{Data: payload})
	id, err := result.Get(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to publish message to topic %s: %w", topic, err)
	}
	return id, nil
}

// EnsureTopic creates topic if it does not exist yet.
func (p *PubSubPublisher) EnsureTopic(ctx context.Context, topic string) error {
	exists, err := p.client.Topic(topic).Exists(ctx)
	if err != nil {
		return fmt.Errorf("checking topic %s: %w", topic, err)
	}
	if exists {
		return nil
	}
	if _, err := p.client.CreateTopic(ctx, topic); err != nil {
		return fmt.Errorf("creating topic %s: %w", topic, err)
	}
	return nil
}

func (p *PubSubPublisher) Close() error {
	return p.client.Close()
}

// NopPublisher drops every message. It stands in when Pub/Sub is not configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, string, []byte) (string, error) {
	return "", nil
}

// EncodeJobEvent renders a job event as the JSON payload sent to subscribers.
func EncodeJobEvent(ev model.JobEvent) ([]byte, error) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("encoding job event: %w", err)
	}
	return payload, nil
}

// LazyPublisher connects to Pub/Sub on the first publish, so a process that never
// changes a job never dials out.
type LazyPublisher struct {
	client *clients.Lazy[*PubSubPublisher]
}

func NewLazyPublisher(cfg *config.Config) *LazyPublisher {
	var create func(ctx context.Context) (*PubSubPublisher, error)
	if cfg.PubSubEnabled() {
		create = func(ctx context.Context) (*PubSubPublisher, error) {
			return NewPublisher(ctx, cfg)
		}
	}
	return &LazyPublisher{client: clients.NewLazy("pubsub", create)}
}

func (p *LazyPublisher) Publish(ctx context.Context, topic string, payload []byte) (string, error) {
	pub, err := p.client.GetOrCreate(ctx)
	if err != nil {
		return "", err
	}
	return pub.Publish(ctx, topic, payload)
}

// Close releases the client if one was created.
func (p *LazyPublisher) Close() error {
	if pub, ok := p.client.Peek(); ok {
		return pub.Close()
	}
	return nil
}
