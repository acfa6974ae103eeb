// Copyright (c) 2025 - The Booking Microservices authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package gcp provides a GCP Cloud Pub/Sub-backed event publisher.
package gcp

import (
	"context"
	"fmt"
	"sync"

	"cloud.google.com/go/pubsub"
	"google.golang.org/api/option"

	"github.com/bookingmicroservices/buildingblocks/uuid"
)

const eventIDAttribute = "event_id"

// Publisher publishes events to Cloud Pub/Sub topics. The event ID is carried
// as a message attribute for consumer-side deduplication.
type Publisher struct {
	client     *pubsub.Client
	clientOpts []option.ClientOption
	topics     map[string]*pubsub.Topic
	topicsMu   sync.Mutex
}

// NewPublisher creates a Publisher, with optional GCP connection settings.
func NewPublisher(ctx context.Context, projectID string, options ...Option) (*Publisher, error) {
	p := &Publisher{
		topics: map[string]*pubsub.Topic{},
	}

	// Apply configuration options.
	for _, option := range options {
		if option == nil {
			continue
		}
		if err := option(p); err != nil {
			return nil, fmt.Errorf("error while applying option: %w", err)
		}
	}

	client, err := pubsub.NewClient(ctx, projectID, p.clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("could not create Pub/Sub client: %w", err)
	}

	p.client = client

	return p, nil
}

// Option is an option setter used to configure creation.
type Option func(*Publisher) error

// WithPubSubOptions adds the GCP options to the underlying client.
func WithPubSubOptions(opts ...option.ClientOption) Option {
	return func(p *Publisher) error {
		p.clientOpts = opts

		return nil
	}
}

// Publish implements the Publish method of the buildingblocks.EventPublisher
// interface. It returns after Pub/Sub has acknowledged the message.
func (p *Publisher) Publish(ctx context.Context, topic string, eventID uuid.UUID, payload []byte) error {
	t, err := p.topic(ctx, topic)
	if err != nil {
		return err
	}

	res := t.Publish(ctx, &pubsub.Message{
		Data: payload,
		Attributes: map[string]string{
			eventIDAttribute: eventID.String(),
		},
	})

	if _, err := res.Get(ctx); err != nil {
		return fmt.Errorf("could not publish event: %w", err)
	}

	return nil
}

// topic gets or creates a topic, caching the handle.
func (p *Publisher) topic(ctx context.Context, name string) (*pubsub.Topic, error) {
	p.topicsMu.Lock()
	defer p.topicsMu.Unlock()

	if t, ok := p.topics[name]; ok {
		return t, nil
	}

	t := p.client.Topic(name)

	if ok, err := t.Exists(ctx); err != nil {
		return nil, fmt.Errorf("could not check topic: %w", err)
	} else if !ok {
		if t, err = p.client.CreateTopic(ctx, name); err != nil {
			return nil, fmt.Errorf("could not create topic: %w", err)
		}
	}

	p.topics[name] = t

	return t, nil
}

// Close stops all topic publish flows and closes the client.
func (p *Publisher) Close() error {
	p.topicsMu.Lock()
	for _, t := range p.topics {
		t.Stop()
	}
	p.topicsMu.Unlock()

	return p.client.Close()
}
