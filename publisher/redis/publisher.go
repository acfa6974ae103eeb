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

// Package redis provides a Redis streams-backed event publisher.
package redis

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"

	"github.com/bookingmicroservices/buildingblocks/uuid"
)

const (
	eventIDKey = "event_id"
	dataKey    = "data"
)

// Publisher publishes events to Redis streams, one stream per topic. The
// event ID is carried in the entry for consumer-side deduplication.
type Publisher struct {
	client     *redis.Client
	clientOpts *redis.Options
}

// NewPublisher creates a Publisher for a Redis address, for example
// `localhost:6379`.
func NewPublisher(addr string, options ...Option) (*Publisher, error) {
	p := &Publisher{}

	// Apply configuration options.
	for _, option := range options {
		if option == nil {
			continue
		}
		if err := option(p); err != nil {
			return nil, fmt.Errorf("error while applying option: %w", err)
		}
	}

	// Default client options.
	if p.clientOpts == nil {
		p.clientOpts = &redis.Options{
			Addr: addr,
		}
	}

	p.client = redis.NewClient(p.clientOpts)

	if _, err := p.client.Ping(context.Background()).Result(); err != nil {
		return nil, fmt.Errorf("could not connect to Redis: %w", err)
	}

	return p, nil
}

// Option is an option setter used to configure creation.
type Option func(*Publisher) error

// WithRedisOptions uses the specified Redis options.
func WithRedisOptions(opts *redis.Options) Option {
	return func(p *Publisher) error {
		p.clientOpts = opts

		return nil
	}
}

// Publish implements the Publish method of the buildingblocks.EventPublisher
// interface.
func (p *Publisher) Publish(ctx context.Context, topic string, eventID uuid.UUID, payload []byte) error {
	args := &redis.XAddArgs{
		Stream: topic,
		Values: map[string]interface{}{
			eventIDKey: eventID.String(),
			dataKey:    payload,
		},
	}

	if _, err := p.client.XAdd(ctx, args).Result(); err != nil {
		return fmt.Errorf("could not publish event: %w", err)
	}

	return nil
}

// Close closes the Redis client.
func (p *Publisher) Close() error {
	return p.client.Close()
}
