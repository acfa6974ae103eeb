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

// Package outbox provides the background processor that publishes pending
// outbox entries to a broker with at-least-once delivery.
package outbox

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/jpillora/backoff"
	"go.uber.org/zap"

	bb "github.com/bookingmicroservices/buildingblocks"
	"github.com/bookingmicroservices/buildingblocks/uuid"
)

var (
	// DefaultPollInterval is the interval between polling sweeps.
	DefaultPollInterval = time.Second

	// DefaultPurgeInterval is the interval between retention sweeps of
	// published entries.
	DefaultPurgeInterval = time.Minute
)

// Processor polls the outbox store for pending entries, publishes them to the
// broker and marks them published on acknowledgment. Publish failures are
// retried with exponential backoff until a configured attempt ceiling, after
// which the entry is dead-lettered. Multiple processor instances may run
// against the same store; the store's claim lease keeps them from
// double-publishing within a lease window.
type Processor struct {
	store       bb.OutboxStore
	publisher   bb.EventPublisher
	claimant    string
	interval    time.Duration
	lease       time.Duration
	batchSize   int
	maxAttempts int
	retention   time.Duration
	backoff     *backoff.Backoff
	logger      *zap.Logger
	errCh       chan error
	cctx        context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
}

// NewProcessor creates a Processor for a store and a publisher.
func NewProcessor(store bb.OutboxStore, publisher bb.EventPublisher, options ...Option) (*Processor, error) {
	if store == nil {
		return nil, fmt.Errorf("missing outbox store")
	}

	if publisher == nil {
		return nil, fmt.Errorf("missing event publisher")
	}

	hostname, _ := os.Hostname()

	ctx, cancel := context.WithCancel(context.Background())

	p := &Processor{
		store:       store,
		publisher:   publisher,
		claimant:    hostname + "-" + uuid.New().String(),
		interval:    DefaultPollInterval,
		lease:       30 * time.Second,
		batchSize:   20,
		maxAttempts: 10,
		retention:   24 * time.Hour,
		backoff: &backoff.Backoff{
			Min:    time.Second,
			Max:    time.Minute,
			Factor: 2,
		},
		logger: zap.NewNop(),
		errCh:  make(chan error, 100),
		cctx:   ctx,
		cancel: cancel,
	}

	for _, option := range options {
		if option == nil {
			continue
		}
		if err := option(p); err != nil {
			cancel()

			return nil, fmt.Errorf("error while applying option: %w", err)
		}
	}

	return p, nil
}

// Option is an option setter used to configure creation.
type Option func(*Processor) error

// WithPollInterval sets the interval between polling sweeps.
func WithPollInterval(d time.Duration) Option {
	return func(p *Processor) error {
		if d <= 0 {
			return errors.New("poll interval must be positive")
		}
		p.interval = d

		return nil
	}
}

// WithBatchSize sets how many entries are claimed per sweep.
func WithBatchSize(n int) Option {
	return func(p *Processor) error {
		if n <= 0 {
			return errors.New("batch size must be positive")
		}
		p.batchSize = n

		return nil
	}
}

// WithMaxAttempts sets the publish attempt ceiling after which an entry is
// dead-lettered.
func WithMaxAttempts(n int) Option {
	return func(p *Processor) error {
		if n <= 0 {
			return errors.New("max attempts must be positive")
		}
		p.maxAttempts = n

		return nil
	}
}

// WithLease sets the claim lease duration. Entries claimed by a crashed
// processor become reclaimable after the lease expires.
func WithLease(d time.Duration) Option {
	return func(p *Processor) error {
		if d <= 0 {
			return errors.New("lease must be positive")
		}
		p.lease = d

		return nil
	}
}

// WithRetention sets how long published entries are kept for audit before
// being purged.
func WithRetention(d time.Duration) Option {
	return func(p *Processor) error {
		if d <= 0 {
			return errors.New("retention must be positive")
		}
		p.retention = d

		return nil
	}
}

// WithBackoff sets the retry backoff bounds for failed publishes.
func WithBackoff(min, max time.Duration, factor float64) Option {
	return func(p *Processor) error {
		if min <= 0 || max < min || factor < 1 {
			return errors.New("invalid backoff bounds")
		}
		p.backoff = &backoff.Backoff{Min: min, Max: max, Factor: factor}

		return nil
	}
}

// WithClaimant sets the claimant ID used for claim leases, by default
// hostname plus a random suffix.
func WithClaimant(id string) Option {
	return func(p *Processor) error {
		if id == "" {
			return errors.New("claimant must not be empty")
		}
		p.claimant = id

		return nil
	}
}

// WithLogger sets a logger for processing activity.
func WithLogger(logger *zap.Logger) Option {
	return func(p *Processor) error {
		if logger == nil {
			return errors.New("logger must not be nil")
		}
		p.logger = logger

		return nil
	}
}

// Start starts publishing pending entries until Close is called. Should be
// called after the owning service has started accepting requests.
func (p *Processor) Start() {
	p.wg.Add(2)

	go p.runPeriodicallyUntilCancelled(p.processBatch, p.interval)
	go p.runPeriodicallyUntilCancelled(p.purgePublished, DefaultPurgeInterval)
}

// Close stops the processor and waits for in-flight publishes to finish.
func (p *Processor) Close() error {
	p.cancel()
	p.wg.Wait()

	return nil
}

// Errors returns an error channel where async processing errors are sent.
func (p *Processor) Errors() <-chan error {
	return p.errCh
}

func (p *Processor) runPeriodicallyUntilCancelled(f func(context.Context) error, d time.Duration) {
	defer p.wg.Done()

	for {
		if err := f(p.cctx); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}

			select {
			case p.errCh <- err:
			default:
				p.logger.Warn("missed error in outbox processing", zap.Error(err))
			}
		}

		// Wait until the next sweep or cancellation.
		select {
		case <-time.After(d):
		case <-p.cctx.Done():
			return
		}
	}
}

// processBatch claims a batch of due entries and publishes each of them.
// Publish errors are handled per entry and never abort the batch.
func (p *Processor) processBatch(ctx context.Context) error {
	entries, err := p.store.Claim(ctx, p.claimant, p.lease, p.batchSize)
	if err != nil {
		return fmt.Errorf("could not claim outbox entries: %w", err)
	}

	for _, entry := range entries {
		if err := p.processEntry(ctx, entry); err != nil {
			select {
			case p.errCh <- &bb.OutboxError{Err: err, Entry: entry}:
			default:
				p.logger.Warn("missed error in outbox processing",
					zap.Error(err), zap.String("entry_id", entry.ID.String()))
			}
		}
	}

	return nil
}

func (p *Processor) processEntry(ctx context.Context, entry *bb.Entry) error {
	// Use a detached context so a publish in flight can finish and be marked
	// when the processor is closed.
	ctx = context.WithoutCancel(ctx)

	if err := p.publisher.Publish(ctx, entry.Topic, entry.ID, entry.Payload); err != nil {
		return p.handlePublishFailure(ctx, entry, err)
	}

	// A crash here leaves the entry pending and it will be republished after
	// the lease expires; consumers deduplicate on the event ID.
	if err := p.store.MarkPublished(ctx, entry.ID); err != nil {
		return fmt.Errorf("could not mark entry published: %w", err)
	}

	p.logger.Debug("published outbox entry",
		zap.String("entry_id", entry.ID.String()),
		zap.String("event_type", entry.EventType.String()),
		zap.String("topic", entry.Topic),
	)

	return nil
}

func (p *Processor) handlePublishFailure(ctx context.Context, entry *bb.Entry, cause error) error {
	attempts, err := p.store.MarkFailed(ctx, entry.ID, cause,
		time.Now().Add(p.backoff.ForAttempt(float64(entry.AttemptCount))))
	if err != nil {
		return fmt.Errorf("could not mark entry failed: %w", err)
	}

	if attempts >= p.maxAttempts {
		if err := p.store.MarkDead(ctx, entry.ID, cause); err != nil {
			return fmt.Errorf("could not dead-letter entry: %w", err)
		}

		p.logger.Error("outbox entry dead-lettered",
			zap.String("entry_id", entry.ID.String()),
			zap.String("event_type", entry.EventType.String()),
			zap.Int("attempts", attempts),
			zap.Error(cause),
		)

		return fmt.Errorf("entry dead-lettered after %d attempts: %w", attempts, cause)
	}

	p.logger.Warn("outbox publish failed",
		zap.String("entry_id", entry.ID.String()),
		zap.Int("attempts", attempts),
		zap.Error(cause),
	)

	return fmt.Errorf("could not publish entry: %w", cause)
}

func (p *Processor) purgePublished(ctx context.Context) error {
	purged, err := p.store.PurgePublished(ctx, p.retention)
	if err != nil {
		return fmt.Errorf("could not purge published entries: %w", err)
	}

	if purged > 0 {
		p.logger.Debug("purged published outbox entries", zap.Int("count", purged))
	}

	return nil
}
