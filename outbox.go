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

package buildingblocks

import (
	"context"
	"errors"
	"time"

	"github.com/bookingmicroservices/buildingblocks/uuid"
)

// ErrEntryNotFound is when an outbox entry could not be found.
var ErrEntryNotFound = errors.New("could not find outbox entry")

// EntryStatus is the publication status of an outbox entry.
type EntryStatus string

const (
	// EntryStatusPending is an entry waiting to be published, possibly after
	// failed attempts.
	EntryStatusPending EntryStatus = "pending"
	// EntryStatusPublished is a terminal status: the broker has acknowledged
	// the entry. Published entries are retained for audit until purged.
	EntryStatusPublished EntryStatus = "published"
	// EntryStatusFailed is a terminal status: the entry exhausted its publish
	// attempts and needs operator intervention.
	EntryStatusFailed EntryStatus = "failed"
)

// Entry is a durable record of a domain event, written in the same
// transaction as the aggregate state change it describes. Never before,
// never after, never without.
type Entry struct {
	// ID is the unique event ID, generated at write time. Downstream
	// consumers deduplicate on it.
	ID uuid.UUID
	// AggregateID is the ID of the aggregate the event belongs to.
	AggregateID uuid.UUID
	// EventType is the type of the serialized event.
	EventType EventType
	// Topic is the broker topic the event is published to.
	Topic string
	// Payload is the codec-serialized event.
	Payload []byte
	// Status of the entry.
	Status EntryStatus
	// AttemptCount is the number of publish attempts made so far.
	AttemptCount int
	// LastError is the error of the last failed publish attempt, if any.
	LastError string
	// CreatedAt is when the entry was written, used for oldest-first
	// fetching.
	CreatedAt time.Time
	// ClaimedBy is the processor instance currently holding the entry, if
	// any.
	ClaimedBy string
	// ClaimedUntil is when the current claim lease expires; after that a
	// crashed claimant's entries become reclaimable.
	ClaimedUntil time.Time
	// NextAttemptAt is when the entry becomes due for its next publish
	// attempt (backoff scheduling).
	NextAttemptAt time.Time
	// PublishedAt is when the broker acknowledged the entry.
	PublishedAt time.Time
}

// OutboxStore is a durable store of outbox entries, co-located with the
// aggregate store so that Append can share the aggregate write's transaction.
type OutboxStore interface {
	// Append stages an entry in the given transaction. The entry becomes
	// durable if and only if the transaction commits. Returns
	// ErrNoActiveTransaction when tx is nil and an error when tx was not
	// opened by this store.
	Append(ctx context.Context, tx Tx, entry *Entry) error

	// FetchPending returns up to limit pending entries at least olderThan
	// old, ordered by creation time ascending. The ordering is a best-effort
	// approximation of emission order, not a total order: concurrent
	// transactions may commit out of wall-clock order.
	FetchPending(ctx context.Context, limit int, olderThan time.Duration) ([]*Entry, error)

	// Claim atomically claims up to limit due pending entries for the given
	// claimant using a conditional update on the claim lease; entries held
	// under an unexpired lease by another claimant are skipped.
	Claim(ctx context.Context, claimant string, lease time.Duration, limit int) ([]*Entry, error)

	// MarkPublished marks an entry as acknowledged by the broker. It is
	// idempotent: re-marking an already published entry is a no-op.
	MarkPublished(ctx context.Context, id uuid.UUID) error

	// MarkFailed records a failed publish attempt: increments the attempt
	// count, records the cause, releases the claim and schedules the next
	// attempt. Returns the new attempt count.
	MarkFailed(ctx context.Context, id uuid.UUID, cause error, retryAt time.Time) (int, error)

	// MarkDead marks an entry as permanently failed after its attempts were
	// exhausted. Dead entries are kept for operator inspection.
	MarkDead(ctx context.Context, id uuid.UUID, cause error) error

	// PurgePublished removes published entries older than the retention
	// window, returning the number of removed entries.
	PurgePublished(ctx context.Context, olderThan time.Duration) (int, error)
}

// EventPublisher publishes serialized events to a broker. Publish must return
// only after the broker has acknowledged the message. Delivery downstream is
// at least once; consumers deduplicate on the event ID.
type EventPublisher interface {
	Publish(ctx context.Context, topic string, eventID uuid.UUID, payload []byte) error
}

// OutboxError is an async error from outbox processing.
type OutboxError struct {
	// Err is the error.
	Err error
	// Entry is the entry being processed when the error happened, if any.
	Entry *Entry
}

// Error implements the Error method of the errors.Error interface.
func (e *OutboxError) Error() string {
	str := "outbox: "

	if e.Err != nil {
		str += e.Err.Error()
	} else {
		str += "unknown error"
	}

	if e.Entry != nil {
		str += " [" + e.Entry.EventType.String() + "@" + e.Entry.ID.String() + "]"
	}

	return str
}

// Unwrap implements the errors.Unwrap method.
func (e *OutboxError) Unwrap() error {
	return e.Err
}

// Cause implements the github.com/pkg/errors Unwrap method.
func (e *OutboxError) Cause() error {
	return e.Unwrap()
}
