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

package outbox

import (
	"context"
	"errors"
	"testing"
	"time"

	bb "github.com/bookingmicroservices/buildingblocks"
	"github.com/bookingmicroservices/buildingblocks/memory"
	"github.com/bookingmicroservices/buildingblocks/mocks"
	"github.com/bookingmicroservices/buildingblocks/uuid"
)

func appendEntry(t *testing.T, store *memory.Store) *bb.Entry {
	t.Helper()

	ctx := context.Background()

	tx, err := store.BeginTx(ctx)
	if err != nil {
		t.Fatal("there should be no error:", err)
	}

	entry := &bb.Entry{
		ID:          uuid.New(),
		AggregateID: uuid.New(),
		EventType:   "TestEvent",
		Topic:       "test_events",
		Payload:     []byte(`{"content":"test"}`),
	}

	if err := store.Append(ctx, tx, entry); err != nil {
		t.Fatal("there should be no error:", err)
	}

	if err := tx.Commit(ctx); err != nil {
		t.Fatal("there should be no error:", err)
	}

	return entry
}

func TestProcessorPublishes(t *testing.T) {
	store := memory.NewStore()
	publisher := &mocks.Publisher{}

	p, err := NewProcessor(store, publisher)
	if err != nil {
		t.Fatal("there should be no error:", err)
	}

	defer p.Close()

	entry := appendEntry(t, store)

	if err := p.processBatch(context.Background()); err != nil {
		t.Fatal("there should be no error:", err)
	}

	if publisher.PublishedCount() != 1 {
		t.Fatal("the entry should be published:", publisher.Published)
	}

	msg := publisher.Published[0]
	if msg.Topic != "test_events" || msg.EventID != entry.ID {
		t.Error("the message should be correct:", msg)
	}

	stored, ok := store.Entry(entry.ID)
	if !ok {
		t.Fatal("the entry should still exist")
	}

	if stored.Status != bb.EntryStatusPublished {
		t.Error("the entry should be published:", stored.Status)
	}

	// A later sweep must not publish it again.
	if err := p.processBatch(context.Background()); err != nil {
		t.Fatal("there should be no error:", err)
	}

	if publisher.Attempts != 1 {
		t.Error("there should be no second publish:", publisher.Attempts)
	}
}

func TestProcessorRetriesUntilSuccess(t *testing.T) {
	store := memory.NewStore()
	publisher := &mocks.Publisher{
		Err:          errors.New("broker down"),
		FailuresLeft: 2,
	}

	p, err := NewProcessor(store, publisher,
		WithBackoff(time.Millisecond, time.Millisecond, 1),
	)
	if err != nil {
		t.Fatal("there should be no error:", err)
	}

	defer p.Close()

	entry := appendEntry(t, store)
	ctx := context.Background()

	// Two failing sweeps, then a successful one.
	for i := 0; i < 3; i++ {
		if err := p.processBatch(ctx); err != nil {
			t.Fatal("there should be no error:", err)
		}

		// Wait out the retry backoff.
		time.Sleep(5 * time.Millisecond)
	}

	if publisher.Attempts != 3 {
		t.Error("there should be three attempts:", publisher.Attempts)
	}

	if publisher.PublishedCount() != 1 {
		t.Error("the entry should be published once:", publisher.Published)
	}

	stored, _ := store.Entry(entry.ID)
	if stored.Status != bb.EntryStatusPublished {
		t.Error("the entry should be published:", stored.Status)
	}

	if stored.AttemptCount != 3 {
		t.Error("all attempts should be recorded:", stored.AttemptCount)
	}

	// The failures were reported asynchronously.
	select {
	case err := <-p.Errors():
		var outboxErr *bb.OutboxError
		if !errors.As(err, &outboxErr) {
			t.Error("the error should be an outbox error:", err)
		}
	default:
		t.Error("there should be an async error")
	}
}

func TestProcessorDeadLetters(t *testing.T) {
	store := memory.NewStore()
	publisher := &mocks.Publisher{
		Err:          errors.New("broker down"),
		FailuresLeft: -1,
	}

	p, err := NewProcessor(store, publisher,
		WithBackoff(time.Millisecond, time.Millisecond, 1),
		WithMaxAttempts(2),
	)
	if err != nil {
		t.Fatal("there should be no error:", err)
	}

	defer p.Close()

	entry := appendEntry(t, store)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := p.processBatch(ctx); err != nil {
			t.Fatal("there should be no error:", err)
		}

		time.Sleep(5 * time.Millisecond)
	}

	stored, _ := store.Entry(entry.ID)
	if stored.Status != bb.EntryStatusFailed {
		t.Error("the entry should be dead-lettered:", stored.Status)
	}

	if stored.AttemptCount != 2 {
		t.Error("the attempts should be recorded:", stored.AttemptCount)
	}

	if stored.LastError == "" {
		t.Error("the cause should be recorded")
	}

	// A later sweep must leave dead entries alone.
	if err := p.processBatch(ctx); err != nil {
		t.Fatal("there should be no error:", err)
	}

	if publisher.Attempts != 2 {
		t.Error("there should be no further attempts:", publisher.Attempts)
	}
}

func TestProcessorPurgesPublished(t *testing.T) {
	store := memory.NewStore()
	publisher := &mocks.Publisher{}

	p, err := NewProcessor(store, publisher, WithRetention(time.Nanosecond))
	if err != nil {
		t.Fatal("there should be no error:", err)
	}

	defer p.Close()

	entry := appendEntry(t, store)
	ctx := context.Background()

	if err := p.processBatch(ctx); err != nil {
		t.Fatal("there should be no error:", err)
	}

	time.Sleep(time.Millisecond)

	if err := p.purgePublished(ctx); err != nil {
		t.Fatal("there should be no error:", err)
	}

	if _, ok := store.Entry(entry.ID); ok {
		t.Error("the published entry should be purged")
	}
}

func TestProcessorStartClose(t *testing.T) {
	store := memory.NewStore()
	publisher := &mocks.Publisher{}

	p, err := NewProcessor(store, publisher,
		WithPollInterval(time.Millisecond),
		WithClaimant("test-processor"),
	)
	if err != nil {
		t.Fatal("there should be no error:", err)
	}

	entry := appendEntry(t, store)

	p.Start()

	deadline := time.After(time.Second)

	for {
		if stored, _ := store.Entry(entry.ID); stored != nil &&
			stored.Status == bb.EntryStatusPublished {
			break
		}

		select {
		case <-deadline:
			t.Fatal("the entry should be published")
		case <-time.After(time.Millisecond):
		}
	}

	if err := p.Close(); err != nil {
		t.Error("there should be no error:", err)
	}
}
