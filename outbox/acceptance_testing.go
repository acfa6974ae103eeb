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
	"fmt"
	"testing"
	"time"

	"github.com/kr/pretty"

	bb "github.com/bookingmicroservices/buildingblocks"
	"github.com/bookingmicroservices/buildingblocks/uuid"
)

// AcceptanceTest is the acceptance test that all implementations of
// OutboxStore should pass. It should manually be called from a test case in
// each implementation:
//
//	func TestOutboxStore(t *testing.T) {
//	    s := NewStore()
//	    outbox.AcceptanceTest(t, s, s, context.Background())
//	}
func AcceptanceTest(t *testing.T, store bb.OutboxStore, db bb.TxBeginner, ctx context.Context) {
	// Append outside of a transaction is a programming error.
	entry := newTestEntry("entry0")
	if err := store.Append(ctx, nil, entry); !errors.Is(err, bb.ErrNoActiveTransaction) {
		t.Error("the error should be correct:", err)
	}

	// A rolled back transaction leaves no entries.
	tx, err := db.BeginTx(ctx)
	if err != nil {
		t.Fatal("there should be no error:", err)
	}

	if err := store.Append(ctx, tx, newTestEntry("rolled-back")); err != nil {
		t.Error("there should be no error:", err)
	}

	if err := tx.Rollback(ctx); err != nil {
		t.Error("there should be no error:", err)
	}

	pending, err := store.FetchPending(ctx, 10, 0)
	if err != nil {
		t.Fatal("there should be no error:", err)
	}

	if len(pending) != 0 {
		t.Error("there should be no pending entries:", pretty.Sprint(pending))
	}

	// Committed entries become pending, oldest first.
	first := newTestEntry("first")
	second := newTestEntry("second")
	second.CreatedAt = first.CreatedAt.Add(time.Millisecond)
	second.NextAttemptAt = second.CreatedAt

	tx, err = db.BeginTx(ctx)
	if err != nil {
		t.Fatal("there should be no error:", err)
	}

	if err := store.Append(ctx, tx, first); err != nil {
		t.Error("there should be no error:", err)
	}

	if err := store.Append(ctx, tx, second); err != nil {
		t.Error("there should be no error:", err)
	}

	if err := tx.Commit(ctx); err != nil {
		t.Fatal("there should be no error:", err)
	}

	pending, err = store.FetchPending(ctx, 10, 0)
	if err != nil {
		t.Fatal("there should be no error:", err)
	}

	if len(pending) != 2 {
		t.Fatal("there should be two pending entries:", pretty.Sprint(pending))
	}

	if pending[0].ID != first.ID || pending[1].ID != second.ID {
		t.Error("the entries should be ordered oldest first:", pretty.Sprint(pending))
	}

	if pending[0].Status != bb.EntryStatusPending {
		t.Error("the status should be pending:", pending[0].Status)
	}

	// Claiming takes both entries for one claimant; a concurrent claimant
	// gets nothing until the lease expires.
	claimed, err := store.Claim(ctx, "claimant-a", time.Minute, 10)
	if err != nil {
		t.Fatal("there should be no error:", err)
	}

	if len(claimed) != 2 {
		t.Fatal("both entries should be claimed:", pretty.Sprint(claimed))
	}

	other, err := store.Claim(ctx, "claimant-b", time.Minute, 10)
	if err != nil {
		t.Fatal("there should be no error:", err)
	}

	if len(other) != 0 {
		t.Error("a concurrent claimant should get nothing:", pretty.Sprint(other))
	}

	// A failed attempt releases the claim and schedules a retry.
	attempts, err := store.MarkFailed(ctx, first.ID, fmt.Errorf("broker down"), time.Now().Add(-time.Second))
	if err != nil {
		t.Fatal("there should be no error:", err)
	}

	if attempts != 1 {
		t.Error("the attempt count should be 1:", attempts)
	}

	reclaimed, err := store.Claim(ctx, "claimant-b", time.Minute, 10)
	if err != nil {
		t.Fatal("there should be no error:", err)
	}

	if len(reclaimed) != 1 || reclaimed[0].ID != first.ID {
		t.Error("the released entry should be reclaimable:", pretty.Sprint(reclaimed))
	}

	if reclaimed[0].AttemptCount != 1 || reclaimed[0].LastError == "" {
		t.Error("the failure should be recorded:", pretty.Sprint(reclaimed[0]))
	}

	// Publishing is terminal and idempotent.
	if err := store.MarkPublished(ctx, first.ID); err != nil {
		t.Error("there should be no error:", err)
	}

	if err := store.MarkPublished(ctx, first.ID); err != nil {
		t.Error("re-marking should be a no-op:", err)
	}

	if err := store.MarkPublished(ctx, uuid.New()); !errors.Is(err, bb.ErrEntryNotFound) {
		t.Error("the error should be correct:", err)
	}

	// Dead-lettering is terminal.
	if err := store.MarkDead(ctx, second.ID, fmt.Errorf("gave up")); err != nil {
		t.Error("there should be no error:", err)
	}

	pending, err = store.FetchPending(ctx, 10, 0)
	if err != nil {
		t.Fatal("there should be no error:", err)
	}

	if len(pending) != 0 {
		t.Error("there should be no pending entries left:", pretty.Sprint(pending))
	}

	// Published entries are purged after the retention window.
	purged, err := store.PurgePublished(ctx, 0)
	if err != nil {
		t.Fatal("there should be no error:", err)
	}

	if purged != 1 {
		t.Error("the published entry should be purged:", purged)
	}
}

func newTestEntry(content string) *bb.Entry {
	now := time.Now()

	return &bb.Entry{
		ID:            uuid.New(),
		AggregateID:   uuid.New(),
		EventType:     bb.EventType("TestEvent"),
		Topic:         "test_events",
		Payload:       []byte(`{"content":"` + content + `"}`),
		CreatedAt:     now,
		NextAttemptAt: now,
	}
}
