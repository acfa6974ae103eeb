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

package memory_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	bb "github.com/bookingmicroservices/buildingblocks"
	"github.com/bookingmicroservices/buildingblocks/memory"
	"github.com/bookingmicroservices/buildingblocks/outbox"
	"github.com/bookingmicroservices/buildingblocks/uuid"
)

type testEntity struct {
	ID      uuid.UUID
	Content string
	Version int
}

func (e *testEntity) EntityID() uuid.UUID { return e.ID }

func (e *testEntity) AggregateVersion() int { return e.Version }

func TestOutboxStore(t *testing.T) {
	s := memory.NewStore()
	outbox.AcceptanceTest(t, s, s, context.Background())
}

func TestSaveAndFind(t *testing.T) {
	s := memory.NewStore()
	ctx := context.Background()
	id := uuid.New()

	tx, err := s.BeginTx(ctx)
	if err != nil {
		t.Fatal("there should be no error:", err)
	}

	if err := s.Save(ctx, tx, &testEntity{ID: id, Content: "a", Version: 1}, 0); err != nil {
		t.Fatal("there should be no error:", err)
	}

	// Read-your-writes inside the transaction.
	entity, err := s.Find(ctx, tx, id)
	if err != nil {
		t.Fatal("there should be no error:", err)
	}

	if entity.(*testEntity).Content != "a" {
		t.Error("the staged write should be visible in its transaction:", entity)
	}

	// Invisible outside until commit.
	if _, err := s.Find(ctx, nil, id); !errors.Is(err, bb.ErrEntityNotFound) {
		t.Error("the error should be correct:", err)
	}

	if err := tx.Commit(ctx); err != nil {
		t.Fatal("there should be no error:", err)
	}

	entity, err = s.Find(ctx, nil, id)
	if err != nil {
		t.Fatal("there should be no error:", err)
	}

	if entity.(*testEntity).Content != "a" {
		t.Error("the committed write should be visible:", entity)
	}

	// Mutating the returned copy must not affect the store.
	entity.(*testEntity).Content = "mutated"

	entity, err = s.Find(ctx, nil, id)
	if err != nil {
		t.Fatal("there should be no error:", err)
	}

	if entity.(*testEntity).Content != "a" {
		t.Error("the store should hand out copies:", entity)
	}
}

func TestSaveVersionConflict(t *testing.T) {
	s := memory.NewStore()
	ctx := context.Background()
	id := uuid.New()

	// Two transactions both observe version zero.
	tx1, _ := s.BeginTx(ctx)
	tx2, _ := s.BeginTx(ctx)

	if err := s.Save(ctx, tx1, &testEntity{ID: id, Content: "one", Version: 1}, 0); err != nil {
		t.Fatal("there should be no error:", err)
	}

	if err := s.Save(ctx, tx2, &testEntity{ID: id, Content: "two", Version: 1}, 0); err != nil {
		t.Fatal("there should be no error:", err)
	}

	if err := tx1.Commit(ctx); err != nil {
		t.Fatal("there should be no error:", err)
	}

	if err := tx2.Commit(ctx); !errors.Is(err, bb.ErrIncorrectEntityVersion) {
		t.Error("the error should be correct:", err)
	}

	entity, err := s.Find(ctx, nil, id)
	if err != nil {
		t.Fatal("there should be no error:", err)
	}

	if entity.(*testEntity).Content != "one" {
		t.Error("the first committer should win:", entity)
	}
}

func TestSaveVersionConflictConcurrent(t *testing.T) {
	s := memory.NewStore()
	ctx := context.Background()
	id := uuid.New()

	const writers = 16

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)

	for i := 0; i < writers; i++ {
		wg.Add(1)

		go func() {
			defer wg.Done()

			tx, err := s.BeginTx(ctx)
			if err != nil {
				t.Error("there should be no error:", err)

				return
			}

			if err := s.Save(ctx, tx, &testEntity{ID: id, Version: 1}, 0); err != nil {
				t.Error("there should be no error:", err)

				return
			}

			if err := tx.Commit(ctx); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			} else if !errors.Is(err, bb.ErrIncorrectEntityVersion) {
				t.Error("the error should be correct:", err)
			}
		}()
	}

	wg.Wait()

	if wins != 1 {
		t.Error("exactly one writer should win:", wins)
	}
}

func TestClaimConcurrent(t *testing.T) {
	s := memory.NewStore()
	ctx := context.Background()

	tx, _ := s.BeginTx(ctx)

	const count = 10

	for i := 0; i < count; i++ {
		if err := s.Append(ctx, tx, &bb.Entry{
			ID:          uuid.New(),
			AggregateID: uuid.New(),
			EventType:   "TestEvent",
			Topic:       "test_events",
			Payload:     []byte("{}"),
		}); err != nil {
			t.Fatal("there should be no error:", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		t.Fatal("there should be no error:", err)
	}

	// Concurrent claimants must not share any entry.
	const claimants = 4

	var wg sync.WaitGroup

	claimed := make([][]*bb.Entry, claimants)

	for i := 0; i < claimants; i++ {
		wg.Add(1)

		go func(i int) {
			defer wg.Done()

			entries, err := s.Claim(ctx, uuid.New().String(), time.Minute, count)
			if err != nil {
				t.Error("there should be no error:", err)

				return
			}

			claimed[i] = entries
		}(i)
	}

	wg.Wait()

	seen := map[uuid.UUID]bool{}
	total := 0

	for _, entries := range claimed {
		for _, entry := range entries {
			if seen[entry.ID] {
				t.Error("an entry should only be claimed once:", entry.ID)
			}

			seen[entry.ID] = true
			total++
		}
	}

	if total != count {
		t.Error("all entries should be claimed exactly once:", total)
	}
}
