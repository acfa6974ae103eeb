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

// Package memory provides an in-memory store of versioned entities and outbox
// entries sharing one transaction scope, used in tests and examples.
package memory

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"sync"
	"time"

	"github.com/jinzhu/copier"

	bb "github.com/bookingmicroservices/buildingblocks"
	"github.com/bookingmicroservices/buildingblocks/uuid"
)

// Store is an in-memory versioned entity store with a co-located outbox.
// Writes are staged in transactions and applied atomically at commit, with
// the optimistic version check re-run under the store lock so concurrent
// transactions on the same entity cannot both win.
type Store struct {
	entities map[uuid.UUID]*entityRecord
	outbox   map[uuid.UUID]*bb.Entry
	mu       sync.RWMutex
}

type entityRecord struct {
	entity  bb.Entity
	version int
}

// NewStore creates a new Store.
func NewStore() *Store {
	return &Store{
		entities: map[uuid.UUID]*entityRecord{},
		outbox:   map[uuid.UUID]*bb.Entry{},
	}
}

// BeginTx implements the BeginTx method of the buildingblocks.TxBeginner
// interface.
func (s *Store) BeginTx(ctx context.Context) (bb.Tx, error) {
	return &Tx{store: s}, nil
}

// Find returns a copy of the stored entity. Reads staged writes of the given
// transaction first, so a handler sees its own uncommitted changes.
func (s *Store) Find(ctx context.Context, tx bb.Tx, id uuid.UUID) (bb.Entity, error) {
	if tx != nil {
		t, err := s.ownTx(tx)
		if err != nil {
			return nil, err
		}

		t.mu.Lock()
		for _, save := range t.saves {
			if save.entity.EntityID() == id {
				entity := copyEntity(save.entity)
				t.mu.Unlock()

				return entity, nil
			}
		}
		t.mu.Unlock()
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.entities[id]
	if !ok {
		return nil, bb.ErrEntityNotFound
	}

	return copyEntity(record.entity), nil
}

// Save stages an entity write in the transaction. The expected version is the
// stored version the caller observed before mutating; it is re-checked at
// commit time. A missing entity counts as version zero.
func (s *Store) Save(ctx context.Context, tx bb.Tx, entity bb.Entity, expectedVersion int) error {
	t, err := s.ownTx(tx)
	if err != nil {
		return err
	}

	if entity.EntityID() == uuid.Nil {
		return fmt.Errorf("%w: %s", bb.ErrCouldNotSaveEntity, bb.ErrMissingEntityID)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.done {
		return bb.ErrNoActiveTransaction
	}

	t.saves = append(t.saves, stagedSave{
		entity:          copyEntity(entity),
		expectedVersion: expectedVersion,
	})

	return nil
}

// Append implements the Append method of the buildingblocks.OutboxStore
// interface.
func (s *Store) Append(ctx context.Context, tx bb.Tx, entry *bb.Entry) error {
	t, err := s.ownTx(tx)
	if err != nil {
		return err
	}

	if entry.ID == uuid.Nil {
		return errors.New("missing outbox entry ID")
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.done {
		return bb.ErrNoActiveTransaction
	}

	staged := copyEntry(entry)
	staged.Status = bb.EntryStatusPending
	if staged.CreatedAt.IsZero() {
		staged.CreatedAt = time.Now()
	}
	if staged.NextAttemptAt.IsZero() {
		staged.NextAttemptAt = staged.CreatedAt
	}

	t.appends = append(t.appends, staged)

	return nil
}

// FetchPending implements the FetchPending method of the
// buildingblocks.OutboxStore interface.
func (s *Store) FetchPending(ctx context.Context, limit int, olderThan time.Duration) ([]*bb.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cutoff := time.Now().Add(-olderThan)

	var pending []*bb.Entry

	for _, entry := range s.outbox {
		if entry.Status != bb.EntryStatusPending {
			continue
		}
		if entry.CreatedAt.After(cutoff) {
			continue
		}
		pending = append(pending, copyEntry(entry))
	}

	sort.Slice(pending, func(i, j int) bool {
		return pending[i].CreatedAt.Before(pending[j].CreatedAt)
	})

	if limit > 0 && len(pending) > limit {
		pending = pending[:limit]
	}

	return pending, nil
}

// Claim implements the Claim method of the buildingblocks.OutboxStore
// interface.
func (s *Store) Claim(ctx context.Context, claimant string, lease time.Duration, limit int) ([]*bb.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()

	var due []*bb.Entry

	for _, entry := range s.outbox {
		if entry.Status != bb.EntryStatusPending {
			continue
		}
		if entry.NextAttemptAt.After(now) {
			continue
		}
		if !entry.ClaimedUntil.IsZero() && entry.ClaimedUntil.After(now) {
			// Held under an unexpired lease.
			continue
		}
		due = append(due, entry)
	}

	sort.Slice(due, func(i, j int) bool {
		return due[i].CreatedAt.Before(due[j].CreatedAt)
	})

	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}

	claimed := make([]*bb.Entry, 0, len(due))

	for _, entry := range due {
		entry.ClaimedBy = claimant
		entry.ClaimedUntil = now.Add(lease)
		claimed = append(claimed, copyEntry(entry))
	}

	return claimed, nil
}

// MarkPublished implements the MarkPublished method of the
// buildingblocks.OutboxStore interface.
func (s *Store) MarkPublished(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.outbox[id]
	if !ok {
		return bb.ErrEntryNotFound
	}

	if entry.Status == bb.EntryStatusPublished {
		// Idempotent re-mark, for example after a crash between publish
		// and mark.
		return nil
	}

	entry.Status = bb.EntryStatusPublished
	entry.PublishedAt = time.Now()
	entry.AttemptCount++
	entry.ClaimedBy = ""
	entry.ClaimedUntil = time.Time{}

	return nil
}

// MarkFailed implements the MarkFailed method of the
// buildingblocks.OutboxStore interface.
func (s *Store) MarkFailed(ctx context.Context, id uuid.UUID, cause error, retryAt time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.outbox[id]
	if !ok {
		return 0, bb.ErrEntryNotFound
	}

	entry.AttemptCount++
	if cause != nil {
		entry.LastError = cause.Error()
	}
	entry.NextAttemptAt = retryAt
	entry.ClaimedBy = ""
	entry.ClaimedUntil = time.Time{}

	return entry.AttemptCount, nil
}

// MarkDead implements the MarkDead method of the buildingblocks.OutboxStore
// interface.
func (s *Store) MarkDead(ctx context.Context, id uuid.UUID, cause error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.outbox[id]
	if !ok {
		return bb.ErrEntryNotFound
	}

	entry.Status = bb.EntryStatusFailed
	if cause != nil {
		entry.LastError = cause.Error()
	}
	entry.ClaimedBy = ""
	entry.ClaimedUntil = time.Time{}

	return nil
}

// PurgePublished implements the PurgePublished method of the
// buildingblocks.OutboxStore interface.
func (s *Store) PurgePublished(ctx context.Context, olderThan time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().Add(-olderThan)
	purged := 0

	for id, entry := range s.outbox {
		if entry.Status != bb.EntryStatusPublished {
			continue
		}
		if entry.PublishedAt.After(cutoff) {
			continue
		}
		delete(s.outbox, id)
		purged++
	}

	return purged, nil
}

// Entry returns a copy of an outbox entry by ID, useful for inspection in
// tests and operational tooling.
func (s *Store) Entry(id uuid.UUID) (*bb.Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.outbox[id]
	if !ok {
		return nil, false
	}

	return copyEntry(entry), true
}

// AllEntries returns copies of all outbox entries, ordered by creation time.
func (s *Store) AllEntries() []*bb.Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := make([]*bb.Entry, 0, len(s.outbox))
	for _, entry := range s.outbox {
		all = append(all, copyEntry(entry))
	}

	sort.Slice(all, func(i, j int) bool {
		return all[i].CreatedAt.Before(all[j].CreatedAt)
	})

	return all
}

func (s *Store) ownTx(tx bb.Tx) (*Tx, error) {
	if tx == nil {
		return nil, bb.ErrNoActiveTransaction
	}

	t, ok := tx.(*Tx)
	if !ok || t.store != s {
		return nil, fmt.Errorf("transaction does not belong to this store")
	}

	return t, nil
}

// Tx is a staging transaction on a Store.
type Tx struct {
	store   *Store
	saves   []stagedSave
	appends []*bb.Entry
	done    bool
	mu      sync.Mutex
}

type stagedSave struct {
	entity          bb.Entity
	expectedVersion int
}

// Commit implements the Commit method of the buildingblocks.Tx interface.
// All expected versions are re-validated under the store lock before any
// write is applied; on a version conflict nothing is applied and
// ErrIncorrectEntityVersion is returned.
func (t *Tx) Commit(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.done {
		return nil
	}
	t.done = true

	s := t.store

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, save := range t.saves {
		stored := 0
		if record, ok := s.entities[save.entity.EntityID()]; ok {
			stored = record.version
		}

		if stored != save.expectedVersion {
			return bb.ErrIncorrectEntityVersion
		}
	}

	for _, save := range t.saves {
		version := save.expectedVersion + 1
		if versionable, ok := save.entity.(bb.Versionable); ok {
			version = versionable.AggregateVersion()
		}

		s.entities[save.entity.EntityID()] = &entityRecord{
			entity:  save.entity,
			version: version,
		}
	}

	for _, entry := range t.appends {
		s.outbox[entry.ID] = entry
	}

	return nil
}

// Rollback implements the Rollback method of the buildingblocks.Tx interface.
func (t *Tx) Rollback(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.saves = nil
	t.appends = nil
	t.done = true

	return nil
}

func copyEntity(entity bb.Entity) bb.Entity {
	rv := reflect.ValueOf(entity)
	if rv.Kind() != reflect.Ptr {
		return entity
	}

	copied := reflect.New(rv.Type().Elem()).Interface()
	copier.Copy(copied, entity)

	return copied.(bb.Entity)
}

func copyEntry(entry *bb.Entry) *bb.Entry {
	copied := &bb.Entry{}
	copier.Copy(copied, entry)
	copied.Payload = append([]byte(nil), entry.Payload...)

	return copied
}
