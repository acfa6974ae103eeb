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

package postgres

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"

	bb "github.com/bookingmicroservices/buildingblocks"
	"github.com/bookingmicroservices/buildingblocks/uuid"
)

const outboxColumns = `id, aggregate_id, event_type, topic, payload, status,
	attempt_count, last_error, created_at, claimed_by, claimed_until,
	next_attempt_at, published_at`

// Append implements the Append method of the buildingblocks.OutboxStore
// interface.
func (s *Store) Append(ctx context.Context, tx bb.Tx, entry *bb.Entry) error {
	t, err := ownTx(tx)
	if err != nil {
		return err
	}

	createdAt := entry.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	nextAttemptAt := entry.NextAttemptAt
	if nextAttemptAt.IsZero() {
		nextAttemptAt = createdAt
	}

	if _, err := t.tx.Exec(ctx,
		`INSERT INTO outbox (id, aggregate_id, event_type, topic, payload,
			status, created_at, next_attempt_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		entry.ID, entry.AggregateID, entry.EventType.String(), entry.Topic,
		entry.Payload, string(bb.EntryStatusPending), createdAt, nextAttemptAt,
	); err != nil {
		return fmt.Errorf("could not queue entry: %w", err)
	}

	return nil
}

// FetchPending implements the FetchPending method of the
// buildingblocks.OutboxStore interface.
func (s *Store) FetchPending(ctx context.Context, limit int, olderThan time.Duration) ([]*bb.Entry, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.pool.Query(ctx,
		`SELECT `+outboxColumns+`
		 FROM outbox
		 WHERE status = 'pending' AND created_at <= $1
		 ORDER BY created_at
		 LIMIT $2`,
		time.Now().Add(-olderThan), limit)
	if err != nil {
		return nil, fmt.Errorf("could not find entries: %w", err)
	}

	return scanEntries(rows)
}

// Claim implements the Claim method of the buildingblocks.OutboxStore
// interface. Due entries are taken with FOR UPDATE SKIP LOCKED so concurrent
// claimants never hold the same entry at the same time.
func (s *Store) Claim(ctx context.Context, claimant string, lease time.Duration, limit int) ([]*bb.Entry, error) {
	if limit <= 0 {
		limit = 100
	}

	now := time.Now()

	rows, err := s.pool.Query(ctx,
		`UPDATE outbox SET claimed_by = $1, claimed_until = $2
		 WHERE id IN (
			SELECT id FROM outbox
			WHERE status = 'pending'
			  AND next_attempt_at <= $3
			  AND (claimed_until IS NULL OR claimed_until < $3)
			ORDER BY created_at
			LIMIT $4
			FOR UPDATE SKIP LOCKED
		 )
		 RETURNING `+outboxColumns,
		claimant, now.Add(lease), now, limit)
	if err != nil {
		return nil, fmt.Errorf("could not claim entries: %w", err)
	}

	entries, err := scanEntries(rows)
	if err != nil {
		return nil, err
	}

	// RETURNING does not preserve the subquery order.
	sortEntries(entries)

	return entries, nil
}

// MarkPublished implements the MarkPublished method of the
// buildingblocks.OutboxStore interface.
func (s *Store) MarkPublished(ctx context.Context, id uuid.UUID) error {
	res, err := s.pool.Exec(ctx,
		`UPDATE outbox
		 SET status = 'published', published_at = NOW(),
			 attempt_count = attempt_count + 1,
			 claimed_by = NULL, claimed_until = NULL
		 WHERE id = $1 AND status <> 'published'`,
		id)
	if err != nil {
		return fmt.Errorf("could not mark entry published: %w", err)
	}

	if res.RowsAffected() == 0 {
		// Either already published (a no-op) or missing.
		var exists bool
		if err := s.pool.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM outbox WHERE id = $1)`, id,
		).Scan(&exists); err != nil {
			return fmt.Errorf("could not check entry: %w", err)
		}

		if !exists {
			return bb.ErrEntryNotFound
		}
	}

	return nil
}

// MarkFailed implements the MarkFailed method of the
// buildingblocks.OutboxStore interface.
func (s *Store) MarkFailed(ctx context.Context, id uuid.UUID, cause error, retryAt time.Time) (int, error) {
	lastError := ""
	if cause != nil {
		lastError = cause.Error()
	}

	var attempts int
	if err := s.pool.QueryRow(ctx,
		`UPDATE outbox
		 SET attempt_count = attempt_count + 1, last_error = $2,
			 next_attempt_at = $3, claimed_by = NULL, claimed_until = NULL
		 WHERE id = $1
		 RETURNING attempt_count`,
		id, lastError, retryAt,
	).Scan(&attempts); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, bb.ErrEntryNotFound
		}

		return 0, fmt.Errorf("could not mark entry failed: %w", err)
	}

	return attempts, nil
}

// MarkDead implements the MarkDead method of the buildingblocks.OutboxStore
// interface.
func (s *Store) MarkDead(ctx context.Context, id uuid.UUID, cause error) error {
	lastError := ""
	if cause != nil {
		lastError = cause.Error()
	}

	res, err := s.pool.Exec(ctx,
		`UPDATE outbox
		 SET status = 'failed', last_error = $2,
			 claimed_by = NULL, claimed_until = NULL
		 WHERE id = $1`,
		id, lastError)
	if err != nil {
		return fmt.Errorf("could not dead-letter entry: %w", err)
	}

	if res.RowsAffected() == 0 {
		return bb.ErrEntryNotFound
	}

	return nil
}

// PurgePublished implements the PurgePublished method of the
// buildingblocks.OutboxStore interface.
func (s *Store) PurgePublished(ctx context.Context, olderThan time.Duration) (int, error) {
	res, err := s.pool.Exec(ctx,
		`DELETE FROM outbox
		 WHERE status = 'published' AND published_at <= $1`,
		time.Now().Add(-olderThan))
	if err != nil {
		return 0, fmt.Errorf("could not purge entries: %w", err)
	}

	return int(res.RowsAffected()), nil
}

func scanEntries(rows pgx.Rows) ([]*bb.Entry, error) {
	defer rows.Close()

	var entries []*bb.Entry

	for rows.Next() {
		var (
			entry        bb.Entry
			eventType    string
			status       string
			lastError    *string
			claimedBy    *string
			claimedUntil *time.Time
			publishedAt  *time.Time
		)

		if err := rows.Scan(
			&entry.ID, &entry.AggregateID, &eventType, &entry.Topic,
			&entry.Payload, &status, &entry.AttemptCount, &lastError,
			&entry.CreatedAt, &claimedBy, &claimedUntil,
			&entry.NextAttemptAt, &publishedAt,
		); err != nil {
			return nil, fmt.Errorf("could not unmarshal entry: %w", err)
		}

		entry.EventType = bb.EventType(eventType)
		entry.Status = bb.EntryStatus(status)
		if lastError != nil {
			entry.LastError = *lastError
		}
		if claimedBy != nil {
			entry.ClaimedBy = *claimedBy
		}
		if claimedUntil != nil {
			entry.ClaimedUntil = *claimedUntil
		}
		if publishedAt != nil {
			entry.PublishedAt = *publishedAt
		}

		entries = append(entries, &entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("could not read entries: %w", err)
	}

	return entries, nil
}

func sortEntries(entries []*bb.Entry) {
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].CreatedAt.Before(entries[j].CreatedAt)
	})
}
