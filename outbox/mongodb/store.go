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

// Package mongodb provides a MongoDB-backed outbox store sharing session
// transactions with aggregate writes.
package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readconcern"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
	"go.mongodb.org/mongo-driver/v2/mongo/writeconcern"

	bb "github.com/bookingmicroservices/buildingblocks"
	"github.com/bookingmicroservices/buildingblocks/uuid"
)

// Store implements a buildingblocks.OutboxStore for MongoDB. Transactions
// require a replica set or sharded cluster.
type Store struct {
	client          *mongo.Client
	clientOwnership clientOwnership
	outbox          *mongo.Collection
}

type clientOwnership int

const (
	internalClient clientOwnership = iota
	externalClient
)

// NewStore creates a new Store with a MongoDB URI: `mongodb://hostname`.
func NewStore(uri, dbName string, options ...Option) (*Store, error) {
	opts := mongoClientOptions(uri)

	client, err := mongo.Connect(opts)
	if err != nil {
		return nil, fmt.Errorf("could not connect to DB: %w", err)
	}

	return newStoreWithClient(client, internalClient, dbName, options...)
}

// NewStoreWithClient creates a new Store with a client. To share a
// transaction with an aggregate store it needs to be created with the same
// client.
func NewStoreWithClient(client *mongo.Client, dbName string, options ...Option) (*Store, error) {
	return newStoreWithClient(client, externalClient, dbName, options...)
}

func mongoClientOptions(uri string) *options.ClientOptions {
	opts := options.Client().ApplyURI(uri)
	opts.SetWriteConcern(writeconcern.Majority())
	opts.SetReadConcern(readconcern.Majority())
	opts.SetReadPreference(readpref.Primary())

	return opts
}

func newStoreWithClient(client *mongo.Client, clientOwnership clientOwnership, dbName string, options ...Option) (*Store, error) {
	if client == nil {
		return nil, fmt.Errorf("missing DB client")
	}

	s := &Store{
		client:          client,
		clientOwnership: clientOwnership,
		outbox:          client.Database(dbName).Collection("outbox"),
	}

	for _, option := range options {
		if err := option(s); err != nil {
			return nil, fmt.Errorf("error while applying option: %w", err)
		}
	}

	if err := s.client.Ping(context.Background(), readpref.Primary()); err != nil {
		return nil, fmt.Errorf("could not connect to MongoDB: %w", err)
	}

	return s, nil
}

// Option is an option setter used to configure creation.
type Option func(*Store) error

// WithCollectionName uses a different collection name than the default
// "outbox".
func WithCollectionName(name string) Option {
	return func(s *Store) error {
		if name == "" {
			return fmt.Errorf("missing collection name")
		}
		s.outbox = s.outbox.Database().Collection(name)

		return nil
	}
}

// Client returns the MongoDB client used by the store.
func (s *Store) Client() *mongo.Client {
	return s.client
}

// Close closes the store and its owned client.
func (s *Store) Close() error {
	if s.clientOwnership == externalClient {
		// Don't close a client we don't own.
		return nil
	}

	return s.client.Disconnect(context.Background())
}

// outboxDoc is the DB representation of an outbox entry.
type outboxDoc struct {
	ID            string    `bson:"_id"`
	AggregateID   string    `bson:"aggregate_id"`
	EventType     string    `bson:"event_type"`
	Topic         string    `bson:"topic"`
	Payload       []byte    `bson:"payload"`
	Status        string    `bson:"status"`
	AttemptCount  int       `bson:"attempt_count"`
	LastError     string    `bson:"last_error,omitempty"`
	CreatedAt     time.Time `bson:"created_at"`
	ClaimedBy     string    `bson:"claimed_by,omitempty"`
	ClaimedUntil  time.Time `bson:"claimed_until,omitempty"`
	NextAttemptAt time.Time `bson:"next_attempt_at"`
	PublishedAt   time.Time `bson:"published_at,omitempty"`
}

func (d *outboxDoc) entry() (*bb.Entry, error) {
	id, err := uuid.Parse(d.ID)
	if err != nil {
		return nil, fmt.Errorf("could not parse entry ID: %w", err)
	}

	aggregateID, err := uuid.Parse(d.AggregateID)
	if err != nil {
		aggregateID = uuid.Nil
	}

	return &bb.Entry{
		ID:            id,
		AggregateID:   aggregateID,
		EventType:     bb.EventType(d.EventType),
		Topic:         d.Topic,
		Payload:       d.Payload,
		Status:        bb.EntryStatus(d.Status),
		AttemptCount:  d.AttemptCount,
		LastError:     d.LastError,
		CreatedAt:     d.CreatedAt,
		ClaimedBy:     d.ClaimedBy,
		ClaimedUntil:  d.ClaimedUntil,
		NextAttemptAt: d.NextAttemptAt,
		PublishedAt:   d.PublishedAt,
	}, nil
}

// BeginTx implements the BeginTx method of the buildingblocks.TxBeginner
// interface, starting a MongoDB session transaction.
func (s *Store) BeginTx(ctx context.Context) (bb.Tx, error) {
	sess, err := s.client.StartSession()
	if err != nil {
		return nil, fmt.Errorf("could not start session: %w", err)
	}

	if err := sess.StartTransaction(); err != nil {
		sess.EndSession(ctx)

		return nil, fmt.Errorf("could not start transaction: %w", err)
	}

	return &Tx{session: sess}, nil
}

// Tx is a MongoDB session transaction.
type Tx struct {
	session *mongo.Session
	done    bool
}

// Commit implements the Commit method of the buildingblocks.Tx interface.
func (t *Tx) Commit(ctx context.Context) error {
	if t.done {
		return nil
	}
	t.done = true

	defer t.session.EndSession(ctx)

	if err := t.session.CommitTransaction(ctx); err != nil {
		return fmt.Errorf("could not commit transaction: %w", err)
	}

	return nil
}

// Rollback implements the Rollback method of the buildingblocks.Tx interface.
func (t *Tx) Rollback(ctx context.Context) error {
	if t.done {
		return nil
	}
	t.done = true

	defer t.session.EndSession(ctx)

	if err := t.session.AbortTransaction(ctx); err != nil {
		return fmt.Errorf("could not abort transaction: %w", err)
	}

	return nil
}

// Append implements the Append method of the buildingblocks.OutboxStore
// interface.
func (s *Store) Append(ctx context.Context, tx bb.Tx, entry *bb.Entry) error {
	if tx == nil {
		return bb.ErrNoActiveTransaction
	}

	t, ok := tx.(*Tx)
	if !ok {
		return fmt.Errorf("transaction does not belong to this store")
	}

	createdAt := entry.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	nextAttemptAt := entry.NextAttemptAt
	if nextAttemptAt.IsZero() {
		nextAttemptAt = createdAt
	}

	doc := &outboxDoc{
		ID:            entry.ID.String(),
		AggregateID:   entry.AggregateID.String(),
		EventType:     entry.EventType.String(),
		Topic:         entry.Topic,
		Payload:       entry.Payload,
		Status:        string(bb.EntryStatusPending),
		CreatedAt:     createdAt,
		NextAttemptAt: nextAttemptAt,
	}

	sessCtx := mongo.NewSessionContext(ctx, t.session)

	if _, err := s.outbox.InsertOne(sessCtx, doc); err != nil {
		return fmt.Errorf("could not queue entry: %w", err)
	}

	return nil
}

// FetchPending implements the FetchPending method of the
// buildingblocks.OutboxStore interface.
func (s *Store) FetchPending(ctx context.Context, limit int, olderThan time.Duration) ([]*bb.Entry, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: 1}})
	if limit > 0 {
		opts = opts.SetLimit(int64(limit))
	}

	cur, err := s.outbox.Find(ctx, bson.M{
		"status":     string(bb.EntryStatusPending),
		"created_at": bson.M{"$lte": time.Now().Add(-olderThan)},
	}, opts)
	if err != nil {
		return nil, fmt.Errorf("could not find entries: %w", err)
	}

	var entries []*bb.Entry

	for cur.Next(ctx) {
		var doc outboxDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("could not unmarshal entry: %w", err)
		}

		entry, err := doc.entry()
		if err != nil {
			return nil, err
		}

		entries = append(entries, entry)
	}

	return entries, cur.Close(ctx)
}

// Claim implements the Claim method of the buildingblocks.OutboxStore
// interface. Each entry is taken with a conditional update so concurrent
// claimants never hold the same entry at the same time.
func (s *Store) Claim(ctx context.Context, claimant string, lease time.Duration, limit int) ([]*bb.Entry, error) {
	now := time.Now()

	opts := options.FindOneAndUpdate().
		SetSort(bson.D{{Key: "created_at", Value: 1}}).
		SetReturnDocument(options.After)

	var claimed []*bb.Entry

	for limit <= 0 || len(claimed) < limit {
		res := s.outbox.FindOneAndUpdate(ctx, bson.M{
			"status":          string(bb.EntryStatusPending),
			"next_attempt_at": bson.M{"$lte": now},
			"$or": bson.A{
				bson.M{"claimed_until": bson.M{"$exists": false}},
				bson.M{"claimed_until": bson.M{"$lt": now}},
			},
		}, bson.M{
			"$set": bson.M{
				"claimed_by":    claimant,
				"claimed_until": now.Add(lease),
			},
		}, opts)

		if err := res.Err(); err != nil {
			if errors.Is(err, mongo.ErrNoDocuments) {
				break
			}

			return nil, fmt.Errorf("could not claim entry: %w", err)
		}

		var doc outboxDoc
		if err := res.Decode(&doc); err != nil {
			return nil, fmt.Errorf("could not unmarshal entry: %w", err)
		}

		entry, err := doc.entry()
		if err != nil {
			return nil, err
		}

		claimed = append(claimed, entry)
	}

	return claimed, nil
}

// MarkPublished implements the MarkPublished method of the
// buildingblocks.OutboxStore interface.
func (s *Store) MarkPublished(ctx context.Context, id uuid.UUID) error {
	res, err := s.outbox.UpdateOne(ctx, bson.M{
		"_id":    id.String(),
		"status": bson.M{"$ne": string(bb.EntryStatusPublished)},
	}, bson.M{
		"$set": bson.M{
			"status":       string(bb.EntryStatusPublished),
			"published_at": time.Now(),
		},
		"$inc": bson.M{"attempt_count": 1},
		"$unset": bson.M{
			"claimed_by":    "",
			"claimed_until": "",
		},
	})
	if err != nil {
		return fmt.Errorf("could not mark entry published: %w", err)
	}

	if res.MatchedCount == 0 {
		// Either already published (a no-op) or missing.
		count, err := s.outbox.CountDocuments(ctx, bson.M{"_id": id.String()})
		if err != nil {
			return fmt.Errorf("could not check entry: %w", err)
		}

		if count == 0 {
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

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	res := s.outbox.FindOneAndUpdate(ctx, bson.M{
		"_id": id.String(),
	}, bson.M{
		"$inc": bson.M{"attempt_count": 1},
		"$set": bson.M{
			"last_error":      lastError,
			"next_attempt_at": retryAt,
		},
		"$unset": bson.M{
			"claimed_by":    "",
			"claimed_until": "",
		},
	}, opts)

	if err := res.Err(); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return 0, bb.ErrEntryNotFound
		}

		return 0, fmt.Errorf("could not mark entry failed: %w", err)
	}

	var doc outboxDoc
	if err := res.Decode(&doc); err != nil {
		return 0, fmt.Errorf("could not unmarshal entry: %w", err)
	}

	return doc.AttemptCount, nil
}

// MarkDead implements the MarkDead method of the buildingblocks.OutboxStore
// interface.
func (s *Store) MarkDead(ctx context.Context, id uuid.UUID, cause error) error {
	lastError := ""
	if cause != nil {
		lastError = cause.Error()
	}

	res, err := s.outbox.UpdateOne(ctx, bson.M{
		"_id": id.String(),
	}, bson.M{
		"$set": bson.M{
			"status":     string(bb.EntryStatusFailed),
			"last_error": lastError,
		},
		"$unset": bson.M{
			"claimed_by":    "",
			"claimed_until": "",
		},
	})
	if err != nil {
		return fmt.Errorf("could not dead-letter entry: %w", err)
	}

	if res.MatchedCount == 0 {
		return bb.ErrEntryNotFound
	}

	return nil
}

// PurgePublished implements the PurgePublished method of the
// buildingblocks.OutboxStore interface.
func (s *Store) PurgePublished(ctx context.Context, olderThan time.Duration) (int, error) {
	res, err := s.outbox.DeleteMany(ctx, bson.M{
		"status":       string(bb.EntryStatusPublished),
		"published_at": bson.M{"$lte": time.Now().Add(-olderThan)},
	})
	if err != nil {
		return 0, fmt.Errorf("could not purge entries: %w", err)
	}

	return int(res.DeletedCount), nil
}
