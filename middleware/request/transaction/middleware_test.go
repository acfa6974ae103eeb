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

package transaction_test

import (
	"context"
	"errors"
	"testing"
	"time"

	bb "github.com/bookingmicroservices/buildingblocks"
	"github.com/bookingmicroservices/buildingblocks/memory"
	"github.com/bookingmicroservices/buildingblocks/middleware/request/transaction"
	"github.com/bookingmicroservices/buildingblocks/mocks"
	"github.com/bookingmicroservices/buildingblocks/uuid"
)

func newEntry() *bb.Entry {
	return &bb.Entry{
		ID:          uuid.New(),
		AggregateID: uuid.New(),
		EventType:   "TestEvent",
		Topic:       "test_events",
		Payload:     []byte("{}"),
	}
}

func TestMiddlewareCommits(t *testing.T) {
	store := memory.NewStore()

	middleware, err := transaction.NewMiddleware(store)
	if err != nil {
		t.Fatal("there should be no error:", err)
	}

	chain := bb.UseRequestHandlerMiddleware(bb.RequestHandlerFunc(
		func(ctx context.Context, req bb.Request) (any, error) {
			tx := bb.TxFromContext(ctx)
			if tx == nil {
				t.Error("a command should be scoped by a transaction")

				return nil, bb.ErrNoActiveTransaction
			}

			return nil, store.Append(ctx, tx, newEntry())
		},
	), middleware)

	if _, err := chain.HandleRequest(context.Background(), mocks.Command{
		ID:      uuid.New(),
		Content: "test",
	}); err != nil {
		t.Fatal("there should be no error:", err)
	}

	if entries := store.AllEntries(); len(entries) != 1 {
		t.Error("the append should be committed:", entries)
	}
}

func TestMiddlewareRollsBackOnError(t *testing.T) {
	store := memory.NewStore()

	middleware, err := transaction.NewMiddleware(store)
	if err != nil {
		t.Fatal("there should be no error:", err)
	}

	cause := errors.New("handler failed")

	chain := bb.UseRequestHandlerMiddleware(bb.RequestHandlerFunc(
		func(ctx context.Context, req bb.Request) (any, error) {
			if err := store.Append(ctx, bb.TxFromContext(ctx), newEntry()); err != nil {
				return nil, err
			}

			return nil, cause
		},
	), middleware)

	if _, err := chain.HandleRequest(context.Background(), mocks.Command{
		ID:      uuid.New(),
		Content: "test",
	}); !errors.Is(err, cause) {
		t.Error("the error should be correct:", err)
	}

	if entries := store.AllEntries(); len(entries) != 0 {
		t.Error("the append should be rolled back:", entries)
	}
}

func TestMiddlewareSkipsQueries(t *testing.T) {
	store := memory.NewStore()

	middleware, err := transaction.NewMiddleware(store)
	if err != nil {
		t.Fatal("there should be no error:", err)
	}

	chain := bb.UseRequestHandlerMiddleware(bb.RequestHandlerFunc(
		func(ctx context.Context, req bb.Request) (any, error) {
			if tx := bb.TxFromContext(ctx); tx != nil {
				t.Error("a query should not be scoped by a transaction")
			}

			return "response", nil
		},
	), middleware)

	resp, err := chain.HandleRequest(context.Background(), mocks.Query{ID: uuid.New()})
	if err != nil {
		t.Fatal("there should be no error:", err)
	}

	if resp != "response" {
		t.Error("the response should be correct:", resp)
	}
}

func TestMiddlewareTimeout(t *testing.T) {
	store := memory.NewStore()

	middleware, err := transaction.NewMiddleware(store,
		transaction.WithTimeout(5*time.Millisecond),
	)
	if err != nil {
		t.Fatal("there should be no error:", err)
	}

	chain := bb.UseRequestHandlerMiddleware(bb.RequestHandlerFunc(
		func(ctx context.Context, req bb.Request) (any, error) {
			if err := store.Append(ctx, bb.TxFromContext(ctx), newEntry()); err != nil {
				return nil, err
			}

			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Second):
				return "response", nil
			}
		},
	), middleware)

	if _, err := chain.HandleRequest(context.Background(), mocks.Command{
		ID:      uuid.New(),
		Content: "test",
	}); !errors.Is(err, bb.ErrTimeout) {
		t.Error("the error should be correct:", err)
	}

	// The timed out command was rolled back.
	if entries := store.AllEntries(); len(entries) != 0 {
		t.Error("the append should be rolled back:", entries)
	}
}
