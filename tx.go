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
)

// Tx is a scoped transaction shared by the aggregate write and the outbox
// append. It is exclusively owned by the single request invocation that
// opened it and is released deterministically on every exit path.
type Tx interface {
	// Commit makes all writes staged in the transaction durable, atomically.
	Commit(ctx context.Context) error
	// Rollback discards all writes staged in the transaction. Calling
	// Rollback after a successful Commit is a no-op.
	Rollback(ctx context.Context) error
}

// TxBeginner opens transactions, typically implemented by a store.
type TxBeginner interface {
	BeginTx(ctx context.Context) (Tx, error)
}

type txContextKey struct{}

// NewContextWithTx returns a context carrying the scoped transaction, set by
// the transaction behavior for the duration of one request.
func NewContextWithTx(ctx context.Context, tx Tx) context.Context {
	return context.WithValue(ctx, txContextKey{}, tx)
}

// TxFromContext returns the scoped transaction, or nil if the context does
// not carry one.
func TxFromContext(ctx context.Context) Tx {
	if tx, ok := ctx.Value(txContextKey{}).(Tx); ok {
		return tx
	}

	return nil
}
