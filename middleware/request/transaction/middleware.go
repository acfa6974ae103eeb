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

// Package transaction provides the transaction behavior: every command runs
// inside one scoped transaction so the aggregate mutation and the outbox
// append commit or roll back together. Queries pass through untouched.
package transaction

import (
	"context"
	"errors"
	"fmt"
	"time"

	bb "github.com/bookingmicroservices/buildingblocks"
)

// NewMiddleware returns a middleware that opens a transaction from db before
// invoking the inner chain, carries it on the context, commits on success and
// rolls back on any failure. Completion of the transaction is detached from
// the caller's cancellation: an abandoned call never half-applies a write.
func NewMiddleware(db bb.TxBeginner, options ...Option) (bb.RequestHandlerMiddleware, error) {
	if db == nil {
		return nil, errors.New("missing transaction beginner")
	}

	c := &config{}
	for _, option := range options {
		if option == nil {
			continue
		}
		if err := option(c); err != nil {
			return nil, fmt.Errorf("error while applying option: %w", err)
		}
	}

	return bb.RequestHandlerMiddleware(func(h bb.RequestHandler) bb.RequestHandler {
		return bb.RequestHandlerFunc(func(ctx context.Context, req bb.Request) (any, error) {
			// Only commands mutate state and need a transaction.
			if _, ok := req.(bb.Command); !ok {
				return h.HandleRequest(ctx, req)
			}

			if c.timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, c.timeout)
				defer cancel()
			}

			tx, err := db.BeginTx(ctx)
			if err != nil {
				return nil, fmt.Errorf("could not begin transaction: %w", err)
			}

			resp, err := h.HandleRequest(bb.NewContextWithTx(ctx, tx), req)

			// Finish the transaction even when the caller has stopped
			// waiting or the deadline has passed.
			done := context.WithoutCancel(ctx)

			if err != nil {
				if rbErr := tx.Rollback(done); rbErr != nil {
					return nil, fmt.Errorf("could not roll back transaction: %w (handler error: %s)", rbErr, err)
				}

				if errors.Is(err, context.DeadlineExceeded) {
					return nil, fmt.Errorf("%w: %s", bb.ErrTimeout, err)
				}

				return nil, err
			}

			if err := tx.Commit(done); err != nil {
				return nil, err
			}

			return resp, nil
		})
	}), nil
}

// Option is an option setter used to configure creation.
type Option func(*config) error

type config struct {
	timeout time.Duration
}

// WithTimeout enforces a maximum execution duration on each command. On
// expiry the transaction is rolled back and ErrTimeout is returned.
func WithTimeout(d time.Duration) Option {
	return func(c *config) error {
		if d <= 0 {
			return errors.New("timeout must be positive")
		}
		c.timeout = d

		return nil
	}
}
