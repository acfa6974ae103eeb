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

package logging_test

import (
	"context"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	bb "github.com/bookingmicroservices/buildingblocks"
	"github.com/bookingmicroservices/buildingblocks/middleware/request/logging"
	"github.com/bookingmicroservices/buildingblocks/mocks"
	"github.com/bookingmicroservices/buildingblocks/uuid"
)

func TestMiddlewareSuccess(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	chain := bb.UseRequestHandlerMiddleware(
		&mocks.RequestHandler{Response: "response"},
		logging.NewMiddleware(zap.New(core)),
	)

	cmd := mocks.Command{ID: uuid.New(), Content: "test"}

	if _, err := chain.HandleRequest(context.Background(), cmd); err != nil {
		t.Fatal("there should be no error:", err)
	}

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatal("there should be one log entry:", entries)
	}

	if entries[0].Level != zap.DebugLevel {
		t.Error("a success should log at debug level:", entries[0].Level)
	}

	fields := entries[0].ContextMap()
	if fields["request_type"] != "mock_command" {
		t.Error("the request type should be logged:", fields)
	}

	if fields["aggregate_id"] != cmd.ID.String() {
		t.Error("the aggregate ID should be logged for commands:", fields)
	}
}

func TestMiddlewareFailure(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	chain := bb.UseRequestHandlerMiddleware(
		&mocks.RequestHandler{Err: bb.ErrIncorrectEntityVersion},
		logging.NewMiddleware(zap.New(core)),
	)

	if _, err := chain.HandleRequest(context.Background(), mocks.Command{
		ID:      uuid.New(),
		Content: "test",
	}); err == nil {
		t.Fatal("there should be an error")
	}

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatal("there should be one log entry:", entries)
	}

	if entries[0].Level != zap.WarnLevel {
		t.Error("a failure should log at warn level:", entries[0].Level)
	}

	if entries[0].ContextMap()["error_class"] != "concurrency_conflict" {
		t.Error("the error class should be logged:", entries[0].ContextMap())
	}
}
