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

package validate_test

import (
	"context"
	"errors"
	"testing"

	bb "github.com/bookingmicroservices/buildingblocks"
	"github.com/bookingmicroservices/buildingblocks/middleware/request/validate"
	"github.com/bookingmicroservices/buildingblocks/mocks"
	"github.com/bookingmicroservices/buildingblocks/uuid"
)

func TestMiddlewareValid(t *testing.T) {
	handler := &mocks.RequestHandler{Response: "response"}
	chain := bb.UseRequestHandlerMiddleware(handler, validate.NewMiddleware())

	resp, err := chain.HandleRequest(context.Background(), mocks.Command{
		ID:      uuid.New(),
		Content: "test",
	})
	if err != nil {
		t.Fatal("there should be no error:", err)
	}

	if resp != "response" {
		t.Error("the response should be correct:", resp)
	}

	// The optional field may stay zero.
	if handler.Handled() != 1 {
		t.Error("the handler should be invoked once:", handler.Handled())
	}
}

func TestMiddlewareAggregatesViolations(t *testing.T) {
	handler := &mocks.RequestHandler{}
	chain := bb.UseRequestHandlerMiddleware(handler, validate.NewMiddleware())

	// Both required fields are missing.
	_, err := chain.HandleRequest(context.Background(), mocks.Command{})

	var validationErr *bb.ValidationError
	if !errors.As(err, &validationErr) {
		t.Fatal("the error should be a validation error:", err)
	}

	fields := map[string]bool{}
	for _, v := range validationErr.Violations {
		fields[v.Field] = true
	}

	if !fields["ID"] || !fields["Content"] {
		t.Error("all violations should be reported:", validationErr.Violations)
	}

	if handler.Handled() != 0 {
		t.Error("the handler should not be invoked:", handler.Handled())
	}
}

type validatingCommand struct {
	mocks.Command

	Valid bool `bb:"optional"`
}

func (c validatingCommand) Validate() error {
	if !c.Valid {
		return errors.New("the command is invalid")
	}

	return nil
}

func TestMiddlewareValidateMethod(t *testing.T) {
	handler := &mocks.RequestHandler{}
	chain := bb.UseRequestHandlerMiddleware(handler, validate.NewMiddleware())

	_, err := chain.HandleRequest(context.Background(), validatingCommand{
		Command: mocks.Command{ID: uuid.New(), Content: "test"},
	})

	var validationErr *bb.ValidationError
	if !errors.As(err, &validationErr) {
		t.Fatal("the error should be a validation error:", err)
	}

	if len(validationErr.Violations) != 1 || validationErr.Violations[0].Rule != "validate" {
		t.Error("the method violation should be reported:", validationErr.Violations)
	}

	if _, err := chain.HandleRequest(context.Background(), validatingCommand{
		Command: mocks.Command{ID: uuid.New(), Content: "test"},
		Valid:   true,
	}); err != nil {
		t.Error("there should be no error:", err)
	}
}
