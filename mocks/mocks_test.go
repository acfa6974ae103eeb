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

package mocks

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bookingmicroservices/buildingblocks/uuid"
)

func TestRequestHandler(t *testing.T) {
	h := &RequestHandler{Response: "response"}
	cmd := Command{ID: uuid.New(), Content: "test"}

	resp, err := h.HandleRequest(context.Background(), cmd)
	require.NoError(t, err)
	assert.Equal(t, "response", resp)
	assert.Equal(t, 1, h.Handled())

	h.Err = errors.New("scripted failure")

	_, err = h.HandleRequest(context.Background(), cmd)
	assert.Error(t, err)
	assert.Equal(t, 2, h.Handled())
}

func TestPublisherScriptedFailures(t *testing.T) {
	p := &Publisher{
		Err:          errors.New("broker down"),
		FailuresLeft: 2,
	}

	ctx := context.Background()
	eventID := uuid.New()

	// Two scripted failures, then success.
	require.Error(t, p.Publish(ctx, "topic", eventID, []byte("{}")))
	require.Error(t, p.Publish(ctx, "topic", eventID, []byte("{}")))
	require.NoError(t, p.Publish(ctx, "topic", eventID, []byte("{}")))

	assert.Equal(t, 3, p.Attempts)
	require.Equal(t, 1, p.PublishedCount())
	assert.Equal(t, eventID, p.Published[0].EventID)
}

func TestPublisherAlwaysFailing(t *testing.T) {
	p := &Publisher{
		Err:          errors.New("broker down"),
		FailuresLeft: -1,
	}

	for i := 0; i < 5; i++ {
		require.Error(t, p.Publish(context.Background(), "topic", uuid.New(), nil))
	}

	assert.Zero(t, p.PublishedCount())
}
