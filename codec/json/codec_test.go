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

package json

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	bb "github.com/bookingmicroservices/buildingblocks"
	"github.com/bookingmicroservices/buildingblocks/uuid"
)

const codecEventType bb.EventType = "codec_event"

type codecEventData struct {
	Content string `json:"content"`
	Amount  int    `json:"amount"`
}

func init() {
	bb.RegisterEventData(codecEventType, func() bb.EventData {
		return &codecEventData{}
	})
}

func TestEventCodec(t *testing.T) {
	c := &EventCodec{}
	ctx := context.Background()

	id := uuid.New()
	timestamp := time.Date(2025, time.March, 10, 23, 0, 0, 0, time.UTC)

	event := bb.NewEvent(codecEventType,
		&codecEventData{Content: "test", Amount: 42},
		timestamp,
		bb.ForAggregate("test_aggregate", id, 3),
		bb.WithMetadata(map[string]interface{}{"num": 42.0}),
	)

	b, err := c.MarshalEvent(ctx, event)
	if err != nil {
		t.Fatal("there should be no error:", err)
	}

	decoded, err := c.UnmarshalEvent(ctx, b)
	if err != nil {
		t.Fatal("there should be no error:", err)
	}

	if decoded.EventType() != codecEventType {
		t.Error("the event type should be correct:", decoded.EventType())
	}

	if !reflect.DeepEqual(decoded.Data(), event.Data()) {
		t.Error("the event data should be correct:", decoded.Data())
	}

	if !decoded.Timestamp().Equal(timestamp) {
		t.Error("the timestamp should be correct:", decoded.Timestamp())
	}

	if decoded.AggregateType() != "test_aggregate" {
		t.Error("the aggregate type should be correct:", decoded.AggregateType())
	}

	if decoded.AggregateID() != id {
		t.Error("the aggregate ID should be correct:", decoded.AggregateID())
	}

	if decoded.Version() != 3 {
		t.Error("the version should be correct:", decoded.Version())
	}

	if !reflect.DeepEqual(decoded.Metadata(), event.Metadata()) {
		t.Error("the metadata should be correct:", decoded.Metadata())
	}
}

func TestEventCodecUnregisteredData(t *testing.T) {
	c := &EventCodec{}
	ctx := context.Background()

	_, err := c.UnmarshalEvent(ctx, []byte(
		`{"event_type":"unknown_event","data":{"content":"test"}}`,
	))
	if !errors.Is(err, bb.ErrEventDataNotRegistered) {
		t.Error("the error should be correct:", err)
	}
}
