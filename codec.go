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

// EventCodec is a codec for marshaling and unmarshaling events to and from
// bytes, used for the outbox payload and the broker wire format.
type EventCodec interface {
	// MarshalEvent marshals an event into bytes.
	MarshalEvent(ctx context.Context, event Event) ([]byte, error)
	// UnmarshalEvent unmarshals an event from bytes.
	UnmarshalEvent(ctx context.Context, b []byte) (Event, error)
}
