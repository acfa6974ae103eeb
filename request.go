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
	"github.com/bookingmicroservices/buildingblocks/uuid"
)

// Request is a command or query that is sent to a Mediator. Requests are
// immutable values created per call; all input a handler needs must be
// carried as fields.
type Request interface {
	// RequestType returns the type of the request, used as its unique
	// identifier in the dispatch registry.
	RequestType() RequestType
}

// RequestType is the type of a request, used as its unique identifier.
type RequestType string

// String implements the fmt.Stringer interface.
func (rt RequestType) String() string {
	return string(rt)
}

// Command is a request with write intent, handled inside a transaction.
//
// A command name should 1) be in present tense and 2) contain the intent
// (ReserveSeat vs UpdateSeatStatus).
//
// The command fields can take an optional "bb" tag, which adds properties.
// For now only "optional" is a valid tag: `bb:"optional"`.
type Command interface {
	Request

	// AggregateID returns the ID of the aggregate that the command should be
	// handled by.
	AggregateID() uuid.UUID
}

// Query is a request with read intent. Queries must not mutate state and are
// dispatched outside of any transaction.
type Query interface {
	Request

	// IsQuery is a marker to keep commands from accidentally satisfying the
	// interface.
	IsQuery()
}
