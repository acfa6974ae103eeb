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

// Package reservation implements seat reservations for flights: the
// SeatReservation aggregate, its commands, queries and domain events, and the
// command handler tying the aggregate write to the outbox append.
package reservation

import (
	"time"

	bb "github.com/bookingmicroservices/buildingblocks"
	"github.com/bookingmicroservices/buildingblocks/uuid"
)

// AggregateType is the aggregate type of seat reservations.
const AggregateType bb.AggregateType = "seat_reservation"

// seatNamespace is the UUIDv5 namespace for deterministic seat IDs.
var seatNamespace = uuid.MustParse("c3f06f90-2d3a-4e86-9f24-5bd7a61f93d2")

// SeatID returns the deterministic aggregate ID for a seat on a flight, so
// that all commands for the same seat target the same aggregate.
func SeatID(flightNumber, seatNumber string) uuid.UUID {
	return uuid.NewSHA1(seatNamespace, []byte(flightNumber+"/"+seatNumber))
}

// SeatStatus is the reservation status of a seat.
type SeatStatus string

const (
	// StatusAvailable is a seat that has never been reserved.
	StatusAvailable SeatStatus = "available"
	// StatusReserved is a seat held by a passenger.
	StatusReserved SeatStatus = "reserved"
	// StatusReleased is a seat whose reservation was given up.
	StatusReleased SeatStatus = "released"
)

// SeatReservation is the reservation state of one seat on one flight. The
// version increments exactly once per state transition and is checked
// optimistically on every write.
type SeatReservation struct {
	ID           uuid.UUID  `json:"id"`
	FlightNumber string     `json:"flight_number"`
	SeatNumber   string     `json:"seat_number"`
	Status       SeatStatus `json:"status"`
	PassengerID  uuid.UUID  `json:"passenger_id,omitempty"`
	Version      int        `json:"version"`
	ReservedAt   time.Time  `json:"reserved_at,omitempty"`
	ReleasedAt   time.Time  `json:"released_at,omitempty"`
}

var _ = bb.Entity(&SeatReservation{})
var _ = bb.Versionable(&SeatReservation{})

// EntityID implements the EntityID method of the buildingblocks.Entity
// interface.
func (r *SeatReservation) EntityID() uuid.UUID {
	return r.ID
}

// AggregateVersion implements the AggregateVersion method of the
// buildingblocks.Versionable interface.
func (r *SeatReservation) AggregateVersion() int {
	return r.Version
}
