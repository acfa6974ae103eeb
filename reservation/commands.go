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

package reservation

import (
	bb "github.com/bookingmicroservices/buildingblocks"
	"github.com/bookingmicroservices/buildingblocks/uuid"
)

const (
	// ReserveSeatRequest is the type of the ReserveSeat command.
	ReserveSeatRequest bb.RequestType = "reserve_seat"
	// ReleaseSeatRequest is the type of the ReleaseSeat command.
	ReleaseSeatRequest bb.RequestType = "release_seat"
	// GetSeatRequest is the type of the GetSeat query.
	GetSeatRequest bb.RequestType = "get_seat"
)

var (
	_ = bb.Command(ReserveSeat{})
	_ = bb.Command(ReleaseSeat{})
	_ = bb.Query(GetSeat{})
)

// ReserveSeat reserves a seat on a flight for a passenger.
type ReserveSeat struct {
	FlightNumber string    `json:"flight_number" validate:"required"`
	SeatNumber   string    `json:"seat_number"   validate:"required"`
	PassengerID  uuid.UUID `json:"passenger_id"  validate:"required"`

	// ExpectedVersion is the seat version the caller observed, checked before
	// the reservation is applied. Nil skips the precondition; the write is
	// still protected by the store's version check.
	ExpectedVersion *int `json:"expected_version,omitempty" bb:"optional"`
}

// RequestType implements the RequestType method of the
// buildingblocks.Request interface.
func (c ReserveSeat) RequestType() bb.RequestType { return ReserveSeatRequest }

// AggregateID implements the AggregateID method of the
// buildingblocks.Command interface.
func (c ReserveSeat) AggregateID() uuid.UUID {
	return SeatID(c.FlightNumber, c.SeatNumber)
}

// ReleaseSeat gives up the reservation of a seat on a flight.
type ReleaseSeat struct {
	FlightNumber string `json:"flight_number" validate:"required"`
	SeatNumber   string `json:"seat_number"   validate:"required"`

	// ExpectedVersion is the seat version the caller observed; see
	// ReserveSeat.ExpectedVersion.
	ExpectedVersion *int `json:"expected_version,omitempty" bb:"optional"`
}

// RequestType implements the RequestType method of the
// buildingblocks.Request interface.
func (c ReleaseSeat) RequestType() bb.RequestType { return ReleaseSeatRequest }

// AggregateID implements the AggregateID method of the
// buildingblocks.Command interface.
func (c ReleaseSeat) AggregateID() uuid.UUID {
	return SeatID(c.FlightNumber, c.SeatNumber)
}

// GetSeat returns the reservation state of a seat on a flight.
type GetSeat struct {
	FlightNumber string `json:"flight_number" validate:"required"`
	SeatNumber   string `json:"seat_number"   validate:"required"`
}

// RequestType implements the RequestType method of the
// buildingblocks.Request interface.
func (q GetSeat) RequestType() bb.RequestType { return GetSeatRequest }

// IsQuery implements the IsQuery method of the buildingblocks.Query
// interface.
func (q GetSeat) IsQuery() {}
