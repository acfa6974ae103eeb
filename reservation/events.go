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
	// SeatReservedEvent is when a seat was reserved for a passenger.
	SeatReservedEvent bb.EventType = "seat_reserved"
	// SeatReleasedEvent is when a seat reservation was given up.
	SeatReleasedEvent bb.EventType = "seat_released"
)

func init() {
	bb.RegisterEventData(SeatReservedEvent, func() bb.EventData {
		return &SeatReservedData{}
	})
	bb.RegisterEventData(SeatReleasedEvent, func() bb.EventData {
		return &SeatReleasedData{}
	})
}

// SeatReservedData is the event data of SeatReservedEvent.
type SeatReservedData struct {
	FlightNumber string    `json:"flight_number"`
	SeatNumber   string    `json:"seat_number"`
	PassengerID  uuid.UUID `json:"passenger_id"`
}

// SeatReleasedData is the event data of SeatReleasedEvent.
type SeatReleasedData struct {
	FlightNumber string `json:"flight_number"`
	SeatNumber   string `json:"seat_number"`
}
