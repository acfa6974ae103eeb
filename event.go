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
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bookingmicroservices/buildingblocks/uuid"
)

// Event is a domain event describing a change that has happened to an
// aggregate.
//
// An event name should 1) be in past tense and 2) contain the intent
// (SeatReserved vs SeatStatusChanged).
//
// The event should contain all the data needed when applying/handling it.
type Event interface {
	// EventType returns the type of the event.
	EventType() EventType
	// The data attached to the event.
	Data() EventData
	// Timestamp of when the event was created.
	Timestamp() time.Time

	// AggregateType is the type of the aggregate that the event belongs to.
	AggregateType() AggregateType
	// AggregateID is the ID of the aggregate that the event belongs to.
	AggregateID() uuid.UUID
	// Version of the aggregate for this event, after the event was applied.
	Version() int

	// Metadata is app-specific metadata such as request ID, originating user etc.
	Metadata() map[string]interface{}

	// A string representation of the event.
	String() string
}

// EventType is the type of an event, used as its unique identifier.
type EventType string

// String implements the fmt.Stringer interface.
func (et EventType) String() string {
	return string(et)
}

// AggregateType is the type of an aggregate.
type AggregateType string

// String implements the fmt.Stringer interface.
func (at AggregateType) String() string {
	return string(at)
}

// EventData is any additional data for an event.
type EventData interface{}

// EventOption is an option to use when creating events.
type EventOption func(*event)

// ForAggregate adds aggregate data when creating an event.
func ForAggregate(aggregateType AggregateType, aggregateID uuid.UUID, version int) EventOption {
	return func(e *event) {
		e.aggregateType = aggregateType
		e.aggregateID = aggregateID
		e.version = version
	}
}

// WithMetadata adds metadata when creating an event.
func WithMetadata(metadata map[string]interface{}) EventOption {
	return func(e *event) {
		if e.metadata == nil {
			e.metadata = metadata

			return
		}

		for k, v := range metadata {
			e.metadata[k] = v
		}
	}
}

// NewEvent creates a new event with a type and data, setting its timestamp.
func NewEvent(eventType EventType, data EventData, timestamp time.Time, options ...EventOption) Event {
	e := &event{
		eventType: eventType,
		data:      data,
		timestamp: timestamp,
	}

	for _, option := range options {
		if option == nil {
			continue
		}

		option(e)
	}

	return e
}

// event is an internal representation of an event, returned when the aggregate
// uses NewEvent to create a new event. The events loaded from the db is
// represented by each db-driver.
type event struct {
	eventType     EventType
	data          EventData
	timestamp     time.Time
	aggregateType AggregateType
	aggregateID   uuid.UUID
	version       int
	metadata      map[string]interface{}
}

// EventType implements the EventType method of the Event interface.
func (e *event) EventType() EventType {
	return e.eventType
}

// Data implements the Data method of the Event interface.
func (e *event) Data() EventData {
	return e.data
}

// Timestamp implements the Timestamp method of the Event interface.
func (e *event) Timestamp() time.Time {
	return e.timestamp
}

// AggregateType implements the AggregateType method of the Event interface.
func (e *event) AggregateType() AggregateType {
	return e.aggregateType
}

// AggregateID implements the AggregateID method of the Event interface.
func (e *event) AggregateID() uuid.UUID {
	return e.aggregateID
}

// Version implements the Version method of the Event interface.
func (e *event) Version() int {
	return e.version
}

// Metadata implements the Metadata method of the Event interface.
func (e *event) Metadata() map[string]interface{} {
	return e.metadata
}

// String implements the String method of the Event interface.
func (e *event) String() string {
	str := string(e.eventType)

	if e.version != 0 {
		str += fmt.Sprintf("@%d", e.version)
	}

	return str
}

var eventDataFactories = make(map[EventType]func() EventData)
var eventDataFactoriesMu sync.RWMutex

// ErrEventDataNotRegistered is when no event data factory was registered.
var ErrEventDataNotRegistered = errors.New("event data not registered")

// RegisterEventData registers an event data factory for a type. The factory
// is used to create concrete event data structs when loading from the database.
//
// An example would be:
//
//	RegisterEventData(MyEventType, func() EventData { return &MyEventData{} })
func RegisterEventData(eventType EventType, factory func() EventData) {
	if eventType == EventType("") {
		panic("buildingblocks: attempt to register empty event type")
	}

	eventDataFactoriesMu.Lock()
	defer eventDataFactoriesMu.Unlock()

	if _, ok := eventDataFactories[eventType]; ok {
		panic(fmt.Sprintf("buildingblocks: registering duplicate types for %q", eventType))
	}
	eventDataFactories[eventType] = factory
}

// UnregisterEventData removes the registration of the event data factory for
// a type. This is mainly useful in maintenance situations where the event data
// needs to be switched in a migration.
func UnregisterEventData(eventType EventType) {
	if eventType == EventType("") {
		panic("buildingblocks: attempt to unregister empty event type")
	}

	eventDataFactoriesMu.Lock()
	defer eventDataFactoriesMu.Unlock()

	if _, ok := eventDataFactories[eventType]; !ok {
		panic(fmt.Sprintf("buildingblocks: unregister of non-registered type %q", eventType))
	}
	delete(eventDataFactories, eventType)
}

// CreateEventData creates an event data of a type using the factory registered
// with RegisterEventData.
func CreateEventData(eventType EventType) (EventData, error) {
	eventDataFactoriesMu.RLock()
	defer eventDataFactoriesMu.RUnlock()

	if factory, ok := eventDataFactories[eventType]; ok {
		return factory(), nil
	}

	return nil, ErrEventDataNotRegistered
}
