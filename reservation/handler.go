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
	"context"
	"errors"
	"fmt"
	"time"

	bb "github.com/bookingmicroservices/buildingblocks"
	"github.com/bookingmicroservices/buildingblocks/codec/json"
	"github.com/bookingmicroservices/buildingblocks/uuid"
)

var (
	// ErrSeatAlreadyReserved is when a reserve hits a seat that is already
	// held by a passenger.
	ErrSeatAlreadyReserved = errors.New("seat is already reserved")
	// ErrSeatNotReserved is when a release hits a seat that is not held.
	ErrSeatNotReserved = errors.New("seat is not reserved")
)

// DefaultTopic is the broker topic reservation events are published to.
const DefaultTopic = "reservations"

// Repo is a store of seat reservations with optimistic version checks,
// sharing its transactions with the outbox.
type Repo interface {
	// Find returns the entity with the ID, or ErrEntityNotFound.
	Find(ctx context.Context, tx bb.Tx, id uuid.UUID) (bb.Entity, error)
	// Save writes the entity if the stored version still matches the
	// expected version, or returns ErrIncorrectEntityVersion.
	Save(ctx context.Context, tx bb.Tx, entity bb.Entity, expectedVersion int) error
}

// CommandHandler handles the reservation commands and queries. Writes go
// through the scoped transaction carried in the context, pairing the
// aggregate write with the outbox append so both commit or neither does.
type CommandHandler struct {
	repo   Repo
	outbox bb.OutboxStore
	codec  bb.EventCodec
	topic  string
}

var _ = bb.RequestHandler(&CommandHandler{})

// NewCommandHandler creates a CommandHandler for a repo and an outbox store.
func NewCommandHandler(repo Repo, outbox bb.OutboxStore, options ...Option) (*CommandHandler, error) {
	if repo == nil {
		return nil, fmt.Errorf("missing repo")
	}

	if outbox == nil {
		return nil, fmt.Errorf("missing outbox store")
	}

	h := &CommandHandler{
		repo:   repo,
		outbox: outbox,
		codec:  &json.EventCodec{},
		topic:  DefaultTopic,
	}

	for _, option := range options {
		if option == nil {
			continue
		}
		if err := option(h); err != nil {
			return nil, fmt.Errorf("error while applying option: %w", err)
		}
	}

	return h, nil
}

// Option is an option setter used to configure creation.
type Option func(*CommandHandler) error

// WithCodec uses the specified codec for encoding events.
func WithCodec(codec bb.EventCodec) Option {
	return func(h *CommandHandler) error {
		if codec == nil {
			return fmt.Errorf("missing codec")
		}
		h.codec = codec

		return nil
	}
}

// WithTopic publishes reservation events to another topic than the default
// "reservations".
func WithTopic(topic string) Option {
	return func(h *CommandHandler) error {
		if topic == "" {
			return fmt.Errorf("missing topic")
		}
		h.topic = topic

		return nil
	}
}

// HandleRequest implements the HandleRequest method of the
// buildingblocks.RequestHandler interface.
func (h *CommandHandler) HandleRequest(ctx context.Context, req bb.Request) (any, error) {
	switch req := req.(type) {
	case ReserveSeat:
		return h.reserveSeat(ctx, req)
	case ReleaseSeat:
		return h.releaseSeat(ctx, req)
	case GetSeat:
		return h.getSeat(ctx, req)
	default:
		return nil, fmt.Errorf("unknown request type: %s", req.RequestType())
	}
}

func (h *CommandHandler) reserveSeat(ctx context.Context, cmd ReserveSeat) (any, error) {
	tx := bb.TxFromContext(ctx)
	if tx == nil {
		return nil, bb.ErrNoActiveTransaction
	}

	seat, err := h.findSeat(ctx, tx, cmd.FlightNumber, cmd.SeatNumber)
	if err != nil {
		return nil, err
	}

	if cmd.ExpectedVersion != nil && *cmd.ExpectedVersion != seat.Version {
		return nil, bb.ErrIncorrectEntityVersion
	}

	if seat.Status == StatusReserved {
		return nil, ErrSeatAlreadyReserved
	}

	expected := seat.Version

	seat.Status = StatusReserved
	seat.PassengerID = cmd.PassengerID
	seat.ReservedAt = time.Now()
	seat.Version = expected + 1

	if err := h.repo.Save(ctx, tx, seat, expected); err != nil {
		return nil, err
	}

	if err := h.appendEvent(ctx, tx, seat, SeatReservedEvent, &SeatReservedData{
		FlightNumber: seat.FlightNumber,
		SeatNumber:   seat.SeatNumber,
		PassengerID:  cmd.PassengerID,
	}); err != nil {
		return nil, err
	}

	return seat, nil
}

func (h *CommandHandler) releaseSeat(ctx context.Context, cmd ReleaseSeat) (any, error) {
	tx := bb.TxFromContext(ctx)
	if tx == nil {
		return nil, bb.ErrNoActiveTransaction
	}

	seat, err := h.findSeat(ctx, tx, cmd.FlightNumber, cmd.SeatNumber)
	if err != nil {
		return nil, err
	}

	if cmd.ExpectedVersion != nil && *cmd.ExpectedVersion != seat.Version {
		return nil, bb.ErrIncorrectEntityVersion
	}

	if seat.Status != StatusReserved {
		return nil, ErrSeatNotReserved
	}

	expected := seat.Version

	seat.Status = StatusReleased
	seat.PassengerID = uuid.Nil
	seat.ReleasedAt = time.Now()
	seat.Version = expected + 1

	if err := h.repo.Save(ctx, tx, seat, expected); err != nil {
		return nil, err
	}

	if err := h.appendEvent(ctx, tx, seat, SeatReleasedEvent, &SeatReleasedData{
		FlightNumber: seat.FlightNumber,
		SeatNumber:   seat.SeatNumber,
	}); err != nil {
		return nil, err
	}

	return seat, nil
}

func (h *CommandHandler) getSeat(ctx context.Context, query GetSeat) (any, error) {
	// Queries run outside of transactions; use one only if already scoped.
	tx := bb.TxFromContext(ctx)

	entity, err := h.repo.Find(ctx, tx, SeatID(query.FlightNumber, query.SeatNumber))
	if err != nil {
		return nil, err
	}

	seat, ok := entity.(*SeatReservation)
	if !ok {
		return nil, fmt.Errorf("invalid entity type: %T", entity)
	}

	return seat, nil
}

// findSeat loads a seat, creating a fresh available one at version zero when
// it has never been written.
func (h *CommandHandler) findSeat(ctx context.Context, tx bb.Tx, flightNumber, seatNumber string) (*SeatReservation, error) {
	id := SeatID(flightNumber, seatNumber)

	entity, err := h.repo.Find(ctx, tx, id)
	if errors.Is(err, bb.ErrEntityNotFound) {
		return &SeatReservation{
			ID:           id,
			FlightNumber: flightNumber,
			SeatNumber:   seatNumber,
			Status:       StatusAvailable,
		}, nil
	} else if err != nil {
		return nil, err
	}

	seat, ok := entity.(*SeatReservation)
	if !ok {
		return nil, fmt.Errorf("invalid entity type: %T", entity)
	}

	return seat, nil
}

func (h *CommandHandler) appendEvent(ctx context.Context, tx bb.Tx, seat *SeatReservation, eventType bb.EventType, data bb.EventData) error {
	event := bb.NewEvent(eventType, data, time.Now(),
		bb.ForAggregate(AggregateType, seat.ID, seat.Version))

	payload, err := h.codec.MarshalEvent(ctx, event)
	if err != nil {
		return fmt.Errorf("could not marshal event: %w", err)
	}

	return h.outbox.Append(ctx, tx, &bb.Entry{
		ID:          uuid.New(),
		AggregateID: seat.ID,
		EventType:   eventType,
		Topic:       h.topic,
		Payload:     payload,
	})
}
