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

	"github.com/bookingmicroservices/buildingblocks/uuid"
)

// Entity is an item which is identified by an ID.
type Entity interface {
	// EntityID returns the ID of the entity.
	EntityID() uuid.UUID
}

// Versionable is an entity that carries a monotonic version number,
// incremented exactly once per accepted state transition.
type Versionable interface {
	// AggregateVersion returns the version of the entity.
	AggregateVersion() int
}

// ErrEntityNotFound is when an entity could not be found.
var ErrEntityNotFound = errors.New("could not find entity")

// ErrCouldNotSaveEntity is when an entity could not be saved.
var ErrCouldNotSaveEntity = errors.New("could not save entity")

// ErrMissingEntityID is when an entity has no ID.
var ErrMissingEntityID = errors.New("missing entity ID")

// ErrEntityHasNoVersion is when an entity has no version number.
var ErrEntityHasNoVersion = errors.New("entity has no version")

// ErrIncorrectEntityVersion is when the expected version does not match the
// stored version at commit time. The caller lost an optimistic concurrency
// race and may retry with fresh state.
var ErrIncorrectEntityVersion = errors.New("incorrect entity version")
