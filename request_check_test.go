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
	"testing"
	"time"

	"github.com/bookingmicroservices/buildingblocks/uuid"
)

type checkedCommand struct {
	ID      uuid.UUID
	Content string
	Slice   []string
	Map     map[string]string
	At      time.Time

	Note  string `bb:"optional"`
	Count int
}

func (c checkedCommand) RequestType() RequestType { return "checked_command" }

func (c checkedCommand) AggregateID() uuid.UUID { return c.ID }

func TestCheckRequest(t *testing.T) {
	violations := CheckRequest(checkedCommand{
		ID:      uuid.New(),
		Content: "test",
		Slice:   []string{"a"},
		Map:     map[string]string{"k": "v"},
		At:      time.Now(),
	})
	if len(violations) != 0 {
		t.Error("there should be no violations:", violations)
	}
}

func TestCheckRequestAllViolations(t *testing.T) {
	// Every missing required field is reported, not just the first. The
	// optional string and the int value type are not flagged.
	violations := CheckRequest(checkedCommand{})

	want := map[string]bool{
		"ID":      true,
		"Content": true,
		"Slice":   true,
		"Map":     true,
		"At":      true,
	}

	if len(violations) != len(want) {
		t.Fatal("all missing fields should be reported:", violations)
	}

	for _, v := range violations {
		if !want[v.Field] {
			t.Error("the field should not be flagged:", v.Field)
		}

		if v.Rule != "required" {
			t.Error("the rule should be correct:", v.Rule)
		}
	}
}

func TestCheckRequestPointer(t *testing.T) {
	violations := CheckRequest(&checkedCommand{
		ID:      uuid.New(),
		Content: "test",
		Slice:   []string{"a"},
		Map:     map[string]string{"k": "v"},
		At:      time.Now(),
	})
	if len(violations) != 0 {
		t.Error("there should be no violations:", violations)
	}
}
