/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package aggregate holds the pure state machines of the system. An
// aggregate folds its event stream into current state and validates commands
// by producing new events; it never touches storage itself.
package aggregate

import "github.com/google/uuid"

// SnapshotInterval is the version cadence at which snapshots are taken.
const SnapshotInterval = 100

// NoVersion is the version of an aggregate with no events. The first event
// of every aggregate is appended at version 0.
const NoVersion int64 = -1

// Aggregate is the contract the event store needs to rehydrate and snapshot
// state. Implementations are plain structs; all mutation happens through
// event application.
type Aggregate interface {
	AggregateType() string
	ID() uuid.UUID

	// Version is the version of the last applied event, or NoVersion for a
	// fresh aggregate.
	Version() int64

	// ApplyRaw folds one stored event (by type name and JSON payload) into
	// the aggregate and advances the version.
	ApplyRaw(eventType string, version int64, payload []byte) error

	// SnapshotState serializes the current state for the snapshot table.
	SnapshotState() ([]byte, error)

	// RestoreSnapshot initializes the aggregate from a snapshot row.
	RestoreSnapshot(version int64, state []byte) error
}

// ShouldSnapshot reports whether an aggregate at version v is due for a
// snapshot. History stays complete either way; snapshots only shortcut
// rehydration.
func ShouldSnapshot(v int64) bool {
	return v > 0 && v%SnapshotInterval == 0
}
