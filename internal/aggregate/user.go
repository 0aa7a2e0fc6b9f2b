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

package aggregate

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"finance-atp/internal/domain"
)

// User is the profile aggregate. Authentication lives upstream; this only
// tracks identity and lifecycle. Deactivation is terminal for mutating
// commands.
type User struct {
	UserID        uuid.UUID  `json:"user_id"`
	Username      string     `json:"username"`
	Email         string     `json:"email"`
	DisplayName   string     `json:"display_name,omitempty"`
	Active        bool       `json:"active"`
	DeactivatedAt *time.Time `json:"deactivated_at,omitempty"`
	CreatedAt     *time.Time `json:"created_at,omitempty"`
	AggVersion    int64      `json:"version"`
}

func NewUser() *User {
	return &User{AggVersion: NoVersion}
}

// CreateUser returns the applied aggregate and the creation event.
func CreateUser(userID uuid.UUID, username, email, displayName string) (*User, domain.UserCreated) {
	now := time.Now().UTC()
	event := domain.UserCreated{
		UserID:      userID,
		Username:    username,
		Email:       email,
		DisplayName: displayName,
		CreatedAt:   now,
	}
	user := &User{
		UserID:      userID,
		Username:    username,
		Email:       email,
		DisplayName: displayName,
		Active:      true,
		CreatedAt:   &now,
		AggVersion:  0,
	}
	return user, event
}

func (u *User) AggregateType() string { return domain.AggregateTypeUser }
func (u *User) ID() uuid.UUID         { return u.UserID }
func (u *User) Version() int64        { return u.AggVersion }

// Update validates a profile change command.
func (u *User) Update(changes domain.UserChanges) (domain.UserUpdated, error) {
	if !u.Active {
		return domain.UserUpdated{}, domain.ErrUserDeactivated
	}
	if changes.IsEmpty() {
		return domain.UserUpdated{}, domain.ErrNoChanges
	}
	return domain.UserUpdated{
		UserID:    u.UserID,
		Changes:   changes,
		UpdatedAt: time.Now().UTC(),
	}, nil
}

// Deactivate soft-deletes the user. The wallet and its balance are left
// untouched.
func (u *User) Deactivate(reason string) (domain.UserDeactivated, error) {
	if !u.Active {
		return domain.UserDeactivated{}, fmt.Errorf("%w: user is already deactivated", domain.ErrInvalidRequest)
	}
	return domain.UserDeactivated{
		UserID:        u.UserID,
		Reason:        reason,
		DeactivatedAt: time.Now().UTC(),
	}, nil
}

func (u *User) Apply(event domain.Event, version int64) {
	switch e := event.(type) {
	case domain.UserCreated:
		u.UserID = e.UserID
		u.Username = e.Username
		u.Email = e.Email
		u.DisplayName = e.DisplayName
		u.Active = true
		created := e.CreatedAt
		u.CreatedAt = &created
	case domain.UserUpdated:
		if e.Changes.DisplayName != nil {
			u.DisplayName = *e.Changes.DisplayName
		}
		if e.Changes.Email != nil {
			u.Email = *e.Changes.Email
		}
	case domain.UserDeactivated:
		u.Active = false
		deactivated := e.DeactivatedAt
		u.DeactivatedAt = &deactivated
	}
	u.AggVersion = version
}

func (u *User) ApplyRaw(eventType string, version int64, payload []byte) error {
	event, err := unmarshalUserEvent(eventType, payload)
	if err != nil {
		return err
	}
	u.Apply(event, version)
	return nil
}

func unmarshalUserEvent(eventType string, payload []byte) (domain.Event, error) {
	switch eventType {
	case "UserCreated":
		var e domain.UserCreated
		err := json.Unmarshal(payload, &e)
		return e, err
	case "UserUpdated":
		var e domain.UserUpdated
		err := json.Unmarshal(payload, &e)
		return e, err
	case "UserDeactivated":
		var e domain.UserDeactivated
		err := json.Unmarshal(payload, &e)
		return e, err
	default:
		return nil, fmt.Errorf("unknown user event type %q", eventType)
	}
}

func (u *User) SnapshotState() ([]byte, error) {
	return json.Marshal(u)
}

func (u *User) RestoreSnapshot(version int64, state []byte) error {
	if err := json.Unmarshal(state, u); err != nil {
		return fmt.Errorf("failed to restore user snapshot: %w", err)
	}
	u.AggVersion = version
	return nil
}
