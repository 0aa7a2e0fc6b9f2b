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

package handlers

import (
	"fmt"
	"regexp"

	"finance-atp/internal/domain"

	"github.com/google/uuid"
)

var (
	usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_]{3,50}$`)
	emailPattern    = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
)

// CreateUserCommand creates a user together with its wallet account.
type CreateUserCommand struct {
	UserID      uuid.UUID `json:"user_id"`
	Username    string    `json:"username"`
	Email       string    `json:"email"`
	DisplayName string    `json:"display_name,omitempty"`
}

func (c CreateUserCommand) Validate() error {
	if c.UserID == uuid.Nil {
		return fmt.Errorf("%w: user_id is required", domain.ErrInvalidRequest)
	}
	if !usernamePattern.MatchString(c.Username) {
		return fmt.Errorf("%w: username must match %s", domain.ErrInvalidRequest, usernamePattern)
	}
	if !emailPattern.MatchString(c.Email) {
		return fmt.Errorf("%w: invalid email address", domain.ErrInvalidRequest)
	}
	if len(c.DisplayName) > 100 {
		return fmt.Errorf("%w: display_name too long", domain.ErrInvalidRequest)
	}
	return nil
}

// UpdateUserCommand changes profile fields; nil means unchanged.
type UpdateUserCommand struct {
	UserID      uuid.UUID `json:"user_id"`
	DisplayName *string   `json:"display_name,omitempty"`
	Email       *string   `json:"email,omitempty"`
}

func (c UpdateUserCommand) Validate() error {
	if c.DisplayName == nil && c.Email == nil {
		return domain.ErrNoChanges
	}
	if c.Email != nil && !emailPattern.MatchString(*c.Email) {
		return fmt.Errorf("%w: invalid email address", domain.ErrInvalidRequest)
	}
	if c.DisplayName != nil && len(*c.DisplayName) > 100 {
		return fmt.Errorf("%w: display_name too long", domain.ErrInvalidRequest)
	}
	return nil
}

// DeactivateUserCommand soft-deletes a user. The wallet and its balance
// stay.
type DeactivateUserCommand struct {
	UserID uuid.UUID `json:"user_id"`
	Reason string    `json:"reason,omitempty"`
}

// TransferCommand moves ATP between two user wallets.
type TransferCommand struct {
	FromUserID uuid.UUID `json:"from_user_id"`
	ToUserID   uuid.UUID `json:"to_user_id"`
	Amount     string    `json:"amount"`
	Memo       string    `json:"memo,omitempty"`
}

func (c TransferCommand) Validate() (domain.Amount, error) {
	if c.FromUserID == c.ToUserID {
		return domain.Amount{}, domain.ErrSameAccountTransfer
	}
	amount, err := domain.ParseAmount(c.Amount)
	if err != nil {
		return domain.Amount{}, err
	}
	return amount, nil
}

// MintCommand issues new ATP to a recipient wallet.
type MintCommand struct {
	RecipientUserID uuid.UUID `json:"recipient_user_id"`
	Amount          string    `json:"amount"`
	Reason          string    `json:"reason"`
}

func (c MintCommand) Validate() (domain.Amount, error) {
	if c.Reason == "" {
		return domain.Amount{}, fmt.Errorf("%w: reason is required", domain.ErrInvalidRequest)
	}
	return domain.ParseAmount(c.Amount)
}

// BurnCommand removes ATP from a wallet back to the mint source.
type BurnCommand struct {
	FromUserID uuid.UUID `json:"from_user_id"`
	Amount     string    `json:"amount"`
	Reason     string    `json:"reason"`
}

func (c BurnCommand) Validate() (domain.Amount, error) {
	if c.Reason == "" {
		return domain.Amount{}, fmt.Errorf("%w: reason is required", domain.ErrInvalidRequest)
	}
	return domain.ParseAmount(c.Amount)
}
