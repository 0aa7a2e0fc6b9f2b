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

package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type CreateUserRequest struct {
	UserID      uuid.UUID `json:"user_id"`
	Username    string    `json:"username"`
	Email       string    `json:"email"`
	DisplayName string    `json:"display_name,omitempty"`
}

type CreateUserResponse struct {
	UserID      uuid.UUID `json:"user_id"`
	Username    string    `json:"username"`
	Email       string    `json:"email"`
	DisplayName string    `json:"display_name,omitempty"`
	Balance     string    `json:"balance"`
	CreatedAt   time.Time `json:"created_at"`
}

type UserResponse struct {
	ID          uuid.UUID `json:"id"`
	Username    string    `json:"username"`
	Email       string    `json:"email"`
	DisplayName string    `json:"display_name,omitempty"`
	IsSystem    bool      `json:"is_system"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type UpdateUserRequest struct {
	DisplayName *string `json:"display_name,omitempty"`
	Email       *string `json:"email,omitempty"`
}

type TransferRequest struct {
	FromUserID uuid.UUID `json:"from_user_id"`
	ToUserID   uuid.UUID `json:"to_user_id"`
	Amount     string    `json:"amount"`
	Memo       string    `json:"memo,omitempty"`
}

type TransferResponse struct {
	TransferID uuid.UUID       `json:"transfer_id"`
	Status     string          `json:"status"`
	FromUserID uuid.UUID       `json:"from_user_id"`
	ToUserID   uuid.UUID       `json:"to_user_id"`
	Amount     decimal.Decimal `json:"amount"`
	CreatedAt  time.Time       `json:"created_at"`
}

type TransferDetailResponse struct {
	ID            uuid.UUID       `json:"id"`
	FromAccountID uuid.UUID       `json:"from_account_id"`
	ToAccountID   uuid.UUID       `json:"to_account_id"`
	Amount        decimal.Decimal `json:"amount"`
	Description   string          `json:"description"`
	CreatedAt     time.Time       `json:"created_at"`
}

type MintRequest struct {
	RecipientUserID uuid.UUID `json:"recipient_user_id"`
	Amount          string    `json:"amount"`
	Reason          string    `json:"reason"`
}

type MintResponse struct {
	MintID    uuid.UUID       `json:"mint_id"`
	Status    string          `json:"status"`
	ToUserID  uuid.UUID       `json:"to_user_id"`
	Amount    decimal.Decimal `json:"amount"`
	CreatedAt time.Time       `json:"created_at"`
}

type BurnRequest struct {
	FromUserID uuid.UUID `json:"from_user_id"`
	Amount     string    `json:"amount"`
	Reason     string    `json:"reason"`
}

type BurnResponse struct {
	BurnID     uuid.UUID       `json:"burn_id"`
	Status     string          `json:"status"`
	FromUserID uuid.UUID       `json:"from_user_id"`
	Amount     decimal.Decimal `json:"amount"`
	CreatedAt  time.Time       `json:"created_at"`
}

type BalanceResponse struct {
	UserID  uuid.UUID       `json:"user_id"`
	Balance decimal.Decimal `json:"balance"`
}

type HistoryEntry struct {
	EventID     uuid.UUID        `json:"event_id"`
	EventType   string           `json:"event_type"`
	Amount      *decimal.Decimal `json:"amount,omitempty"`
	Description string           `json:"description,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
}

type HistoryResponse struct {
	UserID  uuid.UUID      `json:"user_id"`
	Entries []HistoryEntry `json:"entries"`
}

type EventResponse struct {
	ID            uuid.UUID `json:"id"`
	AggregateType string    `json:"aggregate_type"`
	AggregateID   uuid.UUID `json:"aggregate_id"`
	EventType     string    `json:"event_type"`
	Version       int64     `json:"version"`
	CreatedAt     time.Time `json:"created_at"`
}

type EventsListResponse struct {
	Events []EventResponse `json:"events"`
	Total  int64           `json:"total"`
}

type CreateAPIKeyRequest struct {
	Name               string   `json:"name"`
	Permissions        []string `json:"permissions"`
	RateLimitPerMinute int      `json:"rate_limit_per_minute,omitempty"`
}

// CreateAPIKeyResponse carries the raw key; it is shown once and never
// stored in the clear.
type CreateAPIKeyResponse struct {
	ID                 uuid.UUID `json:"id"`
	Name               string    `json:"name"`
	APIKey             string    `json:"api_key"`
	KeyPrefix          string    `json:"key_prefix"`
	Permissions        []string  `json:"permissions"`
	RateLimitPerMinute int       `json:"rate_limit_per_minute"`
	CreatedAt          time.Time `json:"created_at"`
}

type APIKeyResponse struct {
	ID                 uuid.UUID  `json:"id"`
	Name               string     `json:"name"`
	KeyPrefix          string     `json:"key_prefix"`
	Permissions        []string   `json:"permissions"`
	RateLimitPerMinute int        `json:"rate_limit_per_minute"`
	IsActive           bool       `json:"is_active"`
	CreatedAt          time.Time  `json:"created_at"`
	LastUsedAt         *time.Time `json:"last_used_at,omitempty"`
}

type UpdateAPIKeyRequest struct {
	Name               *string   `json:"name,omitempty"`
	Permissions        *[]string `json:"permissions,omitempty"`
	RateLimitPerMinute *int      `json:"rate_limit_per_minute,omitempty"`
	IsActive           *bool     `json:"is_active,omitempty"`
}

// ErrorResponse is the uniform error envelope for every non-2xx reply.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

type HealthResponse struct {
	Status   string `json:"status"`
	Database string `json:"database"`
}
