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

package domain

import "github.com/google/uuid"

// OperationContext carries request metadata into events and audit rows.
// It is serialized as-is into the events.context column.
type OperationContext struct {
	APIKeyID      *uuid.UUID `json:"api_key_id,omitempty"`
	RequestUserID *uuid.UUID `json:"request_user_id,omitempty"`
	CorrelationID *uuid.UUID `json:"correlation_id,omitempty"`
	ClientIP      string     `json:"client_ip,omitempty"`
}

func NewOperationContext() *OperationContext {
	return &OperationContext{}
}

func (c *OperationContext) WithAPIKey(id uuid.UUID) *OperationContext {
	c.APIKeyID = &id
	return c
}

func (c *OperationContext) WithRequestUser(id uuid.UUID) *OperationContext {
	c.RequestUserID = &id
	return c
}

func (c *OperationContext) WithCorrelationID(id uuid.UUID) *OperationContext {
	c.CorrelationID = &id
	return c
}

func (c *OperationContext) WithClientIP(ip string) *OperationContext {
	c.ClientIP = ip
	return c
}

// EnsureCorrelationID returns the correlation id, generating one first if the
// caller did not supply a header.
func (c *OperationContext) EnsureCorrelationID() uuid.UUID {
	if c.CorrelationID == nil {
		id := uuid.New()
		c.CorrelationID = &id
	}
	return *c.CorrelationID
}
