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

import "errors"

// Sentinel errors for business rule violations. These are distinct from
// infrastructure errors: only infrastructure failures are ever retried.
var (
	ErrInvalidAmount        = errors.New("invalid amount")
	ErrInsufficientBalance  = errors.New("insufficient balance")
	ErrAccountFrozen        = errors.New("account is frozen")
	ErrAccountNotFound      = errors.New("account not found")
	ErrUserNotFound         = errors.New("user not found")
	ErrTransferNotFound     = errors.New("transfer not found")
	ErrUserDeactivated      = errors.New("user is deactivated")
	ErrSameAccountTransfer  = errors.New("cannot transfer to the same account")
	ErrUnauthorizedTransfer = errors.New("request user does not match sender")
	ErrPermissionDenied     = errors.New("permission denied")
	ErrSystemUserProtected  = errors.New("system users cannot be modified")
	ErrInvalidRequest       = errors.New("invalid request")
	ErrNoChanges            = errors.New("no changes provided")
)
