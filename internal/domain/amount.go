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

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Amounts are fixed-point with at most 8 decimal places and a hard cap of
// one trillion ATP. Every Amount is validated at construction, so an invalid
// value cannot circulate through the system.
const maxAmountScale = 8

var maxAmount = decimal.RequireFromString("1000000000000")

// Amount is a validated, strictly positive monetary value.
type Amount struct {
	value decimal.Decimal
}

// NewAmount validates value and wraps it as an Amount.
func NewAmount(value decimal.Decimal) (Amount, error) {
	if value.Sign() <= 0 {
		return Amount{}, fmt.Errorf("%w: amount must be positive, got %s", ErrInvalidAmount, value.String())
	}
	if value.Exponent() < -maxAmountScale {
		return Amount{}, fmt.Errorf("%w: at most %d decimal places, got %d", ErrInvalidAmount, maxAmountScale, -value.Exponent())
	}
	if value.GreaterThan(maxAmount) {
		return Amount{}, fmt.Errorf("%w: amount exceeds maximum %s", ErrInvalidAmount, maxAmount.String())
	}
	return Amount{value: value}, nil
}

// ParseAmount parses the decimal string representation used on the wire.
func ParseAmount(s string) (Amount, error) {
	value, err := decimal.NewFromString(s)
	if err != nil {
		return Amount{}, fmt.Errorf("%w: %s", ErrInvalidAmount, s)
	}
	return NewAmount(value)
}

func (a Amount) Value() decimal.Decimal {
	return a.value
}

// String renders the amount with the canonical 8-decimal-place scale.
func (a Amount) String() string {
	return a.value.StringFixed(maxAmountScale)
}

// Balance is an account balance. Unlike Amount it may be zero, and for
// system accounts it may be negative (mint_source carries the issued supply
// as a liability).
type Balance struct {
	value decimal.Decimal
}

func NewBalance(value decimal.Decimal) Balance {
	return Balance{value: value}
}

func ZeroBalance() Balance {
	return Balance{value: decimal.Zero}
}

func (b Balance) Value() decimal.Decimal {
	return b.value
}

// IsSufficientFor reports whether the balance covers a withdrawal of amount.
func (b Balance) IsSufficientFor(amount Amount) bool {
	return b.value.GreaterThanOrEqual(amount.Value())
}

func (b Balance) Credit(amount Amount) Balance {
	return Balance{value: b.value.Add(amount.Value())}
}

func (b Balance) Debit(amount Amount) Balance {
	return Balance{value: b.value.Sub(amount.Value())}
}

func (b Balance) String() string {
	return b.value.StringFixed(maxAmountScale)
}
