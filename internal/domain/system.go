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

// The four seeded system users. Their IDs are fixed so that operational
// tooling and seeds agree across environments. Minted supply is carried as a
// negative balance on SYSTEM_MINT's mint_source account; burns flow back
// through the same account.
var (
	SystemMintUserID    = uuid.MustParse("00000000-0000-0000-0000-000000000001")
	SystemBurnUserID    = uuid.MustParse("00000000-0000-0000-0000-000000000002")
	SystemFeeUserID     = uuid.MustParse("00000000-0000-0000-0000-000000000003")
	SystemReserveUserID = uuid.MustParse("00000000-0000-0000-0000-000000000004")
)

// Fixed account IDs for the seeded system accounts.
var (
	SystemMintAccountID    = uuid.MustParse("00000000-0000-0000-0001-000000000001")
	SystemBurnAccountID    = uuid.MustParse("00000000-0000-0000-0001-000000000002")
	SystemFeeAccountID     = uuid.MustParse("00000000-0000-0000-0001-000000000003")
	SystemReserveAccountID = uuid.MustParse("00000000-0000-0000-0001-000000000004")
)

// IsSystemUserID reports whether id belongs to one of the seeded system
// users without a database round trip.
func IsSystemUserID(id uuid.UUID) bool {
	return id == SystemMintUserID || id == SystemBurnUserID ||
		id == SystemFeeUserID || id == SystemReserveUserID
}
