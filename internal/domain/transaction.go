/**
 * @description
 * This file defines the core domain models for the ledger-service.
 * These structs represent the main entities and data transfer objects (DTOs)
 * used throughout the service's business logic, database interactions, and API layers.
 *
 * @notes
 * - Monetary values use shopspring/decimal at scale 2. Fixed-point arithmetic
 *   keeps the chain invariant exact: balance = previous_balance + amount with
 *   no rounding drift.
 * - Transactions are append-only. A committed row is never updated or deleted;
 *   corrections are new offsetting postings.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Transaction is one committed ledger posting against an account.
// This struct maps directly to the `transactions` table in the database.
//
// For any account, ordering rows by (created_at, id), each row's
// PreviousBalance equals the prior row's Balance; the first row's
// PreviousBalance is the account's opening balance (zero).
type Transaction struct {
	ID              uuid.UUID       `json:"id"`
	Reference       string          `json:"reference"` // caller-supplied, globally unique
	AccountID       uuid.UUID       `json:"account_id"`
	PreviousBalance decimal.Decimal `json:"previous_balance"`
	Amount          decimal.Decimal `json:"amount"` // positive credit, negative debit
	Balance         decimal.Decimal `json:"balance"`
	PostedBy        string          `json:"posted_by"` // authorizing principal, may differ from the account owner
	CreatedAt       time.Time       `json:"created_at"`
}

// Account holds the authoritative running balance for one owner.
// The balance always equals the Balance of the account's most recently
// committed transaction, or zero if none exist.
type Account struct {
	ID        uuid.UUID       `json:"id"`
	OwnerID   string          `json:"owner_id"` // principal identifier from the identity provider
	Balance   decimal.Decimal `json:"balance"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// PostingRequest carries one validated posting instruction into the engine.
// PostedBy is supplied by the authorization gate's caller, never re-derived here.
type PostingRequest struct {
	AccountID uuid.UUID
	Reference string
	Amount    decimal.Decimal
	PostedBy  string
}

// SelfPostingBody is the DTO for the self-service posting endpoint.
// The target account is resolved from the authenticated principal. Amount is
// a pointer so a missing field is distinguishable from a legitimate zero
// posting.
type SelfPostingBody struct {
	Reference string           `json:"reference"`
	Amount    *decimal.Decimal `json:"amount"`
}

// StaffPostingBody is the DTO for the administrative posting endpoint.
type StaffPostingBody struct {
	AccountID uuid.UUID        `json:"account_id"`
	Reference string           `json:"reference"`
	Amount    *decimal.Decimal `json:"amount"`
}

// ListOptions bounds a transaction listing. Listings are ordered
// (created_at, id) descending and restartable via Offset.
type ListOptions struct {
	Limit  int
	Offset int
}
