/**
 * @description
 * This package implements the authorization gate that decides which principal
 * may post against which account. The gate runs before the ledger engine and
 * hands it a decided verdict; the engine trusts the verdict and never
 * re-checks identity.
 *
 * Two policies exist: self-service (a principal may only touch its own
 * account) and administrative (a principal holding the elevated role may
 * target any account).
 */

package auth

import (
	"errors"

	"github.com/google/uuid"
)

// ErrAuthorizationDenied is returned when the gate rejects a posting.
var ErrAuthorizationDenied = errors.New("authorization denied")

// Principal is the authenticated identity extracted from the request's
// bearer token. AccountID is zero until resolved against the account store.
type Principal struct {
	ID        string
	Role      string
	AccountID uuid.UUID
}

// Gate decides whether a principal may post against a target account.
type Gate interface {
	Authorize(principal Principal, targetAccountID uuid.UUID) error
}

// SelfServiceGate permits postings only against the principal's own account.
type SelfServiceGate struct{}

func (SelfServiceGate) Authorize(principal Principal, targetAccountID uuid.UUID) error {
	if principal.AccountID == uuid.Nil || principal.AccountID != targetAccountID {
		return ErrAuthorizationDenied
	}
	return nil
}

// AdministrativeGate permits postings against any account for principals
// holding the configured admin role.
type AdministrativeGate struct {
	AdminRole string
}

func (g AdministrativeGate) Authorize(principal Principal, targetAccountID uuid.UUID) error {
	if principal.Role == "" || principal.Role != g.AdminRole {
		return ErrAuthorizationDenied
	}
	return nil
}
