/**
 * @description
 * This file defines the `Repository` interface, which specifies the contract for all
 * data access operations required by the ledger-service. By defining an interface,
 * we decouple the application's business logic from the specific database implementation
 * (e.g., PostgreSQL), making the code more modular and easier to test.
 *
 * @dependencies
 * - context: Standard Go library.
 * - github.com/google/uuid: For UUID generation and handling.
 * - internal/domain: For the service's domain models.
 */

package store

import (
	"context"
	"errors"

	"github.com/finlog/ledger-service/internal/domain"
	"github.com/google/uuid"
)

var (
	ErrAccountNotFound     = errors.New("account not found")
	ErrDuplicateReference  = errors.New("transaction reference already exists")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrConcurrencyConflict = errors.New("concurrent posting conflict")
	ErrOwnerAlreadyExists  = errors.New("owner already has an account")
)

// Repository defines the set of methods for interacting with the database.
//
// AppendTransaction is the engine's critical section: implementations must
// execute the read-balance, append-row, update-balance sequence as one
// serializable unit per account, and enforce reference uniqueness globally
// at commit time. A failed call leaves no trace in either table.
type Repository interface {
	// Account methods
	CreateAccount(ctx context.Context, ownerID string) (*domain.Account, error)
	FindAccountByID(ctx context.Context, accountID uuid.UUID) (*domain.Account, error)
	FindAccountByOwner(ctx context.Context, ownerID string) (*domain.Account, error)

	// Ledger methods
	AppendTransaction(ctx context.Context, req domain.PostingRequest) (*domain.Transaction, error)
	FindTransactionsByAccountID(ctx context.Context, accountID uuid.UUID, opts domain.ListOptions) ([]domain.Transaction, error)
}
