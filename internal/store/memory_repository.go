/**
 * @description
 * This file provides an in-memory implementation of the `Repository` interface.
 * It is used by tests and local development where a PostgreSQL instance is not
 * available, and it honors the same contract as the Postgres repository: the
 * posting critical section is serialized per account while distinct accounts
 * proceed concurrently, and reference uniqueness is enforced globally at
 * append time.
 *
 * @dependencies
 * - context, sync, time: Standard Go libraries.
 * - github.com/google/uuid: Entity identifiers.
 * - internal/domain: Domain models.
 */

package store

import (
	"context"
	"sync"
	"time"

	"github.com/finlog/ledger-service/internal/domain"
	"github.com/google/uuid"
)

// MemoryRepository is a thread-safe in-memory Repository.
type MemoryRepository struct {
	mu           sync.Mutex
	accounts     map[uuid.UUID]*domain.Account
	owners       map[string]uuid.UUID
	transactions []domain.Transaction
	references   map[string]struct{}
	accountLocks map[uuid.UUID]*sync.Mutex
}

// NewMemoryRepository creates an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		accounts:     make(map[uuid.UUID]*domain.Account),
		owners:       make(map[string]uuid.UUID),
		references:   make(map[string]struct{}),
		accountLocks: make(map[uuid.UUID]*sync.Mutex),
	}
}

// accountLock returns the per-account mutex, creating it on first use.
// The map itself is guarded by mu.
func (m *MemoryRepository) accountLock(accountID uuid.UUID) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	lock, ok := m.accountLocks[accountID]
	if !ok {
		lock = &sync.Mutex{}
		m.accountLocks[accountID] = lock
	}
	return lock
}

// CreateAccount provisions a zero-balance account for an owner.
func (m *MemoryRepository) CreateAccount(ctx context.Context, ownerID string) (*domain.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.owners[ownerID]; exists {
		return nil, ErrOwnerAlreadyExists
	}

	now := time.Now()
	account := &domain.Account{
		ID:        uuid.New(),
		OwnerID:   ownerID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	m.accounts[account.ID] = account
	m.owners[ownerID] = account.ID

	copied := *account
	return &copied, nil
}

// FindAccountByID returns a snapshot of the account.
func (m *MemoryRepository) FindAccountByID(ctx context.Context, accountID uuid.UUID) (*domain.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	account, ok := m.accounts[accountID]
	if !ok {
		return nil, ErrAccountNotFound
	}
	copied := *account
	return &copied, nil
}

// FindAccountByOwner returns a snapshot of the owner's account.
func (m *MemoryRepository) FindAccountByOwner(ctx context.Context, ownerID string) (*domain.Account, error) {
	m.mu.Lock()
	accountID, ok := m.owners[ownerID]
	m.mu.Unlock()
	if !ok {
		return nil, ErrAccountNotFound
	}
	return m.FindAccountByID(ctx, accountID)
}

// AppendTransaction applies one posting under the account's lock. The balance
// read, the append, and the balance write happen while the lock is held, so
// same-account postings cannot interleave; the reference set is checked and
// claimed under the global mutex in the same step, so a rejected posting
// leaves no state behind.
func (m *MemoryRepository) AppendTransaction(ctx context.Context, req domain.PostingRequest) (*domain.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	lock := m.accountLock(req.AccountID)
	lock.Lock()
	defer lock.Unlock()

	m.mu.Lock()
	defer m.mu.Unlock()

	account, ok := m.accounts[req.AccountID]
	if !ok {
		return nil, ErrAccountNotFound
	}

	newBalance := account.Balance.Add(req.Amount)
	if newBalance.IsNegative() {
		return nil, ErrInsufficientBalance
	}
	if _, exists := m.references[req.Reference]; exists {
		return nil, ErrDuplicateReference
	}

	tx := domain.Transaction{
		ID:              uuid.New(),
		Reference:       req.Reference,
		AccountID:       req.AccountID,
		PreviousBalance: account.Balance,
		Amount:          req.Amount,
		Balance:         newBalance,
		PostedBy:        req.PostedBy,
		CreatedAt:       time.Now(),
	}

	m.references[req.Reference] = struct{}{}
	m.transactions = append(m.transactions, tx)
	account.Balance = newBalance
	account.UpdatedAt = tx.CreatedAt

	copied := tx
	return &copied, nil
}

// FindTransactionsByAccountID returns the account's postings newest first.
func (m *MemoryRepository) FindTransactionsByAccountID(ctx context.Context, accountID uuid.UUID, opts domain.ListOptions) ([]domain.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Insertion order is commit order; walk backwards for newest-first.
	var result []domain.Transaction
	for i := len(m.transactions) - 1; i >= 0; i-- {
		if m.transactions[i].AccountID == accountID {
			result = append(result, m.transactions[i])
		}
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}
	if limit > 100 {
		limit = 100
	}
	offset := opts.Offset
	if offset < 0 {
		offset = 0
	}
	if offset >= len(result) {
		return []domain.Transaction{}, nil
	}
	end := offset + limit
	if end > len(result) {
		end = len(result)
	}
	return result[offset:end], nil
}

// Compile-time check: MemoryRepository implements Repository.
var _ Repository = (*MemoryRepository)(nil)
