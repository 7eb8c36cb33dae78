/**
 * @description
 * This file provides the PostgreSQL implementation of the `Repository` interface.
 * It contains all the necessary SQL queries to interact with the database tables
 * related to accounts and the append-only transaction log.
 *
 * Expected schema:
 *
 *   accounts(id uuid pk, owner_id text unique, balance numeric(12,2) not null default 0,
 *            created_at timestamptz, updated_at timestamptz)
 *   transactions(id uuid pk, reference text unique not null, account_id uuid references accounts(id),
 *                previous_balance numeric(12,2), amount numeric(12,2), balance numeric(12,2),
 *                posted_by text not null, created_at timestamptz not null default now())
 *
 * The unique index on transactions.reference is what enforces global reference
 * uniqueness; the engine never pre-checks and relies on the 23505 rejection.
 *
 * @dependencies
 * - context, errors: Standard Go libraries.
 * - github.com/jackc/pgx/v5: The PostgreSQL driver for database operations.
 * - github.com/shopspring/decimal: Fixed-point balance arithmetic.
 * - internal/domain: Contains the domain models used for data transfer.
 */

package store

import (
	"context"
	"errors"

	"github.com/finlog/ledger-service/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

const (
	pgUniqueViolation     = "23505"
	pgSerializationFailed = "40001"
	pgDeadlockDetected    = "40P01"
)

// PostgresRepository is a concrete implementation of the Repository interface for PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new instance of PostgresRepository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// CreateAccount inserts a zero-balance account for an owner. Accounts are
// provisioned once per identity and never deleted.
func (r *PostgresRepository) CreateAccount(ctx context.Context, ownerID string) (*domain.Account, error) {
	var account domain.Account
	query := `
		INSERT INTO accounts (id, owner_id, balance)
		VALUES ($1, $2, 0)
		RETURNING id, owner_id, balance, created_at, updated_at
	`
	err := r.db.QueryRow(ctx, query, uuid.New(), ownerID).Scan(
		&account.ID, &account.OwnerID, &account.Balance, &account.CreatedAt, &account.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return nil, ErrOwnerAlreadyExists
		}
		return nil, err
	}
	return &account, nil
}

// FindAccountByID retrieves an account by its primary key.
func (r *PostgresRepository) FindAccountByID(ctx context.Context, accountID uuid.UUID) (*domain.Account, error) {
	var account domain.Account
	query := `SELECT id, owner_id, balance, created_at, updated_at FROM accounts WHERE id = $1`
	err := r.db.QueryRow(ctx, query, accountID).Scan(
		&account.ID, &account.OwnerID, &account.Balance, &account.CreatedAt, &account.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return &account, nil
}

// FindAccountByOwner retrieves the account belonging to a principal.
func (r *PostgresRepository) FindAccountByOwner(ctx context.Context, ownerID string) (*domain.Account, error) {
	var account domain.Account
	query := `SELECT id, owner_id, balance, created_at, updated_at FROM accounts WHERE owner_id = $1`
	err := r.db.QueryRow(ctx, query, ownerID).Scan(
		&account.ID, &account.OwnerID, &account.Balance, &account.CreatedAt, &account.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return &account, nil
}

// AppendTransaction commits one posting as a single database transaction.
//
// The account row is locked with FOR UPDATE for the duration of the
// read-compute-write, so postings against the same account serialize while
// postings against different accounts proceed concurrently. The transaction
// row insert and the balance update commit together or not at all; on any
// error the deferred rollback leaves both tables untouched.
func (r *PostgresRepository) AppendTransaction(ctx context.Context, req domain.PostingRequest) (*domain.Transaction, error) {
	dbTx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer dbTx.Rollback(ctx)

	var previousBalance decimal.Decimal
	err = dbTx.QueryRow(ctx,
		`SELECT balance FROM accounts WHERE id = $1 FOR UPDATE`,
		req.AccountID,
	).Scan(&previousBalance)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrAccountNotFound
		}
		return nil, translatePgError(err)
	}

	newBalance := previousBalance.Add(req.Amount)
	if newBalance.IsNegative() {
		return nil, ErrInsufficientBalance
	}

	tx := domain.Transaction{
		ID:              uuid.New(),
		Reference:       req.Reference,
		AccountID:       req.AccountID,
		PreviousBalance: previousBalance,
		Amount:          req.Amount,
		Balance:         newBalance,
		PostedBy:        req.PostedBy,
	}
	err = dbTx.QueryRow(ctx, `
		INSERT INTO transactions (id, reference, account_id, previous_balance, amount, balance, posted_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at
	`, tx.ID, tx.Reference, tx.AccountID, tx.PreviousBalance, tx.Amount, tx.Balance, tx.PostedBy).Scan(&tx.CreatedAt)
	if err != nil {
		return nil, translatePgError(err)
	}

	_, err = dbTx.Exec(ctx,
		`UPDATE accounts SET balance = $1, updated_at = NOW() WHERE id = $2`,
		tx.Balance, req.AccountID,
	)
	if err != nil {
		return nil, translatePgError(err)
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, translatePgError(err)
	}
	return &tx, nil
}

// FindTransactionsByAccountID retrieves an account's postings, newest first.
// The id tiebreak keeps the order total when two postings share a timestamp.
func (r *PostgresRepository) FindTransactionsByAccountID(ctx context.Context, accountID uuid.UUID, opts domain.ListOptions) ([]domain.Transaction, error) {
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

	query := `
		SELECT id, reference, account_id, previous_balance, amount, balance, posted_by, created_at
		FROM transactions
		WHERE account_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3
	`
	rows, err := r.db.Query(ctx, query, accountID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	transactions := make([]domain.Transaction, 0, limit)
	for rows.Next() {
		var tx domain.Transaction
		err := rows.Scan(
			&tx.ID, &tx.Reference, &tx.AccountID, &tx.PreviousBalance,
			&tx.Amount, &tx.Balance, &tx.PostedBy, &tx.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		transactions = append(transactions, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return transactions, nil
}

// translatePgError maps storage-level failures onto the engine's error
// taxonomy: unique-index rejection becomes DuplicateReference, lock-level
// conflicts become the retryable ConcurrencyConflict.
func translatePgError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case pgUniqueViolation:
		return ErrDuplicateReference
	case pgSerializationFailed, pgDeadlockDetected:
		return ErrConcurrencyConflict
	default:
		return err
	}
}
