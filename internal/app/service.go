/**
 * @description
 * This file contains the core business logic for the ledger-service. The `Service`
 * struct orchestrates postings, coordinating between the database repository,
 * the authorization gate, and the message broker.
 *
 * Key features:
 * - Implements the posting algorithm: validate, authorize, append atomically,
 *   publish the posted event.
 * - Retries only transient concurrency conflicts, with bounded attempts;
 *   every other failure is final and surfaced immediately.
 * - A rejected posting is a strict no-op: the repository contract guarantees
 *   no partial commit, and events are published only after the commit.
 *
 * @dependencies
 * - context, errors, fmt, log, strings, time: Standard Go libraries.
 * - github.com/google/uuid: Entity identifiers.
 * - internal/domain, internal/store: Models and data access.
 * - pkg/rabbitmq: Event publishing.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/finlog/ledger-service/internal/domain"
	"github.com/finlog/ledger-service/internal/store"
	"github.com/finlog/ledger-service/pkg/rabbitmq"
	"github.com/google/uuid"
)

const (
	defaultMaxPostAttempts = 3
	conflictRetryDelay     = 25 * time.Millisecond
	maxReferenceLength     = 100
	amountScale            = 2
)

var (
	ErrInvalidAmount      = errors.New("amount is not a valid fixed-point decimal")
	ErrInvalidReference   = errors.New("reference must be a non-empty string")
	ErrPostingRateLimited = errors.New("posting rate limit exceeded")
)

// RateLimiter is the consumed slice of the redis limiter. A nil limiter
// disables rate limiting entirely.
type RateLimiter interface {
	ConsumeRateLimit(ctx context.Context, scope, subject string, limit int, window time.Duration) (count int, retryAfterSeconds int, err error)
}

// Service provides the core business logic for the ledger.
type Service struct {
	repo          store.Repository
	eventProducer rabbitmq.Publisher

	maxPostAttempts int

	rateLimiter        RateLimiter
	postLimitPerMinute int
}

// NewService creates a new ledger service instance.
func NewService(repo store.Repository, producer rabbitmq.Publisher, maxPostAttempts int) *Service {
	if maxPostAttempts <= 0 {
		maxPostAttempts = defaultMaxPostAttempts
	}
	return &Service{
		repo:            repo,
		eventProducer:   producer,
		maxPostAttempts: maxPostAttempts,
	}
}

// SetRateLimiter wires the per-principal posting rate limiter. limitPerMinute
// of zero or below leaves rate limiting disabled.
func (s *Service) SetRateLimiter(limiter RateLimiter, limitPerMinute int) {
	s.rateLimiter = limiter
	s.postLimitPerMinute = limitPerMinute
}

// CreateAccount provisions a zero-balance account for a principal.
func (s *Service) CreateAccount(ctx context.Context, ownerID string) (*domain.Account, error) {
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return nil, fmt.Errorf("create account: owner id must not be empty")
	}
	return s.repo.CreateAccount(ctx, ownerID)
}

// GetAccount returns the account's current balance snapshot.
func (s *Service) GetAccount(ctx context.Context, accountID uuid.UUID) (*domain.Account, error) {
	return s.repo.FindAccountByID(ctx, accountID)
}

// GetAccountByOwner resolves a principal's own account.
func (s *Service) GetAccountByOwner(ctx context.Context, ownerID string) (*domain.Account, error) {
	return s.repo.FindAccountByOwner(ctx, ownerID)
}

// Post appends one transaction against an account and atomically updates the
// running balance. The gate has already authorized principal-vs-account; the
// engine validates the payload, enforces the rate limit, and drives the
// repository's atomic append with bounded retries on transient conflicts.
func (s *Service) Post(ctx context.Context, req domain.PostingRequest) (*domain.Transaction, error) {
	req.Reference = strings.TrimSpace(req.Reference)
	if req.Reference == "" || len(req.Reference) > maxReferenceLength {
		return nil, ErrInvalidReference
	}
	if req.Amount.Exponent() < -amountScale {
		// More than two fractional digits cannot round-trip through the
		// NUMERIC(12,2) columns without drift; reject instead of rounding.
		return nil, ErrInvalidAmount
	}
	if req.PostedBy == "" {
		return nil, fmt.Errorf("post: posting principal must be set")
	}

	if err := s.consumePostingBudget(ctx, req.PostedBy); err != nil {
		return nil, err
	}

	var (
		tx  *domain.Transaction
		err error
	)
	for attempt := 1; attempt <= s.maxPostAttempts; attempt++ {
		tx, err = s.repo.AppendTransaction(ctx, req)
		if err == nil {
			break
		}
		if !errors.Is(err, store.ErrConcurrencyConflict) {
			return nil, err
		}
		log.Printf("level=warn component=ledger msg=\"posting conflict; retrying\" account_id=%s reference=%s attempt=%d", req.AccountID, req.Reference, attempt)
		if attempt == s.maxPostAttempts {
			return nil, fmt.Errorf("post %q: retries exhausted: %w", req.Reference, store.ErrConcurrencyConflict)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(conflictRetryDelay):
		}
	}

	log.Printf("level=info component=ledger msg=\"transaction posted\" account_id=%s reference=%s amount=%s balance=%s posted_by=%s",
		tx.AccountID, tx.Reference, tx.Amount.StringFixed(amountScale), tx.Balance.StringFixed(amountScale), tx.PostedBy)

	s.publishPosted(ctx, tx)
	return tx, nil
}

// ListByAccount returns an account's transactions newest first. Reads run in
// one statement against committed state, so a listing never observes a
// half-committed posting; a posting that commits mid-listing may or may not
// appear.
func (s *Service) ListByAccount(ctx context.Context, accountID uuid.UUID, opts domain.ListOptions) ([]domain.Transaction, error) {
	if _, err := s.repo.FindAccountByID(ctx, accountID); err != nil {
		return nil, err
	}
	return s.repo.FindTransactionsByAccountID(ctx, accountID, opts)
}

func (s *Service) consumePostingBudget(ctx context.Context, principalID string) error {
	if s.rateLimiter == nil || s.postLimitPerMinute <= 0 {
		return nil
	}
	count, retryAfter, err := s.rateLimiter.ConsumeRateLimit(ctx, "post", principalID, s.postLimitPerMinute, time.Minute)
	if err != nil {
		// Rate limiting is protective, not load-bearing; a limiter outage
		// must not block postings.
		log.Printf("level=warn component=ledger msg=\"rate limiter unavailable; allowing posting\" principal=%s err=%v", principalID, err)
		return nil
	}
	if count > s.postLimitPerMinute {
		log.Printf("level=warn component=ledger msg=\"posting rate limited\" principal=%s count=%d retry_after_s=%d", principalID, count, retryAfter)
		return ErrPostingRateLimited
	}
	return nil
}

func (s *Service) publishPosted(ctx context.Context, tx *domain.Transaction) {
	if s.eventProducer == nil {
		return
	}
	event := domain.NewTransactionPostedEvent(tx)
	if err := s.eventProducer.PublishTransactionPosted(ctx, event); err != nil {
		log.Printf("level=warn component=ledger msg=\"posted event publish failed\" transaction_id=%s reference=%s err=%v", tx.ID, tx.Reference, err)
	}
}
