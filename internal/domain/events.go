package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TransactionPostedEvent is the message published after a posting commits.
// Downstream consumers (statements, notifications) subscribe to the
// ledger.events exchange with routing key "ledger.transaction.posted".
type TransactionPostedEvent struct {
	TransactionID   uuid.UUID       `json:"transaction_id"`
	Reference       string          `json:"reference"`
	AccountID       uuid.UUID       `json:"account_id"`
	PreviousBalance decimal.Decimal `json:"previous_balance"`
	Amount          decimal.Decimal `json:"amount"`
	Balance         decimal.Decimal `json:"balance"`
	PostedBy        string          `json:"posted_by"`
	OccurredAt      time.Time       `json:"occurred_at"`
}

// NewTransactionPostedEvent builds the event payload for a committed transaction.
func NewTransactionPostedEvent(tx *Transaction) TransactionPostedEvent {
	return TransactionPostedEvent{
		TransactionID:   tx.ID,
		Reference:       tx.Reference,
		AccountID:       tx.AccountID,
		PreviousBalance: tx.PreviousBalance,
		Amount:          tx.Amount,
		Balance:         tx.Balance,
		PostedBy:        tx.PostedBy,
		OccurredAt:      tx.CreatedAt,
	}
}
