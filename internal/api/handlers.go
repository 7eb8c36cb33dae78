/**
 * @description
 * This file contains the HTTP handlers for the ledger-service's API endpoints.
 * Handlers are responsible for parsing incoming requests, invoking the
 * authorization gate, calling the appropriate methods on the application
 * service, and writing the HTTP response. They act as the bridge between the
 * web layer and the posting engine.
 *
 * @dependencies
 * - encoding/json, log, net/http, strconv: Standard Go libraries.
 * - internal/app, internal/auth, internal/domain, internal/store: Service logic, gate, models, and custom errors.
 */

package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/finlog/ledger-service/internal/app"
	"github.com/finlog/ledger-service/internal/auth"
	"github.com/finlog/ledger-service/internal/domain"
	"github.com/finlog/ledger-service/internal/store"
	"github.com/google/uuid"
)

// LedgerHandlers holds the application service and gates that handlers use.
type LedgerHandlers struct {
	service   *app.Service
	selfGate  auth.Gate
	adminGate auth.Gate
}

// NewLedgerHandlers creates a new instance of LedgerHandlers.
func NewLedgerHandlers(service *app.Service, selfGate, adminGate auth.Gate) *LedgerHandlers {
	return &LedgerHandlers{service: service, selfGate: selfGate, adminGate: adminGate}
}

// postingResponse mirrors the committed transaction returned to clients.
// Balances are serialized as fixed two-decimal strings so clients never see
// float artifacts.
type postingResponse struct {
	ID              string `json:"id"`
	Reference       string `json:"reference"`
	AccountID       string `json:"account_id"`
	PreviousBalance string `json:"previous_balance"`
	Amount          string `json:"amount"`
	Balance         string `json:"balance"`
	PostedBy        string `json:"posted_by"`
	CreatedAt       string `json:"created_at"`
}

func buildPostingResponse(tx *domain.Transaction) postingResponse {
	return postingResponse{
		ID:              tx.ID.String(),
		Reference:       tx.Reference,
		AccountID:       tx.AccountID.String(),
		PreviousBalance: tx.PreviousBalance.StringFixed(2),
		Amount:          tx.Amount.StringFixed(2),
		Balance:         tx.Balance.StringFixed(2),
		PostedBy:        tx.PostedBy,
		CreatedAt:       tx.CreatedAt.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
	}
}

// SelfPostingHandler handles POST /transactions: a principal posting against
// its own account.
func (h *LedgerHandlers) SelfPostingHandler(w http.ResponseWriter, r *http.Request) {
	principal, ok := GetPrincipal(r.Context())
	if !ok {
		http.Error(w, "Could not get principal from context", http.StatusInternalServerError)
		return
	}

	account, err := h.service.GetAccountByOwner(r.Context(), principal.ID)
	if err != nil {
		log.Printf("level=warn component=api endpoint=self_posting outcome=reject reason=account_resolution_failed principal=%s err=%v", principal.ID, err)
		h.writeError(w, http.StatusNotFound, "No account exists for the authenticated principal")
		return
	}
	principal.AccountID = account.ID

	var body domain.SelfPostingBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		log.Printf("level=warn component=api endpoint=self_posting outcome=reject reason=invalid_json principal=%s err=%v", principal.ID, err)
		h.writeFieldError(w, http.StatusBadRequest, "amount", "Amount must be a decimal number")
		return
	}
	if body.Amount == nil {
		h.writeFieldError(w, http.StatusBadRequest, "amount", "Amount is required")
		return
	}

	if err := h.selfGate.Authorize(principal, account.ID); err != nil {
		log.Printf("level=warn component=api endpoint=self_posting outcome=deny principal=%s account_id=%s", principal.ID, account.ID)
		h.writeError(w, http.StatusForbidden, "Not authorized to post against this account")
		return
	}

	tx, err := h.service.Post(r.Context(), domain.PostingRequest{
		AccountID: account.ID,
		Reference: body.Reference,
		Amount:    *body.Amount,
		PostedBy:  principal.ID,
	})
	if err != nil {
		h.writePostingError(w, "self_posting", principal.ID, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, buildPostingResponse(tx))
}

// StaffPostingHandler handles POST /staff/transactions: an administrator
// posting against any account.
func (h *LedgerHandlers) StaffPostingHandler(w http.ResponseWriter, r *http.Request) {
	principal, ok := GetPrincipal(r.Context())
	if !ok {
		http.Error(w, "Could not get principal from context", http.StatusInternalServerError)
		return
	}

	var body domain.StaffPostingBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		log.Printf("level=warn component=api endpoint=staff_posting outcome=reject reason=invalid_json principal=%s err=%v", principal.ID, err)
		h.writeFieldError(w, http.StatusBadRequest, "amount", "Amount must be a decimal number")
		return
	}
	if body.Amount == nil || body.AccountID == uuid.Nil {
		h.writeError(w, http.StatusBadRequest, "account_id, reference and amount are required")
		return
	}

	if err := h.adminGate.Authorize(principal, body.AccountID); err != nil {
		log.Printf("level=warn component=api endpoint=staff_posting outcome=deny principal=%s role=%s account_id=%s", principal.ID, principal.Role, body.AccountID)
		h.writeError(w, http.StatusForbidden, "Administrative role required")
		return
	}

	tx, err := h.service.Post(r.Context(), domain.PostingRequest{
		AccountID: body.AccountID,
		Reference: body.Reference,
		Amount:    *body.Amount,
		PostedBy:  principal.ID,
	})
	if err != nil {
		h.writePostingError(w, "staff_posting", principal.ID, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, buildPostingResponse(tx))
}

// ListTransactionsHandler handles GET /transactions: the caller's postings,
// newest first.
func (h *LedgerHandlers) ListTransactionsHandler(w http.ResponseWriter, r *http.Request) {
	principal, ok := GetPrincipal(r.Context())
	if !ok {
		http.Error(w, "Could not get principal from context", http.StatusInternalServerError)
		return
	}

	account, err := h.service.GetAccountByOwner(r.Context(), principal.ID)
	if err != nil {
		h.writeError(w, http.StatusNotFound, "No account exists for the authenticated principal")
		return
	}

	opts := domain.ListOptions{
		Limit:  queryInt(r, "limit"),
		Offset: queryInt(r, "offset"),
	}
	transactions, err := h.service.ListByAccount(r.Context(), account.ID, opts)
	if err != nil {
		log.Printf("level=error component=api endpoint=list_transactions principal=%s err=%v", principal.ID, err)
		h.writeError(w, http.StatusInternalServerError, "Unable to list transactions")
		return
	}

	responses := make([]postingResponse, 0, len(transactions))
	for i := range transactions {
		responses = append(responses, buildPostingResponse(&transactions[i]))
	}
	h.writeJSON(w, http.StatusOK, responses)
}

// GetBalanceHandler handles GET /transactions/balance: the caller's account snapshot.
func (h *LedgerHandlers) GetBalanceHandler(w http.ResponseWriter, r *http.Request) {
	principal, ok := GetPrincipal(r.Context())
	if !ok {
		http.Error(w, "Could not get principal from context", http.StatusInternalServerError)
		return
	}

	account, err := h.service.GetAccountByOwner(r.Context(), principal.ID)
	if err != nil {
		h.writeError(w, http.StatusNotFound, "No account exists for the authenticated principal")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]string{
		"account_id": account.ID.String(),
		"balance":    account.Balance.StringFixed(2),
	})
}

// CreateAccountHandler handles POST /staff/accounts: provisioning a ledger
// account for a principal during onboarding.
func (h *LedgerHandlers) CreateAccountHandler(w http.ResponseWriter, r *http.Request) {
	principal, ok := GetPrincipal(r.Context())
	if !ok {
		http.Error(w, "Could not get principal from context", http.StatusInternalServerError)
		return
	}

	var body struct {
		OwnerID string `json:"owner_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body: owner_id is required")
		return
	}

	// Account provisioning is an administrative concern; the target account
	// does not exist yet, so the gate is checked with the nil UUID.
	if err := h.adminGate.Authorize(principal, uuid.Nil); err != nil {
		h.writeError(w, http.StatusForbidden, "Administrative role required")
		return
	}

	account, err := h.service.CreateAccount(r.Context(), body.OwnerID)
	if err != nil {
		if errors.Is(err, store.ErrOwnerAlreadyExists) {
			h.writeError(w, http.StatusConflict, "Owner already has an account")
			return
		}
		log.Printf("level=error component=api endpoint=create_account principal=%s err=%v", principal.ID, err)
		h.writeError(w, http.StatusInternalServerError, "Unable to create account")
		return
	}

	h.writeJSON(w, http.StatusCreated, map[string]string{
		"account_id": account.ID.String(),
		"owner_id":   account.OwnerID,
		"balance":    account.Balance.StringFixed(2),
	})
}

// writePostingError maps the engine's error taxonomy onto HTTP status codes.
func (h *LedgerHandlers) writePostingError(w http.ResponseWriter, endpoint, principalID string, err error) {
	log.Printf("level=warn component=api endpoint=%s outcome=failed principal=%s err=%v", endpoint, principalID, err)
	switch {
	case errors.Is(err, store.ErrDuplicateReference):
		h.writeFieldError(w, http.StatusConflict, "reference", "Reference already exists")
	case errors.Is(err, store.ErrInsufficientBalance):
		h.writeError(w, http.StatusUnprocessableEntity, "Insufficient balance")
	case errors.Is(err, store.ErrAccountNotFound):
		h.writeError(w, http.StatusNotFound, "Account not found")
	case errors.Is(err, store.ErrConcurrencyConflict):
		h.writeError(w, http.StatusConflict, "Posting conflicted with concurrent activity; retry")
	case errors.Is(err, app.ErrInvalidAmount):
		h.writeFieldError(w, http.StatusBadRequest, "amount", "Amount must be a decimal with at most two fractional digits")
	case errors.Is(err, app.ErrInvalidReference):
		h.writeFieldError(w, http.StatusBadRequest, "reference", "Reference must be a non-empty string")
	case errors.Is(err, app.ErrPostingRateLimited):
		h.writeError(w, http.StatusTooManyRequests, "Too many postings; slow down")
	default:
		h.writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}

func queryInt(r *http.Request, name string) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return value
}

// writeJSON is a helper for writing JSON responses.
func (h *LedgerHandlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// writeError is a helper for writing JSON error responses.
func (h *LedgerHandlers) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}

// writeFieldError reports a validation failure attributed to one field.
func (h *LedgerHandlers) writeFieldError(w http.ResponseWriter, status int, field, message string) {
	h.writeJSON(w, status, map[string]interface{}{
		"error":  message,
		"fields": map[string]string{field: message},
	})
}
