package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/finlog/ledger-service/internal/app"
	"github.com/finlog/ledger-service/internal/auth"
	"github.com/finlog/ledger-service/internal/domain"
	"github.com/finlog/ledger-service/internal/store"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type handlerFixture struct {
	repo     *store.MemoryRepository
	handlers *LedgerHandlers
}

func newHandlerFixture(t *testing.T) *handlerFixture {
	t.Helper()
	repo := store.NewMemoryRepository()
	service := app.NewService(repo, nil, 3)
	handlers := NewLedgerHandlers(
		service,
		auth.SelfServiceGate{},
		auth.AdministrativeGate{AdminRole: "admin"},
	)
	return &handlerFixture{repo: repo, handlers: handlers}
}

func (f *handlerFixture) createAccount(t *testing.T, ownerID string) *domain.Account {
	t.Helper()
	account, err := f.repo.CreateAccount(context.Background(), ownerID)
	if err != nil {
		t.Fatalf("failed to create account for %s: %v", ownerID, err)
	}
	return account
}

func (f *handlerFixture) fund(t *testing.T, accountID uuid.UUID, amount string) {
	t.Helper()
	_, err := f.repo.AppendTransaction(context.Background(), domain.PostingRequest{
		AccountID: accountID,
		Reference: fmt.Sprintf("fund-%s", uuid.NewString()),
		Amount:    decimal.RequireFromString(amount),
		PostedBy:  "fixture",
	})
	if err != nil {
		t.Fatalf("failed to fund account: %v", err)
	}
}

func requestWithPrincipal(t *testing.T, method, target string, principal auth.Principal, body interface{}) *http.Request {
	t.Helper()
	var payload bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&payload).Encode(body); err != nil {
			t.Fatalf("failed to encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, target, &payload)
	return req.WithContext(WithPrincipal(req.Context(), principal))
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(out); err != nil {
		t.Fatalf("failed to decode response body: %v", err)
	}
}

func TestSelfPostingHandler_CommitsPosting(t *testing.T) {
	fixture := newHandlerFixture(t)
	fixture.createAccount(t, "user-1")

	req := requestWithPrincipal(t, http.MethodPost, "/transactions", auth.Principal{ID: "user-1"}, map[string]interface{}{
		"reference": "self-001",
		"amount":    "125.50",
	})
	rec := httptest.NewRecorder()
	fixture.handlers.SelfPostingHandler(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var got postingResponse
	decodeBody(t, rec, &got)
	if got.Reference != "self-001" {
		t.Fatalf("expected reference self-001, got %q", got.Reference)
	}
	if got.PreviousBalance != "0.00" || got.Balance != "125.50" {
		t.Fatalf("expected chain 0.00 -> 125.50, got %s -> %s", got.PreviousBalance, got.Balance)
	}
	if got.PostedBy != "user-1" {
		t.Fatalf("expected posted_by user-1, got %q", got.PostedBy)
	}
}

func TestSelfPostingHandler_MissingAmountIsRejected(t *testing.T) {
	fixture := newHandlerFixture(t)
	fixture.createAccount(t, "user-1")

	req := requestWithPrincipal(t, http.MethodPost, "/transactions", auth.Principal{ID: "user-1"}, map[string]interface{}{
		"reference": "self-002",
	})
	rec := httptest.NewRecorder()
	fixture.handlers.SelfPostingHandler(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing amount, got %d", rec.Code)
	}
}

func TestSelfPostingHandler_ZeroAmountIsAccepted(t *testing.T) {
	fixture := newHandlerFixture(t)
	fixture.createAccount(t, "user-1")

	req := requestWithPrincipal(t, http.MethodPost, "/transactions", auth.Principal{ID: "user-1"}, map[string]interface{}{
		"reference": "self-zero",
		"amount":    "0.00",
	})
	rec := httptest.NewRecorder()
	fixture.handlers.SelfPostingHandler(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 for zero-amount posting, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestSelfPostingHandler_NoAccountForPrincipal(t *testing.T) {
	fixture := newHandlerFixture(t)

	req := requestWithPrincipal(t, http.MethodPost, "/transactions", auth.Principal{ID: "stranger"}, map[string]interface{}{
		"reference": "self-003",
		"amount":    "10.00",
	})
	rec := httptest.NewRecorder()
	fixture.handlers.SelfPostingHandler(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown principal, got %d", rec.Code)
	}
}

func TestSelfPostingHandler_DuplicateReference(t *testing.T) {
	fixture := newHandlerFixture(t)
	fixture.createAccount(t, "user-1")

	body := map[string]interface{}{"reference": "dup-001", "amount": "10.00"}

	first := httptest.NewRecorder()
	fixture.handlers.SelfPostingHandler(first, requestWithPrincipal(t, http.MethodPost, "/transactions", auth.Principal{ID: "user-1"}, body))
	if first.Code != http.StatusCreated {
		t.Fatalf("expected first posting to succeed, got %d", first.Code)
	}

	second := httptest.NewRecorder()
	fixture.handlers.SelfPostingHandler(second, requestWithPrincipal(t, http.MethodPost, "/transactions", auth.Principal{ID: "user-1"}, body))
	if second.Code != http.StatusConflict {
		t.Fatalf("expected 409 for duplicate reference, got %d", second.Code)
	}
}

func TestSelfPostingHandler_InsufficientBalance(t *testing.T) {
	fixture := newHandlerFixture(t)
	fixture.createAccount(t, "user-1")

	req := requestWithPrincipal(t, http.MethodPost, "/transactions", auth.Principal{ID: "user-1"}, map[string]interface{}{
		"reference": "debit-001",
		"amount":    "-0.01",
	})
	rec := httptest.NewRecorder()
	fixture.handlers.SelfPostingHandler(rec, req)

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for overdraft, got %d", rec.Code)
	}
}

func TestStaffPostingHandler_RequiresAdminRole(t *testing.T) {
	fixture := newHandlerFixture(t)
	account := fixture.createAccount(t, "user-1")

	req := requestWithPrincipal(t, http.MethodPost, "/staff/transactions", auth.Principal{ID: "user-2", Role: "customer"}, map[string]interface{}{
		"account_id": account.ID.String(),
		"reference":  "staff-001",
		"amount":     "50.00",
	})
	rec := httptest.NewRecorder()
	fixture.handlers.StaffPostingHandler(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for non-admin principal, got %d", rec.Code)
	}
}

func TestStaffPostingHandler_AdminPostsAgainstAnyAccount(t *testing.T) {
	fixture := newHandlerFixture(t)
	account := fixture.createAccount(t, "user-1")

	req := requestWithPrincipal(t, http.MethodPost, "/staff/transactions", auth.Principal{ID: "staff-1", Role: "admin"}, map[string]interface{}{
		"account_id": account.ID.String(),
		"reference":  "staff-002",
		"amount":     "50.00",
	})
	rec := httptest.NewRecorder()
	fixture.handlers.StaffPostingHandler(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 for admin posting, got %d: %s", rec.Code, rec.Body.String())
	}

	var got postingResponse
	decodeBody(t, rec, &got)
	if got.AccountID != account.ID.String() {
		t.Fatalf("expected posting against %s, got %s", account.ID, got.AccountID)
	}
	if got.PostedBy != "staff-1" {
		t.Fatalf("expected posted_by staff-1, got %q", got.PostedBy)
	}
}

func TestStaffPostingHandler_MissingAccountID(t *testing.T) {
	fixture := newHandlerFixture(t)

	req := requestWithPrincipal(t, http.MethodPost, "/staff/transactions", auth.Principal{ID: "staff-1", Role: "admin"}, map[string]interface{}{
		"reference": "staff-003",
		"amount":    "50.00",
	})
	rec := httptest.NewRecorder()
	fixture.handlers.StaffPostingHandler(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing account_id, got %d", rec.Code)
	}
}

func TestStaffPostingHandler_UnknownAccount(t *testing.T) {
	fixture := newHandlerFixture(t)

	req := requestWithPrincipal(t, http.MethodPost, "/staff/transactions", auth.Principal{ID: "staff-1", Role: "admin"}, map[string]interface{}{
		"account_id": uuid.NewString(),
		"reference":  "staff-004",
		"amount":     "50.00",
	})
	rec := httptest.NewRecorder()
	fixture.handlers.StaffPostingHandler(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown account, got %d", rec.Code)
	}
}

func TestListTransactionsHandler_NewestFirst(t *testing.T) {
	fixture := newHandlerFixture(t)
	account := fixture.createAccount(t, "user-1")
	fixture.fund(t, account.ID, "10.00")
	fixture.fund(t, account.ID, "20.00")

	req := requestWithPrincipal(t, http.MethodGet, "/transactions", auth.Principal{ID: "user-1"}, nil)
	rec := httptest.NewRecorder()
	fixture.handlers.ListTransactionsHandler(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var got []postingResponse
	decodeBody(t, rec, &got)
	if len(got) != 2 {
		t.Fatalf("expected 2 transactions, got %d", len(got))
	}
	if got[0].Amount != "20.00" || got[1].Amount != "10.00" {
		t.Fatalf("expected newest-first ordering, got %s then %s", got[0].Amount, got[1].Amount)
	}
}

func TestListTransactionsHandler_EmptyAccountReturnsEmptyArray(t *testing.T) {
	fixture := newHandlerFixture(t)
	fixture.createAccount(t, "user-1")

	req := requestWithPrincipal(t, http.MethodGet, "/transactions", auth.Principal{ID: "user-1"}, nil)
	rec := httptest.NewRecorder()
	fixture.handlers.ListTransactionsHandler(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var got []postingResponse
	decodeBody(t, rec, &got)
	if len(got) != 0 {
		t.Fatalf("expected empty listing, got %d rows", len(got))
	}
}

func TestGetBalanceHandler_ReturnsSnapshot(t *testing.T) {
	fixture := newHandlerFixture(t)
	account := fixture.createAccount(t, "user-1")
	fixture.fund(t, account.ID, "33.25")

	req := requestWithPrincipal(t, http.MethodGet, "/transactions/balance", auth.Principal{ID: "user-1"}, nil)
	rec := httptest.NewRecorder()
	fixture.handlers.GetBalanceHandler(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var got map[string]string
	decodeBody(t, rec, &got)
	if got["balance"] != "33.25" {
		t.Fatalf("expected balance 33.25, got %q", got["balance"])
	}
	if got["account_id"] != account.ID.String() {
		t.Fatalf("expected account id %s, got %q", account.ID, got["account_id"])
	}
}

func TestCreateAccountHandler_AdminOnlyAndConflictOnDuplicateOwner(t *testing.T) {
	fixture := newHandlerFixture(t)

	asCustomer := requestWithPrincipal(t, http.MethodPost, "/staff/accounts", auth.Principal{ID: "user-1", Role: "customer"}, map[string]string{"owner_id": "user-9"})
	rec := httptest.NewRecorder()
	fixture.handlers.CreateAccountHandler(rec, asCustomer)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for non-admin, got %d", rec.Code)
	}

	asAdmin := func() *http.Request {
		return requestWithPrincipal(t, http.MethodPost, "/staff/accounts", auth.Principal{ID: "staff-1", Role: "admin"}, map[string]string{"owner_id": "user-9"})
	}

	created := httptest.NewRecorder()
	fixture.handlers.CreateAccountHandler(created, asAdmin())
	if created.Code != http.StatusCreated {
		t.Fatalf("expected 201 for first provisioning, got %d", created.Code)
	}

	duplicate := httptest.NewRecorder()
	fixture.handlers.CreateAccountHandler(duplicate, asAdmin())
	if duplicate.Code != http.StatusConflict {
		t.Fatalf("expected 409 for duplicate owner, got %d", duplicate.Code)
	}
}
