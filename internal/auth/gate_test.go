package auth

import (
	"errors"
	"testing"

	"github.com/google/uuid"
)

func TestSelfServiceGate(t *testing.T) {
	ownAccount := uuid.New()

	tests := []struct {
		name      string
		principal Principal
		target    uuid.UUID
		wantDeny  bool
	}{
		{
			name:      "permits posting against own account",
			principal: Principal{ID: "user-1", AccountID: ownAccount},
			target:    ownAccount,
			wantDeny:  false,
		},
		{
			name:      "denies posting against another account",
			principal: Principal{ID: "user-1", AccountID: ownAccount},
			target:    uuid.New(),
			wantDeny:  true,
		},
		{
			name:      "denies when principal has no resolved account",
			principal: Principal{ID: "user-1"},
			target:    ownAccount,
			wantDeny:  true,
		},
	}

	gate := SelfServiceGate{}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := gate.Authorize(tt.principal, tt.target)
			if tt.wantDeny && !errors.Is(err, ErrAuthorizationDenied) {
				t.Fatalf("expected denial, got %v", err)
			}
			if !tt.wantDeny && err != nil {
				t.Fatalf("expected permit, got %v", err)
			}
		})
	}
}

func TestAdministrativeGate(t *testing.T) {
	tests := []struct {
		name      string
		adminRole string
		principal Principal
		wantDeny  bool
	}{
		{
			name:      "permits configured admin role against any account",
			adminRole: "admin",
			principal: Principal{ID: "staff-1", Role: "admin"},
			wantDeny:  false,
		},
		{
			name:      "denies non-admin role",
			adminRole: "admin",
			principal: Principal{ID: "user-1", Role: "customer"},
			wantDeny:  true,
		},
		{
			name:      "denies empty role even if configured role is empty",
			adminRole: "",
			principal: Principal{ID: "user-1", Role: ""},
			wantDeny:  true,
		},
		{
			name:      "honors custom admin role",
			adminRole: "ledger-operator",
			principal: Principal{ID: "staff-2", Role: "ledger-operator"},
			wantDeny:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gate := AdministrativeGate{AdminRole: tt.adminRole}
			err := gate.Authorize(tt.principal, uuid.New())
			if tt.wantDeny && !errors.Is(err, ErrAuthorizationDenied) {
				t.Fatalf("expected denial, got %v", err)
			}
			if !tt.wantDeny && err != nil {
				t.Fatalf("expected permit, got %v", err)
			}
		})
	}
}
