package callerauth

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/wisbric/lifebank/internal/ledger"
	"github.com/wisbric/lifebank/internal/ledger/memclock"
	"github.com/wisbric/lifebank/internal/ledger/memstore"
	"github.com/wisbric/lifebank/pkg/accesscontrol"
)

func newAuthorizer(t *testing.T, bootstrap ledger.Address) (*Authorizer, *ledger.Env, *accesscontrol.Service) {
	t.Helper()
	logger := slog.New(slog.DiscardHandler)
	env := &ledger.Env{
		Clock:  memclock.New(1000),
		Store:  memstore.New(),
		Caller: "grantor",
	}
	roles := accesscontrol.NewService(logger)
	envFn := func(r *http.Request) *ledger.Env {
		e := *env
		e.Caller = CallerFrom(r.Context())
		return &e
	}
	return NewAuthorizer(roles, envFn, bootstrap, logger), env, roles
}

func serve(authz *Authorizer, method, path, caller string) *httptest.ResponseRecorder {
	handler := WithCaller(authz.Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})))

	r := httptest.NewRequest(method, path, nil)
	if caller != "" {
		r.Header.Set(CallerHeader, caller)
	}
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)
	return w
}

func TestAuthorizer_UnmatchedRoutesPass(t *testing.T) {
	authz, _, _ := newAuthorizer(t, "")
	authz.Require(http.MethodPost, "/units", accesscontrol.RoleBloodBank)

	if w := serve(authz, http.MethodGet, "/units", ""); w.Code != http.StatusNoContent {
		t.Errorf("GET /units status = %d, want 204 (reads are open)", w.Code)
	}
	if w := serve(authz, http.MethodPost, "/other", ""); w.Code != http.StatusNoContent {
		t.Errorf("POST /other status = %d, want 204 (no rule declared)", w.Code)
	}
}

func TestAuthorizer_DeniesWithoutCaller(t *testing.T) {
	authz, _, _ := newAuthorizer(t, "")
	authz.Require(http.MethodPost, "/units", accesscontrol.RoleBloodBank)

	if w := serve(authz, http.MethodPost, "/units", ""); w.Code != http.StatusUnauthorized {
		t.Errorf("anonymous POST /units status = %d, want 401", w.Code)
	}
}

func TestAuthorizer_RoleGate(t *testing.T) {
	authz, env, roles := newAuthorizer(t, "")
	authz.Require(http.MethodPost, "/units", accesscontrol.RoleBloodBank)

	if w := serve(authz, http.MethodPost, "/units", "bank-1"); w.Code != http.StatusForbidden {
		t.Errorf("ungranted caller status = %d, want 403", w.Code)
	}

	if _, err := roles.GrantRole(context.Background(), env, "bank-1", accesscontrol.RoleBloodBank, nil); err != nil {
		t.Fatalf("GrantRole: %v", err)
	}

	if w := serve(authz, http.MethodPost, "/units", "bank-1"); w.Code != http.StatusNoContent {
		t.Errorf("granted caller status = %d, want 204", w.Code)
	}
}

func TestAuthorizer_AnyOfRoles(t *testing.T) {
	authz, env, roles := newAuthorizer(t, "")
	authz.Require(http.MethodPost, "/units/*/status",
		accesscontrol.RoleBloodBank, accesscontrol.RoleHospital, accesscontrol.RoleRider)

	if _, err := roles.GrantRole(context.Background(), env, "rider-1", accesscontrol.RoleRider, nil); err != nil {
		t.Fatalf("GrantRole: %v", err)
	}

	if w := serve(authz, http.MethodPost, "/units/42/status", "rider-1"); w.Code != http.StatusNoContent {
		t.Errorf("rider status update = %d, want 204", w.Code)
	}
	if w := serve(authz, http.MethodPost, "/units/42/status", "stranger"); w.Code != http.StatusForbidden {
		t.Errorf("stranger status update = %d, want 403", w.Code)
	}
}

func TestAuthorizer_WildcardMatchesSingleSegment(t *testing.T) {
	authz, _, _ := newAuthorizer(t, "")
	authz.Require(http.MethodPost, "/units/*/status", accesscontrol.RoleRider)

	// Wrong depth: no rule matches, so the request passes through.
	if w := serve(authz, http.MethodPost, "/units/status", "anyone"); w.Code != http.StatusNoContent {
		t.Errorf("two-segment path status = %d, want 204 (rule is three segments)", w.Code)
	}
}

func TestAuthorizer_BootstrapAdminBypasses(t *testing.T) {
	authz, _, _ := newAuthorizer(t, "root-admin")
	authz.Require(http.MethodPost, "/roles/grant", accesscontrol.RoleAdmin)

	if w := serve(authz, http.MethodPost, "/roles/grant", "root-admin"); w.Code != http.StatusNoContent {
		t.Errorf("bootstrap admin status = %d, want 204", w.Code)
	}
	if w := serve(authz, http.MethodPost, "/roles/grant", "not-root"); w.Code != http.StatusForbidden {
		t.Errorf("non-bootstrap caller status = %d, want 403", w.Code)
	}
}

func TestAuthorizer_ExpiredRoleDenied(t *testing.T) {
	authz, env, roles := newAuthorizer(t, "")
	authz.Require(http.MethodPost, "/units", accesscontrol.RoleBloodBank)

	expires := uint64(2000)
	if _, err := roles.GrantRole(context.Background(), env, "bank-1", accesscontrol.RoleBloodBank, &expires); err != nil {
		t.Fatalf("GrantRole: %v", err)
	}

	if w := serve(authz, http.MethodPost, "/units", "bank-1"); w.Code != http.StatusNoContent {
		t.Errorf("pre-expiry status = %d, want 204", w.Code)
	}

	env.Clock.(*memclock.Clock).Set(2001)
	if w := serve(authz, http.MethodPost, "/units", "bank-1"); w.Code != http.StatusForbidden {
		t.Errorf("post-expiry status = %d, want 403", w.Code)
	}
}
