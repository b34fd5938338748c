// Package callerauth is the caller layer in front of the three LifeBank
// cores. It resolves the acting principal for each HTTP request and
// enforces business-level policy (which role may invoke which operation)
// by consulting pkg/accesscontrol — the cores themselves stay policy-free
// and record faithfully. Concrete rules are declared at wiring time in
// internal/app.
package callerauth

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/wisbric/lifebank/internal/httpserver"
	"github.com/wisbric/lifebank/internal/ledger"
	"github.com/wisbric/lifebank/pkg/accesscontrol"
)

// CallerHeader carries the acting principal's address. It stands in for
// the host ledger's caller proof: in the on-chain original the host
// verifies a signature before the contract ever runs; here the deployment
// terminates that proof at the edge (mTLS, gateway auth) and forwards the
// verified address in this header.
const CallerHeader = "X-Caller-Address"

type ctxKey struct{}

// WithCaller resolves the caller address from the request and stores it in
// the request context for envFn and policy checks downstream.
func WithCaller(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller := ledger.Address(strings.TrimSpace(r.Header.Get(CallerHeader)))
		ctx := context.WithValue(r.Context(), ctxKey{}, caller)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// CallerFrom returns the caller address resolved by WithCaller, or "" when
// the request carried no identity.
func CallerFrom(ctx context.Context) ledger.Address {
	caller, _ := ctx.Value(ctxKey{}).(ledger.Address)
	return caller
}

// rule is one declared policy entry: a method, a path pattern ("*"
// matches one segment), and the roles that may pass.
type rule struct {
	method   string
	segments []string
	roles    []accesscontrol.Role
}

// Authorizer enforces declared role rules against pkg/accesscontrol. The
// first matching rule wins; requests matching no rule pass through (the
// cores' own checks — caller proof, admin identity, time windows — still
// apply).
type Authorizer struct {
	roles     *accesscontrol.Service
	envFn     func(r *http.Request) *ledger.Env
	bootstrap ledger.Address
	logger    *slog.Logger
	rules     []rule
}

// NewAuthorizer creates an Authorizer. bootstrap names an address that
// passes every rule unconditionally, solving the first-admin problem: with
// an empty role store nobody could grant the first Admin role.
func NewAuthorizer(roles *accesscontrol.Service, envFn func(r *http.Request) *ledger.Env, bootstrap ledger.Address, logger *slog.Logger) *Authorizer {
	return &Authorizer{roles: roles, envFn: envFn, bootstrap: bootstrap, logger: logger}
}

// Require declares that method+pattern may only be invoked by a caller
// holding at least one of the given roles. Pattern segments of "*" match
// any single path segment; matching is exact in length.
func (a *Authorizer) Require(method, pattern string, roles ...accesscontrol.Role) {
	a.rules = append(a.rules, rule{
		method:   method,
		segments: splitPath(pattern),
		roles:    roles,
	})
}

// Middleware applies the declared rules to every request passing through.
func (a *Authorizer) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		matched, ok := a.match(r)
		if !ok {
			next.ServeHTTP(w, r)
			return
		}

		caller := CallerFrom(r.Context())
		if caller == "" {
			httpserver.RespondError(w, http.StatusUnauthorized, "unauthenticated", "caller address required")
			return
		}
		if a.bootstrap != "" && caller == a.bootstrap {
			next.ServeHTTP(w, r)
			return
		}

		env := a.envFn(r)
		for _, role := range matched.roles {
			has, err := a.roles.HasRole(r.Context(), env, caller, role)
			if err != nil {
				a.logger.Error("role check failed", "caller", caller, "role", role, "error", err)
				httpserver.RespondError(w, http.StatusInternalServerError, "internal", "internal error")
				return
			}
			if has {
				next.ServeHTTP(w, r)
				return
			}
		}

		a.logger.Info("request denied by role policy",
			"caller", caller,
			"method", r.Method,
			"path", r.URL.Path,
		)
		httpserver.RespondError(w, http.StatusForbidden, "forbidden", "caller lacks a required role")
	})
}

func (a *Authorizer) match(r *http.Request) (rule, bool) {
	path := splitPath(r.URL.Path)
	for _, ru := range a.rules {
		if ru.method != r.Method {
			continue
		}
		if matchSegments(ru.segments, path) {
			return ru, true
		}
	}
	return rule{}, false
}

func matchSegments(pattern, path []string) bool {
	if len(pattern) != len(path) {
		return false
	}
	for i, seg := range pattern {
		if seg != "*" && seg != path[i] {
			return false
		}
	}
	return true
}

func splitPath(p string) []string {
	p = strings.Trim(p, "/")
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}
