package bloodunit

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/wisbric/lifebank/internal/ledger"
	"github.com/wisbric/lifebank/internal/ledger/membus"
	"github.com/wisbric/lifebank/internal/ledger/memclock"
	"github.com/wisbric/lifebank/internal/ledger/memstore"
)

func newTestHandler(t *testing.T) (*Handler, *testEnv) {
	t.Helper()
	clock := memclock.New(1_000_000)
	te := &testEnv{
		env: &ledger.Env{
			Clock:    clock,
			Store:    memstore.New(),
			Events:   membus.New(),
			SelfAddr: "lifebank-registry",
		},
		clock: clock,
	}
	logger := slog.New(slog.DiscardHandler)
	envFn := func(r *http.Request) *ledger.Env {
		env := *te.env
		env.Caller = ledger.Address(r.Header.Get("X-Caller-Address"))
		return &env
	}
	return NewHandler(NewService(logger), envFn, logger), te
}

func doJSON(t *testing.T, h *Handler, method, path, caller, body string) *httptest.ResponseRecorder {
	t.Helper()
	r := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		r.Header.Set("Content-Type", "application/json")
	}
	if caller != "" {
		r.Header.Set("X-Caller-Address", caller)
	}
	w := httptest.NewRecorder()
	h.Routes().ServeHTTP(w, r)
	return w
}

func TestHandleRegister_Validation(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantStatus int
	}{
		{
			name:       "missing bank",
			body:       `{"blood_type":"O+","quantity_ml":450,"expiration_timestamp":1086400}`,
			wantStatus: http.StatusUnprocessableEntity,
		},
		{
			name:       "unknown blood type",
			body:       `{"bank_id":"bank-1","blood_type":"Q+","quantity_ml":450,"expiration_timestamp":1086400}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "quantity below minimum",
			body:       `{"bank_id":"bank-1","blood_type":"O+","quantity_ml":49,"expiration_timestamp":1086400}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "expiration too far out",
			body:       `{"bank_id":"bank-1","blood_type":"O+","quantity_ml":450,"expiration_timestamp":4715200}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "invalid JSON",
			body:       `{bad}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "empty body",
			body:       ``,
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, _ := newTestHandler(t)
			w := doJSON(t, h, http.MethodPost, "/", "bank-1", tt.body)
			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d (body %s)", w.Code, tt.wantStatus, w.Body.String())
			}
		})
	}
}

func TestHandleRegister_HappyPath(t *testing.T) {
	h, _ := newTestHandler(t)

	// Clock starts at 1,000,000; two days out is well inside the window.
	w := doJSON(t, h, http.MethodPost, "/", "bank-1",
		`{"bank_id":"bank-1","blood_type":"AB-","quantity_ml":450,"expiration_timestamp":1172800}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201 (body %s)", w.Code, w.Body.String())
	}

	var resp map[string]uint64
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp["unit_id"] != 1 {
		t.Errorf("unit_id = %d, want 1", resp["unit_id"])
	}

	// The unit is readable back with the same identity fields.
	w = doJSON(t, h, http.MethodGet, "/1", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("GET status = %d, want 200", w.Code)
	}
	var unit BloodUnit
	if err := json.Unmarshal(w.Body.Bytes(), &unit); err != nil {
		t.Fatalf("decoding unit: %v", err)
	}
	if unit.BloodType != ABNeg || unit.Status != StatusAvailable {
		t.Errorf("unit = %+v, want AB- Available", unit)
	}
}

func TestHandleRegister_CallerMismatch(t *testing.T) {
	h, _ := newTestHandler(t)

	w := doJSON(t, h, http.MethodPost, "/", "someone-else",
		`{"bank_id":"bank-1","blood_type":"O+","quantity_ml":450,"expiration_timestamp":1172800}`)
	if w.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", w.Code)
	}
}

func TestHandleGet_NotFound(t *testing.T) {
	h, _ := newTestHandler(t)

	if w := doJSON(t, h, http.MethodGet, "/999", "", ""); w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
	if w := doJSON(t, h, http.MethodGet, "/not-a-number", "", ""); w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestHandleList_RequiresExactlyOneFilter(t *testing.T) {
	h, _ := newTestHandler(t)

	if w := doJSON(t, h, http.MethodGet, "/", "", ""); w.Code != http.StatusBadRequest {
		t.Errorf("no filter status = %d, want 400", w.Code)
	}
	if w := doJSON(t, h, http.MethodGet, "/?bank=b&donor=d", "", ""); w.Code != http.StatusBadRequest {
		t.Errorf("both filters status = %d, want 400", w.Code)
	}
	if w := doJSON(t, h, http.MethodGet, "/?bank=bank-1", "", ""); w.Code != http.StatusOK {
		t.Errorf("bank filter status = %d, want 200", w.Code)
	}
}

func TestHandleExpireBatch(t *testing.T) {
	h, te := newTestHandler(t)

	w := doJSON(t, h, http.MethodPost, "/", "bank-1",
		`{"bank_id":"bank-1","blood_type":"O+","quantity_ml":450,"expiration_timestamp":1086400}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("register status = %d, want 201", w.Code)
	}

	te.clock.Advance(2 * day)

	w = doJSON(t, h, http.MethodPost, "/expire-batch", "bank-1", `{"unit_ids":[1,999]}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expire-batch status = %d, want 200 (body %s)", w.Code, w.Body.String())
	}
	var resp struct {
		ExpiredIDs []uint64 `json:"expired_ids"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if len(resp.ExpiredIDs) != 1 || resp.ExpiredIDs[0] != 1 {
		t.Errorf("expired_ids = %v, want [1]", resp.ExpiredIDs)
	}
}
