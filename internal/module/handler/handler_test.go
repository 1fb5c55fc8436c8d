package handler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	identityservice "sigil/internal/identity/service"
	identitystore "sigil/internal/identity/store"
	moduleservice "sigil/internal/module/service"
	"sigil/internal/module/store"
	"sigil/internal/pricing"
	"sigil/internal/token"
	"sigil/internal/treasury"
	id "sigil/pkg/domain"
	"sigil/pkg/platform/middleware/admin"
	authmw "sigil/pkg/platform/middleware/auth"
	"sigil/pkg/platform/middleware/requestid"
	"sigil/pkg/platform/middleware/requesttime"
	"sigil/pkg/platform/tx"
	"sigil/pkg/testutil"
)

const adminToken = "secret-token"

type env struct {
	router chi.Router
	tokens *token.Service
	ledger *identityservice.Service
}

func newEnv(t *testing.T) *env {
	t.Helper()
	logger := slog.New(slog.DiscardHandler)
	identities := identitystore.NewInMemoryIdentityStore()
	height := identitystore.NewInMemoryHeightStore()
	forwarder := treasury.NewMemoryTreasury("treasury")
	runner := tx.NewMemoryRunner()

	ledger := identityservice.New(identityservice.Stores{
		Identities: identities,
		Accounts:   identitystore.NewInMemoryAccountStore(),
		Messages:   identitystore.NewInMemoryMessageStore(),
		Storage:    identitystore.NewInMemoryStorageStore(),
		Scores:     identitystore.NewInMemoryScoreStore(),
		Settings:   identitystore.NewInMemorySettingsStore(),
		Height:     height,
	}, forwarder, runner, identityservice.WithLogger(logger))

	svc := moduleservice.New(store.NewInMemoryCatalogStore(), identities, height, forwarder, runner,
		moduleservice.WithLogger(logger))
	tokens := token.NewService("test-signing-key", "sigil-test")

	h := New(svc, logger)
	router := chi.NewRouter()
	router.Use(requestid.Middleware, requesttime.Middleware)
	router.Group(h.RegisterPublic)
	router.Group(func(r chi.Router) {
		r.Use(authmw.RequireAccount(tokens, logger))
		h.Register(r)
	})
	router.Group(func(r chi.Router) {
		r.Use(admin.RequireAdminToken(adminToken, logger))
		h.RegisterAdmin(r)
	})
	return &env{router: router, tokens: tokens, ledger: ledger}
}

func (e *env) do(t *testing.T, method, path string, payload any, configure ...func(*http.Request)) *httptest.ResponseRecorder {
	t.Helper()
	raw := []byte(nil)
	if payload != nil {
		var err error
		raw, err = json.Marshal(payload)
		if err != nil {
			t.Fatalf("failed to marshal payload: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	for _, fn := range configure {
		fn(req)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func (e *env) asAccount(t *testing.T, account string) func(*http.Request) {
	t.Helper()
	signed, err := e.tokens.IssueToken(id.AccountID(account), time.Hour)
	if err != nil {
		t.Fatalf("failed to issue token: %v", err)
	}
	return func(req *http.Request) {
		req.Header.Set("Authorization", "Bearer "+signed)
	}
}

func asAdmin(req *http.Request) {
	req.Header.Set("X-Admin-Token", adminToken)
}

func (e *env) mint(t *testing.T, account string) id.IdentityID {
	t.Helper()
	ident, err := e.ledger.Create(testutil.CallerContext(id.AccountID(account)), nil, pricing.FounderPrice)
	if err != nil {
		t.Fatalf("failed to mint identity: %v", err)
	}
	return ident.ID
}

func (e *env) register(t *testing.T, payload map[string]any) {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/admin/modules", payload, asAdmin)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 registering module, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestRegister_AdminGate(t *testing.T) {
	e := newEnv(t)
	rec := e.do(t, http.MethodPost, "/admin/modules",
		map[string]any{"key": "badges", "capability_ref": "ref:badges"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without admin token, got %d", rec.Code)
	}
}

func TestActivateDeactivateOverHTTP(t *testing.T) {
	e := newEnv(t)
	identityID := e.mint(t, "alice")
	e.register(t, map[string]any{"key": "badges", "capability_ref": "ref:badges"})
	alice := e.asAccount(t, "alice")

	activatePath := fmt.Sprintf("/identities/%d/modules/badges/activate", identityID)
	rec := e.do(t, http.MethodPost, activatePath, map[string]any{"payment": 0}, alice)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 activating, got %d: %s", rec.Code, rec.Body.String())
	}

	statusPath := fmt.Sprintf("/identities/%d/modules/badges", identityID)
	rec = e.do(t, http.MethodGet, statusPath, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 reading status, got %d", rec.Code)
	}
	var status struct {
		Active bool `json:"active"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&status); err != nil {
		t.Fatalf("failed to decode status: %v", err)
	}
	if !status.Active {
		t.Fatalf("expected module to be active")
	}

	// A second activation conflicts.
	rec = e.do(t, http.MethodPost, activatePath, map[string]any{"payment": 0}, alice)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 on double activation, got %d", rec.Code)
	}

	deactivatePath := fmt.Sprintf("/identities/%d/modules/badges/deactivate", identityID)
	rec = e.do(t, http.MethodPost, deactivatePath, nil, alice)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 deactivating, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestActivate_PremiumUnderpaymentIs402(t *testing.T) {
	e := newEnv(t)
	identityID := e.mint(t, "alice")
	e.register(t, map[string]any{
		"key": "prophecy", "capability_ref": "ref:prophecy", "premium": true, "premium_cost": 500,
	})

	path := fmt.Sprintf("/identities/%d/modules/prophecy/activate", identityID)
	rec := e.do(t, http.MethodPost, path, map[string]any{"payment": 499}, e.asAccount(t, "alice"))
	if rec.Code != http.StatusPaymentRequired {
		t.Fatalf("expected 402 for premium underpayment, got %d", rec.Code)
	}
}

func TestCatalogQueries(t *testing.T) {
	e := newEnv(t)
	e.register(t, map[string]any{"key": "badges", "capability_ref": "ref:badges"})
	e.register(t, map[string]any{"key": "avatars", "capability_ref": "ref:avatars"})

	rec := e.do(t, http.MethodGet, "/modules", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 listing modules, got %d", rec.Code)
	}
	var descs []struct {
		Key string `json:"key"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&descs); err != nil {
		t.Fatalf("failed to decode module list: %v", err)
	}
	if len(descs) != 2 || descs[0].Key != "avatars" {
		t.Fatalf("unexpected module list: %+v", descs)
	}

	if rec := e.do(t, http.MethodGet, "/modules/badges", nil); rec.Code != http.StatusOK {
		t.Fatalf("expected 200 describing module, got %d", rec.Code)
	}
	if rec := e.do(t, http.MethodGet, "/modules/ghost", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown module, got %d", rec.Code)
	}
}
