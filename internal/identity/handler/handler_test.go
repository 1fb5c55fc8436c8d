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
	"sigil/internal/identity/store"
	"sigil/internal/pricing"
	renderservice "sigil/internal/render/service"
	"sigil/internal/token"
	"sigil/internal/treasury"
	id "sigil/pkg/domain"
	auditpublisher "sigil/pkg/platform/audit/publisher"
	auditmem "sigil/pkg/platform/audit/store/memory"
	"sigil/pkg/platform/middleware/admin"
	authmw "sigil/pkg/platform/middleware/auth"
	"sigil/pkg/platform/middleware/requestid"
	"sigil/pkg/platform/middleware/requesttime"
	"sigil/pkg/platform/tx"
)

const adminToken = "secret-token"

type env struct {
	router chi.Router
	tokens *token.Service
}

func newEnv(t *testing.T) *env {
	t.Helper()
	logger := slog.New(slog.DiscardHandler)
	identities := store.NewInMemoryIdentityStore()
	height := store.NewInMemoryHeightStore()
	publisher := auditpublisher.NewPublisher(auditmem.NewInMemoryStore())
	t.Cleanup(publisher.Close)

	svc := identityservice.New(identityservice.Stores{
		Identities: identities,
		Accounts:   store.NewInMemoryAccountStore(),
		Messages:   store.NewInMemoryMessageStore(),
		Storage:    store.NewInMemoryStorageStore(),
		Scores:     store.NewInMemoryScoreStore(),
		Settings:   store.NewInMemorySettingsStore(),
		Height:     height,
	}, treasury.NewMemoryTreasury("treasury"), tx.NewMemoryRunner(),
		identityservice.WithLogger(logger),
		identityservice.WithAuditPublisher(publisher),
	)
	renders := renderservice.New(identities, height, renderservice.WithLogger(logger))
	tokens := token.NewService("test-signing-key", "sigil-test")

	h := New(svc, renders, publisher, logger)
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
	return &env{router: router, tokens: tokens}
}

func (e *env) do(t *testing.T, method, path string, payload any, configure ...func(*http.Request)) *httptest.ResponseRecorder {
	t.Helper()
	var body *bytes.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("failed to marshal payload: %v", err)
		}
		body = bytes.NewReader(raw)
	} else {
		body = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, body)
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

func (e *env) mint(t *testing.T, account string) uint64 {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/identities",
		map[string]any{"payment": pricing.FounderPrice}, e.asAccount(t, account))
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 minting, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		ID uint64 `json:"id"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode mint response: %v", err)
	}
	return resp.ID
}

func TestCreate_RequiresBearerToken(t *testing.T) {
	e := newEnv(t)
	rec := e.do(t, http.MethodPost, "/identities", map[string]any{"payment": pricing.FounderPrice})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without a token, got %d", rec.Code)
	}
}

func TestCreate_PaymentRequired(t *testing.T) {
	e := newEnv(t)
	rec := e.do(t, http.MethodPost, "/identities",
		map[string]any{"payment": 1}, e.asAccount(t, "alice"))
	if rec.Code != http.StatusPaymentRequired {
		t.Fatalf("expected 402 for underpayment, got %d", rec.Code)
	}
}

func TestCreateAndFetchIdentity(t *testing.T) {
	e := newEnv(t)
	identityID := e.mint(t, "alice")

	rec := e.do(t, http.MethodGet, fmt.Sprintf("/identities/%d", identityID), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 fetching identity, got %d", rec.Code)
	}
	var resp struct {
		Owner      string `json:"owner"`
		Privileged bool   `json:"privileged"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode identity: %v", err)
	}
	if resp.Owner != "alice" || !resp.Privileged {
		t.Fatalf("unexpected identity payload: %+v", resp)
	}

	if rec := e.do(t, http.MethodGet, "/identities/404", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown identity, got %d", rec.Code)
	}
	if rec := e.do(t, http.MethodGet, "/identities/zero", nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for a malformed id, got %d", rec.Code)
	}
}

func TestSetName_ConflictSurfacesAs409(t *testing.T) {
	e := newEnv(t)
	first := e.mint(t, "alice")
	second := e.mint(t, "bob")

	rec := e.do(t, http.MethodPut, fmt.Sprintf("/identities/%d/name", first),
		map[string]string{"name": "prime"}, e.asAccount(t, "alice"))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 renaming, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = e.do(t, http.MethodPut, fmt.Sprintf("/identities/%d/name", second),
		map[string]string{"name": "prime"}, e.asAccount(t, "bob"))
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 for a claimed name, got %d", rec.Code)
	}

	// Resolution by name works through the public surface.
	rec = e.do(t, http.MethodGet, "/identities/by-name/prime", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 resolving by name, got %d", rec.Code)
	}
}

func TestAdminRoutes_TokenGate(t *testing.T) {
	e := newEnv(t)

	rec := e.do(t, http.MethodPost, "/admin/identities",
		map[string]any{"recipient": "vault", "count": 2})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without admin token, got %d", rec.Code)
	}

	rec = e.do(t, http.MethodPost, "/admin/identities",
		map[string]any{"recipient": "vault", "count": 2}, asAdmin)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 admin minting, got %d: %s", rec.Code, rec.Body.String())
	}
	var minted []struct {
		ID uint64 `json:"id"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&minted); err != nil {
		t.Fatalf("failed to decode admin mint response: %v", err)
	}
	if len(minted) != 2 {
		t.Fatalf("expected 2 minted identities, got %d", len(minted))
	}
}

func TestPauseBlocksPublicMinting(t *testing.T) {
	e := newEnv(t)

	if rec := e.do(t, http.MethodPost, "/admin/pause", nil, asAdmin); rec.Code != http.StatusOK {
		t.Fatalf("expected 200 pausing, got %d", rec.Code)
	}

	rec := e.do(t, http.MethodPost, "/identities",
		map[string]any{"payment": pricing.FounderPrice}, e.asAccount(t, "alice"))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 while paused, got %d", rec.Code)
	}

	if rec := e.do(t, http.MethodPost, "/admin/resume", nil, asAdmin); rec.Code != http.StatusOK {
		t.Fatalf("expected 200 resuming, got %d", rec.Code)
	}
	e.mint(t, "alice")
}

func TestRenderEndpoint_ServesSVG(t *testing.T) {
	e := newEnv(t)
	identityID := e.mint(t, "alice")

	rec := e.do(t, http.MethodGet, fmt.Sprintf("/identities/%d/render", identityID), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 rendering, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "image/svg+xml" {
		t.Fatalf("expected image/svg+xml, got %q", ct)
	}
	if !bytes.Contains(rec.Body.Bytes(), []byte("<svg")) {
		t.Fatalf("expected SVG output, got %q", rec.Body.String())
	}
}

func TestMetadataEndpoint(t *testing.T) {
	e := newEnv(t)
	identityID := e.mint(t, "alice")

	rec := e.do(t, http.MethodGet, fmt.Sprintf("/identities/%d/metadata", identityID), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for metadata, got %d", rec.Code)
	}
	var meta struct {
		Name  string `json:"name"`
		Image string `json:"image"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&meta); err != nil {
		t.Fatalf("failed to decode metadata: %v", err)
	}
	if meta.Name == "" || meta.Image == "" {
		t.Fatalf("metadata missing fields: %+v", meta)
	}
}

func TestPriceQuote(t *testing.T) {
	e := newEnv(t)
	rec := e.do(t, http.MethodGet, "/price", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for price quote, got %d", rec.Code)
	}
	var quote struct {
		NextID uint64 `json:"next_id"`
		Price  uint64 `json:"price"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&quote); err != nil {
		t.Fatalf("failed to decode quote: %v", err)
	}
	if quote.NextID != 1 || quote.Price != uint64(pricing.FounderPrice) {
		t.Fatalf("unexpected quote: %+v", quote)
	}
}

func TestEventsEndpoint_ListsMutations(t *testing.T) {
	e := newEnv(t)
	identityID := e.mint(t, "alice")

	rec := e.do(t, http.MethodGet, fmt.Sprintf("/identities/%d/events", identityID), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 listing events, got %d", rec.Code)
	}
	var events []struct {
		Action string `json:"Action"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&events); err != nil {
		t.Fatalf("failed to decode events: %v", err)
	}
	if len(events) != 1 || events[0].Action != "identity_created" {
		t.Fatalf("unexpected event log: %+v", events)
	}
}
