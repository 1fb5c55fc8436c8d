// Package handler exposes token issuance. Minting a bearer token for an
// arbitrary account is an operator action, so the route sits behind the
// admin token.
package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"sigil/internal/token"
	id "sigil/pkg/domain"
	dErrors "sigil/pkg/domain-errors"
	"sigil/pkg/platform/httputil"
)

const defaultTokenTTL = 24 * time.Hour

type Handler struct {
	tokens *token.Service
	logger *slog.Logger
}

func New(tokens *token.Service, logger *slog.Logger) *Handler {
	return &Handler{tokens: tokens, logger: logger}
}

// RegisterAdmin mounts the issuance route.
func (h *Handler) RegisterAdmin(r chi.Router) {
	r.Post("/admin/tokens", h.issue)
}

type issueRequest struct {
	Account          id.AccountID `json:"account"`
	ExpiresInSeconds int64        `json:"expires_in_seconds"`
}

func (h *Handler) issue(w http.ResponseWriter, r *http.Request) {
	req, ok := httputil.Decode[issueRequest](w, r, h.logger, r.Context())
	if !ok {
		return
	}
	if req.Account.IsZero() {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "account is required"))
		return
	}
	ttl := defaultTokenTTL
	if req.ExpiresInSeconds > 0 {
		ttl = time.Duration(req.ExpiresInSeconds) * time.Second
	}
	signed, err := h.tokens.IssueToken(req.Account, ttl)
	if err != nil {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "failed to sign token"))
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, map[string]any{
		"token":      signed,
		"expires_in": int64(ttl.Seconds()),
	})
}
