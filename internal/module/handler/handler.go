// Package handler exposes the capability module catalog over HTTP.
package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"sigil/internal/module/service"
	id "sigil/pkg/domain"
	dErrors "sigil/pkg/domain-errors"
	"sigil/pkg/platform/httputil"
)

// Handler serves the module catalog routes.
type Handler struct {
	svc    *service.Service
	logger *slog.Logger
}

func New(svc *service.Service, logger *slog.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

// Register mounts the authenticated module routes.
func (h *Handler) Register(r chi.Router) {
	r.Post("/identities/{id}/modules/{key}/activate", h.activate)
	r.Post("/identities/{id}/modules/{key}/deactivate", h.deactivate)
}

// RegisterPublic mounts the unauthenticated catalog queries.
func (h *Handler) RegisterPublic(r chi.Router) {
	r.Get("/modules", h.list)
	r.Get("/modules/{key}", h.describe)
	r.Get("/identities/{id}/modules/{key}", h.isActive)
}

// RegisterAdmin mounts the admin-token routes.
func (h *Handler) RegisterAdmin(r chi.Router) {
	r.Post("/admin/modules", h.register)
}

func identityIDParam(r *http.Request) (id.IdentityID, error) {
	identityID, ok := id.ParseIdentityID(chi.URLParam(r, "id"))
	if !ok {
		return 0, dErrors.New(dErrors.CodeBadRequest, "invalid identity id")
	}
	return identityID, nil
}

type registerRequest struct {
	Key           id.ModuleKey `json:"key"`
	CapabilityRef string       `json:"capability_ref"`
	Premium       bool         `json:"premium"`
	PremiumCost   id.Amount    `json:"premium_cost"`
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	req, ok := httputil.Decode[registerRequest](w, r, h.logger, r.Context())
	if !ok {
		return
	}
	desc, err := h.svc.Register(r.Context(), req.Key, req.CapabilityRef, req.Premium, req.PremiumCost)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, desc)
}

type activateRequest struct {
	Payment id.Amount `json:"payment"`
}

func (h *Handler) activate(w http.ResponseWriter, r *http.Request) {
	identityID, err := identityIDParam(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.Decode[activateRequest](w, r, h.logger, r.Context())
	if !ok {
		return
	}
	if err := h.svc.Activate(r.Context(), identityID, id.ModuleKey(chi.URLParam(r, "key")), req.Payment); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "active"})
}

func (h *Handler) deactivate(w http.ResponseWriter, r *http.Request) {
	identityID, err := identityIDParam(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := h.svc.Deactivate(r.Context(), identityID, id.ModuleKey(chi.URLParam(r, "key"))); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "inactive"})
}

func (h *Handler) isActive(w http.ResponseWriter, r *http.Request) {
	identityID, err := identityIDParam(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	active, err := h.svc.IsActive(r.Context(), identityID, id.ModuleKey(chi.URLParam(r, "key")))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]bool{"active": active})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	descs, err := h.svc.List(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, descs)
}

func (h *Handler) describe(w http.ResponseWriter, r *http.Request) {
	desc, err := h.svc.Describe(r.Context(), id.ModuleKey(chi.URLParam(r, "key")))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, desc)
}
