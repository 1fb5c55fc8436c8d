// Package handler exposes the identity ledger over HTTP. Handlers stay
// thin: decode, call the service, translate the result.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"sigil/internal/identity/service"
	rendersvc "sigil/internal/render/service"
	id "sigil/pkg/domain"
	dErrors "sigil/pkg/domain-errors"
	"sigil/pkg/platform/audit"
	"sigil/pkg/platform/httputil"
)

// EventLog reads the identity's ledger events.
type EventLog interface {
	List(ctx context.Context, identityID id.IdentityID) ([]audit.Event, error)
}

// Handler serves the identity routes.
type Handler struct {
	svc     *service.Service
	renders *rendersvc.Service
	events  EventLog
	logger  *slog.Logger
}

func New(svc *service.Service, renders *rendersvc.Service, events EventLog, logger *slog.Logger) *Handler {
	return &Handler{svc: svc, renders: renders, events: events, logger: logger}
}

// Register mounts the authenticated identity routes.
func (h *Handler) Register(r chi.Router) {
	r.Post("/identities", h.create)
	r.Put("/identities/{id}/name", h.setName)
	r.Put("/identities/{id}/bio", h.setBio)
	r.Put("/identities/{id}/config", h.setConfig)
	r.Post("/identities/{id}/transfer", h.transfer)
	r.Post("/identities/{id}/messages", h.sendMessage)
	r.Put("/identities/{id}/storage/{key}", h.writeStorage)
	r.Post("/identities/{id}/scorers", h.grantScorer)
	r.Delete("/identities/{id}/scorers/{account}", h.revokeScorer)
	r.Put("/identities/{id}/scores/{key}", h.setScore)
}

// RegisterPublic mounts the unauthenticated read queries.
func (h *Handler) RegisterPublic(r chi.Router) {
	r.Get("/identities/{id}", h.get)
	r.Get("/identities/by-name/{name}", h.getByName)
	r.Get("/identities/{id}/reputation", h.reputation)
	r.Get("/identities/{id}/messages", h.inbox)
	r.Get("/identities/{id}/storage/{key}", h.readStorage)
	r.Get("/identities/{id}/scores", h.listScores)
	r.Get("/identities/{id}/render", h.render)
	r.Get("/identities/{id}/metadata", h.metadata)
	r.Get("/channels/{channel}/messages", h.channelMessages)
	r.Get("/price", h.price)
	r.Get("/supply", h.supply)
	r.Get("/identities/{id}/events", h.listEvents)
}

// RegisterAdmin mounts the admin-token routes.
func (h *Handler) RegisterAdmin(r chi.Router) {
	r.Post("/admin/identities", h.adminCreate)
	r.Post("/admin/pause", h.pause)
	r.Post("/admin/resume", h.resume)
	r.Put("/admin/whitelist-only", h.setWhitelistOnly)
	r.Post("/admin/whitelist", h.addWhitelist)
	r.Delete("/admin/whitelist/{account}", h.removeWhitelist)
	r.Get("/admin/settings", h.settings)
	r.Get("/admin/accounts/{account}", h.accountState)
}

func parseChannel(s string) (uint32, bool) {
	n, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, false
	}
	return uint32(n), true
}

func identityIDParam(r *http.Request) (id.IdentityID, error) {
	identityID, ok := id.ParseIdentityID(chi.URLParam(r, "id"))
	if !ok {
		return 0, dErrors.New(dErrors.CodeBadRequest, "invalid identity id")
	}
	return identityID, nil
}

type createRequest struct {
	Config  []byte    `json:"config"`
	Payment id.Amount `json:"payment"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	req, ok := httputil.Decode[createRequest](w, r, h.logger, r.Context())
	if !ok {
		return
	}
	ident, err := h.svc.Create(r.Context(), req.Config, req.Payment)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, ident)
}

type adminCreateRequest struct {
	Recipient id.AccountID `json:"recipient"`
	Config    []byte       `json:"config"`
	Count     int          `json:"count"`
}

func (h *Handler) adminCreate(w http.ResponseWriter, r *http.Request) {
	req, ok := httputil.Decode[adminCreateRequest](w, r, h.logger, r.Context())
	if !ok {
		return
	}
	if req.Count == 0 {
		req.Count = 1
	}
	minted, err := h.svc.AdminCreate(r.Context(), req.Recipient, req.Config, req.Count)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, minted)
}

type nameRequest struct {
	Name string `json:"name"`
}

func (h *Handler) setName(w http.ResponseWriter, r *http.Request) {
	identityID, err := identityIDParam(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.Decode[nameRequest](w, r, h.logger, r.Context())
	if !ok {
		return
	}
	ident, err := h.svc.SetName(r.Context(), identityID, req.Name)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, ident)
}

type bioRequest struct {
	Bio string `json:"bio"`
}

func (h *Handler) setBio(w http.ResponseWriter, r *http.Request) {
	identityID, err := identityIDParam(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.Decode[bioRequest](w, r, h.logger, r.Context())
	if !ok {
		return
	}
	ident, err := h.svc.SetBio(r.Context(), identityID, req.Bio)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, ident)
}

type configRequest struct {
	Config []byte `json:"config"`
}

func (h *Handler) setConfig(w http.ResponseWriter, r *http.Request) {
	identityID, err := identityIDParam(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.Decode[configRequest](w, r, h.logger, r.Context())
	if !ok {
		return
	}
	ident, err := h.svc.SetVisualConfig(r.Context(), identityID, req.Config)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, ident)
}

type transferRequest struct {
	NewOwner id.AccountID `json:"new_owner"`
}

func (h *Handler) transfer(w http.ResponseWriter, r *http.Request) {
	identityID, err := identityIDParam(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.Decode[transferRequest](w, r, h.logger, r.Context())
	if !ok {
		return
	}
	ident, err := h.svc.Transfer(r.Context(), identityID, req.NewOwner)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, ident)
}

type messageRequest struct {
	To      id.IdentityID `json:"to"`
	Channel uint32        `json:"channel"`
	Type    uint32        `json:"type"`
	Payload []byte        `json:"payload"`
}

func (h *Handler) sendMessage(w http.ResponseWriter, r *http.Request) {
	identityID, err := identityIDParam(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.Decode[messageRequest](w, r, h.logger, r.Context())
	if !ok {
		return
	}
	msg, err := h.svc.SendMessage(r.Context(), identityID, req.To, req.Channel, req.Type, req.Payload)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, msg)
}

type storageRequest struct {
	Value []byte `json:"value"`
}

func (h *Handler) writeStorage(w http.ResponseWriter, r *http.Request) {
	identityID, err := identityIDParam(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.Decode[storageRequest](w, r, h.logger, r.Context())
	if !ok {
		return
	}
	slot, err := h.svc.WriteStorage(r.Context(), identityID, chi.URLParam(r, "key"), req.Value)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, slot)
}

func (h *Handler) readStorage(w http.ResponseWriter, r *http.Request) {
	identityID, err := identityIDParam(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	slot, err := h.svc.ReadStorage(r.Context(), identityID, chi.URLParam(r, "key"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, slot)
}

type scorerRequest struct {
	Account id.AccountID `json:"account"`
}

func (h *Handler) grantScorer(w http.ResponseWriter, r *http.Request) {
	identityID, err := identityIDParam(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.Decode[scorerRequest](w, r, h.logger, r.Context())
	if !ok {
		return
	}
	ident, err := h.svc.GrantScorer(r.Context(), identityID, req.Account)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, ident)
}

func (h *Handler) revokeScorer(w http.ResponseWriter, r *http.Request) {
	identityID, err := identityIDParam(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	ident, err := h.svc.RevokeScorer(r.Context(), identityID, id.AccountID(chi.URLParam(r, "account")))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, ident)
}

type scoreRequest struct {
	Value int64 `json:"value"`
}

func (h *Handler) setScore(w http.ResponseWriter, r *http.Request) {
	identityID, err := identityIDParam(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.Decode[scoreRequest](w, r, h.logger, r.Context())
	if !ok {
		return
	}
	if err := h.svc.SetExternalScore(r.Context(), identityID, chi.URLParam(r, "key"), req.Value); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) listScores(w http.ResponseWriter, r *http.Request) {
	identityID, err := identityIDParam(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	scores, err := h.svc.ListExternalScores(r.Context(), identityID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, scores)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	identityID, err := identityIDParam(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	ident, err := h.svc.GetIdentity(r.Context(), identityID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, ident)
}

func (h *Handler) getByName(w http.ResponseWriter, r *http.Request) {
	ident, err := h.svc.GetIdentityByName(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, ident)
}

func (h *Handler) reputation(w http.ResponseWriter, r *http.Request) {
	identityID, err := identityIDParam(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	rep, err := h.svc.GetReputation(r.Context(), identityID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, rep)
}

func (h *Handler) inbox(w http.ResponseWriter, r *http.Request) {
	identityID, err := identityIDParam(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	msgs, err := h.svc.ListInboxMessages(r.Context(), identityID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, msgs)
}

func (h *Handler) channelMessages(w http.ResponseWriter, r *http.Request) {
	channel, ok := parseChannel(chi.URLParam(r, "channel"))
	if !ok {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid channel"))
		return
	}
	msgs, err := h.svc.ListChannelMessages(r.Context(), channel)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, msgs)
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request) {
	identityID, err := identityIDParam(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	image, err := h.renders.Render(r.Context(), identityID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.Header().Set("Content-Type", "image/svg+xml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(image)
}

func (h *Handler) metadata(w http.ResponseWriter, r *http.Request) {
	identityID, err := identityIDParam(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	meta, err := h.renders.Metadata(r.Context(), identityID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, meta)
}

func (h *Handler) price(w http.ResponseWriter, r *http.Request) {
	nextID, price, err := h.svc.QuoteNextPrice(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"next_id": nextID,
		"price":   price,
	})
}

func (h *Handler) listEvents(w http.ResponseWriter, r *http.Request) {
	identityID, err := identityIDParam(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if h.events == nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnavailable, "event log is not configured"))
		return
	}
	if _, err := h.svc.GetIdentity(r.Context(), identityID); err != nil {
		httputil.WriteError(w, err)
		return
	}
	events, err := h.events.List(r.Context(), identityID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, events)
}

func (h *Handler) supply(w http.ResponseWriter, r *http.Request) {
	total, err := h.svc.TotalSupply(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	height, err := h.svc.CurrentHeight(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"total_supply": total,
		"height":       height,
	})
}

func (h *Handler) accountState(w http.ResponseWriter, r *http.Request) {
	state, err := h.svc.AccountState(r.Context(), id.AccountID(chi.URLParam(r, "account")))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, state)
}

func (h *Handler) pause(w http.ResponseWriter, r *http.Request) {
	settings, err := h.svc.PauseMinting(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, settings)
}

func (h *Handler) resume(w http.ResponseWriter, r *http.Request) {
	settings, err := h.svc.ResumeMinting(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, settings)
}

type whitelistOnlyRequest struct {
	Enabled bool `json:"enabled"`
}

func (h *Handler) setWhitelistOnly(w http.ResponseWriter, r *http.Request) {
	req, ok := httputil.Decode[whitelistOnlyRequest](w, r, h.logger, r.Context())
	if !ok {
		return
	}
	settings, err := h.svc.SetWhitelistOnly(r.Context(), req.Enabled)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, settings)
}

type whitelistRequest struct {
	Account id.AccountID `json:"account"`
}

func (h *Handler) addWhitelist(w http.ResponseWriter, r *http.Request) {
	req, ok := httputil.Decode[whitelistRequest](w, r, h.logger, r.Context())
	if !ok {
		return
	}
	if err := h.svc.AddToWhitelist(r.Context(), req.Account); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) removeWhitelist(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.RemoveFromWhitelist(r.Context(), id.AccountID(chi.URLParam(r, "account"))); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) settings(w http.ResponseWriter, r *http.Request) {
	settings, err := h.svc.Settings(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, settings)
}
