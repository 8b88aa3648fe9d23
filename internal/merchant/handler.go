package merchant

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/shopfeed/shopfeed/internal/platform/httpx"
)

// Handler manages merchant admin endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
	trigger func(r *http.Request, merchantID int64, fullResync bool) error
}

// NewHandler builds a Handler instance. trigger enqueues an on-demand sync and
// may be nil when no worker is attached.
func NewHandler(logger *slog.Logger, service *Service, trigger func(r *http.Request, merchantID int64, fullResync bool) error) *Handler {
	return &Handler{logger: logger, service: service, trigger: trigger}
}

// MountRoutes registers merchant routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/merchants", h.list)
	r.Post("/merchants", h.create)
	r.Get("/merchants/{id}", h.get)
	r.Put("/merchants/{id}", h.update)
	r.Post("/merchants/{id}/deactivate", h.deactivate)
	r.Post("/merchants/{id}/sync", h.sync)
}

type merchantPayload struct {
	ID           int64      `json:"id"`
	Name         string     `json:"name"`
	Slug         string     `json:"slug"`
	CatalogURL   string     `json:"catalog_url"`
	SyncInterval string     `json:"sync_interval"`
	LastSyncedAt *time.Time `json:"last_synced_at,omitempty"`
	Status       Status     `json:"status"`
}

func toPayload(m Merchant) merchantPayload {
	return merchantPayload{
		ID:           m.ID,
		Name:         m.Name,
		Slug:         m.Slug,
		CatalogURL:   m.CatalogURL,
		SyncInterval: m.SyncInterval.String(),
		LastSyncedAt: m.LastSyncedAt,
		Status:       m.Status,
	}
}

type merchantForm struct {
	Name         string `json:"name"`
	Slug         string `json:"slug"`
	CatalogURL   string `json:"catalog_url"`
	SyncInterval string `json:"sync_interval"`
}

func (f merchantForm) interval() time.Duration {
	d, err := time.ParseDuration(f.SyncInterval)
	if err != nil {
		return 0
	}
	return d
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var form merchantForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid json body")
		return
	}
	m, err := h.service.Create(r.Context(), CreateInput{
		Name:         form.Name,
		Slug:         form.Slug,
		CatalogURL:   form.CatalogURL,
		SyncInterval: form.interval(),
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toPayload(m))
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid merchant id")
		return
	}
	var form merchantForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid json body")
		return
	}
	m, err := h.service.Update(r.Context(), id, UpdateInput{
		Name:         form.Name,
		CatalogURL:   form.CatalogURL,
		SyncInterval: form.interval(),
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toPayload(m))
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid merchant id")
		return
	}
	m, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toPayload(m))
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	merchants, err := h.service.List(r.Context())
	if err != nil {
		h.respondError(w, err)
		return
	}
	payload := make([]merchantPayload, 0, len(merchants))
	for _, m := range merchants {
		payload = append(payload, toPayload(m))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"merchants": payload})
}

func (h *Handler) deactivate(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid merchant id")
		return
	}
	if err := h.service.Deactivate(r.Context(), id); err != nil {
		h.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) sync(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid merchant id")
		return
	}
	if h.trigger == nil {
		httpx.Problem(w, http.StatusServiceUnavailable, "Unavailable", "sync worker not attached")
		return
	}
	if _, err := h.service.Get(r.Context(), id); err != nil {
		h.respondError(w, err)
		return
	}
	fullResync := r.URL.Query().Get("full") == "1"
	if err := h.trigger(r, id, fullResync); err != nil {
		h.logger.Error("enqueue sync", slog.Int64("merchant_id", id), slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	httpx.JSON(w, http.StatusAccepted, map[string]any{"merchant_id": id, "full_resync": fullResync})
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrValidation):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, ErrDuplicateSlug):
		httpx.Problem(w, http.StatusConflict, "Duplicate", err.Error())
	default:
		h.logger.Error("merchant request failed", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

func pathID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}
