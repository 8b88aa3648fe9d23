package review

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/shopfeed/shopfeed/internal/catalog"
	"github.com/shopfeed/shopfeed/internal/platform/httpx"
)

// Handler manages the upload review endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers review routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/uploads", h.submit)
	r.Get("/uploads/pending", h.listPending)
	r.Post("/uploads/{id}/approve", h.approve)
	r.Post("/uploads/{id}/reject", h.reject)
}

type uploadPayload struct {
	ID         uuid.UUID    `json:"id"`
	MerchantID int64        `json:"merchant_id"`
	Status     UploadStatus `json:"status"`
	Notes      string       `json:"notes,omitempty"`
	CreatedAt  time.Time    `json:"created_at"`
	DecidedAt  *time.Time   `json:"decided_at,omitempty"`
}

func toPayload(u CatalogUpload) uploadPayload {
	return uploadPayload{
		ID:         u.ID,
		MerchantID: u.MerchantID,
		Status:     u.Status,
		Notes:      u.Notes,
		CreatedAt:  u.CreatedAt,
		DecidedAt:  u.DecidedAt,
	}
}

func (h *Handler) submit(w http.ResponseWriter, r *http.Request) {
	var form struct {
		MerchantID int64           `json:"merchant_id"`
		Catalog    json.RawMessage `json:"catalog"`
	}
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid json body")
		return
	}
	if form.MerchantID == 0 || len(form.Catalog) == 0 {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "merchant_id and catalog are required")
		return
	}

	u, err := h.service.Submit(r.Context(), form.MerchantID, form.Catalog)
	if err != nil {
		var verr *catalog.ValidationError
		if errors.As(err, &verr) {
			httpx.JSON(w, http.StatusUnprocessableEntity, map[string]any{"errors": verr.Errors})
			return
		}
		if errors.Is(err, catalog.ErrMalformed) {
			httpx.Problem(w, http.StatusBadRequest, "Bad Request", "catalog payload is not valid json")
			return
		}
		h.logger.Error("submit upload", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	httpx.JSON(w, http.StatusCreated, toPayload(u))
}

func (h *Handler) listPending(w http.ResponseWriter, r *http.Request) {
	uploads, err := h.service.ListPending(r.Context())
	if err != nil {
		h.logger.Error("list pending uploads", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	payload := make([]uploadPayload, 0, len(uploads))
	for _, u := range uploads {
		payload = append(payload, toPayload(u))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"uploads": payload})
}

func (h *Handler) approve(w http.ResponseWriter, r *http.Request) {
	id, notes, ok := h.decisionParams(w, r)
	if !ok {
		return
	}
	imported, err := h.service.Approve(r.Context(), id, notes)
	if err != nil {
		h.respondDecisionError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"imported": imported})
}

func (h *Handler) reject(w http.ResponseWriter, r *http.Request) {
	id, notes, ok := h.decisionParams(w, r)
	if !ok {
		return
	}
	if err := h.service.Reject(r.Context(), id, notes); err != nil {
		h.respondDecisionError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) decisionParams(w http.ResponseWriter, r *http.Request) (uuid.UUID, string, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid upload id")
		return uuid.Nil, "", false
	}
	var form struct {
		Notes string `json:"notes"`
	}
	if r.Body != nil {
		_ = httpx.DecodeJSON(r, &form)
	}
	return id, form.Notes, true
}

func (h *Handler) respondDecisionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrAlreadyDecided):
		httpx.Problem(w, http.StatusConflict, "Already Decided", err.Error())
	case errors.Is(err, ErrPayloadMissing):
		httpx.Problem(w, http.StatusGone, "Payload Missing", err.Error())
	default:
		h.logger.Error("upload decision failed", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
