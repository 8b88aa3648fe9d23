package ingest

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/shopfeed/shopfeed/internal/platform/httpx"
)

// LedgerPort is the slice of the repository the admin surface reads.
type LedgerPort interface {
	ListSyncLogs(ctx context.Context, merchantID int64, limit int) ([]SyncLog, error)
	CountProducts(ctx context.Context, merchantID int64) (int, error)
}

// Handler exposes the sync ledger to admin tooling.
type Handler struct {
	logger *slog.Logger
	ledger LedgerPort
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, ledger LedgerPort) *Handler {
	return &Handler{logger: logger, ledger: ledger}
}

// MountRoutes registers sync ledger routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/merchants/{id}/sync-logs", h.listLogs)
}

type syncLogPayload struct {
	ID         int64      `json:"id"`
	MerchantID int64      `json:"merchant_id"`
	Status     SyncStatus `json:"status"`
	Products   int        `json:"products"`
	Message    string     `json:"message,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

func (h *Handler) listLogs(w http.ResponseWriter, r *http.Request) {
	merchantID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid merchant id")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	logs, err := h.ledger.ListSyncLogs(r.Context(), merchantID, limit)
	if err != nil {
		h.logger.Error("list sync logs", slog.Int64("merchant_id", merchantID), slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	products, err := h.ledger.CountProducts(r.Context(), merchantID)
	if err != nil {
		h.logger.Error("count products", slog.Int64("merchant_id", merchantID), slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	payload := make([]syncLogPayload, 0, len(logs))
	for _, log := range logs {
		payload = append(payload, syncLogPayload{
			ID:         log.ID,
			MerchantID: log.MerchantID,
			Status:     log.Status,
			Products:   log.Products,
			Message:    log.Message,
			StartedAt:  log.StartedAt,
			FinishedAt: log.FinishedAt,
		})
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"sync_logs": payload, "products": products})
}
