package reports

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-procure/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-procure/internal/rbac"
	"github.com/odyssey-erp/odyssey-procure/internal/shared"
)

// Handler serves report endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    rbac.Middleware
}

// NewHandler builds a report handler.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac}
}

// MountRoutes registers report routes under /reports.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/reports", func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermReportsView))
		r.Get("/purchase-summary", h.purchaseSummary)
		r.Get("/pending-po", h.pendingPO)
		r.Get("/outstanding-bills", h.outstandingBills)
		r.Get("/vendor-performance", h.vendorPerformance)
	})
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if shared.KindOf(err) == shared.KindInternal {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func (h *Handler) purchaseSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.service.PurchaseSummary(r.Context())
	if err != nil {
		h.fail(w, "purchase summary", err)
		return
	}
	httpx.JSON(w, http.StatusOK, summary)
}

func (h *Handler) pendingPO(w http.ResponseWriter, r *http.Request) {
	report, err := h.service.PendingPOs(r.Context())
	if err != nil {
		h.fail(w, "pending po report", err)
		return
	}
	httpx.JSON(w, http.StatusOK, report)
}

func (h *Handler) outstandingBills(w http.ResponseWriter, r *http.Request) {
	report, err := h.service.OutstandingBills(r.Context())
	if err != nil {
		h.fail(w, "outstanding bills report", err)
		return
	}
	httpx.JSON(w, http.StatusOK, report)
}

func (h *Handler) vendorPerformance(w http.ResponseWriter, r *http.Request) {
	rows, err := h.service.VendorPerformance(r.Context())
	if err != nil {
		h.fail(w, "vendor performance report", err)
		return
	}
	httpx.JSON(w, http.StatusOK, rows)
}
