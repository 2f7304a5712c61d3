package inventory

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-procure/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-procure/internal/rbac"
	"github.com/odyssey-erp/odyssey-procure/internal/shared"
)

// Handler wires HTTP endpoints for inventory module.
type Handler struct {
	logger *slog.Logger
	ledger *Ledger
	rbac   rbac.Middleware
}

// NewHandler constructs inventory handler.
func NewHandler(logger *slog.Logger, ledger *Ledger, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, ledger: ledger, rbac: rbac}
}

// MountRoutes registers inventory routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermInventoryView))
		r.Get("/", h.handleList)
		r.Get("/{itemCode}", h.handleGet)
		r.Get("/{itemCode}/movements", h.handleMovements)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(shared.PermInventoryEdit))
		r.Post("/add-stock", h.handleAdd)
		r.Post("/remove-stock", h.handleRemove)
		r.Post("/reserve", h.handleReserve)
		r.Post("/release", h.handleRelease)
		r.Post("/transfer", h.handleTransfer)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(shared.PermInventoryAdjust))
		r.Post("/adjust", h.handleAdjust)
	})
}

type movementRequest struct {
	ItemCode      string          `json:"item_code" validate:"required,max=64"`
	ItemName      string          `json:"item_name" validate:"max=200"`
	Warehouse     string          `json:"warehouse" validate:"max=64"`
	UOM           string          `json:"uom" validate:"max=16"`
	Quantity      shared.Quantity `json:"quantity"`
	UnitCost      shared.Money    `json:"unit_cost"`
	MovementType  MovementType    `json:"movement_type" validate:"omitempty,oneof=IN OUT ISSUE RETURN"`
	ReferenceKind string          `json:"reference_kind" validate:"max=32"`
	ReferenceCode string          `json:"reference_code" validate:"max=64"`
	Remarks       string          `json:"remarks" validate:"max=500"`
}

func (req movementRequest) input() MovementInput {
	return MovementInput{
		ItemCode:  req.ItemCode,
		ItemName:  req.ItemName,
		Warehouse: req.Warehouse,
		UOM:       req.UOM,
		Quantity:  req.Quantity,
		UnitCost:  req.UnitCost,
		Type:      req.MovementType,
		Ref:       Reference{Kind: req.ReferenceKind, Code: req.ReferenceCode},
		Remarks:   req.Remarks,
	}
}

type adjustRequest struct {
	ItemCode    string          `json:"item_code" validate:"required,max=64"`
	Warehouse   string          `json:"warehouse" validate:"max=64"`
	NewQuantity shared.Quantity `json:"new_quantity"`
	Reason      string          `json:"reason" validate:"required,max=500"`
}

type reservationRequest struct {
	ItemCode  string          `json:"item_code" validate:"required,max=64"`
	Warehouse string          `json:"warehouse" validate:"max=64"`
	Quantity  shared.Quantity `json:"quantity"`
}

type transferRequest struct {
	ItemCode      string          `json:"item_code" validate:"required,max=64"`
	FromWarehouse string          `json:"from_warehouse" validate:"required,max=64"`
	ToWarehouse   string          `json:"to_warehouse" validate:"required,max=64"`
	Quantity      shared.Quantity `json:"quantity"`
	Remarks       string          `json:"remarks" validate:"max=500"`
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	perPage, _ := strconv.Atoi(q.Get("per_page"))
	rows, meta, err := h.ledger.List(r.Context(), StockFilter{
		ItemCode:  strings.TrimSpace(q.Get("item_code")),
		Warehouse: strings.TrimSpace(q.Get("warehouse")),
		OnlyShort: q.Get("short") == "true",
		Page:      page,
		PerPage:   perPage,
	})
	if err != nil {
		h.fail(w, "list stock", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": rows, "pagination": meta})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	stock, err := h.ledger.Query(r.Context(), chi.URLParam(r, "itemCode"), r.URL.Query().Get("warehouse"))
	if err != nil {
		h.fail(w, "get stock", err)
		return
	}
	httpx.JSON(w, http.StatusOK, stock)
}

func (h *Handler) handleMovements(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := MovementFilter{
		ItemCode:  chi.URLParam(r, "itemCode"),
		Warehouse: q.Get("warehouse"),
		Type:      MovementType(strings.ToUpper(q.Get("movement_type"))),
	}
	var fields []shared.FieldError
	if from, err := parseTime(q.Get("from")); err != nil {
		fields = append(fields, shared.FieldError{Field: "from", Reason: "must be RFC 3339 or YYYY-MM-DD"})
	} else {
		filter.From = from
	}
	if to, err := parseTime(q.Get("to")); err != nil {
		fields = append(fields, shared.FieldError{Field: "to", Reason: "must be RFC 3339 or YYYY-MM-DD"})
	} else {
		filter.To = to
	}
	if filter.Type != "" && !filter.Type.Valid() {
		fields = append(fields, shared.FieldError{Field: "movement_type", Reason: "unknown movement type"})
	}
	if len(fields) > 0 {
		httpx.RespondError(w, shared.Validation("invalid query", fields...))
		return
	}
	if limit, err := strconv.Atoi(q.Get("limit")); err == nil {
		filter.Limit = limit
	}
	movements, err := h.ledger.History(r.Context(), filter)
	if err != nil {
		h.fail(w, "stock movements", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": movements})
}

func (h *Handler) handleAdd(w http.ResponseWriter, r *http.Request) {
	var req movementRequest
	if err := httpx.Bind(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if req.MovementType != "" && req.MovementType != MovementIn {
		httpx.RespondError(w, shared.Validation("invalid movement type",
			shared.FieldError{Field: "movement_type", Reason: "add-stock only records IN"}))
		return
	}
	res, err := h.ledger.Add(r.Context(), req.input())
	if err != nil {
		h.fail(w, "add stock", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, res)
}

func (h *Handler) handleRemove(w http.ResponseWriter, r *http.Request) {
	var req movementRequest
	if err := httpx.Bind(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if req.MovementType == MovementIn {
		httpx.RespondError(w, shared.Validation("invalid movement type",
			shared.FieldError{Field: "movement_type", Reason: "remove-stock cannot record IN"}))
		return
	}
	res, err := h.ledger.Remove(r.Context(), req.input())
	if err != nil {
		h.fail(w, "remove stock", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, res)
}

func (h *Handler) handleAdjust(w http.ResponseWriter, r *http.Request) {
	var req adjustRequest
	if err := httpx.Bind(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	res, err := h.ledger.Adjust(r.Context(), req.ItemCode, req.Warehouse, req.NewQuantity, req.Reason)
	if err != nil {
		h.fail(w, "adjust stock", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, res)
}

func (h *Handler) handleReserve(w http.ResponseWriter, r *http.Request) {
	var req reservationRequest
	if err := httpx.Bind(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	stock, err := h.ledger.Reserve(r.Context(), req.ItemCode, req.Warehouse, req.Quantity)
	if err != nil {
		h.fail(w, "reserve stock", err)
		return
	}
	httpx.JSON(w, http.StatusOK, stock)
}

func (h *Handler) handleRelease(w http.ResponseWriter, r *http.Request) {
	var req reservationRequest
	if err := httpx.Bind(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	stock, err := h.ledger.Release(r.Context(), req.ItemCode, req.Warehouse, req.Quantity)
	if err != nil {
		h.fail(w, "release stock", err)
		return
	}
	httpx.JSON(w, http.StatusOK, stock)
}

func (h *Handler) handleTransfer(w http.ResponseWriter, r *http.Request) {
	var req transferRequest
	if err := httpx.Bind(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	out, in, err := h.ledger.Transfer(r.Context(), TransferInput{
		ItemCode: req.ItemCode,
		From:     req.FromWarehouse,
		To:       req.ToWarehouse,
		Quantity: req.Quantity,
		Remarks:  req.Remarks,
	})
	if err != nil {
		h.fail(w, "transfer stock", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"from": out, "to": in})
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if shared.KindOf(err) == shared.KindInternal {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func parseTime(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC(), nil
	}
	return time.Parse("2006-01-02", raw)
}
