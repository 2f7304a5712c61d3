package procurement

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-procure/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-procure/internal/rbac"
	"github.com/odyssey-erp/odyssey-procure/internal/shared"
)

// IdempotencyHeader carries the client key for create requests.
const IdempotencyHeader = "Idempotency-Key"

// ReplayedHeader marks a response served from an earlier identical create.
const ReplayedHeader = "Idempotent-Replayed"

// Handler exposes HTTP endpoints for procurement flows.
type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    rbac.Middleware
}

// NewHandler builds a procurement handler.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac}
}

// MountRoutes registers procurement routes. Route permissions admit the
// caller; the transition engine decides each individual edge.
func (h *Handler) MountRoutes(r chi.Router) {
	mutate := h.rbac.RequireAny(shared.PermProcurementEdit, shared.PermProcurementApprove, shared.PermProcurementCancel)

	r.Route("/purchase-requests", func(r chi.Router) {
		r.With(h.rbac.RequireAny(shared.PermProcurementView)).Get("/", h.listPRs)
		r.With(h.rbac.RequireAny(shared.PermProcurementView)).Get("/{code}", h.getPR)
		r.With(h.rbac.RequireAll(shared.PermProcurementEdit)).Post("/", h.createPR)
		r.Group(func(r chi.Router) {
			r.Use(mutate)
			r.Put("/{code}/submit", h.submitPR)
			r.Put("/{code}/approve", h.approvePR)
			r.Put("/{code}/reject", h.rejectPR)
			r.Put("/{code}/convert", h.convertPR)
			r.Put("/{code}/cancel", h.cancelPR)
		})
	})

	r.Route("/purchase-orders", func(r chi.Router) {
		r.With(h.rbac.RequireAny(shared.PermProcurementView)).Get("/", h.listPOs)
		r.With(h.rbac.RequireAny(shared.PermProcurementView)).Get("/{code}", h.getPO)
		r.With(h.rbac.RequireAll(shared.PermProcurementEdit)).Post("/", h.createPO)
		r.Group(func(r chi.Router) {
			r.Use(mutate)
			r.Put("/{code}/submit", transition(h, h.service.SubmitPurchaseOrder, "submit PO"))
			r.Put("/{code}/approve", transition(h, h.service.ApprovePurchaseOrder, "approve PO"))
			r.Put("/{code}/send", transition(h, h.service.SendPurchaseOrder, "send PO"))
			r.Put("/{code}/confirm", transition(h, h.service.ConfirmPurchaseOrder, "confirm PO"))
			r.Put("/{code}/close", transition(h, h.service.ClosePurchaseOrder, "close PO"))
			r.Delete("/{code}", h.cancelPO)
		})
	})

	r.Route("/goods-receipts", func(r chi.Router) {
		r.With(h.rbac.RequireAny(shared.PermProcurementView)).Get("/", h.listGRs)
		r.With(h.rbac.RequireAny(shared.PermProcurementView)).Get("/{code}", h.getGR)
		r.Group(func(r chi.Router) {
			r.Use(h.rbac.RequireAll(shared.PermProcurementReceive))
			r.Post("/", h.createGR)
			r.Put("/{code}/complete", h.completeGR)
		})
	})

	r.Route("/purchase-returns", func(r chi.Router) {
		r.With(h.rbac.RequireAny(shared.PermProcurementView)).Get("/", h.listReturns)
		r.With(h.rbac.RequireAny(shared.PermProcurementView)).Get("/{code}", h.getReturn)
		r.With(h.rbac.RequireAll(shared.PermProcurementEdit)).Post("/", h.createReturn)
		r.Group(func(r chi.Router) {
			r.Use(mutate)
			r.Put("/{code}/approve", transition(h, h.service.ApprovePurchaseReturn, "approve return"))
			r.Put("/{code}/process", transition(h, h.service.ProcessPurchaseReturn, "process return"))
			r.Put("/{code}/cancel", transition(h, h.service.CancelPurchaseReturn, "cancel return"))
		})
	})

	r.Route("/vendor-bills", func(r chi.Router) {
		r.With(h.rbac.RequireAny(shared.PermBillsView)).Get("/", h.listBills)
		r.With(h.rbac.RequireAny(shared.PermBillsView)).Get("/{code}", h.getBill)
		r.With(h.rbac.RequireAll(shared.PermBillsEdit)).Post("/", h.createBill)
		r.With(h.rbac.RequireAll(shared.PermBillsPay)).Post("/{code}/payment", h.recordPayment)
		r.With(h.rbac.RequireAll(shared.PermBillsEdit)).Put("/{code}/cancel", h.cancelBill)
	})
}

// Date accepts RFC 3339 timestamps or plain YYYY-MM-DD dates.
type Date struct{ time.Time }

// UnmarshalJSON implements json.Unmarshaler.
func (d *Date) UnmarshalJSON(b []byte) error {
	var raw string
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		d.Time = time.Time{}
		return nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		d.Time = t.UTC()
		return nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return err
	}
	d.Time = t
	return nil
}

func (d *Date) ptr() *time.Time {
	if d == nil || d.IsZero() {
		return nil
	}
	t := d.Time
	return &t
}

type prLineRequest struct {
	ItemCode          string          `json:"item_code" validate:"required,max=64"`
	ItemName          string          `json:"item_name" validate:"required,max=200"`
	Quantity          shared.Quantity `json:"quantity"`
	Unit              string          `json:"unit" validate:"max=16"`
	EstimatedRate     shared.Money    `json:"estimated_rate"`
	RequiredBy        *Date           `json:"required_by"`
	SuggestedSupplier string          `json:"suggested_supplier" validate:"max=64"`
	SuggestedBrand    string          `json:"suggested_brand" validate:"max=64"`
	Remarks           string          `json:"remarks" validate:"max=500"`
}

type createPRRequest struct {
	Priority   Priority        `json:"priority" validate:"omitempty,oneof=LOW NORMAL HIGH URGENT"`
	Department string          `json:"department" validate:"max=100"`
	Purpose    string          `json:"purpose" validate:"max=500"`
	RequiredBy *Date           `json:"required_by"`
	Notes      string          `json:"notes" validate:"max=1000"`
	Lines      []prLineRequest `json:"lines" validate:"required,min=1,dive"`
}

type approvePRRequest struct {
	Notes string `json:"notes" validate:"max=1000"`
	Lines []struct {
		ItemCode         string          `json:"item_code" validate:"required"`
		ApprovedQuantity shared.Quantity `json:"approved_quantity"`
	} `json:"lines" validate:"dive"`
}

type reasonRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

type convertPRRequest struct {
	VendorCode      string `json:"vendor_code" validate:"max=64"`
	VendorName      string `json:"vendor_name" validate:"max=200"`
	ShippingAddress string `json:"shipping_address" validate:"max=500"`
	DeliveryDate    *Date  `json:"delivery_date"`
	PaymentTerms    string `json:"payment_terms" validate:"max=100"`
	Notes           string `json:"notes" validate:"max=1000"`
}

type poLineRequest struct {
	ItemCode string          `json:"item_code" validate:"required,max=64"`
	ItemName string          `json:"item_name" validate:"required,max=200"`
	Quantity shared.Quantity `json:"quantity"`
	Unit     string          `json:"unit" validate:"max=16"`
	UnitRate shared.Money    `json:"unit_rate"`
	TaxRate  decimal.Decimal `json:"tax_rate"`
	Discount shared.Money    `json:"discount"`
}

type createPORequest struct {
	VendorCode      string          `json:"vendor_code" validate:"required,max=64"`
	VendorName      string          `json:"vendor_name" validate:"required,max=200"`
	ShippingAddress string          `json:"shipping_address" validate:"max=500"`
	DeliveryDate    *Date           `json:"delivery_date"`
	PaymentTerms    string          `json:"payment_terms" validate:"max=100"`
	Notes           string          `json:"notes" validate:"max=1000"`
	Lines           []poLineRequest `json:"lines" validate:"required,min=1,dive"`
}

type grLineRequest struct {
	ItemCode        string           `json:"item_code" validate:"required,max=64"`
	ReceivedQty     shared.Quantity  `json:"received_qty"`
	AcceptedQty     *shared.Quantity `json:"accepted_qty"`
	RejectedQty     shared.Quantity  `json:"rejected_qty"`
	RejectionReason string           `json:"rejection_reason" validate:"max=500"`
}

type createGRRequest struct {
	POCode        string          `json:"po_code" validate:"required,max=64"`
	Warehouse     string          `json:"warehouse" validate:"max=64"`
	QualityCheck  bool            `json:"quality_check"`
	InvoiceNumber string          `json:"invoice_number" validate:"max=64"`
	InvoiceDate   *Date           `json:"invoice_date"`
	Notes         string          `json:"notes" validate:"max=1000"`
	Lines         []grLineRequest `json:"lines" validate:"required,min=1,dive"`
}

type returnLineRequest struct {
	ItemCode  string          `json:"item_code" validate:"required,max=64"`
	ReturnQty shared.Quantity `json:"return_qty"`
	Reason    string          `json:"reason" validate:"max=500"`
}

type createReturnRequest struct {
	POCode string              `json:"po_code" validate:"required,max=64"`
	GRCode string              `json:"gr_code" validate:"required,max=64"`
	Reason string              `json:"reason" validate:"max=500"`
	Lines  []returnLineRequest `json:"lines" validate:"required,min=1,dive"`
}

type createBillRequest struct {
	POCode         string          `json:"po_code" validate:"required,max=64"`
	InvoiceNumber  string          `json:"invoice_number" validate:"required,max=64"`
	InvoiceDate    Date            `json:"invoice_date"`
	DueDate        Date            `json:"due_date"`
	Subtotal       shared.Money    `json:"subtotal"`
	TaxRate        decimal.Decimal `json:"tax_rate"`
	DiscountAmount shared.Money    `json:"discount_amount"`
	PaymentTerms   string          `json:"payment_terms" validate:"max=100"`
	Notes          string          `json:"notes" validate:"max=1000"`
}

type paymentRequest struct {
	Amount    shared.Money `json:"amount"`
	Reference string       `json:"reference" validate:"required,max=100"`
	Method    string       `json:"method" validate:"required,max=32"`
	PaidAt    *Date        `json:"paid_at"`
	Notes     string       `json:"notes" validate:"max=500"`
}

func idempotencyKey(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(IdempotencyHeader))
}

func created(w http.ResponseWriter, doc any, replayed bool) {
	if replayed {
		w.Header().Set(ReplayedHeader, "true")
		httpx.JSON(w, http.StatusOK, doc)
		return
	}
	httpx.JSON(w, http.StatusCreated, doc)
}

func listFilter(r *http.Request) ListFilter {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	perPage, _ := strconv.Atoi(q.Get("per_page"))
	vendor := q.Get("vendor_code")
	if vendor == "" {
		vendor = q.Get("vendor")
	}
	f := ListFilter{
		Status:     Status(strings.ToUpper(strings.TrimSpace(q.Get("status")))),
		VendorCode: strings.TrimSpace(vendor),
		POCode:     strings.TrimSpace(q.Get("po_code")),
		GRCode:     strings.TrimSpace(q.Get("gr_code")),
		Priority:   Priority(strings.ToUpper(strings.TrimSpace(q.Get("priority")))),
		Page:       page,
		PerPage:    perPage,
	}
	if t, err := time.Parse("2006-01-02", q.Get("from")); err == nil {
		f.From = t
	}
	if t, err := time.Parse("2006-01-02", q.Get("to")); err == nil {
		f.To = t.Add(24*time.Hour - time.Nanosecond)
	}
	return f
}

func page[T any](w http.ResponseWriter, rows []T, meta shared.Pagination) {
	if rows == nil {
		rows = []T{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": rows, "pagination": meta})
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if shared.KindOf(err) == shared.KindInternal {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

// transition adapts a code-only service call into a handler.
func transition[T any](h *Handler, fn func(context.Context, string) (T, error), op string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doc, err := fn(r.Context(), chi.URLParam(r, "code"))
		if err != nil {
			h.fail(w, op, err)
			return
		}
		httpx.JSON(w, http.StatusOK, doc)
	}
}

// bindOptional decodes a body that may be empty.
func bindOptional(r *http.Request, target any) error {
	if r.ContentLength == 0 {
		return nil
	}
	return httpx.Bind(r, target)
}

// Purchase requests.

func (h *Handler) createPR(w http.ResponseWriter, r *http.Request) {
	var req createPRRequest
	if err := httpx.Bind(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	in := CreatePRInput{
		Priority:       req.Priority,
		Department:     req.Department,
		Purpose:        req.Purpose,
		RequiredBy:     req.RequiredBy.ptr(),
		Notes:          req.Notes,
		IdempotencyKey: idempotencyKey(r),
	}
	for _, l := range req.Lines {
		in.Lines = append(in.Lines, PRLineInput{
			ItemCode:          l.ItemCode,
			ItemName:          l.ItemName,
			Quantity:          l.Quantity,
			Unit:              l.Unit,
			EstimatedRate:     l.EstimatedRate,
			RequiredBy:        l.RequiredBy.ptr(),
			SuggestedSupplier: l.SuggestedSupplier,
			SuggestedBrand:    l.SuggestedBrand,
			Remarks:           l.Remarks,
		})
	}
	pr, replayed, err := h.service.CreatePurchaseRequest(r.Context(), in)
	if err != nil {
		h.fail(w, "create PR", err)
		return
	}
	created(w, pr, replayed)
}

func (h *Handler) listPRs(w http.ResponseWriter, r *http.Request) {
	rows, meta, err := h.service.ListPurchaseRequests(r.Context(), listFilter(r))
	if err != nil {
		h.fail(w, "list PR", err)
		return
	}
	page(w, rows, meta)
}

func (h *Handler) getPR(w http.ResponseWriter, r *http.Request) {
	pr, err := h.service.GetPurchaseRequest(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		h.fail(w, "get PR", err)
		return
	}
	httpx.JSON(w, http.StatusOK, pr)
}

func (h *Handler) submitPR(w http.ResponseWriter, r *http.Request) {
	pr, err := h.service.SubmitPurchaseRequest(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		h.fail(w, "submit PR", err)
		return
	}
	httpx.JSON(w, http.StatusOK, pr)
}

func (h *Handler) approvePR(w http.ResponseWriter, r *http.Request) {
	var req approvePRRequest
	if err := bindOptional(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	in := ApprovePRInput{Notes: req.Notes}
	if len(req.Lines) > 0 {
		in.ApprovedQuantities = make(map[string]shared.Quantity, len(req.Lines))
		for _, l := range req.Lines {
			in.ApprovedQuantities[l.ItemCode] = l.ApprovedQuantity
		}
	}
	pr, err := h.service.ApprovePurchaseRequest(r.Context(), chi.URLParam(r, "code"), in)
	if err != nil {
		h.fail(w, "approve PR", err)
		return
	}
	httpx.JSON(w, http.StatusOK, pr)
}

func (h *Handler) rejectPR(w http.ResponseWriter, r *http.Request) {
	var req reasonRequest
	if err := bindOptional(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	pr, err := h.service.RejectPurchaseRequest(r.Context(), chi.URLParam(r, "code"), req.Reason)
	if err != nil {
		h.fail(w, "reject PR", err)
		return
	}
	httpx.JSON(w, http.StatusOK, pr)
}

func (h *Handler) cancelPR(w http.ResponseWriter, r *http.Request) {
	var req reasonRequest
	if err := bindOptional(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	pr, err := h.service.CancelPurchaseRequest(r.Context(), chi.URLParam(r, "code"), req.Reason)
	if err != nil {
		h.fail(w, "cancel PR", err)
		return
	}
	httpx.JSON(w, http.StatusOK, pr)
}

func (h *Handler) convertPR(w http.ResponseWriter, r *http.Request) {
	var req convertPRRequest
	if err := bindOptional(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	pr, po, err := h.service.ConvertPurchaseRequest(r.Context(), chi.URLParam(r, "code"), ConvertPRInput{
		VendorCode:      req.VendorCode,
		VendorName:      req.VendorName,
		ShippingAddress: req.ShippingAddress,
		DeliveryDate:    req.DeliveryDate.ptr(),
		PaymentTerms:    req.PaymentTerms,
		Notes:           req.Notes,
	})
	if err != nil {
		h.fail(w, "convert PR", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"purchase_request": pr, "purchase_order": po})
}

// Purchase orders.

func (h *Handler) createPO(w http.ResponseWriter, r *http.Request) {
	var req createPORequest
	if err := httpx.Bind(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	in := CreatePOInput{
		VendorCode:      req.VendorCode,
		VendorName:      req.VendorName,
		ShippingAddress: req.ShippingAddress,
		DeliveryDate:    req.DeliveryDate.ptr(),
		PaymentTerms:    req.PaymentTerms,
		Notes:           req.Notes,
		IdempotencyKey:  idempotencyKey(r),
	}
	for _, l := range req.Lines {
		in.Lines = append(in.Lines, POLineInput{
			ItemCode: l.ItemCode,
			ItemName: l.ItemName,
			Quantity: l.Quantity,
			Unit:     l.Unit,
			UnitRate: l.UnitRate,
			TaxRate:  l.TaxRate,
			Discount: l.Discount,
		})
	}
	po, replayed, err := h.service.CreatePurchaseOrder(r.Context(), in)
	if err != nil {
		h.fail(w, "create PO", err)
		return
	}
	created(w, po, replayed)
}

func (h *Handler) listPOs(w http.ResponseWriter, r *http.Request) {
	rows, meta, err := h.service.ListPurchaseOrders(r.Context(), listFilter(r))
	if err != nil {
		h.fail(w, "list PO", err)
		return
	}
	page(w, rows, meta)
}

func (h *Handler) getPO(w http.ResponseWriter, r *http.Request) {
	po, err := h.service.GetPurchaseOrder(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		h.fail(w, "get PO", err)
		return
	}
	httpx.JSON(w, http.StatusOK, po)
}

func (h *Handler) cancelPO(w http.ResponseWriter, r *http.Request) {
	var req reasonRequest
	if err := bindOptional(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	po, err := h.service.CancelPurchaseOrder(r.Context(), chi.URLParam(r, "code"), req.Reason)
	if err != nil {
		h.fail(w, "cancel PO", err)
		return
	}
	httpx.JSON(w, http.StatusOK, po)
}

// Goods receipts.

func (h *Handler) createGR(w http.ResponseWriter, r *http.Request) {
	var req createGRRequest
	if err := httpx.Bind(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	in := CreateGRInput{
		POCode:         req.POCode,
		Warehouse:      req.Warehouse,
		QualityCheck:   req.QualityCheck,
		InvoiceNumber:  req.InvoiceNumber,
		InvoiceDate:    req.InvoiceDate.ptr(),
		Notes:          req.Notes,
		IdempotencyKey: idempotencyKey(r),
	}
	for _, l := range req.Lines {
		in.Lines = append(in.Lines, GRLineInput{
			ItemCode:        l.ItemCode,
			ReceivedQty:     l.ReceivedQty,
			AcceptedQty:     l.AcceptedQty,
			RejectedQty:     l.RejectedQty,
			RejectionReason: l.RejectionReason,
		})
	}
	gr, replayed, err := h.service.CreateGoodsReceipt(r.Context(), in)
	if err != nil {
		h.fail(w, "create GR", err)
		return
	}
	created(w, gr, replayed)
}

func (h *Handler) listGRs(w http.ResponseWriter, r *http.Request) {
	rows, meta, err := h.service.ListGoodsReceipts(r.Context(), listFilter(r))
	if err != nil {
		h.fail(w, "list GR", err)
		return
	}
	page(w, rows, meta)
}

func (h *Handler) getGR(w http.ResponseWriter, r *http.Request) {
	gr, err := h.service.GetGoodsReceipt(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		h.fail(w, "get GR", err)
		return
	}
	httpx.JSON(w, http.StatusOK, gr)
}

func (h *Handler) completeGR(w http.ResponseWriter, r *http.Request) {
	gr, err := h.service.CompleteGoodsReceipt(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		h.fail(w, "complete GR", err)
		return
	}
	httpx.JSON(w, http.StatusOK, gr)
}

// Purchase returns.

func (h *Handler) createReturn(w http.ResponseWriter, r *http.Request) {
	var req createReturnRequest
	if err := httpx.Bind(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	in := CreateReturnInput{
		POCode:         req.POCode,
		GRCode:         req.GRCode,
		Reason:         req.Reason,
		IdempotencyKey: idempotencyKey(r),
	}
	for _, l := range req.Lines {
		in.Lines = append(in.Lines, ReturnLineInput{ItemCode: l.ItemCode, ReturnQty: l.ReturnQty, Reason: l.Reason})
	}
	ret, replayed, err := h.service.CreatePurchaseReturn(r.Context(), in)
	if err != nil {
		h.fail(w, "create return", err)
		return
	}
	created(w, ret, replayed)
}

func (h *Handler) listReturns(w http.ResponseWriter, r *http.Request) {
	rows, meta, err := h.service.ListPurchaseReturns(r.Context(), listFilter(r))
	if err != nil {
		h.fail(w, "list returns", err)
		return
	}
	page(w, rows, meta)
}

func (h *Handler) getReturn(w http.ResponseWriter, r *http.Request) {
	ret, err := h.service.GetPurchaseReturn(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		h.fail(w, "get return", err)
		return
	}
	httpx.JSON(w, http.StatusOK, ret)
}

// Vendor bills.

func (h *Handler) createBill(w http.ResponseWriter, r *http.Request) {
	var req createBillRequest
	if err := httpx.Bind(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	bill, replayed, err := h.service.CreateVendorBill(r.Context(), CreateBillInput{
		POCode:         req.POCode,
		InvoiceNumber:  req.InvoiceNumber,
		InvoiceDate:    req.InvoiceDate.Time,
		DueDate:        req.DueDate.Time,
		Subtotal:       req.Subtotal,
		TaxRate:        req.TaxRate,
		DiscountAmount: req.DiscountAmount,
		PaymentTerms:   req.PaymentTerms,
		Notes:          req.Notes,
		IdempotencyKey: idempotencyKey(r),
	})
	if err != nil {
		h.fail(w, "create bill", err)
		return
	}
	created(w, bill, replayed)
}

func (h *Handler) listBills(w http.ResponseWriter, r *http.Request) {
	rows, meta, err := h.service.ListVendorBills(r.Context(), listFilter(r))
	if err != nil {
		h.fail(w, "list bills", err)
		return
	}
	page(w, rows, meta)
}

func (h *Handler) getBill(w http.ResponseWriter, r *http.Request) {
	bill, err := h.service.GetVendorBill(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		h.fail(w, "get bill", err)
		return
	}
	httpx.JSON(w, http.StatusOK, bill)
}

func (h *Handler) recordPayment(w http.ResponseWriter, r *http.Request) {
	var req paymentRequest
	if err := httpx.Bind(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	bill, err := h.service.RecordPayment(r.Context(), chi.URLParam(r, "code"), PaymentInput{
		Amount:    req.Amount,
		Reference: req.Reference,
		Method:    req.Method,
		PaidAt:    req.PaidAt.ptr(),
		Notes:     req.Notes,
	})
	if err != nil {
		h.fail(w, "record payment", err)
		return
	}
	httpx.JSON(w, http.StatusOK, bill)
}

func (h *Handler) cancelBill(w http.ResponseWriter, r *http.Request) {
	bill, err := h.service.CancelVendorBill(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		h.fail(w, "cancel bill", err)
		return
	}
	httpx.JSON(w, http.StatusOK, bill)
}
