package procurement

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-procure/internal/procurement/workflow"
	"github.com/odyssey-erp/odyssey-procure/internal/shared"
)

// Status is the lifecycle state of a document.
type Status = workflow.Status

// Priority grades a purchase request.
type Priority string

const (
	PriorityLow    Priority = "LOW"
	PriorityNormal Priority = "NORMAL"
	PriorityHigh   Priority = "HIGH"
	PriorityUrgent Priority = "URGENT"
)

// Reference kinds stamped on stock movements.
const (
	RefGoodsReceipt   = "GR"
	RefPurchaseReturn = "RETURN"
)

// PRLine represents a requested item.
type PRLine struct {
	ItemCode          string           `json:"item_code"`
	ItemName          string           `json:"item_name"`
	Quantity          shared.Quantity  `json:"quantity"`
	Unit              string           `json:"unit,omitempty"`
	EstimatedRate     shared.Money     `json:"estimated_rate"`
	EstimatedTotal    shared.Money     `json:"estimated_total"`
	RequiredBy        *time.Time       `json:"required_by,omitempty"`
	SuggestedSupplier string           `json:"suggested_supplier,omitempty"`
	SuggestedBrand    string           `json:"suggested_brand,omitempty"`
	ApprovedQuantity  *shared.Quantity `json:"approved_quantity,omitempty"`
	Remarks           string           `json:"remarks,omitempty"`
}

// ConvertibleQuantity is the quantity carried onto a PO.
func (l PRLine) ConvertibleQuantity() shared.Quantity {
	if l.ApprovedQuantity != nil {
		return *l.ApprovedQuantity
	}
	return l.Quantity
}

// PurchaseRequest is internal demand raised before a supplier is committed.
type PurchaseRequest struct {
	Code            string          `json:"code"`
	Status          Status          `json:"status"`
	Priority        Priority        `json:"priority"`
	Department      string          `json:"department,omitempty"`
	Purpose         string          `json:"purpose,omitempty"`
	RequestedBy     string          `json:"requested_by"`
	RequiredBy      *time.Time      `json:"required_by,omitempty"`
	Lines           []PRLine        `json:"lines"`
	TotalItems      int             `json:"total_items"`
	TotalQuantity   shared.Quantity `json:"total_quantity"`
	EstimatedTotal  shared.Money    `json:"estimated_total"`
	Notes           string          `json:"notes,omitempty"`
	SubmittedAt     *time.Time      `json:"submitted_at,omitempty"`
	ApprovedBy      string          `json:"approved_by,omitempty"`
	ApprovedAt      *time.Time      `json:"approved_at,omitempty"`
	ApprovalNotes   string          `json:"approval_notes,omitempty"`
	RejectedBy      string          `json:"rejected_by,omitempty"`
	RejectedAt      *time.Time      `json:"rejected_at,omitempty"`
	RejectionReason string          `json:"rejection_reason,omitempty"`
	ConvertedToPO   string          `json:"converted_to_po,omitempty"`
	ConvertedBy     string          `json:"converted_by,omitempty"`
	ConvertedAt     *time.Time      `json:"converted_at,omitempty"`
	CancelledAt     *time.Time      `json:"cancelled_at,omitempty"`
	CancelReason    string          `json:"cancel_reason,omitempty"`
	CreatedBy       string          `json:"created_by"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// POLine represents an ordered item.
type POLine struct {
	ItemCode    string          `json:"item_code"`
	ItemName    string          `json:"item_name"`
	Quantity    shared.Quantity `json:"quantity"`
	Unit        string          `json:"unit,omitempty"`
	UnitRate    shared.Money    `json:"unit_rate"`
	TaxRate     decimal.Decimal `json:"tax_rate"`
	Discount    shared.Money    `json:"discount"`
	TaxAmount   shared.Money    `json:"tax_amount"`
	LineTotal   shared.Money    `json:"line_total"`
	ReceivedQty shared.Quantity `json:"received_qty"`
}

// Outstanding is the quantity still to be received.
func (l POLine) Outstanding() shared.Quantity {
	out := l.Quantity.Sub(l.ReceivedQty)
	if out.IsNegative() {
		return decimal.Zero
	}
	return out
}

// PurchaseOrder is a commitment to a supplier.
type PurchaseOrder struct {
	Code            string       `json:"code"`
	Status          Status       `json:"status"`
	VendorCode      string       `json:"vendor_code"`
	VendorName      string       `json:"vendor_name"`
	Lines           []POLine     `json:"lines"`
	Subtotal        shared.Money `json:"subtotal"`
	DiscountAmount  shared.Money `json:"discount_amount"`
	TaxAmount       shared.Money `json:"tax_amount"`
	TotalAmount     shared.Money `json:"total_amount"`
	ShippingAddress string       `json:"shipping_address,omitempty"`
	DeliveryDate    *time.Time   `json:"delivery_date,omitempty"`
	PaymentTerms    string       `json:"payment_terms,omitempty"`
	SourcePRCode    string       `json:"source_pr_code,omitempty"`
	Notes           string       `json:"notes,omitempty"`
	SubmittedAt     *time.Time   `json:"submitted_at,omitempty"`
	ApprovedBy      string       `json:"approved_by,omitempty"`
	ApprovedAt      *time.Time   `json:"approved_at,omitempty"`
	SentAt          *time.Time   `json:"sent_at,omitempty"`
	ConfirmedAt     *time.Time   `json:"confirmed_at,omitempty"`
	ClosedAt        *time.Time   `json:"closed_at,omitempty"`
	CancelledAt     *time.Time   `json:"cancelled_at,omitempty"`
	CancelReason    string       `json:"cancel_reason,omitempty"`
	CreatedBy       string       `json:"created_by"`
	CreatedAt       time.Time    `json:"created_at"`
	UpdatedAt       time.Time    `json:"updated_at"`
}

// FullyReceived reports whether every line has been received in full.
func (po PurchaseOrder) FullyReceived() bool {
	for _, l := range po.Lines {
		if l.Outstanding().IsPositive() {
			return false
		}
	}
	return true
}

// Line returns the PO line for item.
func (po PurchaseOrder) Line(itemCode string) (int, bool) {
	for i, l := range po.Lines {
		if l.ItemCode == itemCode {
			return i, true
		}
	}
	return -1, false
}

// GRLine describes received goods for one PO line.
type GRLine struct {
	ItemCode        string          `json:"item_code"`
	ItemName        string          `json:"item_name"`
	Unit            string          `json:"unit,omitempty"`
	OrderedQty      shared.Quantity `json:"ordered_qty"`
	ReceivedQty     shared.Quantity `json:"received_qty"`
	AcceptedQty     shared.Quantity `json:"accepted_qty"`
	RejectedQty     shared.Quantity `json:"rejected_qty"`
	RejectionReason string          `json:"rejection_reason,omitempty"`
	UnitRate        shared.Money    `json:"unit_rate"`
}

// StockQty is the quantity the line adds to inventory.
func (l GRLine) StockQty(qualityCheck bool) shared.Quantity {
	if qualityCheck {
		return l.AcceptedQty
	}
	return l.ReceivedQty
}

// GoodsReceipt acknowledges physical receipt against a PO.
type GoodsReceipt struct {
	Code          string          `json:"code"`
	Status        Status          `json:"status"`
	POCode        string          `json:"po_code"`
	VendorCode    string          `json:"vendor_code"`
	VendorName    string          `json:"vendor_name"`
	Warehouse     string          `json:"warehouse"`
	QualityCheck  bool            `json:"quality_check"`
	InvoiceNumber string          `json:"invoice_number,omitempty"`
	InvoiceDate   *time.Time      `json:"invoice_date,omitempty"`
	Lines         []GRLine        `json:"lines"`
	TotalReceived shared.Quantity `json:"total_received"`
	Notes         string          `json:"notes,omitempty"`
	ReceivedBy    string          `json:"received_by"`
	ReceivedAt    time.Time       `json:"received_at"`
	CompletedBy   string          `json:"completed_by,omitempty"`
	CompletedAt   *time.Time      `json:"completed_at,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// ReturnLine is one returned item.
type ReturnLine struct {
	ItemCode  string          `json:"item_code"`
	ItemName  string          `json:"item_name"`
	ReturnQty shared.Quantity `json:"return_qty"`
	UnitRate  shared.Money    `json:"unit_rate"`
	LineTotal shared.Money    `json:"line_total"`
	Reason    string          `json:"reason,omitempty"`
}

// PurchaseReturn sends goods back to the supplier.
type PurchaseReturn struct {
	Code              string       `json:"code"`
	Status            Status       `json:"status"`
	POCode            string       `json:"po_code"`
	GRCode            string       `json:"gr_code"`
	VendorCode        string       `json:"vendor_code"`
	VendorName        string       `json:"vendor_name"`
	Warehouse         string       `json:"warehouse"`
	Reason            string       `json:"reason,omitempty"`
	Lines             []ReturnLine `json:"lines"`
	TotalReturnAmount shared.Money `json:"total_return_amount"`
	DebitNoteNumber   string       `json:"debit_note_number,omitempty"`
	DebitNoteDate     *time.Time   `json:"debit_note_date,omitempty"`
	ApprovedBy        string       `json:"approved_by,omitempty"`
	ApprovedAt        *time.Time   `json:"approved_at,omitempty"`
	ProcessedAt       *time.Time   `json:"processed_at,omitempty"`
	CancelledAt       *time.Time   `json:"cancelled_at,omitempty"`
	CreatedBy         string       `json:"created_by"`
	CreatedAt         time.Time    `json:"created_at"`
	UpdatedAt         time.Time    `json:"updated_at"`
}

// Payment is one settlement against a bill.
type Payment struct {
	Amount     shared.Money `json:"amount"`
	Reference  string       `json:"reference"`
	Method     string       `json:"method"`
	PaidAt     time.Time    `json:"paid_at"`
	RecordedBy string       `json:"recorded_by"`
	Notes      string       `json:"notes,omitempty"`
}

// VendorBill is a supplier invoice tracked for payment.
type VendorBill struct {
	Code           string          `json:"code"`
	Status         Status          `json:"status"`
	POCode         string          `json:"po_code"`
	VendorCode     string          `json:"vendor_code"`
	VendorName     string          `json:"vendor_name"`
	InvoiceNumber  string          `json:"invoice_number"`
	InvoiceDate    time.Time       `json:"invoice_date"`
	DueDate        time.Time       `json:"due_date"`
	Subtotal       shared.Money    `json:"subtotal"`
	TaxRate        decimal.Decimal `json:"tax_rate"`
	TaxAmount      shared.Money    `json:"tax_amount"`
	DiscountAmount shared.Money    `json:"discount_amount"`
	TotalAmount    shared.Money    `json:"total_amount"`
	PaidAmount     shared.Money    `json:"paid_amount"`
	PendingAmount  shared.Money    `json:"pending_amount"`
	Payments       []Payment       `json:"payments"`
	PaymentTerms   string          `json:"payment_terms,omitempty"`
	Notes          string          `json:"notes,omitempty"`
	CancelledAt    *time.Time      `json:"cancelled_at,omitempty"`
	CreatedBy      string          `json:"created_by"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// HasPayment reports whether a payment with reference was already applied.
func (b VendorBill) HasPayment(reference string) bool {
	for _, p := range b.Payments {
		if p.Reference == reference {
			return true
		}
	}
	return false
}

// Settled reports whether the bill no longer expects payment.
func (b VendorBill) Settled() bool {
	return b.Status == workflow.Paid || b.Status == workflow.Cancelled
}

// ListFilter narrows document listings. Fields that do not apply to a kind
// are ignored.
type ListFilter struct {
	Status     Status
	VendorCode string
	POCode     string
	GRCode     string
	Priority   Priority
	From       time.Time
	To         time.Time
	Page       int
	PerPage    int
}
