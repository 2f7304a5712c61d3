package reports

import (
	"time"

	"github.com/odyssey-erp/odyssey-procure/internal/shared"
)

// Aging buckets of outstanding bills, keyed by days until due.
const (
	BucketOverdue  = "overdue"
	BucketDueSoon  = "due_soon"
	BucketUpcoming = "upcoming"
)

// DueSoonDays is the last day count that still counts as due soon.
const DueSoonDays = 7

// PendingPO is one open purchase order.
type PendingPO struct {
	Code         string       `json:"po_code" db:"code"`
	VendorCode   string       `json:"vendor_code" db:"vendor_code"`
	VendorName   string       `json:"vendor_name" db:"vendor_name"`
	TotalAmount  shared.Money `json:"total_amount" db:"total_amount"`
	Status       string       `json:"status" db:"status"`
	DeliveryDate *time.Time   `json:"delivery_date,omitempty" db:"delivery_date"`
	CreatedAt    time.Time    `json:"created_at" db:"created_at"`
}

// PendingPOReport lists orders that still expect approval or goods.
type PendingPOReport struct {
	PendingCount int          `json:"pending_count"`
	TotalValue   shared.Money `json:"total_value"`
	Orders       []PendingPO  `json:"orders"`
}

// OpenBill is a bill still expecting payment.
type OpenBill struct {
	Code          string       `json:"bill_code" db:"code"`
	POCode        string       `json:"po_code" db:"po_code"`
	VendorCode    string       `json:"vendor_code" db:"vendor_code"`
	VendorName    string       `json:"vendor_name" db:"vendor_name"`
	InvoiceNumber string       `json:"invoice_number" db:"invoice_number"`
	Status        string       `json:"status" db:"status"`
	TotalAmount   shared.Money `json:"total_amount" db:"total_amount"`
	PendingAmount shared.Money `json:"pending_amount" db:"pending_amount"`
	DueDate       time.Time    `json:"due_date" db:"due_date"`
	DaysUntilDue  int          `json:"days_until_due" db:"-"`
}

// BucketTotal sums one aging bucket.
type BucketTotal struct {
	Count  int          `json:"count"`
	Amount shared.Money `json:"amount"`
}

// OutstandingBillsReport groups open bills by aging bucket.
type OutstandingBillsReport struct {
	AsOf             time.Time              `json:"as_of"`
	OutstandingCount int                    `json:"outstanding_count"`
	TotalOutstanding shared.Money           `json:"total_outstanding"`
	Overdue          []OpenBill             `json:"overdue"`
	DueSoon          []OpenBill             `json:"due_soon"`
	Upcoming         []OpenBill             `json:"upcoming"`
	Totals           map[string]BucketTotal `json:"totals"`
}

// VendorOrders is the raw per-vendor order aggregate.
type VendorOrders struct {
	VendorCode      string       `db:"vendor_code"`
	VendorName      string       `db:"vendor_name"`
	TotalOrders     int          `db:"total_orders"`
	CompletedOrders int          `db:"completed_orders"`
	TotalValue      shared.Money `db:"total_value"`
}

// VendorPerformance rates one supplier.
type VendorPerformance struct {
	VendorCode        string       `json:"vendor_code"`
	VendorName        string       `json:"vendor_name"`
	TotalOrders       int          `json:"total_orders"`
	CompletedOrders   int          `json:"completed_orders"`
	TotalValue        shared.Money `json:"total_value"`
	AverageOrderValue shared.Money `json:"average_order_value"`
	ReturnsCount      int          `json:"returns_count"`
	CompletionRate    shared.Money `json:"completion_rate"`
}

// DocumentTotals counts one document kind and sums its headline amount.
type DocumentTotals struct {
	Count int          `json:"count" db:"count"`
	Value shared.Money `json:"value" db:"value"`
}

// PurchaseSummary is the headline procurement dashboard.
type PurchaseSummary struct {
	PurchaseOrders    DocumentTotals `json:"purchase_orders"`
	GoodsReceipts     DocumentTotals `json:"goods_receipts"`
	Returns           DocumentTotals `json:"returns"`
	Bills             DocumentTotals `json:"bills"`
	PendingBills      DocumentTotals `json:"pending_bills"`
	POStatusBreakdown map[string]int `json:"po_status_breakdown"`
}
