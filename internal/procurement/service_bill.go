package procurement

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-procure/internal/procurement/workflow"
	"github.com/odyssey-erp/odyssey-procure/internal/sequence"
	"github.com/odyssey-erp/odyssey-procure/internal/shared"
)

// CreateBillInput registers a supplier invoice against a purchase order.
type CreateBillInput struct {
	POCode         string
	InvoiceNumber  string
	InvoiceDate    time.Time
	DueDate        time.Time
	Subtotal       shared.Money
	TaxRate        decimal.Decimal
	DiscountAmount shared.Money
	PaymentTerms   string
	Notes          string
	IdempotencyKey string
}

// PaymentInput settles part or all of a bill.
type PaymentInput struct {
	Amount    shared.Money
	Reference string
	Method    string
	PaidAt    *time.Time
	Notes     string
}

func validateBillInput(in CreateBillInput) error {
	var fields []shared.FieldError
	if strings.TrimSpace(in.POCode) == "" {
		fields = append(fields, fieldErr("po_code", "is required"))
	}
	if strings.TrimSpace(in.InvoiceNumber) == "" {
		fields = append(fields, fieldErr("invoice_number", "is required"))
	}
	if in.InvoiceDate.IsZero() {
		fields = append(fields, fieldErr("invoice_date", "is required"))
	}
	if in.DueDate.IsZero() {
		fields = append(fields, fieldErr("due_date", "is required"))
	} else if !in.InvoiceDate.IsZero() && in.DueDate.Before(in.InvoiceDate) {
		fields = append(fields, fieldErr("due_date", "must not be before invoice_date"))
	}
	if in.Subtotal.IsNegative() {
		fields = append(fields, fieldErr("subtotal", "must not be negative"))
	}
	if in.TaxRate.IsNegative() || in.TaxRate.GreaterThan(hundred) {
		fields = append(fields, fieldErr("tax_rate", "must be between 0 and 100"))
	}
	if in.DiscountAmount.IsNegative() {
		fields = append(fields, fieldErr("discount_amount", "must not be negative"))
	} else if in.DiscountAmount.GreaterThan(in.Subtotal) {
		fields = append(fields, fieldErr("discount_amount", "must not exceed subtotal"))
	}
	fields = checkMoney(fields, "subtotal", in.Subtotal)
	fields = checkMoney(fields, "discount_amount", in.DiscountAmount)
	if len(fields) > 0 {
		return shared.Validation("invalid vendor bill", fields...)
	}
	return nil
}

// CreateVendorBill registers a PENDING bill. The order moves to INVOICED
// when it was FULLY_RECEIVED.
func (s *Service) CreateVendorBill(ctx context.Context, in CreateBillInput) (VendorBill, bool, error) {
	if err := validateBillInput(in); err != nil {
		return VendorBill{}, false, err
	}
	return idempotent(ctx, s, "vendor_bill", in.IdempotencyKey, s.GetVendorBill,
		func(ctx context.Context) (VendorBill, string, error) {
			var bill VendorBill
			var po PurchaseOrder
			err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
				var err error
				code := strings.TrimSpace(in.POCode)
				po, err = tx.LockPO(ctx, code)
				if err != nil {
					return notFound(err, workflow.KindPO, code)
				}
				now := s.clock()
				bill = VendorBill{
					Status:         workflow.Pending,
					POCode:         po.Code,
					VendorCode:     po.VendorCode,
					VendorName:     po.VendorName,
					InvoiceNumber:  strings.TrimSpace(in.InvoiceNumber),
					InvoiceDate:    in.InvoiceDate.UTC(),
					DueDate:        in.DueDate.UTC(),
					Subtotal:       in.Subtotal,
					TaxRate:        in.TaxRate,
					DiscountAmount: in.DiscountAmount,
					PaidAmount:     decimal.Zero,
					Payments:       []Payment{},
					PaymentTerms:   in.PaymentTerms,
					Notes:          in.Notes,
					CreatedBy:      shared.ActorFromContext(ctx),
					CreatedAt:      now,
					UpdatedAt:      now,
				}
				computeBillTotals(&bill)
				if !bill.TotalAmount.IsPositive() {
					return shared.Validation("invalid vendor bill", fieldErr("total_amount", "must be greater than 0"))
				}
				bill.Code, err = s.codes.Next(ctx, tx, sequence.KindVendorBill)
				if err != nil {
					return err
				}
				if err := tx.InsertBill(ctx, bill); err != nil {
					return err
				}
				if po.Status != workflow.FullyReceived {
					return nil
				}
				if d := s.engine.Check(workflow.KindPO, po.Status, workflow.Invoiced, permissions(ctx)); !d.Allowed {
					return nil
				}
				po.Status = workflow.Invoiced
				po.UpdatedAt = now
				return tx.UpdatePO(ctx, po)
			})
			if err != nil {
				return VendorBill{}, "", err
			}
			s.recordAudit(ctx, "bill.create", workflow.KindBill, bill.Code, map[string]any{
				"po_code":   po.Code,
				"po_status": string(po.Status),
				"total":     bill.TotalAmount.String(),
			})
			return bill, bill.Code, nil
		})
}

// GetVendorBill loads a bill by code.
func (s *Service) GetVendorBill(ctx context.Context, code string) (VendorBill, error) {
	bill, err := s.repo.GetBill(ctx, code)
	return bill, notFound(err, workflow.KindBill, code)
}

// ListVendorBills returns a page of bills.
func (s *Service) ListVendorBills(ctx context.Context, filter ListFilter) ([]VendorBill, shared.Pagination, error) {
	if err := s.listStatus(workflow.KindBill, &filter); err != nil {
		return nil, shared.Pagination{}, err
	}
	filter.Page, filter.PerPage = shared.NormalizePage(filter.Page, filter.PerPage)
	rows, total, err := s.repo.ListBills(ctx, filter)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return rows, shared.NewPagination(filter.Page, filter.PerPage, total), nil
}

// RecordPayment applies a payment to a bill. A reference already applied is
// a no-op.
func (s *Service) RecordPayment(ctx context.Context, code string, in PaymentInput) (VendorBill, error) {
	in.Reference = strings.TrimSpace(in.Reference)
	var fields []shared.FieldError
	if !in.Amount.IsPositive() {
		fields = append(fields, fieldErr("amount", "must be greater than 0"))
	}
	fields = checkMoney(fields, "amount", in.Amount)
	if in.Reference == "" {
		fields = append(fields, fieldErr("reference", "is required"))
	}
	if strings.TrimSpace(in.Method) == "" {
		fields = append(fields, fieldErr("method", "is required"))
	}
	if len(fields) > 0 {
		return VendorBill{}, shared.Validation("invalid payment", fields...)
	}
	amount := in.Amount

	head, err := s.GetVendorBill(ctx, code)
	if err != nil {
		return VendorBill{}, err
	}
	var bill VendorBill
	var po PurchaseOrder
	changed, closed := false, false
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		po, err = tx.LockPO(ctx, head.POCode)
		if err != nil {
			return notFound(err, workflow.KindPO, head.POCode)
		}
		bill, err = tx.LockBill(ctx, code)
		if err != nil {
			return notFound(err, workflow.KindBill, code)
		}
		if bill.HasPayment(in.Reference) {
			return nil
		}
		next := workflow.PartiallyPaid
		if amount.Equal(bill.PendingAmount) {
			next = workflow.Paid
		}
		if err := s.authorize(ctx, workflow.KindBill, bill.Status, next); err != nil {
			return err
		}
		if amount.GreaterThan(bill.PendingAmount) {
			return shared.Invariant(shared.CodeExceedsPending, fmt.Sprintf(
				"payment %s exceeds pending %s", amount.StringFixed(2), bill.PendingAmount.StringFixed(2)))
		}

		now := s.clock()
		paidAt := now
		if in.PaidAt != nil {
			paidAt = in.PaidAt.UTC()
		}
		bill.Payments = append(bill.Payments, Payment{
			Amount:     amount,
			Reference:  in.Reference,
			Method:     strings.TrimSpace(in.Method),
			PaidAt:     paidAt,
			RecordedBy: shared.ActorFromContext(ctx),
			Notes:      in.Notes,
		})
		bill.PaidAmount = bill.PaidAmount.Add(amount)
		bill.PendingAmount = bill.TotalAmount.Sub(bill.PaidAmount)
		bill.Status = next
		bill.UpdatedAt = now
		if err := tx.UpdateBill(ctx, bill); err != nil {
			return err
		}
		changed = true

		if bill.Status != workflow.Paid {
			return nil
		}
		closed, err = s.closeSettledOrder(ctx, tx, &po, bill, now)
		return err
	})
	if err != nil {
		return VendorBill{}, err
	}
	if changed {
		s.recordAudit(ctx, "bill.payment", workflow.KindBill, bill.Code, map[string]any{
			"amount":    amount.String(),
			"reference": in.Reference,
			"status":    string(bill.Status),
			"po_closed": closed,
		})
	}
	return bill, nil
}

// closeSettledOrder closes an INVOICED order once every bill against it is
// settled. paid is the bill being written in this transaction.
func (s *Service) closeSettledOrder(ctx context.Context, tx TxRepository, po *PurchaseOrder, paid VendorBill, now time.Time) (bool, error) {
	if po.Status != workflow.Invoiced {
		return false, nil
	}
	bills, err := tx.BillsByPO(ctx, po.Code)
	if err != nil {
		return false, err
	}
	for _, b := range bills {
		if b.Code != paid.Code && !b.Settled() {
			return false, nil
		}
	}
	if d := s.engine.Check(workflow.KindPO, po.Status, workflow.Closed, permissions(ctx)); !d.Allowed {
		return false, nil
	}
	po.Status = workflow.Closed
	po.ClosedAt = ptrTime(now)
	po.UpdatedAt = now
	return true, tx.UpdatePO(ctx, *po)
}

// CancelVendorBill cancels an unpaid or partially paid bill.
func (s *Service) CancelVendorBill(ctx context.Context, code string) (VendorBill, error) {
	var bill VendorBill
	changed := false
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		bill, err = tx.LockBill(ctx, code)
		if err != nil {
			return notFound(err, workflow.KindBill, code)
		}
		if bill.Status == workflow.Cancelled {
			return nil
		}
		if err := s.authorize(ctx, workflow.KindBill, bill.Status, workflow.Cancelled); err != nil {
			return err
		}
		now := s.clock()
		bill.Status = workflow.Cancelled
		bill.CancelledAt = ptrTime(now)
		bill.UpdatedAt = now
		changed = true
		return tx.UpdateBill(ctx, bill)
	})
	if err != nil {
		return VendorBill{}, err
	}
	if changed {
		s.recordAudit(ctx, "bill.cancel", workflow.KindBill, bill.Code, map[string]any{"paid": bill.PaidAmount.String()})
	}
	return bill, nil
}
