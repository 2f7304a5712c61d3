package procurement

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-procure/internal/procurement/workflow"
	"github.com/odyssey-erp/odyssey-procure/internal/sequence"
	"github.com/odyssey-erp/odyssey-procure/internal/shared"
)

// CreatePOInput defines a direct purchase order.
type CreatePOInput struct {
	VendorCode      string
	VendorName      string
	ShippingAddress string
	DeliveryDate    *time.Time
	PaymentTerms    string
	Notes           string
	Lines           []POLineInput
	IdempotencyKey  string
}

// POLineInput describes one ordered item.
type POLineInput struct {
	ItemCode string
	ItemName string
	Quantity shared.Quantity
	Unit     string
	UnitRate shared.Money
	TaxRate  decimal.Decimal
	Discount shared.Money
}

func validatePOInput(in CreatePOInput) error {
	var fields []shared.FieldError
	if strings.TrimSpace(in.VendorCode) == "" {
		fields = append(fields, fieldErr("vendor_code", "is required"))
	}
	if len(in.Lines) == 0 {
		fields = append(fields, fieldErr("lines", "at least one line is required"))
	}
	seen := make(map[string]bool, len(in.Lines))
	for i, l := range in.Lines {
		code := strings.TrimSpace(l.ItemCode)
		if code == "" {
			fields = append(fields, fieldErr(lineField(i, "item_code"), "is required"))
		} else if seen[code] {
			fields = append(fields, fieldErr(lineField(i, "item_code"), "duplicate item"))
		}
		seen[code] = true
		if !l.Quantity.IsPositive() {
			fields = append(fields, fieldErr(lineField(i, "quantity"), "must be greater than 0"))
		}
		if l.UnitRate.IsNegative() {
			fields = append(fields, fieldErr(lineField(i, "unit_rate"), "must not be negative"))
		}
		if l.TaxRate.IsNegative() || l.TaxRate.GreaterThan(hundred) {
			fields = append(fields, fieldErr(lineField(i, "tax_rate"), "must be between 0 and 100"))
		}
		if l.Discount.IsNegative() || l.Discount.GreaterThan(l.Quantity.Mul(l.UnitRate)) {
			fields = append(fields, fieldErr(lineField(i, "discount"), "must be between 0 and the line amount"))
		}
		fields = checkQty(fields, lineField(i, "quantity"), l.Quantity)
		fields = checkMoney(fields, lineField(i, "unit_rate"), l.UnitRate)
		fields = checkMoney(fields, lineField(i, "discount"), l.Discount)
	}
	if len(fields) > 0 {
		return shared.Validation("invalid purchase order", fields...)
	}
	return nil
}

// CreatePurchaseOrder persists a DRAFT purchase order.
func (s *Service) CreatePurchaseOrder(ctx context.Context, in CreatePOInput) (PurchaseOrder, bool, error) {
	if err := validatePOInput(in); err != nil {
		return PurchaseOrder{}, false, err
	}
	return idempotent(ctx, s, "purchase_order", in.IdempotencyKey, s.GetPurchaseOrder,
		func(ctx context.Context) (PurchaseOrder, string, error) {
			now := s.clock()
			po := PurchaseOrder{
				Status:          workflow.Draft,
				VendorCode:      strings.TrimSpace(in.VendorCode),
				VendorName:      strings.TrimSpace(in.VendorName),
				ShippingAddress: in.ShippingAddress,
				DeliveryDate:    in.DeliveryDate,
				PaymentTerms:    in.PaymentTerms,
				Notes:           in.Notes,
				CreatedBy:       shared.ActorFromContext(ctx),
				CreatedAt:       now,
				UpdatedAt:       now,
			}
			if po.VendorName == "" {
				po.VendorName = po.VendorCode
			}
			for _, l := range in.Lines {
				po.Lines = append(po.Lines, POLine{
					ItemCode: strings.TrimSpace(l.ItemCode),
					ItemName: strings.TrimSpace(l.ItemName),
					Quantity: l.Quantity,
					Unit:     l.Unit,
					UnitRate: l.UnitRate,
					TaxRate:  l.TaxRate,
					Discount: l.Discount,
				})
			}
			computePOTotals(&po)

			err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
				code, err := s.codes.Next(ctx, tx, sequence.KindPurchaseOrder)
				if err != nil {
					return err
				}
				po.Code = code
				return tx.InsertPO(ctx, po)
			})
			if err != nil {
				return PurchaseOrder{}, "", err
			}
			s.recordAudit(ctx, "po.create", workflow.KindPO, po.Code, map[string]any{"vendor": po.VendorCode, "total": po.TotalAmount.String()})
			return po, po.Code, nil
		})
}

// GetPurchaseOrder loads an order by code.
func (s *Service) GetPurchaseOrder(ctx context.Context, code string) (PurchaseOrder, error) {
	po, err := s.repo.GetPO(ctx, code)
	return po, notFound(err, workflow.KindPO, code)
}

// ListPurchaseOrders returns a page of orders filtered by status and vendor.
func (s *Service) ListPurchaseOrders(ctx context.Context, filter ListFilter) ([]PurchaseOrder, shared.Pagination, error) {
	if err := s.listStatus(workflow.KindPO, &filter); err != nil {
		return nil, shared.Pagination{}, err
	}
	filter.Page, filter.PerPage = shared.NormalizePage(filter.Page, filter.PerPage)
	rows, total, err := s.repo.ListPOs(ctx, filter)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return rows, shared.NewPagination(filter.Page, filter.PerPage, total), nil
}

func (s *Service) transitionPO(ctx context.Context, code string, to Status, action string, mutate func(context.Context, TxRepository, *PurchaseOrder, time.Time) error) (PurchaseOrder, error) {
	var po PurchaseOrder
	changed := false
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		po, err = tx.LockPO(ctx, code)
		if err != nil {
			return notFound(err, workflow.KindPO, code)
		}
		if po.Status == to {
			return nil
		}
		if err := s.authorize(ctx, workflow.KindPO, po.Status, to); err != nil {
			return err
		}
		now := s.clock()
		if mutate != nil {
			if err := mutate(ctx, tx, &po, now); err != nil {
				return err
			}
		}
		po.Status = to
		po.UpdatedAt = now
		changed = true
		return tx.UpdatePO(ctx, po)
	})
	if err != nil {
		return PurchaseOrder{}, err
	}
	if changed {
		s.recordAudit(ctx, action, workflow.KindPO, po.Code, map[string]any{"status": string(po.Status)})
	}
	return po, nil
}

// SubmitPurchaseOrder requests approval.
func (s *Service) SubmitPurchaseOrder(ctx context.Context, code string) (PurchaseOrder, error) {
	return s.transitionPO(ctx, code, workflow.Submitted, "po.submit", func(_ context.Context, _ TxRepository, po *PurchaseOrder, now time.Time) error {
		po.SubmittedAt = ptrTime(now)
		return nil
	})
}

// ApprovePurchaseOrder marks PO as approved.
func (s *Service) ApprovePurchaseOrder(ctx context.Context, code string) (PurchaseOrder, error) {
	return s.transitionPO(ctx, code, workflow.Approved, "po.approve", func(ctx context.Context, _ TxRepository, po *PurchaseOrder, now time.Time) error {
		po.ApprovedBy = shared.ActorFromContext(ctx)
		po.ApprovedAt = ptrTime(now)
		return nil
	})
}

// SendPurchaseOrder records dispatch to the supplier.
func (s *Service) SendPurchaseOrder(ctx context.Context, code string) (PurchaseOrder, error) {
	return s.transitionPO(ctx, code, workflow.Sent, "po.send", func(_ context.Context, _ TxRepository, po *PurchaseOrder, now time.Time) error {
		po.SentAt = ptrTime(now)
		return nil
	})
}

// ConfirmPurchaseOrder records supplier confirmation.
func (s *Service) ConfirmPurchaseOrder(ctx context.Context, code string) (PurchaseOrder, error) {
	return s.transitionPO(ctx, code, workflow.Confirmed, "po.confirm", func(_ context.Context, _ TxRepository, po *PurchaseOrder, now time.Time) error {
		po.ConfirmedAt = ptrTime(now)
		return nil
	})
}

// ClosePurchaseOrder closes a FULLY_RECEIVED or INVOICED order.
func (s *Service) ClosePurchaseOrder(ctx context.Context, code string) (PurchaseOrder, error) {
	return s.transitionPO(ctx, code, workflow.Closed, "po.close", func(_ context.Context, _ TxRepository, po *PurchaseOrder, now time.Time) error {
		po.ClosedAt = ptrTime(now)
		return nil
	})
}

// CancelPurchaseOrder cancels an order no goods receipt references yet.
func (s *Service) CancelPurchaseOrder(ctx context.Context, code, reason string) (PurchaseOrder, error) {
	return s.transitionPO(ctx, code, workflow.Cancelled, "po.cancel", func(ctx context.Context, tx TxRepository, po *PurchaseOrder, now time.Time) error {
		receipts, err := tx.GRsByPO(ctx, po.Code)
		if err != nil {
			return err
		}
		if len(receipts) > 0 {
			return shared.IllegalTransition(workflow.KindPO.Entity(), string(po.Status), string(workflow.Cancelled),
				"goods receipt "+receipts[0].Code+" references this order")
		}
		po.CancelledAt = ptrTime(now)
		po.CancelReason = strings.TrimSpace(reason)
		return nil
	})
}
