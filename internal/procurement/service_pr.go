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

// CreatePRInput describes creation payload.
type CreatePRInput struct {
	Priority       Priority
	Department     string
	Purpose        string
	RequiredBy     *time.Time
	Notes          string
	Lines          []PRLineInput
	IdempotencyKey string
}

// PRLineInput describes request line.
type PRLineInput struct {
	ItemCode          string
	ItemName          string
	Quantity          shared.Quantity
	Unit              string
	EstimatedRate     shared.Money
	RequiredBy        *time.Time
	SuggestedSupplier string
	SuggestedBrand    string
	Remarks           string
}

// ApprovePRInput carries optional per-line approved quantities keyed by item.
type ApprovePRInput struct {
	Notes              string
	ApprovedQuantities map[string]shared.Quantity
}

// ConvertPRInput supplies the supplier side of the PO born from a PR.
type ConvertPRInput struct {
	VendorCode      string
	VendorName      string
	ShippingAddress string
	DeliveryDate    *time.Time
	PaymentTerms    string
	Notes           string
}

func validatePRInput(in CreatePRInput) error {
	var fields []shared.FieldError
	if len(in.Lines) == 0 {
		fields = append(fields, fieldErr("lines", "at least one line is required"))
	}
	switch in.Priority {
	case "", PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent:
	default:
		fields = append(fields, fieldErr("priority", "must be one of LOW NORMAL HIGH URGENT"))
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
		if l.EstimatedRate.IsNegative() {
			fields = append(fields, fieldErr(lineField(i, "estimated_rate"), "must not be negative"))
		}
		fields = checkQty(fields, lineField(i, "quantity"), l.Quantity)
		fields = checkMoney(fields, lineField(i, "estimated_rate"), l.EstimatedRate)
	}
	if len(fields) > 0 {
		return shared.Validation("invalid purchase request", fields...)
	}
	return nil
}

// CreatePurchaseRequest persists a DRAFT request. The bool result reports an
// idempotent replay.
func (s *Service) CreatePurchaseRequest(ctx context.Context, in CreatePRInput) (PurchaseRequest, bool, error) {
	if err := validatePRInput(in); err != nil {
		return PurchaseRequest{}, false, err
	}
	return idempotent(ctx, s, "purchase_request", in.IdempotencyKey, s.GetPurchaseRequest,
		func(ctx context.Context) (PurchaseRequest, string, error) {
			now := s.clock()
			pr := PurchaseRequest{
				Status:      workflow.Draft,
				Priority:    in.Priority,
				Department:  strings.TrimSpace(in.Department),
				Purpose:     strings.TrimSpace(in.Purpose),
				RequestedBy: shared.ActorFromContext(ctx),
				RequiredBy:  in.RequiredBy,
				Notes:       in.Notes,
				CreatedBy:   shared.ActorFromContext(ctx),
				CreatedAt:   now,
				UpdatedAt:   now,
			}
			if pr.Priority == "" {
				pr.Priority = PriorityNormal
			}
			for _, l := range in.Lines {
				pr.Lines = append(pr.Lines, PRLine{
					ItemCode:          strings.TrimSpace(l.ItemCode),
					ItemName:          strings.TrimSpace(l.ItemName),
					Quantity:          l.Quantity,
					Unit:              l.Unit,
					EstimatedRate:     l.EstimatedRate,
					RequiredBy:        l.RequiredBy,
					SuggestedSupplier: l.SuggestedSupplier,
					SuggestedBrand:    l.SuggestedBrand,
					Remarks:           l.Remarks,
				})
			}
			computePRTotals(&pr)

			err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
				code, err := s.codes.Next(ctx, tx, sequence.KindPurchaseRequest)
				if err != nil {
					return err
				}
				pr.Code = code
				return tx.InsertPR(ctx, pr)
			})
			if err != nil {
				return PurchaseRequest{}, "", err
			}
			s.recordAudit(ctx, "pr.create", workflow.KindPR, pr.Code, map[string]any{"total_items": pr.TotalItems, "estimated_total": pr.EstimatedTotal.String()})
			return pr, pr.Code, nil
		})
}

// GetPurchaseRequest loads a request by code.
func (s *Service) GetPurchaseRequest(ctx context.Context, code string) (PurchaseRequest, error) {
	pr, err := s.repo.GetPR(ctx, code)
	return pr, notFound(err, workflow.KindPR, code)
}

// ListPurchaseRequests returns a page of requests.
func (s *Service) ListPurchaseRequests(ctx context.Context, filter ListFilter) ([]PurchaseRequest, shared.Pagination, error) {
	if err := s.listStatus(workflow.KindPR, &filter); err != nil {
		return nil, shared.Pagination{}, err
	}
	filter.Page, filter.PerPage = shared.NormalizePage(filter.Page, filter.PerPage)
	rows, total, err := s.repo.ListPRs(ctx, filter)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return rows, shared.NewPagination(filter.Page, filter.PerPage, total), nil
}

// transitionPR locks the request, applies the transition and persists it.
// A request already in the target status is returned unchanged.
func (s *Service) transitionPR(ctx context.Context, code string, to Status, action string, mutate func(*PurchaseRequest, time.Time) error) (PurchaseRequest, error) {
	var pr PurchaseRequest
	changed := false
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		pr, err = tx.LockPR(ctx, code)
		if err != nil {
			return notFound(err, workflow.KindPR, code)
		}
		if pr.Status == to {
			return nil
		}
		if err := s.authorize(ctx, workflow.KindPR, pr.Status, to); err != nil {
			return err
		}
		now := s.clock()
		if mutate != nil {
			if err := mutate(&pr, now); err != nil {
				return err
			}
		}
		pr.Status = to
		pr.UpdatedAt = now
		changed = true
		return tx.UpdatePR(ctx, pr)
	})
	if err != nil {
		return PurchaseRequest{}, err
	}
	if changed {
		s.recordAudit(ctx, action, workflow.KindPR, pr.Code, map[string]any{"status": string(pr.Status)})
	}
	return pr, nil
}

// SubmitPurchaseRequest moves a DRAFT or REJECTED request to SUBMITTED.
func (s *Service) SubmitPurchaseRequest(ctx context.Context, code string) (PurchaseRequest, error) {
	return s.transitionPR(ctx, code, workflow.Submitted, "pr.submit", func(pr *PurchaseRequest, now time.Time) error {
		pr.SubmittedAt = ptrTime(now)
		return nil
	})
}

// ApprovePurchaseRequest approves a SUBMITTED request, optionally trimming
// line quantities.
func (s *Service) ApprovePurchaseRequest(ctx context.Context, code string, in ApprovePRInput) (PurchaseRequest, error) {
	return s.transitionPR(ctx, code, workflow.Approved, "pr.approve", func(pr *PurchaseRequest, now time.Time) error {
		var fields []shared.FieldError
		matched := 0
		for i := range pr.Lines {
			l := &pr.Lines[i]
			q, ok := in.ApprovedQuantities[l.ItemCode]
			if !ok {
				continue
			}
			matched++
			field := "approved_quantities." + l.ItemCode
			if !shared.FitsQty(q) {
				fields = checkQty(fields, field, q)
				continue
			}
			if q.IsNegative() || q.GreaterThan(l.Quantity) {
				fields = append(fields, fieldErr(field, "must be between 0 and the requested quantity"))
				continue
			}
			l.ApprovedQuantity = &q
		}
		if matched != len(in.ApprovedQuantities) {
			fields = append(fields, fieldErr("approved_quantities", "references an item not on the request"))
		}
		if len(fields) > 0 {
			return shared.Validation("invalid approval", fields...)
		}
		pr.ApprovedBy = shared.ActorFromContext(ctx)
		pr.ApprovedAt = ptrTime(now)
		pr.ApprovalNotes = strings.TrimSpace(in.Notes)
		return nil
	})
}

// RejectPurchaseRequest rejects a SUBMITTED request. A reason is mandatory.
func (s *Service) RejectPurchaseRequest(ctx context.Context, code, reason string) (PurchaseRequest, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return PurchaseRequest{}, shared.Validation("rejection reason required", fieldErr("reason", "is required"))
	}
	return s.transitionPR(ctx, code, workflow.Rejected, "pr.reject", func(pr *PurchaseRequest, now time.Time) error {
		pr.RejectedBy = shared.ActorFromContext(ctx)
		pr.RejectedAt = ptrTime(now)
		pr.RejectionReason = reason
		return nil
	})
}

// CancelPurchaseRequest cancels a request in any non-terminal status.
func (s *Service) CancelPurchaseRequest(ctx context.Context, code, reason string) (PurchaseRequest, error) {
	return s.transitionPR(ctx, code, workflow.Cancelled, "pr.cancel", func(pr *PurchaseRequest, now time.Time) error {
		pr.CancelledAt = ptrTime(now)
		pr.CancelReason = strings.TrimSpace(reason)
		return nil
	})
}

// ConvertPurchaseRequest materialises a DRAFT PO from an APPROVED request.
// Lines approved at zero are skipped. Converting an already converted request
// returns the PO it produced.
func (s *Service) ConvertPurchaseRequest(ctx context.Context, code string, in ConvertPRInput) (PurchaseRequest, PurchaseOrder, error) {
	var pr PurchaseRequest
	var po PurchaseOrder
	replay := false
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		pr, err = tx.LockPR(ctx, code)
		if err != nil {
			return notFound(err, workflow.KindPR, code)
		}
		if pr.Status == workflow.Converted {
			replay = true
			return nil
		}
		if err := s.authorize(ctx, workflow.KindPR, pr.Status, workflow.Converted); err != nil {
			return err
		}

		now := s.clock()
		actor := shared.ActorFromContext(ctx)
		po = PurchaseOrder{
			Status:          workflow.Draft,
			VendorCode:      strings.TrimSpace(in.VendorCode),
			VendorName:      strings.TrimSpace(in.VendorName),
			ShippingAddress: in.ShippingAddress,
			DeliveryDate:    in.DeliveryDate,
			PaymentTerms:    in.PaymentTerms,
			SourcePRCode:    pr.Code,
			Notes:           in.Notes,
			CreatedBy:       actor,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if po.DeliveryDate == nil {
			po.DeliveryDate = pr.RequiredBy
		}
		for _, l := range pr.Lines {
			q := l.ConvertibleQuantity()
			if !q.IsPositive() {
				continue
			}
			if po.VendorCode == "" {
				po.VendorCode = strings.TrimSpace(l.SuggestedSupplier)
			}
			po.Lines = append(po.Lines, POLine{
				ItemCode: l.ItemCode,
				ItemName: l.ItemName,
				Quantity: q,
				Unit:     l.Unit,
				UnitRate: l.EstimatedRate,
				TaxRate:  decimal.Zero,
			})
		}
		if len(po.Lines) == 0 {
			return shared.Invariant(shared.CodeNothingToConvert, "every line of "+pr.Code+" was approved at zero quantity")
		}
		if po.VendorCode == "" {
			return shared.Validation("vendor required", fieldErr("vendor_code", "is required when no line suggests a supplier"))
		}
		if po.VendorName == "" {
			po.VendorName = po.VendorCode
		}
		computePOTotals(&po)

		po.Code, err = s.codes.Next(ctx, tx, sequence.KindPurchaseOrder)
		if err != nil {
			return err
		}
		if err := tx.InsertPO(ctx, po); err != nil {
			return err
		}
		pr.Status = workflow.Converted
		pr.ConvertedToPO = po.Code
		pr.ConvertedBy = actor
		pr.ConvertedAt = ptrTime(now)
		pr.UpdatedAt = now
		return tx.UpdatePR(ctx, pr)
	})
	if err != nil {
		return PurchaseRequest{}, PurchaseOrder{}, err
	}
	if replay {
		po, err = s.GetPurchaseOrder(ctx, pr.ConvertedToPO)
		return pr, po, err
	}
	s.recordAudit(ctx, "pr.convert", workflow.KindPR, pr.Code, map[string]any{"po_code": po.Code, "total": po.TotalAmount.String()})
	return pr, po, nil
}
