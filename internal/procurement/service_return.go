package procurement

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-procure/internal/inventory"
	"github.com/odyssey-erp/odyssey-procure/internal/procurement/workflow"
	"github.com/odyssey-erp/odyssey-procure/internal/sequence"
	"github.com/odyssey-erp/odyssey-procure/internal/shared"
)

// CreateReturnInput describes goods going back to the supplier.
type CreateReturnInput struct {
	POCode         string
	GRCode         string
	Reason         string
	Lines          []ReturnLineInput
	IdempotencyKey string
}

// ReturnLineInput is one returned item.
type ReturnLineInput struct {
	ItemCode  string
	ReturnQty shared.Quantity
	Reason    string
}

// DebitNotePrefix prefixes the debit note issued on return approval.
const DebitNotePrefix = "DN-"

func validateReturnInput(in CreateReturnInput) error {
	var fields []shared.FieldError
	if strings.TrimSpace(in.POCode) == "" {
		fields = append(fields, fieldErr("po_code", "is required"))
	}
	if strings.TrimSpace(in.GRCode) == "" {
		fields = append(fields, fieldErr("gr_code", "is required"))
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
		if !l.ReturnQty.IsPositive() {
			fields = append(fields, fieldErr(lineField(i, "return_qty"), "must be greater than 0"))
		}
		fields = checkQty(fields, lineField(i, "return_qty"), l.ReturnQty)
	}
	if len(fields) > 0 {
		return shared.Validation("invalid purchase return", fields...)
	}
	return nil
}

// returnable computes, per item, what the receipt still allows to return.
// Only APPROVED and PROCESSED returns consume the allowance; skip excludes
// the return being evaluated.
func returnable(gr GoodsReceipt, returns []PurchaseReturn, skip string) map[string]shared.Quantity {
	left := receivedByItem(gr)
	for _, r := range returns {
		if r.Code == skip || (r.Status != workflow.Approved && r.Status != workflow.Processed) {
			continue
		}
		for _, l := range r.Lines {
			left[l.ItemCode] = left[l.ItemCode].Sub(l.ReturnQty)
		}
	}
	return left
}

func checkReturnable(lines []ReturnLine, left map[string]shared.Quantity) error {
	for _, l := range lines {
		avail, ok := left[l.ItemCode]
		if !ok {
			return shared.Validation("item not on goods receipt", fieldErr("lines.item_code", l.ItemCode+" was not received on this receipt"))
		}
		if l.ReturnQty.GreaterThan(avail) {
			if avail.IsNegative() {
				avail = decimal.Zero
			}
			return shared.Invariant(shared.CodeExceedsReceived, fmt.Sprintf(
				"%s: return %s exceeds returnable %s", l.ItemCode, l.ReturnQty.StringFixed(4), avail.StringFixed(4)))
		}
	}
	return nil
}

// CreatePurchaseReturn records a PENDING return. Stock is untouched until
// approval.
func (s *Service) CreatePurchaseReturn(ctx context.Context, in CreateReturnInput) (PurchaseReturn, bool, error) {
	if err := validateReturnInput(in); err != nil {
		return PurchaseReturn{}, false, err
	}
	return idempotent(ctx, s, "purchase_return", in.IdempotencyKey, s.GetPurchaseReturn,
		func(ctx context.Context) (PurchaseReturn, string, error) {
			var ret PurchaseReturn
			err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
				grCode := strings.TrimSpace(in.GRCode)
				gr, err := tx.LockGR(ctx, grCode)
				if err != nil {
					return notFound(err, workflow.KindGR, grCode)
				}
				if gr.POCode != strings.TrimSpace(in.POCode) {
					return shared.Validation("goods receipt does not belong to purchase order",
						fieldErr("gr_code", gr.Code+" was received against "+gr.POCode))
				}
				rates := make(map[string]GRLine, len(gr.Lines))
				for _, l := range gr.Lines {
					rates[l.ItemCode] = l
				}

				now := s.clock()
				ret = PurchaseReturn{
					Status:     workflow.Pending,
					POCode:     gr.POCode,
					GRCode:     gr.Code,
					VendorCode: gr.VendorCode,
					VendorName: gr.VendorName,
					Warehouse:  gr.Warehouse,
					Reason:     strings.TrimSpace(in.Reason),
					CreatedBy:  shared.ActorFromContext(ctx),
					CreatedAt:  now,
					UpdatedAt:  now,
				}
				for _, l := range in.Lines {
					code := strings.TrimSpace(l.ItemCode)
					grLine := rates[code]
					ret.Lines = append(ret.Lines, ReturnLine{
						ItemCode:  code,
						ItemName:  grLine.ItemName,
						ReturnQty: l.ReturnQty,
						UnitRate:  grLine.UnitRate,
						Reason:    l.Reason,
					})
				}
				computeReturnTotals(&ret)

				prior, err := tx.ReturnsByGR(ctx, gr.Code)
				if err != nil {
					return err
				}
				if err := checkReturnable(ret.Lines, returnable(gr, prior, "")); err != nil {
					return err
				}

				ret.Code, err = s.codes.Next(ctx, tx, sequence.KindPurchaseReturn)
				if err != nil {
					return err
				}
				return tx.InsertReturn(ctx, ret)
			})
			if err != nil {
				return PurchaseReturn{}, "", err
			}
			s.recordAudit(ctx, "return.create", workflow.KindReturn, ret.Code, map[string]any{"gr_code": ret.GRCode, "total": ret.TotalReturnAmount.String()})
			return ret, ret.Code, nil
		})
}

// GetPurchaseReturn loads a return by code.
func (s *Service) GetPurchaseReturn(ctx context.Context, code string) (PurchaseReturn, error) {
	ret, err := s.repo.GetReturn(ctx, code)
	return ret, notFound(err, workflow.KindReturn, code)
}

// ListPurchaseReturns returns a page of returns.
func (s *Service) ListPurchaseReturns(ctx context.Context, filter ListFilter) ([]PurchaseReturn, shared.Pagination, error) {
	if err := s.listStatus(workflow.KindReturn, &filter); err != nil {
		return nil, shared.Pagination{}, err
	}
	filter.Page, filter.PerPage = shared.NormalizePage(filter.Page, filter.PerPage)
	rows, total, err := s.repo.ListReturns(ctx, filter)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return rows, shared.NewPagination(filter.Page, filter.PerPage, total), nil
}

// transitionReturn locks the receipt then the return before applying fn.
func (s *Service) transitionReturn(ctx context.Context, code string, to Status, action string, fn func(context.Context, TxRepository, GoodsReceipt, *PurchaseReturn) error) (PurchaseReturn, error) {
	head, err := s.GetPurchaseReturn(ctx, code)
	if err != nil {
		return PurchaseReturn{}, err
	}
	var ret PurchaseReturn
	changed := false
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		gr, err := tx.LockGR(ctx, head.GRCode)
		if err != nil {
			return notFound(err, workflow.KindGR, head.GRCode)
		}
		ret, err = tx.LockReturn(ctx, code)
		if err != nil {
			return notFound(err, workflow.KindReturn, code)
		}
		if ret.Status == to {
			return nil
		}
		from := ret.Status
		if err := s.authorize(ctx, workflow.KindReturn, from, to); err != nil {
			return err
		}
		ret.Status = to
		ret.UpdatedAt = s.clock()
		if fn != nil {
			if err := fn(ctx, tx, gr, &ret); err != nil {
				return err
			}
		}
		changed = true
		return tx.UpdateReturn(ctx, ret)
	})
	if err != nil {
		return PurchaseReturn{}, err
	}
	if changed {
		s.recordAudit(ctx, action, workflow.KindReturn, ret.Code, map[string]any{"status": string(ret.Status), "debit_note": ret.DebitNoteNumber})
	}
	return ret, nil
}

func (s *Service) postReturnStock(ctx context.Context, tx TxRepository, ret PurchaseReturn, op inventory.Op, typ inventory.MovementType, remarks string) error {
	actor := shared.ActorFromContext(ctx)
	for _, i := range byItem(len(ret.Lines), func(i int) string { return ret.Lines[i].ItemCode }) {
		l := ret.Lines[i]
		m := inventory.Mutation{
			Op:        op,
			Type:      typ,
			ItemCode:  l.ItemCode,
			ItemName:  l.ItemName,
			Warehouse: ret.Warehouse,
			Quantity:  l.ReturnQty,
			Ref:       inventory.Reference{Kind: RefPurchaseReturn, Code: ret.Code},
			Remarks:   remarks,
			Actor:     actor,
		}
		if op == inventory.OpAdd {
			m.UnitCost = l.UnitRate
		}
		if _, err := s.ledger.Post(ctx, tx, m); err != nil {
			return err
		}
	}
	return nil
}

// ApprovePurchaseReturn issues the debit note and removes the returned stock.
// Fails with InsufficientStock when stock no longer covers a line.
func (s *Service) ApprovePurchaseReturn(ctx context.Context, code string) (PurchaseReturn, error) {
	return s.transitionReturn(ctx, code, workflow.Approved, "return.approve", func(ctx context.Context, tx TxRepository, gr GoodsReceipt, ret *PurchaseReturn) error {
		siblings, err := tx.ReturnsByGR(ctx, gr.Code)
		if err != nil {
			return err
		}
		if err := checkReturnable(ret.Lines, returnable(gr, siblings, ret.Code)); err != nil {
			return err
		}
		now := ret.UpdatedAt
		ret.ApprovedBy = shared.ActorFromContext(ctx)
		ret.ApprovedAt = ptrTime(now)
		ret.DebitNoteNumber = DebitNotePrefix + ret.Code
		ret.DebitNoteDate = ptrTime(now)
		return s.postReturnStock(ctx, tx, *ret, inventory.OpRemove, inventory.MovementReturn, "returned to "+ret.VendorCode)
	})
}

// ProcessPurchaseReturn marks an APPROVED return as settled with the supplier.
func (s *Service) ProcessPurchaseReturn(ctx context.Context, code string) (PurchaseReturn, error) {
	return s.transitionReturn(ctx, code, workflow.Processed, "return.process", func(_ context.Context, _ TxRepository, _ GoodsReceipt, ret *PurchaseReturn) error {
		ret.ProcessedAt = ptrTime(ret.UpdatedAt)
		return nil
	})
}

// CancelPurchaseReturn cancels a PENDING or APPROVED return. Stock removed on
// approval is received back.
func (s *Service) CancelPurchaseReturn(ctx context.Context, code string) (PurchaseReturn, error) {
	var wasApproved bool
	return s.transitionReturn(ctx, code, workflow.Cancelled, "return.cancel", func(ctx context.Context, tx TxRepository, _ GoodsReceipt, ret *PurchaseReturn) error {
		wasApproved = ret.ApprovedAt != nil
		ret.CancelledAt = ptrTime(ret.UpdatedAt)
		if !wasApproved {
			return nil
		}
		return s.postReturnStock(ctx, tx, *ret, inventory.OpAdd, inventory.MovementIn, "return cancelled")
	})
}
