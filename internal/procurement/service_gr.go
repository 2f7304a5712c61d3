package procurement

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/odyssey-erp/odyssey-procure/internal/inventory"
	"github.com/odyssey-erp/odyssey-procure/internal/procurement/workflow"
	"github.com/odyssey-erp/odyssey-procure/internal/sequence"
	"github.com/odyssey-erp/odyssey-procure/internal/shared"
)

// CreateGRInput describes a receipt against a purchase order.
type CreateGRInput struct {
	POCode         string
	Warehouse      string
	QualityCheck   bool
	InvoiceNumber  string
	InvoiceDate    *time.Time
	Notes          string
	Lines          []GRLineInput
	IdempotencyKey string
}

// GRLineInput describes received goods for one item.
type GRLineInput struct {
	ItemCode        string
	ReceivedQty     shared.Quantity
	AcceptedQty     *shared.Quantity
	RejectedQty     shared.Quantity
	RejectionReason string
}

func validateGRInput(in CreateGRInput) error {
	var fields []shared.FieldError
	if strings.TrimSpace(in.POCode) == "" {
		fields = append(fields, fieldErr("po_code", "is required"))
	}
	if len(in.Lines) == 0 {
		fields = append(fields, fieldErr("lines", "at least one line is required"))
	}
	seen := make(map[string]bool, len(in.Lines))
	anyReceived := false
	for i, l := range in.Lines {
		code := strings.TrimSpace(l.ItemCode)
		if code == "" {
			fields = append(fields, fieldErr(lineField(i, "item_code"), "is required"))
		} else if seen[code] {
			fields = append(fields, fieldErr(lineField(i, "item_code"), "duplicate item"))
		}
		seen[code] = true
		if l.ReceivedQty.IsNegative() {
			fields = append(fields, fieldErr(lineField(i, "received_qty"), "must not be negative"))
		}
		if l.ReceivedQty.IsPositive() {
			anyReceived = true
		}
		fields = checkQty(fields, lineField(i, "received_qty"), l.ReceivedQty)
		fields = checkQty(fields, lineField(i, "rejected_qty"), l.RejectedQty)
		accepted := l.ReceivedQty.Sub(l.RejectedQty)
		if l.AcceptedQty != nil {
			accepted = *l.AcceptedQty
			fields = checkQty(fields, lineField(i, "accepted_qty"), accepted)
		}
		if accepted.IsNegative() || l.RejectedQty.IsNegative() {
			fields = append(fields, fieldErr(lineField(i, "accepted_qty"), "accepted and rejected quantities must not be negative"))
		} else if accepted.Add(l.RejectedQty).GreaterThan(l.ReceivedQty) {
			fields = append(fields, fieldErr(lineField(i, "accepted_qty"), "accepted plus rejected exceeds received"))
		}
	}
	if len(in.Lines) > 0 && !anyReceived {
		fields = append(fields, fieldErr("lines", "at least one line must receive a positive quantity"))
	}
	if len(fields) > 0 {
		return shared.Validation("invalid goods receipt", fields...)
	}
	return nil
}

// CreateGoodsReceipt records a receipt, adds the received stock and moves the
// order to PARTIALLY_RECEIVED or FULLY_RECEIVED, all in one transaction.
func (s *Service) CreateGoodsReceipt(ctx context.Context, in CreateGRInput) (GoodsReceipt, bool, error) {
	if err := validateGRInput(in); err != nil {
		return GoodsReceipt{}, false, err
	}
	return idempotent(ctx, s, "goods_receipt", in.IdempotencyKey, s.GetGoodsReceipt,
		func(ctx context.Context) (GoodsReceipt, string, error) {
			var gr GoodsReceipt
			var po PurchaseOrder
			err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
				var err error
				po, err = tx.LockPO(ctx, strings.TrimSpace(in.POCode))
				if err != nil {
					return notFound(err, workflow.KindPO, in.POCode)
				}
				// Receiving is only legal where a PARTIALLY_RECEIVED edge exists.
				if err := s.authorize(ctx, workflow.KindPO, po.Status, workflow.PartiallyReceived); err != nil {
					return err
				}

				now := s.clock()
				actor := shared.ActorFromContext(ctx)
				gr = GoodsReceipt{
					Status:        workflow.Pending,
					POCode:        po.Code,
					VendorCode:    po.VendorCode,
					VendorName:    po.VendorName,
					Warehouse:     s.ledger.Warehouse(in.Warehouse),
					QualityCheck:  in.QualityCheck,
					InvoiceNumber: in.InvoiceNumber,
					InvoiceDate:   in.InvoiceDate,
					Notes:         in.Notes,
					ReceivedBy:    actor,
					ReceivedAt:    now,
					CreatedAt:     now,
					UpdatedAt:     now,
				}
				var fields []shared.FieldError
				for i, l := range in.Lines {
					code := strings.TrimSpace(l.ItemCode)
					idx, ok := po.Line(code)
					if !ok {
						fields = append(fields, fieldErr(lineField(i, "item_code"), "item is not on purchase order "+po.Code))
						continue
					}
					received := shared.RoundQty(l.ReceivedQty)
					poLine := &po.Lines[idx]
					if outstanding := poLine.Outstanding(); received.GreaterThan(outstanding) {
						return shared.Invariant(shared.CodeExceedsOutstanding, fmt.Sprintf(
							"%s: received %s exceeds outstanding %s", code, received.StringFixed(4), outstanding.StringFixed(4)))
					}
					accepted := received.Sub(l.RejectedQty)
					if l.AcceptedQty != nil {
						accepted = *l.AcceptedQty
					}
					poLine.ReceivedQty = poLine.ReceivedQty.Add(received)
					gr.Lines = append(gr.Lines, GRLine{
						ItemCode:        code,
						ItemName:        poLine.ItemName,
						Unit:            poLine.Unit,
						OrderedQty:      poLine.Quantity,
						ReceivedQty:     received,
						AcceptedQty:     accepted,
						RejectedQty:     l.RejectedQty,
						RejectionReason: l.RejectionReason,
						UnitRate:        poLine.UnitRate,
					})
				}
				if len(fields) > 0 {
					return shared.Validation("invalid goods receipt", fields...)
				}
				computeGRTotals(&gr)

				gr.Code, err = s.codes.Next(ctx, tx, sequence.KindGoodsReceipt)
				if err != nil {
					return err
				}

				for _, i := range byItem(len(gr.Lines), func(i int) string { return gr.Lines[i].ItemCode }) {
					l := gr.Lines[i]
					qty := l.StockQty(gr.QualityCheck)
					if !qty.IsPositive() {
						continue
					}
					if _, err := s.ledger.Post(ctx, tx, inventory.Mutation{
						Op:        inventory.OpAdd,
						Type:      inventory.MovementIn,
						ItemCode:  l.ItemCode,
						ItemName:  l.ItemName,
						Warehouse: gr.Warehouse,
						UOM:       l.Unit,
						Quantity:  qty,
						UnitCost:  l.UnitRate,
						Ref:       inventory.Reference{Kind: RefGoodsReceipt, Code: gr.Code},
						Remarks:   "receipt against " + po.Code,
						Actor:     actor,
					}); err != nil {
						return err
					}
				}

				next := workflow.PartiallyReceived
				if po.FullyReceived() {
					next = workflow.FullyReceived
					if err := s.authorize(ctx, workflow.KindPO, po.Status, next); err != nil {
						return err
					}
				}
				po.Status = next
				po.UpdatedAt = now
				if err := tx.InsertGR(ctx, gr); err != nil {
					return err
				}
				return tx.UpdatePO(ctx, po)
			})
			if err != nil {
				return GoodsReceipt{}, "", err
			}
			s.recordAudit(ctx, "gr.create", workflow.KindGR, gr.Code, map[string]any{
				"po_code":   po.Code,
				"po_status": string(po.Status),
				"received":  gr.TotalReceived.String(),
			})
			return gr, gr.Code, nil
		})
}

// GetGoodsReceipt loads a receipt by code.
func (s *Service) GetGoodsReceipt(ctx context.Context, code string) (GoodsReceipt, error) {
	gr, err := s.repo.GetGR(ctx, code)
	return gr, notFound(err, workflow.KindGR, code)
}

// ListGoodsReceipts returns receipts filtered by PO and status.
func (s *Service) ListGoodsReceipts(ctx context.Context, filter ListFilter) ([]GoodsReceipt, shared.Pagination, error) {
	if err := s.listStatus(workflow.KindGR, &filter); err != nil {
		return nil, shared.Pagination{}, err
	}
	filter.Page, filter.PerPage = shared.NormalizePage(filter.Page, filter.PerPage)
	rows, total, err := s.repo.ListGRs(ctx, filter)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return rows, shared.NewPagination(filter.Page, filter.PerPage, total), nil
}

// CompleteGoodsReceipt closes a receipt. When every receipt of the order is
// complete and all lines are received in full, the order becomes
// FULLY_RECEIVED.
func (s *Service) CompleteGoodsReceipt(ctx context.Context, code string) (GoodsReceipt, error) {
	head, err := s.GetGoodsReceipt(ctx, code)
	if err != nil {
		return GoodsReceipt{}, err
	}
	var gr GoodsReceipt
	changed := false
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		po, err := tx.LockPO(ctx, head.POCode)
		if err != nil {
			return notFound(err, workflow.KindPO, head.POCode)
		}
		gr, err = tx.LockGR(ctx, code)
		if err != nil {
			return notFound(err, workflow.KindGR, code)
		}
		if gr.Status == workflow.Completed {
			return nil
		}
		if err := s.authorize(ctx, workflow.KindGR, gr.Status, workflow.Completed); err != nil {
			return err
		}
		now := s.clock()
		gr.Status = workflow.Completed
		gr.CompletedBy = shared.ActorFromContext(ctx)
		gr.CompletedAt = ptrTime(now)
		gr.UpdatedAt = now
		if err := tx.UpdateGR(ctx, gr); err != nil {
			return err
		}
		changed = true

		if po.Status == workflow.FullyReceived || !po.FullyReceived() {
			return nil
		}
		siblings, err := tx.GRsByPO(ctx, po.Code)
		if err != nil {
			return err
		}
		for _, other := range siblings {
			if other.Code != gr.Code && other.Status != workflow.Completed {
				return nil
			}
		}
		if d := s.engine.Check(workflow.KindPO, po.Status, workflow.FullyReceived, permissions(ctx)); !d.Allowed {
			return nil
		}
		po.Status = workflow.FullyReceived
		po.UpdatedAt = now
		return tx.UpdatePO(ctx, po)
	})
	if err != nil {
		return GoodsReceipt{}, err
	}
	if changed {
		s.recordAudit(ctx, "gr.complete", workflow.KindGR, gr.Code, map[string]any{"po_code": gr.POCode})
	}
	return gr, nil
}

// receivedByItem sums accepted stock of a receipt per item.
func receivedByItem(gr GoodsReceipt) map[string]shared.Quantity {
	out := make(map[string]shared.Quantity, len(gr.Lines))
	for _, l := range gr.Lines {
		out[l.ItemCode] = out[l.ItemCode].Add(l.ReceivedQty)
	}
	return out
}
