package procurement

import (
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-procure/internal/shared"
)

var hundred = decimal.NewFromInt(100)

func computePRTotals(pr *PurchaseRequest) {
	pr.TotalItems = len(pr.Lines)
	pr.TotalQuantity = decimal.Zero
	pr.EstimatedTotal = decimal.Zero
	for i := range pr.Lines {
		l := &pr.Lines[i]
		l.Quantity = shared.RoundQty(l.Quantity)
		l.EstimatedRate = shared.RoundMoney(l.EstimatedRate)
		l.EstimatedTotal = shared.RoundMoney(l.Quantity.Mul(l.EstimatedRate))
		pr.TotalQuantity = pr.TotalQuantity.Add(l.Quantity)
		pr.EstimatedTotal = pr.EstimatedTotal.Add(l.EstimatedTotal)
	}
}

// computePOTotals recomputes every derived amount from the lines. Line
// totals are rounded once; header amounts are sums of exact line values
// rounded at the field, with tax taken as the remainder so that
// subtotal - discount + tax == total always holds.
func computePOTotals(po *PurchaseOrder) {
	gross, discount := decimal.Zero, decimal.Zero
	total := decimal.Zero
	for i := range po.Lines {
		l := &po.Lines[i]
		l.Quantity = shared.RoundQty(l.Quantity)
		l.UnitRate = shared.RoundMoney(l.UnitRate)
		l.Discount = shared.RoundMoney(l.Discount)
		lineGross := l.Quantity.Mul(l.UnitRate)
		net := lineGross.Sub(l.Discount)
		tax := net.Mul(l.TaxRate).Div(hundred)
		l.TaxAmount = shared.RoundMoney(tax)
		l.LineTotal = shared.RoundMoney(net.Add(tax))

		gross = gross.Add(lineGross)
		discount = discount.Add(l.Discount)
		total = total.Add(l.LineTotal)
	}
	po.Subtotal = shared.RoundMoney(gross)
	po.DiscountAmount = shared.RoundMoney(discount)
	po.TotalAmount = total
	po.TaxAmount = total.Sub(po.Subtotal).Add(po.DiscountAmount)
}

func computeGRTotals(gr *GoodsReceipt) {
	gr.TotalReceived = decimal.Zero
	for i := range gr.Lines {
		l := &gr.Lines[i]
		l.ReceivedQty = shared.RoundQty(l.ReceivedQty)
		l.AcceptedQty = shared.RoundQty(l.AcceptedQty)
		l.RejectedQty = shared.RoundQty(l.RejectedQty)
		gr.TotalReceived = gr.TotalReceived.Add(l.ReceivedQty)
	}
}

func computeReturnTotals(ret *PurchaseReturn) {
	ret.TotalReturnAmount = decimal.Zero
	for i := range ret.Lines {
		l := &ret.Lines[i]
		l.ReturnQty = shared.RoundQty(l.ReturnQty)
		l.LineTotal = shared.RoundMoney(l.ReturnQty.Mul(l.UnitRate))
		ret.TotalReturnAmount = ret.TotalReturnAmount.Add(l.LineTotal)
	}
}

// computeBillTotals ignores any caller supplied total.
func computeBillTotals(b *VendorBill) {
	b.Subtotal = shared.RoundMoney(b.Subtotal)
	b.DiscountAmount = shared.RoundMoney(b.DiscountAmount)
	net := b.Subtotal.Sub(b.DiscountAmount)
	b.TaxAmount = shared.RoundMoney(net.Mul(b.TaxRate).Div(hundred))
	b.TotalAmount = net.Add(b.TaxAmount)
	b.PendingAmount = b.TotalAmount.Sub(b.PaidAmount)
}
