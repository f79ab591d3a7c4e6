package avatax

import (
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/storelens/avatax-bridge/internal/order"
)

const (
	destinationCode = "Dest"
	originFallback  = "Orig"
	defaultTaxCode  = "P0000000"
	refundItemCode  = "Refund"

	maxDescriptionRunes = 256
)

// BuildLines produces the transaction line array for a GetTax request.
// Emission order is stable and part of the wire contract: line items first in
// order-item order, then shipments in shipment order. Return document types
// select the refund branch instead; refund may be nil for sale documents.
func BuildLines(o *order.Order, docType string, refund *order.Refund) []TransactionLine {
	if IsReturnDocType(docType) {
		return refundLines(o, refund)
	}
	lines := make([]TransactionLine, 0, len(o.LineItems)+len(o.Shipments))
	for i := range o.LineItems {
		lines = append(lines, itemLine(o, &o.LineItems[i]))
	}
	for i := range o.Shipments {
		// Shipments without a tax category contribute no line at all.
		if o.Shipments[i].TaxCategory == nil {
			continue
		}
		lines = append(lines, shipmentLine(o, &o.Shipments[i]))
	}
	return lines
}

func itemLine(o *order.Order, li *order.LineItem) TransactionLine {
	return TransactionLine{
		LineNo:            strconv.FormatInt(li.ID, 10) + "-LI",
		Description:       truncate(li.Name, maxDescriptionRunes),
		TaxCode:           taxCodeFor(li.TaxCategory),
		ItemCode:          li.SKU,
		Qty:               li.Quantity,
		Amount:            li.DiscountedAmount.InexactFloat64(),
		OriginCode:        stockLocation(o, li),
		DestinationCode:   destinationCode,
		CustomerUsageType: o.CustomerUsageType,
		Discounted:        boolPtr(true),
		TaxIncluded:       boolPtr(taxIncludedInPrice(li.TaxCategory)),
	}
}

func shipmentLine(o *order.Order, s *order.Shipment) TransactionLine {
	origin := ""
	if s.StockLocationID != nil {
		origin = strconv.FormatInt(*s.StockLocationID, 10)
	}
	return TransactionLine{
		LineNo:            strconv.FormatInt(s.ID, 10) + "-FR",
		Description:       "Shipping Charge",
		TaxCode:           s.ShippingMethodTax,
		ItemCode:          s.ShippingMethodName,
		Qty:               1,
		Amount:            s.DiscountedAmount.InexactFloat64(),
		OriginCode:        origin,
		DestinationCode:   destinationCode,
		CustomerUsageType: o.CustomerUsageType,
		Discounted:        boolPtr(false),
		TaxIncluded:       boolPtr(taxIncludedInPrice(s.TaxCategory)),
	}
}

func refundLines(o *order.Order, refund *order.Refund) []TransactionLine {
	if refund == nil {
		return nil
	}
	if refund.Reimbursement == nil {
		return []TransactionLine{refundLine(o, refund)}
	}
	return returnItemLines(o, refund.Reimbursement)
}

func refundLine(o *order.Order, refund *order.Refund) TransactionLine {
	itemCode := refund.TransactionID
	if itemCode == "" {
		itemCode = refundItemCode
	}
	return TransactionLine{
		LineNo:            strconv.FormatInt(refund.ID, 10) + "-RA",
		Description:       "Refund",
		ItemCode:          itemCode,
		Qty:               1,
		Amount:            returnAmount(o, refund).Neg().InexactFloat64(),
		OriginCode:        originFallback,
		DestinationCode:   destinationCode,
		CustomerUsageType: o.CustomerUsageType,
	}
}

// returnAmount computes the tax-inclusive amount attributed to a simple refund.
// A payment smaller than the refund signals a split payment: the refund is then
// prorated by the order's line-item adjustment rate. Otherwise the whole order
// total minus its tax adjustments is returned, leaving the tax service to
// re-derive tax from a gross figure.
func returnAmount(o *order.Order, refund *order.Refund) decimal.Decimal {
	if refund.PaymentAmount.LessThan(refund.Amount) {
		// Zero item totals produce a zero rate instead of dividing by zero.
		if o.ItemTotal.IsZero() {
			return decimal.Zero
		}
		rate := o.LineItemAdjustmentTotal().Div(o.ItemTotal)
		return rate.Mul(refund.Amount)
	}
	return o.Total.Sub(o.TaxAdjustmentTotal())
}

// returnItemLines collapses the reimbursement's return items into one line per
// originating line item. Quantity counts distinct inventory units; the amount
// sums pre-tax amounts across every matching return item.
func returnItemLines(o *order.Order, r *order.Reimbursement) []TransactionLine {
	units := make(map[int64]order.InventoryUnit)
	items := make(map[int64]*order.LineItem)
	for i := range o.LineItems {
		li := &o.LineItems[i]
		items[li.ID] = li
		for _, iu := range li.InventoryUnits {
			units[iu.ID] = iu
		}
	}

	var lineItemIDs []int64
	seenUnits := make(map[int64]struct{})
	qty := make(map[int64]int)
	amounts := make(map[int64]decimal.Decimal)
	for _, ri := range r.ReturnItems {
		iu, ok := units[ri.InventoryUnitID]
		if !ok {
			continue
		}
		liID := iu.LineItemID
		if _, ok := amounts[liID]; !ok {
			lineItemIDs = append(lineItemIDs, liID)
			amounts[liID] = decimal.Zero
		}
		amounts[liID] = amounts[liID].Add(ri.PreTaxAmount)
		if _, dup := seenUnits[iu.ID]; !dup {
			seenUnits[iu.ID] = struct{}{}
			qty[liID]++
		}
	}

	lines := make([]TransactionLine, 0, len(lineItemIDs))
	for _, liID := range lineItemIDs {
		li, ok := items[liID]
		if !ok {
			continue
		}
		lines = append(lines, returnItemLine(o, li, qty[liID], amounts[liID]))
	}
	return lines
}

func returnItemLine(o *order.Order, li *order.LineItem, quantity int, amount decimal.Decimal) TransactionLine {
	return TransactionLine{
		LineNo:            strconv.FormatInt(li.ID, 10) + "-LI",
		Description:       truncate(li.Name, maxDescriptionRunes),
		TaxCode:           taxCodeFor(li.TaxCategory),
		ItemCode:          li.SKU,
		Qty:               quantity,
		Amount:            amount.Neg().InexactFloat64(),
		OriginCode:        stockLocation(o, li),
		DestinationCode:   destinationCode,
		CustomerUsageType: o.CustomerUsageType,
	}
}

// stockLocation resolves the tax-origin code for a line item via its first
// inventory unit's shipment.
func stockLocation(o *order.Order, li *order.LineItem) string {
	if len(li.InventoryUnits) == 0 {
		return originFallback
	}
	first := li.InventoryUnits[0]
	if first.ShipmentID == nil {
		return originFallback
	}
	for i := range o.Shipments {
		s := &o.Shipments[i]
		if s.ID != *first.ShipmentID {
			continue
		}
		if s.StockLocationID == nil {
			return originFallback
		}
		return strconv.FormatInt(*s.StockLocationID, 10)
	}
	return originFallback
}

func taxCodeFor(tc *order.TaxCategory) string {
	if tc == nil || tc.TaxCode == "" {
		return defaultTaxCode
	}
	return tc.TaxCode
}

// taxIncludedInPrice consults only the first tax rate of the category. Multi
// rate categories are decided by their first entry; that is the contract with
// the tax service, not an oversight.
func taxIncludedInPrice(tc *order.TaxCategory) bool {
	if tc == nil || len(tc.TaxRates) == 0 {
		return false
	}
	return tc.TaxRates[0].IncludedInPrice
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}

func boolPtr(v bool) *bool {
	return &v
}
