package order

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Adjustment source kinds used when summing order adjustments.
const (
	AdjustableLineItem = "line_item"
	SourceTaxRate      = "tax_rate"
)

// TaxRate is a single rate attached to a tax category.
type TaxRate struct {
	ID              int64
	Amount          decimal.Decimal
	IncludedInPrice bool
}

// TaxCategory groups line items and shipments under an Avalara tax code.
type TaxCategory struct {
	ID       int64
	Name     string
	TaxCode  string
	TaxRates []TaxRate
}

// LineItem is a purchasable row on an order.
type LineItem struct {
	ID               int64
	Name             string
	SKU              string
	Quantity         int
	DiscountedAmount decimal.Decimal
	TaxCategory      *TaxCategory
	InventoryUnits   []InventoryUnit
}

// Shipment carries the freight portion of an order.
type Shipment struct {
	ID                 int64
	ShippingMethodName string
	ShippingMethodTax  string
	StockLocationID    *int64
	DiscountedAmount   decimal.Decimal
	TaxCategory        *TaxCategory
}

// InventoryUnit links a line item to the shipment that fulfils it.
type InventoryUnit struct {
	ID         int64
	LineItemID int64
	ShipmentID *int64
}

// Adjustment is a promotion or tax amount applied to part of an order.
type Adjustment struct {
	ID             int64
	AdjustableType string
	SourceType     string
	Amount         decimal.Decimal
}

// Address is the ship-to address used as the tax destination.
type Address struct {
	Line1      string
	City       string
	Region     string
	Country    string
	PostalCode string
}

// Order is the read-only aggregate the line builder consumes. It is assembled
// once by the repository and never mutated.
type Order struct {
	ID                int64
	Number            string
	Total             decimal.Decimal
	ItemTotal         decimal.Decimal
	CustomerUsageType string
	ShipAddress       Address
	LineItems         []LineItem
	Shipments         []Shipment
	Adjustments       []Adjustment
}

// LineItemAdjustmentTotal sums adjustments applied directly to line items.
func (o *Order) LineItemAdjustmentTotal() decimal.Decimal {
	total := decimal.Zero
	for _, adj := range o.Adjustments {
		if strings.EqualFold(adj.AdjustableType, AdjustableLineItem) {
			total = total.Add(adj.Amount)
		}
	}
	return total
}

// TaxAdjustmentTotal sums adjustments originating from tax rates.
func (o *Order) TaxAdjustmentTotal() decimal.Decimal {
	total := decimal.Zero
	for _, adj := range o.Adjustments {
		if strings.EqualFold(adj.SourceType, SourceTaxRate) {
			total = total.Add(adj.Amount)
		}
	}
	return total
}

// ReturnItem is a single returned unit on a customer return.
type ReturnItem struct {
	ID              int64
	InventoryUnitID int64
	PreTaxAmount    decimal.Decimal
}

// Reimbursement references the customer return being reimbursed.
type Reimbursement struct {
	ID          int64
	ReturnItems []ReturnItem
}

// Refund is an issued (or pending) refund against an order payment.
type Refund struct {
	ID            int64
	TransactionID string
	Amount        decimal.Decimal
	PaymentAmount decimal.Decimal
	Reimbursement *Reimbursement
}
