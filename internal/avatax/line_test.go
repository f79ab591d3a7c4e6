package avatax_test

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/storelens/avatax-bridge/internal/avatax"
	"github.com/storelens/avatax-bridge/internal/order"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func int64Ptr(v int64) *int64 { return &v }

func clothingCategory() *order.TaxCategory {
	return &order.TaxCategory{
		ID:      1,
		Name:    "Clothing",
		TaxCode: "PC030000",
		TaxRates: []order.TaxRate{
			{ID: 1, Amount: dec("0.08"), IncludedInPrice: false},
		},
	}
}

func saleOrder() *order.Order {
	return &order.Order{
		ID:        10,
		Number:    "R100000001",
		Total:     dec("64.00"),
		ItemTotal: dec("50.00"),
		LineItems: []order.LineItem{
			{
				ID:               1,
				Name:             "Shirt",
				SKU:              "SHIRT-1",
				Quantity:         2,
				DiscountedAmount: dec("30.00"),
				TaxCategory:      clothingCategory(),
				InventoryUnits: []order.InventoryUnit{
					{ID: 1, LineItemID: 1, ShipmentID: int64Ptr(7)},
				},
			},
			{
				ID:               2,
				Name:             "Hat",
				SKU:              "HAT-1",
				Quantity:         1,
				DiscountedAmount: dec("20.00"),
				TaxCategory:      clothingCategory(),
				InventoryUnits: []order.InventoryUnit{
					{ID: 2, LineItemID: 2, ShipmentID: int64Ptr(7)},
				},
			},
		},
		Shipments: []order.Shipment{
			{
				ID:                 7,
				ShippingMethodName: "UPS Ground",
				ShippingMethodTax:  "FR000000",
				StockLocationID:    int64Ptr(3),
				DiscountedAmount:   dec("10.00"),
				TaxCategory:        clothingCategory(),
			},
		},
	}
}

func TestBuildLinesOrderingAndNumbers(t *testing.T) {
	t.Parallel()

	o := saleOrder()
	lines := avatax.BuildLines(o, avatax.DocTypeSalesOrder, nil)

	require.Len(t, lines, 3)
	require.Equal(t, "1-LI", lines[0].LineNo)
	require.Equal(t, "2-LI", lines[1].LineNo)
	require.Equal(t, "7-FR", lines[2].LineNo)
}

func TestBuildLinesItemFields(t *testing.T) {
	t.Parallel()

	o := saleOrder()
	o.CustomerUsageType = "G"
	lines := avatax.BuildLines(o, avatax.DocTypeSalesInvoice, nil)

	shirt := lines[0]
	require.Equal(t, "Shirt", shirt.Description)
	require.Equal(t, "SHIRT-1", shirt.ItemCode)
	require.Equal(t, "PC030000", shirt.TaxCode)
	require.Equal(t, 2, shirt.Qty)
	require.Equal(t, 30.0, shirt.Amount)
	require.Equal(t, "3", shirt.OriginCode)
	require.Equal(t, "Dest", shirt.DestinationCode)
	require.Equal(t, "G", shirt.CustomerUsageType)
	require.NotNil(t, shirt.Discounted)
	require.True(t, *shirt.Discounted)
	require.NotNil(t, shirt.TaxIncluded)
	require.False(t, *shirt.TaxIncluded)
}

func TestBuildLinesShipmentFields(t *testing.T) {
	t.Parallel()

	o := saleOrder()
	lines := avatax.BuildLines(o, avatax.DocTypeSalesOrder, nil)

	freight := lines[2]
	require.Equal(t, "Shipping Charge", freight.Description)
	require.Equal(t, "UPS Ground", freight.ItemCode)
	require.Equal(t, "FR000000", freight.TaxCode)
	require.Equal(t, 1, freight.Qty)
	require.Equal(t, 10.0, freight.Amount)
	require.Equal(t, "3", freight.OriginCode)
	require.NotNil(t, freight.Discounted)
	require.False(t, *freight.Discounted)
}

func TestBuildLinesSkipsShipmentWithoutTaxCategory(t *testing.T) {
	t.Parallel()

	o := saleOrder()
	o.Shipments[0].TaxCategory = nil
	lines := avatax.BuildLines(o, avatax.DocTypeSalesOrder, nil)

	require.Len(t, lines, 2)
	for _, l := range lines {
		require.True(t, strings.HasSuffix(l.LineNo, "-LI"))
	}
}

func TestBuildLinesShipmentOriginEmptyWithoutStockLocation(t *testing.T) {
	t.Parallel()

	o := saleOrder()
	o.Shipments[0].StockLocationID = nil
	lines := avatax.BuildLines(o, avatax.DocTypeSalesOrder, nil)

	require.Equal(t, "", lines[2].OriginCode)
}

func TestBuildLinesDescriptionTruncated(t *testing.T) {
	t.Parallel()

	o := saleOrder()
	o.LineItems[0].Name = strings.Repeat("x", 300)
	lines := avatax.BuildLines(o, avatax.DocTypeSalesOrder, nil)

	require.Equal(t, 256, len([]rune(lines[0].Description)))
}

func TestBuildLinesDescriptionTruncatedByRunes(t *testing.T) {
	t.Parallel()

	o := saleOrder()
	o.LineItems[0].Name = strings.Repeat("é", 300)
	lines := avatax.BuildLines(o, avatax.DocTypeSalesOrder, nil)

	require.Equal(t, 256, len([]rune(lines[0].Description)))
	require.True(t, strings.HasPrefix(o.LineItems[0].Name, lines[0].Description))
}

func TestBuildLinesTaxCodeFallback(t *testing.T) {
	t.Parallel()

	o := saleOrder()
	o.LineItems[0].TaxCategory = nil
	o.LineItems[1].TaxCategory.TaxCode = ""
	lines := avatax.BuildLines(o, avatax.DocTypeSalesOrder, nil)

	require.Equal(t, "P0000000", lines[0].TaxCode)
	require.Equal(t, "P0000000", lines[1].TaxCode)
}

func TestBuildLinesOriginFallback(t *testing.T) {
	t.Parallel()

	o := saleOrder()
	// No inventory units at all.
	o.LineItems[0].InventoryUnits = nil
	// First unit not yet assigned to a shipment.
	o.LineItems[1].InventoryUnits[0].ShipmentID = nil
	lines := avatax.BuildLines(o, avatax.DocTypeSalesOrder, nil)

	require.Equal(t, "Orig", lines[0].OriginCode)
	require.Equal(t, "Orig", lines[1].OriginCode)
}

func TestBuildLinesOriginFallbackWhenShipmentLacksStockLocation(t *testing.T) {
	t.Parallel()

	o := saleOrder()
	o.Shipments[0].StockLocationID = nil
	lines := avatax.BuildLines(o, avatax.DocTypeSalesOrder, nil)

	require.Equal(t, "Orig", lines[0].OriginCode)
}

func TestBuildLinesTaxIncludedUsesFirstRateOnly(t *testing.T) {
	t.Parallel()

	o := saleOrder()
	o.LineItems[0].TaxCategory.TaxRates = []order.TaxRate{
		{ID: 1, Amount: dec("0.05"), IncludedInPrice: true},
		{ID: 2, Amount: dec("0.03"), IncludedInPrice: false},
	}
	lines := avatax.BuildLines(o, avatax.DocTypeSalesOrder, nil)

	require.NotNil(t, lines[0].TaxIncluded)
	require.True(t, *lines[0].TaxIncluded)
}

func TestBuildLinesReturnNilRefund(t *testing.T) {
	t.Parallel()

	o := saleOrder()
	require.Nil(t, avatax.BuildLines(o, avatax.DocTypeReturnInvoice, nil))
}

func TestSimpleRefundFullPayment(t *testing.T) {
	t.Parallel()

	o := saleOrder()
	o.Adjustments = []order.Adjustment{
		{ID: 1, AdjustableType: "order", SourceType: "tax_rate", Amount: dec("4.00")},
	}
	refund := &order.Refund{
		ID:            5,
		TransactionID: "txn-1",
		Amount:        dec("60.00"),
		PaymentAmount: dec("64.00"),
	}
	lines := avatax.BuildLines(o, avatax.DocTypeReturnInvoice, refund)

	require.Len(t, lines, 1)
	l := lines[0]
	require.Equal(t, "5-RA", l.LineNo)
	require.Equal(t, "Refund", l.Description)
	require.Equal(t, "txn-1", l.ItemCode)
	require.Equal(t, 1, l.Qty)
	// Order total minus tax adjustments, negated: -(64 - 4).
	require.Equal(t, -60.0, l.Amount)
	require.Equal(t, "Orig", l.OriginCode)
	require.Equal(t, "Dest", l.DestinationCode)
	require.Nil(t, l.Discounted)
	require.Nil(t, l.TaxIncluded)
}

func TestSimpleRefundFallbackItemCode(t *testing.T) {
	t.Parallel()

	o := saleOrder()
	refund := &order.Refund{ID: 5, Amount: dec("10.00"), PaymentAmount: dec("64.00")}
	lines := avatax.BuildLines(o, avatax.DocTypeReturnInvoice, refund)

	require.Equal(t, "Refund", lines[0].ItemCode)
}

func TestSimpleRefundPartialPaymentProrated(t *testing.T) {
	t.Parallel()

	o := saleOrder()
	o.Adjustments = []order.Adjustment{
		{ID: 1, AdjustableType: "line_item", Amount: dec("25.00")},
		{ID: 2, AdjustableType: "order", SourceType: "tax_rate", Amount: dec("4.00")},
	}
	// Payment smaller than the refund triggers proration:
	// (25 / 50) * 20 = 10, negated.
	refund := &order.Refund{ID: 5, Amount: dec("20.00"), PaymentAmount: dec("15.00")}
	lines := avatax.BuildLines(o, avatax.DocTypeReturnInvoice, refund)

	require.Len(t, lines, 1)
	require.Equal(t, -10.0, lines[0].Amount)
}

func TestSimpleRefundPartialPaymentZeroItemTotal(t *testing.T) {
	t.Parallel()

	o := saleOrder()
	o.ItemTotal = decimal.Zero
	refund := &order.Refund{ID: 5, Amount: dec("20.00"), PaymentAmount: dec("15.00")}
	lines := avatax.BuildLines(o, avatax.DocTypeReturnInvoice, refund)

	require.Len(t, lines, 1)
	require.Equal(t, 0.0, lines[0].Amount)
}

func TestItemizedReturnGroupsByLineItem(t *testing.T) {
	t.Parallel()

	o := saleOrder()
	o.LineItems[0].InventoryUnits = []order.InventoryUnit{
		{ID: 1, LineItemID: 1, ShipmentID: int64Ptr(7)},
		{ID: 2, LineItemID: 1, ShipmentID: int64Ptr(7)},
	}
	refund := &order.Refund{
		ID:            5,
		Amount:        dec("20.00"),
		PaymentAmount: dec("64.00"),
		Reimbursement: &order.Reimbursement{
			ID: 9,
			ReturnItems: []order.ReturnItem{
				{ID: 1, InventoryUnitID: 1, PreTaxAmount: dec("10.00")},
				{ID: 2, InventoryUnitID: 2, PreTaxAmount: dec("10.00")},
			},
		},
	}
	lines := avatax.BuildLines(o, avatax.DocTypeReturnInvoice, refund)

	require.Len(t, lines, 1)
	l := lines[0]
	require.Equal(t, "1-LI", l.LineNo)
	require.Equal(t, "PC030000", l.TaxCode)
	require.Equal(t, 2, l.Qty)
	require.Equal(t, -20.0, l.Amount)
	require.Equal(t, "Shirt", l.Description)
	require.Equal(t, "SHIRT-1", l.ItemCode)
	require.Nil(t, l.Discounted)
	require.Nil(t, l.TaxIncluded)
}

func TestItemizedReturnCountsDistinctUnitsOnly(t *testing.T) {
	t.Parallel()

	o := saleOrder()
	refund := &order.Refund{
		ID:            5,
		Amount:        dec("20.00"),
		PaymentAmount: dec("64.00"),
		Reimbursement: &order.Reimbursement{
			ID: 9,
			ReturnItems: []order.ReturnItem{
				{ID: 1, InventoryUnitID: 1, PreTaxAmount: dec("10.00")},
				// Same unit returned twice: the amount accumulates but
				// quantity counts the unit once.
				{ID: 2, InventoryUnitID: 1, PreTaxAmount: dec("5.00")},
			},
		},
	}
	lines := avatax.BuildLines(o, avatax.DocTypeReturnInvoice, refund)

	require.Len(t, lines, 1)
	require.Equal(t, 1, lines[0].Qty)
	require.Equal(t, -15.0, lines[0].Amount)
}

func TestItemizedReturnSkipsUnknownInventoryUnits(t *testing.T) {
	t.Parallel()

	o := saleOrder()
	refund := &order.Refund{
		ID:            5,
		Amount:        dec("20.00"),
		PaymentAmount: dec("64.00"),
		Reimbursement: &order.Reimbursement{
			ID: 9,
			ReturnItems: []order.ReturnItem{
				{ID: 1, InventoryUnitID: 999, PreTaxAmount: dec("10.00")},
				{ID: 2, InventoryUnitID: 2, PreTaxAmount: dec("10.00")},
			},
		},
	}
	lines := avatax.BuildLines(o, avatax.DocTypeReturnInvoice, refund)

	require.Len(t, lines, 1)
	require.Equal(t, "2-LI", lines[0].LineNo)
}

func TestItemizedReturnMultipleLineItemsKeepFirstSeenOrder(t *testing.T) {
	t.Parallel()

	o := saleOrder()
	refund := &order.Refund{
		ID:            5,
		Amount:        dec("20.00"),
		PaymentAmount: dec("64.00"),
		Reimbursement: &order.Reimbursement{
			ID: 9,
			ReturnItems: []order.ReturnItem{
				{ID: 1, InventoryUnitID: 2, PreTaxAmount: dec("20.00")},
				{ID: 2, InventoryUnitID: 1, PreTaxAmount: dec("30.00")},
			},
		},
	}
	lines := avatax.BuildLines(o, avatax.DocTypeReturnInvoice, refund)

	require.Len(t, lines, 2)
	require.Equal(t, "2-LI", lines[0].LineNo)
	require.Equal(t, -20.0, lines[0].Amount)
	require.Equal(t, "1-LI", lines[1].LineNo)
	require.Equal(t, -30.0, lines[1].Amount)
}

func TestTransactionLineWireShape(t *testing.T) {
	t.Parallel()

	o := saleOrder()
	sale := avatax.BuildLines(o, avatax.DocTypeSalesOrder, nil)[0]
	payload, err := json.Marshal(sale)
	require.NoError(t, err)
	for _, field := range []string{"LineNo", "ItemCode", "Qty", "Amount", "OriginCode", "DestinationCode", "TaxCode", "Discounted", "TaxIncluded", "Description"} {
		require.Contains(t, string(payload), `"`+field+`"`)
	}

	refund := &order.Refund{ID: 5, Amount: dec("10.00"), PaymentAmount: dec("64.00")}
	ret := avatax.BuildLines(o, avatax.DocTypeReturnInvoice, refund)[0]
	payload, err = json.Marshal(ret)
	require.NoError(t, err)
	require.NotContains(t, string(payload), "Discounted")
	require.NotContains(t, string(payload), "TaxIncluded")
	require.NotContains(t, string(payload), "TaxCode")
}
