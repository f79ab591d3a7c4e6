package order

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

var (
	// ErrOrderNotFound is returned when no order exists for the requested id.
	ErrOrderNotFound = errors.New("order not found")
	// ErrRefundNotFound is returned when no refund exists for the requested id.
	ErrRefundNotFound = errors.New("refund not found")
)

// Querier is the subset of pgx used by the repository. *pgxpool.Pool satisfies it.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repo assembles read-only order aggregates from Postgres.
type Repo struct {
	DB Querier
}

// LoadOrder fetches the order and every association the line builder reads:
// line items with tax categories and rates, shipments, inventory units and
// adjustments. The aggregate is fully materialised; callers never touch the
// database again during line construction.
func (r *Repo) LoadOrder(ctx context.Context, id int64) (*Order, error) {
	if r == nil || r.DB == nil {
		return nil, errors.New("order repo not configured")
	}
	o := &Order{ID: id}
	var total, itemTotal string
	err := r.DB.QueryRow(ctx, `
		SELECT number, total::text, item_total::text, COALESCE(customer_usage_type, ''),
		       COALESCE(ship_line1, ''), COALESCE(ship_city, ''), COALESCE(ship_region, ''),
		       COALESCE(ship_country, ''), COALESCE(ship_postal_code, '')
		FROM orders WHERE id = $1`, id).
		Scan(&o.Number, &total, &itemTotal, &o.CustomerUsageType,
			&o.ShipAddress.Line1, &o.ShipAddress.City, &o.ShipAddress.Region,
			&o.ShipAddress.Country, &o.ShipAddress.PostalCode)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("load order %d: %w", id, err)
	}
	if o.Total, err = decimal.NewFromString(total); err != nil {
		return nil, fmt.Errorf("order %d total: %w", id, err)
	}
	if o.ItemTotal, err = decimal.NewFromString(itemTotal); err != nil {
		return nil, fmt.Errorf("order %d item_total: %w", id, err)
	}

	if o.LineItems, err = r.loadLineItems(ctx, id); err != nil {
		return nil, err
	}
	if o.Shipments, err = r.loadShipments(ctx, id); err != nil {
		return nil, err
	}
	if err = r.attachInventoryUnits(ctx, id, o); err != nil {
		return nil, err
	}
	if o.Adjustments, err = r.loadAdjustments(ctx, id); err != nil {
		return nil, err
	}
	return o, nil
}

func (r *Repo) loadLineItems(ctx context.Context, orderID int64) ([]LineItem, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT li.id, li.name, li.sku, li.quantity, li.discounted_amount::text,
		       tc.id, tc.name, tc.tax_code
		FROM line_items li
		LEFT JOIN tax_categories tc ON tc.id = li.tax_category_id
		WHERE li.order_id = $1
		ORDER BY li.id`, orderID)
	if err != nil {
		return nil, fmt.Errorf("load line items: %w", err)
	}
	defer rows.Close()

	var items []LineItem
	var categoryIDs []int64
	byCategory := make(map[int64][]*TaxCategory)
	for rows.Next() {
		var (
			li       LineItem
			amount   string
			tcID     *int64
			tcName   *string
			tcCode   *string
		)
		if err := rows.Scan(&li.ID, &li.Name, &li.SKU, &li.Quantity, &amount, &tcID, &tcName, &tcCode); err != nil {
			return nil, fmt.Errorf("scan line item: %w", err)
		}
		if li.DiscountedAmount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("line item %d amount: %w", li.ID, err)
		}
		if tcID != nil {
			li.TaxCategory = &TaxCategory{ID: *tcID, Name: deref(tcName), TaxCode: deref(tcCode)}
		}
		items = append(items, li)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate line items: %w", err)
	}
	for i := range items {
		if tc := items[i].TaxCategory; tc != nil {
			if len(byCategory[tc.ID]) == 0 {
				categoryIDs = append(categoryIDs, tc.ID)
			}
			byCategory[tc.ID] = append(byCategory[tc.ID], tc)
		}
	}
	if err := r.attachTaxRates(ctx, categoryIDs, byCategory); err != nil {
		return nil, err
	}
	return items, nil
}

func (r *Repo) loadShipments(ctx context.Context, orderID int64) ([]Shipment, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT s.id, s.shipping_method_name, COALESCE(s.shipping_method_tax_code, ''),
		       s.stock_location_id, s.discounted_amount::text,
		       tc.id, tc.name, tc.tax_code
		FROM shipments s
		LEFT JOIN tax_categories tc ON tc.id = s.tax_category_id
		WHERE s.order_id = $1
		ORDER BY s.id`, orderID)
	if err != nil {
		return nil, fmt.Errorf("load shipments: %w", err)
	}
	defer rows.Close()

	var shipments []Shipment
	var categoryIDs []int64
	byCategory := make(map[int64][]*TaxCategory)
	for rows.Next() {
		var (
			s      Shipment
			amount string
			tcID   *int64
			tcName *string
			tcCode *string
		)
		if err := rows.Scan(&s.ID, &s.ShippingMethodName, &s.ShippingMethodTax, &s.StockLocationID, &amount, &tcID, &tcName, &tcCode); err != nil {
			return nil, fmt.Errorf("scan shipment: %w", err)
		}
		if s.DiscountedAmount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("shipment %d amount: %w", s.ID, err)
		}
		if tcID != nil {
			s.TaxCategory = &TaxCategory{ID: *tcID, Name: deref(tcName), TaxCode: deref(tcCode)}
		}
		shipments = append(shipments, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate shipments: %w", err)
	}
	for i := range shipments {
		if tc := shipments[i].TaxCategory; tc != nil {
			if len(byCategory[tc.ID]) == 0 {
				categoryIDs = append(categoryIDs, tc.ID)
			}
			byCategory[tc.ID] = append(byCategory[tc.ID], tc)
		}
	}
	if err := r.attachTaxRates(ctx, categoryIDs, byCategory); err != nil {
		return nil, err
	}
	return shipments, nil
}

// attachTaxRates fills the ordered rate slice on every referenced category.
// Rate order matters: the builder's tax-included policy reads the first rate.
func (r *Repo) attachTaxRates(ctx context.Context, ids []int64, byCategory map[int64][]*TaxCategory) error {
	if len(ids) == 0 {
		return nil
	}
	rows, err := r.DB.Query(ctx, `
		SELECT id, tax_category_id, amount::text, included_in_price
		FROM tax_rates
		WHERE tax_category_id = ANY($1)
		ORDER BY id`, ids)
	if err != nil {
		return fmt.Errorf("load tax rates: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			rate   TaxRate
			tcID   int64
			amount string
		)
		if err := rows.Scan(&rate.ID, &tcID, &amount, &rate.IncludedInPrice); err != nil {
			return fmt.Errorf("scan tax rate: %w", err)
		}
		if rate.Amount, err = decimal.NewFromString(amount); err != nil {
			return fmt.Errorf("tax rate %d amount: %w", rate.ID, err)
		}
		for _, tc := range byCategory[tcID] {
			tc.TaxRates = append(tc.TaxRates, rate)
		}
	}
	return rows.Err()
}

func (r *Repo) attachInventoryUnits(ctx context.Context, orderID int64, o *Order) error {
	rows, err := r.DB.Query(ctx, `
		SELECT id, line_item_id, shipment_id
		FROM inventory_units
		WHERE order_id = $1
		ORDER BY id`, orderID)
	if err != nil {
		return fmt.Errorf("load inventory units: %w", err)
	}
	defer rows.Close()

	byLineItem := make(map[int64][]InventoryUnit)
	for rows.Next() {
		var iu InventoryUnit
		if err := rows.Scan(&iu.ID, &iu.LineItemID, &iu.ShipmentID); err != nil {
			return fmt.Errorf("scan inventory unit: %w", err)
		}
		byLineItem[iu.LineItemID] = append(byLineItem[iu.LineItemID], iu)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate inventory units: %w", err)
	}
	for i := range o.LineItems {
		o.LineItems[i].InventoryUnits = byLineItem[o.LineItems[i].ID]
	}
	return nil
}

func (r *Repo) loadAdjustments(ctx context.Context, orderID int64) ([]Adjustment, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT id, adjustable_type, COALESCE(source_type, ''), amount::text
		FROM adjustments
		WHERE order_id = $1
		ORDER BY id`, orderID)
	if err != nil {
		return nil, fmt.Errorf("load adjustments: %w", err)
	}
	defer rows.Close()

	var adjustments []Adjustment
	for rows.Next() {
		var (
			adj    Adjustment
			amount string
		)
		if err := rows.Scan(&adj.ID, &adj.AdjustableType, &adj.SourceType, &amount); err != nil {
			return nil, fmt.Errorf("scan adjustment: %w", err)
		}
		if adj.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("adjustment %d amount: %w", adj.ID, err)
		}
		adjustments = append(adjustments, adj)
	}
	return adjustments, rows.Err()
}

// LoadRefund fetches a refund with its payment amount and, when present, the
// reimbursement's customer-return items.
func (r *Repo) LoadRefund(ctx context.Context, id int64) (*Refund, error) {
	if r == nil || r.DB == nil {
		return nil, errors.New("order repo not configured")
	}
	refund := &Refund{ID: id}
	var (
		amount          string
		paymentAmount   string
		reimbursementID *int64
	)
	err := r.DB.QueryRow(ctx, `
		SELECT COALESCE(rf.transaction_id, ''), rf.amount::text, p.amount::text, rf.reimbursement_id
		FROM refunds rf
		JOIN payments p ON p.id = rf.payment_id
		WHERE rf.id = $1`, id).
		Scan(&refund.TransactionID, &amount, &paymentAmount, &reimbursementID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRefundNotFound
		}
		return nil, fmt.Errorf("load refund %d: %w", id, err)
	}
	if refund.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, fmt.Errorf("refund %d amount: %w", id, err)
	}
	if refund.PaymentAmount, err = decimal.NewFromString(paymentAmount); err != nil {
		return nil, fmt.Errorf("refund %d payment amount: %w", id, err)
	}
	if reimbursementID == nil {
		return refund, nil
	}

	reimbursement := &Reimbursement{ID: *reimbursementID}
	rows, err := r.DB.Query(ctx, `
		SELECT ri.id, ri.inventory_unit_id, ri.pre_tax_amount::text
		FROM return_items ri
		JOIN customer_returns cr ON cr.id = ri.customer_return_id
		WHERE cr.reimbursement_id = $1
		ORDER BY ri.id`, *reimbursementID)
	if err != nil {
		return nil, fmt.Errorf("load return items: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			ri     ReturnItem
			preTax string
		)
		if err := rows.Scan(&ri.ID, &ri.InventoryUnitID, &preTax); err != nil {
			return nil, fmt.Errorf("scan return item: %w", err)
		}
		if ri.PreTaxAmount, err = decimal.NewFromString(preTax); err != nil {
			return nil, fmt.Errorf("return item %d pre tax amount: %w", ri.ID, err)
		}
		reimbursement.ReturnItems = append(reimbursement.ReturnItems, ri)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate return items: %w", err)
	}
	refund.Reimbursement = reimbursement
	return refund, nil
}

// RefundOrderID resolves the order a refund belongs to.
func (r *Repo) RefundOrderID(ctx context.Context, refundID int64) (int64, error) {
	var orderID int64
	err := r.DB.QueryRow(ctx, `
		SELECT p.order_id FROM refunds rf JOIN payments p ON p.id = rf.payment_id WHERE rf.id = $1`,
		refundID).Scan(&orderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrRefundNotFound
		}
		return 0, fmt.Errorf("resolve refund %d order: %w", refundID, err)
	}
	return orderID, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
