package main

import (
	"database/sql"
	"log"
	"os"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
)

// Seeds a demo order with line items, a shipment, inventory units and a
// partially refunded payment, for exercising the tax endpoints locally.
func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on environment variables")
	}

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL is not set")
	}

	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		log.Fatalf("Failed to open DB: %v", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		log.Fatalf("Failed to ping DB: %v", err)
	}

	tx, err := db.Begin()
	if err != nil {
		log.Fatalf("Failed to begin transaction: %v", err)
	}
	defer tx.Rollback()

	var clothingCat int64
	if err := tx.QueryRow(
		`INSERT INTO tax_categories (name, tax_code) VALUES ('Clothing', 'PC030000') RETURNING id`,
	).Scan(&clothingCat); err != nil {
		log.Fatalf("Failed to insert tax category: %v", err)
	}
	if _, err := tx.Exec(
		`INSERT INTO tax_rates (tax_category_id, amount, included_in_price) VALUES ($1, 0.08, FALSE)`,
		clothingCat,
	); err != nil {
		log.Fatalf("Failed to insert tax rate: %v", err)
	}

	var orderID int64
	if err := tx.QueryRow(`
		INSERT INTO orders (number, total, item_total, ship_line1, ship_city, ship_region, ship_country, ship_postal_code)
		VALUES ('R100000001', 64.00, 50.00, '2 Main St', 'Harrisburg', 'PA', 'US', '17101')
		RETURNING id`,
	).Scan(&orderID); err != nil {
		log.Fatalf("Failed to insert order: %v", err)
	}

	var shirtLI, hatLI int64
	if err := tx.QueryRow(`
		INSERT INTO line_items (order_id, name, sku, quantity, discounted_amount, tax_category_id)
		VALUES ($1, 'Shirt', 'SHIRT-1', 2, 30.00, $2) RETURNING id`,
		orderID, clothingCat,
	).Scan(&shirtLI); err != nil {
		log.Fatalf("Failed to insert line item: %v", err)
	}
	if err := tx.QueryRow(`
		INSERT INTO line_items (order_id, name, sku, quantity, discounted_amount, tax_category_id)
		VALUES ($1, 'Hat', 'HAT-1', 1, 20.00, $2) RETURNING id`,
		orderID, clothingCat,
	).Scan(&hatLI); err != nil {
		log.Fatalf("Failed to insert line item: %v", err)
	}

	var shipmentID int64
	if err := tx.QueryRow(`
		INSERT INTO shipments (order_id, shipping_method_name, shipping_method_tax_code, stock_location_id, discounted_amount, tax_category_id)
		VALUES ($1, 'UPS Ground', 'FR000000', 1, 10.00, $2) RETURNING id`,
		orderID, clothingCat,
	).Scan(&shipmentID); err != nil {
		log.Fatalf("Failed to insert shipment: %v", err)
	}

	for _, li := range []int64{shirtLI, shirtLI, hatLI} {
		if _, err := tx.Exec(`
			INSERT INTO inventory_units (order_id, line_item_id, shipment_id) VALUES ($1, $2, $3)`,
			orderID, li, shipmentID,
		); err != nil {
			log.Fatalf("Failed to insert inventory unit: %v", err)
		}
	}

	if _, err := tx.Exec(`
		INSERT INTO adjustments (order_id, adjustable_type, source_type, amount)
		VALUES ($1, 'line_item', NULL, -5.00), ($1, 'order', 'tax_rate', 4.00)`,
		orderID,
	); err != nil {
		log.Fatalf("Failed to insert adjustments: %v", err)
	}

	var paymentID int64
	if err := tx.QueryRow(`
		INSERT INTO payments (order_id, amount) VALUES ($1, 64.00) RETURNING id`,
		orderID,
	).Scan(&paymentID); err != nil {
		log.Fatalf("Failed to insert payment: %v", err)
	}
	var refundID int64
	if err := tx.QueryRow(`
		INSERT INTO refunds (payment_id, amount, transaction_id) VALUES ($1, 20.00, 'txn-demo-1') RETURNING id`,
		paymentID,
	).Scan(&refundID); err != nil {
		log.Fatalf("Failed to insert refund: %v", err)
	}

	if err := tx.Commit(); err != nil {
		log.Fatalf("Failed to commit: %v", err)
	}

	log.Printf("Seeded order %d (refund %d)", orderID, refundID)
}
