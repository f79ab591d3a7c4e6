package tax

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
)

// Transaction statuses recorded per order.
const (
	StatusRecorded  = "recorded"
	StatusCommitted = "committed"
	StatusVoided    = "voided"
)

var (
	// ErrTransactionNotFound is returned when no transaction was recorded for the order.
	ErrTransactionNotFound = errors.New("tax transaction not found")
	// ErrTransactionExists is returned when a transaction already exists for the order.
	ErrTransactionExists = errors.New("tax transaction already exists for order")
)

// Transaction is the recorded outcome of a tax document exchange for one order.
type Transaction struct {
	ID        int64
	OrderID   int64
	DocCode   string
	DocType   string
	TotalTax  decimal.Decimal
	Status    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// DBTX is the subset of pgx used by the store. *pgxpool.Pool satisfies it.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store persists tax transactions and the raw request/response event log.
type Store struct {
	DB DBTX
}

// Create inserts a fresh transaction row. A second insert for the same order
// reports ErrTransactionExists.
func (s *Store) Create(ctx context.Context, tx Transaction) (Transaction, error) {
	err := s.DB.QueryRow(ctx, `
		INSERT INTO avatax_transactions (order_id, doc_code, doc_type, total_tax, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at`,
		tx.OrderID, tx.DocCode, tx.DocType, tx.TotalTax.String(), tx.Status).
		Scan(&tx.ID, &tx.CreatedAt, &tx.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Transaction{}, ErrTransactionExists
		}
		return Transaction{}, fmt.Errorf("create tax transaction: %w", err)
	}
	return tx, nil
}

// Upsert records the latest document exchange for the order, replacing any
// previous doc code, type, total and status.
func (s *Store) Upsert(ctx context.Context, tx Transaction) (Transaction, error) {
	err := s.DB.QueryRow(ctx, `
		INSERT INTO avatax_transactions (order_id, doc_code, doc_type, total_tax, status)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (order_id) DO UPDATE
		SET doc_code = EXCLUDED.doc_code,
		    doc_type = EXCLUDED.doc_type,
		    total_tax = EXCLUDED.total_tax,
		    status = EXCLUDED.status,
		    updated_at = now()
		RETURNING id, created_at, updated_at`,
		tx.OrderID, tx.DocCode, tx.DocType, tx.TotalTax.String(), tx.Status).
		Scan(&tx.ID, &tx.CreatedAt, &tx.UpdatedAt)
	if err != nil {
		return Transaction{}, fmt.Errorf("upsert tax transaction: %w", err)
	}
	return tx, nil
}

// GetByOrder returns the recorded transaction for the order.
func (s *Store) GetByOrder(ctx context.Context, orderID int64) (Transaction, error) {
	var (
		tx       Transaction
		totalTax string
	)
	err := s.DB.QueryRow(ctx, `
		SELECT id, order_id, doc_code, doc_type, total_tax::text, status, created_at, updated_at
		FROM avatax_transactions WHERE order_id = $1`, orderID).
		Scan(&tx.ID, &tx.OrderID, &tx.DocCode, &tx.DocType, &totalTax, &tx.Status, &tx.CreatedAt, &tx.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Transaction{}, ErrTransactionNotFound
		}
		return Transaction{}, fmt.Errorf("get tax transaction: %w", err)
	}
	if tx.TotalTax, err = decimal.NewFromString(totalTax); err != nil {
		return Transaction{}, fmt.Errorf("tax transaction %d total: %w", tx.ID, err)
	}
	return tx, nil
}

// SetStatus updates only the status of the order's transaction.
func (s *Store) SetStatus(ctx context.Context, orderID int64, status string) error {
	tag, err := s.DB.Exec(ctx, `
		UPDATE avatax_transactions SET status = $2, updated_at = now() WHERE order_id = $1`,
		orderID, status)
	if err != nil {
		return fmt.Errorf("set tax transaction status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrTransactionNotFound
	}
	return nil
}

// LogEvent appends a raw request/response pair to the audit log.
func (s *Store) LogEvent(ctx context.Context, orderID int64, op string, request, response []byte) error {
	_, err := s.DB.Exec(ctx, `
		INSERT INTO avatax_events (order_id, op, request, response)
		VALUES ($1, $2, $3, $4)`,
		orderID, op, request, response)
	if err != nil {
		return fmt.Errorf("log tax event: %w", err)
	}
	return nil
}
