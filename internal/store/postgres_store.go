package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/example/paypal-checkout/internal/checkout"
	_ "github.com/lib/pq"
)

// PostgresOrderStore persists orders in PostgreSQL.
//
// Expected schema:
//
//	CREATE TABLE orders (
//	    order_id               TEXT PRIMARY KEY,
//	    product_name           TEXT NOT NULL,
//	    product_currency       TEXT NOT NULL,
//	    product_price          TEXT NOT NULL,
//	    state                  TEXT NOT NULL,
//	    payer_email            TEXT NOT NULL DEFAULT '',
//	    fulfillment_dispatched BOOLEAN NOT NULL DEFAULT FALSE,
//	    refund_amount          TEXT NOT NULL DEFAULT '',
//	    refund_currency        TEXT NOT NULL DEFAULT '',
//	    created_at             TIMESTAMPTZ NOT NULL,
//	    completed_at           TIMESTAMPTZ,
//	    refunded_at            TIMESTAMPTZ
//	);
type PostgresOrderStore struct {
	db *sql.DB
}

func NewPostgresOrderStore(db *sql.DB) *PostgresOrderStore {
	return &PostgresOrderStore{db: db}
}

// Save upserts the order row keyed by the processor order ID.
func (s *PostgresOrderStore) Save(ctx context.Context, o *checkout.Order) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO orders (order_id, product_name, product_currency, product_price,
		                     state, payer_email, fulfillment_dispatched,
		                     refund_amount, refund_currency, created_at, completed_at, refunded_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		 ON CONFLICT (order_id) DO UPDATE SET
		     state                  = EXCLUDED.state,
		     payer_email            = EXCLUDED.payer_email,
		     fulfillment_dispatched = EXCLUDED.fulfillment_dispatched,
		     refund_amount          = EXCLUDED.refund_amount,
		     refund_currency        = EXCLUDED.refund_currency,
		     completed_at           = EXCLUDED.completed_at,
		     refunded_at            = EXCLUDED.refunded_at`,
		o.ID, o.Product.Name, o.Product.Currency, o.Product.Price,
		string(o.State), o.PayerEmail, o.FulfillmentDispatched,
		o.RefundAmount, o.RefundCurrency,
		o.CreatedAt, nullTime(o.CompletedAt), nullTime(o.RefundedAt),
	)
	return err
}

// Get loads a single order by ID.
func (s *PostgresOrderStore) Get(ctx context.Context, orderID string) (*checkout.Order, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT order_id, product_name, product_currency, product_price,
		        state, payer_email, fulfillment_dispatched,
		        refund_amount, refund_currency, created_at, completed_at, refunded_at
		 FROM orders WHERE order_id = $1`,
		orderID,
	)
	order, err := scanOrder(row)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return order, true, nil
}

// List returns all orders, newest first.
func (s *PostgresOrderStore) List(ctx context.Context) ([]*checkout.Order, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT order_id, product_name, product_currency, product_price,
		        state, payer_email, fulfillment_dispatched,
		        refund_amount, refund_currency, created_at, completed_at, refunded_at
		 FROM orders ORDER BY created_at DESC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []*checkout.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	return orders, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*checkout.Order, error) {
	var (
		o           checkout.Order
		state       string
		completedAt sql.NullTime
		refundedAt  sql.NullTime
	)
	err := row.Scan(&o.ID, &o.Product.Name, &o.Product.Currency, &o.Product.Price,
		&state, &o.PayerEmail, &o.FulfillmentDispatched,
		&o.RefundAmount, &o.RefundCurrency, &o.CreatedAt, &completedAt, &refundedAt)
	if err != nil {
		return nil, err
	}
	o.State = checkout.State(state)
	if completedAt.Valid {
		o.CompletedAt = completedAt.Time
	}
	if refundedAt.Valid {
		o.RefundedAt = refundedAt.Time
	}
	return &o, nil
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}

// ConnectPostgres establishes a connection to PostgreSQL.
func ConnectPostgres(connStr string) (*sql.DB, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	return db, nil
}
