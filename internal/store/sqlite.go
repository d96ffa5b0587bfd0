package store

import (
	"context"
	"database/sql"
	"fmt"

	"livetrade/internal/domain"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

// Compile-time interface checks.
var _ OrderJournal = (*SQLiteJournal)(nil)
var _ JournalReader = (*SQLiteJournal)(nil)

const createOrdersTable = `
CREATE TABLE IF NOT EXISTS orders (
	id           TEXT PRIMARY KEY,
	broker_id    TEXT NOT NULL,
	symbol       TEXT NOT NULL,
	action       TEXT NOT NULL,
	order_type   TEXT NOT NULL,
	qty          INTEGER NOT NULL,
	price        REAL NOT NULL,
	filled_qty   INTEGER NOT NULL,
	filled_price REAL NOT NULL,
	state        TEXT NOT NULL,
	desc         TEXT NOT NULL,
	created_at   INTEGER NOT NULL,
	updated_at   INTEGER NOT NULL
)`

// SQLiteJournal implements OrderJournal backed by a SQLite database.
type SQLiteJournal struct {
	db *sql.DB
}

// NewSQLiteJournal opens (or creates) a SQLite database at dbPath and
// ensures the orders table exists.
func NewSQLiteJournal(dbPath string) (*SQLiteJournal, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(createOrdersTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating orders table: %w", err)
	}
	return &SQLiteJournal{db: db}, nil
}

// Close closes the underlying database connection.
func (j *SQLiteJournal) Close() error {
	return j.db.Close()
}

// RecordOrder upserts the order row.
func (j *SQLiteJournal) RecordOrder(ctx context.Context, o *domain.Order) error {
	r := NewOrderRecord(o)
	_, err := j.db.ExecContext(ctx, `
INSERT OR REPLACE INTO orders
	(id, broker_id, symbol, action, order_type, qty, price, filled_qty, filled_price, state, desc, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.BrokerID, r.Symbol, r.Action, r.OrderType, r.Qty, r.Price,
		r.FilledQty, r.FilledPrice, r.State, r.Desc, r.CreatedAt, r.UpdatedAt)
	if err != nil {
		return fmt.Errorf("inserting order %s: %w", r.ID, err)
	}
	return nil
}

// ListOrders returns journaled orders in the given state, oldest first.
func (j *SQLiteJournal) ListOrders(ctx context.Context, state domain.OrderState) ([]OrderRecord, error) {
	rows, err := j.db.QueryContext(ctx, `
SELECT id, broker_id, symbol, action, order_type, qty, price, filled_qty, filled_price, state, desc, created_at, updated_at
FROM orders WHERE state = ? ORDER BY updated_at, id`, string(state))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []OrderRecord
	for rows.Next() {
		var r OrderRecord
		if err := rows.Scan(&r.ID, &r.BrokerID, &r.Symbol, &r.Action, &r.OrderType, &r.Qty, &r.Price,
			&r.FilledQty, &r.FilledPrice, &r.State, &r.Desc, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
