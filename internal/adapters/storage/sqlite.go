package storage

// sqlite.go — append-only order journal.
//
// Telemetry, not state: the trading core never reads this back. One row per
// submitted order, one per terminal trade update. Pure-Go SQLite, no CGo.

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/matthewp131/algotrader/internal/domain"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"
)

func parseDecimal(s string) (decimal.Decimal, error) {
	return decimal.NewFromString(s)
}

const schema = `
CREATE TABLE IF NOT EXISTS orders (
    id              TEXT PRIMARY KEY,
    broker_order_id TEXT,
    user            TEXT NOT NULL,
    symbol          TEXT NOT NULL,
    side            TEXT NOT NULL,
    order_type      TEXT NOT NULL,
    quantity        TEXT NOT NULL,
    limit_price     TEXT,
    submitted_at    DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS trade_updates (
    id              INTEGER PRIMARY KEY AUTOINCREMENT,
    broker_order_id TEXT NOT NULL,
    event           TEXT NOT NULL,
    at              DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_orders_user    ON orders(user, submitted_at DESC);
CREATE INDEX IF NOT EXISTS idx_updates_order  ON trade_updates(broker_order_id);
`

// SQLiteJournal implements ports.Journal on a SQLite file (or ":memory:").
type SQLiteJournal struct {
	db *sql.DB
	mu sync.Mutex
}

// NewSQLiteJournal opens (or creates) the journal at the given path.
func NewSQLiteJournal(path string) (*SQLiteJournal, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage.NewSQLiteJournal: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1) // SQLite is single-writer
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage.NewSQLiteJournal: apply schema: %w", err)
	}
	return &SQLiteJournal{db: db}, nil
}

// RecordOrder persists a submitted order.
func (j *SQLiteJournal) RecordOrder(ctx context.Context, rec domain.OrderRecord) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	limitPrice := sql.NullString{}
	if rec.Type == domain.OrderTypeLimit {
		limitPrice = sql.NullString{String: rec.LimitPrice.String(), Valid: true}
	}
	submittedAt := rec.SubmittedAt
	if submittedAt.IsZero() {
		submittedAt = time.Now().UTC()
	}

	_, err := j.db.ExecContext(ctx, `
		INSERT INTO orders (id, broker_order_id, user, symbol, side, order_type, quantity, limit_price, submitted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.BrokerOrderID, rec.User, rec.Symbol,
		string(rec.Side), string(rec.Type), rec.Quantity.String(),
		limitPrice, submittedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("storage.RecordOrder: %w", err)
	}
	return nil
}

// RecordTradeUpdate persists a terminal trade-update event.
func (j *SQLiteJournal) RecordTradeUpdate(ctx context.Context, upd domain.TradeUpdate) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	at := upd.At
	if at.IsZero() {
		at = time.Now().UTC()
	}
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO trade_updates (broker_order_id, event, at) VALUES (?, ?, ?)`,
		upd.OrderID, string(upd.Event), at.UTC(),
	)
	if err != nil {
		return fmt.Errorf("storage.RecordTradeUpdate: %w", err)
	}
	return nil
}

// Orders returns the journaled orders for a user, newest first. Used by
// reporting and tests only.
func (j *SQLiteJournal) Orders(ctx context.Context, user string) ([]domain.OrderRecord, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	rows, err := j.db.QueryContext(ctx, `
		SELECT id, broker_order_id, user, symbol, side, order_type, quantity, COALESCE(limit_price, ''), submitted_at
		FROM orders WHERE user = ? ORDER BY submitted_at DESC`, user)
	if err != nil {
		return nil, fmt.Errorf("storage.Orders: %w", err)
	}
	defer rows.Close()

	var out []domain.OrderRecord
	for rows.Next() {
		var rec domain.OrderRecord
		var side, orderType, quantity, limitPrice string
		if err := rows.Scan(&rec.ID, &rec.BrokerOrderID, &rec.User, &rec.Symbol,
			&side, &orderType, &quantity, &limitPrice, &rec.SubmittedAt); err != nil {
			return nil, fmt.Errorf("storage.Orders: scan: %w", err)
		}
		rec.Side = domain.Side(side)
		rec.Type = domain.OrderType(orderType)
		if rec.Quantity, err = parseDecimal(quantity); err != nil {
			return nil, fmt.Errorf("storage.Orders: quantity: %w", err)
		}
		if limitPrice != "" {
			if rec.LimitPrice, err = parseDecimal(limitPrice); err != nil {
				return nil, fmt.Errorf("storage.Orders: limit_price: %w", err)
			}
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Close closes the database.
func (j *SQLiteJournal) Close() error {
	return j.db.Close()
}
