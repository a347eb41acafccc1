// Package storage implements the Ledger port on top of SQLite.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/dcaraballo/kalshimm/internal/domain"
	"github.com/dcaraballo/kalshimm/internal/ports"
)

const schema = `
CREATE TABLE IF NOT EXISTS pairs (
	pair_id         TEXT PRIMARY KEY,
	ticker          TEXT NOT NULL,
	asset           TEXT NOT NULL,
	target_spread   INTEGER NOT NULL,
	status          TEXT NOT NULL,
	created_at      TIMESTAMP NOT NULL,
	market_question TEXT
);

CREATE TABLE IF NOT EXISTS orders (
	order_id          TEXT PRIMARY KEY,
	pair_id           TEXT NOT NULL REFERENCES pairs(pair_id),
	ticker            TEXT NOT NULL,
	side              TEXT NOT NULL,
	price             INTEGER NOT NULL,
	size              INTEGER NOT NULL,
	status            TEXT NOT NULL,
	exchange_order_id TEXT,
	filled_size       INTEGER NOT NULL DEFAULT 0,
	created_at        TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_orders_pair ON orders(pair_id);
CREATE INDEX IF NOT EXISTS idx_orders_status ON orders(status);

CREATE TABLE IF NOT EXISTS pnl_log (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	pair_id        TEXT NOT NULL,
	ticker         TEXT NOT NULL,
	yes_fill_price INTEGER NOT NULL,
	no_fill_price  INTEGER NOT NULL,
	size           INTEGER NOT NULL,
	combined_cost  REAL NOT NULL,
	gross_profit   REAL NOT NULL,
	fees           REAL NOT NULL,
	realized_pnl   REAL NOT NULL,
	timestamp      TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS events (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	event_type   TEXT NOT NULL,
	details_json TEXT,
	timestamp    TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_events_time ON events(timestamp);
`

// SQLiteStorage is the Ledger port implementation. A single *sql.DB with
// MaxOpenConns(1) gives us a de facto single writer, matching the engine's
// single-threaded cooperative model.
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage opens (creating if absent) the database at dsn and
// applies the schema.
func NewSQLiteStorage(dsn string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("storage: open %s: %w", dsn, err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage: apply schema: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// InsertPair creates the pair row in OPEN. A unique-constraint violation on
// pair_id returns an error wrapping domain.ErrDuplicate and leaves the
// existing row as it was; callers treat that as success.
func (s *SQLiteStorage) InsertPair(ctx context.Context, p domain.Pair) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO pairs (pair_id, ticker, asset, target_spread, status, created_at, market_question)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.PairID, p.Ticker, p.Asset, p.TargetSpread, string(p.Status), p.CreatedAt, p.MarketQuestion)
	if isUniqueViolation(err) {
		return fmt.Errorf("storage: insert pair %s: %w", p.PairID, domain.ErrDuplicate)
	}
	if err != nil {
		return fmt.Errorf("storage: insert pair %s: %w", p.PairID, err)
	}
	return nil
}

// InsertOrder creates the leg row in OPEN.
func (s *SQLiteStorage) InsertOrder(ctx context.Context, l domain.Leg) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO orders (order_id, pair_id, ticker, side, price, size, status, exchange_order_id, filled_size, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		l.OrderID, l.PairID, l.Ticker, string(l.Side), l.PriceCents, l.Size, string(l.Status),
		l.ExchangeOrderID, l.FilledSize, time.Now().UTC())
	if isUniqueViolation(err) {
		return fmt.Errorf("storage: insert order %s: %w", l.OrderID, domain.ErrDuplicate)
	}
	if err != nil {
		return fmt.Errorf("storage: insert order %s: %w", l.OrderID, err)
	}
	return nil
}

// UpdatePairStatus is idempotent (setting the same status twice succeeds)
// and rejects any move domain.CanTransitionPair does not allow (spec.md
// §3, §4.1: update_pair_status must respect the lifecycle), wrapping the
// rejection in domain.ErrBrokenInvariant.
func (s *SQLiteStorage) UpdatePairStatus(ctx context.Context, pairID string, status domain.PairStatus) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage: update pair status %s: %w", pairID, err)
	}
	defer tx.Rollback()

	var current string
	if err := tx.QueryRowContext(ctx, `SELECT status FROM pairs WHERE pair_id = ?`, pairID).Scan(&current); err != nil {
		if err == sql.ErrNoRows {
			return fmt.Errorf("storage: update pair status %s: %w", pairID, domain.ErrBrokenInvariant)
		}
		return fmt.Errorf("storage: update pair status %s: %w", pairID, err)
	}
	if !domain.CanTransitionPair(domain.PairStatus(current), status) {
		return fmt.Errorf("storage: update pair status %s: %s -> %s: %w", pairID, current, status, domain.ErrBrokenInvariant)
	}

	if _, err := tx.ExecContext(ctx, `UPDATE pairs SET status = ? WHERE pair_id = ?`, string(status), pairID); err != nil {
		return fmt.Errorf("storage: update pair status %s: %w", pairID, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("storage: update pair status %s: %w", pairID, err)
	}
	return nil
}

// UpdateOrderStatus is idempotent and rejects any move
// domain.CanTransitionLeg does not allow, mirroring UpdatePairStatus.
func (s *SQLiteStorage) UpdateOrderStatus(ctx context.Context, orderID string, status domain.LegStatus, filledSize int) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage: update order status %s: %w", orderID, err)
	}
	defer tx.Rollback()

	var current string
	if err := tx.QueryRowContext(ctx, `SELECT status FROM orders WHERE order_id = ?`, orderID).Scan(&current); err != nil {
		if err == sql.ErrNoRows {
			return fmt.Errorf("storage: update order status %s: %w", orderID, domain.ErrBrokenInvariant)
		}
		return fmt.Errorf("storage: update order status %s: %w", orderID, err)
	}
	if !domain.CanTransitionLeg(domain.LegStatus(current), status) {
		return fmt.Errorf("storage: update order status %s: %s -> %s: %w", orderID, current, status, domain.ErrBrokenInvariant)
	}

	if _, err := tx.ExecContext(ctx, `UPDATE orders SET status = ?, filled_size = ? WHERE order_id = ?`,
		string(status), filledSize, orderID); err != nil {
		return fmt.Errorf("storage: update order status %s: %w", orderID, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("storage: update order status %s: %w", orderID, err)
	}
	return nil
}

// SetExchangeOrderID records the exchange's acknowledgement ID for a leg
// once placement succeeds.
func (s *SQLiteStorage) SetExchangeOrderID(ctx context.Context, orderID, exchangeOrderID string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE orders SET exchange_order_id = ? WHERE order_id = ?`, exchangeOrderID, orderID)
	if err != nil {
		return fmt.Errorf("storage: set exchange order id %s: %w", orderID, err)
	}
	return nil
}

func (s *SQLiteStorage) AppendPnL(ctx context.Context, r domain.PnLRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO pnl_log (pair_id, ticker, yes_fill_price, no_fill_price, size, combined_cost, gross_profit, fees, realized_pnl, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.PairID, r.Ticker, r.YesFillPrice, r.NoFillPrice, r.Size, r.CombinedCost, r.GrossProfit, r.Fees, r.RealizedPnL, r.Timestamp)
	if err != nil {
		return fmt.Errorf("storage: append pnl for %s: %w", r.PairID, err)
	}
	return nil
}

func (s *SQLiteStorage) AppendEvent(ctx context.Context, kind string, detailsJSON string) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO events (event_type, details_json, timestamp) VALUES (?, ?, ?)`,
		kind, detailsJSON, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("storage: append event %s: %w", kind, err)
	}
	return nil
}

func (s *SQLiteStorage) OpenPairs(ctx context.Context) ([]domain.Pair, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT pair_id, ticker, asset, target_spread, status, created_at, market_question FROM pairs WHERE status = ?`, string(domain.PairOpen))
	if err != nil {
		return nil, fmt.Errorf("storage: open pairs: %w", err)
	}
	defer rows.Close()

	var out []domain.Pair
	for rows.Next() {
		var p domain.Pair
		var status string
		if err := rows.Scan(&p.PairID, &p.Ticker, &p.Asset, &p.TargetSpread, &status, &p.CreatedAt, &p.MarketQuestion); err != nil {
			return nil, fmt.Errorf("storage: scan pair: %w", err)
		}
		p.Status = domain.PairStatus(status)
		out = append(out, p)
	}
	return out, rows.Err()
}

// OpenPairViews reconstitutes every OPEN pair with its two legs inline,
// matching the tagged-sum shape spec.md §9 recommends for in-memory use.
func (s *SQLiteStorage) OpenPairViews(ctx context.Context) ([]domain.PairView, error) {
	pairs, err := s.OpenPairs(ctx)
	if err != nil {
		return nil, err
	}

	views := make([]domain.PairView, 0, len(pairs))
	for _, p := range pairs {
		legs, err := s.OrdersForPair(ctx, p.PairID)
		if err != nil {
			return nil, err
		}
		v := domain.PairView{Pair: p}
		for i := range legs {
			leg := legs[i]
			switch leg.Side {
			case domain.SideYes:
				v.YesLeg = &leg
			case domain.SideNo:
				v.NoLeg = &leg
			}
		}
		views = append(views, v)
	}
	return views, nil
}

func (s *SQLiteStorage) OrdersForPair(ctx context.Context, pairID string) ([]domain.Leg, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT order_id, pair_id, ticker, side, price, size, status, exchange_order_id, filled_size
		FROM orders WHERE pair_id = ?`, pairID)
	if err != nil {
		return nil, fmt.Errorf("storage: orders for pair %s: %w", pairID, err)
	}
	defer rows.Close()
	return scanLegs(rows)
}

func (s *SQLiteStorage) OpenOrders(ctx context.Context) ([]domain.Leg, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT order_id, pair_id, ticker, side, price, size, status, exchange_order_id, filled_size
		FROM orders WHERE status = ?`, string(domain.LegOpen))
	if err != nil {
		return nil, fmt.Errorf("storage: open orders: %w", err)
	}
	defer rows.Close()
	return scanLegs(rows)
}

func (s *SQLiteStorage) GetOrder(ctx context.Context, orderID string) (domain.Leg, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT order_id, pair_id, ticker, side, price, size, status, exchange_order_id, filled_size
		FROM orders WHERE order_id = ?`, orderID)

	var l domain.Leg
	var side, status, ticker string
	var exchangeID sql.NullString
	if err := row.Scan(&l.OrderID, &l.PairID, &ticker, &side, &l.PriceCents, &l.Size, &status, &exchangeID, &l.FilledSize); err != nil {
		if err == sql.ErrNoRows {
			return domain.Leg{}, fmt.Errorf("storage: get order %s: %w", orderID, domain.ErrBrokenInvariant)
		}
		return domain.Leg{}, fmt.Errorf("storage: get order %s: %w", orderID, err)
	}
	l.Side = domain.Side(side)
	l.Status = domain.LegStatus(status)
	l.ExchangeOrderID = exchangeID.String
	l.Ticker = ticker
	return l, nil
}

func scanLegs(rows *sql.Rows) ([]domain.Leg, error) {
	var out []domain.Leg
	for rows.Next() {
		var l domain.Leg
		var side, status, ticker string
		var exchangeID sql.NullString
		if err := rows.Scan(&l.OrderID, &l.PairID, &ticker, &side, &l.PriceCents, &l.Size, &status, &exchangeID, &l.FilledSize); err != nil {
			return nil, fmt.Errorf("storage: scan leg: %w", err)
		}
		l.Side = domain.Side(side)
		l.Status = domain.LegStatus(status)
		l.ExchangeOrderID = exchangeID.String
		l.Ticker = ticker
		out = append(out, l)
	}
	return out, rows.Err()
}

func (s *SQLiteStorage) PnLSummary(ctx context.Context) (ports.PnLSummary, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(realized_pnl),0), COALESCE(SUM(fees),0), COALESCE(SUM(gross_profit),0)
		FROM pnl_log`)

	var sum ports.PnLSummary
	if err := row.Scan(&sum.Count, &sum.TotalPnL, &sum.TotalFees, &sum.TotalGross); err != nil {
		return ports.PnLSummary{}, fmt.Errorf("storage: pnl summary: %w", err)
	}
	if sum.Count > 0 {
		sum.AveragePnL = sum.TotalPnL / float64(sum.Count)
	}
	return sum, nil
}

func (s *SQLiteStorage) RecentPairs(ctx context.Context, limit int) ([]domain.Pair, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT pair_id, ticker, asset, target_spread, status, created_at, market_question
		FROM pairs ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("storage: recent pairs: %w", err)
	}
	defer rows.Close()

	var out []domain.Pair
	for rows.Next() {
		var p domain.Pair
		var status string
		if err := rows.Scan(&p.PairID, &p.Ticker, &p.Asset, &p.TargetSpread, &status, &p.CreatedAt, &p.MarketQuestion); err != nil {
			return nil, fmt.Errorf("storage: scan recent pair: %w", err)
		}
		p.Status = domain.PairStatus(status)
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *SQLiteStorage) RecentPnL(ctx context.Context, limit int) ([]domain.PnLRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT pair_id, ticker, yes_fill_price, no_fill_price, size, combined_cost, gross_profit, fees, realized_pnl, timestamp
		FROM pnl_log ORDER BY timestamp DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("storage: recent pnl: %w", err)
	}
	defer rows.Close()

	var out []domain.PnLRecord
	for rows.Next() {
		var r domain.PnLRecord
		if err := rows.Scan(&r.PairID, &r.Ticker, &r.YesFillPrice, &r.NoFillPrice, &r.Size, &r.CombinedCost, &r.GrossProfit, &r.Fees, &r.RealizedPnL, &r.Timestamp); err != nil {
			return nil, fmt.Errorf("storage: scan recent pnl: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLiteStorage) RecentEvents(ctx context.Context, limit int) ([]domain.EventRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT event_type, details_json, timestamp FROM events ORDER BY timestamp DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("storage: recent events: %w", err)
	}
	defer rows.Close()

	var out []domain.EventRecord
	for rows.Next() {
		var e domain.EventRecord
		if err := rows.Scan(&e.EventType, &e.DetailsJSON, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("storage: scan event: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *SQLiteStorage) CountByStatus(ctx context.Context, status domain.PairStatus) (int, error) {
	row := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM pairs WHERE status = ?`, string(status))
	var count int
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("storage: count by status %s: %w", status, err)
	}
	return count, nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	// modernc.org/sqlite reports constraint violations with this substring
	// in the driver error text; there is no typed sentinel to match on.
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}
