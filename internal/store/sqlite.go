package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"autotrader/internal/core"
)

// SQLiteStore implements core.Store on SQLite. Claim exclusivity comes from a
// write transaction plus a conditional UPDATE on status.
type SQLiteStore struct {
	db    *sql.DB
	clock core.Clock
}

const schema = `
CREATE TABLE IF NOT EXISTS work_items (
	id              TEXT PRIMARY KEY,
	type            TEXT NOT NULL,
	payload         TEXT NOT NULL DEFAULT '{}',
	idempotency_key TEXT,
	status          TEXT NOT NULL,
	attempts        INTEGER NOT NULL DEFAULT 0,
	max_attempts    INTEGER NOT NULL DEFAULT 3,
	next_run_at     INTEGER NOT NULL,
	last_error      TEXT NOT NULL DEFAULT '',
	result          TEXT NOT NULL DEFAULT '',
	broker_order_id TEXT NOT NULL DEFAULT '',
	created_at      INTEGER NOT NULL,
	updated_at      INTEGER NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_work_items_idem_key ON work_items(idempotency_key) WHERE idempotency_key IS NOT NULL AND idempotency_key != '';
CREATE INDEX IF NOT EXISTS idx_work_items_claim ON work_items(status, next_run_at);

CREATE TABLE IF NOT EXISTS work_item_runs (
	id             TEXT PRIMARY KEY,
	work_item_id   TEXT NOT NULL,
	attempt_number INTEGER NOT NULL,
	status         TEXT NOT NULL,
	started_at     INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_work_item_runs_item ON work_item_runs(work_item_id);

CREATE TABLE IF NOT EXISTS orders (
	id               TEXT PRIMARY KEY,
	broker_order_id  TEXT NOT NULL UNIQUE,
	client_order_id  TEXT NOT NULL DEFAULT '',
	symbol           TEXT NOT NULL,
	side             TEXT NOT NULL,
	type             TEXT NOT NULL,
	time_in_force    TEXT NOT NULL DEFAULT '',
	qty              TEXT NOT NULL DEFAULT '0',
	notional         TEXT NOT NULL DEFAULT '0',
	limit_price      TEXT,
	stop_price       TEXT,
	status           TEXT NOT NULL,
	submitted_at     INTEGER NOT NULL,
	updated_at       INTEGER NOT NULL,
	filled_at        INTEGER,
	filled_qty       TEXT NOT NULL DEFAULT '0',
	filled_avg_price TEXT,
	work_item_id     TEXT NOT NULL DEFAULT '',
	trace_id         TEXT NOT NULL DEFAULT '',
	raw_json         TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_orders_status ON orders(status);
CREATE INDEX IF NOT EXISTS idx_orders_client_id ON orders(client_order_id);

CREATE TABLE IF NOT EXISTS fills (
	id              TEXT PRIMARY KEY,
	broker_order_id TEXT NOT NULL,
	order_id        TEXT NOT NULL DEFAULT '',
	symbol          TEXT NOT NULL,
	side            TEXT NOT NULL,
	qty             TEXT NOT NULL,
	price           TEXT NOT NULL,
	occurred_at     INTEGER NOT NULL,
	raw_json        TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_fills_order ON fills(order_id);
CREATE INDEX IF NOT EXISTS idx_fills_broker_order ON fills(broker_order_id);
`

// NewSQLiteStore opens (and bootstraps) a SQLite-backed store
func NewSQLiteStore(dbPath string, clock core.Clock) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// WAL mode for crash recovery
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	// Single writer; claim transactions serialize here instead of failing busy
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to bootstrap schema: %w", err)
	}

	if clock == nil {
		clock = core.SystemClock{}
	}
	return &SQLiteStore{db: db, clock: clock}, nil
}

// Close closes the underlying database
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateWorkItem(ctx context.Context, item *core.WorkItem) (*core.WorkItem, error) {
	now := s.clock.Now()
	stored := *item
	if stored.ID == "" {
		stored.ID = uuid.NewString()
	}
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	stored.UpdatedAt = now
	if stored.Payload == nil {
		stored.Payload = json.RawMessage("{}")
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO work_items
			(id, type, payload, idempotency_key, status, attempts, max_attempts, next_run_at, last_error, result, broker_order_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		stored.ID, string(stored.Type), string(stored.Payload), stored.IdempotencyKey,
		string(stored.Status), stored.Attempts, stored.MaxAttempts, stored.NextRunAt.UnixNano(),
		stored.LastError, stored.Result, stored.BrokerOrderID,
		stored.CreatedAt.UnixNano(), stored.UpdatedAt.UnixNano())
	if err != nil {
		// Unique collision on the idempotency key returns the existing row unchanged
		if stored.IdempotencyKey != "" && isUniqueViolation(err) {
			existing, lookupErr := s.GetWorkItemByIdempotencyKey(ctx, stored.IdempotencyKey)
			if lookupErr != nil {
				return nil, lookupErr
			}
			if existing != nil {
				return existing, nil
			}
		}
		return nil, fmt.Errorf("failed to insert work item: %w", err)
	}
	return &stored, nil
}

func (s *SQLiteStore) GetWorkItem(ctx context.Context, id string) (*core.WorkItem, error) {
	row := s.db.QueryRowContext(ctx, workItemSelect+` WHERE id = ?`, id)
	item, err := scanWorkItem(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return item, err
}

func (s *SQLiteStore) GetWorkItemByIdempotencyKey(ctx context.Context, key string) (*core.WorkItem, error) {
	row := s.db.QueryRowContext(ctx, workItemSelect+` WHERE idempotency_key = ?`, key)
	item, err := scanWorkItem(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return item, err
}

// ClaimNextWorkItem atomically transitions the earliest due PENDING item to
// CLAIMED. The conditional UPDATE inside a write transaction guarantees no two
// callers observe the same item.
func (s *SQLiteStore) ClaimNextWorkItem(ctx context.Context, types []core.WorkItemType) (*core.WorkItem, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	query := workItemSelect + ` WHERE status = ? AND next_run_at <= ?`
	args := []interface{}{string(core.WorkItemPending), s.clock.Now().UnixNano()}
	if len(types) > 0 {
		placeholders := make([]string, len(types))
		for i, t := range types {
			placeholders[i] = "?"
			args = append(args, string(t))
		}
		query += ` AND type IN (` + strings.Join(placeholders, ",") + `)`
	}
	query += ` ORDER BY next_run_at ASC LIMIT 1`

	row := tx.QueryRowContext(ctx, query, args...)
	item, err := scanWorkItem(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE work_items SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		string(core.WorkItemClaimed), s.clock.Now().UnixNano(), item.ID, string(core.WorkItemPending))
	if err != nil {
		return nil, fmt.Errorf("failed to claim work item: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected != 1 {
		// Lost the race; caller polls again next cycle
		return nil, nil
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit claim: %w", err)
	}

	item.Status = core.WorkItemClaimed
	return item, nil
}

func (s *SQLiteStore) UpdateWorkItem(ctx context.Context, id string, patch core.WorkItemPatch) (*core.WorkItem, error) {
	var sets []string
	var args []interface{}

	if patch.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, string(*patch.Status))
	}
	if patch.Attempts != nil {
		sets = append(sets, "attempts = ?")
		args = append(args, *patch.Attempts)
	}
	if patch.NextRunAt != nil {
		sets = append(sets, "next_run_at = ?")
		args = append(args, patch.NextRunAt.UnixNano())
	}
	if patch.LastError != nil {
		sets = append(sets, "last_error = ?")
		args = append(args, *patch.LastError)
	}
	if patch.Result != nil {
		sets = append(sets, "result = ?")
		args = append(args, *patch.Result)
	}
	if patch.BrokerOrderID != nil {
		sets = append(sets, "broker_order_id = ?")
		args = append(args, *patch.BrokerOrderID)
	}

	sets = append(sets, "updated_at = ?")
	args = append(args, s.clock.Now().UnixNano())
	args = append(args, id)

	_, err := s.db.ExecContext(ctx,
		`UPDATE work_items SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to update work item: %w", err)
	}
	return s.GetWorkItem(ctx, id)
}

func (s *SQLiteStore) GetWorkItemCount(ctx context.Context, status core.WorkItemStatus, typ core.WorkItemType) (int, error) {
	query := `SELECT COUNT(*) FROM work_items WHERE 1=1`
	var args []interface{}
	if status != "" {
		query += ` AND status = ?`
		args = append(args, string(status))
	}
	if typ != "" {
		query += ` AND type = ?`
		args = append(args, string(typ))
	}

	var count int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count work items: %w", err)
	}
	return count, nil
}

func (s *SQLiteStore) GetWorkItems(ctx context.Context, limit int, status core.WorkItemStatus) ([]*core.WorkItem, error) {
	query := workItemSelect
	var args []interface{}
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY created_at DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list work items: %w", err)
	}
	defer rows.Close()

	var items []*core.WorkItem
	for rows.Next() {
		item, err := scanWorkItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (s *SQLiteStore) CreateWorkItemRun(ctx context.Context, run *core.WorkItemRun) error {
	stored := *run
	if stored.ID == "" {
		stored.ID = uuid.NewString()
	}
	if stored.StartedAt.IsZero() {
		stored.StartedAt = s.clock.Now()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO work_item_runs (id, work_item_id, attempt_number, status, started_at) VALUES (?, ?, ?, ?, ?)`,
		stored.ID, stored.WorkItemID, stored.AttemptNumber, stored.Status, stored.StartedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("failed to insert work item run: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetWorkItemRuns(ctx context.Context, workItemID string) ([]*core.WorkItemRun, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, work_item_id, attempt_number, status, started_at FROM work_item_runs WHERE work_item_id = ? ORDER BY started_at ASC`,
		workItemID)
	if err != nil {
		return nil, fmt.Errorf("failed to list work item runs: %w", err)
	}
	defer rows.Close()

	var runs []*core.WorkItemRun
	for rows.Next() {
		var run core.WorkItemRun
		var startedAt int64
		if err := rows.Scan(&run.ID, &run.WorkItemID, &run.AttemptNumber, &run.Status, &startedAt); err != nil {
			return nil, err
		}
		run.StartedAt = time.Unix(0, startedAt)
		runs = append(runs, &run)
	}
	return runs, rows.Err()
}

func (s *SQLiteStore) UpsertOrderByBrokerOrderID(ctx context.Context, brokerOrderID string, order *core.Order) (*core.Order, error) {
	existing, err := s.GetOrderByBrokerOrderID(ctx, brokerOrderID)
	if err != nil {
		return nil, err
	}

	stored := *order
	stored.BrokerOrderID = brokerOrderID
	stored.UpdatedAt = s.clock.Now()
	if existing != nil {
		stored.ID = existing.ID
		if stored.WorkItemID == "" {
			stored.WorkItemID = existing.WorkItemID
		}
		if stored.TraceID == "" {
			stored.TraceID = existing.TraceID
		}
	} else if stored.ID == "" {
		stored.ID = uuid.NewString()
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO orders
			(id, broker_order_id, client_order_id, symbol, side, type, time_in_force, qty, notional,
			 limit_price, stop_price, status, submitted_at, updated_at, filled_at, filled_qty,
			 filled_avg_price, work_item_id, trace_id, raw_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(broker_order_id) DO UPDATE SET
			client_order_id = excluded.client_order_id,
			symbol = excluded.symbol,
			side = excluded.side,
			type = excluded.type,
			time_in_force = excluded.time_in_force,
			qty = excluded.qty,
			notional = excluded.notional,
			limit_price = excluded.limit_price,
			stop_price = excluded.stop_price,
			status = excluded.status,
			updated_at = excluded.updated_at,
			filled_at = excluded.filled_at,
			filled_qty = excluded.filled_qty,
			filled_avg_price = excluded.filled_avg_price,
			work_item_id = excluded.work_item_id,
			trace_id = excluded.trace_id,
			raw_json = excluded.raw_json`,
		stored.ID, stored.BrokerOrderID, stored.ClientOrderID, stored.Symbol, string(stored.Side),
		string(stored.Type), string(stored.TimeInForce), stored.Qty.String(), stored.Notional.String(),
		decimalPtr(stored.LimitPrice), decimalPtr(stored.StopPrice), string(stored.Status),
		stored.SubmittedAt.UnixNano(), stored.UpdatedAt.UnixNano(), timePtr(stored.FilledAt),
		stored.FilledQty.String(), decimalPtr(stored.FilledAvgPrice), stored.WorkItemID,
		stored.TraceID, string(stored.RawJSON))
	if err != nil {
		return nil, fmt.Errorf("failed to upsert order: %w", err)
	}
	return s.GetOrderByBrokerOrderID(ctx, brokerOrderID)
}

func (s *SQLiteStore) GetOrderByBrokerOrderID(ctx context.Context, brokerOrderID string) (*core.Order, error) {
	row := s.db.QueryRowContext(ctx, orderSelect+` WHERE broker_order_id = ?`, brokerOrderID)
	order, err := scanOrder(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return order, err
}

func (s *SQLiteStore) GetOrderByID(ctx context.Context, id string) (*core.Order, error) {
	row := s.db.QueryRowContext(ctx, orderSelect+` WHERE id = ?`, id)
	order, err := scanOrder(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return order, err
}

func (s *SQLiteStore) GetOrdersByStatus(ctx context.Context, status core.OrderStatus) ([]*core.Order, error) {
	return s.queryOrders(ctx, orderSelect+` WHERE status = ? ORDER BY submitted_at DESC`, string(status))
}

func (s *SQLiteStore) GetRecentOrders(ctx context.Context, limit int) ([]*core.Order, error) {
	return s.queryOrders(ctx, orderSelect+` ORDER BY submitted_at DESC LIMIT ?`, limit)
}

func (s *SQLiteStore) queryOrders(ctx context.Context, query string, args ...interface{}) ([]*core.Order, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query orders: %w", err)
	}
	defer rows.Close()

	var orders []*core.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	return orders, rows.Err()
}

func (s *SQLiteStore) CreateFill(ctx context.Context, fill *core.Fill) error {
	stored := *fill
	if stored.ID == "" {
		stored.ID = uuid.NewString()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO fills (id, broker_order_id, order_id, symbol, side, qty, price, occurred_at, raw_json)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		stored.ID, stored.BrokerOrderID, stored.OrderID, stored.Symbol, string(stored.Side),
		stored.Qty.String(), stored.Price.String(), stored.OccurredAt.UnixNano(), string(stored.RawJSON))
	if err != nil {
		return fmt.Errorf("failed to insert fill: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetFillsByOrderID(ctx context.Context, orderID string) ([]*core.Fill, error) {
	return s.queryFills(ctx, fillSelect+` WHERE order_id = ?`, orderID)
}

func (s *SQLiteStore) GetFillsByBrokerOrderID(ctx context.Context, brokerOrderID string) ([]*core.Fill, error) {
	return s.queryFills(ctx, fillSelect+` WHERE broker_order_id = ?`, brokerOrderID)
}

func (s *SQLiteStore) GetFillsByOrderIDs(ctx context.Context, orderIDs []string) (map[string][]*core.Fill, error) {
	if len(orderIDs) == 0 {
		return map[string][]*core.Fill{}, nil
	}

	placeholders := make([]string, len(orderIDs))
	args := make([]interface{}, len(orderIDs))
	for i, id := range orderIDs {
		placeholders[i] = "?"
		args[i] = id
	}

	fills, err := s.queryFills(ctx, fillSelect+` WHERE order_id IN (`+strings.Join(placeholders, ",")+`)`, args...)
	if err != nil {
		return nil, err
	}

	result := make(map[string][]*core.Fill)
	for _, fill := range fills {
		result[fill.OrderID] = append(result[fill.OrderID], fill)
	}
	return result, nil
}

func (s *SQLiteStore) queryFills(ctx context.Context, query string, args ...interface{}) ([]*core.Fill, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query fills: %w", err)
	}
	defer rows.Close()

	var fills []*core.Fill
	for rows.Next() {
		var fill core.Fill
		var side string
		var qty, price, rawJSON string
		var occurredAt int64
		if err := rows.Scan(&fill.ID, &fill.BrokerOrderID, &fill.OrderID, &fill.Symbol, &side, &qty, &price, &occurredAt, &rawJSON); err != nil {
			return nil, err
		}
		fill.Side = core.OrderSide(side)
		fill.Qty, _ = decimal.NewFromString(qty)
		fill.Price, _ = decimal.NewFromString(price)
		fill.OccurredAt = time.Unix(0, occurredAt)
		fill.RawJSON = json.RawMessage(rawJSON)
		fills = append(fills, &fill)
	}
	return fills, rows.Err()
}

const workItemSelect = `SELECT id, type, payload, idempotency_key, status, attempts, max_attempts, next_run_at, last_error, result, broker_order_id, created_at, updated_at FROM work_items`

const orderSelect = `SELECT id, broker_order_id, client_order_id, symbol, side, type, time_in_force, qty, notional, limit_price, stop_price, status, submitted_at, updated_at, filled_at, filled_qty, filled_avg_price, work_item_id, trace_id, raw_json FROM orders`

const fillSelect = `SELECT id, broker_order_id, order_id, symbol, side, qty, price, occurred_at, raw_json FROM fills`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanWorkItem(row rowScanner) (*core.WorkItem, error) {
	var item core.WorkItem
	var typ, status, payload string
	var idemKey sql.NullString
	var nextRunAt, createdAt, updatedAt int64

	err := row.Scan(&item.ID, &typ, &payload, &idemKey, &status, &item.Attempts, &item.MaxAttempts,
		&nextRunAt, &item.LastError, &item.Result, &item.BrokerOrderID, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	item.Type = core.WorkItemType(typ)
	item.Status = core.WorkItemStatus(status)
	item.Payload = json.RawMessage(payload)
	item.IdempotencyKey = idemKey.String
	item.NextRunAt = time.Unix(0, nextRunAt)
	item.CreatedAt = time.Unix(0, createdAt)
	item.UpdatedAt = time.Unix(0, updatedAt)
	return &item, nil
}

func scanOrder(row rowScanner) (*core.Order, error) {
	var order core.Order
	var side, typ, tif, status, qty, notional, filledQty, rawJSON string
	var limitPrice, stopPrice, filledAvgPrice sql.NullString
	var submittedAt, updatedAt int64
	var filledAt sql.NullInt64

	err := row.Scan(&order.ID, &order.BrokerOrderID, &order.ClientOrderID, &order.Symbol, &side,
		&typ, &tif, &qty, &notional, &limitPrice, &stopPrice, &status, &submittedAt, &updatedAt,
		&filledAt, &filledQty, &filledAvgPrice, &order.WorkItemID, &order.TraceID, &rawJSON)
	if err != nil {
		return nil, err
	}

	order.Side = core.OrderSide(side)
	order.Type = core.OrderType(typ)
	order.TimeInForce = core.TimeInForce(tif)
	order.Status = core.OrderStatus(status)
	order.Qty, _ = decimal.NewFromString(qty)
	order.Notional, _ = decimal.NewFromString(notional)
	order.FilledQty, _ = decimal.NewFromString(filledQty)
	order.LimitPrice = scanDecimal(limitPrice)
	order.StopPrice = scanDecimal(stopPrice)
	order.FilledAvgPrice = scanDecimal(filledAvgPrice)
	order.SubmittedAt = time.Unix(0, submittedAt)
	order.UpdatedAt = time.Unix(0, updatedAt)
	if filledAt.Valid {
		t := time.Unix(0, filledAt.Int64)
		order.FilledAt = &t
	}
	order.RawJSON = json.RawMessage(rawJSON)
	return &order, nil
}

func scanDecimal(ns sql.NullString) *decimal.Decimal {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	d, err := decimal.NewFromString(ns.String)
	if err != nil {
		return nil
	}
	return &d
}

func decimalPtr(d *decimal.Decimal) interface{} {
	if d == nil {
		return nil
	}
	return d.String()
}

func timePtr(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UnixNano()
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
