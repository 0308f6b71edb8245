// Package store provides data persistence implementations.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	apperrors "stocksage/internal/errors"
	"stocksage/internal/models"
)

// SQLiteStore implements DataStore using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// storageError tags a driver failure so callers can match ErrStorage;
// the underlying error stays in the chain.
func storageError(op string, err error) error {
	return fmt.Errorf("%w: failed to %s: %w", apperrors.ErrStorage, op, err)
}

// NewSQLiteStore creates a new SQLite-based ledger store.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, storageError("open database", err)
	}

	// Configure connection pool for concurrent access
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	store := &SQLiteStore{db: db}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, storageError("initialize schema", err)
	}

	return store, nil
}

// initSchema creates all required tables and indexes.
func (s *SQLiteStore) initSchema() error {
	schema := `
	-- User cash accounts
	CREATE TABLE IF NOT EXISTS users (
		user_id TEXT PRIMARY KEY,
		balance REAL NOT NULL DEFAULT 10000.00
	);

	-- Append-only trade log; holdings are always derived from it
	CREATE TABLE IF NOT EXISTS trades (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id TEXT NOT NULL,
		ticker TEXT NOT NULL,
		quantity INTEGER NOT NULL,
		price REAL NOT NULL,
		side TEXT NOT NULL,
		timestamp DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	-- Watchlist entries
	CREATE TABLE IF NOT EXISTS watchlist (
		user_id TEXT NOT NULL,
		ticker TEXT NOT NULL,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (user_id, ticker)
	);

	-- One-shot alerts; a new alert replaces the old one of the same kind
	CREATE TABLE IF NOT EXISTS alerts (
		user_id TEXT NOT NULL,
		ticker TEXT NOT NULL,
		kind TEXT NOT NULL,
		target REAL NOT NULL,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (user_id, ticker, kind)
	);

	-- Shared price cache tier, survives restarts
	CREATE TABLE IF NOT EXISTS price_cache (
		ticker TEXT PRIMARY KEY,
		price REAL NOT NULL,
		fetched_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_trades_user ON trades(user_id);
	CREATE INDEX IF NOT EXISTS idx_trades_user_ticker ON trades(user_id, ticker);
	CREATE INDEX IF NOT EXISTS idx_alerts_kind ON alerts(kind);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ============================================================================
// Users Methods
// ============================================================================

// EnsureUser creates a default balance row for the user if absent.
func (s *SQLiteStore) EnsureUser(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO users (user_id, balance) VALUES (?, ?)
	`, userID, models.DefaultBalance)
	if err != nil {
		return storageError("ensure user", err)
	}
	return nil
}

// GetBalance returns the user's cash balance, creating the account if needed.
func (s *SQLiteStore) GetBalance(ctx context.Context, userID string) (float64, error) {
	if err := s.EnsureUser(ctx, userID); err != nil {
		return 0, err
	}

	var balance float64
	err := s.db.QueryRowContext(ctx, `
		SELECT balance FROM users WHERE user_id = ?
	`, userID).Scan(&balance)
	if err != nil {
		return 0, storageError("get balance", err)
	}
	return balance, nil
}

// LookupBalance returns the balance of an existing user without
// creating the account. Unknown users map to ErrUserNotFound.
func (s *SQLiteStore) LookupBalance(ctx context.Context, userID string) (float64, error) {
	var balance float64
	err := s.db.QueryRowContext(ctx, `
		SELECT balance FROM users WHERE user_id = ?
	`, userID).Scan(&balance)
	if err == sql.ErrNoRows {
		return 0, apperrors.ErrUserNotFound
	}
	if err != nil {
		return 0, storageError("look up balance", err)
	}
	return balance, nil
}

// AdjustBalance applies a signed delta to the user's cash balance.
// A negative delta that would overdraw the account is rejected.
func (s *SQLiteStore) AdjustBalance(ctx context.Context, userID string, delta float64) error {
	if err := s.EnsureUser(ctx, userID); err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE users SET balance = balance + ? WHERE user_id = ? AND balance + ? >= 0
	`, delta, userID, delta)
	if err != nil {
		return storageError("adjust balance", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return apperrors.ErrInsufficientFunds
	}
	return nil
}

// Leaderboard returns user accounts ordered by balance descending.
func (s *SQLiteStore) Leaderboard(ctx context.Context, limit int) ([]models.UserAccount, error) {
	if limit <= 0 {
		limit = 10
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id, balance FROM users ORDER BY balance DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, storageError("query leaderboard", err)
	}
	defer rows.Close()

	var accounts []models.UserAccount
	for rows.Next() {
		var a models.UserAccount
		if err := rows.Scan(&a.UserID, &a.Balance); err != nil {
			return nil, storageError("scan account", err)
		}
		accounts = append(accounts, a)
	}

	return accounts, rows.Err()
}

// ============================================================================
// Trades Methods
// ============================================================================

// ExecuteTrade atomically applies the cash delta and appends the trade
// record. Either both writes commit or neither does.
func (s *SQLiteStore) ExecuteTrade(ctx context.Context, trade *models.Trade, cashDelta float64) error {
	return s.ExecuteTrades(ctx, trade.UserID, []*models.Trade{trade}, cashDelta)
}

// ExecuteTrades atomically applies one combined cash delta and appends a
// batch of trade records in a single transaction (used by sell-all).
func (s *SQLiteStore) ExecuteTrades(ctx context.Context, userID string, trades []*models.Trade, cashDelta float64) error {
	if err := s.EnsureUser(ctx, userID); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storageError("begin transaction", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		UPDATE users SET balance = balance + ? WHERE user_id = ? AND balance + ? >= 0
	`, cashDelta, userID, cashDelta)
	if err != nil {
		return storageError("update balance", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return apperrors.ErrInsufficientFunds
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO trades (user_id, ticker, quantity, price, side, timestamp)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return storageError("prepare statement", err)
	}
	defer stmt.Close()

	for _, t := range trades {
		ts := t.Timestamp
		if ts.IsZero() {
			ts = time.Now().UTC()
		}
		if _, err := stmt.ExecContext(ctx, t.UserID, t.Ticker, t.Quantity, t.Price, t.Side, ts); err != nil {
			return storageError("insert trade", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return storageError("commit transaction", err)
	}
	return nil
}

// GetTrades retrieves a user's trades, most recent first.
func (s *SQLiteStore) GetTrades(ctx context.Context, userID string, limit int) ([]models.Trade, error) {
	query := `
		SELECT id, user_id, ticker, quantity, price, side, timestamp
		FROM trades WHERE user_id = ? ORDER BY timestamp DESC, id DESC
	`
	args := []interface{}{userID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storageError("query trades", err)
	}
	defer rows.Close()

	var trades []models.Trade
	for rows.Next() {
		var t models.Trade
		if err := rows.Scan(&t.ID, &t.UserID, &t.Ticker, &t.Quantity, &t.Price, &t.Side, &t.Timestamp); err != nil {
			return nil, storageError("scan trade", err)
		}
		trades = append(trades, t)
	}

	return trades, rows.Err()
}

// GetHoldings derives current holdings from the full trade log. Net
// quantity is buys minus sells; the average buy price is computed over
// buy trades only, so sells never change the recorded cost per share.
func (s *SQLiteStore) GetHoldings(ctx context.Context, userID string) ([]models.Holding, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT ticker,
		       COALESCE(SUM(CASE WHEN side = 'buy' THEN quantity ELSE 0 END), 0) AS buy_qty,
		       COALESCE(SUM(CASE WHEN side = 'buy' THEN quantity * price ELSE 0 END), 0) AS buy_cost,
		       COALESCE(SUM(CASE WHEN side = 'sell' THEN quantity ELSE 0 END), 0) AS sell_qty
		FROM trades
		WHERE user_id = ?
		GROUP BY ticker
	`, userID)
	if err != nil {
		return nil, storageError("query holdings", err)
	}
	defer rows.Close()

	var holdings []models.Holding
	for rows.Next() {
		var ticker string
		var buyQty, sellQty int
		var buyCost float64
		if err := rows.Scan(&ticker, &buyQty, &buyCost, &sellQty); err != nil {
			return nil, storageError("scan holding", err)
		}

		netQty := buyQty - sellQty
		if netQty <= 0 {
			continue
		}

		avgBuyPrice := 0.0
		if buyQty > 0 {
			avgBuyPrice = buyCost / float64(buyQty)
		}

		holdings = append(holdings, models.Holding{
			Ticker:      ticker,
			NetQuantity: netQty,
			AvgBuyPrice: avgBuyPrice,
			CostBasis:   avgBuyPrice * float64(netQty),
		})
	}

	return holdings, rows.Err()
}

// NetQuantity returns shares currently held for a user+ticker pair,
// recomputed from the trade log.
func (s *SQLiteStore) NetQuantity(ctx context.Context, userID, ticker string) (int, error) {
	var net int
	err := s.db.QueryRowContext(ctx, `
		SELECT
			COALESCE((SELECT SUM(quantity) FROM trades WHERE user_id = ? AND ticker = ? AND side = 'buy'), 0) -
			COALESCE((SELECT SUM(quantity) FROM trades WHERE user_id = ? AND ticker = ? AND side = 'sell'), 0)
	`, userID, ticker, userID, ticker).Scan(&net)
	if err != nil {
		return 0, storageError("compute net quantity", err)
	}
	return net, nil
}

// ResetUser deletes the user's trades, alerts and watchlist and restores
// the default balance, all in one transaction.
func (s *SQLiteStore) ResetUser(ctx context.Context, userID string) error {
	if err := s.EnsureUser(ctx, userID); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storageError("begin transaction", err)
	}
	defer tx.Rollback()

	for _, q := range []string{
		"DELETE FROM trades WHERE user_id = ?",
		"DELETE FROM alerts WHERE user_id = ?",
		"DELETE FROM watchlist WHERE user_id = ?",
	} {
		if _, err := tx.ExecContext(ctx, q, userID); err != nil {
			return storageError("reset user", err)
		}
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE users SET balance = ? WHERE user_id = ?
	`, models.DefaultBalance, userID); err != nil {
		return storageError("reset balance", err)
	}

	if err := tx.Commit(); err != nil {
		return storageError("commit transaction", err)
	}
	return nil
}

// ============================================================================
// Watchlist Methods
// ============================================================================

// AddToWatchlist adds a ticker to a user's watchlist.
func (s *SQLiteStore) AddToWatchlist(ctx context.Context, userID, ticker string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO watchlist (user_id, ticker) VALUES (?, ?)
	`, userID, ticker)
	if err != nil {
		return storageError("add to watchlist", err)
	}
	return nil
}

// RemoveFromWatchlist removes a ticker from a user's watchlist.
func (s *SQLiteStore) RemoveFromWatchlist(ctx context.Context, userID, ticker string) error {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM watchlist WHERE user_id = ? AND ticker = ?
	`, userID, ticker)
	if err != nil {
		return storageError("remove from watchlist", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return apperrors.ErrWatchlistNotFound
	}
	return nil
}

// GetWatchlist retrieves a user's watchlist tickers.
func (s *SQLiteStore) GetWatchlist(ctx context.Context, userID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT ticker FROM watchlist WHERE user_id = ? ORDER BY created_at ASC
	`, userID)
	if err != nil {
		return nil, storageError("query watchlist", err)
	}
	defer rows.Close()

	var tickers []string
	for rows.Next() {
		var ticker string
		if err := rows.Scan(&ticker); err != nil {
			return nil, storageError("scan ticker", err)
		}
		tickers = append(tickers, ticker)
	}

	return tickers, rows.Err()
}

// ClearWatchlist removes all of a user's watchlist entries.
func (s *SQLiteStore) ClearWatchlist(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM watchlist WHERE user_id = ?
	`, userID)
	if err != nil {
		return storageError("clear watchlist", err)
	}
	return nil
}

// ============================================================================
// Alerts Methods
// ============================================================================

// SaveAlert stores an alert, replacing any existing alert for the same
// (user, ticker, kind).
func (s *SQLiteStore) SaveAlert(ctx context.Context, alert *models.Alert) error {
	createdAt := alert.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO alerts (user_id, ticker, kind, target, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, alert.UserID, alert.Ticker, alert.Kind, alert.Target, createdAt)
	if err != nil {
		return storageError("save alert", err)
	}
	return nil
}

// GetUserAlerts retrieves all of a user's alerts.
func (s *SQLiteStore) GetUserAlerts(ctx context.Context, userID string) ([]models.Alert, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id, ticker, kind, target, created_at
		FROM alerts WHERE user_id = ? ORDER BY created_at ASC
	`, userID)
	if err != nil {
		return nil, storageError("query alerts", err)
	}
	defer rows.Close()

	return scanAlerts(rows)
}

// GetActiveAlerts retrieves all alerts of the given kind across users.
func (s *SQLiteStore) GetActiveAlerts(ctx context.Context, kind models.AlertKind) ([]models.Alert, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id, ticker, kind, target, created_at
		FROM alerts WHERE kind = ? ORDER BY created_at ASC
	`, kind)
	if err != nil {
		return nil, storageError("query alerts", err)
	}
	defer rows.Close()

	return scanAlerts(rows)
}

func scanAlerts(rows *sql.Rows) ([]models.Alert, error) {
	var alerts []models.Alert
	for rows.Next() {
		var a models.Alert
		if err := rows.Scan(&a.UserID, &a.Ticker, &a.Kind, &a.Target, &a.CreatedAt); err != nil {
			return nil, storageError("scan alert", err)
		}
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}

// DeleteAlert removes an alert. Fire-once semantics: the scheduler calls
// this right after notifying.
func (s *SQLiteStore) DeleteAlert(ctx context.Context, userID, ticker string, kind models.AlertKind) error {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM alerts WHERE user_id = ? AND ticker = ? AND kind = ?
	`, userID, ticker, kind)
	if err != nil {
		return storageError("delete alert", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return apperrors.ErrAlertNotFound
	}
	return nil
}

// ============================================================================
// Price Cache Methods
// ============================================================================

// GetCachedPrice returns the shared cache row for a ticker, or nil when
// no price has ever been stored.
func (s *SQLiteStore) GetCachedPrice(ctx context.Context, ticker string) (*models.CachedPrice, error) {
	var cp models.CachedPrice
	err := s.db.QueryRowContext(ctx, `
		SELECT ticker, price, fetched_at FROM price_cache WHERE ticker = ?
	`, ticker).Scan(&cp.Ticker, &cp.Price, &cp.FetchedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, storageError("get cached price", err)
	}
	return &cp, nil
}

// PutCachedPrice upserts the shared cache row for a ticker.
func (s *SQLiteStore) PutCachedPrice(ctx context.Context, price *models.CachedPrice) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO price_cache (ticker, price, fetched_at)
		VALUES (?, ?, ?)
	`, price.Ticker, price.Price, price.FetchedAt)
	if err != nil {
		return storageError("put cached price", err)
	}
	return nil
}

// Ensure SQLiteStore implements DataStore
var _ DataStore = (*SQLiteStore)(nil)
