package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"algoportfolio/internal/domain"
	"algoportfolio/internal/ports"

	sqlite3 "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
)

// Store implements the ports.Store interface using SQLite.
// Quantities and prices are persisted as TEXT so the exact decimal values
// survive the round trip; REAL columns would reintroduce binary floats.
type Store struct {
	db     *sql.DB // nil on transaction-bound views
	q      querier
	logger ports.Logger
}

// querier is the subset of database/sql shared by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Config holds configuration for the SQLite store.
type Config struct {
	DBPath string
	Logger ports.Logger
}

// NewStore opens (creating if necessary) the SQLite database and ensures the
// schema exists.
func NewStore(cfg Config) (*Store, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for SQLite store")
	}
	dbPath := cfg.DBPath
	if dbPath == "" {
		dbPath = "./data/portfolio.db" // Default path
	}

	// Create data directory if it doesn't exist
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		err = fmt.Errorf("failed to create data directory '%s': %w", filepath.Dir(dbPath), err)
		cfg.Logger.Error(context.Background(), err, "SQLite store initialization failed")
		return nil, err
	}

	// WAL for concurrent readers, immediate transactions so writes take the
	// lock up front instead of failing mid-transaction on upgrade.
	dsn := dbPath + "?_journal_mode=WAL&_busy_timeout=5000&_txlock=immediate&_foreign_keys=on"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		err = fmt.Errorf("failed to open database at '%s': %w", dbPath, err)
		cfg.Logger.Error(context.Background(), err, "SQLite store initialization failed")
		return nil, err
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		db.Close()
		err = fmt.Errorf("failed to ping database at '%s': %w", dbPath, err)
		cfg.Logger.Error(context.Background(), err, "SQLite store initialization failed")
		return nil, err
	}

	// Set connection pool settings (important for SQLite)
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	cfg.Logger.Info(context.Background(), "SQLite database connection established", map[string]interface{}{"path": dbPath})

	store := &Store{db: db, q: db, logger: cfg.Logger}

	if err := store.initializeSchema(context.Background()); err != nil {
		db.Close()
		err = fmt.Errorf("failed to initialize database schema: %w", err)
		cfg.Logger.Error(context.Background(), err, "SQLite store initialization failed")
		return nil, err
	}
	cfg.Logger.Info(context.Background(), "Database schema initialized/verified")

	return store, nil
}

// initializeSchema creates tables if they don't exist.
func (s *Store) initializeSchema(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS accounts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		owner_id INTEGER NOT NULL UNIQUE,
		display_name TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS positions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		account_id INTEGER NOT NULL,
		symbol TEXT NOT NULL,
		quantity TEXT NOT NULL,
		avg_cost TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL,
		UNIQUE (account_id, symbol),
		FOREIGN KEY (account_id) REFERENCES accounts (id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS ledger_entries (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		position_id INTEGER NOT NULL,
		kind TEXT NOT NULL CHECK (kind IN ('BUY', 'SELL')),
		quantity TEXT NOT NULL,
		unit_price TEXT NOT NULL,
		timestamp TIMESTAMP NOT NULL,
		FOREIGN KEY (position_id) REFERENCES positions (id) ON DELETE CASCADE
	);
	-- Add indexes for common lookups
	CREATE INDEX IF NOT EXISTS idx_positions_account_id ON positions (account_id);
	CREATE INDEX IF NOT EXISTS idx_ledger_entries_position_id ON ledger_entries (position_id);
	`
	_, err := s.q.ExecContext(ctx, schema)
	if err != nil {
		return fmt.Errorf("failed to execute schema initialization: %w", err)
	}
	return nil
}

// Ping verifies the database connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		s.logger.Info(context.Background(), "Closing SQLite database connection")
		return s.db.Close()
	}
	return nil
}

// WithinTx runs fn against a Store view bound to a single transaction. The
// transaction commits when fn returns nil and rolls back otherwise. Calling
// WithinTx on an already transactional view reuses the open transaction.
func (s *Store) WithinTx(ctx context.Context, fn func(ports.Store) error) error {
	if s.db == nil {
		return fn(s)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	txStore := &Store{q: tx, logger: s.logger}
	if err := fn(txStore); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.logger.Error(ctx, rbErr, "Transaction rollback failed")
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// --- AccountRepository Implementation ---

// CreateAccount saves a new account for the given owner and returns it.
func (s *Store) CreateAccount(ctx context.Context, ownerID int64, displayName string) (*domain.Account, error) {
	if displayName == "" {
		displayName = domain.DefaultAccountName
	}
	createdAt := time.Now().UTC()

	const query = `INSERT INTO accounts (owner_id, display_name, created_at) VALUES (?, ?, ?)`
	result, err := s.q.ExecContext(ctx, query, ownerID, displayName, createdAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("account for owner %d already exists: %w", ownerID, ports.ErrDuplicate)
		}
		return nil, fmt.Errorf("failed to insert account for owner %d: %w", ownerID, err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get last insert ID for account of owner %d: %w", ownerID, err)
	}
	s.logger.Debug(ctx, "Account created", map[string]interface{}{"accountID": id, "ownerID": ownerID})
	return &domain.Account{ID: id, OwnerID: ownerID, DisplayName: displayName, CreatedAt: createdAt}, nil
}

// FindAccountByOwner retrieves the account belonging to an external owner id.
func (s *Store) FindAccountByOwner(ctx context.Context, ownerID int64) (*domain.Account, error) {
	const query = `SELECT id, owner_id, display_name, created_at FROM accounts WHERE owner_id = ?`

	acct := &domain.Account{}
	err := s.q.QueryRowContext(ctx, query, ownerID).Scan(&acct.ID, &acct.OwnerID, &acct.DisplayName, &acct.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.logger.Debug(ctx, "No account found for owner", map[string]interface{}{"ownerID": ownerID})
			return nil, nil // Not an error, just not found
		}
		return nil, fmt.Errorf("failed to query account for owner %d: %w", ownerID, err)
	}
	return acct, nil
}

// --- PositionRepository Implementation ---

// CreatePosition saves a new position and returns its assigned ID.
func (s *Store) CreatePosition(ctx context.Context, pos *domain.Position) (int64, error) {
	const query = `
	INSERT INTO positions (account_id, symbol, quantity, avg_cost, created_at)
	VALUES (?, ?, ?, ?, ?)`

	result, err := s.q.ExecContext(ctx, query,
		pos.AccountID, pos.Symbol, pos.Quantity.String(), pos.AvgCost.String(), pos.CreatedAt)
	if err != nil {
		return 0, fmt.Errorf("failed to insert position for symbol %s: %w", pos.Symbol, err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID for position %s: %w", pos.Symbol, err)
	}
	pos.ID = id // Update the domain object with the ID
	s.logger.Debug(ctx, "Position created", map[string]interface{}{"positionID": id, "symbol": pos.Symbol})
	return id, nil
}

// UpdatePosition persists the quantity and average cost of an existing position.
func (s *Store) UpdatePosition(ctx context.Context, pos *domain.Position) error {
	const query = `UPDATE positions SET quantity = ?, avg_cost = ? WHERE id = ?`

	result, err := s.q.ExecContext(ctx, query, pos.Quantity.String(), pos.AvgCost.String(), pos.ID)
	if err != nil {
		return fmt.Errorf("failed to update position ID %d: %w", pos.ID, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected for update position ID %d: %w", pos.ID, err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("position ID %d not found for update: %w", pos.ID, ports.ErrNotFound)
	}
	s.logger.Debug(ctx, "Position updated", map[string]interface{}{
		"positionID": pos.ID, "symbol": pos.Symbol, "quantity": pos.Quantity.String(),
	})
	return nil
}

// FindPositionBySymbol retrieves the position for a symbol within an account,
// whether active or sold down to zero.
func (s *Store) FindPositionBySymbol(ctx context.Context, accountID int64, symbol string) (*domain.Position, error) {
	const query = `
	SELECT id, account_id, symbol, quantity, avg_cost, created_at
	FROM positions
	WHERE account_id = ? AND symbol = ?`

	row := s.q.QueryRowContext(ctx, query, accountID, symbol)
	pos, err := scanPosition(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.logger.Debug(ctx, "No position found for symbol", map[string]interface{}{"accountID": accountID, "symbol": symbol})
			return nil, nil // Not an error, just not found
		}
		return nil, fmt.Errorf("failed to query position for symbol %s: %w", symbol, err)
	}
	return pos, nil
}

// FindActivePositions retrieves all positions with a non-zero quantity for an
// account, ordered by symbol.
func (s *Store) FindActivePositions(ctx context.Context, accountID int64) ([]*domain.Position, error) {
	// quantity is TEXT; cast for the numeric comparison.
	const query = `
	SELECT id, account_id, symbol, quantity, avg_cost, created_at
	FROM positions
	WHERE account_id = ? AND CAST(quantity AS REAL) > 0
	ORDER BY symbol`

	rows, err := s.q.QueryContext(ctx, query, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to query active positions for account %d: %w", accountID, err)
	}
	defer rows.Close()

	positions := make([]*domain.Position, 0)
	for rows.Next() {
		pos, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan position during FindActivePositions: %w", err)
		}
		positions = append(positions, pos)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating position rows: %w", err)
	}
	return positions, nil
}

// --- LedgerRepository Implementation ---

// AppendEntry saves a new ledger entry and returns its assigned ID.
func (s *Store) AppendEntry(ctx context.Context, entry *domain.LedgerEntry) (int64, error) {
	const query = `
	INSERT INTO ledger_entries (position_id, kind, quantity, unit_price, timestamp)
	VALUES (?, ?, ?, ?, ?)`

	result, err := s.q.ExecContext(ctx, query,
		entry.PositionID, string(entry.Kind), entry.Quantity.String(), entry.UnitPrice.String(), entry.Timestamp)
	if err != nil {
		return 0, fmt.Errorf("failed to insert ledger entry for position %d: %w", entry.PositionID, err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID for ledger entry: %w", err)
	}
	entry.ID = id // Update the domain object with the ID
	s.logger.Debug(ctx, "Ledger entry appended", map[string]interface{}{
		"entryID": id, "positionID": entry.PositionID, "kind": string(entry.Kind),
	})
	return id, nil
}

// FindEntriesByAccount retrieves the most recent ledger entries across all of
// an account's positions, newest first. Entry id breaks timestamp ties so the
// order matches creation order even within one clock tick.
func (s *Store) FindEntriesByAccount(ctx context.Context, accountID int64, limit int) ([]*domain.LedgerLine, error) {
	const query = `
	SELECT e.id, e.position_id, e.kind, e.quantity, e.unit_price, e.timestamp, p.symbol
	FROM ledger_entries e
	JOIN positions p ON p.id = e.position_id
	WHERE p.account_id = ?
	ORDER BY e.timestamp DESC, e.id DESC
	LIMIT ?`

	rows, err := s.q.QueryContext(ctx, query, accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query ledger entries for account %d: %w", accountID, err)
	}
	defer rows.Close()

	lines := make([]*domain.LedgerLine, 0)
	for rows.Next() {
		line, err := scanLedgerLine(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan ledger entry during FindEntriesByAccount: %w", err)
		}
		lines = append(lines, line)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating ledger entry rows: %w", err)
	}
	return lines, nil
}

// --- Helper Scan Functions ---

// scanner defines an interface compatible with *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

// scanPosition scans a row into a domain.Position struct.
func scanPosition(s scanner) (*domain.Position, error) {
	p := &domain.Position{}
	var qty, avgCost string
	err := s.Scan(&p.ID, &p.AccountID, &p.Symbol, &qty, &avgCost, &p.CreatedAt)
	if err != nil {
		return nil, err // Handle sql.ErrNoRows in the caller
	}
	if p.Quantity, err = decimal.NewFromString(qty); err != nil {
		return nil, fmt.Errorf("corrupt quantity %q on position %d: %w", qty, p.ID, err)
	}
	if p.AvgCost, err = decimal.NewFromString(avgCost); err != nil {
		return nil, fmt.Errorf("corrupt avg_cost %q on position %d: %w", avgCost, p.ID, err)
	}
	return p, nil
}

// scanLedgerLine scans a joined history row into a domain.LedgerLine.
func scanLedgerLine(s scanner) (*domain.LedgerLine, error) {
	e := &domain.LedgerEntry{}
	var kind, qty, unitPrice, symbol string
	err := s.Scan(&e.ID, &e.PositionID, &kind, &qty, &unitPrice, &e.Timestamp, &symbol)
	if err != nil {
		return nil, err // Handle sql.ErrNoRows in the caller
	}
	e.Kind = domain.EntryKind(kind)
	if e.Quantity, err = decimal.NewFromString(qty); err != nil {
		return nil, fmt.Errorf("corrupt quantity %q on ledger entry %d: %w", qty, e.ID, err)
	}
	if e.UnitPrice, err = decimal.NewFromString(unitPrice); err != nil {
		return nil, fmt.Errorf("corrupt unit_price %q on ledger entry %d: %w", unitPrice, e.ID, err)
	}
	return &domain.LedgerLine{Entry: e, Symbol: symbol}, nil
}

// isUniqueViolation reports whether err is a SQLite unique constraint failure.
func isUniqueViolation(err error) bool {
	var serr sqlite3.Error
	return errors.As(err, &serr) && serr.ExtendedCode == sqlite3.ErrConstraintUnique
}
