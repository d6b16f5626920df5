package ports

import (
	"context"

	"algoportfolio/internal/domain"
)

// AccountRepository defines the interface for storing and retrieving accounts.
type AccountRepository interface {
	// CreateAccount saves a new account for the given owner and returns it.
	// Returns ErrDuplicate (wrapped) when the owner already has an account.
	CreateAccount(ctx context.Context, ownerID int64, displayName string) (*domain.Account, error)
	// FindAccountByOwner retrieves the account belonging to an external owner id.
	// Returns nil, nil if no account is found.
	FindAccountByOwner(ctx context.Context, ownerID int64) (*domain.Account, error)
}

// PositionRepository defines the interface for storing and retrieving holdings.
type PositionRepository interface {
	// CreatePosition saves a new position and returns its assigned ID.
	CreatePosition(ctx context.Context, pos *domain.Position) (int64, error)
	// UpdatePosition persists the quantity and average cost of an existing position.
	UpdatePosition(ctx context.Context, pos *domain.Position) error
	// FindPositionBySymbol retrieves the position for a symbol within an account,
	// active or not. Returns nil, nil if the position was never opened.
	FindPositionBySymbol(ctx context.Context, accountID int64, symbol string) (*domain.Position, error)
	// FindActivePositions retrieves all positions with quantity > 0 for an
	// account, ordered by symbol.
	FindActivePositions(ctx context.Context, accountID int64) ([]*domain.Position, error)
}

// LedgerRepository defines the interface for the append-only transaction ledger.
type LedgerRepository interface {
	// AppendEntry saves a new ledger entry and returns its assigned ID.
	// Entries are never updated or deleted.
	AppendEntry(ctx context.Context, entry *domain.LedgerEntry) (int64, error)
	// FindEntriesByAccount retrieves the most recent ledger entries across all
	// of an account's positions, newest first, up to limit.
	FindEntriesByAccount(ctx context.Context, accountID int64, limit int) ([]*domain.LedgerLine, error)
}

// Store bundles the repositories backed by one database and adds transaction
// scoping.
type Store interface {
	AccountRepository
	PositionRepository
	LedgerRepository

	// WithinTx runs fn against a Store view bound to a single database
	// transaction, committing when fn returns nil and rolling back otherwise.
	// A nested call reuses the already-open transaction.
	WithinTx(ctx context.Context, fn func(Store) error) error
}
