package domain

import "time"

// DefaultAccountName is used when an account is created implicitly on the
// owner's first recorded purchase.
const DefaultAccountName = "My Portfolio"

// Account groups the positions and ledger history of one external owner.
type Account struct {
	ID          int64     // Unique identifier (from DB)
	OwnerID     int64     // External owner identity, unique per account
	DisplayName string    // Human-readable account name
	CreatedAt   time.Time // Timestamp when the account was created
}
