// Package treasury is the platform's own ledger: fee income, payout float
// and operational buffers, keyed by (label, asset) instead of a user id. It
// follows the same posting contract as the user ledger — one transaction per
// mutation, txHash idempotency, balance equals confirmed credits minus
// confirmed debits — but is a separate balance namespace.
package treasury

import (
	"context"
	"time"

	"github.com/carewallet/carewallet/internal/ledger"
)

// Well-known treasury labels.
const (
	LabelFees    = "fees"
	LabelPayouts = "payouts"
)

// Entry is an immutable treasury ledger entry.
type Entry struct {
	ID        string
	Label     string
	Type      ledger.TxType
	Direction ledger.Direction
	Asset     string
	Amount    string
	Status    ledger.Status
	TxHash    string
	Meta      map[string]any
	CreatedAt time.Time
}

// PostArgs are the inputs to a treasury credit or debit.
type PostArgs struct {
	Label  string
	Asset  string
	Amount string
	Type   ledger.TxType
	TxHash string
	Meta   map[string]any
}

// PostResult reports the outcome of a treasury posting.
type PostResult struct {
	TransactionID   string
	PreviousBalance string
	NewBalance      string
}

// Store is the contract implemented by treasury ledger backends. It shares
// the user ledger's error values: ledger.ErrInsufficientBalance and
// ledger.ErrDuplicateTxHash.
type Store interface {
	Credit(ctx context.Context, args PostArgs) (PostResult, error)
	Debit(ctx context.Context, args PostArgs) (PostResult, error)
	Balance(ctx context.Context, label, asset string) (string, error)
	Entries(ctx context.Context, label string, limit int) ([]Entry, error)
}
