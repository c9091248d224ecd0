package wallet

import "time"

// Wallet is the per-user wallet metadata row. One row per user; never
// deleted, only updated. PrimaryBalance mirrors the principal asset's
// stored balance for cheap list/detail reads; the ledger remains the
// source of truth.
type Wallet struct {
	ID                  string
	UserID              string
	SmartAccountAddress string
	ChainID             int64
	PrimaryBalance      string
	CreatedAt           time.Time
}

// Balance is a point-in-time read of a (user, asset) balance.
type Balance struct {
	UserID string
	Asset  string
	Amount string
	AsOf   time.Time
}
