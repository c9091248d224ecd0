package wallet

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/carewallet/carewallet/internal/ledger"
)

// Service exposes wallet operations backed by the ledger.
type Service struct {
	repo         Repository
	ledger       ledger.Ledger
	primaryAsset string
	chainID      int64
}

// NewService builds a wallet service instance. primaryAsset is the asset
// mirrored into the wallet row's primary_balance column.
func NewService(repo Repository, ledgerBackend ledger.Ledger, primaryAsset string, chainID int64) *Service {
	return &Service{repo: repo, ledger: ledgerBackend, primaryAsset: primaryAsset, chainID: chainID}
}

// CreateInput captures data required to register a wallet.
type CreateInput struct {
	UserID              string
	Asset               string // defaults to the primary asset
	SmartAccountAddress string
}

// Create idempotently provisions the wallet row and the zero balance row for
// the requested asset. Safe to call any number of times.
func (s *Service) Create(ctx context.Context, input CreateInput) (Wallet, error) {
	if input.UserID == "" {
		return Wallet{}, fmt.Errorf("user id is required")
	}
	asset := input.Asset
	if asset == "" {
		asset = s.primaryAsset
	}

	if err := s.repo.Ensure(ctx, Wallet{
		ID:                  uuid.NewString(),
		UserID:              input.UserID,
		SmartAccountAddress: input.SmartAccountAddress,
		ChainID:             s.chainID,
		PrimaryBalance:      "0",
		CreatedAt:           time.Now().UTC(),
	}); err != nil {
		return Wallet{}, err
	}
	if err := s.ledger.CreateWallet(ctx, input.UserID, asset); err != nil {
		return Wallet{}, err
	}

	return s.repo.Get(ctx, input.UserID)
}

// Get retrieves wallet metadata by owner.
func (s *Service) Get(ctx context.Context, userID string) (Wallet, error) {
	return s.repo.Get(ctx, userID)
}

// Balance reads the stored (user, asset) balance from the ledger.
func (s *Service) Balance(ctx context.Context, userID, asset string) (Balance, error) {
	if asset == "" {
		asset = s.primaryAsset
	}
	amount, err := s.ledger.Balance(ctx, userID, asset)
	if err != nil {
		return Balance{}, err
	}
	return Balance{UserID: userID, Asset: asset, Amount: amount, AsOf: time.Now().UTC()}, nil
}

// Transactions lists the user's ledger entries, newest first.
func (s *Service) Transactions(ctx context.Context, userID string, limit int) ([]ledger.Transaction, error) {
	return s.ledger.Transactions(ctx, userID, limit)
}

// SyncPrimaryBalance refreshes the mirrored primary-asset balance on the
// wallet row. Best-effort: callers invoke it after mutating the primary
// asset; the ledger stays authoritative if this lags.
func (s *Service) SyncPrimaryBalance(ctx context.Context, userID string) error {
	balance, err := s.ledger.Balance(ctx, userID, s.primaryAsset)
	if err != nil {
		return err
	}
	return s.repo.UpdatePrimaryBalance(ctx, userID, balance)
}

// PrimaryAsset returns the asset mirrored into the wallet row.
func (s *Service) PrimaryAsset() string {
	return s.primaryAsset
}
