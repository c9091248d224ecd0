package onramp

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/carewallet/carewallet/internal/ledger"
	"github.com/carewallet/carewallet/internal/notification"
	"github.com/carewallet/carewallet/internal/wallet"
)

// Service applies settled on-ramp purchases to user wallets. Providers
// deliver webhooks at least once; the provider transaction id doubles as the
// ledger idempotency key so replays never double-credit.
type Service struct {
	ledger   ledger.Ledger
	wallets  *wallet.Service
	provider Provider
	notifier notification.Notifier
	chainID  int64
}

// NewService constructs an on-ramp service.
func NewService(ledgerBackend ledger.Ledger, wallets *wallet.Service, provider Provider, notifier notification.Notifier, chainID int64) (*Service, error) {
	if provider == nil {
		return nil, fmt.Errorf("provider connector is required")
	}
	return &Service{ledger: ledgerBackend, wallets: wallets, provider: provider, notifier: notifier, chainID: chainID}, nil
}

// PurchaseEvent is the decoded webhook body for a settled purchase.
type PurchaseEvent struct {
	ProviderTxID string `json:"provider_tx_id"`
	UserID       string `json:"user_id"`
	Asset        string `json:"asset"`
	Amount       string `json:"amount"`
	FiatAmount   string `json:"fiat_amount"`
	FiatCurrency string `json:"fiat_currency"`
}

// PurchaseResult reports the credit applied for a purchase. AlreadyApplied is
// set when the webhook was a replay of a settled purchase.
type PurchaseResult struct {
	TransactionID  string
	NewBalance     string
	AlreadyApplied bool
	CompletedAt    time.Time
}

// HandlePurchase verifies and applies a settled purchase webhook.
func (s *Service) HandlePurchase(ctx context.Context, payload []byte, signature string, event PurchaseEvent) (PurchaseResult, error) {
	if err := s.provider.VerifyWebhook(payload, signature); err != nil {
		return PurchaseResult{}, err
	}
	if event.ProviderTxID == "" {
		return PurchaseResult{}, fmt.Errorf("provider tx id is required")
	}

	res, err := s.ledger.Credit(ctx, ledger.MutationArgs{
		UserID:  event.UserID,
		Asset:   event.Asset,
		Amount:  event.Amount,
		ChainID: s.chainID,
		Type:    ledger.TypeBuy,
		TxHash:  "onramp:" + event.ProviderTxID,
		From:    "onramp:" + event.ProviderTxID,
		To:      ledger.InternalMarker(event.UserID),
		Meta: map[string]any{
			"provider_tx_id": event.ProviderTxID,
			"fiat_amount":    event.FiatAmount,
			"fiat_currency":  event.FiatCurrency,
		},
	})
	if err != nil {
		if errors.Is(err, ledger.ErrDuplicateTxHash) {
			// Replayed delivery of an applied purchase; ack it.
			return PurchaseResult{AlreadyApplied: true, CompletedAt: time.Now().UTC()}, nil
		}
		return PurchaseResult{}, err
	}

	if s.wallets != nil && event.Asset == s.wallets.PrimaryAsset() {
		_ = s.wallets.SyncPrimaryBalance(ctx, event.UserID)
	}
	if s.notifier != nil {
		_ = s.notifier.Send(ctx, notification.Message{
			Kind:        notification.KindPurchaseSettled,
			Destination: event.UserID,
			Body:        fmt.Sprintf("Your purchase of %s %s has settled", event.Amount, event.Asset),
		})
	}

	return PurchaseResult{TransactionID: res.TransactionID, NewBalance: res.NewBalance, CompletedAt: time.Now().UTC()}, nil
}

// WidgetURL returns the provider's hosted purchase widget URL for a user.
func (s *Service) WidgetURL(userID, asset string) (string, error) {
	return s.provider.WidgetURL(userID, asset)
}
