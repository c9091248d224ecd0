package payments

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/carewallet/carewallet/internal/amount"
	"github.com/carewallet/carewallet/internal/audit"
	"github.com/carewallet/carewallet/internal/ledger"
	"github.com/carewallet/carewallet/internal/notification"
	"github.com/carewallet/carewallet/internal/treasury"
	"github.com/carewallet/carewallet/internal/wallet"
)

// Service wires internal wallet-to-wallet transfers over the ledger.
type Service struct {
	ledger   ledger.Ledger
	wallets  *wallet.Service
	fees     treasury.Store
	notifier notification.Notifier
	auditor  audit.Recorder
	logger   *slog.Logger
	fee      string // flat fee in smallest units; "0" disables
	chainID  int64
}

// NewService constructs a payments service. fees, notifier and auditor may be
// nil.
func NewService(ledgerBackend ledger.Ledger, wallets *wallet.Service, fees treasury.Store, notifier notification.Notifier, auditor audit.Recorder, logger *slog.Logger, fee string, chainID int64) (*Service, error) {
	if fee == "" {
		fee = "0"
	}
	if _, err := amount.Parse(fee); err != nil {
		return nil, fmt.Errorf("transfer fee: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		ledger:   ledgerBackend,
		wallets:  wallets,
		fees:     fees,
		notifier: notifier,
		auditor:  auditor,
		logger:   logger,
		fee:      fee,
		chainID:  chainID,
	}, nil
}

// TransferInput captures the data needed to move funds between users.
type TransferInput struct {
	FromUserID string
	ToUserID   string
	Asset      string
	Amount     string
	Meta       map[string]any
}

// TransferResult describes the ledger outcome of an internal transfer.
type TransferResult struct {
	TransferID  string
	Debit       ledger.MutationResult
	Credit      ledger.MutationResult
	FeeCharged  string
	CompletedAt time.Time
}

// Transfer moves funds between two users as one atomic ledger operation,
// then charges the flat fee and mirrors the primary balances. The fee is a
// separate posting: a transfer never half-applies, and a fee failure never
// unwinds the settled transfer.
func (s *Service) Transfer(ctx context.Context, input TransferInput) (TransferResult, error) {
	if s.wallets != nil {
		if _, err := s.wallets.Get(ctx, input.FromUserID); err != nil {
			return TransferResult{}, err
		}
	}

	res, err := s.ledger.TransferInternal(ctx, ledger.TransferArgs{
		FromUserID: input.FromUserID,
		ToUserID:   input.ToUserID,
		Asset:      input.Asset,
		Amount:     input.Amount,
		ChainID:    s.chainID,
		Meta:       input.Meta,
	})
	if err != nil {
		return TransferResult{}, err
	}

	feeCharged := s.chargeFee(ctx, input, res.TransferID)

	if s.wallets != nil && input.Asset == s.wallets.PrimaryAsset() {
		_ = s.wallets.SyncPrimaryBalance(ctx, input.FromUserID)
		_ = s.wallets.SyncPrimaryBalance(ctx, input.ToUserID)
	}

	if s.notifier != nil {
		_ = s.notifier.Send(ctx, notification.Message{
			Kind:        notification.KindTransferReceived,
			Destination: input.ToUserID,
			Body:        fmt.Sprintf("You received %s %s", input.Amount, input.Asset),
		})
	}

	return TransferResult{
		TransferID:  res.TransferID,
		Debit:       res.Debit,
		Credit:      res.Credit,
		FeeCharged:  feeCharged,
		CompletedAt: time.Now().UTC(),
	}, nil
}

// chargeFee debits the flat fee from the sender and credits the treasury.
// Returns the amount actually debited. A fee-debit failure settles the
// transfer without a fee; a treasury-credit failure after the debit committed
// leaves the fee booked nowhere, so it is logged and written to the audit log
// with the fee txHash for operator replay.
func (s *Service) chargeFee(ctx context.Context, input TransferInput, transferID string) string {
	if s.fee == "0" || s.fees == nil {
		return "0"
	}

	feeMeta := map[string]any{ledger.MetaTransferID: transferID}
	feeHash := "fee:" + transferID
	if _, err := s.ledger.Debit(ctx, ledger.MutationArgs{
		UserID:  input.FromUserID,
		Asset:   input.Asset,
		Amount:  s.fee,
		ChainID: s.chainID,
		Type:    ledger.TypeWithdraw,
		From:    ledger.InternalMarker(input.FromUserID),
		To:      "internal:" + treasury.LabelFees,
		TxHash:  feeHash,
		Meta:    feeMeta,
	}); err != nil {
		s.logger.Warn("fee debit failed, transfer settled without fee",
			"transfer_id", transferID,
			"user_id", input.FromUserID,
			"amount", s.fee,
			"error", err,
		)
		return "0"
	}

	if _, err := s.fees.Credit(ctx, treasury.PostArgs{
		Label:  treasury.LabelFees,
		Asset:  input.Asset,
		Amount: s.fee,
		Type:   ledger.TypeReceive,
		TxHash: feeHash,
		Meta:   feeMeta,
	}); err != nil {
		s.logger.Error("treasury credit failed after committed fee debit",
			"transfer_id", transferID,
			"tx_hash", feeHash,
			"asset", input.Asset,
			"amount", s.fee,
			"error", err,
		)
		if s.auditor != nil {
			_ = s.auditor.Record(ctx, audit.ActionFeePostingFailed, map[string]any{
				"transfer_id": transferID,
				"tx_hash":     feeHash,
				"asset":       input.Asset,
				"amount":      s.fee,
				"error":       err.Error(),
			})
		}
	}
	return s.fee
}
