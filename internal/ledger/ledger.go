// Package ledger implements the wallet balance engine: idempotent credit and
// debit postings, atomic internal transfers, and the append-mostly transaction
// log that reconciliation reads back. Amounts are base-10 integer strings in
// the asset's smallest unit; see the amount package.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// TxType classifies a ledger entry by the business operation that produced it.
type TxType string

const (
	TypeSend     TxType = "SEND"
	TypeReceive  TxType = "RECEIVE"
	TypeWithdraw TxType = "WITHDRAW"
	TypeConvert  TxType = "CONVERT"
	TypeBuy      TxType = "BUY"
)

// ValidType reports whether t is a known transaction type.
func ValidType(t TxType) bool {
	switch t {
	case TypeSend, TypeReceive, TypeWithdraw, TypeConvert, TypeBuy:
		return true
	}
	return false
}

// Direction records whether an entry increased or decreased the balance.
// CONVERT entries can go either way, so direction is stored explicitly and
// set by the operation that wrote the entry.
type Direction string

const (
	DirectionCredit Direction = "CREDIT"
	DirectionDebit  Direction = "DEBIT"
)

// Status is the lifecycle state of a ledger entry. Only CONFIRMED entries
// count toward a balance; terminal states never transition again.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusConfirmed Status = "CONFIRMED"
	StatusFailed    Status = "FAILED"
)

var (
	// ErrInsufficientBalance occurs when a debit exceeds the available balance.
	// Match with errors.Is; the concrete error carries the have/need values.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrDuplicateTxHash indicates the supplied idempotency key was already
	// applied; callers treat it as "already done", not as a new failure.
	ErrDuplicateTxHash = errors.New("duplicate txHash")

	// ErrWalletNotFound indicates no balance row exists for the (user, asset).
	ErrWalletNotFound = errors.New("wallet not found")

	// ErrTransactionNotFound indicates an unknown ledger entry id.
	ErrTransactionNotFound = errors.New("transaction not found")

	// ErrTerminalStatus indicates an attempt to transition an entry that has
	// already reached CONFIRMED or FAILED.
	ErrTerminalStatus = errors.New("transaction already in terminal status")
)

// InsufficientBalanceError reports a rejected debit. The message format is a
// compatibility contract: callers match on the "Insufficient balance" prefix.
type InsufficientBalanceError struct {
	Have string
	Need string
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("Insufficient balance: have %s, need %s", e.Have, e.Need)
}

func (e *InsufficientBalanceError) Is(target error) bool {
	return target == ErrInsufficientBalance
}

// DuplicateTxHashError reports an idempotency-key collision. Callers match on
// the "Duplicate txHash" prefix.
type DuplicateTxHashError struct {
	TxHash string
}

func (e *DuplicateTxHashError) Error() string {
	return fmt.Sprintf("Duplicate txHash: %s", e.TxHash)
}

func (e *DuplicateTxHashError) Is(target error) bool {
	return target == ErrDuplicateTxHash
}

// Transaction is an immutable ledger entry. Amount, asset and parties never
// change after insert; only status may transition, and at most once.
type Transaction struct {
	ID        string
	UserID    string
	Type      TxType
	Direction Direction
	Asset     string
	Amount    string
	Status    Status
	ChainID   int64
	From      string
	To        string
	TxHash    string
	Meta      map[string]any
	CreatedAt time.Time
}

// MutationArgs are the inputs shared by Credit and Debit.
type MutationArgs struct {
	UserID  string
	Asset   string
	Amount  string
	ChainID int64
	Type    TxType
	Status  Status // optional; defaults to CONFIRMED
	TxHash  string // optional idempotency key, globally unique when set
	From    string
	To      string
	Meta    map[string]any
}

// MutationResult reports the outcome of a single posting.
type MutationResult struct {
	TransactionID   string
	PreviousBalance string
	NewBalance      string
}

// TransferArgs describe an internal wallet-to-wallet movement.
type TransferArgs struct {
	FromUserID string
	ToUserID   string
	Asset      string
	Amount     string
	ChainID    int64
	Meta       map[string]any
}

// TransferResult pairs the two entries written by a transfer. Both share the
// TransferID under meta["transfer_id"] so operators can reconstruct pairs.
type TransferResult struct {
	TransferID string
	Debit      MutationResult
	Credit     MutationResult
}

// BalanceRow is a stored (user, asset) balance as read back for callers and
// for the reconciler.
type BalanceRow struct {
	UserID    string
	Asset     string
	Balance   string
	UpdatedAt time.Time
}

// Ledger is the contract implemented by ledger backends (Postgres in
// production, in-memory for tests). Every mutation is atomic: it either
// commits the balance update together with its log entry, or neither.
type Ledger interface {
	// CreateWallet idempotently ensures a zero balance row for (user, asset).
	CreateWallet(ctx context.Context, userID, asset string) error

	// Credit adds amount to the (user, asset) balance, lazily creating it.
	Credit(ctx context.Context, args MutationArgs) (MutationResult, error)

	// Debit subtracts amount, failing with InsufficientBalanceError when the
	// balance cannot cover it. Never applies a partial amount.
	Debit(ctx context.Context, args MutationArgs) (MutationResult, error)

	// TransferInternal debits the sender and credits the recipient as one
	// atomic unit; on any failure neither side is applied.
	TransferInternal(ctx context.Context, args TransferArgs) (TransferResult, error)

	// Balance returns the stored balance for (user, asset).
	Balance(ctx context.Context, userID, asset string) (string, error)

	// Transactions lists a user's ledger entries, newest first.
	Transactions(ctx context.Context, userID string, limit int) ([]Transaction, error)

	// ConfirmTransaction transitions a PENDING entry to CONFIRMED and applies
	// its balance delta exactly once. Debit-directioned entries re-check
	// sufficiency at confirm time and stay PENDING on failure.
	ConfirmTransaction(ctx context.Context, transactionID string) error

	// FailTransaction transitions a PENDING entry to FAILED without touching
	// the balance.
	FailTransaction(ctx context.Context, transactionID string) error

	// ListBalances returns every stored balance row; used by the reconciler.
	ListBalances(ctx context.Context) ([]BalanceRow, error)

	// ConfirmedNet recomputes the (user, asset) balance from CONFIRMED
	// entries: credits minus debits. Zero entries yields "0".
	ConfirmedNet(ctx context.Context, userID, asset string) (string, error)
}

// InternalMarker is the from/to placeholder recorded for movements that never
// leave the platform.
func InternalMarker(userID string) string {
	return "internal:" + userID
}

// MetaTransferID is the meta key linking the two entries of a transfer.
const MetaTransferID = "transfer_id"

func validateMutation(args MutationArgs) (Status, error) {
	if args.UserID == "" {
		return "", fmt.Errorf("user id is required")
	}
	if args.Asset == "" {
		return "", fmt.Errorf("asset is required")
	}
	if !ValidType(args.Type) {
		return "", fmt.Errorf("unknown transaction type %q", args.Type)
	}
	status := args.Status
	if status == "" {
		status = StatusConfirmed
	}
	if status != StatusConfirmed && status != StatusPending {
		return "", fmt.Errorf("transaction may only be written as PENDING or CONFIRMED, got %q", status)
	}
	return status, nil
}
