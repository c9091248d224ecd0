package ledger

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/carewallet/carewallet/internal/amount"
)

type balanceKey struct {
	userID string
	asset  string
}

type inMemoryLedger struct {
	mu           sync.RWMutex
	balances     map[balanceKey]string
	updatedAt    map[balanceKey]time.Time
	transactions map[string]*Transaction
	order        []string
	byTxHash     map[string]string
}

// NewInMemory creates a concurrency-safe in-memory ledger with the same
// semantics as the Postgres backend. Useful for unit tests.
func NewInMemory() Ledger {
	return &inMemoryLedger{
		balances:     make(map[balanceKey]string),
		updatedAt:    make(map[balanceKey]time.Time),
		transactions: make(map[string]*Transaction),
		byTxHash:     make(map[string]string),
	}
}

func (l *inMemoryLedger) CreateWallet(_ context.Context, userID, asset string) error {
	if userID == "" || asset == "" {
		return fmt.Errorf("user id and asset are required")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ensureBalance(userID, asset)
	return nil
}

func (l *inMemoryLedger) Credit(_ context.Context, args MutationArgs) (MutationResult, error) {
	status, err := validateMutation(args)
	if err != nil {
		return MutationResult{}, err
	}
	if _, err := amount.ParsePositive(args.Amount); err != nil {
		return MutationResult{}, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	return l.applyLocked(args, DirectionCredit, status)
}

func (l *inMemoryLedger) Debit(_ context.Context, args MutationArgs) (MutationResult, error) {
	status, err := validateMutation(args)
	if err != nil {
		return MutationResult{}, err
	}
	if _, err := amount.ParsePositive(args.Amount); err != nil {
		return MutationResult{}, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	return l.applyLocked(args, DirectionDebit, status)
}

func (l *inMemoryLedger) TransferInternal(_ context.Context, args TransferArgs) (TransferResult, error) {
	if args.FromUserID == "" || args.ToUserID == "" {
		return TransferResult{}, fmt.Errorf("from and to user ids are required")
	}
	if args.FromUserID == args.ToUserID {
		return TransferResult{}, fmt.Errorf("cannot transfer to the same user")
	}
	if args.Asset == "" {
		return TransferResult{}, fmt.Errorf("asset is required")
	}
	if _, err := amount.ParsePositive(args.Amount); err != nil {
		return TransferResult{}, err
	}

	transferID := uuid.NewString()
	meta := map[string]any{MetaTransferID: transferID}
	for k, v := range args.Meta {
		if k != MetaTransferID {
			meta[k] = v
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	// Single lock covers both legs, so the pair is atomic: the debit is
	// checked first and the credit cannot be observed without it.
	debitRes, err := l.applyLocked(MutationArgs{
		UserID: args.FromUserID, Asset: args.Asset, Amount: args.Amount, ChainID: args.ChainID,
		Type: TypeSend, From: InternalMarker(args.FromUserID), To: InternalMarker(args.ToUserID), Meta: meta,
	}, DirectionDebit, StatusConfirmed)
	if err != nil {
		return TransferResult{}, err
	}
	creditRes, err := l.applyLocked(MutationArgs{
		UserID: args.ToUserID, Asset: args.Asset, Amount: args.Amount, ChainID: args.ChainID,
		Type: TypeReceive, From: InternalMarker(args.FromUserID), To: InternalMarker(args.ToUserID), Meta: meta,
	}, DirectionCredit, StatusConfirmed)
	if err != nil {
		// Roll the debit back; nothing else observed intermediate state
		// because the mutex is still held.
		l.rollbackLocked(debitRes.TransactionID, args.FromUserID, args.Asset, debitRes.PreviousBalance)
		return TransferResult{}, err
	}

	return TransferResult{TransferID: transferID, Debit: debitRes, Credit: creditRes}, nil
}

func (l *inMemoryLedger) Balance(_ context.Context, userID, asset string) (string, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	balance, ok := l.balances[balanceKey{userID, asset}]
	if !ok {
		return "", ErrWalletNotFound
	}
	return balance, nil
}

func (l *inMemoryLedger) Transactions(_ context.Context, userID string, limit int) ([]Transaction, error) {
	if limit <= 0 {
		limit = 50
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []Transaction
	for i := len(l.order) - 1; i >= 0 && len(out) < limit; i-- {
		entry := l.transactions[l.order[i]]
		if entry.UserID == userID {
			out = append(out, *entry)
		}
	}
	return out, nil
}

func (l *inMemoryLedger) ConfirmTransaction(_ context.Context, transactionID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.transactions[transactionID]
	if !ok {
		return ErrTransactionNotFound
	}
	if entry.Status != StatusPending {
		return ErrTerminalStatus
	}

	key := balanceKey{entry.UserID, entry.Asset}
	l.ensureBalance(entry.UserID, entry.Asset)
	previous := l.balances[key]

	var newBalance string
	var err error
	switch entry.Direction {
	case DirectionCredit:
		newBalance, err = amount.Add(previous, entry.Amount)
	case DirectionDebit:
		var cmp int
		cmp, err = amount.Cmp(previous, entry.Amount)
		if err == nil && cmp < 0 {
			return &InsufficientBalanceError{Have: previous, Need: entry.Amount}
		}
		if err == nil {
			newBalance, err = amount.Sub(previous, entry.Amount)
		}
	default:
		err = fmt.Errorf("unknown direction %q", entry.Direction)
	}
	if err != nil {
		return err
	}

	l.balances[key] = newBalance
	l.updatedAt[key] = time.Now().UTC()
	entry.Status = StatusConfirmed
	return nil
}

func (l *inMemoryLedger) FailTransaction(_ context.Context, transactionID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.transactions[transactionID]
	if !ok {
		return ErrTransactionNotFound
	}
	if entry.Status != StatusPending {
		return ErrTerminalStatus
	}
	entry.Status = StatusFailed
	return nil
}

func (l *inMemoryLedger) ListBalances(_ context.Context) ([]BalanceRow, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]BalanceRow, 0, len(l.balances))
	for key, balance := range l.balances {
		out = append(out, BalanceRow{UserID: key.userID, Asset: key.asset, Balance: balance, UpdatedAt: l.updatedAt[key]})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UserID != out[j].UserID {
			return out[i].UserID < out[j].UserID
		}
		return out[i].Asset < out[j].Asset
	})
	return out, nil
}

func (l *inMemoryLedger) ConfirmedNet(_ context.Context, userID, asset string) (string, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	net := new(big.Int)
	for _, id := range l.order {
		entry := l.transactions[id]
		if entry.UserID != userID || entry.Asset != asset || entry.Status != StatusConfirmed {
			continue
		}
		n, err := amount.Parse(entry.Amount)
		if err != nil {
			return "", err
		}
		if entry.Direction == DirectionDebit {
			net.Sub(net, n)
		} else {
			net.Add(net, n)
		}
	}
	return amount.Format(net), nil
}

// applyLocked performs a single posting. Caller holds the write lock.
func (l *inMemoryLedger) applyLocked(args MutationArgs, direction Direction, status Status) (MutationResult, error) {
	if args.TxHash != "" {
		if _, exists := l.byTxHash[args.TxHash]; exists {
			return MutationResult{}, &DuplicateTxHashError{TxHash: args.TxHash}
		}
	}

	key := balanceKey{args.UserID, args.Asset}
	l.ensureBalance(args.UserID, args.Asset)
	previous := l.balances[key]

	newBalance := previous
	if direction == DirectionDebit {
		cmp, err := amount.Cmp(previous, args.Amount)
		if err != nil {
			return MutationResult{}, err
		}
		if cmp < 0 {
			return MutationResult{}, &InsufficientBalanceError{Have: previous, Need: args.Amount}
		}
		if status == StatusConfirmed {
			newBalance, err = amount.Sub(previous, args.Amount)
			if err != nil {
				return MutationResult{}, err
			}
		}
	} else if status == StatusConfirmed {
		var err error
		newBalance, err = amount.Add(previous, args.Amount)
		if err != nil {
			return MutationResult{}, err
		}
	}

	if status == StatusConfirmed {
		l.balances[key] = newBalance
		l.updatedAt[key] = time.Now().UTC()
	}

	id := uuid.NewString()
	entry := &Transaction{
		ID: id, UserID: args.UserID, Type: args.Type, Direction: direction, Asset: args.Asset,
		Amount: args.Amount, Status: status, ChainID: args.ChainID, From: args.From, To: args.To,
		TxHash: args.TxHash, Meta: cloneMeta(args.Meta), CreatedAt: time.Now().UTC(),
	}
	l.transactions[id] = entry
	l.order = append(l.order, id)
	if args.TxHash != "" {
		l.byTxHash[args.TxHash] = id
	}

	return MutationResult{TransactionID: id, PreviousBalance: previous, NewBalance: newBalance}, nil
}

// rollbackLocked removes a just-written entry and restores the balance.
// Only used by TransferInternal while the write lock is still held.
func (l *inMemoryLedger) rollbackLocked(transactionID, userID, asset, previousBalance string) {
	entry, ok := l.transactions[transactionID]
	if !ok {
		return
	}
	delete(l.transactions, transactionID)
	if entry.TxHash != "" {
		delete(l.byTxHash, entry.TxHash)
	}
	for i := len(l.order) - 1; i >= 0; i-- {
		if l.order[i] == transactionID {
			l.order = append(l.order[:i], l.order[i+1:]...)
			break
		}
	}
	l.balances[balanceKey{userID, asset}] = previousBalance
}

func (l *inMemoryLedger) ensureBalance(userID, asset string) {
	key := balanceKey{userID, asset}
	if _, exists := l.balances[key]; !exists {
		l.balances[key] = "0"
		l.updatedAt[key] = time.Now().UTC()
	}
}

func cloneMeta(meta map[string]any) map[string]any {
	if meta == nil {
		return nil
	}
	out := make(map[string]any, len(meta))
	for k, v := range meta {
		out[k] = v
	}
	return out
}
