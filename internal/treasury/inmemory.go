package treasury

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/carewallet/carewallet/internal/amount"
	"github.com/carewallet/carewallet/internal/ledger"
)

type accountKey struct {
	label string
	asset string
}

type inMemoryStore struct {
	mu       sync.RWMutex
	balances map[accountKey]string
	entries  []Entry
	byTxHash map[string]string
}

// NewInMemory creates an in-memory treasury store for tests.
func NewInMemory() Store {
	return &inMemoryStore{
		balances: make(map[accountKey]string),
		byTxHash: make(map[string]string),
	}
}

func (s *inMemoryStore) Credit(_ context.Context, args PostArgs) (PostResult, error) {
	return s.post(args, ledger.DirectionCredit)
}

func (s *inMemoryStore) Debit(_ context.Context, args PostArgs) (PostResult, error) {
	return s.post(args, ledger.DirectionDebit)
}

func (s *inMemoryStore) Balance(_ context.Context, label, asset string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	balance, ok := s.balances[accountKey{label, asset}]
	if !ok {
		return "", ledger.ErrWalletNotFound
	}
	return balance, nil
}

func (s *inMemoryStore) Entries(_ context.Context, label string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Entry
	for i := len(s.entries) - 1; i >= 0 && len(out) < limit; i-- {
		if s.entries[i].Label == label {
			out = append(out, s.entries[i])
		}
	}
	return out, nil
}

func (s *inMemoryStore) post(args PostArgs, direction ledger.Direction) (PostResult, error) {
	if args.Label == "" || args.Asset == "" {
		return PostResult{}, fmt.Errorf("label and asset are required")
	}
	if !ledger.ValidType(args.Type) {
		return PostResult{}, fmt.Errorf("unknown transaction type %q", args.Type)
	}
	if _, err := amount.ParsePositive(args.Amount); err != nil {
		return PostResult{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if args.TxHash != "" {
		if _, exists := s.byTxHash[args.TxHash]; exists {
			return PostResult{}, &ledger.DuplicateTxHashError{TxHash: args.TxHash}
		}
	}

	key := accountKey{args.Label, args.Asset}
	previous, ok := s.balances[key]
	if !ok {
		previous = "0"
	}

	var newBalance string
	var err error
	if direction == ledger.DirectionDebit {
		var cmp int
		cmp, err = amount.Cmp(previous, args.Amount)
		if err == nil && cmp < 0 {
			return PostResult{}, &ledger.InsufficientBalanceError{Have: previous, Need: args.Amount}
		}
		if err == nil {
			newBalance, err = amount.Sub(previous, args.Amount)
		}
	} else {
		newBalance, err = amount.Add(previous, args.Amount)
	}
	if err != nil {
		return PostResult{}, err
	}

	s.balances[key] = newBalance
	id := uuid.NewString()
	s.entries = append(s.entries, Entry{
		ID: id, Label: args.Label, Type: args.Type, Direction: direction, Asset: args.Asset,
		Amount: args.Amount, Status: ledger.StatusConfirmed, TxHash: args.TxHash,
		Meta: args.Meta, CreatedAt: time.Now().UTC(),
	})
	if args.TxHash != "" {
		s.byTxHash[args.TxHash] = id
	}
	return PostResult{TransactionID: id, PreviousBalance: previous, NewBalance: newBalance}, nil
}
