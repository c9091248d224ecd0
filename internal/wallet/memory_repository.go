package wallet

import (
	"context"
	"sync"
)

type memoryRepository struct {
	mu      sync.RWMutex
	storage map[string]Wallet
}

// NewMemoryRepository constructs an in-memory repository for tests.
func NewMemoryRepository() Repository {
	return &memoryRepository{storage: make(map[string]Wallet)}
}

func (r *memoryRepository) Ensure(_ context.Context, wallet Wallet) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.storage[wallet.UserID]; !exists {
		r.storage[wallet.UserID] = wallet
	}
	return nil
}

func (r *memoryRepository) Get(_ context.Context, userID string) (Wallet, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	wallet, ok := r.storage[userID]
	if !ok {
		return Wallet{}, ErrNotFound
	}
	return wallet, nil
}

func (r *memoryRepository) UpdatePrimaryBalance(_ context.Context, userID, balance string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	wallet, ok := r.storage[userID]
	if !ok {
		return ErrNotFound
	}
	wallet.PrimaryBalance = balance
	r.storage[userID] = wallet
	return nil
}
