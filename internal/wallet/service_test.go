package wallet

import (
	"context"
	"testing"

	"github.com/carewallet/carewallet/internal/ledger"
)

func TestServiceCreateIsIdempotent(t *testing.T) {
	repo := NewMemoryRepository()
	led := ledger.NewInMemory()
	svc := NewService(repo, led, "ETH", 8453)

	ctx := context.Background()
	first, err := svc.Create(ctx, CreateInput{UserID: "u1"})
	if err != nil {
		t.Fatalf("create wallet: %v", err)
	}

	second, err := svc.Create(ctx, CreateInput{UserID: "u1"})
	if err != nil {
		t.Fatalf("second create: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("create replaced the wallet row: %s != %s", second.ID, first.ID)
	}

	balance, err := svc.Balance(ctx, "u1", "")
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance.Amount != "0" || balance.Asset != "ETH" {
		t.Fatalf("unexpected initial balance: %+v", balance)
	}
}

func TestServiceSyncPrimaryBalance(t *testing.T) {
	repo := NewMemoryRepository()
	led := ledger.NewInMemory()
	svc := NewService(repo, led, "ETH", 8453)

	ctx := context.Background()
	if _, err := svc.Create(ctx, CreateInput{UserID: "u1"}); err != nil {
		t.Fatalf("create wallet: %v", err)
	}

	if _, err := led.Credit(ctx, ledger.MutationArgs{
		UserID: "u1", Asset: "ETH", Amount: "2500", ChainID: 8453, Type: ledger.TypeReceive,
	}); err != nil {
		t.Fatalf("credit: %v", err)
	}

	if err := svc.SyncPrimaryBalance(ctx, "u1"); err != nil {
		t.Fatalf("sync: %v", err)
	}
	w, err := svc.Get(ctx, "u1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if w.PrimaryBalance != "2500" {
		t.Fatalf("mirror not refreshed: %s", w.PrimaryBalance)
	}
}
