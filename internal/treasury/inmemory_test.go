package treasury

import (
	"context"
	"errors"
	"testing"

	"github.com/carewallet/carewallet/internal/ledger"
)

func TestTreasuryPostings(t *testing.T) {
	store := NewInMemory()
	ctx := context.Background()

	res, err := store.Credit(ctx, PostArgs{Label: LabelFees, Asset: "USDC", Amount: "150", Type: ledger.TypeReceive})
	if err != nil {
		t.Fatalf("credit: %v", err)
	}
	if res.PreviousBalance != "0" || res.NewBalance != "150" {
		t.Fatalf("unexpected result: %+v", res)
	}

	if _, err := store.Debit(ctx, PostArgs{Label: LabelFees, Asset: "USDC", Amount: "200", Type: ledger.TypeWithdraw}); !errors.Is(err, ledger.ErrInsufficientBalance) {
		t.Fatalf("expected insufficient balance, got %v", err)
	}

	res, err = store.Debit(ctx, PostArgs{Label: LabelFees, Asset: "USDC", Amount: "50", Type: ledger.TypeWithdraw})
	if err != nil {
		t.Fatalf("debit: %v", err)
	}
	if res.NewBalance != "100" {
		t.Fatalf("expected balance 100, got %s", res.NewBalance)
	}

	entries, err := store.Entries(ctx, LabelFees, 10)
	if err != nil {
		t.Fatalf("entries: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
}

func TestTreasuryDuplicateTxHash(t *testing.T) {
	store := NewInMemory()
	ctx := context.Background()

	args := PostArgs{Label: LabelPayouts, Asset: "USDC", Amount: "500", Type: ledger.TypeReceive, TxHash: "payout-1"}
	if _, err := store.Credit(ctx, args); err != nil {
		t.Fatalf("credit: %v", err)
	}
	if _, err := store.Credit(ctx, args); !errors.Is(err, ledger.ErrDuplicateTxHash) {
		t.Fatalf("expected duplicate txHash, got %v", err)
	}

	balance, err := store.Balance(ctx, LabelPayouts, "USDC")
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance != "500" {
		t.Fatalf("balance applied twice: %s", balance)
	}
}

func TestTreasurySeparateNamespaces(t *testing.T) {
	store := NewInMemory()
	ctx := context.Background()

	if _, err := store.Credit(ctx, PostArgs{Label: LabelFees, Asset: "USDC", Amount: "10", Type: ledger.TypeReceive}); err != nil {
		t.Fatalf("credit: %v", err)
	}
	if _, err := store.Balance(ctx, LabelPayouts, "USDC"); !errors.Is(err, ledger.ErrWalletNotFound) {
		t.Fatalf("labels must not share balances")
	}
}
