package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/carewallet/carewallet/internal/amount"
)

func creditArgs(userID, amount string) MutationArgs {
	return MutationArgs{UserID: userID, Asset: "ETH", Amount: amount, ChainID: 1, Type: TypeReceive}
}

func debitArgs(userID, amount string) MutationArgs {
	return MutationArgs{UserID: userID, Asset: "ETH", Amount: amount, ChainID: 1, Type: TypeWithdraw}
}

func TestCreditThenDebit(t *testing.T) {
	l := NewInMemory()
	ctx := context.Background()

	res, err := l.Credit(ctx, creditArgs("u1", "1000"))
	if err != nil {
		t.Fatalf("credit: %v", err)
	}
	if res.PreviousBalance != "0" || res.NewBalance != "1000" {
		t.Fatalf("unexpected credit result: %+v", res)
	}

	res, err = l.Debit(ctx, debitArgs("u1", "400"))
	if err != nil {
		t.Fatalf("debit: %v", err)
	}
	if res.PreviousBalance != "1000" || res.NewBalance != "600" {
		t.Fatalf("unexpected debit result: %+v", res)
	}

	balance, err := l.Balance(ctx, "u1", "ETH")
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance != "600" {
		t.Fatalf("expected balance 600, got %s", balance)
	}
}

func TestDebitInsufficientBalance(t *testing.T) {
	l := NewInMemory()
	ctx := context.Background()

	if _, err := l.Credit(ctx, creditArgs("u1", "600")); err != nil {
		t.Fatalf("credit: %v", err)
	}

	_, err := l.Debit(ctx, debitArgs("u1", "700"))
	if !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected insufficient balance, got %v", err)
	}
	if !strings.Contains(err.Error(), "Insufficient balance: have 600, need 700") {
		t.Fatalf("unexpected message: %q", err.Error())
	}

	balance, _ := l.Balance(ctx, "u1", "ETH")
	if balance != "600" {
		t.Fatalf("balance mutated by failed debit: %s", balance)
	}
}

func TestDuplicateTxHash(t *testing.T) {
	l := NewInMemory()
	ctx := context.Background()

	args := creditArgs("u1", "250")
	args.TxHash = "tx-1"
	if _, err := l.Credit(ctx, args); err != nil {
		t.Fatalf("first credit: %v", err)
	}

	_, err := l.Credit(ctx, args)
	if !errors.Is(err, ErrDuplicateTxHash) {
		t.Fatalf("expected duplicate txHash, got %v", err)
	}
	if !strings.Contains(err.Error(), "Duplicate txHash") {
		t.Fatalf("unexpected message: %q", err.Error())
	}

	balance, _ := l.Balance(ctx, "u1", "ETH")
	if balance != "250" {
		t.Fatalf("balance applied twice: %s", balance)
	}

	// The key is shared across credit and debit.
	debit := debitArgs("u1", "10")
	debit.TxHash = "tx-1"
	if _, err := l.Debit(ctx, debit); !errors.Is(err, ErrDuplicateTxHash) {
		t.Fatalf("expected duplicate txHash on debit, got %v", err)
	}
}

func TestTransferInternal(t *testing.T) {
	l := NewInMemory()
	ctx := context.Background()

	if _, err := l.Credit(ctx, creditArgs("u1", "600")); err != nil {
		t.Fatalf("seed credit: %v", err)
	}

	res, err := l.TransferInternal(ctx, TransferArgs{FromUserID: "u1", ToUserID: "u2", Asset: "ETH", Amount: "100", ChainID: 1})
	if err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if res.Debit.NewBalance != "500" {
		t.Fatalf("expected sender balance 500, got %s", res.Debit.NewBalance)
	}
	if res.Credit.NewBalance != "100" {
		t.Fatalf("expected recipient balance 100, got %s", res.Credit.NewBalance)
	}

	txs, err := l.Transactions(ctx, "u2", 10)
	if err != nil {
		t.Fatalf("transactions: %v", err)
	}
	if len(txs) != 1 || txs[0].Status != StatusConfirmed || txs[0].Type != TypeReceive {
		t.Fatalf("unexpected recipient entries: %+v", txs)
	}
	if txs[0].Meta[MetaTransferID] != res.TransferID {
		t.Fatalf("transfer id not linked in meta: %+v", txs[0].Meta)
	}
}

func TestTransferInsufficientLeavesNoTrace(t *testing.T) {
	l := NewInMemory()
	ctx := context.Background()

	if err := l.CreateWallet(ctx, "u1", "ETH"); err != nil {
		t.Fatalf("create wallet: %v", err)
	}
	if err := l.CreateWallet(ctx, "u2", "ETH"); err != nil {
		t.Fatalf("create wallet: %v", err)
	}

	_, err := l.TransferInternal(ctx, TransferArgs{FromUserID: "u1", ToUserID: "u2", Asset: "ETH", Amount: "100", ChainID: 1})
	if !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected insufficient balance, got %v", err)
	}

	for _, user := range []string{"u1", "u2"} {
		balance, err := l.Balance(ctx, user, "ETH")
		if err != nil {
			t.Fatalf("balance %s: %v", user, err)
		}
		if balance != "0" {
			t.Fatalf("balance of %s changed by failed transfer: %s", user, balance)
		}
		txs, _ := l.Transactions(ctx, user, 10)
		for _, tx := range txs {
			if tx.Status == StatusConfirmed {
				t.Fatalf("confirmed entry left behind for %s: %+v", user, tx)
			}
		}
	}
}

func TestConcurrentDebitsNoOverdraft(t *testing.T) {
	l := NewInMemory()
	ctx := context.Background()

	const workers = 10
	// Balance covers exactly workers-1 debits of 500.
	if _, err := l.Credit(ctx, creditArgs("u1", fmt.Sprintf("%d", (workers-1)*500))); err != nil {
		t.Fatalf("seed credit: %v", err)
	}

	var wg sync.WaitGroup
	errCh := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := l.Debit(ctx, debitArgs("u1", "500"))
			errCh <- err
		}()
	}
	wg.Wait()
	close(errCh)

	var failures int
	for err := range errCh {
		if err != nil {
			if !errors.Is(err, ErrInsufficientBalance) {
				t.Fatalf("unexpected error: %v", err)
			}
			failures++
		}
	}
	if failures != 1 {
		t.Fatalf("expected exactly 1 insufficient-balance failure, got %d", failures)
	}

	balance, _ := l.Balance(ctx, "u1", "ETH")
	if balance != "0" {
		t.Fatalf("expected drained balance, got %s", balance)
	}
}

func TestPendingCreditAppliesOnConfirm(t *testing.T) {
	l := NewInMemory()
	ctx := context.Background()

	args := creditArgs("u1", "300")
	args.Status = StatusPending
	res, err := l.Credit(ctx, args)
	if err != nil {
		t.Fatalf("pending credit: %v", err)
	}
	if res.NewBalance != "0" {
		t.Fatalf("pending credit applied delta early: %+v", res)
	}

	if err := l.ConfirmTransaction(ctx, res.TransactionID); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	balance, _ := l.Balance(ctx, "u1", "ETH")
	if balance != "300" {
		t.Fatalf("expected balance 300 after confirm, got %s", balance)
	}

	// A second confirm must not double-apply.
	if err := l.ConfirmTransaction(ctx, res.TransactionID); !errors.Is(err, ErrTerminalStatus) {
		t.Fatalf("expected terminal status error, got %v", err)
	}
	balance, _ = l.Balance(ctx, "u1", "ETH")
	if balance != "300" {
		t.Fatalf("confirm applied twice: %s", balance)
	}
}

func TestPendingDebitConfirmRecheck(t *testing.T) {
	l := NewInMemory()
	ctx := context.Background()

	if _, err := l.Credit(ctx, creditArgs("u1", "500")); err != nil {
		t.Fatalf("seed: %v", err)
	}

	args := debitArgs("u1", "400")
	args.Status = StatusPending
	res, err := l.Debit(ctx, args)
	if err != nil {
		t.Fatalf("pending debit: %v", err)
	}

	// Drain the wallet before the pending debit confirms.
	if _, err := l.Debit(ctx, debitArgs("u1", "300")); err != nil {
		t.Fatalf("drain debit: %v", err)
	}

	if err := l.ConfirmTransaction(ctx, res.TransactionID); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected insufficient balance at confirm, got %v", err)
	}

	// Entry is still pending; failing it is the caller's move.
	if err := l.FailTransaction(ctx, res.TransactionID); err != nil {
		t.Fatalf("fail: %v", err)
	}
	if err := l.FailTransaction(ctx, res.TransactionID); !errors.Is(err, ErrTerminalStatus) {
		t.Fatalf("expected terminal status error, got %v", err)
	}
}

func TestFailedEntriesExcludedFromNet(t *testing.T) {
	l := NewInMemory()
	ctx := context.Background()

	if _, err := l.Credit(ctx, creditArgs("u1", "1500")); err != nil {
		t.Fatalf("credit: %v", err)
	}
	if _, err := l.Debit(ctx, debitArgs("u1", "500")); err != nil {
		t.Fatalf("debit: %v", err)
	}

	pending := creditArgs("u1", "9000")
	pending.Status = StatusPending
	res, err := l.Credit(ctx, pending)
	if err != nil {
		t.Fatalf("pending credit: %v", err)
	}
	if err := l.FailTransaction(ctx, res.TransactionID); err != nil {
		t.Fatalf("fail: %v", err)
	}

	net, err := l.ConfirmedNet(ctx, "u1", "ETH")
	if err != nil {
		t.Fatalf("confirmed net: %v", err)
	}
	if net != "1000" {
		t.Fatalf("expected net 1000, got %s", net)
	}
}

func TestConfirmedNetEmptyWallet(t *testing.T) {
	l := NewInMemory()
	ctx := context.Background()

	net, err := l.ConfirmedNet(ctx, "nobody", "ETH")
	if err != nil {
		t.Fatalf("confirmed net: %v", err)
	}
	if net != "0" {
		t.Fatalf("expected 0 for empty wallet, got %s", net)
	}
}

func TestConservationAcrossTransfers(t *testing.T) {
	l := NewInMemory()
	ctx := context.Background()

	if _, err := l.Credit(ctx, creditArgs("u1", "100000")); err != nil {
		t.Fatalf("seed: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := l.TransferInternal(ctx, TransferArgs{FromUserID: "u1", ToUserID: "u2", Asset: "ETH", Amount: "500", ChainID: 1}); err != nil {
				t.Errorf("transfer: %v", err)
			}
		}()
	}
	wg.Wait()

	a, _ := l.Balance(ctx, "u1", "ETH")
	b, _ := l.Balance(ctx, "u2", "ETH")
	total, err := amount.Add(a, b)
	if err != nil {
		t.Fatalf("sum: %v", err)
	}
	if total != "100000" {
		t.Fatalf("asset total changed by transfers: %s", total)
	}
}

func TestValidationRejectsMalformedAmounts(t *testing.T) {
	l := NewInMemory()
	ctx := context.Background()

	for _, bad := range []string{"", "0", "-5", "1.5", "1e9", "10 "} {
		args := creditArgs("u1", bad)
		if _, err := l.Credit(ctx, args); err == nil {
			t.Fatalf("expected rejection of amount %q", bad)
		}
	}

	args := creditArgs("u1", "10")
	args.Type = "REFUND"
	if _, err := l.Credit(ctx, args); err == nil {
		t.Fatal("expected rejection of unknown type")
	}

	if _, err := l.Balance(ctx, "u1", "ETH"); !errors.Is(err, ErrWalletNotFound) {
		t.Fatalf("validation failures must not create wallets, got %v", err)
	}
}
