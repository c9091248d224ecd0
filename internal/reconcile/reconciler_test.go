package reconcile

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/carewallet/carewallet/internal/audit"
	"github.com/carewallet/carewallet/internal/ledger"
	"github.com/carewallet/carewallet/internal/logging"
)

func seedLedger(t *testing.T) ledger.Ledger {
	t.Helper()
	led := ledger.NewInMemory()
	ctx := context.Background()
	if _, err := led.Credit(ctx, ledger.MutationArgs{UserID: "u1", Asset: "ETH", Amount: "1500", ChainID: 1, Type: ledger.TypeReceive}); err != nil {
		t.Fatalf("credit: %v", err)
	}
	if _, err := led.Debit(ctx, ledger.MutationArgs{UserID: "u1", Asset: "ETH", Amount: "500", ChainID: 1, Type: ledger.TypeWithdraw}); err != nil {
		t.Fatalf("debit: %v", err)
	}
	return led
}

func TestRunCleanPass(t *testing.T) {
	led := seedLedger(t)
	recorder := audit.NewMemoryRecorder()
	r := New(led, recorder, nil, logging.Discard())

	report, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if report.Wallets != 1 || report.Mismatches != 0 {
		t.Fatalf("unexpected report: %+v", report)
	}
	if len(recorder.Entries()) != 0 {
		t.Fatalf("clean pass recorded audit entries: %+v", recorder.Entries())
	}
}

func TestRunFlagsMismatchWithoutCorrecting(t *testing.T) {
	led := seedLedger(t)
	// Corrupt the stored balance behind the log's back.
	ledger.SeedBalance(led, "u1", "ETH", "999")

	recorder := audit.NewMemoryRecorder()
	r := New(led, recorder, nil, logging.Discard())

	report, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if report.Mismatches != 1 {
		t.Fatalf("expected 1 mismatch, got %d", report.Mismatches)
	}

	entries := recorder.Entries()
	if len(entries) != 1 || entries[0].Action != audit.ActionReconcileMismatch {
		t.Fatalf("unexpected audit entries: %+v", entries)
	}
	if entries[0].Details["stored"] != "999" || entries[0].Details["computed"] != "1000" {
		t.Fatalf("unexpected mismatch details: %+v", entries[0].Details)
	}

	// The stored balance is left untouched for operator review.
	balance, _ := led.Balance(context.Background(), "u1", "ETH")
	if balance != "999" {
		t.Fatalf("reconciler mutated the balance: %s", balance)
	}
}

func TestRunToleratesEmptyWallet(t *testing.T) {
	led := ledger.NewInMemory()
	if err := led.CreateWallet(context.Background(), "u-new", "ETH"); err != nil {
		t.Fatalf("create wallet: %v", err)
	}

	recorder := audit.NewMemoryRecorder()
	r := New(led, recorder, nil, logging.Discard())

	report, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if report.Wallets != 1 || report.Mismatches != 0 {
		t.Fatalf("unexpected report: %+v", report)
	}
}

func TestRunEveryRunsImmediately(t *testing.T) {
	led := seedLedger(t)
	ledger.SeedBalance(led, "u1", "ETH", "999")
	recorder := audit.NewMemoryRecorder()
	r := New(led, recorder, nil, logging.Discard())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		// Interval far beyond the test deadline: only the immediate pass
		// can produce the mismatch entry.
		r.RunEvery(ctx, time.Hour)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for len(recorder.Entries()) == 0 {
		select {
		case <-deadline:
			cancel()
			t.Fatal("no pass ran before the first interval elapsed")
		case <-time.After(10 * time.Millisecond):
		}
	}
	cancel()
	<-done
}

func TestRunRespectsLeaderLock(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	defer mr.Close()
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer cache.Close()

	led := seedLedger(t)
	recorder := audit.NewMemoryRecorder()
	r := New(led, recorder, cache, logging.Discard())

	// Another instance holds the lock.
	if err := cache.Set(context.Background(), lockKey, "other", lockTTL).Err(); err != nil {
		t.Fatalf("seed lock: %v", err)
	}
	report, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if report.Wallets != 0 {
		t.Fatalf("locked pass should not scan wallets: %+v", report)
	}

	// Lock released: the pass runs and releases the lock afterwards.
	mr.Del(lockKey)
	report, err = r.Run(context.Background())
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if report.Wallets != 1 {
		t.Fatalf("expected full pass, got %+v", report)
	}
	if mr.Exists(lockKey) {
		t.Fatal("lock not released after pass")
	}
}
