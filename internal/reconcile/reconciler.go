// Package reconcile recomputes wallet balances from the transaction log and
// flags divergence from the stored values. It never repairs a balance:
// auto-correction could mask a bug that lost real funds, so mismatches are
// recorded for operator review instead.
package reconcile

import (
	"context"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/carewallet/carewallet/internal/audit"
	"github.com/carewallet/carewallet/internal/ledger"
)

const (
	lockKey = "reconcile:v1:leader"
	lockTTL = 10 * time.Minute
)

// Report summarizes one reconciliation pass.
type Report struct {
	Wallets    int
	Mismatches int
	StartedAt  time.Time
	Duration   time.Duration
}

// Reconciler runs the periodic balance check.
type Reconciler struct {
	ledger   ledger.Ledger
	auditor  audit.Recorder
	cache    *redis.Client
	logger   *slog.Logger
	parallel int
}

// New constructs a reconciler. cache may be nil, in which case the leader
// lock is skipped (single-instance deployments and tests).
func New(ledgerBackend ledger.Ledger, auditor audit.Recorder, cache *redis.Client, logger *slog.Logger) *Reconciler {
	return &Reconciler{
		ledger:   ledgerBackend,
		auditor:  auditor,
		cache:    cache,
		logger:   logger,
		parallel: 8,
	}
}

// Run performs one reconciliation pass over every stored balance. Only one
// process instance runs a pass at a time; others observe the redis lock and
// return an empty report.
func (r *Reconciler) Run(ctx context.Context) (Report, error) {
	report := Report{StartedAt: time.Now().UTC()}

	if r.cache != nil {
		acquired, err := r.cache.SetNX(ctx, lockKey, report.StartedAt.Format(time.RFC3339Nano), lockTTL).Result()
		if err != nil {
			return Report{}, err
		}
		if !acquired {
			r.logger.Info("reconcile pass skipped, another instance holds the lock")
			return report, nil
		}
		defer r.cache.Del(context.WithoutCancel(ctx), lockKey)
	}

	balances, err := r.ledger.ListBalances(ctx)
	if err != nil {
		return Report{}, err
	}
	report.Wallets = len(balances)

	mismatches := make(chan int, len(balances))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.parallel)
	for _, row := range balances {
		row := row
		g.Go(func() error {
			mismatch, err := r.checkWallet(gctx, row)
			if err != nil {
				return err
			}
			if mismatch {
				mismatches <- 1
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Report{}, err
	}
	close(mismatches)
	for range mismatches {
		report.Mismatches++
	}

	report.Duration = time.Since(report.StartedAt)
	r.logger.Info("reconcile pass complete",
		"wallets", report.Wallets,
		"mismatches", report.Mismatches,
		"duration", report.Duration,
	)
	return report, nil
}

// checkWallet recomputes one wallet's balance, retrying transient storage
// failures with exponential backoff so a flaky connection does not abort the
// whole pass.
func (r *Reconciler) checkWallet(ctx context.Context, row ledger.BalanceRow) (bool, error) {
	var computed string
	operation := func() error {
		var err error
		computed, err = r.ledger.ConfirmedNet(ctx, row.UserID, row.Asset)
		return err
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		return false, err
	}

	if computed == row.Balance {
		return false, nil
	}

	r.logger.Warn("balance mismatch",
		"user_id", row.UserID,
		"asset", row.Asset,
		"stored", row.Balance,
		"computed", computed,
	)
	if err := r.auditor.Record(ctx, audit.ActionReconcileMismatch, map[string]any{
		"user_id":  row.UserID,
		"asset":    row.Asset,
		"stored":   row.Balance,
		"computed": computed,
	}); err != nil {
		return true, err
	}
	return true, nil
}

// RunEvery runs one pass immediately, then repeats on the interval until the
// context is cancelled. Pass failures are logged and the loop keeps going.
func (r *Reconciler) RunEvery(ctx context.Context, interval time.Duration) {
	if _, err := r.Run(ctx); err != nil {
		r.logger.Error("reconcile pass failed", "error", err)
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := r.Run(ctx); err != nil {
				r.logger.Error("reconcile pass failed", "error", err)
			}
		}
	}
}
