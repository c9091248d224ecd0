package treasury

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/carewallet/carewallet/internal/amount"
	"github.com/carewallet/carewallet/internal/ledger"
)

const pgUniqueViolation = "23505"

// PostgresStore persists the treasury ledger in PostgreSQL with the same
// row-lock-per-mutation discipline as the user ledger.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore constructs a Postgres-backed treasury store.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

// Credit adds amount to the (label, asset) balance.
func (s *PostgresStore) Credit(ctx context.Context, args PostArgs) (PostResult, error) {
	return s.post(ctx, args, ledger.DirectionCredit)
}

// Debit subtracts amount from the (label, asset) balance.
func (s *PostgresStore) Debit(ctx context.Context, args PostArgs) (PostResult, error) {
	return s.post(ctx, args, ledger.DirectionDebit)
}

// Balance returns the stored balance for (label, asset).
func (s *PostgresStore) Balance(ctx context.Context, label, asset string) (string, error) {
	var balance string
	err := s.db.QueryRow(ctx, `SELECT balance FROM admin_wallets WHERE label = $1 AND asset = $2`,
		label, asset).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ledger.ErrWalletNotFound
	}
	if err != nil {
		return "", err
	}
	return balance, nil
}

// Entries lists treasury ledger entries for a label, newest first.
func (s *PostgresStore) Entries(ctx context.Context, label string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(ctx, `SELECT id, label, type, direction, asset, amount, status,
        COALESCE(tx_hash, ''), meta, created_at
        FROM admin_transactions WHERE label = $1 ORDER BY created_at DESC LIMIT $2`, label, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e    Entry
			id   uuid.UUID
			meta []byte
		)
		if err := rows.Scan(&id, &e.Label, &e.Type, &e.Direction, &e.Asset, &e.Amount, &e.Status,
			&e.TxHash, &meta, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.ID = id.String()
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &e.Meta); err != nil {
				return nil, fmt.Errorf("decode meta: %w", err)
			}
		}
		e.CreatedAt = e.CreatedAt.UTC()
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *PostgresStore) post(ctx context.Context, args PostArgs, direction ledger.Direction) (PostResult, error) {
	if args.Label == "" || args.Asset == "" {
		return PostResult{}, fmt.Errorf("label and asset are required")
	}
	if !ledger.ValidType(args.Type) {
		return PostResult{}, fmt.Errorf("unknown transaction type %q", args.Type)
	}
	amt, err := amount.ParsePositive(args.Amount)
	if err != nil {
		return PostResult{}, err
	}

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return PostResult{}, err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	if args.TxHash != "" {
		var existing uuid.UUID
		err := tx.QueryRow(ctx, `SELECT id FROM admin_transactions WHERE tx_hash = $1`, args.TxHash).Scan(&existing)
		if err == nil {
			return PostResult{}, &ledger.DuplicateTxHashError{TxHash: args.TxHash}
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return PostResult{}, err
		}
	}

	if _, err := tx.Exec(ctx, `INSERT INTO admin_wallets (label, asset, balance, updated_at)
        VALUES ($1, $2, '0', $3) ON CONFLICT (label, asset) DO NOTHING`, args.Label, args.Asset, time.Now().UTC()); err != nil {
		return PostResult{}, err
	}
	var previous string
	if err := tx.QueryRow(ctx, `SELECT balance FROM admin_wallets WHERE label = $1 AND asset = $2 FOR UPDATE`,
		args.Label, args.Asset).Scan(&previous); err != nil {
		return PostResult{}, err
	}

	var newBalance string
	if direction == ledger.DirectionDebit {
		cmp, err := amount.Cmp(previous, amount.Format(amt))
		if err != nil {
			return PostResult{}, err
		}
		if cmp < 0 {
			return PostResult{}, &ledger.InsufficientBalanceError{Have: previous, Need: amount.Format(amt)}
		}
		newBalance, err = amount.Sub(previous, amount.Format(amt))
		if err != nil {
			return PostResult{}, err
		}
	} else {
		newBalance, err = amount.Add(previous, amount.Format(amt))
		if err != nil {
			return PostResult{}, err
		}
	}

	if _, err := tx.Exec(ctx, `UPDATE admin_wallets SET balance = $1, updated_at = $2
        WHERE label = $3 AND asset = $4`, newBalance, time.Now().UTC(), args.Label, args.Asset); err != nil {
		return PostResult{}, err
	}

	id := uuid.New()
	var meta []byte
	if args.Meta != nil {
		meta, err = json.Marshal(args.Meta)
		if err != nil {
			return PostResult{}, fmt.Errorf("encode meta: %w", err)
		}
	}
	var txHash *string
	if args.TxHash != "" {
		txHash = &args.TxHash
	}
	if _, err := tx.Exec(ctx, `INSERT INTO admin_transactions
        (id, label, type, direction, asset, amount, status, tx_hash, meta, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		id, args.Label, args.Type, direction, args.Asset, args.Amount, ledger.StatusConfirmed,
		txHash, meta, time.Now().UTC()); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return PostResult{}, &ledger.DuplicateTxHashError{TxHash: args.TxHash}
		}
		return PostResult{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return PostResult{}, err
	}
	return PostResult{TransactionID: id.String(), PreviousBalance: previous, NewBalance: newBalance}, nil
}
