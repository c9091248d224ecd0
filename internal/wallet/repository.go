package wallet

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound indicates no wallet row exists for the user.
var ErrNotFound = errors.New("wallet not found")

// Repository persists wallet metadata.
type Repository interface {
	Ensure(ctx context.Context, wallet Wallet) error
	Get(ctx context.Context, userID string) (Wallet, error)
	UpdatePrimaryBalance(ctx context.Context, userID, balance string) error
}

// PostgresRepository stores wallets in PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a repository backed by PostgreSQL.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Ensure inserts the wallet row if the user does not have one yet.
func (r *PostgresRepository) Ensure(ctx context.Context, wallet Wallet) error {
	id, err := uuid.Parse(wallet.ID)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx, `INSERT INTO wallets (id, user_id, smart_account_address, chain_id, primary_balance, created_at)
        VALUES ($1, $2, $3, $4, $5, $6) ON CONFLICT (user_id) DO NOTHING`,
		id, wallet.UserID, wallet.SmartAccountAddress, wallet.ChainID, wallet.PrimaryBalance, wallet.CreatedAt.UTC())
	return err
}

// Get fetches wallet metadata by owner.
func (r *PostgresRepository) Get(ctx context.Context, userID string) (Wallet, error) {
	row := r.db.QueryRow(ctx, `SELECT id, user_id, smart_account_address, chain_id, primary_balance, created_at
        FROM wallets WHERE user_id = $1`, userID)
	var (
		w         Wallet
		id        uuid.UUID
		createdAt time.Time
	)
	if err := row.Scan(&id, &w.UserID, &w.SmartAccountAddress, &w.ChainID, &w.PrimaryBalance, &createdAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Wallet{}, ErrNotFound
		}
		return Wallet{}, err
	}
	w.ID = id.String()
	w.CreatedAt = createdAt.UTC()
	return w, nil
}

// UpdatePrimaryBalance refreshes the mirrored primary-asset balance.
func (r *PostgresRepository) UpdatePrimaryBalance(ctx context.Context, userID, balance string) error {
	_, err := r.db.Exec(ctx, `UPDATE wallets SET primary_balance = $1 WHERE user_id = $2`, balance, userID)
	return err
}
