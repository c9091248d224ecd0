package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/carewallet/carewallet/internal/amount"
)

// pgUniqueViolation is the SQLSTATE for unique constraint violations. The
// tx_hash unique index is the authoritative idempotency guard; the in-tx
// pre-check only exists to answer retries with the stored entry's id.
const pgUniqueViolation = "23505"

// PostgresLedger persists balances and ledger entries in PostgreSQL. Every
// mutation runs in a single transaction with the balance row locked, so
// concurrent debits serialize on the row and cannot jointly overdraft.
type PostgresLedger struct {
	db *pgxpool.Pool
}

// NewPostgresLedger constructs a Postgres-backed ledger implementation.
func NewPostgresLedger(db *pgxpool.Pool) *PostgresLedger {
	return &PostgresLedger{db: db}
}

// CreateWallet idempotently ensures a zero balance row for (user, asset).
func (l *PostgresLedger) CreateWallet(ctx context.Context, userID, asset string) error {
	if userID == "" || asset == "" {
		return fmt.Errorf("user id and asset are required")
	}
	_, err := l.db.Exec(ctx, `INSERT INTO wallet_balances (user_id, asset, balance, updated_at)
        VALUES ($1, $2, '0', $3) ON CONFLICT (user_id, asset) DO NOTHING`, userID, asset, time.Now().UTC())
	return err
}

// Credit adds amount to the (user, asset) balance inside one transaction.
func (l *PostgresLedger) Credit(ctx context.Context, args MutationArgs) (MutationResult, error) {
	status, err := validateMutation(args)
	if err != nil {
		return MutationResult{}, err
	}
	amt, err := amount.ParsePositive(args.Amount)
	if err != nil {
		return MutationResult{}, err
	}

	tx, err := l.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return MutationResult{}, err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	res, err := l.creditInTx(ctx, tx, args, status, amt)
	if err != nil {
		return MutationResult{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return MutationResult{}, err
	}
	return res, nil
}

// Debit subtracts amount from the (user, asset) balance inside one transaction.
func (l *PostgresLedger) Debit(ctx context.Context, args MutationArgs) (MutationResult, error) {
	status, err := validateMutation(args)
	if err != nil {
		return MutationResult{}, err
	}
	amt, err := amount.ParsePositive(args.Amount)
	if err != nil {
		return MutationResult{}, err
	}

	tx, err := l.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return MutationResult{}, err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	res, err := l.debitInTx(ctx, tx, args, status, amt)
	if err != nil {
		return MutationResult{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return MutationResult{}, err
	}
	return res, nil
}

// TransferInternal debits the sender and credits the recipient in one
// transaction. Balance rows are locked in deterministic order so two crossing
// transfers cannot deadlock.
func (l *PostgresLedger) TransferInternal(ctx context.Context, args TransferArgs) (TransferResult, error) {
	if args.FromUserID == "" || args.ToUserID == "" {
		return TransferResult{}, fmt.Errorf("from and to user ids are required")
	}
	if args.FromUserID == args.ToUserID {
		return TransferResult{}, fmt.Errorf("cannot transfer to the same user")
	}
	if args.Asset == "" {
		return TransferResult{}, fmt.Errorf("asset is required")
	}
	amt, err := amount.ParsePositive(args.Amount)
	if err != nil {
		return TransferResult{}, err
	}

	transferID := uuid.NewString()
	meta := map[string]any{MetaTransferID: transferID}
	for k, v := range args.Meta {
		if k != MetaTransferID {
			meta[k] = v
		}
	}

	tx, err := l.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return TransferResult{}, err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	first, second := args.FromUserID, args.ToUserID
	if second < first {
		first, second = second, first
	}
	if _, err := lockBalance(ctx, tx, first, args.Asset); err != nil {
		return TransferResult{}, err
	}
	if _, err := lockBalance(ctx, tx, second, args.Asset); err != nil {
		return TransferResult{}, err
	}

	debitArgs := MutationArgs{
		UserID:  args.FromUserID,
		Asset:   args.Asset,
		Amount:  args.Amount,
		ChainID: args.ChainID,
		Type:    TypeSend,
		From:    InternalMarker(args.FromUserID),
		To:      InternalMarker(args.ToUserID),
		Meta:    meta,
	}
	debitRes, err := l.debitInTx(ctx, tx, debitArgs, StatusConfirmed, amt)
	if err != nil {
		return TransferResult{}, err
	}

	creditArgs := MutationArgs{
		UserID:  args.ToUserID,
		Asset:   args.Asset,
		Amount:  args.Amount,
		ChainID: args.ChainID,
		Type:    TypeReceive,
		From:    InternalMarker(args.FromUserID),
		To:      InternalMarker(args.ToUserID),
		Meta:    meta,
	}
	creditRes, err := l.creditInTx(ctx, tx, creditArgs, StatusConfirmed, amt)
	if err != nil {
		return TransferResult{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return TransferResult{}, err
	}

	return TransferResult{TransferID: transferID, Debit: debitRes, Credit: creditRes}, nil
}

// Balance returns the stored balance for (user, asset).
func (l *PostgresLedger) Balance(ctx context.Context, userID, asset string) (string, error) {
	var balance string
	err := l.db.QueryRow(ctx, `SELECT balance FROM wallet_balances WHERE user_id = $1 AND asset = $2`,
		userID, asset).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrWalletNotFound
	}
	if err != nil {
		return "", err
	}
	return balance, nil
}

// Transactions lists a user's ledger entries, newest first.
func (l *PostgresLedger) Transactions(ctx context.Context, userID string, limit int) ([]Transaction, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := l.db.Query(ctx, `SELECT id, user_id, type, direction, asset, amount, status, chain_id,
        from_addr, to_addr, COALESCE(tx_hash, ''), meta, created_at
        FROM transactions WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Transaction
	for rows.Next() {
		entry, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}

// ConfirmTransaction applies a PENDING entry's delta and marks it CONFIRMED.
// The status predicate on the final UPDATE plus the row lock make the delta
// apply exactly once even under concurrent confirmations.
func (l *PostgresLedger) ConfirmTransaction(ctx context.Context, transactionID string) error {
	tx, err := l.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	var (
		userID, asset, amt string
		direction          Direction
		status             Status
	)
	err = tx.QueryRow(ctx, `SELECT user_id, asset, amount, direction, status FROM transactions
        WHERE id = $1 FOR UPDATE`, transactionID).Scan(&userID, &asset, &amt, &direction, &status)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrTransactionNotFound
	}
	if err != nil {
		return err
	}
	if status != StatusPending {
		return ErrTerminalStatus
	}

	previous, err := lockBalance(ctx, tx, userID, asset)
	if err != nil {
		return err
	}

	var newBalance string
	switch direction {
	case DirectionCredit:
		newBalance, err = amount.Add(previous, amt)
	case DirectionDebit:
		var cmp int
		cmp, err = amount.Cmp(previous, amt)
		if err == nil && cmp < 0 {
			// Entry stays PENDING; the caller decides whether to fail it.
			return &InsufficientBalanceError{Have: previous, Need: amt}
		}
		if err == nil {
			newBalance, err = amount.Sub(previous, amt)
		}
	default:
		err = fmt.Errorf("unknown direction %q", direction)
	}
	if err != nil {
		return err
	}

	if err := writeBalance(ctx, tx, userID, asset, newBalance); err != nil {
		return err
	}
	tag, err := tx.Exec(ctx, `UPDATE transactions SET status = $1 WHERE id = $2 AND status = $3`,
		StatusConfirmed, transactionID, StatusPending)
	if err != nil {
		return err
	}
	if tag.RowsAffected() != 1 {
		return ErrTerminalStatus
	}
	return tx.Commit(ctx)
}

// FailTransaction marks a PENDING entry FAILED without touching the balance.
func (l *PostgresLedger) FailTransaction(ctx context.Context, transactionID string) error {
	tag, err := l.db.Exec(ctx, `UPDATE transactions SET status = $1 WHERE id = $2 AND status = $3`,
		StatusFailed, transactionID, StatusPending)
	if err != nil {
		return err
	}
	if tag.RowsAffected() != 1 {
		var exists bool
		if err := l.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM transactions WHERE id = $1)`,
			transactionID).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return ErrTransactionNotFound
		}
		return ErrTerminalStatus
	}
	return nil
}

// ListBalances returns every stored balance row.
func (l *PostgresLedger) ListBalances(ctx context.Context) ([]BalanceRow, error) {
	rows, err := l.db.Query(ctx, `SELECT user_id, asset, balance, updated_at FROM wallet_balances
        ORDER BY user_id, asset`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []BalanceRow
	for rows.Next() {
		var r BalanceRow
		if err := rows.Scan(&r.UserID, &r.Asset, &r.Balance, &r.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ConfirmedNet recomputes the balance from CONFIRMED entries. Summation is
// done in Go with big.Int rather than SQL SUM because amounts are stored as
// arbitrary-precision strings.
func (l *PostgresLedger) ConfirmedNet(ctx context.Context, userID, asset string) (string, error) {
	rows, err := l.db.Query(ctx, `SELECT amount, direction FROM transactions
        WHERE user_id = $1 AND asset = $2 AND status = $3`, userID, asset, StatusConfirmed)
	if err != nil {
		return "", err
	}
	defer rows.Close()

	net := new(big.Int)
	for rows.Next() {
		var amt string
		var direction Direction
		if err := rows.Scan(&amt, &direction); err != nil {
			return "", err
		}
		n, err := amount.Parse(amt)
		if err != nil {
			return "", fmt.Errorf("stored amount for user %s: %w", userID, err)
		}
		if direction == DirectionDebit {
			net.Sub(net, n)
		} else {
			net.Add(net, n)
		}
	}
	if err := rows.Err(); err != nil {
		return "", err
	}
	return amount.Format(net), nil
}

func (l *PostgresLedger) creditInTx(ctx context.Context, tx pgx.Tx, args MutationArgs, status Status, amt *big.Int) (MutationResult, error) {
	if err := checkDuplicateTxHash(ctx, tx, args.TxHash); err != nil {
		return MutationResult{}, err
	}

	previous, err := lockBalance(ctx, tx, args.UserID, args.Asset)
	if err != nil {
		return MutationResult{}, err
	}

	newBalance := previous
	if status == StatusConfirmed {
		newBalance, err = amount.Add(previous, amount.Format(amt))
		if err != nil {
			return MutationResult{}, err
		}
		if err := writeBalance(ctx, tx, args.UserID, args.Asset, newBalance); err != nil {
			return MutationResult{}, err
		}
	}

	id, err := insertTransaction(ctx, tx, args, DirectionCredit, status)
	if err != nil {
		return MutationResult{}, err
	}
	return MutationResult{TransactionID: id, PreviousBalance: previous, NewBalance: newBalance}, nil
}

func (l *PostgresLedger) debitInTx(ctx context.Context, tx pgx.Tx, args MutationArgs, status Status, amt *big.Int) (MutationResult, error) {
	if err := checkDuplicateTxHash(ctx, tx, args.TxHash); err != nil {
		return MutationResult{}, err
	}

	previous, err := lockBalance(ctx, tx, args.UserID, args.Asset)
	if err != nil {
		return MutationResult{}, err
	}

	need := amount.Format(amt)
	cmp, err := amount.Cmp(previous, need)
	if err != nil {
		return MutationResult{}, err
	}
	if cmp < 0 {
		return MutationResult{}, &InsufficientBalanceError{Have: previous, Need: need}
	}

	newBalance := previous
	if status == StatusConfirmed {
		newBalance, err = amount.Sub(previous, need)
		if err != nil {
			return MutationResult{}, err
		}
		if err := writeBalance(ctx, tx, args.UserID, args.Asset, newBalance); err != nil {
			return MutationResult{}, err
		}
	}

	id, err := insertTransaction(ctx, tx, args, DirectionDebit, status)
	if err != nil {
		return MutationResult{}, err
	}
	return MutationResult{TransactionID: id, PreviousBalance: previous, NewBalance: newBalance}, nil
}

// lockBalance lazily creates the balance row, then locks it for the rest of
// the transaction. The lazy insert uses ON CONFLICT DO NOTHING so two
// first-credits racing on the same pair cannot both insert.
func lockBalance(ctx context.Context, tx pgx.Tx, userID, asset string) (string, error) {
	if _, err := tx.Exec(ctx, `INSERT INTO wallet_balances (user_id, asset, balance, updated_at)
        VALUES ($1, $2, '0', $3) ON CONFLICT (user_id, asset) DO NOTHING`, userID, asset, time.Now().UTC()); err != nil {
		return "", err
	}
	var balance string
	if err := tx.QueryRow(ctx, `SELECT balance FROM wallet_balances WHERE user_id = $1 AND asset = $2 FOR UPDATE`,
		userID, asset).Scan(&balance); err != nil {
		return "", err
	}
	return balance, nil
}

func writeBalance(ctx context.Context, tx pgx.Tx, userID, asset, balance string) error {
	_, err := tx.Exec(ctx, `UPDATE wallet_balances SET balance = $1, updated_at = $2
        WHERE user_id = $3 AND asset = $4`, balance, time.Now().UTC(), userID, asset)
	return err
}

func checkDuplicateTxHash(ctx context.Context, tx pgx.Tx, txHash string) error {
	if txHash == "" {
		return nil
	}
	var existing uuid.UUID
	err := tx.QueryRow(ctx, `SELECT id FROM transactions WHERE tx_hash = $1`, txHash).Scan(&existing)
	if err == nil {
		return &DuplicateTxHashError{TxHash: txHash}
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return nil
	}
	return err
}

func insertTransaction(ctx context.Context, tx pgx.Tx, args MutationArgs, direction Direction, status Status) (string, error) {
	id := uuid.New()
	var meta []byte
	if args.Meta != nil {
		var err error
		meta, err = json.Marshal(args.Meta)
		if err != nil {
			return "", fmt.Errorf("encode meta: %w", err)
		}
	}
	var txHash *string
	if args.TxHash != "" {
		txHash = &args.TxHash
	}
	_, err := tx.Exec(ctx, `INSERT INTO transactions
        (id, user_id, type, direction, asset, amount, status, chain_id, from_addr, to_addr, tx_hash, meta, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		id, args.UserID, args.Type, direction, args.Asset, args.Amount, status, args.ChainID,
		args.From, args.To, txHash, meta, time.Now().UTC())
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			// Two retries raced past the pre-check; the unique index decides.
			return "", &DuplicateTxHashError{TxHash: args.TxHash}
		}
		return "", err
	}
	return id.String(), nil
}

func scanTransaction(rows pgx.Rows) (Transaction, error) {
	var (
		entry Transaction
		id    uuid.UUID
		meta  []byte
	)
	if err := rows.Scan(&id, &entry.UserID, &entry.Type, &entry.Direction, &entry.Asset, &entry.Amount,
		&entry.Status, &entry.ChainID, &entry.From, &entry.To, &entry.TxHash, &meta, &entry.CreatedAt); err != nil {
		return Transaction{}, err
	}
	entry.ID = id.String()
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &entry.Meta); err != nil {
			return Transaction{}, fmt.Errorf("decode meta: %w", err)
		}
	}
	entry.CreatedAt = entry.CreatedAt.UTC()
	return entry, nil
}
