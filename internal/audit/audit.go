// Package audit records operator-facing events that must outlive logs, such
// as reconciliation mismatches. Entries are append-only.
package audit

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	// ActionReconcileMismatch marks a wallet whose stored balance diverged
	// from the transaction log.
	ActionReconcileMismatch = "RECONCILE_MISMATCH"

	// ActionFeePostingFailed marks a transfer fee that was debited from the
	// sender but failed to post to the treasury account.
	ActionFeePostingFailed = "FEE_POSTING_FAILED"
)

// Entry is a recorded audit event.
type Entry struct {
	ID        string
	Action    string
	Details   map[string]any
	CreatedAt time.Time
}

// Recorder persists audit entries.
type Recorder interface {
	Record(ctx context.Context, action string, details map[string]any) error
}

// PostgresRecorder stores audit entries in PostgreSQL.
type PostgresRecorder struct {
	db *pgxpool.Pool
}

// NewPostgresRecorder builds a recorder backed by PostgreSQL.
func NewPostgresRecorder(db *pgxpool.Pool) *PostgresRecorder {
	return &PostgresRecorder{db: db}
}

// Record inserts an audit entry.
func (r *PostgresRecorder) Record(ctx context.Context, action string, details map[string]any) error {
	payload, err := json.Marshal(details)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx, `INSERT INTO audit_log (id, action, details, created_at)
        VALUES ($1, $2, $3, $4)`, uuid.New(), action, payload, time.Now().UTC())
	return err
}

// MemoryRecorder collects entries in memory for tests.
type MemoryRecorder struct {
	mu      sync.Mutex
	entries []Entry
}

// NewMemoryRecorder constructs an in-memory recorder.
func NewMemoryRecorder() *MemoryRecorder {
	return &MemoryRecorder{}
}

// Record appends the entry.
func (r *MemoryRecorder) Record(_ context.Context, action string, details map[string]any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, Entry{
		ID:        uuid.NewString(),
		Action:    action,
		Details:   details,
		CreatedAt: time.Now().UTC(),
	})
	return nil
}

// Entries returns a copy of everything recorded so far.
func (r *MemoryRecorder) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Entry, len(r.entries))
	copy(out, r.entries)
	return out
}
