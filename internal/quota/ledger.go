package quota

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Kind names a rate-limited action tracked per rolling period.
type Kind string

const (
	// KindConsultationMessage is one user message inside an AI consultation.
	KindConsultationMessage Kind = "consultation_message"
)

// Decision is the outcome of a consume attempt. Remaining is read back from
// the counter, never derived from caller-side state.
type Decision struct {
	Allowed   bool
	Remaining int
}

// Ledger is the sole authority on per-user usage counters. The increment is
// a guarded UPDATE, so "under limit" and "consume one" are a single atomic
// step per (user, kind) regardless of concurrent callers.
type Ledger struct {
	db     *sql.DB
	driver string
	limits map[Kind]int
	period time.Duration
}

// NewLedger builds a ledger over the shared database. driver selects the
// SQL dialect for the row-ensure statement (sqlite3 or mysql).
func NewLedger(db *sql.DB, driver string, limits map[Kind]int, period time.Duration) (*Ledger, error) {
	if db == nil {
		return nil, errors.New("database required")
	}
	if period <= 0 {
		return nil, errors.New("quota period must be positive")
	}
	switch strings.ToLower(driver) {
	case "sqlite", "sqlite3", "mysql":
	default:
		return nil, fmt.Errorf("unsupported driver: %s", driver)
	}
	return &Ledger{db: db, driver: strings.ToLower(driver), limits: limits, period: period}, nil
}

// Limit returns the configured cap for the kind (0 when unknown).
func (l *Ledger) Limit(kind Kind) int {
	return l.limits[kind]
}

// TryConsume atomically checks the counter against the limit and increments
// it when under. Period rollover is evaluated lazily before the increment.
func (l *Ledger) TryConsume(ctx context.Context, userID int64, kind Kind) (Decision, error) {
	if userID <= 0 {
		return Decision{}, errors.New("invalid user id")
	}
	limit := l.limits[kind]
	if limit <= 0 {
		return Decision{Allowed: false, Remaining: 0}, nil
	}

	now := time.Now().UTC()
	if err := l.ensureCounter(ctx, userID, kind, now); err != nil {
		return Decision{}, err
	}
	if err := l.rollover(ctx, userID, kind, now); err != nil {
		return Decision{}, err
	}

	// The guarded UPDATE is the serialization point: two concurrent calls
	// can never both pass the last remaining unit.
	res, err := l.db.ExecContext(ctx,
		`UPDATE quota_counters SET consumed = consumed + 1
		 WHERE user_id = ? AND kind = ? AND consumed < ?`,
		userID, string(kind), limit,
	)
	if err != nil {
		return Decision{}, fmt.Errorf("consume quota: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return Decision{}, fmt.Errorf("consume quota rows: %w", err)
	}

	var consumed int
	if err := l.db.QueryRowContext(ctx,
		`SELECT consumed FROM quota_counters WHERE user_id = ? AND kind = ?`,
		userID, string(kind),
	).Scan(&consumed); err != nil {
		return Decision{}, fmt.Errorf("read quota: %w", err)
	}

	remaining := limit - consumed
	if remaining < 0 {
		remaining = 0
	}
	return Decision{Allowed: affected > 0, Remaining: remaining}, nil
}

// Remaining reports how many units are left in the current period without
// consuming any. A counter from an expired period counts as full quota.
func (l *Ledger) Remaining(ctx context.Context, userID int64, kind Kind) (int, error) {
	if userID <= 0 {
		return 0, errors.New("invalid user id")
	}
	limit := l.limits[kind]
	if limit <= 0 {
		return 0, nil
	}

	var consumed int
	var periodStart time.Time
	err := l.db.QueryRowContext(ctx,
		`SELECT consumed, period_start FROM quota_counters WHERE user_id = ? AND kind = ?`,
		userID, string(kind),
	).Scan(&consumed, &periodStart)
	if errors.Is(err, sql.ErrNoRows) {
		return limit, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read quota: %w", err)
	}
	if time.Now().UTC().Sub(periodStart) >= l.period {
		return limit, nil
	}
	remaining := limit - consumed
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}

// ensureCounter creates the zero row if missing. Races with a concurrent
// insert are absorbed by the dialect's insert-ignore form.
func (l *Ledger) ensureCounter(ctx context.Context, userID int64, kind Kind, now time.Time) error {
	var stmt string
	switch l.driver {
	case "mysql":
		stmt = `INSERT IGNORE INTO quota_counters (user_id, kind, consumed, period_start) VALUES (?, ?, 0, ?)`
	default:
		stmt = `INSERT OR IGNORE INTO quota_counters (user_id, kind, consumed, period_start) VALUES (?, ?, 0, ?)`
	}
	if _, err := l.db.ExecContext(ctx, stmt, userID, string(kind), now); err != nil {
		return fmt.Errorf("ensure quota counter: %w", err)
	}
	return nil
}

// rollover resets the counter when its period has elapsed. The guard on
// period_start keeps concurrent rollovers idempotent.
func (l *Ledger) rollover(ctx context.Context, userID int64, kind Kind, now time.Time) error {
	cutoff := now.Add(-l.period)
	if _, err := l.db.ExecContext(ctx,
		`UPDATE quota_counters SET consumed = 0, period_start = ?
		 WHERE user_id = ? AND kind = ? AND period_start <= ?`,
		now, userID, string(kind), cutoff,
	); err != nil {
		return fmt.Errorf("roll quota period: %w", err)
	}
	return nil
}
