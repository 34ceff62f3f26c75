package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"sigflow/internal/database"
	"sigflow/internal/signal"
)

// Repository persists signal evaluations. The identity uniqueness
// constraint on (ticker, timeframe, signal_type, detected_at) is the
// authoritative deduplication mechanism: concurrent evaluations of the
// same signal funnel through the constrained insert and exactly one
// wins.
type Repository struct {
	db *database.DB
}

// NewRepository creates a ledger repository.
func NewRepository(db *database.DB) *Repository {
	return &Repository{db: db}
}

const entryColumns = `
	id, ticker, timeframe, signal_type, detected_at, strength, system,
	score, level, outcome, skip_reason, breakdown, delivery_ref, evaluated_at
`

// Record inserts an evaluation. It returns true when the entry was
// created and false when the identity already exists; a false return
// is the duplicate signal, not an error. On success the entry's ID and
// EvaluatedAt are filled in.
func (r *Repository) Record(ctx context.Context, e *signal.LedgerEntry) (bool, error) {
	breakdown, err := json.Marshal(e.Breakdown)
	if err != nil {
		return false, fmt.Errorf("failed to encode breakdown: %w", err)
	}

	query := `
		INSERT INTO signal_ledger (
			ticker, timeframe, signal_type, detected_at, strength, system,
			score, level, outcome, skip_reason, breakdown, delivery_ref
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT ON CONSTRAINT signal_ledger_identity_key DO NOTHING
		RETURNING id, evaluated_at
	`

	err = r.db.QueryRowContext(ctx, query,
		e.Ticker, e.Timeframe, e.SignalType, e.DetectedAt,
		string(e.Strength), e.System,
		e.Score, string(e.Level), string(e.Outcome),
		nullString(e.SkipReason), breakdown, nullString(e.DeliveryRef),
	).Scan(&e.ID, &e.EvaluatedAt)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to record ledger entry: %w", err)
	}
	return true, nil
}

// Exists reports whether an identity is already recorded. Callers use
// it to short-circuit work early; the constrained insert in Record
// remains the authoritative check.
func (r *Repository) Exists(ctx context.Context, id signal.Identity) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM signal_ledger
			WHERE ticker = $1 AND timeframe = $2 AND signal_type = $3 AND detected_at = $4
		)
	`

	var exists bool
	err := r.db.QueryRowContext(ctx, query,
		id.Ticker, id.Timeframe, id.SignalType, id.DetectedAt).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check ledger identity: %w", err)
	}
	return exists, nil
}

// SetDeliveryRef attaches the external delivery reference to a sent
// entry after the delivery collaborator confirms it.
func (r *Repository) SetDeliveryRef(ctx context.Context, id int64, ref string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE signal_ledger SET delivery_ref = $2 WHERE id = $1`, id, ref)
	if err != nil {
		return fmt.Errorf("failed to set delivery reference: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read update result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("ledger entry %d not found", id)
	}
	return nil
}

// Filter narrows ledger queries. Zero values mean no restriction.
type Filter struct {
	Ticker    string
	Timeframe string
	Level     signal.Level
	Outcome   signal.Outcome
	Since     time.Time
	Until     time.Time
	Limit     int
}

const (
	defaultQueryLimit = 100
	maxQueryLimit     = 1000
)

func (f Filter) whereClause() (string, []interface{}) {
	var conditions []string
	var args []interface{}

	add := func(cond string, arg interface{}) {
		args = append(args, arg)
		conditions = append(conditions, fmt.Sprintf(cond, len(args)))
	}

	if f.Ticker != "" {
		add("ticker = $%d", f.Ticker)
	}
	if f.Timeframe != "" {
		add("timeframe = $%d", f.Timeframe)
	}
	if f.Level != "" {
		add("level = $%d", string(f.Level))
	}
	if f.Outcome != "" {
		add("outcome = $%d", string(f.Outcome))
	}
	if !f.Since.IsZero() {
		add("evaluated_at >= $%d", f.Since)
	}
	if !f.Until.IsZero() {
		add("evaluated_at < $%d", f.Until)
	}

	if len(conditions) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conditions, " AND "), args
}

func (f Filter) limit() int {
	switch {
	case f.Limit <= 0:
		return defaultQueryLimit
	case f.Limit > maxQueryLimit:
		return maxQueryLimit
	default:
		return f.Limit
	}
}

// Query returns ledger entries matching the filter, newest first.
func (r *Repository) Query(ctx context.Context, f Filter) ([]*signal.LedgerEntry, error) {
	where, args := f.whereClause()
	query := fmt.Sprintf(`SELECT %s FROM signal_ledger%s ORDER BY evaluated_at DESC LIMIT %d`,
		entryColumns, where, f.limit())

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query ledger: %w", err)
	}
	defer rows.Close()

	var entries []*signal.LedgerEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan ledger entry: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// MissedOpportunities returns high-level signals skipped for a
// non-duplicate reason since the given time, newest first. Derived at
// query time rather than stored, since the definition can change.
func (r *Repository) MissedOpportunities(ctx context.Context, since time.Time, limit int) ([]*signal.LedgerEntry, error) {
	f := Filter{Limit: limit}
	query := fmt.Sprintf(`
		SELECT %s FROM signal_ledger
		WHERE level IN ($1, $2)
		  AND outcome = $3
		  AND skip_reason IS NOT NULL
		  AND skip_reason <> $4
		  AND evaluated_at >= $5
		ORDER BY evaluated_at DESC
		LIMIT %d
	`, entryColumns, f.limit())

	rows, err := r.db.QueryContext(ctx, query,
		string(signal.LevelCritical), string(signal.LevelHigh),
		string(signal.OutcomeSkipped), string(signal.SkipDuplicate), since)
	if err != nil {
		return nil, fmt.Errorf("failed to query missed opportunities: %w", err)
	}
	defer rows.Close()

	var entries []*signal.LedgerEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan missed opportunity: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// CountSince counts entries evaluated since the given time, split into
// total detected and delivered.
func (r *Repository) CountSince(ctx context.Context, since time.Time) (detected, sent int, err error) {
	err = r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) AS detected,
		       COUNT(*) FILTER (WHERE outcome = $2) AS sent
		FROM signal_ledger
		WHERE evaluated_at >= $1
	`, since, string(signal.OutcomeSent)).Scan(&detected, &sent)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to count ledger entries: %w", err)
	}
	return detected, sent, nil
}

// Cleanup deletes entries evaluated before the horizon and returns how
// many were removed. This is the only path that deletes ledger rows.
func (r *Repository) Cleanup(ctx context.Context, olderThan time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM signal_ledger WHERE evaluated_at < $1`, olderThan)
	if err != nil {
		return 0, fmt.Errorf("failed to clean up ledger: %w", err)
	}

	removed, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read cleanup result: %w", err)
	}
	return removed, nil
}

func scanEntry(row interface{ Scan(...interface{}) error }) (*signal.LedgerEntry, error) {
	e := &signal.LedgerEntry{}
	var strength, level, outcome string
	var skipReason, deliveryRef sql.NullString
	var breakdown []byte

	err := row.Scan(
		&e.ID, &e.Ticker, &e.Timeframe, &e.SignalType, &e.DetectedAt,
		&strength, &e.System, &e.Score, &level, &outcome,
		&skipReason, &breakdown, &deliveryRef, &e.EvaluatedAt,
	)
	if err != nil {
		return nil, err
	}

	e.Strength = signal.Strength(strength)
	e.Level = signal.Level(level)
	e.Outcome = signal.Outcome(outcome)
	e.SkipReason = skipReason.String
	e.DeliveryRef = deliveryRef.String

	if len(breakdown) > 0 {
		if err := json.Unmarshal(breakdown, &e.Breakdown); err != nil {
			return nil, fmt.Errorf("failed to decode breakdown: %w", err)
		}
	}
	return e, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
