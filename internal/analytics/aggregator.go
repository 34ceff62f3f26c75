package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"time"

	"sigflow/internal/cache"
	"sigflow/internal/database"
	"sigflow/internal/ledger"
	"sigflow/internal/logger"
	"sigflow/internal/signal"
)

// Summary represents one day's aggregate for a ticker, timeframe and
// originating-system group. Rebuilt by upsert; never incremented.
type Summary struct {
	ID          int64          `json:"id"`
	SummaryDate time.Time      `json:"summary_date"`
	Ticker      string         `json:"ticker"`
	Timeframe   string         `json:"timeframe"`
	System      string         `json:"system"`
	Detected    int            `json:"detected"`
	Sent        int            `json:"sent"`
	Skipped     int            `json:"skipped"`
	AvgScore    float64        `json:"avg_score"`
	Levels      map[string]int `json:"levels"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// Utilization returns the group's sent/detected rate, zero when the
// group detected nothing.
func (s Summary) Utilization() float64 {
	return utilizationRate(s.Sent, s.Detected)
}

// UtilizationReport represents the sent/detected rate over a trailing
// window.
type UtilizationReport struct {
	From     time.Time `json:"from"`
	To       time.Time `json:"to"`
	Detected int       `json:"detected"`
	Sent     int       `json:"sent"`
	Rate     float64   `json:"rate"`
}

// SummaryCache is the read-path cache used by SummaryRange.
type SummaryCache interface {
	GetJSON(ctx context.Context, key string, dest interface{}) error
	SetJSON(ctx context.Context, key string, value interface{}, expiration time.Duration) error
}

// Aggregator builds daily summaries from the ledger. It only reads
// ledger rows and owns the summary table exclusively, so rebuilds can
// run concurrently with dispatch cycles.
type Aggregator struct {
	db    *database.DB
	led   *ledger.Repository
	cache SummaryCache
	ttl   time.Duration
	log   logger.Logger
}

// NewAggregator creates an aggregator.
func NewAggregator(db *database.DB, led *ledger.Repository, log logger.Logger) *Aggregator {
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	return &Aggregator{db: db, led: led, ttl: time.Minute, log: log}
}

// WithCache attaches a read-path cache for SummaryRange.
func (a *Aggregator) WithCache(c SummaryCache, ttl time.Duration) *Aggregator {
	a.cache = c
	if ttl > 0 {
		a.ttl = ttl
	}
	return a
}

// groupRow is one (ticker, timeframe, system, level) bucket of the
// rebuild query.
type groupRow struct {
	Ticker    string
	Timeframe string
	System    string
	Level     string
	Total     int
	Sent      int
	ScoreSum  int64
}

// RebuildDate recomputes every summary row for the UTC day containing
// date. Running it twice against an unchanged ledger yields identical
// aggregates; groups with no ledger rows produce no summary row.
func (a *Aggregator) RebuildDate(ctx context.Context, date time.Time) ([]Summary, error) {
	day := date.UTC().Truncate(24 * time.Hour)
	next := day.Add(24 * time.Hour)

	query := `
		SELECT ticker, timeframe, system, level,
		       COUNT(*) AS total,
		       COUNT(*) FILTER (WHERE outcome = $3) AS sent,
		       COALESCE(SUM(score), 0) AS score_sum
		FROM signal_ledger
		WHERE evaluated_at >= $1 AND evaluated_at < $2
		GROUP BY ticker, timeframe, system, level
	`

	rows, err := a.db.QueryContext(ctx, query, day, next, string(signal.OutcomeSent))
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate ledger for %s: %w", day.Format("2006-01-02"), err)
	}
	defer rows.Close()

	var buckets []groupRow
	for rows.Next() {
		var g groupRow
		if err := rows.Scan(&g.Ticker, &g.Timeframe, &g.System, &g.Level,
			&g.Total, &g.Sent, &g.ScoreSum); err != nil {
			return nil, fmt.Errorf("failed to scan aggregate row: %w", err)
		}
		buckets = append(buckets, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read aggregate rows: %w", err)
	}

	summaries := buildSummaries(day, buckets)
	if len(summaries) == 0 {
		return nil, nil
	}

	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin rebuild transaction: %w", err)
	}
	defer tx.Rollback()

	upsert := `
		INSERT INTO signal_analytics (
			summary_date, ticker, timeframe, system,
			detected_count, sent_count, skipped_count, avg_score, level_distribution
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (summary_date, ticker, timeframe, system) DO UPDATE SET
			detected_count = EXCLUDED.detected_count,
			sent_count = EXCLUDED.sent_count,
			skipped_count = EXCLUDED.skipped_count,
			avg_score = EXCLUDED.avg_score,
			level_distribution = EXCLUDED.level_distribution,
			updated_at = NOW()
		RETURNING id, updated_at
	`

	for i := range summaries {
		s := &summaries[i]
		levels, err := json.Marshal(s.Levels)
		if err != nil {
			return nil, fmt.Errorf("failed to encode level distribution: %w", err)
		}
		err = tx.QueryRowContext(ctx, upsert,
			s.SummaryDate, s.Ticker, s.Timeframe, s.System,
			s.Detected, s.Sent, s.Skipped, s.AvgScore, levels,
		).Scan(&s.ID, &s.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to upsert summary for %s/%s/%s: %w",
				s.Ticker, s.Timeframe, s.System, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit rebuild: %w", err)
	}

	a.log.Info("analytics rebuilt", "date", day.Format("2006-01-02"), "groups", len(summaries))
	return summaries, nil
}

// buildSummaries folds per-level buckets into per-group summaries,
// sorted for deterministic output.
func buildSummaries(day time.Time, buckets []groupRow) []Summary {
	type key struct{ ticker, timeframe, system string }
	groups := make(map[key]*Summary)
	scoreSums := make(map[key]int64)

	for _, g := range buckets {
		k := key{g.Ticker, g.Timeframe, g.System}
		s := groups[k]
		if s == nil {
			s = &Summary{
				SummaryDate: day,
				Ticker:      g.Ticker,
				Timeframe:   g.Timeframe,
				System:      g.System,
				Levels:      make(map[string]int),
			}
			groups[k] = s
		}
		s.Detected += g.Total
		s.Sent += g.Sent
		s.Levels[g.Level] += g.Total
		scoreSums[k] += g.ScoreSum
	}

	out := make([]Summary, 0, len(groups))
	for k, s := range groups {
		s.Skipped = s.Detected - s.Sent
		if s.Detected > 0 {
			s.AvgScore = round2(float64(scoreSums[k]) / float64(s.Detected))
		}
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Ticker != out[j].Ticker {
			return out[i].Ticker < out[j].Ticker
		}
		if out[i].Timeframe != out[j].Timeframe {
			return out[i].Timeframe < out[j].Timeframe
		}
		return out[i].System < out[j].System
	})
	return out
}

// SummaryRange returns stored summaries for [from, to] inclusive,
// optionally restricted to one ticker, newest day first. Results are
// cached briefly to keep dashboard polling off the database.
func (a *Aggregator) SummaryRange(ctx context.Context, from, to time.Time, ticker string) ([]Summary, error) {
	key := summaryCacheKey(from, to, ticker)
	if a.cache != nil {
		var cached []Summary
		err := a.cache.GetJSON(ctx, key, &cached)
		if err == nil {
			return cached, nil
		}
		if err != cache.ErrMiss {
			a.log.Warn("analytics cache read failed", "key", key, "error", err)
		}
	}

	query := `
		SELECT id, summary_date, ticker, timeframe, system,
		       detected_count, sent_count, skipped_count, avg_score,
		       level_distribution, updated_at
		FROM signal_analytics
		WHERE summary_date >= $1 AND summary_date <= $2
	`
	args := []interface{}{from, to}
	if ticker != "" {
		query += ` AND ticker = $3`
		args = append(args, ticker)
	}
	query += ` ORDER BY summary_date DESC, ticker, timeframe, system`

	rows, err := a.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query summaries: %w", err)
	}
	defer rows.Close()

	var summaries []Summary
	for rows.Next() {
		var s Summary
		var levels []byte
		if err := rows.Scan(&s.ID, &s.SummaryDate, &s.Ticker, &s.Timeframe, &s.System,
			&s.Detected, &s.Sent, &s.Skipped, &s.AvgScore, &levels, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan summary: %w", err)
		}
		if len(levels) > 0 {
			if err := json.Unmarshal(levels, &s.Levels); err != nil {
				return nil, fmt.Errorf("failed to decode level distribution: %w", err)
			}
		}
		summaries = append(summaries, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read summaries: %w", err)
	}

	if a.cache != nil {
		if err := a.cache.SetJSON(ctx, key, summaries, a.ttl); err != nil {
			a.log.Warn("analytics cache write failed", "key", key, "error", err)
		}
	}
	return summaries, nil
}

// Utilization reports sent/detected over a trailing window, default
// 24h.
func (a *Aggregator) Utilization(ctx context.Context, window time.Duration) (UtilizationReport, error) {
	if window <= 0 {
		window = 24 * time.Hour
	}
	to := time.Now().UTC()
	from := to.Add(-window)

	detected, sent, err := a.led.CountSince(ctx, from)
	if err != nil {
		return UtilizationReport{}, fmt.Errorf("failed to compute utilization: %w", err)
	}

	return UtilizationReport{
		From:     from,
		To:       to,
		Detected: detected,
		Sent:     sent,
		Rate:     utilizationRate(sent, detected),
	}, nil
}

// Missed returns high-level skipped signals since the given time.
func (a *Aggregator) Missed(ctx context.Context, since time.Time, limit int) ([]*signal.LedgerEntry, error) {
	return a.led.MissedOpportunities(ctx, since, limit)
}

func summaryCacheKey(from, to time.Time, ticker string) string {
	return fmt.Sprintf("analytics:summary:%s:%s:%s",
		from.Format("2006-01-02"), to.Format("2006-01-02"), ticker)
}

func utilizationRate(sent, detected int) float64 {
	if detected <= 0 {
		return 0
	}
	return float64(sent) / float64(detected)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
