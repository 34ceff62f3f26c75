package priority

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"sigflow/internal/database"
	"sigflow/internal/signal"
)

// Sentinel errors for store operations.
var (
	ErrNotFound  = errors.New("configuration not found")
	ErrDuplicate = errors.New("configuration already exists")
	ErrActive    = errors.New("configuration is active")
)

// Store persists priority configurations
type Store struct {
	db *database.DB
}

// NewStore creates a configuration store.
func NewStore(db *database.DB) *Store {
	return &Store{db: db}
}

const configColumns = `
	id, name, critical_threshold, high_threshold, medium_threshold, low_threshold,
	vip_tickers, vip_timeframes, min_level, is_active, created_at, updated_at
`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanConfiguration(row rowScanner) (*Configuration, error) {
	cfg := &Configuration{}
	var minLevel string
	err := row.Scan(
		&cfg.ID, &cfg.Name,
		&cfg.Thresholds.Critical, &cfg.Thresholds.High,
		&cfg.Thresholds.Medium, &cfg.Thresholds.Low,
		pq.Array(&cfg.VIPTickers), pq.Array(&cfg.VIPTimeframes),
		&minLevel, &cfg.IsActive, &cfg.CreatedAt, &cfg.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	cfg.MinLevel = signal.Level(minLevel)
	return cfg, nil
}

// Create inserts a new configuration. The active flag is ignored; use
// Activate to switch configurations.
func (s *Store) Create(ctx context.Context, cfg *Configuration) (*Configuration, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	query := `
		INSERT INTO priority_configs (
			name, critical_threshold, high_threshold, medium_threshold, low_threshold,
			vip_tickers, vip_timeframes, min_level, is_active
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, false)
		RETURNING ` + configColumns

	row := s.db.QueryRowContext(ctx, query,
		cfg.Name,
		cfg.Thresholds.Critical, cfg.Thresholds.High,
		cfg.Thresholds.Medium, cfg.Thresholds.Low,
		pq.Array(cfg.VIPTickers), pq.Array(cfg.VIPTimeframes),
		string(cfg.MinLevel),
	)
	created, err := scanConfiguration(row)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("configuration %q: %w", cfg.Name, ErrDuplicate)
		}
		return nil, fmt.Errorf("failed to create configuration: %w", err)
	}
	return created, nil
}

// GetByName retrieves a configuration by its unique name.
func (s *Store) GetByName(ctx context.Context, name string) (*Configuration, error) {
	query := `SELECT ` + configColumns + ` FROM priority_configs WHERE name = $1`

	cfg, err := scanConfiguration(s.db.QueryRowContext(ctx, query, name))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("configuration %q: %w", name, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get configuration: %w", err)
	}
	return cfg, nil
}

// List returns all configurations ordered by name.
func (s *Store) List(ctx context.Context) ([]*Configuration, error) {
	query := `SELECT ` + configColumns + ` FROM priority_configs ORDER BY name`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list configurations: %w", err)
	}
	defer rows.Close()

	var configs []*Configuration
	for rows.Next() {
		cfg, err := scanConfiguration(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan configuration: %w", err)
		}
		configs = append(configs, cfg)
	}
	return configs, rows.Err()
}

// Update replaces the thresholds, VIP lists and minimum level of an
// existing configuration. The active flag is not touched.
func (s *Store) Update(ctx context.Context, cfg *Configuration) (*Configuration, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	query := `
		UPDATE priority_configs SET
			critical_threshold = $2, high_threshold = $3,
			medium_threshold = $4, low_threshold = $5,
			vip_tickers = $6, vip_timeframes = $7,
			min_level = $8, updated_at = NOW()
		WHERE name = $1
		RETURNING ` + configColumns

	row := s.db.QueryRowContext(ctx, query,
		cfg.Name,
		cfg.Thresholds.Critical, cfg.Thresholds.High,
		cfg.Thresholds.Medium, cfg.Thresholds.Low,
		pq.Array(cfg.VIPTickers), pq.Array(cfg.VIPTimeframes),
		string(cfg.MinLevel),
	)
	updated, err := scanConfiguration(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("configuration %q: %w", cfg.Name, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to update configuration: %w", err)
	}
	return updated, nil
}

// Delete removes a configuration. The active configuration cannot be
// deleted; another one must be activated first.
func (s *Store) Delete(ctx context.Context, name string) error {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM priority_configs WHERE name = $1 AND is_active = false`, name)
	if err != nil {
		return fmt.Errorf("failed to delete configuration: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read delete result: %w", err)
	}
	if affected == 0 {
		if _, err := s.GetByName(ctx, name); err != nil {
			return fmt.Errorf("configuration %q: %w", name, ErrNotFound)
		}
		return fmt.Errorf("configuration %q cannot be deleted: %w", name, ErrActive)
	}
	return nil
}

// Activate marks the named configuration active and deactivates the
// previous one in the same transaction, keeping the single-active
// invariant even under concurrent switches.
func (s *Store) Activate(ctx context.Context, name string) (*Configuration, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin activation: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`UPDATE priority_configs SET is_active = false, updated_at = NOW() WHERE is_active = true`); err != nil {
		return nil, fmt.Errorf("failed to deactivate current configuration: %w", err)
	}

	query := `
		UPDATE priority_configs SET is_active = true, updated_at = NOW()
		WHERE name = $1
		RETURNING ` + configColumns

	cfg, err := scanConfiguration(tx.QueryRowContext(ctx, query, name))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("configuration %q: %w", name, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to activate configuration: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit activation: %w", err)
	}
	return cfg, nil
}

// GetActive returns the active configuration, or nil when none is
// marked active.
func (s *Store) GetActive(ctx context.Context) (*Configuration, error) {
	query := `SELECT ` + configColumns + ` FROM priority_configs WHERE is_active = true LIMIT 1`

	cfg, err := scanConfiguration(s.db.QueryRowContext(ctx, query))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get active configuration: %w", err)
	}
	return cfg, nil
}

// SeedDefault inserts cfg as the active configuration when the table
// is empty. Existing configurations are never overwritten.
func (s *Store) SeedDefault(ctx context.Context, cfg *Configuration) (bool, error) {
	if err := cfg.Validate(); err != nil {
		return false, err
	}

	query := `
		INSERT INTO priority_configs (
			name, critical_threshold, high_threshold, medium_threshold, low_threshold,
			vip_tickers, vip_timeframes, min_level, is_active
		)
		SELECT $1, $2, $3, $4, $5, $6, $7, $8, true
		WHERE NOT EXISTS (SELECT 1 FROM priority_configs)
	`

	result, err := s.db.ExecContext(ctx, query,
		cfg.Name,
		cfg.Thresholds.Critical, cfg.Thresholds.High,
		cfg.Thresholds.Medium, cfg.Thresholds.Low,
		pq.Array(cfg.VIPTickers), pq.Array(cfg.VIPTimeframes),
		string(cfg.MinLevel),
	)
	if err != nil {
		return false, fmt.Errorf("failed to seed default configuration: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read seed result: %w", err)
	}
	return affected > 0, nil
}

func isUniqueViolation(err error) bool {
	if pqErr, ok := err.(*pq.Error); ok {
		return pqErr.Code == "23505"
	}
	return false
}
