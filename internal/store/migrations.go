package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

type migration struct {
	Version     int
	Description string
	Statements  []string
}

// Types are chosen to be valid in both Postgres and SQLite.
var migrations = []migration{
	{
		Version:     1,
		Description: "Initial schema",
		Statements: []string{
			`CREATE TABLE IF NOT EXISTS states (
				code TEXT PRIMARY KEY,
				name TEXT NOT NULL,
				flyway TEXT NOT NULL,
				lat DOUBLE PRECISION,
				lng DOUBLE PRECISION
			)`,
			`CREATE TABLE IF NOT EXISTS species (
				slug TEXT PRIMARY KEY,
				name TEXT NOT NULL,
				category TEXT NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS locations (
				id TEXT PRIMARY KEY,
				name TEXT NOT NULL,
				location_type TEXT NOT NULL,
				state_code TEXT NOT NULL REFERENCES states(code),
				lat DOUBLE PRECISION,
				lng DOUBLE PRECISION
			)`,
			`CREATE TABLE IF NOT EXISTS survey_counts (
				location_id TEXT NOT NULL REFERENCES locations(id),
				species_slug TEXT NOT NULL REFERENCES species(slug),
				survey_date DATE NOT NULL,
				count BIGINT,
				survey_type TEXT NOT NULL,
				source_url TEXT,
				PRIMARY KEY (location_id, species_slug, survey_date, survey_type)
			)`,
			`CREATE TABLE IF NOT EXISTS seasons (
				state_code TEXT NOT NULL REFERENCES states(code),
				species_slug TEXT NOT NULL REFERENCES species(slug),
				name TEXT NOT NULL,
				season_type TEXT NOT NULL,
				start_date DATE NOT NULL,
				end_date DATE NOT NULL,
				year INTEGER NOT NULL,
				bag_limit INTEGER,
				PRIMARY KEY (state_code, species_slug, name, start_date)
			)`,
		},
	},
	{
		Version:     2,
		Description: "Indexes for latest-count and season lookups",
		Statements: []string{
			`CREATE INDEX IF NOT EXISTS idx_survey_counts_recent ON survey_counts(location_id, species_slug, survey_date)`,
			`CREATE INDEX IF NOT EXISTS idx_locations_state ON locations(state_code, location_type)`,
			`CREATE INDEX IF NOT EXISTS idx_seasons_window ON seasons(year, state_code, start_date, end_date)`,
		},
	},
}

// Migrate applies pending schema migrations in version order, each in its
// own transaction.
func (s *sqlStore) Migrate(ctx context.Context) error {
	if err := s.db.exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			description TEXT,
			applied_at TEXT
		)
	`); err != nil {
		return eris.Wrap(err, "create schema_migrations")
	}

	applied, err := s.appliedMigrations(ctx)
	if err != nil {
		return eris.Wrap(err, "get applied migrations")
	}

	for _, m := range migrations {
		if applied[m.Version] {
			continue
		}
		zap.L().Info("applying migration",
			zap.String("dialect", s.dialect.name),
			zap.Int("version", m.Version),
			zap.String("description", m.Description))

		err := s.db.inTx(ctx, func(q querier) error {
			for _, stmt := range m.Statements {
				if err := s.exec(ctx, q, stmt); err != nil {
					return eris.Wrapf(err, "execute migration %d", m.Version)
				}
			}
			return s.exec(ctx, q,
				`INSERT INTO schema_migrations (version, description, applied_at) VALUES (?, ?, ?)`,
				m.Version, m.Description, time.Now().UTC().Format(time.RFC3339))
		})
		if err != nil {
			return eris.Wrapf(err, "migration %d", m.Version)
		}
	}
	return nil
}

func (s *sqlStore) appliedMigrations(ctx context.Context) (map[int]bool, error) {
	rs, err := s.query(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, err
	}
	defer rs.Close()

	applied := make(map[int]bool)
	for rs.Next() {
		var version int
		if err := rs.Scan(&version); err != nil {
			return nil, err
		}
		applied[version] = true
	}
	return applied, rs.Err()
}

// MigrationVersion returns the highest applied migration version.
func (s *sqlStore) MigrationVersion(ctx context.Context) (int, error) {
	applied, err := s.appliedMigrations(ctx)
	if err != nil {
		return 0, err
	}
	version := 0
	for v := range applied {
		version = max(version, v)
	}
	return version, nil
}
