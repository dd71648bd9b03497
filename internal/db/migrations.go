package db

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"
)

// SchemaVersion is the latest migration version.
const SchemaVersion = 2

// Migration represents a single schema migration.
type Migration struct {
	Version int
	Name    string
	Up      string
}

// migrations is the ordered list of schema migrations.
var migrations = []Migration{
	{
		Version: 1,
		Name:    "initial_schema",
		Up: `
-- Users: seeded CRM accounts tagged with an authority
CREATE TABLE IF NOT EXISTS users (
  id INTEGER PRIMARY KEY,
  name TEXT NOT NULL,
  phone TEXT NOT NULL UNIQUE,
  authority TEXT NOT NULL,
  created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_users_authority ON users(authority);

-- Direct superiors, ordered by position
CREATE TABLE IF NOT EXISTS user_superiors (
  user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
  superior_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
  position INTEGER NOT NULL DEFAULT 0,
  PRIMARY KEY (user_id, superior_id)
);

-- Runs: one execution of a workbook sheet
CREATE TABLE IF NOT EXISTS runs (
  id TEXT PRIMARY KEY,
  business TEXT NOT NULL,
  sheet TEXT NOT NULL,
  started_at TEXT NOT NULL,
  finished_at TEXT
);
CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);

-- Scenario results within a run
CREATE TABLE IF NOT EXISTS scenario_results (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
  name TEXT NOT NULL,
  status TEXT NOT NULL,
  step INTEGER,
  actor TEXT,
  expected TEXT,
  actual TEXT,
  message TEXT,
  created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_scenario_results_run ON scenario_results(run_id);
`,
	},
	{
		Version: 2,
		Name:    "scenario_results_business_id",
		Up: `
-- Business record created by the scenario, for manual follow-up.
ALTER TABLE scenario_results ADD COLUMN business_id TEXT;
`,
	},
}

// ApplyMigrations applies any pending migrations in order.
func (db *DB) ApplyMigrations(ctx context.Context) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if err := ensureMigrationsTable(db.conn); err != nil {
		return err
	}

	current, err := currentVersion(db.conn)
	if err != nil {
		return err
	}

	sort.Slice(migrations, func(i, j int) bool { return migrations[i].Version < migrations[j].Version })

	for _, m := range migrations {
		if m.Version <= current {
			continue
		}

		tx, err := db.conn.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.Version, err)
		}

		// Column additions must tolerate databases created by hand.
		switch m.Version {
		case 2:
			if err := addColumnIfMissing(ctx, tx, "scenario_results", "business_id", "TEXT"); err != nil {
				tx.Rollback()
				return fmt.Errorf("migration %d (%s) failed: %w", m.Version, m.Name, err)
			}
		default:
			if _, err := tx.ExecContext(ctx, m.Up); err != nil {
				tx.Rollback()
				return fmt.Errorf("migration %d (%s) failed: %w", m.Version, m.Name, err)
			}
		}

		if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO schema_migrations(version, applied_at) VALUES(?, ?)`, m.Version, time.Now().UTC().Format(time.RFC3339)); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
	}

	return nil
}

func ensureMigrationsTable(conn *sql.DB) error {
	_, err := conn.Exec(`
CREATE TABLE IF NOT EXISTS schema_migrations (
  version INTEGER PRIMARY KEY,
  applied_at TEXT NOT NULL
);`)
	return err
}

func currentVersion(conn *sql.DB) (int, error) {
	var v sql.NullInt64
	err := conn.QueryRow(`SELECT MAX(version) FROM schema_migrations`).Scan(&v)
	if err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	if !v.Valid {
		return 0, nil
	}
	return int(v.Int64), nil
}

func addColumnIfMissing(ctx context.Context, tx *sql.Tx, table, column, colType string) error {
	rows, err := tx.QueryContext(ctx, fmt.Sprintf(`PRAGMA table_info(%s)`, table))
	if err != nil {
		return fmt.Errorf("pragma table_info: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var cid int
		var colName, ctype string
		var notnull int
		var dfltValue sql.NullString
		var pk int
		if err := rows.Scan(&cid, &colName, &ctype, &notnull, &dfltValue, &pk); err != nil {
			return fmt.Errorf("scan pragma table_info: %w", err)
		}
		if colName == column {
			return nil
		}
	}
	if rows.Err() != nil {
		return fmt.Errorf("iterating table_info: %w", rows.Err())
	}

	_, err = tx.ExecContext(ctx, fmt.Sprintf(`ALTER TABLE %s ADD COLUMN %s %s`, table, column, colType))
	if err != nil {
		return fmt.Errorf("add column %s.%s: %w", table, column, err)
	}
	return nil
}
