package repository

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// InitDB opens (or creates) a SQLite database at the given path and ensures
// all required tables exist. Pass ":memory:" for an in-memory database.
func InitDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set wal mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	if err := createTables(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}

	return db, nil
}

func createTables(db *sql.DB) error {
	// Decimal amounts are stored as TEXT so values survive round-trips
	// exactly; the engine depends on exact boundary comparisons.
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS position_files (
			id TEXT PRIMARY KEY,
			source TEXT NOT NULL,
			kind TEXT NOT NULL,
			file_hash TEXT UNIQUE NOT NULL,
			record_count INTEGER NOT NULL,
			trade_date TEXT NOT NULL,
			ingested_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_position_files_source ON position_files(source)`,

		`CREATE TABLE IF NOT EXISTS positions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			file_id TEXT NOT NULL,
			source TEXT NOT NULL,
			kind TEXT NOT NULL,
			ticker TEXT,
			cusip TEXT,
			isin TEXT,
			account_id TEXT NOT NULL,
			quantity TEXT NOT NULL,
			price TEXT NOT NULL,
			market_value TEXT NOT NULL,
			currency TEXT NOT NULL,
			trade_date TEXT NOT NULL,
			settle_date TEXT NOT NULL,
			asset_class TEXT,
			FOREIGN KEY (file_id) REFERENCES position_files(id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_positions_source_date ON positions(source, trade_date)`,
		`CREATE INDEX IF NOT EXISTS idx_positions_file ON positions(file_id)`,

		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			run_date TEXT NOT NULL,
			sources TEXT NOT NULL,
			pairs TEXT NOT NULL,
			by_severity TEXT NOT NULL,
			by_type TEXT NOT NULL,
			total_variance_abs TEXT NOT NULL,
			total_impact_usd TEXT NOT NULL,
			positions_compared INTEGER NOT NULL,
			started_at DATETIME NOT NULL,
			completed_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_run_date ON runs(run_date)`,

		`CREATE TABLE IF NOT EXISTS breaks (
			id TEXT NOT NULL,
			run_id TEXT NOT NULL,
			security_id TEXT NOT NULL,
			account_id TEXT NOT NULL,
			trade_date TEXT NOT NULL,
			pair_source TEXT NOT NULL,
			pair_target TEXT NOT NULL,
			break_type TEXT NOT NULL,
			source_value TEXT,
			target_value TEXT,
			variance_abs TEXT NOT NULL,
			variance_pct TEXT NOT NULL,
			impact_usd TEXT NOT NULL,
			severity TEXT NOT NULL,
			currency TEXT NOT NULL,
			description TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			PRIMARY KEY (run_id, id),
			FOREIGN KEY (run_id) REFERENCES runs(id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_breaks_run ON breaks(run_id)`,
		`CREATE INDEX IF NOT EXISTS idx_breaks_severity ON breaks(severity)`,
		`CREATE INDEX IF NOT EXISTS idx_breaks_type ON breaks(break_type)`,

		`CREATE TABLE IF NOT EXISTS diagnostics (
			run_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			source TEXT NOT NULL,
			key TEXT,
			message TEXT NOT NULL,
			FOREIGN KEY (run_id) REFERENCES runs(id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_diagnostics_run ON diagnostics(run_id)`,
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("exec %q: %w", stmt[:60], err)
		}
	}

	return nil
}
