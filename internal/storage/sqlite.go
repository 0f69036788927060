package storage

import (
	"database/sql"
	"strings"

	_ "modernc.org/sqlite"
)

var sqliteDialect = dialect{
	noLimit: "-1",
	schema: []string{
		`CREATE TABLE IF NOT EXISTS alerts (
			id TEXT PRIMARY KEY,
			alert_type TEXT NOT NULL,
			rule_number INTEGER NOT NULL DEFAULT 0,
			parameter_id TEXT NOT NULL,
			measurement_id TEXT,
			sample_id TEXT NOT NULL DEFAULT '',
			batch_id TEXT NOT NULL DEFAULT '',
			description TEXT NOT NULL,
			value_recorded REAL,
			threshold_value REAL,
			cpk_value REAL,
			status TEXT NOT NULL,
			nonconformity_id TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL,
			acknowledged_by TEXT NOT NULL DEFAULT '',
			acknowledged_at INTEGER,
			resolved_by TEXT NOT NULL DEFAULT '',
			resolved_at INTEGER,
			resolution_notes TEXT NOT NULL DEFAULT '',
			dismissed_by TEXT NOT NULL DEFAULT '',
			dismissed_at INTEGER,
			UNIQUE (parameter_id, measurement_id, alert_type, rule_number)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_created ON alerts(created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_status_param ON alerts(status, parameter_id)`,
		`CREATE TABLE IF NOT EXISTS measurements (
			id TEXT NOT NULL,
			parameter_id TEXT NOT NULL,
			ts INTEGER NOT NULL,
			value REAL NOT NULL,
			conforming INTEGER NOT NULL,
			batch_id TEXT NOT NULL DEFAULT '',
			sample_id TEXT NOT NULL DEFAULT '',
			product_id TEXT NOT NULL DEFAULT '',
			sample_type_id TEXT NOT NULL DEFAULT '',
			source TEXT NOT NULL DEFAULT '',
			PRIMARY KEY (parameter_id, id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_measurements_param_ts ON measurements(parameter_id, ts)`,
	},
}

type sqliteStore struct {
	baseStore
}

func NewSQLite(dsn string) (Store, error) {
	if strings.TrimSpace(dsn) == "" {
		dsn = "file:spcguard.db?_pragma=busy_timeout(5000)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// sqlite allows a single writer
	db.SetMaxOpenConns(1)
	return &sqliteStore{baseStore{db: db, d: sqliteDialect}}, nil
}
