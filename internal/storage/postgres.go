package storage

import (
	"database/sql"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
)

var postgresDialect = dialect{
	numbered: true,
	noLimit:  "ALL",
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
			value_recorded DOUBLE PRECISION,
			threshold_value DOUBLE PRECISION,
			cpk_value DOUBLE PRECISION,
			status TEXT NOT NULL,
			nonconformity_id TEXT NOT NULL DEFAULT '',
			created_at BIGINT NOT NULL,
			acknowledged_by TEXT NOT NULL DEFAULT '',
			acknowledged_at BIGINT,
			resolved_by TEXT NOT NULL DEFAULT '',
			resolved_at BIGINT,
			resolution_notes TEXT NOT NULL DEFAULT '',
			dismissed_by TEXT NOT NULL DEFAULT '',
			dismissed_at BIGINT,
			UNIQUE (parameter_id, measurement_id, alert_type, rule_number)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_created ON alerts(created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_status_param ON alerts(status, parameter_id)`,
		`CREATE TABLE IF NOT EXISTS measurements (
			id TEXT NOT NULL,
			parameter_id TEXT NOT NULL,
			ts BIGINT NOT NULL,
			value DOUBLE PRECISION NOT NULL,
			conforming BOOLEAN NOT NULL,
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

type postgresStore struct {
	baseStore
}

func NewPostgres(dsn string) (Store, error) {
	if strings.TrimSpace(dsn) == "" {
		dsn = "postgres://localhost:5432/spcguard?sslmode=disable"
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	return &postgresStore{baseStore{db: db, d: postgresDialect}}, nil
}
