package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"spcguard/internal/config"
	"spcguard/internal/model"
)

// Store persists alerts and the measurement history that alert generation
// is computed from.
type Store interface {
	Init(ctx context.Context) error
	Close() error
	CreateAlerts(ctx context.Context, batch []model.Alert) ([]model.Alert, error)
	Transition(ctx context.Context, id string, t model.Transition) (model.Alert, error)
	Get(ctx context.Context, id string) (model.Alert, error)
	List(ctx context.Context, f model.AlertFilter) ([]model.Alert, int, error)
	Stats(ctx context.Context) (model.AlertStats, error)
	SaveMeasurement(ctx context.Context, m model.Measurement) error
	LoadMeasurements(ctx context.Context, parameterID string, since time.Time, limit int) ([]model.Measurement, error)
}

func NewStore(cfg config.StorageConfig) (Store, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	switch strings.ToLower(cfg.Driver) {
	case "sqlite":
		return NewSQLite(cfg.DSN)
	case "postgres", "postgresql":
		return NewPostgres(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.Driver)
	}
}

// dialect captures what differs between the SQL backends.
type dialect struct {
	schema   []string
	numbered bool
	noLimit  string
}

type baseStore struct {
	db *sql.DB
	d  dialect
}

func (b *baseStore) Close() error {
	if b.db != nil {
		return b.db.Close()
	}
	return nil
}

func (b *baseStore) Init(ctx context.Context) error {
	for _, stmt := range b.d.schema {
		if _, err := b.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// q rewrites ? placeholders to $n for backends that number them.
func (b *baseStore) q(query string) string {
	if !b.d.numbered {
		return query
	}
	var sb strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			sb.WriteByte('$')
			sb.WriteString(strconv.Itoa(n))
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

const alertColumns = `id, alert_type, rule_number, parameter_id, measurement_id, sample_id, batch_id,
	description, value_recorded, threshold_value, cpk_value, status, nonconformity_id, created_at,
	acknowledged_by, acknowledged_at, resolved_by, resolved_at, resolution_notes, dismissed_by, dismissed_at`

func (b *baseStore) CreateAlerts(ctx context.Context, batch []model.Alert) ([]model.Alert, error) {
	if len(batch) == 0 {
		return nil, nil
	}
	for _, a := range batch {
		if a.ID == "" || a.ParameterID == "" || !a.Kind.Valid() || !a.Status.Valid() {
			return nil, fmt.Errorf("%w: %q", model.ErrInvalidAlert, a.ID)
		}
	}
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	stmt, err := tx.PrepareContext(ctx, b.q(`INSERT INTO alerts (`+alertColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING`))
	if err != nil {
		_ = tx.Rollback()
		return nil, err
	}
	defer stmt.Close()
	inserted := make([]model.Alert, 0, len(batch))
	for _, a := range batch {
		res, err := stmt.ExecContext(ctx,
			a.ID,
			string(a.Kind),
			a.Rule,
			a.ParameterID,
			nullString(a.MeasurementID),
			a.SampleID,
			a.BatchID,
			a.Description,
			nullFloat(a.ValueRecorded),
			nullFloat(a.ThresholdValue),
			nullFloat(a.CpkValue),
			string(a.Status),
			a.NonconformityID,
			a.CreatedAt.UTC().UnixNano(),
			a.AcknowledgedBy,
			nullTime(a.AcknowledgedAt),
			a.ResolvedBy,
			nullTime(a.ResolvedAt),
			a.ResolutionNotes,
			a.DismissedBy,
			nullTime(a.DismissedAt),
		)
		if err != nil {
			_ = tx.Rollback()
			return nil, fmt.Errorf("insert alert %s: %w", a.ID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			_ = tx.Rollback()
			return nil, err
		}
		if n > 0 {
			inserted = append(inserted, a)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return inserted, nil
}

// Transition is a conditional UPDATE: it only matches rows whose status is
// one the target status may be reached from.
func (b *baseStore) Transition(ctx context.Context, id string, t model.Transition) (model.Alert, error) {
	from := t.AllowedFrom()
	if len(from) == 0 {
		if _, err := b.Get(ctx, id); err != nil {
			return model.Alert{}, err
		}
		return model.Alert{}, fmt.Errorf("%w: -> %s", model.ErrInvalidTransition, t.To)
	}
	at := t.At.UTC().UnixNano()
	var set string
	var args []any
	switch t.To {
	case model.StatusAcknowledged:
		set = `acknowledged_by = ?, acknowledged_at = ?`
		args = []any{t.Actor, at}
	case model.StatusResolved:
		set = `resolved_by = ?, resolved_at = ?, resolution_notes = ?, nonconformity_id = ?`
		args = []any{t.Actor, at, t.Notes, t.NonconformityID}
	case model.StatusDismissed:
		set = `dismissed_by = ?, dismissed_at = ?`
		args = []any{t.Actor, at}
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(from)), ", ")
	query := `UPDATE alerts SET status = ?, ` + set + ` WHERE id = ? AND status IN (` + placeholders + `)`
	all := append([]any{string(t.To)}, args...)
	all = append(all, id)
	for _, s := range from {
		all = append(all, string(s))
	}
	res, err := b.db.ExecContext(ctx, b.q(query), all...)
	if err != nil {
		return model.Alert{}, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return model.Alert{}, err
	}
	current, err := b.Get(ctx, id)
	if err != nil {
		return model.Alert{}, err
	}
	if n == 0 {
		return model.Alert{}, fmt.Errorf("%w: %s -> %s", model.ErrInvalidTransition, current.Status, t.To)
	}
	return current, nil
}

func (b *baseStore) Get(ctx context.Context, id string) (model.Alert, error) {
	row := b.db.QueryRowContext(ctx, b.q(`SELECT `+alertColumns+` FROM alerts WHERE id = ?`), id)
	a, err := scanAlert(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Alert{}, fmt.Errorf("%w: %s", model.ErrAlertNotFound, id)
	}
	return a, err
}

func (b *baseStore) List(ctx context.Context, f model.AlertFilter) ([]model.Alert, int, error) {
	var where []string
	var args []any
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(f.Status))
	}
	if f.ParameterID != "" {
		where = append(where, "parameter_id = ?")
		args = append(args, f.ParameterID)
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}
	var total int
	if err := b.db.QueryRowContext(ctx, b.q(`SELECT COUNT(*) FROM alerts`+clause), args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	limit := b.d.noLimit
	if f.Limit > 0 {
		limit = strconv.Itoa(f.Limit)
	}
	query := `SELECT ` + alertColumns + ` FROM alerts` + clause +
		` ORDER BY created_at DESC, id DESC LIMIT ` + limit + ` OFFSET ` + strconv.Itoa(max(f.Offset, 0))
	rows, err := b.db.QueryContext(ctx, b.q(query), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	out := make([]model.Alert, 0)
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, a)
	}
	return out, total, rows.Err()
}

func (b *baseStore) Stats(ctx context.Context) (model.AlertStats, error) {
	var stats model.AlertStats
	rows, err := b.db.QueryContext(ctx, `SELECT status, alert_type, COUNT(*) FROM alerts GROUP BY status, alert_type`)
	if err != nil {
		return stats, err
	}
	defer rows.Close()
	for rows.Next() {
		var status, kind string
		var n int
		if err := rows.Scan(&status, &kind, &n); err != nil {
			return stats, err
		}
		a := model.Alert{Status: model.AlertStatus(status), Kind: model.AlertKind(kind)}
		for i := 0; i < n; i++ {
			stats.Count(a)
		}
	}
	return stats, rows.Err()
}

func (b *baseStore) SaveMeasurement(ctx context.Context, m model.Measurement) error {
	if m.ID == "" || m.ParameterID == "" {
		return errors.New("measurement id and parameter_id required")
	}
	_, err := b.db.ExecContext(ctx, b.q(`INSERT INTO measurements
		(id, parameter_id, ts, value, conforming, batch_id, sample_id, product_id, sample_type_id, source)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (parameter_id, id) DO NOTHING`),
		m.ID,
		m.ParameterID,
		m.Timestamp.UTC().UnixNano(),
		m.Value,
		m.Conforming,
		m.BatchID,
		m.SampleID,
		m.ProductID,
		m.SampleTypeID,
		m.Source,
	)
	return err
}

// LoadMeasurements returns the newest limit measurements at or after since,
// oldest first.
func (b *baseStore) LoadMeasurements(ctx context.Context, parameterID string, since time.Time, limit int) ([]model.Measurement, error) {
	var sinceNanos int64
	if !since.IsZero() {
		sinceNanos = since.UTC().UnixNano()
	}
	lim := b.d.noLimit
	if limit > 0 {
		lim = strconv.Itoa(limit)
	}
	rows, err := b.db.QueryContext(ctx, b.q(`SELECT id, parameter_id, ts, value, conforming, batch_id, sample_id, product_id, sample_type_id, source
		FROM measurements WHERE parameter_id = ? AND ts >= ?
		ORDER BY ts DESC, id DESC LIMIT `+lim), parameterID, sinceNanos)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.Measurement, 0)
	for rows.Next() {
		var m model.Measurement
		var ts int64
		if err := rows.Scan(&m.ID, &m.ParameterID, &ts, &m.Value, &m.Conforming, &m.BatchID, &m.SampleID, &m.ProductID, &m.SampleTypeID, &m.Source); err != nil {
			return nil, err
		}
		m.Timestamp = time.Unix(0, ts).UTC()
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	slices.Reverse(out)
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAlert(row scanner) (model.Alert, error) {
	var a model.Alert
	var kind, status string
	var measurementID sql.NullString
	var value, threshold, cpk sql.NullFloat64
	var created int64
	var ackAt, resAt, disAt sql.NullInt64
	err := row.Scan(
		&a.ID, &kind, &a.Rule, &a.ParameterID, &measurementID, &a.SampleID, &a.BatchID,
		&a.Description, &value, &threshold, &cpk, &status, &a.NonconformityID, &created,
		&a.AcknowledgedBy, &ackAt, &a.ResolvedBy, &resAt, &a.ResolutionNotes, &a.DismissedBy, &disAt,
	)
	if err != nil {
		return model.Alert{}, err
	}
	a.Kind = model.AlertKind(kind)
	a.Status = model.AlertStatus(status)
	a.MeasurementID = measurementID.String
	a.ValueRecorded = floatOf(value)
	a.ThresholdValue = floatOf(threshold)
	a.CpkValue = floatOf(cpk)
	a.CreatedAt = time.Unix(0, created).UTC()
	a.AcknowledgedAt = timeOf(ackAt)
	a.ResolvedAt = timeOf(resAt)
	a.DismissedAt = timeOf(disAt)
	return a, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func nullTime(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UTC().UnixNano(), Valid: true}
}

func floatOf(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func timeOf(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.Unix(0, v.Int64).UTC()
	return &t
}
