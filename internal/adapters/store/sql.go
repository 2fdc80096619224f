package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/ghalamif/twinfleet/internal/domain"
	"github.com/ghalamif/twinfleet/internal/ports"
)

// Dialect selects schema DDL for a SQL backend. Both dialects accept $n
// placeholders, so statements are shared.
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectDuckDB   Dialect = "duckdb"
)

const (
	readingsTable  = "sensor_data"
	snapshotsTable = "equipment_data"
)

var schema = map[Dialect][]string{
	DialectPostgres: {
		`CREATE TABLE IF NOT EXISTS sensor_data (
			id BIGSERIAL PRIMARY KEY,
			sensor_id TEXT NOT NULL,
			equipment_id TEXT NOT NULL,
			value DOUBLE PRECISION NOT NULL,
			"timestamp" TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS sensor_data_sensor_ts ON sensor_data (sensor_id, "timestamp" DESC)`,
		`CREATE TABLE IF NOT EXISTS equipment_data (
			id BIGSERIAL PRIMARY KEY,
			equipment_id TEXT NOT NULL,
			status TEXT NOT NULL,
			efficiency DOUBLE PRECISION NOT NULL,
			temperature DOUBLE PRECISION NOT NULL,
			"timestamp" TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS equipment_data_equipment_ts ON equipment_data (equipment_id, "timestamp" DESC)`,
	},
	DialectDuckDB: {
		`CREATE SEQUENCE IF NOT EXISTS sensor_data_id_seq`,
		`CREATE TABLE IF NOT EXISTS sensor_data (
			id BIGINT PRIMARY KEY DEFAULT nextval('sensor_data_id_seq'),
			sensor_id VARCHAR NOT NULL,
			equipment_id VARCHAR NOT NULL,
			value DOUBLE NOT NULL,
			"timestamp" TIMESTAMPTZ NOT NULL DEFAULT current_timestamp
		)`,
		`CREATE SEQUENCE IF NOT EXISTS equipment_data_id_seq`,
		`CREATE TABLE IF NOT EXISTS equipment_data (
			id BIGINT PRIMARY KEY DEFAULT nextval('equipment_data_id_seq'),
			equipment_id VARCHAR NOT NULL,
			status VARCHAR NOT NULL,
			efficiency DOUBLE NOT NULL,
			temperature DOUBLE NOT NULL,
			"timestamp" TIMESTAMPTZ NOT NULL DEFAULT current_timestamp
		)`,
	},
}

const (
	insertReadingSQL  = `INSERT INTO sensor_data (sensor_id, equipment_id, value, "timestamp") VALUES ($1, $2, $3, COALESCE($4, now()))`
	insertSnapshotSQL = `INSERT INTO equipment_data (equipment_id, status, efficiency, temperature, "timestamp") VALUES ($1, $2, $3, $4, COALESCE($5, now()))`
	queryReadingsSQL  = `SELECT sensor_id, equipment_id, value, "timestamp" FROM sensor_data WHERE sensor_id = $1 ORDER BY "timestamp" DESC, id DESC LIMIT $2`
	querySnapshotsSQL = `SELECT equipment_id, status, efficiency, temperature, "timestamp" FROM equipment_data WHERE equipment_id = $1 ORDER BY "timestamp" DESC, id DESC LIMIT $2`
)

// SQLStore persists both logs to a database/sql backend. Each statement is
// bounded by timeout; an expired deadline surfaces as a write error.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
	timeout time.Duration
}

func NewSQLStore(db *sql.DB, dialect Dialect, timeout time.Duration) *SQLStore {
	return &SQLStore{db: db, dialect: dialect, timeout: timeout}
}

// OpenSQL opens driver/dsn and pings it with exponential backoff.
func OpenSQL(ctx context.Context, driver, dsn string, maxTries uint) (*sql.DB, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if maxTries == 0 {
		maxTries = 1
	}
	_, err = backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, db.PingContext(ctx)
	}, backoff.WithBackOff(backoff.NewExponentialBackOff()), backoff.WithMaxTries(maxTries))
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}
	return db, nil
}

func (s *SQLStore) Name() string { return string(s.dialect) }

// EnsureSchema creates the tables if they do not exist yet.
func (s *SQLStore) EnsureSchema(ctx context.Context) error {
	stmts, ok := schema[s.dialect]
	if !ok {
		return fmt.Errorf("unsupported sql dialect %q", s.dialect)
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

func (s *SQLStore) AppendReading(ctx context.Context, r domain.Reading) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	_, err := s.db.ExecContext(ctx, insertReadingSQL,
		r.SensorID,
		r.EquipmentID,
		r.Value,
		nullTime(r.Timestamp),
	)
	if err != nil {
		return fmt.Errorf("insert %s for %s: %w", readingsTable, r.SensorID, err)
	}
	return nil
}

func (s *SQLStore) AppendSnapshot(ctx context.Context, snap domain.Snapshot) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	_, err := s.db.ExecContext(ctx, insertSnapshotSQL,
		snap.EquipmentID,
		string(snap.Status),
		snap.EfficiencyPercent,
		snap.Temperature,
		nullTime(snap.Timestamp),
	)
	if err != nil {
		return fmt.Errorf("insert %s for %s: %w", snapshotsTable, snap.EquipmentID, err)
	}
	return nil
}

func (s *SQLStore) QueryReadings(ctx context.Context, sensorID string, limit int) ([]domain.Reading, error) {
	if limit <= 0 {
		return nil, ports.ErrInvalidLimit
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, queryReadingsSQL, sensorID, limit)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", readingsTable, err)
	}
	defer rows.Close()

	out := make([]domain.Reading, 0, limit)
	for rows.Next() {
		var r domain.Reading
		if err := rows.Scan(&r.SensorID, &r.EquipmentID, &r.Value, &r.Timestamp); err != nil {
			return nil, fmt.Errorf("scan %s: %w", readingsTable, err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLStore) QuerySnapshots(ctx context.Context, equipmentID string, limit int) ([]domain.Snapshot, error) {
	if limit <= 0 {
		return nil, ports.ErrInvalidLimit
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, querySnapshotsSQL, equipmentID, limit)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", snapshotsTable, err)
	}
	defer rows.Close()

	out := make([]domain.Snapshot, 0, limit)
	for rows.Next() {
		var (
			snap   domain.Snapshot
			status string
		)
		if err := rows.Scan(&snap.EquipmentID, &status, &snap.EfficiencyPercent, &snap.Temperature, &snap.Timestamp); err != nil {
			return nil, fmt.Errorf("scan %s: %w", snapshotsTable, err)
		}
		snap.Status = domain.Status(status)
		out = append(out, snap)
	}
	return out, rows.Err()
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

func (s *SQLStore) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.timeout)
}

// nullTime lets the database assign the timestamp when none was supplied.
func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}

var _ ports.Store = (*SQLStore)(nil)
