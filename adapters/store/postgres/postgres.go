package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"github.com/Go-routine-4595/sensorhub/model"
)

const DefaultTable = "sensors_data"

// Store implements model.ReadingStore on PostgreSQL (or TimescaleDB).
type Store struct {
	db        *sql.DB
	tableName string
}

func NewStore(db *sql.DB, table string) *Store {
	if table == "" {
		table = DefaultTable
	}
	return &Store{db: db, tableName: table}
}

// Open connects with connString and makes sure the table exists.
func Open(ctx context.Context, connString, table string) (*Store, error) {
	db, err := sql.Open("postgres", connString)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to reach database: %w", err)
	}

	s := NewStore(db, table)
	if err := s.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) EnsureSchema(ctx context.Context) error {
	schema := `CREATE TABLE IF NOT EXISTS ` + s.tableName + ` (
		id SERIAL PRIMARY KEY,
		sensor_type VARCHAR(50) NOT NULL,
		value DOUBLE PRECISION NOT NULL,
		timestamp TIMESTAMPTZ DEFAULT NOW()
	)`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

func (s *Store) Insert(ctx context.Context, r *model.Reading) error {
	query := `INSERT INTO ` + s.tableName + ` (sensor_type, value, timestamp) VALUES ($1, $2, $3) RETURNING id`

	if err := s.db.QueryRowContext(ctx, query, string(r.SensorType), r.Value, r.Timestamp).Scan(&r.ID); err != nil {
		return fmt.Errorf("failed to insert reading: %w", err)
	}
	return nil
}

func (s *Store) QueryLatest(ctx context.Context, t model.SensorType, limit int) ([]model.Reading, error) {
	query := `SELECT id, sensor_type, value, timestamp FROM ` + s.tableName +
		` WHERE sensor_type = $1 ORDER BY timestamp DESC, id DESC LIMIT $2`
	return s.query(ctx, query, string(t), limit)
}

func (s *Store) QueryLatestAll(ctx context.Context, limit int, since *time.Time) ([]model.Reading, error) {
	var (
		b    strings.Builder
		args []any
	)

	b.WriteString(`SELECT id, sensor_type, value, timestamp FROM `)
	b.WriteString(s.tableName)
	if since != nil {
		args = append(args, *since)
		b.WriteString(fmt.Sprintf(` WHERE timestamp > $%d`, len(args)))
	}
	b.WriteString(` ORDER BY timestamp DESC, id DESC`)
	if limit > 0 {
		args = append(args, limit)
		b.WriteString(fmt.Sprintf(` LIMIT $%d`, len(args)))
	}

	return s.query(ctx, b.String(), args...)
}

func (s *Store) query(ctx context.Context, query string, args ...any) ([]model.Reading, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query readings: %w", err)
	}
	defer rows.Close()

	var readings []model.Reading
	for rows.Next() {
		var (
			r      model.Reading
			sensor string
		)
		if err := rows.Scan(&r.ID, &sensor, &r.Value, &r.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan reading: %w", err)
		}
		r.SensorType = model.SensorType(sensor)
		readings = append(readings, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate readings: %w", err)
	}
	return readings, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

var _ model.ReadingStore = (*Store)(nil)
