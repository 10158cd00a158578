package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/Go-routine-4595/sensorhub/model"
)

// Store implements model.ReadingStore with SQLite. Timestamps are stored as
// unix milliseconds.
type Store struct {
	db *sql.DB
}

// NewStore opens (or creates) the database file at path.
func NewStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// go-sqlite3 serializes writers; one connection avoids "database is locked"
	db.SetMaxOpenConns(1)

	schema := `
	CREATE TABLE IF NOT EXISTS sensors_data (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		sensor_type TEXT NOT NULL,
		value REAL NOT NULL,
		timestamp INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_sensors_data_type_ts ON sensors_data(sensor_type, timestamp);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Insert(ctx context.Context, r *model.Reading) error {
	query := `INSERT INTO sensors_data (sensor_type, value, timestamp) VALUES (?, ?, ?)`

	result, err := s.db.ExecContext(ctx, query, string(r.SensorType), r.Value, r.Timestamp.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to insert reading: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get insert id: %w", err)
	}

	r.ID = id
	return nil
}

func (s *Store) QueryLatest(ctx context.Context, t model.SensorType, limit int) ([]model.Reading, error) {
	query := `
		SELECT id, sensor_type, value, timestamp
		FROM sensors_data
		WHERE sensor_type = ?
		ORDER BY timestamp DESC, id DESC
		LIMIT ?
	`
	return s.query(ctx, query, string(t), limit)
}

func (s *Store) QueryLatestAll(ctx context.Context, limit int, since *time.Time) ([]model.Reading, error) {
	query := `SELECT id, sensor_type, value, timestamp FROM sensors_data`
	var args []any

	if since != nil {
		query += ` WHERE timestamp > ?`
		args = append(args, since.UnixMilli())
	}
	query += ` ORDER BY timestamp DESC, id DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	return s.query(ctx, query, args...)
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
			millis int64
		)
		if err := rows.Scan(&r.ID, &sensor, &r.Value, &millis); err != nil {
			return nil, fmt.Errorf("failed to scan reading: %w", err)
		}
		r.SensorType = model.SensorType(sensor)
		r.Timestamp = time.UnixMilli(millis)
		readings = append(readings, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate readings: %w", err)
	}

	return readings, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

var _ model.ReadingStore = (*Store)(nil)
