package storage

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"

	"github.com/lib/pq"
	"gonum.org/v1/gonum/mat"

	"github.com/yourusername/snapshot-rom/internal/config"
)

var tableNamePattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*(\.[a-zA-Z_][a-zA-Z0-9_]*)?$`)

// NewPostgresDB opens and pings a Postgres connection.
func NewPostgresDB(cfg config.DatabaseConfig) (*sql.DB, error) {
	connStr := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode,
	)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("opening database connection: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return db, nil
}

// SnapshotStore reads and appends parameter/snapshot pairs in a table with
// float8[] columns `parameters` and `snapshot`.
type SnapshotStore struct {
	db    *sql.DB
	table string
}

// NewSnapshotStore validates the table name (it is interpolated into SQL)
// and returns a store bound to it.
func NewSnapshotStore(db *sql.DB, table string) (*SnapshotStore, error) {
	if !tableNamePattern.MatchString(table) {
		return nil, fmt.Errorf("invalid snapshot table name %q", table)
	}
	return &SnapshotStore{db: db, table: table}, nil
}

// Load reads all pairs ordered by insertion and returns the parameter and
// snapshot matrices, one row per sample.
func (s *SnapshotStore) Load(ctx context.Context) (*mat.Dense, *mat.Dense, error) {
	query := fmt.Sprintf("SELECT parameters, snapshot FROM %s ORDER BY id", s.table)
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, nil, fmt.Errorf("querying snapshots: %w", err)
	}
	defer rows.Close()

	var params, snaps []float64
	var paramDim, snapDim, n int
	for rows.Next() {
		var p, v pq.Float64Array
		if err := rows.Scan(&p, &v); err != nil {
			return nil, nil, fmt.Errorf("scanning snapshot row: %w", err)
		}
		if n == 0 {
			paramDim, snapDim = len(p), len(v)
		}
		if len(p) != paramDim || len(v) != snapDim {
			return nil, nil, fmt.Errorf("row %d has dimensions (%d,%d), expected (%d,%d)",
				n, len(p), len(v), paramDim, snapDim)
		}
		params = append(params, p...)
		snaps = append(snaps, v...)
		n++
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterating snapshot rows: %w", err)
	}
	if n == 0 {
		return nil, nil, fmt.Errorf("snapshot table %s is empty", s.table)
	}

	return mat.NewDense(n, paramDim, params), mat.NewDense(n, snapDim, snaps), nil
}

// Append inserts one parameter/snapshot pair.
func (s *SnapshotStore) Append(ctx context.Context, parameters, snapshot []float64) error {
	query := fmt.Sprintf("INSERT INTO %s (parameters, snapshot) VALUES ($1, $2)", s.table)
	if _, err := s.db.ExecContext(ctx, query, pq.Array(parameters), pq.Array(snapshot)); err != nil {
		return fmt.Errorf("inserting snapshot: %w", err)
	}
	return nil
}

// Count returns the number of stored pairs.
func (s *SnapshotStore) Count(ctx context.Context) (int, error) {
	query := fmt.Sprintf("SELECT count(*) FROM %s", s.table)
	var n int
	if err := s.db.QueryRowContext(ctx, query).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting snapshots: %w", err)
	}
	return n, nil
}
