package database

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/pgbridge/pgbridge/internal/config"
)

// DB holds database connections. The pgx pool serves GraphQL query
// execution; the sqlx handle serves catalog reflection via struct scanning.
type DB struct {
	Pool   *pgxpool.Pool
	SQLX   *sqlx.DB
	Config *config.Config
	Logger zerolog.Logger
}

// New creates the connection pool and verifies connectivity.
func New(cfg *config.Config, logger zerolog.Logger) (*DB, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	poolConfig.MaxConns = 30
	poolConfig.MinConns = 5
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = time.Minute * 30
	poolConfig.HealthCheckPeriod = time.Minute

	pool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	sqlxDB, err := sqlx.Connect("pgx", cfg.DatabaseURL)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to create sqlx connection: %w", err)
	}

	logger.Info().Str("schema", cfg.Schema).Msg("database connection established")

	return &DB{
		Pool:   pool,
		SQLX:   sqlxDB,
		Config: cfg,
		Logger: logger,
	}, nil
}

// Close releases both connection handles.
func (db *DB) Close() {
	if db.SQLX != nil {
		db.SQLX.Close()
	}
	if db.Pool != nil {
		db.Pool.Close()
	}
}

// Ping checks pool health.
func (db *DB) Ping(ctx context.Context) error {
	return db.Pool.Ping(ctx)
}

// Query executes a SELECT and scans every row into a map keyed by column
// name. When role is non-empty the statement runs inside a transaction on a
// single pooled connection with SET LOCAL ROLE applied, so row-level
// security sees the caller's role for the whole operation.
func (db *DB) Query(ctx context.Context, role, sql string, args ...interface{}) ([]map[string]interface{}, error) {
	if role == "" {
		rows, err := db.Pool.Query(ctx, sql, args...)
		if err != nil {
			return nil, err
		}
		defer rows.Close()
		return scanRowsToMaps(rows)
	}
	return db.queryWithRole(ctx, role, sql, args...)
}

// QueryRow executes a SELECT expected to yield at most one row.
func (db *DB) QueryRow(ctx context.Context, role, sql string, args ...interface{}) (map[string]interface{}, error) {
	results, err := db.Query(ctx, role, sql, args...)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, nil
	}
	return results[0], nil
}

// QueryCount executes a single-value COUNT query.
func (db *DB) QueryCount(ctx context.Context, role, sql string, args ...interface{}) (int64, error) {
	var count int64
	if role == "" {
		if err := db.Pool.QueryRow(ctx, sql, args...).Scan(&count); err != nil {
			return 0, err
		}
		return count, nil
	}

	err := db.withRoleTx(ctx, role, func(tx pgx.Tx) error {
		return tx.QueryRow(ctx, sql, args...).Scan(&count)
	})
	return count, err
}

// Exec executes a mutating statement with RETURNING and scans the returned
// rows. Every mutation runs in its own transaction so there is no partial
// commit within one mutation field.
func (db *DB) Exec(ctx context.Context, role, sql string, args ...interface{}) ([]map[string]interface{}, error) {
	var results []map[string]interface{}
	err := db.withRoleTx(ctx, role, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, sql, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		results, err = scanRowsToMaps(rows)
		return err
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

func (db *DB) queryWithRole(ctx context.Context, role, sql string, args ...interface{}) ([]map[string]interface{}, error) {
	var results []map[string]interface{}
	err := db.withRoleTx(ctx, role, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, sql, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		results, err = scanRowsToMaps(rows)
		return err
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

// withRoleTx runs fn inside one transaction on one pooled connection. When
// role is non-empty, SET LOCAL ROLE is applied first and expires with the
// transaction, which releases the connection back to the pool clean.
func (db *DB) withRoleTx(ctx context.Context, role string, fn func(tx pgx.Tx) error) error {
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if role != "" {
		setRole := fmt.Sprintf("SET LOCAL ROLE %s", QuoteIdentifier(role))
		if _, err := tx.Exec(ctx, setRole); err != nil {
			return fmt.Errorf("failed to set role %q: %w", role, err)
		}
	}

	if err := fn(tx); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// QuoteIdentifier double-quotes a SQL identifier, escaping embedded quotes.
func QuoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// scanRowsToMaps converts pgx rows to a slice of maps
func scanRowsToMaps(rows pgx.Rows) ([]map[string]interface{}, error) {
	var results []map[string]interface{}

	cols := rows.FieldDescriptions()

	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, err
		}

		row := make(map[string]interface{}, len(cols))
		for i, col := range cols {
			row[string(col.Name)] = values[i]
		}
		results = append(results, row)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return results, nil
}
