package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// Postgres persists the logical tables in a shared PostgreSQL database. Each
// table carries a serial seq column so reads preserve append order the way
// the other backends do.
type Postgres struct {
	pool   *pgxpool.Pool
	logger *zerolog.Logger
}

// NewPostgres connects to the database at connString and ensures the tables.
func NewPostgres(ctx context.Context, connString string, logger *zerolog.Logger) (*Postgres, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("parse connection string: %w", err)
	}
	cfg.MaxConns = 10
	cfg.MinConns = 2
	cfg.HealthCheckPeriod = time.Minute
	cfg.MaxConnLifetime = time.Hour

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}

	p := &Postgres{pool: pool, logger: logger}
	if err := p.createTables(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}

	logger.Info().Msg("postgres store initialized")
	return p, nil
}

func (p *Postgres) createTables(ctx context.Context) error {
	for _, table := range Tables {
		cols, _ := Columns(table)
		defs := make([]string, 0, len(cols)+1)
		defs = append(defs, "seq BIGSERIAL PRIMARY KEY")
		for _, c := range cols {
			defs = append(defs, fmt.Sprintf("%s TEXT NOT NULL DEFAULT ''", c))
		}
		query := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", table, strings.Join(defs, ", "))
		if _, err := p.pool.Exec(ctx, query); err != nil {
			return fmt.Errorf("table %s: %w", table, err)
		}
	}
	return nil
}

func (p *Postgres) Read(ctx context.Context, table string) ([][]string, error) {
	cols, err := Columns(table)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf("SELECT %s FROM %s ORDER BY seq", strings.Join(cols, ", "), table)
	rows, err := p.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", table, err)
	}
	defer rows.Close()

	var out [][]string
	for rows.Next() {
		row := make([]string, len(cols))
		ptrs := make([]interface{}, len(cols))
		for i := range row {
			ptrs[i] = &row[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("read %s: %w", table, err)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func (p *Postgres) Write(ctx context.Context, table string, rows [][]string) error {
	cols, err := Columns(table)
	if err != nil {
		return err
	}

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("write %s: %w", table, err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, fmt.Sprintf("DELETE FROM %s", table)); err != nil {
		return fmt.Errorf("write %s: %w", table, err)
	}
	if err := pgInsertRows(ctx, tx, table, cols, rows); err != nil {
		return fmt.Errorf("write %s: %w", table, err)
	}
	return tx.Commit(ctx)
}

func (p *Postgres) Append(ctx context.Context, table string, rows ...[]string) error {
	cols, err := Columns(table)
	if err != nil {
		return err
	}

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("append %s: %w", table, err)
	}
	defer tx.Rollback(ctx)

	if err := pgInsertRows(ctx, tx, table, cols, rows); err != nil {
		return fmt.Errorf("append %s: %w", table, err)
	}
	return tx.Commit(ctx)
}

func pgInsertRows(ctx context.Context, tx pgx.Tx, table string, cols []string, rows [][]string) error {
	if len(rows) == 0 {
		return nil
	}

	placeholders := make([]string, len(cols))
	for i := range cols {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		table, strings.Join(cols, ", "), strings.Join(placeholders, ", "))

	for _, row := range rows {
		padded := pad(row, len(cols))
		args := make([]interface{}, len(cols))
		for i, v := range padded {
			args[i] = v
		}
		if _, err := tx.Exec(ctx, query, args...); err != nil {
			return err
		}
	}
	return nil
}

// Ping verifies the database is reachable, for readiness checks.
func (p *Postgres) Ping(ctx context.Context) error { return p.pool.Ping(ctx) }

func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}
