package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3" // sqlite3 driver
	"github.com/rs/zerolog"
)

// SQLite persists the logical tables in a single local database file. Every
// column is TEXT; the engine owns all interpretation, same as with the sheet
// backend the tables originally lived in.
type SQLite struct {
	db     *sql.DB
	logger *zerolog.Logger
}

// NewSQLite opens (and if needed creates) the database at path.
func NewSQLite(path string, logger *zerolog.Logger) (*SQLite, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	dsn := path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	s := &SQLite{db: db, logger: logger}
	if err := s.createTables(); err != nil {
		return nil, fmt.Errorf("create tables: %w", err)
	}

	logger.Info().Str("path", path).Msg("sqlite store initialized")
	return s, nil
}

func (s *SQLite) createTables() error {
	for _, table := range Tables {
		cols, _ := Columns(table)
		defs := make([]string, len(cols))
		for i, c := range cols {
			defs[i] = fmt.Sprintf("%s TEXT NOT NULL DEFAULT ''", c)
		}
		query := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", table, strings.Join(defs, ", "))
		if _, err := s.db.Exec(query); err != nil {
			return fmt.Errorf("table %s: %w", table, err)
		}
	}
	return nil
}

func (s *SQLite) Read(ctx context.Context, table string) ([][]string, error) {
	cols, err := Columns(table)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf("SELECT %s FROM %s ORDER BY rowid", strings.Join(cols, ", "), table)
	rows, err := s.db.QueryContext(ctx, query)
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

func (s *SQLite) Write(ctx context.Context, table string, rows [][]string) error {
	cols, err := Columns(table)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("write %s: %w", table, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s", table)); err != nil {
		return fmt.Errorf("write %s: %w", table, err)
	}
	if err := insertRows(ctx, tx, table, cols, rows); err != nil {
		return fmt.Errorf("write %s: %w", table, err)
	}
	return tx.Commit()
}

func (s *SQLite) Append(ctx context.Context, table string, rows ...[]string) error {
	cols, err := Columns(table)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("append %s: %w", table, err)
	}
	defer tx.Rollback()

	if err := insertRows(ctx, tx, table, cols, rows); err != nil {
		return fmt.Errorf("append %s: %w", table, err)
	}
	return tx.Commit()
}

func insertRows(ctx context.Context, tx *sql.Tx, table string, cols []string, rows [][]string) error {
	if len(rows) == 0 {
		return nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		table, strings.Join(cols, ", "), placeholders)
	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, row := range rows {
		padded := pad(row, len(cols))
		args := make([]interface{}, len(cols))
		for i, v := range padded {
			args[i] = v
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLite) Close() error { return s.db.Close() }
