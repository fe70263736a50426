package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Backup writes a consistent snapshot of the database to dest. VACUUM INTO
// rewrites the database into a fresh file, so the copy is safe to take while
// the store is in use under WAL.
func (s *SQLite) Backup(ctx context.Context, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("create backup directory: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, "VACUUM INTO ?", dest); err != nil {
		return fmt.Errorf("backup database: %w", err)
	}
	return nil
}

// CleanupBackups deletes backup files in dir older than retention. Returns
// the number of files removed.
func (s *SQLite) CleanupBackups(dir string, retention time.Duration) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, err
	}

	cutoff := time.Now().Add(-retention)
	deleted := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(filepath.Join(dir, entry.Name())); err != nil {
				s.logger.Error().Err(err).Str("file", entry.Name()).Msg("failed to delete old backup")
				continue
			}
			deleted++
		}
	}
	return deleted, nil
}
