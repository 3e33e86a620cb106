package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"
)

// ApplyMigrations brings the schema up to date by running every pending
// db/migrations/*.up.sql in lexical order, one transaction per file.
// Applied versions are recorded in schema_migrations and logged, so the
// startup log shows exactly what changed underneath the process.
func ApplyMigrations(ctx context.Context, db *sql.DB, migrationsDir string, log *zap.Logger) error {
	if err := ensureMigrationsTable(ctx, db); err != nil {
		return err
	}

	pending, skipped, err := pendingMigrations(ctx, db, migrationsDir)
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		log.Info("schema up to date", zap.Int("applied", skipped))
		return nil
	}

	for _, file := range pending {
		version := filepath.Base(file)
		contents, err := os.ReadFile(file)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", version, err)
		}
		if err := applyOne(ctx, db, version, string(contents)); err != nil {
			return err
		}
		log.Info("migration applied", zap.String("version", version))
	}
	log.Info("schema migrated", zap.Int("applied", len(pending)), zap.Int("skipped", skipped))
	return nil
}

// pendingMigrations returns the up files not yet recorded in
// schema_migrations, in lexical order, plus the count of already-applied
// ones.
func pendingMigrations(ctx context.Context, db *sql.DB, migrationsDir string) ([]string, int, error) {
	entries, err := os.ReadDir(migrationsDir)
	if err != nil {
		return nil, 0, fmt.Errorf("read migrations dir: %w", err)
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".up.sql") {
			continue
		}
		files = append(files, filepath.Join(migrationsDir, entry.Name()))
	}
	sort.Strings(files)

	var pending []string
	skipped := 0
	for _, file := range files {
		migrated, err := isMigrated(ctx, db, filepath.Base(file))
		if err != nil {
			return nil, 0, err
		}
		if migrated {
			skipped++
			continue
		}
		pending = append(pending, file)
	}
	return pending, skipped, nil
}

func applyOne(ctx context.Context, db *sql.DB, version, contents string) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration tx %s: %w", version, err)
	}
	if _, err := tx.ExecContext(ctx, contents); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("execute migration %s: %w", version, err)
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations(version) VALUES($1)`, version); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("record migration %s: %w", version, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration %s: %w", version, err)
	}
	return nil
}

func ensureMigrationsTable(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("ensure schema_migrations: %w", err)
	}
	return nil
}

func isMigrated(ctx context.Context, db *sql.DB, version string) (bool, error) {
	var exists bool
	err := db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version=$1)`, version).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check migration %s: %w", version, err)
	}
	return exists, nil
}
