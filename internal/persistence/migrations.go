package persistence

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"

	"github.com/pressly/goose/v3"
	"go.uber.org/zap"
)

//go:embed migrations/postgres/*.sql migrations/sqlite/*.sql
var migrationFS embed.FS

// RunPostgresMigrations applies the embedded, versioned PostgreSQL migrations.
// Already-applied versions are skipped, so this is safe at every start.
func RunPostgresMigrations(ctx context.Context, db *sql.DB, logger *zap.Logger) error {
	return runMigrations(ctx, goose.DialectPostgres, db, "migrations/postgres", nil, logger)
}

// RunSQLiteMigrations applies the embedded SQLite migrations. Version 2 is a Go
// migration because SQLite has no ADD COLUMN IF NOT EXISTS.
func RunSQLiteMigrations(ctx context.Context, db *sql.DB, logger *zap.Logger) error {
	escalationColumns := goose.NewGoMigration(2, &goose.GoFunc{RunTx: addSQLiteEscalationColumns}, nil)
	return runMigrations(ctx, goose.DialectSQLite3, db, "migrations/sqlite", []*goose.Migration{escalationColumns}, logger)
}

func runMigrations(ctx context.Context, dialect goose.Dialect, db *sql.DB, dir string, goMigrations []*goose.Migration, logger *zap.Logger) error {
	if db == nil {
		return fmt.Errorf("run migrations: no database handle")
	}
	fsys, err := fs.Sub(migrationFS, dir)
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}

	var opts []goose.ProviderOption
	if len(goMigrations) > 0 {
		opts = append(opts, goose.WithGoMigrations(goMigrations...))
	}
	provider, err := goose.NewProvider(dialect, db, fsys, opts...)
	if err != nil {
		return fmt.Errorf("init migrations: %w", err)
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	for _, res := range results {
		logger.Info("applied migration",
			zap.Int64("version", res.Source.Version),
			zap.String("file", res.Source.Path),
			zap.Duration("duration", res.Duration))
	}

	version, err := provider.GetDBVersion(ctx)
	if err != nil {
		return fmt.Errorf("read migration version: %w", err)
	}
	logger.Info("migrations applied", zap.Int("count", len(results)), zap.Int64("version", version))
	return nil
}

var sqliteEscalationColumns = []struct {
	name string
	ddl  string
}{
	{"timeout_at", "ALTER TABLE help_requests ADD COLUMN timeout_at INTEGER"},
	{"escalation_level", "ALTER TABLE help_requests ADD COLUMN escalation_level INTEGER NOT NULL DEFAULT 0"},
	{"escalation_history", "ALTER TABLE help_requests ADD COLUMN escalation_history TEXT NOT NULL DEFAULT '[]'"},
}

func addSQLiteEscalationColumns(ctx context.Context, tx *sql.Tx) error {
	rows, err := tx.QueryContext(ctx, `PRAGMA table_info(help_requests)`)
	if err != nil {
		return fmt.Errorf("inspect help_requests: %w", err)
	}
	existing := map[string]bool{}
	for rows.Next() {
		var (
			cid       int
			name      string
			colType   string
			notNull   int
			dfltValue sql.NullString
			pk        int
		)
		if err := rows.Scan(&cid, &name, &colType, &notNull, &dfltValue, &pk); err != nil {
			_ = rows.Close()
			return fmt.Errorf("scan column info: %w", err)
		}
		existing[name] = true
	}
	if err := rows.Close(); err != nil {
		return err
	}

	for _, col := range sqliteEscalationColumns {
		if existing[col.name] {
			continue
		}
		if _, err := tx.ExecContext(ctx, col.ddl); err != nil {
			return fmt.Errorf("add column %s: %w", col.name, err)
		}
	}

	const backfill = `
        UPDATE help_requests
        SET timeout_at = created_at + CASE priority
                WHEN 'URGENT' THEN 300000
                WHEN 'HIGH' THEN 600000
                WHEN 'MEDIUM' THEN 900000
                ELSE 1800000
            END
        WHERE timeout_at IS NULL`
	if _, err := tx.ExecContext(ctx, backfill); err != nil {
		return fmt.Errorf("backfill timeout_at: %w", err)
	}
	return nil
}
