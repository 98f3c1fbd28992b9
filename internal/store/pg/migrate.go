package pg

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"regexp"
	"sort"
	"strconv"

	"github.com/dropDatabas3/idbridge/internal/observability/logger"
)

// Formato de archivo: {version}_{name}.sql (ej: 0001_init.sql)
var migrationFilePattern = regexp.MustCompile(`^(\d+)_(.+)\.sql$`)

type migration struct {
	version int
	name    string
	sql     string
}

// Migrate aplica las migraciones embebidas pendientes, en orden de
// versión. Cada migración corre en su propia transacción y queda
// registrada en schema_migration.
func (s *Store) Migrate(ctx context.Context, migrationsFS embed.FS) error {
	const table = `
		CREATE TABLE IF NOT EXISTS schema_migration (
			version    INTEGER PRIMARY KEY,
			name       TEXT NOT NULL,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`
	if _, err := s.pool.Exec(ctx, table); err != nil {
		return fmt.Errorf("create schema_migration: %w", err)
	}

	migrations, err := parseMigrations(migrationsFS)
	if err != nil {
		return err
	}

	applied := make(map[int]bool)
	rows, err := s.pool.Query(ctx, `SELECT version FROM schema_migration`)
	if err != nil {
		return fmt.Errorf("read schema_migration: %w", err)
	}
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			rows.Close()
			return err
		}
		applied[v] = true
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	log := logger.Named("migrate")
	for _, m := range migrations {
		if applied[m.version] {
			continue
		}
		tx, err := s.pool.Begin(ctx)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, m.sql); err != nil {
			_ = tx.Rollback(ctx)
			return fmt.Errorf("apply migration %04d_%s: %w", m.version, m.name, err)
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO schema_migration (version, name) VALUES ($1, $2)`,
			m.version, m.name); err != nil {
			_ = tx.Rollback(ctx)
			return fmt.Errorf("record migration %d: %w", m.version, err)
		}
		if err := tx.Commit(ctx); err != nil {
			return err
		}
		log.Info("migration applied",
			logger.Int("version", m.version), logger.String("name", m.name))
	}
	return nil
}

func parseMigrations(migrationsFS embed.FS) ([]migration, error) {
	var out []migration
	err := fs.WalkDir(migrationsFS, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		m := migrationFilePattern.FindStringSubmatch(path.Base(p))
		if m == nil {
			return nil
		}
		version, err := strconv.Atoi(m[1])
		if err != nil {
			return fmt.Errorf("migration %s: %w", p, err)
		}
		body, err := fs.ReadFile(migrationsFS, p)
		if err != nil {
			return err
		}
		out = append(out, migration{version: version, name: m[2], sql: string(body)})
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].version < out[j].version })
	return out, nil
}
