package store

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"time"

	"github.com/pocketbase/dbx"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

const migrationTable = "schema_migrations"

// Migrate applies every embedded migration at most once.
func (s *Store) Migrate(ctx context.Context) error {
	return applyMigrations(ctx, s.db, migrationFS, "migrations")
}

func applyMigrations(ctx context.Context, db *dbx.DB, fsys fs.FS, root string) error {
	entries, err := fs.ReadDir(fsys, root)
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}

	var files []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			files = append(files, entry.Name())
		}
	}
	sort.Strings(files)

	createSQL := "CREATE TABLE IF NOT EXISTS " + migrationTable + ` (
    name VARCHAR(255) NOT NULL PRIMARY KEY,
    applied_at BIGINT NOT NULL
)`
	if _, err := db.NewQuery(createSQL).WithContext(ctx).Execute(); err != nil {
		return fmt.Errorf("ensure migration table: %w", err)
	}

	for _, file := range files {
		var count int
		err := db.Select("COUNT(*)").From(migrationTable).
			Where(dbx.HashExp{"name": file}).WithContext(ctx).Row(&count)
		if err != nil {
			return fmt.Errorf("check migration %s: %w", file, err)
		}
		if count > 0 {
			continue
		}

		content, err := fs.ReadFile(fsys, root+"/"+file)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", file, err)
		}

		err = db.TransactionalContext(ctx, nil, func(tx *dbx.Tx) error {
			for _, stmt := range splitStatements(extractUp(string(content))) {
				if _, err := tx.NewQuery(stmt).WithContext(ctx).Execute(); err != nil {
					return fmt.Errorf("exec migration %s: %w", file, err)
				}
			}
			_, err := tx.Insert(migrationTable, dbx.Params{
				"name":       file,
				"applied_at": time.Now().UTC().UnixMilli(),
			}).WithContext(ctx).Execute()
			return err
		})
		if err != nil {
			return err
		}
	}

	return nil
}

func extractUp(content string) string {
	upIdx := strings.Index(content, "-- +migrate Up")
	if upIdx == -1 {
		return content
	}
	downIdx := strings.Index(content, "-- +migrate Down")
	if downIdx == -1 {
		return content[upIdx+len("-- +migrate Up"):]
	}
	return content[upIdx+len("-- +migrate Up") : downIdx]
}

// splitStatements breaks a migration into single statements. Statements must not embed semicolons.
func splitStatements(sql string) []string {
	var out []string
	for _, part := range strings.Split(sql, ";") {
		var lines []string
		for _, line := range strings.Split(part, "\n") {
			if trimmed := strings.TrimSpace(line); trimmed != "" && !strings.HasPrefix(trimmed, "--") {
				lines = append(lines, line)
			}
		}
		if len(lines) > 0 {
			out = append(out, strings.Join(lines, "\n"))
		}
	}
	return out
}
