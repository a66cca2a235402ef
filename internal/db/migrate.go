package db

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

// Migrations holds the schema shipped with the binary.
//
//go:embed migrations/*.sql
var Migrations embed.FS

// Execer is satisfied by *pgxpool.Pool.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// ApplyMigrations executes the .sql files under dir in lexical order. Every
// statement must be idempotent since all files run on each start.
func ApplyMigrations(ctx context.Context, db Execer, fsys fs.FS, dir string) error {
	files, err := WalkFS(fsys, dir)
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}
	sort.Strings(files)

	for _, file := range files {
		content, readErr := fs.ReadFile(fsys, file)
		if readErr != nil {
			return readErr
		}
		statements := strings.Split(string(content), ";")
		for _, stmt := range statements {
			if strings.TrimSpace(stmt) == "" {
				continue
			}
			if _, execErr := db.Exec(ctx, stmt); execErr != nil {
				return fmt.Errorf("exec %s: %w", path.Base(file), execErr)
			}
		}
	}
	return nil
}

// WalkFS lists the .sql files below root.
func WalkFS(fsys fs.FS, root string) ([]string, error) {
	var files []string
	err := fs.WalkDir(fsys, root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.HasSuffix(d.Name(), ".sql") {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}
