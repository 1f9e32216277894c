package persistence

import (
	"context"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"

	"go.uber.org/zap"
)

// MigrationsDir is the directory, relative to the working directory, holding the SQL files.
const MigrationsDir = "migrations"

// ApplyFunc executes one migration file.
type ApplyFunc func(ctx context.Context, statement string) error

// RunMigrations executes every .sql file of fsys in lexical order. Files are expected to be
// re-runnable (CREATE ... IF NOT EXISTS).
func RunMigrations(ctx context.Context, fsys fs.FS, apply ApplyFunc, logger *zap.Logger) error {
	if apply == nil {
		logger.Warn("no database available; skipping migrations")
		return nil
	}

	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}

	filenames := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		filenames = append(filenames, entry.Name())
	}

	sort.Strings(filenames)

	for _, name := range filenames {
		content, err := fs.ReadFile(fsys, path.Clean(name))
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}

		logger.Info("applying migration", zap.String("file", name))
		if err := apply(ctx, string(content)); err != nil {
			return fmt.Errorf("apply migration %s: %w", name, err)
		}
	}

	logger.Info("migrations applied", zap.Int("count", len(filenames)))
	return nil
}
