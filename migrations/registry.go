package migrations

import (
	"context"
	"fmt"
	"io/fs"
	"strings"

	slack "github.com/goliatone/go-slack"
)

const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite"

	// SourceLabel identifies this module's migrations to a shared runner.
	SourceLabel = "go-slack"

	// EventDeliveriesTable is created by the first migration of each dialect.
	EventDeliveriesTable = "slack_event_deliveries"

	rootDir = "data/sql/migrations"
)

// eventDeliveriesMigration must ship with up and down files for every dialect.
const eventDeliveriesMigration = "00001_slack_event_deliveries"

// RegisterFunc hands one dialect's migrations to a runner, typically
// persistence.Client.RegisterSQLMigrations.
type RegisterFunc func(ctx context.Context, dialect, sourceLabel string, fsys fs.FS) error

// NormalizeDialect maps a database/sql driver name onto a migration dialect.
func NormalizeDialect(driver string) (string, error) {
	switch strings.TrimSpace(strings.ToLower(driver)) {
	case "postgres", "postgresql", "pg", "pgx":
		return DialectPostgres, nil
	case "sqlite", "sqlite3":
		return DialectSQLite, nil
	default:
		return "", fmt.Errorf("migrations: unsupported driver %q", driver)
	}
}

// Source returns the embedded migrations for dialect, rooted so that the
// .sql files sit at the top level.
func Source(dialect string) (fs.FS, error) {
	normalized, err := NormalizeDialect(dialect)
	if err != nil {
		return nil, err
	}
	dir := rootDir
	if normalized == DialectSQLite {
		dir = rootDir + "/sqlite"
	}
	sub, err := fs.Sub(slack.GetMigrationsFS(), dir)
	if err != nil {
		return nil, fmt.Errorf("migrations: resolve %s source: %w", normalized, err)
	}
	for _, suffix := range []string{".up.sql", ".down.sql"} {
		name := eventDeliveriesMigration + suffix
		if _, err := fs.Stat(sub, name); err != nil {
			return nil, fmt.Errorf("migrations: %s is missing %s: %w", normalized, name, err)
		}
	}
	return sub, nil
}

// Register passes each requested dialect's source to registerFn. With no
// dialects both postgres and sqlite are registered. It returns the
// normalized dialects in registration order.
func Register(ctx context.Context, registerFn RegisterFunc, dialects ...string) ([]string, error) {
	if registerFn == nil {
		return nil, fmt.Errorf("migrations: register function is required")
	}
	if len(dialects) == 0 {
		dialects = []string{DialectPostgres, DialectSQLite}
	}

	seen := make(map[string]struct{}, len(dialects))
	registered := make([]string, 0, len(dialects))
	for _, raw := range dialects {
		dialect, err := NormalizeDialect(raw)
		if err != nil {
			return registered, err
		}
		if _, ok := seen[dialect]; ok {
			continue
		}
		seen[dialect] = struct{}{}

		source, err := Source(dialect)
		if err != nil {
			return registered, err
		}
		if err := registerFn(ctx, dialect, SourceLabel, source); err != nil {
			return registered, fmt.Errorf("migrations: register %s: %w", dialect, err)
		}
		registered = append(registered, dialect)
	}
	return registered, nil
}
