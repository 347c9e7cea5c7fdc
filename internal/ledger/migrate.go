package ledger

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"

	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrations embed.FS

func migrate(ctx context.Context, db *sql.DB) error {
	fsys, err := fs.Sub(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("open migrations: %w", err)
	}
	provider, err := goose.NewProvider(goose.DialectSQLite3, db, fsys)
	if err != nil {
		return fmt.Errorf("create migration provider: %w", err)
	}
	if _, err := provider.Up(ctx); err != nil {
		return classify("migrate", "apply migrations", err)
	}
	return nil
}

// SchemaVersion returns the highest applied migration version.
func (l *Ledger) SchemaVersion(ctx context.Context) (int64, error) {
	fsys, err := fs.Sub(migrations, "migrations")
	if err != nil {
		return 0, fmt.Errorf("open migrations: %w", err)
	}
	provider, err := goose.NewProvider(goose.DialectSQLite3, l.db, fsys)
	if err != nil {
		return 0, fmt.Errorf("create migration provider: %w", err)
	}
	version, err := provider.GetDBVersion(ctx)
	if err != nil {
		return 0, classify("schema_version", "", err)
	}
	return version, nil
}
