package migrations

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"

	"github.com/pressly/goose/v3"
)

//go:embed registry/*.sql
var registryFS embed.FS

//go:embed tenant/*.sql
var tenantFS embed.FS

// tenantGoMigrations are additive column changes. Each one inspects the table
// first so a re-run over a partially migrated file is a no-op.
func tenantGoMigrations() []*goose.Migration {
	return []*goose.Migration{
		goose.NewGoMigration(3, &goose.GoFunc{RunTx: addUserInviteColumns}, nil),
		goose.NewGoMigration(4, &goose.GoFunc{RunTx: addAPIKeyLastUsed}, nil),
	}
}

// UpRegistry migrates the global tenant registry.
func UpRegistry(ctx context.Context, db *sql.DB) error {
	p, err := newProvider(db, registryFS, "registry")
	if err != nil {
		return err
	}
	if _, err := p.Up(ctx); err != nil {
		return fmt.Errorf("run registry migrations: %w", err)
	}
	return nil
}

// UpTenant migrates one tenant store and returns the resulting schema version.
func UpTenant(ctx context.Context, db *sql.DB) (int64, error) {
	p, err := newProvider(db, tenantFS, "tenant", tenantGoMigrations()...)
	if err != nil {
		return 0, err
	}
	if _, err := p.Up(ctx); err != nil {
		return 0, fmt.Errorf("run tenant migrations: %w", err)
	}
	version, err := p.GetDBVersion(ctx)
	if err != nil {
		return 0, fmt.Errorf("read tenant schema version: %w", err)
	}
	return version, nil
}

// TenantVersion reads the applied schema version of a tenant store without
// migrating it.
func TenantVersion(ctx context.Context, db *sql.DB) (int64, error) {
	p, err := newProvider(db, tenantFS, "tenant", tenantGoMigrations()...)
	if err != nil {
		return 0, err
	}
	return p.GetDBVersion(ctx)
}

func newProvider(db *sql.DB, fsys embed.FS, dir string, goMigrations ...*goose.Migration) (*goose.Provider, error) {
	sub, err := fs.Sub(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("open %s migrations: %w", dir, err)
	}
	var opts []goose.ProviderOption
	if len(goMigrations) > 0 {
		opts = append(opts, goose.WithGoMigrations(goMigrations...))
	}
	p, err := goose.NewProvider(goose.DialectSQLite3, db, sub, opts...)
	if err != nil {
		return nil, fmt.Errorf("create %s migration provider: %w", dir, err)
	}
	return p, nil
}

func addUserInviteColumns(ctx context.Context, tx *sql.Tx) error {
	if err := addColumnIfMissing(ctx, tx, "users", "invite_token", "TEXT"); err != nil {
		return err
	}
	if err := addColumnIfMissing(ctx, tx, "users", "invite_expires_at", "INTEGER"); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, "CREATE INDEX IF NOT EXISTS idx_users_invite_token ON users(invite_token)"); err != nil {
		return fmt.Errorf("create invite token index: %w", err)
	}
	return nil
}

func addAPIKeyLastUsed(ctx context.Context, tx *sql.Tx) error {
	return addColumnIfMissing(ctx, tx, "api_keys", "last_used_at", "INTEGER")
}

func addColumnIfMissing(ctx context.Context, tx *sql.Tx, table, column, ddl string) error {
	exists, err := columnExists(ctx, tx, table, column)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	stmt := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, column, ddl)
	if _, err := tx.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("add column %s.%s: %w", table, column, err)
	}
	return nil
}

func columnExists(ctx context.Context, tx *sql.Tx, table, column string) (bool, error) {
	rows, err := tx.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return false, fmt.Errorf("inspect %s columns: %w", table, err)
	}
	defer rows.Close()

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
			return false, fmt.Errorf("scan %s columns: %w", table, err)
		}
		if name == column {
			return true, nil
		}
	}
	return false, rows.Err()
}
