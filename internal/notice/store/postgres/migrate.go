package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
)

//go:embed schema.sql
var schema string

// Migrate creates the notice tables when they do not exist yet. The schema only
// uses IF NOT EXISTS statements so running it against a current database is a no-op.
func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply notice schema: %w", err)
	}
	return nil
}

// Tables lists every table the schema owns, children first.
var Tables = []string{
	"refunds",
	"payments",
	"reductions",
	"suspension_ledger",
	"tracked_parties",
	"address_validation_snapshots",
	"notices",
}
