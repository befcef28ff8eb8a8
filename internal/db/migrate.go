package db

import (
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

// DefaultMigrationsDir holds the identity store's goose migrations,
// relative to the working directory.
const DefaultMigrationsDir = "migrations/core"

// Migrate brings the identity store schema up to date, applying any pending
// goose migrations from dir. An empty dir means DefaultMigrationsDir.
func Migrate(databaseURL, dir string) error {
	if dir == "" {
		dir = DefaultMigrationsDir
	}

	conn, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer conn.Close()

	if err := goose.Up(conn, dir); err != nil {
		return fmt.Errorf("apply identity schema migrations from %s: %w", dir, err)
	}

	return nil
}
