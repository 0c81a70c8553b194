package db

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/goran-ethernal/ChainReducer/internal/logger"
	migrate "github.com/rubenv/sql-migrate"
)

// Migrate applies every pending migration from source and returns how many ran.
// A nil log falls back to the process default logger.
func Migrate(database *sql.DB, source migrate.MigrationSource, log *logger.Logger) (int, error) {
	return exec(database, source, migrate.Up, 0, log)
}

// Rollback reverts at most steps applied migrations, newest first.
func Rollback(database *sql.DB, source migrate.MigrationSource, steps int, log *logger.Logger) (int, error) {
	if steps <= 0 {
		return 0, fmt.Errorf("rollback needs a positive step count, got %d", steps)
	}
	return exec(database, source, migrate.Down, steps, log)
}

// Applied lists the ids of the migrations recorded in the database.
func Applied(database *sql.DB) ([]string, error) {
	records, err := migrate.GetMigrationRecords(database, driverName)
	if err != nil {
		return nil, fmt.Errorf("failed to read migration records: %w", err)
	}

	ids := make([]string, 0, len(records))
	for _, r := range records {
		ids = append(ids, r.Id)
	}
	return ids, nil
}

func exec(
	database *sql.DB,
	source migrate.MigrationSource,
	dir migrate.MigrationDirection,
	limit int,
	log *logger.Logger,
) (int, error) {
	if log == nil {
		log = logger.GetDefaultLogger()
	}

	available, err := source.FindMigrations()
	if err != nil {
		return 0, fmt.Errorf("failed to load migrations: %w", err)
	}

	ids := make([]string, 0, len(available))
	for _, m := range available {
		ids = append(ids, m.Id)
	}
	log.Debugf("Migration source holds %d migrations: %s", len(ids), strings.Join(ids, ", "))

	n, err := migrate.ExecMax(database, driverName, source, dir, limit)
	if err != nil {
		return n, fmt.Errorf("migrate %s failed after %d migrations: %w", direction(dir), n, err)
	}

	if n > 0 {
		log.Infof("Migrated %s: %d migrations applied", direction(dir), n)
	}
	return n, nil
}

func direction(dir migrate.MigrationDirection) string {
	if dir == migrate.Down {
		return "down"
	}
	return "up"
}
