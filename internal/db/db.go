package db

import (
	"database/sql"
	"fmt"
	"net/url"
	"strconv"

	"github.com/goran-ethernal/ChainReducer/pkg/config"
	_ "github.com/mattn/go-sqlite3"
)

const driverName = "sqlite3"

// Open opens the SQLite database described by cfg. Pragmas travel in the DSN
// so every pooled connection gets them, not only the first one.
func Open(cfg config.DatabaseConfig) (*sql.DB, error) {
	database, err := sql.Open(driverName, dsn(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", cfg.Path, err)
	}

	database.SetMaxOpenConns(cfg.MaxOpenConnections)
	database.SetMaxIdleConns(cfg.MaxIdleConnections)

	if err := database.Ping(); err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("failed to connect to database %s: %w", cfg.Path, err)
	}

	return database, nil
}

// OpenPath opens path with the default database settings.
func OpenPath(path string) (*sql.DB, error) {
	cfg := config.DatabaseConfig{Path: path, EnableForeignKeys: true}
	cfg.ApplyDefaults()

	return Open(cfg)
}

func dsn(cfg config.DatabaseConfig) string {
	params := url.Values{}
	params.Set("_txlock", "immediate")
	params.Set("_journal_mode", cfg.JournalMode)
	params.Set("_synchronous", cfg.Synchronous)
	params.Set("_busy_timeout", strconv.Itoa(cfg.BusyTimeout))
	params.Set("_cache_size", strconv.Itoa(cfg.CacheSize))
	if cfg.EnableForeignKeys {
		params.Set("_foreign_keys", "on")
	} else {
		params.Set("_foreign_keys", "off")
	}

	return "file:" + cfg.Path + "?" + params.Encode()
}
