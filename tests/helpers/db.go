package helpers

import (
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/goran-ethernal/ChainReducer/internal/db"
	"github.com/goran-ethernal/ChainReducer/internal/logger"
	"github.com/goran-ethernal/ChainReducer/internal/migrations"
	"github.com/goran-ethernal/ChainReducer/pkg/config"
	"github.com/stretchr/testify/require"
)

// NewTestDB opens a migrated reducer database in a per-test directory.
// It is closed when the test ends.
func NewTestDB(t *testing.T, name string) *sql.DB {
	t.Helper()

	cfg := config.DatabaseConfig{Path: filepath.Join(t.TempDir(), name)}
	cfg.ApplyDefaults()

	database, err := db.Open(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })

	_, err = db.Migrate(database, migrations.Source(), logger.NewNopLogger())
	require.NoError(t, err)

	return database
}
