package migrate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"workhub/internal/db"
)

func TestMigrateSQLiteIsRepeatable(t *testing.T) {
	conn, dialect, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, Migrate(conn, dialect))
	require.NoError(t, Migrate(conn, dialect))

	var version int
	require.NoError(t, conn.QueryRow(`SELECT version FROM schema_version`).Scan(&version))
	assert.Equal(t, 1, version)

	for _, table := range []string{"organizations", "tasks", "comments", "attachments", "notifications", "events", "api_keys"} {
		var n int
		require.NoError(t, conn.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&n))
		assert.Equal(t, 1, n, table)
	}
}

func TestMigrationSetsMatchAcrossDialects(t *testing.T) {
	lite, err := loadMigrations(db.SQLite)
	require.NoError(t, err)
	pg, err := loadMigrations(db.Postgres)
	require.NoError(t, err)
	require.Len(t, pg, len(lite))
	for i := range lite {
		assert.Equal(t, lite[i].Version, pg[i].Version)
	}
}
