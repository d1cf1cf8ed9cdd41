package db

import (
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRebind(t *testing.T) {
	q := `UPDATE tasks SET active=?, inactive_since=? WHERE id=?`
	assert.Equal(t, q, SQLite.Rebind(q))
	assert.Equal(t, `UPDATE tasks SET active=$1, inactive_since=$2 WHERE id=$3`, Postgres.Rebind(q))
	assert.Equal(t, `SELECT 1`, Postgres.Rebind(`SELECT 1`))
}

func TestTxOptions(t *testing.T) {
	assert.Nil(t, SQLite.TxOptions())
	opts := Postgres.TxOptions()
	require.NotNil(t, opts)
	assert.Equal(t, sql.LevelSerializable, opts.Isolation)
	assert.False(t, opts.ReadOnly)
}

func TestIsSerializationFailure(t *testing.T) {
	err := fmt.Errorf("commit: %w", &pgconn.PgError{Code: "40001"})
	assert.True(t, IsSerializationFailure(err))
	assert.False(t, IsSerializationFailure(&pgconn.PgError{Code: "23505"}))
	assert.False(t, IsSerializationFailure(errors.New("boom")))
	assert.False(t, IsSerializationFailure(nil))
}

func TestOpenSQLiteWorkspace(t *testing.T) {
	dir := t.TempDir()
	conn, dialect, err := Open(Config{Workspace: dir})
	require.NoError(t, err)
	defer conn.Close()
	assert.Equal(t, SQLite, dialect)
	require.NoError(t, conn.Ping())
	assert.FileExists(t, filepath.Join(dir, ".workhub", "workhub.db"))
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, _, err := Open(Config{Driver: "oracle"})
	require.Error(t, err)
	_, _, err = Open(Config{Driver: "postgres"})
	require.Error(t, err)
}
