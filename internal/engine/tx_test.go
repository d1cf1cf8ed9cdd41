package engine

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"workhub/internal/config"
	"workhub/internal/db"
	"workhub/internal/domain"
	"workhub/internal/migrate"
	"workhub/internal/repo"
)

func TestInTxReportsSerializationFailureAsConflict(t *testing.T) {
	conn, dialect, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, migrate.Migrate(conn, dialect))
	e := New(repo.Repo{DB: conn, Dialect: dialect}, config.Default(), nil)

	aborted := &pgconn.PgError{Code: "40001", Message: "could not serialize access"}
	err = e.inTx(context.Background(), func(*sql.Tx, *repo.TxStore) error { return aborted })
	require.ErrorIs(t, err, domain.ErrConflict)
	var pgErr *pgconn.PgError
	require.ErrorAs(t, err, &pgErr)

	boom := errors.New("boom")
	err = e.inTx(context.Background(), func(*sql.Tx, *repo.TxStore) error { return boom })
	require.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, domain.ErrConflict)
}
