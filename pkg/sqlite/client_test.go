package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryClientSharesOneDatabase(t *testing.T) {
	c, err := NewClient(WithPath(":memory:"))
	require.NoError(t, err)
	defer c.Close()

	ctx := context.Background()
	_, err = c.DB().ExecContext(ctx, `CREATE TABLE t (k TEXT PRIMARY KEY, v REAL)`)
	require.NoError(t, err)
	_, err = c.DB().ExecContext(ctx, `INSERT INTO t (k, v) VALUES ('16/20', 6.2)`)
	require.NoError(t, err)

	var v float64
	require.NoError(t, c.DB().QueryRowContext(ctx, `SELECT v FROM t WHERE k = '16/20'`).Scan(&v))
	assert.Equal(t, 6.2, v)
}

func TestPragmasApplyToEveryConnection(t *testing.T) {
	c, err := NewClient(
		WithPath(filepath.Join(t.TempDir(), "prices.db")),
		WithBusyTimeout(1500*time.Millisecond),
		WithWAL(true),
	)
	require.NoError(t, err)
	defer c.Close()

	ctx := context.Background()
	// Hold two connections at once so the second is a fresh one.
	first, err := c.DB().Conn(ctx)
	require.NoError(t, err)
	defer first.Close()
	second, err := c.DB().Conn(ctx)
	require.NoError(t, err)
	defer second.Close()

	var busy int
	require.NoError(t, second.QueryRowContext(ctx, `PRAGMA busy_timeout`).Scan(&busy))
	assert.Equal(t, 1500, busy)
	var mode string
	require.NoError(t, second.QueryRowContext(ctx, `PRAGMA journal_mode`).Scan(&mode))
	assert.Equal(t, "wal", mode)
	var fk int
	require.NoError(t, first.QueryRowContext(ctx, `PRAGMA foreign_keys`).Scan(&fk))
	assert.Equal(t, 1, fk)
}

func TestDSN(t *testing.T) {
	got := dsn(ClientConfig{Path: ":memory:", BusyTimeout: time.Second, WAL: true})
	assert.Equal(t, "file::memory:?_pragma=busy_timeout%281000%29&_pragma=foreign_keys%281%29", got)
}

func TestEmptyPathRejected(t *testing.T) {
	_, err := NewClient(WithPath(""))
	assert.Error(t, err)
}
