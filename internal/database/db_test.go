package database

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T, name string, profile DatabaseProfile) *DB {
	t.Helper()
	db, err := New(Config{
		Path:    filepath.Join(t.TempDir(), name+".db"),
		Profile: profile,
		Name:    name,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestMigrateAllSchemas(t *testing.T) {
	for name := range schemas {
		db := newTestDB(t, name, ProfileStandard)
		require.NoError(t, db.Migrate(), name)
		// Migrate is idempotent.
		require.NoError(t, db.Migrate(), name)
	}
}

func TestMigrateUnknownNameIsNoop(t *testing.T) {
	db := newTestDB(t, "mystery", ProfileStandard)
	assert.NoError(t, db.Migrate())
}

func TestWithTransaction(t *testing.T) {
	db := newTestDB(t, "cache", ProfileCache)
	require.NoError(t, db.Migrate())

	insert := "INSERT INTO job_runs (id, job, status, started_at) VALUES (?, 'j', 'done', '2026-01-30T00:00:00Z')"

	err := WithTransaction(db.Conn(), func(tx *sql.Tx) error {
		_, err := tx.Exec(insert, "a")
		return err
	})
	require.NoError(t, err)

	var n int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM job_runs").Scan(&n))
	assert.Equal(t, 1, n)

	// a returned error rolls the transaction back
	err = WithTransaction(db.Conn(), func(tx *sql.Tx) error {
		if _, err := tx.Exec(insert, "b"); err != nil {
			return err
		}
		return fmt.Errorf("boom")
	})
	require.Error(t, err)
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM job_runs").Scan(&n))
	assert.Equal(t, 1, n)

	// a panic is converted to an error and rolls back
	err = WithTransaction(db.Conn(), func(tx *sql.Tx) error { panic("kaboom") })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panic")
}

func TestHealthCheck(t *testing.T) {
	db := newTestDB(t, "market", ProfileStandard)
	require.NoError(t, db.Migrate())
	assert.NoError(t, db.HealthCheck(context.Background()))
	assert.NoError(t, db.QuickCheck(context.Background()))
}

func TestGetStats(t *testing.T) {
	db := newTestDB(t, "factors", ProfileStandard)
	require.NoError(t, db.Migrate())

	stats, err := db.GetStats()
	require.NoError(t, err)
	assert.Greater(t, stats.PageSize, int64(0))
}

func TestWALCheckpointAndVacuum(t *testing.T) {
	db := newTestDB(t, "cache", ProfileCache)
	require.NoError(t, db.Migrate())

	for i := 0; i < 10; i++ {
		_, err := db.Exec(
			"INSERT INTO job_runs (id, job, status, started_at) VALUES (?, ?, ?, ?)",
			fmt.Sprintf("run-%d", i), "test", "done", "2026-01-30T00:00:00Z",
		)
		require.NoError(t, err)
	}
	assert.NoError(t, db.WALCheckpoint(""))
	assert.NoError(t, db.Vacuum())
}
