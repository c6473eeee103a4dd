package reliability

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"database/sql"
	"io"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/argusquant/argus/internal/database"
)

type memStore struct {
	objects map[string][]byte
	deleted []string
}

func newMemStore() *memStore {
	return &memStore{objects: make(map[string][]byte)}
}

func (m *memStore) Upload(_ context.Context, key string, body io.Reader) error {
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	m.objects[key] = data
	return nil
}

func (m *memStore) List(_ context.Context, prefix string) ([]Object, error) {
	var out []Object
	for key, data := range m.objects {
		out = append(out, Object{Key: key, Size: int64(len(data))})
	}
	return out, nil
}

func (m *memStore) Delete(_ context.Context, key string) error {
	delete(m.objects, key)
	m.deleted = append(m.deleted, key)
	return nil
}

func testDatabases(t *testing.T) map[string]*sql.DB {
	t.Helper()

	dbs := make(map[string]*sql.DB)
	for _, name := range []string{"market", "performance", "cache"} {
		db, err := database.New(database.Config{
			Path:    t.TempDir() + "/" + name + ".db",
			Profile: database.ProfileStandard,
			Name:    name,
		})
		require.NoError(t, err)
		require.NoError(t, db.Migrate())
		t.Cleanup(func() { db.Close() })
		dbs[name] = db.Conn()
	}
	return dbs
}

func TestSnapshotterExcludesCaches(t *testing.T) {
	snaps := NewSnapshotter(testDatabases(t), zerolog.Nop())
	assert.Equal(t, []string{"market", "performance"}, snaps.Names())
}

func TestSnapshotPassesIntegrityCheck(t *testing.T) {
	snaps := NewSnapshotter(testDatabases(t), zerolog.Nop())

	dest := t.TempDir() + "/market-copy.db"
	require.NoError(t, snaps.Snapshot("market", dest))
	require.NoError(t, verifySnapshot(dest))

	assert.Error(t, snaps.Snapshot("unknown", dest+"x"))
}

func TestCreateAndUploadProducesArchive(t *testing.T) {
	store := newMemStore()
	snaps := NewSnapshotter(testDatabases(t), zerolog.Nop())
	svc := NewBackupService(snaps, store, t.TempDir(), 14, zerolog.Nop())

	require.NoError(t, svc.CreateAndUpload(context.Background()))
	require.Len(t, store.objects, 1)

	for key, data := range store.objects {
		assert.Contains(t, key, archivePrefix)
		assert.Contains(t, key, ".tar.gz")

		names := tarEntries(t, data)
		assert.Contains(t, names, "market.db")
		assert.Contains(t, names, "performance.db")
		assert.Contains(t, names, "backup-metadata.json")
		assert.NotContains(t, names, "cache.db")
	}
}

func TestListSortsNewestFirst(t *testing.T) {
	store := newMemStore()
	store.objects[archivePrefix+"2026-08-01-020000.tar.gz"] = []byte("a")
	store.objects[archivePrefix+"2026-08-20-020000.tar.gz"] = []byte("bb")
	store.objects["unrelated.txt"] = []byte("x")

	svc := NewBackupService(nil, store, t.TempDir(), 14, zerolog.Nop())
	backups, err := svc.List(context.Background())
	require.NoError(t, err)
	require.Len(t, backups, 2)
	assert.Equal(t, archivePrefix+"2026-08-20-020000.tar.gz", backups[0].Filename)
	assert.Equal(t, int64(2), backups[0].SizeBytes)
}

func TestRotateKeepsMinimumAndRecent(t *testing.T) {
	store := newMemStore()
	now := time.Now()
	for _, age := range []int{1, 2, 40, 50, 60} {
		key := archivePrefix + now.AddDate(0, 0, -age).Format(stampLayout) + ".tar.gz"
		store.objects[key] = []byte("x")
	}

	svc := NewBackupService(nil, store, t.TempDir(), 14, zerolog.Nop())
	require.NoError(t, svc.Rotate(context.Background()))

	// Newest three always survive; of the two older-than-retention
	// leftovers, both go.
	assert.Len(t, store.objects, 3)
	assert.Len(t, store.deleted, 2)
}

func TestRotateNoOpBelowMinimum(t *testing.T) {
	store := newMemStore()
	old := archivePrefix + time.Now().AddDate(0, 0, -99).Format(stampLayout) + ".tar.gz"
	store.objects[old] = []byte("x")

	svc := NewBackupService(nil, store, t.TempDir(), 14, zerolog.Nop())
	require.NoError(t, svc.Rotate(context.Background()))
	assert.Len(t, store.objects, 1)
}

func TestMaintenanceJobPassesOnHealthyDatabases(t *testing.T) {
	job := NewMaintenanceJob(testDatabases(t), t.TempDir(), zerolog.Nop())
	assert.Equal(t, "weekly_maintenance", job.Name())
	require.NoError(t, job.Run())
}

func tarEntries(t *testing.T, data []byte) []string {
	t.Helper()

	gz, err := gzip.NewReader(bytes.NewReader(data))
	require.NoError(t, err)
	tr := tar.NewReader(gz)

	var names []string
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		names = append(names, hdr.Name)
	}
	return names
}
