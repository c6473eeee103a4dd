package reliability

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	archivePrefix = "argus-backup-"
	stampLayout   = "2006-01-02-150405"

	// minBackupsKept survive rotation regardless of age.
	minBackupsKept = 3
)

// Snapshotter copies live SQLite databases with VACUUM INTO, which
// yields a consistent file without touching the WAL.
type Snapshotter struct {
	databases map[string]*sql.DB
	log       zerolog.Logger
}

func NewSnapshotter(databases map[string]*sql.DB, log zerolog.Logger) *Snapshotter {
	return &Snapshotter{
		databases: databases,
		log:       log.With().Str("service", "backup").Logger(),
	}
}

// Names returns the snapshot set in stable order. The caches are
// excluded: both rebuild themselves from upstream.
func (s *Snapshotter) Names() []string {
	names := make([]string, 0, len(s.databases))
	for name := range s.databases {
		if name == "cache" || name == "client_data" {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Snapshot writes one database copy and verifies its integrity.
func (s *Snapshotter) Snapshot(name, destPath string) error {
	db, ok := s.databases[name]
	if !ok {
		return fmt.Errorf("unknown database %s", name)
	}
	if _, err := db.Exec(fmt.Sprintf("VACUUM INTO '%s'", destPath)); err != nil {
		return fmt.Errorf("vacuum %s into %s: %w", name, destPath, err)
	}
	if err := verifySnapshot(destPath); err != nil {
		os.Remove(destPath)
		return fmt.Errorf("verify %s snapshot: %w", name, err)
	}
	return nil
}

func verifySnapshot(path string) error {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("open snapshot: %w", err)
	}
	defer db.Close()

	var result string
	if err := db.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity check: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("integrity check returned %q", result)
	}
	return nil
}

// archiveMeta describes the contents of one backup archive.
type archiveMeta struct {
	Timestamp time.Time  `json:"timestamp"`
	Databases []fileMeta `json:"databases"`
}

type fileMeta struct {
	Name      string `json:"name"`
	Filename  string `json:"filename"`
	SizeBytes int64  `json:"size_bytes"`
	Checksum  string `json:"checksum"`
}

// BackupInfo is one archive listed from the object store.
type BackupInfo struct {
	Filename  string    `json:"filename"`
	Timestamp time.Time `json:"timestamp"`
	SizeBytes int64     `json:"size_bytes"`
	AgeHours  int64     `json:"age_hours"`
}

// BackupService stages database snapshots, archives them, and keeps
// the remote copy within retention.
type BackupService struct {
	snaps         *Snapshotter
	store         ObjectStore
	dataDir       string
	retentionDays int
	log           zerolog.Logger
}

func NewBackupService(snaps *Snapshotter, store ObjectStore, dataDir string, retentionDays int, log zerolog.Logger) *BackupService {
	return &BackupService{
		snaps:         snaps,
		store:         store,
		dataDir:       dataDir,
		retentionDays: retentionDays,
		log:           log.With().Str("service", "r2_backup").Logger(),
	}
}

// CreateAndUpload snapshots every durable database into a tar.gz and
// uploads it, then rotates old remote archives.
func (s *BackupService) CreateAndUpload(ctx context.Context) error {
	start := time.Now()

	staging, err := os.MkdirTemp(s.dataDir, "backup-staging-")
	if err != nil {
		return fmt.Errorf("create staging dir: %w", err)
	}
	defer os.RemoveAll(staging)

	meta := archiveMeta{Timestamp: start.UTC()}
	var files []string
	for _, name := range s.snaps.Names() {
		dest := filepath.Join(staging, name+".db")
		if err := s.snaps.Snapshot(name, dest); err != nil {
			return err
		}
		info, err := os.Stat(dest)
		if err != nil {
			return fmt.Errorf("stat %s snapshot: %w", name, err)
		}
		sum, err := checksumFile(dest)
		if err != nil {
			return fmt.Errorf("checksum %s snapshot: %w", name, err)
		}
		meta.Databases = append(meta.Databases, fileMeta{
			Name:      name,
			Filename:  name + ".db",
			SizeBytes: info.Size(),
			Checksum:  sum,
		})
		files = append(files, dest)
	}

	metaPath := filepath.Join(staging, "backup-metadata.json")
	if err := writeMeta(metaPath, meta); err != nil {
		return fmt.Errorf("write metadata: %w", err)
	}
	files = append(files, metaPath)

	archiveName := archivePrefix + start.Format(stampLayout) + ".tar.gz"
	archivePath := filepath.Join(staging, archiveName)
	if err := createArchive(archivePath, files); err != nil {
		return fmt.Errorf("create archive: %w", err)
	}

	f, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer f.Close()
	if err := s.store.Upload(ctx, archiveName, f); err != nil {
		return err
	}

	info, _ := os.Stat(archivePath)
	var sizeKB int64
	if info != nil {
		sizeKB = info.Size() / 1024
	}
	s.log.Info().
		Dur("duration", time.Since(start)).
		Str("archive", archiveName).
		Int64("size_kb", sizeKB).
		Msg("backup uploaded")

	if err := s.Rotate(ctx); err != nil {
		s.log.Error().Err(err).Msg("backup rotation failed")
	}
	return nil
}

// List returns the stored archives, newest first.
func (s *BackupService) List(ctx context.Context) ([]BackupInfo, error) {
	objects, err := s.store.List(ctx, archivePrefix)
	if err != nil {
		return nil, fmt.Errorf("list backups: %w", err)
	}

	now := time.Now()
	backups := make([]BackupInfo, 0, len(objects))
	for _, obj := range objects {
		if !strings.HasPrefix(obj.Key, archivePrefix) || !strings.HasSuffix(obj.Key, ".tar.gz") {
			continue
		}
		stamp := strings.TrimSuffix(strings.TrimPrefix(obj.Key, archivePrefix), ".tar.gz")
		ts, err := time.Parse(stampLayout, stamp)
		if err != nil {
			s.log.Warn().Str("key", obj.Key).Msg("unparseable backup timestamp")
			continue
		}
		backups = append(backups, BackupInfo{
			Filename:  obj.Key,
			Timestamp: ts,
			SizeBytes: obj.Size,
			AgeHours:  int64(now.Sub(ts).Hours()),
		})
	}
	sort.Slice(backups, func(i, j int) bool {
		return backups[i].Timestamp.After(backups[j].Timestamp)
	})
	return backups, nil
}

// Rotate deletes archives past retention, always keeping the newest
// few even when they are old.
func (s *BackupService) Rotate(ctx context.Context) error {
	backups, err := s.List(ctx)
	if err != nil {
		return err
	}
	if len(backups) <= minBackupsKept || s.retentionDays <= 0 {
		return nil
	}

	cutoff := time.Now().AddDate(0, 0, -s.retentionDays)
	deleted := 0
	for i, b := range backups {
		if i < minBackupsKept || !b.Timestamp.Before(cutoff) {
			continue
		}
		if err := s.store.Delete(ctx, b.Filename); err != nil {
			s.log.Error().Err(err).Str("filename", b.Filename).Msg("failed to delete old backup")
			continue
		}
		deleted++
	}
	if deleted > 0 {
		s.log.Info().Int("deleted", deleted).Msg("backup rotation completed")
	}
	return nil
}

func checksumFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return fmt.Sprintf("sha256:%x", h.Sum(nil)), nil
}

func writeMeta(path string, meta archiveMeta) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(meta)
}

func createArchive(archivePath string, files []string) error {
	out, err := os.Create(archivePath)
	if err != nil {
		return fmt.Errorf("create archive file: %w", err)
	}
	defer out.Close()

	gz := gzip.NewWriter(out)
	defer gz.Close()
	tw := tar.NewWriter(gz)
	defer tw.Close()

	for _, path := range files {
		if err := addToArchive(tw, path); err != nil {
			return err
		}
	}
	return nil
}

func addToArchive(tw *tar.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat %s: %w", path, err)
	}
	hdr, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return fmt.Errorf("tar header for %s: %w", path, err)
	}
	hdr.Name = filepath.Base(path)
	if err := tw.WriteHeader(hdr); err != nil {
		return fmt.Errorf("write tar header: %w", err)
	}
	if _, err := io.Copy(tw, f); err != nil {
		return fmt.Errorf("write %s to archive: %w", path, err)
	}
	return nil
}
