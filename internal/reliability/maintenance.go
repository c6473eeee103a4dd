package reliability

import (
	"database/sql"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/disk"
)

// MaintenanceJob runs the weekly database hygiene pass: WAL
// checkpoints, integrity checks, and a disk headroom check on the
// data directory.
type MaintenanceJob struct {
	databases map[string]*sql.DB
	dataDir   string
	log       zerolog.Logger
}

func NewMaintenanceJob(databases map[string]*sql.DB, dataDir string, log zerolog.Logger) *MaintenanceJob {
	return &MaintenanceJob{
		databases: databases,
		dataDir:   dataDir,
		log:       log.With().Str("job", "maintenance").Logger(),
	}
}

func (j *MaintenanceJob) Name() string { return "weekly_maintenance" }

func (j *MaintenanceJob) Run() error {
	if err := j.checkDiskSpace(); err != nil {
		return err
	}

	for name, db := range j.databases {
		if _, err := db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
			j.log.Warn().Err(err).Str("database", name).Msg("wal checkpoint failed")
		}

		var result string
		if err := db.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
			return fmt.Errorf("integrity check on %s: %w", name, err)
		}
		if result != "ok" {
			return fmt.Errorf("database %s failed integrity check: %s", name, result)
		}
	}

	j.log.Info().Int("databases", len(j.databases)).Msg("maintenance pass completed")
	return nil
}

// checkDiskSpace fails hard below 500MB so a full disk never corrupts
// a write mid-transaction.
func (j *MaintenanceJob) checkDiskSpace() error {
	usage, err := disk.Usage(j.dataDir)
	if err != nil {
		return fmt.Errorf("stat filesystem: %w", err)
	}

	freeGB := float64(usage.Free) / 1e9
	switch {
	case freeGB < 0.5:
		return fmt.Errorf("only %.2f GB free on %s", freeGB, j.dataDir)
	case freeGB < 5.0:
		j.log.Warn().Float64("free_gb", freeGB).Msg("disk space running low")
	default:
		j.log.Debug().Float64("free_gb", freeGB).Msg("disk space check")
	}
	return nil
}
