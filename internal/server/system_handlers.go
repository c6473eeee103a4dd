package server

import (
	"database/sql"
	"net/http"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/argusquant/argus/internal/upstream"
)

// GateSource exposes the upstream call-gate counters.
type GateSource interface {
	Snapshots() []upstream.GateSnapshot
}

// SystemHandlers serves the operational status endpoint.
type SystemHandlers struct {
	databases map[string]*sql.DB
	gates     GateSource
	runs      RunSource
	dataDir   string
	startedAt time.Time
	log       zerolog.Logger
}

func NewSystemHandlers(databases map[string]*sql.DB, gates GateSource, runs RunSource, dataDir string, log zerolog.Logger) *SystemHandlers {
	return &SystemHandlers{
		databases: databases,
		gates:     gates,
		runs:      runs,
		dataDir:   dataDir,
		startedAt: time.Now(),
		log:       log.With().Str("handler", "system").Logger(),
	}
}

type dbStat struct {
	Name   string `json:"name"`
	SizeKB int64  `json:"size_kb"`
}

// Status answers GET /api/system/status.
func (h *SystemHandlers) Status(w http.ResponseWriter, r *http.Request) {
	cpuPct, memPct := h.systemStats()

	resp := map[string]interface{}{
		"uptime_seconds": int64(time.Since(h.startedAt).Seconds()),
		"cpu_percent":    cpuPct,
		"memory_percent": memPct,
		"databases":      h.databaseStats(),
	}

	if usage, err := disk.Usage(h.dataDir); err == nil {
		resp["disk_free_gb"] = float64(usage.Free) / 1e9
		resp["disk_used_percent"] = usage.UsedPercent
	}
	if h.gates != nil {
		resp["providers"] = h.gates.Snapshots()
	}
	if h.runs != nil {
		if runs, err := h.runs.Recent(10); err == nil {
			resp["recent_runs"] = runs
		}
	}

	respondJSON(w, http.StatusOK, resp)
}

// systemStats samples CPU over a short window so the endpoint stays
// responsive for pollers.
func (h *SystemHandlers) systemStats() (float64, float64) {
	cpuPct, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		h.log.Warn().Err(err).Msg("failed to read cpu usage")
		cpuPct = []float64{0}
	}
	cpuAvg := 0.0
	if len(cpuPct) > 0 {
		cpuAvg = cpuPct[0]
	}

	memStat, err := mem.VirtualMemory()
	if err != nil {
		h.log.Warn().Err(err).Msg("failed to read memory usage")
		return cpuAvg, 0
	}
	return cpuAvg, memStat.UsedPercent
}

func (h *SystemHandlers) databaseStats() []dbStat {
	stats := make([]dbStat, 0, len(h.databases))
	for name, db := range h.databases {
		var pageCount, pageSize int64
		if err := db.QueryRow("PRAGMA page_count").Scan(&pageCount); err != nil {
			continue
		}
		if err := db.QueryRow("PRAGMA page_size").Scan(&pageSize); err != nil {
			continue
		}
		stats = append(stats, dbStat{Name: name, SizeKB: pageCount * pageSize / 1024})
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].Name < stats[j].Name })
	return stats
}
