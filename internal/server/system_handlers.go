package server

import (
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/voltatlas/prognos/internal/database"
)

// SystemHandlers serves operational health endpoints.
type SystemHandlers struct {
	log         zerolog.Logger
	dataDir     string
	locationsDB *database.DB
	meteringDB  *database.DB
	startedAt   time.Time
}

// NewSystemHandlers creates the system handler set.
func NewSystemHandlers(log zerolog.Logger, dataDir string, locationsDB, meteringDB *database.DB) *SystemHandlers {
	return &SystemHandlers{
		log:         log.With().Str("component", "system_handlers").Logger(),
		dataDir:     dataDir,
		locationsDB: locationsDB,
		meteringDB:  meteringDB,
		startedAt:   time.Now(),
	}
}

type healthResponse struct {
	Status        string  `json:"status"`
	UptimeSeconds float64 `json:"uptime_seconds"`
	CPUPercent    float64 `json:"cpu_percent"`
	MemoryPercent float64 `json:"memory_percent"`
	LocationsDB   string  `json:"locations_db"`
	MeteringDB    string  `json:"metering_db"`
	DataDirBytes  int64   `json:"data_dir_bytes"`
}

// HandleHealth handles GET /api/system/health
func (h *SystemHandlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	cpuPercent, memPercent := h.systemStats()

	resp := healthResponse{
		Status:        "ok",
		UptimeSeconds: time.Since(h.startedAt).Seconds(),
		CPUPercent:    cpuPercent,
		MemoryPercent: memPercent,
		LocationsDB:   h.pingStatus(h.locationsDB),
		MeteringDB:    h.pingStatus(h.meteringDB),
		DataDirBytes:  h.dirSize(h.dataDir),
	}
	if resp.LocationsDB != "ok" || resp.MeteringDB != "ok" {
		resp.Status = "degraded"
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *SystemHandlers) pingStatus(db *database.DB) string {
	if db == nil {
		return "not configured"
	}
	if err := db.Conn().Ping(); err != nil {
		return err.Error()
	}
	return "ok"
}

func (h *SystemHandlers) systemStats() (float64, float64) {
	var cpuPercent, memPercent float64
	if percents, err := cpu.Percent(0, false); err == nil && len(percents) > 0 {
		cpuPercent = percents[0]
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		memPercent = vm.UsedPercent
	}
	return cpuPercent, memPercent
}

func (h *SystemHandlers) dirSize(dir string) int64 {
	var size int64
	_ = filepath.Walk(dir, func(_ string, info os.FileInfo, err error) error {
		if err == nil && !info.IsDir() {
			size += info.Size()
		}
		return nil
	})
	return size
}
