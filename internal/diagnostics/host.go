// Package diagnostics inspects the host a Z-88 server runs on.
package diagnostics

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
)

// Host is a snapshot of machine resources.
type Host struct {
	CPUModel    string  `json:"cpu_model"`
	CPUThreads  int     `json:"cpu_threads"`
	MemTotalMB  float64 `json:"mem_total_mb"`
	MemPercent  float64 `json:"mem_percent"`
	DiskPath    string  `json:"disk_path"`
	DiskFreeGB  float64 `json:"disk_free_gb"`
	DiskPercent float64 `json:"disk_percent"`
	LoadAvg1    float64 `json:"load_avg_1"`
}

// Probe reads host metrics. dataDir selects the filesystem whose free
// space is reported. Metrics the platform does not expose stay zero.
func Probe(ctx context.Context, dataDir string) Host {
	h := Host{DiskPath: existingParent(dataDir)}

	if infos, err := cpu.InfoWithContext(ctx); err == nil && len(infos) > 0 {
		h.CPUModel = strings.TrimSpace(infos[0].ModelName)
	}
	if n, err := cpu.CountsWithContext(ctx, true); err == nil {
		h.CPUThreads = n
	}
	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		h.MemTotalMB = float64(vm.Total) / 1024 / 1024
		h.MemPercent = vm.UsedPercent
	}
	if u, err := disk.UsageWithContext(ctx, h.DiskPath); err == nil {
		h.DiskFreeGB = float64(u.Free) / 1024 / 1024 / 1024
		h.DiskPercent = u.UsedPercent
	}
	if avg, err := load.AvgWithContext(ctx); err == nil {
		h.LoadAvg1 = avg.Load1
	}
	return h
}

// existingParent walks up from dir to the closest directory that exists.
func existingParent(dir string) string {
	if dir == "" {
		dir = "."
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return string(filepath.Separator)
	}
	for {
		if info, err := os.Stat(abs); err == nil && info.IsDir() {
			return abs
		}
		parent := filepath.Dir(abs)
		if parent == abs {
			return abs
		}
		abs = parent
	}
}

// Severity grades a check.
type Severity int

const (
	SeverityOK Severity = iota
	SeverityWarn
	SeverityFail
)

// Check is one doctor finding.
type Check struct {
	Name     string
	Severity Severity
	Detail   string
}

// Thresholds under which host checks warn.
const (
	MinFreeDiskGB  = 1.0
	MaxMemPercent  = 90.0
	probeFileName  = ".z88-doctor"
	probeFileWrite = "ok"
)

// HostChecks grades a host snapshot.
func HostChecks(h Host) []Check {
	checks := []Check{{
		Name:   "cpu",
		Detail: fmt.Sprintf("%s (%d threads, load %.2f)", firstNonEmpty(h.CPUModel, "unknown"), h.CPUThreads, h.LoadAvg1),
	}}

	memCheck := Check{Name: "memory", Detail: fmt.Sprintf("%.0f MB, %.0f%% used", h.MemTotalMB, h.MemPercent)}
	if h.MemPercent > MaxMemPercent {
		memCheck.Severity = SeverityWarn
	}
	checks = append(checks, memCheck)

	diskCheck := Check{Name: "disk", Detail: fmt.Sprintf("%.1f GB free on %s", h.DiskFreeGB, h.DiskPath)}
	if h.DiskFreeGB < MinFreeDiskGB {
		diskCheck.Severity = SeverityWarn
	}
	return append(checks, diskCheck)
}

// WritableCheck verifies that dir can be created and written to.
func WritableCheck(dir string) Check {
	c := Check{Name: "data dir", Detail: dir}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		c.Severity = SeverityFail
		c.Detail = err.Error()
		return c
	}
	probe := filepath.Join(dir, probeFileName)
	err := os.WriteFile(probe, []byte(probeFileWrite), 0o600)
	if err == nil {
		err = os.Remove(probe)
	}
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		c.Severity = SeverityFail
		c.Detail = err.Error()
	}
	return c
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
