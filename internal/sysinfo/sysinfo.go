// Package sysinfo samples host and process statistics for the stats command.
package sysinfo

import (
	"context"
	"os"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
)

type Snapshot struct {
	Platform      string
	Kernel        string
	GoVersion     string
	CPUs          int
	CPUPercent    float64
	MemUsedMB     uint64
	MemTotalMB    uint64
	MemPercent    float64
	Goroutines    int
	Uptime        time.Duration
	DatabaseBytes int64
}

// Collect gathers a snapshot. Host lookups that fail leave their fields zero.
func Collect(ctx context.Context, started time.Time, databasePath string) Snapshot {
	snap := Snapshot{
		GoVersion:  runtime.Version(),
		Goroutines: runtime.NumGoroutine(),
		Uptime:     time.Since(started).Truncate(time.Second),
	}
	if count, err := cpu.CountsWithContext(ctx, true); err == nil {
		snap.CPUs = count
	}
	if percent, err := cpu.PercentWithContext(ctx, 0, false); err == nil && len(percent) > 0 {
		snap.CPUPercent = percent[0]
	}
	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		snap.MemUsedMB = vm.Used / 1024 / 1024
		snap.MemTotalMB = vm.Total / 1024 / 1024
		snap.MemPercent = vm.UsedPercent
	}
	if info, err := host.InfoWithContext(ctx); err == nil {
		snap.Platform = info.Platform + " " + info.PlatformVersion
		snap.Kernel = info.KernelVersion
	}
	if databasePath != "" {
		if stat, err := os.Stat(databasePath); err == nil {
			snap.DatabaseBytes = stat.Size()
		}
	}
	return snap
}
