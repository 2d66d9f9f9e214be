// Package sysmon collects the CPU/memory/disk/network numbers the dashboard
// panels poll for.
package sysmon

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/net"
)

// Metrics is one sample of system resource usage.
type Metrics struct {
	CPU     CPUMetrics       `json:"cpu"`
	Memory  MemoryMetrics    `json:"memory"`
	Disks   []DiskMetrics    `json:"disks"`
	Network []NetworkMetrics `json:"network"`
	Uptime  int64            `json:"uptime"`   // seconds
	LoadAvg []float64        `json:"load_avg"` // 1, 5, 15 min
}

type CPUMetrics struct {
	UsagePercent float64   `json:"usage_percent"`
	Cores        int       `json:"cores"`
	PerCore      []float64 `json:"per_core"`
}

type MemoryMetrics struct {
	Total       uint64  `json:"total"`
	Used        uint64  `json:"used"`
	Available   uint64  `json:"available"`
	UsedPercent float64 `json:"used_percent"`
}

type DiskMetrics struct {
	Device      string  `json:"device"`
	MountPoint  string  `json:"mount_point"`
	Total       uint64  `json:"total"`
	Used        uint64  `json:"used"`
	UsedPercent float64 `json:"used_percent"`
}

type NetworkMetrics struct {
	Interface string `json:"interface"`
	BytesSent uint64 `json:"bytes_sent"`
	BytesRecv uint64 `json:"bytes_recv"`
}

// Collect gathers one sample. The slow collectors run in parallel so a poll
// tick stays well under the UI's interval.
func Collect(ctx context.Context) (*Metrics, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	m := &Metrics{}
	var wg sync.WaitGroup
	var mu sync.Mutex

	wg.Add(1)
	go func() {
		defer wg.Done()
		perCore, err := cpu.PercentWithContext(ctx, 200*time.Millisecond, true)
		if err != nil || len(perCore) == 0 {
			return
		}
		var total float64
		for _, p := range perCore {
			total += p
		}
		mu.Lock()
		m.CPU.PerCore = perCore
		m.CPU.Cores = len(perCore)
		m.CPU.UsagePercent = total / float64(len(perCore))
		mu.Unlock()
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		vm, err := mem.VirtualMemoryWithContext(ctx)
		if err != nil {
			return
		}
		mu.Lock()
		m.Memory = MemoryMetrics{
			Total:       vm.Total,
			Used:        vm.Used,
			Available:   vm.Available,
			UsedPercent: vm.UsedPercent,
		}
		mu.Unlock()
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		parts, err := disk.PartitionsWithContext(ctx, false)
		if err != nil {
			return
		}
		var disks []DiskMetrics
		for _, p := range parts {
			if strings.HasPrefix(p.Mountpoint, "/System/Volumes") {
				continue // macOS firmlink noise
			}
			usage, err := disk.UsageWithContext(ctx, p.Mountpoint)
			if err != nil {
				continue
			}
			disks = append(disks, DiskMetrics{
				Device:      p.Device,
				MountPoint:  p.Mountpoint,
				Total:       usage.Total,
				Used:        usage.Used,
				UsedPercent: usage.UsedPercent,
			})
		}
		mu.Lock()
		m.Disks = disks
		mu.Unlock()
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		counters, err := net.IOCountersWithContext(ctx, true)
		if err != nil {
			return
		}
		var nets []NetworkMetrics
		for _, c := range counters {
			if c.BytesSent == 0 && c.BytesRecv == 0 {
				continue
			}
			nets = append(nets, NetworkMetrics{
				Interface: c.Name,
				BytesSent: c.BytesSent,
				BytesRecv: c.BytesRecv,
			})
		}
		mu.Lock()
		m.Network = nets
		mu.Unlock()
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if up, err := host.UptimeWithContext(ctx); err == nil {
			mu.Lock()
			m.Uptime = int64(up)
			mu.Unlock()
		}
		if avg, err := load.AvgWithContext(ctx); err == nil {
			mu.Lock()
			m.LoadAvg = []float64{avg.Load1, avg.Load5, avg.Load15}
			mu.Unlock()
		}
	}()

	wg.Wait()
	return m, ctx.Err()
}
