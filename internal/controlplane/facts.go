package controlplane

import (
	"context"
	"os"
	"runtime"

	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
)

// HostFacts describes the machine sending a heartbeat.
type HostFacts struct {
	Hostname        string  `json:"hostname,omitempty"`
	OS              string  `json:"os,omitempty"`
	Platform        string  `json:"platform,omitempty"`
	PlatformVersion string  `json:"platform_version,omitempty"`
	KernelVersion   string  `json:"kernel_version,omitempty"`
	UptimeSec       uint64  `json:"uptime_sec,omitempty"`
	MemUsedPercent  float64 `json:"mem_used_percent,omitempty"`
	DiskUsedPercent float64 `json:"disk_used_percent,omitempty"`
	AgentVersion    string  `json:"agent_version,omitempty"`
}

// FactsCollector gathers HostFacts. diskPath selects the volume whose usage
// is reported.
type FactsCollector func(ctx context.Context, diskPath string) HostFacts

// CollectHostFacts is the gopsutil backed FactsCollector. Facts that cannot
// be read are left empty.
func CollectHostFacts(ctx context.Context, diskPath string) HostFacts {
	out := HostFacts{OS: runtime.GOOS}

	if hi, err := host.InfoWithContext(ctx); err == nil && hi != nil {
		out.Hostname = hi.Hostname
		out.OS = hi.OS
		out.Platform = hi.Platform
		out.PlatformVersion = hi.PlatformVersion
		out.KernelVersion = hi.KernelVersion
		out.UptimeSec = hi.Uptime
	}
	if out.Hostname == "" {
		out.Hostname, _ = os.Hostname()
	}
	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil && vm != nil {
		out.MemUsedPercent = vm.UsedPercent
	}
	if diskPath != "" {
		if du, err := disk.UsageWithContext(ctx, diskPath); err == nil && du != nil {
			out.DiskUsedPercent = du.UsedPercent
		}
	}
	return out
}
