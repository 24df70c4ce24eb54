package handlers

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/net"
	"github.com/shirou/gopsutil/v4/process"
	"github.com/shirou/gopsutil/v4/sensors"
)

// Probe reads host metrics for the System handler.
type Probe interface {
	Host(ctx context.Context) (HostInfo, error)
	CPU(ctx context.Context) (CPUInfo, error)
	Memory(ctx context.Context) (MemoryInfo, error)
	Disk(ctx context.Context) (DiskInfo, error)
	Network(ctx context.Context) (NetworkInfo, error)
	Processes(ctx context.Context, top int) (ProcessInfo, error)
	Temperatures(ctx context.Context) ([]Temperature, error)
}

// HostInfo identifies the machine.
type HostInfo struct {
	Hostname      string
	OS            string
	Platform      string
	Version       string
	KernelVersion string
	Arch          string
	BootTime      time.Time
	Uptime        time.Duration
}

// CPUInfo is a CPU snapshot.
type CPUInfo struct {
	Model   string
	Cores   int
	Percent float64
	MHz     float64
}

// MemoryInfo is a RAM and swap snapshot.
type MemoryInfo struct {
	Total       uint64
	Available   uint64
	Percent     float64
	SwapTotal   uint64
	SwapPercent float64
}

// DiskInfo is the usage of one filesystem.
type DiskInfo struct {
	Path    string
	Total   uint64
	Free    uint64
	Percent float64
}

// NetworkInfo holds cumulative I/O counters over all interfaces.
type NetworkInfo struct {
	BytesSent   uint64
	BytesRecv   uint64
	PacketsSent uint64
	PacketsRecv uint64
}

// ProcessInfo counts processes and lists the busiest ones.
type ProcessInfo struct {
	Count int
	Top   []ProcessSample
}

// ProcessSample is one process and its CPU share.
type ProcessSample struct {
	PID        int32
	Name       string
	CPUPercent float64
}

// Temperature is one sensor reading in degrees Celsius.
type Temperature struct {
	Sensor  string
	Celsius float64
}

// HostProbe reads metrics from the local machine with gopsutil.
type HostProbe struct {
	// DiskPath is the filesystem reported by Disk.
	DiskPath string

	// SampleInterval is how long CPU usage is measured.
	SampleInterval time.Duration
}

var _ Probe = (*HostProbe)(nil)

// NewHostProbe creates a probe for the root filesystem.
func NewHostProbe() *HostProbe {
	path := "/"
	if runtime.GOOS == "windows" {
		path = `C:\`
	}
	return &HostProbe{DiskPath: path, SampleInterval: 500 * time.Millisecond}
}

func (p *HostProbe) Host(ctx context.Context) (HostInfo, error) {
	info, err := host.InfoWithContext(ctx)
	if err != nil {
		return HostInfo{}, fmt.Errorf("read host info: %w", err)
	}
	return HostInfo{
		Hostname:      info.Hostname,
		OS:            info.OS,
		Platform:      info.Platform,
		Version:       info.PlatformVersion,
		KernelVersion: info.KernelVersion,
		Arch:          info.KernelArch,
		BootTime:      time.Unix(int64(info.BootTime), 0),
		Uptime:        time.Duration(info.Uptime) * time.Second,
	}, nil
}

func (p *HostProbe) CPU(ctx context.Context) (CPUInfo, error) {
	cores, err := cpu.CountsWithContext(ctx, true)
	if err != nil {
		return CPUInfo{}, fmt.Errorf("count cpus: %w", err)
	}
	percents, err := cpu.PercentWithContext(ctx, p.SampleInterval, false)
	if err != nil {
		return CPUInfo{}, fmt.Errorf("sample cpu usage: %w", err)
	}

	out := CPUInfo{Cores: cores}
	if len(percents) > 0 {
		out.Percent = percents[0]
	}
	// Model and frequency are best effort; some VMs don't expose them.
	if infos, err := cpu.InfoWithContext(ctx); err == nil && len(infos) > 0 {
		out.Model = infos[0].ModelName
		out.MHz = infos[0].Mhz
	}
	return out, nil
}

func (p *HostProbe) Memory(ctx context.Context) (MemoryInfo, error) {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return MemoryInfo{}, fmt.Errorf("read memory: %w", err)
	}
	out := MemoryInfo{Total: vm.Total, Available: vm.Available, Percent: vm.UsedPercent}
	if swap, err := mem.SwapMemoryWithContext(ctx); err == nil {
		out.SwapTotal = swap.Total
		out.SwapPercent = swap.UsedPercent
	}
	return out, nil
}

func (p *HostProbe) Disk(ctx context.Context) (DiskInfo, error) {
	usage, err := disk.UsageWithContext(ctx, p.DiskPath)
	if err != nil {
		return DiskInfo{}, fmt.Errorf("read disk usage of %s: %w", p.DiskPath, err)
	}
	return DiskInfo{Path: usage.Path, Total: usage.Total, Free: usage.Free, Percent: usage.UsedPercent}, nil
}

func (p *HostProbe) Network(ctx context.Context) (NetworkInfo, error) {
	counters, err := net.IOCountersWithContext(ctx, false)
	if err != nil {
		return NetworkInfo{}, fmt.Errorf("read network counters: %w", err)
	}
	if len(counters) == 0 {
		return NetworkInfo{}, fmt.Errorf("no network counters available")
	}
	c := counters[0]
	return NetworkInfo{BytesSent: c.BytesSent, BytesRecv: c.BytesRecv, PacketsSent: c.PacketsSent, PacketsRecv: c.PacketsRecv}, nil
}

func (p *HostProbe) Processes(ctx context.Context, top int) (ProcessInfo, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return ProcessInfo{}, fmt.Errorf("list processes: %w", err)
	}

	samples := make([]ProcessSample, 0, len(procs))
	for _, proc := range procs {
		name, err := proc.NameWithContext(ctx)
		if err != nil {
			continue
		}
		pct, _ := proc.CPUPercentWithContext(ctx)
		samples = append(samples, ProcessSample{PID: proc.Pid, Name: name, CPUPercent: pct})
	}

	sort.Slice(samples, func(i, j int) bool { return samples[i].CPUPercent > samples[j].CPUPercent })
	if top >= 0 && len(samples) > top {
		samples = samples[:top]
	}
	return ProcessInfo{Count: len(procs), Top: samples}, nil
}

func (p *HostProbe) Temperatures(ctx context.Context) ([]Temperature, error) {
	stats, err := sensors.TemperaturesWithContext(ctx)
	if err != nil && len(stats) == 0 {
		return nil, fmt.Errorf("read temperatures: %w", err)
	}
	out := make([]Temperature, 0, len(stats))
	for _, s := range stats {
		out = append(out, Temperature{Sensor: s.SensorKey, Celsius: s.Temperature})
	}
	return out, nil
}
