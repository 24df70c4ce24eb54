package handlers

import (
	"context"
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/normanking/switchboard/internal/dispatch"
)

// SystemName is the registered name of the host metrics handler.
const SystemName = "System"

type systemTopic struct {
	words  wordSet
	render func(ctx context.Context, p Probe) (string, error)
}

var (
	systemTopics = []systemTopic{
		{newWordSet("system", "os"), renderHost},
		{newWordSet("cpu", "processor"), renderCPU},
		{newWordSet("memory", "ram", "swap"), renderMemory},
		{newWordSet("disk", "storage"), renderDisk},
		{newWordSet("network", "bandwidth"), renderNetwork},
		{newWordSet("process", "processes"), renderProcesses},
		{newWordSet("uptime", "boot"), renderUptime},
		{newWordSet("temperature", "temperatures", "sensors"), renderTemperatures},
	}

	systemKeywords = newWordSet(
		"info", "information", "status", "performance", "usage", "monitoring",
		"linux", "ubuntu", "windows", "macos",
	)
	systemOverviewWords = newWordSet("info", "information", "status", "overview")
	systemBonusWords    = newWordSet("cpu", "ram", "disk", "system", "info")
)

// System reports host metrics: cpu, memory, disk, network, processes,
// uptime and temperatures.
type System struct {
	probe Probe
}

var (
	_ dispatch.Handler       = (*System)(nil)
	_ dispatch.HealthChecker = (*System)(nil)
)

// NewSystem creates the metrics handler. A nil probe uses the local host.
func NewSystem(probe Probe) *System {
	if probe == nil {
		probe = NewHostProbe()
	}
	return &System{probe: probe}
}

func (s *System) Name() string           { return SystemName }
func (s *System) Specialization() string { return "System and administration" }

func (s *System) CanHandle(query string) bool {
	for _, t := range systemTopics {
		if t.words.match(query) {
			return true
		}
	}
	return systemKeywords.match(query)
}

func (s *System) Process(ctx context.Context, query string) (string, error) {
	for _, t := range systemTopics {
		if t.words.match(query) {
			return t.render(ctx, s.probe)
		}
	}
	if systemOverviewWords.match(query) {
		return renderOverview(ctx, s.probe)
	}
	return "I can report on the system, cpu, memory, disk, network, processes, uptime and temperature.", nil
}

// ScoringBonus favours queries naming a core metric.
func (s *System) ScoringBonus(query string) float64 {
	if systemBonusWords.match(query) {
		return 1.0
	}
	return 0
}

// ConfidenceBonus trusts measured values.
func (s *System) ConfidenceBonus(string, string) float64 { return 0.3 }

// Health checks that the probe can read memory statistics.
func (s *System) Health(ctx context.Context) error {
	if _, err := s.probe.Memory(ctx); err != nil {
		return fmt.Errorf("probe unavailable: %w", err)
	}
	return nil
}

func renderHost(ctx context.Context, p Probe) (string, error) {
	h, err := p.Host(ctx)
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	sb.WriteString("**System**\n")
	fmt.Fprintf(&sb, "- OS: %s %s (%s)\n", h.Platform, h.Version, h.OS)
	fmt.Fprintf(&sb, "- Kernel: %s\n", h.KernelVersion)
	fmt.Fprintf(&sb, "- Architecture: %s\n", h.Arch)
	fmt.Fprintf(&sb, "- Hostname: %s", h.Hostname)
	return sb.String(), nil
}

func renderCPU(ctx context.Context, p Probe) (string, error) {
	c, err := p.CPU(ctx)
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	sb.WriteString("**CPU**\n")
	if c.Model != "" {
		fmt.Fprintf(&sb, "- Model: %s\n", c.Model)
	}
	fmt.Fprintf(&sb, "- Cores: %d\n", c.Cores)
	fmt.Fprintf(&sb, "- Usage: %.1f%%", c.Percent)
	if c.MHz > 0 {
		fmt.Fprintf(&sb, "\n- Frequency: %.0f MHz", c.MHz)
	}
	return sb.String(), nil
}

func renderMemory(ctx context.Context, p Probe) (string, error) {
	m, err := p.Memory(ctx)
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	sb.WriteString("**Memory**\n")
	fmt.Fprintf(&sb, "- Total RAM: %s\n", humanize.IBytes(m.Total))
	fmt.Fprintf(&sb, "- Available: %s\n", humanize.IBytes(m.Available))
	fmt.Fprintf(&sb, "- Used: %.1f%%\n", m.Percent)
	fmt.Fprintf(&sb, "- Swap: %s (%.1f%% used)", humanize.IBytes(m.SwapTotal), m.SwapPercent)
	return sb.String(), nil
}

func renderDisk(ctx context.Context, p Probe) (string, error) {
	d, err := p.Disk(ctx)
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "**Disk** (%s)\n", d.Path)
	fmt.Fprintf(&sb, "- Total: %s\n", humanize.IBytes(d.Total))
	fmt.Fprintf(&sb, "- Free: %s\n", humanize.IBytes(d.Free))
	fmt.Fprintf(&sb, "- Used: %.1f%%", d.Percent)
	return sb.String(), nil
}

func renderNetwork(ctx context.Context, p Probe) (string, error) {
	n, err := p.Network(ctx)
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	sb.WriteString("**Network**\n")
	fmt.Fprintf(&sb, "- Sent: %s\n", humanize.IBytes(n.BytesSent))
	fmt.Fprintf(&sb, "- Received: %s\n", humanize.IBytes(n.BytesRecv))
	fmt.Fprintf(&sb, "- Packets sent: %s\n", humanize.Comma(int64(n.PacketsSent)))
	fmt.Fprintf(&sb, "- Packets received: %s", humanize.Comma(int64(n.PacketsRecv)))
	return sb.String(), nil
}

func renderProcesses(ctx context.Context, p Probe) (string, error) {
	info, err := p.Processes(ctx, 3)
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	sb.WriteString("**Processes**\n")
	fmt.Fprintf(&sb, "- Running: %s", humanize.Comma(int64(info.Count)))
	if len(info.Top) > 0 {
		sb.WriteString("\n- Top by CPU:")
		for _, proc := range info.Top {
			fmt.Fprintf(&sb, "\n  - %s (PID %d): %.1f%%", proc.Name, proc.PID, proc.CPUPercent)
		}
	}
	return sb.String(), nil
}

func renderUptime(ctx context.Context, p Probe) (string, error) {
	h, err := p.Host(ctx)
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	sb.WriteString("**Uptime**\n")
	fmt.Fprintf(&sb, "- Booted: %s (%s)\n", h.BootTime.Format("2006-01-02 15:04:05"), humanize.Time(h.BootTime))
	fmt.Fprintf(&sb, "- Uptime: %s", h.Uptime)
	return sb.String(), nil
}

func renderTemperatures(ctx context.Context, p Probe) (string, error) {
	temps, err := p.Temperatures(ctx)
	if err != nil {
		return "", err
	}
	if len(temps) == 0 {
		return "No temperature sensors are available on this host.", nil
	}
	var sb strings.Builder
	sb.WriteString("**Temperatures**")
	for _, t := range temps {
		fmt.Fprintf(&sb, "\n- %s: %.1f°C", t.Sensor, t.Celsius)
	}
	return sb.String(), nil
}

func renderOverview(ctx context.Context, p Probe) (string, error) {
	h, err := p.Host(ctx)
	if err != nil {
		return "", err
	}
	c, err := p.CPU(ctx)
	if err != nil {
		return "", err
	}
	m, err := p.Memory(ctx)
	if err != nil {
		return "", err
	}
	d, err := p.Disk(ctx)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	sb.WriteString("**Overview**\n")
	fmt.Fprintf(&sb, "- OS: %s %s\n", h.Platform, h.Version)
	fmt.Fprintf(&sb, "- CPU: %.1f%% used\n", c.Percent)
	fmt.Fprintf(&sb, "- RAM: %.1f%% used (%s free)\n", m.Percent, humanize.IBytes(m.Available))
	fmt.Fprintf(&sb, "- Disk: %.1f%% used", d.Percent)
	return sb.String(), nil
}
