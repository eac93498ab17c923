package collector

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/meshbridge/routeragent/pkg/adapter/system"
	"github.com/meshbridge/routeragent/pkg/rpc"
)

// InterfaceLister enumerates the device's network interfaces with their
// up/down state and assigned IP, typically backed by the platform's
// network-configuration CLI.
type InterfaceLister func(ctx context.Context) ([]InterfaceState, error)

// InterfaceState is the administrative state of one interface, prior to
// byte-counter enrichment from /proc/net/dev.
type InterfaceState struct {
	Name string
	Up   bool
	IP   string
}

// WANIPResolver returns the device's current public/WAN-facing IP.
type WANIPResolver func(ctx context.Context) (string, error)

// DNSStatsReader returns DNS resolver counters (queries/blocked/cached).
// A nil reader reports zero counters — an agent without a local DNS
// resolver (no adblock list) simply has nothing to report here.
type DNSStatsReader func(ctx context.Context) (rpc.DNSCounters, error)

// LinuxSource implements Source by reading /proc and /sys pseudo-files,
// reusing the system package's parsers so the collector and the "system"
// adapter agree on how memory/load/uptime/thermal data and interface
// counters are derived. CPU usage is computed here from /proc/stat.
type LinuxSource struct {
	sources     system.MetricSources
	interfaces  InterfaceLister
	wanIP       WANIPResolver
	dnsStats    DNSStatsReader
	firmware    string

	cpuMu   sync.Mutex
	cpuPrev cpuSample
}

type cpuSample struct {
	idle, total uint64
	has         bool
}

// NewLinuxSource builds a LinuxSource. interfaces, wanIP, and dnsStats
// may be nil; missing collaborators simply omit their fields.
func NewLinuxSource(sources system.MetricSources, interfaces InterfaceLister, wanIP WANIPResolver, dnsStats DNSStatsReader, firmware string) *LinuxSource {
	return &LinuxSource{sources: sources, interfaces: interfaces, wanIP: wanIP, dnsStats: dnsStats, firmware: firmware}
}

func (s *LinuxSource) FirmwareVersion() string { return s.firmware }

func (s *LinuxSource) UptimeSeconds(ctx context.Context) (int64, error) {
	v, ok, err := system.ParseUptimeSeconds(s.sources.UptimePath)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, fmt.Errorf("uptime: %s not present", s.sources.UptimePath)
	}
	return int64(v), nil
}

func (s *LinuxSource) Load(ctx context.Context) ([3]float64, error) {
	v, ok, err := system.ParseLoadAvg(s.sources.LoadAvgPath)
	if err != nil {
		return [3]float64{}, err
	}
	if !ok {
		return [3]float64{}, fmt.Errorf("loadavg: %s not present", s.sources.LoadAvgPath)
	}
	return v, nil
}

func (s *LinuxSource) MemoryPercent(ctx context.Context) (int, error) {
	v, ok, err := system.ParseMemInfoPercent(s.sources.MemInfoPath)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, fmt.Errorf("meminfo: %s unavailable", s.sources.MemInfoPath)
	}
	return v, nil
}

// TemperatureCelsius reads the first present thermal zone matched by the
// configured glob. Absent sensors are tolerated by returning (nil, nil).
func (s *LinuxSource) TemperatureCelsius(ctx context.Context) (*int, error) {
	if s.sources.ThermalGlob == "" {
		return nil, nil
	}
	matches, err := filepath.Glob(s.sources.ThermalGlob)
	if err != nil || len(matches) == 0 {
		return nil, nil
	}
	deg, ok, err := system.ParseThermalZoneMillidegrees(matches[0])
	if err != nil || !ok {
		return nil, nil
	}
	return &deg, nil
}

// CPUPercent computes CPU busy percent from consecutive /proc/stat
// samples. The first call has no prior sample and returns 0.
func (s *LinuxSource) CPUPercent(ctx context.Context) (int, error) {
	idle, total, err := readProcStatTotals("/proc/stat")
	if err != nil {
		return 0, err
	}

	s.cpuMu.Lock()
	defer s.cpuMu.Unlock()
	prev := s.cpuPrev
	s.cpuPrev = cpuSample{idle: idle, total: total, has: true}
	if !prev.has || total <= prev.total {
		return 0, nil
	}

	totalDelta := total - prev.total
	idleDelta := idle - prev.idle
	if totalDelta == 0 {
		return 0, nil
	}
	busyPct := int(100 * (1 - float64(idleDelta)/float64(totalDelta)))
	if busyPct < 0 {
		busyPct = 0
	}
	if busyPct > 100 {
		busyPct = 100
	}
	return busyPct, nil
}

func readProcStatTotals(path string) (idle, total uint64, err error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	if !scanner.Scan() {
		return 0, 0, fmt.Errorf("%s: empty", path)
	}
	fields := strings.Fields(scanner.Text())
	if len(fields) < 5 || fields[0] != "cpu" {
		return 0, 0, fmt.Errorf("%s: unexpected format", path)
	}
	for i, f := range fields[1:] {
		v, convErr := strconv.ParseUint(f, 10, 64)
		if convErr != nil {
			continue
		}
		total += v
		if i == 3 { // idle is the 4th field
			idle = v
		}
	}
	return idle, total, nil
}

func (s *LinuxSource) Interfaces(ctx context.Context) ([]InterfaceSnapshot, error) {
	counters, err := system.ParseNetDev(s.sources.NetDevPath)
	if err != nil {
		return nil, err
	}

	var states []InterfaceState
	if s.interfaces != nil {
		states, err = s.interfaces(ctx)
		if err != nil {
			return nil, err
		}
	} else {
		for name := range counters {
			states = append(states, InterfaceState{Name: name, Up: true})
		}
	}

	out := make([]InterfaceSnapshot, 0, len(states))
	for _, st := range states {
		c := counters[st.Name]
		out = append(out, InterfaceSnapshot{
			Name: st.Name, Up: st.Up, IP: st.IP, RxBytes: uint64(c.RxBytes), TxBytes: uint64(c.TxBytes),
		})
	}
	return out, nil
}

func (s *LinuxSource) Connections(ctx context.Context) (rpc.ConnectionCounts, error) {
	tcp, err := countProcNetLines("/proc/net/tcp")
	if err != nil {
		return rpc.ConnectionCounts{}, err
	}
	udp, err := countProcNetLines("/proc/net/udp")
	if err != nil {
		return rpc.ConnectionCounts{}, err
	}
	return rpc.ConnectionCounts{Total: tcp + udp, TCP: tcp, UDP: udp}, nil
}

func countProcNetLines(path string) (int, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	defer f.Close()

	count := 0
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		count++
	}
	if count > 0 {
		count-- // header line
	}
	return count, scanner.Err()
}

func (s *LinuxSource) WANIP(ctx context.Context) (string, error) {
	if s.wanIP == nil {
		return "", nil
	}
	return s.wanIP(ctx)
}

func (s *LinuxSource) DNSCounters(ctx context.Context) (rpc.DNSCounters, error) {
	if s.dnsStats == nil {
		return rpc.DNSCounters{}, nil
	}
	return s.dnsStats(ctx)
}
