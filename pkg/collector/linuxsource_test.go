package collector

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/meshbridge/routeragent/pkg/adapter/system"
)

func writeFixture(t *testing.T, dir, name, contents string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	return path
}

func TestLinuxSource_UptimeAndLoad(t *testing.T) {
	dir := t.TempDir()
	sources := system.MetricSources{
		UptimePath:  writeFixture(t, dir, "uptime", "100.5 50.0\n"),
		LoadAvgPath: writeFixture(t, dir, "loadavg", "0.1 0.2 0.3 1/10 100\n"),
		MemInfoPath: writeFixture(t, dir, "meminfo", "MemTotal: 1000 kB\nMemAvailable: 500 kB\n"),
		NetDevPath:  writeFixture(t, dir, "net_dev", "Inter-|Receive\n face |bytes\n"),
	}
	src := NewLinuxSource(sources, nil, nil, nil, "3.0.0.4")

	uptime, err := src.UptimeSeconds(context.Background())
	if err != nil || uptime != 100 {
		t.Errorf("UptimeSeconds() = %d, %v; want 100, nil", uptime, err)
	}

	load, err := src.Load(context.Background())
	if err != nil || load[0] != 0.1 {
		t.Errorf("Load() = %+v, %v", load, err)
	}

	mem, err := src.MemoryPercent(context.Background())
	if err != nil || mem != 50 {
		t.Errorf("MemoryPercent() = %d, %v; want 50, nil", mem, err)
	}
}

func TestLinuxSource_TemperatureMissingIsNil(t *testing.T) {
	src := NewLinuxSource(system.MetricSources{ThermalGlob: filepath.Join(t.TempDir(), "nonexistent*")}, nil, nil, nil, "")
	temp, err := src.TemperatureCelsius(context.Background())
	if err != nil {
		t.Fatalf("TemperatureCelsius() should not error on missing sensors: %v", err)
	}
	if temp != nil {
		t.Errorf("expected nil temperature, got %v", *temp)
	}
}

func TestLinuxSource_WANIPUsesResolver(t *testing.T) {
	src := NewLinuxSource(system.MetricSources{}, nil, func(ctx context.Context) (string, error) {
		return "203.0.113.5", nil
	}, nil, "")
	ip, err := src.WANIP(context.Background())
	if err != nil || ip != "203.0.113.5" {
		t.Errorf("WANIP() = %q, %v", ip, err)
	}
}

func TestLinuxSource_WANIPNilResolverIsEmpty(t *testing.T) {
	src := NewLinuxSource(system.MetricSources{}, nil, nil, nil, "")
	ip, err := src.WANIP(context.Background())
	if err != nil || ip != "" {
		t.Errorf("WANIP() with nil resolver = %q, %v; want empty, nil", ip, err)
	}
}

func TestLinuxSource_InterfacesFallsBackToNetDevKeys(t *testing.T) {
	dir := t.TempDir()
	contents := "Inter-|Receive\n face |bytes    packets errs drop fifo frame compressed multicast|bytes    packets errs drop fifo colls carrier compressed\n  eth0: 100      1    0    0    0     0          0         0   200       1    0    0    0     0       0          0\n"
	sources := system.MetricSources{NetDevPath: writeFixture(t, dir, "net_dev", contents)}
	src := NewLinuxSource(sources, nil, nil, nil, "")

	ifaces, err := src.Interfaces(context.Background())
	if err != nil {
		t.Fatalf("Interfaces() failed: %v", err)
	}
	if len(ifaces) != 1 || ifaces[0].Name != "eth0" || ifaces[0].RxBytes != 100 {
		t.Errorf("unexpected interfaces: %+v", ifaces)
	}
}
