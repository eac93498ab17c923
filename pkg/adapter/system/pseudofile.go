package system

import (
	"bufio"
	"os"
	"strconv"
	"strings"
)

// MetricSources locates the pseudo-files and directories the system
// adapter reads metrics from. Production code points these at /proc and
// /sys; tests point them at fixture directories.
type MetricSources struct {
	LoadAvgPath  string // e.g. /proc/loadavg
	MemInfoPath  string // e.g. /proc/meminfo
	UptimePath   string // e.g. /proc/uptime
	ThermalGlob  string // e.g. /sys/class/thermal/thermal_zone*/temp
	NetDevPath   string // e.g. /proc/net/dev
}

// DefaultMetricSources points at the standard Linux pseudo-filesystem
// locations.
func DefaultMetricSources() MetricSources {
	return MetricSources{
		LoadAvgPath: "/proc/loadavg",
		MemInfoPath: "/proc/meminfo",
		UptimePath:  "/proc/uptime",
		ThermalGlob: "/sys/class/thermal/thermal_zone*/temp",
		NetDevPath:  "/proc/net/dev",
	}
}

// ParseLoadAvg reads the 1/5/15-minute load averages from a /proc/loadavg
// style file. Returns a zero triple and no error if the file is absent —
// missing thermal/load sources are tolerated by omission, not failure.
func ParseLoadAvg(path string) ([3]float64, bool, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return [3]float64{}, false, nil
	}
	if err != nil {
		return [3]float64{}, false, err
	}
	fields := strings.Fields(string(data))
	if len(fields) < 3 {
		return [3]float64{}, false, nil
	}
	var load [3]float64
	for i := 0; i < 3; i++ {
		v, err := strconv.ParseFloat(fields[i], 64)
		if err != nil {
			return [3]float64{}, false, nil
		}
		load[i] = v
	}
	return load, true, nil
}

// ParseUptimeSeconds reads the first field of a /proc/uptime style file.
func ParseUptimeSeconds(path string) (int, bool, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	fields := strings.Fields(string(data))
	if len(fields) < 1 {
		return 0, false, nil
	}
	f, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return 0, false, nil
	}
	return int(f), true, nil
}

// ParseMemInfoPercent reads MemTotal/MemAvailable from a /proc/meminfo
// style file and returns percent used. Guards against a zero-total
// denominator by reporting unavailable rather than dividing by zero.
func ParseMemInfoPercent(path string) (int, bool, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	defer f.Close()

	var total, available int64
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 2 {
			continue
		}
		switch strings.TrimSuffix(fields[0], ":") {
		case "MemTotal":
			total, _ = strconv.ParseInt(fields[1], 10, 64)
		case "MemAvailable":
			available, _ = strconv.ParseInt(fields[1], 10, 64)
		}
	}
	if total <= 0 {
		return 0, false, nil
	}
	usedPct := int(float64(total-available) / float64(total) * 100)
	return usedPct, true, nil
}

// ParseThermalZoneMillidegrees reads a single thermal_zone*/temp file
// (millidegrees Celsius) and converts to whole degrees.
func ParseThermalZoneMillidegrees(path string) (int, bool, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	milli, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, false, nil
	}
	return milli / 1000, true, nil
}

// InterfaceCounters holds the cumulative rx/tx byte totals for one
// interface, as read from /proc/net/dev.
type InterfaceCounters struct {
	RxBytes int64
	TxBytes int64
}

// ParseNetDev parses a /proc/net/dev style file into per-interface byte
// counters. Malformed lines are skipped rather than failing the whole
// read, since one bad pseudo-file line shouldn't blind the collector to
// every other interface.
func ParseNetDev(path string) (map[string]InterfaceCounters, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return map[string]InterfaceCounters{}, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	out := make(map[string]InterfaceCounters)
	scanner := bufio.NewScanner(f)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		if lineNum <= 2 {
			continue // header lines
		}
		line := scanner.Text()
		name, rest, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		fields := strings.Fields(rest)
		if len(fields) < 9 {
			continue
		}
		rx, err1 := strconv.ParseInt(fields[0], 10, 64)
		tx, err2 := strconv.ParseInt(fields[8], 10, 64)
		if err1 != nil || err2 != nil {
			continue
		}
		out[strings.TrimSpace(name)] = InterfaceCounters{RxBytes: rx, TxBytes: tx}
	}
	return out, scanner.Err()
}
