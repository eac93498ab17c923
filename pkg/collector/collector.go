// Package collector aggregates STATUS and METRICS payloads from
// subprocess output and pseudo-files on a cooperative schedule, without
// ever blocking the agent session's WebSocket reader.
package collector

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/meshbridge/routeragent/pkg/rpc"
)

// DefaultSubprocessTimeout bounds every individual Source call. A source
// that exceeds it is omitted from that tick and logged, rather than
// blocking the whole collection.
const DefaultSubprocessTimeout = 2 * time.Second

// InterfaceSnapshot is one interface's instantaneous state, as read by a
// Source. Rx/TxBytes are cumulative counters; the collector derives
// rates from consecutive snapshots.
type InterfaceSnapshot struct {
	Name    string
	Up      bool
	IP      string
	RxBytes uint64
	TxBytes uint64
}

// Source is the environmental data collection abstracts over: CPU,
// memory, load, temperature, interfaces, connection counts, WAN IP, and
// DNS resolver counters. Concrete implementations read pseudo-files and
// shell out to platform CLIs; tests substitute fakes.
type Source interface {
	UptimeSeconds(ctx context.Context) (int64, error)
	Load(ctx context.Context) ([3]float64, error)
	CPUPercent(ctx context.Context) (int, error)
	MemoryPercent(ctx context.Context) (int, error)
	TemperatureCelsius(ctx context.Context) (*int, error)
	Interfaces(ctx context.Context) ([]InterfaceSnapshot, error)
	Connections(ctx context.Context) (rpc.ConnectionCounts, error)
	WANIP(ctx context.Context) (string, error)
	DNSCounters(ctx context.Context) (rpc.DNSCounters, error)
	FirmwareVersion() string
}

// Collector produces STATUS and METRICS payloads from a Source, tracking
// per-interface byte-counter deltas to compute rx/tx rates across ticks.
type Collector struct {
	source Source
	log    *logrus.Entry
	rates  rateTracker
}

// New builds a Collector over source. log may be nil, in which case an
// entry on the logrus standard logger is used.
func New(source Source, log *logrus.Entry) *Collector {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Collector{source: source, log: log}
}

func (c *Collector) call(ctx context.Context, field string, fn func(context.Context) error) {
	boundedCtx, cancel := context.WithTimeout(ctx, DefaultSubprocessTimeout)
	defer cancel()
	if err := fn(boundedCtx); err != nil {
		c.log.WithError(err).WithField("field", field).Warn("collector: omitting field for this tick")
	}
}

// Status produces a full STATUS payload. Individual field failures are
// logged and omitted rather than failing the whole collection.
func (c *Collector) Status(ctx context.Context, firmware string) rpc.StatusPayload {
	payload := rpc.StatusPayload{Firmware: firmware}

	c.call(ctx, "uptime", func(ctx context.Context) error {
		v, err := c.source.UptimeSeconds(ctx)
		if err == nil {
			payload.Uptime = v
		}
		return err
	})
	c.call(ctx, "cpu", func(ctx context.Context) error {
		v, err := c.source.CPUPercent(ctx)
		if err == nil {
			payload.CPU = v
		}
		return err
	})
	c.call(ctx, "memory", func(ctx context.Context) error {
		v, err := c.source.MemoryPercent(ctx)
		if err == nil {
			payload.Memory = v
		}
		return err
	})
	c.call(ctx, "temperature", func(ctx context.Context) error {
		v, err := c.source.TemperatureCelsius(ctx)
		if err == nil {
			payload.Temperature = v
		}
		return err
	})
	c.call(ctx, "load", func(ctx context.Context) error {
		v, err := c.source.Load(ctx)
		if err == nil {
			payload.Load = v
		}
		return err
	})
	c.call(ctx, "connections", func(ctx context.Context) error {
		v, err := c.source.Connections(ctx)
		if err == nil {
			payload.Connections = v.Total
		}
		return err
	})
	c.call(ctx, "wan_ip", func(ctx context.Context) error {
		v, err := c.source.WANIP(ctx)
		if err == nil {
			payload.WANIP = v
		}
		return err
	})
	c.call(ctx, "interfaces", func(ctx context.Context) error {
		snapshots, err := c.source.Interfaces(ctx)
		if err != nil {
			return err
		}
		payload.Interfaces = c.rates.applyToStatus(snapshots)
		return nil
	})

	return payload
}

// Metrics produces a lightweight METRICS payload, with per-interface
// rx/tx rates rather than totals.
func (c *Collector) Metrics(ctx context.Context, timestamp int64) rpc.MetricsPayload {
	payload := rpc.MetricsPayload{Timestamp: timestamp}

	c.call(ctx, "cpu", func(ctx context.Context) error {
		v, err := c.source.CPUPercent(ctx)
		if err == nil {
			payload.CPU = v
		}
		return err
	})
	c.call(ctx, "memory", func(ctx context.Context) error {
		v, err := c.source.MemoryPercent(ctx)
		if err == nil {
			payload.Memory = v
		}
		return err
	})
	c.call(ctx, "temperature", func(ctx context.Context) error {
		v, err := c.source.TemperatureCelsius(ctx)
		if err == nil {
			payload.Temperature = v
		}
		return err
	})
	c.call(ctx, "connections", func(ctx context.Context) error {
		v, err := c.source.Connections(ctx)
		if err == nil {
			payload.Connections = v
		}
		return err
	})
	c.call(ctx, "dns", func(ctx context.Context) error {
		v, err := c.source.DNSCounters(ctx)
		if err == nil {
			payload.DNS = v
		}
		return err
	})
	c.call(ctx, "interfaces", func(ctx context.Context) error {
		snapshots, err := c.source.Interfaces(ctx)
		if err != nil {
			return err
		}
		payload.Interfaces = c.rates.applyToMetrics(snapshots)
		return nil
	})

	return payload
}

// Run emits a METRICS payload to emit every interval until ctx is
// cancelled. It runs on its own goroutine and never touches the
// WebSocket directly, so a slow subprocess never stalls the reader.
func (c *Collector) Run(ctx context.Context, interval time.Duration, now func() int64, emit func(rpc.MetricsPayload)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			emit(c.Metrics(ctx, now()))
		}
	}
}

// rateTracker computes rx/tx byte rates from consecutive interface
// snapshots. The first observation of any interface reports rate=0,
// since there is no prior sample to derive a delta from.
type rateTracker struct {
	mu       sync.Mutex
	previous map[string]sample
}

type sample struct {
	rx, tx uint64
	at     time.Time
}

func (rt *rateTracker) applyToStatus(snapshots []InterfaceSnapshot) []rpc.InterfaceStatus {
	out := make([]rpc.InterfaceStatus, 0, len(snapshots))
	for _, s := range snapshots {
		rxRate, txRate := rt.delta(s)
		status := "down"
		if s.Up {
			status = "up"
		}
		out = append(out, rpc.InterfaceStatus{
			Name: s.Name, Status: status, IP: s.IP,
			RxBytes: s.RxBytes, TxBytes: s.TxBytes, RxRate: rxRate, TxRate: txRate,
		})
	}
	return out
}

func (rt *rateTracker) applyToMetrics(snapshots []InterfaceSnapshot) map[string]rpc.InterfaceRate {
	out := make(map[string]rpc.InterfaceRate, len(snapshots))
	for _, s := range snapshots {
		rxRate, txRate := rt.delta(s)
		out[s.Name] = rpc.InterfaceRate{RxRate: rxRate, TxRate: txRate}
	}
	return out
}

// delta returns rate=0 for an interface's first observation, since there
// is no prior sample to derive a delta from.
func (rt *rateTracker) delta(s InterfaceSnapshot) (rxRate, txRate uint64) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if rt.previous == nil {
		rt.previous = make(map[string]sample)
	}

	now := time.Now()
	prev, ok := rt.previous[s.Name]
	rt.previous[s.Name] = sample{rx: s.RxBytes, tx: s.TxBytes, at: now}
	if !ok {
		return 0, 0
	}

	elapsed := now.Sub(prev.at).Seconds()
	if elapsed <= 0 || s.RxBytes < prev.rx || s.TxBytes < prev.tx {
		return 0, 0 // clock skew or counter reset (interface flap, subsystem restart)
	}
	rxDelta := s.RxBytes - prev.rx
	txDelta := s.TxBytes - prev.tx
	return uint64(float64(rxDelta) / elapsed), uint64(float64(txDelta) / elapsed)
}
