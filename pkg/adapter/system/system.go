package system

import (
	"context"
	"fmt"
	"os/exec"

	"github.com/meshbridge/routeragent/pkg/adapter"
	"github.com/meshbridge/routeragent/pkg/rpc"
	"github.com/meshbridge/routeragent/pkg/util"
)

// Keys used in the NVRAM store for system-section fields.
const (
	keyHostname = "system.hostname"
	keyTimezone = "system.timezone"
	keyNTPServer = "system.ntp_server"
)

// Adapter implements the "system" configuration section: hostname,
// timezone, and NTP server live in the NVRAM store; CollectMetrics reads
// the load-average, uptime, memory and interface-counter pseudo-files.
// CPU usage and thermal zones are not part of its metrics.
type Adapter struct {
	adapter.BeforeImageStore
	store   *Store
	sources MetricSources
	runner  CommandRunner
}

// CommandRunner abstracts subprocess execution so tests can substitute a
// fake without actually spawning processes.
type CommandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

// RealRunner executes commands via os/exec.
func RealRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}

// New builds a system-section Adapter backed by store.
func New(store *Store, sources MetricSources, runner CommandRunner) *Adapter {
	if runner == nil {
		runner = RealRunner
	}
	return &Adapter{store: store, sources: sources, runner: runner}
}

func (a *Adapter) Section() rpc.Section { return rpc.SectionSystem }

func (a *Adapter) Read(ctx context.Context) (adapter.Document, error) {
	doc := adapter.Document{}
	if v, ok := a.store.Get(keyHostname); ok {
		doc["hostname"] = v
	}
	if v, ok := a.store.Get(keyTimezone); ok {
		doc["timezone"] = v
	}
	if v, ok := a.store.Get(keyNTPServer); ok {
		doc["ntp_server"] = v
	}
	return doc, nil
}

func (a *Adapter) Validate(doc adapter.Document) []rpc.ValidationIssue {
	var b adapter.IssueBuilder
	if hostname, ok := doc["hostname"]; ok {
		s, isStr := hostname.(string)
		b.Require(isStr && s != "", "hostname", "INVALID_HOSTNAME", "hostname must be a non-empty string")
	}
	if tz, ok := doc["timezone"]; ok {
		s, isStr := tz.(string)
		b.Require(isStr && s != "", "timezone", "INVALID_TIMEZONE", "timezone must be a non-empty string")
	}
	for k := range doc {
		switch k {
		case "hostname", "timezone", "ntp_server":
		default:
			b.Warn(false, k, "UNKNOWN_FIELD", fmt.Sprintf("unrecognized system field %q", k))
		}
	}
	return b.Issues()
}

func (a *Adapter) Diff(ctx context.Context, proposed adapter.Document) (rpc.ConfigDiff, error) {
	current, err := a.Read(ctx)
	if err != nil {
		return rpc.ConfigDiff{}, err
	}
	return adapter.Diff(current, proposed), nil
}

func (a *Adapter) Apply(ctx context.Context, doc adapter.Document, version rpc.SectionVersion) (adapter.Result, error) {
	diff, err := a.Diff(ctx, doc)
	if err != nil {
		return adapter.Result{Success: false, Step: "diff", Err: err}, err
	}
	if diff.IsEmpty() {
		return adapter.Result{Success: true, Diff: diff}, nil
	}

	a.BeforeImageStore.Capture(a.snapshot())

	if v, ok := doc["hostname"].(string); ok {
		a.store.Set(keyHostname, v)
	}
	if v, ok := doc["timezone"].(string); ok {
		a.store.Set(keyTimezone, v)
	}
	if v, ok := doc["ntp_server"].(string); ok {
		a.store.Set(keyNTPServer, v)
	}

	if err := a.store.Commit(); err != nil {
		_, rerr := a.Rollback(ctx)
		if rerr != nil {
			return adapter.Result{Success: false, Step: "commit", Err: err}, rerr
		}
		return adapter.Result{Success: false, Step: "commit", Err: err}, err
	}

	diff.RequiresRestart = false
	return adapter.Result{Success: true, Diff: diff}, nil
}

func (a *Adapter) Rollback(ctx context.Context) (adapter.Result, error) {
	before, ok := a.BeforeImageStore.Get()
	if !ok {
		return adapter.Result{Success: false, Err: fmt.Errorf("system: no before-image to roll back to")}, fmt.Errorf("system rollback: %w", util.ErrNoSnapshot)
	}
	a.restore(before)
	if err := a.store.Commit(); err != nil {
		return adapter.Result{Success: false, Step: "rollback_commit", Err: err}, err
	}
	return adapter.Result{Success: true, Step: "rollback"}, nil
}

func (a *Adapter) CollectMetrics(ctx context.Context) (adapter.Document, error) {
	doc := adapter.Document{}

	if load, ok, err := ParseLoadAvg(a.sources.LoadAvgPath); err == nil && ok {
		doc["load"] = load
	}
	if uptime, ok, err := ParseUptimeSeconds(a.sources.UptimePath); err == nil && ok {
		doc["uptime"] = uptime
	}
	if mem, ok, err := ParseMemInfoPercent(a.sources.MemInfoPath); err == nil && ok {
		doc["memory"] = mem
	}
	if counters, err := ParseNetDev(a.sources.NetDevPath); err == nil {
		doc["interface_counters"] = counters
	}
	return doc, nil
}

func (a *Adapter) AllowedCommands() []string {
	return []string{"reboot", "sync", "logger"}
}

// snapshot captures the system-relevant keys of the NVRAM store for a
// before-image, rather than the entire store (other adapters stage their
// own keys concurrently and must not be clobbered by this adapter's
// rollback).
func (a *Adapter) snapshot() adapter.Document {
	doc := adapter.Document{}
	for _, k := range []string{keyHostname, keyTimezone, keyNTPServer} {
		if v, ok := a.store.Get(k); ok {
			doc[k] = v
		}
	}
	return doc
}

func (a *Adapter) restore(before adapter.Document) {
	for _, k := range []string{keyHostname, keyTimezone, keyNTPServer} {
		if v, ok := before[k]; ok {
			if s, isStr := v.(string); isStr {
				a.store.Set(k, s)
				continue
			}
		}
		a.store.Delete(k)
	}
}
