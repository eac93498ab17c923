// Package adapter defines the Subsystem Adapter contract: the uniform
// read/validate/diff/apply/rollback/collect_metrics capability set that
// every configuration section implements against router OS state.
package adapter

import (
	"context"

	"github.com/meshbridge/routeragent/pkg/rpc"
)

// Document is a JSON-compatible configuration document. Its schema is
// defined by the owning adapter; the dispatcher and mode wrapper treat it
// opaquely.
type Document map[string]interface{}

// Result is the outcome of an Apply or Rollback call.
type Result struct {
	Success bool
	Diff    rpc.ConfigDiff
	// Step names the operation step that failed (e.g. "commit",
	// "restart_hostapd"), populated only when Success is false.
	Step string
	Err  error
}

// Adapter is the capability set every configuration section implements.
// Read and CollectMetrics must not mutate the system. Validate is a pure
// function over doc plus cached environmental facts. Diff reads current
// state via Read and returns a stable, canonically-ordered change set.
// Apply requires a prior successful Validate and captures a before-image
// sufficient for Rollback; on any failure it attempts Rollback itself
// before reporting APPLY_FAILED. Rollback restores the most recent
// successful before-image, failing with ErrNoSnapshot if none exists.
type Adapter interface {
	Section() rpc.Section
	Read(ctx context.Context) (Document, error)
	Validate(doc Document) []rpc.ValidationIssue
	Diff(ctx context.Context, proposed Document) (rpc.ConfigDiff, error)
	Apply(ctx context.Context, doc Document, version rpc.SectionVersion) (Result, error)
	Rollback(ctx context.Context) (Result, error)
	CollectMetrics(ctx context.Context) (Document, error)

	// AllowedCommands lists the subprocess commands this adapter's section
	// permits via EXEC. A command not on any enabled adapter's list is
	// rejected with exit_code=127 before it is ever spawned.
	AllowedCommands() []string
}

// Registry maps section names to their adapter implementations and
// exposes DependencyOrder-ordered iteration for CONFIG_FULL batches.
type Registry struct {
	adapters map[rpc.Section]Adapter
}

// NewRegistry builds a Registry from a list of adapters, keyed by their own
// Section().
func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[rpc.Section]Adapter, len(adapters))}
	for _, a := range adapters {
		r.adapters[a.Section()] = a
	}
	return r
}

// Get returns the adapter for section, or ok=false if none is registered.
func (r *Registry) Get(section rpc.Section) (Adapter, bool) {
	a, ok := r.adapters[section]
	return a, ok
}

// Ordered returns the registered adapters in rpc.DependencyOrder, skipping
// any section with no registered adapter. Used for CONFIG_FULL apply and
// its reverse-order rollback.
func (r *Registry) Ordered() []Adapter {
	out := make([]Adapter, 0, len(r.adapters))
	for _, section := range rpc.DependencyOrder {
		if a, ok := r.adapters[section]; ok {
			out = append(out, a)
		}
	}
	return out
}

// AllowedCommand reports whether cmd is on the allow-list of any
// registered adapter. EXEC frames are not scoped to a single section, so
// the dispatcher checks the union across the registry.
func (r *Registry) AllowedCommand(cmd string) bool {
	for _, a := range r.adapters {
		for _, allowed := range a.AllowedCommands() {
			if allowed == cmd {
				return true
			}
		}
	}
	return false
}
