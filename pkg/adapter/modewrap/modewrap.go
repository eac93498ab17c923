// Package modewrap implements mode enforcement as an adapter-transparent
// wrapper, so observe/shadow/takeover behavior is verifiable in isolation
// from any single adapter's logic. It never branches inside the wrapped
// adapter; Wrapped.Apply intercepts the call and decides, based on mode,
// whether to delegate, stub, or no-op it.
package modewrap

import (
	"context"
	"fmt"

	"github.com/meshbridge/routeragent/pkg/adapter"
	"github.com/meshbridge/routeragent/pkg/rpc"
)

// Wrapped decorates an adapter.Adapter with mode enforcement. mode is called
// on every Apply/Rollback to resolve the current effective mode for this
// adapter's section, so a MODE_UPDATE frame takes effect on the next call
// without requiring the registry to be rebuilt.
type Wrapped struct {
	adapter.Adapter
	mode func(section rpc.Section) rpc.Mode
}

// New wraps inner, resolving its effective mode via resolveMode on every
// Apply/Rollback call.
func New(inner adapter.Adapter, resolveMode func(section rpc.Section) rpc.Mode) *Wrapped {
	return &Wrapped{Adapter: inner, mode: resolveMode}
}

// Apply enforces the resolved mode:
//   - observe: no-op on the system. Runs Diff against the proposed
//     document and reports success with that diff, without calling the
//     inner adapter's Apply.
//   - shadow: runs Diff against the proposed document (which itself calls
//     Read) and reports success with that diff, without calling the
//     inner adapter's Apply.
//   - takeover: delegates to the inner adapter unchanged.
func (w *Wrapped) Apply(ctx context.Context, doc adapter.Document, version rpc.SectionVersion) (adapter.Result, error) {
	switch w.mode(w.Section()) {
	case rpc.ModeObserve:
		diff, err := w.Adapter.Diff(ctx, doc)
		if err != nil {
			return adapter.Result{Success: false, Step: "diff", Err: err}, err
		}
		return adapter.Result{Success: true, Diff: diff, Step: "observe_no_op"}, nil

	case rpc.ModeShadow:
		diff, err := w.Adapter.Diff(ctx, doc)
		if err != nil {
			return adapter.Result{Success: false, Step: "diff", Err: err}, err
		}
		return adapter.Result{Success: true, Diff: diff, Step: "shadow_no_mutation"}, nil

	case rpc.ModeTakeover:
		return w.Adapter.Apply(ctx, doc, version)

	default:
		err := fmt.Errorf("modewrap: unrecognized mode for section %s", w.Section())
		return adapter.Result{Success: false, Err: err}, err
	}
}

// Rollback is only ever meaningful in takeover mode: observe and shadow
// never mutated the system, so there is nothing to roll back.
func (w *Wrapped) Rollback(ctx context.Context) (adapter.Result, error) {
	if w.mode(w.Section()) != rpc.ModeTakeover {
		return adapter.Result{Success: true, Step: "no_mutation_to_roll_back"}, nil
	}
	return w.Adapter.Rollback(ctx)
}
