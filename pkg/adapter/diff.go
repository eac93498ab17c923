package adapter

import (
	"fmt"
	"reflect"
	"sort"

	"github.com/meshbridge/routeragent/pkg/rpc"
)

// Diff produces a stable, canonically-ordered ConfigDiff between before and
// after. The resulting changes are sorted by path, so the output order
// never depends on the iteration order Go's map type gives.
// Adapters that need list-order independence (packet-filter rules, lease
// tables) must canonicalize their own Document's list fields before calling
// Diff; this function treats lists as atomic values.
func Diff(before, after Document) rpc.ConfigDiff {
	var changes []rpc.Change
	diffMaps("", before, after, &changes)
	sort.Slice(changes, func(i, j int) bool { return changes[i].Path < changes[j].Path })
	return rpc.ConfigDiff{Changes: changes}
}

func diffMaps(prefix string, before, after map[string]interface{}, out *[]rpc.Change) {
	keys := make(map[string]struct{}, len(before)+len(after))
	for k := range before {
		keys[k] = struct{}{}
	}
	for k := range after {
		keys[k] = struct{}{}
	}

	for k := range keys {
		path := k
		if prefix != "" {
			path = prefix + "." + k
		}
		beforeVal, hadBefore := before[k]
		afterVal, hasAfter := after[k]

		switch {
		case !hadBefore && hasAfter:
			*out = append(*out, rpc.Change{Path: path, Op: rpc.DiffOpSet, After: afterVal})
		case hadBefore && !hasAfter:
			*out = append(*out, rpc.Change{Path: path, Op: rpc.DiffOpUnset, Before: beforeVal})
		default:
			beforeMap, beforeIsMap := beforeVal.(map[string]interface{})
			afterMap, afterIsMap := afterVal.(map[string]interface{})
			if beforeIsMap && afterIsMap {
				diffMaps(path, beforeMap, afterMap, out)
				continue
			}
			if !reflect.DeepEqual(beforeVal, afterVal) {
				*out = append(*out, rpc.Change{Path: path, Op: rpc.DiffOpSet, Before: beforeVal, After: afterVal})
			}
		}
	}
}

// CanonicalKey renders a stable identity string for a list element keyed
// by one or more fields (e.g. a firewall rule's {proto, src, dst, port}, a
// VPN peer's public key). Adapters use this to sort list-valued document
// fields into canonical order before Read/Diff return them, so
// reflect.DeepEqual comparisons in Diff aren't order-sensitive.
func CanonicalKey(fields ...interface{}) string {
	key := ""
	for i, f := range fields {
		if i > 0 {
			key += "\x00"
		}
		key += fmt.Sprintf("%v", f)
	}
	return key
}
