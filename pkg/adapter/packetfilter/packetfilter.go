// Package packetfilter implements the firewall and nat configuration
// sections: an ordered rule list with a canonical serialized form per
// rule so that list-order differences between two otherwise-identical
// rule sets never show up as a diff.
package packetfilter

import (
	"context"
	"fmt"
	"sort"

	"github.com/meshbridge/routeragent/pkg/adapter"
	"github.com/meshbridge/routeragent/pkg/rpc"
	"github.com/meshbridge/routeragent/pkg/util"
)

// Rule is one packet-filter rule. Action is accept/drop/reject for
// firewall rules and snat/dnat/masquerade for nat rules; Target is the
// nat translation address (snat/dnat target IP:port).
type Rule struct {
	ID       string `json:"id"`
	Proto    string `json:"proto"`
	Src      string `json:"src,omitempty"`
	SrcPort  string `json:"src_port,omitempty"`
	Dst      string `json:"dst,omitempty"`
	DstPort  string `json:"dst_port,omitempty"`
	Action   string `json:"action"`
	Target   string `json:"target,omitempty"`
	Priority int    `json:"priority"`
}

// canonicalKey identifies a rule for diffing, independent of its position
// in the submitted list.
func (r Rule) canonicalKey() string {
	return adapter.CanonicalKey(r.Proto, r.Src, r.SrcPort, r.Dst, r.DstPort, r.Priority)
}

func (r Rule) toDocument() map[string]interface{} {
	return map[string]interface{}{
		"id": r.ID, "proto": r.Proto, "src": r.Src, "src_port": r.SrcPort,
		"dst": r.Dst, "dst_port": r.DstPort, "action": r.Action,
		"target": r.Target, "priority": float64(r.Priority),
	}
}

// Applier installs the full rule set into the packet filter (e.g. via
// iptables-restore or an equivalent atomic-load subprocess call) and
// returns the service name it restarted.
type Applier func(ctx context.Context, rules []Rule) (service string, err error)

// Kind distinguishes the two sections this package implements.
type Kind string

const (
	KindFirewall Kind = "firewall"
	KindNAT      Kind = "nat"
)

var firewallActions = map[string]bool{"accept": true, "drop": true, "reject": true}
var natActions = map[string]bool{"snat": true, "dnat": true, "masquerade": true}

// Adapter implements either the firewall or the nat section, depending
// on how it was constructed.
type Adapter struct {
	adapter.BeforeImageStore
	kind  Kind
	rules []Rule
	apply Applier
}

// NewFirewall builds the firewall-section Adapter.
func NewFirewall(initial []Rule, apply Applier) *Adapter {
	return &Adapter{kind: KindFirewall, rules: canonicalOrder(initial), apply: apply}
}

// NewNAT builds the nat-section Adapter.
func NewNAT(initial []Rule, apply Applier) *Adapter {
	return &Adapter{kind: KindNAT, rules: canonicalOrder(initial), apply: apply}
}

func canonicalOrder(rules []Rule) []Rule {
	out := make([]Rule, len(rules))
	copy(out, rules)
	sort.Slice(out, func(i, j int) bool { return out[i].canonicalKey() < out[j].canonicalKey() })
	return out
}

func (a *Adapter) Section() rpc.Section {
	if a.kind == KindNAT {
		return rpc.SectionNAT
	}
	return rpc.SectionFirewall
}

func (a *Adapter) Read(ctx context.Context) (adapter.Document, error) {
	return adapter.Document{"rules": ruleDocuments(a.rules)}, nil
}

func ruleDocuments(rules []Rule) []interface{} {
	out := make([]interface{}, len(rules))
	for i, r := range rules {
		out[i] = r.toDocument()
	}
	return out
}

// parseRules decodes doc's "rules" field into the typed form, defaulting
// any field a rule omits to its zero value rather than stringifying a nil
// interface.
func parseRules(doc adapter.Document) []Rule {
	rawRules, _ := doc["rules"].([]interface{})
	rules := make([]Rule, 0, len(rawRules))
	for _, raw := range rawRules {
		m, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		priority, _ := m["priority"].(float64)
		rules = append(rules, Rule{
			ID:       stringField(m, "id"),
			Proto:    stringField(m, "proto"),
			Src:      stringField(m, "src"),
			SrcPort:  stringField(m, "src_port"),
			Dst:      stringField(m, "dst"),
			DstPort:  stringField(m, "dst_port"),
			Action:   stringField(m, "action"),
			Target:   stringField(m, "target"),
			Priority: int(priority),
		})
	}
	return rules
}

func stringField(m map[string]interface{}, key string) string {
	s, _ := m[key].(string)
	return s
}

func (a *Adapter) allowedActions() map[string]bool {
	if a.kind == KindNAT {
		return natActions
	}
	return firewallActions
}

func (a *Adapter) Validate(doc adapter.Document) []rpc.ValidationIssue {
	var b adapter.IssueBuilder
	rawRules, ok := doc["rules"]
	if !ok {
		b.Require(false, "rules", "MISSING_RULES", "rules is required")
		return b.Issues()
	}
	list, ok := rawRules.([]interface{})
	if !ok {
		b.Require(false, "rules", "INVALID_RULES", "rules must be a list")
		return b.Issues()
	}

	allowed := a.allowedActions()
	for i, raw := range list {
		path := fmt.Sprintf("rules[%d]", i)
		rule, ok := raw.(map[string]interface{})
		if !ok {
			b.Require(false, path, "INVALID_RULE", "rule must be an object")
			continue
		}
		proto, _ := rule["proto"].(string)
		b.Require(proto == "tcp" || proto == "udp" || proto == "icmp" || proto == "any",
			path+".proto", "INVALID_PROTO", fmt.Sprintf("proto %q not one of tcp/udp/icmp/any", proto))

		action, _ := rule["action"].(string)
		b.Require(allowed[action], path+".action", "INVALID_ACTION",
			fmt.Sprintf("action %q is not valid for this section", action))
	}
	return b.Issues()
}

func (a *Adapter) Diff(ctx context.Context, proposed adapter.Document) (rpc.ConfigDiff, error) {
	current, err := a.Read(ctx)
	if err != nil {
		return rpc.ConfigDiff{}, err
	}
	canonical := adapter.Document{"rules": ruleDocuments(canonicalOrder(parseRules(proposed)))}
	diff := adapter.Diff(current, canonical)
	if !diff.IsEmpty() {
		if a.kind == KindNAT {
			diff.ServicesTouched = []string{"nat"}
		} else {
			diff.ServicesTouched = []string{"packet-filter"}
		}
	}
	return diff, nil
}

func (a *Adapter) Apply(ctx context.Context, doc adapter.Document, version rpc.SectionVersion) (adapter.Result, error) {
	diff, err := a.Diff(ctx, doc)
	if err != nil {
		return adapter.Result{Success: false, Step: "diff", Err: err}, err
	}
	if diff.IsEmpty() {
		return adapter.Result{Success: true, Diff: diff}, nil
	}

	next := canonicalOrder(parseRules(doc))

	before := make([]Rule, len(a.rules))
	copy(before, a.rules)
	a.BeforeImageStore.Capture(adapter.Document{"rules": before})

	if a.apply != nil {
		service, err := a.apply(ctx, next)
		if err != nil {
			if _, rerr := a.Rollback(ctx); rerr != nil {
				return adapter.Result{Success: false, Step: "apply", Err: err}, rerr
			}
			return adapter.Result{Success: false, Step: "apply", Err: err}, err
		}
		if service != "" {
			diff.ServicesTouched = []string{service}
		}
	}
	a.rules = next
	return adapter.Result{Success: true, Diff: diff}, nil
}

func (a *Adapter) Rollback(ctx context.Context) (adapter.Result, error) {
	before, ok := a.BeforeImageStore.Get()
	if !ok {
		return adapter.Result{Success: false}, fmt.Errorf("packetfilter: %w", util.ErrNoSnapshot)
	}
	rules, _ := before["rules"].([]Rule)
	a.rules = rules
	if a.apply != nil {
		if _, err := a.apply(ctx, a.rules); err != nil {
			return adapter.Result{Success: false, Step: "rollback", Err: err}, err
		}
	}
	return adapter.Result{Success: true, Step: "rollback"}, nil
}

func (a *Adapter) CollectMetrics(ctx context.Context) (adapter.Document, error) {
	return adapter.Document{"rule_count": len(a.rules)}, nil
}

func (a *Adapter) AllowedCommands() []string {
	if a.kind == KindNAT {
		return []string{"iptables-nat-reload"}
	}
	return []string{"iptables-reload"}
}
