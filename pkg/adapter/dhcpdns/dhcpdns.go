// Package dhcpdns implements the dhcp and dns configuration sections:
// DHCP reservations-by-MAC plus the read-only active lease table, and DNS
// blocklist/allowlist domain sets.
package dhcpdns

import (
	"context"
	"fmt"

	"github.com/meshbridge/routeragent/pkg/adapter"
	"github.com/meshbridge/routeragent/pkg/rpc"
	"github.com/meshbridge/routeragent/pkg/util"
)

// Kind distinguishes the two sections this package implements.
type Kind string

const (
	KindDHCP Kind = "dhcp"
	KindDNS  Kind = "dns"
)

// Reservation binds a MAC address to a fixed IP, mutated via apply.
type Reservation struct {
	MAC      string `json:"mac"`
	IP       string `json:"ip"`
	Hostname string `json:"hostname,omitempty"`
}

// Lease is an active DHCP lease, read-only from the agent's perspective —
// it reflects what the DHCP server has handed out, not desired state, so
// it is surfaced via CollectMetrics rather than the diffable Document.
type Lease struct {
	MAC       string `json:"mac"`
	IP        string `json:"ip"`
	Hostname  string `json:"hostname,omitempty"`
	ExpiresAt string `json:"expires_at"`
}

// LeaseReader reads the current active lease table from the DHCP server's
// state file.
type LeaseReader func(ctx context.Context) ([]Lease, error)

// ReservationApplier writes the reservation list to the DHCP server's
// configuration and restarts it.
type ReservationApplier func(ctx context.Context, reservations []Reservation) (service string, err error)

// DomainListApplier writes the blocklist/allowlist to the DNS resolver's
// configuration and restarts it.
type DomainListApplier func(ctx context.Context, blocklist, allowlist []string) (service string, err error)

// Adapter implements either the dhcp or the dns section.
type Adapter struct {
	adapter.BeforeImageStore
	kind Kind

	reservations []Reservation
	leases       LeaseReader
	applyDHCP    ReservationApplier

	blocklist []string
	allowlist []string
	applyDNS  DomainListApplier
}

// NewDHCP builds the dhcp-section Adapter.
func NewDHCP(initial []Reservation, leases LeaseReader, apply ReservationApplier) *Adapter {
	return &Adapter{kind: KindDHCP, reservations: append([]Reservation{}, initial...), leases: leases, applyDHCP: apply}
}

// NewDNS builds the dns-section Adapter.
func NewDNS(blocklist, allowlist []string, apply DomainListApplier) *Adapter {
	return &Adapter{
		kind: KindDNS,
		blocklist: append([]string{}, blocklist...),
		allowlist: append([]string{}, allowlist...),
		applyDNS:  apply,
	}
}

func (a *Adapter) Section() rpc.Section {
	if a.kind == KindDNS {
		return rpc.SectionDNS
	}
	return rpc.SectionDHCP
}

func (a *Adapter) Read(ctx context.Context) (adapter.Document, error) {
	if a.kind == KindDNS {
		return adapter.Document{
			"blocklist": toInterfaceSlice(a.blocklist),
			"allowlist": toInterfaceSlice(a.allowlist),
		}, nil
	}
	reservations := make([]interface{}, len(a.reservations))
	for i, r := range a.reservations {
		reservations[i] = map[string]interface{}{"mac": r.MAC, "ip": r.IP, "hostname": r.Hostname}
	}
	return adapter.Document{"reservations": reservations}, nil
}

func toInterfaceSlice(in []string) []interface{} {
	out := make([]interface{}, len(in))
	for i, v := range in {
		out[i] = v
	}
	return out
}

func (a *Adapter) Validate(doc adapter.Document) []rpc.ValidationIssue {
	var b adapter.IssueBuilder
	if a.kind == KindDNS {
		a.validateDomainList(&b, doc, "blocklist")
		a.validateDomainList(&b, doc, "allowlist")
		return b.Issues()
	}

	raw, ok := doc["reservations"]
	if !ok {
		b.Require(false, "reservations", "MISSING_RESERVATIONS", "reservations is required")
		return b.Issues()
	}
	list, ok := raw.([]interface{})
	if !ok {
		b.Require(false, "reservations", "INVALID_RESERVATIONS", "reservations must be a list")
		return b.Issues()
	}
	seen := map[string]bool{}
	for i, item := range list {
		path := fmt.Sprintf("reservations[%d]", i)
		m, ok := item.(map[string]interface{})
		if !ok {
			b.Require(false, path, "INVALID_RESERVATION", "reservation must be an object")
			continue
		}
		mac, _ := m["mac"].(string)
		b.Require(util.IsValidMACAddress(mac), path+".mac", "INVALID_MAC", fmt.Sprintf("%q is not a valid MAC address", mac))
		ip, _ := m["ip"].(string)
		b.Require(util.IsValidIPv4(ip), path+".ip", "INVALID_IP", fmt.Sprintf("%q is not a valid IPv4 address", ip))
		if mac != "" {
			b.Require(!seen[mac], path+".mac", "DUPLICATE_MAC", fmt.Sprintf("MAC %q has more than one reservation", mac))
			seen[mac] = true
		}
	}
	return b.Issues()
}

func (a *Adapter) validateDomainList(b *adapter.IssueBuilder, doc adapter.Document, field string) {
	raw, ok := doc[field]
	if !ok {
		return
	}
	list, ok := raw.([]interface{})
	if !ok {
		b.Require(false, field, "INVALID_DOMAIN_LIST", field+" must be a list of domain strings")
		return
	}
	for i, item := range list {
		s, ok := item.(string)
		b.Require(ok && s != "", fmt.Sprintf("%s[%d]", field, i), "INVALID_DOMAIN", "domain entries must be non-empty strings")
	}
}

func (a *Adapter) Diff(ctx context.Context, proposed adapter.Document) (rpc.ConfigDiff, error) {
	current, err := a.Read(ctx)
	if err != nil {
		return rpc.ConfigDiff{}, err
	}
	diff := adapter.Diff(current, proposed)
	if !diff.IsEmpty() {
		if a.kind == KindDNS {
			diff.ServicesTouched = []string{"dnsmasq"}
		} else {
			diff.ServicesTouched = []string{"dhcpd"}
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

	if a.kind == KindDNS {
		return a.applyDNSSection(ctx, doc, diff)
	}
	return a.applyDHCPSection(ctx, doc, diff)
}

func (a *Adapter) applyDHCPSection(ctx context.Context, doc adapter.Document, diff rpc.ConfigDiff) (adapter.Result, error) {
	raw, _ := doc["reservations"].([]interface{})
	next := make([]Reservation, 0, len(raw))
	for _, item := range raw {
		m, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		next = append(next, Reservation{
			MAC: fmt.Sprint(m["mac"]), IP: fmt.Sprint(m["ip"]), Hostname: fmt.Sprint(m["hostname"]),
		})
	}

	before := append([]Reservation{}, a.reservations...)
	a.BeforeImageStore.Capture(adapter.Document{"reservations": before})

	if a.applyDHCP != nil {
		if service, err := a.applyDHCP(ctx, next); err != nil {
			if _, rerr := a.Rollback(ctx); rerr != nil {
				return adapter.Result{Success: false, Step: "apply", Err: err}, rerr
			}
			return adapter.Result{Success: false, Step: "apply", Err: err}, err
		} else if service != "" {
			diff.ServicesTouched = []string{service}
		}
	}
	a.reservations = next
	return adapter.Result{Success: true, Diff: diff}, nil
}

func (a *Adapter) applyDNSSection(ctx context.Context, doc adapter.Document, diff rpc.ConfigDiff) (adapter.Result, error) {
	blocklist := stringsFrom(doc["blocklist"])
	allowlist := stringsFrom(doc["allowlist"])

	before := adapter.Document{"blocklist": toInterfaceSlice(a.blocklist), "allowlist": toInterfaceSlice(a.allowlist)}
	a.BeforeImageStore.Capture(before)

	if a.applyDNS != nil {
		if service, err := a.applyDNS(ctx, blocklist, allowlist); err != nil {
			if _, rerr := a.Rollback(ctx); rerr != nil {
				return adapter.Result{Success: false, Step: "apply", Err: err}, rerr
			}
			return adapter.Result{Success: false, Step: "apply", Err: err}, err
		} else if service != "" {
			diff.ServicesTouched = []string{service}
		}
	}
	a.blocklist = blocklist
	a.allowlist = allowlist
	return adapter.Result{Success: true, Diff: diff}, nil
}

func stringsFrom(raw interface{}) []string {
	list, ok := raw.([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(list))
	for _, v := range list {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func (a *Adapter) Rollback(ctx context.Context) (adapter.Result, error) {
	before, ok := a.BeforeImageStore.Get()
	if !ok {
		return adapter.Result{Success: false}, util.ErrNoSnapshot
	}
	if a.kind == KindDNS {
		blocklist := stringsFrom(before["blocklist"])
		allowlist := stringsFrom(before["allowlist"])
		if a.applyDNS != nil {
			if _, err := a.applyDNS(ctx, blocklist, allowlist); err != nil {
				return adapter.Result{Success: false, Step: "rollback", Err: err}, err
			}
		}
		a.blocklist, a.allowlist = blocklist, allowlist
		return adapter.Result{Success: true, Step: "rollback"}, nil
	}

	reservations, _ := before["reservations"].([]Reservation)
	if a.applyDHCP != nil {
		if _, err := a.applyDHCP(ctx, reservations); err != nil {
			return adapter.Result{Success: false, Step: "rollback", Err: err}, err
		}
	}
	a.reservations = reservations
	return adapter.Result{Success: true, Step: "rollback"}, nil
}

func (a *Adapter) CollectMetrics(ctx context.Context) (adapter.Document, error) {
	if a.kind == KindDNS {
		return adapter.Document{}, nil
	}
	if a.leases == nil {
		return adapter.Document{}, nil
	}
	leases, err := a.leases(ctx)
	if err != nil {
		return adapter.Document{}, nil
	}
	out := make([]interface{}, len(leases))
	for i, l := range leases {
		out[i] = map[string]interface{}{"mac": l.MAC, "ip": l.IP, "hostname": l.Hostname, "expires_at": l.ExpiresAt}
	}
	return adapter.Document{"leases": out}, nil
}

func (a *Adapter) AllowedCommands() []string {
	if a.kind == KindDNS {
		return []string{"dnsmasq-reload"}
	}
	return []string{"dhcpd-reload"}
}
