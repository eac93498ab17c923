// Package vpn implements the vpn_server and vpn_client configuration
// sections: peer records identified by public key.
package vpn

import (
	"context"
	"fmt"
	"sort"

	"github.com/meshbridge/routeragent/pkg/adapter"
	"github.com/meshbridge/routeragent/pkg/rpc"
	"github.com/meshbridge/routeragent/pkg/util"
)

// Kind distinguishes the two sections this package implements.
type Kind string

const (
	KindServer Kind = "vpn_server"
	KindClient Kind = "vpn_client"
)

// Peer is one VPN peer record, identified by public key.
type Peer struct {
	PublicKey           string   `json:"public_key"`
	AllowedIPs          []string `json:"allowed_ips"`
	Endpoint            string   `json:"endpoint,omitempty"`
	PersistentKeepalive int      `json:"persistent_keepalive,omitempty"`
}

func (p Peer) toDocument() map[string]interface{} {
	ips := make([]interface{}, len(p.AllowedIPs))
	for i, ip := range p.AllowedIPs {
		ips[i] = ip
	}
	return map[string]interface{}{
		"public_key": p.PublicKey, "allowed_ips": ips, "endpoint": p.Endpoint,
		"persistent_keepalive": float64(p.PersistentKeepalive),
	}
}

// Applier pushes the full peer set to the VPN daemon (e.g. a WireGuard
// configuration reload) and returns the service name it restarted.
type Applier func(ctx context.Context, peers []Peer) (service string, err error)

// Adapter implements either the vpn_server or the vpn_client section.
type Adapter struct {
	adapter.BeforeImageStore
	kind  Kind
	peers []Peer
	apply Applier
}

// NewServer builds the vpn_server-section Adapter.
func NewServer(initial []Peer, apply Applier) *Adapter {
	return &Adapter{kind: KindServer, peers: canonicalOrder(initial), apply: apply}
}

// NewClient builds the vpn_client-section Adapter.
func NewClient(initial []Peer, apply Applier) *Adapter {
	return &Adapter{kind: KindClient, peers: canonicalOrder(initial), apply: apply}
}

func canonicalOrder(peers []Peer) []Peer {
	out := make([]Peer, len(peers))
	copy(out, peers)
	sort.Slice(out, func(i, j int) bool { return out[i].PublicKey < out[j].PublicKey })
	return out
}

func (a *Adapter) Section() rpc.Section {
	if a.kind == KindClient {
		return rpc.SectionVPNClient
	}
	return rpc.SectionVPNServer
}

func (a *Adapter) Read(ctx context.Context) (adapter.Document, error) {
	return adapter.Document{"peers": peerDocuments(a.peers)}, nil
}

func peerDocuments(peers []Peer) []interface{} {
	out := make([]interface{}, len(peers))
	for i, p := range peers {
		out[i] = p.toDocument()
	}
	return out
}

// parsePeers decodes doc's "peers" field into the typed form, defaulting
// any field a peer omits to its zero value rather than stringifying a nil
// interface.
func parsePeers(doc adapter.Document) []Peer {
	raw, _ := doc["peers"].([]interface{})
	peers := make([]Peer, 0, len(raw))
	for _, item := range raw {
		m, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		ipsRaw, _ := m["allowed_ips"].([]interface{})
		ips := make([]string, 0, len(ipsRaw))
		for _, ipRaw := range ipsRaw {
			if s, ok := ipRaw.(string); ok {
				ips = append(ips, s)
			}
		}
		keepalive, _ := m["persistent_keepalive"].(float64)
		pubKey, _ := m["public_key"].(string)
		endpoint, _ := m["endpoint"].(string)
		peers = append(peers, Peer{
			PublicKey: pubKey, AllowedIPs: ips,
			Endpoint: endpoint, PersistentKeepalive: int(keepalive),
		})
	}
	return peers
}

func (a *Adapter) Validate(doc adapter.Document) []rpc.ValidationIssue {
	var b adapter.IssueBuilder
	raw, ok := doc["peers"]
	if !ok {
		b.Require(false, "peers", "MISSING_PEERS", "peers is required")
		return b.Issues()
	}
	list, ok := raw.([]interface{})
	if !ok {
		b.Require(false, "peers", "INVALID_PEERS", "peers must be a list")
		return b.Issues()
	}

	seen := map[string]bool{}
	for i, item := range list {
		path := fmt.Sprintf("peers[%d]", i)
		m, ok := item.(map[string]interface{})
		if !ok {
			b.Require(false, path, "INVALID_PEER", "peer must be an object")
			continue
		}
		pubKey, _ := m["public_key"].(string)
		b.Require(len(pubKey) > 0, path+".public_key", "MISSING_PUBLIC_KEY", "public_key is required")
		if pubKey != "" {
			b.Require(!seen[pubKey], path+".public_key", "DUPLICATE_PEER", fmt.Sprintf("public key %q appears more than once", pubKey))
			seen[pubKey] = true
		}

		ips, _ := m["allowed_ips"].([]interface{})
		b.Require(len(ips) > 0, path+".allowed_ips", "MISSING_ALLOWED_IPS", "allowed_ips must be non-empty")
		for _, ipRaw := range ips {
			ipStr, _ := ipRaw.(string)
			b.Require(util.IsValidIPv4CIDR(ipStr), path+".allowed_ips", "INVALID_CIDR", fmt.Sprintf("%q is not a valid CIDR", ipStr))
		}

		if a.kind == KindClient {
			endpoint, _ := m["endpoint"].(string)
			b.Require(endpoint != "", path+".endpoint", "MISSING_ENDPOINT", "vpn_client peers require an endpoint")
		}
	}
	return b.Issues()
}

func (a *Adapter) Diff(ctx context.Context, proposed adapter.Document) (rpc.ConfigDiff, error) {
	current, err := a.Read(ctx)
	if err != nil {
		return rpc.ConfigDiff{}, err
	}
	canonical := adapter.Document{"peers": peerDocuments(canonicalOrder(parsePeers(proposed)))}
	diff := adapter.Diff(current, canonical)
	if !diff.IsEmpty() {
		diff.RequiresRestart = true
		diff.ServicesTouched = []string{"wireguard"}
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

	next := canonicalOrder(parsePeers(doc))

	before := make([]Peer, len(a.peers))
	copy(before, a.peers)
	a.BeforeImageStore.Capture(adapter.Document{"peers": before})

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
	a.peers = next
	return adapter.Result{Success: true, Diff: diff}, nil
}

func (a *Adapter) Rollback(ctx context.Context) (adapter.Result, error) {
	before, ok := a.BeforeImageStore.Get()
	if !ok {
		return adapter.Result{Success: false}, util.ErrNoSnapshot
	}
	peers, _ := before["peers"].([]Peer)
	a.peers = peers
	if a.apply != nil {
		if _, err := a.apply(ctx, a.peers); err != nil {
			return adapter.Result{Success: false, Step: "rollback", Err: err}, err
		}
	}
	return adapter.Result{Success: true, Step: "rollback"}, nil
}

func (a *Adapter) CollectMetrics(ctx context.Context) (adapter.Document, error) {
	return adapter.Document{"peer_count": len(a.peers)}, nil
}

func (a *Adapter) AllowedCommands() []string {
	return []string{"wg-reload"}
}
