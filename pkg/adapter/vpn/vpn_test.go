package vpn

import (
	"context"
	"errors"
	"testing"

	"github.com/meshbridge/routeragent/pkg/adapter"
)

func peerDoc(pubKey string, ips []interface{}, endpoint string) map[string]interface{} {
	return map[string]interface{}{"public_key": pubKey, "allowed_ips": ips, "endpoint": endpoint}
}

func TestServer_ValidateRejectsDuplicateKey(t *testing.T) {
	a := NewServer(nil, nil)
	doc := adapter.Document{"peers": []interface{}{
		peerDoc("key1", []interface{}{"10.0.0.1/32"}, ""),
		peerDoc("key1", []interface{}{"10.0.0.2/32"}, ""),
	}}
	issues := a.Validate(doc)
	found := false
	for _, i := range issues {
		if i.Code == "DUPLICATE_PEER" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected DUPLICATE_PEER, got %+v", issues)
	}
}

func TestServer_ValidateRejectsBadCIDR(t *testing.T) {
	a := NewServer(nil, nil)
	doc := adapter.Document{"peers": []interface{}{peerDoc("key1", []interface{}{"not-a-cidr"}, "")}}
	issues := a.Validate(doc)
	found := false
	for _, i := range issues {
		if i.Code == "INVALID_CIDR" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected INVALID_CIDR, got %+v", issues)
	}
}

func TestClient_RequiresEndpoint(t *testing.T) {
	a := NewClient(nil, nil)
	doc := adapter.Document{"peers": []interface{}{peerDoc("key1", []interface{}{"10.0.0.1/32"}, "")}}
	issues := a.Validate(doc)
	found := false
	for _, i := range issues {
		if i.Code == "MISSING_ENDPOINT" {
			found = true
		}
	}
	if !found {
		t.Errorf("vpn_client peer without endpoint should fail, got %+v", issues)
	}
}

func TestServer_ApplyAndRollback(t *testing.T) {
	calls := 0
	applier := func(ctx context.Context, peers []Peer) (string, error) {
		calls++
		if calls == 1 {
			return "", errors.New("wg-reload failed")
		}
		return "wireguard", nil
	}
	a := NewServer([]Peer{{PublicKey: "key1", AllowedIPs: []string{"10.0.0.1/32"}}}, applier)

	doc := adapter.Document{"peers": []interface{}{peerDoc("key2", []interface{}{"10.0.0.2/32"}, "")}}
	result, err := a.Apply(context.Background(), doc, 1)
	if err == nil {
		t.Fatal("Apply() should fail when the applier errors")
	}
	if result.Success {
		t.Error("failed apply should not report success")
	}

	readDoc, _ := a.Read(context.Background())
	peers := readDoc["peers"].([]interface{})
	if len(peers) != 1 {
		t.Fatalf("expected rollback to restore 1 peer, got %d", len(peers))
	}
	p0 := peers[0].(map[string]interface{})
	if p0["public_key"] != "key1" {
		t.Errorf("expected rollback to restore key1, got %v", p0["public_key"])
	}
}

func TestDiff_PeerOrderIndependent(t *testing.T) {
	a := NewServer([]Peer{
		{PublicKey: "keyA", AllowedIPs: []string{"10.0.0.1/32"}},
		{PublicKey: "keyB", AllowedIPs: []string{"10.0.0.2/32"}},
	}, nil)

	reordered := adapter.Document{"peers": []interface{}{
		peerDoc("keyB", []interface{}{"10.0.0.2/32"}, ""),
		peerDoc("keyA", []interface{}{"10.0.0.1/32"}, ""),
	}}
	diff, err := a.Diff(context.Background(), reordered)
	if err != nil {
		t.Fatalf("Diff() failed: %v", err)
	}
	if !diff.IsEmpty() {
		t.Errorf("reordered-but-identical peer set should diff empty, got %+v", diff.Changes)
	}
}
