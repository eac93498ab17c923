package adapter

import (
	"testing"

	"github.com/meshbridge/routeragent/pkg/rpc"
)

func TestDiff_Empty(t *testing.T) {
	doc := Document{"ssid": "home", "channel": float64(6)}
	d := Diff(doc, doc)
	if !d.IsEmpty() {
		t.Errorf("Diff(x, x) should be empty, got %+v", d.Changes)
	}
}

func TestDiff_SetUnsetChange(t *testing.T) {
	before := Document{"ssid": "home", "channel": float64(6), "enabled": true}
	after := Document{"ssid": "home2", "enabled": true, "width": "80MHz"}

	d := Diff(before, after)
	if len(d.Changes) != 3 {
		t.Fatalf("expected 3 changes, got %d: %+v", len(d.Changes), d.Changes)
	}

	byPath := make(map[string]rpc.Change)
	for _, c := range d.Changes {
		byPath[c.Path] = c
	}

	if c, ok := byPath["ssid"]; !ok || c.Op != rpc.DiffOpSet || c.After != "home2" {
		t.Errorf("ssid change wrong: %+v", c)
	}
	if c, ok := byPath["channel"]; !ok || c.Op != rpc.DiffOpUnset {
		t.Errorf("channel change wrong: %+v", c)
	}
	if c, ok := byPath["width"]; !ok || c.Op != rpc.DiffOpSet || c.After != "80MHz" {
		t.Errorf("width change wrong: %+v", c)
	}
}

func TestDiff_NestedMaps(t *testing.T) {
	before := Document{"radio0": map[string]interface{}{"ssid": "a", "channel": float64(1)}}
	after := Document{"radio0": map[string]interface{}{"ssid": "b", "channel": float64(1)}}

	d := Diff(before, after)
	if len(d.Changes) != 1 || d.Changes[0].Path != "radio0.ssid" {
		t.Fatalf("expected single nested change at radio0.ssid, got %+v", d.Changes)
	}
}

func TestDiff_StableOrdering(t *testing.T) {
	before := Document{}
	after := Document{"z": 1, "a": 2, "m": 3}

	d1 := Diff(before, after)
	d2 := Diff(before, after)
	for i := range d1.Changes {
		if d1.Changes[i].Path != d2.Changes[i].Path {
			t.Fatalf("diff ordering not stable across calls")
		}
	}
	if d1.Changes[0].Path != "a" || d1.Changes[1].Path != "m" || d1.Changes[2].Path != "z" {
		t.Errorf("changes not sorted lexically: %+v", d1.Changes)
	}
}

func TestCanonicalKey(t *testing.T) {
	k1 := CanonicalKey("tcp", "10.0.0.1", 443)
	k2 := CanonicalKey("tcp", "10.0.0.1", 443)
	k3 := CanonicalKey("udp", "10.0.0.1", 443)
	if k1 != k2 {
		t.Error("CanonicalKey should be deterministic for identical input")
	}
	if k1 == k3 {
		t.Error("CanonicalKey should differ for different input")
	}
}
