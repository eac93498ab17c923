package adapter

import (
	"testing"

	"github.com/meshbridge/routeragent/pkg/rpc"
)

func TestIssueBuilder_RequireAndWarn(t *testing.T) {
	var b IssueBuilder
	b.Require(true, "ssid", "MISSING", "ssid is required")
	b.Require(false, "channel", "INVALID_CHANNEL", "channel out of range")
	b.Warn(false, "width", "DEPRECATED_WIDTH", "40MHz is deprecated")

	issues := b.Issues()
	if len(issues) != 2 {
		t.Fatalf("expected 2 issues, got %d: %+v", len(issues), issues)
	}
	if issues[0].Severity != rpc.SeverityError || issues[0].Code != "INVALID_CHANNEL" {
		t.Errorf("first issue wrong: %+v", issues[0])
	}
	if issues[1].Severity != rpc.SeverityWarning || issues[1].Code != "DEPRECATED_WIDTH" {
		t.Errorf("second issue wrong: %+v", issues[1])
	}
}

func TestIssueBuilder_EmptyIsNil(t *testing.T) {
	var b IssueBuilder
	b.Require(true, "x", "X", "never happens")
	if b.Issues() != nil {
		t.Errorf("expected nil issues, got %+v", b.Issues())
	}
}
