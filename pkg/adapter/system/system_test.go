package system

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/meshbridge/routeragent/pkg/adapter"
)

func newTestAdapter(t *testing.T) *Adapter {
	t.Helper()
	dir := t.TempDir()
	store, err := NewStore(filepath.Join(dir, "nvram.conf"))
	if err != nil {
		t.Fatalf("NewStore() failed: %v", err)
	}
	return New(store, MetricSources{}, nil)
}

func TestSystemAdapter_ApplyAndRead(t *testing.T) {
	a := newTestAdapter(t)
	ctx := context.Background()

	result, err := a.Apply(ctx, adapter.Document{"hostname": "router-1", "timezone": "UTC"}, 1)
	if err != nil {
		t.Fatalf("Apply() failed: %v", err)
	}
	if !result.Success {
		t.Fatalf("Apply() should succeed, got %+v", result)
	}

	doc, err := a.Read(ctx)
	if err != nil {
		t.Fatalf("Read() failed: %v", err)
	}
	if doc["hostname"] != "router-1" || doc["timezone"] != "UTC" {
		t.Errorf("Read() after apply = %+v", doc)
	}
}

func TestSystemAdapter_DiffEmptyAfterApply(t *testing.T) {
	a := newTestAdapter(t)
	ctx := context.Background()

	doc := adapter.Document{"hostname": "router-1"}
	if _, err := a.Apply(ctx, doc, 1); err != nil {
		t.Fatalf("Apply() failed: %v", err)
	}

	diff, err := a.Diff(ctx, doc)
	if err != nil {
		t.Fatalf("Diff() failed: %v", err)
	}
	if !diff.IsEmpty() {
		t.Errorf("diff(current, current) should be empty, got %+v", diff.Changes)
	}
}

func TestSystemAdapter_RollbackRestoresPriorState(t *testing.T) {
	a := newTestAdapter(t)
	ctx := context.Background()

	if _, err := a.Apply(ctx, adapter.Document{"hostname": "original"}, 1); err != nil {
		t.Fatalf("initial Apply() failed: %v", err)
	}
	if _, err := a.Apply(ctx, adapter.Document{"hostname": "changed"}, 2); err != nil {
		t.Fatalf("second Apply() failed: %v", err)
	}

	if _, err := a.Rollback(ctx); err != nil {
		t.Fatalf("Rollback() failed: %v", err)
	}

	doc, err := a.Read(ctx)
	if err != nil {
		t.Fatalf("Read() failed: %v", err)
	}
	if doc["hostname"] != "original" {
		t.Errorf("expected rollback to restore hostname=original, got %+v", doc)
	}
}

func TestSystemAdapter_RollbackWithNoSnapshotFails(t *testing.T) {
	a := newTestAdapter(t)
	if _, err := a.Rollback(context.Background()); err == nil {
		t.Error("Rollback() with no prior apply should fail")
	}
}

func TestSystemAdapter_ValidateFlagsUnknownFields(t *testing.T) {
	a := newTestAdapter(t)
	issues := a.Validate(adapter.Document{"hostname": "router-1", "bogus_field": true})
	found := false
	for _, issue := range issues {
		if issue.Code == "UNKNOWN_FIELD" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected an UNKNOWN_FIELD warning, got %+v", issues)
	}
}

func TestSystemAdapter_ValidateRejectsEmptyHostname(t *testing.T) {
	a := newTestAdapter(t)
	issues := a.Validate(adapter.Document{"hostname": ""})
	hasError := false
	for _, issue := range issues {
		if issue.Code == "INVALID_HOSTNAME" {
			hasError = true
		}
	}
	if !hasError {
		t.Errorf("expected INVALID_HOSTNAME error, got %+v", issues)
	}
}

func TestSystemAdapter_AllowedCommands(t *testing.T) {
	a := newTestAdapter(t)
	cmds := a.AllowedCommands()
	if len(cmds) == 0 {
		t.Error("expected a non-empty allow-list")
	}
}
