package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/meshbridge/routeragent/pkg/auth"
	"github.com/meshbridge/routeragent/pkg/rpc"
	"github.com/meshbridge/routeragent/pkg/session"
	"github.com/meshbridge/routeragent/pkg/util"
)

// stubConn is a no-op session.Conn: enough to let Manager.Attach register a
// session without a real socket.
type stubConn struct{}

func (stubConn) ReadMessage() (int, []byte, error)   { select {} }
func (stubConn) WriteMessage(int, []byte) error       { return nil }
func (stubConn) SetReadDeadline(time.Time) error       { return nil }
func (stubConn) Close() error                          { return nil }
func (stubConn) CloseWithStatus(int, string) error     { return nil }

func testPolicy() *auth.Policy {
	return &auth.Policy{
		SuperUsers: []string{"root"},
		Permissions: map[string][]string{
			string(auth.PermSnapshotView):        {"owner-1"},
			string(auth.PermDirectiveConfigPush): {"owner-1"},
		},
	}
}

func testServer(t *testing.T) (*Server, *session.Manager) {
	t.Helper()
	identity := session.NewMemoryIdentityStore(
		[]session.Identity{{DeviceID: "router-1", OwnerID: "owner-1"}},
		map[string]string{"router-1": "device-key"},
	)
	manager := session.NewManager(identity, session.NewMemorySnapshotStore(), util.WithDeviceID("test"))
	tokens := StaticTokenResolver{"operator-token": "owner-1", "stranger-token": "owner-2"}
	srv := NewServer(manager, testPolicy(), tokens, util.WithDeviceID("test"))
	return srv, manager
}

func doRequest(t *testing.T, mux *http.ServeMux, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestHandleSnapshot_NotFound(t *testing.T) {
	srv, _ := testServer(t)
	rec := doRequest(t, srv.Routes(), http.MethodGet, "/v1/devices/router-1/snapshot", "operator-token", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 with no snapshot recorded, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestHandleSnapshot_Success(t *testing.T) {
	srv, manager := testServer(t)
	if err := manager.RecordStatus(context.Background(), "router-1", &rpc.StatusPayload{Uptime: 42}); err != nil {
		t.Fatalf("RecordStatus: %v", err)
	}

	rec := doRequest(t, srv.Routes(), http.MethodGet, "/v1/devices/router-1/snapshot", "operator-token", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp snapshotResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.LatestStatus == nil || resp.LatestStatus.Uptime != 42 {
		t.Errorf("LatestStatus = %+v", resp.LatestStatus)
	}
}

func TestHandleSnapshot_WrongOwner(t *testing.T) {
	srv, manager := testServer(t)
	_ = manager.RecordStatus(context.Background(), "router-1", &rpc.StatusPayload{})

	rec := doRequest(t, srv.Routes(), http.MethodGet, "/v1/devices/router-1/snapshot", "stranger-token", "")
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for non-owner, got %d", rec.Code)
	}
}

func TestHandleSnapshot_Unauthenticated(t *testing.T) {
	srv, _ := testServer(t)
	rec := doRequest(t, srv.Routes(), http.MethodGet, "/v1/devices/router-1/snapshot", "", "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with no token, got %d", rec.Code)
	}
}

func TestHandleDirective_DeviceOffline(t *testing.T) {
	srv, _ := testServer(t)
	body := `{"kind":"CONFIG_PUSH","section":"dns","version":1,"document":{}}`
	rec := doRequest(t, srv.Routes(), http.MethodPost, "/v1/devices/router-1/directives", "operator-token", body)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 for an unattached device, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestHandleDirective_Success(t *testing.T) {
	srv, manager := testServer(t)
	manager.Attach("router-1", "owner-1", stubConn{})

	body := `{"kind":"CONFIG_PUSH","section":"dns","version":1,"document":{"servers":["1.1.1.1"]}}`
	rec := doRequest(t, srv.Routes(), http.MethodPost, "/v1/devices/router-1/directives", "operator-token", body)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestHandleDirective_Forbidden(t *testing.T) {
	srv, manager := testServer(t)
	manager.Attach("router-1", "owner-1", stubConn{})

	body := `{"kind":"REBOOT","delay_sec":5}`
	rec := doRequest(t, srv.Routes(), http.MethodPost, "/v1/devices/router-1/directives", "operator-token", body)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for a permission the policy does not grant, got %d", rec.Code)
	}
}

func TestHandleDirective_UnsupportedKind(t *testing.T) {
	srv, manager := testServer(t)
	manager.Attach("router-1", "owner-1", stubConn{})

	rec := doRequest(t, srv.Routes(), http.MethodPost, "/v1/devices/router-1/directives", "operator-token", `{"kind":"BOGUS"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for an unsupported kind, got %d", rec.Code)
	}
}
