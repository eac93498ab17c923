package agent

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/meshbridge/routeragent/pkg/adapter"
	"github.com/meshbridge/routeragent/pkg/collector"
	"github.com/meshbridge/routeragent/pkg/config"
	"github.com/meshbridge/routeragent/pkg/rpc"
)

// fakeConn is an in-memory Conn double: pushed frames are delivered to
// ReadMessage, and writes land in outbox for the test to inspect.
type fakeConn struct {
	mu      sync.Mutex
	inbox   chan []byte
	outbox  chan []byte
	closed  bool
	closeCh chan struct{}
}

func newFakeConn() *fakeConn {
	return &fakeConn{inbox: make(chan []byte, 32), outbox: make(chan []byte, 32), closeCh: make(chan struct{})}
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case data := <-c.inbox:
		return websocket.TextMessage, data, nil
	case <-c.closeCh:
		return 0, nil, errors.New("fakeConn: closed")
	}
}

func (c *fakeConn) WriteMessage(_ int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.New("fakeConn: closed")
	}
	select {
	case c.outbox <- data:
	default:
	}
	return nil
}

func (c *fakeConn) SetReadDeadline(time.Time) error { return nil }

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.closeCh)
	}
	return nil
}

func (c *fakeConn) push(env rpc.Envelope) {
	data, _ := rpc.Encode(env)
	c.inbox <- data
}

func (c *fakeConn) nextOut(t *testing.T, timeout time.Duration) rpc.Envelope {
	t.Helper()
	select {
	case data := <-c.outbox:
		env, err := rpc.Decode(data)
		if err != nil {
			t.Fatalf("decode outbound frame: %v", err)
		}
		return env
	case <-time.After(timeout):
		t.Fatal("timed out waiting for an outbound frame")
		return rpc.Envelope{}
	}
}

func (c *fakeConn) nextOutOfType(t *testing.T, want rpc.MessageType, timeout time.Duration) rpc.Envelope {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		env := c.nextOut(t, timeout)
		if env.Type == want {
			return env
		}
	}
	t.Fatalf("never saw a %s frame", want)
	return rpc.Envelope{}
}

// fakeSource is a near-zero-cost collector.Source for session tests that
// don't care about telemetry content.
type fakeSource struct{}

func (fakeSource) UptimeSeconds(context.Context) (int64, error)      { return 0, nil }
func (fakeSource) Load(context.Context) ([3]float64, error)          { return [3]float64{}, nil }
func (fakeSource) CPUPercent(context.Context) (int, error)            { return 0, nil }
func (fakeSource) MemoryPercent(context.Context) (int, error)         { return 0, nil }
func (fakeSource) TemperatureCelsius(context.Context) (*int, error)   { return nil, nil }
func (fakeSource) Interfaces(context.Context) ([]collector.InterfaceSnapshot, error) {
	return nil, nil
}
func (fakeSource) Connections(context.Context) (rpc.ConnectionCounts, error) {
	return rpc.ConnectionCounts{}, nil
}
func (fakeSource) WANIP(context.Context) (string, error)           { return "", nil }
func (fakeSource) DNSCounters(context.Context) (rpc.DNSCounters, error) { return rpc.DNSCounters{}, nil }
func (fakeSource) FirmwareVersion() string                          { return "test" }

// fakeAdapter is a controllable adapter.Adapter double for dispatcher tests.
type fakeAdapter struct {
	section    rpc.Section
	applyErr   error
	applyCalls int32
	diffCalls  int32
}

func (a *fakeAdapter) Section() rpc.Section { return a.section }
func (a *fakeAdapter) Read(context.Context) (adapter.Document, error) {
	return adapter.Document{}, nil
}
func (a *fakeAdapter) Validate(adapter.Document) []rpc.ValidationIssue { return nil }
func (a *fakeAdapter) Diff(context.Context, adapter.Document) (rpc.ConfigDiff, error) {
	atomic.AddInt32(&a.diffCalls, 1)
	return rpc.ConfigDiff{Changes: []rpc.Change{{Path: "x", Op: rpc.DiffOpSet}}}, nil
}
func (a *fakeAdapter) Apply(context.Context, adapter.Document, rpc.SectionVersion) (adapter.Result, error) {
	atomic.AddInt32(&a.applyCalls, 1)
	if a.applyErr != nil {
		return adapter.Result{Success: false, Step: "apply"}, a.applyErr
	}
	return adapter.Result{Success: true, Diff: rpc.ConfigDiff{Changes: []rpc.Change{{Path: "x", Op: rpc.DiffOpSet}}}}, nil
}
func (a *fakeAdapter) Rollback(context.Context) (adapter.Result, error) {
	return adapter.Result{Success: true}, nil
}
func (a *fakeAdapter) CollectMetrics(context.Context) (adapter.Document, error) {
	return adapter.Document{}, nil
}
func (a *fakeAdapter) AllowedCommands() []string { return []string{"safe-cmd"} }

func testConfig() *config.Config {
	return &config.Config{
		DeviceID:            "router-1",
		APIKey:              "k1",
		WebSocketURL:        "ws://test/agent",
		MetricsIntervalSecs: 3600, // long enough it never fires during these tests
		Mode:                config.ModeConfig{Default: rpc.ModeTakeover},
	}
}

func newTestSession(t *testing.T, registry *adapter.Registry, dial Dialer) *Session {
	t.Helper()
	col := collector.New(fakeSource{}, nil)
	return New(testConfig(), registry, col, dial)
}

func TestSession_AuthHappyPathSendsInitialStatus(t *testing.T) {
	conn := newFakeConn()
	dialed := int32(0)
	dial := func(ctx context.Context, url string) (Conn, error) {
		atomic.AddInt32(&dialed, 1)
		return conn, nil
	}
	s := newTestSession(t, adapter.NewRegistry(), dial)

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	go s.Run(ctx)

	auth := conn.nextOutOfType(t, rpc.TypeAuth, time.Second)
	var payload rpc.AuthPayload
	if err := rpc.DecodePayload(auth, &payload); err != nil {
		t.Fatalf("decode AUTH payload: %v", err)
	}
	if payload.DeviceID != "router-1" {
		t.Errorf("AUTH device_id = %q, want router-1", payload.DeviceID)
	}

	reply, _ := rpc.NewReply(auth.ID, rpc.TypeAuthOK, rpc.AuthOKPayload{Success: true})
	conn.push(reply)

	status := conn.nextOutOfType(t, rpc.TypeStatus, time.Second)
	if status.Type != rpc.TypeStatus {
		t.Errorf("expected initial STATUS after AUTH_OK, got %s", status.Type)
	}
}

func TestSession_AuthFailureIsTerminal(t *testing.T) {
	conn := newFakeConn()
	var dialed int32
	dial := func(ctx context.Context, url string) (Conn, error) {
		atomic.AddInt32(&dialed, 1)
		return conn, nil
	}
	s := newTestSession(t, adapter.NewRegistry(), dial)

	done := make(chan error, 1)
	go func() { done <- s.Run(context.Background()) }()

	auth := conn.nextOutOfType(t, rpc.TypeAuth, time.Second)
	reply, _ := rpc.NewReply(auth.ID, rpc.TypeAuthFail, rpc.AuthFailPayload{Reason: "bad key"})
	conn.push(reply)

	select {
	case err := <-done:
		if !errors.Is(err, errAuthFailed) {
			t.Errorf("Run() = %v, want errAuthFailed", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run() should return promptly on AUTH_FAIL")
	}
	if atomic.LoadInt32(&dialed) != 1 {
		t.Errorf("dial called %d times; AUTH_FAIL must not retry with the same credentials", dialed)
	}
}

func authenticatedSession(t *testing.T, registry *adapter.Registry) (*Session, *fakeConn) {
	t.Helper()
	conn := newFakeConn()
	dial := func(ctx context.Context, url string) (Conn, error) { return conn, nil }
	s := newTestSession(t, registry, dial)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go s.Run(ctx)

	auth := conn.nextOutOfType(t, rpc.TypeAuth, time.Second)
	reply, _ := rpc.NewReply(auth.ID, rpc.TypeAuthOK, rpc.AuthOKPayload{Success: true})
	conn.push(reply)
	conn.nextOutOfType(t, rpc.TypeStatus, time.Second)
	return s, conn
}

func TestDispatch_ConfigPushAppliesThenIdempotentReplay(t *testing.T) {
	fa := &fakeAdapter{section: rpc.SectionSystem}
	registry := adapter.NewRegistry(fa)
	_, conn := authenticatedSession(t, registry)

	push := func(version rpc.SectionVersion) rpc.Envelope {
		env, _ := rpc.NewEnvelope(rpc.TypeConfigPush, rpc.ConfigPushPayload{
			Section: rpc.SectionSystem, Version: version, Document: map[string]interface{}{"hostname": "r1"},
		})
		return env
	}

	first := push(1)
	conn.push(first)
	ack := conn.nextOutOfType(t, rpc.TypeConfigAck, time.Second)
	var ackPayload rpc.ConfigAckPayload
	_ = rpc.DecodePayload(ack, &ackPayload)
	if ackPayload.Version != 1 {
		t.Errorf("first CONFIG_ACK version = %d, want 1", ackPayload.Version)
	}
	if atomic.LoadInt32(&fa.applyCalls) != 1 {
		t.Fatalf("expected 1 apply call, got %d", fa.applyCalls)
	}

	second := push(1) // replay of an already-applied version
	conn.push(second)
	conn.nextOutOfType(t, rpc.TypeConfigAck, time.Second)
	if atomic.LoadInt32(&fa.applyCalls) != 1 {
		t.Errorf("replaying an already-applied version should not re-apply, got %d applies", fa.applyCalls)
	}
	if atomic.LoadInt32(&fa.diffCalls) != 1 {
		t.Errorf("replay should compute a diff instead, got %d diff calls", fa.diffCalls)
	}
}

func TestDispatch_ConfigPushApplyFailureReportsFail(t *testing.T) {
	fa := &fakeAdapter{section: rpc.SectionSystem, applyErr: errors.New("commit failed")}
	registry := adapter.NewRegistry(fa)
	_, conn := authenticatedSession(t, registry)

	env, _ := rpc.NewEnvelope(rpc.TypeConfigPush, rpc.ConfigPushPayload{
		Section: rpc.SectionSystem, Version: 1, Document: map[string]interface{}{"hostname": "r1"},
	})
	conn.push(env)

	fail := conn.nextOutOfType(t, rpc.TypeConfigFail, time.Second)
	var p rpc.ConfigFailPayload
	_ = rpc.DecodePayload(fail, &p)
	if p.Section != rpc.SectionSystem {
		t.Errorf("CONFIG_FAIL section = %q, want system", p.Section)
	}
}

func TestDispatch_ExecDeniedCommand(t *testing.T) {
	fa := &fakeAdapter{section: rpc.SectionSystem}
	registry := adapter.NewRegistry(fa)
	_, conn := authenticatedSession(t, registry)

	env, _ := rpc.NewEnvelope(rpc.TypeExec, rpc.ExecPayload{Command: "rm-everything", TimeoutSec: 1})
	conn.push(env)

	result := conn.nextOutOfType(t, rpc.TypeExecResult, time.Second)
	var p rpc.ExecResultPayload
	_ = rpc.DecodePayload(result, &p)
	if p.ExitCode != deniedExitCode {
		t.Errorf("denied command exit_code = %d, want %d", p.ExitCode, deniedExitCode)
	}
}

func TestDispatch_PingReplyIsPong(t *testing.T) {
	registry := adapter.NewRegistry()
	_, conn := authenticatedSession(t, registry)

	env, _ := rpc.NewEnvelope(rpc.TypePing, struct{}{})
	conn.push(env)

	pong := conn.nextOutOfType(t, rpc.TypePong, time.Second)
	if pong.ID != env.ID {
		t.Errorf("PONG id = %q, want echo of PING id %q", pong.ID, env.ID)
	}
}

func TestDispatch_ModeUpdateAcksAndResolves(t *testing.T) {
	registry := adapter.NewRegistry()
	s, conn := authenticatedSession(t, registry)

	env, _ := rpc.NewEnvelope(rpc.TypeModeUpdate, rpc.ModeUpdatePayload{Section: rpc.SectionWiFi, Mode: rpc.ModeShadow})
	conn.push(env)

	ack := conn.nextOutOfType(t, rpc.TypeModeAck, time.Second)
	var p rpc.ModeAckPayload
	_ = rpc.DecodePayload(ack, &p)
	if p.Mode != rpc.ModeShadow {
		t.Errorf("MODE_ACK mode = %q, want shadow", p.Mode)
	}
	if got := s.ResolveMode(rpc.SectionWiFi); got != rpc.ModeShadow {
		t.Errorf("ResolveMode(wifi) = %q after MODE_UPDATE, want shadow", got)
	}
	if got := s.ResolveMode(rpc.SectionDNS); got != rpc.ModeTakeover {
		t.Errorf("ResolveMode(dns) should be unaffected by a wifi override, got %q", got)
	}
}
