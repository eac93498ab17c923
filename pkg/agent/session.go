// Package agent implements the device-side session state machine: dialing
// and authenticating the control-plane WebSocket, running the collector and
// keepalive on their own cooperative schedules, and dispatching inbound
// directives to the registered subsystem adapters.
package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/meshbridge/routeragent/pkg/adapter"
	"github.com/meshbridge/routeragent/pkg/collector"
	"github.com/meshbridge/routeragent/pkg/config"
	"github.com/meshbridge/routeragent/pkg/redact"
	"github.com/meshbridge/routeragent/pkg/rpc"
	"github.com/meshbridge/routeragent/pkg/util"
	"github.com/meshbridge/routeragent/pkg/version"
)

// DefaultConcurrencyLimit bounds the number of dispatcher tasks (CONFIG_*,
// EXEC, REBOOT, UPGRADE, STATUS_REQUEST handlers) running at once per
// session. Additional work queues behind the limit.
const DefaultConcurrencyLimit = 8

const (
	keepaliveInterval = 30 * time.Second
	pongTimeout       = 10 * time.Second
	authReplyTimeout  = 10 * time.Second
	drainWindow       = 5 * time.Second
	defaultExecTimeout = 30 * time.Second
)

// errAuthFailed is terminal: Run returns it without retrying, since the
// server has rejected the configured credentials.
var errAuthFailed = errors.New("agent: authentication rejected, not retrying with the same credentials")

var errNotConnected = errors.New("agent: not connected")

// Session drives one device's connection to the control plane across its
// full lifecycle: Disconnected -> Connecting -> Authenticating -> Active ->
// {Backoff -> Connecting}, for as long as the caller's context is live.
type Session struct {
	cfg      *config.Config
	registry *adapter.Registry
	col      *collector.Collector
	dial     Dialer
	exec     ExecRunner
	reboot   func(ctx context.Context, delaySec int) error
	upgrade  func(ctx context.Context, targetVersion string) error
	log      *logrus.Entry
	nowUnix  func() int64

	redactPredicate *redact.Predicate

	concurrency int
	sem         chan struct{}

	mu    sync.Mutex
	state State
	mode  rpc.AgentMode
	conn  Conn

	appliedMu sync.Mutex
	applied   map[rpc.Section]rpc.SectionVersion

	sectionLocksMu sync.Mutex
	sectionLocks   map[rpc.Section]*sync.Mutex

	writeMu sync.Mutex

	lastWriteMu sync.Mutex
	lastWrite   time.Time

	pongCh chan struct{}
}

// Option configures optional Session behavior beyond its required
// collaborators.
type Option func(*Session)

// WithExecRunner overrides the EXEC command runner (tests substitute a fake
// rather than shelling out).
func WithExecRunner(r ExecRunner) Option { return func(s *Session) { s.exec = r } }

// WithRebootFunc supplies the action a scheduled REBOOT directive performs
// after its EXEC_RESULT{scheduled:true} acknowledgment is sent.
func WithRebootFunc(f func(ctx context.Context, delaySec int) error) Option {
	return func(s *Session) { s.reboot = f }
}

// WithUpgradeFunc supplies the action a scheduled UPGRADE directive
// performs after its EXEC_RESULT{scheduled:true} acknowledgment is sent.
// Firmware image delivery itself is out of scope.
func WithUpgradeFunc(f func(ctx context.Context, targetVersion string) error) Option {
	return func(s *Session) { s.upgrade = f }
}

// WithConcurrencyLimit overrides DefaultConcurrencyLimit.
func WithConcurrencyLimit(n int) Option { return func(s *Session) { s.concurrency = n } }

// WithRedactPredicate overrides the predicate applied to every outbound
// payload. Defaults to redact.DefaultPredicate.
func WithRedactPredicate(p *redact.Predicate) Option {
	return func(s *Session) { s.redactPredicate = p }
}

// WithLogger overrides the session's logger.
func WithLogger(log *logrus.Entry) Option { return func(s *Session) { s.log = log } }

// WithClock overrides the session's timestamp source for METRICS ticks.
func WithClock(now func() int64) Option { return func(s *Session) { s.nowUnix = now } }

// New builds a Session. registry should already have its adapters wrapped
// for mode enforcement via modewrap.New(inner, session.ResolveMode), since
// Session owns the runtime mode state MODE_UPDATE mutates.
func New(cfg *config.Config, registry *adapter.Registry, col *collector.Collector, dial Dialer, opts ...Option) *Session {
	s := &Session{
		cfg:         cfg,
		registry:    registry,
		col:         col,
		dial:        dial,
		exec:        RealExecRunner,
		mode:        cfg.AgentMode(),
		concurrency: DefaultConcurrencyLimit,
		nowUnix:     func() int64 { return time.Now().Unix() },
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = util.WithDeviceID(cfg.DeviceID)
	}
	s.sem = make(chan struct{}, s.concurrency)
	return s
}

// ResolveMode returns the effective mode for section: a per-section
// override if MODE_UPDATE has installed one, otherwise the agent-wide
// default. Adapters registered via modewrap.New close over this method.
func (s *Session) ResolveMode(section rpc.Section) rpc.Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode.Resolve(section)
}

// State returns the session's current state-machine position.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
	s.log.WithField("state", st.String()).Debug("agent: state transition")
}

// Run drives the session's full lifecycle until ctx is cancelled or
// authentication is terminally rejected. It never returns nil while ctx is
// still live except by being cancelled.
func (s *Session) Run(ctx context.Context) error {
	var bo backoff
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		stable, err := s.connectAndServe(ctx)
		if errors.Is(err, errAuthFailed) {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if stable {
			bo.reset()
		}

		s.setState(StateBackoff)
		delay := bo.next()
		s.log.WithField("delay", delay).Warn("agent: reconnecting after backoff")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}

// connectAndServe runs one connection's full lifecycle: dial, authenticate,
// serve until disconnect, drain in-flight work. It reports whether the
// connection stayed Active long enough to reset the backoff sequence.
func (s *Session) connectAndServe(ctx context.Context) (stable bool, err error) {
	s.setState(StateConnecting)
	conn, dialErr := s.dial(ctx, s.cfg.WebSocketURL)
	if dialErr != nil {
		s.log.WithError(dialErr).Warn("agent: dial failed")
		return false, nil
	}
	defer conn.Close()

	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
	s.pongCh = make(chan struct{}, 1)

	s.setState(StateAuthenticating)
	if authErr := s.authenticate(connCtx); authErr != nil {
		if errors.Is(authErr, errAuthFailed) {
			return false, errAuthFailed
		}
		s.log.WithError(authErr).Warn("agent: authentication attempt failed")
		return false, nil
	}

	s.setState(StateActive)
	activeSince := time.Now()
	s.sendInitialStatus(connCtx)

	var connWG sync.WaitGroup
	connWG.Add(2)
	go func() { defer connWG.Done(); s.col.Run(connCtx, s.metricsInterval(), s.nowUnix, s.emitMetrics) }()
	go func() { defer connWG.Done(); s.keepaliveLoop(connCtx) }()

	readErr := s.readLoop(connCtx, &connWG)
	s.log.WithError(readErr).Info("agent: connection ended")

	cancel()
	drained := make(chan struct{})
	go func() { connWG.Wait(); close(drained) }()
	select {
	case <-drained:
	case <-time.After(drainWindow):
		s.log.Warn("agent: drain window exceeded, proceeding to backoff anyway")
	}

	s.mu.Lock()
	s.conn = nil
	s.mu.Unlock()
	s.setState(StateDisconnected)
	return time.Since(activeSince) >= stableResetAfter, nil
}

func (s *Session) authenticate(ctx context.Context) error {
	payload := rpc.AuthPayload{DeviceID: s.cfg.DeviceID, APIKey: s.cfg.APIKey, FirmwareVersion: version.Info()}
	env, err := rpc.NewEnvelope(rpc.TypeAuth, payload)
	if err != nil {
		return err
	}
	if err := s.writeEnvelope(env); err != nil {
		return err
	}

	_ = s.conn.SetReadDeadline(time.Now().Add(authReplyTimeout))
	_, data, err := s.conn.ReadMessage()
	if err != nil {
		return err
	}
	_ = s.conn.SetReadDeadline(time.Time{})

	reply, err := rpc.Decode(data)
	if err != nil {
		return err
	}

	switch reply.Type {
	case rpc.TypeAuthOK:
		return nil
	case rpc.TypeAuthFail:
		var fail rpc.AuthFailPayload
		_ = rpc.DecodePayload(reply, &fail)
		s.log.WithField("reason", fail.Reason).Error("agent: authentication rejected by control plane")
		return errAuthFailed
	default:
		return fmt.Errorf("agent: unexpected reply type %s to AUTH", reply.Type)
	}
}

func (s *Session) sendInitialStatus(ctx context.Context) {
	payload := s.col.Status(ctx, version.Info())
	env, err := rpc.NewEnvelope(rpc.TypeStatus, payload)
	if err != nil {
		s.log.WithError(err).Error("agent: building initial STATUS")
		return
	}
	if err := s.writeEnvelope(env); err != nil {
		s.log.WithError(err).Error("agent: sending initial STATUS")
	}
}

func (s *Session) emitMetrics(payload rpc.MetricsPayload) {
	env, err := rpc.NewEnvelope(rpc.TypeMetrics, payload)
	if err != nil {
		s.log.WithError(err).Error("agent: building METRICS")
		return
	}
	if err := s.writeEnvelope(env); err != nil {
		s.log.WithError(err).Warn("agent: sending METRICS")
	}
}

func (s *Session) metricsInterval() time.Duration {
	return time.Duration(s.cfg.MetricsIntervalSecs) * time.Second
}

// keepaliveLoop sends PING every keepaliveInterval if no frame has been
// written in that window, and closes the connection if PONG doesn't arrive
// within pongTimeout. PONG frames themselves are received by readLoop and
// relayed here over pongCh, since only one goroutine may call ReadMessage.
func (s *Session) keepaliveLoop(ctx context.Context) {
	ticker := time.NewTicker(keepaliveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if time.Since(s.lastWriteTime()) < keepaliveInterval {
				continue
			}
			env, err := rpc.NewEnvelope(rpc.TypePing, struct{}{})
			if err != nil {
				continue
			}
			if err := s.writeEnvelope(env); err != nil {
				s.log.WithError(err).Warn("agent: keepalive ping failed")
				s.closeConn()
				return
			}
			select {
			case <-s.pongCh:
			case <-time.After(pongTimeout):
				s.log.Warn("agent: missed PONG within deadline, closing connection")
				s.closeConn()
				return
			case <-ctx.Done():
				return
			}
		}
	}
}

func (s *Session) closeConn() {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
}

// readLoop is the single reader of the WebSocket: it decodes inbound
// frames and dispatches them, returning only when the connection ends.
func (s *Session) readLoop(ctx context.Context, connWG *sync.WaitGroup) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		_ = s.conn.SetReadDeadline(time.Time{})
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			return err
		}

		env, decodeErr := rpc.Decode(data)
		if decodeErr != nil {
			var perr *util.ProtocolError
			if errors.As(decodeErr, &perr) && perr.FrameID != "" {
				_ = s.writeEnvelope(rpc.NewErrorEnvelope(perr.FrameID, perr.Code, perr.Message))
			}
			continue
		}
		s.dispatch(ctx, connWG, env)
	}
}

func (s *Session) setLastWrite(t time.Time) {
	s.lastWriteMu.Lock()
	s.lastWrite = t
	s.lastWriteMu.Unlock()
}

func (s *Session) lastWriteTime() time.Time {
	s.lastWriteMu.Lock()
	defer s.lastWriteMu.Unlock()
	return s.lastWrite
}

// writeEnvelope redacts env's payload per the cross-cutting redaction
// predicate and writes it to the WebSocket, serialized against other
// writers by writeMu.
func (s *Session) writeEnvelope(env rpc.Envelope) error {
	if redacted, err := redact.Bytes(env.Payload, s.redactPredicate); err == nil {
		env.Payload = redacted
	}
	data, err := rpc.Encode(env)
	if err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return errNotConnected
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return err
	}
	s.setLastWrite(time.Now())
	return nil
}
