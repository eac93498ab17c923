package session

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/meshbridge/routeragent/pkg/redact"
	"github.com/meshbridge/routeragent/pkg/rpc"
	"github.com/meshbridge/routeragent/pkg/util"
)

// IdleTimeout is how long a device session may go without any inbound
// frame before the control plane closes it with CloseIdle.
const IdleTimeout = 90 * time.Second

// DeviceSession is one authoritative WebSocket attachment for a device.
// Manager holds at most one live DeviceSession per device_id at a time;
// Attach supersedes whatever was previously registered.
type DeviceSession struct {
	DeviceID string
	OwnerID  string

	mu       sync.Mutex
	conn     Conn
	lastSeen time.Time
}

func (d *DeviceSession) writeEnvelope(env rpc.Envelope) error {
	if redacted, err := redact.Bytes(env.Payload, redact.DefaultPredicate); err == nil {
		env.Payload = redacted
	}
	data, err := rpc.Encode(env)
	if err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.conn.WriteMessage(websocket.TextMessage, data)
}

func (d *DeviceSession) touch() {
	d.mu.Lock()
	d.lastSeen = time.Now()
	d.mu.Unlock()
}

// Manager is the control plane's registry of live device sessions: the
// single-active-connection invariant, directive delivery, and snapshot
// persistence all go through it.
type Manager struct {
	identity  IdentityStore
	snapshots SnapshotStore
	log       *logrus.Entry

	mu       sync.Mutex
	sessions map[string]*DeviceSession
}

// NewManager builds a Manager over the given identity and snapshot stores.
func NewManager(identity IdentityStore, snapshots SnapshotStore, log *logrus.Entry) *Manager {
	return &Manager{
		identity:  identity,
		snapshots: snapshots,
		log:       log,
		sessions:  make(map[string]*DeviceSession),
	}
}

// Attach registers conn as the authoritative session for deviceID. Any
// prior session for the same device is closed with CloseSuperseded before
// the new one is installed, enforcing that a device has at most one live
// connection at a time.
func (m *Manager) Attach(deviceID, ownerID string, conn Conn) *DeviceSession {
	m.mu.Lock()
	prior, ok := m.sessions[deviceID]
	sess := &DeviceSession{DeviceID: deviceID, OwnerID: ownerID, conn: conn, lastSeen: time.Now()}
	m.sessions[deviceID] = sess
	m.mu.Unlock()

	if ok {
		_ = prior.conn.CloseWithStatus(CloseSuperseded, "superseded by a newer connection")
	}
	return sess
}

// Detach removes sess from the registry, but only if it is still the
// currently-registered session for its device — this keeps a superseded
// connection's eventual teardown from evicting the session that replaced
// it.
func (m *Manager) Detach(sess *DeviceSession) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if current, ok := m.sessions[sess.DeviceID]; ok && current == sess {
		delete(m.sessions, sess.DeviceID)
	}
}

// Deliver sends env to deviceID's live session. It fails closed with
// ErrDeviceOffline when no WebSocket is attached; directives are never
// queued for later delivery.
func (m *Manager) Deliver(ctx context.Context, deviceID string, env rpc.Envelope) error {
	m.mu.Lock()
	sess, ok := m.sessions[deviceID]
	m.mu.Unlock()
	if !ok {
		return util.NewSessionError(deviceID, "DEVICE_OFFLINE")
	}
	return sess.writeEnvelope(env)
}

// IsOnline reports whether deviceID currently has a live session attached.
func (m *Manager) IsOnline(deviceID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.sessions[deviceID]
	return ok
}

// RecordStatus merges a STATUS/METRICS observation into the device's
// durable snapshot, so a controlplaned restart does not lose
// last_seen/latest_status.
func (m *Manager) RecordStatus(ctx context.Context, deviceID string, status *rpc.StatusPayload) error {
	snap, _, err := m.snapshots.Load(ctx, deviceID)
	if err != nil {
		return err
	}
	snap.DeviceID = deviceID
	snap.LastSeen = time.Now()
	if status != nil {
		snap.LatestStatus = status
	}
	return m.snapshots.Save(ctx, snap)
}

// RecordAppliedVersion records the version of section last acknowledged by
// deviceID, surfaced in the REST snapshot so an operator can see applied
// config state even while the device is offline.
func (m *Manager) RecordAppliedVersion(ctx context.Context, deviceID string, section rpc.Section, ver rpc.SectionVersion) error {
	snap, _, err := m.snapshots.Load(ctx, deviceID)
	if err != nil {
		return err
	}
	snap.DeviceID = deviceID
	if snap.AppliedVersions == nil {
		snap.AppliedVersions = make(map[rpc.Section]rpc.SectionVersion)
	}
	snap.AppliedVersions[section] = ver
	return m.snapshots.Save(ctx, snap)
}

// Snapshot returns the durable snapshot for deviceID, for the REST
// GET /v1/devices/{device_id}/snapshot endpoint.
func (m *Manager) Snapshot(ctx context.Context, deviceID string) (Snapshot, bool, error) {
	return m.snapshots.Load(ctx, deviceID)
}

// ResolveOwner returns the owner_id a device is registered under, for REST
// authorization.
func (m *Manager) ResolveOwner(ctx context.Context, deviceID string) (string, error) {
	return m.identity.DeviceOwner(ctx, deviceID)
}
