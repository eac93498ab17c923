package session

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/meshbridge/routeragent/pkg/rpc"
)

// Snapshot is the durable per-device state controlplaned keeps so a
// restart does not lose last_seen/latest_status for a device that isn't
// actively reconnecting.
type Snapshot struct {
	DeviceID     string             `json:"device_id"`
	LastSeen     time.Time          `json:"last_seen"`
	LatestStatus *rpc.StatusPayload `json:"latest_status,omitempty"`
	AppliedVersions map[rpc.Section]rpc.SectionVersion `json:"applied_versions,omitempty"`
}

// SnapshotStore persists and retrieves device snapshots. Redis is the
// production backend; RedisSnapshotStore follows a hash-per-key
// convention, one hash per logical row, keyed by device_id.
type SnapshotStore interface {
	Save(ctx context.Context, snap Snapshot) error
	Load(ctx context.Context, deviceID string) (Snapshot, bool, error)
}

const snapshotKeyPrefix = "device_snapshot|"

// RedisSnapshotStore is the production SnapshotStore, backed by
// github.com/go-redis/redis/v8, so a device's last-known status and
// applied section versions survive a controlplaned restart.
type RedisSnapshotStore struct {
	client *redis.Client
}

// NewRedisSnapshotStore builds a RedisSnapshotStore over an existing client.
func NewRedisSnapshotStore(client *redis.Client) *RedisSnapshotStore {
	return &RedisSnapshotStore{client: client}
}

// Save writes snap as a single JSON-valued hash field, matching the
// teacher's "one key per row" addressing scheme.
func (s *RedisSnapshotStore) Save(ctx context.Context, snap Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	key := snapshotKeyPrefix + snap.DeviceID
	return s.client.HSet(ctx, key, "data", string(data)).Err()
}

// Load reads back a previously saved snapshot. found is false, with no
// error, when the device has never had one persisted.
func (s *RedisSnapshotStore) Load(ctx context.Context, deviceID string) (Snapshot, bool, error) {
	key := snapshotKeyPrefix + deviceID
	raw, err := s.client.HGet(ctx, key, "data").Result()
	if err == redis.Nil {
		return Snapshot{}, false, nil
	}
	if err != nil {
		return Snapshot{}, false, err
	}
	var snap Snapshot
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		return Snapshot{}, false, err
	}
	return snap, true, nil
}

// MemorySnapshotStore is an in-memory SnapshotStore for tests.
type MemorySnapshotStore struct {
	snapshots map[string]Snapshot
}

// NewMemorySnapshotStore builds an empty MemorySnapshotStore.
func NewMemorySnapshotStore() *MemorySnapshotStore {
	return &MemorySnapshotStore{snapshots: make(map[string]Snapshot)}
}

// Save stores snap, overwriting any prior snapshot for the same device.
func (s *MemorySnapshotStore) Save(ctx context.Context, snap Snapshot) error {
	s.snapshots[snap.DeviceID] = snap
	return nil
}

// Load returns the stored snapshot for deviceID, if any.
func (s *MemorySnapshotStore) Load(ctx context.Context, deviceID string) (Snapshot, bool, error) {
	snap, ok := s.snapshots[deviceID]
	return snap, ok, nil
}
