package session

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"
	"golang.org/x/crypto/bcrypt"
)

// identityKeyPrefix addresses one device's registration row, following the
// same hash-per-key convention as snapshotKeyPrefix.
const identityKeyPrefix = "device_identity|"

// RedisIdentityStore is the production IdentityStore: api_keys are never
// stored in the clear, only their bcrypt hash, so a Redis compromise does
// not directly leak device credentials.
type RedisIdentityStore struct {
	client *redis.Client
}

// NewRedisIdentityStore builds a RedisIdentityStore over an existing client.
func NewRedisIdentityStore(client *redis.Client) *RedisIdentityStore {
	return &RedisIdentityStore{client: client}
}

// Register hashes apiKey and stores the device's registration row,
// overwriting any prior registration for the same device_id.
func (s *RedisIdentityStore) Register(ctx context.Context, deviceID, ownerID, apiKey string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(apiKey), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash api_key: %w", err)
	}
	key := identityKeyPrefix + deviceID
	return s.client.HSet(ctx, key, "owner_id", ownerID, "api_key_hash", string(hash)).Err()
}

// Verify checks apiKey against deviceID's stored bcrypt hash.
func (s *RedisIdentityStore) Verify(ctx context.Context, deviceID, apiKey string) (Identity, error) {
	key := identityKeyPrefix + deviceID
	fields, err := s.client.HGetAll(ctx, key).Result()
	if err != nil {
		return Identity{}, fmt.Errorf("read device identity: %w", err)
	}
	hash, ok := fields["api_key_hash"]
	if !ok {
		return Identity{}, errDeviceNotRegistered
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(apiKey)); err != nil {
		return Identity{}, errDeviceNotRegistered
	}
	return Identity{DeviceID: deviceID, OwnerID: fields["owner_id"]}, nil
}

// DeviceOwner returns the owner_id of a registered device.
func (s *RedisIdentityStore) DeviceOwner(ctx context.Context, deviceID string) (string, error) {
	owner, err := s.client.HGet(ctx, identityKeyPrefix+deviceID, "owner_id").Result()
	if err == redis.Nil {
		return "", errDeviceNotRegistered
	}
	if err != nil {
		return "", fmt.Errorf("read device owner: %w", err)
	}
	return owner, nil
}
