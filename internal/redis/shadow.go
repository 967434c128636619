package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/ibs-source/iot-router/internal/config"
	"github.com/ibs-source/iot-router/internal/log"
	"github.com/redis/go-redis/v9"
)

// Shadow hash fields.
const (
	FieldConnectStatus  = "connect_status"
	FieldLastOnlineTime = "last_online_time"
	FieldExtension      = "extension"
	FieldVersion        = "version"
	FieldTags           = "tags"
	FieldShadow         = "shadow"
	FieldConfig         = "config"
	FieldOtaProgress    = "ota_progress"
)

// ConnectStatusOnline is written by every online refresh.
const ConnectStatusOnline = "ONLINE"

// LastOnlineLayout formats last_online_time.
const LastOnlineLayout = "2006-01-02 15:04:05"

const lockStripes = 64

// ErrMergeConflict is returned when an extension merge keeps losing the WATCH race.
var ErrMergeConflict = errors.New("extension merge conflict")

// ShadowEntry is the decoded view of a device shadow hash.
type ShadowEntry struct {
	DeviceID int64                      `json:"deviceId"`
	Fields   map[string]json.RawMessage `json:"fields"`
}

// ShadowCache reads and writes device shadow hashes.
// Every write resets the key TTL in the same transaction. Writes for one
// device are serialized in-process; each still touches only its own field.
type ShadowCache struct {
	rdb     *redis.Client
	log     *log.Logger
	prefix  string
	ttl     time.Duration
	retries int

	locks [lockStripes]sync.Mutex
}

// NewShadowCache creates a shadow cache on top of the shared client
func NewShadowCache(c *Client, cfg *config.ShadowConfig) *ShadowCache {
	retries := cfg.MergeRetries
	if retries < 1 {
		retries = 1
	}
	return &ShadowCache{
		rdb:     c.rdb,
		log:     c.log,
		prefix:  cfg.KeyPrefix,
		ttl:     cfg.TTL,
		retries: retries,
	}
}

// Key returns the hash key of a device.
func (s *ShadowCache) Key(deviceID int64) string {
	return s.prefix + strconv.FormatInt(deviceID, 10)
}

// SetField overwrites one hash field.
func (s *ShadowCache) SetField(ctx context.Context, deviceID int64, field string, value any) error {
	return s.setFields(ctx, deviceID, map[string]any{field: value})
}

// TouchOnline refreshes connect_status and last_online_time.
func (s *ShadowCache) TouchOnline(ctx context.Context, deviceID int64, at time.Time) error {
	return s.setFields(ctx, deviceID, map[string]any{
		FieldConnectStatus:  ConnectStatusOnline,
		FieldLastOnlineTime: at.Format(LastOnlineLayout),
	})
}

func (s *ShadowCache) setFields(ctx context.Context, deviceID int64, values map[string]any) error {
	mu := s.lock(deviceID)
	mu.Lock()
	defer mu.Unlock()

	key := s.Key(deviceID)
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, values)
		pipe.Expire(ctx, key, s.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to write shadow %s: %w", key, err)
	}
	return nil
}

// GetField returns one field. ok is false when the field is absent.
func (s *ShadowCache) GetField(ctx context.Context, deviceID int64, field string) (value string, ok bool, err error) {
	value, err = s.rdb.HGet(ctx, s.Key(deviceID), field).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read shadow field %s: %w", field, err)
	}
	return value, true, nil
}

// GetAll returns every field of a device shadow. JSON documents are embedded,
// everything else is returned as a JSON string.
func (s *ShadowCache) GetAll(ctx context.Context, deviceID int64) (ShadowEntry, error) {
	values, err := s.rdb.HGetAll(ctx, s.Key(deviceID)).Result()
	if err != nil {
		return ShadowEntry{}, fmt.Errorf("failed to read shadow: %w", err)
	}
	entry := ShadowEntry{DeviceID: deviceID, Fields: make(map[string]json.RawMessage, len(values))}
	for k, v := range values {
		if isJSON(v) && json.Valid([]byte(v)) {
			entry.Fields[k] = json.RawMessage(v)
			continue
		}
		quoted, err := json.Marshal(v)
		if err != nil {
			return ShadowEntry{}, err
		}
		entry.Fields[k] = quoted
	}
	return entry, nil
}

// Expire resets the TTL of a device shadow.
func (s *ShadowCache) Expire(ctx context.Context, deviceID int64) error {
	return s.rdb.Expire(ctx, s.Key(deviceID), s.ttl).Err()
}

// MergeExtension sets one sub-key of the extension document and writes the
// whole document back. A per-device lock serializes local writers and WATCH
// catches writers in other processes.
func (s *ShadowCache) MergeExtension(ctx context.Context, deviceID int64, subKey string, value json.RawMessage) error {
	mu := s.lock(deviceID)
	mu.Lock()
	defer mu.Unlock()

	key := s.Key(deviceID)
	for attempt := 1; attempt <= s.retries; attempt++ {
		err := s.rdb.Watch(ctx, func(tx *redis.Tx) error {
			current, err := tx.HGet(ctx, key, FieldExtension).Result()
			if err != nil && !errors.Is(err, redis.Nil) {
				return err
			}
			ext := s.decodeExtension(deviceID, current)
			ext.Set(subKey, value)
			doc, err := json.Marshal(ext)
			if err != nil {
				return err
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.HSet(ctx, key, FieldExtension, doc)
				pipe.Expire(ctx, key, s.ttl)
				return nil
			})
			return err
		}, key)
		if err == nil {
			return nil
		}
		if !errors.Is(err, redis.TxFailedErr) {
			return fmt.Errorf("failed to merge extension %s of %s: %w", subKey, key, err)
		}
		s.log.Debug("Extension merge conflict on %s (attempt %d/%d)", key, attempt, s.retries)
	}
	return fmt.Errorf("%w: %s after %d attempts", ErrMergeConflict, key, s.retries)
}

func (s *ShadowCache) lock(deviceID int64) *sync.Mutex {
	return &s.locks[uint64(deviceID)%lockStripes]
}

func (s *ShadowCache) decodeExtension(deviceID int64, raw string) *Extension {
	ext := &Extension{}
	if raw == "" {
		return ext
	}
	if err := json.Unmarshal([]byte(raw), ext); err != nil {
		s.log.Warn("Discarding malformed extension of device %d: %v", deviceID, err)
		return &Extension{}
	}
	return ext
}

// isJSON quickly checks if a string might be a JSON document (starts with { or [)
func isJSON(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == ' ' || c == '\t' || c == '\n' || c == '\r' {
			continue
		}
		return c == '{' || c == '['
	}
	return false
}
