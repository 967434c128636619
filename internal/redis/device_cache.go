package redis

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"github.com/ibs-source/iot-router/internal/config"
	"github.com/ibs-source/iot-router/internal/directory"
	"github.com/ibs-source/iot-router/internal/log"
	"github.com/redis/go-redis/v9"
)

// DeviceCache is a read-through cache of single device lookups.
// Misses and Redis failures fall back to the wrapped directory; not-found
// results are never cached.
type DeviceCache struct {
	rdb    *redis.Client
	next   directory.Directory
	log    *log.Logger
	prefix string
	ttl    time.Duration
}

var _ directory.Directory = (*DeviceCache)(nil)

// NewDeviceCache wraps next with a Redis cache
func NewDeviceCache(c *Client, next directory.Directory, cfg *config.ShadowConfig) *DeviceCache {
	return &DeviceCache{
		rdb:    c.rdb,
		next:   next,
		log:    c.log,
		prefix: cfg.DeviceCachePrefix,
		ttl:    cfg.DeviceCacheTTL,
	}
}

func (d *DeviceCache) identificationKey(identification string) string {
	return d.prefix + "ident:" + identification
}

func (d *DeviceCache) idKey(id int64) string {
	return d.prefix + "id:" + strconv.FormatInt(id, 10)
}

// FindDeviceByIdentification implements directory.Directory
func (d *DeviceCache) FindDeviceByIdentification(ctx context.Context, deviceIdentification string) (directory.Device, error) {
	if dev, ok := d.get(ctx, d.identificationKey(deviceIdentification)); ok {
		return dev, nil
	}
	dev, err := d.next.FindDeviceByIdentification(ctx, deviceIdentification)
	if err != nil {
		return dev, err
	}
	d.put(ctx, dev)
	return dev, nil
}

// FindDeviceByID implements directory.Directory
func (d *DeviceCache) FindDeviceByID(ctx context.Context, id int64) (directory.Device, error) {
	if dev, ok := d.get(ctx, d.idKey(id)); ok {
		return dev, nil
	}
	dev, err := d.next.FindDeviceByID(ctx, id)
	if err != nil {
		return dev, err
	}
	d.put(ctx, dev)
	return dev, nil
}

// FindDevicesByProduct is not cached; broadcast targets must see new devices.
func (d *DeviceCache) FindDevicesByProduct(ctx context.Context, productIdentification string) ([]directory.Device, error) {
	return d.next.FindDevicesByProduct(ctx, productIdentification)
}

// ProductEncryptionParams is not cached; keys may rotate.
func (d *DeviceCache) ProductEncryptionParams(ctx context.Context, productIdentification string) (directory.EncryptionParams, error) {
	return d.next.ProductEncryptionParams(ctx, productIdentification)
}

// Invalidate drops both cache entries of a device.
func (d *DeviceCache) Invalidate(ctx context.Context, dev directory.Device) error {
	return d.rdb.Del(ctx, d.identificationKey(dev.DeviceIdentification), d.idKey(dev.ID)).Err()
}

func (d *DeviceCache) get(ctx context.Context, key string) (directory.Device, bool) {
	var dev directory.Device
	raw, err := d.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			d.log.Warn("Device cache read %s failed: %v", key, err)
		}
		return dev, false
	}
	if err := json.Unmarshal(raw, &dev); err != nil {
		d.log.Warn("Device cache entry %s is malformed: %v", key, err)
		return dev, false
	}
	return dev, true
}

func (d *DeviceCache) put(ctx context.Context, dev directory.Device) {
	raw, err := json.Marshal(dev)
	if err != nil {
		d.log.Warn("Device %d not cached: %v", dev.ID, err)
		return
	}
	_, err = d.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, d.identificationKey(dev.DeviceIdentification), raw, d.ttl)
		pipe.Set(ctx, d.idKey(dev.ID), raw, d.ttl)
		return nil
	})
	if err != nil {
		d.log.Warn("Device %d not cached: %v", dev.ID, err)
	}
}
