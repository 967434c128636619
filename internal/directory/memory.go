package directory

import (
	"context"
	"fmt"
	"sort"
)

// Memory is an in-process directory seeded at construction and read-only
// afterwards. It backs tests and single-node deployments without a
// registry database.
type Memory struct {
	devices  map[string]Device
	products map[string]EncryptionParams
}

var _ Directory = (*Memory)(nil)

// NewMemory builds a directory from devices and per-product keys.
func NewMemory(devices []Device, products map[string]EncryptionParams) *Memory {
	m := &Memory{
		devices:  make(map[string]Device, len(devices)),
		products: make(map[string]EncryptionParams, len(products)),
	}
	for _, d := range devices {
		m.devices[d.DeviceIdentification] = d
	}
	for k, v := range products {
		m.products[k] = v
	}
	return m
}

// FindDeviceByIdentification implements Directory.
func (m *Memory) FindDeviceByIdentification(_ context.Context, deviceIdentification string) (Device, error) {
	d, ok := m.devices[deviceIdentification]
	if !ok {
		return Device{}, fmt.Errorf("%w: %s", ErrDeviceNotFound, deviceIdentification)
	}
	return d, nil
}

// FindDeviceByID implements Directory.
func (m *Memory) FindDeviceByID(_ context.Context, id int64) (Device, error) {
	for _, d := range m.devices {
		if d.ID == id {
			return d, nil
		}
	}
	return Device{}, fmt.Errorf("%w: %d", ErrDeviceNotFound, id)
}

// FindDevicesByProduct implements Directory.
func (m *Memory) FindDevicesByProduct(_ context.Context, productIdentification string) ([]Device, error) {
	var out []Device
	for _, d := range m.devices {
		if d.ProductIdentification == productIdentification {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ProductEncryptionParams implements Directory.
func (m *Memory) ProductEncryptionParams(_ context.Context, productIdentification string) (EncryptionParams, error) {
	p, ok := m.products[productIdentification]
	if !ok {
		return EncryptionParams{}, fmt.Errorf("%w: %s", ErrProductNotFound, productIdentification)
	}
	return p, nil
}
