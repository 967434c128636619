// Package directory gives read-only access to device and product records.
package directory

import (
	"context"
	"errors"
)

// ErrDeviceNotFound is returned when no device matches a lookup.
var ErrDeviceNotFound = errors.New("device not found")

// ErrProductNotFound is returned when no product matches a lookup.
var ErrProductNotFound = errors.New("product not found")

// Device is the routing view of a registered device.
type Device struct {
	ID                    int64  `json:"id"`
	TenantID              int64  `json:"tenantId"`
	ProductIdentification string `json:"productIdentification"`
	DeviceIdentification  string `json:"deviceIdentification"`
	ClientID              string `json:"clientId"`
}

// EncryptionParams are the per-product keys attached to downstream commands.
type EncryptionParams struct {
	SignKey       string `json:"signKey"`
	EncryptKey    string `json:"encryptKey,omitempty"`
	EncryptVector string `json:"encryptVector,omitempty"`
	CipherFlag    int    `json:"cipherFlag,omitempty"`
}

// CipherConfigured reports whether payload encryption is enabled for the product.
func (p EncryptionParams) CipherConfigured() bool {
	return p.CipherFlag != 0
}

// Directory is the read-only device/product lookup used by the router.
type Directory interface {
	FindDeviceByIdentification(ctx context.Context, deviceIdentification string) (Device, error)
	FindDeviceByID(ctx context.Context, id int64) (Device, error)
	FindDevicesByProduct(ctx context.Context, productIdentification string) ([]Device, error)
	ProductEncryptionParams(ctx context.Context, productIdentification string) (EncryptionParams, error)
}
