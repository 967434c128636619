package directory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

const (
	deviceColumns = `id, tenant_id, product_identification, device_identification, client_id`

	queryDeviceByIdentification = `SELECT ` + deviceColumns + ` FROM iot_device WHERE device_identification = $1 AND deleted = 0`
	queryDeviceByID             = `SELECT ` + deviceColumns + ` FROM iot_device WHERE id = $1 AND deleted = 0`
	queryDevicesByProduct       = `SELECT ` + deviceColumns + ` FROM iot_device WHERE product_identification = $1 AND deleted = 0 ORDER BY id`
	queryProductEncryption      = `SELECT sign_key, encrypt_key, encrypt_vector, encrypt_method FROM iot_product WHERE product_identification = $1 AND deleted = 0`
)

// SQL reads the device registry tables.
type SQL struct {
	db *sql.DB
}

var _ Directory = (*SQL)(nil)

// NewSQL returns a directory backed by db.
func NewSQL(db *sql.DB) *SQL {
	return &SQL{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDevice(row rowScanner) (Device, error) {
	var d Device
	var clientID sql.NullString
	if err := row.Scan(&d.ID, &d.TenantID, &d.ProductIdentification, &d.DeviceIdentification, &clientID); err != nil {
		return Device{}, err
	}
	d.ClientID = clientID.String
	return d, nil
}

func (s *SQL) findOne(ctx context.Context, query string, arg any) (Device, error) {
	d, err := scanDevice(s.db.QueryRowContext(ctx, query, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return Device{}, fmt.Errorf("%w: %v", ErrDeviceNotFound, arg)
	}
	if err != nil {
		return Device{}, fmt.Errorf("failed to query device %v: %w", arg, err)
	}
	return d, nil
}

// FindDeviceByIdentification looks a device up by its identification.
func (s *SQL) FindDeviceByIdentification(ctx context.Context, deviceIdentification string) (Device, error) {
	return s.findOne(ctx, queryDeviceByIdentification, deviceIdentification)
}

// FindDeviceByID looks a device up by its numeric id.
func (s *SQL) FindDeviceByID(ctx context.Context, id int64) (Device, error) {
	return s.findOne(ctx, queryDeviceByID, id)
}

// FindDevicesByProduct returns every device of a product, ordered by id.
func (s *SQL) FindDevicesByProduct(ctx context.Context, productIdentification string) ([]Device, error) {
	rows, err := s.db.QueryContext(ctx, queryDevicesByProduct, productIdentification)
	if err != nil {
		return nil, fmt.Errorf("failed to query devices of %s: %w", productIdentification, err)
	}
	defer func() { _ = rows.Close() }()

	var devices []Device
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan device of %s: %w", productIdentification, err)
		}
		devices = append(devices, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read devices of %s: %w", productIdentification, err)
	}
	return devices, nil
}

// ProductEncryptionParams returns the keys configured on a product.
func (s *SQL) ProductEncryptionParams(ctx context.Context, productIdentification string) (EncryptionParams, error) {
	var p EncryptionParams
	var key, vector sql.NullString
	var flag sql.NullInt64

	err := s.db.QueryRowContext(ctx, queryProductEncryption, productIdentification).Scan(&p.SignKey, &key, &vector, &flag)
	if errors.Is(err, sql.ErrNoRows) {
		return EncryptionParams{}, fmt.Errorf("%w: %s", ErrProductNotFound, productIdentification)
	}
	if err != nil {
		return EncryptionParams{}, fmt.Errorf("failed to query product %s: %w", productIdentification, err)
	}
	p.EncryptKey = key.String
	p.EncryptVector = vector.String
	p.CipherFlag = int(flag.Int64)
	return p, nil
}
