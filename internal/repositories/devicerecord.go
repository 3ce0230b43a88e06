package repositories

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/myrjola/coachline/internal/errors"
	"github.com/myrjola/coachline/internal/sqlite"
)

// DeviceRecordRepository persists the key-value records of anonymous devices.
type DeviceRecordRepository struct {
	db     *sqlite.Database
	logger *slog.Logger
}

func NewDeviceRecordRepository(db *sqlite.Database, logger *slog.Logger) *DeviceRecordRepository {
	return &DeviceRecordRepository{
		db:     db,
		logger: logger.With("source", "DeviceRecordRepository"),
	}
}

// ForDevice returns the record store of one device.
func (r *DeviceRecordRepository) ForDevice(deviceID string) *DeviceRecords {
	return &DeviceRecords{repo: r, deviceID: deviceID}
}

// DeviceRecords is the record store of one device.
type DeviceRecords struct {
	repo     *DeviceRecordRepository
	deviceID string
}

// ReadRecord returns nil when the record does not exist.
func (d *DeviceRecords) ReadRecord(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	stmt := `SELECT value FROM device_records WHERE device_id = ? AND record_key = ?`
	if err := d.repo.db.ReadOnly.GetContext(ctx, &value, stmt, d.deviceID, key); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil //nolint:nilnil // absent records read as nil.
		}
		return nil, errors.Wrap(err, "select device record", slog.String("key", key))
	}
	return value, nil
}

func (d *DeviceRecords) WriteRecord(ctx context.Context, key string, value []byte) error {
	stmt := `INSERT INTO device_records (device_id, record_key, value) VALUES (?, ?, ?)
ON CONFLICT (device_id, record_key) DO UPDATE SET value = excluded.value`
	if _, err := d.repo.db.ReadWrite.ExecContext(ctx, stmt, d.deviceID, key, value); err != nil {
		return errors.Wrap(err, "upsert device record", slog.String("key", key))
	}
	return nil
}

func (d *DeviceRecords) DeleteRecord(ctx context.Context, key string) error {
	stmt := `DELETE FROM device_records WHERE device_id = ? AND record_key = ?`
	if _, err := d.repo.db.ReadWrite.ExecContext(ctx, stmt, d.deviceID, key); err != nil {
		return errors.Wrap(err, "delete device record", slog.String("key", key))
	}
	return nil
}
