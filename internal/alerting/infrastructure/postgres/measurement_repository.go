package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	alerting "hivewatch/internal/alerting/domain"
)

const defaultMeasurementsTable = "measurements"

// MeasurementRepository reads device measurements written by the ingestion pipeline.
type MeasurementRepository struct {
	db    *sql.DB
	table string
}

// NewMeasurementRepository constructs a repository.
func NewMeasurementRepository(db *sql.DB) *MeasurementRepository {
	return &MeasurementRepository{db: db, table: defaultMeasurementsTable}
}

// Append inserts a measurement.
func (r *MeasurementRepository) Append(ctx context.Context, m alerting.Measurement) error {
	if r == nil || r.db == nil {
		return errors.New("measurement repo: nil db")
	}
	if m.DeviceID == "" || m.Timestamp.IsZero() {
		return errors.New("measurement repo: missing fields")
	}
	_, err := r.db.ExecContext(ctx, fmt.Sprintf(`
INSERT INTO %s (
	device_id, ts, temp_inside, temp_outside, humidity_inside, humidity_outside, weight
) VALUES (
	$1, $2, $3, $4, $5, $6, $7
)`, r.table),
		m.DeviceID,
		m.Timestamp.UTC(),
		nullableFloat(m.TempInside),
		nullableFloat(m.TempOutside),
		nullableFloat(m.HumidityInside),
		nullableFloat(m.HumidityOutside),
		nullableFloat(m.Weight),
	)
	return err
}

// GetRecent returns up to limit measurements for the device, newest first.
func (r *MeasurementRepository) GetRecent(ctx context.Context, deviceID string, limit int) ([]alerting.Measurement, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("measurement repo: nil db")
	}
	if deviceID == "" {
		return nil, errors.New("measurement repo: empty device id")
	}
	if limit <= 0 {
		limit = 1
	}
	rows, err := r.db.QueryContext(ctx, fmt.Sprintf(`
SELECT device_id, ts, temp_inside, temp_outside, humidity_inside, humidity_outside, weight
FROM %s
WHERE device_id = $1
ORDER BY ts DESC
LIMIT $2`, r.table), deviceID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []alerting.Measurement
	for rows.Next() {
		var m alerting.Measurement
		var tempInside, tempOutside, humidityInside, humidityOutside, weight sql.NullFloat64
		if err := rows.Scan(
			&m.DeviceID,
			&m.Timestamp,
			&tempInside,
			&tempOutside,
			&humidityInside,
			&humidityOutside,
			&weight,
		); err != nil {
			return nil, err
		}
		m.Timestamp = m.Timestamp.UTC()
		m.TempInside = floatPtr(tempInside)
		m.TempOutside = floatPtr(tempOutside)
		m.HumidityInside = floatPtr(humidityInside)
		m.HumidityOutside = floatPtr(humidityOutside)
		m.Weight = floatPtr(weight)
		result = append(result, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func nullableFloat(value *float64) sql.NullFloat64 {
	if value == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *value, Valid: true}
}

func floatPtr(value sql.NullFloat64) *float64 {
	if !value.Valid {
		return nil
	}
	v := value.Float64
	return &v
}
