package memory

import (
	"context"
	"errors"
	"sort"
	"sync"

	alerting "hivewatch/internal/alerting/domain"
)

// MeasurementStore is an in-memory measurement source.
type MeasurementStore struct {
	mu       sync.RWMutex
	byDevice map[string][]alerting.Measurement
}

// NewMeasurementStore constructs an empty store.
func NewMeasurementStore() *MeasurementStore {
	return &MeasurementStore{byDevice: make(map[string][]alerting.Measurement)}
}

// Append records a measurement.
func (s *MeasurementStore) Append(m alerting.Measurement) error {
	if s == nil {
		return errors.New("memory measurements: nil store")
	}
	if m.DeviceID == "" {
		return errors.New("memory measurements: empty device id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byDevice[m.DeviceID] = append(s.byDevice[m.DeviceID], m)
	return nil
}

// GetRecent returns up to limit measurements for the device, newest first.
func (s *MeasurementStore) GetRecent(_ context.Context, deviceID string, limit int) ([]alerting.Measurement, error) {
	if s == nil {
		return nil, errors.New("memory measurements: nil store")
	}
	s.mu.RLock()
	samples := append([]alerting.Measurement(nil), s.byDevice[deviceID]...)
	s.mu.RUnlock()

	sort.SliceStable(samples, func(i, j int) bool {
		return samples[i].Timestamp.After(samples[j].Timestamp)
	})
	if limit > 0 && len(samples) > limit {
		samples = samples[:limit]
	}
	return samples, nil
}
