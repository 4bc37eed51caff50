package alerting

import (
	"strings"
	"time"
)

// Metric names a rule can refer to.
const (
	MetricTempInside      = "tempinside"
	MetricTempOutside     = "tempoutside"
	MetricHumidityInside  = "humidityinside"
	MetricHumidityOutside = "humidityoutside"
	MetricWeight          = "weight"
)

// Measurement is one sample reported by a device. Nil fields were not reported.
type Measurement struct {
	DeviceID        string
	Timestamp       time.Time
	TempInside      *float64
	TempOutside     *float64
	HumidityInside  *float64
	HumidityOutside *float64
	Weight          *float64
}

// KnownMetric reports whether name matches one of the supported metrics.
func KnownMetric(name string) bool {
	switch normalizeMetric(name) {
	case MetricTempInside, MetricTempOutside, MetricHumidityInside, MetricHumidityOutside, MetricWeight:
		return true
	default:
		return false
	}
}

// Value returns the metric value, matching the name case-insensitively.
// The second result is false when the metric is unknown or was not reported.
func (m Measurement) Value(metric string) (float64, bool) {
	var value *float64
	switch normalizeMetric(metric) {
	case MetricTempInside:
		value = m.TempInside
	case MetricTempOutside:
		value = m.TempOutside
	case MetricHumidityInside:
		value = m.HumidityInside
	case MetricHumidityOutside:
		value = m.HumidityOutside
	case MetricWeight:
		value = m.Weight
	}
	if value == nil {
		return 0, false
	}
	return *value, true
}

func normalizeMetric(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
