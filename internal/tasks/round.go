package tasks

import "math"

// round rounds to 2 decimal places; all reported metric values use this
// to avoid meaningless precision in telemetry payloads
func round(val float64) float64 {
	return math.Round(val*100) / 100
}
