package validation

import "math"

// IsFinite reports whether every value is neither NaN nor infinite.
func IsFinite(values ...float64) bool {
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// IsFiniteAngle accepts any finite angle in radians. Values outside
// [-pi, pi] are valid and simply wrap.
func IsFiniteAngle(angle float64) bool {
	return IsFinite(angle)
}
