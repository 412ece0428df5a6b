package model

import (
	"math"
	"strconv"
)

// ParseCents converts decimal string amounts (major units) to minor units
// (int64). Use for PMS APIs that quote rates as "240.00" = 24000 cents.
// Handles edge cases: empty strings, missing decimals, large values.
// Examples: "99.00" → 9900, "1234.56" → 123456, "" → 0
func ParseCents(s string) int64 {
	if s == "" {
		return 0
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	// math.Round handles both positive and negative numbers correctly
	return int64(math.Round(f * 100))
}

// ParseMinorUnits converts string amounts already in minor units to int64.
// Examples: "8900" → 8900, "123456" → 123456, "" → 0
func ParseMinorUnits(s string) int64 {
	if s == "" {
		return 0
	}
	// Parse as float to handle potential decimal values, then truncate
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return int64(f)
}

// WithinTolerance reports whether charged deviates from offered by at most
// tolerancePct percent of the offered price (rounded up to a whole minor
// unit, so a 1% tolerance on a 50-cent offer still allows a 1-cent drift).
func WithinTolerance(offered, charged int64, tolerancePct float64) bool {
	if offered == charged {
		return true
	}
	diff := charged - offered
	if diff < 0 {
		diff = -diff
	}
	allowed := int64(math.Ceil(float64(offered) * tolerancePct / 100))
	return diff <= allowed
}
