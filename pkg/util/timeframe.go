package util

import (
	"math"
	"strconv"
	"strings"
)

// TimeframeMinutes converts a UDF resolution ("1", "60", "240", "D", "1D", "W")
// into minutes.
func TimeframeMinutes(tf string) (int, bool) {
	tf = strings.ToUpper(strings.TrimSpace(tf))
	switch tf {
	case "D", "1D":
		return 1440, true
	case "W", "1W":
		return 10080, true
	}
	n, err := strconv.Atoi(tf)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

// ParseFloat accepts plain numbers and numeric strings with surrounding
// whitespace or thousands separators, as some exchanges return them.
// NaN and infinities are rejected.
func ParseFloat(s string) (float64, bool) {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", ""))
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}
