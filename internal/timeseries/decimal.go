package timeseries

import (
	"strconv"
	"strings"
)

// Partner systems exchange tabular files with a decimal comma. These helpers
// keep the conversion in one place so round-trips stay bit-exact.

// ParseDecimal parses a number that may use a decimal comma.
func ParseDecimal(s string) (float64, error) {
	return strconv.ParseFloat(strings.ReplaceAll(strings.TrimSpace(s), ",", "."), 64)
}

// FormatDecimal formats a number with a decimal comma and at most the given
// number of decimals, dropping trailing zeros the way the partner files do.
func FormatDecimal(v float64, decimals int) string {
	s := strconv.FormatFloat(v, 'f', decimals, 64)
	if strings.Contains(s, ".") {
		s = strings.TrimRight(s, "0")
		s = strings.TrimRight(s, ".")
	}
	return strings.ReplaceAll(s, ".", ",")
}
