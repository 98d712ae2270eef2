// Package numeric renders price and quantity values as exchange-compliant
// fixed-precision decimal strings.
package numeric

import (
	"fmt"
	"math"
	"strconv"
)

// significantDigits is applied before the final rounding so that binary
// float artifacts (0.1+0.2 = 0.30000000000000004) never reach the wire.
const significantDigits = 12

// FormatError reports a value that cannot be rendered for the exchange.
// It is submission-blocking and must not be retried.
type FormatError struct {
	Value     float64
	Precision int
	Reason    string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("numeric: cannot format %v with precision %d: %s", e.Value, e.Precision, e.Reason)
}

// Format renders value as a plain decimal string with exactly precision
// fractional digits. The value is first rounded to a fixed number of
// significant digits, then to precision, so the output never carries
// representation noise or exponential notation.
func Format(value float64, precision int) (string, error) {
	if precision < 0 {
		return "", &FormatError{Value: value, Precision: precision, Reason: "negative precision"}
	}
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return "", &FormatError{Value: value, Precision: precision, Reason: "value is not finite"}
	}

	v := value
	if v != 0 {
		magnitude := math.Floor(math.Log10(math.Abs(v)))
		exp := float64(significantDigits-1) - magnitude
		// Pow overflows past ~1e308 for subnormal-range values; such a
		// value is far below any fractional precision we emit, so the
		// final fixed-precision rounding alone is enough.
		if exp <= 300 {
			scale := math.Pow(10, exp)
			v = math.Round(v*scale) / scale
		}
	}
	return strconv.FormatFloat(v, 'f', precision, 64), nil
}
