package numeric

import (
	"errors"
	"math"
	"strconv"
	"strings"
	"testing"
)

func TestFormat(t *testing.T) {
	tests := []struct {
		name      string
		value     float64
		precision int
		want      string
	}{
		{"float artifact rounded away", 0.1 + 0.2, 2, "0.30"},
		{"quantity padding", 0.01, 3, "0.010"},
		{"zero precision truncates", 23456.789, 0, "23457"},
		{"zero value", 0, 4, "0.0000"},
		{"negative value", -12.345678, 2, "-12.35"},
		{"large price no exponent", 98765.4321, 2, "98765.43"},
		{"small value no exponent", 0.00000012345, 8, "0.00000012"},
		{"tick-sized price", 42137.1, 1, "42137.1"},
		{"tiny value rounds to zero", 1e-300, 8, "0.00000000"},
		{"subnormal value rounds to zero", 5e-324, 4, "0.0000"},
		{"negative tiny value", -1e-310, 2, "-0.00"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Format(tt.value, tt.precision)
			if err != nil {
				t.Fatalf("Format(%v, %d) error: %v", tt.value, tt.precision, err)
			}
			if got != tt.want {
				t.Fatalf("Format(%v, %d) = %q, expected %q", tt.value, tt.precision, got, tt.want)
			}
		})
	}
}

func TestFormatFractionalDigits(t *testing.T) {
	for _, precision := range []int{0, 1, 3, 8} {
		got, err := Format(1234.56789, precision)
		if err != nil {
			t.Fatalf("Format error: %v", err)
		}
		if strings.ContainsAny(got, "eE") {
			t.Fatalf("Format produced exponential notation: %q", got)
		}
		_, frac, found := strings.Cut(got, ".")
		if precision == 0 {
			if found {
				t.Fatalf("precision 0 should have no fraction, got %q", got)
			}
			continue
		}
		if len(frac) != precision {
			t.Fatalf("Format with precision %d produced %d fractional digits: %q", precision, len(frac), got)
		}
	}
}

func TestFormatIdempotent(t *testing.T) {
	values := []float64{0.1 + 0.2, 1.0 / 3.0, 42000.123456, 0.00001234, 7}
	for _, v := range values {
		for _, p := range []int{0, 2, 5, 8} {
			first, err := Format(v, p)
			if err != nil {
				t.Fatalf("Format(%v, %d) error: %v", v, p, err)
			}
			parsed, err := strconv.ParseFloat(first, 64)
			if err != nil {
				t.Fatalf("ParseFloat(%q) error: %v", first, err)
			}
			second, err := Format(parsed, p)
			if err != nil {
				t.Fatalf("re-Format error: %v", err)
			}
			if first != second {
				t.Fatalf("Format not idempotent for %v p=%d: %q then %q", v, p, first, second)
			}
		}
	}
}

func TestFormatRejectsBadInput(t *testing.T) {
	tests := []struct {
		name      string
		value     float64
		precision int
	}{
		{"nan", math.NaN(), 2},
		{"positive inf", math.Inf(1), 2},
		{"negative inf", math.Inf(-1), 2},
		{"negative precision", 1.5, -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Format(tt.value, tt.precision)
			if err == nil {
				t.Fatalf("Format(%v, %d) expected error", tt.value, tt.precision)
			}
			var fe *FormatError
			if !errors.As(err, &fe) {
				t.Fatalf("expected *FormatError, got %T", err)
			}
		})
	}
}
