package ventilation

import (
	"math"
	"strconv"
	"strings"
)

// ParseNumber reads a form field the way a lenient numeric input does: surrounding
// whitespace is ignored, the longest leading decimal number is used ("72 in"
// reads as 72) and anything unparseable or non-finite reads as 0.
func ParseNumber(raw string) float64 {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0
	}
	if v, err := strconv.ParseFloat(s, 64); err == nil {
		return finite(v)
	}
	end := numericPrefix(s)
	if end == 0 {
		return 0
	}
	v, err := strconv.ParseFloat(s[:end], 64)
	if err != nil {
		return 0
	}
	return finite(v)
}

// numericPrefix returns the length of the leading [+-]digits[.digits][e[+-]digits] run.
func numericPrefix(s string) int {
	i := 0
	if i < len(s) && (s[i] == '+' || s[i] == '-') {
		i++
	}
	digits := 0
	for i < len(s) && isDigit(s[i]) {
		i++
		digits++
	}
	if i < len(s) && s[i] == '.' {
		j := i + 1
		frac := 0
		for j < len(s) && isDigit(s[j]) {
			j++
			frac++
		}
		if digits > 0 || frac > 0 {
			i = j
			digits += frac
		}
	}
	if digits == 0 {
		return 0
	}
	if i < len(s) && (s[i] == 'e' || s[i] == 'E') {
		j := i + 1
		if j < len(s) && (s[j] == '+' || s[j] == '-') {
			j++
		}
		exp := 0
		for j < len(s) && isDigit(s[j]) {
			j++
			exp++
		}
		if exp > 0 {
			i = j
		}
	}
	return i
}

func isDigit(b byte) bool { return b >= '0' && b <= '9' }

func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) || v == 0 {
		return 0
	}
	return v
}

// Round2 rounds half away from zero to two decimals. Non-finite input reads
// as 0; magnitudes too large to scale are already whole and returned as is.
func Round2(v float64) float64 {
	v = finite(v)
	scaled := v * 100
	if math.IsInf(scaled, 0) {
		return v
	}
	r := math.Round(scaled) / 100
	if r == 0 {
		return 0
	}
	return r
}

// Format2 renders v with exactly two fractional digits, rounded by Round2 so
// displayed values and rewritten fields agree.
func Format2(v float64) string {
	s := strconv.FormatFloat(Round2(v), 'f', 2, 64)
	if s == "-0.00" {
		return "0.00"
	}
	return s
}
