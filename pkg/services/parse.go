package services

import (
	"math"
	"strconv"
	"strings"
)

// missing reports the provider's placeholders for "no value"
func missing(s string) bool {
	switch strings.TrimSpace(s) {
	case "", "None", "-", "N/A", "null":
		return true
	}
	return false
}

// parseNumber parses a provider numeric string; nil means "no update"
func parseNumber(s string) *float64 {
	if missing(s) {
		return nil
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}

// parsePercent parses values such as "1.2345%"
func parsePercent(s string) *float64 {
	return parseNumber(strings.TrimSuffix(strings.TrimSpace(s), "%"))
}

// parseInteger parses whole-number fields. Values outside the int64 range are rejected.
func parseInteger(s string) *int64 {
	if missing(s) {
		return nil
	}
	s = strings.TrimSpace(s)
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return &n
	}
	f := parseNumber(s)
	if f == nil || *f < math.MinInt64 || *f >= math.MaxInt64 {
		return nil
	}
	n := int64(*f)
	return &n
}

// parseCount parses quantities that cannot be negative, such as volume and market cap
func parseCount(s string) *int64 {
	n := parseInteger(s)
	if n == nil || *n < 0 {
		return nil
	}
	return n
}

// parseText returns nil for placeholders
func parseText(s string) *string {
	if missing(s) {
		return nil
	}
	s = strings.TrimSpace(s)
	return &s
}
