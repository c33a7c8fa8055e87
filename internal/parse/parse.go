package parse

import (
	"strconv"
	"strings"
	"time"

	"production-tracker-backend/internal/apperr"
)

// DateLayouts are the accepted date inputs, day first.
var DateLayouts = []string{"02/01/2006", "02-01-2006", "02 01 2006", "2006-01-02"}

// Terms splits a search string into its whitespace separated terms.
func Terms(raw string) []string {
	return strings.Fields(raw)
}

// Date parses an optional day-first date in UTC. Blank input gives nil.
func Date(field, raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	for _, layout := range DateLayouts {
		if d, err := time.ParseInLocation(layout, raw, time.UTC); err == nil {
			return &d, nil
		}
	}
	return nil, apperr.NewValidation(field, "Enter a valid date.")
}

// TriState parses an optional yes/no filter. Blank or "unknown" input gives nil.
func TriState(field, raw string) (*bool, error) {
	var b bool
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "unknown", "none", "null":
		return nil, nil
	case "true", "yes", "on", "1", "2":
		b = true
	case "false", "no", "off", "0", "3":
		b = false
	default:
		return nil, apperr.NewValidation(field, "%q is not a valid choice.", raw)
	}
	return &b, nil
}

// Page parses a 0-based page number. Blank input is page 0.
func Page(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, apperr.NewValidation("page", "Enter a whole number of at least 0.")
	}
	return n, nil
}

// ID parses a positive record id from a path segment.
func ID(field, raw string) (uint64, error) {
	n, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 64)
	if err != nil || n == 0 {
		return 0, apperr.NewValidation(field, "%q is not a valid id.", raw)
	}
	return n, nil
}
