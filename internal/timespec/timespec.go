// Package timespec normalizes raw clock input and does duration math over
// "HH:MM" strings, including the "24:00" end-of-day sentinel.
package timespec

import (
	"fmt"
	"strconv"
	"strings"
)

// EndOfDay is a valid end time one minute past "23:59". It never appears as a
// start time.
const EndOfDay = "24:00"

// Parse normalizes raw 4-digit input ("1330") to canonical "HH:MM".
// Anything that is not exactly four digits within 00:00-23:59 is rejected.
func Parse(raw string) (string, error) {
	if len(raw) != 4 {
		return "", fmt.Errorf("time %q: expected 4 digits (HHMM)", raw)
	}
	for _, r := range raw {
		if r < '0' || r > '9' {
			return "", fmt.Errorf("time %q: expected 4 digits (HHMM)", raw)
		}
	}
	hour, _ := strconv.Atoi(raw[:2])
	minute, _ := strconv.Atoi(raw[2:])
	if hour > 23 {
		return "", fmt.Errorf("time %q: hour out of range", raw)
	}
	if minute > 59 {
		return "", fmt.Errorf("time %q: minute out of range", raw)
	}
	return fmt.Sprintf("%02d:%02d", hour, minute), nil
}

// Minutes converts canonical "HH:MM" to minutes since midnight.
// EndOfDay maps to 1440.
func Minutes(clock string) (int, error) {
	if clock == EndOfDay {
		return 24 * 60, nil
	}
	h, m, ok := strings.Cut(clock, ":")
	if !ok || len(h) != 2 || len(m) != 2 {
		return 0, fmt.Errorf("clock %q: expected HH:MM", clock)
	}
	hour, err := strconv.Atoi(h)
	if err != nil {
		return 0, fmt.Errorf("clock %q: expected HH:MM", clock)
	}
	minute, err := strconv.Atoi(m)
	if err != nil {
		return 0, fmt.Errorf("clock %q: expected HH:MM", clock)
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, fmt.Errorf("clock %q: out of range", clock)
	}
	return hour*60 + minute, nil
}

// Hours returns the duration between start and end in hours. Malformed input
// yields 0.0 so aggregation stays resilient to dirty rows.
func Hours(start, end string) float64 {
	startMin, err := Minutes(start)
	if err != nil {
		return 0.0
	}
	endMin, err := Minutes(end)
	if err != nil {
		return 0.0
	}
	return float64(endMin-startMin) / 60.0
}
