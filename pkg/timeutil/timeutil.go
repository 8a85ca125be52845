// Package timeutil provides the "MM:SS" clock strings shared by the server
// and the focus client.
package timeutil

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ══════════════════════════════════════════════════════════════════════════════
// CLOCK STRINGS ("MM:SS")
// ══════════════════════════════════════════════════════════════════════════════

// FormatClock formats elapsed seconds as "MM:SS". Minutes are not wrapped at 60,
// so 90 minutes render as "90:00".
func FormatClock(elapsedSeconds int) string {
	if elapsedSeconds < 0 {
		elapsedSeconds = 0
	}
	return fmt.Sprintf("%02d:%02d", elapsedSeconds/60, elapsedSeconds%60)
}

// ParseClock parses an "MM:SS" string into fractional minutes.
// Each component must be a finite non-negative number; anything else
// reports ok=false.
func ParseClock(s string) (minutes float64, ok bool) {
	minPart, secPart, found := strings.Cut(strings.TrimSpace(s), ":")
	if !found {
		return 0, false
	}

	m, ok := parseComponent(minPart)
	if !ok {
		return 0, false
	}
	sec, ok := parseComponent(secPart)
	if !ok {
		return 0, false
	}

	return m + sec/60, true
}

func parseComponent(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0, false
	}
	return v, true
}
