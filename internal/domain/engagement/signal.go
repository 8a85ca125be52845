package engagement

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/alem-hub/engagement-hub/pkg/timeutil"
)

// NormalizeFocusMinutes converts the focus encodings a client may send into a
// canonical, non-negative number of minutes. It never fails: when no usable
// value is present the result is 0.
//
// Precedence:
//  1. a finite number in focusMinutes (then focusDuration), used verbatim;
//  2. an "MM:SS" string, minutes + seconds/60;
//  3. a string holding a bare number;
//  4. 0.
func NormalizeFocusMinutes(focusMinutes, focusDuration any) float64 {
	for _, raw := range []any{focusMinutes, focusDuration} {
		if v, ok := finiteNumber(raw); ok {
			return nonNegative(v)
		}
	}

	candidates := stringCandidates(focusDuration, focusMinutes)

	for _, s := range candidates {
		if v, ok := timeutil.ParseClock(s); ok {
			return nonNegative(v)
		}
	}

	for _, s := range candidates {
		v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err == nil && !math.IsNaN(v) && !math.IsInf(v, 0) {
			return nonNegative(v)
		}
	}

	return 0
}

func finiteNumber(raw any) (float64, bool) {
	var v float64
	switch n := raw.(type) {
	case float64:
		v = n
	case float32:
		v = float64(n)
	case int:
		v = float64(n)
	case int64:
		v = float64(n)
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0, false
		}
		v = f
	default:
		return 0, false
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

func stringCandidates(values ...any) []string {
	out := make([]string, 0, len(values))
	for _, raw := range values {
		if s, ok := raw.(string); ok && strings.TrimSpace(s) != "" {
			out = append(out, s)
		}
	}
	return out
}

func nonNegative(v float64) float64 {
	if v < 0 {
		return 0
	}
	return v
}
