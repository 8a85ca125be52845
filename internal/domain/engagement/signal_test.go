package engagement

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeFocusMinutes(t *testing.T) {
	tests := []struct {
		name     string
		minutes  any
		duration any
		want     float64
	}{
		{"numeric minutes", 45.0, nil, 45},
		{"numeric wins over clock", 12.0, "5:30", 12},
		{"json number", json.Number("61"), nil, 61},
		{"int duration", nil, 90, 90},
		{"clock string", nil, "5:30", 5.5},
		{"clock with padding", nil, " 01:15 ", 1.25},
		{"clock in minutes field", "10:30", nil, 10.5},
		{"bad clock", nil, "bad", 0},
		{"bad clock seconds", nil, "5:xx", 0},
		{"bare numeric string", nil, "42.5", 42.5},
		{"bad clock falls back to bare number", "17", "5:xx", 17},
		{"nothing", nil, nil, 0},
		{"NaN ignored", math.NaN(), "2:00", 2},
		{"infinity ignored", math.Inf(1), nil, 0},
		{"negative clamped", -5.0, nil, 0},
		{"negative clock rejected", nil, "-1:00", 0},
		{"bool ignored", true, nil, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeFocusMinutes(tt.minutes, tt.duration)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}
