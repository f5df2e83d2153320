package schedule

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/erazemk/oprema/internal/config"
	"github.com/erazemk/oprema/internal/model"
)

func TestRate(t *testing.T) {
	w := DefaultWeights()

	tests := []struct {
		name        string
		days        int
		history     int
		weekend     bool
		eventType   model.EventType
		want        string
		recommended bool
	}{
		{"next day", 1, 0, false, model.EventTypeOther, "0.83", true},
		{"previous day", -1, 0, false, model.EventTypeOther, "0.73", true},
		{"two weeks back", -14, 0, false, model.EventTypeOther, "0.55", false},
		{"history capped and clamped", 1, 10, false, model.EventTypeOther, "1", true},
		{"academic on weekend", 30, 0, true, model.EventTypeAcademic, "0.45", false},
		{"sports on weekend", 3, 0, true, model.EventTypeSports, "0.89", true},
		{"weekend ignored for other", 3, 0, true, model.EventTypeOther, "0.79", true},
		{"threshold is strict", -5, 1, false, model.EventTypeOther, "0.7", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := w.rate(tt.days, tt.history, tt.weekend, tt.eventType)
			assert.True(t, r.confidence.Equal(decimal.RequireFromString(tt.want)),
				"expected %s, got %s", tt.want, r.confidence)
			assert.Equal(t, tt.recommended, r.recommended)
			assert.NotEmpty(t, r.reasons)
		})
	}
}

func TestRateClampsToFloor(t *testing.T) {
	w := DefaultWeights()
	w.Base = decimal.Zero

	r := w.rate(-14, 0, true, model.EventTypeAcademic)
	assert.True(t, r.confidence.Equal(decimal.RequireFromString("0.1")), "got %s", r.confidence)
}

func TestWeightsFromConfigMatchDefaults(t *testing.T) {
	w := WeightsFromConfig(config.Weights{
		Base: 0.5, HistoryPerEvent: 0.05, HistoryMax: 0.3,
		ProximityMax: 0.2, ProximityPerDay: 0.02,
		After: 0.15, Before: 0.05,
		AcademicWeekend: -0.2, EventfulWeekend: 0.1,
		Min: 0.1, Max: 1.0, RecommendAbove: 0.7,
	})

	def := DefaultWeights()
	for days := -14; days <= 30; days++ {
		a := w.rate(days, 2, days%7 == 0, model.EventTypeCultural)
		b := def.rate(days, 2, days%7 == 0, model.EventTypeCultural)
		assert.True(t, a.confidence.Equal(b.confidence), "day %d: %s != %s", days, a.confidence, b.confidence)
	}
}
