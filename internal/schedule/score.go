package schedule

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/erazemk/oprema/internal/config"
	"github.com/erazemk/oprema/internal/model"
)

// Weights are the parameters of the reschedule confidence heuristic.
type Weights struct {
	Base            decimal.Decimal
	HistoryPerEvent decimal.Decimal
	HistoryMax      decimal.Decimal
	ProximityMax    decimal.Decimal
	ProximityPerDay decimal.Decimal
	After           decimal.Decimal
	Before          decimal.Decimal
	AcademicWeekend decimal.Decimal
	EventfulWeekend decimal.Decimal
	Min             decimal.Decimal
	Max             decimal.Decimal
	RecommendAbove  decimal.Decimal
}

// DefaultWeights returns the stock heuristic: base 0.5, up to 0.3 for
// history, up to 0.2 for proximity, a small bonus for later slots and a
// weekend adjustment by event type. Scores are clamped to [0.1, 1.0] and
// recommended above 0.7.
func DefaultWeights() Weights {
	return Weights{
		Base:            decimal.RequireFromString("0.5"),
		HistoryPerEvent: decimal.RequireFromString("0.05"),
		HistoryMax:      decimal.RequireFromString("0.3"),
		ProximityMax:    decimal.RequireFromString("0.2"),
		ProximityPerDay: decimal.RequireFromString("0.02"),
		After:           decimal.RequireFromString("0.15"),
		Before:          decimal.RequireFromString("0.05"),
		AcademicWeekend: decimal.RequireFromString("-0.2"),
		EventfulWeekend: decimal.RequireFromString("0.1"),
		Min:             decimal.RequireFromString("0.1"),
		Max:             decimal.RequireFromString("1.0"),
		RecommendAbove:  decimal.RequireFromString("0.7"),
	}
}

// WeightsFromConfig converts configured weights.
func WeightsFromConfig(c config.Weights) Weights {
	return Weights{
		Base:            decimal.NewFromFloat(c.Base),
		HistoryPerEvent: decimal.NewFromFloat(c.HistoryPerEvent),
		HistoryMax:      decimal.NewFromFloat(c.HistoryMax),
		ProximityMax:    decimal.NewFromFloat(c.ProximityMax),
		ProximityPerDay: decimal.NewFromFloat(c.ProximityPerDay),
		After:           decimal.NewFromFloat(c.After),
		Before:          decimal.NewFromFloat(c.Before),
		AcademicWeekend: decimal.NewFromFloat(c.AcademicWeekend),
		EventfulWeekend: decimal.NewFromFloat(c.EventfulWeekend),
		Min:             decimal.NewFromFloat(c.Min),
		Max:             decimal.NewFromFloat(c.Max),
		RecommendAbove:  decimal.NewFromFloat(c.RecommendAbove),
	}
}

// rating is the outcome of scoring one candidate slot.
type rating struct {
	confidence  decimal.Decimal
	recommended bool
	reasons     []string
}

// rate scores a candidate slot. days is the signed offset from the requested
// day, history the number of precedent events on the candidate's weekday and
// weekend whether the candidate falls on a Saturday or Sunday in the school
// time zone.
func (w Weights) rate(days, history int, weekend bool, eventType model.EventType) rating {
	var reasons []string
	conf := w.Base

	if history > 0 {
		h := decimal.Min(w.HistoryMax, w.HistoryPerEvent.Mul(decimal.NewFromInt(int64(history))))
		conf = conf.Add(h)
		reasons = append(reasons, fmt.Sprintf("%d similar past events on this weekday", history))
	}

	dist := days
	if dist < 0 {
		dist = -dist
	}
	prox := decimal.Max(decimal.Zero, w.ProximityMax.Sub(w.ProximityPerDay.Mul(decimal.NewFromInt(int64(dist)))))
	conf = conf.Add(prox)

	if days > 0 {
		conf = conf.Add(w.After)
		reasons = append(reasons, fmt.Sprintf("%d day(s) later", dist))
	} else {
		conf = conf.Add(w.Before)
		reasons = append(reasons, fmt.Sprintf("%d day(s) earlier", dist))
	}

	if weekend {
		switch eventType {
		case model.EventTypeAcademic:
			conf = conf.Add(w.AcademicWeekend)
			reasons = append(reasons, "academic events are unusual on weekends")
		case model.EventTypeCultural, model.EventTypeSports:
			conf = conf.Add(w.EventfulWeekend)
			reasons = append(reasons, "weekends suit this event type")
		}
	}

	conf = decimal.Min(w.Max, decimal.Max(w.Min, conf))

	return rating{
		confidence:  conf,
		recommended: conf.GreaterThan(w.RecommendAbove),
		reasons:     reasons,
	}
}

func isWeekend(t time.Time) bool {
	wd := t.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}
