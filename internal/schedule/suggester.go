package schedule

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/jmoiron/sqlx"
	"go.opentelemetry.io/otel/attribute"

	"github.com/erazemk/oprema/internal/metrics"
	"github.com/erazemk/oprema/internal/model"
	"github.com/erazemk/oprema/internal/store"
)

// Scan limits, in days from the requested slot.
const (
	backwardDays = 14
	forwardDays  = 30
	maxBefore    = 1
	maxAfter     = 4
)

// Suggester proposes conflict-free alternatives for a conflicting booking.
type Suggester struct {
	log      *slog.Logger
	detector *Detector
	db       *sqlx.DB
	metrics  *metrics.Metrics
	weights  Weights
	loc      *time.Location
	now      func() time.Time
}

// SuggesterOption configures a Suggester.
type SuggesterOption func(*Suggester)

// WithWeights replaces the default scoring weights.
func WithWeights(w Weights) SuggesterOption {
	return func(s *Suggester) { s.weights = w }
}

// WithLocation sets the school time zone. Candidates keep the requested
// wall-clock start in this zone and weekends are judged in it.
func WithLocation(loc *time.Location) SuggesterOption {
	return func(s *Suggester) {
		if loc != nil {
			s.loc = loc
		}
	}
}

// WithClock sets the clock used to decide which events are history.
func WithClock(now func() time.Time) SuggesterOption {
	return func(s *Suggester) { s.now = now }
}

// NewSuggester creates a suggester that checks slots with detector and reads
// booking history from the event store.
func NewSuggester(log *slog.Logger, detector *Detector, events *sqlx.DB, m *metrics.Metrics, opts ...SuggesterOption) *Suggester {
	s := &Suggester{
		log:      log,
		detector: detector,
		db:       events,
		metrics:  m,
		weights:  DefaultWeights(),
		loc:      time.UTC,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Suggest returns up to one free slot before and four free slots after the
// requested one, each keeping the requested start time of day and duration,
// ranked by confidence (then by closeness, then by start). It scans back at
// most 14 days and forward at most 30. An empty result is not an error; a
// failed availability check aborts the suggestion.
func (s *Suggester) Suggest(ctx context.Context, venue string, start, end time.Time, eventType model.EventType, excludeEventID int64) ([]model.Candidate, error) {
	const op = "schedule.Suggest"
	ctx, span := tracer.Start(ctx, op)
	defer span.End()
	span.SetAttributes(attribute.String("venue", venue), attribute.String("event.type", string(eventType)))

	log := s.log.With(slog.String("op", op), slog.String("venue", venue))

	if err := validateWindow(venue, start, end); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	history, err := s.history(ctx, venue, eventType)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	duration := end.Sub(start)
	origin := start.In(s.loc)

	var slots []int
	for day := -1; day >= -backwardDays && len(slots) < maxBefore; day-- {
		free, err := s.free(ctx, origin, duration, day, venue, excludeEventID)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		if free {
			slots = append(slots, day)
		}
	}
	before := len(slots)
	for day := 1; day <= forwardDays && len(slots)-before < maxAfter; day++ {
		free, err := s.free(ctx, origin, duration, day, venue, excludeEventID)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		if free {
			slots = append(slots, day)
		}
	}

	candidates := make([]model.Candidate, 0, len(slots))
	for _, day := range slots {
		cs := shiftDays(origin, day)
		local := cs.In(s.loc)
		r := s.weights.rate(day, history[local.Weekday()], isWeekend(local), eventType)

		direction := model.DirectionAfter
		if day < 0 {
			direction = model.DirectionBefore
		}

		candidates = append(candidates, model.Candidate{
			Start:         cs.UTC(),
			End:           cs.Add(duration).UTC(),
			DaysOffset:    day,
			Direction:     direction,
			Confidence:    r.confidence.Round(4).InexactFloat64(),
			AIRecommended: r.recommended,
			HistoryCount:  history[local.Weekday()],
			Reasons:       r.reasons,
		})
	}

	rank(candidates)

	s.metrics.Suggestions.Observe(float64(len(candidates)))
	log.Debug("suggested slots", slog.Int("candidates", len(candidates)))
	return candidates, nil
}

func (s *Suggester) free(ctx context.Context, origin time.Time, duration time.Duration, day int, venue string, excludeEventID int64) (bool, error) {
	cs := shiftDays(origin, day)
	return s.detector.IsAvailable(ctx, venue, cs, cs.Add(duration), excludeEventID)
}

// history counts past completed or approved events of the given type at venue
// per weekday in the school time zone.
func (s *Suggester) history(ctx context.Context, venue string, eventType model.EventType) (map[time.Weekday]int, error) {
	starts, err := store.ListEventStarts(ctx, s.db, venue, eventType, model.HistoryStatuses, s.now())
	if err != nil {
		return nil, err
	}

	counts := make(map[time.Weekday]int, 7)
	for _, t := range starts {
		counts[t.In(s.loc).Weekday()]++
	}
	return counts, nil
}

// shiftDays moves t by whole calendar days in its own location, keeping the
// wall-clock time.
func shiftDays(t time.Time, days int) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d+days, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

// rank orders candidates by confidence (highest first), then by distance from
// the requested day, then by start.
func rank(candidates []model.Candidate) {
	slices.SortStableFunc(candidates, func(a, b model.Candidate) int {
		if c := cmp.Compare(b.Confidence, a.Confidence); c != 0 {
			return c
		}
		if c := cmp.Compare(abs(a.DaysOffset), abs(b.DaysOffset)); c != 0 {
			return c
		}
		return a.Start.Compare(b.Start)
	})
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
