// Package schedule detects venue double-bookings and proposes alternative
// slots for conflicting bookings.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/erazemk/oprema/internal/lib/logger/sl"
	"github.com/erazemk/oprema/internal/metrics"
	"github.com/erazemk/oprema/internal/model"
	"github.com/erazemk/oprema/internal/store"
)

var tracer = otel.Tracer("github.com/erazemk/oprema/internal/schedule")

var (
	// ErrInvalidWindow is returned for a window that does not end after it starts.
	ErrInvalidWindow = errors.New("window must end after it starts")

	// ErrNoVenue is returned when no venue is given.
	ErrNoVenue = errors.New("venue required")
)

// Overlaps reports whether the half-open intervals [s1, e1) and [s2, e2)
// overlap. Intervals that only touch do not.
func Overlaps(s1, e1, s2, e2 time.Time) bool {
	return s1.Before(e2) && e1.After(s2)
}

// Detector checks venue bookings across all departments.
type Detector struct {
	log     *slog.Logger
	db      *sqlx.DB
	metrics *metrics.Metrics
}

// NewDetector creates a detector over the event store.
func NewDetector(log *slog.Logger, events *sqlx.DB, m *metrics.Metrics) *Detector {
	return &Detector{log: log, db: events, metrics: m}
}

// IsAvailable reports whether venue is free for [start, end). Events that are
// pending, under review, approved or ongoing hold their slot; excludeEventID
// lets an event be checked against everything but itself.
//
// It fails closed: on any error the venue is reported as unavailable.
func (d *Detector) IsAvailable(ctx context.Context, venue string, start, end time.Time, excludeEventID int64) (bool, error) {
	conflicts, err := d.Conflicts(ctx, venue, start, end, excludeEventID)
	if err != nil {
		d.metrics.ConflictChecks.WithLabelValues(metrics.CheckError).Inc()
		return false, err
	}

	if len(conflicts) > 0 {
		d.metrics.ConflictChecks.WithLabelValues(metrics.CheckConflict).Inc()
		return false, nil
	}
	d.metrics.ConflictChecks.WithLabelValues(metrics.CheckFree).Inc()
	return true, nil
}

// Conflicts returns the events that keep venue from being free for
// [start, end), earliest first.
func (d *Detector) Conflicts(ctx context.Context, venue string, start, end time.Time, excludeEventID int64) ([]model.Event, error) {
	const op = "schedule.Conflicts"
	ctx, span := tracer.Start(ctx, op)
	defer span.End()
	span.SetAttributes(attribute.String("venue", venue))

	if err := validateWindow(venue, start, end); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	events, err := store.FindOverlappingEvents(ctx, d.db, venue, start, end, model.BookingStatuses, excludeEventID)
	if err != nil {
		span.RecordError(err)
		d.log.Error("failed to look up venue bookings",
			slog.String("op", op),
			slog.String("venue", venue),
			sl.Err(err),
		)
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if events == nil {
		events = []model.Event{}
	}
	return events, nil
}

// Schedule returns every live event at venue overlapping [from, to), whatever
// its status, earliest first.
func (d *Detector) Schedule(ctx context.Context, venue string, from, to time.Time) ([]model.Event, error) {
	const op = "schedule.Schedule"
	ctx, span := tracer.Start(ctx, op)
	defer span.End()
	span.SetAttributes(attribute.String("venue", venue))

	if err := validateWindow(venue, from, to); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	events, err := store.ListVenueEvents(ctx, d.db, venue, from, to)
	if err != nil {
		span.RecordError(err)
		d.log.Error("failed to list venue events",
			slog.String("op", op),
			slog.String("venue", venue),
			sl.Err(err),
		)
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return events, nil
}

func validateWindow(venue string, start, end time.Time) error {
	if strings.TrimSpace(venue) == "" {
		return ErrNoVenue
	}
	if !end.After(start) {
		return ErrInvalidWindow
	}
	return nil
}
