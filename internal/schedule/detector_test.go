package schedule

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erazemk/oprema/internal/db"
	"github.com/erazemk/oprema/internal/metrics"
	"github.com/erazemk/oprema/internal/model"
	"github.com/erazemk/oprema/internal/store"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func hour(day, h int) time.Time {
	return time.Date(2026, 1, day, h, 0, 0, 0, time.UTC)
}

func book(t *testing.T, events *sqlx.DB, venue string, start, end time.Time, status model.EventStatus, department string) *model.Event {
	t.Helper()
	e, err := store.CreateEvent(context.Background(), events, model.Event{
		Title:      "Booking",
		Venue:      venue,
		Start:      start,
		End:        end,
		Status:     status,
		Type:       model.EventTypeOther,
		Department: department,
	})
	require.NoError(t, err)
	return e
}

func TestOverlaps(t *testing.T) {
	tests := []struct {
		name           string
		s1, e1, s2, e2 time.Time
		want           bool
	}{
		{"touching end", hour(1, 8), hour(1, 10), hour(1, 10), hour(1, 12), false},
		{"touching start", hour(1, 12), hour(1, 14), hour(1, 10), hour(1, 12), false},
		{"partial", hour(1, 9), hour(1, 11), hour(1, 10), hour(1, 12), true},
		{"contained", hour(1, 10), hour(1, 11), hour(1, 9), hour(1, 12), true},
		{"identical", hour(1, 10), hour(1, 12), hour(1, 10), hour(1, 12), true},
		{"disjoint", hour(1, 8), hour(1, 9), hour(1, 10), hour(1, 12), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Overlaps(tt.s1, tt.e1, tt.s2, tt.e2))
			assert.Equal(t, tt.want, Overlaps(tt.s2, tt.e2, tt.s1, tt.e1), "overlap must be symmetric")
		})
	}
}

func TestIsAvailable(t *testing.T) {
	events := db.NewTestDB(t, db.Events)
	d := NewDetector(discard(), events, metrics.New())
	ctx := context.Background()

	existing := book(t, events, "Gym", hour(10, 10), hour(10, 12), model.EventApproved, "Sports")

	tests := []struct {
		name       string
		venue      string
		start, end time.Time
		exclude    int64
		want       bool
	}{
		{"back to back before", "Gym", hour(10, 8), hour(10, 10), 0, true},
		{"back to back after", "Gym", hour(10, 12), hour(10, 14), 0, true},
		{"overlap", "Gym", hour(10, 11), hour(10, 13), 0, false},
		{"other venue", "Auditorium", hour(10, 11), hour(10, 13), 0, true},
		{"self excluded", "Gym", hour(10, 11), hour(10, 13), existing.ID, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			free, err := d.IsAvailable(ctx, tt.venue, tt.start, tt.end, tt.exclude)
			require.NoError(t, err)
			assert.Equal(t, tt.want, free)
		})
	}
}

func TestIsAvailableIsGlobalAcrossDepartments(t *testing.T) {
	events := db.NewTestDB(t, db.Events)
	d := NewDetector(discard(), events, metrics.New())

	book(t, events, "Auditorium", hour(10, 14), hour(10, 22), model.EventUnderReview, "Drama")

	// A different department asking for the same slot still conflicts.
	free, err := d.IsAvailable(context.Background(), "Auditorium", hour(10, 18), hour(10, 20), 0)
	require.NoError(t, err)
	assert.False(t, free)

	conflicts, err := d.Conflicts(context.Background(), "Auditorium", hour(10, 18), hour(10, 20), 0)
	require.NoError(t, err)
	require.Len(t, conflicts, 1)
	assert.Equal(t, "Drama", conflicts[0].Department)
}

func TestIsAvailableIgnoresNonBlockingStatuses(t *testing.T) {
	events := db.NewTestDB(t, db.Events)
	d := NewDetector(discard(), events, metrics.New())

	for _, status := range []model.EventStatus{model.EventDraft, model.EventRejected, model.EventCancelled, model.EventCompleted} {
		book(t, events, "Gym", hour(10, 10), hour(10, 12), status, "")
	}
	deleted := book(t, events, "Gym", hour(10, 10), hour(10, 12), model.EventApproved, "")
	require.NoError(t, store.DeleteEvent(context.Background(), events, deleted.ID))

	free, err := d.IsAvailable(context.Background(), "Gym", hour(10, 9), hour(10, 13), 0)
	require.NoError(t, err)
	assert.True(t, free)

	for _, status := range model.BookingStatuses {
		book(t, events, "Pool", hour(10, 10), hour(10, 12), status, "")
	}
	conflicts, err := d.Conflicts(context.Background(), "Pool", hour(10, 9), hour(10, 13), 0)
	require.NoError(t, err)
	assert.Len(t, conflicts, len(model.BookingStatuses))
}

func TestScheduleListsEveryStatus(t *testing.T) {
	events := db.NewTestDB(t, db.Events)
	d := NewDetector(discard(), events, metrics.New())
	ctx := context.Background()

	draft := book(t, events, "Gym", hour(11, 8), hour(11, 9), model.EventDraft, "")
	approved := book(t, events, "Gym", hour(11, 10), hour(11, 12), model.EventApproved, "")
	book(t, events, "Gym", hour(11, 12), hour(11, 13), model.EventPending, "")
	book(t, events, "Pool", hour(11, 10), hour(11, 12), model.EventApproved, "")

	got, err := d.Schedule(ctx, "Gym", hour(11, 8), hour(11, 12))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, draft.ID, got[0].ID)
	assert.Equal(t, approved.ID, got[1].ID)

	got, err = d.Schedule(ctx, "Gym", hour(12, 8), hour(12, 12))
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = d.Schedule(ctx, "Gym", hour(11, 12), hour(11, 8))
	assert.ErrorIs(t, err, ErrInvalidWindow)
}

func TestIsAvailableRejectsInvalidInput(t *testing.T) {
	events := db.NewTestDB(t, db.Events)
	d := NewDetector(discard(), events, metrics.New())
	ctx := context.Background()

	free, err := d.IsAvailable(ctx, "Gym", hour(10, 12), hour(10, 12), 0)
	assert.ErrorIs(t, err, ErrInvalidWindow)
	assert.False(t, free)

	free, err = d.IsAvailable(ctx, "Gym", hour(10, 12), hour(10, 10), 0)
	assert.ErrorIs(t, err, ErrInvalidWindow)
	assert.False(t, free)

	_, err = d.IsAvailable(ctx, "", hour(10, 10), hour(10, 12), 0)
	assert.ErrorIs(t, err, ErrNoVenue)
}

func TestIsAvailableFailsClosed(t *testing.T) {
	events := db.NewTestDB(t, db.Events)
	d := NewDetector(discard(), events, metrics.New())
	events.Close()

	free, err := d.IsAvailable(context.Background(), "Gym", hour(10, 10), hour(10, 12), 0)
	assert.ErrorIs(t, err, store.ErrDataSource)
	assert.False(t, free)
}
