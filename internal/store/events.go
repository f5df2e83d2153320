package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres" // dialect registration
	_ "github.com/doug-martin/goqu/v9/dialect/sqlite3"  // dialect registration
	"github.com/jmoiron/sqlx"
	jsoniter "github.com/json-iterator/go"

	"github.com/erazemk/oprema/internal/db"
	"github.com/erazemk/oprema/internal/model"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	tableEvents  = "events"
	colID        = "id"
	colVenue     = "venue"
	colStartAt   = "start_at"
	colEndAt     = "end_at"
	colStatus    = "status"
	colEventType = "event_type"
	colDeletedAt = "deleted_at"
	eventColumns = `id, title, venue, start_at, end_at, status, event_type, department, equipment, created_at, updated_at, deleted_at`
)

var eventSelectColumns = []any{
	colID, "title", colVenue, colStartAt, colEndAt, colStatus, colEventType,
	"department", "equipment", "created_at", "updated_at", colDeletedAt,
}

// eventRow is the event store representation of an event. The equipment lines
// are kept as a JSON document.
type eventRow struct {
	ID         int64      `db:"id"`
	Title      string     `db:"title"`
	Venue      string     `db:"venue"`
	StartAt    time.Time  `db:"start_at"`
	EndAt      time.Time  `db:"end_at"`
	Status     string     `db:"status"`
	EventType  string     `db:"event_type"`
	Department string     `db:"department"`
	Equipment  string     `db:"equipment"`
	CreatedAt  time.Time  `db:"created_at"`
	UpdatedAt  time.Time  `db:"updated_at"`
	DeletedAt  *time.Time `db:"deleted_at"`
}

func (r eventRow) toModel() (model.Event, error) {
	e := model.Event{
		ID:         r.ID,
		Title:      r.Title,
		Venue:      r.Venue,
		Start:      r.StartAt.UTC(),
		End:        r.EndAt.UTC(),
		Status:     model.EventStatus(r.Status),
		Type:       model.EventType(r.EventType),
		Department: r.Department,
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  r.UpdatedAt,
		DeletedAt:  r.DeletedAt,
	}
	if r.Equipment != "" {
		if err := json.UnmarshalFromString(r.Equipment, &e.Equipment); err != nil {
			return model.Event{}, fmt.Errorf("decoding equipment of event %d: %w", r.ID, err)
		}
	}
	if e.Equipment == nil {
		e.Equipment = []model.EquipmentLine{}
	}
	return e, nil
}

// CreateEvent inserts an event into the event store. The event store is owned
// by the event-management system; this is used for imports and tests.
func CreateEvent(ctx context.Context, q sqlx.ExtContext, e model.Event) (*model.Event, error) {
	if e.Venue == "" {
		return nil, fmt.Errorf("venue required")
	}
	if !e.End.After(e.Start) {
		return nil, fmt.Errorf("event must end after it starts")
	}
	if e.Status == "" {
		e.Status = model.EventDraft
	}
	if e.Type == "" {
		e.Type = model.EventTypeOther
	}
	if e.Equipment == nil {
		e.Equipment = []model.EquipmentLine{}
	}

	equipment, err := json.MarshalToString(e.Equipment)
	if err != nil {
		return nil, fmt.Errorf("encoding equipment: %w", err)
	}

	var id int64
	err = q.QueryRowxContext(ctx, q.Rebind(
		`INSERT INTO events (title, venue, start_at, end_at, status, event_type, department, equipment)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`),
		e.Title, e.Venue, e.Start.UTC(), e.End.UTC(), e.Status, e.Type, e.Department, equipment,
	).Scan(&id)
	if err != nil {
		return nil, sourceErr("creating event", err)
	}

	return GetEvent(ctx, q, id)
}

// GetEvent returns an event by ID, including soft-deleted events.
func GetEvent(ctx context.Context, q sqlx.ExtContext, id int64) (*model.Event, error) {
	var row eventRow
	err := sqlx.GetContext(ctx, q, &row, q.Rebind(
		`SELECT `+eventColumns+` FROM events WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, sourceErr("getting event", err)
	}

	e, err := row.toModel()
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// UpdateEquipment rewrites the equipment document of an event.
func UpdateEquipment(ctx context.Context, q sqlx.ExtContext, id int64, lines []model.EquipmentLine) error {
	if lines == nil {
		lines = []model.EquipmentLine{}
	}
	equipment, err := json.MarshalToString(lines)
	if err != nil {
		return fmt.Errorf("encoding equipment: %w", err)
	}

	res, err := q.ExecContext(ctx, q.Rebind(
		`UPDATE events SET equipment = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`),
		equipment, id)
	if err != nil {
		return sourceErr("updating equipment", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("event %d: %w", id, ErrNotFound)
	}
	return nil
}

// SetEventStatus changes an event's lifecycle status. The lifecycle belongs to
// the event-management system; this is used for imports and tests.
func SetEventStatus(ctx context.Context, q sqlx.ExtContext, id int64, status model.EventStatus) error {
	res, err := q.ExecContext(ctx, q.Rebind(
		`UPDATE events SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`), status, id)
	if err != nil {
		return sourceErr("updating event status", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("event %d: %w", id, ErrNotFound)
	}
	return nil
}

// DeleteEvent soft-deletes an event.
func DeleteEvent(ctx context.Context, q sqlx.ExtContext, id int64) error {
	_, err := q.ExecContext(ctx, q.Rebind(
		`UPDATE events SET deleted_at = CURRENT_TIMESTAMP WHERE id = ? AND deleted_at IS NULL`), id)
	if err != nil {
		return sourceErr("deleting event", err)
	}
	return nil
}

// FindOverlappingEvents returns the live events at venue whose half-open
// interval [start_at, end_at) overlaps [start, end), excluding excludeID.
// Touching intervals do not overlap.
func FindOverlappingEvents(ctx context.Context, q sqlx.ExtContext, venue string, start, end time.Time, statuses []model.EventStatus, excludeID int64) ([]model.Event, error) {
	where := []goqu.Expression{
		goqu.C(colVenue).Eq(venue),
		goqu.C(colDeletedAt).IsNull(),
		goqu.C(colStatus).In(statusStrings(statuses)),
		goqu.C(colStartAt).Lt(end.UTC()),
		goqu.C(colEndAt).Gt(start.UTC()),
	}
	if excludeID > 0 {
		where = append(where, goqu.C(colID).Neq(excludeID))
	}

	query, args, err := goqu.Dialect(db.Dialect(q)).
		From(tableEvents).
		Select(eventSelectColumns...).
		Where(where...).
		Order(goqu.C(colStartAt).Asc(), goqu.C(colID).Asc()).
		Prepared(true).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("building overlap query: %w", err)
	}

	return selectEvents(ctx, q, query, args, "finding overlapping events")
}

// ListEventStarts returns the start times of live events at venue of the given
// type and statuses that started before the given instant.
func ListEventStarts(ctx context.Context, q sqlx.ExtContext, venue string, eventType model.EventType, statuses []model.EventStatus, before time.Time) ([]time.Time, error) {
	query, args, err := goqu.Dialect(db.Dialect(q)).
		From(tableEvents).
		Select(colStartAt).
		Where(
			goqu.C(colVenue).Eq(venue),
			goqu.C(colEventType).Eq(string(eventType)),
			goqu.C(colDeletedAt).IsNull(),
			goqu.C(colStatus).In(statusStrings(statuses)),
			goqu.C(colStartAt).Lt(before.UTC()),
		).
		Order(goqu.C(colStartAt).Asc()).
		Prepared(true).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("building history query: %w", err)
	}

	var starts []time.Time
	if err := sqlx.SelectContext(ctx, q, &starts, query, args...); err != nil {
		return nil, sourceErr("listing event history", err)
	}
	for i := range starts {
		starts[i] = starts[i].UTC()
	}
	return starts, nil
}

// ListVenueEvents returns the live events at venue that overlap [from, to),
// regardless of status.
func ListVenueEvents(ctx context.Context, q sqlx.ExtContext, venue string, from, to time.Time) ([]model.Event, error) {
	query, args, err := goqu.Dialect(db.Dialect(q)).
		From(tableEvents).
		Select(eventSelectColumns...).
		Where(
			goqu.C(colVenue).Eq(venue),
			goqu.C(colDeletedAt).IsNull(),
			goqu.C(colStartAt).Lt(to.UTC()),
			goqu.C(colEndAt).Gt(from.UTC()),
		).
		Order(goqu.C(colStartAt).Asc(), goqu.C(colID).Asc()).
		Prepared(true).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("building venue query: %w", err)
	}

	return selectEvents(ctx, q, query, args, "listing venue events")
}

func selectEvents(ctx context.Context, q sqlx.ExtContext, query string, args []any, op string) ([]model.Event, error) {
	var rows []eventRow
	if err := sqlx.SelectContext(ctx, q, &rows, query, args...); err != nil {
		return nil, sourceErr(op, err)
	}

	events := make([]model.Event, 0, len(rows))
	for _, r := range rows {
		e, err := r.toModel()
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, nil
}

func statusStrings(statuses []model.EventStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}
