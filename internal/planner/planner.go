// Package planner turns an event's equipment needs into ledger claims and
// writes the outcome back onto the event's equipment lines.
//
// Writes go to the custody store first (through the ledger) and to the event
// store second. The two stores are not updated atomically; Reconcile rewrites
// the event-store mirror from the ledger, which is the source of truth.
package planner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/erazemk/oprema/internal/catalog"
	"github.com/erazemk/oprema/internal/ledger"
	"github.com/erazemk/oprema/internal/lib/logger/sl"
	"github.com/erazemk/oprema/internal/metrics"
	"github.com/erazemk/oprema/internal/model"
	"github.com/erazemk/oprema/internal/store"
)

var tracer = otel.Tracer("github.com/erazemk/oprema/internal/planner")

var (
	// ErrEventNotFound is returned for unknown or soft-deleted events.
	ErrEventNotFound = errors.New("event not found")

	// ErrNotApproved is returned when fulfilling an event that is not approved
	// or ongoing.
	ErrNotApproved = errors.New("event is not approved")

	// ErrNoReason is returned when rejecting without a reason.
	ErrNoReason = errors.New("rejection reason required")
)

const reasonNoneAvailable = "no units available"

// Notifier receives the notification payload after an event's equipment lines
// are decided. Composing and delivering the message is its job.
type Notifier interface {
	Notify(ctx context.Context, n model.Notification) error
}

// Planner plans and fulfills the equipment needs of events.
type Planner struct {
	log      *slog.Logger
	events   *sqlx.DB
	ledger   *ledger.Ledger
	catalog  *catalog.Service
	notifier Notifier
	metrics  *metrics.Metrics
	now      func() time.Time
}

// New creates a planner. events is the event store; ledger and catalog work
// on the custody store.
func New(log *slog.Logger, events *sqlx.DB, l *ledger.Ledger, c *catalog.Service, n Notifier, m *metrics.Metrics) *Planner {
	return &Planner{
		log:      log,
		events:   events,
		ledger:   l,
		catalog:  c,
		notifier: n,
		metrics:  m,
		now:      time.Now,
	}
}

// Plan reports, per requested item, how many units are needed, free and
// already held by the event. Lines naming the same item are merged.
func (p *Planner) Plan(ctx context.Context, eventID int64) (model.Plan, error) {
	const op = "planner.Plan"
	ctx, span := tracer.Start(ctx, op)
	defer span.End()

	event, err := p.loadEvent(ctx, eventID)
	if err != nil {
		return model.Plan{}, fmt.Errorf("%s: %w", op, err)
	}
	return p.plan(ctx, event)
}

func (p *Planner) plan(ctx context.Context, event *model.Event) (model.Plan, error) {
	summary, err := p.catalog.GetInventorySummary(ctx)
	if err != nil {
		return model.Plan{}, err
	}
	reserved, err := p.ledger.Reserved(ctx, event.ID)
	if err != nil {
		return model.Plan{}, err
	}
	return BuildPlan(event.ID, event.RequestLines(), summary, reserved), nil
}

// BuildPlan computes a plan from requested lines, the current inventory
// summary and the units the event already holds. A line is fulfilled when
// the event holds enough units, short when the free units cannot cover the
// rest, and available otherwise. Unknown items have no free units.
func BuildPlan(eventID int64, lines []model.RequestLine, summary map[string]model.Availability, reserved map[string]int) model.Plan {
	plan := model.Plan{
		EventID:     eventID,
		EventStatus: model.ReadinessReady,
		Lines:       []model.PlanLine{},
	}

	for _, need := range mergeNeeds(lines) {
		line := model.PlanLine{
			Name:      need.Name,
			Needed:    need.Quantity,
			Available: summary[need.Name].Available,
			Reserved:  reserved[need.Name],
		}

		switch {
		case line.Reserved >= line.Needed:
			line.Status = model.FulfillmentFulfilled
		case line.Available < line.Needed-line.Reserved:
			line.Status = model.FulfillmentShortage
			plan.EventStatus = model.ReadinessShortage
		default:
			line.Status = model.FulfillmentAvailable
		}

		plan.Lines = append(plan.Lines, line)
	}

	return plan
}

// Fulfill reserves an approved event's equipment, records the decision on
// each equipment line and notifies. Lines the ledger could not cover in full
// are approved for what was reserved; lines with nothing reserved are
// rejected. Lines without an item name or a positive quantity are rejected
// without reaching the ledger.
func (p *Planner) Fulfill(ctx context.Context, eventID int64) (*model.FulfillmentResult, error) {
	const op = "planner.Fulfill"
	ctx, span := tracer.Start(ctx, op)
	defer span.End()
	span.SetAttributes(attribute.Int64("event.id", eventID))

	log := p.log.With(slog.String("op", op), slog.Int64("event_id", eventID))

	event, err := p.loadEvent(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if event.Status != model.EventApproved && event.Status != model.EventOngoing {
		return nil, fmt.Errorf("%s: %w: status %s", op, ErrNotApproved, event.Status)
	}

	reports, err := p.ledger.Reserve(ctx, eventID, event.RequestLines())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	plan, err := p.plan(ctx, event)
	if err != nil {
		log.Error("failed to plan after reserving", sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	units, ids, err := p.held(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	before := event.Equipment
	after := Annotate(before, units, ids, reasons(reports), true)

	if err := store.UpdateEquipment(ctx, p.events, eventID, after); err != nil {
		// The ledger already holds the claims; Reconcile repairs the mirror.
		log.Error("failed to write equipment decisions", sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	event.Equipment = after

	p.notify(ctx, log, model.NotificationFulfilled, event, plan.EventStatus, reports, before, after)

	log.Info("fulfilled event", slog.String("readiness", string(plan.EventStatus)))
	return &model.FulfillmentResult{Reports: reports, Plan: plan, Event: event}, nil
}

// Reject releases everything the event holds and marks every equipment line
// rejected with the given reason.
func (p *Planner) Reject(ctx context.Context, eventID int64, reason string) (*model.Event, error) {
	const op = "planner.Reject"
	ctx, span := tracer.Start(ctx, op)
	defer span.End()

	log := p.log.With(slog.String("op", op), slog.Int64("event_id", eventID))

	if reason == "" {
		return nil, fmt.Errorf("%s: %w", op, ErrNoReason)
	}

	event, err := p.loadEvent(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if _, err := p.ledger.Release(ctx, eventID); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	before := event.Equipment
	after := make([]model.EquipmentLine, len(before))
	for i, line := range before {
		after[i] = model.EquipmentLine{
			Name:            line.Name,
			QtyNeeded:       line.QtyNeeded,
			Status:          model.LineRejected,
			RejectionReason: reason,
		}
	}

	if err := store.UpdateEquipment(ctx, p.events, eventID, after); err != nil {
		log.Error("failed to write rejection", sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	event.Equipment = after

	readiness := model.ReadinessReady
	if len(after) > 0 {
		readiness = model.ReadinessShortage
	}
	p.notify(ctx, log, model.NotificationRejected, event, readiness, nil, before, after)

	log.Info("rejected event equipment", slog.String("reason", reason))
	return event, nil
}

// Reconcile recomputes an event's plan and rewrites its equipment lines from
// what the ledger actually holds. Lines that were never decided and hold
// nothing are left alone, as are rejected lines that hold nothing. A
// notification is sent only if a line changed.
func (p *Planner) Reconcile(ctx context.Context, eventID int64) (model.Plan, error) {
	const op = "planner.Reconcile"
	ctx, span := tracer.Start(ctx, op)
	defer span.End()

	log := p.log.With(slog.String("op", op), slog.Int64("event_id", eventID))

	event, err := p.loadEvent(ctx, eventID)
	if err != nil {
		return model.Plan{}, fmt.Errorf("%s: %w", op, err)
	}

	plan, err := p.plan(ctx, event)
	if err != nil {
		return model.Plan{}, fmt.Errorf("%s: %w", op, err)
	}

	units, ids, err := p.held(ctx, eventID)
	if err != nil {
		return model.Plan{}, fmt.Errorf("%s: %w", op, err)
	}

	before := event.Equipment
	after := Annotate(before, units, ids, nil, false)
	if equalLines(before, after) {
		return plan, nil
	}

	if err := store.UpdateEquipment(ctx, p.events, eventID, after); err != nil {
		log.Error("failed to rewrite equipment mirror", sl.Err(err))
		return model.Plan{}, fmt.Errorf("%s: %w", op, err)
	}
	event.Equipment = after

	p.notify(ctx, log, model.NotificationReconciled, event, plan.EventStatus, nil, before, after)

	log.Info("reconciled equipment mirror")
	return plan, nil
}

// Annotate returns a copy of lines with decisions derived from the units the
// event holds per item and the asset claim IDs backing them. Held units are
// handed out to lines in order, so duplicate lines share them. Items are
// matched by normalized name.
//
// With decide set, every line gets a decision: approved for what it holds,
// rejected (with the line's Problem or the reason from reasons, if any) when
// it holds nothing.
// Without it, lines holding nothing keep their current decision unless they
// were approved, in which case they are rejected.
func Annotate(lines []model.EquipmentLine, units map[string]int, ids map[string][]int64, reasons map[string]string, decide bool) []model.EquipmentLine {
	remaining := make(map[string]int, len(units))
	for name, n := range units {
		remaining[name] = n
	}
	remainingIDs := make(map[string][]int64, len(ids))
	for name, list := range ids {
		remainingIDs[name] = list
	}

	out := make([]model.EquipmentLine, len(lines))
	for i, line := range lines {
		name := model.NormalizeName(line.Name)
		qty := min(max(line.QtyNeeded, 0), remaining[name])
		remaining[name] -= qty

		next := model.EquipmentLine{Name: line.Name, QtyNeeded: line.QtyNeeded}

		if qty > 0 {
			next.Status = model.LineApproved
			next.ApprovedQty = qty
			if list := remainingIDs[name]; len(list) > 0 {
				take := min(qty, len(list))
				next.ReservationIDs = slices.Clone(list[:take])
				remainingIDs[name] = list[take:]
			}
			out[i] = next
			continue
		}

		switch {
		case decide:
			next.Status = model.LineRejected
			next.RejectionReason = reasonNoneAvailable
			if r := line.Problem(); r != "" {
				next.RejectionReason = r
			} else if r := reasons[name]; r != "" {
				next.RejectionReason = r
			}
		case line.Status == model.LineApproved:
			next.Status = model.LineRejected
			next.RejectionReason = reasonNoneAvailable
		default:
			next = line
			next.ReservationIDs = nil
			next.ApprovedQty = 0
		}
		out[i] = next
	}
	return out
}

func (p *Planner) loadEvent(ctx context.Context, eventID int64) (*model.Event, error) {
	event, err := store.GetEvent(ctx, p.events, eventID)
	if err != nil {
		return nil, err
	}
	if event == nil || event.DeletedAt != nil {
		return nil, fmt.Errorf("event %d: %w", eventID, ErrEventNotFound)
	}
	return event, nil
}

func (p *Planner) held(ctx context.Context, eventID int64) (map[string]int, map[string][]int64, error) {
	units, err := p.ledger.Reserved(ctx, eventID)
	if err != nil {
		return nil, nil, err
	}
	ids, err := p.ledger.ReservationIDs(ctx, eventID)
	if err != nil {
		return nil, nil, err
	}
	return units, ids, nil
}

func (p *Planner) notify(ctx context.Context, log *slog.Logger, kind string, event *model.Event, readiness model.EventReadiness, reports []model.ReservationReport, before, after []model.EquipmentLine) {
	if p.notifier == nil {
		return
	}

	changes := make([]model.LineChange, len(after))
	for i := range after {
		var b model.EquipmentLine
		if i < len(before) {
			b = before[i]
		}
		changes[i] = model.LineChange{Before: b, After: after[i]}
	}

	n := model.Notification{
		ID:         uuid.NewString(),
		Kind:       kind,
		EventID:    event.ID,
		EventTitle: event.Title,
		Department: event.Department,
		Readiness:  readiness,
		Reports:    reports,
		Lines:      changes,
		CreatedAt:  p.now().UTC(),
	}

	if err := p.notifier.Notify(ctx, n); err != nil {
		p.metrics.Notifications.WithLabelValues("failed").Inc()
		log.Error("failed to send notification", slog.String("kind", kind), sl.Err(err))
		return
	}
	p.metrics.Notifications.WithLabelValues("sent").Inc()
}

func reasons(reports []model.ReservationReport) map[string]string {
	out := make(map[string]string, len(reports))
	for _, r := range reports {
		if r.Error != "" {
			out[model.NormalizeName(r.Name)] = r.Error
		}
	}
	return out
}

func mergeNeeds(lines []model.RequestLine) []model.RequestLine {
	var merged []model.RequestLine
	index := make(map[string]int, len(lines))
	for _, line := range lines {
		name := model.NormalizeName(line.Name)
		if name == "" || line.Quantity < 1 {
			continue
		}
		if j, ok := index[name]; ok {
			merged[j].Quantity += line.Quantity
			continue
		}
		index[name] = len(merged)
		merged = append(merged, model.RequestLine{Name: name, Quantity: line.Quantity})
	}
	return merged
}

func equalLines(a, b []model.EquipmentLine) bool {
	return slices.EqualFunc(a, b, func(x, y model.EquipmentLine) bool {
		return x.Name == y.Name &&
			x.QtyNeeded == y.QtyNeeded &&
			x.Status == y.Status &&
			x.ApprovedQty == y.ApprovedQty &&
			x.RejectionReason == y.RejectionReason &&
			slices.Equal(x.ReservationIDs, y.ReservationIDs)
	})
}
