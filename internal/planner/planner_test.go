package planner

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erazemk/oprema/internal/catalog"
	"github.com/erazemk/oprema/internal/db"
	"github.com/erazemk/oprema/internal/ledger"
	"github.com/erazemk/oprema/internal/metrics"
	"github.com/erazemk/oprema/internal/model"
	"github.com/erazemk/oprema/internal/store"
)

type recordingNotifier struct {
	mu   sync.Mutex
	sent []model.Notification
	err  error
}

func (r *recordingNotifier) Notify(_ context.Context, n model.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.sent = append(r.sent, n)
	return nil
}

type fixture struct {
	planner  *Planner
	ledger   *ledger.Ledger
	custody  *sqlx.DB
	events   *sqlx.DB
	notifier *recordingNotifier
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	custody := db.NewTestDB(t, db.Custody)
	events := db.NewTestDB(t, db.Events)
	m := metrics.New()

	l := ledger.New(log, custody, m, ledger.WithRetry(3, time.Millisecond))
	c := catalog.New(log, custody)
	n := &recordingNotifier{}

	p := New(log, events, l, c, n, m)
	p.now = func() time.Time { return time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC) }

	return &fixture{planner: p, ledger: l, custody: custody, events: events, notifier: n}
}

func (f *fixture) assets(t *testing.T, name string, n int) {
	t.Helper()
	ctx := context.Background()
	item, err := store.CreateItemDefinition(ctx, f.custody, name, "Test", model.ItemKindAsset)
	require.NoError(t, err)
	for range n {
		_, err := store.RegisterAsset(ctx, f.custody, item.ID, "")
		require.NoError(t, err)
	}
}

func (f *fixture) event(t *testing.T, status model.EventStatus, lines ...model.EquipmentLine) *model.Event {
	t.Helper()
	start := time.Date(2026, 1, 10, 14, 0, 0, 0, time.UTC)
	e, err := store.CreateEvent(context.Background(), f.events, model.Event{
		Title:      "Spring concert",
		Venue:      "Auditorium",
		Start:      start,
		End:        start.Add(3 * time.Hour),
		Status:     status,
		Type:       model.EventTypeCultural,
		Department: "Music",
		Equipment:  lines,
	})
	require.NoError(t, err)
	return e
}

func TestBuildPlan(t *testing.T) {
	summary := map[string]model.Availability{
		"Chair":     {Total: 10, Available: 7, InUse: 3},
		"Projector": {Total: 2, Available: 0, InUse: 2},
	}
	reserved := map[string]int{"Projector": 2}

	plan := BuildPlan(4, []model.RequestLine{
		{Name: "Chair", Quantity: 5},
		{Name: "Projector", Quantity: 2},
		{Name: "Chair", Quantity: 4},
		{Name: "Unicorn", Quantity: 1},
	}, summary, reserved)

	assert.Equal(t, int64(4), plan.EventID)
	assert.Equal(t, model.ReadinessShortage, plan.EventStatus)
	assert.Equal(t, []model.PlanLine{
		{Name: "Chair", Needed: 9, Available: 7, Reserved: 0, Status: model.FulfillmentShortage},
		{Name: "Projector", Needed: 2, Available: 0, Reserved: 2, Status: model.FulfillmentFulfilled},
		{Name: "Unicorn", Needed: 1, Available: 0, Reserved: 0, Status: model.FulfillmentShortage},
	}, plan.Lines)
}

func TestBuildPlanReady(t *testing.T) {
	plan := BuildPlan(1, []model.RequestLine{{Name: "Chair", Quantity: 5}},
		map[string]model.Availability{"Chair": {Total: 10, Available: 2}},
		map[string]int{"Chair": 3})

	assert.Equal(t, model.ReadinessReady, plan.EventStatus)
	assert.Equal(t, model.FulfillmentAvailable, plan.Lines[0].Status)
}

func TestBuildPlanNormalizesNames(t *testing.T) {
	plan := BuildPlan(1, []model.RequestLine{
		{Name: " Chair", Quantity: 2},
		{Name: "Chair ", Quantity: 3},
		{Name: "Projector", Quantity: 0},
	}, map[string]model.Availability{"Chair": {Total: 10, Available: 4}},
		map[string]int{"Chair": 1})

	assert.Equal(t, []model.PlanLine{
		{Name: "Chair", Needed: 5, Available: 4, Reserved: 1, Status: model.FulfillmentAvailable},
	}, plan.Lines)
}

func TestBuildPlanIsDeterministic(t *testing.T) {
	lines := []model.RequestLine{{Name: "B", Quantity: 1}, {Name: "A", Quantity: 2}}
	summary := map[string]model.Availability{"A": {Available: 1}, "B": {Available: 5}}

	first := BuildPlan(1, lines, summary, nil)
	for range 10 {
		assert.Equal(t, first, BuildPlan(1, lines, summary, nil))
	}
	assert.Equal(t, "B", first.Lines[0].Name)
}

func TestFulfill(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.assets(t, "Chair", 10)
	f.assets(t, "Projector", 1)

	e := f.event(t, model.EventApproved,
		model.EquipmentLine{Name: "Chair", QtyNeeded: 6},
		model.EquipmentLine{Name: "Projector", QtyNeeded: 2},
		model.EquipmentLine{Name: "Lectern", QtyNeeded: 1},
	)

	result, err := f.planner.Fulfill(ctx, e.ID)
	require.NoError(t, err)

	require.Len(t, result.Reports, 3)
	assert.Equal(t, 6, result.Reports[0].Reserved)
	assert.Equal(t, 1, result.Reports[1].Shortfall)
	assert.Equal(t, model.ReadinessShortage, result.Plan.EventStatus)

	lines := result.Event.Equipment
	assert.Equal(t, model.LineApproved, lines[0].Status)
	assert.Equal(t, 6, lines[0].ApprovedQty)
	assert.Len(t, lines[0].ReservationIDs, 6)
	assert.Equal(t, model.LineApproved, lines[1].Status)
	assert.Equal(t, 1, lines[1].ApprovedQty)
	assert.Equal(t, model.LineRejected, lines[2].Status)
	assert.NotEmpty(t, lines[2].RejectionReason)

	// The mirror is persisted in the event store.
	stored, err := store.GetEvent(ctx, f.events, e.ID)
	require.NoError(t, err)
	assert.Equal(t, lines, stored.Equipment)

	require.Len(t, f.notifier.sent, 1)
	n := f.notifier.sent[0]
	assert.Equal(t, model.NotificationFulfilled, n.Kind)
	assert.Equal(t, "Music", n.Department)
	require.Len(t, n.Lines, 3)
	assert.Empty(t, n.Lines[0].Before.Status)
	assert.Equal(t, model.LineApproved, n.Lines[0].After.Status)
}

func TestFulfillRejectsLinesWithoutQuantity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.assets(t, "Chair", 10)
	f.assets(t, "Projector", 2)

	e := f.event(t, model.EventApproved,
		model.EquipmentLine{Name: "Chair", QtyNeeded: 5},
		model.EquipmentLine{Name: "Projector", QtyNeeded: 0},
		model.EquipmentLine{Name: " ", QtyNeeded: 2},
	)

	result, err := f.planner.Fulfill(ctx, e.ID)
	require.NoError(t, err)

	require.Len(t, result.Reports, 1)
	assert.Equal(t, 5, result.Reports[0].Reserved)
	assert.Equal(t, model.ReadinessReady, result.Plan.EventStatus)
	require.Len(t, result.Plan.Lines, 1)

	lines := result.Event.Equipment
	require.Len(t, lines, 3)
	assert.Equal(t, model.LineApproved, lines[0].Status)
	assert.Equal(t, 5, lines[0].ApprovedQty)
	assert.Equal(t, model.LineRejected, lines[1].Status)
	assert.Equal(t, model.LineInvalidQuantity, lines[1].RejectionReason)
	assert.Equal(t, model.LineRejected, lines[2].Status)
	assert.Equal(t, model.LineMissingName, lines[2].RejectionReason)

	held, err := f.ledger.Reserved(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"Chair": 5}, held)
}

func TestFulfillMatchesPaddedItemNames(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.assets(t, "Chair", 10)

	e := f.event(t, model.EventApproved, model.EquipmentLine{Name: "Chair ", QtyNeeded: 5})

	result, err := f.planner.Fulfill(ctx, e.ID)
	require.NoError(t, err)

	assert.Equal(t, model.ReadinessReady, result.Plan.EventStatus)
	assert.Equal(t, []model.PlanLine{
		{Name: "Chair", Needed: 5, Available: 5, Reserved: 5, Status: model.FulfillmentFulfilled},
	}, result.Plan.Lines)

	line := result.Event.Equipment[0]
	assert.Equal(t, "Chair ", line.Name)
	assert.Equal(t, model.LineApproved, line.Status)
	assert.Equal(t, 5, line.ApprovedQty)
	assert.Len(t, line.ReservationIDs, 5)

	// Reconciling finds nothing to repair.
	_, err = f.planner.Reconcile(ctx, e.ID)
	require.NoError(t, err)
	assert.Len(t, f.notifier.sent, 1)
}

func TestFulfillTwiceDoesNotDoubleClaim(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.assets(t, "Chair", 10)
	e := f.event(t, model.EventApproved, model.EquipmentLine{Name: "Chair", QtyNeeded: 4})

	first, err := f.planner.Fulfill(ctx, e.ID)
	require.NoError(t, err)
	second, err := f.planner.Fulfill(ctx, e.ID)
	require.NoError(t, err)

	assert.Equal(t, first.Event.Equipment, second.Event.Equipment)
	held, err := f.ledger.Reserved(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, held["Chair"])
}

func TestFulfillRequiresApprovedEvent(t *testing.T) {
	f := newFixture(t)
	e := f.event(t, model.EventPending, model.EquipmentLine{Name: "Chair", QtyNeeded: 1})

	_, err := f.planner.Fulfill(context.Background(), e.ID)
	assert.ErrorIs(t, err, ErrNotApproved)

	_, err = f.planner.Fulfill(context.Background(), 999)
	assert.ErrorIs(t, err, ErrEventNotFound)
}

func TestFulfillSurvivesNotifierFailure(t *testing.T) {
	f := newFixture(t)
	f.assets(t, "Chair", 2)
	f.notifier.err = errors.New("broker down")
	e := f.event(t, model.EventApproved, model.EquipmentLine{Name: "Chair", QtyNeeded: 2})

	result, err := f.planner.Fulfill(context.Background(), e.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ReadinessReady, result.Plan.EventStatus)
}

func TestReject(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.assets(t, "Chair", 5)
	e := f.event(t, model.EventApproved, model.EquipmentLine{Name: "Chair", QtyNeeded: 5})

	_, err := f.planner.Fulfill(ctx, e.ID)
	require.NoError(t, err)

	_, err = f.planner.Reject(ctx, e.ID, "")
	assert.ErrorIs(t, err, ErrNoReason)

	rejected, err := f.planner.Reject(ctx, e.ID, "venue closed for maintenance")
	require.NoError(t, err)
	assert.Equal(t, model.LineRejected, rejected.Equipment[0].Status)
	assert.Equal(t, "venue closed for maintenance", rejected.Equipment[0].RejectionReason)
	assert.Zero(t, rejected.Equipment[0].ApprovedQty)
	assert.Empty(t, rejected.Equipment[0].ReservationIDs)

	held, err := f.ledger.Reserved(ctx, e.ID)
	require.NoError(t, err)
	assert.Empty(t, held)

	require.Len(t, f.notifier.sent, 2)
	assert.Equal(t, model.NotificationRejected, f.notifier.sent[1].Kind)
}

func TestReconcileRepairsMirror(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.assets(t, "Chair", 5)
	e := f.event(t, model.EventApproved, model.EquipmentLine{Name: "Chair", QtyNeeded: 3})

	// Simulate a crash between the ledger write and the event-store write.
	reports, err := f.ledger.Reserve(ctx, e.ID, e.RequestLines())
	require.NoError(t, err)
	require.Equal(t, 3, reports[0].Reserved)

	plan, err := f.planner.Reconcile(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, model.FulfillmentFulfilled, plan.Lines[0].Status)

	stored, err := store.GetEvent(ctx, f.events, e.ID)
	require.NoError(t, err)
	assert.Equal(t, model.LineApproved, stored.Equipment[0].Status)
	assert.Equal(t, reports[0].ReservationIDs, stored.Equipment[0].ReservationIDs)
	require.Len(t, f.notifier.sent, 1)
	assert.Equal(t, model.NotificationReconciled, f.notifier.sent[0].Kind)

	// Nothing changed since; no second write or notification.
	_, err = f.planner.Reconcile(ctx, e.ID)
	require.NoError(t, err)
	assert.Len(t, f.notifier.sent, 1)

	// Claims released behind the planner's back are reflected too.
	_, err = f.ledger.Release(ctx, e.ID)
	require.NoError(t, err)
	_, err = f.planner.Reconcile(ctx, e.ID)
	require.NoError(t, err)

	stored, _ = store.GetEvent(ctx, f.events, e.ID)
	assert.Equal(t, model.LineRejected, stored.Equipment[0].Status)
	assert.Empty(t, stored.Equipment[0].ReservationIDs)
}

func TestAnnotateSplitsHeldUnitsAcrossDuplicateLines(t *testing.T) {
	lines := []model.EquipmentLine{
		{Name: "Chair", QtyNeeded: 3},
		{Name: "Chair", QtyNeeded: 3},
	}

	got := Annotate(lines, map[string]int{"Chair": 4}, map[string][]int64{"Chair": {1, 2, 3, 4}}, nil, true)

	assert.Equal(t, 3, got[0].ApprovedQty)
	assert.Equal(t, []int64{1, 2, 3}, got[0].ReservationIDs)
	assert.Equal(t, 1, got[1].ApprovedQty)
	assert.Equal(t, []int64{4}, got[1].ReservationIDs)
	assert.Empty(t, lines[0].Status, "input must not be modified")
}

func TestAnnotateWithoutDecisionKeepsUndecidedLines(t *testing.T) {
	lines := []model.EquipmentLine{
		{Name: "Chair", QtyNeeded: 3},
		{Name: "Table", QtyNeeded: 1, Status: model.LineRejected, RejectionReason: "budget"},
	}

	got := Annotate(lines, nil, nil, nil, false)
	assert.Equal(t, lines, got)
}
