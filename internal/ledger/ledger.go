// Package ledger is the reservation ledger: the only writer of asset claims
// and consumable claims in the custody store.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/erazemk/oprema/internal/lib/logger/sl"
	"github.com/erazemk/oprema/internal/metrics"
	"github.com/erazemk/oprema/internal/model"
	"github.com/erazemk/oprema/internal/store"
)

var tracer = otel.Tracer("github.com/erazemk/oprema/internal/ledger")

// ErrInvalidLine is returned by Reserve when the request itself is malformed:
// a non-positive event ID, an empty item name or a quantity below one.
var ErrInvalidLine = errors.New("invalid reservation line")

const (
	defaultAttempts  = 4
	defaultBaseDelay = 20 * time.Millisecond
)

// Ledger claims and releases custody-store units for events.
type Ledger struct {
	log     *slog.Logger
	db      *sqlx.DB
	metrics *metrics.Metrics

	attempts  int
	baseDelay time.Duration
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithRetry bounds how often a line that lost a claim race is retried.
func WithRetry(attempts int, baseDelay time.Duration) Option {
	return func(l *Ledger) {
		if attempts > 0 {
			l.attempts = attempts
		}
		if baseDelay >= 0 {
			l.baseDelay = baseDelay
		}
	}
}

// New creates a ledger over the custody store.
func New(log *slog.Logger, custody *sqlx.DB, m *metrics.Metrics, opts ...Option) *Ledger {
	l := &Ledger{
		log:       log,
		db:        custody,
		metrics:   m,
		attempts:  defaultAttempts,
		baseDelay: defaultBaseDelay,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Reserve claims units for each request line on behalf of an event.
//
// Allocation is best effort and per line: each line runs in its own
// transaction, a line that fails is rolled back alone and reported with its
// error, and the remaining lines proceed. Units the event already holds count
// toward a line, so reserving the same lines twice claims nothing new. Lines
// naming the same item are merged.
//
// The returned error is non-nil only for malformed input (ErrInvalidLine).
func (l *Ledger) Reserve(ctx context.Context, eventID int64, lines []model.RequestLine) ([]model.ReservationReport, error) {
	const op = "ledger.Reserve"
	ctx, span := tracer.Start(ctx, op)
	defer span.End()
	span.SetAttributes(attribute.Int64("event.id", eventID), attribute.Int("lines", len(lines)))

	log := l.log.With(slog.String("op", op), slog.Int64("event_id", eventID))

	merged, err := mergeLines(eventID, lines)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	reports := make([]model.ReservationReport, 0, len(merged))
	for _, line := range merged {
		report := l.reserveLine(ctx, log, eventID, line)
		reports = append(reports, report)
	}

	return reports, nil
}

func (l *Ledger) reserveLine(ctx context.Context, log *slog.Logger, eventID int64, line model.RequestLine) model.ReservationReport {
	report := model.ReservationReport{Name: line.Name, Requested: line.Quantity}
	log = log.With(slog.String("item", line.Name), slog.Int("qty", line.Quantity))

	fail := func(err error) model.ReservationReport {
		log.Warn("reservation line failed", sl.Err(err))
		l.metrics.ReservationLines.WithLabelValues(metrics.LineFailed).Inc()
		report.Reserved = 0
		report.ReservationIDs = nil
		report.Shortfall = line.Quantity
		report.Error = err.Error()
		return report
	}

	kind, found, err := store.ItemKindByName(ctx, l.db, line.Name)
	if err != nil {
		return fail(err)
	}
	if !found {
		return fail(fmt.Errorf("unknown item %q", line.Name))
	}

	var (
		units, added, released int
		ids                    []int64
	)
	attempt := func(ctx context.Context) error {
		var err error
		if kind == model.ItemKindAsset {
			units, added, released, ids, err = l.claimAssets(ctx, eventID, line)
		} else {
			units, added, released, err = l.claimConsumables(ctx, eventID, line)
		}
		return err
	}
	onRetry := func(n int, err error) {
		l.metrics.ReservationRetries.Inc()
		log.Info("retrying reservation line", slog.Int("attempt", n+1), sl.Err(err))
	}

	if err := retryWithBackoff(ctx, l.attempts, l.baseDelay, attempt, onRetry); err != nil {
		return fail(err)
	}

	// Issued units cannot be trimmed, so the event may still hold more than
	// it asks for; the report never claims more than was requested.
	report.Reserved = min(units, line.Quantity)
	report.ReservationIDs = ids
	report.Shortfall = line.Quantity - report.Reserved

	if released > 0 {
		l.metrics.ReleasedUnits.Add(float64(released))
		log.Info("released units beyond the request", slog.Int("released", released))
	}
	l.metrics.ReservedUnits.WithLabelValues(string(kind)).Add(float64(added))
	if report.Shortfall > 0 {
		l.metrics.ReservationLines.WithLabelValues(metrics.LinePartial).Inc()
		log.Info("reservation line short", slog.Int("reserved", report.Reserved), slog.Int("shortfall", report.Shortfall))
	} else {
		l.metrics.ReservationLines.WithLabelValues(metrics.LineFull).Inc()
	}

	return report
}

// claimAssets brings the event's claims on the line's item to the requested
// quantity in one transaction: it claims free assets when the event holds too
// few and drops its newest reserved claims when it holds too many. It returns
// the units held afterwards, the units added and released, and the IDs of the
// event's active claims on the item.
func (l *Ledger) claimAssets(ctx context.Context, eventID int64, line model.RequestLine) (units, added, released int, ids []int64, err error) {
	tx, err := l.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, 0, 0, nil, fmt.Errorf("beginning transaction: %w: %w", store.ErrDataSource, err)
	}
	defer tx.Rollback()

	ids, err = store.EventAssetClaimIDs(ctx, tx, eventID, line.Name)
	if err != nil {
		return 0, 0, 0, nil, err
	}

	switch held := len(ids); {
	case held > line.Quantity:
		n, err := store.TrimReservations(ctx, tx, eventID, line.Name, held-line.Quantity)
		if err != nil {
			return 0, 0, 0, nil, err
		}
		released = int(n)
		if ids, err = store.EventAssetClaimIDs(ctx, tx, eventID, line.Name); err != nil {
			return 0, 0, 0, nil, err
		}
	case held < line.Quantity:
		free, err := store.FreeAssetIDs(ctx, tx, line.Name, line.Quantity-held)
		if err != nil {
			return 0, 0, 0, nil, err
		}
		for _, assetID := range free {
			id, err := store.InsertReservation(ctx, tx, eventID, assetID)
			if err != nil {
				return 0, 0, 0, nil, err
			}
			ids = append(ids, id)
		}
		added = len(free)
	}

	if err := tx.Commit(); err != nil {
		return 0, 0, 0, nil, fmt.Errorf("committing reservation: %w: %w", store.ErrDataSource, err)
	}
	return len(ids), added, released, ids, nil
}

// claimConsumables brings the event's claims on the line's consumable to the
// requested quantity: shortfalls are debited from the soonest-expiring lots
// first, and excess is credited back to the lots of the newest claims.
func (l *Ledger) claimConsumables(ctx context.Context, eventID int64, line model.RequestLine) (units, added, released int, err error) {
	tx, err := l.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("beginning transaction: %w: %w", store.ErrDataSource, err)
	}
	defer tx.Rollback()

	claims, err := store.EventConsumableClaims(ctx, tx, eventID, line.Name)
	if err != nil {
		return 0, 0, 0, err
	}
	held := 0
	for _, c := range claims {
		held += c.Quantity
	}

	switch {
	case held > line.Quantity:
		excess := held - line.Quantity
		for i := len(claims) - 1; i >= 0 && excess > 0; i-- {
			c := claims[i]
			take := min(c.Quantity, excess)
			if err := store.CreditLot(ctx, tx, c.LotID, take); err != nil {
				return 0, 0, 0, err
			}
			if err := store.ShrinkConsumableClaim(ctx, tx, c, take); err != nil {
				return 0, 0, 0, err
			}
			excess -= take
			released += take
		}
	case held < line.Quantity:
		lots, err := store.AvailableLots(ctx, tx, line.Name)
		if err != nil {
			return 0, 0, 0, err
		}

		need := line.Quantity - held
		for _, lot := range lots {
			if need == 0 {
				break
			}
			take := min(lot.Quantity, need)
			if err := store.DebitLot(ctx, tx, lot.ID, take); err != nil {
				return 0, 0, 0, err
			}
			if _, err := store.InsertConsumableClaim(ctx, tx, eventID, lot.ID, take); err != nil {
				return 0, 0, 0, err
			}
			need -= take
			added += take
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, 0, 0, fmt.Errorf("committing consumable claim: %w: %w", store.ErrDataSource, err)
	}
	return held + added - released, added, released, nil
}

// Release drops every active claim of an event: reserved and issued asset
// claims are deleted and consumable claims are credited back to their lots.
// Returned claims are kept. Releasing an event with nothing held is a no-op.
// Asset custody is never touched. It returns the number of claims released.
func (l *Ledger) Release(ctx context.Context, eventID int64) (int, error) {
	const op = "ledger.Release"
	ctx, span := tracer.Start(ctx, op)
	defer span.End()
	span.SetAttributes(attribute.Int64("event.id", eventID))

	log := l.log.With(slog.String("op", op), slog.Int64("event_id", eventID))

	tx, err := l.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("%s: beginning transaction: %w: %w", op, store.ErrDataSource, err)
	}
	defer tx.Rollback()

	claims, err := store.ListConsumableClaims(ctx, tx, eventID)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	for _, c := range claims {
		if err := store.CreditLot(ctx, tx, c.LotID, c.Quantity); err != nil {
			return 0, fmt.Errorf("%s: %w", op, err)
		}
	}
	if _, err := store.DeleteConsumableClaims(ctx, tx, eventID); err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	n, err := store.DeleteActiveReservations(ctx, tx, eventID)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	if err := tx.Commit(); err != nil {
		span.RecordError(err)
		log.Error("failed to commit release", sl.Err(err))
		return 0, fmt.Errorf("%s: committing: %w: %w", op, store.ErrDataSource, err)
	}

	released := int(n) + len(claims)
	l.metrics.ReleasedUnits.Add(float64(released))
	if released > 0 {
		log.Info("released claims", slog.Int64("assets", n), slog.Int("consumable_claims", len(claims)))
	}
	return released, nil
}

// Issue hands an event's reserved assets out: reserved claims become issued.
// Issued claims keep counting as in use. It returns the number of claims moved.
func (l *Ledger) Issue(ctx context.Context, eventID int64) (int, error) {
	const op = "ledger.Issue"
	ctx, span := tracer.Start(ctx, op)
	defer span.End()

	n, err := store.TransitionReservations(ctx, l.db, eventID, model.ClaimReserved, model.ClaimIssued)
	if err != nil {
		span.RecordError(err)
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	l.log.Info("issued claims", slog.String("op", op), slog.Int64("event_id", eventID), slog.Int64("count", n))
	return int(n), nil
}

// Return closes an event's issued claims. Returned asset claims are kept as
// history and free their assets; outstanding consumable claims are treated as
// consumed and dropped without crediting the lots.
func (l *Ledger) Return(ctx context.Context, eventID int64) (int, error) {
	const op = "ledger.Return"
	ctx, span := tracer.Start(ctx, op)
	defer span.End()

	tx, err := l.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("%s: beginning transaction: %w: %w", op, store.ErrDataSource, err)
	}
	defer tx.Rollback()

	n, err := store.TransitionReservations(ctx, tx, eventID, model.ClaimIssued, model.ClaimReturned)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	consumed, err := store.DeleteConsumableClaims(ctx, tx, eventID)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	if err := tx.Commit(); err != nil {
		span.RecordError(err)
		return 0, fmt.Errorf("%s: committing: %w: %w", op, store.ErrDataSource, err)
	}

	l.log.Info("returned claims",
		slog.String("op", op),
		slog.Int64("event_id", eventID),
		slog.Int64("assets", n),
		slog.Int64("consumed", consumed),
	)
	return int(n), nil
}

// ListByEvent returns every ledger row of an event.
func (l *Ledger) ListByEvent(ctx context.Context, eventID int64) (*model.EventLedger, error) {
	const op = "ledger.ListByEvent"

	reservations, err := store.ListReservations(ctx, l.db, eventID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	consumables, err := store.ListConsumableClaims(ctx, l.db, eventID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if reservations == nil {
		reservations = []model.Reservation{}
	}
	if consumables == nil {
		consumables = []model.ConsumableClaim{}
	}
	return &model.EventLedger{EventID: eventID, Reservations: reservations, Consumables: consumables}, nil
}

// Reserved returns the units an event actively holds per item name.
func (l *Ledger) Reserved(ctx context.Context, eventID int64) (map[string]int, error) {
	units, err := store.ActiveUnitsByName(ctx, l.db, eventID)
	if err != nil {
		return nil, fmt.Errorf("ledger.Reserved: %w", err)
	}
	return units, nil
}

// ReservationIDs returns the IDs of an event's active asset claims per item
// name.
func (l *Ledger) ReservationIDs(ctx context.Context, eventID int64) (map[string][]int64, error) {
	ids, err := store.ActiveReservationIDsByName(ctx, l.db, eventID)
	if err != nil {
		return nil, fmt.Errorf("ledger.ReservationIDs: %w", err)
	}
	return ids, nil
}

// mergeLines validates the request and merges lines naming the same item,
// keeping the order in which names first appear.
func mergeLines(eventID int64, lines []model.RequestLine) ([]model.RequestLine, error) {
	if eventID < 1 {
		return nil, fmt.Errorf("%w: event id %d", ErrInvalidLine, eventID)
	}

	var merged []model.RequestLine
	index := make(map[string]int, len(lines))
	for i, line := range lines {
		name := model.NormalizeName(line.Name)
		if name == "" {
			return nil, fmt.Errorf("%w: line %d has no item name", ErrInvalidLine, i)
		}
		if line.Quantity < 1 {
			return nil, fmt.Errorf("%w: line %d (%s) asks for %d", ErrInvalidLine, i, name, line.Quantity)
		}

		if j, ok := index[name]; ok {
			merged[j].Quantity += line.Quantity
			continue
		}
		index[name] = len(merged)
		merged = append(merged, model.RequestLine{Name: name, Quantity: line.Quantity})
	}
	return merged, nil
}
