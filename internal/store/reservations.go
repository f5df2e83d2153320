package store

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/erazemk/oprema/internal/model"
)

// InsertReservation inserts a reserved claim on an asset for an event. A second
// active claim on the same asset is refused by the unique index and reported
// as ErrAssetAlreadyClaimed.
func InsertReservation(ctx context.Context, tx *sqlx.Tx, eventID, assetID int64) (int64, error) {
	var id int64
	err := tx.QueryRowxContext(ctx, tx.Rebind(
		`INSERT INTO reservations (event_id, asset_id, status) VALUES (?, ?, 'reserved') RETURNING id`),
		eventID, assetID,
	).Scan(&id)
	if isUniqueViolation(err) {
		return 0, fmt.Errorf("asset %d: %w", assetID, ErrAssetAlreadyClaimed)
	}
	if err != nil {
		return 0, sourceErr("inserting reservation", err)
	}
	return id, nil
}

// DeleteActiveReservations deletes the reserved and issued claims of an event.
// Returned claims are kept as history.
func DeleteActiveReservations(ctx context.Context, q sqlx.ExtContext, eventID int64) (int64, error) {
	res, err := q.ExecContext(ctx, q.Rebind(
		`DELETE FROM reservations WHERE event_id = ? AND status IN ('reserved', 'issued')`), eventID)
	if err != nil {
		return 0, sourceErr("deleting reservations", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, sourceErr("counting deleted reservations", err)
	}
	return n, nil
}

// TransitionReservations moves every claim of an event from one status to the
// next. The transition must be allowed by the claim state machine.
func TransitionReservations(ctx context.Context, q sqlx.ExtContext, eventID int64, from, to model.ClaimStatus) (int64, error) {
	if err := from.CheckTransition(to); err != nil {
		return 0, err
	}

	res, err := q.ExecContext(ctx, q.Rebind(
		`UPDATE reservations SET status = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE event_id = ? AND status = ?`),
		to, eventID, from)
	if err != nil {
		return 0, sourceErr("updating reservations", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, sourceErr("counting updated reservations", err)
	}
	return n, nil
}

// ListReservations returns all claims of an event, oldest first.
func ListReservations(ctx context.Context, q sqlx.ExtContext, eventID int64) ([]model.Reservation, error) {
	var reservations []model.Reservation
	err := sqlx.SelectContext(ctx, q, &reservations, q.Rebind(
		`SELECT r.id, r.event_id, r.asset_id, r.status, r.reserved_at, r.updated_at, d.name AS item_name
		 FROM reservations r
		 JOIN assets a ON a.id = r.asset_id
		 JOIN item_definitions d ON d.id = a.item_id
		 WHERE r.event_id = ?
		 ORDER BY r.id`), eventID)
	if err != nil {
		return nil, sourceErr("listing reservations", err)
	}
	return reservations, nil
}

// ActiveUnitsByName returns, per item name, how many units an event holds:
// active asset claims plus outstanding consumable claims.
func ActiveUnitsByName(ctx context.Context, q sqlx.ExtContext, eventID int64) (map[string]int, error) {
	var rows []struct {
		Name  string `db:"name"`
		Units int    `db:"units"`
	}
	err := sqlx.SelectContext(ctx, q, &rows, q.Rebind(
		`SELECT d.name AS name, COUNT(*) AS units
		 FROM reservations r
		 JOIN assets a ON a.id = r.asset_id
		 JOIN item_definitions d ON d.id = a.item_id
		 WHERE r.event_id = ? AND r.status IN ('reserved', 'issued')
		 GROUP BY d.name
		 UNION ALL
		 SELECT d.name AS name, SUM(c.quantity) AS units
		 FROM consumable_claims c
		 JOIN consumable_lots l ON l.id = c.lot_id
		 JOIN item_definitions d ON d.id = l.item_id
		 WHERE c.event_id = ?
		 GROUP BY d.name`), eventID, eventID)
	if err != nil {
		return nil, sourceErr("counting event units", err)
	}

	units := make(map[string]int, len(rows))
	for _, r := range rows {
		units[r.Name] += r.Units
	}
	return units, nil
}

// ActiveReservationIDsByName returns the active claim IDs of an event grouped
// by item name.
func ActiveReservationIDsByName(ctx context.Context, q sqlx.ExtContext, eventID int64) (map[string][]int64, error) {
	reservations, err := ListReservations(ctx, q, eventID)
	if err != nil {
		return nil, err
	}

	ids := make(map[string][]int64)
	for _, r := range reservations {
		if r.Status.Active() {
			ids[r.ItemName] = append(ids[r.ItemName], r.ID)
		}
	}
	return ids, nil
}

// InsertConsumableClaim records a quantity debited from a lot for an event.
func InsertConsumableClaim(ctx context.Context, tx *sqlx.Tx, eventID, lotID int64, quantity int) (int64, error) {
	var id int64
	err := tx.QueryRowxContext(ctx, tx.Rebind(
		`INSERT INTO consumable_claims (event_id, lot_id, quantity) VALUES (?, ?, ?) RETURNING id`),
		eventID, lotID, quantity,
	).Scan(&id)
	if err != nil {
		return 0, sourceErr("inserting consumable claim", err)
	}
	return id, nil
}

// ListConsumableClaims returns the outstanding consumable claims of an event.
func ListConsumableClaims(ctx context.Context, q sqlx.ExtContext, eventID int64) ([]model.ConsumableClaim, error) {
	var claims []model.ConsumableClaim
	err := sqlx.SelectContext(ctx, q, &claims, q.Rebind(
		`SELECT c.id, c.event_id, c.lot_id, c.quantity, c.claimed_at, d.name AS item_name
		 FROM consumable_claims c
		 JOIN consumable_lots l ON l.id = c.lot_id
		 JOIN item_definitions d ON d.id = l.item_id
		 WHERE c.event_id = ?
		 ORDER BY c.id`), eventID)
	if err != nil {
		return nil, sourceErr("listing consumable claims", err)
	}
	return claims, nil
}

// DeleteConsumableClaims deletes the outstanding consumable claims of an event.
func DeleteConsumableClaims(ctx context.Context, q sqlx.ExtContext, eventID int64) (int64, error) {
	res, err := q.ExecContext(ctx, q.Rebind(
		`DELETE FROM consumable_claims WHERE event_id = ?`), eventID)
	if err != nil {
		return 0, sourceErr("deleting consumable claims", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, sourceErr("counting deleted consumable claims", err)
	}
	return n, nil
}

// EventAssetClaimIDs returns the IDs of an event's active claims on assets of
// the named item.
func EventAssetClaimIDs(ctx context.Context, q sqlx.ExtContext, eventID int64, name string) ([]int64, error) {
	var ids []int64
	err := sqlx.SelectContext(ctx, q, &ids, q.Rebind(
		`SELECT r.id
		 FROM reservations r
		 JOIN assets a ON a.id = r.asset_id
		 JOIN item_definitions d ON d.id = a.item_id
		 WHERE r.event_id = ? AND d.name = ? AND r.status IN ('reserved', 'issued')
		 ORDER BY r.id`), eventID, name)
	if err != nil {
		return nil, sourceErr("listing event claims", err)
	}
	return ids, nil
}

// TrimReservations deletes the event's n most recent reserved (not yet
// issued) claims on assets of the named item and returns how many went.
func TrimReservations(ctx context.Context, tx *sqlx.Tx, eventID int64, name string, n int) (int64, error) {
	if n <= 0 {
		return 0, nil
	}
	res, err := tx.ExecContext(ctx, tx.Rebind(
		`DELETE FROM reservations WHERE id IN (
		   SELECT r.id
		   FROM reservations r
		   JOIN assets a ON a.id = r.asset_id
		   JOIN item_definitions d ON d.id = a.item_id
		   WHERE r.event_id = ? AND d.name = ? AND r.status = 'reserved'
		   ORDER BY r.id DESC
		   LIMIT ?)`), eventID, name, n)
	if err != nil {
		return 0, sourceErr("trimming reservations", err)
	}
	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, sourceErr("counting trimmed reservations", err)
	}
	return deleted, nil
}

// EventConsumableClaims returns an event's outstanding claims on the named
// consumable, oldest first.
func EventConsumableClaims(ctx context.Context, q sqlx.ExtContext, eventID int64, name string) ([]model.ConsumableClaim, error) {
	var claims []model.ConsumableClaim
	err := sqlx.SelectContext(ctx, q, &claims, q.Rebind(
		`SELECT c.id, c.event_id, c.lot_id, c.quantity, c.claimed_at, d.name AS item_name
		 FROM consumable_claims c
		 JOIN consumable_lots l ON l.id = c.lot_id
		 JOIN item_definitions d ON d.id = l.item_id
		 WHERE c.event_id = ? AND d.name = ?
		 ORDER BY c.id`), eventID, name)
	if err != nil {
		return nil, sourceErr("listing event consumable claims", err)
	}
	return claims, nil
}

// ShrinkConsumableClaim lowers a claim by quantity, deleting it when nothing
// would be left. The caller credits the quantity back to the claim's lot.
func ShrinkConsumableClaim(ctx context.Context, tx *sqlx.Tx, claim model.ConsumableClaim, quantity int) error {
	if quantity >= claim.Quantity {
		if _, err := tx.ExecContext(ctx, tx.Rebind(
			`DELETE FROM consumable_claims WHERE id = ?`), claim.ID); err != nil {
			return sourceErr("deleting consumable claim", err)
		}
		return nil
	}
	if _, err := tx.ExecContext(ctx, tx.Rebind(
		`UPDATE consumable_claims SET quantity = quantity - ? WHERE id = ?`),
		quantity, claim.ID); err != nil {
		return sourceErr("shrinking consumable claim", err)
	}
	return nil
}
