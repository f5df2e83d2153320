package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/erazemk/oprema/internal/db"
	"github.com/erazemk/oprema/internal/model"
)

const lotColumns = `l.id, l.item_id, l.quantity, l.status, l.expires_at, l.created_at, d.name AS item_name`

// AddLot records a received lot of a consumable item.
func AddLot(ctx context.Context, q sqlx.ExtContext, itemID int64, quantity int, expiresAt *time.Time) (*model.ConsumableLot, error) {
	if quantity <= 0 {
		return nil, fmt.Errorf("quantity must be positive")
	}

	item, err := GetItemDefinition(ctx, q, itemID)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, fmt.Errorf("item %d: %w", itemID, ErrNotFound)
	}
	if item.Kind != model.ItemKindConsumable {
		return nil, fmt.Errorf("adding lot for %q: %w", item.Name, ErrWrongKind)
	}

	var expires *time.Time
	if expiresAt != nil {
		utc := expiresAt.UTC()
		expires = &utc
	}

	var id int64
	err = q.QueryRowxContext(ctx, q.Rebind(
		`INSERT INTO consumable_lots (item_id, quantity, expires_at) VALUES (?, ?, ?) RETURNING id`),
		itemID, quantity, expires,
	).Scan(&id)
	if err != nil {
		return nil, sourceErr("adding lot", err)
	}

	return GetLot(ctx, q, id)
}

// GetLot returns a consumable lot by ID.
func GetLot(ctx context.Context, q sqlx.ExtContext, id int64) (*model.ConsumableLot, error) {
	l := &model.ConsumableLot{}
	err := sqlx.GetContext(ctx, q, l, q.Rebind(
		`SELECT `+lotColumns+`
		 FROM consumable_lots l JOIN item_definitions d ON d.id = l.item_id
		 WHERE l.id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, sourceErr("getting lot", err)
	}
	return l, nil
}

// ListLots returns consumable lots, optionally filtered by item.
func ListLots(ctx context.Context, q sqlx.ExtContext, itemID int64) ([]model.ConsumableLot, error) {
	query := `SELECT ` + lotColumns + `
	          FROM consumable_lots l JOIN item_definitions d ON d.id = l.item_id`
	var args []any
	if itemID > 0 {
		query += ` WHERE l.item_id = ?`
		args = append(args, itemID)
	}
	query += ` ORDER BY d.name, l.id`

	var lots []model.ConsumableLot
	if err := sqlx.SelectContext(ctx, q, &lots, q.Rebind(query), args...); err != nil {
		return nil, sourceErr("listing lots", err)
	}
	return lots, nil
}

// ExpireLot marks a lot expired. Expired lots no longer count as supply.
func ExpireLot(ctx context.Context, q sqlx.ExtContext, id int64) error {
	res, err := q.ExecContext(ctx, q.Rebind(
		`UPDATE consumable_lots SET status = 'expired' WHERE id = ?`), id)
	if err != nil {
		return sourceErr("expiring lot", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("lot %d: %w", id, ErrNotFound)
	}
	return nil
}

// AvailableLots returns the non-expired lots of the named consumable that still
// hold stock, soonest-expiring first. Inside a PostgreSQL transaction the rows
// are locked.
func AvailableLots(ctx context.Context, tx *sqlx.Tx, name string) ([]model.ConsumableLot, error) {
	query := `SELECT ` + lotColumns + `
	          FROM consumable_lots l JOIN item_definitions d ON d.id = l.item_id
	          WHERE d.name = ? AND d.kind = 'consumable' AND l.status = 'available' AND l.quantity > 0
	          ORDER BY CASE WHEN l.expires_at IS NULL THEN 1 ELSE 0 END, l.expires_at, l.id`
	if db.IsPostgres(tx) {
		query += ` FOR UPDATE OF l`
	}

	var lots []model.ConsumableLot
	if err := sqlx.SelectContext(ctx, tx, &lots, tx.Rebind(query), name); err != nil {
		return nil, sourceErr("selecting available lots", err)
	}
	return lots, nil
}

// DebitLot removes quantity from a lot. It fails rather than drive the lot
// negative.
func DebitLot(ctx context.Context, tx *sqlx.Tx, lotID int64, quantity int) error {
	res, err := tx.ExecContext(ctx, tx.Rebind(
		`UPDATE consumable_lots SET quantity = quantity - ? WHERE id = ? AND quantity >= ?`),
		quantity, lotID, quantity)
	if err != nil {
		return sourceErr("debiting lot", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("lot %d has less than %d left", lotID, quantity)
	}
	return nil
}

// CreditLot returns quantity to a lot.
func CreditLot(ctx context.Context, tx *sqlx.Tx, lotID int64, quantity int) error {
	if _, err := tx.ExecContext(ctx, tx.Rebind(
		`UPDATE consumable_lots SET quantity = quantity + ? WHERE id = ?`),
		quantity, lotID); err != nil {
		return sourceErr("crediting lot", err)
	}
	return nil
}
