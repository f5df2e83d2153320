package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/erazemk/oprema/internal/db"
	"github.com/erazemk/oprema/internal/model"
)

const assetColumns = `a.id, a.item_id, a.tag, a.custody_status, a.created_at, a.updated_at, d.name AS item_name`

// RegisterAsset registers a new physical unit of an asset item. New assets
// start in storage.
func RegisterAsset(ctx context.Context, q sqlx.ExtContext, itemID int64, tag string) (*model.Asset, error) {
	item, err := GetItemDefinition(ctx, q, itemID)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, fmt.Errorf("item %d: %w", itemID, ErrNotFound)
	}
	if item.Kind != model.ItemKindAsset {
		return nil, fmt.Errorf("registering asset for %q: %w", item.Name, ErrWrongKind)
	}

	var id int64
	err = q.QueryRowxContext(ctx, q.Rebind(
		`INSERT INTO assets (item_id, tag) VALUES (?, ?) RETURNING id`),
		itemID, tag,
	).Scan(&id)
	if err != nil {
		return nil, sourceErr("registering asset", err)
	}

	return GetAsset(ctx, q, id)
}

// GetAsset returns an asset by ID.
func GetAsset(ctx context.Context, q sqlx.ExtContext, id int64) (*model.Asset, error) {
	a := &model.Asset{}
	err := sqlx.GetContext(ctx, q, a, q.Rebind(
		`SELECT `+assetColumns+`
		 FROM assets a JOIN item_definitions d ON d.id = a.item_id
		 WHERE a.id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, sourceErr("getting asset", err)
	}
	return a, nil
}

// ListAssets returns assets, optionally filtered by item and custody status.
func ListAssets(ctx context.Context, q sqlx.ExtContext, itemID int64, custody model.CustodyStatus) ([]model.Asset, error) {
	query := `SELECT ` + assetColumns + `
	          FROM assets a JOIN item_definitions d ON d.id = a.item_id
	          WHERE 1=1`
	var args []any

	if itemID > 0 {
		query += ` AND a.item_id = ?`
		args = append(args, itemID)
	}
	if custody != "" {
		query += ` AND a.custody_status = ?`
		args = append(args, custody)
	}

	query += ` ORDER BY d.name, a.id`

	var assets []model.Asset
	if err := sqlx.SelectContext(ctx, q, &assets, q.Rebind(query), args...); err != nil {
		return nil, sourceErr("listing assets", err)
	}
	return assets, nil
}

// SetAssetCustody moves an asset to a new custody status. This is the custody
// workflow's write path; the transition must be allowed by the custody state
// machine.
func SetAssetCustody(ctx context.Context, conn *sqlx.DB, id int64, next model.CustodyStatus) (*model.Asset, error) {
	if !next.Valid() {
		return nil, fmt.Errorf("unknown custody status %q", next)
	}

	tx, err := conn.BeginTxx(ctx, nil)
	if err != nil {
		return nil, sourceErr("beginning transaction", err)
	}
	defer tx.Rollback()

	var current model.CustodyStatus
	err = sqlx.GetContext(ctx, tx, &current, tx.Rebind(
		`SELECT custody_status FROM assets WHERE id = ?`+lockClause(tx)), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("asset %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, sourceErr("checking custody status", err)
	}

	if err := current.CheckTransition(next); err != nil {
		return nil, err
	}

	if _, err := tx.ExecContext(ctx, tx.Rebind(
		`UPDATE assets SET custody_status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`),
		next, id,
	); err != nil {
		return nil, sourceErr("updating custody status", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, sourceErr("committing custody change", err)
	}

	return GetAsset(ctx, conn, id)
}

// FreeAssetIDs selects up to limit assets of the named item that are in
// storage and not actively reserved by any event. It must run inside the
// transaction that inserts the reservations: on PostgreSQL the rows are locked
// (skipping rows another reserver holds), on SQLite the transaction already
// holds the write lock.
func FreeAssetIDs(ctx context.Context, tx *sqlx.Tx, name string, limit int) ([]int64, error) {
	if limit <= 0 {
		return nil, nil
	}

	query := `SELECT a.id
	          FROM assets a
	          JOIN item_definitions d ON d.id = a.item_id
	          WHERE d.name = ? AND d.kind = 'asset' AND a.custody_status = 'in_storage'
	            AND NOT EXISTS (
	                SELECT 1 FROM reservations r
	                WHERE r.asset_id = a.id AND r.status IN ('reserved', 'issued'))
	          ORDER BY a.id
	          LIMIT ?`
	if db.IsPostgres(tx) {
		query += ` FOR UPDATE OF a SKIP LOCKED`
	}

	var ids []int64
	if err := sqlx.SelectContext(ctx, tx, &ids, tx.Rebind(query), name, limit); err != nil {
		return nil, sourceErr("selecting free assets", err)
	}
	return ids, nil
}

// lockClause returns the row-lock suffix for a single-row SELECT inside a
// transaction. SQLite transactions are opened with BEGIN IMMEDIATE instead.
func lockClause(q db.DriverNamer) string {
	if db.IsPostgres(q) {
		return ` FOR UPDATE`
	}
	return ""
}
