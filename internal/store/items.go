package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/erazemk/oprema/internal/model"
)

const itemColumns = `id, name, category, kind, created_at`

// CreateItemDefinition creates a new item definition. Requests and supply are
// matched by name across categories, so a name keeps one kind everywhere:
// defining it again with the other kind fails with ErrWrongKind.
func CreateItemDefinition(ctx context.Context, db sqlx.ExtContext, name, category string, kind model.ItemKind) (*model.ItemDefinition, error) {
	name = model.NormalizeName(name)
	if name == "" {
		return nil, fmt.Errorf("name required")
	}
	if !kind.Valid() {
		return nil, fmt.Errorf("unknown item kind %q", kind)
	}

	existing, found, err := ItemKindByName(ctx, db, name)
	if err != nil {
		return nil, err
	}
	if found && existing != kind {
		return nil, fmt.Errorf("item %q is already defined as %s: %w", name, existing, ErrWrongKind)
	}

	var id int64
	err = db.QueryRowxContext(ctx, db.Rebind(
		`INSERT INTO item_definitions (name, category, kind) VALUES (?, ?, ?) RETURNING id`),
		name, category, kind,
	).Scan(&id)
	if isUniqueViolation(err) {
		return nil, fmt.Errorf("item %q in category %q: %w", name, category, ErrDuplicate)
	}
	if err != nil {
		return nil, sourceErr("creating item definition", err)
	}

	return GetItemDefinition(ctx, db, id)
}

// GetItemDefinition returns an item definition by ID.
func GetItemDefinition(ctx context.Context, db sqlx.ExtContext, id int64) (*model.ItemDefinition, error) {
	item := &model.ItemDefinition{}
	err := sqlx.GetContext(ctx, db, item, db.Rebind(
		`SELECT `+itemColumns+` FROM item_definitions WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, sourceErr("getting item definition", err)
	}
	return item, nil
}

// ListItemDefinitions returns all item definitions, optionally filtered by kind.
func ListItemDefinitions(ctx context.Context, db sqlx.ExtContext, kind model.ItemKind) ([]model.ItemDefinition, error) {
	var items []model.ItemDefinition
	var err error

	if kind != "" {
		err = sqlx.SelectContext(ctx, db, &items, db.Rebind(
			`SELECT `+itemColumns+` FROM item_definitions WHERE kind = ? ORDER BY name, category`), kind)
	} else {
		err = sqlx.SelectContext(ctx, db, &items,
			`SELECT `+itemColumns+` FROM item_definitions ORDER BY name, category`)
	}
	if err != nil {
		return nil, sourceErr("listing item definitions", err)
	}
	return items, nil
}

// ItemKindByName returns the kind of the item definitions called name. The
// second return value is false if no definition has that name. A name defined
// with both kinds cannot be resolved and yields ErrWrongKind.
func ItemKindByName(ctx context.Context, db sqlx.ExtContext, name string) (model.ItemKind, bool, error) {
	var kinds []model.ItemKind
	err := sqlx.SelectContext(ctx, db, &kinds, db.Rebind(
		`SELECT DISTINCT kind FROM item_definitions WHERE name = ? ORDER BY kind`), name)
	if err != nil {
		return "", false, sourceErr("looking up item kind", err)
	}
	switch len(kinds) {
	case 0:
		return "", false, nil
	case 1:
		return kinds[0], true, nil
	}
	return "", false, fmt.Errorf("item %q is defined as both %s and %s: %w", name, kinds[0], kinds[1], ErrWrongKind)
}
