package store

import (
	"context"
	"errors"
	"testing"

	"github.com/erazemk/oprema/internal/db"
	"github.com/erazemk/oprema/internal/model"
)

func TestCreateAndGetItemDefinition(t *testing.T) {
	database := db.NewTestDB(t, db.Custody)
	ctx := context.Background()

	item, err := CreateItemDefinition(ctx, database, "Chair", "Furniture", model.ItemKindAsset)
	if err != nil {
		t.Fatalf("CreateItemDefinition: %v", err)
	}
	if item.Name != "Chair" || item.Category != "Furniture" {
		t.Errorf("unexpected item %+v", item)
	}
	if item.Kind != model.ItemKindAsset {
		t.Errorf("expected kind 'asset', got %q", item.Kind)
	}

	got, err := GetItemDefinition(ctx, database, item.ID)
	if err != nil {
		t.Fatalf("GetItemDefinition: %v", err)
	}
	if got == nil || got.ID != item.ID {
		t.Errorf("expected item %d, got %+v", item.ID, got)
	}
}

func TestGetItemDefinitionNotFound(t *testing.T) {
	database := db.NewTestDB(t, db.Custody)

	got, err := GetItemDefinition(context.Background(), database, 999)
	if err != nil {
		t.Fatalf("GetItemDefinition: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil, got %+v", got)
	}
}

func TestCreateItemDefinitionDuplicate(t *testing.T) {
	database := db.NewTestDB(t, db.Custody)
	ctx := context.Background()

	if _, err := CreateItemDefinition(ctx, database, "Chair", "Furniture", model.ItemKindAsset); err != nil {
		t.Fatalf("CreateItemDefinition: %v", err)
	}
	_, err := CreateItemDefinition(ctx, database, "Chair", "Furniture", model.ItemKindAsset)
	if !errors.Is(err, ErrDuplicate) {
		t.Errorf("expected ErrDuplicate, got %v", err)
	}

	// Same name in another category is a separate group.
	if _, err := CreateItemDefinition(ctx, database, "Chair", "Outdoor", model.ItemKindAsset); err != nil {
		t.Errorf("expected second category to be allowed, got %v", err)
	}
}

func TestCreateItemDefinitionRejectsBadInput(t *testing.T) {
	database := db.NewTestDB(t, db.Custody)
	ctx := context.Background()

	if _, err := CreateItemDefinition(ctx, database, "", "x", model.ItemKindAsset); err == nil {
		t.Error("expected error for empty name")
	}
	if _, err := CreateItemDefinition(ctx, database, "Thing", "x", "gadget"); err == nil {
		t.Error("expected error for unknown kind")
	}
}

func TestListItemDefinitionsByKind(t *testing.T) {
	database := db.NewTestDB(t, db.Custody)
	ctx := context.Background()

	CreateItemDefinition(ctx, database, "Chair", "Furniture", model.ItemKindAsset)
	CreateItemDefinition(ctx, database, "Projector", "AV", model.ItemKindAsset)
	CreateItemDefinition(ctx, database, "Water bottle", "Refreshments", model.ItemKindConsumable)

	all, err := ListItemDefinitions(ctx, database, "")
	if err != nil {
		t.Fatalf("ListItemDefinitions: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("expected 3 items, got %d", len(all))
	}

	consumables, _ := ListItemDefinitions(ctx, database, model.ItemKindConsumable)
	if len(consumables) != 1 || consumables[0].Name != "Water bottle" {
		t.Errorf("expected only the water bottle, got %+v", consumables)
	}
}

func TestItemKindByName(t *testing.T) {
	database := db.NewTestDB(t, db.Custody)
	ctx := context.Background()

	CreateItemDefinition(ctx, database, "Water bottle", "Refreshments", model.ItemKindConsumable)

	kind, found, err := ItemKindByName(ctx, database, "Water bottle")
	if err != nil {
		t.Fatalf("ItemKindByName: %v", err)
	}
	if !found || kind != model.ItemKindConsumable {
		t.Errorf("expected consumable, got %q (found=%v)", kind, found)
	}

	_, found, err = ItemKindByName(ctx, database, "Unicorn")
	if err != nil {
		t.Fatalf("ItemKindByName: %v", err)
	}
	if found {
		t.Error("expected unknown name to be not found")
	}
}

func TestCreateItemDefinitionKeepsOneKindPerName(t *testing.T) {
	database := db.NewTestDB(t, db.Custody)
	ctx := context.Background()

	if _, err := CreateItemDefinition(ctx, database, "Cable", "Audio", model.ItemKindAsset); err != nil {
		t.Fatalf("CreateItemDefinition: %v", err)
	}

	// Same name and kind in another category is fine.
	if _, err := CreateItemDefinition(ctx, database, " Cable ", "Video", model.ItemKindAsset); err != nil {
		t.Fatalf("CreateItemDefinition in second category: %v", err)
	}

	_, err := CreateItemDefinition(ctx, database, "Cable", "Supplies", model.ItemKindConsumable)
	if !errors.Is(err, ErrWrongKind) {
		t.Errorf("expected ErrWrongKind, got %v", err)
	}
}

func TestItemKindByNameRejectsMixedKinds(t *testing.T) {
	database := db.NewTestDB(t, db.Custody)
	ctx := context.Background()

	// Rows written by another tool can bypass CreateItemDefinition.
	database.MustExec(`INSERT INTO item_definitions (name, category, kind) VALUES ('Tape', 'Audio', 'asset')`)
	database.MustExec(`INSERT INTO item_definitions (name, category, kind) VALUES ('Tape', 'Office', 'consumable')`)

	_, found, err := ItemKindByName(ctx, database, "Tape")
	if !errors.Is(err, ErrWrongKind) {
		t.Errorf("expected ErrWrongKind, got %v", err)
	}
	if found {
		t.Error("expected mixed kinds to be unresolved")
	}
}

func TestDataSourceErrorIsNotEmpty(t *testing.T) {
	database := db.NewTestDB(t, db.Custody)
	database.Close()

	_, err := ListItemDefinitions(context.Background(), database, "")
	if !errors.Is(err, ErrDataSource) {
		t.Errorf("expected ErrDataSource from a closed database, got %v", err)
	}
}
