package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"stylemart/internal/domain"

	"github.com/google/uuid"
)

func seedCategory(t *testing.T, name string) *domain.Category {
	t.Helper()
	repo := NewCategoryRepository(testDB)
	category := &domain.Category{
		ID:          uuid.New(),
		Name:        name,
		Description: "seeded",
		CreatedAt:   time.Now().UTC(),
	}
	if err := repo.Create(context.Background(), category); err != nil {
		t.Fatalf("Failed to seed category: %v", err)
	}
	return category
}

func TestCategoryUpdate_RenamePersists(t *testing.T) {
	repo := NewCategoryRepository(testDB)
	ctx := context.Background()

	category := seedCategory(t, "Outerwear "+uuid.NewString())
	category.Name = "Jackets " + uuid.NewString()
	category.Description = "Coats and jackets"

	if err := repo.Update(ctx, category); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	stored, err := repo.FindByID(ctx, category.ID)
	if err != nil {
		t.Fatalf("FindByID failed: %v", err)
	}
	if stored.Name != category.Name {
		t.Errorf("Expected name %q, got %q", category.Name, stored.Name)
	}
	if stored.Description != "Coats and jackets" {
		t.Errorf("Expected updated description, got %q", stored.Description)
	}
}

func TestCategoryUpdate_DuplicateNameRejected(t *testing.T) {
	repo := NewCategoryRepository(testDB)
	ctx := context.Background()

	existing := seedCategory(t, "Footwear "+uuid.NewString())
	other := seedCategory(t, "Accessories "+uuid.NewString())

	other.Name = existing.Name
	if err := repo.Update(ctx, other); !errors.Is(err, ErrCategoryAlreadyExists) {
		t.Errorf("Expected ErrCategoryAlreadyExists, got %v", err)
	}
}

func TestCategoryUpdate_NotFound(t *testing.T) {
	repo := NewCategoryRepository(testDB)

	err := repo.Update(context.Background(), &domain.Category{
		ID:   uuid.New(),
		Name: "Ghost " + uuid.NewString(),
	})
	if !errors.Is(err, ErrCategoryNotFound) {
		t.Errorf("Expected ErrCategoryNotFound, got %v", err)
	}
}

func TestCategoryDelete_RemovesEmptyCategory(t *testing.T) {
	repo := NewCategoryRepository(testDB)
	ctx := context.Background()

	category := seedCategory(t, "Seasonal "+uuid.NewString())
	if err := repo.Delete(ctx, category.ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	if _, err := repo.FindByID(ctx, category.ID); !errors.Is(err, ErrCategoryNotFound) {
		t.Errorf("Expected ErrCategoryNotFound after delete, got %v", err)
	}

	if err := repo.Delete(ctx, uuid.New()); !errors.Is(err, ErrCategoryNotFound) {
		t.Errorf("Expected ErrCategoryNotFound for unknown ID, got %v", err)
	}
}

func TestCategoryDelete_InUseRejected(t *testing.T) {
	repo := NewCategoryRepository(testDB)
	ctx := context.Background()

	// seedProduct creates its own category and a product referencing it
	productID := seedProduct(t, "Parka", 520000, 3)

	var categoryID uuid.UUID
	if err := testDB.QueryRow(`SELECT category_id FROM products WHERE id = $1`, productID).Scan(&categoryID); err != nil {
		t.Fatalf("Failed to read product category: %v", err)
	}

	if err := repo.Delete(ctx, categoryID); !errors.Is(err, ErrCategoryInUse) {
		t.Errorf("Expected ErrCategoryInUse, got %v", err)
	}

	// The category row must survive the rejected delete
	if _, err := repo.FindByID(ctx, categoryID); err != nil {
		t.Errorf("Expected category to still exist, got %v", err)
	}
}
