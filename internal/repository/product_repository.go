package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"stylemart/internal/domain"

	"github.com/google/uuid"
)

var (
	ErrProductNotFound   = errors.New("product not found")
	ErrInsufficientStock = errors.New("insufficient stock")
)

// InsufficientStockError reports which product could not be reserved so the
// caller can render an actionable message. It matches ErrInsufficientStock
// under errors.Is.
type InsufficientStockError struct {
	ProductName string
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s", e.ProductName)
}

func (e *InsufficientStockError) Unwrap() error {
	return ErrInsufficientStock
}

// ProductSnapshot is the slice of product state captured atomically at the
// moment stock is reserved. Order lines are priced from this, never from
// client input.
type ProductSnapshot struct {
	Name     string
	Price    int64
	ImageURL string
}

// CatalogStore is the stock contract consumed by order intake and the status
// workflow. ReserveStock is an atomic conditional decrement: it either
// reserves the full quantity or changes nothing.
type CatalogStore interface {
	GetProduct(ctx context.Context, id uuid.UUID) (*domain.Product, error)
	ReserveStock(ctx context.Context, id uuid.UUID, quantity int) (*ProductSnapshot, error)
	RestoreStock(ctx context.Context, id uuid.UUID, quantity int) error
}

// SortOrder represents the sort direction
type SortOrder string

const (
	SortOrderAsc  SortOrder = "ASC"
	SortOrderDesc SortOrder = "DESC"
)

// ProductFilter narrows List results. Zero values mean "no constraint".
type ProductFilter struct {
	CategoryID      *uuid.UUID
	Subcategory     string
	Brand           string
	Search          string
	MinPrice        *int64
	MaxPrice        *int64
	FeaturedOnly    bool
	IncludeInactive bool
}

// ProductRepository defines the interface for product data access
type ProductRepository interface {
	CatalogStore

	Create(ctx context.Context, product *domain.Product) error
	Update(ctx context.Context, product *domain.Product) error
	Deactivate(ctx context.Context, id uuid.UUID) error
	FindByID(ctx context.Context, id uuid.UUID) (*domain.Product, error)
	List(ctx context.Context, filter ProductFilter, page, pageSize int, sortBy string, sortOrder SortOrder) ([]*domain.Product, int, error)
}

type productRepository struct {
	db *sql.DB
}

// NewProductRepository creates a new instance of ProductRepository
func NewProductRepository(db *sql.DB) ProductRepository {
	return &productRepository{db: db}
}

const productColumns = `id, name, description, price, original_price, category_id, subcategory, brand,
	image_url, stock, is_active, is_featured, created_at, updated_at`

func scanProduct(row interface{ Scan(...interface{}) error }) (*domain.Product, error) {
	product := &domain.Product{}
	err := row.Scan(
		&product.ID,
		&product.Name,
		&product.Description,
		&product.Price,
		&product.OriginalPrice,
		&product.CategoryID,
		&product.Subcategory,
		&product.Brand,
		&product.ImageURL,
		&product.Stock,
		&product.IsActive,
		&product.IsFeatured,
		&product.CreatedAt,
		&product.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return product, nil
}

// Create inserts a new product into the database using parameterized queries
func (r *productRepository) Create(ctx context.Context, product *domain.Product) error {
	query := `
		INSERT INTO products (id, name, description, price, original_price, category_id, subcategory,
		                      brand, image_url, stock, is_active, is_featured, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`

	_, err := r.db.ExecContext(
		ctx,
		query,
		product.ID,
		product.Name,
		product.Description,
		product.Price,
		product.OriginalPrice,
		product.CategoryID,
		product.Subcategory,
		product.Brand,
		product.ImageURL,
		product.Stock,
		product.IsActive,
		product.IsFeatured,
		product.CreatedAt,
		product.UpdatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to create product: %w", err)
	}

	return nil
}

// Update updates an existing product. Stock is deliberately not part of this
// statement: stock only moves through ReserveStock/RestoreStock and the
// order transaction, so an admin edit cannot race a checkout.
func (r *productRepository) Update(ctx context.Context, product *domain.Product) error {
	query := `
		UPDATE products
		SET name = $2, description = $3, price = $4, original_price = $5, category_id = $6,
		    subcategory = $7, brand = $8, image_url = $9, is_active = $10, is_featured = $11
		WHERE id = $1
	`

	result, err := r.db.ExecContext(
		ctx,
		query,
		product.ID,
		product.Name,
		product.Description,
		product.Price,
		product.OriginalPrice,
		product.CategoryID,
		product.Subcategory,
		product.Brand,
		product.ImageURL,
		product.IsActive,
		product.IsFeatured,
	)

	if err != nil {
		return fmt.Errorf("failed to update product: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return ErrProductNotFound
	}

	return nil
}

// Deactivate soft-deletes a product. The row survives so order item
// references stay resolvable.
func (r *productRepository) Deactivate(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE products SET is_active = FALSE WHERE id = $1`

	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to deactivate product: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return ErrProductNotFound
	}

	return nil
}

// FindByID retrieves a product by ID using parameterized queries
func (r *productRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Product, error) {
	query := fmt.Sprintf(`SELECT %s FROM products WHERE id = $1`, productColumns)

	product, err := scanProduct(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrProductNotFound
		}
		return nil, fmt.Errorf("failed to find product by ID: %w", err)
	}

	return product, nil
}

// GetProduct returns the product if it exists and is active
func (r *productRepository) GetProduct(ctx context.Context, id uuid.UUID) (*domain.Product, error) {
	product, err := r.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !product.IsActive {
		return nil, ErrProductNotFound
	}
	return product, nil
}

// ReserveStock atomically decrements stock by quantity if the product is
// active and has at least that much on hand. The snapshot comes from the
// same statement, so the captured price is the price at decrement time.
func (r *productRepository) ReserveStock(ctx context.Context, id uuid.UUID, quantity int) (*ProductSnapshot, error) {
	return reserveStock(ctx, r.db, id, quantity)
}

// RestoreStock is the compensating increment used when a reservation is
// released (order cancelled before fulfillment).
func (r *productRepository) RestoreStock(ctx context.Context, id uuid.UUID, quantity int) error {
	return restoreStock(ctx, r.db, id, quantity)
}

// execer is satisfied by both *sql.DB and *sql.Tx so the conditional stock
// statements can run standalone or inside the order transaction.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

func reserveStock(ctx context.Context, db execer, id uuid.UUID, quantity int) (*ProductSnapshot, error) {
	query := `
		UPDATE products
		SET stock = stock - $2
		WHERE id = $1 AND is_active = TRUE AND stock >= $2
		RETURNING name, price, image_url
	`

	snapshot := &ProductSnapshot{}
	err := db.QueryRowContext(ctx, query, id, quantity).Scan(
		&snapshot.Name,
		&snapshot.Price,
		&snapshot.ImageURL,
	)
	if err == nil {
		return snapshot, nil
	}
	if err != sql.ErrNoRows {
		return nil, fmt.Errorf("failed to reserve stock: %w", err)
	}

	// The conditional update matched nothing: either the product is gone or
	// inactive, or there is not enough stock. Tell them apart for the caller.
	var name string
	err = db.QueryRowContext(ctx,
		`SELECT name FROM products WHERE id = $1 AND is_active = TRUE`, id,
	).Scan(&name)
	if err == sql.ErrNoRows {
		return nil, ErrProductNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to inspect product after reservation miss: %w", err)
	}

	return nil, &InsufficientStockError{ProductName: name}
}

func restoreStock(ctx context.Context, db execer, id uuid.UUID, quantity int) error {
	result, err := db.ExecContext(ctx,
		`UPDATE products SET stock = stock + $2 WHERE id = $1`, id, quantity)
	if err != nil {
		return fmt.Errorf("failed to restore stock: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		// The product row was removed since the order was placed; the weak
		// reference means there is nothing left to restore into.
		return nil
	}

	return nil
}

// List retrieves products with filtering, pagination, and sorting
func (r *productRepository) List(ctx context.Context, filter ProductFilter, page, pageSize int, sortBy string, sortOrder SortOrder) ([]*domain.Product, int, error) {
	// Validate sort field to prevent SQL injection
	validSortFields := map[string]bool{
		"name":       true,
		"price":      true,
		"created_at": true,
		"stock":      true,
	}

	if !validSortFields[sortBy] {
		sortBy = "created_at"
	}

	if sortOrder != SortOrderAsc && sortOrder != SortOrderDesc {
		sortOrder = SortOrderDesc
	}

	conditions := []string{}
	args := []interface{}{}
	argIndex := 1

	if !filter.IncludeInactive {
		conditions = append(conditions, "is_active = TRUE")
	}
	if filter.CategoryID != nil {
		conditions = append(conditions, fmt.Sprintf("category_id = $%d", argIndex))
		args = append(args, *filter.CategoryID)
		argIndex++
	}
	if filter.Subcategory != "" {
		conditions = append(conditions, fmt.Sprintf("subcategory = $%d", argIndex))
		args = append(args, filter.Subcategory)
		argIndex++
	}
	if filter.Brand != "" {
		conditions = append(conditions, fmt.Sprintf("brand ILIKE $%d", argIndex))
		args = append(args, "%"+filter.Brand+"%")
		argIndex++
	}
	if filter.FeaturedOnly {
		conditions = append(conditions, "is_featured = TRUE")
	}
	if filter.MinPrice != nil {
		conditions = append(conditions, fmt.Sprintf("price >= $%d", argIndex))
		args = append(args, *filter.MinPrice)
		argIndex++
	}
	if filter.MaxPrice != nil {
		conditions = append(conditions, fmt.Sprintf("price <= $%d", argIndex))
		args = append(args, *filter.MaxPrice)
		argIndex++
	}
	if strings.TrimSpace(filter.Search) != "" {
		conditions = append(conditions, fmt.Sprintf("(name ILIKE $%d OR description ILIKE $%d OR brand ILIKE $%d)", argIndex, argIndex, argIndex))
		args = append(args, "%"+strings.TrimSpace(filter.Search)+"%")
		argIndex++
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM products %s", whereClause)
	var total int
	err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count products: %w", err)
	}

	offset := (page - 1) * pageSize

	query := fmt.Sprintf(`
		SELECT %s
		FROM products
		%s
		ORDER BY %s %s
		LIMIT $%d OFFSET $%d
	`, productColumns, whereClause, sortBy, sortOrder, argIndex, argIndex+1)

	args = append(args, pageSize, offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list products: %w", err)
	}
	defer rows.Close()

	products := []*domain.Product{}
	for rows.Next() {
		product, err := scanProduct(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan product: %w", err)
		}
		products = append(products, product)
	}

	if err = rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating products: %w", err)
	}

	return products, total, nil
}
