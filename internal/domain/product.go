package domain

import (
	"time"

	"github.com/google/uuid"
)

// Product represents a product in the catalog. Price is stored in minor
// currency units (int64) so money math never touches floating point. Stock
// is only ever mutated through the conditional reserve/restore statements in
// the repository layer and can never go negative.
type Product struct {
	ID            uuid.UUID `json:"id" db:"id"`
	Name          string    `json:"name" db:"name"`
	Description   string    `json:"description" db:"description"`
	Price         int64     `json:"price" db:"price"`
	OriginalPrice *int64    `json:"original_price,omitempty" db:"original_price"`
	CategoryID    uuid.UUID `json:"category_id" db:"category_id"`
	Subcategory   string    `json:"subcategory" db:"subcategory"`
	Brand         string    `json:"brand" db:"brand"`
	ImageURL      string    `json:"image_url" db:"image_url"`
	Stock         int       `json:"stock" db:"stock"`
	IsActive      bool      `json:"is_active" db:"is_active"`
	IsFeatured    bool      `json:"is_featured" db:"is_featured"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time `json:"updated_at" db:"updated_at"`
}

// Category represents a product category
type Category struct {
	ID          uuid.UUID `json:"id" db:"id"`
	Name        string    `json:"name" db:"name"`
	Description string    `json:"description" db:"description"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// CartItem is a server-owned cart line. The cart is only a view the client
// edits; stock is not reserved until order placement.
type CartItem struct {
	ID        uuid.UUID `json:"id" db:"id"`
	UserID    uuid.UUID `json:"user_id" db:"user_id"`
	ProductID uuid.UUID `json:"product_id" db:"product_id"`
	Quantity  int       `json:"quantity" db:"quantity"`
	Size      string    `json:"size,omitempty" db:"size"`
	Color     string    `json:"color,omitempty" db:"color"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}
