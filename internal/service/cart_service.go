package service

import (
	"context"
	"errors"
	"time"

	"stylemart/internal/domain"
	"stylemart/internal/repository"

	"github.com/google/uuid"
)

// CartLine pairs a cart item with the current product view so the client
// can render live prices; the authoritative price is still only captured at
// order placement.
type CartLine struct {
	Item    *domain.CartItem `json:"item"`
	Product *domain.Product  `json:"product,omitempty"`
}

// CartService defines the interface for the server-owned cart
type CartService interface {
	GetCart(ctx context.Context, userID uuid.UUID) ([]CartLine, error)
	AddItem(ctx context.Context, userID, productID uuid.UUID, quantity int, size, color string) ([]CartLine, error)
	UpdateQuantity(ctx context.Context, userID, itemID uuid.UUID, quantity int) ([]CartLine, error)
	RemoveItem(ctx context.Context, userID, itemID uuid.UUID) ([]CartLine, error)
	ClearCart(ctx context.Context, userID uuid.UUID) error
}

type cartService struct {
	cartRepo    repository.CartRepository
	productRepo repository.ProductRepository
}

// NewCartService creates a new instance of CartService
func NewCartService(cartRepo repository.CartRepository, productRepo repository.ProductRepository) CartService {
	return &cartService{
		cartRepo:    cartRepo,
		productRepo: productRepo,
	}
}

// GetCart retrieves the user's cart with current product views attached.
// Lines whose product has since been deactivated keep the item but drop the
// product view.
func (s *cartService) GetCart(ctx context.Context, userID uuid.UUID) ([]CartLine, error) {
	items, err := s.cartRepo.List(ctx, userID)
	if err != nil {
		return nil, err
	}

	lines := []CartLine{}
	for _, item := range items {
		line := CartLine{Item: item}
		product, err := s.productRepo.GetProduct(ctx, item.ProductID)
		if err == nil {
			line.Product = product
		} else if !errors.Is(err, repository.ErrProductNotFound) {
			return nil, err
		}
		lines = append(lines, line)
	}

	return lines, nil
}

// AddItem adds a product to the cart after verifying it exists and is
// active. Quantity is not checked against stock here: the cart is a view,
// and stock is only authoritative at order placement.
func (s *cartService) AddItem(ctx context.Context, userID, productID uuid.UUID, quantity int, size, color string) ([]CartLine, error) {
	if quantity <= 0 {
		return nil, ErrInvalidQuantity
	}

	if _, err := s.productRepo.GetProduct(ctx, productID); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	item := &domain.CartItem{
		ID:        uuid.New(),
		UserID:    userID,
		ProductID: productID,
		Quantity:  quantity,
		Size:      size,
		Color:     color,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.cartRepo.Upsert(ctx, item); err != nil {
		return nil, err
	}

	return s.GetCart(ctx, userID)
}

// UpdateQuantity sets a cart line's quantity
func (s *cartService) UpdateQuantity(ctx context.Context, userID, itemID uuid.UUID, quantity int) ([]CartLine, error) {
	if quantity <= 0 {
		return nil, ErrInvalidQuantity
	}

	if err := s.cartRepo.UpdateQuantity(ctx, userID, itemID, quantity); err != nil {
		return nil, err
	}

	return s.GetCart(ctx, userID)
}

// RemoveItem deletes a cart line
func (s *cartService) RemoveItem(ctx context.Context, userID, itemID uuid.UUID) ([]CartLine, error) {
	if err := s.cartRepo.Remove(ctx, userID, itemID); err != nil {
		return nil, err
	}

	return s.GetCart(ctx, userID)
}

// ClearCart removes every line from the user's cart
func (s *cartService) ClearCart(ctx context.Context, userID uuid.UUID) error {
	return s.cartRepo.Clear(ctx, userID)
}
