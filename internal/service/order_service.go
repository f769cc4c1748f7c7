package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"stylemart/internal/domain"
	"stylemart/internal/repository"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"
)

var (
	ErrEmptyOrder         = errors.New("order must contain at least one item")
	ErrInvalidQuantity    = errors.New("item quantity must be positive")
	ErrOrderAccessDenied  = errors.New("order belongs to another user")
	ErrInvalidStatus      = errors.New("unknown status value")
	ErrStorageUnavailable = errors.New("storage unavailable")
)

// OrderLine is one requested line of a new order
type OrderLine struct {
	ProductID uuid.UUID
	Quantity  int
	Size      string
	Color     string
}

// PlaceOrderRequest carries everything order intake needs besides the user
// identity. Prices are deliberately absent: they are read from the catalog
// at reservation time.
type PlaceOrderRequest struct {
	Items           []OrderLine
	ShippingAddress domain.ShippingAddress
	PaymentMethod   string
	Notes           string
}

// StatusUpdateRequest is the admin-facing partial status change
type StatusUpdateRequest struct {
	OrderStatus    *domain.OrderStatus
	PaymentStatus  *domain.PaymentStatus
	TrackingNumber *string
}

// OrderService defines the interface for order intake and the status
// workflow
type OrderService interface {
	PlaceOrder(ctx context.Context, userID uuid.UUID, req PlaceOrderRequest) (*domain.Order, error)
	GetOrder(ctx context.Context, requesterID uuid.UUID, isAdmin bool, orderID uuid.UUID) (*domain.Order, error)
	ListUserOrders(ctx context.Context, userID uuid.UUID, page, pageSize int) ([]*domain.Order, int, error)
	ListOrders(ctx context.Context, filter repository.OrderFilter, page, pageSize int) ([]*domain.Order, int, error)
	UpdateStatus(ctx context.Context, orderID uuid.UUID, req StatusUpdateRequest) (*domain.Order, error)
}

type orderService struct {
	orderRepo      repository.OrderRepository
	cartRepo       repository.CartRepository
	shippingCost   int64
	taxRatePercent int64
	placeRetries   int
	logger         *zap.Logger
}

// NewOrderService creates a new instance of OrderService
func NewOrderService(
	orderRepo repository.OrderRepository,
	cartRepo repository.CartRepository,
	shippingCost int64,
	taxRatePercent int64,
	placeRetries int,
	logger *zap.Logger,
) OrderService {
	return &orderService{
		orderRepo:      orderRepo,
		cartRepo:       cartRepo,
		shippingCost:   shippingCost,
		taxRatePercent: taxRatePercent,
		placeRetries:   placeRetries,
		logger:         logger,
	}
}

// isOrderDomainError reports whether err is a business outcome rather than a
// storage failure. Domain errors are final: retrying an order against a
// sold-out product cannot succeed.
func isOrderDomainError(err error) bool {
	return errors.Is(err, repository.ErrProductNotFound) ||
		errors.Is(err, repository.ErrInsufficientStock)
}

// isPermanentStorageError reports whether err is a storage rejection that no
// retry can fix, such as an integrity constraint violation (SQLSTATE class
// 23). Connection drops and serialization aborts stay retryable.
func isPermanentStorageError(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && strings.HasPrefix(pgErr.Code, "23")
}

// PlaceOrder validates the requested lines and runs the atomic reservation
// transaction. Transient storage failures are retried a bounded number of
// times with backoff; domain failures surface immediately as their specific
// kind.
func (s *orderService) PlaceOrder(ctx context.Context, userID uuid.UUID, req PlaceOrderRequest) (*domain.Order, error) {
	if len(req.Items) == 0 {
		return nil, ErrEmptyOrder
	}
	for _, line := range req.Items {
		if line.Quantity <= 0 {
			return nil, ErrInvalidQuantity
		}
	}

	now := time.Now().UTC()
	order := &domain.Order{
		ID:              uuid.New(),
		OrderNumber:     domain.NewOrderNumber(now),
		UserID:          userID,
		ShippingAddress: req.ShippingAddress,
		PaymentMethod:   req.PaymentMethod,
		PaymentStatus:   domain.PaymentStatusPending,
		OrderStatus:     domain.OrderStatusPending,
		ShippingCost:    s.shippingCost,
		Notes:           req.Notes,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	for _, line := range req.Items {
		order.Items = append(order.Items, domain.OrderItem{
			ProductID: line.ProductID,
			Quantity:  line.Quantity,
			Size:      line.Size,
			Color:     line.Color,
		})
	}

	backoff := retry.WithMaxRetries(uint64(s.placeRetries), retry.NewFibonacci(50*time.Millisecond))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := s.orderRepo.PlaceOrder(ctx, order, s.taxRatePercent); err != nil {
			if isOrderDomainError(err) || isPermanentStorageError(err) {
				return err
			}
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		if isOrderDomainError(err) {
			return nil, err
		}
		if isPermanentStorageError(err) {
			return nil, fmt.Errorf("order placement rejected: %w", err)
		}
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}

	// The cart served its purpose; clearing it is best effort and never
	// fails the placed order.
	if err := s.cartRepo.Clear(ctx, userID); err != nil {
		s.logger.Warn("Failed to clear cart after order placement",
			zap.String("user_id", userID.String()),
			zap.String("order_id", order.ID.String()),
			zap.Error(err),
		)
	}

	return order, nil
}

// GetOrder retrieves one order, enforcing that non-admin callers only see
// their own orders
func (s *orderService) GetOrder(ctx context.Context, requesterID uuid.UUID, isAdmin bool, orderID uuid.UUID) (*domain.Order, error) {
	order, err := s.orderRepo.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if !isAdmin && order.UserID != requesterID {
		return nil, ErrOrderAccessDenied
	}

	return order, nil
}

// ListUserOrders retrieves the caller's own orders
func (s *orderService) ListUserOrders(ctx context.Context, userID uuid.UUID, page, pageSize int) ([]*domain.Order, int, error) {
	return s.orderRepo.ListByUser(ctx, userID, page, pageSize)
}

// ListOrders retrieves orders for the admin listing
func (s *orderService) ListOrders(ctx context.Context, filter repository.OrderFilter, page, pageSize int) ([]*domain.Order, int, error) {
	return s.orderRepo.List(ctx, filter, page, pageSize)
}

// UpdateStatus validates the requested values and applies the workflow
// change. Illegal transitions come back as repository.ErrIllegalTransition
// without mutating the order.
func (s *orderService) UpdateStatus(ctx context.Context, orderID uuid.UUID, req StatusUpdateRequest) (*domain.Order, error) {
	if req.OrderStatus != nil && !req.OrderStatus.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, *req.OrderStatus)
	}
	if req.PaymentStatus != nil && !req.PaymentStatus.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, *req.PaymentStatus)
	}

	return s.orderRepo.UpdateStatus(ctx, orderID, repository.StatusChange{
		OrderStatus:    req.OrderStatus,
		PaymentStatus:  req.PaymentStatus,
		TrackingNumber: req.TrackingNumber,
	})
}
