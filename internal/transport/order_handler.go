package transport

import (
	"errors"
	"net/http"
	"strconv"

	"stylemart/internal/domain"
	"stylemart/internal/middleware"
	"stylemart/internal/repository"
	"stylemart/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// OrderItemRequest is one requested line of a new order. No price field:
// prices come from the catalog at reservation time.
type OrderItemRequest struct {
	ProductID string `json:"product_id" validate:"required,uuid4"`
	Quantity  int    `json:"quantity" validate:"required,gt=0"`
	Size      string `json:"size,omitempty"`
	Color     string `json:"color,omitempty"`
}

// PlaceOrderRequest represents the checkout submission payload
type PlaceOrderRequest struct {
	Items           []OrderItemRequest     `json:"items" validate:"required,min=1,dive"`
	ShippingAddress domain.ShippingAddress `json:"shipping_address" validate:"required"`
	PaymentMethod   string                 `json:"payment_method" validate:"required"`
	Notes           string                 `json:"notes,omitempty"`
}

// UpdateStatusRequest represents the admin status change payload
type UpdateStatusRequest struct {
	OrderStatus    *string `json:"order_status,omitempty"`
	PaymentStatus  *string `json:"payment_status,omitempty"`
	TrackingNumber *string `json:"tracking_number,omitempty"`
}

// OrderListResponse is a paginated order listing
type OrderListResponse struct {
	Orders     []*domain.Order `json:"orders"`
	Total      int             `json:"total"`
	Page       int             `json:"page"`
	TotalPages int             `json:"total_pages"`
}

// OrderHandler handles HTTP requests for order operations
type OrderHandler struct {
	orderService service.OrderService
	logger       *zap.Logger
}

// NewOrderHandler creates a new OrderHandler
func NewOrderHandler(orderService service.OrderService, logger *zap.Logger) *OrderHandler {
	return &OrderHandler{
		orderService: orderService,
		logger:       logger,
	}
}

// RegisterRoutes registers all order routes
func (h *OrderHandler) RegisterRoutes(r chi.Router, authMiddleware, adminMiddleware func(http.Handler) http.Handler) {
	r.Route("/api/orders", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(authMiddleware)
			r.Post("/", h.PlaceOrder)
			r.Get("/my-orders", h.ListMyOrders)
			r.Get("/{id}", h.GetOrder)
		})

		r.Group(func(r chi.Router) {
			r.Use(authMiddleware, adminMiddleware)
			r.Get("/", h.ListOrders)
			r.Put("/{id}/status", h.UpdateStatus)
		})
	})
}

// requesterFromContext extracts the authenticated user identity
func requesterFromContext(r *http.Request) (uuid.UUID, bool, error) {
	userIDStr, ok := middleware.GetUserID(r.Context())
	if !ok {
		return uuid.Nil, false, errors.New("user ID not found in context")
	}
	userID, err := uuid.Parse(userIDStr)
	if err != nil {
		return uuid.Nil, false, err
	}
	role, _ := middleware.GetUserRole(r.Context())
	return userID, role == "admin", nil
}

// PlaceOrder handles checkout submission
func (h *OrderHandler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	userID, _, err := requesterFromContext(r)
	if err != nil {
		h.logger.Error("Invalid user identity in context", zap.Error(err))
		middleware.RespondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req PlaceOrderRequest
	if err := middleware.DecodeAndValidate(r, &req); err != nil {
		h.logger.Debug("Order validation failed", zap.Error(err))

		if validationErrors := middleware.FormatValidationErrors(err); len(validationErrors) > 0 {
			middleware.RespondWithValidationErrors(w, validationErrors)
			return
		}

		middleware.RespondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	lines := make([]service.OrderLine, 0, len(req.Items))
	for _, item := range req.Items {
		productID, err := uuid.Parse(item.ProductID)
		if err != nil {
			middleware.RespondWithError(w, http.StatusBadRequest, "invalid product ID: "+item.ProductID)
			return
		}
		lines = append(lines, service.OrderLine{
			ProductID: productID,
			Quantity:  item.Quantity,
			Size:      item.Size,
			Color:     item.Color,
		})
	}

	order, err := h.orderService.PlaceOrder(r.Context(), userID, service.PlaceOrderRequest{
		Items:           lines,
		ShippingAddress: req.ShippingAddress,
		PaymentMethod:   req.PaymentMethod,
		Notes:           req.Notes,
	})
	if err != nil {
		h.respondOrderError(w, err, "Order placement failed")
		return
	}

	h.logger.Info("Order placed",
		zap.String("order_id", order.ID.String()),
		zap.String("order_number", order.OrderNumber),
		zap.String("user_id", userID.String()),
		zap.Int64("total", order.Total),
	)
	middleware.RespondWithJSON(w, http.StatusCreated, order)
}

// GetOrder handles fetching a single order
func (h *OrderHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	userID, isAdmin, err := requesterFromContext(r)
	if err != nil {
		middleware.RespondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	orderID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid order ID")
		return
	}

	order, err := h.orderService.GetOrder(r.Context(), userID, isAdmin, orderID)
	if err != nil {
		h.respondOrderError(w, err, "Failed to get order")
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, order)
}

// ListMyOrders handles the caller's own order history
func (h *OrderHandler) ListMyOrders(w http.ResponseWriter, r *http.Request) {
	userID, _, err := requesterFromContext(r)
	if err != nil {
		middleware.RespondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	page, pageSize := paginationParams(r, 20)

	orders, total, err := h.orderService.ListUserOrders(r.Context(), userID, page, pageSize)
	if err != nil {
		h.respondOrderError(w, err, "Failed to list orders")
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, OrderListResponse{
		Orders:     orders,
		Total:      total,
		Page:       page,
		TotalPages: totalPages(total, pageSize),
	})
}

// ListOrders handles the admin order listing with filters
func (h *OrderHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	page, pageSize := paginationParams(r, 20)

	filter := repository.OrderFilter{
		OrderStatus:   domain.OrderStatus(r.URL.Query().Get("status")),
		PaymentStatus: domain.PaymentStatus(r.URL.Query().Get("payment_status")),
		Search:        r.URL.Query().Get("search"),
	}

	orders, total, err := h.orderService.ListOrders(r.Context(), filter, page, pageSize)
	if err != nil {
		h.respondOrderError(w, err, "Failed to list orders")
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, OrderListResponse{
		Orders:     orders,
		Total:      total,
		Page:       page,
		TotalPages: totalPages(total, pageSize),
	})
}

// UpdateStatus handles the admin status workflow endpoint
func (h *OrderHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	orderID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid order ID")
		return
	}

	var req UpdateStatusRequest
	if err := middleware.DecodeAndValidate(r, &req); err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	update := service.StatusUpdateRequest{TrackingNumber: req.TrackingNumber}
	if req.OrderStatus != nil {
		status := domain.OrderStatus(*req.OrderStatus)
		update.OrderStatus = &status
	}
	if req.PaymentStatus != nil {
		status := domain.PaymentStatus(*req.PaymentStatus)
		update.PaymentStatus = &status
	}

	order, err := h.orderService.UpdateStatus(r.Context(), orderID, update)
	if err != nil {
		h.respondOrderError(w, err, "Failed to update order status")
		return
	}

	h.logger.Info("Order status updated",
		zap.String("order_id", order.ID.String()),
		zap.String("order_status", string(order.OrderStatus)),
		zap.String("payment_status", string(order.PaymentStatus)),
	)
	middleware.RespondWithJSON(w, http.StatusOK, order)
}

// respondOrderError maps service errors to their specific HTTP responses so
// a stock race never turns into a generic server error.
func (h *OrderHandler) respondOrderError(w http.ResponseWriter, err error, logMsg string) {
	switch {
	case errors.Is(err, service.ErrEmptyOrder):
		middleware.RespondWithError(w, http.StatusBadRequest, "order must contain at least one item")
	case errors.Is(err, service.ErrInvalidQuantity):
		middleware.RespondWithError(w, http.StatusBadRequest, "item quantity must be positive")
	case errors.Is(err, repository.ErrProductNotFound):
		middleware.RespondWithError(w, http.StatusBadRequest, "product not found or inactive")
	case errors.Is(err, repository.ErrInsufficientStock):
		middleware.RespondWithError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, repository.ErrOrderNotFound):
		middleware.RespondWithError(w, http.StatusNotFound, "order not found")
	case errors.Is(err, service.ErrOrderAccessDenied):
		middleware.RespondWithError(w, http.StatusForbidden, "access denied")
	case errors.Is(err, service.ErrInvalidStatus):
		middleware.RespondWithError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, repository.ErrIllegalTransition):
		middleware.RespondWithError(w, http.StatusConflict, err.Error())
	case errors.Is(err, service.ErrStorageUnavailable):
		h.logger.Error(logMsg, zap.Error(err))
		middleware.RespondWithError(w, http.StatusServiceUnavailable, "storage unavailable, try again later")
	default:
		h.logger.Error(logMsg, zap.Error(err))
		middleware.RespondWithError(w, http.StatusInternalServerError, "internal server error")
	}
}

// paginationParams reads page/limit query parameters with sane bounds
func paginationParams(r *http.Request, defaultSize int) (page, pageSize int) {
	page, _ = strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	pageSize, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	if pageSize < 1 || pageSize > 100 {
		pageSize = defaultSize
	}
	return page, pageSize
}

func totalPages(total, pageSize int) int {
	if pageSize <= 0 {
		return 0
	}
	return (total + pageSize - 1) / pageSize
}
