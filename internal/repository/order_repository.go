package repository

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"stylemart/internal/domain"

	"github.com/google/uuid"
)

var (
	ErrOrderNotFound     = errors.New("order not found")
	ErrIllegalTransition = errors.New("illegal order status transition")
)

// OrderFilter narrows admin order listings
type OrderFilter struct {
	UserID        *uuid.UUID
	OrderStatus   domain.OrderStatus
	PaymentStatus domain.PaymentStatus
	Search        string
}

// StatusChange is a partial update applied through the status workflow.
// Nil fields are left untouched.
type StatusChange struct {
	OrderStatus    *domain.OrderStatus
	PaymentStatus  *domain.PaymentStatus
	TrackingNumber *string
}

// OrderRepository defines the interface for order data access.
//
// PlaceOrder is the single atomic unit of order intake: every stock
// reservation and the order insert happen in one transaction, so a failure
// on any line rolls back every prior decrement. UpdateStatus locks the order
// row, enforces the transition rules and applies compensating stock
// restoration in the same transaction.
type OrderRepository interface {
	PlaceOrder(ctx context.Context, order *domain.Order, taxRatePercent int64) error
	FindByID(ctx context.Context, id uuid.UUID) (*domain.Order, error)
	ListByUser(ctx context.Context, userID uuid.UUID, page, pageSize int) ([]*domain.Order, int, error)
	List(ctx context.Context, filter OrderFilter, page, pageSize int) ([]*domain.Order, int, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, change StatusChange) (*domain.Order, error)
}

type orderRepository struct {
	db *sql.DB
}

// NewOrderRepository creates a new instance of OrderRepository
func NewOrderRepository(db *sql.DB) OrderRepository {
	return &orderRepository{db: db}
}

// PlaceOrder reserves stock for every line and persists the order in one
// transaction. The order arrives with product IDs and quantities only; the
// name/price/image snapshots are captured here from the conditional
// decrement, and totals are computed from those captured prices. If any
// line's reservation fails the transaction rolls back and no stock moves.
func (r *orderRepository) PlaceOrder(ctx context.Context, order *domain.Order, taxRatePercent int64) error {
	// Reserve in product ID order so two orders touching the same products
	// never take their row locks in opposite order.
	sort.Slice(order.Items, func(i, j int) bool {
		return bytes.Compare(order.Items[i].ProductID[:], order.Items[j].ProductID[:]) < 0
	})

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin order transaction: %w", err)
	}
	defer tx.Rollback()

	for i := range order.Items {
		item := &order.Items[i]

		snapshot, err := reserveStock(ctx, tx, item.ProductID, item.Quantity)
		if err != nil {
			return err
		}

		item.ID = uuid.New()
		item.OrderID = order.ID
		item.Name = snapshot.Name
		item.Price = snapshot.Price
		item.ImageURL = snapshot.ImageURL
	}

	order.ComputeTotals(taxRatePercent)

	_, err = tx.ExecContext(ctx, `
		INSERT INTO orders (id, order_number, user_id, ship_name, ship_phone, ship_address,
		                    ship_city, ship_postal_code, payment_method, payment_status,
		                    order_status, tracking_number, subtotal, shipping_cost, tax, total,
		                    notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
	`,
		order.ID,
		order.OrderNumber,
		order.UserID,
		order.ShippingAddress.Name,
		order.ShippingAddress.Phone,
		order.ShippingAddress.Address,
		order.ShippingAddress.City,
		order.ShippingAddress.PostalCode,
		order.PaymentMethod,
		order.PaymentStatus,
		order.OrderStatus,
		order.TrackingNumber,
		order.Subtotal,
		order.ShippingCost,
		order.Tax,
		order.Total,
		order.Notes,
		order.CreatedAt,
		order.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert order: %w", err)
	}

	for _, item := range order.Items {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO order_items (id, order_id, product_id, name, price, quantity, size, color, image_url)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`,
			item.ID,
			item.OrderID,
			item.ProductID,
			item.Name,
			item.Price,
			item.Quantity,
			item.Size,
			item.Color,
			item.ImageURL,
		)
		if err != nil {
			return fmt.Errorf("failed to insert order item: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit order transaction: %w", err)
	}

	return nil
}

const orderColumns = `id, order_number, user_id, ship_name, ship_phone, ship_address, ship_city,
	ship_postal_code, payment_method, payment_status, order_status, tracking_number,
	subtotal, shipping_cost, tax, total, notes, delivered_at, created_at, updated_at`

func scanOrder(row interface{ Scan(...interface{}) error }) (*domain.Order, error) {
	order := &domain.Order{}
	err := row.Scan(
		&order.ID,
		&order.OrderNumber,
		&order.UserID,
		&order.ShippingAddress.Name,
		&order.ShippingAddress.Phone,
		&order.ShippingAddress.Address,
		&order.ShippingAddress.City,
		&order.ShippingAddress.PostalCode,
		&order.PaymentMethod,
		&order.PaymentStatus,
		&order.OrderStatus,
		&order.TrackingNumber,
		&order.Subtotal,
		&order.ShippingCost,
		&order.Tax,
		&order.Total,
		&order.Notes,
		&order.DeliveredAt,
		&order.CreatedAt,
		&order.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return order, nil
}

// FindByID retrieves an order with its items
func (r *orderRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	query := fmt.Sprintf(`SELECT %s FROM orders WHERE id = $1`, orderColumns)

	order, err := scanOrder(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("failed to find order by ID: %w", err)
	}

	items, err := r.loadItems(ctx, []uuid.UUID{order.ID})
	if err != nil {
		return nil, err
	}
	order.Items = items[order.ID]

	return order, nil
}

// ListByUser retrieves a user's orders, newest first
func (r *orderRepository) ListByUser(ctx context.Context, userID uuid.UUID, page, pageSize int) ([]*domain.Order, int, error) {
	return r.List(ctx, OrderFilter{UserID: &userID}, page, pageSize)
}

// List retrieves orders matching the filter with pagination, newest first
func (r *orderRepository) List(ctx context.Context, filter OrderFilter, page, pageSize int) ([]*domain.Order, int, error) {
	conditions := []string{}
	args := []interface{}{}
	argIndex := 1

	if filter.UserID != nil {
		conditions = append(conditions, fmt.Sprintf("user_id = $%d", argIndex))
		args = append(args, *filter.UserID)
		argIndex++
	}
	if filter.OrderStatus != "" {
		conditions = append(conditions, fmt.Sprintf("order_status = $%d", argIndex))
		args = append(args, filter.OrderStatus)
		argIndex++
	}
	if filter.PaymentStatus != "" {
		conditions = append(conditions, fmt.Sprintf("payment_status = $%d", argIndex))
		args = append(args, filter.PaymentStatus)
		argIndex++
	}
	if strings.TrimSpace(filter.Search) != "" {
		conditions = append(conditions, fmt.Sprintf("order_number ILIKE $%d", argIndex))
		args = append(args, "%"+strings.TrimSpace(filter.Search)+"%")
		argIndex++
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM orders %s", whereClause)
	var total int
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count orders: %w", err)
	}

	offset := (page - 1) * pageSize
	query := fmt.Sprintf(`
		SELECT %s
		FROM orders
		%s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d
	`, orderColumns, whereClause, argIndex, argIndex+1)
	args = append(args, pageSize, offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list orders: %w", err)
	}
	defer rows.Close()

	orders := []*domain.Order{}
	orderIDs := []uuid.UUID{}
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan order: %w", err)
		}
		orders = append(orders, order)
		orderIDs = append(orderIDs, order.ID)
	}
	if err = rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating orders: %w", err)
	}

	if len(orderIDs) > 0 {
		itemsByOrder, err := r.loadItems(ctx, orderIDs)
		if err != nil {
			return nil, 0, err
		}
		for _, order := range orders {
			order.Items = itemsByOrder[order.ID]
		}
	}

	return orders, total, nil
}

func (r *orderRepository) loadItems(ctx context.Context, orderIDs []uuid.UUID) (map[uuid.UUID][]domain.OrderItem, error) {
	placeholders := make([]string, len(orderIDs))
	args := make([]interface{}, len(orderIDs))
	for i, id := range orderIDs {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id
	}

	query := fmt.Sprintf(`
		SELECT id, order_id, product_id, name, price, quantity, size, color, image_url
		FROM order_items
		WHERE order_id IN (%s)
	`, strings.Join(placeholders, ", "))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to load order items: %w", err)
	}
	defer rows.Close()

	itemsByOrder := make(map[uuid.UUID][]domain.OrderItem)
	for rows.Next() {
		item := domain.OrderItem{}
		err := rows.Scan(
			&item.ID,
			&item.OrderID,
			&item.ProductID,
			&item.Name,
			&item.Price,
			&item.Quantity,
			&item.Size,
			&item.Color,
			&item.ImageURL,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order item: %w", err)
		}
		itemsByOrder[item.OrderID] = append(itemsByOrder[item.OrderID], item)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating order items: %w", err)
	}

	return itemsByOrder, nil
}

// UpdateStatus applies a status workflow change under a row lock. The order
// row is locked for the duration of the transaction, the transition is
// validated against the state machine, and a cancellation of a not-yet
// processed order restores the reserved stock before the lock is released.
func (r *orderRepository) UpdateStatus(ctx context.Context, id uuid.UUID, change StatusChange) (*domain.Order, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin status transaction: %w", err)
	}
	defer tx.Rollback()

	var current domain.OrderStatus
	var paymentStatus domain.PaymentStatus
	var paymentMethod string
	var deliveredAt *time.Time
	err = tx.QueryRowContext(ctx,
		`SELECT order_status, payment_status, payment_method, delivered_at FROM orders WHERE id = $1 FOR UPDATE`, id,
	).Scan(&current, &paymentStatus, &paymentMethod, &deliveredAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("failed to lock order row: %w", err)
	}

	newStatus := current
	if change.OrderStatus != nil && *change.OrderStatus != current {
		if !current.CanTransitionTo(*change.OrderStatus) {
			return nil, fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, current, *change.OrderStatus)
		}
		newStatus = *change.OrderStatus

		if newStatus == domain.OrderStatusCancelled && current.RestoresStockOnCancel() {
			if err := r.restoreOrderStock(ctx, tx, id); err != nil {
				return nil, err
			}
		}
		if newStatus == domain.OrderStatusDelivered {
			effective := paymentStatus
			if change.PaymentStatus != nil {
				effective = *change.PaymentStatus
			}
			// Cash on delivery settles at the door; every other method
			// must have reached paid before the parcel is handed over.
			if paymentMethod != domain.PaymentMethodCOD &&
				effective != domain.PaymentStatusPaid && effective != domain.PaymentStatusRefunded {
				return nil, fmt.Errorf("%w: cannot deliver with payment status %s", ErrIllegalTransition, effective)
			}
			now := time.Now().UTC()
			deliveredAt = &now
		}
	}

	sets := []string{"order_status = $2", "delivered_at = $3"}
	args := []interface{}{id, newStatus, deliveredAt}
	argIndex := 4

	if change.PaymentStatus != nil {
		sets = append(sets, fmt.Sprintf("payment_status = $%d", argIndex))
		args = append(args, *change.PaymentStatus)
		argIndex++
	}
	if change.TrackingNumber != nil {
		sets = append(sets, fmt.Sprintf("tracking_number = $%d", argIndex))
		args = append(args, *change.TrackingNumber)
		argIndex++
	}

	query := fmt.Sprintf(`UPDATE orders SET %s WHERE id = $1`, strings.Join(sets, ", "))
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return nil, fmt.Errorf("failed to update order status: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit status transaction: %w", err)
	}

	return r.FindByID(ctx, id)
}

// restoreOrderStock increments stock back for every line of the order,
// inside the caller's transaction.
func (r *orderRepository) restoreOrderStock(ctx context.Context, tx *sql.Tx, orderID uuid.UUID) error {
	rows, err := tx.QueryContext(ctx,
		`SELECT product_id, quantity FROM order_items WHERE order_id = $1`, orderID)
	if err != nil {
		return fmt.Errorf("failed to read order items for restock: %w", err)
	}
	defer rows.Close()

	type line struct {
		productID uuid.UUID
		quantity  int
	}
	lines := []line{}
	for rows.Next() {
		var l line
		if err := rows.Scan(&l.productID, &l.quantity); err != nil {
			return fmt.Errorf("failed to scan order item for restock: %w", err)
		}
		lines = append(lines, l)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating order items for restock: %w", err)
	}

	for _, l := range lines {
		if err := restoreStock(ctx, tx, l.productID, l.quantity); err != nil {
			return err
		}
	}

	return nil
}
