package domain

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// OrderStatus is the fulfillment state of an order. Orders only ever move
// forward along the sequence below, or sideways to cancelled.
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusConfirmed  OrderStatus = "confirmed"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusShipped    OrderStatus = "shipped"
	OrderStatusDelivered  OrderStatus = "delivered"
	OrderStatusCancelled  OrderStatus = "cancelled"
)

// PaymentMethodCOD marks cash-on-delivery orders. They settle payment at
// the door, so they are the one case where delivery may precede payment.
const PaymentMethodCOD = "cod"

// PaymentStatus is tracked independently of the fulfillment status
type PaymentStatus string

const (
	PaymentStatusPending  PaymentStatus = "pending"
	PaymentStatusPaid     PaymentStatus = "paid"
	PaymentStatusFailed   PaymentStatus = "failed"
	PaymentStatusRefunded PaymentStatus = "refunded"
)

// statusRank orders the forward fulfillment sequence. Cancelled is not part
// of the sequence and is handled separately.
var statusRank = map[OrderStatus]int{
	OrderStatusPending:    0,
	OrderStatusConfirmed:  1,
	OrderStatusProcessing: 2,
	OrderStatusShipped:    3,
	OrderStatusDelivered:  4,
}

// Valid reports whether s is a known order status
func (s OrderStatus) Valid() bool {
	if s == OrderStatusCancelled {
		return true
	}
	_, ok := statusRank[s]
	return ok
}

// IsTerminal reports whether no further transitions are allowed from s
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusDelivered || s == OrderStatusCancelled
}

// CanTransitionTo reports whether moving from s to next is a legal
// transition: a strictly forward move along the fulfillment sequence, or a
// move to cancelled from any non-terminal state.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	if s.IsTerminal() {
		return false
	}
	if next == OrderStatusCancelled {
		return true
	}
	from, ok := statusRank[s]
	if !ok {
		return false
	}
	to, ok := statusRank[next]
	if !ok {
		return false
	}
	return to > from
}

// RestoresStockOnCancel reports whether cancelling an order in state s must
// restore the reserved quantities. Once an order is processing the stock has
// left the shelf and restoration is a manual restocking concern.
func (s OrderStatus) RestoresStockOnCancel() bool {
	return s == OrderStatusPending || s == OrderStatusConfirmed
}

// Valid reports whether p is a known payment status
func (p PaymentStatus) Valid() bool {
	switch p {
	case PaymentStatusPending, PaymentStatusPaid, PaymentStatusFailed, PaymentStatusRefunded:
		return true
	}
	return false
}

// OrderItem is a line of an order. Name, price and image are snapshotted
// from the product at the moment stock was reserved, so later product edits
// or deletions never invalidate historical orders.
type OrderItem struct {
	ID        uuid.UUID `json:"id" db:"id"`
	OrderID   uuid.UUID `json:"-" db:"order_id"`
	ProductID uuid.UUID `json:"product_id" db:"product_id"`
	Name      string    `json:"name" db:"name"`
	Price     int64     `json:"price" db:"price"`
	Quantity  int       `json:"quantity" db:"quantity"`
	Size      string    `json:"size,omitempty" db:"size"`
	Color     string    `json:"color,omitempty" db:"color"`
	ImageURL  string    `json:"image_url" db:"image_url"`
}

// ShippingAddress is the address snapshot taken at checkout
type ShippingAddress struct {
	Name       string `json:"name" validate:"required"`
	Phone      string `json:"phone" validate:"required"`
	Address    string `json:"address" validate:"required"`
	City       string `json:"city" validate:"required"`
	PostalCode string `json:"postal_code" validate:"required"`
}

// Order is the durable record of a placed order. Orders are never deleted;
// they only terminate in delivered or cancelled.
type Order struct {
	ID              uuid.UUID       `json:"id" db:"id"`
	OrderNumber     string          `json:"order_number" db:"order_number"`
	UserID          uuid.UUID       `json:"user_id" db:"user_id"`
	Items           []OrderItem     `json:"items"`
	ShippingAddress ShippingAddress `json:"shipping_address"`
	PaymentMethod   string          `json:"payment_method" db:"payment_method"`
	PaymentStatus   PaymentStatus   `json:"payment_status" db:"payment_status"`
	OrderStatus     OrderStatus     `json:"order_status" db:"order_status"`
	TrackingNumber  string          `json:"tracking_number,omitempty" db:"tracking_number"`
	Subtotal        int64           `json:"subtotal" db:"subtotal"`
	ShippingCost    int64           `json:"shipping_cost" db:"shipping_cost"`
	Tax             int64           `json:"tax" db:"tax"`
	Total           int64           `json:"total" db:"total"`
	Notes           string          `json:"notes,omitempty" db:"notes"`
	DeliveredAt     *time.Time      `json:"delivered_at,omitempty" db:"delivered_at"`
	CreatedAt       time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at" db:"updated_at"`
}

// ComputeTotals fills Subtotal, Tax and Total from the item snapshots, the
// order's flat shipping cost and an integer tax percentage. All amounts are
// minor currency units; the tax division truncates, so repeated runs over
// the same cart always produce identical totals.
func (o *Order) ComputeTotals(taxRatePercent int64) {
	var subtotal int64
	for _, item := range o.Items {
		subtotal += item.Price * int64(item.Quantity)
	}
	o.Subtotal = subtotal
	o.Tax = subtotal * taxRatePercent / 100
	o.Total = o.Subtotal + o.ShippingCost + o.Tax
}

// NewOrderNumber builds a unique, unguessable human-readable order number:
// a UTC timestamp plus a random hex suffix.
func NewOrderNumber(now time.Time) string {
	suffix := make([]byte, 4)
	if _, err := rand.Read(suffix); err != nil {
		// crypto/rand failing is effectively fatal elsewhere; fall back to
		// uuid entropy rather than panic in the order path.
		id := uuid.New()
		copy(suffix, id[:4])
	}
	return fmt.Sprintf("ORD-%s-%s", now.UTC().Format("20060102150405"), hex.EncodeToString(suffix))
}
