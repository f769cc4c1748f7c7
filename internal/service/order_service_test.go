package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"stylemart/internal/domain"
	"stylemart/internal/repository"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
)

// mockOrderRepository implements repository.OrderRepository against an
// in-memory stock table, with the same conditional-decrement semantics as
// the real one. A mutex stands in for the database's row locking.
type mockOrderRepository struct {
	mu         sync.Mutex
	stock      map[uuid.UUID]int
	prices     map[uuid.UUID]int64
	orders     map[uuid.UUID]*domain.Order
	failures   int   // number of injected failures before succeeding
	failureErr error // error to inject; defaults to a transient one
	calls      int
}

func newMockOrderRepository() *mockOrderRepository {
	return &mockOrderRepository{
		stock:  make(map[uuid.UUID]int),
		prices: make(map[uuid.UUID]int64),
		orders: make(map[uuid.UUID]*domain.Order),
	}
}

func (m *mockOrderRepository) addProduct(id uuid.UUID, price int64, stock int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stock[id] = stock
	m.prices[id] = price
}

func (m *mockOrderRepository) stockOf(id uuid.UUID) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stock[id]
}

func (m *mockOrderRepository) PlaceOrder(ctx context.Context, order *domain.Order, taxRatePercent int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls++
	if m.failures > 0 {
		m.failures--
		if m.failureErr != nil {
			return m.failureErr
		}
		return errors.New("connection reset by peer")
	}

	// All-or-nothing: check every line before decrementing any
	for _, item := range order.Items {
		stock, exists := m.stock[item.ProductID]
		if !exists {
			return repository.ErrProductNotFound
		}
		if stock < item.Quantity {
			return &repository.InsufficientStockError{ProductName: "mock product"}
		}
	}

	for i := range order.Items {
		item := &order.Items[i]
		m.stock[item.ProductID] -= item.Quantity
		item.ID = uuid.New()
		item.OrderID = order.ID
		item.Name = "mock product"
		item.Price = m.prices[item.ProductID]
	}

	order.ComputeTotals(taxRatePercent)
	m.orders[order.ID] = order
	return nil
}

func (m *mockOrderRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	order, exists := m.orders[id]
	if !exists {
		return nil, repository.ErrOrderNotFound
	}
	return order, nil
}

func (m *mockOrderRepository) ListByUser(ctx context.Context, userID uuid.UUID, page, pageSize int) ([]*domain.Order, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	orders := []*domain.Order{}
	for _, order := range m.orders {
		if order.UserID == userID {
			orders = append(orders, order)
		}
	}
	return orders, len(orders), nil
}

func (m *mockOrderRepository) List(ctx context.Context, filter repository.OrderFilter, page, pageSize int) ([]*domain.Order, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	orders := []*domain.Order{}
	for _, order := range m.orders {
		orders = append(orders, order)
	}
	return orders, len(orders), nil
}

func (m *mockOrderRepository) UpdateStatus(ctx context.Context, id uuid.UUID, change repository.StatusChange) (*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	order, exists := m.orders[id]
	if !exists {
		return nil, repository.ErrOrderNotFound
	}
	if change.OrderStatus != nil && *change.OrderStatus != order.OrderStatus {
		if !order.OrderStatus.CanTransitionTo(*change.OrderStatus) {
			return nil, repository.ErrIllegalTransition
		}
		if *change.OrderStatus == domain.OrderStatusDelivered {
			effective := order.PaymentStatus
			if change.PaymentStatus != nil {
				effective = *change.PaymentStatus
			}
			if order.PaymentMethod != domain.PaymentMethodCOD &&
				effective != domain.PaymentStatusPaid && effective != domain.PaymentStatusRefunded {
				return nil, repository.ErrIllegalTransition
			}
		}
		if *change.OrderStatus == domain.OrderStatusCancelled && order.OrderStatus.RestoresStockOnCancel() {
			for _, item := range order.Items {
				m.stock[item.ProductID] += item.Quantity
			}
		}
		order.OrderStatus = *change.OrderStatus
	}
	if change.PaymentStatus != nil {
		order.PaymentStatus = *change.PaymentStatus
	}
	if change.TrackingNumber != nil {
		order.TrackingNumber = *change.TrackingNumber
	}
	return order, nil
}

type mockCartRepository struct {
	mu      sync.Mutex
	items   []*domain.CartItem
	cleared []uuid.UUID
	failure error
}

func (m *mockCartRepository) List(ctx context.Context, userID uuid.UUID) ([]*domain.CartItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	items := []*domain.CartItem{}
	for _, item := range m.items {
		if item.UserID == userID {
			items = append(items, item)
		}
	}
	return items, nil
}

func (m *mockCartRepository) Upsert(ctx context.Context, item *domain.CartItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, stored := range m.items {
		if stored.UserID == item.UserID && stored.ProductID == item.ProductID {
			stored.Quantity += item.Quantity
			stored.Size = item.Size
			stored.Color = item.Color
			return nil
		}
	}
	m.items = append(m.items, item)
	return nil
}

func (m *mockCartRepository) UpdateQuantity(ctx context.Context, userID, itemID uuid.UUID, quantity int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, stored := range m.items {
		if stored.UserID == userID && stored.ID == itemID {
			stored.Quantity = quantity
			return nil
		}
	}
	return repository.ErrCartItemNotFound
}

func (m *mockCartRepository) Remove(ctx context.Context, userID, itemID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, stored := range m.items {
		if stored.UserID == userID && stored.ID == itemID {
			m.items = append(m.items[:i], m.items[i+1:]...)
			return nil
		}
	}
	return repository.ErrCartItemNotFound
}

func (m *mockCartRepository) Clear(ctx context.Context, userID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failure != nil {
		return m.failure
	}
	m.cleared = append(m.cleared, userID)
	return nil
}

func newTestOrderService(orderRepo *mockOrderRepository, cartRepo *mockCartRepository) OrderService {
	return NewOrderService(orderRepo, cartRepo, 15000, 11, 3, zap.NewNop())
}

func testAddress() domain.ShippingAddress {
	return domain.ShippingAddress{
		Name:       "Test Receiver",
		Phone:      "+628123456789",
		Address:    "Jl. Test No. 1",
		City:       "Jakarta",
		PostalCode: "12345",
	}
}

func TestPlaceOrder_EmptyOrderRejected(t *testing.T) {
	svc := newTestOrderService(newMockOrderRepository(), &mockCartRepository{})

	_, err := svc.PlaceOrder(context.Background(), uuid.New(), PlaceOrderRequest{
		ShippingAddress: testAddress(),
		PaymentMethod:   "bank_transfer",
	})
	if !errors.Is(err, ErrEmptyOrder) {
		t.Errorf("Expected ErrEmptyOrder, got %v", err)
	}
}

func TestPlaceOrder_NonPositiveQuantityRejected(t *testing.T) {
	repo := newMockOrderRepository()
	productID := uuid.New()
	repo.addProduct(productID, 100000, 10)
	svc := newTestOrderService(repo, &mockCartRepository{})

	for _, quantity := range []int{0, -1} {
		_, err := svc.PlaceOrder(context.Background(), uuid.New(), PlaceOrderRequest{
			Items:           []OrderLine{{ProductID: productID, Quantity: quantity}},
			ShippingAddress: testAddress(),
			PaymentMethod:   "bank_transfer",
		})
		if !errors.Is(err, ErrInvalidQuantity) {
			t.Errorf("Expected ErrInvalidQuantity for quantity %d, got %v", quantity, err)
		}
	}
	if repo.calls != 0 {
		t.Errorf("Expected repository untouched for invalid input, got %d calls", repo.calls)
	}
}

func TestPlaceOrder_ComputesScenarioTotals(t *testing.T) {
	repo := newMockOrderRepository()
	productID := uuid.New()
	repo.addProduct(productID, 100000, 5)
	cart := &mockCartRepository{}
	svc := newTestOrderService(repo, cart)

	userID := uuid.New()
	order, err := svc.PlaceOrder(context.Background(), userID, PlaceOrderRequest{
		Items:           []OrderLine{{ProductID: productID, Quantity: 3}},
		ShippingAddress: testAddress(),
		PaymentMethod:   "bank_transfer",
	})
	if err != nil {
		t.Fatalf("PlaceOrder failed: %v", err)
	}

	if order.Subtotal != 300000 {
		t.Errorf("Expected subtotal 300000, got %d", order.Subtotal)
	}
	if order.Tax != 33000 {
		t.Errorf("Expected tax 33000, got %d", order.Tax)
	}
	if order.ShippingCost != 15000 {
		t.Errorf("Expected shipping cost 15000, got %d", order.ShippingCost)
	}
	if order.Total != 348000 {
		t.Errorf("Expected total 348000, got %d", order.Total)
	}
	if order.OrderStatus != domain.OrderStatusPending {
		t.Errorf("Expected new order pending, got %s", order.OrderStatus)
	}
	if stock := repo.stockOf(productID); stock != 2 {
		t.Errorf("Expected stock 2, got %d", stock)
	}
	if len(cart.cleared) != 1 || cart.cleared[0] != userID {
		t.Error("Expected cart cleared for the ordering user")
	}
}

func TestPlaceOrder_DomainErrorsAreNotRetried(t *testing.T) {
	repo := newMockOrderRepository()
	productID := uuid.New()
	repo.addProduct(productID, 100000, 2)
	svc := newTestOrderService(repo, &mockCartRepository{})

	_, err := svc.PlaceOrder(context.Background(), uuid.New(), PlaceOrderRequest{
		Items:           []OrderLine{{ProductID: productID, Quantity: 3}},
		ShippingAddress: testAddress(),
		PaymentMethod:   "bank_transfer",
	})
	if !errors.Is(err, repository.ErrInsufficientStock) {
		t.Fatalf("Expected ErrInsufficientStock, got %v", err)
	}
	if repo.calls != 1 {
		t.Errorf("Expected no retries on a domain error, got %d attempts", repo.calls)
	}
	if stock := repo.stockOf(productID); stock != 2 {
		t.Errorf("Expected stock unchanged at 2, got %d", stock)
	}
}

func TestPlaceOrder_UnknownProductFailsOrder(t *testing.T) {
	repo := newMockOrderRepository()
	svc := newTestOrderService(repo, &mockCartRepository{})

	_, err := svc.PlaceOrder(context.Background(), uuid.New(), PlaceOrderRequest{
		Items:           []OrderLine{{ProductID: uuid.New(), Quantity: 1}},
		ShippingAddress: testAddress(),
		PaymentMethod:   "bank_transfer",
	})
	if !errors.Is(err, repository.ErrProductNotFound) {
		t.Errorf("Expected ErrProductNotFound, got %v", err)
	}
}

func TestPlaceOrder_TransientFailureIsRetried(t *testing.T) {
	repo := newMockOrderRepository()
	productID := uuid.New()
	repo.addProduct(productID, 80000, 10)
	repo.failures = 2
	svc := newTestOrderService(repo, &mockCartRepository{})

	order, err := svc.PlaceOrder(context.Background(), uuid.New(), PlaceOrderRequest{
		Items:           []OrderLine{{ProductID: productID, Quantity: 1}},
		ShippingAddress: testAddress(),
		PaymentMethod:   "bank_transfer",
	})
	if err != nil {
		t.Fatalf("Expected success after transient failures, got %v", err)
	}
	if repo.calls != 3 {
		t.Errorf("Expected 3 attempts, got %d", repo.calls)
	}
	if order.Total != 80000+15000+8800 {
		t.Errorf("Unexpected total %d", order.Total)
	}
}

func TestPlaceOrder_ExhaustedRetriesReportStorageUnavailable(t *testing.T) {
	repo := newMockOrderRepository()
	productID := uuid.New()
	repo.addProduct(productID, 80000, 10)
	repo.failures = 10
	svc := newTestOrderService(repo, &mockCartRepository{})

	_, err := svc.PlaceOrder(context.Background(), uuid.New(), PlaceOrderRequest{
		Items:           []OrderLine{{ProductID: productID, Quantity: 1}},
		ShippingAddress: testAddress(),
		PaymentMethod:   "bank_transfer",
	})
	if !errors.Is(err, ErrStorageUnavailable) {
		t.Fatalf("Expected ErrStorageUnavailable, got %v", err)
	}
	// placeRetries=3 means 1 initial attempt plus 3 retries
	if repo.calls != 4 {
		t.Errorf("Expected 4 attempts before giving up, got %d", repo.calls)
	}
	if stock := repo.stockOf(productID); stock != 10 {
		t.Errorf("Expected stock unchanged at 10, got %d", stock)
	}
}

func TestPlaceOrder_ConstraintViolationIsNotRetried(t *testing.T) {
	repo := newMockOrderRepository()
	productID := uuid.New()
	repo.addProduct(productID, 80000, 10)
	repo.failures = 10
	repo.failureErr = &pgconn.PgError{Code: "23505", ConstraintName: "orders_order_number_key"}
	svc := newTestOrderService(repo, &mockCartRepository{})

	_, err := svc.PlaceOrder(context.Background(), uuid.New(), PlaceOrderRequest{
		Items:           []OrderLine{{ProductID: productID, Quantity: 1}},
		ShippingAddress: testAddress(),
		PaymentMethod:   "bank_transfer",
	})
	if err == nil {
		t.Fatal("Expected constraint violation to surface")
	}
	if errors.Is(err, ErrStorageUnavailable) {
		t.Errorf("Expected constraint violation not to read as storage outage, got %v", err)
	}
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		t.Errorf("Expected the postgres error to stay in the chain, got %v", err)
	}
	// A constraint violation cannot succeed on retry
	if repo.calls != 1 {
		t.Errorf("Expected a single attempt, got %d", repo.calls)
	}
}

func TestPlaceOrder_CartClearFailureDoesNotFailOrder(t *testing.T) {
	repo := newMockOrderRepository()
	productID := uuid.New()
	repo.addProduct(productID, 50000, 5)
	cart := &mockCartRepository{failure: errors.New("redis down")}
	svc := newTestOrderService(repo, cart)

	order, err := svc.PlaceOrder(context.Background(), uuid.New(), PlaceOrderRequest{
		Items:           []OrderLine{{ProductID: productID, Quantity: 1}},
		ShippingAddress: testAddress(),
		PaymentMethod:   "bank_transfer",
	})
	if err != nil {
		t.Fatalf("Expected order to succeed despite cart failure, got %v", err)
	}
	if order == nil {
		t.Fatal("Expected placed order")
	}
}

func TestPlaceOrder_ConcurrentLastUnitExactlyOneWins(t *testing.T) {
	repo := newMockOrderRepository()
	productID := uuid.New()
	repo.addProduct(productID, 120000, 1)
	svc := newTestOrderService(repo, &mockCartRepository{})

	var wg sync.WaitGroup
	results := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = svc.PlaceOrder(context.Background(), uuid.New(), PlaceOrderRequest{
				Items:           []OrderLine{{ProductID: productID, Quantity: 1}},
				ShippingAddress: testAddress(),
				PaymentMethod:   "bank_transfer",
			})
		}(i)
	}
	wg.Wait()

	successes := 0
	for _, err := range results {
		if err == nil {
			successes++
		} else if !errors.Is(err, repository.ErrInsufficientStock) {
			t.Errorf("Expected ErrInsufficientStock for the loser, got %v", err)
		}
	}
	if successes != 1 {
		t.Errorf("Expected exactly one winner, got %d", successes)
	}
	if stock := repo.stockOf(productID); stock != 0 {
		t.Errorf("Expected stock 0, got %d", stock)
	}
}

func TestGetOrder_OwnershipEnforced(t *testing.T) {
	repo := newMockOrderRepository()
	productID := uuid.New()
	repo.addProduct(productID, 60000, 3)
	svc := newTestOrderService(repo, &mockCartRepository{})

	owner := uuid.New()
	order, err := svc.PlaceOrder(context.Background(), owner, PlaceOrderRequest{
		Items:           []OrderLine{{ProductID: productID, Quantity: 1}},
		ShippingAddress: testAddress(),
		PaymentMethod:   "bank_transfer",
	})
	if err != nil {
		t.Fatalf("PlaceOrder failed: %v", err)
	}

	if _, err := svc.GetOrder(context.Background(), owner, false, order.ID); err != nil {
		t.Errorf("Expected owner to read their order, got %v", err)
	}

	stranger := uuid.New()
	if _, err := svc.GetOrder(context.Background(), stranger, false, order.ID); !errors.Is(err, ErrOrderAccessDenied) {
		t.Errorf("Expected ErrOrderAccessDenied for a stranger, got %v", err)
	}

	if _, err := svc.GetOrder(context.Background(), stranger, true, order.ID); err != nil {
		t.Errorf("Expected admin to read any order, got %v", err)
	}
}

func TestUpdateStatus_RejectsUnknownValues(t *testing.T) {
	svc := newTestOrderService(newMockOrderRepository(), &mockCartRepository{})

	bogus := domain.OrderStatus("teleported")
	_, err := svc.UpdateStatus(context.Background(), uuid.New(), StatusUpdateRequest{OrderStatus: &bogus})
	if !errors.Is(err, ErrInvalidStatus) {
		t.Errorf("Expected ErrInvalidStatus, got %v", err)
	}

	bogusPayment := domain.PaymentStatus("maybe")
	_, err = svc.UpdateStatus(context.Background(), uuid.New(), StatusUpdateRequest{PaymentStatus: &bogusPayment})
	if !errors.Is(err, ErrInvalidStatus) {
		t.Errorf("Expected ErrInvalidStatus for payment status, got %v", err)
	}
}

func TestUpdateStatus_CancelRestoresStockThroughService(t *testing.T) {
	repo := newMockOrderRepository()
	productID := uuid.New()
	repo.addProduct(productID, 100000, 5)
	svc := newTestOrderService(repo, &mockCartRepository{})

	order, err := svc.PlaceOrder(context.Background(), uuid.New(), PlaceOrderRequest{
		Items:           []OrderLine{{ProductID: productID, Quantity: 3}},
		ShippingAddress: testAddress(),
		PaymentMethod:   "bank_transfer",
	})
	if err != nil {
		t.Fatalf("PlaceOrder failed: %v", err)
	}
	if stock := repo.stockOf(productID); stock != 2 {
		t.Fatalf("Expected stock 2 after placement, got %d", stock)
	}

	cancelled := domain.OrderStatusCancelled
	updated, err := svc.UpdateStatus(context.Background(), order.ID, StatusUpdateRequest{OrderStatus: &cancelled})
	if err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}
	if updated.OrderStatus != domain.OrderStatusCancelled {
		t.Errorf("Expected cancelled, got %s", updated.OrderStatus)
	}
	if stock := repo.stockOf(productID); stock != 5 {
		t.Errorf("Expected stock restored to 5, got %d", stock)
	}
}

func TestUpdateStatus_IllegalTransitionSurfaces(t *testing.T) {
	repo := newMockOrderRepository()
	productID := uuid.New()
	repo.addProduct(productID, 100000, 5)
	svc := newTestOrderService(repo, &mockCartRepository{})

	order, err := svc.PlaceOrder(context.Background(), uuid.New(), PlaceOrderRequest{
		Items:           []OrderLine{{ProductID: productID, Quantity: 1}},
		ShippingAddress: testAddress(),
		PaymentMethod:   "bank_transfer",
	})
	if err != nil {
		t.Fatalf("PlaceOrder failed: %v", err)
	}

	delivered := domain.OrderStatusDelivered
	paid := domain.PaymentStatusPaid
	if _, err := svc.UpdateStatus(context.Background(), order.ID, StatusUpdateRequest{OrderStatus: &delivered, PaymentStatus: &paid}); err != nil {
		t.Fatalf("Transition to delivered failed: %v", err)
	}

	pending := domain.OrderStatusPending
	_, err = svc.UpdateStatus(context.Background(), order.ID, StatusUpdateRequest{OrderStatus: &pending})
	if !errors.Is(err, repository.ErrIllegalTransition) {
		t.Errorf("Expected ErrIllegalTransition, got %v", err)
	}
}

func TestUpdateStatus_DeliveryBeforePaymentRejected(t *testing.T) {
	repo := newMockOrderRepository()
	productID := uuid.New()
	repo.addProduct(productID, 100000, 5)
	svc := newTestOrderService(repo, &mockCartRepository{})

	order, err := svc.PlaceOrder(context.Background(), uuid.New(), PlaceOrderRequest{
		Items:           []OrderLine{{ProductID: productID, Quantity: 1}},
		ShippingAddress: testAddress(),
		PaymentMethod:   "bank_transfer",
	})
	if err != nil {
		t.Fatalf("PlaceOrder failed: %v", err)
	}

	delivered := domain.OrderStatusDelivered
	_, err = svc.UpdateStatus(context.Background(), order.ID, StatusUpdateRequest{OrderStatus: &delivered})
	if !errors.Is(err, repository.ErrIllegalTransition) {
		t.Errorf("Expected ErrIllegalTransition for unpaid delivery, got %v", err)
	}
}
