package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"stylemart/internal/domain"
)

// DashboardStats is the read-only admin summary, computed with plain SQL
// aggregates over the orders/users/products tables.
type DashboardStats struct {
	TotalOrders    int   `json:"total_orders"`
	MonthlyOrders  int   `json:"monthly_orders"`
	TotalRevenue   int64 `json:"total_revenue"`
	MonthlyRevenue int64 `json:"monthly_revenue"`
	TotalCustomers int   `json:"total_customers"`
	TotalProducts  int   `json:"total_products"`
	LowStockCount  int   `json:"low_stock_count"`
}

// ReportRepository provides simple read-only reporting queries
type ReportRepository interface {
	Dashboard(ctx context.Context, now time.Time, lowStockThreshold int) (*DashboardStats, error)
	LowStockProducts(ctx context.Context, threshold int) ([]*domain.Product, error)
}

type reportRepository struct {
	db *sql.DB
}

// NewReportRepository creates a new instance of ReportRepository
func NewReportRepository(db *sql.DB) ReportRepository {
	return &reportRepository{db: db}
}

// Dashboard computes the admin dashboard summary. Revenue only counts paid
// orders; monthly figures start at the first of the current month.
func (r *reportRepository) Dashboard(ctx context.Context, now time.Time, lowStockThreshold int) (*DashboardStats, error) {
	startOfMonth := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)

	stats := &DashboardStats{}
	err := r.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM orders),
			(SELECT COUNT(*) FROM orders WHERE created_at >= $1),
			(SELECT COALESCE(SUM(total), 0) FROM orders WHERE payment_status = 'paid'),
			(SELECT COALESCE(SUM(total), 0) FROM orders WHERE payment_status = 'paid' AND created_at >= $1),
			(SELECT COUNT(*) FROM users WHERE role = 'user'),
			(SELECT COUNT(*) FROM products WHERE is_active = TRUE),
			(SELECT COUNT(*) FROM products WHERE is_active = TRUE AND stock < $2)
	`, startOfMonth, lowStockThreshold).Scan(
		&stats.TotalOrders,
		&stats.MonthlyOrders,
		&stats.TotalRevenue,
		&stats.MonthlyRevenue,
		&stats.TotalCustomers,
		&stats.TotalProducts,
		&stats.LowStockCount,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to compute dashboard stats: %w", err)
	}

	return stats, nil
}

// LowStockProducts lists active products below the stock threshold
func (r *reportRepository) LowStockProducts(ctx context.Context, threshold int) ([]*domain.Product, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM products
		WHERE is_active = TRUE AND stock < $1
		ORDER BY stock ASC, name ASC
	`, productColumns)

	rows, err := r.db.QueryContext(ctx, query, threshold)
	if err != nil {
		return nil, fmt.Errorf("failed to list low stock products: %w", err)
	}
	defer rows.Close()

	products := []*domain.Product{}
	for rows.Next() {
		product, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		products = append(products, product)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating low stock products: %w", err)
	}

	return products, nil
}
