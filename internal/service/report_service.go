package service

import (
	"context"
	"time"

	"stylemart/internal/domain"
	"stylemart/internal/repository"
)

// ReportService exposes the simple read-only admin reporting
type ReportService interface {
	Dashboard(ctx context.Context) (*repository.DashboardStats, error)
	LowStockProducts(ctx context.Context) ([]*domain.Product, error)
}

type reportService struct {
	reportRepo        repository.ReportRepository
	lowStockThreshold int
}

// NewReportService creates a new instance of ReportService
func NewReportService(reportRepo repository.ReportRepository, lowStockThreshold int) ReportService {
	return &reportService{
		reportRepo:        reportRepo,
		lowStockThreshold: lowStockThreshold,
	}
}

func (s *reportService) Dashboard(ctx context.Context) (*repository.DashboardStats, error) {
	return s.reportRepo.Dashboard(ctx, time.Now().UTC(), s.lowStockThreshold)
}

func (s *reportService) LowStockProducts(ctx context.Context) ([]*domain.Product, error) {
	return s.reportRepo.LowStockProducts(ctx, s.lowStockThreshold)
}
