package transport

import (
	"net/http"

	"stylemart/internal/middleware"
	"stylemart/internal/service"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// AdminHandler handles HTTP requests for the admin reporting surface
type AdminHandler struct {
	reportService service.ReportService
	logger        *zap.Logger
}

// NewAdminHandler creates a new AdminHandler
func NewAdminHandler(reportService service.ReportService, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{
		reportService: reportService,
		logger:        logger,
	}
}

// RegisterRoutes registers all admin reporting routes
func (h *AdminHandler) RegisterRoutes(r chi.Router, authMiddleware, adminMiddleware func(http.Handler) http.Handler) {
	r.Route("/api/admin", func(r chi.Router) {
		r.Use(authMiddleware, adminMiddleware)
		r.Get("/dashboard", h.Dashboard)
		r.Get("/low-stock", h.LowStock)
	})
}

// Dashboard handles the aggregate sales and catalog statistics endpoint
func (h *AdminHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	stats, err := h.reportService.Dashboard(r.Context())
	if err != nil {
		h.logger.Error("Failed to compute dashboard stats", zap.Error(err))
		middleware.RespondWithError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, stats)
}

// LowStock handles listing active products at or below the restock threshold
func (h *AdminHandler) LowStock(w http.ResponseWriter, r *http.Request) {
	products, err := h.reportService.LowStockProducts(r.Context())
	if err != nil {
		h.logger.Error("Failed to list low stock products", zap.Error(err))
		middleware.RespondWithError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, map[string]interface{}{"products": products})
}
