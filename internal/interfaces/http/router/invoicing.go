package router

import (
	"github.com/erp/invoicing/internal/interfaces/http/handler"
	"github.com/gin-gonic/gin"
)

// NewInvoicingRoutes declares the invoice endpoints:
//
//	POST   /invoices
//	GET    /invoices
//	GET    /invoices/number/:number
//	GET    /invoices/:id
//	POST   /invoices/:id/issue
//	POST   /invoices/:id/void
//	DELETE /invoices/:id
//	GET    /clients/:client_id/invoices
func NewInvoicingRoutes(h *handler.InvoiceHandler) []RouteRegistrar {
	invoices := NewResourceGroup("/invoices")
	invoices.POST("", h.Create).
		GET("", h.List).
		GET("/number/:number", h.GetByNumber).
		GET("/:id", h.GetByID).
		POST("/:id/issue", h.Issue).
		POST("/:id/void", h.Void).
		DELETE("/:id", h.Delete)

	clients := NewResourceGroup("/clients")
	clients.GET("/:client_id/invoices", h.ListByClient)

	return []RouteRegistrar{invoices, clients}
}

// RegisterHealthRoutes exposes the health endpoints outside the versioned API
func RegisterHealthRoutes(engine *gin.Engine, h *handler.HealthHandler) {
	engine.GET("/health", h.Health)
	engine.GET("/ping", h.Ping)
}
