package handler

import (
	appinvoicing "github.com/erp/invoicing/internal/application/invoicing"
	"github.com/erp/invoicing/internal/interfaces/http/dto"
	"github.com/erp/invoicing/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
)

// InvoiceHandler handles invoice API endpoints
type InvoiceHandler struct {
	BaseHandler
	invoiceService *appinvoicing.InvoiceService
}

// NewInvoiceHandler creates a new InvoiceHandler
func NewInvoiceHandler(invoiceService *appinvoicing.InvoiceService) *InvoiceHandler {
	return &InvoiceHandler{
		invoiceService: invoiceService,
	}
}

// Create creates an invoice. An Idempotency-Key header makes re-submissions
// return the invoice created by the first one.
//
//	POST /invoices -> 201 {success, data: invoice}
func (h *InvoiceHandler) Create(c *gin.Context) {
	var req appinvoicing.CreateInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.HandleBindingError(c, err)
		return
	}
	req.IdempotencyKey = c.GetHeader(middleware.IdempotencyHeader)

	invoice, err := h.invoiceService.Create(c.Request.Context(), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Created(c, invoice)
}

// GetByID returns one invoice.
//
//	GET /invoices/:id
func (h *InvoiceHandler) GetByID(c *gin.Context) {
	id, ok := h.bindID(c)
	if !ok {
		return
	}

	invoice, err := h.invoiceService.GetByID(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, invoice)
}

// GetByNumber returns the invoice with the given number.
//
//	GET /invoices/number/:number
func (h *InvoiceHandler) GetByNumber(c *gin.Context) {
	var req dto.NumberRequest
	if err := c.ShouldBindUri(&req); err != nil {
		h.HandleBindingError(c, err)
		return
	}

	invoice, err := h.invoiceService.GetByNumber(c.Request.Context(), req.Number)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, invoice)
}

// List returns a page of invoices, optionally filtered by status.
//
//	GET /invoices?page=&page_size=&status=&search=&order_by=&order_dir=
func (h *InvoiceHandler) List(c *gin.Context) {
	var query appinvoicing.ListInvoicesQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		h.HandleBindingError(c, err)
		return
	}

	page, err := h.invoiceService.List(c.Request.Context(), query)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Page(c, dto.NewPageResponse(*page))
}

// ListByClient returns a page of one client's invoices.
//
//	GET /clients/:client_id/invoices
func (h *InvoiceHandler) ListByClient(c *gin.Context) {
	var uri dto.ClientIDRequest
	if err := c.ShouldBindUri(&uri); err != nil {
		h.HandleBindingError(c, err)
		return
	}
	var query appinvoicing.ListInvoicesQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		h.HandleBindingError(c, err)
		return
	}

	page, err := h.invoiceService.ListByClient(c.Request.Context(), uri.ClientID, query)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Page(c, dto.NewPageResponse(*page))
}

// Issue moves a draft invoice to Issued.
//
//	POST /invoices/:id/issue
func (h *InvoiceHandler) Issue(c *gin.Context) {
	id, ok := h.bindID(c)
	if !ok {
		return
	}

	invoice, err := h.invoiceService.Issue(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, invoice)
}

// Void cancels an issued invoice.
//
//	POST /invoices/:id/void {reason}
func (h *InvoiceHandler) Void(c *gin.Context) {
	id, ok := h.bindID(c)
	if !ok {
		return
	}
	var req appinvoicing.VoidInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.HandleBindingError(c, err)
		return
	}

	invoice, err := h.invoiceService.Void(c.Request.Context(), id, req.Reason)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, invoice)
}

// Delete removes an invoice.
//
//	DELETE /invoices/:id -> 204
func (h *InvoiceHandler) Delete(c *gin.Context) {
	id, ok := h.bindID(c)
	if !ok {
		return
	}

	if err := h.invoiceService.Delete(c.Request.Context(), id); err != nil {
		h.HandleError(c, err)
		return
	}

	h.NoContent(c)
}
