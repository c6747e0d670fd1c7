package invoicing

import (
	"time"

	"github.com/erp/invoicing/internal/domain/invoicing"
	"github.com/erp/invoicing/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// =============================================================================
// Request DTOs
// =============================================================================

// CreateInvoiceRequest represents a request to create a new invoice.
// Totals are never accepted from the caller.
type CreateInvoiceRequest struct {
	ClientID       int64                      `json:"client_id" binding:"required,gt=0"`
	Items          []CreateInvoiceItemRequest `json:"items" binding:"required,min=1,max=100,dive"`
	Draft          bool                       `json:"draft"`
	IdempotencyKey string                     `json:"-"` // Set from the Idempotency-Key header
}

// CreateInvoiceItemRequest represents one line of a creation request
type CreateInvoiceItemRequest struct {
	Description string          `json:"description" binding:"required,min=1,max=500"`
	Quantity    int             `json:"quantity" binding:"required,gt=0"`
	UnitPrice   decimal.Decimal `json:"unit_price" binding:"decimal_gte0"`
	TaxCode     string          `json:"tax_code" binding:"max=50"`
}

// VoidInvoiceRequest represents a request to void an issued invoice
type VoidInvoiceRequest struct {
	Reason string `json:"reason" binding:"required,min=1,max=500"`
}

// ListInvoicesQuery holds paging and filter parameters of invoice listings
type ListInvoicesQuery struct {
	Page     int    `form:"page" binding:"omitempty,min=1"`
	PageSize int    `form:"page_size" binding:"omitempty,min=1,max=100"`
	Status   string `form:"status" binding:"omitempty,oneof=DRAFT ISSUED VOIDED"`
	Search   string `form:"search" binding:"max=50"`
	OrderBy  string `form:"order_by"`
	OrderDir string `form:"order_dir" binding:"omitempty,oneof=asc desc ASC DESC"`
}

// toFilter converts the query to a shared filter with defaults applied
func (q ListInvoicesQuery) toFilter() shared.Filter {
	f := shared.DefaultFilter()
	if q.Page > 0 {
		f.Page = q.Page
	}
	if q.PageSize > 0 {
		f.PageSize = q.PageSize
	}
	if q.OrderBy != "" {
		f.OrderBy = q.OrderBy
	}
	if q.OrderDir != "" {
		f.OrderDir = q.OrderDir
	}
	f.Search = q.Search
	return f
}

// =============================================================================
// Response DTOs
// =============================================================================

// InvoiceItemResponse represents a line item in API responses
type InvoiceItemResponse struct {
	Description    string          `json:"description"`
	Quantity       int             `json:"quantity"`
	UnitPrice      decimal.Decimal `json:"unit_price"`
	TaxCode        string          `json:"tax_code"`
	Subtotal       decimal.Decimal `json:"subtotal"`
	TaxAmount      decimal.Decimal `json:"tax_amount"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	Total          decimal.Decimal `json:"total"`
}

// InvoiceResponse represents an invoice in API responses
type InvoiceResponse struct {
	ID            uuid.UUID             `json:"id"`
	Number        string                `json:"number"`
	ClientID      int64                 `json:"client_id"`
	Status        string                `json:"status"`
	Currency      string                `json:"currency"`
	Items         []InvoiceItemResponse `json:"items"`
	Subtotal      decimal.Decimal       `json:"subtotal"`
	TaxTotal      decimal.Decimal       `json:"tax_total"`
	DiscountTotal decimal.Decimal       `json:"discount_total"`
	GrandTotal    decimal.Decimal       `json:"grand_total"`
	IssuedAt      *time.Time            `json:"issued_at,omitempty"`
	VoidedAt      *time.Time            `json:"voided_at,omitempty"`
	VoidReason    string                `json:"void_reason,omitempty"`
	Version       int                   `json:"version"`
	CreatedAt     time.Time             `json:"created_at"`
	UpdatedAt     time.Time             `json:"updated_at"`
}

// InvoiceListResponse is a page of invoices
type InvoiceListResponse = shared.Paginated[InvoiceResponse]

// ToInvoiceResponse converts the domain Invoice to a response DTO
func ToInvoiceResponse(inv *invoicing.Invoice) InvoiceResponse {
	items := make([]InvoiceItemResponse, len(inv.Items))
	for i, item := range inv.Items {
		items[i] = InvoiceItemResponse{
			Description:    item.Description(),
			Quantity:       item.Quantity().Int(),
			UnitPrice:      item.UnitPrice().Amount(),
			TaxCode:        item.TaxCode(),
			Subtotal:       item.Subtotal().Amount(),
			TaxAmount:      item.TaxAmount().Amount(),
			DiscountAmount: item.DiscountAmount().Amount(),
			Total:          item.Total().Amount(),
		}
	}
	return InvoiceResponse{
		ID:            inv.ID,
		Number:        inv.Number.String(),
		ClientID:      inv.ClientID.Int64(),
		Status:        inv.Status.String(),
		Currency:      string(inv.GrandTotal.Currency()),
		Items:         items,
		Subtotal:      inv.Subtotal.Amount(),
		TaxTotal:      inv.TaxTotal.Amount(),
		DiscountTotal: inv.DiscountTotal.Amount(),
		GrandTotal:    inv.GrandTotal.Amount(),
		IssuedAt:      inv.IssuedAt,
		VoidedAt:      inv.VoidedAt,
		VoidReason:    inv.VoidReason,
		Version:       inv.Version,
		CreatedAt:     inv.CreatedAt,
		UpdatedAt:     inv.UpdatedAt,
	}
}

// ToInvoiceResponses converts a slice of invoices
func ToInvoiceResponses(invoices []invoicing.Invoice) []InvoiceResponse {
	out := make([]InvoiceResponse, len(invoices))
	for i := range invoices {
		out[i] = ToInvoiceResponse(&invoices[i])
	}
	return out
}
