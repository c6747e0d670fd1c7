package invoicing

import (
	"time"

	"github.com/erp/invoicing/internal/domain/shared"
	"github.com/erp/invoicing/internal/domain/shared/valueobject"
	"github.com/google/uuid"
)

// Event type constants for invoices
const (
	EventTypeInvoiceIssued = "invoice.issued"
	EventTypeInvoiceVoided = "invoice.voided"
)

// InvoiceIssuedEvent is raised when an invoice is issued
type InvoiceIssuedEvent struct {
	shared.EventMeta
	InvoiceID  uuid.UUID         `json:"invoice_id"`
	Number     string            `json:"number"`
	ClientID   int64             `json:"client_id"`
	ItemCount  int               `json:"item_count"`
	TaxTotal   valueobject.Money `json:"tax_total"`
	GrandTotal valueobject.Money `json:"grand_total"`
	IssuedAt   time.Time         `json:"issued_at"`
}

// NewInvoiceIssuedEvent creates a new InvoiceIssuedEvent
func NewInvoiceIssuedEvent(inv *Invoice) *InvoiceIssuedEvent {
	issuedAt := inv.UpdatedAt
	if inv.IssuedAt != nil {
		issuedAt = *inv.IssuedAt
	}
	return &InvoiceIssuedEvent{
		EventMeta:  shared.NewEventMeta(EventTypeInvoiceIssued, AggregateTypeInvoice, inv.ID, issuedAt),
		InvoiceID:  inv.ID,
		Number:     inv.Number.String(),
		ClientID:   inv.ClientID.Int64(),
		ItemCount:  len(inv.Items),
		TaxTotal:   inv.TaxTotal,
		GrandTotal: inv.GrandTotal,
		IssuedAt:   issuedAt,
	}
}

// BindAggregate sets the invoice id once storage has assigned it
func (e *InvoiceIssuedEvent) BindAggregate(id uuid.UUID) {
	e.EventMeta.BindAggregate(id)
	e.InvoiceID = id
}

// InvoiceVoidedEvent is raised when an issued invoice is voided
type InvoiceVoidedEvent struct {
	shared.EventMeta
	InvoiceID  uuid.UUID         `json:"invoice_id"`
	Number     string            `json:"number"`
	ClientID   int64             `json:"client_id"`
	GrandTotal valueobject.Money `json:"grand_total"`
	Reason     string            `json:"reason"`
	VoidedAt   time.Time         `json:"voided_at"`
}

// NewInvoiceVoidedEvent creates a new InvoiceVoidedEvent
func NewInvoiceVoidedEvent(inv *Invoice) *InvoiceVoidedEvent {
	voidedAt := inv.UpdatedAt
	if inv.VoidedAt != nil {
		voidedAt = *inv.VoidedAt
	}
	return &InvoiceVoidedEvent{
		EventMeta:  shared.NewEventMeta(EventTypeInvoiceVoided, AggregateTypeInvoice, inv.ID, voidedAt),
		InvoiceID:  inv.ID,
		Number:     inv.Number.String(),
		ClientID:   inv.ClientID.Int64(),
		GrandTotal: inv.GrandTotal,
		Reason:     inv.VoidReason,
		VoidedAt:   voidedAt,
	}
}

func (e *InvoiceVoidedEvent) BindAggregate(id uuid.UUID) {
	e.EventMeta.BindAggregate(id)
	e.InvoiceID = id
}
