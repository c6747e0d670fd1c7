package invoicing

import (
	"fmt"
	"strings"
	"time"

	"github.com/erp/invoicing/internal/domain/shared"
	"github.com/erp/invoicing/internal/domain/shared/valueobject"
)

// AggregateTypeInvoice is the aggregate type name used in domain events
const AggregateTypeInvoice = "Invoice"

// MaxItemsPerInvoice bounds the number of line items of a single invoice
const MaxItemsPerInvoice = 100

// MaxVoidReasonLength is the maximum length of a void reason
const MaxVoidReasonLength = 500

// InvoiceStatus represents the lifecycle state of an invoice
type InvoiceStatus string

const (
	InvoiceStatusDraft  InvoiceStatus = "DRAFT"
	InvoiceStatusIssued InvoiceStatus = "ISSUED"
	InvoiceStatusVoided InvoiceStatus = "VOIDED"
)

// IsValid checks if the status is a known InvoiceStatus
func (s InvoiceStatus) IsValid() bool {
	switch s {
	case InvoiceStatusDraft, InvoiceStatusIssued, InvoiceStatusVoided:
		return true
	}
	return false
}

// String returns the string representation of InvoiceStatus
func (s InvoiceStatus) String() string {
	return string(s)
}

// CanTransitionTo checks if the status can transition to the target status
func (s InvoiceStatus) CanTransitionTo(target InvoiceStatus) bool {
	switch s {
	case InvoiceStatusDraft:
		return target == InvoiceStatusIssued
	case InvoiceStatusIssued:
		return target == InvoiceStatusVoided
	case InvoiceStatusVoided:
		return false // terminal
	}
	return false
}

// Invoice is the aggregate root of the invoicing context.
// Totals are always derived from the line items.
type Invoice struct {
	shared.AggregateRoot
	Number        InvoiceNumber
	ClientID      ClientID
	Items         []LineItem
	Status        InvoiceStatus
	Subtotal      valueobject.Money
	TaxTotal      valueobject.Money
	DiscountTotal valueobject.Money
	GrandTotal    valueobject.Money
	IssuedAt      *time.Time
	VoidedAt      *time.Time
	VoidReason    string
}

// NewInvoice assembles a draft invoice from already priced line items
func NewInvoice(number InvoiceNumber, clientID ClientID, items []LineItem, now time.Time) (*Invoice, error) {
	if _, err := NewInvoiceNumber(number.String()); err != nil {
		return nil, err
	}
	if clientID <= 0 {
		return nil, shared.NewValidationError("Client ID must be a positive number", "client_id: required")
	}
	if len(items) == 0 {
		return nil, shared.NewValidationError("Invoice must contain at least one item", "items: must not be empty")
	}
	if len(items) > MaxItemsPerInvoice {
		return nil, shared.NewValidationError("Invoice has too many items",
			fmt.Sprintf("items: must not exceed %d entries", MaxItemsPerInvoice))
	}

	inv := &Invoice{
		AggregateRoot: shared.NewAggregateRoot(now),
		Number:        number,
		ClientID:      clientID,
		Items:         append([]LineItem(nil), items...),
		Status:        InvoiceStatusDraft,
	}
	if err := inv.recalculateTotals(); err != nil {
		return nil, err
	}
	return inv, nil
}

// recalculateTotals derives all invoice totals from the line items
func (i *Invoice) recalculateTotals() error {
	currency := i.Items[0].Subtotal().Currency()
	subtotal := valueobject.Zero(currency)
	tax := valueobject.Zero(currency)
	discount := valueobject.Zero(currency)

	var err error
	for idx, item := range i.Items {
		if subtotal, err = subtotal.Add(item.Subtotal()); err != nil {
			return shared.NewValidationError("Invoice items must share one currency", fmt.Sprintf("items[%d]: %v", idx, err))
		}
		if tax, err = tax.Add(item.TaxAmount()); err != nil {
			return shared.NewValidationError("Invoice items must share one currency", fmt.Sprintf("items[%d]: %v", idx, err))
		}
		if discount, err = discount.Add(item.DiscountAmount()); err != nil {
			return shared.NewValidationError("Invoice items must share one currency", fmt.Sprintf("items[%d]: %v", idx, err))
		}
	}

	i.Subtotal = subtotal
	i.TaxTotal = tax
	i.DiscountTotal = discount
	i.GrandTotal = subtotal.MustSubtract(discount).MustAdd(tax)
	return nil
}

// Issue moves a draft invoice to ISSUED
func (i *Invoice) Issue(now time.Time) error {
	if !i.Status.CanTransitionTo(InvoiceStatusIssued) {
		return shared.NewDomainError(shared.CodeInvalidState, fmt.Sprintf("Cannot issue invoice in %s status", i.Status))
	}
	i.Status = InvoiceStatusIssued
	i.IssuedAt = &now
	i.Touch(now)
	i.Record(NewInvoiceIssuedEvent(i))
	return nil
}

// Void cancels an issued invoice. VOIDED is terminal.
func (i *Invoice) Void(reason string, now time.Time) error {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return shared.NewValidationError("Void reason is required", "reason: required")
	}
	if len(reason) > MaxVoidReasonLength {
		return shared.NewValidationError("Void reason is too long",
			fmt.Sprintf("reason: must not exceed %d characters", MaxVoidReasonLength))
	}
	switch i.Status {
	case InvoiceStatusVoided:
		return shared.NewConflictError("Invoice is already voided")
	case InvoiceStatusDraft:
		return shared.NewConflictError("Cannot void an invoice that was never issued")
	}
	i.Status = InvoiceStatusVoided
	i.VoidedAt = &now
	i.VoidReason = reason
	i.Touch(now)
	i.Record(NewInvoiceVoidedEvent(i))
	return nil
}

// Signatures returns the tax computation inputs of every item, in order
func (i *Invoice) Signatures() []ItemSignature {
	sigs := make([]ItemSignature, len(i.Items))
	for idx, item := range i.Items {
		sigs[idx] = item.Signature()
	}
	return sigs
}
