package models

import (
	"time"

	"github.com/erp/invoicing/internal/domain/invoicing"
	"github.com/erp/invoicing/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// InvoiceModel is the persistence model for the Invoice aggregate root.
type InvoiceModel struct {
	AggregateModel
	Number        string                  `gorm:"type:varchar(50);not null;uniqueIndex:idx_invoices_number"`
	ClientID      int64                   `gorm:"not null;index:idx_invoices_client"`
	Status        invoicing.InvoiceStatus `gorm:"type:varchar(20);not null;default:'DRAFT';index:idx_invoices_status"`
	Currency      string                  `gorm:"type:varchar(3);not null;default:'COP'"`
	Subtotal      decimal.Decimal         `gorm:"type:decimal(18,2);not null;default:0"`
	TaxTotal      decimal.Decimal         `gorm:"type:decimal(18,2);not null;default:0"`
	DiscountTotal decimal.Decimal         `gorm:"type:decimal(18,2);not null;default:0"`
	GrandTotal    decimal.Decimal         `gorm:"type:decimal(18,2);not null;default:0"`
	IssuedAt      *time.Time
	VoidedAt      *time.Time
	VoidReason    string             `gorm:"type:varchar(500)"`
	Items         []InvoiceItemModel `gorm:"foreignKey:InvoiceID;references:ID"`
}

// TableName returns the table name for GORM
func (InvoiceModel) TableName() string {
	return "invoices"
}

// ToDomain converts the persistence model to a domain Invoice.
// Items are expected to be loaded in position order.
func (m *InvoiceModel) ToDomain() *invoicing.Invoice {
	currency := valueobject.Currency(m.Currency)
	money := func(d decimal.Decimal) valueobject.Money {
		v, _ := valueobject.NewMoney(d, currency)
		return v
	}

	inv := &invoicing.Invoice{
		AggregateRoot: m.toRoot(),
		Number:        invoicing.InvoiceNumber(m.Number),
		ClientID:      invoicing.ClientID(m.ClientID),
		Status:        m.Status,
		Subtotal:      money(m.Subtotal),
		TaxTotal:      money(m.TaxTotal),
		DiscountTotal: money(m.DiscountTotal),
		GrandTotal:    money(m.GrandTotal),
		IssuedAt:      m.IssuedAt,
		VoidedAt:      m.VoidedAt,
		VoidReason:    m.VoidReason,
		Items:         make([]invoicing.LineItem, len(m.Items)),
	}
	for i := range m.Items {
		inv.Items[i] = m.Items[i].ToDomain(currency)
	}
	return inv
}

// FromDomain populates the persistence model from a domain Invoice
func (m *InvoiceModel) FromDomain(inv *invoicing.Invoice) {
	m.fromRoot(inv.AggregateRoot)
	m.Number = inv.Number.String()
	m.ClientID = inv.ClientID.Int64()
	m.Status = inv.Status
	m.Currency = string(inv.GrandTotal.Currency())
	m.Subtotal = inv.Subtotal.Amount()
	m.TaxTotal = inv.TaxTotal.Amount()
	m.DiscountTotal = inv.DiscountTotal.Amount()
	m.GrandTotal = inv.GrandTotal.Amount()
	m.IssuedAt = inv.IssuedAt
	m.VoidedAt = inv.VoidedAt
	m.VoidReason = inv.VoidReason
	m.Items = make([]InvoiceItemModel, len(inv.Items))
	for i, item := range inv.Items {
		m.Items[i] = InvoiceItemModelFromDomain(inv.ID, i, item, inv.CreatedAt)
	}
}

// InvoiceModelFromDomain creates a new persistence model from a domain Invoice
func InvoiceModelFromDomain(inv *invoicing.Invoice) *InvoiceModel {
	m := &InvoiceModel{}
	m.FromDomain(inv)
	return m
}

// InvoiceItemModel is the persistence model for an invoice line item.
// Line items are immutable, so the model has no UpdatedAt.
type InvoiceItemModel struct {
	ID             uuid.UUID       `gorm:"type:uuid;primary_key"`
	InvoiceID      uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:idx_invoice_items_position,priority:1"`
	Position       int             `gorm:"not null;uniqueIndex:idx_invoice_items_position,priority:2"`
	Description    string          `gorm:"type:varchar(500);not null"`
	Quantity       int             `gorm:"not null"`
	UnitPrice      decimal.Decimal `gorm:"type:decimal(18,2);not null"`
	TaxCode        string          `gorm:"type:varchar(50);not null;default:''"`
	Subtotal       decimal.Decimal `gorm:"type:decimal(18,2);not null"`
	TaxAmount      decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0"`
	DiscountAmount decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0"`
	Total          decimal.Decimal `gorm:"type:decimal(18,2);not null"`
	CreatedAt      time.Time       `gorm:"not null"`
}

// TableName returns the table name for GORM
func (InvoiceItemModel) TableName() string {
	return "invoice_items"
}

// ToDomain converts the persistence model to a domain LineItem
func (m *InvoiceItemModel) ToDomain(currency valueobject.Currency) invoicing.LineItem {
	money := func(d decimal.Decimal) valueobject.Money {
		v, _ := valueobject.NewMoney(d, currency)
		return v
	}
	return invoicing.RestoreLineItem(
		m.Description,
		invoicing.Quantity(m.Quantity),
		money(m.UnitPrice),
		m.TaxCode,
		money(m.Subtotal),
		money(m.TaxAmount),
		money(m.DiscountAmount),
		money(m.Total),
	)
}

// InvoiceItemModelFromDomain creates the persistence model of the item at position
func InvoiceItemModelFromDomain(invoiceID uuid.UUID, position int, item invoicing.LineItem, createdAt time.Time) InvoiceItemModel {
	return InvoiceItemModel{
		ID:             uuid.New(),
		InvoiceID:      invoiceID,
		Position:       position,
		Description:    item.Description(),
		Quantity:       item.Quantity().Int(),
		UnitPrice:      item.UnitPrice().Amount(),
		TaxCode:        item.TaxCode(),
		Subtotal:       item.Subtotal().Amount(),
		TaxAmount:      item.TaxAmount().Amount(),
		DiscountAmount: item.DiscountAmount().Amount(),
		Total:          item.Total().Amount(),
		CreatedAt:      createdAt,
	}
}
