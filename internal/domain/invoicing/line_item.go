package invoicing

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/erp/invoicing/internal/domain/shared"
	"github.com/erp/invoicing/internal/domain/shared/valueobject"
)

const (
	// MaxDescriptionLength is the maximum number of characters of a line item description
	MaxDescriptionLength = 500
	// MaxTaxCodeLength is the maximum length of a tax category code
	MaxTaxCodeLength = 50
)

// LineItem is one priced row of an invoice. It is immutable once built.
type LineItem struct {
	description    string
	quantity       Quantity
	unitPrice      valueobject.Money
	taxCode        string
	subtotal       valueobject.Money
	taxAmount      valueobject.Money
	discountAmount valueobject.Money
	total          valueobject.Money
}

// NewLineItem creates a line item from its inputs and the tax quote computed for it.
// Subtotal = quantity x unit price; Total = subtotal - discount + tax.
func NewLineItem(description string, quantity Quantity, unitPrice valueobject.Money, taxCode string, quote TaxQuote) (LineItem, error) {
	description = strings.TrimSpace(description)
	if description == "" {
		return LineItem{}, shared.NewValidationError("Item description cannot be empty", "description: required")
	}
	if utf8.RuneCountInString(description) > MaxDescriptionLength {
		return LineItem{}, shared.NewValidationError("Item description is too long",
			fmt.Sprintf("description: must not exceed %d characters", MaxDescriptionLength))
	}
	if quantity <= 0 {
		return LineItem{}, shared.NewValidationError("Quantity must be greater than zero",
			fmt.Sprintf("quantity: %d is not positive", quantity))
	}
	if unitPrice.IsNegative() {
		return LineItem{}, shared.NewValidationError("Unit price cannot be negative",
			fmt.Sprintf("unit_price: %s is negative", unitPrice.Amount().StringFixed(valueobject.MoneyScale)))
	}
	if err := quote.Validate(); err != nil {
		return LineItem{}, shared.NewValidationError("Invalid tax quote for item", err.Error())
	}

	subtotal := unitPrice.MultiplyByInt(int64(quantity))
	total, err := subtotal.Subtract(quote.DiscountAmount)
	if err != nil {
		return LineItem{}, shared.NewValidationError("Tax quote currency mismatch", err.Error())
	}
	total, err = total.Add(quote.TaxAmount)
	if err != nil {
		return LineItem{}, shared.NewValidationError("Tax quote currency mismatch", err.Error())
	}

	return LineItem{
		description:    description,
		quantity:       quantity,
		unitPrice:      unitPrice,
		taxCode:        strings.ToUpper(strings.TrimSpace(taxCode)),
		subtotal:       subtotal,
		taxAmount:      quote.TaxAmount,
		discountAmount: quote.DiscountAmount,
		total:          total,
	}, nil
}

// RestoreLineItem rebuilds a persisted line item without recomputing it
func RestoreLineItem(description string, quantity Quantity, unitPrice valueobject.Money, taxCode string,
	subtotal, taxAmount, discountAmount, total valueobject.Money) LineItem {
	return LineItem{
		description:    description,
		quantity:       quantity,
		unitPrice:      unitPrice,
		taxCode:        taxCode,
		subtotal:       subtotal,
		taxAmount:      taxAmount,
		discountAmount: discountAmount,
		total:          total,
	}
}

func (i LineItem) Description() string {
	return i.description
}

func (i LineItem) Quantity() Quantity {
	return i.quantity
}

func (i LineItem) UnitPrice() valueobject.Money {
	return i.unitPrice
}

func (i LineItem) TaxCode() string {
	return i.taxCode
}

func (i LineItem) Subtotal() valueobject.Money {
	return i.subtotal
}

func (i LineItem) TaxAmount() valueobject.Money {
	return i.taxAmount
}

func (i LineItem) DiscountAmount() valueobject.Money {
	return i.discountAmount
}

func (i LineItem) Total() valueobject.Money {
	return i.total
}

// Signature returns the tax computation inputs of the item
func (i LineItem) Signature() ItemSignature {
	return ItemSignature{
		Description: i.description,
		Quantity:    i.quantity,
		UnitPrice:   i.unitPrice,
		TaxCode:     i.taxCode,
	}
}
