package invoicing

import (
	"fmt"
	"strings"

	"github.com/erp/invoicing/internal/domain/shared/valueobject"
)

// ClientStatus is the outcome of validating a client against the registry
type ClientStatus string

const (
	ClientActive   ClientStatus = "ACTIVE"
	ClientInactive ClientStatus = "INACTIVE"
	ClientNotFound ClientStatus = "NOT_FOUND"
)

// ClientLookup is the raw answer of the client registry
type ClientLookup struct {
	Exists bool `json:"exists"`
	Active bool `json:"active"`
}

// Status maps a lookup to the three-valued client status
func (l ClientLookup) Status() ClientStatus {
	switch {
	case !l.Exists:
		return ClientNotFound
	case !l.Active:
		return ClientInactive
	default:
		return ClientActive
	}
}

// ItemSignature identifies the inputs of a tax computation for one line item
type ItemSignature struct {
	Description string
	Quantity    Quantity
	UnitPrice   valueobject.Money
	TaxCode     string
}

// Key returns the canonical cache key of the signature.
// Description does not influence tax and is not part of the key.
func (s ItemSignature) Key() string {
	return fmt.Sprintf("%d|%s|%s", s.Quantity, s.UnitPrice.Amount().StringFixed(valueobject.MoneyScale), strings.ToUpper(s.TaxCode))
}

// TaxQuote is the tax and discount computed for one item signature
type TaxQuote struct {
	TaxAmount      valueobject.Money `json:"tax_amount"`
	DiscountAmount valueobject.Money `json:"discount_amount"`
}

// Validate checks the quote amounts are usable for an invoice
func (q TaxQuote) Validate() error {
	if q.TaxAmount.IsNegative() || q.DiscountAmount.IsNegative() {
		return fmt.Errorf("tax quote contains negative amounts: tax=%s discount=%s", q.TaxAmount, q.DiscountAmount)
	}
	return nil
}
