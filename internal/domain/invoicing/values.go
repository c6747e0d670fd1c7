package invoicing

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/erp/invoicing/internal/domain/shared"
	"github.com/google/uuid"
)

// ClientID identifies a client in the external client registry
type ClientID int64

// NewClientID validates and creates a ClientID
func NewClientID(id int64) (ClientID, error) {
	if id <= 0 {
		return 0, shared.NewValidationError("Client ID must be a positive number",
			fmt.Sprintf("client_id: %d is not positive", id))
	}
	return ClientID(id), nil
}

// ParseClientID parses a ClientID from its decimal string form
func ParseClientID(s string) (ClientID, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, shared.NewValidationError("Client ID must be a positive number",
			fmt.Sprintf("client_id: %q is not a number", s))
	}
	return NewClientID(id)
}

// Int64 returns the raw identifier
func (c ClientID) Int64() int64 {
	return int64(c)
}

// String returns the decimal representation
func (c ClientID) String() string {
	return strconv.FormatInt(int64(c), 10)
}

// Quantity is a strictly positive number of units on a line item
type Quantity int

// NewQuantity validates and creates a Quantity
func NewQuantity(q int) (Quantity, error) {
	if q <= 0 {
		return 0, shared.NewValidationError("Quantity must be greater than zero",
			fmt.Sprintf("quantity: %d is not positive", q))
	}
	return Quantity(q), nil
}

// Int returns the raw quantity
func (q Quantity) Int() int {
	return int(q)
}

// InvoiceNumber is the human-facing unique number of an invoice
type InvoiceNumber string

const invoiceNumberPrefix = "FACT-"

var invoiceNumberPattern = regexp.MustCompile(`^FACT-[0-9A-Z-]{6,40}$`)

// NewInvoiceNumber validates an existing invoice number
func NewInvoiceNumber(s string) (InvoiceNumber, error) {
	if !invoiceNumberPattern.MatchString(s) {
		return "", shared.NewValidationError("Invalid invoice number format",
			fmt.Sprintf("number: %q does not match FACT-XXXXXX", s))
	}
	return InvoiceNumber(s), nil
}

// GenerateInvoiceNumber builds a fresh number from the current time and a random suffix
func GenerateInvoiceNumber(now time.Time) InvoiceNumber {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:6])
	return InvoiceNumber(invoiceNumberPrefix + now.Format("20060102150405") + "-" + suffix)
}

// DeriveInvoiceNumber builds a deterministic number from a client-supplied idempotency key.
// The same client and key always produce the same number.
func DeriveInvoiceNumber(clientID ClientID, idempotencyKey string) InvoiceNumber {
	sum := sha256.Sum256([]byte(clientID.String() + ":" + idempotencyKey))
	return InvoiceNumber(invoiceNumberPrefix + "K-" + strings.ToUpper(hex.EncodeToString(sum[:])[:20]))
}

// String returns the raw number
func (n InvoiceNumber) String() string {
	return string(n)
}
