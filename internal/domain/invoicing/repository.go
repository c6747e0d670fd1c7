package invoicing

import (
	"context"

	"github.com/erp/invoicing/internal/domain/shared"
	"github.com/google/uuid"
)

// ClientRegistry is the port to the remote client registry
type ClientRegistry interface {
	// GetClientStatus looks up a client. A client unknown to the registry
	// is reported with Exists=false and a nil error.
	GetClientStatus(ctx context.Context, id ClientID) (ClientLookup, error)
}

// TaxCalculator is the port to the remote tax computation service
type TaxCalculator interface {
	// ComputeTax returns one quote per signature, aligned by position
	ComputeTax(ctx context.Context, items []ItemSignature) ([]TaxQuote, error)
}

// ClientValidator decides whether a client may be invoiced
type ClientValidator interface {
	Validate(ctx context.Context, id ClientID) (ClientStatus, error)
}

// TaxComputer computes the tax quotes of a whole invoice
type TaxComputer interface {
	ComputeAll(ctx context.Context, items []ItemSignature) ([]TaxQuote, error)
}

// InvoiceFilter narrows invoice listings
type InvoiceFilter struct {
	shared.Filter
	Status   InvoiceStatus
	ClientID ClientID
}

// InvoiceRepository is the storage port of the Invoice aggregate
type InvoiceRepository interface {
	// Save inserts a new invoice in a single transaction and assigns its ID.
	// A duplicate invoice number fails with a CONFLICT error.
	Save(ctx context.Context, inv *Invoice) error
	// Update persists a state change using optimistic locking on Version
	Update(ctx context.Context, inv *Invoice) error
	FindByID(ctx context.Context, id uuid.UUID) (*Invoice, error)
	FindByNumber(ctx context.Context, number InvoiceNumber) (*Invoice, error)
	ExistsByNumber(ctx context.Context, number InvoiceNumber) (bool, error)
	ListByClient(ctx context.Context, clientID ClientID, filter shared.Filter) ([]Invoice, int64, error)
	List(ctx context.Context, filter InvoiceFilter) ([]Invoice, int64, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// Client gate rejections
var (
	ErrClientNotActive = shared.NewDomainError(shared.CodeClientNotActive, "The client is not active")
	ErrClientNotFound  = shared.NewDomainError(shared.CodeClientNotFound, "The client does not exist")
)

// ErrIdempotencyKeyReused rejects a replayed key whose items differ from the stored invoice
var ErrIdempotencyKeyReused = shared.NewConflictError("The Idempotency-Key was already used for a different invoice")
