package invoicing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/erp/invoicing/internal/domain/invoicing"
	"github.com/erp/invoicing/internal/domain/shared"
	"github.com/erp/invoicing/internal/domain/shared/valueobject"
	"github.com/erp/invoicing/internal/infrastructure/logger"
	"github.com/erp/invoicing/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// InvoiceService orchestrates invoice creation and lifecycle changes.
// Creation runs: structural validation, client gate, tax gate, assembly, persistence.
// Nothing is stored unless every earlier step succeeded.
type InvoiceService struct {
	clients invoicing.ClientValidator
	taxes   invoicing.TaxComputer
	repo    invoicing.InvoiceRepository

	events  shared.EventPublisher
	metrics *telemetry.InvoiceMetrics
	logger  *zap.Logger
	now     func() time.Time
}

// Option configures an InvoiceService
type Option func(*InvoiceService)

// WithEventPublisher publishes invoice events after each successful commit
func WithEventPublisher(p shared.EventPublisher) Option {
	return func(s *InvoiceService) {
		s.events = p
	}
}

// WithMetrics records invoice counters
func WithMetrics(m *telemetry.InvoiceMetrics) Option {
	return func(s *InvoiceService) {
		s.metrics = m
	}
}

// WithLogger sets the service logger
func WithLogger(l *zap.Logger) Option {
	return func(s *InvoiceService) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(s *InvoiceService) {
		if now != nil {
			s.now = now
		}
	}
}

// NewInvoiceService creates a new InvoiceService
func NewInvoiceService(clients invoicing.ClientValidator, taxes invoicing.TaxComputer, repo invoicing.InvoiceRepository, opts ...Option) *InvoiceService {
	s := &InvoiceService{
		clients: clients,
		taxes:   taxes,
		repo:    repo,
		logger:  zap.NewNop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create validates, prices and persists a new invoice.
// With an idempotency key, a repeated request returns the invoice stored by the first one.
func (s *InvoiceService) Create(ctx context.Context, req CreateInvoiceRequest) (*InvoiceResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "invoice", "create")
	defer span.End()
	telemetry.SetAttributes(span,
		telemetry.SpanAttrClientID, req.ClientID,
		telemetry.SpanAttrItemCount, len(req.Items),
	)

	inv, err := s.create(ctx, req)
	if err != nil {
		telemetry.RecordError(span, err)
		s.recordRejected(ctx, err)
		return nil, err
	}

	telemetry.SetAttributes(span,
		telemetry.SpanAttrInvoiceID, inv.ID.String(),
		telemetry.SpanAttrInvoiceNumber, inv.Number.String(),
		telemetry.SpanAttrInvoiceStatus, inv.Status.String(),
	)
	telemetry.SetOK(span)

	response := ToInvoiceResponse(inv)
	return &response, nil
}

func (s *InvoiceService) create(ctx context.Context, req CreateInvoiceRequest) (*invoicing.Invoice, error) {
	clientID, drafts, err := validateCreateRequest(req)
	if err != nil {
		return nil, err
	}
	ctx = logger.WithField(ctx, logger.FieldClientID, clientID.String())

	now := s.now()
	number := invoicing.GenerateInvoiceNumber(now)
	key := strings.TrimSpace(req.IdempotencyKey)
	if key != "" {
		number = invoicing.DeriveInvoiceNumber(clientID, key)
		existing, err := s.repo.FindByNumber(ctx, number)
		if err == nil {
			return s.replay(ctx, existing, drafts)
		}
		if !errors.Is(err, shared.ErrNotFound) {
			return nil, err
		}
	}

	if err := s.ensureClientActive(ctx, clientID); err != nil {
		return nil, err
	}

	items, err := s.priceItems(ctx, drafts)
	if err != nil {
		return nil, err
	}

	inv, err := invoicing.NewInvoice(number, clientID, items, now)
	if err != nil {
		return nil, err
	}
	if !req.Draft {
		if err := inv.Issue(now); err != nil {
			return nil, err
		}
	}

	// A request abandoned by its caller must not leave a record behind.
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := s.repo.Save(ctx, inv); err != nil {
		if key != "" && isCode(err, shared.CodeConflict) {
			// A concurrent request with the same key won the insert.
			if existing, findErr := s.repo.FindByNumber(ctx, number); findErr == nil {
				return s.replay(ctx, existing, drafts)
			}
		}
		s.logWriteFailure(ctx, "Failed to save invoice", err)
		return nil, err
	}

	logger.WithLogger(ctx, s.logger).Info("Invoice created",
		zap.String("invoice_id", inv.ID.String()),
		zap.String("number", inv.Number.String()),
		zap.String("status", inv.Status.String()),
		zap.Stringer("grand_total", inv.GrandTotal),
	)
	if s.metrics != nil {
		s.metrics.RecordCreated(ctx, inv.Status.String(), inv.GrandTotal.Amount())
	}
	s.publishEvents(ctx, inv)
	return inv, nil
}

// replay returns the invoice stored under an idempotency key, provided the
// request carries the same items in the same order
func (s *InvoiceService) replay(ctx context.Context, existing *invoicing.Invoice, drafts []itemDraft) (*invoicing.Invoice, error) {
	log := logger.WithLogger(ctx, s.logger)
	if !sameItems(existing.Items, drafts) {
		log.Warn("Idempotency-Key reused with different items",
			zap.String("number", existing.Number.String()),
		)
		return nil, invoicing.ErrIdempotencyKeyReused
	}
	log.Info("Idempotent replay, returning stored invoice",
		zap.String("number", existing.Number.String()),
	)
	return existing, nil
}

func sameItems(stored []invoicing.LineItem, drafts []itemDraft) bool {
	if len(stored) != len(drafts) {
		return false
	}
	for i, item := range stored {
		d := drafts[i]
		if item.Description() != d.description || item.Signature().Key() != d.signature().Key() {
			return false
		}
	}
	return true
}

// ensureClientActive fails closed: only an Active answer lets creation proceed
func (s *InvoiceService) ensureClientActive(ctx context.Context, clientID invoicing.ClientID) error {
	status, err := s.clients.Validate(ctx, clientID)
	if err != nil {
		return err
	}
	switch status {
	case invoicing.ClientActive:
		return nil
	case invoicing.ClientInactive:
		return invoicing.ErrClientNotActive
	default:
		return invoicing.ErrClientNotFound
	}
}

// priceItems runs the tax gate over all items and builds the line items
func (s *InvoiceService) priceItems(ctx context.Context, drafts []itemDraft) ([]invoicing.LineItem, error) {
	sigs := make([]invoicing.ItemSignature, len(drafts))
	for i, d := range drafts {
		sigs[i] = d.signature()
	}

	quotes, err := s.taxes.ComputeAll(ctx, sigs)
	if err != nil {
		return nil, err
	}
	if len(quotes) != len(sigs) {
		return nil, shared.NewDownstreamError(shared.DownstreamUnavailable, "tax-service",
			fmt.Errorf("expected %d quotes, got %d", len(sigs), len(quotes)))
	}

	items := make([]invoicing.LineItem, len(drafts))
	for i, d := range drafts {
		item, err := invoicing.NewLineItem(d.description, d.quantity, d.unitPrice, d.taxCode, quotes[i])
		if err != nil {
			return nil, err
		}
		items[i] = item
	}
	return items, nil
}

// Issue moves a draft invoice to ISSUED
func (s *InvoiceService) Issue(ctx context.Context, id uuid.UUID) (*InvoiceResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "invoice", "issue")
	defer span.End()
	telemetry.SetAttributes(span, telemetry.SpanAttrInvoiceID, id.String())

	inv, err := s.repo.FindByID(ctx, id)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	if err := inv.Issue(s.now()); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	if err := s.repo.Update(ctx, inv); err != nil {
		telemetry.RecordError(span, err)
		s.logWriteFailure(ctx, "Failed to issue invoice", err)
		return nil, err
	}

	logger.WithLogger(ctx, s.logger).Info("Invoice issued", zap.String("number", inv.Number.String()))
	s.publishEvents(ctx, inv)
	telemetry.SetOK(span)

	response := ToInvoiceResponse(inv)
	return &response, nil
}

// Void cancels an issued invoice. Drafts and voided invoices are rejected with a conflict.
func (s *InvoiceService) Void(ctx context.Context, id uuid.UUID, reason string) (*InvoiceResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "invoice", "void")
	defer span.End()
	telemetry.SetAttributes(span, telemetry.SpanAttrInvoiceID, id.String())

	inv, err := s.repo.FindByID(ctx, id)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	if err := inv.Void(reason, s.now()); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	if err := s.repo.Update(ctx, inv); err != nil {
		telemetry.RecordError(span, err)
		s.logWriteFailure(ctx, "Failed to void invoice", err)
		return nil, err
	}

	logger.WithLogger(ctx, s.logger).Info("Invoice voided",
		zap.String("number", inv.Number.String()),
		zap.String("reason", inv.VoidReason),
	)
	if s.metrics != nil {
		s.metrics.RecordVoided(ctx)
	}
	s.publishEvents(ctx, inv)
	telemetry.SetOK(span)

	response := ToInvoiceResponse(inv)
	return &response, nil
}

// GetByID retrieves an invoice by ID
func (s *InvoiceService) GetByID(ctx context.Context, id uuid.UUID) (*InvoiceResponse, error) {
	inv, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	response := ToInvoiceResponse(inv)
	return &response, nil
}

// GetByNumber retrieves an invoice by its number
func (s *InvoiceService) GetByNumber(ctx context.Context, number string) (*InvoiceResponse, error) {
	n, err := invoicing.NewInvoiceNumber(strings.ToUpper(strings.TrimSpace(number)))
	if err != nil {
		return nil, err
	}
	inv, err := s.repo.FindByNumber(ctx, n)
	if err != nil {
		return nil, err
	}
	response := ToInvoiceResponse(inv)
	return &response, nil
}

// List returns a page of invoices
func (s *InvoiceService) List(ctx context.Context, query ListInvoicesQuery) (*InvoiceListResponse, error) {
	filter := invoicing.InvoiceFilter{Filter: query.toFilter()}
	if query.Status != "" {
		status := invoicing.InvoiceStatus(strings.ToUpper(query.Status))
		if !status.IsValid() {
			return nil, shared.NewValidationError("Invalid invoice status", fmt.Sprintf("status: %q is not a known status", query.Status))
		}
		filter.Status = status
	}

	invoices, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	page := shared.NewPaginated(ToInvoiceResponses(invoices), total, filter.Filter)
	return &page, nil
}

// ListByClient returns a page of the invoices of one client.
// The client must be known to the registry; inactive clients keep their history visible.
func (s *InvoiceService) ListByClient(ctx context.Context, clientID int64, query ListInvoicesQuery) (*InvoiceListResponse, error) {
	id, err := invoicing.NewClientID(clientID)
	if err != nil {
		return nil, err
	}

	status, err := s.clients.Validate(ctx, id)
	if err != nil {
		return nil, err
	}
	if status == invoicing.ClientNotFound {
		return nil, invoicing.ErrClientNotFound
	}

	filter := query.toFilter()
	invoices, total, err := s.repo.ListByClient(ctx, id, filter)
	if err != nil {
		return nil, err
	}
	page := shared.NewPaginated(ToInvoiceResponses(invoices), total, filter)
	return &page, nil
}

// Delete removes an invoice and its items. Administrative use only.
func (s *InvoiceService) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		if !errors.Is(err, shared.ErrNotFound) {
			s.logWriteFailure(ctx, "Failed to delete invoice", err)
		}
		return err
	}
	logger.WithLogger(ctx, s.logger).Warn("Invoice deleted", zap.String("invoice_id", id.String()))
	return nil
}

// publishEvents hands the pending events to the publisher after a commit.
// The write is already durable, so publish failures are only logged.
func (s *InvoiceService) publishEvents(ctx context.Context, inv *invoicing.Invoice) {
	events := inv.DrainEvents()
	if s.events == nil || len(events) == 0 {
		return
	}
	if err := s.events.Publish(ctx, events...); err != nil {
		logger.WithLogger(ctx, s.logger).Warn("Failed to publish invoice events",
			zap.String("invoice_id", inv.ID.String()),
			zap.Int("events", len(events)),
			zap.Error(err),
		)
	}
}

func (s *InvoiceService) logWriteFailure(ctx context.Context, msg string, err error) {
	if isCode(err, shared.CodePersistence) {
		logger.WithLogger(ctx, s.logger).Error(msg, zap.Error(errors.Unwrap(err)))
	}
}

func (s *InvoiceService) recordRejected(ctx context.Context, err error) {
	if s.metrics == nil {
		return
	}
	s.metrics.RecordRejected(ctx, errorCode(err))
}

// errorCode names a failure for metrics
func errorCode(err error) string {
	var domainErr *shared.DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code
	}
	var downstream *shared.DownstreamError
	if errors.As(err, &downstream) {
		return "DOWNSTREAM_" + string(downstream.Kind)
	}
	if errors.Is(err, context.Canceled) {
		return "CANCELED"
	}
	return "UNCLASSIFIED"
}

func isCode(err error, code string) bool {
	var domainErr *shared.DomainError
	return errors.As(err, &domainErr) && domainErr.Code == code
}

// itemDraft is a structurally valid item awaiting its tax quote
type itemDraft struct {
	description string
	quantity    invoicing.Quantity
	unitPrice   valueobject.Money
	taxCode     string
}

func (d itemDraft) signature() invoicing.ItemSignature {
	return invoicing.ItemSignature{
		Description: d.description,
		Quantity:    d.quantity,
		UnitPrice:   d.unitPrice,
		TaxCode:     d.taxCode,
	}
}

// validateCreateRequest checks everything that can be checked without a remote call.
// All problems are reported together in the details of one validation error.
func validateCreateRequest(req CreateInvoiceRequest) (invoicing.ClientID, []itemDraft, error) {
	var details []string

	if req.ClientID <= 0 {
		details = append(details, fmt.Sprintf("client_id: %d is not positive", req.ClientID))
	}
	switch {
	case len(req.Items) == 0:
		details = append(details, "items: must not be empty")
	case len(req.Items) > invoicing.MaxItemsPerInvoice:
		details = append(details, fmt.Sprintf("items: must not exceed %d entries", invoicing.MaxItemsPerInvoice))
	}

	drafts := make([]itemDraft, 0, len(req.Items))
	for i, item := range req.Items {
		description := strings.TrimSpace(item.Description)
		switch n := utf8.RuneCountInString(description); {
		case n == 0:
			details = append(details, fmt.Sprintf("items[%d].description: required", i))
		case n > invoicing.MaxDescriptionLength:
			details = append(details, fmt.Sprintf("items[%d].description: must not exceed %d characters", i, invoicing.MaxDescriptionLength))
		}
		if item.Quantity <= 0 {
			details = append(details, fmt.Sprintf("items[%d].quantity: %d is not positive", i, item.Quantity))
		}
		if item.UnitPrice.IsNegative() {
			details = append(details, fmt.Sprintf("items[%d].unit_price: %s is negative", i, item.UnitPrice.String()))
		}
		if len(item.TaxCode) > invoicing.MaxTaxCodeLength {
			details = append(details, fmt.Sprintf("items[%d].tax_code: must not exceed %d characters", i, invoicing.MaxTaxCodeLength))
		}
		drafts = append(drafts, itemDraft{
			description: description,
			quantity:    invoicing.Quantity(item.Quantity),
			unitPrice:   valueobject.NewMoneyCOP(item.UnitPrice),
			taxCode:     strings.ToUpper(strings.TrimSpace(item.TaxCode)),
		})
	}

	if len(details) > 0 {
		return 0, nil, shared.NewValidationError("Invoice request is invalid", details...)
	}
	return invoicing.ClientID(req.ClientID), drafts, nil
}
