package event

import (
	"context"

	"github.com/erp/invoicing/internal/domain/invoicing"
	"github.com/erp/invoicing/internal/domain/shared"
	"github.com/erp/invoicing/internal/infrastructure/logger"
	"go.uber.org/zap"
)

// AuditLogHandler writes one structured audit line per invoice lifecycle event
type AuditLogHandler struct {
	logger *zap.Logger
}

// NewAuditLogHandler creates the handler
func NewAuditLogHandler(l *zap.Logger) *AuditLogHandler {
	return &AuditLogHandler{logger: l.Named("audit")}
}

// EventTypes implements shared.EventHandler
func (h *AuditLogHandler) EventTypes() []string {
	return []string{invoicing.EventTypeInvoiceIssued, invoicing.EventTypeInvoiceVoided}
}

// Handle implements shared.EventHandler
func (h *AuditLogHandler) Handle(ctx context.Context, evt shared.DomainEvent) error {
	fields := []zap.Field{
		zap.String("event_id", evt.EventID().String()),
		zap.String("event_type", evt.EventType()),
		zap.String("invoice_id", evt.AggregateID().String()),
		zap.Time("occurred_at", evt.OccurredAt()),
	}
	switch e := evt.(type) {
	case *invoicing.InvoiceIssuedEvent:
		fields = append(fields,
			zap.String("number", e.Number),
			zap.Int64("client_id", e.ClientID),
			zap.Int("items", e.ItemCount),
			zap.Stringer("grand_total", e.GrandTotal),
		)
	case *invoicing.InvoiceVoidedEvent:
		fields = append(fields,
			zap.String("number", e.Number),
			zap.Int64("client_id", e.ClientID),
			zap.String("reason", e.Reason),
		)
	}
	logger.WithTraceContext(ctx, h.logger).Info("Invoice lifecycle event", fields...)
	return nil
}
