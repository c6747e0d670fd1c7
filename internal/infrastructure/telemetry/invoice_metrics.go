package telemetry

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/metric"
)

// ErrMeterNil is returned when an instrument set is built without a meter
var ErrMeterNil = errors.New("telemetry: meter cannot be nil")

// InvoiceMetrics counts invoice lifecycle activity
type InvoiceMetrics struct {
	created  *Counter
	amount   *Counter
	rejected *Counter
	voided   *Counter
}

// NewInvoiceMetrics creates the instruments on meter
func NewInvoiceMetrics(meter metric.Meter) (*InvoiceMetrics, error) {
	if meter == nil {
		return nil, ErrMeterNil
	}
	var (
		m   InvoiceMetrics
		err error
	)
	if m.created, err = NewCounter(meter, "invoicing_invoices_created_total",
		"Invoices created by initial status", "{invoice}"); err != nil {
		return nil, err
	}
	if m.amount, err = NewCounter(meter, "invoicing_invoiced_amount_cents_total",
		"Grand total of created invoices in cents", "{cent}"); err != nil {
		return nil, err
	}
	if m.rejected, err = NewCounter(meter, "invoicing_creations_rejected_total",
		"Invoice creations refused, by error code", "{request}"); err != nil {
		return nil, err
	}
	if m.voided, err = NewCounter(meter, "invoicing_invoices_voided_total",
		"Invoices voided", "{invoice}"); err != nil {
		return nil, err
	}
	return &m, nil
}

// RecordCreated counts one invoice and adds its grand total
func (m *InvoiceMetrics) RecordCreated(ctx context.Context, status string, grandTotal decimal.Decimal) {
	m.created.Inc(ctx, AttrStatus.String(status))
	m.amount.Add(ctx, grandTotal.Shift(2).IntPart(), AttrStatus.String(status))
}

// RecordRejected counts a refused creation
func (m *InvoiceMetrics) RecordRejected(ctx context.Context, code string) {
	m.rejected.Inc(ctx, AttrErrorCode.String(code))
}

// RecordVoided counts a voided invoice
func (m *InvoiceMetrics) RecordVoided(ctx context.Context) {
	m.voided.Inc(ctx)
}
