package taxservice

import (
	"context"
	"fmt"
	"strings"

	"github.com/erp/invoicing/internal/domain/invoicing"
	"github.com/erp/invoicing/internal/infrastructure/cache"
	"github.com/erp/invoicing/internal/infrastructure/resilience"
	"github.com/erp/invoicing/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// DependencyName is the breaker and metrics name of the tax calculator
const DependencyName = "tax-service"

// Gate computes tax quotes for invoice items. Quotes are looked up per item
// signature first; the remaining signatures go to the calculator in one batch
// through the circuit breaker. Any remote failure fails the whole computation.
type Gate struct {
	calculator invoicing.TaxCalculator
	exec       *resilience.Executor[[]invoicing.TaxQuote]
	quotes     cache.Cache[invoicing.TaxQuote]
	metrics    resilience.Metrics
	logger     *zap.Logger
}

// GateOption configures a Gate
type GateOption func(*Gate)

// WithGateMetrics records per-signature cache lookups
func WithGateMetrics(m resilience.Metrics) GateOption {
	return func(g *Gate) {
		if m != nil {
			g.metrics = m
		}
	}
}

// WithGateLogger sets the logger
func WithGateLogger(logger *zap.Logger) GateOption {
	return func(g *Gate) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// NewGate creates a tax computation gate. quotes may be nil to disable caching.
func NewGate(
	calculator invoicing.TaxCalculator,
	exec *resilience.Executor[[]invoicing.TaxQuote],
	quotes cache.Cache[invoicing.TaxQuote],
	opts ...GateOption,
) *Gate {
	g := &Gate{
		calculator: calculator,
		exec:       exec,
		quotes:     quotes,
		metrics:    resilience.NoopMetrics{},
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// ComputeAll returns one quote per item, in the order of items
func (g *Gate) ComputeAll(ctx context.Context, items []invoicing.ItemSignature) ([]invoicing.TaxQuote, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "tax_gate", "compute_all",
		telemetry.WithAttribute("items_count", len(items)),
	)
	defer span.End()

	if len(items) == 0 {
		return []invoicing.TaxQuote{}, nil
	}

	resolved := make(map[string]invoicing.TaxQuote, len(items))
	var pending []invoicing.ItemSignature
	queued := make(map[string]struct{})

	for _, it := range items {
		key := it.Key()
		if _, ok := resolved[key]; ok {
			continue
		}
		if _, ok := queued[key]; ok {
			continue
		}
		if q, ok := g.lookup(ctx, key); ok {
			resolved[key] = q
			continue
		}
		queued[key] = struct{}{}
		pending = append(pending, it)
	}

	telemetry.SetAttributes(span,
		"cached_signatures", len(resolved),
		"remote_signatures", len(pending),
	)

	if len(pending) > 0 {
		keys := make([]string, len(pending))
		for i, it := range pending {
			keys[i] = it.Key()
		}

		remote, err := g.exec.Execute(ctx, strings.Join(keys, ";"), func(ctx context.Context) ([]invoicing.TaxQuote, error) {
			quotes, err := g.calculator.ComputeTax(ctx, pending)
			if err != nil {
				return nil, err
			}
			if len(quotes) != len(pending) {
				return nil, fmt.Errorf("%w: expected %d quotes, got %d", ErrUnexpectedResponse, len(pending), len(quotes))
			}
			return quotes, nil
		})
		if err != nil {
			telemetry.RecordError(span, err)
			return nil, err
		}

		for i, q := range remote {
			resolved[keys[i]] = q
			if g.quotes != nil {
				g.quotes.Set(ctx, keys[i], q)
			}
		}
	}

	out := make([]invoicing.TaxQuote, len(items))
	for i, it := range items {
		out[i] = resolved[it.Key()]
	}

	g.logger.Debug("Tax quotes resolved",
		zap.Int("items", len(items)),
		zap.Int("remote", len(pending)),
	)
	telemetry.SetOK(span)
	return out, nil
}

func (g *Gate) lookup(ctx context.Context, key string) (invoicing.TaxQuote, bool) {
	if g.quotes == nil {
		return invoicing.TaxQuote{}, false
	}
	q, ok := g.quotes.Get(ctx, key)
	g.metrics.CacheLookup(ctx, DependencyName, ok)
	return q, ok
}

var _ invoicing.TaxComputer = (*Gate)(nil)
