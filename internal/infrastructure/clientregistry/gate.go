package clientregistry

import (
	"context"

	"github.com/erp/invoicing/internal/domain/invoicing"
	"github.com/erp/invoicing/internal/infrastructure/resilience"
	"github.com/erp/invoicing/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// DependencyName is the breaker and metrics name of the registry
const DependencyName = "client-registry"

// Gate validates clients through the circuit breaker. Registry failures are
// returned to the caller; a client is never treated as inactive because the
// registry could not be reached.
type Gate struct {
	registry invoicing.ClientRegistry
	exec     *resilience.Executor[invoicing.ClientLookup]
	logger   *zap.Logger
}

// NewGate creates a client validation gate
func NewGate(registry invoicing.ClientRegistry, exec *resilience.Executor[invoicing.ClientLookup], logger *zap.Logger) *Gate {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gate{registry: registry, exec: exec, logger: logger}
}

// Validate resolves the status of a client
func (g *Gate) Validate(ctx context.Context, id invoicing.ClientID) (invoicing.ClientStatus, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "client_gate", "validate",
		telemetry.WithAttribute("client_id", id.Int64()),
	)
	defer span.End()

	lookup, err := g.exec.Execute(ctx, id.String(), func(ctx context.Context) (invoicing.ClientLookup, error) {
		return g.registry.GetClientStatus(ctx, id)
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return "", err
	}

	status := lookup.Status()
	telemetry.SetAttributes(span, "client_status", string(status))
	if status != invoicing.ClientActive {
		g.logger.Info("Client rejected by registry",
			zap.Int64("client_id", id.Int64()),
			zap.String("status", string(status)),
		)
	}
	telemetry.SetOK(span)
	return status, nil
}

var _ invoicing.ClientValidator = (*Gate)(nil)
