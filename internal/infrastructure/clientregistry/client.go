// Package clientregistry integrates with the remote client registry.
// It exposes an HTTP adapter for the registry API and a Gate that validates
// clients through the resilience executor.
package clientregistry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/erp/invoicing/internal/domain/invoicing"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

// maxResponseSize caps the registry response body read into memory
const maxResponseSize = 1 << 20

// ErrUnexpectedResponse is returned when the registry answers with a status or body
// the adapter cannot interpret
var ErrUnexpectedResponse = errors.New("client registry: unexpected response")

// clientResponse is the registry representation of a client
type clientResponse struct {
	ID     int64 `json:"id"`
	Activo *bool `json:"activo"`
}

// HTTPClient implements invoicing.ClientRegistry over the registry REST API
type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// Option configures an HTTPClient
type Option func(*HTTPClient)

// WithHTTPClient replaces the underlying http.Client
func WithHTTPClient(c *http.Client) Option {
	return func(h *HTTPClient) {
		if c != nil {
			h.httpClient = c
		}
	}
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(h *HTTPClient) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// NewHTTPClient creates a registry adapter rooted at baseURL.
// Deadlines come from the caller context, so the default client has no timeout of its own.
func NewHTTPClient(baseURL string, opts ...Option) *HTTPClient {
	h := &HTTPClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// GetClientStatus fetches the existence and activity flag of a client.
// A 404 from the registry means the client does not exist.
func (h *HTTPClient) GetClientStatus(ctx context.Context, id invoicing.ClientID) (invoicing.ClientLookup, error) {
	url := fmt.Sprintf("%s/api/v1/clientes/%s", h.baseURL, id.String())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return invoicing.ClientLookup{}, fmt.Errorf("client registry: failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return invoicing.ClientLookup{}, fmt.Errorf("client registry: request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return invoicing.ClientLookup{}, fmt.Errorf("client registry: failed to read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return invoicing.ClientLookup{Exists: false}, nil
	case resp.StatusCode != http.StatusOK:
		h.logger.Debug("Client registry returned an error status",
			zap.Int("status", resp.StatusCode),
			zap.String("client_id", id.String()),
		)
		return invoicing.ClientLookup{}, fmt.Errorf("%w: HTTP %d", ErrUnexpectedResponse, resp.StatusCode)
	}

	var payload clientResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return invoicing.ClientLookup{}, fmt.Errorf("%w: failed to parse response: %v", ErrUnexpectedResponse, err)
	}
	if payload.Activo == nil {
		return invoicing.ClientLookup{}, fmt.Errorf("%w: missing activo flag", ErrUnexpectedResponse)
	}

	return invoicing.ClientLookup{Exists: true, Active: *payload.Activo}, nil
}

var _ invoicing.ClientRegistry = (*HTTPClient)(nil)
