// Package taxservice integrates with the remote tax calculator.
package taxservice

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/erp/invoicing/internal/domain/invoicing"
	"github.com/erp/invoicing/internal/domain/shared/valueobject"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

const maxResponseSize = 4 << 20

// ErrUnexpectedResponse is returned when the calculator answer cannot be used
var ErrUnexpectedResponse = errors.New("tax service: unexpected response")

type calculateRequest struct {
	Items []calculateItem `json:"items"`
}

type calculateItem struct {
	Descripcion    string      `json:"descripcion"`
	Cantidad       int         `json:"cantidad"`
	PrecioUnitario json.Number `json:"precio_unitario"`
	Categoria      string      `json:"categoria"`
}

type calculateResponse struct {
	DetalleItems []itemDetail `json:"detalle_items"`
}

type itemDetail struct {
	Descripcion string          `json:"descripcion"`
	Subtotal    decimal.Decimal `json:"subtotal"`
	Impuesto    decimal.Decimal `json:"impuesto"`
	Descuento   decimal.Decimal `json:"descuento"`
	Total       decimal.Decimal `json:"total"`
}

// HTTPClient implements invoicing.TaxCalculator against the calculator REST API
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

// NewHTTPClient creates a calculator adapter rooted at baseURL
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

// ComputeTax sends all signatures in one request. The returned quotes are
// aligned by position with items; a response of a different length is an error.
func (h *HTTPClient) ComputeTax(ctx context.Context, items []invoicing.ItemSignature) ([]invoicing.TaxQuote, error) {
	payload := calculateRequest{Items: make([]calculateItem, len(items))}
	for i, it := range items {
		payload.Items[i] = calculateItem{
			Descripcion:    it.Description,
			Cantidad:       it.Quantity.Int(),
			PrecioUnitario: json.Number(it.UnitPrice.Amount().StringFixed(valueobject.MoneyScale)),
			Categoria:      it.TaxCode,
		}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("tax service: failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.baseURL+"/calcular", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("tax service: failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tax service: request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("tax service: failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		h.logger.Debug("Tax service returned an error status",
			zap.Int("status", resp.StatusCode),
			zap.Int("items", len(items)),
		)
		return nil, fmt.Errorf("%w: HTTP %d", ErrUnexpectedResponse, resp.StatusCode)
	}

	var result calculateResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("%w: failed to parse response: %v", ErrUnexpectedResponse, err)
	}
	if len(result.DetalleItems) != len(items) {
		return nil, fmt.Errorf("%w: expected %d item details, got %d",
			ErrUnexpectedResponse, len(items), len(result.DetalleItems))
	}

	quotes := make([]invoicing.TaxQuote, len(items))
	for i, d := range result.DetalleItems {
		q := invoicing.TaxQuote{
			TaxAmount:      valueobject.NewMoneyCOP(d.Impuesto),
			DiscountAmount: valueobject.NewMoneyCOP(d.Descuento),
		}
		if err := q.Validate(); err != nil {
			return nil, fmt.Errorf("%w: item %d: %v", ErrUnexpectedResponse, i, err)
		}
		quotes[i] = q
	}
	return quotes, nil
}

var _ invoicing.TaxCalculator = (*HTTPClient)(nil)
