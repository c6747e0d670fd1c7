package taxservice

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/erp/invoicing/internal/domain/invoicing"
	"github.com/erp/invoicing/internal/domain/shared/valueobject"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signature(desc string, qty int, price, taxCode string) invoicing.ItemSignature {
	return invoicing.ItemSignature{
		Description: desc,
		Quantity:    invoicing.Quantity(qty),
		UnitPrice:   valueobject.NewMoneyCOP(decimal.RequireFromString(price)),
		TaxCode:     taxCode,
	}
}

func newCalculatorServer(t *testing.T, handler http.HandlerFunc) *HTTPClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewHTTPClient(srv.URL)
}

func TestHTTPClient_ComputeTax(t *testing.T) {
	ctx := context.Background()

	t.Run("sends items and parses details", func(t *testing.T) {
		var got map[string]any
		c := newCalculatorServer(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "/calcular", r.URL.Path)
			body, _ := io.ReadAll(r.Body)
			require.NoError(t, json.Unmarshal(body, &got))

			_, _ = w.Write([]byte(`{
				"detalle_items": [
					{"descripcion":"Laptop","subtotal":2000.00,"impuesto":380.00,"descuento":50.00,"total":2330.00},
					{"descripcion":"Mouse","subtotal":"76.50","impuesto":"14.535","descuento":"0","total":"91.04"}
				],
				"total_general": 2421.04
			}`))
		})

		quotes, err := c.ComputeTax(ctx, []invoicing.ItemSignature{
			signature("Laptop", 1, "2000", "iva19"),
			signature("Mouse", 3, "25.50", "IVA19"),
		})
		require.NoError(t, err)
		require.Len(t, quotes, 2)
		assert.Equal(t, "380.00 COP", quotes[0].TaxAmount.String())
		assert.Equal(t, "50.00 COP", quotes[0].DiscountAmount.String())
		assert.Equal(t, "14.54 COP", quotes[1].TaxAmount.String())
		assert.True(t, quotes[1].DiscountAmount.IsZero())

		items := got["items"].([]any)
		require.Len(t, items, 2)
		second := items[1].(map[string]any)
		assert.Equal(t, "Mouse", second["descripcion"])
		assert.Equal(t, float64(3), second["cantidad"])
		assert.Equal(t, 25.5, second["precio_unitario"])
		assert.Equal(t, "IVA19", second["categoria"])
	})

	t.Run("misaligned response", func(t *testing.T) {
		c := newCalculatorServer(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"detalle_items":[{"impuesto":1,"descuento":0}]}`))
		})

		_, err := c.ComputeTax(ctx, []invoicing.ItemSignature{
			signature("a", 1, "10", "IVA19"),
			signature("b", 2, "10", "IVA19"),
		})
		assert.ErrorIs(t, err, ErrUnexpectedResponse)
	})

	t.Run("negative tax", func(t *testing.T) {
		c := newCalculatorServer(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"detalle_items":[{"impuesto":-1,"descuento":0}]}`))
		})

		_, err := c.ComputeTax(ctx, []invoicing.ItemSignature{signature("a", 1, "10", "IVA19")})
		assert.ErrorIs(t, err, ErrUnexpectedResponse)
	})

	t.Run("server error", func(t *testing.T) {
		c := newCalculatorServer(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		})

		_, err := c.ComputeTax(ctx, []invoicing.ItemSignature{signature("a", 1, "10", "IVA19")})
		assert.ErrorIs(t, err, ErrUnexpectedResponse)
	})
}
