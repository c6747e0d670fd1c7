package clientregistry

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/erp/invoicing/internal/domain/invoicing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRegistryServer(t *testing.T, handler http.HandlerFunc) *HTTPClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewHTTPClient(srv.URL + "/")
}

func TestHTTPClient_GetClientStatus(t *testing.T) {
	ctx := context.Background()

	t.Run("active client", func(t *testing.T) {
		var path string
		c := newRegistryServer(t, func(w http.ResponseWriter, r *http.Request) {
			path = r.URL.Path
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"id":7,"nombre":"ACME","activo":true}`))
		})

		lookup, err := c.GetClientStatus(ctx, invoicing.ClientID(7))
		require.NoError(t, err)
		assert.Equal(t, "/api/v1/clientes/7", path)
		assert.Equal(t, invoicing.ClientLookup{Exists: true, Active: true}, lookup)
	})

	t.Run("inactive client", func(t *testing.T) {
		c := newRegistryServer(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"id":42,"activo":false}`))
		})

		lookup, err := c.GetClientStatus(ctx, invoicing.ClientID(42))
		require.NoError(t, err)
		assert.Equal(t, invoicing.ClientInactive, lookup.Status())
	})

	t.Run("unknown client", func(t *testing.T) {
		c := newRegistryServer(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"detail":"Cliente no encontrado"}`))
		})

		lookup, err := c.GetClientStatus(ctx, invoicing.ClientID(99))
		require.NoError(t, err)
		assert.Equal(t, invoicing.ClientNotFound, lookup.Status())
	})

	t.Run("server error", func(t *testing.T) {
		c := newRegistryServer(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		})

		_, err := c.GetClientStatus(ctx, invoicing.ClientID(1))
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrUnexpectedResponse)
	})

	t.Run("malformed body", func(t *testing.T) {
		c := newRegistryServer(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`<html>`))
		})

		_, err := c.GetClientStatus(ctx, invoicing.ClientID(1))
		assert.ErrorIs(t, err, ErrUnexpectedResponse)
	})

	t.Run("missing activity flag", func(t *testing.T) {
		c := newRegistryServer(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"id":1}`))
		})

		_, err := c.GetClientStatus(ctx, invoicing.ClientID(1))
		assert.ErrorIs(t, err, ErrUnexpectedResponse)
	})

	t.Run("honours context deadline", func(t *testing.T) {
		c := newRegistryServer(t, func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-r.Context().Done():
			case <-time.After(time.Second):
			}
		})

		cctx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
		defer cancel()
		_, err := c.GetClientStatus(cctx, invoicing.ClientID(1))
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})
}
