package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// serveWith runs one request through mw in front of a handler that echoes
// the request id.
func serveWith(mw gin.HandlerFunc, method string, headers map[string]string) *httptest.ResponseRecorder {
	engine := gin.New()
	engine.Use(mw)
	engine.Handle(method, "/invoices", func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString(RequestIDKey))
	})

	req := httptest.NewRequest(method, "/invoices", nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w
}

func TestCORSWithConfig(t *testing.T) {
	console := CORSConfig{
		AllowOrigins:     []string{"http://localhost:3000"},
		AllowMethods:     []string{"GET", "POST"},
		AllowHeaders:     []string{"Content-Type", IdempotencyHeader},
		ExposeHeaders:    []string{RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           time.Hour,
	}

	tests := []struct {
		name       string
		cfg        CORSConfig
		method     string
		origin     string
		wantStatus int
		wantOrigin string
		wantCreds  string
	}{
		{"default config emits nothing", DefaultCORSConfig(), http.MethodGet, "http://malicious.com", http.StatusOK, "", ""},
		{"default preflight still ends", DefaultCORSConfig(), http.MethodOptions, "http://some-origin.com", http.StatusNoContent, "", ""},
		{"listed origin", console, http.MethodPost, "http://localhost:3000", http.StatusOK, "http://localhost:3000", "true"},
		{"unlisted origin", console, http.MethodPost, "http://evil.com", http.StatusOK, "", ""},
		{"listed preflight", console, http.MethodOptions, "http://localhost:3000", http.StatusNoContent, "http://localhost:3000", "true"},
		{"wildcard drops credentials", CORSConfig{AllowOrigins: []string{"*"}, AllowCredentials: true}, http.MethodGet, "http://anywhere.com", http.StatusOK, "*", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serveWith(CORSWithConfig(tt.cfg), tt.method, map[string]string{"Origin": tt.origin})

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, tt.wantOrigin, w.Header().Get("Access-Control-Allow-Origin"))
			assert.Equal(t, tt.wantCreds, w.Header().Get("Access-Control-Allow-Credentials"))
		})
	}

	t.Run("listed origin gets the configured lists", func(t *testing.T) {
		w := serveWith(CORSWithConfig(console), http.MethodOptions, map[string]string{"Origin": "http://localhost:3000"})

		assert.Equal(t, "GET, POST", w.Header().Get("Access-Control-Allow-Methods"))
		assert.Equal(t, "Content-Type, Idempotency-Key", w.Header().Get("Access-Control-Allow-Headers"))
		assert.Equal(t, "X-Request-ID", w.Header().Get("Access-Control-Expose-Headers"))
		assert.Equal(t, "3600", w.Header().Get("Access-Control-Max-Age"))
	})
}

func TestRequestID(t *testing.T) {
	t.Run("assigns a uuid when absent", func(t *testing.T) {
		w := serveWith(RequestID(), http.MethodGet, nil)

		assert.Len(t, w.Header().Get(RequestIDHeader), 36)
		assert.Equal(t, w.Header().Get(RequestIDHeader), w.Body.String())
	})

	t.Run("propagates the caller's id", func(t *testing.T) {
		w := serveWith(RequestID(), http.MethodGet, map[string]string{RequestIDHeader: "order-991-attempt-2"})

		assert.Equal(t, "order-991-attempt-2", w.Header().Get(RequestIDHeader))
		assert.Equal(t, "order-991-attempt-2", w.Body.String())
	})

	t.Run("replaces an oversized id", func(t *testing.T) {
		w := serveWith(RequestID(), http.MethodGet, map[string]string{RequestIDHeader: strings.Repeat("a", maxRequestIDLength+1)})

		assert.Len(t, w.Body.String(), 36)
	})
}

func TestSecureWithConfig(t *testing.T) {
	w := serveWith(Secure(), http.MethodGet, nil)
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "default-src 'none'; frame-ancestors 'none'", w.Header().Get("Content-Security-Policy"))
	assert.Empty(t, w.Header().Get("Strict-Transport-Security"))

	cfg := DefaultSecurityConfig()
	cfg.HSTSEnabled = true
	w = serveWith(SecureWithConfig(cfg), http.MethodGet, nil)
	assert.Equal(t, "max-age=31536000; includeSubDomains", w.Header().Get("Strict-Transport-Security"))
}
