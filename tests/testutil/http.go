package testutil

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/erp/invoicing/internal/interfaces/http/dto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Request sends method path through h with body encoded as JSON. headers
// are name/value pairs.
func Request(t *testing.T, h http.Handler, method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	require.Zero(t, len(headers)%2, "headers must be name/value pairs")

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

// DecodeData decodes the data member of a success response.
func DecodeData[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var body struct {
		Success bool `json:"success"`
		Data    T    `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), w.Body.String())
	require.True(t, body.Success, w.Body.String())
	return body.Data
}

// DecodeFailure decodes a FailureTranslator envelope.
func DecodeFailure(t *testing.T, w *httptest.ResponseRecorder) dto.ErrorEnvelope {
	t.Helper()
	var env dto.ErrorEnvelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return env
}

// AssertFailure checks the status line and envelope of a translated failure.
func AssertFailure(t *testing.T, w *httptest.ResponseRecorder, status int, label string) dto.ErrorEnvelope {
	t.Helper()
	env := DecodeFailure(t, w)
	assert.Equal(t, status, w.Code, w.Body.String())
	assert.Equal(t, status, env.Status)
	assert.Equal(t, label, env.Error)
	assert.NotEmpty(t, env.Message)
	return env
}
