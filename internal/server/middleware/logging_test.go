package middleware

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestLoggingIncludesPrincipal verifies that with Auth wrapped outside
// Logging, the way the server builds the chain, the request log carries the
// authenticated principal.
func TestLoggingIncludesPrincipal(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	})
	h := Auth(map[string]string{testToken: testAddr})(Logging(logger)(next))

	req := httptest.NewRequest(http.MethodPost, "/api/series", nil)
	req.Header.Set("Authorization", "Bearer "+testToken)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, buf.String(), `"principal":"`+testAddr+`"`)
	assert.Contains(t, buf.String(), `"status":201`)
}
