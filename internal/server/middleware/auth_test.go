package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/billvault/internal/crypto"
	"github.com/alanyoungcy/billvault/internal/domain"
)

const (
	testAddr  = "0x1111111111111111111111111111111111111111"
	testToken = "test-token"
)

func authHandler(t *testing.T, keys map[string]string) (http.Handler, *domain.Principal) {
	t.Helper()
	var got domain.Principal
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if p, ok := Principal(r.Context()); ok {
			got = p
		}
		w.WriteHeader(http.StatusOK)
	})
	return Auth(keys)(next), &got
}

func TestAuthBearerToken(t *testing.T) {
	h, got := authHandler(t, map[string]string{testToken: testAddr})

	req := httptest.NewRequest(http.MethodGet, "/api/series", nil)
	req.Header.Set("Authorization", "Bearer "+testToken)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, testAddr, string(*got))

	// X-API-Key works the same way.
	req = httptest.NewRequest(http.MethodGet, "/api/series", nil)
	req.Header.Set("X-API-Key", testToken)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestAuthRejectsBadToken(t *testing.T) {
	h, _ := authHandler(t, map[string]string{testToken: testAddr})

	req := httptest.NewRequest(http.MethodGet, "/api/series", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/series", nil)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthDisabledWhenNoKeys(t *testing.T) {
	h, got := authHandler(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/series", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, string(*got))
}

func TestAuthDisabledClaimedPrincipal(t *testing.T) {
	h, got := authHandler(t, nil)

	// With auth disabled, mutating requests act as the claimed address so
	// paper runs can exercise every operation.
	req := httptest.NewRequest(http.MethodPost, "/api/series", nil)
	req.Header.Set(crypto.HeaderAddress, testAddr)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, testAddr, string(*got))

	// A malformed claimed address is ignored rather than rejected.
	*got = ""
	req = httptest.NewRequest(http.MethodPost, "/api/series", nil)
	req.Header.Set(crypto.HeaderAddress, "not-an-address")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, string(*got))
}

func TestAuthSignedRequest(t *testing.T) {
	h, got := authHandler(t, map[string]string{testToken: testAddr})

	body := `{"pay_amount":100}`
	signer := crypto.RequestSigner{Address: testAddr, Secret: testToken}
	headers := signer.Headers(http.MethodPost, "/api/series/1/subscribe", body)

	req := httptest.NewRequest(http.MethodPost, "/api/series/1/subscribe", strings.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, testAddr, string(*got))
}

func TestAuthSignedRequestTampered(t *testing.T) {
	h, _ := authHandler(t, map[string]string{testToken: testAddr})

	signer := crypto.RequestSigner{Address: testAddr, Secret: testToken}
	headers := signer.Headers(http.MethodPost, "/api/series/1/subscribe", `{"pay_amount":100}`)

	req := httptest.NewRequest(http.MethodPost, "/api/series/1/subscribe", strings.NewReader(`{"pay_amount":999}`))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthSignedRequestUnknownAddress(t *testing.T) {
	h, _ := authHandler(t, map[string]string{testToken: testAddr})

	signer := crypto.RequestSigner{
		Address: "0x9999999999999999999999999999999999999999",
		Secret:  testToken,
	}
	headers := signer.Headers(http.MethodGet, "/api/series", "")

	req := httptest.NewRequest(http.MethodGet, "/api/series", nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
