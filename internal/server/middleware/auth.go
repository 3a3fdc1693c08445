package middleware

import (
	"bytes"
	"context"
	"crypto/subtle"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/alanyoungcy/billvault/internal/crypto"
	"github.com/alanyoungcy/billvault/internal/domain"
)

// maxSignedBodySize bounds how much of a signed request body is read for
// signature verification.
const maxSignedBodySize = 1 << 20

type principalCtxKey struct{}

// Principal returns the authenticated principal stored in the request context
// by the Auth middleware.
func Principal(ctx context.Context) (domain.Principal, bool) {
	p, ok := ctx.Value(principalCtxKey{}).(domain.Principal)
	return p, ok
}

// WithPrincipal returns a context carrying the given principal. Exposed for
// handler tests.
func WithPrincipal(ctx context.Context, p domain.Principal) context.Context {
	return context.WithValue(ctx, principalCtxKey{}, p)
}

// Auth returns middleware that authenticates requests against the configured
// API keys. keys maps a bearer token to the principal address it acts as.
// Two schemes are accepted:
//
//   - Authorization: Bearer <token> (or X-API-Key: <token>)
//   - HMAC-signed requests using the X-Vault-* headers, where the signing
//     secret is the token registered for the claimed address
//
// If keys is empty, authentication is disabled: requests act as whatever
// principal the X-Vault-Address header claims, unverified. Paper runs use
// this to exercise every operation without credentials.
func Auth(keys map[string]string) func(http.Handler) http.Handler {
	// Parse the principal mapping once. Invalid entries were already
	// rejected by config validation.
	byToken := make(map[string]domain.Principal, len(keys))
	secretByPrincipal := make(map[domain.Principal]string, len(keys))
	for token, addr := range keys {
		p, err := domain.ParsePrincipal(addr)
		if err != nil {
			continue
		}
		byToken[token] = p
		secretByPrincipal[p] = token
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(byToken) == 0 {
				if p, err := domain.ParsePrincipal(r.Header.Get(crypto.HeaderAddress)); err == nil {
					r = r.WithContext(WithPrincipal(r.Context(), p))
				}
				next.ServeHTTP(w, r)
				return
			}

			if token := extractToken(r); token != "" {
				p, ok := lookupToken(byToken, token)
				if !ok {
					writeUnauthorized(w, "invalid authentication token")
					return
				}
				next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
				return
			}

			if r.Header.Get(crypto.HeaderSignature) != "" {
				p, ok := verifySignature(r, secretByPrincipal)
				if !ok {
					writeUnauthorized(w, "invalid request signature")
					return
				}
				next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
				return
			}

			writeUnauthorized(w, "missing authentication token")
		})
	}
}

// lookupToken scans every configured token with a constant-time comparison so
// lookup timing does not leak which tokens exist.
func lookupToken(byToken map[string]domain.Principal, token string) (domain.Principal, bool) {
	var (
		found     bool
		principal domain.Principal
	)
	for t, p := range byToken {
		if subtle.ConstantTimeCompare([]byte(t), []byte(token)) == 1 {
			found = true
			principal = p
		}
	}
	return principal, found
}

// verifySignature checks the X-Vault-* signature headers against the secret
// registered for the claimed address. The body is buffered and restored so
// the handler can still read it.
func verifySignature(r *http.Request, secrets map[domain.Principal]string) (domain.Principal, bool) {
	addr, err := domain.ParsePrincipal(r.Header.Get(crypto.HeaderAddress))
	if err != nil {
		return "", false
	}
	secret, ok := secrets[addr]
	if !ok {
		return "", false
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxSignedBodySize))
	if err != nil {
		return "", false
	}
	r.Body = io.NopCloser(bytes.NewReader(body))

	ok = crypto.Verify(
		secret,
		r.Method,
		r.URL.Path,
		string(body),
		r.Header.Get(crypto.HeaderTimestamp),
		r.Header.Get(crypto.HeaderSignature),
		time.Now(),
	)
	if !ok {
		return "", false
	}
	return addr, true
}

// extractToken looks for a token in the Authorization header (Bearer scheme)
// or in the X-API-Key header.
func extractToken(r *http.Request) string {
	// Check Authorization: Bearer <token>
	if auth := r.Header.Get("Authorization"); auth != "" {
		parts := strings.SplitN(auth, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
	}

	// Check X-API-Key header.
	if key := r.Header.Get("X-API-Key"); key != "" {
		return strings.TrimSpace(key)
	}

	return ""
}

// writeUnauthorized sends a 401 response with a JSON error body.
func writeUnauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusUnauthorized)
	w.Write([]byte(`{"error":"` + msg + `"}`))
}
