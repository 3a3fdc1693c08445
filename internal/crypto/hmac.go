// Package crypto implements the HMAC request signing scheme accepted by the
// vault API as an alternative to bearer tokens.
package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strconv"
	"time"
)

// Signature header names.
const (
	HeaderAddress   = "X-Vault-Address"
	HeaderTimestamp = "X-Vault-Timestamp"
	HeaderSignature = "X-Vault-Signature"
)

// MaxClockSkew bounds how old or how far in the future a signed request's
// timestamp may be before verification fails.
const MaxClockSkew = 30 * time.Second

// RequestSigner signs vault API requests on behalf of one principal. The
// signature is HMAC-SHA256(secret, timestamp+method+path+body) encoded as
// base64.
type RequestSigner struct {
	Address string // checksummed principal address
	Secret  string // shared secret
}

// Headers returns the signature headers for a request made now.
//
// Returned header keys:
//   - X-Vault-Address
//   - X-Vault-Timestamp
//   - X-Vault-Signature
func (s *RequestSigner) Headers(method, path, body string) map[string]string {
	return s.HeadersAt(method, path, body, time.Now().Unix())
}

// HeadersAt is like Headers but lets the caller supply the Unix timestamp
// (useful for deterministic testing).
func (s *RequestSigner) HeadersAt(method, path, body string, unixTS int64) map[string]string {
	ts := strconv.FormatInt(unixTS, 10)

	message := ts + method + path + body
	sig := hmacSHA256Base64([]byte(s.Secret), message)

	return map[string]string{
		HeaderAddress:   s.Address,
		HeaderTimestamp: ts,
		HeaderSignature: sig,
	}
}

// Verify checks a request signature against the shared secret. It returns
// false for malformed timestamps, timestamps outside MaxClockSkew of now, and
// signature mismatches. Comparison is constant-time.
func Verify(secret, method, path, body, tsHeader, sigHeader string, now time.Time) bool {
	unixTS, err := strconv.ParseInt(tsHeader, 10, 64)
	if err != nil {
		return false
	}
	skew := now.Sub(time.Unix(unixTS, 0))
	if skew < -MaxClockSkew || skew > MaxClockSkew {
		return false
	}

	message := tsHeader + method + path + body
	expected := hmacSHA256Base64([]byte(secret), message)
	return hmac.Equal([]byte(expected), []byte(sigHeader))
}

// hmacSHA256Base64 computes HMAC-SHA256 of message using key and returns the
// result as a base64 standard-encoded string.
func hmacSHA256Base64(key []byte, message string) string {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(message))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// String returns a redacted representation suitable for logging.
func (s *RequestSigner) String() string {
	secret := s.Secret
	if len(secret) <= 4 {
		secret = "****"
	} else {
		secret = secret[:4] + "****"
	}
	return fmt.Sprintf("RequestSigner{address=%s, secret=%s}", s.Address, secret)
}
