package crypto

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestSignAndVerify verifies a signed request round-trips through Verify.
func TestSignAndVerify(t *testing.T) {
	signer := &RequestSigner{
		Address: "0x1111111111111111111111111111111111111111",
		Secret:  "topsecret",
	}
	now := time.Unix(1_700_000_000, 0)

	headers := signer.HeadersAt("POST", "/api/series/1/subscribe", `{"pay_amount":100}`, now.Unix())
	require.Equal(t, signer.Address, headers[HeaderAddress])

	ok := Verify("topsecret", "POST", "/api/series/1/subscribe", `{"pay_amount":100}`,
		headers[HeaderTimestamp], headers[HeaderSignature], now)
	assert.True(t, ok)

	// Wrong secret.
	ok = Verify("other", "POST", "/api/series/1/subscribe", `{"pay_amount":100}`,
		headers[HeaderTimestamp], headers[HeaderSignature], now)
	assert.False(t, ok)

	// Tampered body.
	ok = Verify("topsecret", "POST", "/api/series/1/subscribe", `{"pay_amount":999}`,
		headers[HeaderTimestamp], headers[HeaderSignature], now)
	assert.False(t, ok)
}

// TestVerifyClockSkew verifies stale and future timestamps are rejected.
func TestVerifyClockSkew(t *testing.T) {
	signer := &RequestSigner{Address: "0x1111111111111111111111111111111111111111", Secret: "s"}
	now := time.Unix(1_700_000_000, 0)

	headers := signer.HeadersAt("GET", "/api/series", "", now.Unix())
	assert.True(t, Verify("s", "GET", "/api/series", "", headers[HeaderTimestamp], headers[HeaderSignature], now))
	assert.True(t, Verify("s", "GET", "/api/series", "", headers[HeaderTimestamp], headers[HeaderSignature], now.Add(MaxClockSkew)))
	assert.False(t, Verify("s", "GET", "/api/series", "", headers[HeaderTimestamp], headers[HeaderSignature], now.Add(MaxClockSkew+time.Second)))
	assert.False(t, Verify("s", "GET", "/api/series", "", headers[HeaderTimestamp], headers[HeaderSignature], now.Add(-MaxClockSkew-time.Second)))

	// Garbage timestamp.
	assert.False(t, Verify("s", "GET", "/api/series", "", "not-a-number", headers[HeaderSignature], now))
}
