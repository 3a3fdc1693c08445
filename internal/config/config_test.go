package config

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	cfg := Defaults()
	cfg.Vault.Issuer = "0x1111111111111111111111111111111111111111"
	cfg.Vault.Treasury = "0x2222222222222222222222222222222222222222"
	return cfg
}

func TestValidate(t *testing.T) {
	cfg := validConfig()
	require.NoError(t, cfg.Validate())
}

func TestValidateRequiresPrincipals(t *testing.T) {
	cfg := Defaults()
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "issuer must not be empty")
	assert.Contains(t, err.Error(), "treasury must not be empty")

	cfg = validConfig()
	cfg.Vault.Issuer = "not-an-address"
	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a valid address")
}

func TestValidateVaultTerms(t *testing.T) {
	cfg := validConfig()
	cfg.Vault.HaircutBps = 10_000
	require.Error(t, cfg.Validate())

	cfg = validConfig()
	cfg.Vault.HaircutBps = -1
	require.Error(t, cfg.Validate())

	cfg = validConfig()
	cfg.Vault.SpreadBps = -1
	require.Error(t, cfg.Validate())

	cfg = validConfig()
	cfg.Vault.LedgerOperator = ""
	require.Error(t, cfg.Validate())
}

func TestValidateMode(t *testing.T) {
	cfg := validConfig()
	cfg.Mode = "trade"
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")

	for _, mode := range []string{"server", "paper", "archive"} {
		cfg := validConfig()
		cfg.Mode = mode
		assert.NoError(t, cfg.Validate(), mode)
	}
}

func TestValidateAPIKeys(t *testing.T) {
	cfg := validConfig()
	cfg.Server.APIKeys = map[string]string{
		"secret-token": "0x3333333333333333333333333333333333333333",
	}
	require.NoError(t, cfg.Validate())

	cfg.Server.APIKeys["bad"] = "nope"
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid address")
}

func TestValidateArchiveRequiresS3(t *testing.T) {
	cfg := validConfig()
	cfg.Archive.Enabled = true
	cfg.S3.Bucket = ""
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bucket must not be empty")
}

func TestValidateCollectsAllProblems(t *testing.T) {
	cfg := validConfig()
	cfg.Mode = "bogus"
	cfg.Redis.Addr = ""
	cfg.Server.Port = 0
	err := cfg.Validate()
	require.Error(t, err)
	problems := strings.Count(err.Error(), "\n  - ")
	assert.GreaterOrEqual(t, problems, 2)
}

func TestRedactedConfig(t *testing.T) {
	cfg := validConfig()
	cfg.Database.Password = "hunter2"
	cfg.Redis.Password = "hunter2"
	cfg.S3.SecretKey = "hunter2"
	cfg.Notify.TelegramToken = "hunter2"
	cfg.Server.APIKeys = map[string]string{
		"secret-token": "0x3333333333333333333333333333333333333333",
	}

	red := RedactedConfig(&cfg)
	assert.NotContains(t, red.Database.Password, "hunter2")
	assert.NotContains(t, red.Redis.Password, "hunter2")
	assert.NotContains(t, red.S3.SecretKey, "hunter2")
	assert.NotContains(t, red.Notify.TelegramToken, "hunter2")
	for token, addr := range red.Server.APIKeys {
		assert.NotEqual(t, "secret-token", token)
		assert.Equal(t, "0x3333333333333333333333333333333333333333", addr)
	}

	// The original is untouched.
	assert.Equal(t, "hunter2", cfg.Database.Password)
}
