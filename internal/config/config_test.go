package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
chain:
  rpc:
    http:
      - "https://rpc1.example/${API_KEY}"
      - "https://rpc2.example"
    wss:
      - "wss://rpc1.example/${API_KEY}"
virtuals:
  apiBase: "https://api.virtuals.example"
  usdQuoteUrl: "https://api.virtuals.example/quote"
  pollIntervalMs: 5000
  maxProjectAgeMinutes: 60
addresses:
  buybackAddr: "0x0000000000000000000000000000000000000001"
  virtualToken: "0x0000000000000000000000000000000000000002"
thresholds:
  bigTradeVirtual: "1000000000000000000000"
  taxWindowMinutes: 100
  buybackRateWindowMinutes: 20
  stallAlertMinutes: 5
logging:
  level: "info"
`

func writeTemp(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoadSubstitutesEnv(t *testing.T) {
	t.Setenv("API_KEY", "secret123")
	path := writeTemp(t, sampleYAML)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "https://rpc1.example/secret123", cfg.Chain.RPC.HTTP[0])
	assert.Equal(t, "wss://rpc1.example/secret123", cfg.Chain.RPC.WSS[0])
}

func TestLoadMissingEnvIsFatal(t *testing.T) {
	os.Unsetenv("API_KEY")
	path := writeTemp(t, sampleYAML)

	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadRejectsBadAddress(t *testing.T) {
	t.Setenv("API_KEY", "x")
	path := writeTemp(t, `
chain:
  rpc:
    http: ["https://rpc1.example"]
    wss: ["wss://rpc1.example"]
virtuals:
  apiBase: "https://api.virtuals.example"
  usdQuoteUrl: "https://api.virtuals.example/quote"
addresses:
  buybackAddr: "not-an-address"
  virtualToken: "0x0000000000000000000000000000000000000002"
thresholds:
  taxWindowMinutes: 100
  buybackRateWindowMinutes: 20
  stallAlertMinutes: 5
`)
	_, err := Load(path)
	require.Error(t, err)
}

func TestPublicViewExcludesUsdQuoteURL(t *testing.T) {
	t.Setenv("API_KEY", "secret123")
	path := writeTemp(t, sampleYAML)
	cfg, err := Load(path)
	require.NoError(t, err)

	view := cfg.Public()
	assert.Equal(t, 5000, view.Virtuals.PollIntervalMs)
	assert.Equal(t, 100, view.Thresholds.TaxWindowMinutes)
	assert.Equal(t, "https://api.virtuals.example", view.Virtuals.APIBase)

	body, err := json.Marshal(view)
	require.NoError(t, err)
	assert.NotContains(t, string(body), "usdQuoteUrl")
	assert.NotContains(t, string(body), "quote")
}

func TestDurationHelpers(t *testing.T) {
	t.Setenv("API_KEY", "x")
	path := writeTemp(t, sampleYAML)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, int64(100*60), int64(cfg.TaxWindow().Seconds()))
	assert.Equal(t, int64(20*60), int64(cfg.BuybackRateWindow().Seconds()))
	assert.Equal(t, int64(5*60), int64(cfg.StallAlert().Seconds()))
}
