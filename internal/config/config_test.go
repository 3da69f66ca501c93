package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	path := writeConfig(t, `
rpc_list:
  - https://api.mainnet-beta.solana.com
vault_pubkey: GvaU1trPoY2yLSauVNE4EjM1d6CUarXEVadQxkMBK2vault
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 15*time.Second, cfg.PriceDelay)
	assert.Equal(t, 10*time.Second, cfg.RefreshDelay)
	assert.Equal(t, DefaultRetries, cfg.Retries)
	assert.Equal(t, DefaultListenAddr, cfg.ListenAddr)
	assert.Equal(t, DefaultStateDir, cfg.StateDir)
}

func TestLoadConfigRejectsMissingVault(t *testing.T) {
	path := writeConfig(t, `
rpc_list:
  - https://api.mainnet-beta.solana.com
`)

	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestLoadConfigRejectsBadRPCScheme(t *testing.T) {
	path := writeConfig(t, `
rpc_list:
  - ftp://not-an-rpc
vault_pubkey: GvaU1trPoY2yLSauVNE4EjM1d6CUarXEVadQxkMBK2vault
`)

	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestLoadConfigRejectsBadDelays(t *testing.T) {
	path := writeConfig(t, `
rpc_list:
  - https://api.mainnet-beta.solana.com
vault_pubkey: GvaU1trPoY2yLSauVNE4EjM1d6CUarXEVadQxkMBK2vault
price_delay: -1
`)

	_, err := LoadConfig(path)
	assert.Error(t, err)
}
