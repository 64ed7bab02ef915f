package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Run("defaults apply when env is empty", func(t *testing.T) {
		t.Setenv("POCKETLEDGER_DB_PATH", "")
		t.Setenv("POCKETLEDGER_API_BASE_URL", "")
		t.Setenv("SYNC_TIMEOUT_SECONDS", "")
		t.Setenv("SYNC_PAGE_SIZE", "")

		cfg, err := Load()
		require.NoError(t, err)
		require.Contains(t, cfg.DatabasePath, "pocketledger.db")
		require.Equal(t, 30*time.Second, cfg.SyncTimeout)
		require.Equal(t, 200, cfg.SyncPageSize)
		require.Empty(t, cfg.APIBaseURL)
	})

	t.Run("reads overrides from environment", func(t *testing.T) {
		t.Setenv("POCKETLEDGER_DB_PATH", "/tmp/ledger.db")
		t.Setenv("POCKETLEDGER_API_BASE_URL", "https://api.example.com")
		t.Setenv("SYNC_TIMEOUT_SECONDS", "5")
		t.Setenv("SYNC_PAGE_SIZE", "50")

		cfg, err := Load()
		require.NoError(t, err)
		require.Equal(t, "/tmp/ledger.db", cfg.DatabasePath)
		require.Equal(t, "https://api.example.com", cfg.APIBaseURL)
		require.Equal(t, 5*time.Second, cfg.SyncTimeout)
		require.Equal(t, 50, cfg.SyncPageSize)
	})

	t.Run("rejects malformed base URL", func(t *testing.T) {
		t.Setenv("POCKETLEDGER_DB_PATH", "/tmp/ledger.db")
		t.Setenv("POCKETLEDGER_API_BASE_URL", "ftp://backend")

		_, err := Load()
		require.Error(t, err)
		require.Contains(t, err.Error(), "POCKETLEDGER_API_BASE_URL")
	})

	t.Run("ignores invalid numeric overrides", func(t *testing.T) {
		t.Setenv("POCKETLEDGER_DB_PATH", "/tmp/ledger.db")
		t.Setenv("POCKETLEDGER_API_BASE_URL", "")
		t.Setenv("SYNC_TIMEOUT_SECONDS", "not-a-number")
		t.Setenv("SYNC_PAGE_SIZE", "-3")

		cfg, err := Load()
		require.NoError(t, err)
		require.Equal(t, 30*time.Second, cfg.SyncTimeout)
		require.Equal(t, 200, cfg.SyncPageSize)
	})
}
