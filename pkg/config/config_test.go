package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadYaml(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "krypton.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte(`
logging:
  level: DEBUG
  format: text
krypton:
  zinc_url: http://www.example.com/auth
  brass_url: http://brass.example.com/addegress
  service_type: some_type
  bridge_over_ppn: true
  rekey_interval_seconds: 60
`), 0o600))

	cfg, err := Load(configPath)
	require.NoError(t, err)
	require.Equal(t, slog.LevelDebug, cfg.Logging.Level)
	require.Equal(t, "http://www.example.com/auth", cfg.Krypton.ZincURL)
	require.Equal(t, "http://brass.example.com/addegress", cfg.Krypton.BrassURL)
	require.Equal(t, "some_type", cfg.Krypton.ServiceType)
	require.True(t, cfg.Krypton.BridgeOverPpn)
	require.Equal(t, time.Minute, cfg.Krypton.GetRekeyInterval())
	require.Equal(t, 500*time.Millisecond, cfg.Krypton.GetReconnectDelay())
}

func TestLoadRejectsMissingURLs(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "krypton.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte(`
krypton:
  service_type: some_type
`), 0o600))

	_, err := Load(configPath)
	require.Error(t, err)
}

func TestLoadRejectsUnknownExtension(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "krypton.toml")
	require.NoError(t, os.WriteFile(configPath, []byte("x"), 0o600))

	_, err := Load(configPath)
	require.Error(t, err)
}

func TestDefaults(t *testing.T) {
	var cfg KryptonConfig
	require.Equal(t, 5*time.Minute, cfg.GetRekeyInterval())
	require.Equal(t, 500*time.Millisecond, cfg.GetReconnectDelay())
	require.Equal(t, "krypton0", cfg.GetTunName())
	require.NotZero(t, cfg.GetProtectFwmark())
}
