package config

import (
	"fmt"
	"log/slog"
	"os"
	"path"
	"time"

	"github.com/ghodss/yaml"
)

type Config struct {
	Logging LoggingConfig `json:"logging"`
	Krypton KryptonConfig `json:"krypton"`

	// MetricsListen exposes prometheus metrics when set, e.g. "127.0.0.1:9500".
	MetricsListen string `json:"metrics_listen,omitempty"`
}

type LoggingConfig struct {
	Level  slog.Level `json:"level"`
	Format string     `json:"format"`
}

// KryptonConfig selects the control-plane endpoints and dataplane variant
// for a session. The zero value is not usable; load it from a file or fill
// at least the URLs and service type.
type KryptonConfig struct {
	ZincURL     string `json:"zinc_url"`
	BrassURL    string `json:"brass_url"`
	ServiceType string `json:"service_type"`

	IpSecDatapath      bool `json:"ipsec_datapath"`
	BridgeOverPpn      bool `json:"bridge_over_ppn"`
	EnableBlindSigning bool `json:"enable_blind_signing"`

	RekeyIntervalSeconds      int `json:"rekey_interval_seconds,omitempty"`
	ReconnectDelayMillis      int `json:"reconnect_delay_millis,omitempty"`
	SessionRestartDelayMillis int `json:"session_restart_delay_millis,omitempty"`

	// OAuthToken is a static platform token attached to auth requests; a
	// platform embedder normally supplies a live token source instead.
	OAuthToken string `json:"oauth_token,omitempty"`

	// Fwmark applied to protected sockets so host routing exempts them.
	ProtectFwmark uint32 `json:"protect_fwmark,omitempty"`

	TunName string `json:"tun_name,omitempty"`

	DebugHTTP bool `json:"debug_http,omitempty"`
}

func Load(configPath string) (*Config, error) {
	var cfg Config

	configData, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %v", err)
	}

	switch path.Ext(configPath) {
	case ".yaml", ".yml", ".json":
		if err = yaml.Unmarshal(configData, &cfg); err != nil {
			return nil, fmt.Errorf("error unmarshalling config data: %v", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config file format: %s", path.Ext(configPath))
	}

	if cfg.Krypton.ZincURL == "" {
		return nil, fmt.Errorf("krypton.zinc_url is required")
	}
	if cfg.Krypton.BrassURL == "" {
		return nil, fmt.Errorf("krypton.brass_url is required")
	}
	if cfg.Krypton.ServiceType == "" {
		return nil, fmt.Errorf("krypton.service_type is required")
	}

	return &cfg, nil
}

func (s KryptonConfig) GetRekeyInterval() time.Duration {
	if s.RekeyIntervalSeconds == 0 {
		return 5 * time.Minute
	}
	return time.Duration(s.RekeyIntervalSeconds) * time.Second
}

func (s KryptonConfig) GetReconnectDelay() time.Duration {
	if s.ReconnectDelayMillis == 0 {
		return 500 * time.Millisecond
	}
	return time.Duration(s.ReconnectDelayMillis) * time.Millisecond
}

func (s KryptonConfig) GetSessionRestartDelay() time.Duration {
	if s.SessionRestartDelayMillis == 0 {
		return 2 * time.Second
	}
	return time.Duration(s.SessionRestartDelayMillis) * time.Millisecond
}

func (s KryptonConfig) GetTunName() string {
	if s.TunName == "" {
		return "krypton0"
	}
	return s.TunName
}

func (s KryptonConfig) GetProtectFwmark() uint32 {
	if s.ProtectFwmark == 0 {
		return 0x4b70 // "Kp"
	}
	return s.ProtectFwmark
}
