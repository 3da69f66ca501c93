// Package config loads and validates daemon configuration.
package config

import (
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the daemon settings loaded from the config file, with
// environment overrides.
type Config struct {
	RPCList     []string `mapstructure:"rpc_list"`
	VaultPubkey string   `mapstructure:"vault_pubkey"`

	QuoteAPIURL  string `mapstructure:"quote_api_url"`
	PriceAPIURL  string `mapstructure:"price_api_url"`
	TokenListURL string `mapstructure:"token_list_url"`

	PriceDelay     time.Duration `mapstructure:"-"`
	PriceDelayMS   int           `mapstructure:"price_delay"`
	RefreshDelay   time.Duration `mapstructure:"-"`
	RefreshDelayMS int           `mapstructure:"refresh_delay"`
	Retries        int           `mapstructure:"retries"`

	ListenAddr string `mapstructure:"listen_addr"`
	StateDir   string `mapstructure:"state_dir"`

	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`

	DebugLogging bool `mapstructure:"debug_logging"`
}

const (
	DefaultPriceDelay   = 15_000 // ms
	DefaultRefreshDelay = 10_000 // ms
	DefaultRetries      = 3
	DefaultListenAddr   = ":8080"
	DefaultStateDir     = "state"
)

// LoadConfig reads configuration from path and validates it.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	defaults := map[string]interface{}{
		"price_delay":   DefaultPriceDelay,
		"refresh_delay": DefaultRefreshDelay,
		"retries":       DefaultRetries,
		"listen_addr":   DefaultListenAddr,
		"state_dir":     DefaultStateDir,
	}
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.AutomaticEnv()
	v.SetEnvPrefix("VAULTDASH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	applyEnvOverrides(v, &cfg)

	cfg.PriceDelay = time.Duration(cfg.PriceDelayMS) * time.Millisecond
	cfg.RefreshDelay = time.Duration(cfg.RefreshDelayMS) * time.Millisecond

	return &cfg, validateConfig(&cfg)
}

func validateConfig(cfg *Config) error {
	if len(cfg.RPCList) == 0 {
		return errors.New("rpc_list is empty")
	}
	if cfg.VaultPubkey == "" {
		return errors.New("vault_pubkey is required")
	}
	for _, rpcURL := range cfg.RPCList {
		if err := validateURL(rpcURL, "http"); err != nil {
			return errors.New("invalid RPC URL protocol")
		}
	}
	for _, apiURL := range []string{cfg.QuoteAPIURL, cfg.PriceAPIURL, cfg.TokenListURL} {
		if apiURL == "" {
			continue
		}
		if err := validateURL(apiURL, "http"); err != nil {
			return errors.New("invalid API URL protocol")
		}
	}
	if cfg.PriceDelayMS <= 0 {
		return errors.New("invalid price_delay")
	}
	if cfg.RefreshDelayMS <= 0 {
		return errors.New("invalid refresh_delay")
	}
	if cfg.Retries < 0 {
		return errors.New("invalid retries count")
	}
	return nil
}

func validateURL(rawURL string, protocol string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return errors.New("invalid URL format")
	}
	if !strings.HasPrefix(parsed.Scheme, protocol) {
		return errors.New("invalid URL protocol")
	}
	return nil
}

func applyEnvOverrides(v *viper.Viper, cfg *Config) {
	if envPubkey := v.GetString("VAULT_PUBKEY"); envPubkey != "" {
		cfg.VaultPubkey = envPubkey
	}
	if envRPCList := v.GetString("RPC_LIST"); envRPCList != "" {
		var cleanRPCs []string
		for _, rpc := range strings.Split(envRPCList, ",") {
			if clean := strings.TrimSpace(rpc); clean != "" {
				cleanRPCs = append(cleanRPCs, clean)
			}
		}
		if len(cleanRPCs) > 0 {
			cfg.RPCList = cleanRPCs
		}
	}
}
