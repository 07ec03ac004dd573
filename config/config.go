package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"
)

// Environment selects the default profile.
type Environment string

const (
	Development Environment = "development"
	Staging     Environment = "staging"
	Production  Environment = "production"
)

// NetworkSettings holds the environment-dependent network defaults.
type NetworkSettings struct {
	DefaultNetwork  string
	UseTestnets     bool
	RPCOverrides    map[string]string
	EnableAnalytics bool
	CDNBaseURL      string
}

// Features are the feature flags.
type Features struct {
	EnableArbitrageExecution   bool
	EnablePriceMonitoring      bool
	EnableWalletConnect        bool
	EnableExperimentalFeatures bool
	EnableDebugMode            bool
}

type App struct {
	Name       string
	APIVersion string
	APIBaseURL string
	WSEndpoint string
}

// Network is one entry of the supported network table.
type Network struct {
	Name     string
	ChainID  uint64
	RPCURL   string
	Explorer string
	Testnet  bool
}

type RPC struct {
	URL         string // overrides the selected network's endpoint
	CallTimeout time.Duration
	RateLimit   float64 // requests per second, 0 disables
	Burst       int
	ReceiptWait time.Duration
}

type Wallet struct {
	PrivateKey string
}

type Registry struct {
	Path string
}

type OneClick struct {
	JWTToken string
	BaseURL  string
	Timeout  time.Duration
}

type Cache struct {
	RedisAddr     string // empty selects the in-process cache
	RedisPassword string
	RedisDB       int
	TTL           time.Duration
}

type Log struct {
	Level  string
	Pretty bool
}

type Metrics struct {
	Addr string // empty disables the endpoint
}

// Config holds the application configuration
type Config struct {
	Environment Environment
	Network     NetworkSettings
	Features    Features
	App         App
	Networks    map[string]Network
	RPC         RPC
	Wallet      Wallet
	Registry    Registry
	OneClick    OneClick
	Cache       Cache
	Log         Log
	Metrics     Metrics
}

// DefaultNetworks is the supported network table.
func DefaultNetworks() map[string]Network {
	return map[string]Network{
		"ethereum": {Name: "ethereum", ChainID: 1, RPCURL: "https://eth.llamarpc.com", Explorer: "https://etherscan.io"},
		"optimism": {Name: "optimism", ChainID: 10, RPCURL: "https://mainnet.optimism.io", Explorer: "https://optimistic.etherscan.io"},
		"polygon":  {Name: "polygon", ChainID: 137, RPCURL: "https://polygon-rpc.com", Explorer: "https://polygonscan.com"},
		"base":     {Name: "base", ChainID: 8453, RPCURL: "https://mainnet.base.org", Explorer: "https://basescan.org"},
		"arbitrum": {Name: "arbitrum", ChainID: 42161, RPCURL: "https://arb1.arbitrum.io/rpc", Explorer: "https://arbiscan.io"},
		"sepolia":  {Name: "sepolia", ChainID: 11155111, RPCURL: "https://rpc.sepolia.org", Explorer: "https://sepolia.etherscan.io", Testnet: true},
	}
}

var globalConfig *Config

// DetectEnvironment maps the environment tag and host name to a profile.
// A production tag on a staging or test host resolves to staging.
func DetectEnvironment(tag, hostname string) Environment {
	switch Environment(strings.ToLower(strings.TrimSpace(tag))) {
	case Production:
		host := strings.ToLower(hostname)
		if strings.Contains(host, "staging") || strings.Contains(host, "test") {
			return Staging
		}
		return Production
	case Staging:
		return Staging
	default:
		return Development
	}
}

func setProfileDefaults(v *viper.Viper, env Environment) {
	switch env {
	case Production:
		v.SetDefault("network.default", "ethereum")
		v.SetDefault("network.use_testnets", false)
		v.SetDefault("network.enable_analytics", true)
		v.SetDefault("network.cdn_base_url", "https://cdn.flashtrade.app")
		v.SetDefault("features.enable_experimental_features", false)
		v.SetDefault("features.enable_debug_mode", false)
		v.SetDefault("app.api_base_url", "https://api.flashtrade.app")
		v.SetDefault("app.ws_endpoint", "wss://ws.flashtrade.app")
		v.SetDefault("log.level", "info")
		v.SetDefault("log.pretty", false)
	case Staging:
		v.SetDefault("network.default", "polygon")
		v.SetDefault("network.use_testnets", false)
		v.SetDefault("network.enable_analytics", true)
		v.SetDefault("network.cdn_base_url", "https://staging-cdn.flashtrade.app")
		v.SetDefault("features.enable_experimental_features", true)
		v.SetDefault("features.enable_debug_mode", true)
		v.SetDefault("app.api_base_url", "https://api.staging.flashtrade.app")
		v.SetDefault("app.ws_endpoint", "wss://ws.staging.flashtrade.app")
		v.SetDefault("log.level", "debug")
		v.SetDefault("log.pretty", false)
	default:
		v.SetDefault("network.default", "optimism")
		v.SetDefault("network.use_testnets", false)
		v.SetDefault("network.enable_analytics", false)
		v.SetDefault("network.cdn_base_url", "")
		v.SetDefault("features.enable_experimental_features", true)
		v.SetDefault("features.enable_debug_mode", true)
		v.SetDefault("app.api_base_url", "http://localhost:8000")
		v.SetDefault("app.ws_endpoint", "ws://localhost:8001")
		v.SetDefault("log.level", "debug")
		v.SetDefault("log.pretty", true)
	}
}

func setCommonDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "FlashTrade Logic")
	v.SetDefault("app.api_version", "v1")
	v.SetDefault("features.enable_arbitrage_execution", false)
	v.SetDefault("features.enable_price_monitoring", false)
	v.SetDefault("features.enable_wallet_connect", false)
	v.SetDefault("rpc.url", "")
	v.SetDefault("rpc.call_timeout", "10s")
	v.SetDefault("rpc.rate_limit", 10.0)
	v.SetDefault("rpc.burst", 5)
	v.SetDefault("rpc.receipt_wait", "0s")
	v.SetDefault("wallet.private_key", "")
	v.SetDefault("registry.path", "")
	v.SetDefault("oneclick.jwt_token", "")
	v.SetDefault("oneclick.base_url", "https://1click.chaindefuser.com")
	v.SetDefault("oneclick.timeout", "30s")
	v.SetDefault("cache.redis_addr", "")
	v.SetDefault("cache.redis_password", "")
	v.SetDefault("cache.redis_db", 0)
	v.SetDefault("cache.ttl", "15s")
	v.SetDefault("metrics.addr", "")
}

// Load reads configuration from environment variables and config file
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName(".flashtrade")
	v.SetConfigType("yaml")
	v.AddConfigPath("$HOME")
	v.AddConfigPath(".")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	hostname := os.Getenv("FLASHTRADE_HOST")
	if hostname == "" {
		hostname, _ = os.Hostname()
	}

	cfg, err := load(v, hostname)
	if err != nil {
		return nil, err
	}
	globalConfig = cfg
	return cfg, nil
}

func load(v *viper.Viper, hostname string) (*Config, error) {
	v.SetEnvPrefix("FLASHTRADE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	v.SetDefault("env", string(Development))

	env := DetectEnvironment(v.GetString("env"), hostname)
	setProfileDefaults(v, env)
	setCommonDefaults(v)

	cfg := &Config{
		Environment: env,
		Network: NetworkSettings{
			DefaultNetwork:  v.GetString("network.default"),
			UseTestnets:     v.GetBool("network.use_testnets"),
			RPCOverrides:    v.GetStringMapString("network.rpc_overrides"),
			EnableAnalytics: v.GetBool("network.enable_analytics"),
			CDNBaseURL:      v.GetString("network.cdn_base_url"),
		},
		Features: Features{
			EnableArbitrageExecution:   v.GetBool("features.enable_arbitrage_execution"),
			EnablePriceMonitoring:      v.GetBool("features.enable_price_monitoring"),
			EnableWalletConnect:        v.GetBool("features.enable_wallet_connect"),
			EnableExperimentalFeatures: v.GetBool("features.enable_experimental_features"),
			EnableDebugMode:            v.GetBool("features.enable_debug_mode"),
		},
		App: App{
			Name:       v.GetString("app.name"),
			APIVersion: v.GetString("app.api_version"),
			APIBaseURL: v.GetString("app.api_base_url"),
			WSEndpoint: v.GetString("app.ws_endpoint"),
		},
		Networks: DefaultNetworks(),
		RPC: RPC{
			URL:         v.GetString("rpc.url"),
			CallTimeout: v.GetDuration("rpc.call_timeout"),
			RateLimit:   v.GetFloat64("rpc.rate_limit"),
			Burst:       v.GetInt("rpc.burst"),
			ReceiptWait: v.GetDuration("rpc.receipt_wait"),
		},
		Wallet:   Wallet{PrivateKey: v.GetString("wallet.private_key")},
		Registry: Registry{Path: v.GetString("registry.path")},
		OneClick: OneClick{
			JWTToken: v.GetString("oneclick.jwt_token"),
			BaseURL:  v.GetString("oneclick.base_url"),
			Timeout:  v.GetDuration("oneclick.timeout"),
		},
		Cache: Cache{
			RedisAddr:     v.GetString("cache.redis_addr"),
			RedisPassword: v.GetString("cache.redis_password"),
			RedisDB:       v.GetInt("cache.redis_db"),
			TTL:           v.GetDuration("cache.ttl"),
		},
		Log: Log{
			Level:  v.GetString("log.level"),
			Pretty: v.GetBool("log.pretty"),
		},
		Metrics: Metrics{Addr: v.GetString("metrics.addr")},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration once after loading.
func (c *Config) Validate() error {
	switch c.Environment {
	case Development, Staging, Production:
	default:
		return fmt.Errorf("unknown environment %q", c.Environment)
	}
	if _, ok := c.Networks[c.Network.DefaultNetwork]; !ok {
		return fmt.Errorf("default network %q is not one of %s", c.Network.DefaultNetwork, strings.Join(c.NetworkNames(), ", "))
	}
	for name := range c.Network.RPCOverrides {
		if _, ok := c.Networks[name]; !ok {
			return fmt.Errorf("rpc override for unknown network %q", name)
		}
	}
	if _, err := zerolog.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("invalid log level %q", c.Log.Level)
	}
	if c.RPC.CallTimeout <= 0 {
		return fmt.Errorf("rpc call timeout must be positive")
	}
	if c.RPC.RateLimit < 0 || c.RPC.Burst < 0 {
		return fmt.Errorf("rpc rate limit and burst must not be negative")
	}
	if c.Wallet.PrivateKey != "" {
		if _, err := crypto.HexToECDSA(strings.TrimPrefix(c.Wallet.PrivateKey, "0x")); err != nil {
			return fmt.Errorf("invalid wallet private key: %w", err)
		}
	}
	if c.Features.EnableArbitrageExecution && c.Wallet.PrivateKey == "" {
		return fmt.Errorf("arbitrage execution requires FLASHTRADE_WALLET_PRIVATE_KEY")
	}
	return nil
}

// CheckExecution fails unless transaction submission is enabled and a
// signing key is configured.
func (c *Config) CheckExecution() error {
	if !c.Features.EnableArbitrageExecution {
		return fmt.Errorf("swap execution is disabled. Set FLASHTRADE_FEATURES_ENABLE_ARBITRAGE_EXECUTION=true to enable it")
	}
	if c.Wallet.PrivateKey == "" {
		return fmt.Errorf("wallet not configured. Please set FLASHTRADE_WALLET_PRIVATE_KEY")
	}
	return nil
}

// NetworkNames returns the supported network names in order.
func (c *Config) NetworkNames() []string {
	names := make([]string, 0, len(c.Networks))
	for name := range c.Networks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SelectNetwork resolves name, or the default network when name is empty,
// applying RPC overrides.
func (c *Config) SelectNetwork(name string) (Network, error) {
	if name == "" {
		name = c.Network.DefaultNetwork
		if c.Network.UseTestnets {
			name = "sepolia"
		}
	}
	n, ok := c.Networks[strings.ToLower(name)]
	if !ok {
		return Network{}, fmt.Errorf("unknown network %q (supported: %s)", name, strings.Join(c.NetworkNames(), ", "))
	}
	if url, ok := c.Network.RPCOverrides[n.Name]; ok && url != "" {
		n.RPCURL = url
	}
	if c.RPC.URL != "" {
		n.RPCURL = c.RPC.URL
	}
	return n, nil
}

// Get returns the global configuration
func Get() *Config {
	if globalConfig == nil {
		cfg, err := Load()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
			os.Exit(1)
		}
		return cfg
	}
	return globalConfig
}

// Set updates the global configuration
func Set(cfg *Config) {
	globalConfig = cfg
}
