package config

import (
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/zeebo/assert"
)

func TestDetectEnvironment(t *testing.T) {
	tests := []struct {
		tag, host string
		want      Environment
	}{
		{"", "laptop", Development},
		{"development", "laptop", Development},
		{"bogus", "laptop", Development},
		{"staging", "anything", Staging},
		{"production", "trade.flashtrade.app", Production},
		{"PRODUCTION", "trade-staging.flashtrade.app", Staging},
		{"production", "test-runner-3", Staging},
	}
	for _, tc := range tests {
		t.Run(tc.tag+"@"+tc.host, func(t *testing.T) {
			assert.Equal(t, DetectEnvironment(tc.tag, tc.host), tc.want)
		})
	}
}

func TestLoadDevelopmentDefaults(t *testing.T) {
	t.Setenv("FLASHTRADE_ENV", "")

	cfg, err := load(viper.New(), "laptop")
	assert.NoError(t, err)
	assert.Equal(t, cfg.Environment, Development)
	assert.Equal(t, cfg.Network.DefaultNetwork, "optimism")
	assert.False(t, cfg.Network.EnableAnalytics)
	assert.True(t, cfg.Features.EnableDebugMode)
	assert.False(t, cfg.Features.EnablePriceMonitoring)
	assert.Equal(t, cfg.App.Name, "FlashTrade Logic")
	assert.Equal(t, cfg.App.APIBaseURL, "http://localhost:8000")
	assert.Equal(t, cfg.RPC.CallTimeout, 10*time.Second)
	assert.Equal(t, cfg.OneClick.BaseURL, "https://1click.chaindefuser.com")
	assert.True(t, cfg.Log.Pretty)

	n, err := cfg.SelectNetwork("")
	assert.NoError(t, err)
	assert.Equal(t, n.ChainID, uint64(10))
}

func TestLoadProductionProfiles(t *testing.T) {
	t.Setenv("FLASHTRADE_ENV", "production")

	cfg, err := load(viper.New(), "trade.flashtrade.app")
	assert.NoError(t, err)
	assert.Equal(t, cfg.Environment, Production)
	assert.Equal(t, cfg.Network.DefaultNetwork, "ethereum")
	assert.False(t, cfg.Features.EnableExperimentalFeatures)
	assert.Equal(t, cfg.Log.Level, "info")

	cfg, err = load(viper.New(), "staging-box")
	assert.NoError(t, err)
	assert.Equal(t, cfg.Environment, Staging)
	assert.Equal(t, cfg.Network.DefaultNetwork, "polygon")
	assert.Equal(t, cfg.App.WSEndpoint, "wss://ws.staging.flashtrade.app")
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("FLASHTRADE_ENV", "")
	t.Setenv("FLASHTRADE_NETWORK_DEFAULT", "base")
	t.Setenv("FLASHTRADE_RPC_RATE_LIMIT", "2.5")
	t.Setenv("FLASHTRADE_FEATURES_ENABLE_PRICE_MONITORING", "true")
	t.Setenv("FLASHTRADE_CACHE_TTL", "1m")

	cfg, err := load(viper.New(), "laptop")
	assert.NoError(t, err)
	assert.Equal(t, cfg.Network.DefaultNetwork, "base")
	assert.Equal(t, cfg.RPC.RateLimit, 2.5)
	assert.True(t, cfg.Features.EnablePriceMonitoring)
	assert.Equal(t, cfg.Cache.TTL, time.Minute)

	t.Setenv("FLASHTRADE_NETWORK_USE_TESTNETS", "true")
	cfg, err = load(viper.New(), "laptop")
	assert.NoError(t, err)
	n, err := cfg.SelectNetwork("")
	assert.NoError(t, err)
	assert.Equal(t, n.Name, "sepolia")
	assert.True(t, n.Testnet)
}

func TestConfigFileOverrides(t *testing.T) {
	t.Setenv("FLASHTRADE_ENV", "")

	v := viper.New()
	v.SetConfigType("yaml")
	assert.NoError(t, v.ReadConfig(strings.NewReader(`
network:
  rpc_overrides:
    ethereum: http://localhost:8545
oneclick:
  jwt_token: secret
`)))

	cfg, err := load(v, "laptop")
	assert.NoError(t, err)
	assert.Equal(t, cfg.OneClick.JWTToken, "secret")

	n, err := cfg.SelectNetwork("Ethereum")
	assert.NoError(t, err)
	assert.Equal(t, n.RPCURL, "http://localhost:8545")

	_, err = cfg.SelectNetwork("moon")
	assert.Error(t, err)
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name, key, value string
	}{
		{"unknown default network", "FLASHTRADE_NETWORK_DEFAULT", "moon"},
		{"bad log level", "FLASHTRADE_LOG_LEVEL", "loud"},
		{"bad private key", "FLASHTRADE_WALLET_PRIVATE_KEY", "0x1234"},
		{"zero timeout", "FLASHTRADE_RPC_CALL_TIMEOUT", "0s"},
		{"execution without key", "FLASHTRADE_FEATURES_ENABLE_ARBITRAGE_EXECUTION", "true"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv("FLASHTRADE_ENV", "")
			t.Setenv(tc.key, tc.value)
			_, err := load(viper.New(), "laptop")
			assert.Error(t, err)
		})
	}
}

func TestCheckExecution(t *testing.T) {
	key := "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"
	tests := []struct {
		name    string
		enabled bool
		key     string
		ok      bool
	}{
		{"disabled", false, key, false},
		{"no key", true, "", false},
		{"enabled", true, key, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := &Config{
				Features: Features{EnableArbitrageExecution: tc.enabled},
				Wallet:   Wallet{PrivateKey: tc.key},
			}
			err := cfg.CheckExecution()
			assert.Equal(t, err == nil, tc.ok)
		})
	}
}
