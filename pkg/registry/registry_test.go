package registry

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/zeebo/assert"

	"flashtrade/pkg/types"
)

func TestNewUsesDefaultsWhenFileMissing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registry.json")
	r, err := New(path)
	assert.NoError(t, err)

	assert.Equal(t, len(r.DEXes()), 3)
	active := r.ActiveDEXes(1)
	assert.Equal(t, len(active), 2)
	assert.Equal(t, active[0].ID, "sushiswap")
	assert.Equal(t, active[1].ID, "uniswap-v2")

	_, err = os.Stat(path)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestSetActiveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registry.json")
	r, err := New(path)
	assert.NoError(t, err)

	assert.NoError(t, r.SetActive("uniswap-v2", false))
	assert.Equal(t, len(r.ActiveDEXes(1)), 1)

	reopened, err := New(path)
	assert.NoError(t, err)
	d, err := reopened.DEX("uniswap-v2")
	assert.NoError(t, err)
	assert.False(t, d.Active)

	assert.NoError(t, reopened.SetActive("uniswap-v2", true))
	assert.Equal(t, len(reopened.ActiveDEXes(1)), 2)

	err = r.SetActive("missing", true)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestFindToken(t *testing.T) {
	r, err := NewInMemory(DefaultDEXes(), DefaultTokens())
	assert.NoError(t, err)

	tests := []struct {
		name    string
		chainID uint64
		query   string
		want    string
	}{
		{"symbol", 1, "WETH", "WETH"},
		{"lower case symbol", 1, "usdc", "USDC"},
		{"address any case", 1, "0x6b175474e89094c44da98b954eedeac495271d0f", "DAI"},
		{"solana mint", SolanaChainID, "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v", "USDC"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tok, err := r.FindToken(tc.chainID, tc.query)
			assert.NoError(t, err)
			assert.Equal(t, tok.Symbol, tc.want)
			assert.Equal(t, tok.ChainID, tc.chainID)
		})
	}

	_, err = r.FindToken(137, "WETH")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestValidateToken(t *testing.T) {
	tests := []struct {
		name  string
		token types.Token
		ok    bool
	}{
		{"evm", types.Token{Address: "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2", Decimals: 18, ChainID: 1}, true},
		{"evm bad hex", types.Token{Address: "0xnothex", Decimals: 18, ChainID: 1}, false},
		{"solana", types.Token{Address: "So11111111111111111111111111111111111111112", Decimals: 9, ChainID: SolanaChainID}, true},
		{"solana given hex", types.Token{Address: "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2", Decimals: 9, ChainID: SolanaChainID}, false},
		{"negative decimals", types.Token{Address: "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2", Decimals: -1, ChainID: 1}, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateToken(tc.token)
			assert.Equal(t, err == nil, tc.ok)
		})
	}
}

func TestUpsertPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "registry.json")
	r, err := New(path)
	assert.NoError(t, err)

	link := types.Token{Address: "0x514910771AF9Ca656af840dff83E8264EcF986CA", Symbol: "LINK", Decimals: 18, ChainID: 1}
	assert.NoError(t, r.UpsertToken(link))

	venue := DefaultDEXes()[0]
	venue.ID = "fork"
	venue.FeeBps = 25
	assert.NoError(t, r.UpsertDEX(venue))

	bad := venue
	bad.FeeBps = 20000
	assert.Error(t, r.UpsertDEX(bad))

	reopened, err := New(path)
	assert.NoError(t, err)
	tok, err := reopened.FindToken(1, "link")
	assert.NoError(t, err)
	assert.Equal(t, tok.Address, link.Address)

	d, err := reopened.DEX("fork")
	assert.NoError(t, err)
	assert.Equal(t, d.FeeBps, uint32(25))
	assert.Equal(t, d.Deployments[1].Router, venue.Deployments[1].Router)
}

func TestLoadRejectsCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registry.json")
	assert.NoError(t, os.WriteFile(path, []byte("{not json"), 0600))

	_, err := New(path)
	assert.Error(t, err)
}

func TestConcurrentToggle(t *testing.T) {
	r, err := NewInMemory(DefaultDEXes(), DefaultTokens())
	assert.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func(active bool) {
			defer wg.Done()
			_ = r.SetActive("sushiswap", active)
		}(i%2 == 0)
		go func() {
			defer wg.Done()
			_ = r.ActiveDEXes(1)
		}()
	}
	wg.Wait()

	assert.NoError(t, r.SetActive("sushiswap", true))
	assert.Equal(t, len(r.ActiveDEXes(1)), 2)
}
