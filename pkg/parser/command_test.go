package parser

import (
	"testing"

	"github.com/zeebo/assert"
)

func TestParseTradeCommand(t *testing.T) {
	tests := []struct {
		input            string
		amount, from, to string
		ok               bool
	}{
		{"swap 1 WETH to USDC", "1", "WETH", "USDC", true},
		{"1.5 weth to usdc", "1.5", "WETH", "USDC", true},
		{"QUOTE  .25 ETH for DAI", ".25", "WETH", "DAI", true},
		{"100 USDC -> WETH", "100", "USDC", "WETH", true},
		{"1 0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2 to USDC", "1", "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2", "USDC", true},
		{"1 ETH to WETH", "", "", "", false},
		{"swap WETH to USDC", "", "", "", false},
		{"-1 WETH to USDC", "", "", "", false},
		{"1 WETH USDC", "", "", "", false},
		{"", "", "", "", false},
	}
	for _, tc := range tests {
		t.Run(tc.input, func(t *testing.T) {
			cmd, err := ParseTradeCommand(tc.input)
			if !tc.ok {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, cmd.Amount, tc.amount)
			assert.Equal(t, cmd.From, tc.from)
			assert.Equal(t, cmd.To, tc.to)
		})
	}
}

func TestParsePair(t *testing.T) {
	a, b, err := ParsePair("weth/usdc")
	assert.NoError(t, err)
	assert.Equal(t, a, "WETH")
	assert.Equal(t, b, "USDC")

	a, b, err = ParsePair("ETH : DAI")
	assert.NoError(t, err)
	assert.Equal(t, a, "WETH")
	assert.Equal(t, b, "DAI")

	_, _, err = ParsePair("WETH")
	assert.Error(t, err)
}
