package parser

import (
	"fmt"
	"regexp"
	"strings"
)

// TradeCommand is a parsed "<amount> <token> to <token>" phrase. Tokens are
// symbols or 0x addresses and are resolved against the registry later.
type TradeCommand struct {
	Amount string
	From   string
	To     string
}

var (
	tradePattern = regexp.MustCompile(`(?i)^(\d+\.?\d*|\.\d+)\s+([A-Z0-9.]+|0x[0-9a-f]{40})\s+(?:TO|->|FOR)\s+([A-Z0-9.]+|0x[0-9a-f]{40})$`)
	pairPattern  = regexp.MustCompile(`(?i)^([A-Z0-9.]+|0x[0-9a-f]{40})\s*[/:]\s*([A-Z0-9.]+|0x[0-9a-f]{40})$`)
)

// ParseTradeCommand parses a natural language trade phrase
// Examples:
//   - "swap 1 WETH to USDC"
//   - "quote 1.5 weth for dai"
//   - "100 USDC -> WETH"
func ParseTradeCommand(command string) (*TradeCommand, error) {
	command = strings.Join(strings.Fields(command), " ")
	for _, verb := range []string{"swap ", "quote ", "trade "} {
		if len(command) >= len(verb) && strings.EqualFold(command[:len(verb)], verb) {
			command = command[len(verb):]
			break
		}
	}

	matches := tradePattern.FindStringSubmatch(command)
	if matches == nil {
		return nil, fmt.Errorf("invalid trade format. Expected: '<amount> <token> to <token>' (e.g., '1 WETH to USDC')")
	}

	cmd := &TradeCommand{
		Amount: matches[1],
		From:   NormalizeToken(matches[2]),
		To:     NormalizeToken(matches[3]),
	}
	if strings.EqualFold(cmd.From, cmd.To) {
		return nil, fmt.Errorf("cannot trade %s for itself", cmd.From)
	}
	return cmd, nil
}

// ParsePair parses "A/B" or "A:B".
func ParsePair(pair string) (string, string, error) {
	matches := pairPattern.FindStringSubmatch(strings.TrimSpace(pair))
	if matches == nil {
		return "", "", fmt.Errorf("invalid pair %q. Expected: '<token>/<token>' (e.g., 'WETH/USDC')", pair)
	}
	return NormalizeToken(matches[1]), NormalizeToken(matches[2]), nil
}

// NormalizeToken upper-cases symbols and maps native assets to their
// wrapped ERC20. Addresses are returned unchanged.
func NormalizeToken(token string) string {
	token = strings.TrimSpace(token)
	if strings.HasPrefix(strings.ToLower(token), "0x") {
		return token
	}
	token = strings.ToUpper(token)

	aliases := map[string]string{
		"ETH": "WETH",
		"BTC": "WBTC",
	}
	if wrapped, ok := aliases[token]; ok {
		return wrapped
	}
	return token
}
