package types

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Token describes a fungible asset on one chain.
// Identity is the (ChainID, Address) pair; the rest is display metadata.
type Token struct {
	Address  string           `json:"address"`
	Symbol   string           `json:"symbol"`
	Name     string           `json:"name"`
	Decimals int32            `json:"decimals"`
	ChainID  uint64           `json:"chain_id"`
	Price    *decimal.Decimal `json:"price,omitempty"`   // last known USD price
	Balance  string           `json:"balance,omitempty"` // last known held balance
}

// Key returns the chain-qualified identity of the token.
func (t Token) Key() string {
	return fmt.Sprintf("%d:%s", t.ChainID, strings.ToLower(t.Address))
}

// SameAs reports whether both descriptors name the same on-chain asset.
func (t Token) SameAs(other Token) bool {
	return t.Key() == other.Key()
}

// WithPrice returns a copy of the token with a refreshed price.
func (t Token) WithPrice(price decimal.Decimal) Token {
	t.Price = &price
	return t
}

// WithBalance returns a copy of the token with a refreshed balance.
func (t Token) WithBalance(balance string) Token {
	t.Balance = balance
	return t
}

// String renders the token for logs and CLI output.
func (t Token) String() string {
	if t.Symbol != "" {
		return t.Symbol
	}
	return t.Address
}
