package types

// Protocol names the on-chain mechanics a venue speaks.
type Protocol string

const (
	ProtocolUniswapV2 Protocol = "uniswap-v2" // constant-product factory/pair/router
	ProtocolOneClick  Protocol = "oneclick"   // NEAR Intents 1Click
)

// Deployment holds the contract addresses of a venue on one chain.
type Deployment struct {
	Factory string `json:"factory,omitempty"`
	Router  string `json:"router,omitempty"`
}

// DEX describes one exchange venue. It is reference data: adapters read it,
// the registry owns it. Active is consulted on every routing round.
type DEX struct {
	ID                string   `json:"id"`
	Name              string   `json:"name"`
	Active            bool     `json:"active"`
	Logo              string   `json:"logo"`
	SupportedChainIDs []uint64 `json:"supported_chain_ids"`

	Protocol       Protocol              `json:"protocol"`
	Deployments    map[uint64]Deployment `json:"deployments,omitempty"`
	FeeBps         uint32                `json:"fee_bps"`
	FeeTiers       map[string]uint32     `json:"fee_tiers,omitempty"`   // keyed by PairKey
	BaseTokens     []string              `json:"base_tokens,omitempty"` // multi-hop intermediates
	MaxPriceImpact float64               `json:"max_price_impact,omitempty"`
}

// SupportsChain reports whether the venue is deployed on chainID.
func (d DEX) SupportsChain(chainID uint64) bool {
	for _, id := range d.SupportedChainIDs {
		if id == chainID {
			return true
		}
	}
	return false
}

// Deployment returns the contracts for chainID, if any.
func (d DEX) Deployment(chainID uint64) (Deployment, bool) {
	dep, ok := d.Deployments[chainID]
	return dep, ok
}
