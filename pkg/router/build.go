package router

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"flashtrade/pkg/chain"
	"flashtrade/pkg/dex"
	"flashtrade/pkg/dex/oneclick"
	"flashtrade/pkg/dex/uniswapv2"
	"flashtrade/pkg/types"
)

// Factory builds adapters for registry descriptors on one chain.
type Factory struct {
	ChainID uint64
	Client  *chain.Client // EVM RPC, required for uniswap-v2 venues
	Signer  chain.Signer  // optional; without it swaps fail with ProviderUnavailable

	OneClick oneclick.API // required for oneclick venues

	ReceiptWait time.Duration
	Wrap        func(dex.Adapter) dex.Adapter
	Log         zerolog.Logger
}

// NewAdapter builds the adapter matching the descriptor's protocol.
func (f *Factory) NewAdapter(d types.DEX) (dex.Adapter, error) {
	var (
		a   dex.Adapter
		err error
	)

	switch d.Protocol {
	case types.ProtocolUniswapV2:
		if f.Client == nil {
			return nil, fmt.Errorf("venue %s needs an RPC endpoint for chain %d", d.ID, f.ChainID)
		}
		opts := []uniswapv2.Option{uniswapv2.WithReceiptWait(f.ReceiptWait)}
		if f.Signer != nil {
			opts = append(opts, uniswapv2.WithSigner(f.Signer))
		}
		a, err = uniswapv2.New(d, f.ChainID, f.Client, f.Log, opts...)
	case types.ProtocolOneClick:
		if f.OneClick == nil {
			return nil, fmt.Errorf("venue %s needs a 1click API token", d.ID)
		}
		var opts []oneclick.Option
		if f.Client != nil && f.Signer != nil {
			opts = append(opts, oneclick.WithDepositor(f.Client, f.Signer))
		}
		a, err = oneclick.New(d, f.ChainID, f.OneClick, f.Log, opts...)
	default:
		return nil, fmt.Errorf("venue %s: unsupported protocol %q", d.ID, d.Protocol)
	}
	if err != nil {
		return nil, err
	}

	if f.Wrap != nil {
		a = f.Wrap(a)
	}
	return a, nil
}

// Populate registers an adapter for every venue of the registry deployed on
// the factory's chain, active or not, so toggling a venue takes effect
// without rebuilding the router. Venues that cannot be built are returned
// as errors and left unregistered.
func (f *Factory) Populate(r *Router) []error {
	var errs []error
	for _, d := range r.registry.DEXes() {
		if !d.SupportsChain(f.ChainID) {
			continue
		}
		a, err := f.NewAdapter(d)
		if err != nil {
			errs = append(errs, err)
			f.Log.Debug().Err(err).Str("venue", d.ID).Msg("venue not built")
			continue
		}
		r.Register(a)
	}
	return errs
}
