// Package registry stores the venue and token reference data the router and
// the CLI read. It is file backed and safe for concurrent use.
package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	solana "github.com/gagliardetto/solana-go"

	"flashtrade/pkg/types"
)

const (
	DefaultFileName = ".flashtrade-registry.json"

	// SolanaChainID identifies Solana mainnet tokens in the registry.
	SolanaChainID uint64 = 101
)

var ErrNotFound = errors.New("not found")

// Registry holds DEX descriptors and token descriptors.
type Registry struct {
	filePath string

	mu     sync.RWMutex
	dexes  map[string]types.DEX
	tokens map[string]types.Token // by Token.Key
}

// document is the JSON layout of the registry file.
type document struct {
	DEXes  []types.DEX   `json:"dexes"`
	Tokens []types.Token `json:"tokens"`
}

// New opens the registry stored at filePath. A missing file yields the
// built-in defaults; they are written on the first Save.
func New(filePath string) (*Registry, error) {
	if filePath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		filePath = filepath.Join(home, DefaultFileName)
	}

	r := &Registry{filePath: filePath}
	if err := r.Load(); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to load registry: %w", err)
		}
		if err := r.replace(DefaultDEXes(), DefaultTokens()); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// NewInMemory builds a registry that is never persisted.
func NewInMemory(dexes []types.DEX, tokens []types.Token) (*Registry, error) {
	r := &Registry{}
	if err := r.replace(dexes, tokens); err != nil {
		return nil, err
	}
	return r, nil
}

// Path returns the backing file, or "" for an in-memory registry.
func (r *Registry) Path() string {
	return r.filePath
}

// Load replaces the in-memory state with the file contents.
func (r *Registry) Load() error {
	if r.filePath == "" {
		return nil
	}
	data, err := os.ReadFile(r.filePath)
	if err != nil {
		return err
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("failed to unmarshal registry: %w", err)
	}
	return r.replace(doc.DEXes, doc.Tokens)
}

func (r *Registry) replace(dexes []types.DEX, tokens []types.Token) error {
	dm := make(map[string]types.DEX, len(dexes))
	for _, d := range dexes {
		if err := ValidateDEX(d); err != nil {
			return err
		}
		dm[d.ID] = d
	}
	tm := make(map[string]types.Token, len(tokens))
	for _, t := range tokens {
		if err := ValidateToken(t); err != nil {
			return err
		}
		tm[t.Key()] = t
	}

	r.mu.Lock()
	r.dexes = dm
	r.tokens = tm
	r.mu.Unlock()
	return nil
}

// Save writes the registry atomically through a temporary file.
func (r *Registry) Save() error {
	if r.filePath == "" {
		return nil
	}

	r.mu.RLock()
	doc := document{DEXes: r.sortedDEXes(), Tokens: r.sortedTokens(func(types.Token) bool { return true })}
	r.mu.RUnlock()

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal registry: %w", err)
	}

	dir := filepath.Dir(r.filePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tempFile := r.filePath + ".tmp"
	if err := os.WriteFile(tempFile, data, 0600); err != nil {
		return fmt.Errorf("failed to write registry: %w", err)
	}
	if err := os.Rename(tempFile, r.filePath); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}

// DEXes returns every venue ordered by id.
func (r *Registry) DEXes() []types.DEX {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sortedDEXes()
}

// ActiveDEXes returns the active venues deployed on chainID. It reads the
// current state on every call.
func (r *Registry) ActiveDEXes(chainID uint64) []types.DEX {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var active []types.DEX
	for _, d := range r.sortedDEXes() {
		if d.Active && d.SupportsChain(chainID) {
			active = append(active, d)
		}
	}
	return active
}

// DEX returns the venue with id.
func (r *Registry) DEX(id string) (types.DEX, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.dexes[id]
	if !ok {
		return types.DEX{}, fmt.Errorf("dex '%s' %w", id, ErrNotFound)
	}
	return d, nil
}

// SetActive toggles a venue and persists the change.
func (r *Registry) SetActive(id string, active bool) error {
	r.mu.Lock()
	d, ok := r.dexes[id]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("dex '%s' %w", id, ErrNotFound)
	}
	d.Active = active
	r.dexes[id] = d
	r.mu.Unlock()

	return r.Save()
}

// UpsertDEX adds or replaces a venue and persists the change.
func (r *Registry) UpsertDEX(d types.DEX) error {
	if err := ValidateDEX(d); err != nil {
		return err
	}
	r.mu.Lock()
	r.dexes[d.ID] = d
	r.mu.Unlock()

	return r.Save()
}

// Tokens returns the tokens of chainID ordered by symbol.
func (r *Registry) Tokens(chainID uint64) []types.Token {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sortedTokens(func(t types.Token) bool { return t.ChainID == chainID })
}

// FindToken looks a token up by address or case-insensitive symbol.
func (r *Registry) FindToken(chainID uint64, symbolOrAddress string) (types.Token, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	query := strings.TrimSpace(symbolOrAddress)
	if t, ok := r.tokens[types.Token{Address: query, ChainID: chainID}.Key()]; ok {
		return t, nil
	}
	for _, t := range r.sortedTokens(func(t types.Token) bool { return t.ChainID == chainID }) {
		if strings.EqualFold(t.Symbol, query) {
			return t, nil
		}
	}
	return types.Token{}, fmt.Errorf("token '%s' on chain %d %w", symbolOrAddress, chainID, ErrNotFound)
}

// UpsertToken adds or replaces a token and persists the change.
func (r *Registry) UpsertToken(t types.Token) error {
	if err := ValidateToken(t); err != nil {
		return err
	}
	r.mu.Lock()
	r.tokens[t.Key()] = t
	r.mu.Unlock()

	return r.Save()
}

func (r *Registry) sortedDEXes() []types.DEX {
	out := make([]types.DEX, 0, len(r.dexes))
	for _, d := range r.dexes {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *Registry) sortedTokens(keep func(types.Token) bool) []types.Token {
	out := make([]types.Token, 0)
	for _, t := range r.tokens {
		if keep(t) {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ChainID != out[j].ChainID {
			return out[i].ChainID < out[j].ChainID
		}
		if out[i].Symbol != out[j].Symbol {
			return out[i].Symbol < out[j].Symbol
		}
		return out[i].Key() < out[j].Key()
	})
	return out
}

// ValidateToken checks the address format of the token's chain family.
func ValidateToken(t types.Token) error {
	if t.Decimals < 0 || t.Decimals > 36 {
		return fmt.Errorf("token %s: decimals %d out of range", t, t.Decimals)
	}
	if t.ChainID == SolanaChainID {
		if _, err := solana.PublicKeyFromBase58(t.Address); err != nil {
			return fmt.Errorf("token %s: invalid solana mint %q: %w", t, t.Address, err)
		}
		return nil
	}
	if !common.IsHexAddress(t.Address) {
		return fmt.Errorf("token %s: invalid address %q", t, t.Address)
	}
	return nil
}

// ValidateDEX checks a venue descriptor is usable by an adapter.
func ValidateDEX(d types.DEX) error {
	if d.ID == "" {
		return errors.New("dex id is required")
	}
	if d.FeeBps > 10000 {
		return fmt.Errorf("dex %s: fee %d bps exceeds 10000", d.ID, d.FeeBps)
	}
	switch d.Protocol {
	case types.ProtocolUniswapV2:
		for chainID, dep := range d.Deployments {
			if !common.IsHexAddress(dep.Factory) || !common.IsHexAddress(dep.Router) {
				return fmt.Errorf("dex %s: invalid contracts on chain %d", d.ID, chainID)
			}
		}
	case types.ProtocolOneClick:
	default:
		return fmt.Errorf("dex %s: unknown protocol %q", d.ID, d.Protocol)
	}
	for _, base := range d.BaseTokens {
		if !common.IsHexAddress(base) {
			return fmt.Errorf("dex %s: invalid base token %q", d.ID, base)
		}
	}
	return nil
}
