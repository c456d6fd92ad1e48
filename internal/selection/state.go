// Package selection holds the per-account token and chain selection used to build a cash-out.
package selection

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"
)

// NativeToken is the zero address used for a chain's native token.
const NativeToken = "0x0000000000000000000000000000000000000000"

// DefaultChainID is selected when no preference exists.
const DefaultChainID = "1"

// Denomination is how the user types amounts.
type Denomination string

const (
	DenominationUSD   Denomination = "USD"
	DenominationToken Denomination = "TOKEN"
)

// Preferences is the persisted default selection of an account.
type Preferences struct {
	TokenAddress string `json:"tokenAddress"`
	ChainID      string `json:"chainId"`
}

// DefaultPreferences returns the selection used when nothing is stored.
func DefaultPreferences() Preferences {
	return Preferences{TokenAddress: NativeToken, ChainID: DefaultChainID}
}

// Snapshot is a consistent copy of a State.
type Snapshot struct {
	TokenAddress string           `json:"token_address"`
	ChainID      string           `json:"chain_id"`
	TokenPrice   *decimal.Decimal `json:"token_price,omitempty"`
	Denomination Denomination     `json:"input_denomination"`
	RefetchRoute bool             `json:"refetch_route"`
	Version      uint64           `json:"version"`
}

// State is one account's selection. It is safe for concurrent use.
type State struct {
	mu           sync.Mutex
	tokenAddress string
	chainID      string
	price        *decimal.Decimal
	denomination Denomination
	refetchRoute bool
	// version changes whenever token or chain changes; price results for an older version are dropped.
	version uint64
}

// NewState creates a state from preferences.
func NewState(prefs Preferences) *State {
	s := &State{denomination: DenominationToken}
	s.apply(prefs)
	return s
}

// Snapshot returns a copy of the current selection.
func (s *State) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{
		TokenAddress: s.tokenAddress,
		ChainID:      s.chainID,
		Denomination: s.denomination,
		RefetchRoute: s.refetchRoute,
		Version:      s.version,
	}
	if s.price != nil {
		p := *s.price
		snap.TokenPrice = &p
	}
	return snap
}

// SetToken selects a token on the current chain and clears the known price.
func (s *State) SetToken(address string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokenAddress = address
	s.price = nil
	s.version++
}

// SetChain selects a chain and resets the token to the chain's native token.
func (s *State) SetChain(chainID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chainID = chainID
	s.tokenAddress = NativeToken
	s.price = nil
	s.version++
}

// SetDenomination changes the input denomination.
func (s *State) SetDenomination(d Denomination) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.denomination = d
}

// SetRefetchRoute flags that the cross-chain route must be fetched again.
func (s *State) SetRefetchRoute(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refetchRoute = v
}

// Reset restores the selection to prefs and clears the price.
func (s *State) Reset(prefs Preferences) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.apply(prefs)
	s.version++
}

func (s *State) apply(prefs Preferences) {
	def := DefaultPreferences()
	s.tokenAddress = prefs.TokenAddress
	if s.tokenAddress == "" {
		s.tokenAddress = def.TokenAddress
	}
	s.chainID = prefs.ChainID
	if s.chainID == "" {
		s.chainID = def.ChainID
	}
	s.price = nil
}

// RefreshPrice fetches the price of the selected token. Chains the source does not price clear
// the price and switch to token denomination. A result is dropped when the selection changed
// while it was being fetched.
func (s *State) RefreshPrice(ctx context.Context, src PriceSource) error {
	s.mu.Lock()
	token, chain, version := s.tokenAddress, s.chainID, s.version
	s.price = nil
	if !src.PricedChain(chain) {
		s.denomination = DenominationToken
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	price, ok, err := src.TokenPrice(ctx, chain, token)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.version != version {
		return nil
	}
	if err != nil || !ok || !price.IsPositive() {
		s.price = nil
		s.denomination = DenominationToken
		return err
	}
	s.price = &price
	s.denomination = DenominationUSD
	return nil
}
