package selection

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/paylink/offramp/internal/chains"
)

// PriceSource quotes token prices in USD.
type PriceSource interface {
	PricedChain(chainID string) bool
	TokenPrice(ctx context.Context, chainID, tokenAddress string) (decimal.Decimal, bool, error)
}

// StablecoinPrices prices the off-ramp table tokens at one dollar. Every token the provider
// accepts is a USD stablecoin, so no market feed is needed.
type StablecoinPrices struct {
	table *chains.Table
}

// NewStablecoinPrices builds a price source over an identifier table.
func NewStablecoinPrices(table *chains.Table) *StablecoinPrices {
	if table == nil {
		table = chains.Default()
	}
	return &StablecoinPrices{table: table}
}

// PricedChain reports whether the chain has any supported token.
func (p *StablecoinPrices) PricedChain(chainID string) bool {
	_, ok := p.table.BridgeChainName(chainID)
	return ok
}

// TokenPrice returns 1 for supported tokens.
func (p *StablecoinPrices) TokenPrice(_ context.Context, chainID, tokenAddress string) (decimal.Decimal, bool, error) {
	name, ok := p.table.BridgeTokenName(chainID, tokenAddress)
	if !ok {
		return decimal.Zero, false, nil
	}
	switch name {
	case "usdc", "usdt", "dai", "usdb":
		return decimal.NewFromInt(1), true, nil
	}
	return decimal.Zero, false, nil
}
