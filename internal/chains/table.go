// Package chains translates the product's (chain id, token address) identifiers into the
// off-ramp provider's (chain name, currency name) identifiers and back.
package chains

import (
	_ "embed"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"
)

//go:embed bridge_chains.yaml
var embeddedTable []byte

// Token is a provider-supported token on a chain.
type Token struct {
	BridgeName string `yaml:"bridgeName" json:"bridge_name"`
	Address    string `yaml:"address" json:"address"`
}

// Chain is a provider-supported chain with its tokens.
type Chain struct {
	ChainID    string  `yaml:"chainId" json:"chain_id"`
	BridgeName string  `yaml:"bridgeName" json:"bridge_name"`
	Tokens     []Token `yaml:"tokens" json:"tokens"`
}

type document struct {
	Chains []Chain `yaml:"chains"`
}

// Table is an immutable bidirectional lookup. It is safe for concurrent use.
type Table struct {
	chains []Chain
}

var defaultTable = MustLoad(embeddedTable)

// Default returns the table compiled into the binary.
func Default() *Table {
	return defaultTable
}

// Load parses a YAML table document and checks it for duplicate identifiers.
func Load(data []byte) (*Table, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse chain table: %w", err)
	}

	seenIDs := make(map[string]struct{}, len(doc.Chains))
	seenNames := make(map[string]struct{}, len(doc.Chains))
	for i, ch := range doc.Chains {
		if ch.ChainID == "" || ch.BridgeName == "" {
			return nil, fmt.Errorf("chain entry %d: chainId and bridgeName are required", i)
		}
		if _, dup := seenIDs[ch.ChainID]; dup {
			return nil, fmt.Errorf("duplicate chain id %s", ch.ChainID)
		}
		if _, dup := seenNames[ch.BridgeName]; dup {
			return nil, fmt.Errorf("duplicate chain name %s", ch.BridgeName)
		}
		seenIDs[ch.ChainID] = struct{}{}
		seenNames[ch.BridgeName] = struct{}{}

		tokens := make(map[string]struct{}, len(ch.Tokens))
		for j, tok := range ch.Tokens {
			name := strings.ToLower(tok.BridgeName)
			if name == "" || tok.Address == "" {
				return nil, fmt.Errorf("chain %s token %d: bridgeName and address are required", ch.ChainID, j)
			}
			if _, dup := tokens[name]; dup {
				return nil, fmt.Errorf("chain %s: duplicate token %s", ch.ChainID, name)
			}
			tokens[name] = struct{}{}
			doc.Chains[i].Tokens[j].BridgeName = name
		}
	}

	return &Table{chains: doc.Chains}, nil
}

// MustLoad is Load that panics; used for the embedded table.
func MustLoad(data []byte) *Table {
	t, err := Load(data)
	if err != nil {
		panic(err)
	}
	return t
}

// Chains returns a copy of every entry.
func (t *Table) Chains() []Chain {
	out := make([]Chain, len(t.chains))
	for i, ch := range t.chains {
		out[i] = ch
		out[i].Tokens = append([]Token(nil), ch.Tokens...)
	}
	return out
}

// BridgeChainName maps a product chain id to the provider chain name.
func (t *Table) BridgeChainName(chainID string) (string, bool) {
	ch, ok := t.chain(chainID)
	if !ok {
		return "", false
	}
	return ch.BridgeName, true
}

// ChainID maps a provider chain name back to the product chain id.
func (t *Table) ChainID(bridgeName string) (string, bool) {
	for _, ch := range t.chains {
		if ch.BridgeName == bridgeName {
			return ch.ChainID, true
		}
	}
	return "", false
}

// BridgeTokenName maps a token address on a chain to the provider currency name.
// Addresses compare case-insensitively.
func (t *Table) BridgeTokenName(chainID, tokenAddress string) (string, bool) {
	ch, ok := t.chain(chainID)
	if !ok {
		return "", false
	}
	for _, tok := range ch.Tokens {
		if SameAddress(tok.Address, tokenAddress) {
			return tok.BridgeName, true
		}
	}
	return "", false
}

// TokenAddress maps a provider currency name on a chain back to the token address.
func (t *Table) TokenAddress(chainID, bridgeTokenName string) (string, bool) {
	ch, ok := t.chain(chainID)
	if !ok {
		return "", false
	}
	name := strings.ToLower(bridgeTokenName)
	for _, tok := range ch.Tokens {
		if tok.BridgeName == name {
			return tok.Address, true
		}
	}
	return "", false
}

func (t *Table) chain(chainID string) (Chain, bool) {
	for _, ch := range t.chains {
		if ch.ChainID == chainID {
			return ch, true
		}
	}
	return Chain{}, false
}

// SameAddress compares two token addresses. EVM addresses are compared as 20-byte values so
// checksummed and lower-case forms match; anything else falls back to a case-insensitive match.
func SameAddress(a, b string) bool {
	a, b = strings.TrimSpace(a), strings.TrimSpace(b)
	if common.IsHexAddress(a) && common.IsHexAddress(b) {
		return common.HexToAddress(a) == common.HexToAddress(b)
	}
	return strings.EqualFold(a, b)
}
