package chain

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Guard validates the active network against the single expected network id.
// There is no fallback list: any other id is rejected.
type Guard struct {
	expected uint64
}

// NewGuard returns a guard accepting only the supplied network id.
func NewGuard(expected uint64) Guard {
	return Guard{expected: expected}
}

// Expected returns the configured network id.
func (g Guard) Expected() uint64 { return g.expected }

// IsNetworkValid reports whether id is the expected network.
func (g Guard) IsNetworkValid(id uint64) bool {
	return id == g.expected
}

var networkNames = map[uint64]string{
	1:        "Ethereum Mainnet",
	5:        "Goerli",
	10:       "Optimism",
	137:      "Polygon",
	1337:     "Localhost",
	17000:    "Holesky",
	31337:    "Hardhat",
	42161:    "Arbitrum One",
	11155111: "Sepolia",
}

// NetworkName returns a display name for well-known network ids. Unknown ids
// report ok == false.
func NetworkName(id uint64) (string, bool) {
	name, ok := networkNames[id]
	return name, ok
}

// ParseChainID decodes the chain id carried by wallet notifications. Both
// 0x-prefixed hex and plain decimal encodings are accepted.
func ParseChainID(raw string) (uint64, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return 0, fmt.Errorf("chain id required")
	}
	base := 10
	if strings.HasPrefix(trimmed, "0x") || strings.HasPrefix(trimmed, "0X") {
		trimmed, base = trimmed[2:], 16
	}
	value, ok := new(big.Int).SetString(trimmed, base)
	if !ok {
		return 0, fmt.Errorf("decode chain id %q: not a number", raw)
	}
	return ChainIDFromBig(value)
}

// ChainIDFromBig narrows a node-reported chain id to uint64.
func ChainIDFromBig(value *big.Int) (uint64, error) {
	if value == nil {
		return 0, fmt.Errorf("chain id missing")
	}
	if value.Sign() < 0 || !value.IsUint64() {
		return 0, fmt.Errorf("chain id %s out of range", value.String())
	}
	return value.Uint64(), nil
}

// FormatChainID renders a network id the way wallets report it.
func FormatChainID(id uint64) string {
	return hexutil.EncodeUint64(id)
}
