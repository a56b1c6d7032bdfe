package chain

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// ErrInvalidAddress is returned when a string is not a syntactically valid
// account address.
var ErrInvalidAddress = errors.New("invalid address")

// DefaultAddress is the "no address" sentinel. It never refers to a real
// account held by the wallet.
var DefaultAddress = common.Address{}

// defaultAddressText is how the sentinel is rendered and parsed.
const defaultAddressText = "0x"

// IsDefault reports whether addr is the sentinel.
func IsDefault(addr common.Address) bool {
	return addr == DefaultAddress
}

// FormatAddress parses raw and returns the canonical address. All-lower and
// all-upper hex are accepted as is; mixed case must carry a correct EIP-55
// checksum. The checksummed text form is available through Hex.
func FormatAddress(raw string) (common.Address, error) {
	trimmed := strings.TrimSpace(raw)
	if !common.IsHexAddress(trimmed) {
		return DefaultAddress, fmt.Errorf("%w: %q", ErrInvalidAddress, raw)
	}
	addr := common.HexToAddress(trimmed)
	body := strings.TrimPrefix(strings.TrimPrefix(trimmed, "0x"), "0X")
	if isMixedCase(body) && body != addr.Hex()[2:] {
		return DefaultAddress, fmt.Errorf("%w: bad checksum %q", ErrInvalidAddress, raw)
	}
	return addr, nil
}

func isMixedCase(hex string) bool {
	return strings.ToLower(hex) != hex && strings.ToUpper(hex) != hex
}

// Checksum returns the EIP-55 text of raw.
func Checksum(raw string) (string, error) {
	addr, err := FormatAddress(raw)
	if err != nil {
		return "", err
	}
	return addr.Hex(), nil
}

// AddressText renders addr in checksummed form, or "0x" for the sentinel.
func AddressText(addr common.Address) string {
	if IsDefault(addr) {
		return defaultAddressText
	}
	return addr.Hex()
}

// ParseAddressText is the inverse of AddressText: "0x" and the empty string
// yield the sentinel, anything else must be a valid address.
func ParseAddressText(raw string) (common.Address, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" || trimmed == defaultAddressText {
		return DefaultAddress, nil
	}
	return FormatAddress(trimmed)
}
