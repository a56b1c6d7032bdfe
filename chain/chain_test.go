package chain

import (
	"errors"
	"strings"
	"testing"
)

const checksummed = "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed"

func TestIsNetworkValidMatchesOnlyExpected(t *testing.T) {
	guard := NewGuard(1337)
	for _, id := range []uint64{0, 1, 5, 1336, 1337, 1338, 31337, 11155111} {
		if got, want := guard.IsNetworkValid(id), id == 1337; got != want {
			t.Fatalf("IsNetworkValid(%d) = %v, want %v", id, got, want)
		}
	}
	if guard.Expected() != 1337 {
		t.Fatalf("unexpected expected id %d", guard.Expected())
	}
}

func TestFormatAddressChecksumsAnyCasing(t *testing.T) {
	inputs := []string{
		checksummed,
		strings.ToLower(checksummed),
		"0x" + strings.ToUpper(checksummed[2:]),
		"  " + strings.ToLower(checksummed) + " ",
		strings.ToLower(checksummed[2:]),
	}
	for _, input := range inputs {
		addr, err := FormatAddress(input)
		if err != nil {
			t.Fatalf("FormatAddress(%q): %v", input, err)
		}
		if addr.Hex() != checksummed {
			t.Fatalf("FormatAddress(%q) = %s, want %s", input, addr.Hex(), checksummed)
		}
	}
}

func TestFormatAddressIsIdempotent(t *testing.T) {
	for _, input := range []string{checksummed, strings.ToLower(checksummed), "0x0000000000000000000000000000000000000001"} {
		first, err := FormatAddress(input)
		if err != nil {
			t.Fatalf("first pass: %v", err)
		}
		second, err := FormatAddress(first.Hex())
		if err != nil {
			t.Fatalf("second pass: %v", err)
		}
		if first != second || first.Hex() != second.Hex() {
			t.Fatalf("not idempotent: %s vs %s", first.Hex(), second.Hex())
		}
	}
}

func TestFormatAddressRejectsInvalid(t *testing.T) {
	bad := []string{
		"",
		"0x",
		"0x123",
		"not an address",
		"0xZZZeb6053F3E94C9b9A09f33669435E7Ef1BeAed",
		// mixed case with a broken checksum
		"0x5AAeb6053F3E94C9b9A09f33669435E7Ef1BeAed",
	}
	for _, input := range bad {
		if _, err := FormatAddress(input); !errors.Is(err, ErrInvalidAddress) {
			t.Fatalf("FormatAddress(%q) error = %v, want ErrInvalidAddress", input, err)
		}
	}
}

func TestAddressTextRoundTripsSentinel(t *testing.T) {
	if AddressText(DefaultAddress) != "0x" {
		t.Fatalf("sentinel rendered as %q", AddressText(DefaultAddress))
	}
	addr, err := ParseAddressText("0x")
	if err != nil || !IsDefault(addr) {
		t.Fatalf("ParseAddressText(0x) = %v, %v", addr, err)
	}
	addr, err = ParseAddressText(strings.ToLower(checksummed))
	if err != nil {
		t.Fatalf("ParseAddressText: %v", err)
	}
	if AddressText(addr) != checksummed {
		t.Fatalf("AddressText = %s", AddressText(addr))
	}
}

func TestNetworkNameUnknownReportsAbsent(t *testing.T) {
	if name, ok := NetworkName(11155111); !ok || name != "Sepolia" {
		t.Fatalf("NetworkName(sepolia) = %q, %v", name, ok)
	}
	if name, ok := NetworkName(987654321); ok || name != "" {
		t.Fatalf("unknown network resolved to %q", name)
	}
}

func TestParseChainID(t *testing.T) {
	cases := map[string]uint64{
		"0x539":      1337,
		"0x0539":     1337,
		"0X1":        1,
		"1337":       1337,
		" 0xaa36a7 ": 11155111,
		"0x0":        0,
	}
	for raw, want := range cases {
		got, err := ParseChainID(raw)
		if err != nil {
			t.Fatalf("ParseChainID(%q): %v", raw, err)
		}
		if got != want {
			t.Fatalf("ParseChainID(%q) = %d, want %d", raw, got, want)
		}
	}
	for _, raw := range []string{"", "0x", "chain", "-5", "0x1ffffffffffffffffff"} {
		if _, err := ParseChainID(raw); err == nil {
			t.Fatalf("ParseChainID(%q) accepted", raw)
		}
	}
	if FormatChainID(1337) != "0x539" {
		t.Fatalf("FormatChainID = %s", FormatChainID(1337))
	}
}
