package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"votesync/chain"
)

var ledgerBackends = map[string]bool{
	"memory":   true,
	"leveldb":  true,
	"bolt":     true,
	"sqlite":   true,
	"postgres": true,
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.ExpectedNetworkID == 0 {
		return fmt.Errorf("ExpectedNetworkID must be set")
	}
	if err := validateRPCURL(c.RPCURL); err != nil {
		return err
	}
	addr, err := chain.FormatAddress(c.ContractAddress)
	if err != nil {
		return fmt.Errorf("ContractAddress: %w", err)
	}
	if chain.IsDefault(addr) {
		return fmt.Errorf("ContractAddress must not be the zero address")
	}
	if c.Account != "" {
		if _, err := chain.FormatAddress(c.Account); err != nil {
			return fmt.Errorf("Account: %w", err)
		}
	}
	backend := strings.ToLower(strings.TrimSpace(c.Ledger.Backend))
	if !ledgerBackends[backend] {
		return fmt.Errorf("ledger: unknown backend %q", c.Ledger.Backend)
	}
	if (backend == "leveldb" || backend == "bolt") && strings.TrimSpace(c.Ledger.Path) == "" {
		return fmt.Errorf("ledger: %s backend requires Path", backend)
	}
	if (backend == "sqlite" || backend == "postgres") && strings.TrimSpace(c.Ledger.DSN) == "" {
		return fmt.Errorf("ledger: %s backend requires DSN", backend)
	}
	if c.HTTP.Burst < 1 || c.HTTP.RateLimitPerMinute < 1 {
		return fmt.Errorf("http: rate limit and burst must be positive")
	}
	return nil
}

// validateRPCURL accepts the endpoints ethclient can dial: http(s), which
// falls back to log polling, ws(s) and a local IPC socket path.
func validateRPCURL(raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fmt.Errorf("RPCURL must be set")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("RPCURL: %w", err)
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https", "ws", "wss":
		if u.Host == "" {
			return fmt.Errorf("RPCURL %q has no host", raw)
		}
		return nil
	case "":
		if u.Path == "" {
			return fmt.Errorf("RPCURL %q is not an endpoint", raw)
		}
		return nil
	default:
		return fmt.Errorf("RPCURL: unsupported scheme %q", u.Scheme)
	}
}

// Contract returns the checksummed contract address.
func (c *Config) Contract() (common.Address, error) {
	return chain.FormatAddress(c.ContractAddress)
}
