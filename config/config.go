package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override, e.g. VOTESYNC_RPC_URL or
// VOTESYNC_LEDGER_BACKEND.
const EnvPrefix = "VOTESYNC_"

type Config struct {
	ExpectedNetworkID uint64   `toml:"ExpectedNetworkID" yaml:"expected_network_id" env:"EXPECTED_NETWORK_ID"`
	RPCURL            string   `toml:"RPCURL" yaml:"rpc_url" env:"RPC_URL"`
	ContractAddress   string   `toml:"ContractAddress" yaml:"contract_address" env:"CONTRACT_ADDRESS"`
	KeystoreDir       string   `toml:"KeystoreDir" yaml:"keystore_dir" env:"KEYSTORE_DIR"`
	Account           string   `toml:"Account" yaml:"account" env:"ACCOUNT"`
	PassphraseEnv     string   `toml:"PassphraseEnv" yaml:"passphrase_env" env:"PASSPHRASE_ENV"`
	PollInterval      Duration `toml:"PollInterval" yaml:"poll_interval" env:"POLL_INTERVAL"`

	Ledger    Ledger    `toml:"ledger" yaml:"ledger" envPrefix:"LEDGER_"`
	HTTP      HTTP      `toml:"http" yaml:"http" envPrefix:"HTTP_"`
	Logging   Logging   `toml:"logging" yaml:"logging" envPrefix:"LOG_"`
	Telemetry Telemetry `toml:"telemetry" yaml:"telemetry" envPrefix:"OTEL_"`
}

// Load reads the configuration at path, TOML unless the extension is .yaml or
// .yml, applies environment overrides, fills defaults and validates. A
// missing file is created with defaults.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg, err = createDefault(path)
		if err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, err
	} else if err := decodeFile(path, cfg); err != nil {
		return nil, err
	}

	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	applyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decodeFile(path string, cfg *Config) error {
	if isYAML(path) {
		file, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("open config: %w", err)
		}
		defer file.Close()
		dec := yaml.NewDecoder(file)
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil {
			return fmt.Errorf("decode config: %w", err)
		}
		return nil
	}
	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return fmt.Errorf("decode config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return fmt.Errorf("config file %s has unknown key %s", path, undecoded[0])
	}
	return nil
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	default:
		return false
	}
}

// Default returns the configuration used for a fresh install: a local
// Hardhat node with its first deployment address.
func Default() *Config {
	cfg := &Config{
		ExpectedNetworkID: 31337,
		RPCURL:            "ws://127.0.0.1:8545",
		ContractAddress:   "0x5FbDB2315678afecb367f032d93F642f64180aa3",
		KeystoreDir:       "./keystore",
		PassphraseEnv:     "VOTESYNC_PASSPHRASE",
	}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.PollInterval.Duration <= 0 {
		cfg.PollInterval.Duration = 2 * time.Second
	}
	if strings.TrimSpace(cfg.Ledger.Backend) == "" {
		cfg.Ledger.Backend = "leveldb"
	}
	if cfg.Ledger.Backend == "leveldb" && strings.TrimSpace(cfg.Ledger.Path) == "" {
		cfg.Ledger.Path = "./votesync-data/ledger"
	}
	if strings.TrimSpace(cfg.HTTP.ListenAddress) == "" {
		cfg.HTTP.ListenAddress = ":8090"
	}
	if cfg.HTTP.RateLimitPerMinute <= 0 {
		cfg.HTTP.RateLimitPerMinute = 60
	}
	if cfg.HTTP.Burst <= 0 {
		cfg.HTTP.Burst = 10
	}
	if strings.TrimSpace(cfg.Logging.Environment) == "" {
		cfg.Logging.Environment = "dev"
	}
	if cfg.Logging.MaxSizeMB <= 0 {
		cfg.Logging.MaxSizeMB = 100
	}
	if cfg.Logging.MaxBackups <= 0 {
		cfg.Logging.MaxBackups = 5
	}
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := Default()
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	if isYAML(path) {
		enc := yaml.NewEncoder(f)
		defer enc.Close()
		return enc.Encode(cfg)
	}
	return toml.NewEncoder(f).Encode(cfg)
}
