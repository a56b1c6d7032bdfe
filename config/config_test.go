package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const hardhatContract = "0x5FbDB2315678afecb367f032d93F642f64180aa3"

func writeConfig(t *testing.T, name, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadParsesTOML(t *testing.T) {
	path := writeConfig(t, "votesync.toml", `ExpectedNetworkID = 11155111
RPCURL = "https://sepolia.example/rpc"
ContractAddress = "0x5fbdb2315678afecb367f032d93f642f64180aa3"
KeystoreDir = "/var/lib/votesync/keystore"
PollInterval = "750ms"

[ledger]
Backend = "sqlite"
DSN = "file:ledger.db"

[http]
ListenAddress = "127.0.0.1:9000"
JWTSecret = "s3cret"
RateLimitPerMinute = 30
Burst = 3

[logging]
Environment = "prod"
File = "/var/log/votesync.log"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ExpectedNetworkID != 11155111 {
		t.Fatalf("network %d", cfg.ExpectedNetworkID)
	}
	if cfg.PollInterval.Duration != 750*time.Millisecond {
		t.Fatalf("poll interval %s", cfg.PollInterval)
	}
	if cfg.Ledger.Backend != "sqlite" || cfg.Ledger.DSN != "file:ledger.db" {
		t.Fatalf("ledger %+v", cfg.Ledger)
	}
	if cfg.HTTP.ListenAddress != "127.0.0.1:9000" || cfg.HTTP.JWTSecret != "s3cret" || cfg.HTTP.Burst != 3 {
		t.Fatalf("http %+v", cfg.HTTP)
	}
	if cfg.Logging.Environment != "prod" || cfg.Logging.MaxBackups != 5 {
		t.Fatalf("logging %+v", cfg.Logging)
	}
	addr, err := cfg.Contract()
	if err != nil || addr.Hex() != hardhatContract {
		t.Fatalf("contract %s, %v", addr.Hex(), err)
	}
}

func TestLoadParsesYAML(t *testing.T) {
	path := writeConfig(t, "votesync.yaml", `expected_network_id: 1337
rpc_url: http://127.0.0.1:8545
contract_address: "`+hardhatContract+`"
poll_interval: 5s
ledger:
  backend: memory
telemetry:
  endpoint: otel:4318
  insecure: true
  traces: true
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ExpectedNetworkID != 1337 || cfg.PollInterval.Duration != 5*time.Second {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if cfg.Ledger.Backend != "memory" {
		t.Fatalf("ledger backend %q", cfg.Ledger.Backend)
	}
	if !cfg.Telemetry.Traces || !cfg.Telemetry.Insecure || cfg.Telemetry.Endpoint != "otel:4318" {
		t.Fatalf("telemetry %+v", cfg.Telemetry)
	}
}

func TestEnvironmentOverridesFile(t *testing.T) {
	path := writeConfig(t, "votesync.toml", `ExpectedNetworkID = 1337
RPCURL = "http://127.0.0.1:8545"
ContractAddress = "`+hardhatContract+`"
`)
	t.Setenv("VOTESYNC_EXPECTED_NETWORK_ID", "31337")
	t.Setenv("VOTESYNC_LEDGER_BACKEND", "memory")
	t.Setenv("VOTESYNC_HTTP_JWT_SECRET", "from-env")
	t.Setenv("VOTESYNC_POLL_INTERVAL", "3s")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ExpectedNetworkID != 31337 {
		t.Fatalf("env override ignored: %d", cfg.ExpectedNetworkID)
	}
	if cfg.Ledger.Backend != "memory" || cfg.HTTP.JWTSecret != "from-env" {
		t.Fatalf("nested overrides ignored: %+v %+v", cfg.Ledger, cfg.HTTP)
	}
	if cfg.PollInterval.Duration != 3*time.Second {
		t.Fatalf("poll interval %s", cfg.PollInterval)
	}
	if cfg.RPCURL != "http://127.0.0.1:8545" {
		t.Fatalf("unset variable cleared file value: %q", cfg.RPCURL)
	}
}

func TestLoadCreatesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "votesync.toml")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ExpectedNetworkID != 31337 || cfg.Ledger.Backend != "leveldb" {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if cfg.RPCURL != "ws://127.0.0.1:8545" {
		t.Fatalf("default endpoint %q cannot push contract logs", cfg.RPCURL)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("default not persisted: %v", err)
	}
	if !strings.Contains(string(raw), "ExpectedNetworkID = 31337") {
		t.Fatalf("persisted config missing network:\n%s", raw)
	}
	again, err := Load(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if again.PollInterval != cfg.PollInterval {
		t.Fatalf("poll interval did not round trip: %s vs %s", again.PollInterval, cfg.PollInterval)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"unknown key": `ExpectedNetworkID = 1
RPCURL = "http://x"
ContractAddress = "` + hardhatContract + `"
Bogus = 1
`,
		"missing network": `RPCURL = "http://x"
ContractAddress = "` + hardhatContract + `"
`,
		"bad contract": `ExpectedNetworkID = 1
RPCURL = "http://x"
ContractAddress = "0x1234"
`,
		"zero contract": `ExpectedNetworkID = 1
RPCURL = "http://x"
ContractAddress = "0x0000000000000000000000000000000000000000"
`,
		"sql without dsn": `ExpectedNetworkID = 1
RPCURL = "http://x"
ContractAddress = "` + hardhatContract + `"
[ledger]
Backend = "postgres"
`,
		"unknown backend": `ExpectedNetworkID = 1
RPCURL = "http://x"
ContractAddress = "` + hardhatContract + `"
[ledger]
Backend = "redis"
`,
		"unsupported rpc scheme": `ExpectedNetworkID = 1
RPCURL = "ftp://node.example"
ContractAddress = "` + hardhatContract + `"
`,
		"rpc url without host": `ExpectedNetworkID = 1
RPCURL = "ws://"
ContractAddress = "` + hardhatContract + `"
`,
		"bad duration": `ExpectedNetworkID = 1
RPCURL = "http://x"
ContractAddress = "` + hardhatContract + `"
PollInterval = "soon"
`,
	}
	for name, contents := range cases {
		t.Run(name, func(t *testing.T) {
			path := writeConfig(t, "votesync.toml", contents)
			if _, err := Load(path); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestValidateAcceptsDialableEndpoints(t *testing.T) {
	for _, endpoint := range []string{
		"http://127.0.0.1:8545",
		"https://sepolia.example/rpc",
		"ws://127.0.0.1:8545",
		"wss://sepolia.example/ws",
		"/var/run/geth.ipc",
	} {
		cfg := Default()
		cfg.RPCURL = endpoint
		if err := cfg.Validate(); err != nil {
			t.Fatalf("%s rejected: %v", endpoint, err)
		}
	}
}
