package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func validConfig() Config {
	cfg := Defaults()
	cfg.Chain.RPCURL = "http://localhost:8545"
	cfg.Chain.ContractAddress = "0x5FbDB2315678afecb367f032d93F642f64180aa3"
	cfg.Postgres.Host = "localhost"
	cfg.Postgres.Database = "marketd"
	return cfg
}

func TestValidateAcceptsCompleteConfig(t *testing.T) {
	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestValidateCollectsAllErrors(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "bogus"
	cfg.LogLevel = "loud"
	cfg.Server.Port = 0

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation errors")
	}
	msg := err.Error()
	for _, want := range []string{"unknown mode", "unknown log_level", "rpc_url", "server: port"} {
		if !strings.Contains(msg, want) {
			t.Errorf("error missing %q:\n%s", want, msg)
		}
	}
}

func TestValidateEncryptedKeyNeedsPassword(t *testing.T) {
	cfg := validConfig()
	cfg.Wallet.EncryptedKeyPath = "/keys/market.json"

	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "key_password") {
		t.Fatalf("err = %v, want key_password complaint", err)
	}
}

func TestValidateArchiveModeNeedsS3(t *testing.T) {
	cfg := validConfig()
	cfg.Mode = "archive"
	cfg.S3.Enabled = false

	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "archive mode requires") {
		t.Fatalf("err = %v, want archive/s3 complaint", err)
	}
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	data := `
mode = "serve"
log_level = "debug"

[chain]
rpc_url = "http://localhost:8545"
contract_address = "0x5FbDB2315678afecb367f032d93F642f64180aa3"
chain_id = 31337
call_timeout = "5s"

[market]
refresh_interval = "10s"

[postgres]
host = "db.internal"
database = "marketd"
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Chain.ChainID != 31337 {
		t.Errorf("chain id = %d, want 31337", cfg.Chain.ChainID)
	}
	if cfg.Chain.CallTimeout.Duration != 5*time.Second {
		t.Errorf("call timeout = %v, want 5s", cfg.Chain.CallTimeout.Duration)
	}
	if cfg.Market.RefreshInterval.Duration != 10*time.Second {
		t.Errorf("refresh interval = %v, want 10s", cfg.Market.RefreshInterval.Duration)
	}
	// Untouched sections keep their defaults.
	if cfg.Market.PageSize != 50 {
		t.Errorf("page size = %d, want default 50", cfg.Market.PageSize)
	}
	if !cfg.Redis.Enabled {
		t.Error("redis should default to enabled")
	}
}

func TestEnvOverridesWinOverFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	data := `
[chain]
rpc_url = "http://file:8545"
contract_address = "0x5FbDB2315678afecb367f032d93F642f64180aa3"
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}

	t.Setenv("MARKETD_CHAIN_RPC_URL", "http://env:8545")
	t.Setenv("MARKETD_SERVER_PORT", "9000")
	t.Setenv("MARKETD_REDIS_ENABLED", "false")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Chain.RPCURL != "http://env:8545" {
		t.Errorf("rpc url = %q, want env override", cfg.Chain.RPCURL)
	}
	if cfg.Server.Port != 9000 {
		t.Errorf("port = %d, want 9000", cfg.Server.Port)
	}
	if cfg.Redis.Enabled {
		t.Error("redis enabled should be overridden to false")
	}
}
