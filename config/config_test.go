package config

import (
	"os"
	"testing"
	"time"
)

// writeTempConfig creates a minimal configuration file required for
// LoadConfig and returns its path.
func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	f, err := os.CreateTemp("", "cfg-*.yml")
	if err != nil {
		t.Fatalf("create temp file: %v", err)
	}
	if _, err := f.WriteString(content); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close temp file: %v", err)
	}
	t.Cleanup(func() { os.Remove(f.Name()) })
	return f.Name()
}

const minimalConfig = `akashwatch:
  name: "TestWatch"
  version: "1.0"
stream:
  rpc_endpoint: "https://rpc.example.com:443"
`

func TestLoadConfig(t *testing.T) {
	path := writeTempConfig(t, minimalConfig)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Akashwatch.Name != "TestWatch" {
		t.Errorf("unexpected name: %s", cfg.Akashwatch.Name)
	}
	if cfg.Stream.RPCEndpoint != "https://rpc.example.com:443" {
		t.Errorf("unexpected endpoint: %s", cfg.Stream.RPCEndpoint)
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	path := writeTempConfig(t, minimalConfig)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Stream.MaxReconnectAttempts != 5 {
		t.Errorf("unexpected max reconnect attempts: %d", cfg.Stream.MaxReconnectAttempts)
	}
	if cfg.Stream.ReconnectBaseDelay != time.Second {
		t.Errorf("unexpected base delay: %v", cfg.Stream.ReconnectBaseDelay)
	}
	if cfg.Stream.MaxReconnectDelay != 30*time.Second {
		t.Errorf("unexpected max delay: %v", cfg.Stream.MaxReconnectDelay)
	}
	if cfg.Stream.HeartbeatInterval != 30*time.Second {
		t.Errorf("unexpected heartbeat interval: %v", cfg.Stream.HeartbeatInterval)
	}
	if cfg.Stream.HeartbeatTimeout != 10*time.Second {
		t.Errorf("unexpected heartbeat timeout: %v", cfg.Stream.HeartbeatTimeout)
	}
}

func TestLoadConfigMissingEndpoint(t *testing.T) {
	path := writeTempConfig(t, `akashwatch:
  name: "TestWatch"
  version: "1.0"
`)

	if _, err := LoadConfig(path); err == nil {
		t.Fatal("expected error for missing rpc_endpoint")
	}
}

func TestLoadConfigBadScheme(t *testing.T) {
	path := writeTempConfig(t, `akashwatch:
  name: "TestWatch"
  version: "1.0"
stream:
  rpc_endpoint: "ftp://rpc.example.com"
`)

	if _, err := LoadConfig(path); err == nil {
		t.Fatal("expected error for unsupported scheme")
	}
}

func TestLoadConfigEmptySubscriptionQuery(t *testing.T) {
	path := writeTempConfig(t, minimalConfig+`subscriptions:
  - query: ""
`)

	if _, err := LoadConfig(path); err == nil {
		t.Fatal("expected error for empty subscription query")
	}
}

func TestLoadConfigEnvExpansion(t *testing.T) {
	t.Setenv("TEST_RPC_ENDPOINT", "https://rpc.env.example.com")
	path := writeTempConfig(t, `akashwatch:
  name: "TestWatch"
  version: "1.0"
stream:
  rpc_endpoint: "${TEST_RPC_ENDPOINT}"
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Stream.RPCEndpoint != "https://rpc.env.example.com" {
		t.Errorf("env expansion failed: %s", cfg.Stream.RPCEndpoint)
	}
}

func TestLoadConfigArchiveValidation(t *testing.T) {
	path := writeTempConfig(t, minimalConfig+`archive:
  enabled: true
`)

	os.Unsetenv("S3_BUCKET")
	if _, err := LoadConfig(path); err == nil {
		t.Fatal("expected error for enabled archive without bucket")
	}
}

func TestIsValidS3Bucket(t *testing.T) {
	cases := []struct {
		name  string
		valid bool
	}{
		{"my-bucket", true},
		{"my.bucket.name", true},
		{"ab", false},
		{"UPPER", false},
		{"double..dot", false},
		{".leading", false},
		{"trailing.", false},
	}
	for _, tc := range cases {
		if got := isValidS3Bucket(tc.name); got != tc.valid {
			t.Errorf("isValidS3Bucket(%q) = %v, want %v", tc.name, got, tc.valid)
		}
	}
}
