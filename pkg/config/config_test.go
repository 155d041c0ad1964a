package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"uantap/pkg/translator"
	"uantap/pkg/uanaddr"
)

func TestDefaultConfigIsValid(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("Default config rejected: %v", err)
	}
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "node.yaml")
	yaml := `
node_name: buoy-1
tap_name: uan7
peers:
  - 10.0.0.2:7787
  - 10.0.0.3:7787
data_rate: 9600
reverse_policy: strict
short_allocator: counter
short_first: 10
short_last: 20
expiry_duration: 90s
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	t.Setenv("UANTAP_API_LISTEN_ADDRESS", "127.0.0.1:9999")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if cfg.NodeName != "buoy-1" || cfg.TapName != "uan7" || cfg.DataRate != 9600 {
		t.Errorf("File values not applied: %+v", cfg)
	}
	if len(cfg.Peers) != 2 || cfg.Peers[1] != "10.0.0.3:7787" {
		t.Errorf("Unexpected peers %v", cfg.Peers)
	}
	if cfg.ExpiryDuration != 90*time.Second {
		t.Errorf("Expected 90s expiry, got %s", cfg.ExpiryDuration)
	}
	if cfg.CleanupInterval != DefaultConfig().CleanupInterval {
		t.Errorf("Unset key should keep its default, got %s", cfg.CleanupInterval)
	}
	if cfg.APIListenAddr != "127.0.0.1:9999" {
		t.Errorf("Environment override not applied, got %q", cfg.APIListenAddr)
	}

	tr, err := cfg.NewTranslator()
	if err != nil {
		t.Fatalf("NewTranslator failed: %v", err)
	}
	if tr.Policy() != translator.ReverseStrict {
		t.Errorf("Expected strict policy, got %s", tr.Policy())
	}
	s, err := tr.Translate(uanaddr.Long{0x02, 0, 0, 0, 0, 9})
	if err != nil || s != 10 {
		t.Errorf("Expected first short 10, got %s (%v)", s, err)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	cfg, err := LoadConfig("uantap-test-absent")
	if err != nil {
		t.Fatalf("Missing config file should not fail: %v", err)
	}
	if cfg.TapName != DefaultConfig().TapName {
		t.Errorf("Expected defaults, got %+v", cfg)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"policy", func(c *Config) { c.ReversePolicy = "guess" }},
		{"allocator", func(c *Config) { c.ShortAllocator = "random" }},
		{"range order", func(c *Config) { c.ShortFirst, c.ShortLast = 20, 10 }},
		{"range broadcast", func(c *Config) { c.ShortLast = 255 }},
		{"negative first", func(c *Config) { c.ShortFirst = -1 }},
		{"long base", func(c *Config) { c.LongBase = "zz" }},
		{"long base broadcast", func(c *Config) { c.LongBase = "ff:ff:ff:ff:ff:ff" }},
		{"tap mac", func(c *Config) { c.TapMAC = "01:00:5e:00:00:01" }},
		{"tap cidr", func(c *Config) { c.TapCIDR = "10.0.0.1" }},
		{"mtu", func(c *Config) { c.TapMTU = -1 }},
		{"expiry", func(c *Config) { c.ExpiryDuration = 0 }},
		{"cleanup", func(c *Config) { c.CleanupInterval = -time.Second }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)
			if err := cfg.Validate(); !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("Expected ErrInvalidConfig, got %v", err)
			}
		})
	}
}

func TestNewBridge(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CompressPayload = true
	b, err := cfg.NewBridge("node")
	if err != nil {
		t.Fatalf("NewBridge failed: %v", err)
	}
	if b.Name() != "node" {
		t.Errorf("Unexpected name %q", b.Name())
	}
	// default policy synthesizes addresses from the configured base
	l, err := b.Reverse(4)
	if err != nil {
		t.Fatalf("Reverse failed: %v", err)
	}
	if l != uanaddr.DefaultLongBase {
		t.Errorf("Expected %s, got %s", uanaddr.DefaultLongBase, l)
	}
}
