// Package config loads uantap settings from YAML, environment and defaults.
package config

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/spf13/viper"

	"uantap/pkg/bridge"
	"uantap/pkg/transform"
	"uantap/pkg/translator"
	"uantap/pkg/uanaddr"
)

var ErrInvalidConfig = errors.New("invalid configuration")

const (
	AllocatorCounter = "counter"
	AllocatorPool    = "pool"
)

type Config struct {
	Debug                bool          `mapstructure:"debug"`
	NodeName             string        `mapstructure:"node_name"`
	TapName              string        `mapstructure:"tap_name"`
	TapMAC               string        `mapstructure:"tap_mac"`  // empty keeps the kernel-assigned address
	TapCIDR              string        `mapstructure:"tap_cidr"` // empty leaves the interface unaddressed
	TapMTU               int           `mapstructure:"tap_mtu"`
	ListenAddr           string        `mapstructure:"listen_address"`
	Peers                []string      `mapstructure:"peers"`
	DataRate             int           `mapstructure:"data_rate"` // bits per second, 0 is unlimited
	CompressPayload      bool          `mapstructure:"compress_payload"`
	EncryptionPassphrase string        `mapstructure:"encryption_passphrase"`
	ReversePolicy        string        `mapstructure:"reverse_policy"`
	ShortAllocator       string        `mapstructure:"short_allocator"`
	ShortFirst           int           `mapstructure:"short_first"`
	ShortLast            int           `mapstructure:"short_last"`
	LongBase             string        `mapstructure:"long_base"`
	ExpiryDuration       time.Duration `mapstructure:"expiry_duration"`
	CleanupInterval      time.Duration `mapstructure:"cleanup_interval"`
	APIListenAddr        string        `mapstructure:"api_listen_address"`
	LogDB                string        `mapstructure:"log_db"` // empty logs to the console only
	ConfigFile           string        `mapstructure:"config_file"`
}

func DefaultConfig() *Config {
	return &Config{
		TapName:         "uan0",
		TapMTU:          1500,
		ListenAddr:      ":7787",
		ReversePolicy:   translator.ReverseAllocate.String(),
		ShortAllocator:  AllocatorPool,
		ShortFirst:      int(uanaddr.DefaultShortFirst),
		ShortLast:       int(uanaddr.DefaultShortLast),
		LongBase:        uanaddr.DefaultLongBase.String(),
		ExpiryDuration:  bridge.DefaultExpiry,
		CleanupInterval: bridge.DefaultCleanupInterval,
		APIListenAddr:   "127.0.0.1:7788",
		ConfigFile:      "uantap",
	}
}

// LoadConfig reads configFile (a name searched in the usual places, or a
// path) on top of the defaults, then applies UANTAP_* environment variables.
// A missing file is not an error.
func LoadConfig(configFile string) (*Config, error) {
	cfg := DefaultConfig()
	if configFile == "" {
		configFile = cfg.ConfigFile
	}

	v := viper.New()
	setDefaults(v, cfg)
	if strings.ContainsRune(configFile, '/') || strings.HasSuffix(configFile, ".yaml") {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName(configFile)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/uantap/")
		v.AddConfigPath("$HOME/.uantap")
	}
	v.SetEnvPrefix("UANTAP")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config: reading %s: %w", configFile, err)
		}
	}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	cfg.ConfigFile = configFile
	return cfg, nil
}

// setDefaults registers every key so that AutomaticEnv can override keys
// absent from the file.
func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("debug", cfg.Debug)
	v.SetDefault("node_name", cfg.NodeName)
	v.SetDefault("tap_name", cfg.TapName)
	v.SetDefault("tap_mac", cfg.TapMAC)
	v.SetDefault("tap_cidr", cfg.TapCIDR)
	v.SetDefault("tap_mtu", cfg.TapMTU)
	v.SetDefault("listen_address", cfg.ListenAddr)
	v.SetDefault("peers", cfg.Peers)
	v.SetDefault("data_rate", cfg.DataRate)
	v.SetDefault("compress_payload", cfg.CompressPayload)
	v.SetDefault("encryption_passphrase", cfg.EncryptionPassphrase)
	v.SetDefault("reverse_policy", cfg.ReversePolicy)
	v.SetDefault("short_allocator", cfg.ShortAllocator)
	v.SetDefault("short_first", cfg.ShortFirst)
	v.SetDefault("short_last", cfg.ShortLast)
	v.SetDefault("long_base", cfg.LongBase)
	v.SetDefault("expiry_duration", cfg.ExpiryDuration)
	v.SetDefault("cleanup_interval", cfg.CleanupInterval)
	v.SetDefault("api_listen_address", cfg.APIListenAddr)
	v.SetDefault("log_db", cfg.LogDB)
}

func (c *Config) Validate() error {
	if _, err := translator.ParseReversePolicy(c.ReversePolicy); err != nil {
		return fmt.Errorf("%w: reverse_policy: %v", ErrInvalidConfig, err)
	}
	switch c.ShortAllocator {
	case AllocatorCounter, AllocatorPool:
	default:
		return fmt.Errorf("%w: short_allocator %q, want %s or %s", ErrInvalidConfig, c.ShortAllocator, AllocatorCounter, AllocatorPool)
	}
	if c.ShortFirst < 0 || c.ShortLast >= int(uanaddr.BroadcastShort) || c.ShortFirst > c.ShortLast {
		return fmt.Errorf("%w: short range %d..%d", ErrInvalidConfig, c.ShortFirst, c.ShortLast)
	}
	base, err := uanaddr.ParseLong(c.LongBase)
	if err != nil {
		return fmt.Errorf("%w: long_base: %v", ErrInvalidConfig, err)
	}
	if base.IsBroadcast() {
		return fmt.Errorf("%w: long_base is the broadcast address", ErrInvalidConfig)
	}
	if c.TapMAC != "" {
		mac, err := uanaddr.ParseLong(c.TapMAC)
		if err != nil {
			return fmt.Errorf("%w: tap_mac: %v", ErrInvalidConfig, err)
		}
		if mac.IsGroup() {
			return fmt.Errorf("%w: tap_mac %s is a group address", ErrInvalidConfig, mac)
		}
	}
	if c.TapCIDR != "" {
		if _, _, err := net.ParseCIDR(c.TapCIDR); err != nil {
			return fmt.Errorf("%w: tap_cidr: %v", ErrInvalidConfig, err)
		}
	}
	if c.TapMTU < 0 || c.DataRate < 0 {
		return fmt.Errorf("%w: tap_mtu and data_rate must not be negative", ErrInvalidConfig)
	}
	if c.ExpiryDuration <= 0 || c.CleanupInterval <= 0 {
		return fmt.Errorf("%w: expiry_duration and cleanup_interval must be positive", ErrInvalidConfig)
	}
	return nil
}

// NewTranslator builds the allocators and translator the config describes.
func (c *Config) NewTranslator() (*translator.Translator, error) {
	policy, err := translator.ParseReversePolicy(c.ReversePolicy)
	if err != nil {
		return nil, err
	}
	first, last := uanaddr.Short(c.ShortFirst), uanaddr.Short(c.ShortLast)

	var shorts uanaddr.ShortAllocator
	switch c.ShortAllocator {
	case AllocatorCounter:
		shorts, err = uanaddr.NewShortCounter(first, last)
	case AllocatorPool:
		shorts, err = uanaddr.NewShortPool(first, last)
	default:
		err = fmt.Errorf("%w: short_allocator %q", ErrInvalidConfig, c.ShortAllocator)
	}
	if err != nil {
		return nil, err
	}

	var longs uanaddr.LongAllocator
	if policy == translator.ReverseAllocate {
		base, err := uanaddr.ParseLong(c.LongBase)
		if err != nil {
			return nil, err
		}
		if longs, err = uanaddr.NewLongCounter(base); err != nil {
			return nil, err
		}
	}
	return translator.New(shorts, longs, policy)
}

func (c *Config) NewProcessor() (*transform.PayloadProcessor, error) {
	return transform.NewProcessorFor(c.CompressPayload, c.EncryptionPassphrase)
}

// NewBridge wires translator and payload pipeline into a bridge named name.
func (c *Config) NewBridge(name string) (*bridge.Bridge, error) {
	tr, err := c.NewTranslator()
	if err != nil {
		return nil, err
	}
	p, err := c.NewProcessor()
	if err != nil {
		return nil, err
	}
	return bridge.New(bridge.Config{
		Name:            name,
		Expiry:          c.ExpiryDuration,
		CleanupInterval: c.CleanupInterval,
	}, tr, p)
}
