package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	ethcommon "github.com/ethereum/go-ethereum/common"
)

const (
	BackendMemory  = "memory"
	BackendLevelDB = "leveldb"
	BackendBolt    = "bolt"
)

const (
	StandardERC721  = "erc721"
	StandardERC1155 = "erc1155"
)

// AssetContract declares a token contract the daemon hosts and accepts
// listings against.
type AssetContract struct {
	Address  string `toml:"Address"`
	Standard string `toml:"Standard"`
}

type Config struct {
	RPCAddress string `toml:"RPCAddress"`
	DataDir    string `toml:"DataDir"`
	Backend    string `toml:"Backend"`

	VaultAddress   string          `toml:"VaultAddress"`
	MaxReserveSecs int64           `toml:"MaxReserveSecs"`
	FeeNumerator   string          `toml:"FeeNumerator"`
	FeeDenominator string          `toml:"FeeDenominator"`
	ProtocolWallet string          `toml:"ProtocolWallet"`
	PaymentTokens  []string        `toml:"PaymentTokens"`
	AssetContracts []AssetContract `toml:"AssetContracts"`
	Admins         []string        `toml:"Admins"`
	Reservers      []string        `toml:"Reservers"`

	RateLimitPerMinute float64 `toml:"RateLimitPerMinute"`
	RateLimitBurst     int     `toml:"RateLimitBurst"`
}

// Load loads the configuration from the given path, writing a default file
// when none exists.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}

	applyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the address fields so a malformed file fails at startup
// instead of at the first request.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendMemory, BackendLevelDB, BackendBolt:
	default:
		return fmt.Errorf("config: unknown storage backend %q", c.Backend)
	}
	if c.VaultAddress != "" && !ethcommon.IsHexAddress(c.VaultAddress) {
		return fmt.Errorf("config: invalid VaultAddress %q", c.VaultAddress)
	}
	if c.ProtocolWallet != "" && !ethcommon.IsHexAddress(c.ProtocolWallet) {
		return fmt.Errorf("config: invalid ProtocolWallet %q", c.ProtocolWallet)
	}
	for _, addr := range c.PaymentTokens {
		if !ethcommon.IsHexAddress(addr) {
			return fmt.Errorf("config: invalid payment token address %q", addr)
		}
	}
	for _, asset := range c.AssetContracts {
		if !ethcommon.IsHexAddress(asset.Address) {
			return fmt.Errorf("config: invalid asset contract address %q", asset.Address)
		}
		switch asset.Standard {
		case StandardERC721, StandardERC1155:
		default:
			return fmt.Errorf("config: unknown asset standard %q", asset.Standard)
		}
	}
	for _, addr := range c.Admins {
		if !ethcommon.IsHexAddress(addr) {
			return fmt.Errorf("config: invalid admin address %q", addr)
		}
	}
	for _, addr := range c.Reservers {
		if !ethcommon.IsHexAddress(addr) {
			return fmt.Errorf("config: invalid reserver address %q", addr)
		}
	}
	if c.MaxReserveSecs < 0 {
		return fmt.Errorf("config: MaxReserveSecs must not be negative")
	}
	return nil
}

// Addresses parses a list of hex address strings. Validate must have passed.
func Addresses(values []string) [][20]byte {
	out := make([][20]byte, 0, len(values))
	for _, v := range values {
		out = append(out, ethcommon.HexToAddress(strings.TrimSpace(v)))
	}
	return out
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.RPCAddress) == "" {
		cfg.RPCAddress = ":8645"
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = "./market-data"
	}
	if strings.TrimSpace(cfg.Backend) == "" {
		cfg.Backend = BackendLevelDB
	}
	if cfg.MaxReserveSecs == 0 {
		cfg.MaxReserveSecs = 7 * 24 * 3600
	}
	if strings.TrimSpace(cfg.FeeNumerator) == "" {
		cfg.FeeNumerator = "0"
	}
	if strings.TrimSpace(cfg.FeeDenominator) == "" {
		cfg.FeeDenominator = "10000"
	}
	if cfg.RateLimitPerMinute <= 0 {
		cfg.RateLimitPerMinute = 600
	}
	if cfg.RateLimitBurst <= 0 {
		cfg.RateLimitBurst = 20
	}
	if cfg.PaymentTokens == nil {
		cfg.PaymentTokens = []string{}
	}
	if cfg.AssetContracts == nil {
		cfg.AssetContracts = []AssetContract{}
	}
	if cfg.Admins == nil {
		cfg.Admins = []string{}
	}
	if cfg.Reservers == nil {
		cfg.Reservers = []string{}
	}
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := &Config{}
	applyDefaults(cfg)
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

	return toml.NewEncoder(f).Encode(cfg)
}
