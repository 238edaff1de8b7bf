package main

import (
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"math/big"
	"os"
	"path/filepath"
	"strings"

	ethcommon "github.com/ethereum/go-ethereum/common"

	"nftmarket/config"
	"nftmarket/core/events"
	"nftmarket/core/types"
	"nftmarket/gateway"
	"nftmarket/native/fees"
	"nftmarket/native/market"
	"nftmarket/observability/logging"
	"nftmarket/rpc"
	"nftmarket/state"
	"nftmarket/storage"
	"nftmarket/tokenhost"
)

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("NFTMARKET_ENV"))
	logger := logging.Setup("marketd", env)

	cfg, err := config.Load(*configFile)
	if err != nil {
		logger.Error("Failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	db, err := openDatabase(cfg)
	if err != nil {
		logger.Error("Failed to open database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	manager, err := state.OpenManager(db)
	if err != nil {
		logger.Error("Failed to open state", slog.Any("error", err))
		os.Exit(1)
	}

	if err := bootstrap(manager, cfg, logger); err != nil {
		logger.Error("Failed to bootstrap state", slog.Any("error", err))
		os.Exit(1)
	}

	listings, err := manager.Listings()
	if err != nil {
		logger.Error("Failed to load listings", slog.Any("error", err))
		os.Exit(1)
	}
	registry, err := market.RebuildRegistry(listings, manager)
	if err != nil {
		logger.Error("Failed to rebuild listing index", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("Listing index rebuilt", slog.Int("listings", registry.Len()))

	vault := strings.TrimSpace(cfg.VaultAddress)
	if vault == "" {
		logger.Error("VaultAddress must be configured")
		os.Exit(1)
	}

	ledger := tokenhost.NewLedger()
	for _, token := range config.Addresses(cfg.PaymentTokens) {
		ledger.RegisterERC20(token)
	}
	if err := registerAssets(ledger, cfg.AssetContracts); err != nil {
		logger.Error("Failed to register asset contracts", slog.Any("error", err))
		os.Exit(1)
	}

	engine := market.NewEngine()
	engine.SetState(manager)
	engine.SetRegistry(registry)
	engine.SetContracts(ledger)
	engine.SetVault(ethcommon.HexToAddress(vault))
	engine.SetMaxReservePeriod(cfg.MaxReserveSecs)
	engine.SetPauses(manager)
	engine.SetEmitter(logEmitter(logger))

	gw, err := gateway.New(manager, registry, engine, config.Addresses(cfg.Admins))
	if err != nil {
		logger.Error("Failed to construct gateway", slog.Any("error", err))
		os.Exit(1)
	}
	gw.SetLogger(logger)
	gw.SetEmitter(logEmitter(logger))

	server := rpc.NewServer(gw, rpc.RateLimit{
		RequestsPerMinute: cfg.RateLimitPerMinute,
		Burst:             cfg.RateLimitBurst,
	})
	logger.Info("RPC server listening", slog.String("address", cfg.RPCAddress))
	if err := server.Start(cfg.RPCAddress); err != nil {
		logger.Error("RPC server stopped", slog.Any("error", err))
		os.Exit(1)
	}
}

// registerAssets hosts the configured asset contracts on the ledger so
// listings against them pass the capability probe.
func registerAssets(ledger *tokenhost.Ledger, contracts []config.AssetContract) error {
	for _, asset := range contracts {
		addr := ethcommon.HexToAddress(strings.TrimSpace(asset.Address))
		switch asset.Standard {
		case config.StandardERC721:
			ledger.RegisterAsset(addr, tokenhost.NewERC721())
		case config.StandardERC1155:
			ledger.RegisterAsset(addr, tokenhost.NewERC1155())
		default:
			return fmt.Errorf("unknown asset standard %q for %s", asset.Standard, asset.Address)
		}
	}
	return nil
}

func openDatabase(cfg *config.Config) (storage.Database, error) {
	switch cfg.Backend {
	case config.BackendMemory:
		return storage.NewMemDB(), nil
	case config.BackendLevelDB:
		return storage.NewLevelDB(cfg.DataDir)
	case config.BackendBolt:
		if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
			return nil, err
		}
		return storage.NewBoltDB(filepath.Join(cfg.DataDir, "market.db"))
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

// bootstrap seeds the fee configuration, roles, and payment-token whitelist
// the first time the daemon starts on an empty state. Subsequent starts keep
// whatever the admins changed at runtime.
func bootstrap(manager *state.Manager, cfg *config.Config, logger *slog.Logger) error {
	if _, err := manager.FeeConfig(); err == nil {
		return nil
	}

	wallet := strings.TrimSpace(cfg.ProtocolWallet)
	if wallet == "" {
		return errors.New("ProtocolWallet must be configured for first start")
	}
	numerator, ok := new(big.Int).SetString(strings.TrimSpace(cfg.FeeNumerator), 10)
	if !ok {
		return fmt.Errorf("invalid FeeNumerator %q", cfg.FeeNumerator)
	}
	denominator, ok := new(big.Int).SetString(strings.TrimSpace(cfg.FeeDenominator), 10)
	if !ok {
		return fmt.Errorf("invalid FeeDenominator %q", cfg.FeeDenominator)
	}
	feeCfg := fees.Config{
		Numerator:   numerator,
		Denominator: denominator,
		Wallet:      ethcommon.HexToAddress(wallet),
	}
	if err := manager.SetFeeConfig(feeCfg); err != nil {
		return err
	}

	for _, admin := range config.Addresses(cfg.Admins) {
		if err := manager.SetRole(market.RoleMarketAdmin, admin); err != nil {
			return err
		}
	}
	for _, reserver := range config.Addresses(cfg.Reservers) {
		if err := manager.SetRole(market.RoleReserver, reserver); err != nil {
			return err
		}
	}
	for _, token := range config.Addresses(cfg.PaymentTokens) {
		if err := manager.AddPaymentToken(token); err != nil {
			return err
		}
	}
	if err := manager.Commit(); err != nil {
		return err
	}

	logger.Info("State bootstrapped",
		slog.Int("admins", len(cfg.Admins)),
		slog.Int("reservers", len(cfg.Reservers)),
		slog.Int("paymentTokens", len(cfg.PaymentTokens)))
	return nil
}

// logEmitter forwards marketplace events to the structured log.
func logEmitter(logger *slog.Logger) events.Emitter {
	return events.EmitterFunc(func(evt events.Event) {
		attrs := []any{}
		if carrier, ok := evt.(interface{ Event() *types.Event }); ok {
			if inner := carrier.Event(); inner != nil {
				for key, value := range inner.Attributes {
					attrs = append(attrs, slog.String(key, value))
				}
			}
		}
		logger.Info("Event "+evt.EventType(), attrs...)
	})
}
