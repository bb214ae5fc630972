package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"lendledger/config"
	"lendledger/native/lending"
	"lendledger/observability/logging"
	"lendledger/rpc"
	"lendledger/rpc/modules"
	"lendledger/state/bank"
	lendstate "lendledger/state/lending"
	"lendledger/storage"
)

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("LENDLEDGER_ENV"))
	logger := logging.Setup("lendledgerd", env)

	cfg, err := config.Load(*configFile)
	if err != nil {
		logger.Error("Failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		logger.Error("Failed to open database", slog.String("path", cfg.DataDir), slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	store := lendstate.NewStore(db)
	// Balances share the store session, so ledger writes commit and roll
	// back with the engine records they belong to.
	ledger := bank.NewStoredLedger(cfg.Vault(), store)
	engine := lending.NewEngine(store)
	engine.SetAdmin(cfg.Admin())
	engine.SetCustodian(cfg.Custodian(), ledger)
	engine.SetTokenTransfer(ledger)

	if len(cfg.Prices) > 0 {
		oracle := lending.NewStaticOracle()
		for _, price := range cfg.Prices {
			value, err := price.Amount()
			if err != nil {
				logger.Error("Invalid static price", slog.String("asset", price.Asset), slog.Any("error", err))
				os.Exit(1)
			}
			oracle.SetPrice(common.HexToAddress(price.Asset), value)
		}
		engine.SetLegacyPriceOracle(oracle)
	}

	if err := bootstrapAssets(engine, cfg); err != nil {
		logger.Error("Failed to bootstrap assets", slog.Any("error", err))
		os.Exit(1)
	}

	// Record the privileged identities so operators can audit role changes
	// across restarts.
	if err := store.PutRoles(lendstate.ModuleRoles{Admin: cfg.Admin(), Custodian: cfg.Custodian()}); err != nil {
		logger.Error("Failed to record module roles", slog.Any("error", err))
		os.Exit(1)
	}
	if err := store.Commit(); err != nil {
		logger.Error("Failed to persist module roles", slog.Any("error", err))
		os.Exit(1)
	}

	module := modules.NewLendingModule(engine, cfg.Custodian(), cfg.Admin())
	server := rpc.NewServer(module, logger, rpc.RateLimit{
		RequestsPerMinute: cfg.RateLimit.RequestsPerMinute,
		Burst:             cfg.RateLimit.Burst,
	})

	httpServer := &http.Server{
		Addr:              cfg.RPCAddress,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("RPC server listening", slog.String("address", cfg.RPCAddress))
		serverErr <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("Forcing server stop", slog.Any("error", err))
			_ = httpServer.Close()
		}
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("RPC server failed", slog.Any("error", err))
			os.Exit(1)
		}
	}
}

// bootstrapAssets applies the configured markets. Re-applying an existing
// configuration is safe: listing is idempotent and parameters are overwritten.
func bootstrapAssets(engine *lending.Engine, cfg *config.Config) error {
	admin := cfg.Admin()
	for _, asset := range cfg.Assets {
		native := asset.Native()
		if err := engine.ConfigureAsset(admin, native); err != nil {
			return fmt.Errorf("configure asset %s: %w", asset.Address, err)
		}
		rates := asset.Rates.Native()
		if rates == (lending.InterestRateParams{}) {
			continue
		}
		if err := engine.SetInterestRateParams(admin, native.Asset, rates); err != nil {
			return fmt.Errorf("set rates for %s: %w", asset.Address, err)
		}
	}
	return nil
}
