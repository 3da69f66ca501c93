package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"github.com/openvaults/vaultdash/internal/chain"
	"github.com/openvaults/vaultdash/internal/config"
	"github.com/openvaults/vaultdash/internal/formstate"
	"github.com/openvaults/vaultdash/internal/integrations"
	"github.com/openvaults/vaultdash/internal/logger"
	"github.com/openvaults/vaultdash/internal/pricing"
	"github.com/openvaults/vaultdash/internal/quote"
	"github.com/openvaults/vaultdash/internal/server"
	"github.com/openvaults/vaultdash/internal/swap"
	"github.com/openvaults/vaultdash/internal/tokenlist"
	"github.com/openvaults/vaultdash/internal/vault"
	"github.com/openvaults/vaultdash/internal/venue/drift"
	"github.com/openvaults/vaultdash/internal/wallet"
)

const walletKeyEnv = "VAULTDASH_WALLET_KEY"

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "vaultd: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logCfg := logger.DefaultConfig()
	logCfg.Development = cfg.DebugLogging
	log, err := logger.New(logCfg)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	vaultKey, err := solana.PublicKeyFromBase58(cfg.VaultPubkey)
	if err != nil {
		return fmt.Errorf("invalid vault_pubkey: %w", err)
	}

	walletKey := os.Getenv(walletKeyEnv)
	if walletKey == "" {
		return fmt.Errorf("%s is not set", walletKeyEnv)
	}
	w, err := wallet.New(walletKey)
	if err != nil {
		return fmt.Errorf("failed to load wallet: %w", err)
	}
	log.Info("wallet loaded",
		zap.String("wallet", w.String()),
		zap.String("vault", vaultKey.String()))

	tokens := tokenlist.NewRegistry(cfg.TokenListURL, time.Hour, log.Logger)
	if err := tokens.Refresh(ctx); err != nil {
		// Symbols fall back to raw mints until the next refresh succeeds.
		log.Warn("initial token list fetch failed", zap.Error(err))
	}

	prices := pricing.NewFeed(cfg.PriceAPIURL, cfg.PriceDelay, cfg.Retries, log.Logger)
	if err := prices.Fetch(ctx, tokens.Mints()); err != nil {
		log.Warn("initial price fetch failed", zap.Error(err))
	}

	chainClient, err := chain.NewClient(cfg.RPCList, tokens, log.Logger)
	if err != nil {
		return fmt.Errorf("failed to connect to RPC: %w", err)
	}

	driftClient := drift.NewClient("", cfg.Retries, log.Logger)
	positions := drift.NewSource(driftClient, log.Logger)

	quotes := quote.NewCache(quote.NewClient(cfg.QuoteAPIURL, cfg.Retries, log.Logger), log.Logger)
	executor := swap.NewExecutor(cfg.QuoteAPIURL, w, vaultKey, chainClient, log.Logger)

	svc := vault.New(vault.Deps{
		Owner:     vaultKey,
		Chain:     chainClient,
		Positions: positions,
		Meta:      tokens,
		Prices:    prices,
		Quotes:    quotes,
		Tx:        executor,
		Logger:    log,
	})

	store, err := newStateStore(ctx, cfg, log.Logger)
	if err != nil {
		return fmt.Errorf("failed to open state store: %w", err)
	}
	forms := formstate.NewManager(store, nil, log.Logger)

	state := integrations.NewKVState(store)
	registry := integrations.NewRegistry(state, state, log.Logger)

	srv := server.New(cfg.ListenAddr, svc, forms, registry, server.NewMetrics(), log.Logger)

	go svc.Run(ctx, cfg.RefreshDelay)
	go prices.Run(ctx, cfg.PriceDelay, tokens.Mints)

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- srv.Start()
	}()

	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}
	return nil
}

// newStateStore selects Redis when an address is configured and falls back
// to the on-disk store otherwise.
func newStateStore(ctx context.Context, cfg *config.Config, log *zap.Logger) (formstate.Store, error) {
	if cfg.RedisAddr != "" {
		store, err := formstate.NewRedisStore(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return nil, err
		}
		log.Info("using redis state store", zap.String("addr", cfg.RedisAddr))
		return store, nil
	}
	store, err := formstate.NewFileStore(cfg.StateDir)
	if err != nil {
		return nil, err
	}
	log.Info("using file state store", zap.String("dir", cfg.StateDir))
	return store, nil
}
