// Package vault orchestrates the dashboard's data refresh and user actions.
package vault

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/openvaults/vaultdash/internal/chain"
	"github.com/openvaults/vaultdash/internal/holdings"
	"github.com/openvaults/vaultdash/internal/logger"
	"github.com/openvaults/vaultdash/internal/quote"
	"github.com/openvaults/vaultdash/internal/venue"
)

// TxClient submits the transactions behind user actions. It is the narrow
// boundary to the signing/SDK side; each call maps to at most one submitted
// transaction and returns its identifier.
type TxClient interface {
	Swap(ctx context.Context, params quote.Params, route *quote.Response) (string, error)
	Deposit(ctx context.Context, mint string, amountRaw uint64, decimals uint8) (string, error)
	Withdraw(ctx context.Context, mint string, amountRaw uint64, decimals uint8) (string, error)
}

// PositionSource provides external-venue spot positions for the refresh
// pipeline.
type PositionSource interface {
	Venue() venue.Venue
	SpotPositions(ctx context.Context, owner string) ([]holdings.SpotPosition, error)
}

// MetadataRegistry is the token-list surface the service consumes.
type MetadataRegistry interface {
	holdings.MetadataSource
	Decimals(mint string) (uint8, bool)
	Listed() []holdings.ListedToken
}

// Deps carries the service's collaborators. Everything is injected
// explicitly; the service owns no singletons.
type Deps struct {
	Owner     solana.PublicKey
	Chain     chain.Reader
	Positions PositionSource
	Meta      MetadataRegistry
	Prices    holdings.PriceSource
	Quotes    *quote.Cache
	Tx        TxClient
	Logger    *logger.Logger
}

// Service keeps the latest holdings snapshot and executes user actions.
type Service struct {
	deps   Deps
	logger *zap.Logger

	mu          sync.RWMutex
	rows        []holdings.Holding
	assets      []holdings.Asset
	lastRefresh time.Time
}

// New wires a service from its dependencies.
func New(deps Deps) *Service {
	return &Service{
		deps:   deps,
		logger: deps.Logger.WithComponent("vault"),
	}
}

// Refresh fans out to every balance source and replaces the holdings
// snapshot wholesale. A venue outage degrades to an empty position list so
// the vault side of the table still renders; chain failures abort the
// refresh and keep the previous snapshot.
func (s *Service) Refresh(ctx context.Context) error {
	var (
		native    holdings.NativeBalance
		accounts  []holdings.TokenAccount
		positions []holdings.SpotPosition
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		native, err = s.deps.Chain.GetNativeBalance(gctx, s.deps.Owner)
		if err != nil {
			return fmt.Errorf("native balance: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		accounts, err = s.deps.Chain.GetTokenAccounts(gctx, s.deps.Owner)
		if err != nil {
			return fmt.Errorf("token accounts: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		positions, err = s.deps.Positions.SpotPositions(gctx, s.deps.Owner.String())
		if err != nil {
			s.logger.Warn("venue positions unavailable, rendering vault only",
				zap.String("venue", s.deps.Positions.Venue().String()),
				zap.Error(err))
			positions = nil
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return fmt.Errorf("refresh failed: %w", err)
	}

	rows := holdings.Aggregate(native, accounts, positions, s.deps.Meta, s.deps.Prices)
	assets := holdings.PickerAssets(s.deps.Meta.Listed(), rows)

	s.mu.Lock()
	s.rows = rows
	s.assets = assets
	s.lastRefresh = time.Now()
	s.mu.Unlock()

	s.logger.Debug("holdings refreshed",
		zap.Int("rows", len(rows)),
		zap.Int("token_accounts", len(accounts)),
		zap.Int("positions", len(positions)))
	return nil
}

// Holdings returns a copy of the latest snapshot.
func (s *Service) Holdings() []holdings.Holding {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]holdings.Holding, len(s.rows))
	copy(out, s.rows)
	return out
}

// Assets returns a copy of the latest picker options.
func (s *Service) Assets() []holdings.Asset {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]holdings.Asset, len(s.assets))
	copy(out, s.assets)
	return out
}

// LastRefresh reports when the snapshot was last rebuilt.
func (s *Service) LastRefresh() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastRefresh
}

// Quote validates params and returns a quote, served from cache when the
// params match the previous request.
func (s *Service) Quote(ctx context.Context, params quote.Params) (*quote.Response, bool, error) {
	if err := validateParams("quote", params); err != nil {
		return nil, false, err
	}
	return s.deps.Quotes.Get(ctx, params)
}

// Swap quotes and submits a swap, returning the transaction identifier. The
// quote cache is dropped after submission since the quoted route is
// consumed.
func (s *Service) Swap(ctx context.Context, params quote.Params) (string, error) {
	if err := validateParams("swap", params); err != nil {
		return "", err
	}

	opLog := s.deps.Logger.WithOperation("swap")
	opLog.Info("swap requested",
		zap.String("input_mint", params.InputMint),
		zap.String("output_mint", params.OutputMint),
		zap.Uint64("amount", params.Amount))

	route, cached, err := s.deps.Quotes.Get(ctx, params)
	if err != nil {
		opLog.Error("quote failed", zap.Error(err))
		return "", err
	}

	sig, err := s.deps.Tx.Swap(ctx, params, route)
	if err != nil {
		opLog.Error("submission failed", zap.Error(err))
		return "", fmt.Errorf("swap submission failed: %w", err)
	}

	s.deps.Quotes.Invalidate()
	s.deps.Logger.WithTransaction(sig).Info("swap executed",
		zap.String("out_amount", route.OutAmount),
		zap.Bool("quote_cached", cached))
	return sig, nil
}

// Deposit moves amount of mint into the vault. An empty mint means native
// SOL.
func (s *Service) Deposit(ctx context.Context, mint string, amount float64) (string, error) {
	raw, decimals, err := s.toRawAmount("deposit", mint, amount)
	if err != nil {
		return "", err
	}

	opLog := s.deps.Logger.WithOperation("deposit")
	sig, err := s.deps.Tx.Deposit(ctx, mint, raw, decimals)
	if err != nil {
		opLog.Error("submission failed", zap.Error(err))
		return "", fmt.Errorf("deposit submission failed: %w", err)
	}
	opLog.Info("deposit submitted",
		zap.String("mint", mint),
		zap.Uint64("amount_raw", raw),
		zap.String("tx_signature", sig))
	return sig, nil
}

// Withdraw moves amount of mint out of the vault.
func (s *Service) Withdraw(ctx context.Context, mint string, amount float64) (string, error) {
	raw, decimals, err := s.toRawAmount("withdraw", mint, amount)
	if err != nil {
		return "", err
	}

	opLog := s.deps.Logger.WithOperation("withdraw")
	sig, err := s.deps.Tx.Withdraw(ctx, mint, raw, decimals)
	if err != nil {
		opLog.Error("submission failed", zap.Error(err))
		return "", fmt.Errorf("withdraw submission failed: %w", err)
	}
	opLog.Info("withdraw submitted",
		zap.String("mint", mint),
		zap.Uint64("amount_raw", raw),
		zap.String("tx_signature", sig))
	return sig, nil
}

// Run refreshes the snapshot on every tick until ctx is cancelled.
func (s *Service) Run(ctx context.Context, interval time.Duration) {
	if err := s.Refresh(ctx); err != nil {
		s.logger.Error("initial refresh failed", zap.Error(err))
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Debug("refresh loop stopped")
			return
		case <-ticker.C:
			if err := s.Refresh(ctx); err != nil {
				s.logger.Error("refresh failed", zap.Error(err))
			}
		}
	}
}

func (s *Service) toRawAmount(op string, mint string, amount float64) (uint64, uint8, error) {
	if amount <= 0 {
		return 0, 0, userErrorf(op, "amount must be positive")
	}

	decimals := uint8(9) // native SOL
	if mint != "" {
		var ok bool
		decimals, ok = s.deps.Meta.Decimals(mint)
		if !ok {
			return 0, 0, userErrorf(op, "unknown asset %s, choose a listed token", mint)
		}
	}

	factor := 1.0
	for i := uint8(0); i < decimals; i++ {
		factor *= 10
	}
	// Round, not truncate: 0.29 * 1e9 lands just under the integer.
	return uint64(math.Round(amount * factor)), decimals, nil
}

func validateParams(op string, params quote.Params) error {
	if params.InputMint == "" || params.OutputMint == "" {
		return userErrorf(op, "select both assets before requesting a quote")
	}
	if params.InputMint == params.OutputMint {
		return userErrorf(op, "input and output assets must differ")
	}
	if params.Amount == 0 {
		return userErrorf(op, "enter an amount")
	}
	if params.SwapMode != quote.ExactIn && params.SwapMode != quote.ExactOut {
		return userErrorf(op, "unsupported swap mode %q", params.SwapMode)
	}
	return nil
}
