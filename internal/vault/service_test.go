package vault

import (
	"context"
	"errors"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/openvaults/vaultdash/internal/holdings"
	"github.com/openvaults/vaultdash/internal/logger"
	"github.com/openvaults/vaultdash/internal/quote"
	"github.com/openvaults/vaultdash/internal/venue"
)

const (
	wsolMint = "So11111111111111111111111111111111111111112"
	usdcMint = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
)

type fakeChain struct {
	native   holdings.NativeBalance
	accounts []holdings.TokenAccount
	err      error
}

func (f *fakeChain) GetNativeBalance(context.Context, solana.PublicKey) (holdings.NativeBalance, error) {
	return f.native, f.err
}

func (f *fakeChain) GetTokenAccounts(context.Context, solana.PublicKey) ([]holdings.TokenAccount, error) {
	return f.accounts, f.err
}

type fakePositions struct {
	positions []holdings.SpotPosition
	err       error
}

func (f *fakePositions) Venue() venue.Venue {
	return venue.VenueDrift
}

func (f *fakePositions) SpotPositions(context.Context, string) ([]holdings.SpotPosition, error) {
	return f.positions, f.err
}

type fakeMeta map[string]holdings.TokenMeta

func (m fakeMeta) Lookup(mint string) (holdings.TokenMeta, bool) {
	meta, ok := m[mint]
	return meta, ok
}

func (m fakeMeta) Decimals(mint string) (uint8, bool) {
	if mint == usdcMint {
		return 6, true
	}
	return 0, false
}

func (m fakeMeta) Listed() []holdings.ListedToken {
	return []holdings.ListedToken{
		{Address: wsolMint, Name: "Wrapped SOL", Symbol: "SOL", Decimals: 9},
		{Address: usdcMint, Name: "USD Coin", Symbol: "USDC", Decimals: 6},
	}
}

type fakePrices map[string]float64

func (p fakePrices) Price(mint string) (float64, bool) {
	price, ok := p[mint]
	return price, ok
}

type fakeTx struct {
	swapSig string
	swapErr error
	lastOp  string
	lastRaw uint64
	lastDec uint8
}

func (f *fakeTx) Swap(_ context.Context, _ quote.Params, _ *quote.Response) (string, error) {
	f.lastOp = "swap"
	return f.swapSig, f.swapErr
}

func (f *fakeTx) Deposit(_ context.Context, _ string, raw uint64, dec uint8) (string, error) {
	f.lastOp, f.lastRaw, f.lastDec = "deposit", raw, dec
	return "deposit-sig", nil
}

func (f *fakeTx) Withdraw(_ context.Context, _ string, raw uint64, dec uint8) (string, error) {
	f.lastOp, f.lastRaw, f.lastDec = "withdraw", raw, dec
	return "withdraw-sig", nil
}

type staticFetcher struct {
	calls int
	err   error
}

func (f *staticFetcher) Quote(_ context.Context, p quote.Params) (*quote.Response, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &quote.Response{InputMint: p.InputMint, OutputMint: p.OutputMint, OutAmount: "42"}, nil
}

func newTestService(chainSrc *fakeChain, positions *fakePositions, tx *fakeTx, fetcher quote.Fetcher) *Service {
	return New(Deps{
		Owner:     solana.MustPublicKeyFromBase58(usdcMint),
		Chain:     chainSrc,
		Positions: positions,
		Meta: fakeMeta{
			wsolMint: {Name: "Wrapped SOL", Symbol: "SOL"},
			usdcMint: {Name: "USD Coin", Symbol: "USDC"},
		},
		Prices: fakePrices{wsolMint: 150, usdcMint: 1},
		Quotes: quote.NewCache(fetcher, zap.NewNop()),
		Tx:     tx,
		Logger: logger.NewNop(),
	})
}

func swapParams() quote.Params {
	return quote.Params{
		InputMint:   wsolMint,
		OutputMint:  usdcMint,
		Amount:      1_000_000_000,
		SwapMode:    quote.ExactIn,
		SlippageBps: 50,
	}
}

func TestRefreshBuildsSnapshot(t *testing.T) {
	svc := newTestService(
		&fakeChain{
			native: holdings.NativeBalance{Lamports: holdings.LamportsPerSOL, UIAmount: 1},
			accounts: []holdings.TokenAccount{
				{Mint: usdcMint, Pubkey: "ata", Amount: 5_000_000, UIAmount: 5, Decimals: 6},
			},
		},
		&fakePositions{positions: []holdings.SpotPosition{
			{MarketIndex: 0, Mint: usdcMint, UIAmount: 7, Decimals: 6},
		}},
		&fakeTx{}, &staticFetcher{})

	require.NoError(t, svc.Refresh(context.Background()))

	rows := svc.Holdings()
	assert.Len(t, rows, 3)
	assert.False(t, svc.LastRefresh().IsZero())

	assets := svc.Assets()
	require.Len(t, assets, 2)
}

func TestRefreshSurvivesVenueOutage(t *testing.T) {
	svc := newTestService(
		&fakeChain{native: holdings.NativeBalance{Lamports: holdings.LamportsPerSOL, UIAmount: 1}},
		&fakePositions{err: errors.New("drift api down")},
		&fakeTx{}, &staticFetcher{})

	require.NoError(t, svc.Refresh(context.Background()))
	assert.Len(t, svc.Holdings(), 1, "vault rows render without venue positions")
}

func TestRefreshChainFailureKeepsOldSnapshot(t *testing.T) {
	chainSrc := &fakeChain{native: holdings.NativeBalance{Lamports: holdings.LamportsPerSOL, UIAmount: 1}}
	svc := newTestService(chainSrc, &fakePositions{}, &fakeTx{}, &staticFetcher{})

	require.NoError(t, svc.Refresh(context.Background()))
	require.Len(t, svc.Holdings(), 1)

	chainSrc.err = errors.New("rpc down")
	assert.Error(t, svc.Refresh(context.Background()))
	assert.Len(t, svc.Holdings(), 1, "failed refresh must not clear the snapshot")
}

func TestQuoteValidation(t *testing.T) {
	svc := newTestService(&fakeChain{}, &fakePositions{}, &fakeTx{}, &staticFetcher{})

	cases := []struct {
		name   string
		mutate func(*quote.Params)
	}{
		{"missing input", func(p *quote.Params) { p.InputMint = "" }},
		{"same mints", func(p *quote.Params) { p.OutputMint = p.InputMint }},
		{"zero amount", func(p *quote.Params) { p.Amount = 0 }},
		{"bad mode", func(p *quote.Params) { p.SwapMode = "Market" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			params := swapParams()
			tc.mutate(&params)
			_, _, err := svc.Quote(context.Background(), params)
			require.Error(t, err)
			_, ok := AsUserError(err)
			assert.True(t, ok, "validation failures are user errors")
		})
	}
}

func TestQuoteUsesCache(t *testing.T) {
	fetcher := &staticFetcher{}
	svc := newTestService(&fakeChain{}, &fakePositions{}, &fakeTx{}, fetcher)

	_, cached, err := svc.Quote(context.Background(), swapParams())
	require.NoError(t, err)
	assert.False(t, cached)

	_, cached, err = svc.Quote(context.Background(), swapParams())
	require.NoError(t, err)
	assert.True(t, cached)
	assert.Equal(t, 1, fetcher.calls)
}

func TestSwapInvalidatesQuoteCache(t *testing.T) {
	fetcher := &staticFetcher{}
	tx := &fakeTx{swapSig: "sig-1"}
	svc := newTestService(&fakeChain{}, &fakePositions{}, tx, fetcher)

	sig, err := svc.Swap(context.Background(), swapParams())
	require.NoError(t, err)
	assert.Equal(t, "sig-1", sig)
	assert.Equal(t, "swap", tx.lastOp)

	// The submitted route is consumed; the next quote refetches.
	_, cached, err := svc.Quote(context.Background(), swapParams())
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Equal(t, 2, fetcher.calls)
}

func TestSwapQuoteFailureBlocksSubmission(t *testing.T) {
	fetcher := &staticFetcher{err: errors.New("no route")}
	tx := &fakeTx{swapSig: "sig-1"}
	svc := newTestService(&fakeChain{}, &fakePositions{}, tx, fetcher)

	_, err := svc.Swap(context.Background(), swapParams())
	require.Error(t, err)
	assert.ErrorIs(t, err, quote.ErrQuoteUnavailable)
	assert.Empty(t, tx.lastOp, "no transaction may be submitted without a quote")
}

func TestDepositWithdrawAmounts(t *testing.T) {
	tx := &fakeTx{}
	svc := newTestService(&fakeChain{}, &fakePositions{}, tx, &staticFetcher{})

	_, err := svc.Deposit(context.Background(), usdcMint, 12.5)
	require.NoError(t, err)
	assert.Equal(t, uint64(12_500_000), tx.lastRaw)
	assert.Equal(t, uint8(6), tx.lastDec)

	// Empty mint selects native SOL with 9 decimals.
	_, err = svc.Withdraw(context.Background(), "", 0.25)
	require.NoError(t, err)
	assert.Equal(t, "withdraw", tx.lastOp)
	assert.Equal(t, uint64(250_000_000), tx.lastRaw)
	assert.Equal(t, uint8(9), tx.lastDec)

	// 0.29 * 1e9 is 289999999.999...; the conversion must round up, not
	// truncate a base unit away.
	_, err = svc.Deposit(context.Background(), "", 0.29)
	require.NoError(t, err)
	assert.Equal(t, uint64(290_000_000), tx.lastRaw)

	_, err = svc.Deposit(context.Background(), usdcMint, 0)
	require.Error(t, err)
	_, ok := AsUserError(err)
	assert.True(t, ok)

	_, err = svc.Deposit(context.Background(), "UnlistedMint", 1)
	require.Error(t, err)
	_, ok = AsUserError(err)
	assert.True(t, ok, "unknown asset is a selection error")
}
