package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/openvaults/vaultdash/internal/formstate"
	"github.com/openvaults/vaultdash/internal/holdings"
	"github.com/openvaults/vaultdash/internal/integrations"
	"github.com/openvaults/vaultdash/internal/logger"
	"github.com/openvaults/vaultdash/internal/quote"
	"github.com/openvaults/vaultdash/internal/vault"
	"github.com/openvaults/vaultdash/internal/venue"
)

const (
	wsolMint = "So11111111111111111111111111111111111111112"
	usdcMint = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
)

type fakeChain struct{}

func (fakeChain) GetNativeBalance(context.Context, solana.PublicKey) (holdings.NativeBalance, error) {
	return holdings.NativeBalance{Lamports: holdings.LamportsPerSOL, UIAmount: 1}, nil
}

func (fakeChain) GetTokenAccounts(context.Context, solana.PublicKey) ([]holdings.TokenAccount, error) {
	return []holdings.TokenAccount{
		{Mint: usdcMint, Pubkey: "ata", Amount: 5_000_000, UIAmount: 5, Decimals: 6},
	}, nil
}

type fakePositions struct{}

func (fakePositions) Venue() venue.Venue { return venue.VenueDrift }

func (fakePositions) SpotPositions(context.Context, string) ([]holdings.SpotPosition, error) {
	return nil, nil
}

type fakeMeta struct{}

func (fakeMeta) Lookup(mint string) (holdings.TokenMeta, bool) {
	switch mint {
	case wsolMint:
		return holdings.TokenMeta{Name: "Wrapped SOL", Symbol: "SOL"}, true
	case usdcMint:
		return holdings.TokenMeta{Name: "USD Coin", Symbol: "USDC"}, true
	}
	return holdings.TokenMeta{}, false
}

func (fakeMeta) Decimals(mint string) (uint8, bool) {
	if mint == usdcMint {
		return 6, true
	}
	return 0, false
}

func (fakeMeta) Listed() []holdings.ListedToken {
	return []holdings.ListedToken{
		{Address: wsolMint, Name: "Wrapped SOL", Symbol: "SOL", Decimals: 9},
		{Address: usdcMint, Name: "USD Coin", Symbol: "USDC", Decimals: 6},
	}
}

type fakePrices struct{}

func (fakePrices) Price(mint string) (float64, bool) {
	if mint == wsolMint {
		return 150, true
	}
	return 1, true
}

type fakeFetcher struct{ calls int }

func (f *fakeFetcher) Quote(_ context.Context, p quote.Params) (*quote.Response, error) {
	f.calls++
	return &quote.Response{InputMint: p.InputMint, OutputMint: p.OutputMint, OutAmount: "42"}, nil
}

type fakeTx struct{}

func (fakeTx) Swap(context.Context, quote.Params, *quote.Response) (string, error) {
	return "swap-sig", nil
}

func (fakeTx) Deposit(context.Context, string, uint64, uint8) (string, error) {
	return "deposit-sig", nil
}

func (fakeTx) Withdraw(context.Context, string, uint64, uint8) (string, error) {
	return "withdraw-sig", nil
}

type memStore struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemStore() *memStore { return &memStore{data: make(map[string][]byte)} }

func (m *memStore) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if b, ok := m.data[key]; ok {
		return b, nil
	}
	return nil, formstate.ErrNotFound
}

func (m *memStore) Set(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *memStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

type fakeIntegrationState struct{}

func (fakeIntegrationState) EnabledIntegrations(context.Context) (map[string]bool, error) {
	return map[string]bool{"drift": true}, nil
}

func (fakeIntegrationState) SetIntegration(context.Context, string, bool) (string, error) {
	return "toggle-sig", nil
}

func newTestServer(t *testing.T) (*Server, *fakeFetcher) {
	t.Helper()
	zlog := zap.NewNop()
	fetcher := &fakeFetcher{}

	svc := vault.New(vault.Deps{
		Owner:     solana.MustPublicKeyFromBase58(usdcMint),
		Chain:     fakeChain{},
		Positions: fakePositions{},
		Meta:      fakeMeta{},
		Prices:    fakePrices{},
		Quotes:    quote.NewCache(fetcher, zlog),
		Tx:        fakeTx{},
		Logger:    logger.NewNop(),
	})
	require.NoError(t, svc.Refresh(context.Background()))

	forms := formstate.NewManager(newMemStore(), nil, zlog)
	state := fakeIntegrationState{}
	reg := integrations.NewRegistry(state, state, zlog)

	return New(":0", svc, forms, reg, NewMetrics(), zlog), fetcher
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doJSON(t, srv.Handler(), http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHoldingsEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doJSON(t, srv.Handler(), http.MethodGet, "/v1/holdings", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Holdings    []holdings.Holding `json:"holdings"`
		LastRefresh string             `json:"lastRefresh"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Holdings, 2)
	assert.NotEmpty(t, resp.LastRefresh)
}

func TestAssetsEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doJSON(t, srv.Handler(), http.MethodGet, "/v1/assets", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Assets []holdings.Asset `json:"assets"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Assets, 2)
}

func TestQuoteEndpoint(t *testing.T) {
	srv, fetcher := newTestServer(t)
	path := "/v1/quote?inputMint=" + wsolMint + "&outputMint=" + usdcMint + "&amount=1000000000&slippageBps=50"

	rec := doJSON(t, srv.Handler(), http.MethodGet, path, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Quote  *quote.Response `json:"quote"`
		Cached bool            `json:"cached"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "42", resp.Quote.OutAmount)
	assert.False(t, resp.Cached)

	rec = doJSON(t, srv.Handler(), http.MethodGet, path, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Cached)
	assert.Equal(t, 1, fetcher.calls)
}

func TestQuoteEndpointValidation(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doJSON(t, srv.Handler(), http.MethodGet, "/v1/quote?inputMint="+wsolMint, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, srv.Handler(), http.MethodGet,
		"/v1/quote?inputMint="+wsolMint+"&outputMint="+usdcMint+"&amount=abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSwapEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)
	body := quote.Params{
		InputMint:   wsolMint,
		OutputMint:  usdcMint,
		Amount:      1_000_000_000,
		SwapMode:    quote.ExactIn,
		SlippageBps: 50,
	}

	rec := doJSON(t, srv.Handler(), http.MethodPost, "/v1/swap", body)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Signature string `json:"signature"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "swap-sig", resp.Signature)
}

func TestSwapEndpointRejectsBadParams(t *testing.T) {
	srv, _ := newTestServer(t)
	body := quote.Params{InputMint: wsolMint, OutputMint: wsolMint, Amount: 1, SwapMode: quote.ExactIn}

	rec := doJSON(t, srv.Handler(), http.MethodPost, "/v1/swap", body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var resp struct {
		Error string `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Contains(t, resp.Error, "must differ")
}

func TestDepositEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doJSON(t, srv.Handler(), http.MethodPost, "/v1/deposit",
		map[string]any{"mint": usdcMint, "amount": 10.0})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, srv.Handler(), http.MethodPost, "/v1/deposit",
		map[string]any{"mint": usdcMint, "amount": 0})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestFormRoundTrip(t *testing.T) {
	srv, _ := newTestServer(t)
	fields := map[string]any{"slippage": 0.5, "transient": "dropped"}

	rec := doJSON(t, srv.Handler(), http.MethodPut, "/v1/forms/swap", fields)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, srv.Handler(), http.MethodGet, "/v1/forms/swap", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Form   string         `json:"form"`
		Fields map[string]any `json:"fields"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "swap", resp.Form)
	assert.Equal(t, 0.5, resp.Fields["slippage"])
	assert.NotContains(t, resp.Fields, "transient")

	rec = doJSON(t, srv.Handler(), http.MethodDelete, "/v1/forms/swap", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(t, srv.Handler(), http.MethodGet, "/v1/forms/swap", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	// Decode into a fresh struct: Unmarshal merges into an existing map.
	resp.Fields = nil
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Empty(t, resp.Fields)
}

func TestFormUnknownName(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doJSON(t, srv.Handler(), http.MethodGet, "/v1/forms/nosuchform", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestIntegrationsEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doJSON(t, srv.Handler(), http.MethodGet, "/v1/integrations", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Integrations []integrations.Integration `json:"integrations"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Integrations)

	byKey := make(map[string]integrations.Integration)
	for _, integ := range resp.Integrations {
		byKey[integ.Key] = integ
	}
	assert.True(t, byKey["drift"].Enabled)
	assert.False(t, byKey["jupiterSwap"].Enabled)
}

func TestIntegrationToggleEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doJSON(t, srv.Handler(), http.MethodPost, "/v1/integrations/drift",
		map[string]any{"enabled": true})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, srv.Handler(), http.MethodPost, "/v1/integrations/kamino",
		map[string]any{"enabled": true})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "coming-soon integrations cannot be toggled")
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	doJSON(t, srv.Handler(), http.MethodGet, "/v1/holdings", nil)
	rec := doJSON(t, srv.Handler(), http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "vaultdash_http_requests_total")
	assert.Contains(t, rec.Body.String(), "vaultdash_holdings_rows")
}
