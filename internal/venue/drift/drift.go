// Package drift reads spot positions from the Drift data API.
package drift

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"

	"github.com/openvaults/vaultdash/internal/holdings"
	"github.com/openvaults/vaultdash/internal/venue"
)

const defaultAPIURL = "https://data.api.drift.trade"

// ErrMarketNotFound is returned when a selected symbol has no market config.
// It is a user-facing selection error, not a system fault.
var ErrMarketNotFound = errors.New("market config not found")

// SpotMarket is the venue-side config for one spot market.
type SpotMarket struct {
	MarketIndex uint16 `json:"marketIndex"`
	Symbol      string `json:"symbol"`
	Mint        string `json:"mint"`
	Decimals    uint8  `json:"decimals"`
}

// SpotBalance is one non-zero spot balance on a drift account.
type SpotBalance struct {
	MarketIndex uint16  `json:"marketIndex"`
	Balance     float64 `json:"balance"`
}

// Reader is the boundary to the drift account-state API.
type Reader interface {
	SpotMarkets(ctx context.Context) ([]SpotMarket, error)
	SpotBalances(ctx context.Context, owner string) ([]SpotBalance, error)
}

// Client implements Reader over the drift data API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	retries    uint
	logger     *zap.Logger
}

// NewClient creates a drift API client. An empty baseURL selects the public
// endpoint.
func NewClient(baseURL string, retries int, logger *zap.Logger) *Client {
	if baseURL == "" {
		baseURL = defaultAPIURL
	}
	if retries <= 0 {
		retries = 3
	}
	return &Client{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		baseURL:    strings.TrimRight(baseURL, "/"),
		retries:    uint(retries),
		logger:     logger.Named("drift"),
	}
}

// SpotMarkets lists the venue's spot market configs.
func (c *Client) SpotMarkets(ctx context.Context) ([]SpotMarket, error) {
	var out struct {
		Markets []SpotMarket `json:"markets"`
	}
	if err := c.getJSON(ctx, c.baseURL+"/spotMarkets", &out); err != nil {
		return nil, fmt.Errorf("failed to fetch spot markets: %w", err)
	}
	return out.Markets, nil
}

// SpotBalances lists the owner's non-zero spot balances.
func (c *Client) SpotBalances(ctx context.Context, owner string) ([]SpotBalance, error) {
	var out struct {
		Balances []SpotBalance `json:"balances"`
	}
	url := c.baseURL + "/users/" + owner + "/spotBalances"
	if err := c.getJSON(ctx, url, &out); err != nil {
		return nil, fmt.Errorf("failed to fetch spot balances: %w", err)
	}
	return out.Balances, nil
}

func (c *Client) getJSON(ctx context.Context, reqURL string, out interface{}) error {
	backoffPolicy := backoff.NewExponentialBackOff()
	backoffPolicy.InitialInterval = 200 * time.Millisecond
	backoffPolicy.MaxInterval = 2 * time.Second

	operation := func() ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
		if err != nil {
			return nil, err
		}
		if resp.StatusCode != http.StatusOK {
			err := fmt.Errorf("drift API returned status %d", resp.StatusCode)
			if resp.StatusCode >= 400 && resp.StatusCode < 500 {
				return nil, backoff.Permanent(err)
			}
			return nil, err
		}
		return body, nil
	}

	body, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(backoffPolicy),
		backoff.WithMaxTries(c.retries))
	if err != nil {
		return err
	}
	return json.Unmarshal(body, out)
}

// Source adapts the drift API into the refresh pipeline's position source,
// caching market configs between refreshes.
type Source struct {
	reader Reader
	logger *zap.Logger

	mu      sync.RWMutex
	markets map[uint16]SpotMarket
}

// NewSource wraps a reader. Market configs load lazily on the first position
// fetch.
func NewSource(reader Reader, logger *zap.Logger) *Source {
	return &Source{
		reader:  reader,
		logger:  logger.Named("drift_source"),
		markets: make(map[uint16]SpotMarket),
	}
}

// Venue reports which venue the source's positions belong to.
func (s *Source) Venue() venue.Venue {
	return venue.VenueDrift
}

// RefreshMarkets reloads the market config table.
func (s *Source) RefreshMarkets(ctx context.Context) error {
	markets, err := s.reader.SpotMarkets(ctx)
	if err != nil {
		return err
	}

	table := make(map[uint16]SpotMarket, len(markets))
	for _, m := range markets {
		table[m.MarketIndex] = m
	}

	s.mu.Lock()
	s.markets = table
	s.mu.Unlock()

	s.logger.Debug("spot markets refreshed", zap.Int("markets", len(markets)))
	return nil
}

// MarketBySymbol resolves a market config for a user-selected symbol.
func (s *Source) MarketBySymbol(symbol string) (SpotMarket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, m := range s.markets {
		if m.Symbol == symbol {
			return m, nil
		}
	}
	return SpotMarket{}, fmt.Errorf("%w: %s", ErrMarketNotFound, symbol)
}

// SpotPositions returns the owner's spot positions. A balance on a market the
// config table does not know still produces a row, keyed by its market index,
// so the row count reflects the true position count.
func (s *Source) SpotPositions(ctx context.Context, owner string) ([]holdings.SpotPosition, error) {
	s.mu.RLock()
	empty := len(s.markets) == 0
	s.mu.RUnlock()
	if empty {
		if err := s.RefreshMarkets(ctx); err != nil {
			return nil, err
		}
	}

	balances, err := s.reader.SpotBalances(ctx, owner)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	positions := make([]holdings.SpotPosition, 0, len(balances))
	for _, bal := range balances {
		if bal.Balance == 0 {
			continue
		}
		pos := holdings.SpotPosition{
			MarketIndex: bal.MarketIndex,
			UIAmount:    bal.Balance,
		}
		if m, ok := s.markets[bal.MarketIndex]; ok {
			pos.Mint = m.Mint
			pos.Decimals = m.Decimals
		} else {
			s.logger.Warn("no market config for spot balance",
				zap.Uint16("market_index", bal.MarketIndex))
			pos.Mint = fmt.Sprintf("market-%d", bal.MarketIndex)
		}
		positions = append(positions, pos)
	}
	return positions, nil
}
