// Package pricing maintains the mint -> unit price lookup used to value
// holdings.
package pricing

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"
)

const (
	defaultPriceURL = "https://api.jup.ag/price/v2"
	// The public endpoint caps the ids parameter.
	maxMintsPerRequest = 100
)

// priceEnvelope is the feed's wire format. Prices arrive as decimal strings.
type priceEnvelope struct {
	Data map[string]struct {
		ID    string `json:"id"`
		Price string `json:"price"`
	} `json:"data"`
}

// Feed fetches prices over HTTP and serves synchronous lookups from a TTL
// cache, so a price is a plain map read once fetched.
type Feed struct {
	httpClient *http.Client
	baseURL    string
	cache      *gocache.Cache
	retries    uint
	logger     *zap.Logger
}

// NewFeed creates a price feed. An empty baseURL selects the public
// endpoint.
func NewFeed(baseURL string, ttl time.Duration, retries int, logger *zap.Logger) *Feed {
	if baseURL == "" {
		baseURL = defaultPriceURL
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	if retries <= 0 {
		retries = 3
	}
	return &Feed{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		baseURL:    strings.TrimRight(baseURL, "/"),
		cache:      gocache.New(ttl, 2*ttl),
		retries:    uint(retries),
		logger:     logger.Named("pricing"),
	}
}

// Fetch refreshes prices for the given mints, chunking requests to stay
// under the endpoint's id limit.
func (f *Feed) Fetch(ctx context.Context, mints []string) error {
	for start := 0; start < len(mints); start += maxMintsPerRequest {
		end := start + maxMintsPerRequest
		if end > len(mints) {
			end = len(mints)
		}
		if err := f.fetchChunk(ctx, mints[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func (f *Feed) fetchChunk(ctx context.Context, mints []string) error {
	if len(mints) == 0 {
		return nil
	}

	q := url.Values{}
	q.Set("ids", strings.Join(mints, ","))
	reqURL := f.baseURL + "?" + q.Encode()

	backoffPolicy := backoff.NewExponentialBackOff()
	backoffPolicy.InitialInterval = 200 * time.Millisecond
	backoffPolicy.MaxInterval = 2 * time.Second

	operation := func() (*priceEnvelope, error) {
		return f.doRequest(ctx, reqURL)
	}

	envelope, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(backoffPolicy),
		backoff.WithMaxTries(f.retries))
	if err != nil {
		return fmt.Errorf("failed to fetch prices: %w", err)
	}

	updated := 0
	for mint, entry := range envelope.Data {
		price, err := strconv.ParseFloat(entry.Price, 64)
		if err != nil {
			f.logger.Warn("unparseable price, skipping",
				zap.String("mint", mint),
				zap.String("price", entry.Price))
			continue
		}
		f.cache.SetDefault(mint, price)
		updated++
	}

	f.logger.Debug("prices refreshed",
		zap.Int("requested", len(mints)),
		zap.Int("updated", updated))
	return nil
}

func (f *Feed) doRequest(ctx context.Context, reqURL string) (*priceEnvelope, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, backoff.Permanent(err)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("price API returned status %d", resp.StatusCode)
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return nil, backoff.Permanent(err)
		}
		return nil, err
	}

	var envelope priceEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, backoff.Permanent(fmt.Errorf("failed to decode price response: %w", err))
	}
	return &envelope, nil
}

// Price implements holdings.PriceSource. A miss means the price is expired
// or was never fetched; callers degrade to zero.
func (f *Feed) Price(mint string) (float64, bool) {
	if v, ok := f.cache.Get(mint); ok {
		return v.(float64), true
	}
	return 0, false
}

// Snapshot returns all currently known prices as a plain map.
func (f *Feed) Snapshot() map[string]float64 {
	items := f.cache.Items()
	out := make(map[string]float64, len(items))
	for mint, item := range items {
		out[mint] = item.Object.(float64)
	}
	return out
}

// Run refreshes prices for mints() on every tick until ctx is cancelled.
// Failures are logged and retried on the next tick; the cache keeps serving
// the last good values until they expire.
func (f *Feed) Run(ctx context.Context, interval time.Duration, mints func() []string) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			f.logger.Debug("price feed stopped")
			return
		case <-ticker.C:
			if err := f.Fetch(ctx, mints()); err != nil {
				f.logger.Error("price refresh failed", zap.Error(err))
			}
		}
	}
}
