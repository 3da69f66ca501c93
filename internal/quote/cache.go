package quote

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// ErrQuoteUnavailable wraps fetch failures. The usual cause is an asset pair
// that does not support the requested swap mode (ExactOut in particular).
var ErrQuoteUnavailable = errors.New("quote unavailable for asset pair")

// Cache holds the last requested params and the last received response and
// skips the network round-trip while they still match.
//
// Params and response are only ever replaced together, so a stale response
// can never be read against new params. Overlapping fetches resolve
// last-write-wins, guarded by a sequence number so a slow early request
// cannot overwrite the result of a later one.
type Cache struct {
	fetcher Fetcher
	logger  *zap.Logger

	mu           sync.RWMutex
	cachedKey    string
	cachedResp   *Response
	installedSeq uint64

	seqMu   sync.Mutex
	nextSeq uint64
}

// NewCache wraps a fetcher with params-keyed caching.
func NewCache(fetcher Fetcher, logger *zap.Logger) *Cache {
	return &Cache{
		fetcher: fetcher,
		logger:  logger.Named("quote_cache"),
	}
}

// Get returns a quote for params, reusing the cached response when the
// params are structurally identical to the previous request. The boolean
// reports whether the cache was hit.
func (c *Cache) Get(ctx context.Context, params Params) (*Response, bool, error) {
	key := params.Key()

	c.mu.RLock()
	if c.cachedResp != nil && c.cachedKey == key {
		resp := *c.cachedResp
		c.mu.RUnlock()
		c.logger.Debug("quote cache hit",
			zap.String("input_mint", params.InputMint),
			zap.String("output_mint", params.OutputMint))
		return &resp, true, nil
	}
	c.mu.RUnlock()

	seq := c.claimSeq()

	resp, err := c.fetcher.Quote(ctx, params)
	if err != nil {
		// Cache stays untouched: the old quote, if any, remains valid
		// for its own params.
		return nil, false, fmt.Errorf("%w (%s %s -> %s): %v",
			ErrQuoteUnavailable, params.SwapMode, params.InputMint, params.OutputMint, err)
	}

	c.mu.Lock()
	if seq >= c.installedSeq {
		c.cachedKey = key
		c.cachedResp = resp
		c.installedSeq = seq
	}
	c.mu.Unlock()

	out := *resp
	return &out, false, nil
}

// Invalidate drops the cached pair, forcing the next Get to refetch. Called
// after a swap is submitted, since the quoted route is consumed.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	c.cachedKey = ""
	c.cachedResp = nil
	c.mu.Unlock()
}

// Cached returns the currently cached response, if any, without fetching.
func (c *Cache) Cached(params Params) (*Response, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.cachedResp == nil || c.cachedKey != params.Key() {
		return nil, false
	}
	resp := *c.cachedResp
	return &resp, true
}

func (c *Cache) claimSeq() uint64 {
	c.seqMu.Lock()
	defer c.seqMu.Unlock()
	c.nextSeq++
	return c.nextSeq
}
