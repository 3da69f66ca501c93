// Package tokenlist maintains the session's token metadata registry.
package tokenlist

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"github.com/openvaults/vaultdash/internal/holdings"
)

const (
	defaultListURL = "https://tokens.jup.ag/tokens?tags=verified"
	lstTag         = "lst"
)

// Token is one token-list entry.
type Token struct {
	Address  string   `json:"address"`
	Name     string   `json:"name"`
	Symbol   string   `json:"symbol"`
	Decimals uint8    `json:"decimals"`
	LogoURI  string   `json:"logoURI"`
	Tags     []string `json:"tags"`
}

// Registry fetches the token list once per session and serves lookups from a
// TTL cache. It satisfies holdings.MetadataSource.
type Registry struct {
	httpClient *http.Client
	url        string
	cache      *gocache.Cache
	logger     *zap.Logger

	mu     sync.RWMutex
	tokens []Token
}

// NewRegistry creates a registry. An empty url selects the public list.
func NewRegistry(url string, ttl time.Duration, logger *zap.Logger) *Registry {
	if url == "" {
		url = defaultListURL
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Registry{
		httpClient: &http.Client{Timeout: 15 * time.Second},
		url:        url,
		cache:      gocache.New(ttl, 2*ttl),
		logger:     logger.Named("tokenlist"),
	}
}

// Refresh downloads the token list and replaces the registry contents.
func (r *Registry) Refresh(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.url, nil)
	if err != nil {
		return err
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to fetch token list: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("token list returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return err
	}

	var tokens []Token
	if err := json.Unmarshal(body, &tokens); err != nil {
		// Some mirrors wrap the array in an object.
		var wrapped struct {
			Tokens []Token `json:"tokens"`
		}
		if err2 := json.Unmarshal(body, &wrapped); err2 != nil {
			return fmt.Errorf("failed to decode token list: %w", err)
		}
		tokens = wrapped.Tokens
	}

	r.mu.Lock()
	r.tokens = tokens
	r.mu.Unlock()

	for _, tok := range tokens {
		r.cache.SetDefault(tok.Address, tok)
	}

	r.logger.Info("token list refreshed", zap.Int("tokens", len(tokens)))
	return nil
}

// Token returns the full token-list entry for a mint.
func (r *Registry) Token(mint string) (Token, bool) {
	if v, ok := r.cache.Get(mint); ok {
		return v.(Token), true
	}
	return Token{}, false
}

// Lookup implements holdings.MetadataSource.
func (r *Registry) Lookup(mint string) (holdings.TokenMeta, bool) {
	tok, ok := r.Token(mint)
	if !ok {
		return holdings.TokenMeta{}, false
	}
	return holdings.TokenMeta{
		Name:    tok.Name,
		Symbol:  tok.Symbol,
		LogoURI: tok.LogoURI,
		LST:     hasTag(tok.Tags, lstTag),
	}, true
}

// Decimals returns the listed decimals for a mint.
func (r *Registry) Decimals(mint string) (uint8, bool) {
	tok, ok := r.Token(mint)
	return tok.Decimals, ok
}

// Listed returns the registry contents as picker inputs.
func (r *Registry) Listed() []holdings.ListedToken {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]holdings.ListedToken, 0, len(r.tokens))
	for _, tok := range r.tokens {
		out = append(out, holdings.ListedToken{
			Address:  tok.Address,
			Name:     tok.Name,
			Symbol:   tok.Symbol,
			Decimals: tok.Decimals,
		})
	}
	return out
}

// Mints returns every listed mint address, for price feed subscriptions.
func (r *Registry) Mints() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.tokens))
	for _, tok := range r.tokens {
		out = append(out, tok.Address)
	}
	return out
}

func hasTag(tags []string, want string) bool {
	for _, tag := range tags {
		if tag == want {
			return true
		}
	}
	return false
}
