package quote

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
	"go.uber.org/zap"
)

const (
	defaultBaseURL = "https://quote-api.jup.ag/v6"
	requestTimeout = 10 * time.Second
)

// Fetcher issues a quote request to the routing service.
type Fetcher interface {
	Quote(ctx context.Context, params Params) (*Response, error)
}

// Client talks to the quote HTTP endpoint.
type Client struct {
	httpClient *http.Client
	baseURL    string
	retries    uint
	logger     *zap.Logger
}

// NewClient creates a quote client. An empty baseURL selects the public
// endpoint.
func NewClient(baseURL string, retries int, logger *zap.Logger) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if retries <= 0 {
		retries = 3
	}
	return &Client{
		httpClient: &http.Client{Timeout: requestTimeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
		retries:    uint(retries),
		logger:     logger.Named("quote"),
	}
}

// Quote requests a fresh quote for the given parameters, retrying transient
// failures with exponential backoff.
func (c *Client) Quote(ctx context.Context, params Params) (*Response, error) {
	reqURL := c.baseURL + "/quote?" + encodeQuery(params)

	backoffPolicy := backoff.NewExponentialBackOff()
	backoffPolicy.InitialInterval = 200 * time.Millisecond
	backoffPolicy.MaxInterval = 2 * time.Second

	notify := func(err error, duration time.Duration) {
		c.logger.Debug("retrying quote request",
			zap.Error(err),
			zap.Duration("backoff", duration))
	}

	operation := func() (*Response, error) {
		return c.doRequest(ctx, reqURL)
	}

	resp, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(backoffPolicy),
		backoff.WithMaxTries(c.retries),
		backoff.WithNotify(notify))
	if err != nil {
		return nil, fmt.Errorf("quote %s -> %s (%s): %w",
			params.InputMint, params.OutputMint, params.SwapMode, err)
	}

	c.logger.Debug("quote received",
		zap.String("input_mint", resp.InputMint),
		zap.String("output_mint", resp.OutputMint),
		zap.String("out_amount", resp.OutAmount),
		zap.String("price_impact_pct", resp.PriceImpactPct))

	return resp, nil
}

func (c *Client) doRequest(ctx context.Context, reqURL string) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, backoff.Permanent(err)
	}

	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(httpResp.Body, 1<<20))
	if err != nil {
		return nil, err
	}

	if httpResp.StatusCode != http.StatusOK {
		err := fmt.Errorf("quote API returned status %d: %s", httpResp.StatusCode, string(body))
		// 4xx means the request itself is bad; retrying cannot help.
		if httpResp.StatusCode >= 400 && httpResp.StatusCode < 500 {
			return nil, backoff.Permanent(err)
		}
		return nil, err
	}

	var quoteResp Response
	if err := json.Unmarshal(body, &quoteResp); err != nil {
		return nil, backoff.Permanent(fmt.Errorf("failed to decode quote response: %w", err))
	}

	return &quoteResp, nil
}

func encodeQuery(p Params) string {
	q := url.Values{}
	q.Set("inputMint", p.InputMint)
	q.Set("outputMint", p.OutputMint)
	q.Set("amount", strconv.FormatUint(p.Amount, 10))
	q.Set("swapMode", string(p.SwapMode))
	q.Set("slippageBps", strconv.Itoa(p.SlippageBps))
	if len(p.Dexes) > 0 {
		q.Set("dexes", strings.Join(p.Dexes, ","))
	}
	if p.OnlyDirectRoutes {
		q.Set("onlyDirectRoutes", "true")
	}
	if p.MaxAccounts > 0 {
		q.Set("maxAccounts", strconv.Itoa(p.MaxAccounts))
	}
	if p.AsLegacyTransaction {
		q.Set("asLegacyTransaction", "true")
	}
	return q.Encode()
}
