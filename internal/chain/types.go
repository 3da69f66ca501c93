// Package chain wraps the Solana RPC layer behind a pooled, failover-aware
// client.
package chain

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"go.uber.org/zap"

	"github.com/openvaults/vaultdash/internal/holdings"
)

const (
	maxRetries     = 3
	retryDelay     = 500 * time.Millisecond
	defaultTimeout = 15 * time.Second
)

// Reader is the read-side surface the refresh pipeline depends on.
type Reader interface {
	GetNativeBalance(ctx context.Context, owner solana.PublicKey) (holdings.NativeBalance, error)
	GetTokenAccounts(ctx context.Context, owner solana.PublicKey) ([]holdings.TokenAccount, error)
}

// Submitter is the write-side surface used to broadcast signed transactions.
type Submitter interface {
	GetLatestBlockhash(ctx context.Context) (solana.Hash, error)
	SendTransaction(ctx context.Context, tx *solana.Transaction) (solana.Signature, error)
}

// DecimalsSource resolves token decimals for mints the token list knows.
type DecimalsSource interface {
	Decimals(mint string) (uint8, bool)
}

// RPCClient is one pooled endpoint with its health state.
type RPCClient struct {
	Client  *rpc.Client
	URL     string
	mutex   sync.RWMutex
	active  bool
	metrics *RPCMetrics
}

// RPCMetrics tracks per-endpoint request outcomes.
type RPCMetrics struct {
	mutex        sync.RWMutex
	successCount uint64
	errorCount   uint64
	latency      time.Duration
}

func (c *RPCClient) setActive(state bool) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.active = state
}

func (c *RPCClient) isActive() bool {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return c.active
}

func (c *RPCClient) updateMetrics(success bool, latency time.Duration) {
	c.metrics.mutex.Lock()
	defer c.metrics.mutex.Unlock()

	if success {
		atomic.AddUint64(&c.metrics.successCount, 1)
	} else {
		atomic.AddUint64(&c.metrics.errorCount, 1)
	}
	// Rolling average
	c.metrics.latency = (c.metrics.latency + latency) / 2
}

// Client rotates requests across the endpoint pool, marking endpoints
// inactive on failure.
type Client struct {
	rpcClients []*RPCClient
	decimals   DecimalsSource
	mutex      sync.Mutex
	currIndex  int
	logger     *zap.Logger
}
