package chain

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/token"
	"github.com/gagliardetto/solana-go/rpc"
	"go.uber.org/zap"

	"github.com/openvaults/vaultdash/internal/holdings"
)

// NewClient builds a pooled client over the given RPC endpoints and verifies
// connectivity before returning. The decimals source may be nil; unknown
// mints then fall back to a per-account balance RPC.
func NewClient(rpcURLs []string, decimals DecimalsSource, logger *zap.Logger) (*Client, error) {
	if len(rpcURLs) == 0 {
		return nil, errors.New("empty RPC URL list")
	}

	var clients []*RPCClient
	for _, urlStr := range rpcURLs {
		if _, err := url.Parse(urlStr); err != nil {
			logger.Warn("invalid RPC URL", zap.String("url", urlStr), zap.Error(err))
			continue
		}
		clients = append(clients, &RPCClient{
			Client:  rpc.New(urlStr),
			URL:     urlStr,
			active:  true,
			metrics: &RPCMetrics{},
		})
	}

	if len(clients) == 0 {
		return nil, errors.New("no valid RPC URLs provided")
	}

	c := &Client{
		rpcClients: clients,
		decimals:   decimals,
		logger:     logger.Named("chain"),
	}

	if err := c.validateConnections(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to validate connections: %w", err)
	}

	return c, nil
}

func (c *Client) testConnection(ctx context.Context, rpcClient *RPCClient) error {
	version, err := rpcClient.Client.GetVersion(ctx)
	if err != nil {
		return fmt.Errorf("failed to get version: %w", err)
	}

	if _, err := rpcClient.Client.GetLatestBlockhash(ctx, rpc.CommitmentFinalized); err != nil {
		return fmt.Errorf("failed to get latest blockhash: %w", err)
	}

	c.logger.Debug("connected to RPC",
		zap.String("url", rpcClient.URL),
		zap.String("solana_core", version.SolanaCore))
	return nil
}

func (c *Client) validateConnections(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var wg sync.WaitGroup
	for _, client := range c.rpcClients {
		wg.Add(1)
		go func(rpcClient *RPCClient) {
			defer wg.Done()

			for attempt := 0; attempt < maxRetries; attempt++ {
				start := time.Now()
				if err := c.testConnection(ctx, rpcClient); err != nil {
					rpcClient.updateMetrics(false, time.Since(start))
					time.Sleep(retryDelay)
					continue
				}
				rpcClient.updateMetrics(true, time.Since(start))
				return
			}
			c.logger.Warn("marking endpoint inactive", zap.String("url", rpcClient.URL))
			rpcClient.setActive(false)
		}(client)
	}
	wg.Wait()

	if !c.hasActiveClients() {
		return errors.New("no active RPC connections available")
	}
	return nil
}

// GetNativeBalance returns the owner's SOL balance.
func (c *Client) GetNativeBalance(ctx context.Context, owner solana.PublicKey) (holdings.NativeBalance, error) {
	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		client := c.getNextClient()
		if client == nil {
			return holdings.NativeBalance{}, errors.New("no active RPC clients available")
		}

		start := time.Now()
		result, err := client.Client.GetBalance(ctx, owner, rpc.CommitmentConfirmed)
		client.updateMetrics(err == nil, time.Since(start))

		if err != nil {
			lastErr = err
			client.setActive(false)
			continue
		}

		return holdings.NativeBalance{
			Lamports: result.Value,
			UIAmount: float64(result.Value) / holdings.LamportsPerSOL,
		}, nil
	}
	return holdings.NativeBalance{}, fmt.Errorf("failed to get balance after %d attempts: %w", maxRetries, lastErr)
}

// GetTokenAccounts lists the owner's SPL token accounts with non-zero
// balances.
func (c *Client) GetTokenAccounts(ctx context.Context, owner solana.PublicKey) ([]holdings.TokenAccount, error) {
	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		client := c.getNextClient()
		if client == nil {
			return nil, errors.New("no active RPC clients available")
		}

		start := time.Now()
		result, err := client.Client.GetTokenAccountsByOwner(ctx, owner,
			&rpc.GetTokenAccountsConfig{ProgramId: solana.TokenProgramID.ToPointer()},
			&rpc.GetTokenAccountsOpts{
				Encoding:   solana.EncodingBase64,
				Commitment: rpc.CommitmentConfirmed,
			})
		client.updateMetrics(err == nil, time.Since(start))

		if err != nil {
			lastErr = err
			client.setActive(false)
			continue
		}

		return c.parseTokenAccounts(ctx, client, result)
	}
	return nil, fmt.Errorf("failed to list token accounts after %d attempts: %w", maxRetries, lastErr)
}

func (c *Client) parseTokenAccounts(ctx context.Context, client *RPCClient, result *rpc.GetTokenAccountsResult) ([]holdings.TokenAccount, error) {
	accounts := make([]holdings.TokenAccount, 0, len(result.Value))
	for _, acc := range result.Value {
		var parsed token.Account
		if err := bin.NewBinDecoder(acc.Account.Data.GetBinary()).Decode(&parsed); err != nil {
			c.logger.Warn("skipping undecodable token account",
				zap.String("pubkey", acc.Pubkey.String()),
				zap.Error(err))
			continue
		}
		if parsed.Amount == 0 {
			continue
		}

		mint := parsed.Mint.String()
		decimals, known := c.lookupDecimals(mint)
		if !known {
			// Token list miss: ask the node, which knows the mint.
			balResult, err := client.Client.GetTokenAccountBalance(ctx, acc.Pubkey, rpc.CommitmentConfirmed)
			if err == nil && balResult.Value != nil {
				decimals, known = balResult.Value.Decimals, true
			} else {
				c.logger.Warn("unknown decimals for mint, omitting ui amount",
					zap.String("mint", mint),
					zap.Error(err))
			}
		}

		accounts = append(accounts, tokenAccountRow(mint, acc.Pubkey.String(), parsed.Amount, decimals, known))
	}
	return accounts, nil
}

// tokenAccountRow builds the row for one token account. Without known
// decimals the ui amount is left at zero rather than misread as the raw
// base-unit amount; the price lookup will miss too, keeping notional zero.
func tokenAccountRow(mint, pubkey string, amount uint64, decimals uint8, decimalsKnown bool) holdings.TokenAccount {
	acc := holdings.TokenAccount{
		Mint:   mint,
		Pubkey: pubkey,
		Amount: amount,
	}
	if decimalsKnown {
		acc.UIAmount = uiAmount(amount, decimals)
		acc.Decimals = decimals
	}
	return acc
}

func (c *Client) lookupDecimals(mint string) (uint8, bool) {
	if c.decimals == nil {
		return 0, false
	}
	return c.decimals.Decimals(mint)
}

// GetLatestBlockhash fetches a recent blockhash for transaction assembly.
func (c *Client) GetLatestBlockhash(ctx context.Context) (solana.Hash, error) {
	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		client := c.getNextClient()
		if client == nil {
			return solana.Hash{}, errors.New("no active RPC clients available")
		}

		start := time.Now()
		result, err := client.Client.GetLatestBlockhash(ctx, rpc.CommitmentFinalized)
		client.updateMetrics(err == nil, time.Since(start))

		if err != nil {
			lastErr = err
			client.setActive(false)
			continue
		}
		return result.Value.Blockhash, nil
	}
	return solana.Hash{}, fmt.Errorf("failed to get recent blockhash after %d attempts: %w", maxRetries, lastErr)
}

// SendTransaction broadcasts a signed transaction.
func (c *Client) SendTransaction(ctx context.Context, tx *solana.Transaction) (solana.Signature, error) {
	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		client := c.getNextClient()
		if client == nil {
			return solana.Signature{}, errors.New("no active RPC clients available")
		}

		start := time.Now()
		sig, err := client.Client.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
			SkipPreflight:       true,
			PreflightCommitment: rpc.CommitmentFinalized,
		})
		client.updateMetrics(err == nil, time.Since(start))

		if err != nil {
			lastErr = err
			client.setActive(false)
			continue
		}
		return sig, nil
	}
	return solana.Signature{}, fmt.Errorf("failed to send transaction after %d attempts: %w", maxRetries, lastErr)
}

func (c *Client) hasActiveClients() bool {
	for _, client := range c.rpcClients {
		if client.isActive() {
			return true
		}
	}
	return false
}

func (c *Client) getNextClient() *RPCClient {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	initialIndex := c.currIndex
	for {
		c.currIndex = (c.currIndex + 1) % len(c.rpcClients)
		if c.rpcClients[c.currIndex].isActive() {
			return c.rpcClients[c.currIndex]
		}
		if c.currIndex == initialIndex {
			return nil
		}
	}
}

func uiAmount(raw uint64, decimals uint8) float64 {
	out := float64(raw)
	for i := uint8(0); i < decimals; i++ {
		out /= 10
	}
	return out
}
