// Package swap builds, signs and submits the transactions behind the
// dashboard's user actions.
package swap

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/gagliardetto/solana-go/programs/token"
	"go.uber.org/zap"

	"github.com/openvaults/vaultdash/internal/chain"
	"github.com/openvaults/vaultdash/internal/quote"
	"github.com/openvaults/vaultdash/internal/wallet"
)

const defaultSwapAPIURL = "https://quote-api.jup.ag/v6"

// Executor turns user actions into signed, submitted transactions. Swaps go
// through the routing service's swap endpoint; deposits and withdrawals are
// plain transfers between the connected wallet and the vault account.
type Executor struct {
	httpClient *http.Client
	baseURL    string
	wallet     *wallet.Wallet
	vault      solana.PublicKey
	submitter  chain.Submitter
	logger     *zap.Logger
}

// NewExecutor wires an executor. An empty baseURL selects the public swap
// endpoint.
func NewExecutor(baseURL string, w *wallet.Wallet, vault solana.PublicKey, submitter chain.Submitter, logger *zap.Logger) *Executor {
	if baseURL == "" {
		baseURL = defaultSwapAPIURL
	}
	return &Executor{
		httpClient: &http.Client{Timeout: 20 * time.Second},
		baseURL:    strings.TrimRight(baseURL, "/"),
		wallet:     w,
		vault:      vault,
		submitter:  submitter,
		logger:     logger.Named("swap"),
	}
}

type swapRequest struct {
	QuoteResponse       *quote.Response `json:"quoteResponse"`
	UserPublicKey       string          `json:"userPublicKey"`
	WrapAndUnwrapSol    bool            `json:"wrapAndUnwrapSol"`
	AsLegacyTransaction bool            `json:"asLegacyTransaction"`
}

type swapResponse struct {
	SwapTransaction string `json:"swapTransaction"`
	LastValidBlock  uint64 `json:"lastValidBlockHeight"`
}

// Swap exchanges route's input for its output. The routing service returns a
// serialized transaction which is signed locally and broadcast.
func (e *Executor) Swap(ctx context.Context, params quote.Params, route *quote.Response) (string, error) {
	reqBody, err := json.Marshal(swapRequest{
		QuoteResponse:       route,
		UserPublicKey:       e.wallet.PublicKey.String(),
		WrapAndUnwrapSol:    true,
		AsLegacyTransaction: params.AsLegacyTransaction,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/swap", bytes.NewReader(reqBody))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("swap request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("swap API returned status %d: %s", resp.StatusCode, string(body))
	}

	var swapResp swapResponse
	if err := json.Unmarshal(body, &swapResp); err != nil {
		return "", fmt.Errorf("failed to decode swap response: %w", err)
	}

	rawTx, err := base64.StdEncoding.DecodeString(swapResp.SwapTransaction)
	if err != nil {
		return "", fmt.Errorf("failed to decode swap transaction: %w", err)
	}

	tx, err := solana.TransactionFromDecoder(bin.NewBinDecoder(rawTx))
	if err != nil {
		return "", fmt.Errorf("failed to deserialize swap transaction: %w", err)
	}

	if err := e.wallet.SignTransaction(tx); err != nil {
		return "", fmt.Errorf("failed to sign swap transaction: %w", err)
	}

	sig, err := e.submitter.SendTransaction(ctx, tx)
	if err != nil {
		return "", fmt.Errorf("failed to submit swap: %w", err)
	}

	e.logger.Info("swap submitted",
		zap.String("signature", sig.String()),
		zap.String("input_mint", route.InputMint),
		zap.String("output_mint", route.OutputMint),
		zap.String("out_amount", route.OutAmount))
	return sig.String(), nil
}

// Deposit moves assets from the connected wallet into the vault.
func (e *Executor) Deposit(ctx context.Context, mint string, amountRaw uint64, decimals uint8) (string, error) {
	return e.transfer(ctx, mint, amountRaw, decimals, e.wallet.PublicKey, e.vault)
}

// Withdraw moves assets from the vault back to the connected wallet. The
// wallet is the vault's authority, so it signs both directions.
func (e *Executor) Withdraw(ctx context.Context, mint string, amountRaw uint64, decimals uint8) (string, error) {
	return e.transfer(ctx, mint, amountRaw, decimals, e.vault, e.wallet.PublicKey)
}

func (e *Executor) transfer(ctx context.Context, mint string, amountRaw uint64, decimals uint8, from, to solana.PublicKey) (string, error) {
	var instructions []solana.Instruction

	if mint == "" {
		// Native SOL moves through the system program.
		instructions = append(instructions,
			system.NewTransferInstruction(amountRaw, from, to).Build())
	} else {
		mintKey, err := solana.PublicKeyFromBase58(mint)
		if err != nil {
			return "", fmt.Errorf("invalid mint %q: %w", mint, err)
		}
		sourceATA, _, err := solana.FindAssociatedTokenAddress(from, mintKey)
		if err != nil {
			return "", err
		}
		destATA, _, err := solana.FindAssociatedTokenAddress(to, mintKey)
		if err != nil {
			return "", err
		}
		instructions = append(instructions,
			createATAIdempotentInstruction(e.wallet.PublicKey, to, mintKey, destATA),
			token.NewTransferCheckedInstruction(
				amountRaw, decimals, sourceATA, mintKey, destATA,
				e.wallet.PublicKey, nil,
			).Build())
	}

	blockhash, err := e.submitter.GetLatestBlockhash(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to get blockhash: %w", err)
	}

	tx, err := solana.NewTransaction(instructions, blockhash,
		solana.TransactionPayer(e.wallet.PublicKey))
	if err != nil {
		return "", fmt.Errorf("failed to build transfer: %w", err)
	}

	if err := e.wallet.SignTransaction(tx); err != nil {
		return "", fmt.Errorf("failed to sign transfer: %w", err)
	}

	sig, err := e.submitter.SendTransaction(ctx, tx)
	if err != nil {
		return "", fmt.Errorf("failed to submit transfer: %w", err)
	}

	e.logger.Info("transfer submitted",
		zap.String("signature", sig.String()),
		zap.String("mint", mint),
		zap.Uint64("amount_raw", amountRaw),
		zap.String("from", from.String()),
		zap.String("to", to.String()))
	return sig.String(), nil
}

// createATAIdempotentInstruction creates the destination's associated token
// account if it does not exist yet.
func createATAIdempotentInstruction(payer, owner, mint, ata solana.PublicKey) solana.Instruction {
	return solana.NewInstruction(
		solana.SPLAssociatedTokenAccountProgramID,
		[]*solana.AccountMeta{
			{PublicKey: payer, IsWritable: true, IsSigner: true},
			{PublicKey: ata, IsWritable: true, IsSigner: false},
			{PublicKey: owner, IsWritable: false, IsSigner: false},
			{PublicKey: mint, IsWritable: false, IsSigner: false},
			{PublicKey: solana.SystemProgramID, IsWritable: false, IsSigner: false},
			{PublicKey: solana.TokenProgramID, IsWritable: false, IsSigner: false},
		},
		// Instruction code 1 selects CreateIdempotent.
		[]byte{1},
	)
}
