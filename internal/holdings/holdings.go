// Package holdings merges balance sources into the display rows shown by the
// vault dashboard.
package holdings

import (
	"github.com/openvaults/vaultdash/internal/venue"
)

// WSOLMint is the wrapped SOL mint. The native SOL row has no mint of its
// own, so its price is resolved through wSOL.
const WSOLMint = "So11111111111111111111111111111111111111112"

// NAMint marks rows that have no on-chain token account behind them, such as
// spot balances held at an external margin venue.
const NAMint = "NA"

// LamportsPerSOL is the number of lamports in one SOL.
const LamportsPerSOL = 1_000_000_000

// Holding is one row of the holdings table.
type Holding struct {
	Name     string      `json:"name"`
	Symbol   string      `json:"symbol"`
	Mint     string      `json:"mint"`
	ATA      string      `json:"ata"`
	Price    float64     `json:"price"`
	Amount   string      `json:"amount"`  // raw amount, base units
	Balance  float64     `json:"balance"` // ui amount
	Decimals uint8       `json:"decimals"`
	Notional float64     `json:"notional"`
	LogoURI  string      `json:"logoURI"`
	Location venue.Venue `json:"location"`
	LST      bool        `json:"lst"`
}

// NativeBalance is the owner's native SOL balance.
type NativeBalance struct {
	Lamports uint64
	UIAmount float64
}

// TokenAccount is one SPL token account owned by the vault.
type TokenAccount struct {
	Mint     string
	Pubkey   string
	Amount   uint64 // raw amount, base units
	UIAmount float64
	Decimals uint8
}

// SpotPosition is a spot balance held at an external venue. MarketIndex and
// Mint come from the venue's market config; the balance is already in ui
// units.
type SpotPosition struct {
	MarketIndex uint16
	Mint        string
	UIAmount    float64
	Decimals    uint8
}

// TokenMeta is the subset of token-list metadata the aggregator needs.
type TokenMeta struct {
	Name    string
	Symbol  string
	LogoURI string
	LST     bool
}

// MetadataSource resolves display metadata for a mint.
type MetadataSource interface {
	Lookup(mint string) (TokenMeta, bool)
}

// PriceSource resolves the current unit price for a mint.
type PriceSource interface {
	Price(mint string) (float64, bool)
}
