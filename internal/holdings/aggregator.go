package holdings

import (
	"math"
	"sort"
	"strconv"

	"github.com/openvaults/vaultdash/internal/venue"
)

// Aggregate merges the native balance, SPL token accounts and external spot
// positions into one sorted list of rows.
//
// The function is pure: it never errors and touches no shared state, so it is
// safe to rerun on every refresh. A metadata miss falls back to the mint
// string, a price miss to zero, so the row count always matches the true
// account count.
func Aggregate(native NativeBalance, accounts []TokenAccount, positions []SpotPosition, meta MetadataSource, prices PriceSource) []Holding {
	rows := make([]Holding, 0, 1+len(accounts)+len(positions))

	if native.Lamports > 0 {
		// Native SOL has no mint or token account; price comes via wSOL.
		price := lookupPrice(prices, WSOLMint)
		rows = append(rows, Holding{
			Name:     "Solana",
			Symbol:   "SOL",
			Mint:     "",
			ATA:      "",
			Price:    price,
			Amount:   strconv.FormatUint(native.Lamports, 10),
			Balance:  native.UIAmount,
			Decimals: 9,
			Notional: native.UIAmount * price,
			Location: venue.VenueVault,
		})
	}

	for _, acc := range accounts {
		m, ok := meta.Lookup(acc.Mint)
		if !ok {
			m = TokenMeta{Name: acc.Mint, Symbol: acc.Mint}
		}
		// The native row already claims "SOL"; relabel the wrapped
		// token so both can coexist in the table.
		if m.Symbol == "SOL" {
			m.Symbol = "wSOL"
		}
		price := lookupPrice(prices, acc.Mint)
		rows = append(rows, Holding{
			Name:     m.Name,
			Symbol:   m.Symbol,
			Mint:     acc.Mint,
			ATA:      acc.Pubkey,
			Price:    price,
			Amount:   strconv.FormatUint(acc.Amount, 10),
			Balance:  acc.UIAmount,
			Decimals: acc.Decimals,
			Notional: acc.UIAmount * price,
			LogoURI:  m.LogoURI,
			Location: venue.VenueVault,
			LST:      m.LST,
		})
	}

	for _, pos := range positions {
		m, ok := meta.Lookup(pos.Mint)
		if !ok {
			m = TokenMeta{Name: pos.Mint, Symbol: pos.Mint}
		}
		price := lookupPrice(prices, pos.Mint)
		rows = append(rows, Holding{
			Name:     m.Name,
			Symbol:   m.Symbol,
			Mint:     NAMint,
			ATA:      NAMint,
			Price:    price,
			// Spot balances can be negative (a borrow), so the raw
			// amount is signed.
			Amount:   strconv.FormatInt(int64(math.Round(pos.UIAmount*pow10(pos.Decimals))), 10),
			Balance:  pos.UIAmount,
			Decimals: pos.Decimals,
			Notional: pos.UIAmount * price,
			LogoURI:  m.LogoURI,
			Location: venue.VenueDrift,
			LST:      m.LST,
		})
	}

	// Venues group together (location descending puts vault before drift),
	// largest balances first within a venue. Stable sort keeps insertion
	// order on ties.
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].Location != rows[j].Location {
			return rows[i].Location > rows[j].Location
		}
		return rows[i].Balance > rows[j].Balance
	})

	return rows
}

func lookupPrice(prices PriceSource, mint string) float64 {
	if prices == nil {
		return 0
	}
	p, ok := prices.Price(mint)
	if !ok {
		return 0
	}
	return p
}

func pow10(n uint8) float64 {
	out := 1.0
	for i := uint8(0); i < n; i++ {
		out *= 10
	}
	return out
}
