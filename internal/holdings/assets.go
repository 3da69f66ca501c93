package holdings

import "github.com/openvaults/vaultdash/internal/venue"

// Asset is one selectable option in an amount-input picker: token-list
// metadata plus the live vault balance for that mint.
type Asset struct {
	Name     string  `json:"name"`
	Symbol   string  `json:"symbol"`
	Address  string  `json:"address"`
	Decimals uint8   `json:"decimals"`
	Balance  float64 `json:"balance"`
}

// ListedToken is a token-list entry used to build picker options.
type ListedToken struct {
	Address  string
	Name     string
	Symbol   string
	Decimals uint8
}

// PickerAssets pairs every listed token with its current vault balance.
// Tokens the vault does not hold get a zero balance rather than being
// dropped, so the picker always offers the full list. The native SOL row is
// surfaced under the wSOL address since that is what a swap consumes.
func PickerAssets(list []ListedToken, rows []Holding) []Asset {
	balances := make(map[string]float64, len(rows))
	for _, row := range rows {
		if row.Location != venue.VenueVault {
			continue
		}
		mint := row.Mint
		if mint == "" {
			mint = WSOLMint
		}
		balances[mint] += row.Balance
	}

	assets := make([]Asset, 0, len(list))
	for _, tok := range list {
		assets = append(assets, Asset{
			Name:     tok.Name,
			Symbol:   tok.Symbol,
			Address:  tok.Address,
			Decimals: tok.Decimals,
			Balance:  balances[tok.Address],
		})
	}
	return assets
}
