// Package quote fetches and caches swap quotes from the routing service.
package quote

import "encoding/json"

// SwapMode selects which side of the trade is fixed.
type SwapMode string

const (
	// ExactIn fixes the input amount; the quote proposes the output.
	ExactIn SwapMode = "ExactIn"
	// ExactOut fixes the output amount; not every pair supports it.
	ExactOut SwapMode = "ExactOut"
)

// Params is one fully specified quote request. Two Params are considered the
// same request iff their canonical serializations match, so field order here
// is part of the cache contract.
type Params struct {
	InputMint           string   `json:"inputMint"`
	OutputMint          string   `json:"outputMint"`
	Amount              uint64   `json:"amount"`
	SwapMode            SwapMode `json:"swapMode"`
	SlippageBps         int      `json:"slippageBps"`
	Dexes               []string `json:"dexes,omitempty"`
	OnlyDirectRoutes    bool     `json:"onlyDirectRoutes"`
	MaxAccounts         int      `json:"maxAccounts,omitempty"`
	AsLegacyTransaction bool     `json:"asLegacyTransaction"`
}

// Key returns the canonical serialized form used for cache equality.
func (p Params) Key() string {
	// Struct fields marshal in declaration order, which makes this a
	// stable, order-sensitive comparison key.
	b, err := json.Marshal(p)
	if err != nil {
		return ""
	}
	return string(b)
}

// RouteStep is one hop of the proposed route.
type RouteStep struct {
	AMMKey     string `json:"ammKey"`
	Label      string `json:"label"`
	InputMint  string `json:"inputMint"`
	OutputMint string `json:"outputMint"`
	InAmount   string `json:"inAmount"`
	OutAmount  string `json:"outAmount"`
	FeeAmount  string `json:"feeAmount"`
	FeeMint    string `json:"feeMint"`
	Percent    uint8  `json:"percent"`
}

// Response is the routing service's quote for a Params. It is only valid for
// the exact parameters it was requested with.
type Response struct {
	InputMint            string      `json:"inputMint"`
	InAmount             string      `json:"inAmount"`
	OutputMint           string      `json:"outputMint"`
	OutAmount            string      `json:"outAmount"`
	OtherAmountThreshold string      `json:"otherAmountThreshold"`
	SwapMode             SwapMode    `json:"swapMode"`
	SlippageBps          int         `json:"slippageBps"`
	PriceImpactPct       string      `json:"priceImpactPct"`
	RoutePlan            []RouteStep `json:"routePlan"`
	ContextSlot          uint64      `json:"contextSlot"`
	TimeTaken            float64     `json:"timeTaken"`
}
