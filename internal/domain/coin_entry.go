package domain

// PartialMarketInfo is whatever subset of market data one provider returned.
// Zero values mean "not supplied"; the enricher merges field-by-field.
type PartialMarketInfo struct {
	Address   string   `json:"address,omitempty"`
	Chain     string   `json:"chain,omitempty"`
	PriceUSD  *float64 `json:"price_usd,omitempty"`
	Change24h *float64 `json:"change_24h,omitempty"`
	LogoURL   string   `json:"logo_url,omitempty"`
	Decimals  *int     `json:"decimals,omitempty"`
}

// Empty reports whether the provider supplied nothing at all.
func (m PartialMarketInfo) Empty() bool {
	return m.Address == "" && m.Chain == "" && m.PriceUSD == nil &&
		m.Change24h == nil && m.LogoURL == "" && m.Decimals == nil
}

// Merge fills fields of m that are still unset from other.
// Earlier providers win: merging never overwrites a present value.
func (m *PartialMarketInfo) Merge(other PartialMarketInfo) {
	if m.Address == "" {
		m.Address = other.Address
	}
	if m.Chain == "" {
		m.Chain = other.Chain
	}
	if m.PriceUSD == nil {
		m.PriceUSD = other.PriceUSD
	}
	if m.Change24h == nil {
		m.Change24h = other.Change24h
	}
	if m.LogoURL == "" {
		m.LogoURL = other.LogoURL
	}
	if m.Decimals == nil {
		m.Decimals = other.Decimals
	}
}

// Complete reports whether every field the provider chain can supply is present.
func (m PartialMarketInfo) Complete() bool {
	return m.Address != "" && m.Chain != "" && m.PriceUSD != nil &&
		m.Change24h != nil && m.LogoURL != "" && m.Decimals != nil
}

// CoinEntry is a TokenRecord plus any on-chain market data retrieved for it.
// Corresponds to one element of coin-data.json. One entry is emitted per
// token record even when every provider missed.
type CoinEntry struct {
	TokenRecord
	PartialMarketInfo
	LatestPost *Post `json:"latest_post,omitempty"`
}
