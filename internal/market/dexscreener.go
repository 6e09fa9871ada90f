package market

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"memecoin-radar/internal/domain"
)

// DefaultDexScreenerBaseURL is the public DexScreener API endpoint.
const DefaultDexScreenerBaseURL = "https://api.dexscreener.com"

// DexScreener searches trading pairs by symbol. No credential required.
// Public rate limit is 300 req/min; the limiter stays well under it.
type DexScreener struct {
	baseURL string
	chain   string
	client  *http.Client
	limiter *rate.Limiter
}

var _ Provider = (*DexScreener)(nil)

// NewDexScreener creates the provider. Empty arguments select defaults
// (public endpoint, solana chain).
func NewDexScreener(baseURL, chain string) *DexScreener {
	if baseURL == "" {
		baseURL = DefaultDexScreenerBaseURL
	}
	if chain == "" {
		chain = "solana"
	}
	return &DexScreener{
		baseURL: baseURL,
		chain:   chain,
		client:  &http.Client{Timeout: 15 * time.Second},
		limiter: rate.NewLimiter(rate.Limit(4), 1),
	}
}

// Name implements Provider.
func (d *DexScreener) Name() string { return "dexscreener" }

type dexPair struct {
	ChainID   string `json:"chainId"`
	BaseToken struct {
		Address string `json:"address"`
		Symbol  string `json:"symbol"`
	} `json:"baseToken"`
	PriceUSD    string `json:"priceUsd"`
	PriceChange struct {
		H24 float64 `json:"h24"`
	} `json:"priceChange"`
	Info struct {
		ImageURL string `json:"imageUrl"`
	} `json:"info"`
	Liquidity struct {
		USD float64 `json:"usd"`
	} `json:"liquidity"`
}

// Lookup searches pairs for the symbol and takes the first pair on the
// configured chain whose base token matches.
func (d *DexScreener) Lookup(ctx context.Context, symbol string, _ domain.PartialMarketInfo) (*domain.PartialMarketInfo, error) {
	if err := d.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	endpoint := d.baseURL + "/latest/dex/search?q=" + url.QueryEscape(symbol)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	var result struct {
		Pairs []dexPair `json:"pairs"`
	}
	if err := getJSON(d.client, req, &result); err != nil {
		return nil, err
	}

	for _, pair := range result.Pairs {
		if pair.ChainID != d.chain {
			continue
		}
		if !strings.EqualFold(pair.BaseToken.Symbol, symbol) {
			continue
		}
		info := &domain.PartialMarketInfo{
			Address: pair.BaseToken.Address,
			Chain:   pair.ChainID,
			LogoURL: pair.Info.ImageURL,
		}
		if price, err := strconv.ParseFloat(pair.PriceUSD, 64); err == nil && price >= 0 {
			info.PriceUSD = &price
		}
		change := pair.PriceChange.H24
		info.Change24h = &change
		return info, nil
	}
	return nil, nil
}
