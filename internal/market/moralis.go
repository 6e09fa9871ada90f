package market

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"memecoin-radar/internal/domain"
)

// DefaultMoralisBaseURL is the Moralis Solana gateway endpoint.
const DefaultMoralisBaseURL = "https://solana-gateway.moralis.io"

// Moralis fetches token metadata and price by mint address. It is keyed
// by address, not symbol, so it only contributes when an earlier provider
// in the chain already resolved the address.
type Moralis struct {
	apiKey  string
	baseURL string
	network string
	client  *http.Client
	limiter *rate.Limiter
}

var _ Provider = (*Moralis)(nil)

// NewMoralis creates the provider. The API key is required; construction
// is skipped entirely when the credential is absent.
func NewMoralis(apiKey, baseURL string) *Moralis {
	if baseURL == "" {
		baseURL = DefaultMoralisBaseURL
	}
	return &Moralis{
		apiKey:  apiKey,
		baseURL: baseURL,
		network: "mainnet",
		client:  &http.Client{Timeout: 15 * time.Second},
		limiter: rate.NewLimiter(rate.Limit(2), 1),
	}
}

// Name implements Provider.
func (m *Moralis) Name() string { return "moralis" }

// Lookup queries metadata and price for the address in the hint. Without
// an address this is a clean miss.
func (m *Moralis) Lookup(ctx context.Context, symbol string, hint domain.PartialMarketInfo) (*domain.PartialMarketInfo, error) {
	if hint.Address == "" || !IsValidAddress(hint.Address) {
		return nil, nil
	}

	info := &domain.PartialMarketInfo{Chain: "solana"}

	var meta struct {
		Decimals string `json:"decimals"`
		Logo     string `json:"logo"`
	}
	if err := m.get(ctx, "/token/"+m.network+"/"+hint.Address+"/metadata", &meta); err != nil {
		return nil, err
	}
	if d, err := strconv.Atoi(meta.Decimals); err == nil {
		info.Decimals = &d
	}
	info.LogoURL = meta.Logo

	var price struct {
		USDPrice        float64  `json:"usdPrice"`
		PercentChange24 *float64 `json:"usdPrice24hrPercentChange"`
	}
	if err := m.get(ctx, "/token/"+m.network+"/"+hint.Address+"/price", &price); err == nil {
		if price.USDPrice >= 0 {
			p := price.USDPrice
			info.PriceUSD = &p
		}
		info.Change24h = price.PercentChange24
	}

	if info.Empty() {
		return nil, nil
	}
	return info, nil
}

func (m *Moralis) get(ctx context.Context, path string, out any) error {
	if err := m.limiter.Wait(ctx); err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("X-API-Key", m.apiKey)
	req.Header.Set("Accept", "application/json")
	return getJSON(m.client, req, out)
}
