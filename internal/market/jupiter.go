package market

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"memecoin-radar/internal/domain"
)

// DefaultJupiterBaseURL is the Jupiter token registry endpoint.
const DefaultJupiterBaseURL = "https://tokens.jup.ag"

// Jupiter resolves symbols against the Jupiter verified token list. The
// list is fetched once and cached; lookups after the first are local.
type Jupiter struct {
	baseURL string
	ttl     time.Duration
	client  *http.Client
	limiter *rate.Limiter

	mu        sync.Mutex
	bySymbol  map[string]jupToken
	fetchedAt time.Time
}

var _ Provider = (*Jupiter)(nil)

// NewJupiter creates the provider with a 10 minute list cache.
func NewJupiter(baseURL string) *Jupiter {
	if baseURL == "" {
		baseURL = DefaultJupiterBaseURL
	}
	return &Jupiter{
		baseURL: baseURL,
		ttl:     10 * time.Minute,
		client:  &http.Client{Timeout: 30 * time.Second},
		limiter: rate.NewLimiter(rate.Limit(1), 1),
	}
}

// Name implements Provider.
func (j *Jupiter) Name() string { return "jupiter" }

type jupToken struct {
	Address  string `json:"address"`
	Symbol   string `json:"symbol"`
	Decimals int    `json:"decimals"`
	LogoURI  string `json:"logoURI"`
}

// Lookup finds the symbol in the cached token list. The registry carries
// no price data; only address, decimals and logo come from here.
func (j *Jupiter) Lookup(ctx context.Context, symbol string, _ domain.PartialMarketInfo) (*domain.PartialMarketInfo, error) {
	tokens, err := j.tokenList(ctx)
	if err != nil {
		return nil, err
	}

	tok, ok := tokens[strings.ToUpper(symbol)]
	if !ok {
		return nil, nil
	}

	decimals := tok.Decimals
	return &domain.PartialMarketInfo{
		Address:  tok.Address,
		Chain:    "solana",
		LogoURL:  tok.LogoURI,
		Decimals: &decimals,
	}, nil
}

func (j *Jupiter) tokenList(ctx context.Context) (map[string]jupToken, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.bySymbol != nil && time.Since(j.fetchedAt) < j.ttl {
		return j.bySymbol, nil
	}

	if err := j.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, j.baseURL+"/tokens?tags=verified", nil)
	if err != nil {
		return nil, err
	}

	var list []jupToken
	if err := getJSON(j.client, req, &list); err != nil {
		// Keep serving a stale list over failing every lookup.
		if j.bySymbol != nil {
			return j.bySymbol, nil
		}
		return nil, err
	}

	bySymbol := make(map[string]jupToken, len(list))
	for _, tok := range list {
		key := strings.ToUpper(tok.Symbol)
		// First occurrence wins; the list orders canonical tokens first.
		if _, exists := bySymbol[key]; !exists {
			bySymbol[key] = tok
		}
	}
	j.bySymbol = bySymbol
	j.fetchedAt = time.Now()
	return bySymbol, nil
}
