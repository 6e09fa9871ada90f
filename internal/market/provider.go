// Package market enriches token records with on-chain data from an
// ordered chain of external providers.
package market

import (
	"context"
	"errors"

	"memecoin-radar/internal/domain"
)

// ErrRateLimited signals that a provider answered with a rate-limit
// response. The enricher puts the provider on cool-down.
var ErrRateLimited = errors.New("provider rate limited")

// Provider looks up market data for a token symbol. The hint carries
// fields already merged from earlier providers in the chain, so
// address-keyed providers can run late in the order.
//
// A nil result with a nil error is a clean miss and does not
// short-circuit the chain.
type Provider interface {
	Name() string
	Lookup(ctx context.Context, symbol string, hint domain.PartialMarketInfo) (*domain.PartialMarketInfo, error)
}
