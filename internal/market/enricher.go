package market

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"memecoin-radar/internal/backoff"
	"memecoin-radar/internal/domain"
	"memecoin-radar/internal/observability"
	"memecoin-radar/internal/store"
)

// Options configures an Enricher.
type Options struct {
	// Providers is the ordered fallback chain. Earlier providers win on
	// merge conflicts.
	Providers []Provider

	Parallelism int           // concurrent symbol lookups, default 4
	CallTimeout time.Duration // per provider call, default 10s
	Cooldown    time.Duration // rate-limit cool-down, default 30s

	Logger *log.Logger
}

// Enricher walks the provider chain for every token record and emits one
// CoinEntry per record, enriched or not.
type Enricher struct {
	opts   Options
	logger *log.Logger

	mu      sync.Mutex
	coolOff map[string]time.Time // provider name -> cool-down expiry
	now     func() time.Time
}

// NewEnricher creates an Enricher.
func NewEnricher(opts Options) (*Enricher, error) {
	if len(opts.Providers) == 0 {
		return nil, fmt.Errorf("at least one provider is required")
	}
	if opts.Parallelism <= 0 {
		opts.Parallelism = 4
	}
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = 10 * time.Second
	}
	if opts.Cooldown <= 0 {
		opts.Cooldown = 30 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	return &Enricher{
		opts:    opts,
		logger:  opts.Logger,
		coolOff: make(map[string]time.Time),
		now:     time.Now,
	}, nil
}

// Run loads the sentiment store, enriches every record, and atomically
// replaces the coin store.
func (e *Enricher) Run(ctx context.Context, in *store.SentimentStore, out *store.CoinStore) error {
	records, err := in.Load()
	if err != nil {
		return fmt.Errorf("load sentiment: %w", err)
	}

	entries := e.Enrich(ctx, records)
	if err := out.Replace(entries); err != nil {
		return fmt.Errorf("write coins: %w", err)
	}
	e.logger.Printf("[enrich] wrote %d coin entries", len(entries))
	return nil
}

// Enrich produces one CoinEntry per record, in input order. Symbols are
// looked up concurrently; per-symbol results are deterministic because
// the provider chain order is fixed.
func (e *Enricher) Enrich(ctx context.Context, records []*domain.TokenRecord) []*domain.CoinEntry {
	entries := make([]*domain.CoinEntry, len(records))
	sem := make(chan struct{}, e.opts.Parallelism)
	var wg sync.WaitGroup

	for i, rec := range records {
		wg.Add(1)
		go func(i int, rec *domain.TokenRecord) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				entries[i] = e.entryFor(rec, domain.PartialMarketInfo{})
				return
			}
			defer func() { <-sem }()

			entries[i] = e.entryFor(rec, e.lookupChain(ctx, rec.Symbol))
			observability.RecordCoinEnriched()
		}(i, rec)
	}
	wg.Wait()
	return entries
}

// lookupChain consults providers in order, merging field-by-field with
// earliest-provider-wins. Misses and failures never abort the chain.
func (e *Enricher) lookupChain(ctx context.Context, symbol string) domain.PartialMarketInfo {
	var merged domain.PartialMarketInfo

	for _, p := range e.opts.Providers {
		if merged.Complete() {
			break
		}
		if e.coolingDown(p.Name()) {
			observability.RecordProviderCall(p.Name(), "skipped", 0)
			continue
		}

		info, err := e.lookupOne(ctx, p, symbol, merged)
		if err != nil {
			if errors.Is(err, ErrRateLimited) {
				e.startCooldown(p.Name())
				e.logger.Printf("[enrich] %s rate limited, cooling down %v", p.Name(), e.opts.Cooldown)
				continue
			}
			if errors.Is(err, context.Canceled) {
				break
			}
			e.logger.Printf("[enrich] %s(%s): %v", p.Name(), symbol, err)
			continue
		}
		if info == nil || info.Empty() {
			continue
		}
		if info.Address != "" {
			switch {
			case !IsValidAddress(info.Address):
				e.logger.Printf("[enrich] %s(%s): discarding malformed address %q", p.Name(), symbol, info.Address)
				info.Address = ""
			case merged.Address == "" && !IsOnCurve(info.Address):
				// Off-curve means program derived: likely a pool or vault
				// account rather than the mint itself.
				e.logger.Printf("[enrich] %s(%s): address %s is program derived", p.Name(), symbol, info.Address)
				observability.RecordDerivedAddress(p.Name())
			}
		}
		merged.Merge(*info)
	}
	return merged
}

func (e *Enricher) lookupOne(ctx context.Context, p Provider, symbol string, hint domain.PartialMarketInfo) (*domain.PartialMarketInfo, error) {
	start := e.now()
	var info *domain.PartialMarketInfo

	err := backoff.Do(ctx, backoff.Default(), func(ctx context.Context) error {
		callCtx, cancel := context.WithTimeout(ctx, e.opts.CallTimeout)
		defer cancel()

		var err error
		info, err = p.Lookup(callCtx, symbol, hint)
		return err
	})

	elapsed := e.now().Sub(start).Seconds()
	switch {
	case errors.Is(err, ErrRateLimited):
		observability.RecordProviderCall(p.Name(), "rate_limited", elapsed)
	case err != nil:
		observability.RecordProviderCall(p.Name(), "error", elapsed)
	case info == nil || info.Empty():
		observability.RecordProviderCall(p.Name(), "miss", elapsed)
	default:
		observability.RecordProviderCall(p.Name(), "hit", elapsed)
	}
	return info, err
}

func (e *Enricher) entryFor(rec *domain.TokenRecord, market domain.PartialMarketInfo) *domain.CoinEntry {
	return &domain.CoinEntry{
		TokenRecord:       *rec,
		PartialMarketInfo: market,
		LatestPost:        rec.LatestPost(),
	}
}

func (e *Enricher) coolingDown(provider string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	expiry, ok := e.coolOff[provider]
	if !ok {
		return false
	}
	if e.now().After(expiry) {
		delete(e.coolOff, provider)
		observability.SetProviderCooldown(provider, false)
		return false
	}
	return true
}

func (e *Enricher) startCooldown(provider string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.coolOff[provider] = e.now().Add(e.opts.Cooldown)
	observability.SetProviderCooldown(provider, true)
}
