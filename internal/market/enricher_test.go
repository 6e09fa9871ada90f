package market

import (
	"bytes"
	"context"
	"log"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mr-tron/base58"

	"memecoin-radar/internal/backoff"
	"memecoin-radar/internal/domain"
)

func ptrF(v float64) *float64 { return &v }
func ptrI(v int) *int         { return &v }

type fakeProvider struct {
	name string
	info *domain.PartialMarketInfo
	err  error

	mu    sync.Mutex
	calls int
	hints []domain.PartialMarketInfo
}

func (p *fakeProvider) Name() string { return p.name }

func (p *fakeProvider) Lookup(ctx context.Context, symbol string, hint domain.PartialMarketInfo) (*domain.PartialMarketInfo, error) {
	p.mu.Lock()
	p.calls++
	p.hints = append(p.hints, hint)
	p.mu.Unlock()
	if p.err != nil {
		return nil, p.err
	}
	if p.info == nil {
		return nil, nil
	}
	cp := *p.info
	return &cp, nil
}

func (p *fakeProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func record(symbol string) *domain.TokenRecord {
	return &domain.TokenRecord{
		Symbol: symbol,
		Posts: []*domain.Post{
			{ID: 1, Title: "$" + symbol, Timestamp: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)},
		},
	}
}

func newTestEnricher(t *testing.T, providers ...Provider) *Enricher {
	t.Helper()
	e, err := NewEnricher(Options{Providers: providers, Parallelism: 2, CallTimeout: time.Second})
	if err != nil {
		t.Fatal(err)
	}
	return e
}

func TestEnricher_FallbackMergesEarliestWins(t *testing.T) {
	p1 := &fakeProvider{name: "one", info: &domain.PartialMarketInfo{Address: wrappedSOL, PriceUSD: ptrF(1.5)}}
	p2 := &fakeProvider{name: "two", info: &domain.PartialMarketInfo{Address: wrappedSOL, LogoURL: "logo-two"}}
	p3 := &fakeProvider{name: "three", info: &domain.PartialMarketInfo{Decimals: ptrI(9), LogoURL: "logo-three"}}

	e := newTestEnricher(t, p1, p2, p3)
	entries := e.Enrich(context.Background(), []*domain.TokenRecord{record("PEP")})
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}

	got := entries[0].PartialMarketInfo
	if got.Address != wrappedSOL {
		t.Errorf("address: got %q", got.Address)
	}
	if got.PriceUSD == nil || *got.PriceUSD != 1.5 {
		t.Errorf("price: got %v", got.PriceUSD)
	}
	if got.LogoURL != "logo-two" {
		t.Errorf("earliest provider with a logo must win, got %q", got.LogoURL)
	}
	if got.Decimals == nil || *got.Decimals != 9 {
		t.Errorf("decimals: got %v", got.Decimals)
	}
}

func TestEnricher_CompleteShortCircuits(t *testing.T) {
	full := &domain.PartialMarketInfo{
		Address: wrappedSOL, Chain: "solana",
		PriceUSD: ptrF(1), Change24h: ptrF(2),
		LogoURL: "logo", Decimals: ptrI(9),
	}
	p1 := &fakeProvider{name: "one", info: full}
	p2 := &fakeProvider{name: "two"}

	e := newTestEnricher(t, p1, p2)
	e.Enrich(context.Background(), []*domain.TokenRecord{record("PEP")})

	if p2.callCount() != 0 {
		t.Fatalf("chain must stop once the merge is complete, provider two called %d times", p2.callCount())
	}
}

func TestEnricher_AllMissStillEmitsEntries(t *testing.T) {
	p := &fakeProvider{name: "one"} // always a clean miss

	e := newTestEnricher(t, p)
	records := []*domain.TokenRecord{record("PEP"), record("BONK"), record("WIF")}
	entries := e.Enrich(context.Background(), records)

	if len(entries) != len(records) {
		t.Fatalf("expected one entry per record, got %d for %d", len(entries), len(records))
	}
	for i, entry := range entries {
		if entry.Symbol != records[i].Symbol {
			t.Errorf("entry %d: order not preserved, got %s want %s", i, entry.Symbol, records[i].Symbol)
		}
		if !entry.PartialMarketInfo.Empty() {
			t.Errorf("%s: expected empty market info, got %+v", entry.Symbol, entry.PartialMarketInfo)
		}
		if entry.LatestPost == nil {
			t.Errorf("%s: latest post not set", entry.Symbol)
		}
	}
}

func TestEnricher_RateLimitTriggersCooldown(t *testing.T) {
	p1 := &fakeProvider{name: "one", err: backoff.Permanent{Err: ErrRateLimited}}
	p2 := &fakeProvider{name: "two", info: &domain.PartialMarketInfo{LogoURL: "logo"}}

	e := newTestEnricher(t, p1, p2)
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	e.now = func() time.Time { return now }

	e.Enrich(context.Background(), []*domain.TokenRecord{record("PEP")})
	if p1.callCount() != 1 {
		t.Fatalf("first run: provider one called %d times", p1.callCount())
	}

	// Within the cool-down window the provider is skipped entirely.
	e.Enrich(context.Background(), []*domain.TokenRecord{record("BONK")})
	if p1.callCount() != 1 {
		t.Fatalf("cooling provider must be skipped, called %d times", p1.callCount())
	}
	if p2.callCount() != 2 {
		t.Fatalf("fallback provider should still serve, called %d times", p2.callCount())
	}

	// Past expiry the provider rejoins the chain.
	now = now.Add(31 * time.Second)
	e.Enrich(context.Background(), []*domain.TokenRecord{record("WIF")})
	if p1.callCount() != 2 {
		t.Fatalf("expired cool-down must readmit the provider, called %d times", p1.callCount())
	}
}

func TestEnricher_FlagsProgramDerivedAddress(t *testing.T) {
	// Roughly half of all 32-byte strings decode to a curve point, so a
	// handful of deterministic candidates always yields an off-curve one.
	var offCurve string
	for b := byte(0); b < 64 && offCurve == ""; b++ {
		raw := make([]byte, 32)
		raw[0] = b
		if s := base58.Encode(raw); !IsOnCurve(s) {
			offCurve = s
		}
	}
	if offCurve == "" {
		t.Fatal("no off-curve candidate found")
	}

	var buf bytes.Buffer
	p := &fakeProvider{name: "one", info: &domain.PartialMarketInfo{Address: offCurve, PriceUSD: ptrF(1)}}
	e, err := NewEnricher(Options{Providers: []Provider{p}, Logger: log.New(&buf, "", 0)})
	if err != nil {
		t.Fatal(err)
	}

	entries := e.Enrich(context.Background(), []*domain.TokenRecord{record("PEP")})
	if entries[0].Address != offCurve {
		t.Fatalf("derived address must still merge, got %q", entries[0].Address)
	}
	if !strings.Contains(buf.String(), "program derived") {
		t.Fatalf("expected a derived-address log line, got %q", buf.String())
	}
}

func TestEnricher_DiscardsMalformedAddress(t *testing.T) {
	p1 := &fakeProvider{name: "one", info: &domain.PartialMarketInfo{Address: "PEPCOIN", LogoURL: "logo"}}
	p2 := &fakeProvider{name: "two", info: &domain.PartialMarketInfo{Address: wrappedSOL}}

	e := newTestEnricher(t, p1, p2)
	entries := e.Enrich(context.Background(), []*domain.TokenRecord{record("PEP")})

	got := entries[0].PartialMarketInfo
	if got.Address != wrappedSOL {
		t.Fatalf("malformed address must be discarded so a later provider can fill it, got %q", got.Address)
	}
	if got.LogoURL != "logo" {
		t.Fatalf("other fields from the same provider survive, got %q", got.LogoURL)
	}
}

func TestEnricher_FailureDoesNotAbortChain(t *testing.T) {
	p1 := &fakeProvider{name: "one", err: backoff.Permanent{Err: context.DeadlineExceeded}}
	p2 := &fakeProvider{name: "two", info: &domain.PartialMarketInfo{Chain: "solana"}}

	e := newTestEnricher(t, p1, p2)
	entries := e.Enrich(context.Background(), []*domain.TokenRecord{record("PEP")})

	if entries[0].Chain != "solana" {
		t.Fatalf("chain must continue past a failing provider, got %+v", entries[0].PartialMarketInfo)
	}
}

func TestEnricher_HintCarriesMergedFields(t *testing.T) {
	// Address-keyed providers rely on the hint accumulated so far.
	p1 := &fakeProvider{name: "one", info: &domain.PartialMarketInfo{Address: wrappedSOL}}
	p2 := &fakeProvider{name: "two"}

	e := newTestEnricher(t, p1, p2)
	e.Enrich(context.Background(), []*domain.TokenRecord{record("PEP")})

	p2.mu.Lock()
	defer p2.mu.Unlock()
	if len(p2.hints) != 1 || p2.hints[0].Address != wrappedSOL {
		t.Fatalf("expected the merged address in the hint, got %+v", p2.hints)
	}
}

func TestEnricher_Deterministic(t *testing.T) {
	p1 := &fakeProvider{name: "one", info: &domain.PartialMarketInfo{Address: wrappedSOL, PriceUSD: ptrF(2)}}
	p2 := &fakeProvider{name: "two", info: &domain.PartialMarketInfo{LogoURL: "logo", Decimals: ptrI(6)}}
	records := []*domain.TokenRecord{record("A"), record("B"), record("C"), record("D")}

	e := newTestEnricher(t, p1, p2)
	first := e.Enrich(context.Background(), records)
	second := e.Enrich(context.Background(), records)

	for i := range first {
		if first[i].Symbol != second[i].Symbol {
			t.Fatalf("entry %d: order differs between runs", i)
		}
		if first[i].PartialMarketInfo != second[i].PartialMarketInfo {
			t.Fatalf("entry %d: market info differs between runs", i)
		}
	}
}
