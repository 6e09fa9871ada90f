// Command enrich runs one market enrichment pass: every token record gets
// a CoinEntry with whatever on-chain data the provider chain supplied.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"memecoin-radar/internal/config"
	"memecoin-radar/internal/market"
	"memecoin-radar/internal/store"
)

func main() {
	config.LoadEnvFile()

	dataDir := flag.String("data-dir", config.EnvOr("DATA_DIR", "data"), "Directory for the JSON document stores")
	parallelism := flag.Int("parallelism", config.EnvIntOr("ENRICH_PARALLELISM", 4), "Concurrent symbol lookups")
	callTimeout := flag.Duration("call-timeout", config.EnvDurationOr("PROVIDER_TIMEOUT", 10*time.Second), "Per provider call timeout")
	cooldown := flag.Duration("cooldown", config.EnvDurationOr("PROVIDER_COOLDOWN", 30*time.Second), "Rate-limit cool-down per provider")
	flag.Parse()

	logger := log.New(os.Stdout, "[enrich] ", log.LstdFlags)

	// Ordered fallback chain. Moralis is keyed by address, so it runs
	// last and is skipped entirely without its credential.
	providers := []market.Provider{
		market.NewDexScreener("", ""),
		market.NewJupiter(""),
	}
	if key := os.Getenv(config.EnvMoralisKey); key != "" {
		providers = append(providers, market.NewMoralis(key, ""))
	} else {
		logger.Printf("%s not set, moralis provider disabled", config.EnvMoralisKey)
	}

	enricher, err := market.NewEnricher(market.Options{
		Providers:   providers,
		Parallelism: *parallelism,
		CallTimeout: *callTimeout,
		Cooldown:    *cooldown,
		Logger:      logger,
	})
	if err != nil {
		logger.Fatalf("create enricher: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	in := store.NewSentimentStore(filepath.Join(*dataDir, config.SentimentFile))
	out := store.NewCoinStore(filepath.Join(*dataDir, config.CoinsFile))

	if err := enricher.Run(ctx, in, out); err != nil {
		logger.Fatalf("enrich: %v", err)
	}

	entries, err := out.Load()
	if err != nil {
		logger.Fatalf("read back coins: %v", err)
	}
	fmt.Printf("enrich finished: %d coin entries\n", len(entries))
}
