// Command analyze runs one sentiment aggregation pass: posts are grouped
// by token symbol, scored, and written to the sentiment store.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"memecoin-radar/internal/config"
	"memecoin-radar/internal/sentiment"
	"memecoin-radar/internal/store"
)

func main() {
	config.LoadEnvFile()

	dataDir := flag.String("data-dir", config.EnvOr("DATA_DIR", "data"), "Directory for the JSON document stores")
	flag.Parse()

	logger := log.New(os.Stdout, "[analyze] ", log.LstdFlags)

	posts := store.NewPostStore(filepath.Join(*dataDir, config.PostsFile))
	out := store.NewSentimentStore(filepath.Join(*dataDir, config.SentimentFile))

	aggregator := sentiment.New(sentiment.DefaultScorer(), sentiment.DefaultConfig(), logger)
	if err := aggregator.Run(posts, out); err != nil {
		logger.Fatalf("aggregate: %v", err)
	}

	records, err := out.Load()
	if err != nil {
		logger.Fatalf("read back sentiment: %v", err)
	}
	fmt.Printf("analyze finished: %d token records\n", len(records))
}
