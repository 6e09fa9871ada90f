// Package main provides the pipeline server that runs all components
// together:
// - Control plane (HTTP): start/stop/status for the scraper stage
// - Supervision: scrape → analyze → enrich as child processes
// - Streaming: post store changes and stage logs fan out over /ws
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"memecoin-radar/internal/archive"
	chstore "memecoin-radar/internal/archive/clickhouse"
	"memecoin-radar/internal/archive/migrations"
	pgstore "memecoin-radar/internal/archive/postgres"
	"memecoin-radar/internal/config"
	"memecoin-radar/internal/eventbus"
	"memecoin-radar/internal/httpapi"
	"memecoin-radar/internal/store"
	"memecoin-radar/internal/supervisor"
	"memecoin-radar/internal/watch"
)

func main() {
	// Load .env file if exists
	config.LoadEnvFile()

	// Parse flags (env vars as defaults)
	addr := flag.String("addr", config.EnvOr("HTTP_ADDR", ":8080"), "HTTP listen address")
	dataDir := flag.String("data-dir", config.EnvOr("DATA_DIR", "data"), "Directory for the JSON document stores")
	stageBinDir := flag.String("stage-bin-dir", config.EnvOr("STAGE_BIN_DIR", ""), "Directory holding the scrape/analyze/enrich binaries (default: alongside this binary)")
	debounce := flag.Duration("debounce", config.EnvDurationOr("DEBOUNCE_WINDOW", supervisor.DefaultDebounceWindow), "Quiet period before file changes trigger processing")
	postgresDSN := flag.String("postgres-dsn", os.Getenv(config.EnvPostgresDSN), "PostgreSQL DSN for the post archive (optional)")
	clickhouseDSN := flag.String("clickhouse-dsn", os.Getenv(config.EnvClickHouseDSN), "ClickHouse DSN for sentiment snapshots (optional)")
	flag.Parse()

	// Setup logger
	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lshortfile)

	binDir := *stageBinDir
	if binDir == "" {
		exe, err := os.Executable()
		if err != nil {
			logger.Fatalf("Failed to locate executable: %v", err)
		}
		binDir = filepath.Dir(exe)
	}

	if err := os.MkdirAll(*dataDir, 0o755); err != nil {
		logger.Fatalf("Failed to create data dir: %v", err)
	}

	// Stores
	posts := store.NewPostStore(filepath.Join(*dataDir, config.PostsFile))
	sentimentStore := store.NewSentimentStore(filepath.Join(*dataDir, config.SentimentFile))
	coins := store.NewCoinStore(filepath.Join(*dataDir, config.CoinsFile))

	// Event bus and post store watcher
	bus := eventbus.New(0)
	watcher, err := watch.New(posts.Path(), logger)
	if err != nil {
		logger.Fatalf("Failed to create watcher: %v", err)
	}
	defer watcher.Close()

	// Child-process stages. The downstream sentiment and coin files are
	// deliberately not watched; only the post store drives re-runs.
	stageEnv := []string{"DATA_DIR=" + *dataDir}
	newStage := func(name string) *supervisor.ExecStage {
		s := supervisor.NewExecStage(name, filepath.Join(binDir, name), "-data-dir", *dataDir)
		s.Env = stageEnv
		s.Logger = logger
		return s
	}

	sup, err := supervisor.New(supervisor.Options{
		Scraper:        newStage("scrape"),
		Analyzer:       newStage("analyze"),
		Enricher:       newStage("enrich"),
		Posts:          posts,
		Coins:          coins,
		Bus:            bus,
		Watcher:        watcher,
		DebounceWindow: *debounce,
		Logger:         logger,
	})
	if err != nil {
		logger.Fatalf("Failed to create supervisor: %v", err)
	}

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Optional database archives
	archiver, cleanup, err := createArchiver(ctx, posts, sentimentStore, *postgresDSN, *clickhouseDSN, logger)
	if err != nil {
		logger.Fatalf("Failed to set up archives: %v", err)
	}
	defer cleanup()

	api, err := httpapi.New(httpapi.Options{
		Addr:       *addr,
		Supervisor: sup,
		Posts:      posts,
		Bus:        bus,
		Logger:     logger,
	})
	if err != nil {
		logger.Fatalf("Failed to create HTTP server: %v", err)
	}

	// Channel to signal completion
	done := make(chan struct{})

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		logger.Printf("Received signal %v, initiating graceful shutdown...", sig)
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := api.Shutdown(shutdownCtx); err != nil {
			logger.Printf("HTTP shutdown: %v", err)
		}

		// Wait for second signal for immediate shutdown
		select {
		case sig := <-sigCh:
			logger.Printf("Received second signal %v, forcing immediate shutdown", sig)
			os.Exit(1)
		case <-time.After(30 * time.Second):
			logger.Println("Graceful shutdown timed out after 30s, forcing exit")
			os.Exit(1)
		case <-done:
			// Normal shutdown completed
		}
	}()

	go sup.Run(ctx)
	if archiver.Enabled() {
		go archiver.Run(ctx, bus)
	}

	if err := api.ListenAndServe(); err != nil {
		logger.Fatalf("HTTP server error: %v", err)
	}
	close(done)

	logger.Println("Shutdown complete")
}

// createArchiver connects the optional database archives and applies
// their migrations. Missing DSNs simply disable the corresponding
// archive.
func createArchiver(ctx context.Context, posts *store.PostStore, sentimentStore *store.SentimentStore, postgresDSN, clickhouseDSN string, logger *log.Logger) (*archive.Archiver, func(), error) {
	var postDB archive.PostArchive
	var snapDB archive.SnapshotArchive
	var cleanups []func()
	cleanup := func() {
		for _, fn := range cleanups {
			fn()
		}
	}

	if postgresDSN != "" {
		pool, err := pgstore.NewPool(ctx, postgresDSN)
		if err != nil {
			return nil, cleanup, err
		}
		cleanups = append(cleanups, pool.Close)
		if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
			return nil, cleanup, err
		}
		postDB = pgstore.NewPostArchive(pool)
		logger.Println("Postgres post archive enabled")
	}

	if clickhouseDSN != "" {
		conn, err := chstore.NewConn(ctx, clickhouseDSN)
		if err != nil {
			return nil, cleanup, err
		}
		cleanups = append(cleanups, func() { conn.Close() })
		if err := migrations.RunClickhouseMigrations(ctx, conn); err != nil {
			return nil, cleanup, err
		}
		snapDB = chstore.NewSnapshotStore(conn)
		logger.Println("ClickHouse sentiment snapshot archive enabled")
	}

	return archive.NewArchiver(posts, sentimentStore, postDB, snapDB, logger), cleanup, nil
}
