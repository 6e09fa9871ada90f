package archive

import (
	"context"
	"fmt"
	"log"
	"time"

	"memecoin-radar/internal/eventbus"
	"memecoin-radar/internal/store"
)

// Archiver mirrors the JSON stores into the archives after each pipeline
// pass. It listens for coinsUpdated events and syncs on each one.
type Archiver struct {
	posts     *store.PostStore
	sentiment *store.SentimentStore
	postDB    PostArchive     // optional
	snapDB    SnapshotArchive // optional
	logger    *log.Logger
}

// NewArchiver creates an Archiver. Either archive may be nil.
func NewArchiver(posts *store.PostStore, sentiment *store.SentimentStore, postDB PostArchive, snapDB SnapshotArchive, logger *log.Logger) *Archiver {
	if logger == nil {
		logger = log.Default()
	}
	return &Archiver{
		posts:     posts,
		sentiment: sentiment,
		postDB:    postDB,
		snapDB:    snapDB,
		logger:    logger,
	}
}

// Enabled reports whether any archive backend is configured.
func (a *Archiver) Enabled() bool {
	return a.postDB != nil || a.snapDB != nil
}

// Run subscribes to the bus and syncs after every completed pipeline
// pass. Blocks until the context is cancelled.
func (a *Archiver) Run(ctx context.Context, bus *eventbus.Bus) {
	if !a.Enabled() {
		<-ctx.Done()
		return
	}

	sub := bus.Subscribe()
	defer bus.Unsubscribe(sub)

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.C():
			if !ok {
				return
			}
			if ev.Type != eventbus.TypeCoinsUpdated {
				continue
			}
			if err := a.Sync(ctx); err != nil {
				a.logger.Printf("[archive] sync: %v", err)
			}
		}
	}
}

// Sync pushes the current store contents into the configured archives.
func (a *Archiver) Sync(ctx context.Context) error {
	runAt := time.Now().UTC()

	if a.postDB != nil {
		posts, err := a.posts.Load()
		if err != nil {
			return fmt.Errorf("load posts: %w", err)
		}
		inserted, err := a.postDB.InsertPosts(ctx, posts)
		if err != nil {
			return fmt.Errorf("archive posts: %w", err)
		}
		a.logger.Printf("[archive] archived %d new posts (%d total in pass)", inserted, len(posts))
	}

	if a.snapDB != nil {
		records, err := a.sentiment.Load()
		if err != nil {
			return fmt.Errorf("load sentiment: %w", err)
		}
		if err := a.snapDB.InsertSnapshots(ctx, runAt, records); err != nil {
			return fmt.Errorf("archive snapshots: %w", err)
		}
		a.logger.Printf("[archive] recorded %d sentiment snapshots", len(records))
	}
	return nil
}
