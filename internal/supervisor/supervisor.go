// Package supervisor sequences the scrape, analyze and enrich stages,
// enforces at-most-one execution, and reacts to post store changes with
// debounced pipeline re-runs.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log"
	"regexp"
	"sync"
	"time"

	"memecoin-radar/internal/eventbus"
	"memecoin-radar/internal/observability"
	"memecoin-radar/internal/store"
	"memecoin-radar/internal/watch"
)

// State is the supervisor's externally visible condition.
type State string

const (
	StateIdle       State = "idle"
	StateScraping   State = "scraping"
	StateProcessing State = "processing"
)

// ErrBusy rejects a start while a stage is already running.
var ErrBusy = errors.New("pipeline already running")

// ErrNotScraping rejects a stop when no scraper is alive.
var ErrNotScraping = errors.New("scraper is not running")

// DefaultDebounceWindow is how long file changes must quiesce before a
// re-run launches.
const DefaultDebounceWindow = 3 * time.Second

var sourceTagPattern = regexp.MustCompile(`r/[A-Za-z0-9_]+`)

// Options configures a Supervisor.
type Options struct {
	Scraper  Stage
	Analyzer Stage
	Enricher Stage

	Posts *store.PostStore
	Coins *store.CoinStore
	Bus   *eventbus.Bus

	// Watcher is optional; without it the supervisor only reacts to
	// explicit start/stop calls.
	Watcher *watch.Watcher

	DebounceWindow time.Duration
	Logger         *log.Logger
}

// Supervisor owns the pipeline stage lifecycles. All state transitions
// happen under one mutex; stages themselves run on their own goroutines.
type Supervisor struct {
	opts   Options
	logger *log.Logger

	mu            sync.Mutex
	state         State
	pending       bool
	stopRequested bool
	scraperPID    int
	cancelScrape  context.CancelFunc
	startNotify   chan<- int // delivers the current run's pid to Start
}

// New creates a Supervisor in the Idle state.
func New(opts Options) (*Supervisor, error) {
	if opts.Scraper == nil || opts.Analyzer == nil || opts.Enricher == nil {
		return nil, fmt.Errorf("all three stages are required")
	}
	if opts.Posts == nil || opts.Coins == nil {
		return nil, fmt.Errorf("post and coin stores are required")
	}
	if opts.Bus == nil {
		return nil, fmt.Errorf("event bus is required")
	}
	if opts.DebounceWindow <= 0 {
		opts.DebounceWindow = DefaultDebounceWindow
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}

	s := &Supervisor{
		opts:   opts,
		logger: opts.Logger,
		state:  StateIdle,
	}
	if es, ok := opts.Scraper.(*ExecStage); ok {
		es.OnStart = s.scraperStarted
	}
	return s, nil
}

// scraperStarted records the child pid and hands it to the Start call
// waiting on the current run, if one still is.
func (s *Supervisor) scraperStarted(pid int) {
	s.mu.Lock()
	s.scraperPID = pid
	notify := s.startNotify
	s.startNotify = nil
	s.mu.Unlock()

	if notify != nil {
		select {
		case notify <- pid:
		default:
		}
	}
}

// State returns the current state.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Status reports whether the scraper is running and its pid if known.
func (s *Supervisor) Status() (bool, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == StateScraping, s.scraperPID
}

// Start launches the scraper stage. The post store is reset to an empty
// array first, so every scraping run begins from scratch. Returns ErrBusy
// unless the supervisor is Idle.
func (s *Supervisor) Start() (int, error) {
	s.mu.Lock()
	if s.state != StateIdle {
		s.mu.Unlock()
		observability.RecordStartRejected()
		return 0, ErrBusy
	}
	s.state = StateScraping
	s.stopRequested = false
	s.scraperPID = 0

	started := make(chan int, 1)
	s.startNotify = started

	ctx, cancel := context.WithCancel(context.Background())
	s.cancelScrape = cancel
	s.mu.Unlock()

	if err := s.opts.Posts.Reset(); err != nil {
		s.setIdle()
		return 0, fmt.Errorf("reset post store: %w", err)
	}

	go s.runScrapeChain(ctx)

	// Give the stage a moment to spawn so callers get a pid. Absent pid
	// is fine; status reports it once known.
	select {
	case pid := <-started:
		return pid, nil
	case <-time.After(2 * time.Second):
		return 0, nil
	}
}

// Stop terminates a running scraper. The pipeline then proceeds to
// Processing over whatever posts were persisted. Returns ErrNotScraping
// when no scraper is alive.
func (s *Supervisor) Stop() error {
	s.mu.Lock()
	if s.state != StateScraping {
		s.mu.Unlock()
		return ErrNotScraping
	}
	s.stopRequested = true
	cancel := s.cancelScrape
	s.mu.Unlock()

	s.logger.Printf("[supervisor] stop requested, terminating scraper")
	cancel()
	return nil
}

// Run reacts to post store changes with debounced processing runs. It
// blocks until the context is cancelled.
func (s *Supervisor) Run(ctx context.Context) {
	if s.opts.Watcher == nil {
		<-ctx.Done()
		return
	}
	go s.opts.Watcher.Run(ctx)

	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return

		case <-s.opts.Watcher.Changes():
			posts, err := s.opts.Posts.Load()
			if err != nil {
				s.logger.Printf("[supervisor] read posts after change: %v", err)
				continue
			}
			s.opts.Bus.Publish(eventbus.ScrapeUpdate(posts))

			s.mu.Lock()
			state := s.state
			if state == StateProcessing {
				s.pending = true
			}
			s.mu.Unlock()

			if state != StateIdle {
				// Scraping writes its own changes; processing re-runs
				// via the pending flag.
				continue
			}
			// An emptied or deleted store keeps existing coin data.
			if len(posts) == 0 {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(s.opts.DebounceWindow)
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(s.opts.DebounceWindow)
			}
			timerC = timer.C

		case <-timerC:
			timerC = nil
			s.tryProcess()
		}
	}
}

// tryProcess starts a Processing pass if the supervisor is Idle.
func (s *Supervisor) tryProcess() {
	s.mu.Lock()
	if s.state != StateIdle {
		if s.state == StateProcessing {
			s.pending = true
		}
		s.mu.Unlock()
		return
	}
	s.state = StateProcessing
	s.mu.Unlock()

	go s.process()
}

// runScrapeChain waits out the scraper stage and, on success or explicit
// stop, continues into Processing. Runs on its own goroutine.
func (s *Supervisor) runScrapeChain(ctx context.Context) {
	// ExecStage signals via its OnStart hook; in-process stages have no
	// pid to wait for.
	if _, ok := s.opts.Scraper.(*ExecStage); !ok {
		s.scraperStarted(0)
	}

	start := time.Now()
	code, err := s.opts.Scraper.Run(ctx, func(line string) {
		s.publishStageLine("scrape", line)
	})

	s.mu.Lock()
	stopRequested := s.stopRequested
	s.scraperPID = 0
	s.startNotify = nil
	s.mu.Unlock()

	s.opts.Bus.Publish(eventbus.ScrapeStopped(code))

	switch {
	case err != nil && !stopRequested:
		observability.RecordPipelineRun("scrape", "error", time.Since(start).Seconds())
		s.fail("scrape", err.Error())
		return
	case code != 0 && !stopRequested:
		observability.RecordPipelineRun("scrape", "error", time.Since(start).Seconds())
		s.fail("scrape", fmt.Sprintf("scraper exited with code %d", code))
		return
	}
	observability.RecordPipelineRun("scrape", "ok", time.Since(start).Seconds())

	s.mu.Lock()
	s.state = StateProcessing
	s.mu.Unlock()
	s.process()
}

// process runs analyzer then enricher. On completion it either goes Idle
// or immediately re-runs when changes arrived mid-flight.
func (s *Supervisor) process() {
	for {
		if !s.runStage(s.opts.Analyzer) {
			return
		}
		if !s.runStage(s.opts.Enricher) {
			return
		}

		count := 0
		if entries, err := s.opts.Coins.Load(); err == nil {
			count = len(entries)
		} else {
			s.logger.Printf("[supervisor] count coins: %v", err)
		}
		s.opts.Bus.Publish(eventbus.CoinsUpdated(count))
		observability.DefaultMetrics.LastSuccessfulPipeline.SetToCurrentTime()

		s.mu.Lock()
		if s.pending {
			s.pending = false
			s.mu.Unlock()
			s.logger.Printf("[supervisor] changes arrived mid-run, processing again")
			continue
		}
		s.state = StateIdle
		s.mu.Unlock()
		return
	}
}

// runStage executes one stage and publishes its outcome. A false return
// means the chain must abort; the supervisor is already Idle.
func (s *Supervisor) runStage(stage Stage) bool {
	start := time.Now()
	code, err := stage.Run(context.Background(), func(line string) {
		s.publishStageLine(stage.Name(), line)
	})

	switch {
	case err != nil:
		observability.RecordPipelineRun(stage.Name(), "error", time.Since(start).Seconds())
		s.fail(stage.Name(), err.Error())
		return false
	case code != 0:
		observability.RecordPipelineRun(stage.Name(), "error", time.Since(start).Seconds())
		s.fail(stage.Name(), fmt.Sprintf("stage exited with code %d", code))
		return false
	}
	observability.RecordPipelineRun(stage.Name(), "ok", time.Since(start).Seconds())
	return true
}

// fail publishes an error event and returns the supervisor to Idle.
func (s *Supervisor) fail(stage, message string) {
	s.logger.Printf("[supervisor] %s failed: %s", stage, message)
	s.opts.Bus.Publish(eventbus.Error(stage, message))
	s.setIdle()
}

func (s *Supervisor) setIdle() {
	s.mu.Lock()
	s.state = StateIdle
	s.pending = false
	s.startNotify = nil
	s.mu.Unlock()
}

// publishStageLine forwards one output line to the bus, additionally as a
// per-source thread update when the line names a source tag.
func (s *Supervisor) publishStageLine(stage, line string) {
	s.logger.Printf("[%s] %s", stage, line)
	s.opts.Bus.Publish(eventbus.ScrapeLog(stage, line))
	if tag := sourceTagPattern.FindString(line); tag != "" {
		s.opts.Bus.Publish(eventbus.ThreadUpdate(tag, line))
	}
}
