// Package eventbus is the typed publish-subscribe surface between the
// pipeline supervisor, the file watcher and connected clients.
package eventbus

import (
	"time"

	"memecoin-radar/internal/domain"
)

// Type enumerates the event kinds clients can receive.
type Type string

const (
	TypeInitialSnapshot Type = "initialSnapshot"
	TypeScrapeLog       Type = "scrapeLog"
	TypeScrapeUpdate    Type = "scrapeUpdate"
	TypeThreadUpdate    Type = "threadUpdate"
	TypeScrapeStopped   Type = "scrapeStopped"
	TypeCoinsUpdated    Type = "coinsUpdated"
	TypeError           Type = "error"
	TypeDroppedEvents   Type = "droppedEvents"
)

// Event is the wire form pushed to every subscriber. Only the fields
// relevant to the Type are set.
type Event struct {
	Type      Type      `json:"type"`
	Timestamp time.Time `json:"timestamp"`

	Stage    string         `json:"stage,omitempty"`
	Line     string         `json:"line,omitempty"`
	Source   string         `json:"source,omitempty"`
	ExitCode *int           `json:"exit_code,omitempty"`
	Count    int            `json:"count,omitempty"`
	Message  string         `json:"message,omitempty"`
	Posts    []*domain.Post `json:"posts,omitempty"`
}

func newEvent(t Type) Event {
	return Event{Type: t, Timestamp: time.Now().UTC()}
}

// InitialSnapshot is sent to a client immediately on subscribe.
func InitialSnapshot(posts []*domain.Post) Event {
	ev := newEvent(TypeInitialSnapshot)
	ev.Posts = posts
	ev.Count = len(posts)
	return ev
}

// ScrapeLog carries one line of stage output.
func ScrapeLog(stage, line string) Event {
	ev := newEvent(TypeScrapeLog)
	ev.Stage = stage
	ev.Line = line
	return ev
}

// ScrapeUpdate carries the current post store contents after a change.
func ScrapeUpdate(posts []*domain.Post) Event {
	ev := newEvent(TypeScrapeUpdate)
	ev.Posts = posts
	ev.Count = len(posts)
	return ev
}

// ThreadUpdate carries a per-source parsed log line.
func ThreadUpdate(source, line string) Event {
	ev := newEvent(TypeThreadUpdate)
	ev.Source = source
	ev.Line = line
	return ev
}

// ScrapeStopped signals that the scraper stage terminated.
func ScrapeStopped(exitCode int) Event {
	ev := newEvent(TypeScrapeStopped)
	ev.ExitCode = &exitCode
	return ev
}

// CoinsUpdated signals that the coin store is fresh.
func CoinsUpdated(count int) Event {
	ev := newEvent(TypeCoinsUpdated)
	ev.Count = count
	return ev
}

// Error signals a fatal condition in a stage.
func Error(stage, message string) Event {
	ev := newEvent(TypeError)
	ev.Stage = stage
	ev.Message = message
	return ev
}

func droppedEvents(count int) Event {
	ev := newEvent(TypeDroppedEvents)
	ev.Count = count
	return ev
}
