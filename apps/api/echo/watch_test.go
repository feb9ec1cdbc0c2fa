package echoapi

import (
	"testing"

	"github.com/quizera/backend/core/realtime"
)

func Test_watchFeed_dropsSlowConsumer(t *testing.T) {
	feed := newWatchFeed(2)

	feed.push(realtime.Event{ID: "1"})
	feed.push(realtime.Event{ID: "2"})
	select {
	case <-feed.slow:
		t.Fatal("consumer flagged slow while within its buffer")
	default:
	}

	// buffer full: the push must return without blocking and flag the consumer
	feed.push(realtime.Event{ID: "3"})
	select {
	case <-feed.slow:
	default:
		t.Fatal("slow consumer was not flagged")
	}

	// buffered events stay deliverable, in order
	if evt := <-feed.events; evt.ID != "1" {
		t.Errorf("event ID = %q; want %q", evt.ID, "1")
	}
	if evt := <-feed.events; evt.ID != "2" {
		t.Errorf("event ID = %q; want %q", evt.ID, "2")
	}
}
