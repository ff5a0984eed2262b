// Package events is the in-process notification surface the core
// exposes to the surrounding application. The core only announces
// facts (an option was renamed, a submission was created); whatever
// audit or notification machinery reacts to them is attached by the
// caller as a subscriber.
package events

import (
	"sync"
	"time"

	"github.com/gofrs/uuid"
	"go.uber.org/atomic"

	"github.com/mbolis/quick-forms/log"
)

const (
	TypeOptionRenamed     = "option.renamed"
	TypeSubmissionCreated = "submission.created"
)

type Event struct {
	ID      string
	Type    string
	Time    time.Time
	Payload any
}

type OptionRenamed struct {
	QuestionID int
	OptionKey  string
	OldLabel   string
	NewLabel   string
	Actor      string
}

type SubmissionCreated struct {
	SubmissionID int
	FormID       int
}

type Handler func(Event)

// Bus dispatches events to subscribers through a single goroutine, in
// publication order. Publish never blocks the publisher's transaction
// path beyond a channel send.
type Bus struct {
	mu        sync.RWMutex
	handlers  []Handler
	incoming  chan Event
	done      chan struct{}
	published atomic.Int64
}

func NewBus() *Bus {
	bus := &Bus{
		incoming: make(chan Event, 64),
		done:     make(chan struct{}),
	}
	go bus.dispatch()
	return bus
}

func (b *Bus) dispatch() {
	for evt := range b.incoming {
		b.mu.RLock()
		handlers := b.handlers
		b.mu.RUnlock()

		for _, h := range handlers {
			h(evt)
		}
	}
	close(b.done)
}

func (b *Bus) Subscribe(h Handler) {
	b.mu.Lock()
	b.handlers = append(b.handlers, h)
	b.mu.Unlock()
}

func (b *Bus) Publish(eventType string, payload any) {
	id, err := uuid.NewV4()
	if err != nil {
		log.Errorf("events.publish.uuid: %s", err)
		return
	}

	b.incoming <- Event{
		ID:      id.String(),
		Type:    eventType,
		Time:    time.Now(),
		Payload: payload,
	}
	b.published.Inc()
}

// Published reports how many events have been accepted for dispatch.
func (b *Bus) Published() int64 {
	return b.published.Load()
}

// Close stops dispatch after draining queued events.
func (b *Bus) Close() {
	close(b.incoming)
	<-b.done
}
