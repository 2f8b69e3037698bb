package cdc

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// defaultSubscriberBuffer bounds how far one subscriber may fall behind
// before events are dropped for it.
const defaultSubscriberBuffer = 64

// Broadcaster fans change events out to per-table subscribers. The
// publisher never blocks: a subscriber whose buffer is full loses
// intermediate events and receives a single ERROR event describing the gap
// once it catches up. Channels per table are created lazily on first
// subscribe.
type Broadcaster struct {
	logger     zerolog.Logger
	bufferSize int

	mu     sync.RWMutex
	nextID int
	subs   map[string]map[int]*subscriber // table → id → subscriber
}

type subscriber struct {
	ch      chan Event
	table   string
	dropped int
}

// NewBroadcaster creates a broadcaster with the default per-subscriber
// buffer.
func NewBroadcaster(logger zerolog.Logger) *Broadcaster {
	return &Broadcaster{
		logger:     logger,
		bufferSize: defaultSubscriberBuffer,
		subs:       make(map[string]map[int]*subscriber),
	}
}

// Subscribe registers a consumer for one table's events. The cancel
// function unsubscribes and closes the channel; it is safe to call more
// than once.
func (b *Broadcaster) Subscribe(table string) (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.subs[table] == nil {
		b.subs[table] = make(map[int]*subscriber)
	}
	id := b.nextID
	b.nextID++

	sub := &subscriber{
		ch:    make(chan Event, b.bufferSize),
		table: table,
	}
	b.subs[table][id] = sub

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if subs, ok := b.subs[table]; ok {
				if s, ok := subs[id]; ok {
					delete(subs, id)
					close(s.ch)
				}
				if len(subs) == 0 {
					delete(b.subs, table)
				}
			}
		})
	}

	return sub.ch, cancel
}

// Publish delivers an event to every subscriber of its table without ever
// blocking the caller.
func (b *Broadcaster) Publish(event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subs[event.Table] {
		b.deliver(sub, event)
	}
}

// PublishAll delivers an event (heartbeats, stream errors) to every
// subscriber of every table, stamping each copy with the subscriber's
// table.
func (b *Broadcaster) PublishAll(event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for table, subs := range b.subs {
		copied := event
		copied.Table = table
		for _, sub := range subs {
			b.deliver(sub, copied)
		}
	}
}

// SubscriberCount reports active subscribers for a table.
func (b *Broadcaster) SubscriberCount(table string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[table])
}

func (b *Broadcaster) deliver(sub *subscriber, event Event) {
	// a subscriber that fell behind gets one ERROR describing the gap
	// before the stream resumes
	if sub.dropped > 0 {
		notice := Event{
			Table:     sub.table,
			Schema:    event.Schema,
			Operation: OpError,
			Timestamp: time.Now(),
			Error:     "subscriber fell behind; intermediate events were dropped",
		}
		select {
		case sub.ch <- notice:
			sub.dropped = 0
		default:
			sub.dropped++
			return
		}
	}

	select {
	case sub.ch <- event:
	default:
		if sub.dropped == 0 {
			b.logger.Warn().
				Str("table", sub.table).
				Msg("slow CDC subscriber, dropping events")
		}
		sub.dropped++
	}
}
