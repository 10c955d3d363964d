package session

import (
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-session-client/authmodel"
	"github.com/jrsteele09/go-session-client/internal/metrics"
	"github.com/rs/zerolog"
)

// EventType names a session lifecycle event.
type EventType string

const (
	EventLogin    EventType = "login"
	EventLogout   EventType = "logout"
	EventRefresh  EventType = "refresh"
	EventExpire   EventType = "expire"
	EventWarning  EventType = "warning"
	EventActivity EventType = "activity"
	EventError    EventType = "error"
)

// Event is delivered to subscribers.
type Event struct {
	ID   uuid.UUID
	Type EventType
	At   time.Time

	// Method is set on login events.
	Method authmodel.LoginMethod

	// TimeLeft is set on warning events: time until idle expiry.
	TimeLeft time.Duration

	// Activity is set on activity events, e.g. "key" or "pointer".
	Activity string

	// Err is set on error events.
	Err error
}

type subscription struct {
	ch    chan Event
	types []EventType
}

func (s *subscription) wants(t EventType) bool {
	return len(s.types) == 0 || slices.Contains(s.types, t)
}

// eventBus fans events out to subscribers without ever blocking the publisher.
type eventBus struct {
	lock    sync.RWMutex
	subs    map[uint64]*subscription
	nextID  uint64
	closed  bool
	logger  zerolog.Logger
	metrics *metrics.Metrics
	nowFunc func() time.Time
}

func newEventBus(logger zerolog.Logger, m *metrics.Metrics, nowFunc func() time.Time) *eventBus {
	return &eventBus{
		subs:    make(map[uint64]*subscription),
		logger:  logger,
		metrics: m,
		nowFunc: nowFunc,
	}
}

// subscribe registers a channel with the given buffer. An empty types list
// receives every event. The returned func unsubscribes and closes the channel;
// calling it more than once is safe.
func (b *eventBus) subscribe(buffer int, types ...EventType) (<-chan Event, func()) {
	if buffer < 0 {
		buffer = 0
	}
	ch := make(chan Event, buffer)

	b.lock.Lock()
	defer b.lock.Unlock()
	if b.closed {
		close(ch)
		return ch, func() {}
	}
	id := b.nextID
	b.nextID++
	b.subs[id] = &subscription{ch: ch, types: slices.Clone(types)}

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.lock.Lock()
			defer b.lock.Unlock()
			if sub, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(sub.ch)
			}
		})
	}
}

func (b *eventBus) publish(evt Event) {
	evt.ID = uuid.New()
	if evt.At.IsZero() {
		evt.At = b.nowFunc()
	}
	b.metrics.IncEvent(string(evt.Type))

	b.lock.RLock()
	defer b.lock.RUnlock()
	for _, sub := range b.subs {
		if !sub.wants(evt.Type) {
			continue
		}
		select {
		case sub.ch <- evt:
		default:
			b.logger.Warn().Str("event", string(evt.Type)).Msg("subscriber is not keeping up, event dropped")
		}
	}
}

func (b *eventBus) close() {
	b.lock.Lock()
	defer b.lock.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, sub := range b.subs {
		close(sub.ch)
		delete(b.subs, id)
	}
}
