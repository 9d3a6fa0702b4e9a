package events

import (
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/edufabric/integration-fabric/internal/metrics"
)

// ErrBusStopped is returned when an operation requires a running bus.
var ErrBusStopped = errors.New("event bus stopped")

// SubscriberID identifies a registered subscription.
type SubscriberID string

// subscription pairs a subscriber with its filter and FIFO mailbox.
type subscription struct {
	id           SubscriberID
	sub          Subscriber
	filter       *EventFilter
	mailbox      chan Event
	unsubscribed atomic.Bool
}

// effectiveFilter returns the subscriber-provided filter when present,
// superseding the one supplied at subscription time.
func (s *subscription) effectiveFilter() *EventFilter {
	if f, ok := s.sub.(Filterer); ok {
		return f.EventFilter()
	}
	return s.filter
}

// Bus dispatches events to filtered subscribers. Publish is non-blocking;
// each subscriber drains its own bounded mailbox on an independent goroutine,
// so per-subscriber delivery follows publish order while cross-subscriber
// ordering is unspecified. Full mailboxes drop the oldest event with a
// throttled warning.
type Bus struct {
	mu      sync.RWMutex
	subs    map[SubscriberID]*subscription
	stopped bool
	running atomic.Bool
	wg      sync.WaitGroup

	persist   *persister
	replaying atomic.Bool

	logger      *slog.Logger
	dropLimiter *rate.Limiter

	mailboxSize int
	drainWait   time.Duration

	statsMu   sync.Mutex
	published map[Category]uint64
	dropped   atomic.Uint64
	persisted atomic.Uint64
}

// BusOption configures the event bus.
type BusOption func(*Bus)

// WithLogger sets the bus logger.
func WithLogger(logger *slog.Logger) BusOption {
	return func(b *Bus) { b.logger = logger }
}

// WithMailboxSize sets the per-subscriber mailbox capacity.
func WithMailboxSize(size int) BusOption {
	return func(b *Bus) {
		if size > 0 {
			b.mailboxSize = size
		}
	}
}

// WithPersistencePath enables durable persistence of critical events to a
// JSON Lines file at the given path.
func WithPersistencePath(path string) BusOption {
	return func(b *Bus) {
		if path != "" {
			b.persist = newPersister(path)
		}
	}
}

// WithDrainWait bounds how long Stop waits for subscriber mailboxes to drain.
func WithDrainWait(d time.Duration) BusOption {
	return func(b *Bus) {
		if d > 0 {
			b.drainWait = d
		}
	}
}

// NewBus creates a bus. Call Start before publishing.
func NewBus(opts ...BusOption) *Bus {
	b := &Bus{
		subs:        make(map[SubscriberID]*subscription),
		logger:      slog.Default(),
		dropLimiter: rate.NewLimiter(rate.Every(time.Second), 5),
		mailboxSize: 256,
		drainWait:   2 * time.Second,
		published:   make(map[Category]uint64),
	}

	for _, opt := range opts {
		opt(b)
	}

	return b
}

// Start enables dispatch. Idempotent; a stopped bus may be started again.
func (b *Bus) Start() {
	b.mu.Lock()
	b.stopped = false
	b.mu.Unlock()
	b.running.Store(true)
}

// Stop disables dispatch and drains subscriber mailboxes with a bounded wait.
// Handlers still busy after the wait are abandoned and logged.
func (b *Bus) Stop() {
	if !b.running.Swap(false) {
		return
	}

	b.mu.Lock()
	b.stopped = true
	subs := make([]*subscription, 0, len(b.subs))
	for _, sub := range b.subs {
		subs = append(subs, sub)
	}
	b.subs = make(map[SubscriberID]*subscription)
	for _, sub := range subs {
		if sub.unsubscribed.CompareAndSwap(false, true) {
			close(sub.mailbox)
		}
	}
	b.mu.Unlock()
	metrics.EventSubscribers.Set(0)

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(b.drainWait):
		b.logger.Warn("event bus stop timed out; abandoning slow subscribers",
			"drain_wait", b.drainWait,
		)
	}

	if b.persist != nil {
		if err := b.persist.Close(); err != nil {
			b.logger.Warn("close event persistence file", "error", err)
		}
	}
}

// Running reports whether the bus is dispatching.
func (b *Bus) Running() bool {
	return b.running.Load()
}

// Subscribe registers a subscriber with an optional filter and returns its id.
// A nil filter matches every event. Subscribing on a stopped bus is a no-op
// that returns an empty id; no dispatch goroutine is spawned.
func (b *Bus) Subscribe(sub Subscriber, filter *EventFilter) SubscriberID {
	id := SubscriberID(uuid.NewString())
	s := &subscription{
		id:      id,
		sub:     sub,
		filter:  filter,
		mailbox: make(chan Event, b.mailboxSize),
	}

	b.mu.Lock()
	if b.stopped {
		b.mu.Unlock()
		b.logger.Warn("subscribe on stopped bus ignored")
		return ""
	}
	b.subs[id] = s
	count := len(b.subs)
	b.wg.Add(1)
	b.mu.Unlock()
	metrics.EventSubscribers.Set(float64(count))

	go b.dispatch(s)

	return id
}

// SubscribeFunc registers a plain handler function.
func (b *Bus) SubscribeFunc(handler func(Event), filter *EventFilter) SubscriberID {
	return b.Subscribe(HandlerFunc(handler), filter)
}

// Unsubscribe removes a subscription. Idempotent.
func (b *Bus) Unsubscribe(id SubscriberID) {
	b.mu.Lock()
	sub, ok := b.subs[id]
	if ok {
		delete(b.subs, id)
	}
	count := len(b.subs)
	if ok && sub.unsubscribed.CompareAndSwap(false, true) {
		close(sub.mailbox)
	}
	b.mu.Unlock()
	metrics.EventSubscribers.Set(float64(count))
}

// Publish delivers the event to every subscriber whose filter matches.
// Persistent and CRITICAL events are appended to the durable file before
// dispatch; persistence failures are logged and dispatch proceeds. Publishing
// on a stopped bus drops the event with a warning.
func (b *Bus) Publish(event Event) {
	if !b.running.Load() {
		if b.dropLimiter.Allow() {
			b.logger.Warn("publish on stopped bus; event dropped",
				"event_type", event.Type,
				"event_id", event.EventID,
			)
		}
		return
	}

	if b.persist != nil && !b.replaying.Load() &&
		(event.IsPersistent || event.Priority == PriorityCritical) {
		if err := b.persist.Append(event); err != nil {
			b.logger.Error("persist event failed; dispatching anyway",
				"event_type", event.Type,
				"event_id", event.EventID,
				"error", err,
			)
		} else {
			b.persisted.Add(1)
			metrics.EventsPersistedTotal.Inc()
		}
	}

	b.statsMu.Lock()
	b.published[event.Category]++
	b.statsMu.Unlock()
	metrics.EventsPublishedTotal.WithLabelValues(string(event.Category)).Inc()

	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, sub := range b.subs {
		if !sub.effectiveFilter().Matches(event) {
			continue
		}
		b.enqueue(sub, event)
	}
}

// enqueue performs a non-blocking mailbox send, dropping the oldest queued
// event when the mailbox is full.
func (b *Bus) enqueue(sub *subscription, event Event) {
	select {
	case sub.mailbox <- event:
		return
	default:
	}

	// Mailbox full: make room by discarding the oldest entry.
	select {
	case old := <-sub.mailbox:
		b.recordDrop(sub, old)
	default:
	}

	select {
	case sub.mailbox <- event:
	default:
		b.recordDrop(sub, event)
	}
}

func (b *Bus) recordDrop(sub *subscription, event Event) {
	b.dropped.Add(1)
	metrics.EventsDroppedTotal.WithLabelValues(event.Type).Inc()
	if b.dropLimiter.Allow() {
		b.logger.Warn("subscriber mailbox full; dropped oldest event",
			"subscriber_id", sub.id,
			"event_type", event.Type,
		)
	}
}

// dispatch drains one subscriber's mailbox, invoking the handler for each
// event in FIFO order. Handler panics are recovered and logged so one
// subscriber cannot affect others or future events.
func (b *Bus) dispatch(sub *subscription) {
	defer b.wg.Done()

	for event := range sub.mailbox {
		b.safeHandle(sub, event)
	}
}

func (b *Bus) safeHandle(sub *subscription, event Event) {
	defer func() {
		if r := recover(); r != nil {
			metrics.EventHandlerPanicsTotal.Inc()
			b.logger.Error("subscriber handler panicked",
				"subscriber_id", sub.id,
				"event_type", event.Type,
				"panic", r,
			)
		}
	}()

	sub.sub.HandleEvent(event)
}

// ReplayPersistedEvents reads the durable event file and re-publishes each
// event, preserving file order. Replayed events are not persisted again.
// Returns the number of events replayed.
func (b *Bus) ReplayPersistedEvents() (int, error) {
	if b.persist == nil {
		return 0, nil
	}
	if !b.running.Load() {
		return 0, ErrBusStopped
	}

	persisted, errs := b.persist.ReadAll()
	for _, err := range errs {
		b.logger.Warn("skipping unreadable persisted event", "error", err)
	}

	b.replaying.Store(true)
	defer b.replaying.Store(false)

	for _, event := range persisted {
		b.Publish(event)
	}

	return len(persisted), nil
}

// BusStats is a snapshot of bus counters.
type BusStats struct {
	SubscriberCount int                 `json:"subscriber_count"`
	Published       map[Category]uint64 `json:"published"`
	Dropped         uint64              `json:"dropped"`
	Persisted       uint64              `json:"persisted"`
	Running         bool                `json:"running"`
}

// Stats returns current bus statistics.
func (b *Bus) Stats() BusStats {
	b.mu.RLock()
	count := len(b.subs)
	b.mu.RUnlock()

	b.statsMu.Lock()
	published := make(map[Category]uint64, len(b.published))
	for c, n := range b.published {
		published[c] = n
	}
	b.statsMu.Unlock()

	return BusStats{
		SubscriberCount: count,
		Published:       published,
		Dropped:         b.dropped.Load(),
		Persisted:       b.persisted.Load(),
		Running:         b.running.Load(),
	}
}

var (
	defaultMu  sync.Mutex
	defaultBus *Bus
)

// Default returns the process-wide bus, creating and starting it on first
// use. Prefer explicit injection in new code.
func Default() *Bus {
	defaultMu.Lock()
	defer defaultMu.Unlock()

	if defaultBus == nil {
		defaultBus = NewBus()
		defaultBus.Start()
	}
	return defaultBus
}

// ResetDefault stops and discards the process-wide bus. Test-only.
func ResetDefault() {
	defaultMu.Lock()
	defer defaultMu.Unlock()

	if defaultBus != nil {
		defaultBus.Stop()
		defaultBus = nil
	}
}
