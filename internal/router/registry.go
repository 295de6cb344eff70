package router

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/rickgao/eventstream/internal/metrics"
)

// Registry owns the event index and the execution index.
type Registry struct {
	logger  *slog.Logger
	metrics *metrics.Metrics

	mu       sync.RWMutex
	byEvent  map[string]map[string]struct{} // event name -> handler ids
	byID     map[string]Subscription        // handler id -> subscription
	counters map[string]int                 // event name -> next suffix, never reset
	seq      uint64
}

// NewRegistry creates an empty Registry.
func NewRegistry(logger *slog.Logger, m *metrics.Metrics) *Registry {
	if logger == nil {
		logger = slog.Default()
	}

	return &Registry{
		logger:   logger,
		metrics:  m,
		byEvent:  make(map[string]map[string]struct{}),
		byID:     make(map[string]Subscription),
		counters: make(map[string]int),
	}
}

// Subscribe registers h for event and returns its handler id, formatted
// "{namespace}.{event}_{n}". It returns "" when event or h is missing.
func (r *Registry) Subscribe(event string, h Handler, opts Options) string {
	if event == "" || h == nil {
		r.logger.Warn("rejected subscription",
			"event", event,
			"has_handler", h != nil,
		)
		return ""
	}

	r.mu.Lock()
	// Dotted namespaces or events can format to an id already in use.
	n := r.counters[event]
	id := fmt.Sprintf("%s.%s_%d", opts.Namespace, event, n)
	for r.taken(id) {
		n++
		id = fmt.Sprintf("%s.%s_%d", opts.Namespace, event, n)
	}
	r.counters[event] = n + 1
	r.seq++

	r.byID[id] = Subscription{
		ID:        id,
		Event:     event,
		Handler:   h,
		Debounce:  opts.Debounce,
		Namespace: opts.Namespace,
		seq:       r.seq,
	}
	ids, ok := r.byEvent[event]
	if !ok {
		ids = make(map[string]struct{})
		r.byEvent[event] = ids
	}
	ids[id] = struct{}{}
	total := len(r.byID)
	r.mu.Unlock()

	r.metrics.SetSubscriptions(total)
	r.logger.Debug("subscribed", "handler_id", id, "event", event)

	return id
}

func (r *Registry) taken(id string) bool {
	_, ok := r.byID[id]
	return ok
}

// Unsubscribe removes id from both indexes. Unknown ids are ignored.
func (r *Registry) Unsubscribe(id string) {
	r.mu.Lock()
	sub, ok := r.byID[id]
	if !ok {
		r.mu.Unlock()
		return
	}
	delete(r.byID, id)
	if ids := r.byEvent[sub.Event]; ids != nil {
		delete(ids, id)
		if len(ids) == 0 {
			delete(r.byEvent, sub.Event)
		}
	}
	total := len(r.byID)
	r.mu.Unlock()

	r.metrics.SetSubscriptions(total)
	r.logger.Debug("unsubscribed", "handler_id", id, "event", sub.Event)
}

// Len returns the number of live subscriptions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}

// Listening reports whether any subscription exists for event.
func (r *Registry) Listening(event string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.byEvent[event]
	return ok
}

// Lookup returns the subscription registered under id.
func (r *Registry) Lookup(id string) (Subscription, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sub, ok := r.byID[id]
	return sub, ok
}

// Snapshot returns all subscriptions in registration order.
func (r *Registry) Snapshot() []Subscription {
	r.mu.RLock()
	subs := make([]Subscription, 0, len(r.byID))
	for _, s := range r.byID {
		subs = append(subs, s)
	}
	r.mu.RUnlock()

	sort.Slice(subs, func(i, j int) bool { return subs[i].seq < subs[j].seq })
	return subs
}
