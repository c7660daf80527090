package alerting

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"chain-sentry/internal/metrics"
)

// InterestKind distinguishes the two subscriber interest namespaces.
type InterestKind string

const (
	InterestAddress  InterestKind = "address"
	InterestProtocol InterestKind = "protocol"
)

// HistoryStore persists processed alerts. Implementations must tolerate
// duplicate inserts; the hub deduplicates by id before calling it.
type HistoryStore interface {
	Insert(ctx context.Context, alert *Alert) error
}

type interestSet struct {
	addresses map[string]struct{}
	protocols map[string]struct{}
}

func newInterestSet() *interestSet {
	return &interestSet{
		addresses: make(map[string]struct{}),
		protocols: make(map[string]struct{}),
	}
}

func (s *interestSet) empty() bool {
	return len(s.addresses) == 0 && len(s.protocols) == 0
}

// matches reports whether the alert touches any of the subscriber's
// interests. Matching is case-insensitive on both namespaces.
func (s *interestSet) matches(alert *Alert) bool {
	for _, p := range alert.AffectedProtocols {
		if _, ok := s.protocols[strings.ToLower(p)]; ok {
			return true
		}
	}
	for _, a := range alert.AffectedAddresses {
		if _, ok := s.addresses[strings.ToLower(a)]; ok {
			return true
		}
	}
	return false
}

// Hub is the central alert registry: category-keyed sink fan-out,
// per-subscriber interest tables, and the append-only alert history.
// All mutation goes through the hub mutex so subscription changes are
// linearizable with respect to Process.
type Hub struct {
	mu              sync.Mutex
	sinks           map[Category][]Sink
	subs            map[string]*interestSet
	subscriberSinks map[string]Sink
	history         []*Alert
	seen            map[string]struct{}
	seq             uint64

	dispatcher *ReliableDispatcher
	store      HistoryStore
	logger     *slog.Logger
}

// NewHub creates an alert hub. store may be nil for in-memory-only
// history.
func NewHub(dispatcher *ReliableDispatcher, store HistoryStore, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	if dispatcher == nil {
		dispatcher = NewReliableDispatcher(DefaultDeliveryConfig())
	}
	return &Hub{
		sinks:           make(map[Category][]Sink),
		subs:            make(map[string]*interestSet),
		subscriberSinks: make(map[string]Sink),
		seen:            make(map[string]struct{}),
		dispatcher:      dispatcher,
		store:           store,
		logger:          logger,
	}
}

// RegisterSink registers a sink for a category. Every sink registered
// for a category receives every alert of that category.
func (h *Hub) RegisterSink(category Category, sink Sink) error {
	if !category.Valid() {
		return fmt.Errorf("unknown alert category %q", category)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sinks[category] = append(h.sinks[category], sink)
	return nil
}

// RegisterSubscriberSink attaches a personal delivery sink to a
// subscriber. Matched alerts are delivered there in addition to the
// category sinks. A subscriber with no interests receives everything.
func (h *Hub) RegisterSubscriberSink(subscriberID string, sink Sink) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.subscriberSinks[subscriberID] = sink
	if _, ok := h.subs[subscriberID]; !ok {
		h.subs[subscriberID] = newInterestSet()
	}
}

// Process ingests an alert: deduplicates by id, appends to history,
// and fans out to category sinks plus matched subscriber sinks. Sink
// failures are isolated by the dispatcher and never affect history.
func (h *Hub) Process(ctx context.Context, alert *Alert) {
	h.mu.Lock()
	if _, dup := h.seen[alert.ID]; dup {
		h.mu.Unlock()
		metrics.AlertDeduplicated()
		h.logger.Debug("duplicate alert discarded", "id", alert.ID)
		return
	}
	h.seen[alert.ID] = struct{}{}
	h.seq++
	alert.seq = h.seq
	h.history = append(h.history, alert)

	// Snapshot targets under the lock so a concurrent subscription
	// change either fully precedes or fully follows this alert.
	targets := append([]Sink(nil), h.sinks[alert.Category]...)
	for id, set := range h.subs {
		sink, ok := h.subscriberSinks[id]
		if !ok {
			continue
		}
		if set.empty() || set.matches(alert) {
			targets = append(targets, sink)
		}
	}
	h.mu.Unlock()

	metrics.AlertProcessed(string(alert.Category))

	if h.store != nil {
		if err := h.store.Insert(ctx, alert); err != nil {
			h.logger.Error("failed to persist alert", "id", alert.ID, "error", err)
		}
	}

	if len(targets) > 0 {
		h.dispatcher.Dispatch(ctx, alert, targets)
	}
}

// Subscribe adds an interest for a subscriber. Re-subscribing to the
// same value is a no-op.
func (h *Hub) Subscribe(subscriberID string, kind InterestKind, value string) error {
	value = strings.ToLower(strings.TrimSpace(value))
	if subscriberID == "" || value == "" {
		return fmt.Errorf("subscriber id and value are required")
	}
	if kind != InterestAddress && kind != InterestProtocol {
		return fmt.Errorf("unknown interest kind %q", kind)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	set, ok := h.subs[subscriberID]
	if !ok {
		set = newInterestSet()
		h.subs[subscriberID] = set
	}

	switch kind {
	case InterestAddress:
		set.addresses[value] = struct{}{}
	case InterestProtocol:
		set.protocols[value] = struct{}{}
	}
	return nil
}

// Unsubscribe removes an interest. Removing an absent value is a no-op.
func (h *Hub) Unsubscribe(subscriberID string, kind InterestKind, value string) error {
	value = strings.ToLower(strings.TrimSpace(value))

	h.mu.Lock()
	defer h.mu.Unlock()

	set, ok := h.subs[subscriberID]
	if !ok {
		return nil
	}

	switch kind {
	case InterestAddress:
		delete(set.addresses, value)
	case InterestProtocol:
		delete(set.protocols, value)
	default:
		return fmt.Errorf("unknown interest kind %q", kind)
	}
	return nil
}

// AlertsFor returns every historical alert matching the subscriber's
// interests, newest first. Unknown subscribers get an empty slice.
func (h *Hub) AlertsFor(subscriberID string) []*Alert {
	h.mu.Lock()
	defer h.mu.Unlock()

	set, ok := h.subs[subscriberID]
	if !ok {
		return []*Alert{}
	}

	matched := make([]*Alert, 0)
	for i := len(h.history) - 1; i >= 0; i-- {
		if set.matches(h.history[i]) {
			matched = append(matched, h.history[i])
		}
	}
	return matched
}

// AlertFilter narrows Alerts results.
type AlertFilter struct {
	Category Category
	Severity Severity
	Limit    int
}

// Alerts returns processed alerts newest first, optionally filtered.
func (h *Hub) Alerts(filter AlertFilter) []*Alert {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]*Alert, 0)
	for i := len(h.history) - 1; i >= 0; i-- {
		a := h.history[i]
		if filter.Category != "" && a.Category != filter.Category {
			continue
		}
		if filter.Severity != "" && a.Severity != filter.Severity {
			continue
		}
		out = append(out, a)
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	return out
}

// Stats returns hub statistics plus dispatcher delivery stats.
func (h *Hub) Stats() map[string]interface{} {
	h.mu.Lock()

	byCategory := make(map[string]int)
	bySeverity := make(map[string]int)
	for _, a := range h.history {
		byCategory[string(a.Category)]++
		bySeverity[string(a.Severity)]++
	}

	sinkCount := 0
	for _, sinks := range h.sinks {
		sinkCount += len(sinks)
	}

	stats := map[string]interface{}{
		"total_alerts": len(h.history),
		"by_category":  byCategory,
		"by_severity":  bySeverity,
		"subscribers":  len(h.subs),
		"sinks":        sinkCount,
	}
	h.mu.Unlock()

	stats["delivery"] = h.dispatcher.Stats()
	return stats
}

// Close drains in-flight deliveries.
func (h *Hub) Close() {
	h.dispatcher.Stop()
}
