package loop

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/rafaelssenna/LUNA-PAINEL-BACK/internal/domain/outreach"
)

const (
	// subscriberBuffer is the per-subscriber queue depth. A subscriber
	// that falls this far behind starts losing events.
	subscriberBuffer = 100

	// replayLimit bounds how much history a new stream receives.
	replayLimit = 50
)

var streamDropped = promauto.NewCounter(prometheus.CounterOpts{
	Name: "loop_stream_dropped_total",
	Help: "Events dropped because a subscriber queue was full.",
})

// Hub persists loop events and fans them out to live subscribers.
// Publishing never blocks: a full subscriber queue drops the event for
// that subscriber only.
type Hub struct {
	mu        sync.Mutex
	listeners map[string][]chan *outreach.Event

	events outreach.EventRepository
	logger *zap.Logger
}

func NewHub(events outreach.EventRepository, logger *zap.Logger) *Hub {
	return &Hub{
		listeners: make(map[string][]chan *outreach.Event),
		events:    events,
		logger:    logger.Named("loop.hub"),
	}
}

// Publish appends the event to the durable log and offers it to every
// subscriber of the instance. A failed insert is logged, not fatal; the
// live stream still gets the event.
func (h *Hub) Publish(ctx context.Context, instanceID, eventType string, payload map[string]any) {
	if payload == nil {
		payload = map[string]any{}
	}
	if _, ok := payload["type"]; !ok {
		payload["type"] = eventType
	}
	if _, ok := payload["at"]; !ok {
		payload["at"] = time.Now().UTC().Format(time.RFC3339)
	}

	event := &outreach.Event{
		InstanceID: instanceID,
		Type:       eventType,
		Payload:    payload,
		CreatedAt:  time.Now().UTC(),
	}

	if err := h.events.Append(ctx, event); err != nil {
		h.logger.Error("event_persist_failed",
			zap.String("instance_id", instanceID),
			zap.String("event_type", eventType),
			zap.Error(err),
		)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.listeners[instanceID] {
		select {
		case ch <- event:
		default:
			streamDropped.Inc()
		}
	}
}

// Subscribe registers a new live listener for the instance.
func (h *Hub) Subscribe(instanceID string) chan *outreach.Event {
	ch := make(chan *outreach.Event, subscriberBuffer)
	h.mu.Lock()
	defer h.mu.Unlock()
	h.listeners[instanceID] = append(h.listeners[instanceID], ch)
	return ch
}

// Unsubscribe removes the listener and prunes the instance slot when
// the last one leaves.
func (h *Hub) Unsubscribe(instanceID string, ch chan *outreach.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	subs := h.listeners[instanceID]
	for i, c := range subs {
		if c == ch {
			h.listeners[instanceID] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	if len(h.listeners[instanceID]) == 0 {
		delete(h.listeners, instanceID)
	}
}

// Replay returns the stored tail of the event log, oldest first.
func (h *Hub) Replay(ctx context.Context, instanceID string) ([]*outreach.Event, error) {
	return h.events.Recent(ctx, instanceID, replayLimit)
}

// Subscribers reports the live listener count for the instance.
func (h *Hub) Subscribers(instanceID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.listeners[instanceID])
}
