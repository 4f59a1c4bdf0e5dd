package buffer

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Key identifies one debounce slot: one sender talking to one instance.
type Key struct {
	InstanceID string
	ChatID     string
}

// Flusher receives the coalesced text once a slot goes quiet.
type Flusher func(ctx context.Context, key Key, text string)

type entry struct {
	fragments []string
	timer     *time.Timer
	lastPush  time.Time
}

// Registry buffers rapid-fire message fragments per (instance, sender)
// and flushes them as a single joined text after a quiet period.
// Every push restarts the slot's timer, so only trailing silence fires.
type Registry struct {
	mu      sync.Mutex
	entries map[Key]*entry

	quiet      time.Duration
	staleAfter time.Duration
	flush      Flusher
	logger     *zap.Logger
}

func NewRegistry(quiet, staleAfter time.Duration, flush Flusher, logger *zap.Logger) *Registry {
	return &Registry{
		entries:    make(map[Key]*entry),
		quiet:      quiet,
		staleAfter: staleAfter,
		flush:      flush,
		logger:     logger.Named("buffer.registry"),
	}
}

// Push appends a fragment to the slot and restarts its quiet timer.
func (r *Registry) Push(key Key, text string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[key]
	if !ok {
		e = &entry{}
		r.entries[key] = e
	}
	e.fragments = append(e.fragments, text)
	e.lastPush = time.Now()

	if e.timer != nil {
		e.timer.Stop()
	}
	e.timer = time.AfterFunc(r.quiet, func() {
		r.fire(key)
	})
}

// fire removes the slot and hands the joined text to the flusher.
func (r *Registry) fire(key Key) {
	r.mu.Lock()
	e, ok := r.entries[key]
	if !ok {
		r.mu.Unlock()
		return
	}
	delete(r.entries, key)
	text := strings.Join(e.fragments, " ")
	r.mu.Unlock()

	r.flush(context.Background(), key, text)
}

// Len reports the number of live slots.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Run sweeps slots whose timer never fired (for example after a timer
// was stopped mid-flush) and evicts anything idle past staleAfter.
func (r *Registry) Run(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.sweep()
		}
	}
}

func (r *Registry) sweep() {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := time.Now().Add(-r.staleAfter)
	for key, e := range r.entries {
		if e.lastPush.Before(cutoff) {
			if e.timer != nil {
				e.timer.Stop()
			}
			delete(r.entries, key)
			r.logger.Warn("stale_buffer_evicted",
				zap.String("instance_id", key.InstanceID),
				zap.String("chat_id", key.ChatID),
				zap.Int("fragments", len(e.fragments)),
			)
		}
	}
}
