package loop

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/rafaelssenna/LUNA-PAINEL-BACK/internal/domain/instance"
	"github.com/rafaelssenna/LUNA-PAINEL-BACK/internal/domain/outreach"
)

const (
	// minSendDelay floors the pause between consecutive sends.
	minSendDelay = 2 * time.Second

	// windowRecheck is how long a paused loop waits before looking at
	// the clock again.
	windowRecheck = time.Minute
)

var (
	loopSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "loop_messages_sent_total",
		Help: "Outreach messages delivered.",
	})
	loopFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "loop_messages_failed_total",
		Help: "Outreach messages that failed to deliver.",
	})
)

// Gateway is the outbound message surface the loop needs.
type Gateway interface {
	SendText(ctx context.Context, host, token, number, text string) error
}

// Manager owns one background send loop per instance. Start conflicts
// surface as ErrAlreadyRunning; a finished or stopped loop always
// settles the persisted status back to idle.
type Manager struct {
	mu      sync.Mutex
	cancels map[string]context.CancelFunc

	instances instance.Repository
	settings  outreach.SettingsRepository
	queue     outreach.QueueRepository
	totals    outreach.TotalsRepository
	gateway   Gateway
	hub       *Hub
	logger    *zap.Logger

	// sleep is swappable in tests.
	sleep func(ctx context.Context, d time.Duration) bool
}

func NewManager(
	instances instance.Repository,
	settings outreach.SettingsRepository,
	queue outreach.QueueRepository,
	totals outreach.TotalsRepository,
	gateway Gateway,
	hub *Hub,
	logger *zap.Logger,
) *Manager {
	return &Manager{
		cancels:   make(map[string]context.CancelFunc),
		instances: instances,
		settings:  settings,
		queue:     queue,
		totals:    totals,
		gateway:   gateway,
		hub:       hub,
		logger:    logger.Named("loop.manager"),
		sleep:     sleepCtx,
	}
}

// Start launches the send loop for the instance. The loop runs on a
// context detached from the caller's request.
func (m *Manager) Start(instanceID string) error {
	m.mu.Lock()
	if _, running := m.cancels[instanceID]; running {
		m.mu.Unlock()
		return outreach.ErrAlreadyRunning
	}
	runCtx, cancel := context.WithCancel(context.Background())
	m.cancels[instanceID] = cancel
	m.mu.Unlock()

	go m.run(runCtx, instanceID)
	return nil
}

// Stop cancels a running loop.
func (m *Manager) Stop(instanceID string) error {
	m.mu.Lock()
	cancel, running := m.cancels[instanceID]
	m.mu.Unlock()
	if !running {
		return outreach.ErrNotRunning
	}
	cancel()
	return nil
}

// Running reports whether the instance has a live loop goroutine.
func (m *Manager) Running(instanceID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, running := m.cancels[instanceID]
	return running
}

// StopAll cancels every running loop. Used on shutdown.
func (m *Manager) StopAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, cancel := range m.cancels {
		cancel()
		delete(m.cancels, id)
	}
}

func (m *Manager) run(ctx context.Context, instanceID string) {
	defer func() {
		m.mu.Lock()
		delete(m.cancels, instanceID)
		m.mu.Unlock()

		// The run context may already be canceled; settle state on a
		// fresh one.
		if err := m.settings.FinishRun(context.Background(), instanceID); err != nil {
			m.logger.Error("loop_finish_failed", zap.String("instance_id", instanceID), zap.Error(err))
		}
	}()

	logger := m.logger.With(zap.String("instance_id", instanceID))

	// Stop cancels ctx between iterations only; an in-flight send and
	// its ledger writes finish on the detached context.
	sendCtx := context.WithoutCancel(ctx)

	inst, err := m.instances.FindByID(ctx, instanceID)
	if err != nil || inst == nil {
		m.publishError(instanceID, "instance unavailable", err)
		return
	}

	settings, err := m.settings.Ensure(ctx, instanceID)
	if err != nil {
		m.publishError(instanceID, "settings unavailable", err)
		return
	}

	if err := m.settings.SetLoopStatus(ctx, instanceID, outreach.LoopRunning); err != nil {
		m.publishError(instanceID, "status update failed", err)
		return
	}

	pending, _ := m.queue.CountPending(ctx, instanceID)
	m.hub.Publish(ctx, instanceID, "start", map[string]any{
		"daily_limit":   settings.Limit(),
		"queue_pending": pending,
	})
	logger.Info("loop_started", zap.Int("daily_limit", settings.Limit()), zap.Int64("queue_pending", pending))

	sent, err := m.totals.SentToday(ctx, instanceID)
	if err != nil {
		m.publishError(instanceID, "quota check failed", err)
		return
	}
	if sent >= int64(settings.Limit()) {
		m.publishEnd(instanceID, "daily_quota", sent)
		return
	}

	for {
		select {
		case <-ctx.Done():
			m.publishEnd(instanceID, "manual_stop", sent)
			logger.Info("loop_stopped")
			return
		default:
		}

		now := time.Now()
		if !settings.WithinWindow(now) {
			m.hub.Publish(ctx, instanceID, "pause", map[string]any{
				"window_start": settings.WindowStart,
				"window_end":   settings.WindowEnd,
			})
			if !m.sleep(ctx, windowRecheck) {
				m.publishEnd(instanceID, "manual_stop", sent)
				return
			}
			continue
		}

		contact, err := m.queue.NextPending(ctx, instanceID)
		if err != nil {
			m.publishError(instanceID, "queue read failed", err)
			return
		}
		if contact == nil {
			m.publishEnd(instanceID, "completed", sent)
			logger.Info("loop_completed", zap.Int64("sent_today", sent))
			return
		}

		sent, err = m.totals.SentToday(ctx, instanceID)
		if err != nil {
			m.publishError(instanceID, "quota check failed", err)
			return
		}
		if sent >= int64(settings.Limit()) {
			m.publishEnd(instanceID, "daily_quota", sent)
			return
		}

		message := RenderTemplate(settings.Template(), contact, now)
		sendErr := m.gateway.SendText(sendCtx, inst.Host, inst.Token, contact.Phone, message)

		// The contact is consumed either way; failures are recorded in
		// the ledger, never retried in the same run.
		status := "sent"
		if sendErr != nil {
			status = "failed"
			loopFailed.Inc()
			logger.Warn("loop_send_failed", zap.String("phone", contact.Phone), zap.Error(sendErr))
		} else {
			loopSent.Inc()
			sent++
		}

		if err := m.queue.Delete(sendCtx, contact.ID); err != nil {
			logger.Error("queue_delete_failed", zap.Int64("contact_id", contact.ID), zap.Error(err))
		}
		if err := m.totals.Upsert(sendCtx, &outreach.Total{
			InstanceID:  instanceID,
			Phone:       contact.Phone,
			Name:        contact.Name,
			Niche:       contact.Niche,
			MessageSent: sendErr == nil,
			Status:      status,
		}); err != nil {
			logger.Error("totals_upsert_failed", zap.String("phone", contact.Phone), zap.Error(err))
		}

		payload := map[string]any{
			"phone":      contact.Phone,
			"name":       contact.Name,
			"status":     "sent",
			"sent_today": sent,
			"remaining":  int64(settings.Limit()) - sent,
		}
		if sendErr != nil {
			payload["status"] = "error"
			payload["error"] = sendErr.Error()
		}
		m.hub.Publish(ctx, instanceID, "item", payload)

		if !m.sleep(ctx, m.delay(settings, sent, now)) {
			m.publishEnd(instanceID, "manual_stop", sent)
			logger.Info("loop_stopped")
			return
		}
	}
}

// delay spreads the remaining quota across the remaining window time
// and jitters the result ±30%, floored at minSendDelay.
func (m *Manager) delay(settings *outreach.Settings, sent int64, now time.Time) time.Duration {
	remainingSends := int64(settings.Limit()) - sent
	if remainingSends <= 0 {
		return minSendDelay
	}
	windowLeft := settings.UntilWindowEnd(now)
	if windowLeft <= 0 {
		return minSendDelay
	}

	interval := windowLeft / time.Duration(remainingSends)
	jittered := time.Duration(float64(interval) * (0.7 + 0.6*rand.Float64()))
	if jittered < minSendDelay {
		return minSendDelay
	}
	return jittered
}

func (m *Manager) publishEnd(instanceID, reason string, sent int64) {
	m.hub.Publish(context.Background(), instanceID, "end", map[string]any{
		"reason":     reason,
		"sent_today": sent,
	})
}

func (m *Manager) publishError(instanceID, message string, err error) {
	payload := map[string]any{"message": message}
	if err != nil {
		payload["error"] = err.Error()
	}
	m.hub.Publish(context.Background(), instanceID, "error", payload)
	m.logger.Error("loop_failed", zap.String("instance_id", instanceID), zap.String("message", message), zap.Error(err))
}

// sleepCtx waits d unless ctx is canceled first. Returns false on cancel.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
