package loop

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rafaelssenna/LUNA-PAINEL-BACK/internal/domain/instance"
	"github.com/rafaelssenna/LUNA-PAINEL-BACK/internal/domain/outreach"
	"github.com/rafaelssenna/LUNA-PAINEL-BACK/pkg/testhelper"
)

type managerFixture struct {
	manager   *Manager
	instances *fakeInstanceRepo
	settings  *fakeSettingsRepo
	queue     *fakeQueueRepo
	totals    *fakeTotalsRepo
	events    *fakeEventRepo
	gateway   *testhelper.FakeGateway
	hub       *Hub
}

func newManagerFixture(t *testing.T) *managerFixture {
	t.Helper()

	instances := newFakeInstanceRepo(&instance.Instance{
		ID:     "inst-1",
		UserID: 1,
		Name:   "acme",
		Token:  "tok",
		Host:   "https://gw.example",
		Status: instance.StatusConnected,
	})
	settings := newFakeSettingsRepo()
	queue := newFakeQueueRepo()
	totals := newFakeTotalsRepo()
	events := newFakeEventRepo()
	gateway := testhelper.NewFakeGateway()
	hub := NewHub(events, zap.NewNop())

	m := NewManager(instances, settings, queue, totals, gateway, hub, zap.NewNop())
	// Skip real pacing so runs finish within the test.
	m.sleep = func(ctx context.Context, d time.Duration) bool {
		select {
		case <-ctx.Done():
			return false
		default:
			return true
		}
	}

	return &managerFixture{
		manager:   m,
		instances: instances,
		settings:  settings,
		queue:     queue,
		totals:    totals,
		events:    events,
		gateway:   gateway,
		hub:       hub,
	}
}

func (f *managerFixture) seedSettings(instanceID string, limit int) {
	f.settings.items[instanceID] = &outreach.Settings{
		InstanceID:  instanceID,
		DailyLimit:  limit,
		WindowStart: "00:00",
		WindowEnd:   "23:59",
		LoopStatus:  outreach.LoopIdle,
	}
}

func (f *managerFixture) seedContacts(instanceID string, phones ...string) {
	base := time.Now().UTC().Add(-time.Hour)
	for i, phone := range phones {
		_ = f.queue.Add(context.Background(), &outreach.Contact{
			InstanceID: instanceID,
			Name:       "Contato " + phone,
			Phone:      phone,
			Niche:      "clinicas",
			Source:     outreach.SourceManual,
			Status:     outreach.ContactPending,
			CreatedAt:  base.Add(time.Duration(i) * time.Second),
		})
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition never met")
}

func lastEventOfType(events *fakeEventRepo, instanceID, eventType string) *outreach.Event {
	all, _ := events.Recent(context.Background(), instanceID, 0)
	for i := len(all) - 1; i >= 0; i-- {
		if all[i].Type == eventType {
			return all[i]
		}
	}
	return nil
}

func eventsOfType(events *fakeEventRepo, instanceID, eventType string) []*outreach.Event {
	all, _ := events.Recent(context.Background(), instanceID, 0)
	var out []*outreach.Event
	for _, e := range all {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

func TestManagerRunCompletesQueue(t *testing.T) {
	f := newManagerFixture(t)
	f.seedSettings("inst-1", 30)
	f.seedContacts("inst-1", "5511111", "5511222", "5511333")

	require.NoError(t, f.manager.Start("inst-1"))
	waitFor(t, func() bool { return !f.manager.Running("inst-1") })

	sent := f.gateway.Sent()
	require.Len(t, sent, 3)
	// FIFO by creation time.
	assert.Equal(t, "5511111", sent[0].Number)
	assert.Equal(t, "5511222", sent[1].Number)
	assert.Equal(t, "5511333", sent[2].Number)
	assert.Equal(t, "https://gw.example", sent[0].Host)
	assert.Equal(t, "tok", sent[0].Token)
	assert.Equal(t, "Olá Contato 5511111, tudo bem?", sent[0].Text)

	pending, _ := f.queue.CountPending(context.Background(), "inst-1")
	assert.Zero(t, pending)

	count, _ := f.totals.SentToday(context.Background(), "inst-1")
	assert.EqualValues(t, 3, count)

	// The ledger keeps the contact identity, not just the phone.
	entry, err := f.totals.Find(context.Background(), "inst-1", "5511111")
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, "Contato 5511111", entry.Name)
	assert.Equal(t, "clinicas", entry.Niche)

	end := lastEventOfType(f.events, "inst-1", "end")
	require.NotNil(t, end)
	assert.Equal(t, "completed", end.Payload["reason"])

	// FinishRun settles persisted state.
	waitFor(t, func() bool {
		s, _ := f.settings.Find(context.Background(), "inst-1")
		return s != nil && s.LoopStatus == outreach.LoopIdle && s.LastRunAt != nil
	})
}

func TestManagerStopsAtDailyQuota(t *testing.T) {
	f := newManagerFixture(t)
	f.seedSettings("inst-1", 2)
	f.seedContacts("inst-1", "5511111", "5511222", "5511333")

	require.NoError(t, f.manager.Start("inst-1"))
	waitFor(t, func() bool { return !f.manager.Running("inst-1") })

	assert.Len(t, f.gateway.Sent(), 2)

	pending, _ := f.queue.CountPending(context.Background(), "inst-1")
	assert.EqualValues(t, 1, pending)

	end := lastEventOfType(f.events, "inst-1", "end")
	require.NotNil(t, end)
	assert.Equal(t, "daily_quota", end.Payload["reason"])
}

func TestManagerQuotaAlreadyExhausted(t *testing.T) {
	f := newManagerFixture(t)
	f.seedSettings("inst-1", 1)
	f.seedContacts("inst-1", "5511111")
	require.NoError(t, f.totals.Upsert(context.Background(), &outreach.Total{
		InstanceID: "inst-1", Phone: "5599999", MessageSent: true, Status: "sent",
	}))

	require.NoError(t, f.manager.Start("inst-1"))
	waitFor(t, func() bool { return !f.manager.Running("inst-1") })

	assert.Empty(t, f.gateway.Sent())
	end := lastEventOfType(f.events, "inst-1", "end")
	require.NotNil(t, end)
	assert.Equal(t, "daily_quota", end.Payload["reason"])
}

func TestManagerFailedSendConsumesContact(t *testing.T) {
	f := newManagerFixture(t)
	f.seedSettings("inst-1", 30)
	f.seedContacts("inst-1", "5511111", "5511222")
	f.gateway.Err = errors.New("gateway down")
	f.gateway.FailNumbers["5511111"] = true

	require.NoError(t, f.manager.Start("inst-1"))
	waitFor(t, func() bool { return !f.manager.Running("inst-1") })

	sent := f.gateway.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "5511222", sent[0].Number)

	pending, _ := f.queue.CountPending(context.Background(), "inst-1")
	assert.Zero(t, pending)

	failed, err := f.totals.Find(context.Background(), "inst-1", "5511111")
	require.NoError(t, err)
	require.NotNil(t, failed)
	assert.False(t, failed.MessageSent)
	assert.Equal(t, "failed", failed.Status)

	ok, err := f.totals.Find(context.Background(), "inst-1", "5511222")
	require.NoError(t, err)
	require.NotNil(t, ok)
	assert.True(t, ok.MessageSent)
	assert.Equal(t, "sent", ok.Status)

	// Per-contact progress events carry the outcome as a status string.
	items := eventsOfType(f.events, "inst-1", "item")
	require.Len(t, items, 2)
	assert.Equal(t, "error", items[0].Payload["status"])
	assert.Equal(t, "gateway down", items[0].Payload["error"])
	assert.Equal(t, "sent", items[1].Payload["status"])

	end := lastEventOfType(f.events, "inst-1", "end")
	require.NotNil(t, end)
	assert.Equal(t, "completed", end.Payload["reason"])
}

// blockingGateway holds every send until released and reports whether
// the call's context survived.
type blockingGateway struct {
	mu      sync.Mutex
	started chan struct{}
	release chan struct{}
	sent    []string
	errs    []error
}

func newBlockingGateway() *blockingGateway {
	return &blockingGateway{
		started: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
}

func (g *blockingGateway) SendText(ctx context.Context, host, token, number, text string) error {
	select {
	case g.started <- struct{}{}:
	default:
	}

	var err error
	select {
	case <-ctx.Done():
		err = ctx.Err()
	case <-g.release:
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.sent = append(g.sent, number)
	g.errs = append(g.errs, err)
	return err
}

func TestManagerStopLetsInFlightSendFinish(t *testing.T) {
	f := newManagerFixture(t)
	f.seedSettings("inst-1", 30)
	f.seedContacts("inst-1", "5511111")

	gw := newBlockingGateway()
	f.manager.gateway = gw

	require.NoError(t, f.manager.Start("inst-1"))
	select {
	case <-gw.started:
	case <-time.After(2 * time.Second):
		t.Fatal("send never started")
	}

	// Stop while the gateway call is in flight, then let it complete.
	require.NoError(t, f.manager.Stop("inst-1"))
	close(gw.release)
	waitFor(t, func() bool { return !f.manager.Running("inst-1") })

	gw.mu.Lock()
	require.Len(t, gw.sent, 1)
	assert.Equal(t, "5511111", gw.sent[0])
	assert.NoError(t, gw.errs[0])
	gw.mu.Unlock()

	entry, err := f.totals.Find(context.Background(), "inst-1", "5511111")
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.True(t, entry.MessageSent)
	assert.Equal(t, "sent", entry.Status)

	end := lastEventOfType(f.events, "inst-1", "end")
	require.NotNil(t, end)
	assert.Equal(t, "manual_stop", end.Payload["reason"])
}

func TestManagerManualStopDuringWindowPause(t *testing.T) {
	f := newManagerFixture(t)
	// A window far from any current clock keeps the loop paused.
	now := time.Now()
	closed := now.Add(2 * time.Hour)
	f.settings.items["inst-1"] = &outreach.Settings{
		InstanceID:  "inst-1",
		DailyLimit:  30,
		WindowStart: closed.Format("15:04"),
		WindowEnd:   closed.Add(time.Minute).Format("15:04"),
		LoopStatus:  outreach.LoopIdle,
	}
	f.seedContacts("inst-1", "5511111")
	f.manager.sleep = sleepCtx

	require.NoError(t, f.manager.Start("inst-1"))
	waitFor(t, func() bool { return lastEventOfType(f.events, "inst-1", "pause") != nil })

	assert.True(t, f.manager.Running("inst-1"))
	assert.ErrorIs(t, f.manager.Start("inst-1"), outreach.ErrAlreadyRunning)

	require.NoError(t, f.manager.Stop("inst-1"))
	waitFor(t, func() bool { return !f.manager.Running("inst-1") })

	assert.Empty(t, f.gateway.Sent())
	pending, _ := f.queue.CountPending(context.Background(), "inst-1")
	assert.EqualValues(t, 1, pending)

	end := lastEventOfType(f.events, "inst-1", "end")
	require.NotNil(t, end)
	assert.Equal(t, "manual_stop", end.Payload["reason"])

	assert.ErrorIs(t, f.manager.Stop("inst-1"), outreach.ErrNotRunning)
}

func TestManagerRestartAfterCompletion(t *testing.T) {
	f := newManagerFixture(t)
	f.seedSettings("inst-1", 30)
	f.seedContacts("inst-1", "5511111")

	require.NoError(t, f.manager.Start("inst-1"))
	waitFor(t, func() bool { return !f.manager.Running("inst-1") })

	f.seedContacts("inst-1", "5511222")
	require.NoError(t, f.manager.Start("inst-1"))
	waitFor(t, func() bool { return !f.manager.Running("inst-1") })

	assert.Len(t, f.gateway.Sent(), 2)
}

func TestManagerUnknownInstance(t *testing.T) {
	f := newManagerFixture(t)

	require.NoError(t, f.manager.Start("ghost"))
	waitFor(t, func() bool { return !f.manager.Running("ghost") })

	assert.Empty(t, f.gateway.Sent())
	errEvent := lastEventOfType(f.events, "ghost", "error")
	require.NotNil(t, errEvent)
	assert.Equal(t, "instance unavailable", errEvent.Payload["message"])
}

func TestManagerStopAll(t *testing.T) {
	f := newManagerFixture(t)
	f.seedSettings("inst-1", 30)
	f.seedContacts("inst-1", "5511111")
	f.manager.sleep = func(ctx context.Context, d time.Duration) bool {
		<-ctx.Done()
		return false
	}

	require.NoError(t, f.manager.Start("inst-1"))
	waitFor(t, func() bool { return len(f.gateway.Sent()) == 1 })

	f.manager.StopAll()
	waitFor(t, func() bool { return !f.manager.Running("inst-1") })
}

func TestManagerDelayBounds(t *testing.T) {
	f := newManagerFixture(t)
	settings := &outreach.Settings{
		DailyLimit:  30,
		WindowStart: "00:00",
		WindowEnd:   "23:59",
	}

	now := time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 50; i++ {
		d := f.manager.delay(settings, 10, now)
		assert.GreaterOrEqual(t, d, minSendDelay)
	}

	// Quota spent: only the floor remains.
	assert.Equal(t, minSendDelay, f.manager.delay(settings, 30, now))
	assert.Equal(t, minSendDelay, f.manager.delay(settings, 40, now))

	// 20 sends left in a wide window spread well past the floor.
	interval := settings.UntilWindowEnd(now) / 20
	for i := 0; i < 50; i++ {
		d := f.manager.delay(settings, 10, now)
		assert.GreaterOrEqual(t, d, time.Duration(float64(interval)*0.69))
		assert.LessOrEqual(t, d, time.Duration(float64(interval)*1.31))
	}
}
