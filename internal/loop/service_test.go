package loop

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rafaelssenna/LUNA-PAINEL-BACK/internal/domain/outreach"
)

func newServiceFixture(t *testing.T) (*Service, *managerFixture) {
	t.Helper()
	f := newManagerFixture(t)
	svc := NewService(f.settings, f.queue, f.totals, f.manager, zap.NewNop())
	return svc, f
}

func TestNormalizePhone(t *testing.T) {
	assert.Equal(t, "5511999887766", NormalizePhone("+55 (11) 99988-7766"))
	assert.Equal(t, "5511999", NormalizePhone("5511999"))
	assert.Equal(t, "", NormalizePhone("abc"))
}

func TestAddContact(t *testing.T) {
	svc, f := newServiceFixture(t)
	ctx := context.Background()

	status, err := svc.AddContact(ctx, "inst-1", "Maria", "+55 11 99988-7766", "clinicas", outreach.SourceManual)
	require.NoError(t, err)
	assert.Equal(t, AddOK, status)

	// Same phone with different formatting hits the pending duplicate.
	status, err = svc.AddContact(ctx, "inst-1", "Maria de novo", "55 11 999887766", "", outreach.SourceCSV)
	require.NoError(t, err)
	assert.Equal(t, AddSkippedDuplicate, status)

	// A phone the ledger marks as answered is skipped outright.
	require.NoError(t, f.totals.Upsert(ctx, &outreach.Total{
		InstanceID: "inst-1", Phone: "5511000000000", MessageSent: true, Status: "sent",
	}))
	status, err = svc.AddContact(ctx, "inst-1", "Antigo", "5511000000000", "", outreach.SourceManual)
	require.NoError(t, err)
	assert.Equal(t, AddSkippedAlreadySent, status)

	// A failed previous attempt does not block requeueing.
	require.NoError(t, f.totals.Upsert(ctx, &outreach.Total{
		InstanceID: "inst-1", Phone: "5522000000000", MessageSent: false, Status: "failed",
	}))
	status, err = svc.AddContact(ctx, "inst-1", "Falhou", "5522000000000", "", outreach.SourceManual)
	require.NoError(t, err)
	assert.Equal(t, AddOK, status)

	_, err = svc.AddContact(ctx, "inst-1", "Sem fone", "---", "", outreach.SourceManual)
	assert.Error(t, err)

	pending, _ := f.queue.CountPending(ctx, "inst-1")
	assert.EqualValues(t, 2, pending)
}

func TestAddContactScopedPerInstance(t *testing.T) {
	svc, _ := newServiceFixture(t)
	ctx := context.Background()

	status, err := svc.AddContact(ctx, "inst-1", "Maria", "5511999", "", outreach.SourceManual)
	require.NoError(t, err)
	assert.Equal(t, AddOK, status)

	status, err = svc.AddContact(ctx, "inst-2", "Maria", "5511999", "", outreach.SourceManual)
	require.NoError(t, err)
	assert.Equal(t, AddOK, status)
}

func TestUpdateSettingsPartialPatch(t *testing.T) {
	svc, _ := newServiceFixture(t)
	ctx := context.Background()

	limit := 50
	template := "Oi {name}"
	updated, err := svc.UpdateSettings(ctx, "inst-1", UpdateSettingsInput{
		DailyLimit:      &limit,
		MessageTemplate: &template,
	})
	require.NoError(t, err)
	assert.Equal(t, 50, updated.DailyLimit)
	assert.Equal(t, "Oi {name}", updated.MessageTemplate)
	// Untouched fields keep their defaults.
	assert.Equal(t, "08:00", updated.WindowStart)
	assert.Equal(t, "18:00", updated.WindowEnd)
	assert.False(t, updated.AutoRun)

	auto := true
	updated, err = svc.UpdateSettings(ctx, "inst-1", UpdateSettingsInput{AutoRun: &auto})
	require.NoError(t, err)
	assert.True(t, updated.AutoRun)
	assert.Equal(t, 50, updated.DailyLimit)
}

func TestServiceState(t *testing.T) {
	svc, f := newServiceFixture(t)
	ctx := context.Background()

	_, err := svc.AddContact(ctx, "inst-1", "A", "5511111", "", outreach.SourceManual)
	require.NoError(t, err)
	_, err = svc.AddContact(ctx, "inst-1", "B", "5511222", "", outreach.SourceManual)
	require.NoError(t, err)
	require.NoError(t, f.totals.Upsert(ctx, &outreach.Total{
		InstanceID: "inst-1", Phone: "5599999", MessageSent: true, Status: "sent",
	}))

	state, err := svc.State(ctx, "inst-1")
	require.NoError(t, err)
	assert.Equal(t, outreach.DefaultDailyLimit, state.Cap)
	assert.EqualValues(t, 1, state.SentToday)
	assert.EqualValues(t, int64(outreach.DefaultDailyLimit)-1, state.RemainingToday)
	assert.EqualValues(t, 2, state.QueuePending)
	assert.Equal(t, outreach.LoopIdle, state.LoopStatus)
	assert.False(t, state.ActuallyRunning)
	assert.Equal(t, outreach.DefaultTemplate, state.MessageTemplate)
}

func TestServiceStateRemainingNeverNegative(t *testing.T) {
	svc, f := newServiceFixture(t)
	ctx := context.Background()

	f.seedSettings("inst-1", 1)
	require.NoError(t, f.totals.Upsert(ctx, &outreach.Total{
		InstanceID: "inst-1", Phone: "5511111", MessageSent: true, Status: "sent",
	}))
	require.NoError(t, f.totals.Upsert(ctx, &outreach.Total{
		InstanceID: "inst-1", Phone: "5511222", MessageSent: true, Status: "sent",
	}))

	state, err := svc.State(ctx, "inst-1")
	require.NoError(t, err)
	assert.EqualValues(t, 2, state.SentToday)
	assert.Zero(t, state.RemainingToday)
}

func TestListClampsLimit(t *testing.T) {
	svc, f := newServiceFixture(t)
	ctx := context.Background()

	for i := 0; i < 60; i++ {
		_ = f.queue.Add(ctx, &outreach.Contact{
			InstanceID: "inst-1",
			Phone:      fmt.Sprintf("5511%07d", i),
			Status:     outreach.ContactPending,
		})
	}

	_, total, err := svc.ListQueue(ctx, "inst-1", "", 0, 0)
	require.NoError(t, err)
	assert.EqualValues(t, 60, total)

	items, _, err := svc.ListQueue(ctx, "inst-1", "", 10_000, 0)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(items), 50)
}
