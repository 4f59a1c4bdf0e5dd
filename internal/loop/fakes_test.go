package loop

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rafaelssenna/LUNA-PAINEL-BACK/internal/domain/instance"
	"github.com/rafaelssenna/LUNA-PAINEL-BACK/internal/domain/outreach"
)

type fakeSettingsRepo struct {
	mu    sync.Mutex
	items map[string]*outreach.Settings
}

func newFakeSettingsRepo() *fakeSettingsRepo {
	return &fakeSettingsRepo{items: make(map[string]*outreach.Settings)}
}

func (r *fakeSettingsRepo) Find(ctx context.Context, instanceID string) (*outreach.Settings, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.items[instanceID]; ok {
		clone := *s
		return &clone, nil
	}
	return nil, nil
}

func (r *fakeSettingsRepo) Ensure(ctx context.Context, instanceID string) (*outreach.Settings, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.items[instanceID]; ok {
		clone := *s
		return &clone, nil
	}
	s := &outreach.Settings{
		InstanceID:  instanceID,
		DailyLimit:  outreach.DefaultDailyLimit,
		WindowStart: "08:00",
		WindowEnd:   "18:00",
		LoopStatus:  outreach.LoopIdle,
		UpdatedAt:   time.Now().UTC(),
	}
	r.items[instanceID] = s
	clone := *s
	return &clone, nil
}

func (r *fakeSettingsRepo) Update(ctx context.Context, s *outreach.Settings) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	clone := *s
	r.items[s.InstanceID] = &clone
	return nil
}

func (r *fakeSettingsRepo) SetLoopStatus(ctx context.Context, instanceID string, status outreach.LoopStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.items[instanceID]; ok {
		s.LoopStatus = status
	}
	return nil
}

func (r *fakeSettingsRepo) FinishRun(ctx context.Context, instanceID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.items[instanceID]; ok {
		now := time.Now().UTC()
		s.LoopStatus = outreach.LoopIdle
		s.LastRunAt = &now
	}
	return nil
}

func (r *fakeSettingsRepo) ListAutoRun(ctx context.Context) ([]*outreach.Settings, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*outreach.Settings
	for _, s := range r.items {
		if s.AutoRun {
			clone := *s
			out = append(out, &clone)
		}
	}
	return out, nil
}

type fakeQueueRepo struct {
	mu     sync.Mutex
	nextID int64
	items  []*outreach.Contact
}

func newFakeQueueRepo() *fakeQueueRepo {
	return &fakeQueueRepo{}
}

func (r *fakeQueueRepo) Add(ctx context.Context, c *outreach.Contact) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	c.ID = r.nextID
	clone := *c
	r.items = append(r.items, &clone)
	return nil
}

func (r *fakeQueueRepo) NextPending(ctx context.Context, instanceID string) (*outreach.Contact, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sort.SliceStable(r.items, func(i, j int) bool {
		return r.items[i].CreatedAt.Before(r.items[j].CreatedAt)
	})
	for _, c := range r.items {
		if c.InstanceID == instanceID && c.Status == outreach.ContactPending {
			clone := *c
			return &clone, nil
		}
	}
	return nil, nil
}

func (r *fakeQueueRepo) Delete(ctx context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, c := range r.items {
		if c.ID == id {
			r.items = append(r.items[:i], r.items[i+1:]...)
			return nil
		}
	}
	return nil
}

func (r *fakeQueueRepo) CountPending(ctx context.Context, instanceID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, c := range r.items {
		if c.InstanceID == instanceID && c.Status == outreach.ContactPending {
			n++
		}
	}
	return n, nil
}

func (r *fakeQueueRepo) HasPendingPhone(ctx context.Context, instanceID, phone string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.items {
		if c.InstanceID == instanceID && c.Phone == phone && c.Status == outreach.ContactPending {
			return true, nil
		}
	}
	return false, nil
}

func (r *fakeQueueRepo) List(ctx context.Context, instanceID, search string, limit, offset int) ([]*outreach.Contact, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var matched []*outreach.Contact
	for _, c := range r.items {
		if c.InstanceID != instanceID {
			continue
		}
		if search != "" && !strings.Contains(c.Name, search) && !strings.Contains(c.Phone, search) {
			continue
		}
		clone := *c
		matched = append(matched, &clone)
	}
	total := int64(len(matched))
	if offset >= len(matched) {
		return nil, total, nil
	}
	matched = matched[offset:]
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, total, nil
}

type fakeTotalsRepo struct {
	mu    sync.Mutex
	items map[string]*outreach.Total
}

func newFakeTotalsRepo() *fakeTotalsRepo {
	return &fakeTotalsRepo{items: make(map[string]*outreach.Total)}
}

func totalKey(instanceID, phone string) string {
	return instanceID + ":" + phone
}

func (r *fakeTotalsRepo) Upsert(ctx context.Context, entry *outreach.Total) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := totalKey(entry.InstanceID, entry.Phone)
	if t, ok := r.items[key]; ok {
		t.Name = entry.Name
		t.Niche = entry.Niche
		t.MessageSent = entry.MessageSent
		t.Status = entry.Status
		t.UpdatedAt = time.Now().UTC()
		return nil
	}
	clone := *entry
	clone.ID = int64(len(r.items) + 1)
	clone.UpdatedAt = time.Now().UTC()
	r.items[key] = &clone
	return nil
}

func (r *fakeTotalsRepo) Find(ctx context.Context, instanceID, phone string) (*outreach.Total, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.items[totalKey(instanceID, phone)]; ok {
		clone := *t
		return &clone, nil
	}
	return nil, nil
}

func (r *fakeTotalsRepo) SentToday(ctx context.Context, instanceID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	midnight := time.Now().UTC().Truncate(24 * time.Hour)
	var n int64
	for _, t := range r.items {
		if t.InstanceID == instanceID && t.MessageSent && !t.UpdatedAt.Before(midnight) {
			n++
		}
	}
	return n, nil
}

func (r *fakeTotalsRepo) List(ctx context.Context, instanceID, search string, limit, offset int) ([]*outreach.Total, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var matched []*outreach.Total
	for _, t := range r.items {
		if t.InstanceID != instanceID {
			continue
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(t.Name), strings.ToLower(search)) &&
			!strings.Contains(t.Phone, search) {
			continue
		}
		clone := *t
		matched = append(matched, &clone)
	}
	return matched, int64(len(matched)), nil
}

type fakeEventRepo struct {
	mu     sync.Mutex
	events []*outreach.Event
}

func newFakeEventRepo() *fakeEventRepo {
	return &fakeEventRepo{}
}

func (r *fakeEventRepo) Append(ctx context.Context, e *outreach.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e.ID = int64(len(r.events) + 1)
	clone := *e
	r.events = append(r.events, &clone)
	return nil
}

func (r *fakeEventRepo) Recent(ctx context.Context, instanceID string, limit int) ([]*outreach.Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var matched []*outreach.Event
	for _, e := range r.events {
		if e.InstanceID == instanceID {
			clone := *e
			matched = append(matched, &clone)
		}
	}
	if limit > 0 && len(matched) > limit {
		matched = matched[len(matched)-limit:]
	}
	return matched, nil
}

// typesOf extracts event types in order, for assertions.
func (r *fakeEventRepo) typesOf(instanceID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, e := range r.events {
		if e.InstanceID == instanceID {
			out = append(out, e.Type)
		}
	}
	return out
}

type fakeInstanceRepo struct {
	mu    sync.Mutex
	items map[string]*instance.Instance
}

func newFakeInstanceRepo(items ...*instance.Instance) *fakeInstanceRepo {
	repo := &fakeInstanceRepo{items: make(map[string]*instance.Instance)}
	for _, item := range items {
		repo.items[item.ID] = item
	}
	return repo
}

func (r *fakeInstanceRepo) FindByID(ctx context.Context, id string) (*instance.Instance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.items[id], nil
}

func (r *fakeInstanceRepo) FindByUserID(ctx context.Context, userID int64) ([]*instance.Instance, error) {
	return nil, nil
}

func (r *fakeInstanceRepo) ListAll(ctx context.Context) ([]*instance.Instance, error) {
	return nil, nil
}

func (r *fakeInstanceRepo) Save(ctx context.Context, entity *instance.Instance) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[entity.ID] = entity
	return nil
}

func (r *fakeInstanceRepo) UpdateStatus(ctx context.Context, id string, status instance.Status) error {
	return nil
}

func (r *fakeInstanceRepo) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.items, id)
	return nil
}
